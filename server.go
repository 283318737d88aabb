package fins

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"
)

// Word capacity per area, sized after a mid-range CJ-series CPU.
var simulatorAreaSizes = map[MemoryArea]int{
	AreaDM:  32768,
	AreaCIO: 6144,
	AreaWR:  512,
	AreaHR:  512,
	AreaAR:  960,
}

const (
	simulatorBufferSize = 1024
	errChannelBuffer    = 1
)

type simulatorConfig struct {
	tcp     bool
	node    byte
	model   string
	version string
	status  ControllerStatus
}

// SimulatorOption configures the PLC simulator.
type SimulatorOption func(*simulatorConfig)

// WithTCPTransport switches the simulator to FINS/TCP instead of UDP.
func WithTCPTransport() SimulatorOption {
	return func(cfg *simulatorConfig) { cfg.tcp = true }
}

// WithServerNode sets the FINS node number the simulator reports during the
// FINS/TCP handshake.
func WithServerNode(node byte) SimulatorOption {
	return func(cfg *simulatorConfig) { cfg.node = node }
}

// WithCPUUnit sets the model and version strings returned by a CPU unit
// data read.
func WithCPUUnit(model, version string) SimulatorOption {
	return func(cfg *simulatorConfig) {
		cfg.model = model
		cfg.version = version
	}
}

// WithControllerStatus sets the mode and error flags returned by a
// controller status read.
func WithControllerStatus(status ControllerStatus) SimulatorOption {
	return func(cfg *simulatorConfig) { cfg.status = status }
}

// Simulator is an in-process PLC answering FINS memory, status, CPU unit
// data and clock commands over UDP or FINS/TCP. It backs the test suite and
// the example server binary; it is not a production FINS server.
type Simulator struct {
	cfg  simulatorConfig
	conn *net.UDPConn
	ln   *net.TCPListener

	memMu sync.RWMutex
	mem   map[MemoryArea][]uint16

	closed  bool
	closeMu sync.RWMutex
	errChan chan error
	done    chan struct{}
}

// NewSimulator starts a simulator listening on host:port.
func NewSimulator(host string, port int, opts ...SimulatorOption) (*Simulator, error) {
	cfg := simulatorConfig{
		node:    1,
		model:   "SIM-CJ2M-CPU33",
		version: "V1.0",
		status:  ControllerStatus{RunMode: true},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	mem := make(map[MemoryArea][]uint16, len(simulatorAreaSizes))
	for area, size := range simulatorAreaSizes {
		mem[area] = make([]uint16, size)
	}

	s := &Simulator{
		cfg:     cfg,
		mem:     mem,
		errChan: make(chan error, errChannelBuffer),
		done:    make(chan struct{}),
	}

	hostPort := net.JoinHostPort(host, fmt.Sprint(port))
	if cfg.tcp {
		addr, err := net.ResolveTCPAddr("tcp", hostPort)
		if err != nil {
			return nil, err
		}
		ln, err := net.ListenTCP("tcp", addr)
		if err != nil {
			return nil, err
		}
		s.ln = ln
		go s.tcpAcceptLoop()
	} else {
		addr, err := net.ResolveUDPAddr("udp", hostPort)
		if err != nil {
			return nil, err
		}
		conn, err := net.ListenUDP("udp", addr)
		if err != nil {
			return nil, err
		}
		s.conn = conn
		go s.udpLoop()
	}

	return s, nil
}

// Addr returns the simulator's bound address. Useful with port 0.
func (s *Simulator) Addr() net.Addr {
	if s.conn != nil {
		return s.conn.LocalAddr()
	}
	return s.ln.Addr()
}

// IsClosed returns true once the simulator has been closed.
func (s *Simulator) IsClosed() bool {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	return s.closed
}

// Err returns the channel receiving serve-loop errors.
func (s *Simulator) Err() <-chan error {
	return s.errChan
}

// Close stops the simulator. It is idempotent.
func (s *Simulator) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	close(s.done)
	if s.conn != nil {
		return s.conn.Close()
	}
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

// SetWords seeds simulator memory directly, for tests.
func (s *Simulator) SetWords(area MemoryArea, word uint16, values ...uint16) error {
	s.memMu.Lock()
	defer s.memMu.Unlock()
	buf, ok := s.mem[area]
	if !ok {
		return fmt.Errorf("unknown area %s", area)
	}
	if int(word)+len(values) > len(buf) {
		return fmt.Errorf("write beyond %s area bounds", area)
	}
	copy(buf[word:], values)
	return nil
}

func (s *Simulator) udpLoop() {
	defer close(s.errChan)

	var buf [simulatorBufferSize]byte
	for {
		select {
		case <-s.done:
			return
		default:
		}

		n, remote, err := s.conn.ReadFromUDP(buf[:])
		if err != nil {
			if s.IsClosed() {
				return
			}
			s.errChan <- fmt.Errorf("simulator read error: %w", err)
			return
		}
		if n == 0 {
			continue
		}

		req, err := decodeRequest(buf[:n])
		if err != nil {
			continue
		}
		resp := s.handle(req)
		if _, err := s.conn.WriteToUDP(encodeResponse(resp), remote); err != nil {
			if s.IsClosed() {
				return
			}
			s.errChan <- fmt.Errorf("simulator write error: %w", err)
			return
		}
	}
}

func (s *Simulator) tcpAcceptLoop() {
	defer close(s.errChan)

	for {
		conn, err := s.ln.AcceptTCP()
		if err != nil {
			if s.IsClosed() {
				return
			}
			s.errChan <- fmt.Errorf("accept error: %w", err)
			return
		}
		go s.serveTCPConn(conn)
	}
}

func (s *Simulator) serveTCPConn(conn *net.TCPConn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)

	// Node address handshake.
	msg, err := readTCPMessage(reader)
	if err != nil || msg.command != finsTCPNodeAddressSend {
		return
	}
	clientNode := byte(1)
	if len(msg.body) >= 4 {
		if requested := byte(binary.BigEndian.Uint32(msg.body[0:4])); requested != 0 {
			clientNode = requested
		}
	}
	reply := make([]byte, 8)
	binary.BigEndian.PutUint32(reply[0:4], uint32(clientNode))
	binary.BigEndian.PutUint32(reply[4:8], uint32(s.cfg.node))
	if _, err := conn.Write(encodeTCPMessage(finsTCPNodeAddressReply, reply)); err != nil {
		return
	}

	for {
		msg, err := readTCPMessage(reader)
		if err != nil {
			if !s.IsClosed() {
				s.errChan <- fmt.Errorf("read error: %w", err)
			}
			return
		}
		if msg.command != finsTCPDataCommand {
			continue
		}
		req, err := decodeRequest(msg.body)
		if err != nil {
			continue
		}
		resp := s.handle(req)
		if _, err := conn.Write(encodeTCPMessage(finsTCPDataCommand, encodeResponse(resp))); err != nil {
			if !s.IsClosed() {
				s.errChan <- fmt.Errorf("write error: %w", err)
			}
			return
		}
	}
}

func (s *Simulator) handle(r request) response {
	var endCode uint16
	var data []byte

	switch r.commandCode {
	case CommandMemoryAreaRead:
		data, endCode = s.handleRead(r.data)
	case CommandMemoryAreaWrite:
		endCode = s.handleWrite(r.data)
	case CommandMultipleMemoryAreaRead:
		data, endCode = s.handleMultipleRead(r.data)
	case CommandControllerStatusRead:
		data, endCode = s.handleStatus()
	case CommandCPUUnitDataRead:
		data, endCode = s.handleCPUUnitData()
	case CommandClockRead:
		data, endCode = encodeSimClock(time.Now()), EndCodeNormalCompletion
	default:
		endCode = EndCodeNotSupportedByModel
	}

	return response{
		header:      responseHeader(r.header),
		commandCode: r.commandCode,
		mres:        byte(endCode >> 8),
		sres:        byte(endCode),
		data:        data,
	}
}

func (s *Simulator) handleRead(body []byte) ([]byte, uint16) {
	if len(body) < memoryAddrSize+itemCountSize {
		return nil, EndCodeAddressRangeExceeded
	}
	addr, err := decodeMemoryAddress(body[:memoryAddrSize])
	if err != nil {
		return nil, EndCodeAddressRangeExceeded
	}
	count := binary.BigEndian.Uint16(body[memoryAddrSize : memoryAddrSize+itemCountSize])

	s.memMu.RLock()
	defer s.memMu.RUnlock()
	buf, ok := s.mem[addr.Area]
	if !ok {
		return nil, EndCodeAreaClassificationMissing
	}
	if int(addr.Word)+int(count) > len(buf) {
		return nil, EndCodeAddressRangeExceeded
	}
	return wordsToBytes(buf[addr.Word : addr.Word+count]), EndCodeNormalCompletion
}

func (s *Simulator) handleWrite(body []byte) uint16 {
	if len(body) < memoryAddrSize+itemCountSize {
		return EndCodeAddressRangeExceeded
	}
	addr, err := decodeMemoryAddress(body[:memoryAddrSize])
	if err != nil {
		return EndCodeAddressRangeExceeded
	}
	count := binary.BigEndian.Uint16(body[memoryAddrSize : memoryAddrSize+itemCountSize])
	payload := body[memoryAddrSize+itemCountSize:]
	if len(payload) < int(count)*2 {
		return EndCodeAddressRangeExceeded
	}
	words, err := bytesToWords(payload[:count*2])
	if err != nil {
		return EndCodeAddressRangeExceeded
	}

	s.memMu.Lock()
	defer s.memMu.Unlock()
	buf, ok := s.mem[addr.Area]
	if !ok {
		return EndCodeAreaClassificationMissing
	}
	if int(addr.Word)+int(count) > len(buf) {
		return EndCodeAddressRangeExceeded
	}
	copy(buf[addr.Word:], words)
	return EndCodeNormalCompletion
}

func (s *Simulator) handleMultipleRead(body []byte) ([]byte, uint16) {
	if len(body) < 1 {
		return nil, EndCodeAddressRangeExceeded
	}
	n := int(body[0])
	body = body[1:]
	if len(body) < n*memoryAddrSize {
		return nil, EndCodeAddressRangeExceeded
	}

	s.memMu.RLock()
	defer s.memMu.RUnlock()
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		addr, err := decodeMemoryAddress(body[i*memoryAddrSize : (i+1)*memoryAddrSize])
		if err != nil {
			return nil, EndCodeAddressRangeExceeded
		}
		buf, ok := s.mem[addr.Area]
		if !ok {
			return nil, EndCodeAreaClassificationMissing
		}
		if int(addr.Word) >= len(buf) {
			return nil, EndCodeAddressRangeExceeded
		}
		out = appendUint16(out, buf[addr.Word])
	}
	return out, EndCodeNormalCompletion
}

func (s *Simulator) handleStatus() ([]byte, uint16) {
	var b byte
	if s.cfg.status.RunMode {
		b |= 0x01
	}
	if s.cfg.status.ProgramMode {
		b |= 0x02
	}
	if s.cfg.status.FatalError {
		b |= 0x40
	}
	if s.cfg.status.NonFatalError {
		b |= 0x80
	}
	return []byte{b, 0x00}, EndCodeNormalCompletion
}

func (s *Simulator) handleCPUUnitData() ([]byte, uint16) {
	data := make([]byte, 40)
	copy(data[0:20], padASCII(s.cfg.model, 20))
	copy(data[20:40], padASCII(s.cfg.version, 20))
	return data, EndCodeNormalCompletion
}

func padASCII(s string, n int) []byte {
	b := make([]byte, n)
	copy(b, s)
	return b
}

// encodeSimClock returns BCD clock data: year (two digits), month, day,
// hour, minute, second, day of week.
func encodeSimClock(t time.Time) []byte {
	return []byte{
		encodeBCDByte(t.Year() % 100),
		encodeBCDByte(int(t.Month())),
		encodeBCDByte(t.Day()),
		encodeBCDByte(t.Hour()),
		encodeBCDByte(t.Minute()),
		encodeBCDByte(t.Second()),
		encodeBCDByte(int(t.Weekday())),
	}
}
