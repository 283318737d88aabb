package fins

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// maxMultipleReadAddresses is the FINS limit for one multiple-read command.
const maxMultipleReadAddresses = 32

// Client is an OMRON FINS client. It composes the address parser, frame
// codec, data codec and transport into the public read/write/status
// operations.
//
// Scheduling is synchronous: each operation performs one blocking send and
// one blocking receive, and an internal mutex keeps a single request in
// flight per session. Responses are matched to requests by service ID; stale
// replies are discarded.
type Client struct {
	cfg Config

	mu  sync.Mutex // serializes round trips, guards tr and sid
	tr  transport
	sid byte

	stateMu sync.RWMutex
	closed  bool

	hookMu      sync.RWMutex
	interceptor Interceptor

	plugins pluginManager
}

// NewClient builds a client from cfg without touching the network. The
// connection is established by Connect, or lazily on the first operation.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Protocol = strings.ToLower(cfg.Protocol)
	return &Client{cfg: cfg}, nil
}

// Dial builds a client and connects it in one step.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	c, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// WithConnection runs fn against a connected client and guarantees Close on
// every exit path, mirroring a scoped resource acquisition.
func WithConnection(ctx context.Context, cfg Config, fn func(*Client) error) error {
	c, err := Dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

// Connect establishes the transport session. For TCP this includes the
// FINS/TCP handshake; the node number assigned by the controller replaces the
// configured source node for the life of the session.
func (c *Client) Connect(ctx context.Context) error {
	if c.IsClosed() {
		return ClientClosedError{}
	}

	c.mu.Lock()
	if c.tr != nil {
		c.mu.Unlock()
		return nil
	}

	var (
		tr  transport
		err error
	)
	switch c.cfg.Protocol {
	case ProtocolTCP:
		tr, err = newTCPTransport(ctx, c.cfg.Host, c.cfg.Port, c.cfg.Timeout, c.cfg.SA1)
	default:
		tr, err = newUDPTransport(c.cfg.Host, c.cfg.Port, c.cfg.Timeout)
	}
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.tr = tr
	c.mu.Unlock()

	c.plugins.fireConnected(c)
	return nil
}

// Connected reports whether a transport session is currently established.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tr != nil
}

// IsClosed returns true once the client has been closed.
func (c *Client) IsClosed() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.closed
}

// Close releases the transport session. It is idempotent; operations after
// Close fail with ClientClosedError.
func (c *Client) Close() error {
	c.stateMu.Lock()
	if c.closed {
		c.stateMu.Unlock()
		return nil
	}
	c.closed = true
	c.stateMu.Unlock()

	c.mu.Lock()
	tr := c.tr
	c.tr = nil
	c.mu.Unlock()

	var err error
	if tr != nil {
		err = tr.Close()
	}
	c.plugins.fireDisconnected(c, nil)
	return err
}

// SetInterceptor installs the interceptor wrapping every operation.
// Use ChainInterceptors to install more than one.
func (c *Client) SetInterceptor(i Interceptor) {
	c.hookMu.Lock()
	c.interceptor = i
	c.hookMu.Unlock()
}

// Use registers plugins with the client.
func (c *Client) Use(plugins ...Plugin) error {
	return c.plugins.use(c, plugins...)
}

// Read parses address, issues a memory-area read and returns count words as
// unsigned 16-bit integers, in request order.
func (c *Client) Read(ctx context.Context, address string, count uint16) ([]uint16, error) {
	info := &OperationInfo{Operation: OpRead, Address: address, Count: count}
	res, err := c.run(ctx, info, func(ctx context.Context) (interface{}, error) {
		return c.doRead(ctx, address, count)
	})
	if err != nil {
		return nil, err
	}
	return res.([]uint16), nil
}

func (c *Client) doRead(ctx context.Context, address string, count uint16) ([]uint16, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	resp, err := c.roundTrip(ctx, func(h Header) []byte {
		return encodeReadCommand(h, addr, count)
	})
	if err != nil {
		return nil, ReadError{Address: address, Err: err}
	}
	if err := checkEndCode(OpRead, address, resp); err != nil {
		return nil, ReadError{Address: address, Err: err}
	}
	if len(resp.data) < int(count)*2 {
		return nil, ReadError{Address: address, Err: ProtocolError{
			Reason: fmt.Sprintf("payload has %d bytes, need %d for %d words", len(resp.data), count*2, count),
		}}
	}
	words, err := bytesToWords(resp.data[:count*2])
	if err != nil {
		return nil, ReadError{Address: address, Err: err}
	}
	return words, nil
}

// Write parses address and writes the given words starting at it. The item
// count is derived from the payload; an empty payload fails before any I/O.
func (c *Client) Write(ctx context.Context, address string, values ...uint16) error {
	info := &OperationInfo{Operation: OpWrite, Address: address, Data: values}
	_, err := c.run(ctx, info, func(ctx context.Context) (interface{}, error) {
		return nil, c.doWrite(ctx, address, values)
	})
	return err
}

func (c *Client) doWrite(ctx context.Context, address string, values []uint16) error {
	if len(values) == 0 {
		return WriteError{Address: address, Err: errors.New("empty payload")}
	}
	addr, err := ParseAddress(address)
	if err != nil {
		return err
	}
	resp, err := c.roundTrip(ctx, func(h Header) []byte {
		return encodeWriteCommand(h, addr, values)
	})
	if err != nil {
		return WriteError{Address: address, Err: err}
	}
	if err := checkEndCode(OpWrite, address, resp); err != nil {
		return WriteError{Address: address, Err: err}
	}
	return nil
}

// ReadReal reads two consecutive words at address and decodes them as an
// OMRON word-swapped IEEE-754 single-precision REAL.
func (c *Client) ReadReal(ctx context.Context, address string) (float32, error) {
	info := &OperationInfo{Operation: OpReadReal, Address: address, Count: 2}
	res, err := c.run(ctx, info, func(ctx context.Context) (interface{}, error) {
		words, err := c.doRead(ctx, address, 2)
		if err != nil {
			return nil, err
		}
		v, err := DecodeReal(words)
		if err != nil {
			return nil, ReadError{Address: address, Err: err}
		}
		return v, nil
	})
	if err != nil {
		return 0, err
	}
	return res.(float32), nil
}

// WriteReal encodes value as an OMRON word-swapped REAL and writes the two
// words at address.
func (c *Client) WriteReal(ctx context.Context, address string, value float32) error {
	info := &OperationInfo{Operation: OpWriteReal, Address: address, Data: value}
	_, err := c.run(ctx, info, func(ctx context.Context) (interface{}, error) {
		words := EncodeReal(value)
		return nil, c.doWrite(ctx, address, words[:])
	})
	return err
}

// ReadMultiple reads one word from each of up to 32 disparate addresses in a
// single round trip and returns the values keyed by the canonical address
// form. Support for this command is model-dependent.
func (c *Client) ReadMultiple(ctx context.Context, addresses ...string) (map[string]uint16, error) {
	info := &OperationInfo{Operation: OpReadMultiple, Count: uint16(len(addresses))}
	res, err := c.run(ctx, info, func(ctx context.Context) (interface{}, error) {
		return c.doReadMultiple(ctx, addresses)
	})
	if err != nil {
		return nil, err
	}
	return res.(map[string]uint16), nil
}

func (c *Client) doReadMultiple(ctx context.Context, addresses []string) (map[string]uint16, error) {
	if len(addresses) == 0 {
		return map[string]uint16{}, nil
	}
	if len(addresses) > maxMultipleReadAddresses {
		return nil, fmt.Errorf("at most %d addresses per multiple read, got %d", maxMultipleReadAddresses, len(addresses))
	}

	addrs := make([]MemoryAddress, len(addresses))
	for i, a := range addresses {
		parsed, err := ParseAddress(a)
		if err != nil {
			return nil, err
		}
		addrs[i] = parsed
	}

	resp, err := c.roundTrip(ctx, func(h Header) []byte {
		return encodeMultipleReadCommand(h, addrs)
	})
	if err != nil {
		return nil, err
	}
	if err := checkEndCode(OpReadMultiple, "", resp); err != nil {
		return nil, err
	}
	if len(resp.data) < len(addrs)*2 {
		return nil, ProtocolError{Reason: fmt.Sprintf("multiple read payload has %d bytes for %d items", len(resp.data), len(addrs))}
	}

	result := make(map[string]uint16, len(addrs))
	for i, a := range addrs {
		result[a.String()] = uint16(resp.data[i*2])<<8 | uint16(resp.data[i*2+1])
	}
	return result, nil
}

// ControllerStatus is the decoded result of a controller status read.
type ControllerStatus struct {
	RunMode       bool
	ProgramMode   bool
	FatalError    bool
	NonFatalError bool
}

// Status issues a controller status read and decodes the mode and error
// flags from their fixed bit positions.
func (c *Client) Status(ctx context.Context) (ControllerStatus, error) {
	info := &OperationInfo{Operation: OpStatus}
	res, err := c.run(ctx, info, func(ctx context.Context) (interface{}, error) {
		resp, err := c.roundTrip(ctx, func(h Header) []byte {
			return encodeBareCommand(h, CommandControllerStatusRead)
		})
		if err != nil {
			return nil, err
		}
		if err := checkEndCode(OpStatus, "", resp); err != nil {
			return nil, err
		}
		if len(resp.data) < 1 {
			return nil, ProtocolError{Reason: "status response has no payload"}
		}
		b := resp.data[0]
		return ControllerStatus{
			RunMode:       b&0x01 != 0,
			ProgramMode:   b&0x02 != 0,
			FatalError:    b&0x40 != 0,
			NonFatalError: b&0x80 != 0,
		}, nil
	})
	if err != nil {
		return ControllerStatus{}, err
	}
	return res.(ControllerStatus), nil
}

// CPUUnitData is the decoded result of a CPU unit data read.
type CPUUnitData struct {
	ControllerModel   string
	ControllerVersion string
}

// CPUUnitData issues a CPU unit data read and returns the controller model
// and firmware version from their fixed-offset ASCII fields.
func (c *Client) CPUUnitData(ctx context.Context) (CPUUnitData, error) {
	info := &OperationInfo{Operation: OpCPUUnitData}
	res, err := c.run(ctx, info, func(ctx context.Context) (interface{}, error) {
		resp, err := c.roundTrip(ctx, func(h Header) []byte {
			return encodeBareCommand(h, CommandCPUUnitDataRead)
		})
		if err != nil {
			return nil, err
		}
		if err := checkEndCode(OpCPUUnitData, "", resp); err != nil {
			return nil, err
		}
		if len(resp.data) < 40 {
			return nil, ProtocolError{Reason: fmt.Sprintf("CPU unit data payload has %d bytes, need 40", len(resp.data))}
		}
		return CPUUnitData{
			ControllerModel:   trimASCII(resp.data[0:20]),
			ControllerVersion: trimASCII(resp.data[20:40]),
		}, nil
	})
	if err != nil {
		return CPUUnitData{}, err
	}
	return res.(CPUUnitData), nil
}

// ReadClock reads the controller clock. Fields are BCD-encoded; two-digit
// years below 50 are taken as 20xx, the rest as 19xx.
func (c *Client) ReadClock(ctx context.Context) (time.Time, error) {
	info := &OperationInfo{Operation: OpReadClock}
	res, err := c.run(ctx, info, func(ctx context.Context) (interface{}, error) {
		resp, err := c.roundTrip(ctx, func(h Header) []byte {
			return encodeBareCommand(h, CommandClockRead)
		})
		if err != nil {
			return nil, err
		}
		if err := checkEndCode(OpReadClock, "", resp); err != nil {
			return nil, err
		}
		if len(resp.data) < 6 {
			return nil, ProtocolError{Reason: fmt.Sprintf("clock payload has %d bytes, need 6", len(resp.data))}
		}
		fields := make([]uint64, 6)
		for i := range fields {
			v, err := decodeBCD(resp.data[i : i+1])
			if err != nil {
				return nil, err
			}
			fields[i] = v
		}
		year := int(fields[0])
		if year < 50 {
			year += 2000
		} else {
			year += 1900
		}
		return time.Date(year, time.Month(fields[1]), int(fields[2]),
			int(fields[3]), int(fields[4]), int(fields[5]), 0, time.Local), nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return res.(time.Time), nil
}

// run routes an operation through the installed interceptor, if any.
func (c *Client) run(ctx context.Context, info *OperationInfo, invoke func(context.Context) (interface{}, error)) (interface{}, error) {
	c.hookMu.RLock()
	ic := c.interceptor
	c.hookMu.RUnlock()

	if ic == nil {
		return invoke(ctx)
	}
	return ic(&InterceptorCtx{ctx: ctx, info: info, invoke: invoke})
}

// roundTrip performs one request/response exchange: increment the service
// ID, build and send the frame, then receive until the reply with the
// matching service ID arrives. Stale datagrams from earlier timed-out
// requests are discarded here.
func (c *Client) roundTrip(ctx context.Context, build func(Header) []byte) (response, error) {
	if c.IsClosed() {
		return response{}, ClientClosedError{}
	}
	if err := c.Connect(ctx); err != nil {
		return response{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tr == nil {
		return response{}, ClientClosedError{}
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	c.sid++
	sid := c.sid
	frame := build(c.header(sid))

	if err := c.tr.Send(ctx, frame); err != nil {
		return response{}, err
	}

	for {
		raw, err := c.tr.Receive(ctx)
		if err != nil {
			return response{}, err
		}
		resp, err := decodeResponse(raw)
		if err != nil {
			return response{}, err
		}
		if resp.header.SID != sid {
			continue
		}
		return resp, nil
	}
}

// header builds the command header for one request. For TCP sessions the
// source node is the one assigned during the handshake.
func (c *Client) header(sid byte) Header {
	h := Header{
		ICF: c.cfg.ICF,
		DNA: c.cfg.DNA, DA1: c.cfg.DA1, DA2: c.cfg.DA2,
		SNA: c.cfg.SNA, SA1: c.cfg.SA1, SA2: c.cfg.SA2,
		SID: sid,
	}
	if node, ok := c.tr.LocalNode(); ok && node != 0 {
		h.SA1 = node
	}
	return h
}

func checkEndCode(op OperationType, address string, r response) error {
	if r.mres == 0 && r.sres == 0 {
		return nil
	}
	return ResponseError{Operation: string(op), Address: address, MRES: r.mres, SRES: r.sres}
}

func trimASCII(b []byte) string {
	return strings.TrimRight(string(b), "\x00 ")
}
