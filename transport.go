package fins

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

const readBufferSize = 2048

// transport abstracts the wire-level send/receive so the client logic works
// with both UDP datagrams and FINS/TCP streams. A transport moves opaque
// frame bytes; service-ID correlation is the client's job.
type transport interface {
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
	// LocalNode reports the node number assigned by the remote during the
	// FINS/TCP handshake. ok is false for UDP, which has no negotiation.
	LocalNode() (node byte, ok bool)
	Close() error
}

// udpTransport is a thin wrapper around a connected UDP socket. One request
// datagram out, one reply datagram in.
type udpTransport struct {
	conn    *net.UDPConn
	timeout time.Duration
}

func newUDPTransport(host string, port int, timeout time.Duration) (*udpTransport, error) {
	remote, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return nil, ConnectionError{Op: "resolve", Err: err}
	}
	conn, err := net.DialUDP("udp", nil, remote)
	if err != nil {
		return nil, ConnectionError{Op: "connect", Err: err}
	}
	return &udpTransport{conn: conn, timeout: timeout}, nil
}

func (t *udpTransport) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.conn.Write(frame); err != nil {
		return ConnectionError{Op: "send", Err: err}
	}
	return nil
}

func (t *udpTransport) Receive(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(deadline)
	} else {
		_ = t.conn.SetReadDeadline(time.Time{})
	}

	buf := make([]byte, readBufferSize)
	n, err := t.conn.Read(buf)
	if err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return nil, TimeoutError{Timeout: t.timeout}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ConnectionError{Op: "receive", Err: err}
	}
	return buf[:n], nil
}

func (t *udpTransport) LocalNode() (byte, bool) { return 0, false }

func (t *udpTransport) Close() error {
	return t.conn.Close()
}

// FINS/TCP framing constants. Every message on the stream is:
// "FINS" signature, 4-byte length (command + error code + body), 4-byte
// command, 4-byte error code, body.
const (
	finsTCPSignature = "FINS"

	finsTCPNodeAddressSend  = uint32(0x00000000) // client -> server handshake
	finsTCPNodeAddressReply = uint32(0x00000001) // server -> client handshake
	finsTCPDataCommand      = uint32(0x00000002) // FINS frame payload
)

type finsTCPMessage struct {
	command   uint32
	errorCode uint32
	body      []byte
}

// tcpTransport implements FINS over TCP: the node-address handshake at
// connect time, then length-prefixed data frames. Message boundaries come
// from the declared length, never from read sizes.
type tcpTransport struct {
	conn       net.Conn
	reader     *bufio.Reader
	timeout    time.Duration
	clientNode byte
	serverNode byte
}

func newTCPTransport(ctx context.Context, host string, port int, timeout time.Duration, requestedNode byte) (*tcpTransport, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return nil, ConnectionError{Op: "connect", Err: err}
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAlive(true)
		_ = tc.SetNoDelay(true)
	}

	t := &tcpTransport{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		timeout: timeout,
	}

	if err := t.handshake(ctx, requestedNode); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return t, nil
}

// handshake performs the FINS/TCP node address exchange: the client sends its
// requested node number (0 requests automatic assignment), the server replies
// with the assigned client node and its own node. The assigned node becomes
// the SA1 value for every frame on this session.
func (t *tcpTransport) handshake(ctx context.Context, requestedNode byte) error {
	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, uint32(requestedNode))
	if err := t.writeMessage(ctx, finsTCPNodeAddressSend, body); err != nil {
		return ConnectionError{Op: "handshake", Err: err}
	}

	msg, err := t.readMessage(ctx)
	if err != nil {
		return ConnectionError{Op: "handshake", Err: err}
	}
	if msg.command != finsTCPNodeAddressReply {
		return ConnectionError{Op: "handshake", Err: fmt.Errorf("unexpected command %d in handshake reply", msg.command)}
	}
	if msg.errorCode != 0 {
		return ConnectionError{Op: "handshake", Err: fmt.Errorf("rejected with error code %d", msg.errorCode)}
	}
	if len(msg.body) < 8 {
		return ConnectionError{Op: "handshake", Err: fmt.Errorf("reply body too short: %d bytes", len(msg.body))}
	}

	t.clientNode = byte(binary.BigEndian.Uint32(msg.body[0:4]))
	t.serverNode = byte(binary.BigEndian.Uint32(msg.body[4:8]))
	return nil
}

func (t *tcpTransport) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.writeMessage(ctx, finsTCPDataCommand, frame); err != nil {
		return ConnectionError{Op: "send", Err: err}
	}
	return nil
}

func (t *tcpTransport) Receive(ctx context.Context) ([]byte, error) {
	for {
		msg, err := t.readMessage(ctx)
		if err != nil {
			return nil, err
		}
		if msg.errorCode != 0 {
			return nil, ConnectionError{Op: "receive", Err: fmt.Errorf("FINS/TCP error code %d", msg.errorCode)}
		}
		// Skip anything that is not a data frame (e.g. keepalive noise).
		if msg.command == finsTCPDataCommand {
			return msg.body, nil
		}
	}
}

func (t *tcpTransport) LocalNode() (byte, bool) { return t.clientNode, true }

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}

func (t *tcpTransport) writeMessage(ctx context.Context, command uint32, body []byte) error {
	_, err := t.conn.Write(encodeTCPMessage(command, body))
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (t *tcpTransport) readMessage(ctx context.Context) (*finsTCPMessage, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(deadline)
	} else {
		_ = t.conn.SetReadDeadline(time.Time{})
	}

	msg, err := readTCPMessage(t.reader)
	if err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return nil, TimeoutError{Timeout: t.timeout}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return msg, nil
}

func encodeTCPMessage(command uint32, body []byte) []byte {
	frame := make([]byte, 16+len(body))
	copy(frame[0:4], finsTCPSignature)
	binary.BigEndian.PutUint32(frame[4:8], uint32(len(body)+8)) // command + error code + body
	binary.BigEndian.PutUint32(frame[8:12], command)
	binary.BigEndian.PutUint32(frame[12:16], 0)
	copy(frame[16:], body)
	return frame
}

// readTCPMessage reads one complete FINS/TCP message, completing partial
// reads until the declared length is satisfied.
func readTCPMessage(reader *bufio.Reader) (*finsTCPMessage, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(reader, header); err != nil {
		return nil, err
	}
	if string(header[:4]) != finsTCPSignature {
		return nil, ProtocolError{Reason: fmt.Sprintf("invalid FINS/TCP signature %q", header[:4])}
	}
	length := binary.BigEndian.Uint32(header[4:8])
	if length < 8 || length > 1<<20 {
		return nil, ProtocolError{Reason: fmt.Sprintf("invalid FINS/TCP length %d", length)}
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(reader, body); err != nil {
		return nil, err
	}
	return &finsTCPMessage{
		command:   binary.BigEndian.Uint32(body[0:4]),
		errorCode: binary.BigEndian.Uint32(body[4:8]),
		body:      body[8:],
	}, nil
}
