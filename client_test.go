package fins

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startSimulator runs an in-process PLC on an ephemeral loopback port and
// returns it with a matching client config.
func startSimulator(t *testing.T, opts ...SimulatorOption) (*Simulator, Config) {
	t.Helper()
	sim, err := NewSimulator("127.0.0.1", 0, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sim.Close() })

	cfg := NewConfig("127.0.0.1")
	cfg.Timeout = 2 * time.Second
	switch addr := sim.Addr().(type) {
	case *net.UDPAddr:
		cfg.Port = addr.Port
	case *net.TCPAddr:
		cfg.Port = addr.Port
		cfg.Protocol = ProtocolTCP
	}
	return sim, cfg
}

func dialSimulator(t *testing.T, opts ...SimulatorOption) (*Simulator, *Client) {
	t.Helper()
	sim, cfg := startSimulator(t, opts...)
	client, err := Dial(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return sim, client
}

func TestClientWriteRead(t *testing.T) {
	_, client := dialSimulator(t)
	ctx := context.Background()

	require.NoError(t, client.Write(ctx, "D100", 12345))

	words, err := client.Read(ctx, "D100", 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{12345}, words)
}

func TestClientReadMany(t *testing.T) {
	sim, client := dialSimulator(t)
	ctx := context.Background()

	require.NoError(t, sim.SetWords(AreaDM, 200, 1, 2, 3, 4, 5))

	words, err := client.Read(ctx, "D200", 5)
	require.NoError(t, err)
	assert.Equal(t, []uint16{1, 2, 3, 4, 5}, words)
}

func TestClientAllAreas(t *testing.T) {
	_, client := dialSimulator(t)
	ctx := context.Background()

	for i, address := range []string{"D10", "CIO10", "W10", "H10", "A10"} {
		value := uint16(1000 + i)
		require.NoError(t, client.Write(ctx, address, value), address)

		words, err := client.Read(ctx, address, 1)
		require.NoError(t, err, address)
		assert.Equal(t, []uint16{value}, words, address)
	}
}

func TestClientReadRealSeeded(t *testing.T) {
	sim, client := dialSimulator(t)
	ctx := context.Background()

	// 10.25 stored word-swapped: low half first, high half second.
	require.NoError(t, sim.SetWords(AreaDM, 1702, 0x0000, 0x4124))

	v, err := client.ReadReal(ctx, "D1702")
	require.NoError(t, err)
	assert.InDelta(t, 10.25, v, 1e-4)
}

func TestClientRealRoundTrip(t *testing.T) {
	_, client := dialSimulator(t)
	ctx := context.Background()

	for _, v := range []float32{10.25, 3.14159, -273.15, 0} {
		require.NoError(t, client.WriteReal(ctx, "D1702", v))

		got, err := client.ReadReal(ctx, "D1702")
		require.NoError(t, err)
		assert.InDelta(t, v, got, 1e-4)
	}
}

func TestClientReadMultiple(t *testing.T) {
	sim, client := dialSimulator(t)
	ctx := context.Background()

	require.NoError(t, sim.SetWords(AreaDM, 10, 111))
	require.NoError(t, sim.SetWords(AreaCIO, 5, 222))
	require.NoError(t, sim.SetWords(AreaWR, 7, 333))

	values, err := client.ReadMultiple(ctx, "D10", "CIO5", "w7")
	require.NoError(t, err)
	assert.Equal(t, map[string]uint16{
		"DM10": 111,
		"CIO5": 222,
		"WR7":  333,
	}, values)
}

func TestClientReadMultipleLimits(t *testing.T) {
	_, client := dialSimulator(t)
	ctx := context.Background()

	values, err := client.ReadMultiple(ctx)
	require.NoError(t, err)
	assert.Empty(t, values)

	addresses := make([]string, maxMultipleReadAddresses+1)
	for i := range addresses {
		addresses[i] = "D0"
	}
	_, err = client.ReadMultiple(ctx, addresses...)
	assert.Error(t, err)
}

func TestClientControllerError(t *testing.T) {
	_, client := dialSimulator(t)
	ctx := context.Background()

	// DM40000 is past the simulated area, so the controller rejects it with
	// an address range end code rather than a local error.
	_, err := client.Read(ctx, "D40000", 1)
	require.Error(t, err)

	var readErr ReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, "D40000", readErr.Address)

	var respErr ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, byte(0x11), respErr.MRES)
	assert.Equal(t, byte(0x03), respErr.SRES)
	assert.Equal(t, EndCodeAddressRangeExceeded, respErr.EndCode())
}

func TestClientAddressErrorBeforeIO(t *testing.T) {
	// Host points nowhere: a malformed reference must fail locally without a
	// network attempt.
	client, err := NewClient(NewConfig("203.0.113.1"))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Read(context.Background(), "XY100", 1)
	var addrErr AddressError
	require.ErrorAs(t, err, &addrErr)
	assert.False(t, client.Connected())

	err = client.Write(context.Background(), "D10.99", 1)
	require.ErrorAs(t, err, &addrErr)
	assert.False(t, client.Connected())
}

func TestClientWriteEmptyPayload(t *testing.T) {
	client, err := NewClient(NewConfig("203.0.113.1"))
	require.NoError(t, err)
	defer client.Close()

	err = client.Write(context.Background(), "D10")
	var writeErr WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.False(t, client.Connected())
}

func TestClientStatus(t *testing.T) {
	_, client := dialSimulator(t, WithControllerStatus(ControllerStatus{
		RunMode:       true,
		NonFatalError: true,
	}))

	status, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.RunMode)
	assert.False(t, status.ProgramMode)
	assert.False(t, status.FatalError)
	assert.True(t, status.NonFatalError)
}

func TestClientCPUUnitData(t *testing.T) {
	_, client := dialSimulator(t, WithCPUUnit("CJ2M-CPU33", "V2.1"))

	data, err := client.CPUUnitData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "CJ2M-CPU33", data.ControllerModel)
	assert.Equal(t, "V2.1", data.ControllerVersion)
}

func TestClientReadClock(t *testing.T) {
	_, client := dialSimulator(t)

	clock, err := client.ReadClock(context.Background())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), clock, time.Minute)
}

func TestClientTimeoutKeepsSessionOpen(t *testing.T) {
	// A server that swallows the first request, then answers normally and
	// also replays a stale reply for the dropped one.
	laddr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	require.NoError(t, err)
	server, err := net.ListenUDP("udp", laddr)
	require.NoError(t, err)
	defer server.Close()

	var staleSID byte
	go func() {
		buf := make([]byte, readBufferSize)
		for i := 0; ; i++ {
			n, remote, err := server.ReadFromUDP(buf)
			if err != nil {
				return
			}
			req, err := decodeRequest(buf[:n])
			if err != nil {
				continue
			}
			if i == 0 {
				staleSID = req.header.SID
				continue // provoke the client timeout
			}
			// Stale reply first; the client must discard it and keep
			// waiting for the matching service ID.
			stale := response{
				header:      responseHeader(req.header),
				commandCode: req.commandCode,
				data:        []byte{0xFF, 0xFF},
			}
			stale.header.SID = staleSID
			_, _ = server.WriteToUDP(encodeResponse(stale), remote)

			good := response{
				header:      responseHeader(req.header),
				commandCode: req.commandCode,
				data:        []byte{0x30, 0x39},
			}
			_, _ = server.WriteToUDP(encodeResponse(good), remote)
		}
	}()

	cfg := NewConfig("127.0.0.1")
	cfg.Port = server.LocalAddr().(*net.UDPAddr).Port
	cfg.Timeout = 200 * time.Millisecond

	client, err := Dial(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Read(context.Background(), "D0", 1)
	var timeoutErr TimeoutError
	require.ErrorAs(t, err, &timeoutErr)

	// The timeout must not tear the session down; the retry succeeds and the
	// stale datagram from the first attempt is skipped.
	assert.True(t, client.Connected())
	words, err := client.Read(context.Background(), "D0", 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{12345}, words)
}

func TestClientClose(t *testing.T) {
	_, client := dialSimulator(t)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.True(t, client.IsClosed())
	assert.False(t, client.Connected())

	_, err := client.Read(context.Background(), "D0", 1)
	var closedErr ClientClosedError
	assert.ErrorAs(t, err, &closedErr)

	err = client.Write(context.Background(), "D0", 1)
	assert.ErrorAs(t, err, &closedErr)

	assert.ErrorAs(t, client.Connect(context.Background()), &closedErr)
}

func TestClientLazyConnect(t *testing.T) {
	_, cfg := startSimulator(t)

	client, err := NewClient(cfg)
	require.NoError(t, err)
	defer client.Close()
	assert.False(t, client.Connected())

	// First operation establishes the session.
	require.NoError(t, client.Write(context.Background(), "D1", 7))
	assert.True(t, client.Connected())
}

func TestWithConnection(t *testing.T) {
	sim, cfg := startSimulator(t)
	require.NoError(t, sim.SetWords(AreaDM, 50, 42))

	var got []uint16
	err := WithConnection(context.Background(), cfg, func(c *Client) error {
		words, err := c.Read(context.Background(), "D50", 1)
		got = words
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []uint16{42}, got)
}

func TestClientTCP(t *testing.T) {
	sim, cfg := startSimulator(t, WithTCPTransport(), WithServerNode(42))
	require.NoError(t, sim.SetWords(AreaDM, 100, 0xBEEF))

	client, err := Dial(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	words, err := client.Read(ctx, "D100", 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0xBEEF}, words)

	require.NoError(t, client.Write(ctx, "CIO20", 55))
	words, err = client.Read(ctx, "CIO20", 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{55}, words)

	status, err := client.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.RunMode)
}

func TestClientTCPNodeNegotiation(t *testing.T) {
	_, cfg := startSimulator(t, WithTCPTransport())
	cfg.SA1 = 0 // request automatic assignment

	client, err := Dial(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	// The handshake-assigned node replaces the zero source node; the
	// simulator echoes headers back, so a successful round trip proves the
	// negotiated value is in use.
	words, err := client.Read(context.Background(), "D0", 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0}, words)
}

func TestClientConnectRefused(t *testing.T) {
	cfg := NewConfig("127.0.0.1")
	cfg.Protocol = ProtocolTCP
	cfg.Port = reservedClosedPort(t)
	cfg.Timeout = time.Second

	_, err := Dial(context.Background(), cfg)
	var connErr ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "connect", connErr.Op)
}

// reservedClosedPort returns a loopback TCP port that was just released, so a
// connect attempt is refused rather than hanging.
func reservedClosedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestSimulatorUnsupportedCommand(t *testing.T) {
	sim, cfg := startSimulator(t)
	_ = sim

	conn, err := net.Dial("udp", net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)))
	require.NoError(t, err)
	defer conn.Close()

	// Forced status read: a command the simulator does not implement.
	frame := encodeBareCommand(testHeader(0x09), 0x0402)
	_, err = conn.Write(frame)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, readBufferSize)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	resp, err := decodeResponse(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, EndCodeNotSupportedByModel, resp.endCode())
}
