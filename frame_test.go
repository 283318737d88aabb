package fins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHeader(sid byte) Header {
	return Header{
		ICF: 0x80,
		DA1: 0x00,
		SA1: 0x01,
		SID: sid,
	}
}

func TestEncodeReadCommandLayout(t *testing.T) {
	addr := MemoryAddress{Area: AreaDM, Word: 1702, Bit: NoBit}
	frame := encodeReadCommand(testHeader(0x2A), addr, 2)

	want := []byte{
		0x80, 0x00, 0x02, // ICF, reserved, GCT
		0x00, 0x00, 0x00, // DNA, DA1, DA2
		0x00, 0x01, 0x00, // SNA, SA1, SA2
		0x2A,       // SID
		0x01, 0x01, // memory area read
		0x82,       // DM area code
		0x06, 0xA6, // word 1702
		0x00,       // bit (whole word)
		0x00, 0x02, // item count
	}
	assert.Equal(t, want, frame)
}

func TestEncodeWriteCommandLayout(t *testing.T) {
	addr := MemoryAddress{Area: AreaCIO, Word: 10, Bit: NoBit}
	frame := encodeWriteCommand(testHeader(0x01), addr, []uint16{0x3039})

	want := []byte{
		0x80, 0x00, 0x02,
		0x00, 0x00, 0x00,
		0x00, 0x01, 0x00,
		0x01,
		0x01, 0x02, // memory area write
		0x30,       // CIO area code
		0x00, 0x0A, // word 10
		0x00,
		0x00, 0x01, // item count derived from payload
		0x30, 0x39, // 12345 big-endian
	}
	assert.Equal(t, want, frame)
}

func TestEncodeWriteCommandBitAddress(t *testing.T) {
	addr := MemoryAddress{Area: AreaWR, Word: 100, Bit: 5}
	frame := encodeWriteCommand(testHeader(0x01), addr, []uint16{1})
	// Area code, word address, then the bit index on the wire.
	assert.Equal(t, byte(0x31), frame[12])
	assert.Equal(t, []byte{0x00, 0x64}, frame[13:15])
	assert.Equal(t, byte(0x05), frame[15])
}

func TestEncodeMultipleReadCommandLayout(t *testing.T) {
	addrs := []MemoryAddress{
		{Area: AreaDM, Word: 10, Bit: NoBit},
		{Area: AreaCIO, Word: 5, Bit: NoBit},
	}
	frame := encodeMultipleReadCommand(testHeader(0x03), addrs)

	assert.Equal(t, []byte{0x01, 0x04}, frame[10:12])
	assert.Equal(t, byte(2), frame[12])
	assert.Equal(t, []byte{0x82, 0x00, 0x0A, 0x00}, frame[13:17])
	assert.Equal(t, []byte{0x30, 0x00, 0x05, 0x00}, frame[17:21])
}

func TestDecodeResponse(t *testing.T) {
	raw := []byte{
		0xC0, 0x00, 0x02, // ICF with response bit, reserved, GCT
		0x00, 0x01, 0x00, // DNA, DA1, DA2 (echoed back swapped)
		0x00, 0x00, 0x00,
		0x2A,
		0x01, 0x01, // command echoed
		0x00, 0x00, // MRES, SRES
		0x30, 0x39, // payload word
	}
	resp, err := decodeResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, byte(0x2A), resp.header.SID)
	assert.Equal(t, CommandMemoryAreaRead, resp.commandCode)
	assert.Equal(t, byte(0), resp.mres)
	assert.Equal(t, byte(0), resp.sres)
	assert.Equal(t, []byte{0x30, 0x39}, resp.data)
	assert.Equal(t, EndCodeNormalCompletion, resp.endCode())
}

func TestDecodeResponseErrorCodes(t *testing.T) {
	raw := []byte{
		0xC0, 0x00, 0x02,
		0x00, 0x01, 0x00,
		0x00, 0x00, 0x00,
		0x01,
		0x01, 0x02,
		0x11, 0x03, // address range exceeded
	}
	resp, err := decodeResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, byte(0x11), resp.mres)
	assert.Equal(t, byte(0x03), resp.sres)
	assert.Equal(t, EndCodeAddressRangeExceeded, resp.endCode())
}

func TestDecodeResponseTooShort(t *testing.T) {
	for n := 0; n < minResponseSize; n++ {
		_, err := decodeResponse(make([]byte, n))
		var protoErr ProtocolError
		assert.ErrorAs(t, err, &protoErr, "length %d", n)
	}
}

func TestDecodeResponseRejectsCommandFrame(t *testing.T) {
	// A frame without the ICF response bit is a command, not a response.
	frame := encodeReadCommand(testHeader(0x01), MemoryAddress{Area: AreaDM, Word: 0, Bit: NoBit}, 1)
	_, err := decodeResponse(frame)
	var protoErr ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

func TestResponseHeaderSwapsEndpoints(t *testing.T) {
	cmd := Header{ICF: 0x80, DNA: 1, DA1: 2, DA2: 3, SNA: 4, SA1: 5, SA2: 6, SID: 7}
	resp := responseHeader(cmd)

	assert.NotZero(t, resp.ICF&icfResponseBit)
	assert.Equal(t, byte(4), resp.DNA)
	assert.Equal(t, byte(5), resp.DA1)
	assert.Equal(t, byte(6), resp.DA2)
	assert.Equal(t, byte(1), resp.SNA)
	assert.Equal(t, byte(2), resp.SA1)
	assert.Equal(t, byte(3), resp.SA2)
	assert.Equal(t, byte(7), resp.SID)
}

func TestResponseEncodeDecodeRoundTrip(t *testing.T) {
	orig := response{
		header:      responseHeader(testHeader(0x11)),
		commandCode: CommandMemoryAreaRead,
		mres:        0x11,
		sres:        0x03,
		data:        []byte{0xDE, 0xAD},
	}
	decoded, err := decodeResponse(encodeResponse(orig))
	require.NoError(t, err)
	assert.Equal(t, orig, decoded)
}
