package fins

import (
	"encoding/binary"
	"fmt"
)

// FINS command codes for the supported operation subset.
const (
	CommandMemoryAreaRead         uint16 = 0x0101
	CommandMemoryAreaWrite        uint16 = 0x0102
	CommandMultipleMemoryAreaRead uint16 = 0x0104
	CommandCPUUnitDataRead        uint16 = 0x0501
	CommandControllerStatusRead   uint16 = 0x0601
	CommandClockRead              uint16 = 0x0720
)

const (
	commandCodeSize = 2
	endCodeSize     = 2
	memoryAddrSize  = 4 // area code + word address + bit address
	itemCountSize   = 2

	commandCodeOffset  = headerSize
	endCodeOffset      = headerSize + commandCodeSize
	responseDataOffset = headerSize + commandCodeSize + endCodeSize

	minResponseSize = responseDataOffset
)

// End codes used by the simulator and recognized in tests. The client does
// not interpret end codes beyond zero/nonzero; raw MRES/SRES values are
// surfaced to the caller.
const (
	EndCodeNormalCompletion          uint16 = 0x0000
	EndCodeNotSupportedByModel       uint16 = 0x0401
	EndCodeAreaClassificationMissing uint16 = 0x1101
	EndCodeAddressRangeExceeded      uint16 = 0x1103
)

// request is a decoded FINS command frame, as seen by a responder.
type request struct {
	header      Header
	commandCode uint16
	data        []byte
}

// response is a decoded FINS response frame.
type response struct {
	header      Header
	commandCode uint16
	mres        byte
	sres        byte
	data        []byte
}

func (r response) endCode() uint16 {
	return uint16(r.mres)<<8 | uint16(r.sres)
}

func encodeMemoryAddress(addr MemoryAddress) []byte {
	b := make([]byte, memoryAddrSize)
	b[0] = byte(addr.Area)
	binary.BigEndian.PutUint16(b[1:3], addr.Word)
	b[3] = addr.bitByte()
	return b
}

func decodeMemoryAddress(b []byte) (MemoryAddress, error) {
	if len(b) < memoryAddrSize {
		return MemoryAddress{}, ProtocolError{Reason: fmt.Sprintf("memory address truncated: %d bytes", len(b))}
	}
	return MemoryAddress{
		Area: MemoryArea(b[0]),
		Word: binary.BigEndian.Uint16(b[1:3]),
		Bit:  NoBit,
	}, nil
}

// encodeReadCommand builds a complete memory-area read frame: header,
// command code 0101, address block and item count.
func encodeReadCommand(h Header, addr MemoryAddress, count uint16) []byte {
	frame := h.encode()
	frame = appendUint16(frame, CommandMemoryAreaRead)
	frame = append(frame, encodeMemoryAddress(addr)...)
	frame = appendUint16(frame, count)
	return frame
}

// encodeWriteCommand builds a complete memory-area write frame. The item
// count is derived from the payload; an empty payload is a caller bug caught
// by the client before encoding.
func encodeWriteCommand(h Header, addr MemoryAddress, words []uint16) []byte {
	frame := h.encode()
	frame = appendUint16(frame, CommandMemoryAreaWrite)
	frame = append(frame, encodeMemoryAddress(addr)...)
	frame = appendUint16(frame, uint16(len(words)))
	frame = append(frame, wordsToBytes(words)...)
	return frame
}

// encodeMultipleReadCommand builds a multiple-memory-area read frame:
// one-byte address count followed by one address block per item.
func encodeMultipleReadCommand(h Header, addrs []MemoryAddress) []byte {
	frame := h.encode()
	frame = appendUint16(frame, CommandMultipleMemoryAreaRead)
	frame = append(frame, byte(len(addrs)))
	for _, a := range addrs {
		frame = append(frame, encodeMemoryAddress(a)...)
	}
	return frame
}

// encodeBareCommand builds a frame for commands that carry no parameters,
// such as controller status read and CPU unit data read.
func encodeBareCommand(h Header, code uint16) []byte {
	frame := h.encode()
	frame = appendUint16(frame, code)
	return frame
}

func decodeRequest(b []byte) (request, error) {
	if len(b) < headerSize+commandCodeSize {
		return request{}, ProtocolError{Reason: fmt.Sprintf("command frame too short: %d bytes", len(b))}
	}
	return request{
		header:      decodeFrameHeader(b[:headerSize]),
		commandCode: binary.BigEndian.Uint16(b[commandCodeOffset : commandCodeOffset+commandCodeSize]),
		data:        b[commandCodeOffset+commandCodeSize:],
	}, nil
}

// decodeResponse parses a response frame: echoed header, command code, the
// MRES/SRES end code pair and the payload. Frames shorter than the fixed
// prefix are rejected, never silently truncated.
func decodeResponse(b []byte) (response, error) {
	if len(b) < minResponseSize {
		return response{}, ProtocolError{Reason: fmt.Sprintf("response frame too short: %d bytes, need %d", len(b), minResponseSize)}
	}
	h := decodeFrameHeader(b[:headerSize])
	if h.ICF&icfResponseBit == 0 {
		return response{}, ProtocolError{Reason: "frame is not a response (ICF response bit clear)"}
	}
	return response{
		header:      h,
		commandCode: binary.BigEndian.Uint16(b[commandCodeOffset : commandCodeOffset+commandCodeSize]),
		mres:        b[endCodeOffset],
		sres:        b[endCodeOffset+1],
		data:        b[responseDataOffset:],
	}, nil
}

func encodeResponse(r response) []byte {
	frame := r.header.encode()
	frame = appendUint16(frame, r.commandCode)
	frame = append(frame, r.mres, r.sres)
	frame = append(frame, r.data...)
	return frame
}

func appendUint16(b []byte, v uint16) []byte {
	return append(b, byte(v>>8), byte(v))
}
