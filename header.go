package fins

// Header carries the FINS routing fields present at the start of every
// command and response frame: the information control field, destination and
// source network/node/unit triplets, and the service ID used to correlate a
// response with its request.
type Header struct {
	ICF byte
	DNA byte // destination network
	DA1 byte // destination node
	DA2 byte // destination unit
	SNA byte // source network
	SA1 byte // source node
	SA2 byte // source unit
	SID byte
}

const (
	headerSize = 10

	// gatewayCount is the fixed GCT value: number of bridges a frame may
	// still cross.
	gatewayCount = 0x02

	// icfResponseBit distinguishes response frames from command frames.
	icfResponseBit = 0x40
)

func (h Header) encode() []byte {
	return []byte{
		h.ICF, 0x00, gatewayCount,
		h.DNA, h.DA1, h.DA2,
		h.SNA, h.SA1, h.SA2,
		h.SID,
	}
}

func decodeFrameHeader(b []byte) Header {
	return Header{
		ICF: b[0],
		DNA: b[3], DA1: b[4], DA2: b[5],
		SNA: b[6], SA1: b[7], SA2: b[8],
		SID: b[9],
	}
}

// responseHeader builds the header a responder echoes back: source and
// destination swapped, response bit set, service ID preserved.
func responseHeader(cmd Header) Header {
	return Header{
		ICF: cmd.ICF | icfResponseBit,
		DNA: cmd.SNA, DA1: cmd.SA1, DA2: cmd.SA2,
		SNA: cmd.DNA, SA1: cmd.DA1, SA2: cmd.DA2,
		SID: cmd.SID,
	}
}
