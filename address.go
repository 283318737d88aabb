package fins

import (
	"fmt"
	"strconv"
	"strings"
)

// MemoryArea identifies a PLC memory area by its FINS word-access area code.
type MemoryArea byte

const (
	AreaCIO MemoryArea = 0x30 // Channel I/O
	AreaWR  MemoryArea = 0x31 // Work Relay
	AreaHR  MemoryArea = 0x32 // Holding Relay
	AreaAR  MemoryArea = 0x33 // Auxiliary Relay
	AreaDM  MemoryArea = 0x82 // Data Memory
)

// String returns the canonical textual prefix for the area.
func (a MemoryArea) String() string {
	switch a {
	case AreaCIO:
		return "CIO"
	case AreaWR:
		return "WR"
	case AreaHR:
		return "HR"
	case AreaAR:
		return "AR"
	case AreaDM:
		return "DM"
	}
	return fmt.Sprintf("MemoryArea(0x%02X)", byte(a))
}

// areaPrefixes maps textual prefixes to area codes. Matching is
// longest-prefix-first, so "DM" wins over "D" and short aliases never shadow
// the full names.
var areaPrefixes = []struct {
	prefix string
	area   MemoryArea
}{
	{"CIO", AreaCIO},
	{"DM", AreaDM},
	{"WR", AreaWR},
	{"HR", AreaHR},
	{"AR", AreaAR},
	{"D", AreaDM},
	{"W", AreaWR},
	{"H", AreaHR},
	{"A", AreaAR},
}

// NoBit marks a MemoryAddress that addresses a whole word.
const NoBit int8 = -1

// MemoryAddress is a parsed PLC memory reference: area, word index and an
// optional bit index for single-bit addressing.
//
// Word bounds are not validated against a PLC model; an out-of-range word is
// rejected by the controller itself via the response end code.
type MemoryAddress struct {
	Area MemoryArea
	Word uint16
	Bit  int8 // 0-15, or NoBit for word addressing
}

// ParseAddress parses a textual memory reference such as "D100", "DM1702",
// "CIO10" or "WR100.05" into a MemoryAddress. Prefix matching is
// case-insensitive; "D" and "DM" are synonyms, as are "W"/"WR", "H"/"HR" and
// "A"/"AR".
func ParseAddress(text string) (MemoryAddress, error) {
	s := strings.ToUpper(strings.TrimSpace(text))

	var area MemoryArea
	rest := ""
	found := false
	for _, p := range areaPrefixes {
		if strings.HasPrefix(s, p.prefix) {
			area = p.area
			rest = s[len(p.prefix):]
			found = true
			break
		}
	}
	if !found {
		return MemoryAddress{}, AddressError{Text: text, Reason: "unrecognized area prefix"}
	}

	wordPart := rest
	bit := NoBit
	if i := strings.IndexByte(rest, '.'); i >= 0 {
		wordPart = rest[:i]
		b, err := strconv.Atoi(rest[i+1:])
		if err != nil || b < 0 || b > 15 {
			return MemoryAddress{}, AddressError{Text: text, Reason: "bit index must be an integer 0-15"}
		}
		bit = int8(b)
	}

	if wordPart == "" {
		return MemoryAddress{}, AddressError{Text: text, Reason: "missing word index"}
	}
	word, err := strconv.ParseUint(wordPart, 10, 16)
	if err != nil {
		return MemoryAddress{}, AddressError{Text: text, Reason: "word index is not a valid number"}
	}

	return MemoryAddress{Area: area, Word: uint16(word), Bit: bit}, nil
}

// String renders the address in canonical prefix form, e.g. "DM100" or
// "WR100.05". Parsing the result yields an equivalent address.
func (a MemoryAddress) String() string {
	if a.Bit >= 0 {
		return fmt.Sprintf("%s%d.%02d", a.Area, a.Word, a.Bit)
	}
	return fmt.Sprintf("%s%d", a.Area, a.Word)
}

// bitByte returns the wire form of the bit index: the bit number for bit
// addressing, 0 for whole-word addressing.
func (a MemoryAddress) bitByte() byte {
	if a.Bit >= 0 {
		return byte(a.Bit)
	}
	return 0
}

// Node identifies a participant on a FINS network by network, node and unit
// number. It carries no I/O state; it only populates header routing fields.
type Node struct {
	Network byte
	Node    byte
	Unit    byte
}

// NewNode builds a Node, validating the FINS ranges: network 0-127,
// node 0-254, unit 0-15.
func NewNode(network, node, unit int) (Node, error) {
	if network < 0 || network > 127 {
		return Node{}, fmt.Errorf("network must be 0-127, got %d", network)
	}
	if node < 0 || node > 254 {
		return Node{}, fmt.Errorf("node must be 0-254, got %d", node)
	}
	if unit < 0 || unit > 15 {
		return Node{}, fmt.Errorf("unit must be 0-15, got %d", unit)
	}
	return Node{Network: byte(network), Node: byte(node), Unit: byte(unit)}, nil
}

// PLCNode is shorthand for a controller node on the local network, unit 0.
func PLCNode(node byte) Node {
	return Node{Node: node}
}

// PCNode is shorthand for a computer node on the local network, unit 0.
func PCNode(node byte) Node {
	return Node{Node: node}
}

func (n Node) String() string {
	return fmt.Sprintf("net %d node %d unit %d", n.Network, n.Node, n.Unit)
}
