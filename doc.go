/*
Package fins implements a client for the Omron FINS (Factory Interface
Network Service) protocol, used to read and write memory on Omron PLCs over
UDP or FINS/TCP.

# Features

  - Textual memory addressing ("D100", "DM1702", "CIO10", "WR100.05")
  - Word and REAL (word-swapped IEEE-754 float) reads and writes
  - Controller status, CPU unit data and clock reads
  - UDP and FINS/TCP transports, including the node address handshake
  - Typed error taxonomy preserving raw MRES/SRES controller codes
  - Interceptors for logging, metrics, validation and retries
  - PLC simulator for testing

# Quick Start

	import (
		"context"
		"log"

		fins "github.com/plctools/omronfins"
	)

	func main() {
		ctx := context.Background()

		client, err := fins.Dial(ctx, fins.NewConfig("192.168.1.100"))
		if err != nil {
			log.Fatal(err)
		}
		defer client.Close()

		// Read five words starting at DM100.
		words, err := client.Read(ctx, "D100", 5)
		if err != nil {
			log.Printf("read error: %v", err)
			return
		}
		log.Printf("D100..D104: %v", words)

		// Write a REAL at DM1702.
		if err := client.WriteReal(ctx, "D1702", 10.25); err != nil {
			log.Printf("write error: %v", err)
		}
	}

The scoped form guarantees the session is released on every exit path:

	err := fins.WithConnection(ctx, fins.NewConfig("192.168.1.100"), func(c *fins.Client) error {
		return c.Write(ctx, "D2000", 12345)
	})

# Addressing

Memory references are area prefix + word index + optional bit suffix.
Recognized prefixes (case-insensitive): D/DM for Data Memory, CIO for Channel
I/O, W/WR for Work Relay, H/HR for Holding Relay, A/AR for Auxiliary Relay.
A ".NN" suffix with NN in 0-15 addresses a single bit. Word bounds are not
checked locally; an out-of-range address is rejected by the controller via
its end code.

# Configuration

NewConfig fills the defaults for a single-PLC/single-PC topology: UDP port
9600, 5 second timeout, ICF 0x80, source node 1. Header routing fields can be
set directly or via WithNodes:

	cfg := fins.NewConfig("192.168.1.100").WithNodes(fins.PLCNode(0), fins.PCNode(1))

LoadConfig reads the same surface from a yaml/json/toml file.

# Error Handling

Failures are typed so callers can tell a network problem from a protocol
problem from a controller rejection:

  - AddressError - malformed memory reference, raised before any I/O
  - ConnectionError - connect, handshake or socket failure
  - TimeoutError - no response within the configured timeout
  - ProtocolError - malformed or truncated frame
  - ResponseError - nonzero MRES/SRES reported by the controller
  - ReadError / WriteError - operation wrappers carrying the address

ResponseError preserves the raw MRES/SRES pair; use errors.As to recover it
through a ReadError or WriteError wrapper.

# Concurrency

A client keeps a single request in flight: operations issued concurrently are
serialized internally, and responses are matched to requests by service ID.
Cancellation is timeout-based; a timed-out request leaves the session open
and the retry decision with the caller.

# Simulator

NewSimulator starts an in-process PLC for tests and development. The
examples/server binary wraps it as a system service.
*/
package fins
