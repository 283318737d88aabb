package fins

import "fmt"

// Word count ceilings for a single memory-area command over UDP. The FINS
// payload limit is roughly 2000 bytes; these match the commonly documented
// per-command maxima.
const (
	MaxReadWords  = 999
	MaxWriteWords = 996
)

// ValidationInterceptor rejects operations that would fail on the wire
// before any I/O happens: unparseable addresses, zero or oversized word
// counts, oversized write payloads.
//
// Example:
//
//	client.SetInterceptor(fins.ChainInterceptors(
//	    fins.ValidationInterceptor(),
//	    fins.LoggingInterceptor(logger),
//	))
func ValidationInterceptor() Interceptor {
	return func(c *InterceptorCtx) (interface{}, error) {
		info := c.Info()

		if info.Address != "" {
			if _, err := ParseAddress(info.Address); err != nil {
				return nil, err
			}
		}

		switch info.Operation {
		case OpRead:
			if info.Count == 0 {
				return nil, fmt.Errorf("read count must be at least 1")
			}
			if info.Count > MaxReadWords {
				return nil, fmt.Errorf("read count %d exceeds maximum %d", info.Count, MaxReadWords)
			}
		case OpWrite:
			words, ok := info.Data.([]uint16)
			if !ok || len(words) == 0 {
				return nil, WriteError{Address: info.Address, Err: fmt.Errorf("empty payload")}
			}
			if len(words) > MaxWriteWords {
				return nil, WriteError{Address: info.Address, Err: fmt.Errorf("payload of %d words exceeds maximum %d", len(words), MaxWriteWords)}
			}
		case OpReadMultiple:
			if info.Count > maxMultipleReadAddresses {
				return nil, fmt.Errorf("at most %d addresses per multiple read, got %d", maxMultipleReadAddresses, info.Count)
			}
		}

		return c.Invoke(nil)
	}
}
