package fins

import (
	"context"
	"time"
)

// Reader groups the memory read operations.
type Reader interface {
	Read(ctx context.Context, address string, count uint16) ([]uint16, error)
	ReadReal(ctx context.Context, address string) (float32, error)
	ReadMultiple(ctx context.Context, addresses ...string) (map[string]uint16, error)
}

// Writer groups the memory write operations.
type Writer interface {
	Write(ctx context.Context, address string, values ...uint16) error
	WriteReal(ctx context.Context, address string, value float32) error
}

// StatusReader groups the controller introspection operations.
type StatusReader interface {
	Status(ctx context.Context) (ControllerStatus, error)
	CPUUnitData(ctx context.Context) (CPUUnitData, error)
	ReadClock(ctx context.Context) (time.Time, error)
}

// Lifecycle groups session management.
type Lifecycle interface {
	Connect(ctx context.Context) error
	Connected() bool
	IsClosed() bool
	Close() error
}

// Hooks groups the extension points.
type Hooks interface {
	SetInterceptor(i Interceptor)
	Use(plugins ...Plugin) error
}

// FINSClient is the full public contract of Client, split into the smaller
// interfaces above for easier mocking.
type FINSClient interface {
	Reader
	Writer
	StatusReader
	Lifecycle
	Hooks
}

var _ FINSClient = (*Client)(nil)
