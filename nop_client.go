package fins

import (
	"context"
	"time"
)

// NopClient is a FINSClient that does nothing and returns zero values.
// Useful as a default dependency in consumers' tests.
type NopClient struct{}

func (NopClient) Read(context.Context, string, uint16) ([]uint16, error) { return nil, nil }
func (NopClient) ReadReal(context.Context, string) (float32, error)      { return 0, nil }
func (NopClient) ReadMultiple(context.Context, ...string) (map[string]uint16, error) {
	return nil, nil
}
func (NopClient) Write(context.Context, string, ...uint16) error     { return nil }
func (NopClient) WriteReal(context.Context, string, float32) error   { return nil }
func (NopClient) Status(context.Context) (ControllerStatus, error)   { return ControllerStatus{}, nil }
func (NopClient) CPUUnitData(context.Context) (CPUUnitData, error)   { return CPUUnitData{}, nil }
func (NopClient) ReadClock(context.Context) (time.Time, error)       { return time.Time{}, nil }
func (NopClient) Connect(context.Context) error                      { return nil }
func (NopClient) Connected() bool                                    { return false }
func (NopClient) IsClosed() bool                                     { return false }
func (NopClient) Close() error                                       { return nil }
func (NopClient) SetInterceptor(Interceptor)                         {}
func (NopClient) Use(...Plugin) error                                { return nil }

var _ FINSClient = NopClient{}
