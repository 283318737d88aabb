package fins

import "context"

// OperationType names a client operation for interceptors and metrics.
type OperationType string

const (
	OpRead         OperationType = "Read"
	OpWrite        OperationType = "Write"
	OpReadReal     OperationType = "ReadReal"
	OpWriteReal    OperationType = "WriteReal"
	OpReadMultiple OperationType = "ReadMultiple"
	OpStatus       OperationType = "Status"
	OpCPUUnitData  OperationType = "CPUUnitData"
	OpReadClock    OperationType = "ReadClock"
)

// OperationInfo describes the operation an interceptor is wrapping.
type OperationInfo struct {
	Operation OperationType
	Address   string      // textual memory reference, empty for status-class ops
	Count     uint16      // requested word count, for reads
	Data      interface{} // payload, for writes
}

// InterceptorCtx carries the operation context through an interceptor chain.
type InterceptorCtx struct {
	ctx    context.Context
	info   *OperationInfo
	invoke func(context.Context) (interface{}, error)
}

// Context returns the context the operation was started with.
func (c *InterceptorCtx) Context() context.Context { return c.ctx }

// Info returns the operation description.
func (c *InterceptorCtx) Info() *OperationInfo { return c.info }

// Invoke runs the wrapped operation. Passing nil keeps the current context;
// passing a context substitutes it for the remainder of the chain.
func (c *InterceptorCtx) Invoke(ctx context.Context) (interface{}, error) {
	if ctx == nil {
		ctx = c.ctx
	}
	return c.invoke(ctx)
}

// Interceptor wraps client operations. An interceptor may log, time, retry,
// validate, rewrite the context, or short-circuit the call entirely.
type Interceptor func(*InterceptorCtx) (interface{}, error)

// ChainInterceptors composes interceptors into one: the first wraps the
// second, the second wraps the third, and so on.
func ChainInterceptors(interceptors ...Interceptor) Interceptor {
	switch len(interceptors) {
	case 0:
		return nil
	case 1:
		return interceptors[0]
	}

	return func(c *InterceptorCtx) (interface{}, error) {
		rest := ChainInterceptors(interceptors[1:]...)
		return interceptors[0](&InterceptorCtx{
			ctx:  c.ctx,
			info: c.info,
			invoke: func(ctx context.Context) (interface{}, error) {
				return rest(&InterceptorCtx{ctx: ctx, info: c.info, invoke: c.invoke})
			},
		})
	}
}
