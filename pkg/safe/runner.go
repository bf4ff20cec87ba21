package safe

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"chainvend.com/pkg/logger"
)

// Go runs fn in a goroutine that cannot crash the process.
func Go(fn func()) {
	go func() {
		defer recoverPanic(context.Background())
		fn()
	}()
}

// GoCtx is Go with a context, so the panic log keeps the trace fields.
func GoCtx(ctx context.Context, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		defer recoverPanic(ctx)
		fn(ctx)
	}()
}

// Run calls fn synchronously and turns a panic into an error.
func Run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(ctx, r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

func recoverPanic(ctx context.Context) {
	if r := recover(); r != nil {
		logPanic(ctx, r)
	}
}

func logPanic(ctx context.Context, r interface{}) {
	stack := string(debug.Stack())
	if logger.Log != nil {
		logger.Error(ctx, "goroutine panic recovered", zap.Any("panic", r), zap.String("stack", stack))
		return
	}
	fmt.Printf("goroutine panic: %v\nstack: %s\n", r, stack)
}
