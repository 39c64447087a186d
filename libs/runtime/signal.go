package runtime

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"
)

// SignalContext is cancelled by the first SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// Stopper is one named shutdown step.
type Stopper struct {
	Name string
	Stop func(context.Context) error
}

// Shutdown runs the steps in order under one shared deadline. Failures are
// logged and do not stop later steps.
func Shutdown(logger *slog.Logger, timeout time.Duration, steps ...Stopper) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, s := range steps {
		if s.Stop == nil {
			continue
		}
		if err := s.Stop(ctx); err != nil {
			logger.Error("shutdown step failed", "step", s.Name, "err", err)
		}
	}
}
