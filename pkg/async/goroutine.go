package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
)

// SafeGo executes fn in a goroutine with a timeout, panic recovery and error
// logging. Use it instead of a bare `go func()` for fire-and-forget work such
// as a cron trigger.
//
// The returned channel is closed when fn has finished.
//
//	done := async.SafeGo(ctx, logger, 10*time.Minute, "billing run", func(ctx context.Context) error {
//	    _, err := job.Run(ctx, time.Now())
//	    return err
//	})
func SafeGo(parentCtx context.Context, logger logrus.FieldLogger, timeout time.Duration, taskName string, fn func(context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	if logger == nil {
		logger = discardLogger()
	}

	go func() {
		defer close(done)

		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		if err := runRecovered(ctx, fn); err != nil {
			logger.WithField("task", taskName).WithError(err).Error("background task failed")
		}
	}()

	return done
}

// runRecovered calls fn and converts a panic into an error.
func runRecovered(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}
