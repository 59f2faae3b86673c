package notify

import (
	"context"
	"sync"
	"time"

	"storefront-be/internal/logger"

	"go.uber.org/zap"
)

// Dispatcher sends notifications fire-and-forget: failures are logged
// and never reach the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message)
}

// AsyncDispatcher renders messages and delivers them on a background goroutine.
type AsyncDispatcher struct {
	sender  Sender
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(sender Sender, timeout time.Duration) *AsyncDispatcher {
	return &AsyncDispatcher{sender: sender, timeout: timeout}
}

func (d *AsyncDispatcher) Dispatch(ctx context.Context, msg Message) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "notify"),
		zap.String("template", string(msg.Template)),
		zap.String("phone", msg.Phone),
	)

	text, err := Render(msg.Template, msg.Vars)
	if err != nil {
		log.Error("failed to render sms", zap.Error(err))
		return
	}

	// detached from the request so a finished response does not cancel delivery
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()

		if err := d.sender.Send(sendCtx, msg.Phone, text); err != nil {
			log.Warn("sms delivery failed", zap.Error(err))
			return
		}
		log.Debug("sms delivered")
	}()
}

// Wait blocks until in-flight deliveries finish.
func (d *AsyncDispatcher) Wait() {
	d.wg.Wait()
}
