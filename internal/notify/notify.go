package notify

import (
	"context"

	"go.uber.org/zap"
)

// Notifier delivers a human-readable event message. Delivery is best
// effort: implementations never report failure to the caller.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// Sender is one delivery channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, message string) error
}

// Dispatcher logs every message and fans it out to all senders. A failing
// sender is logged and skipped.
type Dispatcher struct {
	senders []Sender
	log     *zap.Logger
}

func NewDispatcher(log *zap.Logger, senders ...Sender) *Dispatcher {
	return &Dispatcher{senders: senders, log: log}
}

func (d *Dispatcher) Notify(ctx context.Context, message string) {
	d.log.Info("notification", zap.String("message", message))
	for _, s := range d.senders {
		if err := s.Send(ctx, message); err != nil {
			d.log.Warn("notification delivery failed", zap.String("sender", s.Name()), zap.Error(err))
		}
	}
}

// Senders lists the configured delivery channels by name.
func (d *Dispatcher) Senders() []string {
	names := make([]string, 0, len(d.senders))
	for _, s := range d.senders {
		names = append(names, s.Name())
	}
	return names
}
