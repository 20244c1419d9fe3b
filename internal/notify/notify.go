// Package notify delivers alerts and summaries. Delivery is best-effort:
// callers log the returned error and carry on.
package notify

import (
	"context"
	"errors"
	"fmt"
)

// Notifier sends a text message to one channel.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// DeliveryError is returned when a channel refused or failed a message.
type DeliveryError struct {
	Channel    string
	StatusCode int // 0 when no response was received
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s delivery failed: status %d: %s", e.Channel, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s delivery failed: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Nop drops every message.
type Nop struct{}

func (Nop) Send(context.Context, string) error { return nil }

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, text string) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Compose drops nil entries and collapses the result: no notifier gives Nop,
// one is returned as is.
func Compose(ns ...Notifier) Notifier {
	var out Multi
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	switch len(out) {
	case 0:
		return Nop{}
	case 1:
		return out[0]
	}
	return out
}
