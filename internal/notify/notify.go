// Package notify delivers check-in outcomes to people.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Notifier delivers one titled message.
type Notifier interface {
	Notify(ctx context.Context, title, content string) error
}

// Multi fans a message out to every channel and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, title, content string) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, title, content); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every message.
type Nop struct{}

func (Nop) Notify(context.Context, string, string) error { return nil }

// FormatMessage composes the text body shared by all channels.
func FormatMessage(title, content string, at time.Time) string {
	return fmt.Sprintf("【AutoCheckin】\n%s\n----------------\n%s\nTime: %s",
		title, content, at.Format("2006-01-02 15:04:05"))
}
