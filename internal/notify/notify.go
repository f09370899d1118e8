package notify

import (
	"context"
	"fmt"

	"servicewatch/internal/domain"
)

type Notifier interface {
	Send(ctx context.Context, title, text string) error
}

// ForChannel builds the notifier for a channel config. All channel types are
// treated uniformly behind the Notifier contract.
func ForChannel(ch domain.NotificationChannel) (Notifier, error) {
	switch ch.Type {
	case domain.ChannelSlack:
		if s := NewSlack(ch.Target); s != nil {
			return s, nil
		}
		return nil, fmt.Errorf("slack channel %q: empty webhook", ch.ID)
	case domain.ChannelWebhook:
		if w := NewWebhook(ch.Target); w != nil {
			return w, nil
		}
		return nil, fmt.Errorf("webhook channel %q: empty url", ch.ID)
	case domain.ChannelEmail:
		if e := NewEmail(ch.From, ch.Target, ch.APIKey); e != nil {
			return e, nil
		}
		return nil, fmt.Errorf("email channel %q: missing addresses", ch.ID)
	}
	return nil, fmt.Errorf("unknown channel type %q", ch.Type)
}

type Multi []Notifier

func (m Multi) Send(ctx context.Context, title, text string) error {
	var firstErr error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, title, text); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
