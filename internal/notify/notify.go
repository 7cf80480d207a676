// Package notify formats items into messages and delivers them over the
// configured channel.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/lms-monitor/internal/model"
)

// Notifier delivers one text message. A nil error means the message was
// accepted by the channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, text string) error
}

// SendError reports a failed delivery. The item is left unrecorded so the
// next run retries it, and parts already delivered are sent again then.
type SendError struct {
	Channel string
	Err     error

	// Delivered counts the parts of a split message that went out before
	// the failure. Parts is zero when the message was not split.
	Delivered int
	Parts     int
}

func (e *SendError) Error() string {
	if e.Delivered > 0 {
		return fmt.Sprintf("sending via %s: %v (delivered %d of %d parts)",
			e.Channel, e.Err, e.Delivered, e.Parts)
	}
	return fmt.Sprintf("sending via %s: %v", e.Channel, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// IsSendError reports whether err is or wraps a *SendError.
func IsSendError(err error) bool {
	var se *SendError
	return errors.As(err, &se)
}

// Message length limits per channel. Zero means unlimited.
const (
	chatMaxLength = 4000
	smsMaxLength  = 1600
)

// New builds the notifier selected by cfg.Channel, wrapped in a Throttle.
func New(ctx context.Context, cfg model.NotifyConfig) (Notifier, error) {
	var (
		ch     Notifier
		maxLen int
		err    error
	)

	switch cfg.Channel {
	case "", "shoutrrr":
		urls := append([]string(nil), cfg.URLs...)
		if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != "" {
			urls = append(urls, TelegramURL(cfg.Telegram.Token, cfg.Telegram.ChatID))
		}
		ch, err = NewShoutrrr(urls, cfg.Timeout)
		maxLen = chatMaxLength
	case "resend":
		ch, err = NewResend(cfg.Resend)
	case "sns":
		ch, err = NewSNS(ctx, cfg.SNS)
		maxLen = smsMaxLength
	case "mailbox":
		ch, err = NewMailbox(cfg.Mailbox)
	case "whatsapp":
		ch, err = NewWhatsApp(cfg.WhatsApp)
		maxLen = chatMaxLength
	default:
		return nil, fmt.Errorf("unknown notify channel %q", cfg.Channel)
	}
	if err != nil {
		return nil, err
	}

	return NewThrottle(ch, cfg.MessagesPerSecond, maxLen, cfg.Timeout), nil
}
