package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
)

// TelegramURL builds the shoutrrr URL for a Telegram bot chat with
// Markdown parsing and link previews off.
func TelegramURL(token, chatID string) string {
	return fmt.Sprintf("telegram://%s@telegram?chats=%s&parsemode=Markdown&preview=No",
		token, url.QueryEscape(chatID))
}

type routerSender interface {
	Send(message string, params *stypes.Params) []error
}

// Shoutrrr sends to every configured shoutrrr service URL.
type Shoutrrr struct {
	sender  routerSender
	secrets []string
}

// NewShoutrrr validates urls and builds one sender for all of them.
func NewShoutrrr(urls []string, timeout time.Duration) (*Shoutrrr, error) {
	if len(urls) == 0 {
		return nil, errors.New("shoutrrr: at least one URL is required")
	}

	secrets := urlSecrets(urls)
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, fmt.Errorf("shoutrrr: %s", redact(err.Error(), secrets))
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))

	return &Shoutrrr{sender: sender, secrets: secrets}, nil
}

func (s *Shoutrrr) Name() string { return "shoutrrr" }

// Send delivers text to every service. The router applies its own
// timeout; ctx is only checked before sending.
func (s *Shoutrrr) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, err := range s.sender.Send(text, &stypes.Params{}) {
		if err != nil {
			return errors.New(redact(err.Error(), s.secrets))
		}
	}
	return nil
}

// urlSecrets collects the credential parts of service URLs so they can
// be stripped from error messages.
func urlSecrets(urls []string) []string {
	var secrets []string
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || u.User == nil {
			continue
		}
		if name := u.User.Username(); name != "" {
			secrets = append(secrets, name)
		}
		if pw, ok := u.User.Password(); ok && pw != "" {
			secrets = append(secrets, pw)
		}
	}
	return secrets
}

func redact(msg string, secrets []string) string {
	for _, s := range secrets {
		msg = strings.ReplaceAll(msg, s, "[REDACTED]")
	}
	return msg
}
