package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/resend/resend-go/v3"

	"github.com/nhle/lms-monitor/internal/model"
)

// Resend delivers messages as plain-text email.
type Resend struct {
	send func(*resend.SendEmailRequest) error
	from string
	to   []string
}

func NewResend(cfg model.ResendConfig) (*Resend, error) {
	if cfg.APIKey == "" || cfg.From == "" || len(cfg.To) == 0 {
		return nil, errors.New("resend: api_key, from and to are required")
	}

	client := resend.NewClient(cfg.APIKey)
	return &Resend{
		send: func(req *resend.SendEmailRequest) error {
			_, err := client.Emails.Send(req)
			return err
		},
		from: cfg.From,
		to:   cfg.To,
	}, nil
}

func (r *Resend) Name() string { return "resend" }

func (r *Resend) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.send(&resend.SendEmailRequest{
		From:    r.from,
		To:      r.to,
		Subject: subjectFrom(text),
		Text:    plainText(text),
	})
}

var markupStripper = strings.NewReplacer("*", "", "```", "", `\_`, "_", `\[`, "[", "\\`", "`")

// plainText drops the Markdown markup used for chat channels.
func plainText(text string) string {
	return markupStripper.Replace(text)
}

// subjectFrom uses the message headline as the mail subject.
func subjectFrom(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	line = strings.TrimSpace(plainText(line))
	if line == "" {
		return "LMS Monitor"
	}
	return "LMS Monitor: " + line
}
