package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/lms-monitor/internal/model"
)

const defaultFolder = "INBOX"

// Mailbox delivers messages by appending them to an IMAP folder, which
// works with any mail account and needs no outgoing mail relay.
type Mailbox struct {
	cfg model.MailboxConfig
	now func() time.Time
}

func NewMailbox(cfg model.MailboxConfig) (*Mailbox, error) {
	if cfg.Host == "" || cfg.Username == "" {
		return nil, errors.New("mailbox: host and username are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	if cfg.Folder == "" {
		cfg.Folder = defaultFolder
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.To == "" {
		cfg.To = cfg.Username
	}
	return &Mailbox{cfg: cfg, now: time.Now}, nil
}

func (m *Mailbox) Name() string { return "mailbox" }

func (m *Mailbox) connect() (*imapclient.Client, error) {
	addr := m.cfg.Host + ":" + strconv.Itoa(m.cfg.Port)

	var client *imapclient.Client
	var err error
	if m.cfg.StartTLS {
		client, err = imapclient.DialStartTLS(addr, nil)
	} else {
		client, err = imapclient.DialTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(m.cfg.Username, m.cfg.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("IMAP login as %s: %w", m.cfg.Username, err)
	}
	return client, nil
}

// Send appends text as a new unread message.
func (m *Mailbox) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := m.now()
	raw, err := buildMessage(m.cfg.From, m.cfg.To, subjectFrom(text), plainText(text), now)
	if err != nil {
		return err
	}

	client, err := m.connect()
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	cmd := client.Append(m.cfg.Folder, int64(len(raw)), &imap.AppendOptions{Time: now})
	if _, err := cmd.Write(raw); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("closing append: %w", err)
	}
	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("appending to %s: %w", m.cfg.Folder, err)
	}
	return nil
}

// buildMessage renders a single-part text/plain RFC 5322 message.
func buildMessage(from, to, subject, body string, date time.Time) ([]byte, error) {
	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("parsing from address: %w", err)
	}
	toAddr, err := mail.ParseAddress(to)
	if err != nil {
		return nil, fmt.Errorf("parsing to address: %w", err)
	}

	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{fromAddr})
	h.SetAddressList("To", []*mail.Address{toAddr})
	h.SetSubject(subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generating message id: %w", err)
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		return nil, fmt.Errorf("writing message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing message writer: %w", err)
	}
	return buf.Bytes(), nil
}
