package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nhle/lms-monitor/internal/model"
)

const defaultWhatsAppAPIURL = "https://graph.facebook.com/v21.0"

// WhatsApp delivers text messages through the WhatsApp Cloud API.
type WhatsApp struct {
	client   *http.Client
	endpoint string
	token    string
	to       string
}

// WhatsAppOption customizes a WhatsApp channel.
type WhatsAppOption func(*WhatsApp)

// WithWhatsAppClient replaces the HTTP client.
func WithWhatsAppClient(c *http.Client) WhatsAppOption {
	return func(w *WhatsApp) { w.client = c }
}

func NewWhatsApp(cfg model.WhatsAppConfig, opts ...WhatsAppOption) (*WhatsApp, error) {
	if cfg.Token == "" || cfg.PhoneNumberID == "" || cfg.To == "" {
		return nil, errors.New("whatsapp: token, phone_number_id and to are required")
	}

	base := strings.TrimRight(cfg.APIURL, "/")
	if base == "" {
		base = defaultWhatsAppAPIURL
	}

	w := &WhatsApp{
		client:   http.DefaultClient,
		endpoint: base + "/" + cfg.PhoneNumberID + "/messages",
		token:    cfg.Token,
		to:       cfg.To,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *WhatsApp) Name() string { return "whatsapp" }

type whatsAppText struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type whatsAppMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsAppText `json:"text"`
}

type whatsAppError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (w *WhatsApp) Send(ctx context.Context, text string) error {
	payload, err := json.Marshal(whatsAppMessage{
		MessagingProduct: "whatsapp",
		To:               w.to,
		Type:             "text",
		Text:             whatsAppText{Body: text},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+w.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var apiErr whatsAppError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("whatsapp: status %d: %s (code %d)",
			resp.StatusCode, apiErr.Error.Message, apiErr.Error.Code)
	}
	return fmt.Errorf("whatsapp: status %d", resp.StatusCode)
}
