// Package config holds the interactive forms used to set the monitor up.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nhle/lms-monitor/internal/model"
)

const formWidth = 72

// SetupAnswers collects the values asked for by the init form.
type SetupAnswers struct {
	BaseURL  string
	Username string
	Channel  string
	ChatID   string
	Semester string
	MinLevel string
}

// AnswersFrom pre-fills the form with cfg.
func AnswersFrom(cfg *model.Config) SetupAnswers {
	a := SetupAnswers{
		BaseURL:  cfg.Portal.BaseURL,
		Username: cfg.Portal.Username,
		Channel:  cfg.Notify.Channel,
		ChatID:   cfg.Notify.Telegram.ChatID,
		Semester: cfg.Courses.Semester,
	}
	if cfg.Courses.MinLevel > 0 {
		a.MinLevel = strconv.Itoa(cfg.Courses.MinLevel)
	}
	return a
}

// NewSetupForm builds the init form writing into a.
func NewSetupForm(a *SetupAnswers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Portal URL").
				Description("Sakai portal root").
				Placeholder("https://sakai.example.edu").
				Value(&a.BaseURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Username").
				Description("Portal login; the password goes into the keyring").
				Value(&a.Username).
				Validate(validateRequired("Username")),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Notification channel").
				Options(
					huh.NewOption("Telegram or any shoutrrr URL", "shoutrrr"),
					huh.NewOption("Email via Resend", "resend"),
					huh.NewOption("SMS via AWS SNS", "sns"),
					huh.NewOption("IMAP mailbox archive", "mailbox"),
					huh.NewOption("WhatsApp Cloud API", "whatsapp"),
				).
				Value(&a.Channel),
			huh.NewInput().
				Title("Telegram chat id").
				Description("Leave empty when not using Telegram").
				Value(&a.ChatID),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Semester filter").
				Description("Keep only courses whose title or id contains this").
				Value(&a.Semester),
			huh.NewInput().
				Title("Minimum course level").
				Placeholder("300").
				Value(&a.MinLevel).
				Validate(validateLevel),
		),
	).WithWidth(formWidth)
}

// Apply copies the answers into cfg.
func (a SetupAnswers) Apply(cfg *model.Config) error {
	if err := validateLevel(a.MinLevel); err != nil {
		return err
	}
	cfg.Portal.BaseURL = strings.TrimRight(strings.TrimSpace(a.BaseURL), "/")
	cfg.Portal.Username = strings.TrimSpace(a.Username)
	if a.Channel != "" {
		cfg.Notify.Channel = a.Channel
	}
	cfg.Notify.Telegram.ChatID = strings.TrimSpace(a.ChatID)
	cfg.Courses.Semester = strings.TrimSpace(a.Semester)

	cfg.Courses.MinLevel = 0
	if s := strings.TrimSpace(a.MinLevel); s != "" {
		cfg.Courses.MinLevel, _ = strconv.Atoi(s)
	}
	return nil
}

// CredentialAnswers collects a keyring entry.
type CredentialAnswers struct {
	Key   string
	Value string
}

// NewCredentialForm asks which secret to store and its value. The key
// select is skipped when a.Key is already set.
func NewCredentialForm(a *CredentialAnswers, keys []string) *huh.Form {
	options := make([]huh.Option[string], 0, len(keys))
	for _, k := range keys {
		options = append(options, huh.NewOption(k, k))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Credential").
				Options(options...).
				Value(&a.Key),
		).WithHideFunc(func() bool { return a.Key != "" }),
		huh.NewGroup(
			huh.NewInput().
				Title("Value").
				EchoMode(huh.EchoModePassword).
				Value(&a.Value).
				Validate(validateRequired("Value")),
		),
	).WithWidth(formWidth)
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("URL is required")
	}
	parsed, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("URL must include scheme and host (e.g., https://example.com)")
	}
	return nil
}

func validateLevel(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fmt.Errorf("level must be a non-negative number")
	}
	return nil
}
