// Package credential keeps portal and channel secrets in the system keyring
// so they do not have to live in the config file.
package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "lms-monitor"

// Keys of the secrets the monitor knows how to look up.
const (
	KeyPortalPassword  = "portal-password"
	KeyTelegramToken   = "telegram-token"
	KeyResendAPIKey    = "resend-api-key"
	KeyMailboxPassword = "mailbox-password"
	KeyWhatsAppToken   = "whatsapp-token"
)

// Keys lists every known secret key.
var Keys = []string{
	KeyPortalPassword,
	KeyTelegramToken,
	KeyResendAPIKey,
	KeyMailboxPassword,
	KeyWhatsAppToken,
}

// Vault reads and writes secrets in a keyring.
type Vault struct {
	ring keyring.Keyring
}

// Open returns a Vault backed by the platform keyring.
func Open() (*Vault, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/lms-monitor/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("lms-monitor-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Vault{ring: ring}, nil
}

// NewVault wraps an existing keyring.
func NewVault(ring keyring.Keyring) *Vault {
	return &Vault{ring: ring}
}

// Get retrieves a credential value by key.
func (v *Vault) Get(key string) (string, error) {
	item, err := v.ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Lookup is Get that treats a missing key as empty.
func (v *Vault) Lookup(key string) (string, error) {
	value, err := v.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	return value, err
}

// Set stores a credential value by key.
func (v *Vault) Set(key string, value string) error {
	err := v.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key.
func (v *Vault) Delete(key string) error {
	if err := v.ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// Fill replaces each empty target with the secret stored under its key.
// Targets that already hold a value are left alone.
func (v *Vault) Fill(targets map[string]*string) error {
	for key, dst := range targets {
		if dst == nil || *dst != "" {
			continue
		}
		value, err := v.Lookup(key)
		if err != nil {
			return err
		}
		*dst = value
	}
	return nil
}

// IsKnownKey reports whether key is one of Keys.
func IsKnownKey(key string) bool {
	for _, k := range Keys {
		if k == key {
			return true
		}
	}
	return false
}
