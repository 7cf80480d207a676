package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVault() *Vault {
	return NewVault(keyring.NewArrayKeyring(nil))
}

func TestVault_SetGetDelete(t *testing.T) {
	v := newTestVault()

	require.NoError(t, v.Set(KeyPortalPassword, "hunter2"))

	got, err := v.Get(KeyPortalPassword)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)

	require.NoError(t, v.Delete(KeyPortalPassword))

	_, err = v.Get(KeyPortalPassword)
	assert.ErrorIs(t, err, keyring.ErrKeyNotFound)
}

func TestVault_LookupMissing(t *testing.T) {
	got, err := newTestVault().Lookup(KeyResendAPIKey)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestVault_Fill(t *testing.T) {
	v := newTestVault()
	require.NoError(t, v.Set(KeyPortalPassword, "from-keyring"))
	require.NoError(t, v.Set(KeyTelegramToken, "ignored"))

	password := ""
	token := "from-config"
	apiKey := ""

	err := v.Fill(map[string]*string{
		KeyPortalPassword: &password,
		KeyTelegramToken:  &token,
		KeyResendAPIKey:   &apiKey,
	})
	require.NoError(t, err)

	assert.Equal(t, "from-keyring", password)
	assert.Equal(t, "from-config", token)
	assert.Empty(t, apiKey)
}

func TestIsKnownKey(t *testing.T) {
	assert.True(t, IsKnownKey(KeyMailboxPassword))
	assert.True(t, IsKnownKey("whatsapp-token"))
	assert.False(t, IsKnownKey("api-token"))
}
