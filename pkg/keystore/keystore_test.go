package keystore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncryptDecryptSecret(t *testing.T) {
	secret := []byte("culture mean enroll zero stool crowd rather injury silent tone rookie pact")
	password := "correct horse battery staple"

	keyJSON, err := EncryptSecret(secret, password)
	assert.NoError(t, err)
	assert.Equal(t, 3, keyJSON.Version)
	assert.Equal(t, "scrypt", keyJSON.Crypto.KDF)

	plain, err := DecryptSecret(keyJSON, password)
	assert.NoError(t, err)
	assert.Equal(t, secret, plain)
}

func TestDecryptWrongPassword(t *testing.T) {
	keyJSON, err := EncryptSecret([]byte("secret material"), "right")
	assert.NoError(t, err)

	_, err = DecryptSecret(keyJSON, "wrong")
	assert.ErrorIs(t, err, ErrMACMismatch)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	keyJSON, err := EncryptSecret([]byte("file bound secret"), "pw")
	assert.NoError(t, err)

	path := filepath.Join(t.TempDir(), "wallet.json")
	assert.NoError(t, keyJSON.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	assert.NoError(t, err)
	assert.Equal(t, keyJSON.Id, loaded.Id)

	plain, err := DecryptSecret(loaded, "pw")
	assert.NoError(t, err)
	assert.Equal(t, []byte("file bound secret"), plain)
}
