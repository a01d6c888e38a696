package crypto

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey(testPrivateKeyHex, "hunter2")
	require.NoError(t, err)

	decrypted, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testPrivateKeyHex, decrypted)
}

func TestDecryptWithWrongPasswordFails(t *testing.T) {
	blob, err := EncryptKey(testPrivateKeyHex, "hunter2")
	require.NoError(t, err)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
}

func TestEncryptKeyRejectsEmptyPassword(t *testing.T) {
	_, err := EncryptKey(testPrivateKeyHex, "")
	assert.Error(t, err)
}

func TestLoadKeyPrefersRawPrivateKey(t *testing.T) {
	k, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testPrivateKeyHex})
	require.NoError(t, err)
	assert.Equal(t, testPrivateKeyHex, k)
}

func TestLoadKeyFromEncryptedFile(t *testing.T) {
	blob, err := EncryptKey(testPrivateKeyHex, "hunter2")
	require.NoError(t, err)

	path := t.TempDir() + "/key.json"
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	k, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, testPrivateKeyHex, k)
}

func TestLoadKeyWithNoSourceFails(t *testing.T) {
	_, err := LoadKey(KeyConfig{})
	assert.Error(t, err)
}
