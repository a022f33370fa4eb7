package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptSecret("super-secret-api-key", "pass1234")
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "super-secret-api-key")

	got, err := DecryptSecret(blob, "pass1234")
	require.NoError(t, err)
	assert.Equal(t, "super-secret-api-key", got)
}

func TestDecrypt_WrongPasswordFails(t *testing.T) {
	blob, err := EncryptSecret("s3cr3t", "correct")
	require.NoError(t, err)

	_, err = DecryptSecret(blob, "wrong")
	require.Error(t, err)
}

func TestEncrypt_EmptyInputsRejected(t *testing.T) {
	_, err := EncryptSecret("", "pass")
	require.Error(t, err)

	_, err = EncryptSecret("secret", "")
	require.Error(t, err)
}

func TestLoadSecret_RawTakesPrecedence(t *testing.T) {
	got, err := LoadSecret(SecretConfig{RawSecret: "raw", EncryptedSecretPath: "/nonexistent"})
	require.NoError(t, err)
	assert.Equal(t, "raw", got)
}

func TestLoadSecret_FromEncryptedFile(t *testing.T) {
	blob, err := EncryptSecret("file-secret", "pw")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "secret.enc")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err := LoadSecret(SecretConfig{EncryptedSecretPath: path, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "file-secret", got)
}

func TestLoadSecret_NoSource(t *testing.T) {
	_, err := LoadSecret(SecretConfig{})
	require.Error(t, err)
}
