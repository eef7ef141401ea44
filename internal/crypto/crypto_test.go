package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptSecret(t *testing.T) {
	blob, err := EncryptSecret("venue-api-secret", "hunter2")
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "venue-api-secret")

	got, err := DecryptSecret(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "venue-api-secret", got)

	_, err = DecryptSecret(blob, "wrong")
	require.Error(t, err)

	_, err = EncryptSecret("x", "")
	require.Error(t, err)
}

func TestLoadSecret(t *testing.T) {
	got, err := LoadSecret(SecretSource{Raw: "  raw  ", EncryptedPath: "/nonexistent"})
	require.NoError(t, err)
	assert.Equal(t, "raw", got, "raw wins over the file")

	blob, err := EncryptSecret("from-file", "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	src := SecretSource{EncryptedPath: path, Password: "pw"}
	assert.True(t, src.Configured())
	got, err = LoadSecret(src)
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)

	_, err = LoadSecret(SecretSource{})
	require.Error(t, err)
	assert.False(t, SecretSource{}.Configured())
}

func TestHMACAuth_HeadersAt(t *testing.T) {
	h := &HMACAuth{Key: "key-1", Secret: "s3cret"}
	hdr := h.HeadersAt("POST", "/orders", `{"symbol":"ETH_BTC"}`, 1700000000000)

	assert.Equal(t, "key-1", hdr[HeaderAPIKey])
	assert.Equal(t, "1700000000000", hdr[HeaderTimestamp])
	assert.Len(t, hdr[HeaderSignature], 64)
	assert.True(t, Verify("s3cret", `1700000000000POST/orders{"symbol":"ETH_BTC"}`, hdr[HeaderSignature]))
	assert.False(t, Verify("other", `1700000000000POST/orders{"symbol":"ETH_BTC"}`, hdr[HeaderSignature]))
	assert.False(t, Verify("s3cret", "x", "not-hex"))

	// a different timestamp yields a different signature
	assert.NotEqual(t, hdr[HeaderSignature], h.HeadersAt("POST", "/orders", `{"symbol":"ETH_BTC"}`, 1700000000001)[HeaderSignature])
}

func TestHMACAuth_StringRedacts(t *testing.T) {
	h := &HMACAuth{Key: "abcdefgh", Secret: "xy"}
	assert.Equal(t, "HMACAuth{key=abcd****, secret=****}", h.String())
}
