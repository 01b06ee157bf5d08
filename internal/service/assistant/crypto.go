package assistant

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// apiKeyCipherEnv holds a 32-byte key, raw or base64, for sealing per-configuration API keys.
const apiKeyCipherEnv = "CHATSTREAM_APIKEY_KEY"

// sealedKeyPrefix tags the stored format so a later scheme can be told apart.
const sealedKeyPrefix = "v1:"

var errInvalidCiphertext = errors.New("invalid api key ciphertext")

// apiKeySealer encrypts provider API keys at rest. Every sealed key is bound to the
// model configuration row it was written for.
type apiKeySealer struct {
	aead cipher.AEAD
}

func newAPIKeySealerFromEnv() (*apiKeySealer, error) {
	raw := strings.TrimSpace(os.Getenv(apiKeyCipherEnv))
	if raw == "" {
		return nil, fmt.Errorf("%s not set", apiKeyCipherEnv)
	}
	key, err := decodeKey(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", apiKeyCipherEnv, err)
	}
	return newAPIKeySealer(key)
}

func newAPIKeySealer(key []byte) (*apiKeySealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &apiKeySealer{aead: aead}, nil
}

func decodeKey(raw string) ([]byte, error) {
	if len(raw) == 32 {
		return []byte(raw), nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid key length %d, want 32", len(key))
	}
	return key, nil
}

func configurationAD(configID int64) []byte {
	return []byte("model_configuration:" + strconv.FormatInt(configID, 10))
}

// Seal encrypts apiKey for configuration configID as "v1:" + base64(nonce || ciphertext).
func (s *apiKeySealer) Seal(configID int64, apiKey string) (string, error) {
	if configID <= 0 {
		return "", fmt.Errorf("seal api key: invalid configuration id %d", configID)
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(apiKey), configurationAD(configID))
	return sealedKeyPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. A key sealed for another configuration row does not open.
func (s *apiKeySealer) Open(configID int64, stored string) (string, error) {
	encoded, ok := strings.CutPrefix(stored, sealedKeyPrefix)
	if !ok {
		return "", errInvalidCiphertext
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errInvalidCiphertext
	}
	ns := s.aead.NonceSize()
	if len(data) < ns+s.aead.Overhead() {
		return "", errInvalidCiphertext
	}
	plain, err := s.aead.Open(nil, data[:ns], data[ns:], configurationAD(configID))
	if err != nil {
		return "", errInvalidCiphertext
	}
	return string(plain), nil
}
