package store

import (
	"fmt"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/fernet/fernet-go"
)

// Cipher transforms turn text at rest.
type Cipher interface {
	// Enabled reports whether Encrypt actually encrypts.
	Enabled() bool
	Encrypt(plain string) (string, error)
	// Decrypt returns the stored value unchanged when it cannot be decrypted.
	Decrypt(stored string) string
}

// NewCipher returns a Fernet cipher for key, or plaintext pass-through when key is empty.
func NewCipher(key string) (Cipher, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return PlainCipher{}, nil
	}
	return NewFernetCipher(key)
}

// PlainCipher stores text as-is.
type PlainCipher struct{}

func (PlainCipher) Enabled() bool                        { return false }
func (PlainCipher) Encrypt(plain string) (string, error) { return plain, nil }
func (PlainCipher) Decrypt(stored string) string         { return stored }

// FernetCipher keeps the key sealed in a memguard enclave and opens it per operation.
type FernetCipher struct {
	enclave *memguard.Enclave
}

// NewFernetCipher validates a url-safe base64 Fernet key.
func NewFernetCipher(encoded string) (*FernetCipher, error) {
	key, err := fernet.DecodeKey(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	raw := make([]byte, len(key))
	copy(raw, key[:])
	// NewEnclave wipes raw.
	return &FernetCipher{enclave: memguard.NewEnclave(raw)}, nil
}

func (c *FernetCipher) Enabled() bool { return true }

func (c *FernetCipher) Encrypt(plain string) (string, error) {
	var out string
	err := c.withKey(func(k *fernet.Key) error {
		tok, err := fernet.EncryptAndSign([]byte(plain), k)
		if err != nil {
			return err
		}
		out = string(tok)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("encrypt turn: %w", err)
	}
	return out, nil
}

func (c *FernetCipher) Decrypt(stored string) string {
	out := stored
	_ = c.withKey(func(k *fernet.Key) error {
		// A negative ttl disables token expiry.
		if msg := fernet.VerifyAndDecrypt([]byte(stored), -1, []*fernet.Key{k}); msg != nil {
			out = string(msg)
		}
		return nil
	})
	return out
}

func (c *FernetCipher) withKey(fn func(k *fernet.Key) error) error {
	buf, err := c.enclave.Open()
	if err != nil {
		return fmt.Errorf("open key enclave: %w", err)
	}
	defer buf.Destroy()

	var k fernet.Key
	copy(k[:], buf.Bytes())
	defer func() {
		for i := range k {
			k[i] = 0
		}
	}()
	return fn(&k)
}
