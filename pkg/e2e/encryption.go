// Package e2e implements the end-to-end payload encryption used by call
// participants. Keys are derived from the room id plus the optional room
// password, so the broker, which knows neither the password nor the derived
// key, only ever relays opaque ciphertext.
package e2e

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySalt       = "p2p-video-chat-secure-salt-2024"
	keyIterations = 10000
	keyLength     = 32
)

// ErrDecryptFailed is returned when a ciphertext was produced under a
// different key or has been corrupted in transit.
var ErrDecryptFailed = errors.New("decryption failed - wrong key or corrupted data")

// Context holds the symmetric key for one room session. Any holder of the
// same (roomID, password) pair derives the same key.
type Context struct {
	aead cipher.AEAD
}

// NewContext derives the session key for roomID and an optional password
// (empty string for unprotected rooms).
func NewContext(roomID, password string) (*Context, error) {
	key := pbkdf2.Key([]byte(roomID+password), []byte(keySalt), keyIterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("e2e: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("e2e: create gcm: %w", err)
	}
	return &Context{aead: aead}, nil
}

// EncryptSignal serializes signal to JSON and encrypts it for transport
// through the broker.
func (c *Context) EncryptSignal(signal interface{}) (string, error) {
	plaintext, err := json.Marshal(signal)
	if err != nil {
		return "", fmt.Errorf("e2e: marshal signal: %w", err)
	}
	return c.seal(plaintext)
}

// DecryptSignal reverses EncryptSignal into out. Ciphertext produced under a
// different key, or corrupted in transit, yields ErrDecryptFailed rather than
// garbage.
func (c *Context) DecryptSignal(ciphertext string, out interface{}) error {
	plaintext, err := c.open(ciphertext)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("e2e: unmarshal signal: %w", err)
	}
	return nil
}

// EncryptMessage encrypts a plain chat message.
func (c *Context) EncryptMessage(message string) (string, error) {
	return c.seal([]byte(message))
}

// DecryptMessage reverses EncryptMessage.
func (c *Context) DecryptMessage(ciphertext string) (string, error) {
	plaintext, err := c.open(ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (c *Context) seal(plaintext []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("e2e: read nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Context) open(ciphertext string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	if len(raw) < c.aead.NonceSize() {
		return nil, ErrDecryptFailed
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GeneratePassword returns a random 16-character room password.
func GeneratePassword() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("e2e: cannot read random password: %v", err))
	}
	for i, b := range buf {
		buf[i] = passwordAlphabet[int(b)%len(passwordAlphabet)]
	}
	return string(buf)
}
