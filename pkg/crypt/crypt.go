// Package crypt seals portal credentials into the envelope clients send to
// the API, so that plaintext credentials never travel in request bodies.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/denysvitali/comprobantes-backend/pkg/models"
)

var ErrInvalidEnvelope = errors.New("invalid credentials envelope")

type Crypt struct {
	gcm cipher.AEAD
}

func New(passphrase string) (*Crypt, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}
	dk := pbkdf2.Key([]byte(passphrase), nil, 4096, 32, sha1.New)

	c, err := aes.NewCipher(dk)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(c)
	if err != nil {
		return nil, err
	}
	return &Crypt{gcm: gcm}, nil
}

// Encrypt returns nonce || ciphertext.
func (c *Crypt) Encrypt(plainText []byte) ([]byte, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.gcm.Seal(nonce, nonce, plainText, nil), nil
}

func (c *Crypt) Decrypt(data []byte) ([]byte, error) {
	nonceSize := c.gcm.NonceSize()
	if len(data) < nonceSize+c.gcm.Overhead() {
		return nil, ErrInvalidEnvelope
	}
	plainText, err := c.gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, ErrInvalidEnvelope
	}
	return plainText, nil
}

// Seal encodes creds as base64(nonce || AES-GCM(JSON)).
func (c *Crypt) Seal(creds models.Credentials) (string, error) {
	plainText, err := json.Marshal(creds)
	if err != nil {
		return "", err
	}
	cipherText, err := c.Encrypt(plainText)
	if err != nil {
		return "", fmt.Errorf("unable to encrypt credentials: %w", err)
	}
	return base64.StdEncoding.EncodeToString(cipherText), nil
}

// Open reverses Seal. Any failure is reported as ErrInvalidEnvelope so the
// caller cannot tell a wrong key from a corrupted envelope.
func (c *Crypt) Open(envelope string) (models.Credentials, error) {
	var creds models.Credentials
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(envelope))
	if err != nil {
		return creds, ErrInvalidEnvelope
	}
	plainText, err := c.Decrypt(data)
	if err != nil {
		return creds, err
	}
	if err := json.Unmarshal(plainText, &creds); err != nil {
		return creds, ErrInvalidEnvelope
	}
	if creds.TaxpayerId == "" || creds.Password == "" {
		return creds, fmt.Errorf("%w: missing taxpayer id or password", ErrInvalidEnvelope)
	}
	return creds, nil
}
