// Copyright 2026 The Prometheus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// EncryptedPrefix marks a secret holding base64 AES-GCM ciphertext.
const EncryptedPrefix = "aesgcm:"

var ErrNoPassphrase = errors.New("encrypted secret requires a passphrase")

// Secret is a string that must not be revealed on marshaling.
type Secret string

// MarshalYAML implements the yaml.Marshaler interface.
func (s Secret) MarshalYAML() (interface{}, error) {
	if s != "" {
		return "<secret>", nil
	}
	return nil, nil
}

func (s Secret) Encrypted() bool {
	return strings.HasPrefix(string(s), EncryptedPrefix)
}

// Reveal returns the plaintext of s. Unencrypted secrets are returned as is.
func (s Secret) Reveal(passphrase string) (string, error) {
	enc, ok := strings.CutPrefix(string(s), EncryptedPrefix)
	if !ok {
		return string(s), nil
	}
	if passphrase == "" {
		return "", ErrNoPassphrase
	}
	ciphertext, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", fmt.Errorf("base64 decode error: %w", err)
	}
	plaintext, err := Decrypt(ciphertext, passphrase)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// EncryptSecret returns plaintext encrypted under passphrase in the form
// accepted by Secret.Reveal.
func EncryptSecret(plaintext, passphrase string) (Secret, error) {
	ciphertext, err := Encrypt([]byte(plaintext), passphrase)
	if err != nil {
		return "", err
	}
	return Secret(EncryptedPrefix + base64.StdEncoding.EncodeToString(ciphertext)), nil
}

func passphraseToAesKey(passphrase string) []byte {
	key := sha256.Sum256([]byte(passphrase))
	return key[:]
}

func newGCM(passphrase string) (cipher.AEAD, error) {
	block, err := aes.NewCipher(passphraseToAesKey(passphrase))
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals data with AES-256-GCM keyed by the SHA-256 of passphrase.
// The random nonce is prepended to the ciphertext.
func Encrypt(data []byte, passphrase string) ([]byte, error) {
	gcm, err := newGCM(passphrase)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, data, nil), nil
}

func Decrypt(data []byte, passphrase string) ([]byte, error) {
	gcm, err := newGCM(passphrase)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("AesGcm cipher size of %d too short (should be at least %d)", len(data), nonceSize)
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
