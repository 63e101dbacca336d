// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package envelope implements the encrypted radio envelope used by coldmesh nodes.
//
// An envelope is a 16-byte initialization vector followed by AES-128-CBC ciphertext of the
// PKCS#7 padded plaintext. The envelope carries no MAC: padding validity is the only integrity
// check, so a corrupted frame can decrypt to garbage that is accepted as plaintext.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
)

// Envelope size limits
const (
	KeySize   = 16
	BlockSize = aes.BlockSize
	IVSize    = aes.BlockSize

	// MaxFrameSize is the largest envelope the radio buffer accepts.
	MaxFrameSize = 256
	// MaxCiphertext is the largest padded plaintext that still fits behind the IV.
	MaxCiphertext = MaxFrameSize - IVSize
	// MaxPlaintext is the longest plaintext that encrypts without ErrTooLarge.
	MaxPlaintext = MaxCiphertext - 1
	// MinEnvelope is the shortest envelope that can possibly be valid (IV + one block).
	MinEnvelope = IVSize + BlockSize
)

var (
	// ErrTooLarge is returned when the padded plaintext exceeds MaxCiphertext.
	ErrTooLarge = errors.New("envelope: plaintext too large")
	// ErrTooShort is returned when an envelope is shorter than MinEnvelope.
	ErrTooShort = errors.New("envelope: too short")
	// ErrCipher is returned when the ciphertext is not a whole number of blocks.
	ErrCipher = errors.New("envelope: cipher failure")
	// ErrBadPadding is returned when the decrypted padding byte is out of range.
	ErrBadPadding = errors.New("envelope: bad padding")
)

// Key is a derived AES-128 key shared by every node in the mesh.
type Key [KeySize]byte

// DeriveKey hashes the passphrase with SHA-256 and keeps the first 16 bytes.
// The same passphrase always yields the same key; an empty passphrase is allowed.
func DeriveKey(passphrase string) Key {
	sum := sha256.Sum256([]byte(passphrase))
	var k Key
	copy(k[:], sum[:KeySize])
	return k
}

// Sealer encrypts plaintexts under a fixed key, drawing IVs from Rand.
type Sealer struct {
	Key  Key
	Rand io.Reader
}

// NewSealer creates a sealer using the package's fast IV source.
func NewSealer(key Key) *Sealer {
	return &Sealer{Key: key, Rand: FastRand()}
}

// Seal pads and encrypts plaintext, returning IV || ciphertext.
// No output is produced when the padded plaintext would not fit in a radio frame.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	padded, err := pad(plaintext)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(s.Key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCipher, err)
	}

	out := make([]byte, IVSize+len(padded))
	iv := out[:IVSize]
	src := s.Rand
	if src == nil {
		src = FastRand()
	}
	if _, err := io.ReadFull(src, iv); err != nil {
		return nil, fmt.Errorf("envelope: iv: %w", err)
	}

	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[IVSize:], padded)
	return out, nil
}

// Encrypt seals plaintext under key with a fresh IV from the fast source.
func Encrypt(key Key, plaintext []byte) ([]byte, error) {
	return NewSealer(key).Seal(plaintext)
}

// Decrypt splits the IV, decrypts and strips the padding.
func Decrypt(key Key, env []byte) ([]byte, error) {
	if len(env) < MinEnvelope {
		return nil, fmt.Errorf("%w: %d bytes (min %d)", ErrTooShort, len(env), MinEnvelope)
	}

	ct := env[IVSize:]
	if len(ct)%BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d not a multiple of %d", ErrCipher, len(ct), BlockSize)
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCipher, err)
	}

	iv := make([]byte, IVSize)
	copy(iv, env[:IVSize])
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)

	padLen := int(plain[len(plain)-1])
	if padLen == 0 || padLen > BlockSize {
		return nil, fmt.Errorf("%w: pad byte %d", ErrBadPadding, padLen)
	}
	if padLen > len(plain) {
		return nil, fmt.Errorf("%w: pad %d exceeds %d bytes", ErrBadPadding, padLen, len(plain))
	}

	return plain[:len(plain)-padLen], nil
}

// pad applies PKCS#7 padding; a block-aligned input gains a full block.
func pad(plaintext []byte) ([]byte, error) {
	padLen := BlockSize - len(plaintext)%BlockSize
	total := len(plaintext) + padLen
	if total > MaxCiphertext {
		return nil, fmt.Errorf("%w: padded length %d (max %d)", ErrTooLarge, total, MaxCiphertext)
	}

	padded := make([]byte, total)
	copy(padded, plaintext)
	for i := len(plaintext); i < total; i++ {
		padded[i] = byte(padLen)
	}
	return padded, nil
}
