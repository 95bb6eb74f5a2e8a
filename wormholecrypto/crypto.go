// Package wormholecrypto derives per-phase symmetric keys from the PAKE
// shared secret and seals/opens application payloads with them.
package wormholecrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	purposePrefix  = "wormhole:phase:"
	expandedKeyLen = 42
	keyLen         = 32
)

// ErrMessageTooShort is returned by Open when the ciphertext is too small to
// contain a nonce.
var ErrMessageTooShort = errors.New("wormholecrypto: message shorter than nonce")

// ErrDecryptionFailed is returned by Open when the box fails to authenticate,
// which happens whenever the two sides derived different keys.
var ErrDecryptionFailed = errors.New("wormholecrypto: box authentication failed")

func sha256Sum(s string) []byte {
	h := sha256.Sum256([]byte(s))
	return h[:]
}

func purpose(side, phase string) []byte {
	p := make([]byte, 0, len(purposePrefix)+2*sha256.Size)
	p = append(p, purposePrefix...)
	p = append(p, sha256Sum(side)...)
	p = append(p, sha256Sum(phase)...)
	return p
}

// DerivePhaseKey produces the 32-byte secretbox key for one (side, phase)
// pair from the shared PAKE key. The HKDF expansion is asked for 42 bytes and
// truncated to 32 to stay bit-compatible with the reference client, which
// expands into a buffer sized for a different primitive and only uses the
// key-sized prefix.
func DerivePhaseKey(sharedKey []byte, side, phase string) []byte {
	info := purpose(side, phase)
	kdf := hkdf.New(sha256.New, sharedKey, nil, info)
	expanded := make([]byte, expandedKeyLen)
	if _, err := io.ReadFull(kdf, expanded); err != nil {
		// hkdf.New with SHA-256 can expand far more than 42 bytes; a read
		// failure here means the reader was misused, not that inputs are bad.
		panic(err)
	}
	return expanded[:keyLen]
}

// Seal encrypts plaintext under the phase key for (side, phase), producing a
// random 24-byte nonce followed by the authenticated ciphertext.
func Seal(plaintext, sharedKey []byte, side, phase string) ([]byte, error) {
	key := DerivePhaseKey(sharedKey, side, phase)
	var keyArr [32]byte
	copy(keyArr[:], key)

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(nonce)+len(plaintext)+secretbox.Overhead)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, plaintext, &nonce, &keyArr)
	return out, nil
}

// Open decrypts a message produced by Seal for the same (side, phase) pair.
func Open(message, sharedKey []byte, side, phase string) ([]byte, error) {
	if len(message) < 24 {
		return nil, ErrMessageTooShort
	}
	key := DerivePhaseKey(sharedKey, side, phase)
	var keyArr [32]byte
	copy(keyArr[:], key)

	var nonce [24]byte
	copy(nonce[:], message[:24])

	plaintext, ok := secretbox.Open(nil, message[24:], &nonce, &keyArr)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
