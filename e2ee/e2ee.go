// Package e2ee implements the client side of the chat's end-to-end
// encryption: X25519 key agreement, HKDF-SHA256 key derivation and
// encrypt-then-MAC (AES-256-GCM + HMAC-SHA256). The relay never touches any
// of this; it only moves the resulting opaque bytes.
package e2ee

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	keySize   = 32
	nonceSize = 12
)

// hkdfInfo binds derived keys to this protocol version.
var hkdfInfo = []byte("pairchat session keys v1")

var (
	ErrBadMAC        = errors.New("message authentication failed")
	ErrShortMaterial = errors.New("invalid key or nonce length")
)

// KeyPair is a Curve25519 key pair. The private key is clamped per RFC 7748.
type KeyPair struct {
	Private [keySize]byte
	Public  [keySize]byte
}

func GenerateKeyPair() (KeyPair, error) {
	var kp KeyPair
	if _, err := rand.Read(kp.Private[:]); err != nil {
		return KeyPair{}, err
	}
	clamp(&kp.Private)

	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, err
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

func clamp(k *[keySize]byte) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}

// Session holds the symmetric keys both correspondents derive from the same
// shared secret; the key material is direction-agnostic, as in the browser
// client this protocol originated from.
type Session struct {
	aead   cipher.AEAD
	macKey [keySize]byte
}

// Derive computes the shared secret with the peer's public key and expands it
// into an encryption key and a MAC key. Both sides obtain identical sessions.
func Derive(private [keySize]byte, peerPublic []byte) (*Session, error) {
	if len(peerPublic) != keySize {
		return nil, ErrShortMaterial
	}

	shared, err := curve25519.X25519(private[:], peerPublic)
	if err != nil {
		return nil, err
	}

	kdf := hkdf.New(sha256.New, shared, nil, hkdfInfo)
	var encKey [keySize]byte
	s := &Session{}
	if _, err := io.ReadFull(kdf, encKey[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(kdf, s.macKey[:]); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(encKey[:])
	if err != nil {
		return nil, err
	}
	s.aead, err = cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Seal encrypts the plaintext and authenticates iv||ciphertext.
func (s *Session) Seal(plaintext []byte) (ciphertext, iv, mac []byte, err error) {
	iv = make([]byte, nonceSize)
	if _, err = rand.Read(iv); err != nil {
		return nil, nil, nil, err
	}
	ciphertext = s.aead.Seal(nil, iv, plaintext, nil)
	mac = s.tag(iv, ciphertext)
	return ciphertext, iv, mac, nil
}

// Open verifies the MAC before decrypting; a forged or truncated message is
// rejected without touching the cipher.
func (s *Session) Open(ciphertext, iv, mac []byte) ([]byte, error) {
	if len(iv) != nonceSize {
		return nil, ErrShortMaterial
	}
	if !hmac.Equal(mac, s.tag(iv, ciphertext)) {
		return nil, ErrBadMAC
	}
	return s.aead.Open(nil, iv, ciphertext, nil)
}

func (s *Session) tag(iv, ciphertext []byte) []byte {
	h := hmac.New(sha256.New, s.macKey[:])
	h.Write(iv)
	h.Write(ciphertext)
	return h.Sum(nil)
}
