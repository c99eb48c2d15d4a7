package codec

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of a sealing key.
const KeySize = chacha20poly1305.KeySize

const keyInfo = "udpframed sealed datagram v1"

// DeriveKey stretches a shared secret (a passphrase or key file) into a
// sealing key.  Both ends must use the same secret and salt.
func DeriveKey(secret []byte, salt string) ([]byte, error) {
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, secret, []byte(salt), []byte(keyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// Sealed wraps another codec and protects every datagram with
// XChaCha20-Poly1305:
//
//	[24B nonce][ciphertext of inner encoding][16B tag]
//
// Datagrams that fail authentication are decode errors.
type Sealed[F any] struct {
	inner Codec[F]
	aead  cipher.AEAD

	encBuf []byte
	decBuf []byte
}

// NewSealed returns a sealing codec around inner.
func NewSealed[F any](inner Codec[F], key []byte) (*Sealed[F], error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("sealed codec: %w", err)
	}
	return &Sealed[F]{inner: inner, aead: aead}, nil
}

func (s *Sealed[F]) Name() string { return "sealed+" + NameOf(s.inner) }

// Decode authenticates and opens b, then hands the plaintext to the
// inner codec.
func (s *Sealed[F]) Decode(b []byte) (F, bool, error) {
	var zero F
	ns := s.aead.NonceSize()
	if len(b) < ns+s.aead.Overhead() {
		return zero, false, ErrSealedShort
	}
	plain, err := s.aead.Open(s.decBuf[:0], b[:ns], b[ns:], nil)
	if err != nil {
		return zero, false, ErrUnsealed
	}
	s.decBuf = plain
	return s.inner.Decode(plain)
}

// Encode seals the inner encoding of f under a fresh random nonce.
func (s *Sealed[F]) Encode(dst []byte, f F) ([]byte, error) {
	plain, err := s.inner.Encode(s.encBuf[:0], f)
	if err != nil {
		return dst, err
	}
	s.encBuf = plain

	ns := s.aead.NonceSize()
	start := len(dst)
	dst = append(dst, make([]byte, ns)...)
	nonce := dst[start : start+ns]
	if _, err := rand.Read(nonce); err != nil {
		return dst[:start], fmt.Errorf("nonce: %w", err)
	}
	return s.aead.Seal(dst, nonce, plain, nil), nil
}
