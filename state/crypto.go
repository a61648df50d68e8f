package state

import (
	"bytes"
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrBadPadding    = errors.New("invalid padding")
	ErrShortMessage  = errors.New("ciphertext too short")
	ErrWrongKeyType  = errors.New("wrong key type")
	sessionKeySalt   = []byte("lattice session salt")
	sessionKeyInfo   = []byte("lattice aes-256-cbc")
	sessionKeyLength = 32
)

func GenerateIdentity(username string, bits int) (*Identity, error) {
	signing, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, err
	}
	session, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Identity{
		Id:         NewNodeId(),
		Username:   username,
		SigningKey: signing,
		SessionKey: session,
	}, nil
}

// Sign produces an RSA PKCS#1 v1.5 signature over the SHA-256 digest of data.
func Sign(key *rsa.PrivateKey, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
}

func Verify(key *rsa.PublicKey, data, sig []byte) error {
	if key == nil {
		return errors.New("missing signing key")
	}
	digest := sha256.Sum256(data)
	return rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig)
}

// DeriveSessionKey agrees on a shared secret with X25519 and expands it into an
// AES-256 key. Both sides of a pair derive the same key.
func DeriveSessionKey(priv *ecdh.PrivateKey, pub *ecdh.PublicKey) ([]byte, error) {
	if priv == nil || pub == nil {
		return nil, errors.New("missing session key")
	}
	secret, err := priv.ECDH(pub)
	if err != nil {
		return nil, err
	}
	key := make([]byte, sessionKeyLength)
	_, err = io.ReadFull(hkdf.New(sha256.New, secret, sessionKeySalt, sessionKeyInfo), key)
	if err != nil {
		return nil, err
	}
	return key, nil
}

// Encrypt seals plaintext with AES-CBC and PKCS#7 padding. The random IV is
// prepended to the ciphertext.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	padLen := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append(bytes.Clone(plaintext), bytes.Repeat([]byte{byte(padLen)}, padLen)...)

	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	if _, err = rand.Read(iv); err != nil {
		return nil, err
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return out, nil
}

func Decrypt(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < 2*aes.BlockSize || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrShortMessage
	}
	iv, body := ciphertext[:aes.BlockSize], ciphertext[aes.BlockSize:]
	out := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, body)

	padLen := int(out[len(out)-1])
	if padLen == 0 || padLen > aes.BlockSize {
		return nil, ErrBadPadding
	}
	for _, b := range out[len(out)-padLen:] {
		if int(b) != padLen {
			return nil, ErrBadPadding
		}
	}
	return out[:len(out)-padLen], nil
}

// MarshalSigningKey encodes an RSA public key as X.509 PKIX DER.
func MarshalSigningKey(key *rsa.PublicKey) ([]byte, error) {
	if key == nil {
		return nil, errors.New("missing signing key")
	}
	return x509.MarshalPKIXPublicKey(key)
}

func ParseSigningKey(der []byte) (*rsa.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: expected rsa, got %T", ErrWrongKeyType, key)
	}
	return rsaKey, nil
}

// MarshalSessionKey encodes an X25519 public key as X.509 PKIX DER.
func MarshalSessionKey(key *ecdh.PublicKey) ([]byte, error) {
	if key == nil {
		return nil, errors.New("missing session key")
	}
	return x509.MarshalPKIXPublicKey(key)
}

func ParseSessionKey(der []byte) (*ecdh.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	ecKey, ok := key.(*ecdh.PublicKey)
	if !ok || ecKey.Curve() != ecdh.X25519() {
		return nil, fmt.Errorf("%w: expected x25519, got %T", ErrWrongKeyType, key)
	}
	return ecKey, nil
}
