package state

import (
	"crypto/ecdh"
	"crypto/rsa"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"

	"go.step.sm/crypto/pemutil"
)

// SigningPrivateKey is an RSA private key serialised as PEM text.
type SigningPrivateKey struct {
	*rsa.PrivateKey
}

// SessionPrivateKey is an X25519 private key serialised as base64 text.
type SessionPrivateKey struct {
	*ecdh.PrivateKey
}

func (k SigningPrivateKey) MarshalText() ([]byte, error) {
	if k.PrivateKey == nil {
		return nil, errors.New("signing key is empty")
	}
	block, err := pemutil.Serialize(k.PrivateKey)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(block), nil
}

func (k *SigningPrivateKey) UnmarshalText(text []byte) error {
	key, err := pemutil.ParseKey(text)
	if err != nil {
		return err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("%w: expected rsa private key, got %T", ErrWrongKeyType, key)
	}
	k.PrivateKey = rsaKey
	return nil
}

func (k SessionPrivateKey) MarshalText() ([]byte, error) {
	if k.PrivateKey == nil {
		return nil, errors.New("session key is empty")
	}
	return []byte(base64.StdEncoding.EncodeToString(k.Bytes())), nil
}

func (k *SessionPrivateKey) UnmarshalText(text []byte) error {
	data, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return err
	}
	key, err := ecdh.X25519().NewPrivateKey(data)
	if err != nil {
		return err
	}
	k.PrivateKey = key
	return nil
}
