package state

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIdentity(t *testing.T, name string) *Identity {
	id, err := GenerateIdentity(name, 1024)
	require.NoError(t, err)
	return id
}

func TestSessionKeyAgreement(t *testing.T) {
	a := testIdentity(t, "alice")
	b := testIdentity(t, "bob")

	ab, err := DeriveSessionKey(a.SessionKey, b.SessionKey.PublicKey())
	require.NoError(t, err)
	ba, err := DeriveSessionKey(b.SessionKey, a.SessionKey.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
	assert.Len(t, ab, 32)
}

func TestEncryptRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{7}, 32)
	for _, size := range []int{0, 1, 15, 16, 17, 1000} {
		plain := bytes.Repeat([]byte{byte(size)}, size)
		ct, err := Encrypt(key, plain)
		require.NoError(t, err)
		assert.Zero(t, len(ct)%16)
		out, err := Decrypt(key, ct)
		require.NoError(t, err)
		assert.Equal(t, plain, append([]byte{}, out...))
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	key := bytes.Repeat([]byte{1}, 32)
	_, err := Decrypt(key, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrShortMessage)

	ct, err := Encrypt(key, []byte("hello"))
	require.NoError(t, err)
	// flipping the last IV byte corrupts the padding of the only block
	ct[len(ct)-17] ^= 0xff
	_, err = Decrypt(key, ct)
	assert.ErrorIs(t, err, ErrBadPadding)
}

func TestSignVerify(t *testing.T) {
	a := testIdentity(t, "alice")
	sig, err := Sign(a.SigningKey, []byte("payload"))
	require.NoError(t, err)
	assert.NoError(t, Verify(&a.SigningKey.PublicKey, []byte("payload"), sig))
	assert.Error(t, Verify(&a.SigningKey.PublicKey, []byte("payloae"), sig))
	sig[0] ^= 1
	assert.Error(t, Verify(&a.SigningKey.PublicKey, []byte("payload"), sig))
}

func TestPublicKeyEncoding(t *testing.T) {
	a := testIdentity(t, "alice")
	der, err := MarshalSigningKey(&a.SigningKey.PublicKey)
	require.NoError(t, err)
	sk, err := ParseSigningKey(der)
	require.NoError(t, err)
	assert.True(t, sk.Equal(&a.SigningKey.PublicKey))

	der, err = MarshalSessionKey(a.SessionKey.PublicKey())
	require.NoError(t, err)
	pk, err := ParseSessionKey(der)
	require.NoError(t, err)
	assert.True(t, pk.Equal(a.SessionKey.PublicKey()))

	_, err = ParseSigningKey(der)
	assert.ErrorIs(t, err, ErrWrongKeyType)
}
