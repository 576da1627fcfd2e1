package keystore

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"github.com/ashita-ai/renraku/internal/codec"
)

// KeyPair is a Curve25519 key pair. The bytes are opaque to this layer;
// the protocol stack performs all cryptographic operations.
type KeyPair struct {
	Private codec.Bytes `json:"private"`
	Public  codec.Bytes `json:"public"`
}

// SignedKeyPair is a pre-key pair with its identity-key signature. The
// signature is produced by the protocol stack during pairing; a freshly
// initialized credential set carries an empty one.
type SignedKeyPair struct {
	KeyPair   KeyPair     `json:"keyPair"`
	Signature codec.Bytes `json:"signature"`
	KeyID     uint32      `json:"keyId"`
}

// AccountSettings mirrors the remote account's sync preferences.
type AccountSettings struct {
	UnarchiveChats bool `json:"unarchiveChats"`
}

// Credentials is the authentication state persisted under the "creds" key.
// Loss or corruption of this record invalidates the whole session.
type Credentials struct {
	NoiseKey                KeyPair         `json:"noiseKey"`
	PairingEphemeralKeyPair KeyPair         `json:"pairingEphemeralKeyPair"`
	SignedIdentityKey       KeyPair         `json:"signedIdentityKey"`
	SignedPreKey            SignedKeyPair   `json:"signedPreKey"`
	RegistrationID          uint32          `json:"registrationId"`
	AdvSecretKey            codec.Bytes     `json:"advSecretKey"`
	NextPreKeyID            uint32          `json:"nextPreKeyId"`
	FirstUnuploadedPreKeyID uint32          `json:"firstUnuploadedPreKeyId"`
	AccountSyncCounter      uint32          `json:"accountSyncCounter"`
	AccountSettings         AccountSettings `json:"accountSettings"`
	Registered              bool            `json:"registered"`
	Platform                string          `json:"platform,omitempty"`
}

func newKeyPair() (KeyPair, error) {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return KeyPair{}, fmt.Errorf("keystore: generate private key: %w", err)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, fmt.Errorf("keystore: derive public key: %w", err)
	}
	return KeyPair{Private: priv, Public: pub}, nil
}

// InitCredentials generates a fresh credential set for a tenant with no
// stored state. The protocol stack completes it during pairing.
func InitCredentials() (*Credentials, error) {
	noise, err := newKeyPair()
	if err != nil {
		return nil, err
	}
	pairing, err := newKeyPair()
	if err != nil {
		return nil, err
	}
	identity, err := newKeyPair()
	if err != nil {
		return nil, err
	}
	preKey, err := newKeyPair()
	if err != nil {
		return nil, err
	}

	advSecret := make([]byte, 32)
	if _, err := rand.Read(advSecret); err != nil {
		return nil, fmt.Errorf("keystore: generate adv secret: %w", err)
	}

	var regBuf [4]byte
	if _, err := rand.Read(regBuf[:]); err != nil {
		return nil, fmt.Errorf("keystore: generate registration id: %w", err)
	}
	// Registration IDs occupy the 14-bit range [1, 16380].
	registrationID := binary.BigEndian.Uint32(regBuf[:])%16380 + 1

	return &Credentials{
		NoiseKey:                noise,
		PairingEphemeralKeyPair: pairing,
		SignedIdentityKey:       identity,
		SignedPreKey:            SignedKeyPair{KeyPair: preKey, KeyID: 1},
		RegistrationID:          registrationID,
		AdvSecretKey:            advSecret,
		NextPreKeyID:            1,
		FirstUnuploadedPreKeyID: 1,
		AccountSettings:         AccountSettings{UnarchiveChats: false},
	}, nil
}
