package hoststore

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const envelopeFormatVersion = 1

var errWrongPassphrase = errors.New("wrong passphrase or corrupted store file")

// envelope is the on-disk JSON structure holding ciphertext and the scrypt
// parameters used to derive its key, so a later read can reproduce the KEK
// even if the defaults change.
type envelope struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_n"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Cipher []byte `json:"cipher"`
}

func scryptParamsDefault() (N, r, p int) { return 1 << 15, 8, 1 }

// sealAtRest derives a key from passphrase and seals raw into a JSON blob.
// The nonce is all-zero: each call draws a fresh salt, so the scrypt-derived
// key is unique per blob and a zero nonce never repeats under the same key.
func sealAtRest(passphrase string, raw []byte) ([]byte, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	N, r, p := scryptParamsDefault()
	key, err := scrypt.Key([]byte(passphrase), salt[:], N, r, p, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	ct := aead.Seal(nil, nonce[:], raw, salt[:])

	return json.Marshal(envelope{V: envelopeFormatVersion, Salt: salt[:], N: N, R: r, P: p, Cipher: ct})
}

// openAtRest reverses sealAtRest.
func openAtRest(passphrase string, b []byte) ([]byte, error) {
	var e envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, err
	}
	if e.V > envelopeFormatVersion {
		return nil, fmt.Errorf("unsupported store envelope version %d", e.V)
	}
	key, err := scrypt.Key([]byte(passphrase), e.Salt, e.N, e.R, e.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	pt, err := aead.Open(nil, nonce[:], e.Cipher, e.Salt)
	if err != nil {
		return nil, errWrongPassphrase
	}
	return pt, nil
}
