package suite

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"ratchetcore/internal/domain"
	"ratchetcore/internal/errs"
)

// ClassicID is the suite_id for the classic X25519/Ed25519/ChaCha20-
// Poly1305/HKDF-SHA256 suite.
const ClassicID uint16 = 1

var msgKeyConstant = []byte{0x01}
var chainKeyConstant = []byte{0x02}

// Classic implements Suite with X25519, Ed25519, ChaCha20-Poly1305 and
// HKDF-SHA256, matching the teacher's internal/crypto package primitive for
// primitive.
type Classic struct{}

var _ Suite = Classic{}

// NewClassic returns the suite_id = 1 implementation.
func NewClassic() Classic { return Classic{} }

func (Classic) ID() uint16 { return ClassicID }

func (Classic) GenerateKEMKeypair() (priv domain.DHPrivate, pub domain.DHPublic, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return priv, pub, errs.Wrap(errs.InitializationFailed, "generate X25519 private key", err)
	}
	clamp(&priv)
	pubBytes, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return priv, pub, errs.Wrap(errs.InitializationFailed, "derive X25519 public key", err)
	}
	copy(pub[:], pubBytes)
	return priv, pub, nil
}

func (Classic) DH(priv domain.DHPrivate, pub domain.DHPublic) (shared [32]byte, err error) {
	out, err := curve25519.X25519(priv[:], pub[:])
	if err != nil {
		return shared, errs.Wrap(errs.InvalidKeyData, "X25519 agreement failed", err)
	}
	copy(shared[:], out)
	if isAllZero(shared[:]) {
		return shared, errs.New(errs.InvalidKeyData, "X25519 agreement produced all-zero output")
	}
	return shared, nil
}

func (Classic) GenerateSigKeypair() (priv domain.SigPrivate, pub domain.SigPublic, err error) {
	edPub, edPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return priv, pub, errs.Wrap(errs.InitializationFailed, "generate Ed25519 keypair", err)
	}
	copy(priv[:], edPriv)
	copy(pub[:], edPub)
	return priv, pub, nil
}

func (Classic) Sign(priv domain.SigPrivate, msg []byte) []byte {
	return ed25519.Sign(ed25519.PrivateKey(priv[:]), msg)
}

func (Classic) Verify(pub domain.SigPublic, msg, sig []byte) bool {
	// ed25519.Verify's accept path does not branch on secret data; it is
	// the constant-time behavior spec.md §4.1 requires.
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig)
}

func (Classic) AEADSeal(key, nonce, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidKeyData, "construct AEAD cipher", err)
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

func (Classic) AEADOpen(key, nonce, ct, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidKeyData, "construct AEAD cipher", err)
	}
	pt, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		// No further detail is surfaced: spec.md §7 forbids distinguishing
		// wrong key from corrupt ciphertext.
		return nil, errs.New(errs.DecryptionFailed, "AEAD authentication failed")
	}
	return pt, nil
}

func (Classic) KDFRootKey(rootKey, dhOut []byte) (newRootKey, chainKey []byte) {
	hk := hkdf.New(sha256.New, dhOut, rootKey, []byte("root"))
	out := make([]byte, 64)
	if _, err := io.ReadFull(hk, out); err != nil {
		panic(err) // hkdf.Read from a keyed stream cannot fail short of exhaustion
	}
	return out[:32], out[32:64]
}

func (Classic) KDFChainKey(chainKey []byte) (nextChainKey, messageKey []byte) {
	messageKey = hmacSum(chainKey, msgKeyConstant)
	nextChainKey = hmacSum(chainKey, chainKeyConstant)
	return nextChainKey, messageKey
}

func (Classic) KDFMessageKey(messageKey []byte) (encKey, nonce []byte) {
	hk := hkdf.New(sha256.New, messageKey, nil, []byte("msg"))
	out := make([]byte, 44)
	if _, err := io.ReadFull(hk, out); err != nil {
		panic(err)
	}
	return out[:32], out[32:44]
}

func (Classic) NonceSize() int { return chacha20poly1305.NonceSize }
func (Classic) KeySize() int   { return chacha20poly1305.KeySize }

func hmacSum(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func clamp(k *domain.DHPrivate) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}

func isAllZero(b []byte) bool {
	var v byte
	for _, c := range b {
		v |= c
	}
	return v == 0
}
