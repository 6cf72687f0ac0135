// Package suite defines the crypto primitive vtable the rest of
// ratchetcore calls through, and the classic (suite_id = 1) implementation:
// X25519 + Ed25519 + ChaCha20-Poly1305 + HKDF-SHA256. A future hybrid
// post-quantum suite is a drop-in Suite implementation registered under a
// new suite_id; nothing above this package needs to change.
package suite

import "ratchetcore/internal/domain"

// Suite is the record of operations spec.md §4.1 calls a "crypto suite":
// KEM/DH keygen and agreement, signature sign/verify, AEAD seal/open, and
// the three ratchet KDFs. All randomness used by an implementation flows
// through it, so a host can substitute a deterministic source in tests.
type Suite interface {
	// ID is this suite's wire identifier (suite_id).
	ID() uint16

	// GenerateKEMKeypair returns a fresh Diffie-Hellman/KEM keypair.
	GenerateKEMKeypair() (priv domain.DHPrivate, pub domain.DHPublic, err error)

	// DH performs a Diffie-Hellman agreement, rejecting a degenerate
	// (all-zero) result with errs.InvalidKeyData.
	DH(priv domain.DHPrivate, pub domain.DHPublic) (shared [32]byte, err error)

	// GenerateSigKeypair returns a fresh signature keypair.
	GenerateSigKeypair() (priv domain.SigPrivate, pub domain.SigPublic, err error)

	// Sign signs msg with priv.
	Sign(priv domain.SigPrivate, msg []byte) []byte

	// Verify reports whether sig is a valid signature over msg by pub. The
	// accept path must be constant-time.
	Verify(pub domain.SigPublic, msg, sig []byte) bool

	// AEADSeal encrypts plaintext under key/nonce/aad, appending the tag.
	AEADSeal(key, nonce, plaintext, aad []byte) ([]byte, error)

	// AEADOpen authenticates and decrypts ct, returning
	// errs.DecryptionFailed on any authentication failure.
	AEADOpen(key, nonce, ct, aad []byte) ([]byte, error)

	// KDFRootKey derives the next root key and chain key from the current
	// root key and a fresh DH output (spec.md's kdf_rk).
	KDFRootKey(rootKey, dhOut []byte) (newRootKey, chainKey []byte)

	// KDFChainKey advances a chain key one step, returning the next chain
	// key and the message key derived at this step (spec.md's kdf_ck).
	KDFChainKey(chainKey []byte) (nextChainKey, messageKey []byte)

	// KDFMessageKey expands a message key into an AEAD key and nonce
	// (spec.md's kdf_mk).
	KDFMessageKey(messageKey []byte) (encKey, nonce []byte)

	// NonceSize is the AEAD nonce length this suite uses.
	NonceSize() int

	// KeySize is the symmetric key length this suite uses (root key, chain
	// key, message key, AEAD key all share this width for suite 1).
	KeySize() int
}
