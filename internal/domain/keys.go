// Package domain holds the plain data model shared by every ratchetcore
// component: fixed-size key types, the registration bundle, the ratchet
// session state, and the wire envelope. It contains no behavior beyond
// trivial accessors — the protocol logic lives in internal/x3dh and
// internal/ratchet.
package domain

import "fmt"

// DHPublic is a Diffie-Hellman/KEM public key. For suite 1 this is an X25519
// point; future suites may use a different width, which is why callers
// should prefer Slice() over direct indexing where suite-agility matters.
type DHPublic [32]byte

// Slice returns k as a []byte.
func (k DHPublic) Slice() []byte { return k[:] }

// DHPrivate is a Diffie-Hellman/KEM private key (scalar for suite 1).
type DHPrivate [32]byte

// Slice returns k as a []byte.
func (k DHPrivate) Slice() []byte { return k[:] }

// SigPublic is a signature verification key (Ed25519 for suite 1).
type SigPublic [32]byte

// Slice returns k as a []byte.
func (k SigPublic) Slice() []byte { return k[:] }

// SigPrivate is a signature signing key (Ed25519 for suite 1).
type SigPrivate [64]byte

// Slice returns k as a []byte.
func (k SigPrivate) Slice() []byte { return k[:] }

// MustDHPublic builds a DHPublic from b, panicking if b is the wrong length.
// It exists for call sites that have already validated lengths (wire
// decoding validates explicitly and returns an error instead).
func MustDHPublic(b []byte) DHPublic {
	if len(b) != 32 {
		panic(fmt.Errorf("domain: DH public key: want 32 bytes, got %d", len(b)))
	}
	var out DHPublic
	copy(out[:], b)
	return out
}

// MustDHPrivate builds a DHPrivate from b, panicking if b is the wrong length.
func MustDHPrivate(b []byte) DHPrivate {
	if len(b) != 32 {
		panic(fmt.Errorf("domain: DH private key: want 32 bytes, got %d", len(b)))
	}
	var out DHPrivate
	copy(out[:], b)
	return out
}

// MustSigPublic builds a SigPublic from b, panicking if b is the wrong length.
func MustSigPublic(b []byte) SigPublic {
	if len(b) != 32 {
		panic(fmt.Errorf("domain: signature public key: want 32 bytes, got %d", len(b)))
	}
	var out SigPublic
	copy(out[:], b)
	return out
}

// MustSigPrivate builds a SigPrivate from b, panicking if b is the wrong length.
func MustSigPrivate(b []byte) SigPrivate {
	if len(b) != 64 {
		panic(fmt.Errorf("domain: signature private key: want 64 bytes, got %d", len(b)))
	}
	var out SigPrivate
	copy(out[:], b)
	return out
}
