// Package x3dh implements the Extended Triple Diffie-Hellman asynchronous
// key agreement of spec.md §4.3: an initiator holding a peer's registration
// bundle derives the same initial root key a responder later derives from
// the initiator's first message, without either party needing to be online
// at the same time.
package x3dh

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"ratchetcore/internal/domain"
	"ratchetcore/internal/errs"
	"ratchetcore/internal/suite"
	"ratchetcore/internal/wipe"
)

const rootKeyInfo = "x3dh"

// VerifySignedPreKey checks the registration bundle invariant of spec.md
// §3: verify(SIG_pub, SPK_pub, signature) must succeed.
func VerifySignedPreKey(s suite.Suite, sigPub domain.SigPublic, spkPub domain.DHPublic, signature []byte) bool {
	return s.Verify(sigPub, spkPub.Slice(), signature)
}

// InitiatorResult is what the initiator side of X3DH produces: the derived
// root key and the ephemeral keypair that seeds the Double Ratchet's first
// sending chain. EphemeralPriv is deliberately not wiped here — unlike the
// intermediate DH outputs, it becomes the session's DH_self_priv and the
// ratchet needs it to take its first DH step.
type InitiatorResult struct {
	RootKey       []byte
	EphemeralPriv domain.DHPrivate
	EphemeralPub  domain.DHPublic
}

// Initiate runs the initiator steps of spec.md §4.3. Callers must have
// already checked peerBundle.SuiteID against the local suite
// (errs.SuiteMismatch) and verified the bundle's signature
// (errs.BadSignature) before calling this.
func Initiate(
	s suite.Suite,
	ourIKPriv domain.DHPrivate,
	peerIKPub domain.DHPublic,
	peerSPKPub domain.DHPublic,
	peerOPKPub *domain.DHPublic,
) (InitiatorResult, error) {
	ephPriv, ephPub, err := s.GenerateKEMKeypair()
	if err != nil {
		return InitiatorResult{}, errs.Wrap(errs.InitializationFailed, "generate X3DH ephemeral key", err)
	}

	dh1, err := s.DH(ourIKPriv, peerSPKPub) // DH(IK_A, SPK_B)
	if err != nil {
		return InitiatorResult{}, err
	}
	dh2, err := s.DH(ephPriv, peerIKPub) // DH(EK_A, IK_B)
	if err != nil {
		return InitiatorResult{}, err
	}
	dh3, err := s.DH(ephPriv, peerSPKPub) // DH(EK_A, SPK_B)
	if err != nil {
		return InitiatorResult{}, err
	}

	transcript := make([]byte, 0, 32*4)
	transcript = append(transcript, dh1[:]...)
	transcript = append(transcript, dh2[:]...)
	transcript = append(transcript, dh3[:]...)
	wipe.Array32(&dh1)
	wipe.Array32(&dh2)
	wipe.Array32(&dh3)

	if peerOPKPub != nil {
		dh4, err := s.DH(ephPriv, *peerOPKPub) // DH(EK_A, OPK_B)
		if err != nil {
			return InitiatorResult{}, err
		}
		transcript = append(transcript, dh4[:]...)
		wipe.Array32(&dh4)
	}

	root, err := deriveRootKey(transcript)
	wipe.Bytes(transcript)
	if err != nil {
		return InitiatorResult{}, err
	}
	return InitiatorResult{RootKey: root, EphemeralPriv: ephPriv, EphemeralPub: ephPub}, nil
}

// Respond runs the responder steps of spec.md §4.3, from the initiator's
// identity public key and ephemeral public key (carried as the first
// envelope's dh_public_key). The DH values are computed with swapped
// private/public sides and land on the same shared values the initiator
// computed, per spec.md §4.3's note on the symmetric crossing.
func Respond(
	s suite.Suite,
	ourIKPriv domain.DHPrivate,
	ourSPKPriv domain.DHPrivate,
	peerIKPub domain.DHPublic,
	peerEphemeralPub domain.DHPublic,
	ourOPKPriv *domain.DHPrivate,
) ([]byte, error) {
	dh1, err := s.DH(ourSPKPriv, peerIKPub) // DH(SPK_B, IK_A) == DH(IK_A, SPK_B)
	if err != nil {
		return nil, err
	}
	dh2, err := s.DH(ourIKPriv, peerEphemeralPub) // DH(IK_B, EK_A) == DH(EK_A, IK_B)
	if err != nil {
		return nil, err
	}
	dh3, err := s.DH(ourSPKPriv, peerEphemeralPub) // DH(SPK_B, EK_A) == DH(EK_A, SPK_B)
	if err != nil {
		return nil, err
	}

	transcript := make([]byte, 0, 32*4)
	transcript = append(transcript, dh1[:]...)
	transcript = append(transcript, dh2[:]...)
	transcript = append(transcript, dh3[:]...)
	wipe.Array32(&dh1)
	wipe.Array32(&dh2)
	wipe.Array32(&dh3)

	if ourOPKPriv != nil {
		dh4, err := s.DH(*ourOPKPriv, peerEphemeralPub) // DH(OPK_B, EK_A) == DH(EK_A, OPK_B)
		if err != nil {
			return nil, err
		}
		transcript = append(transcript, dh4[:]...)
		wipe.Array32(&dh4)
	}

	root, err := deriveRootKey(transcript)
	wipe.Bytes(transcript)
	return root, err
}

func deriveRootKey(transcript []byte) ([]byte, error) {
	salt := make([]byte, sha256.Size)
	hk := hkdf.New(sha256.New, transcript, salt, []byte(rootKeyInfo))
	out := make([]byte, 32)
	if _, err := io.ReadFull(hk, out); err != nil {
		return nil, errs.Wrap(errs.InitializationFailed, "derive X3DH root key", err)
	}
	return out, nil
}
