// Package identity implements component 2 of spec.md: the long-term
// identity keypair, the signed-prekey lifecycle (rotation with bounded
// retention of prior generations), optional one-time prekeys, and
// registration bundle export.
package identity

import (
	"sync"

	"ratchetcore/internal/domain"
	"ratchetcore/internal/errs"
	"ratchetcore/internal/suite"
)

// DefaultRetainedSignedPreKeys is spec.md §3's default K: how many prior
// signed prekey generations stay available for in-flight handshakes after
// a rotation.
const DefaultRetainedSignedPreKeys = 2

// Store holds one user's identity and prekey material. It is safe for
// concurrent use; RotateSignedPreKey does not disturb any live Double
// Ratchet session, per spec.md §4.2.
type Store struct {
	suite suite.Suite
	mu    sync.Mutex

	identity domain.Identity

	current  domain.SignedPreKey
	archived []domain.SignedPreKey // most recent first; bounded to `retain`
	retain   int

	oneTime   map[domain.OneTimePreKeyID]domain.OneTimePreKeyPair
	nextOPKID domain.OneTimePreKeyID
}

// New generates a fresh identity (IK, SIG) and an initial signed prekey,
// signed under SIG_priv. Keygen or signing failure is fatal
// (errs.InitializationFailed): the host must reinitialize.
func New(s suite.Suite, retainedSignedPreKeys int) (*Store, error) {
	if retainedSignedPreKeys <= 0 {
		retainedSignedPreKeys = DefaultRetainedSignedPreKeys
	}
	ikPriv, ikPub, err := s.GenerateKEMKeypair()
	if err != nil {
		return nil, errs.Wrap(errs.InitializationFailed, "generate identity key", err)
	}
	sigPriv, sigPub, err := s.GenerateSigKeypair()
	if err != nil {
		return nil, errs.Wrap(errs.InitializationFailed, "generate signing key", err)
	}

	st := &Store{
		suite:   s,
		retain:  retainedSignedPreKeys,
		oneTime: make(map[domain.OneTimePreKeyID]domain.OneTimePreKeyPair),
		identity: domain.Identity{
			IKPriv:  ikPriv,
			IKPub:   ikPub,
			SIGPriv: sigPriv,
			SIGPub:  sigPub,
		},
	}

	spk, err := st.generateSignedPreKey(1)
	if err != nil {
		return nil, err
	}
	st.current = spk
	return st, nil
}

func (s *Store) generateSignedPreKey(id domain.SignedPreKeyID) (domain.SignedPreKey, error) {
	priv, pub, err := s.suite.GenerateKEMKeypair()
	if err != nil {
		return domain.SignedPreKey{}, errs.Wrap(errs.InitializationFailed, "generate signed prekey", err)
	}
	sig := s.suite.Sign(s.identity.SIGPriv, pub.Slice())
	return domain.SignedPreKey{ID: id, Priv: priv, Pub: pub, Signature: sig}, nil
}

// RotateSignedPreKey generates a fresh signed prekey, signs it, and
// archives the previous one (retaining the last `retain` generations so
// in-flight handshakes targeting them still complete). It never mutates a
// live session.
func (s *Store) RotateSignedPreKey() (domain.SignedPreKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.generateSignedPreKey(s.current.ID + 1)
	if err != nil {
		return domain.SignedPreKey{}, err
	}

	s.archived = append([]domain.SignedPreKey{s.current}, s.archived...)
	if len(s.archived) > s.retain {
		s.archived = s.archived[:s.retain]
	}
	s.current = next
	return s.current, nil
}

// ExportBundle assembles the registration bundle. It never fails for a
// well-formed identity, per spec.md §4.2.
func (s *Store) ExportBundle() domain.Bundle {
	s.mu.Lock()
	defer s.mu.Unlock()

	otks := make([]domain.OneTimePreKeyPublic, 0, len(s.oneTime))
	for _, p := range s.oneTime {
		otks = append(otks, domain.OneTimePreKeyPublic{ID: p.ID, Pub: p.Pub})
	}

	return domain.Bundle{
		SuiteID:        s.suite.ID(),
		IKPub:          s.identity.IKPub,
		SPKID:          s.current.ID,
		SPKPub:         s.current.Pub,
		SPKSignature:   append([]byte(nil), s.current.Signature...),
		SIGPub:         s.identity.SIGPub,
		OneTimePreKeys: otks,
	}
}

// Identity returns the long-term keypair. The identity's private halves are
// the references the X3DH handshake needs (spec.md §4.2's
// identity_for_handshake).
func (s *Store) Identity() domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// CurrentSignedPreKey returns the active signed prekey generation, the one
// advertised in the most recently exported bundle.
func (s *Store) CurrentSignedPreKey() domain.SignedPreKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SignedPreKeyByID looks up a signed prekey generation by ID, among the
// current one and the retained archive, for the responder path: an
// initiator's handshake may target a generation that has since rotated out
// as "current".
func (s *Store) SignedPreKeyByID(id domain.SignedPreKeyID) (domain.SignedPreKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.ID == id {
		return s.current, true
	}
	for _, spk := range s.archived {
		if spk.ID == id {
			return spk, true
		}
	}
	return domain.SignedPreKey{}, false
}

// GenerateOneTimePreKeys creates n fresh one-time prekeys, stores the
// private halves, and returns the public halves for bundling.
func (s *Store) GenerateOneTimePreKeys(n int) ([]domain.OneTimePreKeyPublic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.OneTimePreKeyPublic, 0, n)
	for i := 0; i < n; i++ {
		priv, pub, err := s.suite.GenerateKEMKeypair()
		if err != nil {
			return nil, errs.Wrap(errs.InitializationFailed, "generate one-time prekey", err)
		}
		s.nextOPKID++
		id := s.nextOPKID
		s.oneTime[id] = domain.OneTimePreKeyPair{ID: id, Priv: priv, Pub: pub}
		out = append(out, domain.OneTimePreKeyPublic{ID: id, Pub: pub})
	}
	return out, nil
}

// RestoredIdentity is the persisted identity material a host reloads to
// reconstruct a Store across restarts (internal/hoststore's identity file).
type RestoredIdentity struct {
	Identity  domain.Identity
	Current   domain.SignedPreKey
	Archived  []domain.SignedPreKey
	OneTime   []domain.OneTimePreKeyPair
	NextOPKID domain.OneTimePreKeyID
	Retain    int
}

// Export snapshots everything a host needs to rebuild this Store later.
func (s *Store) Export() RestoredIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()

	ot := make([]domain.OneTimePreKeyPair, 0, len(s.oneTime))
	for _, p := range s.oneTime {
		ot = append(ot, p)
	}
	return RestoredIdentity{
		Identity:  s.identity,
		Current:   s.current,
		Archived:  append([]domain.SignedPreKey(nil), s.archived...),
		OneTime:   ot,
		NextOPKID: s.nextOPKID,
		Retain:    s.retain,
	}
}

// Restore rebuilds a Store from previously exported material.
func Restore(s suite.Suite, r RestoredIdentity) *Store {
	retain := r.Retain
	if retain <= 0 {
		retain = DefaultRetainedSignedPreKeys
	}
	oneTime := make(map[domain.OneTimePreKeyID]domain.OneTimePreKeyPair, len(r.OneTime))
	for _, p := range r.OneTime {
		oneTime[p.ID] = p
	}
	return &Store{
		suite:     s,
		identity:  r.Identity,
		current:   r.Current,
		archived:  append([]domain.SignedPreKey(nil), r.Archived...),
		retain:    retain,
		oneTime:   oneTime,
		nextOPKID: r.NextOPKID,
	}
}

// ConsumeOneTimePreKey removes and returns the one-time prekey pair for id,
// so it can never be reused. Returns ok=false if id is unknown (already
// consumed, or never issued).
func (s *Store) ConsumeOneTimePreKey(id domain.OneTimePreKeyID) (domain.OneTimePreKeyPair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.oneTime[id]
	if !ok {
		return domain.OneTimePreKeyPair{}, false
	}
	delete(s.oneTime, id)
	return p, true
}
