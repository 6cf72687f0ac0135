// Package ratchet implements component 4 of spec.md: the per-peer Double
// Ratchet session — root chain, sending/receiving chains, DH ratchet step,
// and the skipped-message-key cache for out-of-order delivery.
package ratchet

import (
	"encoding/binary"
	"sync"

	"ratchetcore/internal/domain"
	"ratchetcore/internal/errs"
	"ratchetcore/internal/suite"
	"ratchetcore/internal/wipe"
)

// DefaultMaxSkippedKeys is spec.md §3/§9's MAX_SKIP default.
const DefaultMaxSkippedKeys = 1000

// Session is one peer's Double Ratchet state, serialized behind its own
// mutex per spec.md §5: encrypt, decrypt, the DH ratchet step and
// skipped-key eviction never interleave on the same session.
type Session struct {
	mu      sync.Mutex
	suite   suite.Suite
	maxSkip int
	state   domain.SessionState
}

// NewInitiator implements spec.md §4.4.1's initiator initialization: the
// session's first DH ratchet step is taken immediately against the peer's
// signed prekey, seeding the sending chain. The caller supplies the
// ephemeral keypair and root key X3DH produced.
func NewInitiator(
	s suite.Suite,
	contactID string,
	initialRootKey []byte,
	peerSPKPub domain.DHPublic,
	ekPriv domain.DHPrivate,
	ekPub domain.DHPublic,
	maxSkip int,
) (*Session, error) {
	if maxSkip <= 0 {
		maxSkip = DefaultMaxSkippedKeys
	}

	dhOut, err := s.DH(ekPriv, peerSPKPub)
	if err != nil {
		return nil, err
	}
	rootKey, chainKey := s.KDFRootKey(initialRootKey, dhOut[:])
	wipe.Array32(&dhOut)

	return &Session{
		suite:   s,
		maxSkip: maxSkip,
		state: domain.SessionState{
			SuiteID:     s.ID(),
			ContactID:   contactID,
			RootKey:     rootKey,
			Sending:     domain.ChainState{Key: chainKey, Counter: 0},
			HasSending:  true,
			DHSelfPriv:  ekPriv,
			DHSelfPub:   ekPub,
			DHRemotePub: peerSPKPub,
			HasRemote:   true,
			Skipped:     make(map[domain.SkippedKeyID][]byte),
		},
	}, nil
}

// NewResponder implements spec.md §4.4.1's responder initialization fused
// with §4.4.4's first-message handling: the responder reuses its signed
// prekey as the first ratchet private key, derives the receiving chain, and
// decrypts the first envelope atomically. If decryption fails, no session
// is returned — the caller must not register one.
func NewResponder(
	s suite.Suite,
	contactID string,
	initialRootKey []byte,
	localSPKPriv domain.DHPrivate,
	localSPKPub domain.DHPublic,
	firstEnvelope domain.Envelope,
	maxSkip int,
) (*Session, []byte, error) {
	if maxSkip <= 0 {
		maxSkip = DefaultMaxSkippedKeys
	}
	if firstEnvelope.SuiteID != s.ID() {
		return nil, nil, errs.New(errs.SuiteMismatch, "first envelope suite does not match local suite")
	}

	dhOut, err := s.DH(localSPKPriv, firstEnvelope.DHPublicKey)
	if err != nil {
		return nil, nil, err
	}
	rootKey, chainKey := s.KDFRootKey(initialRootKey, dhOut[:])
	wipe.Array32(&dhOut)

	sess := &Session{
		suite:   s,
		maxSkip: maxSkip,
		state: domain.SessionState{
			SuiteID:      s.ID(),
			ContactID:    contactID,
			RootKey:      rootKey,
			Receiving:    domain.ChainState{Key: chainKey, Counter: 0},
			HasReceiving: true,
			DHSelfPriv:   localSPKPriv,
			DHSelfPub:    localSPKPub,
			DHRemotePub:  firstEnvelope.DHPublicKey,
			HasRemote:    true,
			Skipped:      make(map[domain.SkippedKeyID][]byte),
		},
	}

	pt, err := sess.Decrypt(firstEnvelope)
	if err != nil {
		return nil, nil, err
	}
	return sess, pt, nil
}

// ContactID is the opaque peer label the host supplied at session creation.
func (s *Session) ContactID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ContactID
}

// SuiteID is the suite this session was created under; immutable for its
// life, per spec.md §3.
func (s *Session) SuiteID() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SuiteID
}

// State returns a copy of the session's persistable state, for the host
// export/import mirror of spec.md §6.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyState(s.state)
}

// Restore rebuilds a Session from previously exported state, for the host
// import path of spec.md §6.
func Restore(s suite.Suite, state domain.SessionState, maxSkip int) *Session {
	if maxSkip <= 0 {
		maxSkip = DefaultMaxSkippedKeys
	}
	st := copyState(state)
	if st.Skipped == nil {
		st.Skipped = make(map[domain.SkippedKeyID][]byte)
	}
	return &Session{suite: s, maxSkip: maxSkip, state: st}
}

func copyState(st domain.SessionState) domain.SessionState {
	out := st
	if st.Sending.Key != nil {
		out.Sending.Key = append([]byte(nil), st.Sending.Key...)
	}
	if st.Receiving.Key != nil {
		out.Receiving.Key = append([]byte(nil), st.Receiving.Key...)
	}
	out.RootKey = append([]byte(nil), st.RootKey...)
	out.Skipped = make(map[domain.SkippedKeyID][]byte, len(st.Skipped))
	for k, v := range st.Skipped {
		out.Skipped[k] = append([]byte(nil), v...)
	}
	return out
}

// Encrypt implements spec.md §4.4.2. A responder session constructed via
// NewResponder has no sending chain yet (spec.md §4.4.1 only seeds its
// receiving chain); the first call to Encrypt on such a session takes a
// local DH ratchet step against the last observed DH_remote_pub to create
// one, exactly as scenario 1 of spec.md §8 requires ("B encrypts 'hi' →
// e2 (new dh_public_key, message_number=0, previous_chain_length=0)").
// Everything here is staged into locals and only committed after
// aead_seal succeeds.
func (s *Session) Encrypt(plaintext []byte) (domain.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dhSelfPriv := s.state.DHSelfPriv
	dhSelfPub := s.state.DHSelfPub
	rootKey := s.state.RootKey
	sending := s.state.Sending
	pn := s.state.PreviousChainLength

	if !s.state.HasSending {
		if !s.state.HasRemote {
			return domain.Envelope{}, errs.New(errs.InitializationFailed, "session has no peer ratchet key to send to yet")
		}
		freshPriv, freshPub, err := s.suite.GenerateKEMKeypair()
		if err != nil {
			return domain.Envelope{}, err
		}
		dhOut, err := s.suite.DH(freshPriv, s.state.DHRemotePub)
		if err != nil {
			return domain.Envelope{}, err
		}
		newRoot, chainKey := s.suite.KDFRootKey(rootKey, dhOut[:])
		wipe.Array32(&dhOut)

		dhSelfPriv, dhSelfPub = freshPriv, freshPub
		rootKey = newRoot
		sending = domain.ChainState{Key: chainKey, Counter: 0}
		pn = 0
	}

	nextCK, mk := s.suite.KDFChainKey(sending.Key)
	encKey, nonce := s.suite.KDFMessageKey(mk)

	num := sending.Counter
	aad := buildAAD(s.state.SuiteID, dhSelfPub, pn, num)

	ct, err := s.suite.AEADSeal(encKey, nonce, plaintext, aad)
	wipe.Bytes(mk)
	wipe.Bytes(encKey)
	if err != nil {
		return domain.Envelope{}, err
	}

	sending.Key = nextCK
	sending.Counter++

	s.state.DHSelfPriv = dhSelfPriv
	s.state.DHSelfPub = dhSelfPub
	s.state.RootKey = rootKey
	s.state.Sending = sending
	s.state.HasSending = true
	s.state.PreviousChainLength = pn

	return domain.Envelope{
		SuiteID:             s.state.SuiteID,
		DHPublicKey:         dhSelfPub,
		PreviousChainLength: pn,
		MessageNumber:       num,
		Nonce:               nonce,
		CiphertextWithTag:   ct,
	}, nil
}

// Decrypt implements spec.md §4.4.3. A speculative DH ratchet step is
// computed into local copies and only written into the session's state
// after aead_open succeeds, per spec.md §7/§9's journal-then-commit
// requirement.
func (s *Session) Decrypt(e domain.Envelope) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.SuiteID != s.state.SuiteID {
		return nil, errs.New(errs.SuiteMismatch, "envelope suite does not match session suite")
	}

	skipKey := domain.SkippedKeyID{DHPub: e.DHPublicKey, Number: e.MessageNumber}
	if mk, ok := s.state.Skipped[skipKey]; ok {
		pt, err := s.openWithMessageKey(mk, e)
		if err != nil {
			return nil, err
		}
		delete(s.state.Skipped, skipKey)
		wipe.Bytes(mk)
		return pt, nil
	}

	receiving := s.state.Receiving
	sending := s.state.Sending
	hasSending := s.state.HasSending
	hasReceiving := s.state.HasReceiving
	rootKey := s.state.RootKey
	dhSelfPriv := s.state.DHSelfPriv
	dhSelfPub := s.state.DHSelfPub
	dhRemotePub := s.state.DHRemotePub
	pn := s.state.PreviousChainLength
	pending := make(map[domain.SkippedKeyID][]byte)

	if !s.state.HasRemote || e.DHPublicKey != dhRemotePub {
		if hasReceiving {
			if err := skipMessageKeys(s.suite, &receiving, e.PreviousChainLength, dhRemotePub, pending, s.maxSkip, len(s.state.Skipped)); err != nil {
				return nil, err
			}
		}

		if hasSending {
			pn = sending.Counter
		}
		sending = domain.ChainState{}
		hasSending = false

		dhRemotePub = e.DHPublicKey

		dhOut1, err := s.suite.DH(dhSelfPriv, dhRemotePub)
		if err != nil {
			return nil, err
		}
		newRoot, recvChainKey := s.suite.KDFRootKey(rootKey, dhOut1[:])
		wipe.Array32(&dhOut1)
		receiving = domain.ChainState{Key: recvChainKey, Counter: 0}
		hasReceiving = true
		rootKey = newRoot

		freshPriv, freshPub, err := s.suite.GenerateKEMKeypair()
		if err != nil {
			return nil, err
		}
		dhSelfPriv, dhSelfPub = freshPriv, freshPub

		dhOut2, err := s.suite.DH(dhSelfPriv, dhRemotePub)
		if err != nil {
			return nil, err
		}
		newRoot2, sendChainKey := s.suite.KDFRootKey(rootKey, dhOut2[:])
		wipe.Array32(&dhOut2)
		rootKey = newRoot2
		sending = domain.ChainState{Key: sendChainKey, Counter: 0}
		hasSending = true
	}

	if err := skipMessageKeys(s.suite, &receiving, e.MessageNumber, dhRemotePub, pending, s.maxSkip, len(s.state.Skipped)); err != nil {
		return nil, err
	}

	nextCK, mk := s.suite.KDFChainKey(receiving.Key)
	receiving.Key = nextCK
	receiving.Counter++

	encKey, nonce := s.suite.KDFMessageKey(mk)
	aad := buildAAD(s.state.SuiteID, e.DHPublicKey, e.PreviousChainLength, e.MessageNumber)
	pt, err := s.suite.AEADOpen(encKey, e.Nonce, e.CiphertextWithTag, aad)
	wipe.Bytes(mk)
	wipe.Bytes(encKey)
	if err != nil {
		return nil, err
	}

	// Commit: nothing above this line has touched s.state.
	s.state.Receiving = receiving
	s.state.HasReceiving = hasReceiving
	s.state.Sending = sending
	s.state.HasSending = hasSending
	s.state.RootKey = rootKey
	s.state.DHSelfPriv = dhSelfPriv
	s.state.DHSelfPub = dhSelfPub
	s.state.DHRemotePub = dhRemotePub
	s.state.HasRemote = true
	s.state.PreviousChainLength = pn
	for k, v := range pending {
		s.state.Skipped[k] = v
	}

	return pt, nil
}

func (s *Session) openWithMessageKey(mk []byte, e domain.Envelope) ([]byte, error) {
	encKey, nonce := s.suite.KDFMessageKey(mk)
	aad := buildAAD(s.state.SuiteID, e.DHPublicKey, e.PreviousChainLength, e.MessageNumber)
	pt, err := s.suite.AEADOpen(encKey, e.Nonce, e.CiphertextWithTag, aad)
	wipe.Bytes(encKey)
	return pt, err
}

// skipMessageKeys advances chain one step at a time up to (but not
// including) `until`, stashing each derived message key into dest keyed by
// (dhPub, counter), per spec.md §4.4.3's skip_message_keys. alreadyStored
// is the number of skipped keys already committed or staged elsewhere, so
// MAX_SKIP is enforced over the whole pending batch.
func skipMessageKeys(s suite.Suite, chain *domain.ChainState, until uint32, dhPub domain.DHPublic, dest map[domain.SkippedKeyID][]byte, maxSkip, alreadyStored int) error {
	if chain.Key == nil {
		chain.Counter = until
		return nil
	}
	for chain.Counter < until {
		if alreadyStored+len(dest) >= maxSkip {
			return errs.New(errs.TooManySkipped, "skipped-key cache would exceed MAX_SKIP")
		}
		nextCK, mk := s.KDFChainKey(chain.Key)
		dest[domain.SkippedKeyID{DHPub: dhPub, Number: chain.Counter}] = mk
		chain.Key = nextCK
		chain.Counter++
	}
	return nil
}

func buildAAD(suiteID uint16, dhPub domain.DHPublic, pn, num uint32) []byte {
	buf := make([]byte, 2+32+4+4)
	binary.BigEndian.PutUint16(buf[0:2], suiteID)
	copy(buf[2:34], dhPub[:])
	binary.BigEndian.PutUint32(buf[34:38], pn)
	binary.BigEndian.PutUint32(buf[38:42], num)
	return buf
}
