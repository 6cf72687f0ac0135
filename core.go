package ratchetcore

import (
	"sync"

	"github.com/google/uuid"

	"ratchetcore/internal/domain"
	"ratchetcore/internal/errs"
	"ratchetcore/internal/identity"
	"ratchetcore/internal/ratchet"
	"ratchetcore/internal/suite"
	"ratchetcore/internal/wire"
	"ratchetcore/internal/x3dh"
)

// Handle is an opaque, stable session identifier suitable for cross-FFI use
// (spec.md §4.5/§9's "handle-based registry across FFI").
type Handle = uuid.UUID

// Config carries the construction-time policy inputs spec.md §9 leaves as
// Open Questions for the host to decide.
type Config struct {
	// MaxSkippedKeys bounds the skipped-message-key cache per session
	// (spec.md §3/§9's MAX_SKIP). Zero means ratchet.DefaultMaxSkippedKeys.
	MaxSkippedKeys int
	// RetainedSignedPreKeys is how many prior signed-prekey generations
	// stay available for in-flight handshakes after a rotation (spec.md
	// §3's K). Zero means identity.DefaultRetainedSignedPreKeys.
	RetainedSignedPreKeys int
}

// Core owns one user's identity and every session keyed by opaque handle,
// per spec.md §4.5. All session lookups and the contact index are guarded
// by mu; each Session additionally serializes its own encrypt/decrypt/
// ratchet operations (spec.md §5).
type Core struct {
	suite    suite.Suite
	identity *identity.Store
	cfg      Config

	mu        sync.RWMutex
	sessions  map[Handle]*ratchet.Session
	byContact map[string]Handle
}

// CreateCore implements spec.md §6's create_core: construct identity +
// prekey + an empty session table. Keygen failure is InitializationFailed.
func CreateCore(s suite.Suite, cfg Config) (*Core, error) {
	idStore, err := identity.New(s, cfg.RetainedSignedPreKeys)
	if err != nil {
		return nil, err
	}
	return &Core{
		suite:     s,
		identity:  idStore,
		cfg:       cfg,
		sessions:  make(map[Handle]*ratchet.Session),
		byContact: make(map[string]Handle),
	}, nil
}

// RestoreCore rebuilds a Core from previously exported identity material,
// for a host's cross-restart persistence (internal/hoststore). Sessions are
// not restored here; re-import each one separately via ImportSession.
func RestoreCore(s suite.Suite, cfg Config, ri identity.RestoredIdentity) *Core {
	return &Core{
		suite:     s,
		identity:  identity.Restore(s, ri),
		cfg:       cfg,
		sessions:  make(map[Handle]*ratchet.Session),
		byContact: make(map[string]Handle),
	}
}

// ExportIdentity snapshots this Core's identity material for persistence.
func (c *Core) ExportIdentity() identity.RestoredIdentity {
	return c.identity.Export()
}

// IsInitiator implements the default tie-break rule of spec.md §4.3/§9: the
// party with the lexicographically smaller stable peer identifier acts as
// initiator. Hosts that persist or compute the tie-break differently should
// call InitSendingSession/InitReceivingSession directly instead.
func IsInitiator(localID, peerID string) bool {
	return localID < peerID
}

func (c *Core) maxSkip() int { return c.cfg.MaxSkippedKeys }

// IdentityPublicKey returns the long-term identity public key, stable
// across signed-prekey rotations — suitable for a host-side fingerprint
// display that should not change every time the prekey rotates.
func (c *Core) IdentityPublicKey() domain.DHPublic {
	return c.identity.Identity().IKPub
}

// ExportBundleStructured implements spec.md §6's export_bundle_structured:
// the canonical big-endian byte framing.
func (c *Core) ExportBundleStructured() []byte {
	return wire.EncodeBundle(c.identity.ExportBundle())
}

// ExportBundleText implements spec.md §6's export_bundle_text: the
// base64/named-dictionary framing, which also carries one-time prekeys.
func (c *Core) ExportBundleText() ([]byte, error) {
	return wire.EncodeBundleText(c.identity.ExportBundle())
}

// SignedPreKeyUpdate is rotate_signed_prekey's output: the new public half
// and its signature, never the private key.
type SignedPreKeyUpdate struct {
	ID        domain.SignedPreKeyID
	Pub       domain.DHPublic
	Signature []byte
}

// RotateSignedPreKey implements spec.md §4.5/§6's rotate_signed_prekey. It
// never disturbs a live session.
func (c *Core) RotateSignedPreKey() (SignedPreKeyUpdate, error) {
	spk, err := c.identity.RotateSignedPreKey()
	if err != nil {
		return SignedPreKeyUpdate{}, err
	}
	return SignedPreKeyUpdate{ID: spk.ID, Pub: spk.Pub, Signature: spk.Signature}, nil
}

// GenerateOneTimePreKeys tops up the bundle's one-time prekey supply
// (spec.md §9's implemented-extension decision; see internal/x3dh).
func (c *Core) GenerateOneTimePreKeys(n int) ([]domain.OneTimePreKeyPublic, error) {
	return c.identity.GenerateOneTimePreKeys(n)
}

// HasSession implements spec.md §6's has_session.
func (c *Core) HasSession(contactID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.byContact[contactID]
	return ok
}

// InitSendingSession implements spec.md §4.5/§6's init_sending_session, the
// initiator path: verify the peer's registration bundle, run X3DH, and
// seed a ratchet.Session. No session is registered on any failure.
func (c *Core) InitSendingSession(contactID string, peerBundleBytes []byte) (Handle, error) {
	peerBundle, err := wire.DecodeBundle(peerBundleBytes)
	if err != nil {
		return Handle{}, err
	}
	return c.initSendingSession(contactID, peerBundle)
}

func (c *Core) initSendingSession(contactID string, peerBundle domain.Bundle) (Handle, error) {
	if peerBundle.SuiteID != c.suite.ID() {
		return Handle{}, errs.New(errs.SuiteMismatch, "peer bundle suite does not match core suite")
	}
	if !x3dh.VerifySignedPreKey(c.suite, peerBundle.SIGPub, peerBundle.SPKPub, peerBundle.SPKSignature) {
		return Handle{}, errs.New(errs.BadSignature, "peer bundle signed prekey signature invalid")
	}

	var peerOPKPub *domain.DHPublic
	if len(peerBundle.OneTimePreKeys) > 0 {
		pub := peerBundle.OneTimePreKeys[0].Pub
		peerOPKPub = &pub
	}

	ourIdentity := c.identity.Identity()
	initiated, err := x3dh.Initiate(c.suite, ourIdentity.IKPriv, peerBundle.IKPub, peerBundle.SPKPub, peerOPKPub)
	if err != nil {
		return Handle{}, err
	}

	sess, err := ratchet.NewInitiator(c.suite, contactID, initiated.RootKey, peerBundle.SPKPub, initiated.EphemeralPriv, initiated.EphemeralPub, c.maxSkip())
	if err != nil {
		return Handle{}, err
	}

	return c.register(contactID, sess), nil
}

// InitReceivingSession implements spec.md §4.4.4/§4.5/§6's
// init_receiving_session: it atomically runs X3DH from the initiator's
// bundle and first envelope, constructs the responder session, and
// decrypts the first envelope. If any step fails, no session is
// registered. The responder's signed prekey is the core's currently
// active one: the façade does not carry an out-of-band signed-prekey
// generation identifier in the envelope, so a handshake targeting an
// already-rotated-out generation must be retried by the host against the
// currently exported bundle (an open question spec.md §9 leaves to the host).
func (c *Core) InitReceivingSession(contactID string, peerBundleBytes, firstEnvelopeBytes []byte) (Handle, []byte, error) {
	peerBundle, err := wire.DecodeBundle(peerBundleBytes)
	if err != nil {
		return Handle{}, nil, err
	}
	firstEnvelope, err := wire.DecodeEnvelope(firstEnvelopeBytes)
	if err != nil {
		return Handle{}, nil, err
	}
	return c.initReceivingSession(contactID, peerBundle, firstEnvelope)
}

func (c *Core) initReceivingSession(contactID string, peerBundle domain.Bundle, firstEnvelope domain.Envelope) (Handle, []byte, error) {
	if peerBundle.SuiteID != c.suite.ID() || firstEnvelope.SuiteID != c.suite.ID() {
		return Handle{}, nil, errs.New(errs.SuiteMismatch, "peer bundle or envelope suite does not match core suite")
	}

	ourSPK := c.identity.CurrentSignedPreKey()
	ourIdentity := c.identity.Identity()

	rootKey, err := x3dh.Respond(c.suite, ourIdentity.IKPriv, ourSPK.Priv, peerBundle.IKPub, firstEnvelope.DHPublicKey, nil)
	if err != nil {
		return Handle{}, nil, err
	}

	sess, pt, err := ratchet.NewResponder(c.suite, contactID, rootKey, ourSPK.Priv, ourSPK.Pub, firstEnvelope, c.maxSkip())
	if err != nil {
		return Handle{}, nil, err
	}

	return c.register(contactID, sess), pt, nil
}

// Encrypt implements spec.md §4.5/§6's encrypt.
func (c *Core) Encrypt(handle Handle, plaintext []byte) ([]byte, error) {
	sess, err := c.lookup(handle)
	if err != nil {
		return nil, err
	}
	env, err := sess.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}
	return wire.EncodeEnvelope(env), nil
}

// Decrypt implements spec.md §4.5/§6's decrypt.
func (c *Core) Decrypt(handle Handle, envelopeBytes []byte) ([]byte, error) {
	sess, err := c.lookup(handle)
	if err != nil {
		return nil, err
	}
	env, err := wire.DecodeEnvelope(envelopeBytes)
	if err != nil {
		return nil, err
	}
	return sess.Decrypt(env)
}

// DestroySession implements spec.md §4.5/§6's destroy_session.
func (c *Core) DestroySession(handle Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.sessions[handle]
	if !ok {
		return errs.New(errs.SessionNotFound, "unknown session handle")
	}
	delete(c.sessions, handle)
	delete(c.byContact, sess.ContactID())
	return nil
}

func (c *Core) lookup(handle Handle) (*ratchet.Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sess, ok := c.sessions[handle]
	if !ok {
		return nil, errs.New(errs.SessionNotFound, "unknown session handle")
	}
	return sess, nil
}

// register installs sess under a fresh handle, replacing (and discarding)
// any prior session for the same contact_id — the tie-break race of
// spec.md §8 scenario 5 resolves exactly this way: the losing side's
// nascent sending session is discarded when init_receiving_session runs.
func (c *Core) register(contactID string, sess *ratchet.Session) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.byContact[contactID]; ok {
		delete(c.sessions, old)
	}
	h := uuid.New()
	c.sessions[h] = sess
	c.byContact[contactID] = h
	return h
}
