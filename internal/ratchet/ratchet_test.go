package ratchet_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"ratchetcore/internal/domain"
	"ratchetcore/internal/errs"
	"ratchetcore/internal/identity"
	"ratchetcore/internal/ratchet"
	"ratchetcore/internal/suite"
)

// establishedPair builds a ratchet-initiator/responder pair the way the
// façade does once X3DH has already produced a shared initial root key
// (internal/x3dh is tested separately for that agreement property): a
// random root key stands in for the X3DH output, since ratchet-level tests
// only need both sides to start from the same one. Alice sends the first
// message so the pair starts Established, as in spec.md §8 scenario 1.
func establishedPair(t *testing.T, s suite.Suite, maxSkip int) (alice, bob *ratchet.Session) {
	t.Helper()

	bobID, err := identity.New(s, 0)
	require.NoError(t, err)
	bobBundle := bobID.ExportBundle()

	ekPriv, ekPub, err := s.GenerateKEMKeypair()
	require.NoError(t, err)

	rootKey := make([]byte, 32)
	_, err = rand.Read(rootKey)
	require.NoError(t, err)

	alice, err = ratchet.NewInitiator(s, "bob", rootKey, bobBundle.SPKPub, ekPriv, ekPub, maxSkip)
	require.NoError(t, err)

	firstEnvelope, err := alice.Encrypt([]byte("hello"))
	require.NoError(t, err)

	bobSPK, ok := bobID.SignedPreKeyByID(bobBundle.SPKID)
	require.True(t, ok)

	bobSession, pt, err := ratchet.NewResponder(s, "alice", rootKey, bobSPK.Priv, bobSPK.Pub, firstEnvelope, maxSkip)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), pt)

	return alice, bobSession
}

func TestHappyPath_InOrder(t *testing.T) {
	s := suite.NewClassic()
	alice, bob := establishedPair(t, s, 0)

	e2, err := bob.Encrypt([]byte("hi"))
	require.NoError(t, err)
	require.Equal(t, uint32(0), e2.MessageNumber)
	require.Equal(t, uint32(0), e2.PreviousChainLength)

	pt, err := alice.Decrypt(e2)
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), pt)
}

func TestOutOfOrder_WithinChain(t *testing.T) {
	s := suite.NewClassic()
	alice, bob := establishedPair(t, s, 0)

	e1, err := alice.Encrypt([]byte("m1"))
	require.NoError(t, err)
	e2, err := alice.Encrypt([]byte("m2"))
	require.NoError(t, err)
	e3, err := alice.Encrypt([]byte("m3"))
	require.NoError(t, err)

	pt3, err := bob.Decrypt(e3)
	require.NoError(t, err)
	require.Equal(t, []byte("m3"), pt3)

	pt1, err := bob.Decrypt(e1)
	require.NoError(t, err)
	require.Equal(t, []byte("m1"), pt1)

	pt2, err := bob.Decrypt(e2)
	require.NoError(t, err)
	require.Equal(t, []byte("m2"), pt2)
}

func TestDroppedMessages_AcrossRatchetStep(t *testing.T) {
	s := suite.NewClassic()
	alice, bob := establishedPair(t, s, 0)

	m1, err := alice.Encrypt([]byte("m1"))
	require.NoError(t, err)
	m2, err := alice.Encrypt([]byte("m2"))
	require.NoError(t, err)
	m3, err := alice.Encrypt([]byte("m3"))
	require.NoError(t, err)
	m4, err := alice.Encrypt([]byte("m4"))
	require.NoError(t, err)

	pt1, err := bob.Decrypt(m1)
	require.NoError(t, err)
	require.Equal(t, []byte("m1"), pt1)
	pt2, err := bob.Decrypt(m2)
	require.NoError(t, err)
	require.Equal(t, []byte("m2"), pt2)

	r1, err := bob.Encrypt([]byte("r1"))
	require.NoError(t, err)
	_, err = alice.Decrypt(r1) // drives Alice's DH ratchet step
	require.NoError(t, err)

	m6, err := alice.Encrypt([]byte("m6"))
	require.NoError(t, err)
	pt6, err := bob.Decrypt(m6) // drives Bob's DH ratchet step
	require.NoError(t, err)
	require.Equal(t, []byte("m6"), pt6)

	// m3, m4 belong to the old DH_remote_pub and must still be recoverable
	// from the skipped cache.
	pt3, err := bob.Decrypt(m3)
	require.NoError(t, err)
	require.Equal(t, []byte("m3"), pt3)
	pt4, err := bob.Decrypt(m4)
	require.NoError(t, err)
	require.Equal(t, []byte("m4"), pt4)
}

func TestTampering_DecryptFailsThenOriginalSucceedsOnce(t *testing.T) {
	s := suite.NewClassic()
	alice, bob := establishedPair(t, s, 0)

	e, err := alice.Encrypt([]byte("secret"))
	require.NoError(t, err)

	tampered := e
	tampered.CiphertextWithTag = append([]byte(nil), e.CiphertextWithTag...)
	tampered.CiphertextWithTag[0] ^= 0xFF

	_, err = bob.Decrypt(tampered)
	require.Error(t, err)
	require.True(t, errs.Has(err, errs.DecryptionFailed))

	pt, err := bob.Decrypt(e)
	require.NoError(t, err)
	require.Equal(t, []byte("secret"), pt)

	_, err = bob.Decrypt(e)
	require.Error(t, err)
}

func TestTampering_SkippedKeyEntrySurvivesFailedDecrypt(t *testing.T) {
	s := suite.NewClassic()
	alice, bob := establishedPair(t, s, 0)

	e1, err := alice.Encrypt([]byte("m1"))
	require.NoError(t, err)
	e2, err := alice.Encrypt([]byte("m2"))
	require.NoError(t, err)

	// Decrypting e2 first stashes e1's message key in the skipped cache.
	pt2, err := bob.Decrypt(e2)
	require.NoError(t, err)
	require.Equal(t, []byte("m2"), pt2)

	tampered := e1
	tampered.CiphertextWithTag = append([]byte(nil), e1.CiphertextWithTag...)
	tampered.CiphertextWithTag[0] ^= 0xFF

	_, err = bob.Decrypt(tampered)
	require.Error(t, err)
	require.True(t, errs.Has(err, errs.DecryptionFailed))

	// The cached key for e1 must still be there: the genuine message still
	// decrypts.
	pt1, err := bob.Decrypt(e1)
	require.NoError(t, err)
	require.Equal(t, []byte("m1"), pt1)
}

func TestSuiteMismatch_RejectedWithoutTouchingState(t *testing.T) {
	s := suite.NewClassic()
	alice, bob := establishedPair(t, s, 0)

	e, err := alice.Encrypt([]byte("hi"))
	require.NoError(t, err)
	before := bob.State()

	e.SuiteID = 9999
	_, err = bob.Decrypt(e)
	require.Error(t, err)
	require.True(t, errs.Has(err, errs.SuiteMismatch))

	after := bob.State()
	require.Equal(t, before.Receiving.Counter, after.Receiving.Counter)
}

func TestTooManySkipped_FailsClosedAndLeavesStateUsable(t *testing.T) {
	s := suite.NewClassic()
	alice, bob := establishedPair(t, s, 5)

	var last domain.Envelope
	var err error
	for i := 0; i < 7; i++ {
		last, err = alice.Encrypt([]byte("x"))
		require.NoError(t, err)
	}

	_, err = bob.Decrypt(last)
	require.Error(t, err)
	require.True(t, errs.Has(err, errs.TooManySkipped))

	// A fresh DH-stepped delivery still succeeds afterward.
	r1, err := bob.Encrypt([]byte("r1"))
	require.NoError(t, err)
	_, err = alice.Decrypt(r1)
	require.NoError(t, err)

	m, err := alice.Encrypt([]byte("after"))
	require.NoError(t, err)
	pt, err := bob.Decrypt(m)
	require.NoError(t, err)
	require.Equal(t, []byte("after"), pt)
}
