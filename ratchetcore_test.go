package ratchetcore_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ratchetcore"
	"ratchetcore/internal/errs"
	"ratchetcore/internal/suite"
)

func newTestCore(t *testing.T) *ratchetcore.Core {
	t.Helper()
	c, err := ratchetcore.CreateCore(suite.NewClassic(), ratchetcore.Config{})
	require.NoError(t, err)
	return c
}

// handshake drives both sides through init_sending_session/init_receiving_session,
// checks the plaintext Bob recovered from Alice's first envelope, and returns
// both handles.
func handshake(t *testing.T, alice, bob *ratchetcore.Core) (aliceHandle, bobHandle ratchetcore.Handle) {
	t.Helper()

	bobBundle := bob.ExportBundleStructured()

	aliceHandle, err := alice.InitSendingSession("bob", bobBundle)
	require.NoError(t, err)

	firstEnvelope, err := alice.Encrypt(aliceHandle, []byte("hello bob"))
	require.NoError(t, err)

	aliceBundle := alice.ExportBundleStructured()
	bobHandle, pt, err := bob.InitReceivingSession("alice", aliceBundle, firstEnvelope)
	require.NoError(t, err)
	require.Equal(t, []byte("hello bob"), pt)

	return aliceHandle, bobHandle
}

// Scenario 1: happy path in order. Alice sends the handshake message, Bob
// replies, and both continue sending in strict order.
func TestScenario1_HappyPathInOrder(t *testing.T) {
	alice := newTestCore(t)
	bob := newTestCore(t)
	aliceHandle, bobHandle := handshake(t, alice, bob)

	reply, err := bob.Encrypt(bobHandle, []byte("hi"))
	require.NoError(t, err)

	pt, err := alice.Decrypt(aliceHandle, reply)
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), pt)

	e2, err := alice.Encrypt(aliceHandle, []byte("how are you"))
	require.NoError(t, err)
	pt2, err := bob.Decrypt(bobHandle, e2)
	require.NoError(t, err)
	require.Equal(t, []byte("how are you"), pt2)
}

// Scenario 2: out-of-order delivery within a single chain recovers all
// messages regardless of arrival order.
func TestScenario2_OutOfOrderWithinChain(t *testing.T) {
	alice := newTestCore(t)
	bob := newTestCore(t)
	aliceHandle, bobHandle := handshake(t, alice, bob)

	e1, err := alice.Encrypt(aliceHandle, []byte("one"))
	require.NoError(t, err)
	e2, err := alice.Encrypt(aliceHandle, []byte("two"))
	require.NoError(t, err)
	e3, err := alice.Encrypt(aliceHandle, []byte("three"))
	require.NoError(t, err)

	pt3, err := bob.Decrypt(bobHandle, e3)
	require.NoError(t, err)
	require.Equal(t, []byte("three"), pt3)

	pt1, err := bob.Decrypt(bobHandle, e1)
	require.NoError(t, err)
	require.Equal(t, []byte("one"), pt1)

	pt2, err := bob.Decrypt(bobHandle, e2)
	require.NoError(t, err)
	require.Equal(t, []byte("two"), pt2)
}

// Scenario 3: messages dropped before a DH ratchet step still decrypt from
// the skipped-key cache after the step has advanced the receiving chain.
func TestScenario3_DroppedMessagesAcrossRatchetStep(t *testing.T) {
	alice := newTestCore(t)
	bob := newTestCore(t)
	aliceHandle, bobHandle := handshake(t, alice, bob)

	e1, err := alice.Encrypt(aliceHandle, []byte("m1"))
	require.NoError(t, err)
	e2, err := alice.Encrypt(aliceHandle, []byte("m2"))
	require.NoError(t, err)
	e3, err := alice.Encrypt(aliceHandle, []byte("m3"))
	require.NoError(t, err)

	_, err = bob.Decrypt(bobHandle, e1)
	require.NoError(t, err)
	_, err = bob.Decrypt(bobHandle, e2)
	require.NoError(t, err)
	// e3 is dropped for now.

	r1, err := bob.Encrypt(bobHandle, []byte("reply"))
	require.NoError(t, err)
	_, err = alice.Decrypt(aliceHandle, r1)
	require.NoError(t, err)

	e4, err := alice.Encrypt(aliceHandle, []byte("m4"))
	require.NoError(t, err)
	pt4, err := bob.Decrypt(bobHandle, e4)
	require.NoError(t, err)
	require.Equal(t, []byte("m4"), pt4)

	pt3, err := bob.Decrypt(bobHandle, e3)
	require.NoError(t, err)
	require.Equal(t, []byte("m3"), pt3)
}

// Scenario 4: a tampered envelope fails closed without consuming the
// message key, so the untampered original still decrypts afterward.
func TestScenario4_Tampering(t *testing.T) {
	alice := newTestCore(t)
	bob := newTestCore(t)
	aliceHandle, bobHandle := handshake(t, alice, bob)

	e1, err := alice.Encrypt(aliceHandle, []byte("secret"))
	require.NoError(t, err)

	tampered := append([]byte(nil), e1...)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = bob.Decrypt(bobHandle, tampered)
	require.Error(t, err)
	require.True(t, errs.Has(err, errs.DecryptionFailed))

	pt, err := bob.Decrypt(bobHandle, e1)
	require.NoError(t, err)
	require.Equal(t, []byte("secret"), pt)
}

// Scenario 5: both sides race to start a session toward each other for the
// same contact_id. The tie-break rule picks one side as initiator; the
// loser's nascent sending session is discarded once init_receiving_session
// runs, and the surviving pair still functions.
func TestScenario5_TieBreakRace(t *testing.T) {
	alice := newTestCore(t)
	bob := newTestCore(t)

	// Both export bundles and both attempt InitSendingSession concurrently
	// in a real deployment; here we simulate the race deterministically.
	aliceBundle := alice.ExportBundleStructured()
	bobBundle := bob.ExportBundleStructured()

	require.True(t, ratchetcore.IsInitiator("alice", "bob"))
	require.False(t, ratchetcore.IsInitiator("bob", "alice"))

	// alice is the tie-break winner: she sends first.
	aliceHandle, err := alice.InitSendingSession("bob", bobBundle)
	require.NoError(t, err)
	firstEnvelope, err := alice.Encrypt(aliceHandle, []byte("hello"))
	require.NoError(t, err)

	// bob had also started a nascent sending session toward alice (the
	// race); receiving alice's first envelope discards it in favor of a
	// receiving session, per register()'s replace-on-contact_id behavior.
	_, err = bob.InitSendingSession("alice", aliceBundle)
	require.NoError(t, err)
	require.True(t, bob.HasSession("alice"))

	bobHandle, pt, err := bob.InitReceivingSession("alice", aliceBundle, firstEnvelope)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), pt)

	reply, err := bob.Encrypt(bobHandle, []byte("hi back"))
	require.NoError(t, err)
	ptReply, err := alice.Decrypt(aliceHandle, reply)
	require.NoError(t, err)
	require.Equal(t, []byte("hi back"), ptReply)
}

// Scenario 6: a peer bundle or envelope advertising a different suite_id is
// rejected before any session is registered.
func TestScenario6_SuiteMismatch(t *testing.T) {
	alice := newTestCore(t)
	bob := newTestCore(t)

	bobBundle := bob.ExportBundleStructured()
	// Corrupt the suite_id field (first two bytes, big-endian u16).
	corrupted := append([]byte(nil), bobBundle...)
	corrupted[0] ^= 0xFF
	corrupted[1] ^= 0xFF

	_, err := alice.InitSendingSession("bob", corrupted)
	require.Error(t, err)
	require.True(t, errs.Has(err, errs.SuiteMismatch))
	require.False(t, alice.HasSession("bob"))
}

func TestExportImportSession_RoundTripsAndContinues(t *testing.T) {
	alice := newTestCore(t)
	bob := newTestCore(t)
	aliceHandle, bobHandle := handshake(t, alice, bob)

	e1, err := alice.Encrypt(aliceHandle, []byte("before export"))
	require.NoError(t, err)
	_, err = bob.Decrypt(bobHandle, e1)
	require.NoError(t, err)

	exported, err := bob.ExportSession(bobHandle)
	require.NoError(t, err)

	restoredBob := newTestCore(t)
	restoredHandle, err := restoredBob.ImportSession("alice", exported)
	require.NoError(t, err)

	e2, err := alice.Encrypt(aliceHandle, []byte("after export"))
	require.NoError(t, err)
	pt, err := restoredBob.Decrypt(restoredHandle, e2)
	require.NoError(t, err)
	require.Equal(t, []byte("after export"), pt)
}

func TestDestroySession_RemovesHandleAndContactIndex(t *testing.T) {
	alice := newTestCore(t)
	bob := newTestCore(t)
	aliceHandle, _ := handshake(t, alice, bob)

	require.True(t, alice.HasSession("bob"))
	require.NoError(t, alice.DestroySession(aliceHandle))
	require.False(t, alice.HasSession("bob"))

	_, err := alice.Encrypt(aliceHandle, []byte("too late"))
	require.Error(t, err)
	require.True(t, errs.Has(err, errs.SessionNotFound))
}
