package x3dh_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ratchetcore/internal/domain"
	"ratchetcore/internal/suite"
	"ratchetcore/internal/x3dh"
)

type party struct {
	ikPriv domain.DHPrivate
	ikPub  domain.DHPublic
}

func makeParty(t *testing.T, s suite.Suite) party {
	t.Helper()
	priv, pub, err := s.GenerateKEMKeypair()
	require.NoError(t, err)
	return party{ikPriv: priv, ikPub: pub}
}

func TestHandshake_NoOneTimePreKey_AgreesOnRootKey(t *testing.T) {
	s := suite.NewClassic()
	alice := makeParty(t, s)
	bob := makeParty(t, s)

	spkPriv, spkPub, err := s.GenerateKEMKeypair()
	require.NoError(t, err)

	initiated, err := x3dh.Initiate(s, alice.ikPriv, bob.ikPub, spkPub, nil)
	require.NoError(t, err)

	responded, err := x3dh.Respond(s, bob.ikPriv, spkPriv, alice.ikPub, initiated.EphemeralPub, nil)
	require.NoError(t, err)

	require.Equal(t, initiated.RootKey, responded)
}

func TestHandshake_WithOneTimePreKey_AgreesOnRootKey(t *testing.T) {
	s := suite.NewClassic()
	alice := makeParty(t, s)
	bob := makeParty(t, s)

	spkPriv, spkPub, err := s.GenerateKEMKeypair()
	require.NoError(t, err)
	opkPriv, opkPub, err := s.GenerateKEMKeypair()
	require.NoError(t, err)

	initiated, err := x3dh.Initiate(s, alice.ikPriv, bob.ikPub, spkPub, &opkPub)
	require.NoError(t, err)

	responded, err := x3dh.Respond(s, bob.ikPriv, spkPriv, alice.ikPub, initiated.EphemeralPub, &opkPriv)
	require.NoError(t, err)

	require.Equal(t, initiated.RootKey, responded)
}

func TestHandshake_OneTimePreKeyChangesRootKey(t *testing.T) {
	s := suite.NewClassic()
	alice := makeParty(t, s)
	bob := makeParty(t, s)

	spkPriv, spkPub, err := s.GenerateKEMKeypair()
	require.NoError(t, err)
	opkPriv, opkPub, err := s.GenerateKEMKeypair()
	require.NoError(t, err)

	withOPK, err := x3dh.Initiate(s, alice.ikPriv, bob.ikPub, spkPub, &opkPub)
	require.NoError(t, err)
	withoutOPK, err := x3dh.Initiate(s, alice.ikPriv, bob.ikPub, spkPub, nil)
	require.NoError(t, err)

	require.NotEqual(t, withOPK.RootKey, withoutOPK.RootKey)

	// Responder must be given the same OPK decision the initiator made, or
	// the derived keys will not match.
	respondedWrong, err := x3dh.Respond(s, bob.ikPriv, spkPriv, alice.ikPub, withOPK.EphemeralPub, nil)
	require.NoError(t, err)
	require.NotEqual(t, withOPK.RootKey, respondedWrong)

	respondedRight, err := x3dh.Respond(s, bob.ikPriv, spkPriv, alice.ikPub, withOPK.EphemeralPub, &opkPriv)
	require.NoError(t, err)
	require.Equal(t, withOPK.RootKey, respondedRight)
}

func TestVerifySignedPreKey(t *testing.T) {
	s := suite.NewClassic()
	sigPriv, sigPub, err := s.GenerateSigKeypair()
	require.NoError(t, err)
	_, spkPub, err := s.GenerateKEMKeypair()
	require.NoError(t, err)

	sig := s.Sign(sigPriv, spkPub.Slice())
	require.True(t, x3dh.VerifySignedPreKey(s, sigPub, spkPub, sig))

	sig[0] ^= 0xFF
	require.False(t, x3dh.VerifySignedPreKey(s, sigPub, spkPub, sig))
}
