package wire_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ratchetcore/internal/domain"
	"ratchetcore/internal/errs"
	"ratchetcore/internal/identity"
	"ratchetcore/internal/suite"
	"ratchetcore/internal/wire"
)

func TestEncodeDecodeBundle_RoundTrips(t *testing.T) {
	s := suite.NewClassic()
	store, err := identity.New(s, 0)
	require.NoError(t, err)
	bundle := store.ExportBundle()

	encoded := wire.EncodeBundle(bundle)
	decoded, err := wire.DecodeBundle(encoded)
	require.NoError(t, err)

	require.Equal(t, bundle.SuiteID, decoded.SuiteID)
	require.Equal(t, bundle.IKPub, decoded.IKPub)
	require.Equal(t, bundle.SPKPub, decoded.SPKPub)
	require.Equal(t, bundle.SPKSignature, decoded.SPKSignature)
	require.Equal(t, bundle.SIGPub, decoded.SIGPub)
	require.True(t, s.Verify(decoded.SIGPub, decoded.SPKPub.Slice(), decoded.SPKSignature))
}

func TestDecodeBundle_RejectsTruncatedInput(t *testing.T) {
	s := suite.NewClassic()
	store, err := identity.New(s, 0)
	require.NoError(t, err)
	encoded := wire.EncodeBundle(store.ExportBundle())

	_, err = wire.DecodeBundle(encoded[:len(encoded)-10])
	require.Error(t, err)
	require.True(t, errs.Has(err, errs.BadBundle))
}

func TestDecodeBundle_RejectsTrailingBytes(t *testing.T) {
	s := suite.NewClassic()
	store, err := identity.New(s, 0)
	require.NoError(t, err)
	encoded := append(wire.EncodeBundle(store.ExportBundle()), 0xFF)

	_, err = wire.DecodeBundle(encoded)
	require.Error(t, err)
	require.True(t, errs.Has(err, errs.BadBundle))
}

func TestEncodeDecodeBundleText_RoundTripsWithOneTimePreKeys(t *testing.T) {
	s := suite.NewClassic()
	store, err := identity.New(s, 0)
	require.NoError(t, err)
	_, err = store.GenerateOneTimePreKeys(2)
	require.NoError(t, err)
	bundle := store.ExportBundle()

	encoded, err := wire.EncodeBundleText(bundle)
	require.NoError(t, err)

	decoded, err := wire.DecodeBundleText(encoded)
	require.NoError(t, err)

	require.Equal(t, bundle.SuiteID, decoded.SuiteID)
	require.Equal(t, bundle.IKPub, decoded.IKPub)
	require.Equal(t, bundle.SPKID, decoded.SPKID)
	require.Equal(t, bundle.SPKPub, decoded.SPKPub)
	require.ElementsMatch(t, bundle.OneTimePreKeys, decoded.OneTimePreKeys)
}

func TestEncodeDecodeEnvelope_RoundTrips(t *testing.T) {
	env := domain.Envelope{
		SuiteID:             suite.ClassicID,
		DHPublicKey:         domain.MustDHPublic(make([]byte, 32)),
		PreviousChainLength: 7,
		MessageNumber:       42,
		Nonce:               []byte("123456789012"),
		CiphertextWithTag:   []byte("ciphertext-and-tag-bytes"),
	}

	encoded := wire.EncodeEnvelope(env)
	decoded, err := wire.DecodeEnvelope(encoded)
	require.NoError(t, err)
	require.Equal(t, env, decoded)
}

func TestDecodeEnvelopeBlob_SplitsNonceAndCiphertext(t *testing.T) {
	env := domain.Envelope{
		SuiteID:             suite.ClassicID,
		DHPublicKey:         domain.MustDHPublic(make([]byte, 32)),
		PreviousChainLength: 0,
		MessageNumber:       0,
		Nonce:               []byte("0123456789ab"), // 12 bytes
		CiphertextWithTag:   []byte("payload+tag"),
	}

	// Build the alternate blob framing by hand: same header, then a single
	// u32-length-prefixed nonce||ciphertext blob instead of separate fields.
	blob := append(append([]byte(nil), env.Nonce...), env.CiphertextWithTag...)
	encoded := wire.EncodeEnvelope(env)
	// Reconstruct header bytes shared with the structured form by re-running
	// through EncodeEnvelope's prefix (suite_id/dh_public_key/pn/num), then
	// append the blob framing.
	header := encoded[:2+2+32+4+4]
	withBlob := append(append([]byte(nil), header...), u32Bytes(uint32(len(blob)))...)
	withBlob = append(withBlob, blob...)

	decoded, err := wire.DecodeEnvelopeBlob(withBlob, 12)
	require.NoError(t, err)
	require.Equal(t, env.Nonce, decoded.Nonce)
	require.Equal(t, env.CiphertextWithTag, decoded.CiphertextWithTag)
	require.Equal(t, env.MessageNumber, decoded.MessageNumber)
}

func u32Bytes(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
