package wire

import (
	"ratchetcore/internal/domain"
	"ratchetcore/internal/errs"
)

// EncodeEnvelope serializes a per-message envelope to the canonical byte
// form of spec.md §6: `u16 suite_id | u16 len(dh_public_key) |
// dh_public_key | u32 previous_chain_length | u32 message_number |
// u8 nonce_len | nonce | u32 ct_len | ciphertext_with_tag`. This is always
// the structured framing, per spec.md §4.6's "emits the structured form".
func EncodeEnvelope(e domain.Envelope) []byte {
	out := make([]byte, 0, 2+2+32+4+4+1+12+4+len(e.CiphertextWithTag))
	out = appendU16(out, e.SuiteID)
	out = appendField(out, e.DHPublicKey.Slice())
	out = appendU32(out, e.PreviousChainLength)
	out = appendU32(out, e.MessageNumber)
	out = append(out, byte(len(e.Nonce)))
	out = append(out, e.Nonce...)
	out = appendU32(out, uint32(len(e.CiphertextWithTag)))
	out = append(out, e.CiphertextWithTag...)
	return out
}

// DecodeEnvelope parses the structured canonical framing EncodeEnvelope
// emits.
func DecodeEnvelope(data []byte) (domain.Envelope, error) {
	r := newReader(data)
	e, err := decodeEnvelopeHeader(r)
	if err != nil {
		return domain.Envelope{}, err
	}

	nonceLen, err := r.u8()
	if err != nil {
		return domain.Envelope{}, err
	}
	nonce, err := r.bytes(int(nonceLen))
	if err != nil {
		return domain.Envelope{}, err
	}
	ctLen, err := r.u32()
	if err != nil {
		return domain.Envelope{}, err
	}
	ct, err := r.bytes(int(ctLen))
	if err != nil {
		return domain.Envelope{}, err
	}
	if !r.atEnd() {
		return domain.Envelope{}, errs.New(errs.BadBundle, "trailing bytes after envelope")
	}

	e.Nonce = nonce
	e.CiphertextWithTag = ct
	return e, nil
}

// DecodeEnvelopeBlob parses the alternate framing spec.md §4.6 permits on
// input: a single blob field holding `nonce || ciphertext || tag` instead
// of separate nonce/ciphertext_with_tag fields, for transports that cannot
// carry structured fields. nonceSize is the suite's AEAD nonce length.
func DecodeEnvelopeBlob(data []byte, nonceSize int) (domain.Envelope, error) {
	r := newReader(data)
	e, err := decodeEnvelopeHeader(r)
	if err != nil {
		return domain.Envelope{}, err
	}

	blobLen, err := r.u32()
	if err != nil {
		return domain.Envelope{}, err
	}
	blob, err := r.bytes(int(blobLen))
	if err != nil {
		return domain.Envelope{}, err
	}
	if !r.atEnd() {
		return domain.Envelope{}, errs.New(errs.BadBundle, "trailing bytes after envelope")
	}
	if len(blob) < nonceSize {
		return domain.Envelope{}, errs.New(errs.BadBundle, "envelope blob shorter than nonce size")
	}

	e.Nonce = append([]byte(nil), blob[:nonceSize]...)
	e.CiphertextWithTag = append([]byte(nil), blob[nonceSize:]...)
	return e, nil
}

func decodeEnvelopeHeader(r *reader) (domain.Envelope, error) {
	suiteID, err := r.u16()
	if err != nil {
		return domain.Envelope{}, err
	}
	dhPub, err := r.field()
	if err != nil {
		return domain.Envelope{}, err
	}
	pn, err := r.u32()
	if err != nil {
		return domain.Envelope{}, err
	}
	num, err := r.u32()
	if err != nil {
		return domain.Envelope{}, err
	}

	dhPubArr, err := asDHPublic(dhPub)
	if err != nil {
		return domain.Envelope{}, err
	}

	return domain.Envelope{
		SuiteID:             suiteID,
		DHPublicKey:         dhPubArr,
		PreviousChainLength: pn,
		MessageNumber:       num,
	}, nil
}

func appendU32(out []byte, v uint32) []byte {
	return append(out, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
