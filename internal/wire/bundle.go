// Package wire implements component 6 of spec.md: deterministic
// encoding/decoding of the registration bundle (in a canonical binary
// framing and a human-readable named-dictionary framing) and of the
// per-message envelope (binary framings only).
package wire

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"

	"ratchetcore/internal/domain"
	"ratchetcore/internal/errs"
)

// EncodeBundle serializes a registration bundle to the canonical byte form
// of spec.md §6: big-endian `u16 suite_id | u16 len(IK_pub) | IK_pub |
// u16 len(SPK_pub) | SPK_pub | u16 len(sig) | sig | u16 len(SIG_pub) |
// SIG_pub`. One-time prekeys are not part of this exact byte contract (the
// textual framing carries them as an enrichment; see EncodeBundleText).
func EncodeBundle(b domain.Bundle) []byte {
	out := make([]byte, 0, 2+2+32+2+32+2+64+2+32)
	out = appendU16(out, b.SuiteID)
	out = appendField(out, b.IKPub.Slice())
	out = appendField(out, b.SPKPub.Slice())
	out = appendField(out, b.SPKSignature)
	out = appendField(out, b.SIGPub.Slice())
	return out
}

// DecodeBundle is EncodeBundle's partial inverse: it fails only with
// errs.BadBundle on malformed bytes.
func DecodeBundle(data []byte) (domain.Bundle, error) {
	r := newReader(data)

	suiteID, err := r.u16()
	if err != nil {
		return domain.Bundle{}, err
	}
	ikPub, err := r.field()
	if err != nil {
		return domain.Bundle{}, err
	}
	spkPub, err := r.field()
	if err != nil {
		return domain.Bundle{}, err
	}
	sig, err := r.field()
	if err != nil {
		return domain.Bundle{}, err
	}
	sigPub, err := r.field()
	if err != nil {
		return domain.Bundle{}, err
	}
	if !r.atEnd() {
		return domain.Bundle{}, errs.New(errs.BadBundle, "trailing bytes after registration bundle")
	}

	ikPubArr, err := asDHPublic(ikPub)
	if err != nil {
		return domain.Bundle{}, err
	}
	spkPubArr, err := asDHPublic(spkPub)
	if err != nil {
		return domain.Bundle{}, err
	}
	sigPubArr, err := asSigPublic(sigPub)
	if err != nil {
		return domain.Bundle{}, err
	}

	return domain.Bundle{
		SuiteID:      suiteID,
		IKPub:        ikPubArr,
		SPKPub:       spkPubArr,
		SPKSignature: sig,
		SIGPub:       sigPubArr,
	}, nil
}

// bundleText is the JSON shape EncodeBundleText/DecodeBundleText use: a
// named field dictionary with base64-encoded byte fields, for transports
// that require human-readable payloads (spec.md §4.6).
type bundleText struct {
	SuiteID        uint16           `json:"suite_id"`
	IKPub          string           `json:"ik_pub"`
	SPKID          uint32           `json:"spk_id"`
	SPKPub         string           `json:"spk_pub"`
	SPKSignature   string           `json:"spk_signature"`
	SIGPub         string           `json:"sig_pub"`
	OneTimePreKeys []oneTimePreKeyText `json:"one_time_prekeys,omitempty"`
}

type oneTimePreKeyText struct {
	ID  uint32 `json:"id"`
	Pub string `json:"pub"`
}

// EncodeBundleText emits the named-dictionary, base64 framing of spec.md
// §4.6. Unlike EncodeBundle it also carries one-time prekeys and the signed
// prekey ID, since this framing is not bound to the fixed-field byte
// contract peers verify signatures against.
func EncodeBundleText(b domain.Bundle) ([]byte, error) {
	otks := make([]oneTimePreKeyText, 0, len(b.OneTimePreKeys))
	for _, otk := range b.OneTimePreKeys {
		otks = append(otks, oneTimePreKeyText{ID: uint32(otk.ID), Pub: base64.StdEncoding.EncodeToString(otk.Pub.Slice())})
	}
	t := bundleText{
		SuiteID:        b.SuiteID,
		IKPub:          base64.StdEncoding.EncodeToString(b.IKPub.Slice()),
		SPKID:          uint32(b.SPKID),
		SPKPub:         base64.StdEncoding.EncodeToString(b.SPKPub.Slice()),
		SPKSignature:   base64.StdEncoding.EncodeToString(b.SPKSignature),
		SIGPub:         base64.StdEncoding.EncodeToString(b.SIGPub.Slice()),
		OneTimePreKeys: otks,
	}
	out, err := json.Marshal(t)
	if err != nil {
		return nil, errs.Wrap(errs.BadBundle, "marshal bundle text framing", err)
	}
	return out, nil
}

// DecodeBundleText is EncodeBundleText's inverse.
func DecodeBundleText(data []byte) (domain.Bundle, error) {
	var t bundleText
	if err := json.Unmarshal(data, &t); err != nil {
		return domain.Bundle{}, errs.Wrap(errs.BadBundle, "unmarshal bundle text framing", err)
	}

	ikPub, err := decodeB64DHPublic(t.IKPub)
	if err != nil {
		return domain.Bundle{}, err
	}
	spkPub, err := decodeB64DHPublic(t.SPKPub)
	if err != nil {
		return domain.Bundle{}, err
	}
	sigPub, err := decodeB64SigPublic(t.SIGPub)
	if err != nil {
		return domain.Bundle{}, err
	}
	sig, err := base64.StdEncoding.DecodeString(t.SPKSignature)
	if err != nil {
		return domain.Bundle{}, errs.Wrap(errs.BadBundle, "decode spk_signature", err)
	}

	otks := make([]domain.OneTimePreKeyPublic, 0, len(t.OneTimePreKeys))
	for _, otk := range t.OneTimePreKeys {
		pub, err := decodeB64DHPublic(otk.Pub)
		if err != nil {
			return domain.Bundle{}, err
		}
		otks = append(otks, domain.OneTimePreKeyPublic{ID: domain.OneTimePreKeyID(otk.ID), Pub: pub})
	}

	return domain.Bundle{
		SuiteID:        t.SuiteID,
		IKPub:          ikPub,
		SPKID:          domain.SignedPreKeyID(t.SPKID),
		SPKPub:         spkPub,
		SPKSignature:   sig,
		SIGPub:         sigPub,
		OneTimePreKeys: otks,
	}, nil
}

func decodeB64DHPublic(s string) (domain.DHPublic, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return domain.DHPublic{}, errs.Wrap(errs.BadBundle, "decode base64 DH public key", err)
	}
	return asDHPublic(b)
}

func decodeB64SigPublic(s string) (domain.SigPublic, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return domain.SigPublic{}, errs.Wrap(errs.BadBundle, "decode base64 signature public key", err)
	}
	return asSigPublic(b)
}

func asDHPublic(b []byte) (domain.DHPublic, error) {
	var out domain.DHPublic
	if len(b) != len(out) {
		return out, errs.New(errs.BadBundle, "wrong length for DH public key field")
	}
	copy(out[:], b)
	return out, nil
}

func asSigPublic(b []byte) (domain.SigPublic, error) {
	var out domain.SigPublic
	if len(b) != len(out) {
		return out, errs.New(errs.BadBundle, "wrong length for signature public key field")
	}
	copy(out[:], b)
	return out, nil
}

func appendU16(out []byte, v uint16) []byte {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	return append(out, buf[:]...)
}

func appendField(out []byte, field []byte) []byte {
	out = appendU16(out, uint16(len(field)))
	return append(out, field...)
}

type reader struct {
	data []byte
	pos  int
}

func newReader(data []byte) *reader { return &reader{data: data} }

func (r *reader) atEnd() bool { return r.pos == len(r.data) }

func (r *reader) u16() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, errs.New(errs.BadBundle, "truncated u16 field")
	}
	v := binary.BigEndian.Uint16(r.data[r.pos : r.pos+2])
	r.pos += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, errs.New(errs.BadBundle, "truncated u32 field")
	}
	v := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *reader) u8() (uint8, error) {
	if r.pos+1 > len(r.data) {
		return 0, errs.New(errs.BadBundle, "truncated u8 field")
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) field() ([]byte, error) {
	n, err := r.u16()
	if err != nil {
		return nil, err
	}
	return r.bytes(int(n))
}

func (r *reader) bytes(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, errs.New(errs.BadBundle, "truncated length-prefixed field")
	}
	out := append([]byte(nil), r.data[r.pos:r.pos+n]...)
	r.pos += n
	return out, nil
}
