package ratchetcore

import (
	"encoding/json"

	"ratchetcore/internal/domain"
	"ratchetcore/internal/errs"
	"ratchetcore/internal/ratchet"
)

// sessionStateDTO is the JSON shape export_session/import_session uses
// (spec.md §6's persistence mirror): a host-to-host-process convenience,
// not a wire format peers interoperate on, so it is plain JSON rather than
// the canonical binary framing. []byte fields marshal as base64 strings
// under encoding/json automatically; the skipped-key map is flattened to a
// slice since JSON object keys must be strings.
type sessionStateDTO struct {
	SuiteID             uint16             `json:"suite_id"`
	ContactID           string             `json:"contact_id"`
	RootKey             []byte             `json:"root_key"`
	SendingKey          []byte             `json:"sending_key,omitempty"`
	SendingCounter      uint32             `json:"sending_counter"`
	HasSending          bool               `json:"has_sending"`
	ReceivingKey        []byte             `json:"receiving_key,omitempty"`
	ReceivingCounter    uint32             `json:"receiving_counter"`
	HasReceiving        bool               `json:"has_receiving"`
	DHSelfPriv          []byte             `json:"dh_self_priv"`
	DHSelfPub           []byte             `json:"dh_self_pub"`
	DHRemotePub         []byte             `json:"dh_remote_pub"`
	HasRemote           bool               `json:"has_remote"`
	PreviousChainLength uint32             `json:"previous_chain_length"`
	Skipped             []skippedEntryDTO  `json:"skipped,omitempty"`
}

type skippedEntryDTO struct {
	DHPub  []byte `json:"dh_pub"`
	Number uint32 `json:"number"`
	Key    []byte `json:"key"`
}

// ExportSession implements spec.md §6's persistence mirror: a stable
// opaque byte form a host can stash and later feed back to ImportSession.
func (c *Core) ExportSession(handle Handle) ([]byte, error) {
	sess, err := c.lookup(handle)
	if err != nil {
		return nil, err
	}
	st := sess.State()

	dto := sessionStateDTO{
		SuiteID:             st.SuiteID,
		ContactID:           st.ContactID,
		RootKey:             st.RootKey,
		SendingKey:          st.Sending.Key,
		SendingCounter:      st.Sending.Counter,
		HasSending:          st.HasSending,
		ReceivingKey:        st.Receiving.Key,
		ReceivingCounter:    st.Receiving.Counter,
		HasReceiving:        st.HasReceiving,
		DHSelfPriv:          st.DHSelfPriv.Slice(),
		DHSelfPub:           st.DHSelfPub.Slice(),
		DHRemotePub:         st.DHRemotePub.Slice(),
		HasRemote:           st.HasRemote,
		PreviousChainLength: st.PreviousChainLength,
	}
	for k, v := range st.Skipped {
		dto.Skipped = append(dto.Skipped, skippedEntryDTO{DHPub: k.DHPub.Slice(), Number: k.Number, Key: v})
	}

	out, err := json.Marshal(dto)
	if err != nil {
		return nil, errs.Wrap(errs.BadBundle, "marshal session export", err)
	}
	return out, nil
}

// ImportSession implements the reverse of ExportSession, re-registering the
// session under a fresh handle for contactID.
func (c *Core) ImportSession(contactID string, data []byte) (Handle, error) {
	var dto sessionStateDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return Handle{}, errs.Wrap(errs.BadBundle, "unmarshal session export", err)
	}

	dhSelfPriv, err := asDHPrivate(dto.DHSelfPriv)
	if err != nil {
		return Handle{}, err
	}
	dhSelfPub, err := asDHPublic(dto.DHSelfPub)
	if err != nil {
		return Handle{}, err
	}
	dhRemotePub, err := asDHPublic(dto.DHRemotePub)
	if err != nil {
		return Handle{}, err
	}

	st := domain.SessionState{
		SuiteID:             dto.SuiteID,
		ContactID:           contactID,
		RootKey:             dto.RootKey,
		Sending:             domain.ChainState{Key: dto.SendingKey, Counter: dto.SendingCounter},
		HasSending:          dto.HasSending,
		Receiving:           domain.ChainState{Key: dto.ReceivingKey, Counter: dto.ReceivingCounter},
		HasReceiving:        dto.HasReceiving,
		DHSelfPriv:          dhSelfPriv,
		DHSelfPub:           dhSelfPub,
		DHRemotePub:         dhRemotePub,
		HasRemote:           dto.HasRemote,
		PreviousChainLength: dto.PreviousChainLength,
		Skipped:             make(map[domain.SkippedKeyID][]byte, len(dto.Skipped)),
	}
	for _, e := range dto.Skipped {
		dhPub, err := asDHPublic(e.DHPub)
		if err != nil {
			return Handle{}, err
		}
		st.Skipped[domain.SkippedKeyID{DHPub: dhPub, Number: e.Number}] = e.Key
	}

	sess := ratchet.Restore(c.suite, st, c.maxSkip())
	return c.register(contactID, sess), nil
}

func asDHPublic(b []byte) (domain.DHPublic, error) {
	if len(b) != 32 {
		return domain.DHPublic{}, errs.New(errs.BadBundle, "wrong length for DH public key field")
	}
	return domain.MustDHPublic(b), nil
}

func asDHPrivate(b []byte) (domain.DHPrivate, error) {
	if len(b) != 32 {
		return domain.DHPrivate{}, errs.New(errs.BadBundle, "wrong length for DH private key field")
	}
	return domain.MustDHPrivate(b), nil
}
