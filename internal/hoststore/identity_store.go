package hoststore

import (
	"encoding/json"
	"errors"
	"path/filepath"

	"ratchetcore/internal/domain"
	"ratchetcore/internal/identity"
)

var errIdentityNotFound = errors.New("no identity found at this home directory")

// IdentityStore persists one user's identity.RestoredIdentity, encrypted at
// rest under a passphrase, grounded on the teacher's FileStore for
// identity.json (atomic temp-file-then-rename JSON, one file per home dir).
type IdentityStore struct {
	home string
}

func NewIdentityStore(home string) *IdentityStore {
	return &IdentityStore{home: home}
}

func (s *IdentityStore) path() string { return filepath.Join(s.home, "identity.json") }

// Exists reports whether an identity file is already present, so `identity
// init` can refuse to clobber one (grounded on the teacher's
// domain.ErrIdentityExists check in FileStore.SaveIdentity).
func (s *IdentityStore) Exists() (bool, error) {
	b, err := readFile(s.path())
	if err != nil {
		return false, err
	}
	return b != nil, nil
}

type onePreKeyPairText struct {
	ID   domain.OneTimePreKeyID `json:"id"`
	Priv []byte                 `json:"priv"`
	Pub  []byte                 `json:"pub"`
}

type signedPreKeyText struct {
	ID        domain.SignedPreKeyID `json:"id"`
	Priv      []byte                `json:"priv"`
	Pub       []byte                `json:"pub"`
	Signature []byte                `json:"signature"`
}

type identityOnDisk struct {
	IKPriv    []byte              `json:"ik_priv"`
	IKPub     []byte              `json:"ik_pub"`
	SIGPriv   []byte              `json:"sig_priv"`
	SIGPub    []byte              `json:"sig_pub"`
	Current   signedPreKeyText    `json:"current_signed_prekey"`
	Archived  []signedPreKeyText  `json:"archived_signed_prekeys"`
	OneTime   []onePreKeyPairText `json:"one_time_prekeys"`
	NextOPKID domain.OneTimePreKeyID `json:"next_one_time_prekey_id"`
	Retain    int                 `json:"retain"`
}

func toSignedPreKeyText(spk domain.SignedPreKey) signedPreKeyText {
	return signedPreKeyText{ID: spk.ID, Priv: spk.Priv.Slice(), Pub: spk.Pub.Slice(), Signature: spk.Signature}
}

func fromSignedPreKeyText(t signedPreKeyText) (domain.SignedPreKey, error) {
	priv, err := asDHPrivate(t.Priv)
	if err != nil {
		return domain.SignedPreKey{}, err
	}
	pub, err := asDHPublic(t.Pub)
	if err != nil {
		return domain.SignedPreKey{}, err
	}
	return domain.SignedPreKey{ID: t.ID, Priv: priv, Pub: pub, Signature: t.Signature}, nil
}

// Save encrypts and persists ri under passphrase.
func (s *IdentityStore) Save(passphrase string, ri identity.RestoredIdentity) error {
	out := identityOnDisk{
		IKPriv:    ri.Identity.IKPriv.Slice(),
		IKPub:     ri.Identity.IKPub.Slice(),
		SIGPriv:   ri.Identity.SIGPriv.Slice(),
		SIGPub:    ri.Identity.SIGPub.Slice(),
		Current:   toSignedPreKeyText(ri.Current),
		NextOPKID: ri.NextOPKID,
		Retain:    ri.Retain,
	}
	for _, a := range ri.Archived {
		out.Archived = append(out.Archived, toSignedPreKeyText(a))
	}
	for _, p := range ri.OneTime {
		out.OneTime = append(out.OneTime, onePreKeyPairText{ID: p.ID, Priv: p.Priv.Slice(), Pub: p.Pub.Slice()})
	}

	plain, err := json.Marshal(out)
	if err != nil {
		return err
	}
	sealed, err := sealAtRest(passphrase, plain)
	if err != nil {
		return err
	}
	return writeFile(s.path(), sealed, 0o600)
}

// Load decrypts and reconstructs the identity material previously Saved.
func (s *IdentityStore) Load(passphrase string) (identity.RestoredIdentity, error) {
	sealed, err := readFile(s.path())
	if err != nil {
		return identity.RestoredIdentity{}, err
	}
	if sealed == nil {
		return identity.RestoredIdentity{}, errIdentityNotFound
	}
	plain, err := openAtRest(passphrase, sealed)
	if err != nil {
		return identity.RestoredIdentity{}, err
	}
	var in identityOnDisk
	if err := json.Unmarshal(plain, &in); err != nil {
		return identity.RestoredIdentity{}, err
	}

	ikPriv, err := asDHPrivate(in.IKPriv)
	if err != nil {
		return identity.RestoredIdentity{}, err
	}
	ikPub, err := asDHPublic(in.IKPub)
	if err != nil {
		return identity.RestoredIdentity{}, err
	}
	sigPriv, err := asSigPrivate(in.SIGPriv)
	if err != nil {
		return identity.RestoredIdentity{}, err
	}
	sigPub, err := asSigPublic(in.SIGPub)
	if err != nil {
		return identity.RestoredIdentity{}, err
	}
	current, err := fromSignedPreKeyText(in.Current)
	if err != nil {
		return identity.RestoredIdentity{}, err
	}

	ri := identity.RestoredIdentity{
		Identity: domain.Identity{IKPriv: ikPriv, IKPub: ikPub, SIGPriv: sigPriv, SIGPub: sigPub},
		Current:  current,
		NextOPKID: in.NextOPKID,
		Retain:    in.Retain,
	}
	for _, a := range in.Archived {
		spk, err := fromSignedPreKeyText(a)
		if err != nil {
			return identity.RestoredIdentity{}, err
		}
		ri.Archived = append(ri.Archived, spk)
	}
	for _, p := range in.OneTime {
		priv, err := asDHPrivate(p.Priv)
		if err != nil {
			return identity.RestoredIdentity{}, err
		}
		pub, err := asDHPublic(p.Pub)
		if err != nil {
			return identity.RestoredIdentity{}, err
		}
		ri.OneTime = append(ri.OneTime, domain.OneTimePreKeyPair{ID: p.ID, Priv: priv, Pub: pub})
	}
	return ri, nil
}
