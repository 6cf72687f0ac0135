package domain

// SignedPreKeyID names one generation of signed prekey, so a responder can
// look up the exact private key an initiator's handshake targeted even
// after rotation has moved the "current" one forward.
type SignedPreKeyID uint32

// OneTimePreKeyID names a single one-time prekey. IDs are never reused.
type OneTimePreKeyID uint32

// SignedPreKey is one generation of medium-term DH keypair plus the
// signature over its public half.
type SignedPreKey struct {
	ID        SignedPreKeyID
	Priv      DHPrivate
	Pub       DHPublic
	Signature []byte
}

// OneTimePreKeyPair is the full (private+public) one-time prekey held
// locally until consumed by a responder handshake.
type OneTimePreKeyPair struct {
	ID   OneTimePreKeyID
	Priv DHPrivate
	Pub  DHPublic
}

// OneTimePreKeyPublic is the public half advertised in a bundle.
type OneTimePreKeyPublic struct {
	ID  OneTimePreKeyID
	Pub DHPublic
}

// Identity is the long-term key material for one user: a KEM/DH keypair and
// a signature keypair (the "master verifying key").
type Identity struct {
	IKPriv  DHPrivate
	IKPub   DHPublic
	SIGPriv SigPrivate
	SIGPub  SigPublic
}

// Bundle is the registration bundle a user publishes for asynchronous
// handshakes: suite identifier, identity key, current signed prekey and its
// signature, the verifying key, and any one-time prekeys still available.
type Bundle struct {
	SuiteID        uint16
	IKPub          DHPublic
	SPKID          SignedPreKeyID
	SPKPub         DHPublic
	SPKSignature   []byte
	SIGPub         SigPublic
	OneTimePreKeys []OneTimePreKeyPublic
}
