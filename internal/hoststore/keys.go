package hoststore

import (
	"fmt"

	"ratchetcore/internal/domain"
)

func asDHPrivate(b []byte) (domain.DHPrivate, error) {
	if len(b) != 32 {
		return domain.DHPrivate{}, fmt.Errorf("wrong length for DH private key field: %d", len(b))
	}
	return domain.MustDHPrivate(b), nil
}

func asDHPublic(b []byte) (domain.DHPublic, error) {
	if len(b) != 32 {
		return domain.DHPublic{}, fmt.Errorf("wrong length for DH public key field: %d", len(b))
	}
	return domain.MustDHPublic(b), nil
}

func asSigPrivate(b []byte) (domain.SigPrivate, error) {
	if len(b) != 64 {
		return domain.SigPrivate{}, fmt.Errorf("wrong length for signing private key field: %d", len(b))
	}
	return domain.MustSigPrivate(b), nil
}

func asSigPublic(b []byte) (domain.SigPublic, error) {
	if len(b) != 32 {
		return domain.SigPublic{}, fmt.Errorf("wrong length for signing public key field: %d", len(b))
	}
	return domain.MustSigPublic(b), nil
}
