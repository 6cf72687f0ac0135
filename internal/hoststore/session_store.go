package hoststore

import (
	"os"
	"path/filepath"
)

// SessionStore persists one ratchetcore.Core.ExportSession blob per contact,
// encrypted at rest, one file per contact under home/sessions/.
type SessionStore struct {
	home string
}

func NewSessionStore(home string) *SessionStore {
	return &SessionStore{home: home}
}

func (s *SessionStore) dir() string { return filepath.Join(s.home, "sessions") }

func (s *SessionStore) path(contactID string) string {
	return filepath.Join(s.dir(), sanitizeContactID(contactID)+".json")
}

// Save encrypts and writes the exported session bytes for contactID.
func (s *SessionStore) Save(passphrase, contactID string, exported []byte) error {
	if err := os.MkdirAll(s.dir(), 0o700); err != nil {
		return err
	}
	sealed, err := sealAtRest(passphrase, exported)
	if err != nil {
		return err
	}
	return writeFile(s.path(contactID), sealed, 0o600)
}

// Load decrypts and returns the exported session bytes for contactID.
// ok is false if no session file exists yet for this contact.
func (s *SessionStore) Load(passphrase, contactID string) (exported []byte, ok bool, err error) {
	sealed, err := readFile(s.path(contactID))
	if err != nil {
		return nil, false, err
	}
	if sealed == nil {
		return nil, false, nil
	}
	plain, err := openAtRest(passphrase, sealed)
	if err != nil {
		return nil, false, err
	}
	return plain, true, nil
}

// sanitizeContactID keeps contact_id values from escaping the sessions
// directory; ratchetcore treats contact_id as an opaque string, but this
// store uses it as a filename component.
func sanitizeContactID(contactID string) string {
	out := make([]rune, 0, len(contactID))
	for _, r := range contactID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
