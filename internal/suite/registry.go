package suite

import "ratchetcore/internal/errs"

// Registry looks up a Suite implementation by its wire suite_id; Lookup
// rejects an unknown suite_id with errs.InvalidKeyData. The façade and
// ratchet do not consult a Registry: they compare a peer's or envelope's
// suite_id against their own suite and reject a difference with
// errs.SuiteMismatch.
type Registry struct {
	suites map[uint16]Suite
}

// NewRegistry returns a Registry pre-populated with the classic suite.
// Hosts that want to drop in a hybrid post-quantum suite call Register
// with its implementation and suite_id.
func NewRegistry() *Registry {
	r := &Registry{suites: make(map[uint16]Suite)}
	r.Register(NewClassic())
	return r
}

// Register adds or replaces the Suite for its own ID().
func (r *Registry) Register(s Suite) {
	r.suites[s.ID()] = s
}

// Lookup returns the Suite for id, or errs.InvalidKeyData if unknown.
func (r *Registry) Lookup(id uint16) (Suite, error) {
	s, ok := r.suites[id]
	if !ok {
		return nil, errs.New(errs.InvalidKeyData, "unknown suite_id")
	}
	return s, nil
}
