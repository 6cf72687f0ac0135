// Package ratchetcore is the cryptographic session core of an end-to-end
// encrypted messenger: identity and prekey lifecycle, an X3DH handshake,
// a Double Ratchet session per peer, and a handle-based registry façade
// meant to sit behind an FFI boundary (mobile, browser, desktop host
// bindings). The core consumes only a random source and a clock; it never
// touches transport, persistence, or UI — see internal/hoststore and
// cmd/ratchetctl for a minimal host binding that exercises it end to end.
package ratchetcore
