// Command relaydemo is a tiny in-memory HTTP store-and-forward relay so two
// ratchetctl instances can hand bundles and envelopes to each other over a
// loopback HTTP server during manual testing. It is not part of the
// cryptographic core and does no cryptography itself — it only stores and
// forwards the opaque byte blobs ratchetctl gives it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"
)

var (
	port          int
	enableLogging bool
)

const (
	defaultPort     = 8088
	readHeaderTO    = 5 * time.Second
	readTO          = 10 * time.Second
	writeTO         = 10 * time.Second
	idleTO          = 60 * time.Second
	maxRequestBody  = 1 << 20 // 1 MiB
	maxPerUserQueue = 1000
)

// queuedEnvelope pairs an opaque envelope blob with the sender's contact id,
// so the recipient knows whose bundle to fetch if no session exists yet.
type queuedEnvelope struct {
	From     string `json:"from"`
	Envelope []byte `json:"envelope"`
}

// state holds registered bundles and per-user envelope queues.
type state struct {
	mu      sync.RWMutex
	bundles map[string][]byte
	queues  map[string][]queuedEnvelope
}

func newState() *state {
	return &state{
		bundles: make(map[string][]byte),
		queues:  make(map[string][]queuedEnvelope),
	}
}

func withRecover(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				writeErr(w, http.StatusInternalServerError, "internal error")
				if enableLogging {
					slog.Error("panic", "err", rec)
				}
			}
		}()
		h(w, r)
	}
}

func withLogging(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !enableLogging {
			h(w, r)
			return
		}
		start := time.Now()
		h(w, r)
		slog.Info("access", "method", r.Method, "path", r.URL.Path, "dur", time.Since(start))
	}
}

func chain(h http.HandlerFunc, mws ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func parseLimit(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	return n, nil
}

// handlePutBundle stores a registration bundle's raw bytes (POST /bundle/{user}).
func (s *state) handlePutBundle(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	user := r.PathValue("user")
	if user == "" {
		writeErr(w, http.StatusBadRequest, "username required")
		return
	}
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	b, err := io.ReadAll(body)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad request")
		return
	}

	s.mu.Lock()
	s.bundles[user] = b
	s.mu.Unlock()

	if enableLogging {
		slog.Info("bundle_put", "user", user, "bytes", len(b))
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetBundle returns a stored bundle's raw bytes (GET /bundle/{user}).
func (s *state) handleGetBundle(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	s.mu.RLock()
	b, ok := s.bundles[user]
	s.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(b)
}

// handleEnqueue enqueues an envelope for user (POST /msg/{user}?from=sender).
func (s *state) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	user := r.PathValue("user")
	from := r.URL.Query().Get("from")
	if user == "" || from == "" {
		writeErr(w, http.StatusBadRequest, "user and from required")
		return
	}
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	env, err := io.ReadAll(body)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad request")
		return
	}

	s.mu.Lock()
	q := append(s.queues[user], queuedEnvelope{From: from, Envelope: env})
	if len(q) > maxPerUserQueue {
		q = q[len(q)-maxPerUserQueue:]
	}
	s.queues[user] = q
	qlen := len(q)
	s.mu.Unlock()

	if enableLogging {
		slog.Info("enqueue", "user", user, "from", from, "queue_len", qlen)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleFetch returns queued envelopes for user (GET /msg/{user}?limit=N).
func (s *state) handleFetch(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad limit")
		return
	}

	s.mu.RLock()
	q := s.queues[user]
	if limit == 0 || limit > len(q) {
		limit = len(q)
	}
	out := make([]queuedEnvelope, limit)
	copy(out, q[:limit])
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// handleAck drops the first N queued envelopes for user (POST /msg/{user}/ack).
func (s *state) handleAck(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	user := r.PathValue("user")

	var ack struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&ack); err != nil || ack.Count < 0 {
		writeErr(w, http.StatusBadRequest, "bad request")
		return
	}

	s.mu.Lock()
	if ack.Count > len(s.queues[user]) {
		ack.Count = len(s.queues[user])
	}
	s.queues[user] = s.queues[user][ack.Count:]
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func main() {
	pflag.IntVarP(&port, "port", "p", defaultPort, "port to listen on")
	pflag.BoolVar(&enableLogging, "log", false, "enable access logging")
	pflag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(log.Writer(), &slog.HandlerOptions{Level: slog.LevelInfo})))

	s := newState()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /bundle/{user}", chain(s.handlePutBundle, withRecover, withLogging))
	mux.HandleFunc("GET /bundle/{user}", chain(s.handleGetBundle, withRecover, withLogging))
	mux.HandleFunc("POST /msg/{user}", chain(s.handleEnqueue, withRecover, withLogging))
	mux.HandleFunc("GET /msg/{user}", chain(s.handleFetch, withRecover, withLogging))
	mux.HandleFunc("POST /msg/{user}/ack", chain(s.handleAck, withRecover, withLogging))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTO,
		ReadTimeout:       readTO,
		WriteTimeout:      writeTO,
		IdleTimeout:       idleTO,
	}

	go func() {
		slog.Info("relaydemo listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("relaydemo failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}
