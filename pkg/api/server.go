package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/formthefog/formation-sub001/pkg/flog"
	"github.com/formthefog/formation-sub001/pkg/metrics"
	"github.com/formthefog/formation-sub001/pkg/oplog"
	"github.com/formthefog/formation-sub001/pkg/rs"
	"github.com/formthefog/formation-sub001/pkg/types"
)

// Store is the subset of *rs.Store the HTTP ingress needs: read, write,
// and enumerate entities. It is the same shape pkg/reconciler depends on,
// so pkg/node can hand both packages the identical adapter.
type Store interface {
	Read(kind types.EntityKind, key string) (json.RawMessage, bool, error)
	ApplyLocal(op rs.SignedOp) (rs.Delta, error)
	ListRegisters(kind types.EntityKind) (map[string]types.Register, error)
}

// Server is the JSON control-plane ingress spec.md §6 describes: a single
// HTTP port serving `/<entity>/list|:id/get|create|update|delete` routes
// behind the keccak256 request-signature auth scheme. Built on net/http +
// http.ServeMux, the way warren's pkg/api/health.go builds its own health
// server — no framework, since the teacher never reaches for one for
// plain JSON endpoints.
type Server struct {
	store  Store
	mux    *http.ServeMux
	logger zerolog.Logger
	now    func() time.Time
}

// NewServer constructs the ingress. now defaults to time.Now; tests
// inject a fixed clock to make the auth timestamp window deterministic.
func NewServer(store Store) *Server {
	s := &Server{
		store:  store,
		mux:    http.NewServeMux(),
		logger: flog.WithComponent("api"),
		now:    time.Now,
	}
	s.mux.HandleFunc("/", s.routeEntity)
	return s
}

// Handler returns the ingress's http.Handler for embedding in pkg/node's
// top-level server (alongside the health/metrics mux).
func (s *Server) Handler() http.Handler {
	return s.mux
}

// routeEntity dispatches "/<entity>/<verb>" and "/<entity>/<id>/get"
// requests; everything else is 404 (spec.md §6's fixed route grouping).
func (s *Server) routeEntity(w http.ResponseWriter, r *http.Request) {
	timer := metrics.NewTimer()
	status := http.StatusOK

	// Every request gets its own operation ID, echoed back so a client can
	// correlate a failure with this node's logs (spec.md §6's control-plane
	// API has no other correlation handle between a write and its effects
	// once it's been signed and sent).
	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)
	defer func() {
		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
		s.logger.Debug().Str("request_id", requestID).Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Msg("request handled")
	}()

	segments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(segments) < 2 {
		status = http.StatusNotFound
		writeFailure(w, status, "unknown route")
		return
	}
	kind, ok := parseEntityKind(segments[0])
	if !ok {
		status = http.StatusNotFound
		writeFailure(w, status, fmt.Sprintf("unknown entity %q", segments[0]))
		return
	}

	var verb, id string
	if len(segments) == 2 {
		verb = segments[1]
	} else if len(segments) == 3 && segments[2] == "get" {
		id, verb = segments[1], "get"
	} else {
		status = http.StatusNotFound
		writeFailure(w, status, "unknown route")
		return
	}

	switch verb {
	case "list":
		status = s.handleList(w, r, kind)
	case "get":
		status = s.handleGet(w, r, kind, id)
	case "create", "update":
		status = s.handleWrite(w, r, kind)
	case "delete":
		status = s.handleDelete(w, r, kind)
	default:
		status = http.StatusNotFound
		writeFailure(w, status, fmt.Sprintf("unknown verb %q", verb))
	}
}

// handleList and handleGet are unauthenticated: spec.md §6 permits
// unauthenticated reads for non-sensitive endpoints, and reads never
// mutate (§7: "always safe to retry").
func (s *Server) handleList(w http.ResponseWriter, r *http.Request, kind types.EntityKind) int {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		return s.methodNotAllowed(w)
	}
	regs, err := s.store.ListRegisters(kind)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", string(kind)).Msg("list failed")
		writeFailure(w, http.StatusInternalServerError, "internal error")
		return http.StatusInternalServerError
	}
	values := make([]json.RawMessage, 0, len(regs))
	for _, reg := range regs {
		if reg.Tombstone {
			continue
		}
		values = append(values, reg.Value)
	}
	writeList(w, values)
	return http.StatusOK
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, kind types.EntityKind, id string) int {
	if r.Method != http.MethodGet {
		return s.methodNotAllowed(w)
	}
	value, found, err := s.store.Read(kind, id)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", string(kind)).Str("key", id).Msg("get failed")
		writeFailure(w, http.StatusInternalServerError, "internal error")
		return http.StatusInternalServerError
	}
	if !found {
		writeFailure(w, http.StatusNotFound, "not found")
		return http.StatusNotFound
	}
	writeSome(w, http.StatusOK, value)
	return http.StatusOK
}

// handleWrite backs both create and update: RS's CRDT merge makes the two
// the same operation (spec.md §4.1 — a write either establishes a key or
// dominates the register already there), so the ingress doesn't need to
// distinguish them beyond routing.
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request, kind types.EntityKind) int {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		return s.methodNotAllowed(w)
	}
	body, err := readBody(r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "failed to read body")
		return http.StatusBadRequest
	}
	actor, err := authenticate(r, body, s.now)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return http.StatusBadRequest
	}
	key, err := entityKey(kind, body)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return http.StatusBadRequest
	}

	sig, _ := parsedSignature(r)
	delta, err := s.store.ApplyLocal(rs.SignedOp{
		Kind:  kind,
		Key:   key,
		Value: body,
		Actor: actor,
		Sig:   sig,
	})
	return s.respondToWrite(w, kind, key, delta, err)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, kind types.EntityKind) int {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		return s.methodNotAllowed(w)
	}
	body, err := readBody(r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "failed to read body")
		return http.StatusBadRequest
	}
	actor, err := authenticate(r, body, s.now)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return http.StatusBadRequest
	}
	key, err := entityKey(kind, body)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return http.StatusBadRequest
	}

	sig, _ := parsedSignature(r)
	delta, err := s.store.ApplyLocal(rs.SignedOp{
		Kind:      kind,
		Key:       key,
		Value:     body,
		Actor:     actor,
		Sig:       sig,
		Tombstone: true,
	})
	return s.respondToWrite(w, kind, key, delta, err)
}

// respondToWrite maps ApplyLocal's result to spec.md §7's error taxonomy:
// validation/signature -> 400, authorization -> 403, busy -> 503 with
// Retry-After, everything else -> 500.
func (s *Server) respondToWrite(w http.ResponseWriter, kind types.EntityKind, key string, delta rs.Delta, err error) int {
	switch {
	case err == nil:
		writeSome(w, http.StatusOK, delta.Register.Value)
		return http.StatusOK
	case errors.Is(err, rs.ErrInvalidSignature), errors.Is(err, rs.ErrMalformedPayload), errors.Is(err, rs.ErrUnknownEntityKind):
		writeFailure(w, http.StatusBadRequest, err.Error())
		return http.StatusBadRequest
	case errors.Is(err, rs.ErrNotAuthorized):
		writeFailure(w, http.StatusForbidden, err.Error())
		return http.StatusForbidden
	case errors.Is(err, oplog.ErrBusy):
		w.Header().Set("Retry-After", "1")
		writeFailure(w, http.StatusServiceUnavailable, err.Error())
		return http.StatusServiceUnavailable
	default:
		s.logger.Error().Err(err).Str("kind", string(kind)).Str("key", key).Msg("apply failed")
		writeFailure(w, http.StatusInternalServerError, "internal error")
		return http.StatusInternalServerError
	}
}

func (s *Server) methodNotAllowed(w http.ResponseWriter) int {
	writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
	return http.StatusMethodNotAllowed
}

// parsedSignature re-derives the Signature from the request headers;
// authenticate already validated them once, so parse errors here are
// unreachable in practice and are discarded.
func parsedSignature(r *http.Request) (types.Signature, byte) {
	recoveryID, _ := strconv.ParseUint(r.Header.Get("X-Recovery-ID"), 10, 8)
	rid := byte(recoveryID)
	sig, _ := types.ParseSignature(r.Header.Get("X-Signature"), &rid)
	return sig, rid
}

// Serve starts the ingress on addr and blocks until ctx is canceled or
// the server errors; it is pkg/node's responsibility to call Serve in a
// goroutine and cancel ctx during shutdown.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
