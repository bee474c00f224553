package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/formthefog/formation-sub001/pkg/identity"
	"github.com/formthefog/formation-sub001/pkg/oplog"
	"github.com/formthefog/formation-sub001/pkg/rs"
	"github.com/formthefog/formation-sub001/pkg/types"
)

type fakeIngressStore struct {
	registers map[types.EntityKind]map[string]types.Register
	applyErr  error
}

func newFakeIngressStore() *fakeIngressStore {
	return &fakeIngressStore{registers: make(map[types.EntityKind]map[string]types.Register)}
}

func (f *fakeIngressStore) Read(kind types.EntityKind, key string) (json.RawMessage, bool, error) {
	reg, ok := f.registers[kind][key]
	if !ok || reg.Tombstone {
		return nil, false, nil
	}
	return reg.Value, true, nil
}

func (f *fakeIngressStore) ApplyLocal(op rs.SignedOp) (rs.Delta, error) {
	if f.applyErr != nil {
		return rs.Delta{}, f.applyErr
	}
	reg := types.Register{Value: op.Value, Actor: op.Actor, Sig: op.Sig, Tombstone: op.Tombstone}
	if f.registers[op.Kind] == nil {
		f.registers[op.Kind] = make(map[string]types.Register)
	}
	f.registers[op.Kind][op.Key] = reg
	return rs.Delta{Kind: op.Kind, Key: op.Key, Register: reg}, nil
}

func (f *fakeIngressStore) ListRegisters(kind types.EntityKind) (map[string]types.Register, error) {
	out := make(map[string]types.Register, len(f.registers[kind]))
	for k, v := range f.registers[kind] {
		out[k] = v
	}
	return out, nil
}

func signedRequest(t *testing.T, kp *identity.KeyPair, method, path string, body []byte, ts time.Time) *http.Request {
	t.Helper()
	hash := identity.CanonicalRequestHash(method, path, body, ts.Unix())
	sig, err := kp.Sign(hash)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("X-Signature", sig.String())
	req.Header.Set("X-Recovery-ID", strconv.Itoa(int(sig.RecoveryID())))
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts.Unix(), 10))
	return req
}

func newTestServer(store Store, at time.Time) *Server {
	s := NewServer(store)
	s.now = func() time.Time { return at }
	return s
}

func TestCreateAccountSucceedsWithValidSignature(t *testing.T) {
	store := newFakeIngressStore()
	kp, err := identity.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	s := newTestServer(store, now)

	body := []byte(`{"address":"` + kp.Address.String() + `","credits":10}`)
	req := signedRequest(t, kp, http.MethodPost, "/account/create", body, now)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
	if _, found := store.registers[types.EntityAccount][kp.Address.String()]; !found {
		t.Fatal("account was not applied to the store")
	}
}

func TestCreateRejectsStaleTimestamp(t *testing.T) {
	store := newFakeIngressStore()
	kp, _ := identity.GenerateKeyPair()
	now := time.Unix(1_700_000_000, 0)
	signedAt := now.Add(-10 * time.Minute)
	s := newTestServer(store, now)

	body := []byte(`{"address":"` + kp.Address.String() + `"}`)
	req := signedRequest(t, kp, http.MethodPost, "/account/create", body, signedAt)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a stale timestamp", rec.Code)
	}
}

func TestCreateRejectsMissingSignatureHeaders(t *testing.T) {
	store := newFakeIngressStore()
	now := time.Unix(1_700_000_000, 0)
	s := newTestServer(store, now)

	body := []byte(`{"address":"0x0000000000000000000000000000000000000001"}`)
	req := httptest.NewRequest(http.MethodPost, "/account/create", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an unsigned mutating request", rec.Code)
	}
}

func TestGetAndListAreUnauthenticated(t *testing.T) {
	store := newFakeIngressStore()
	kp, _ := identity.GenerateKeyPair()
	store.registers[types.EntityAccount] = map[string]types.Register{
		kp.Address.String(): {Value: json.RawMessage(`{"address":"` + kp.Address.String() + `"}`)},
	}
	s := newTestServer(store, time.Now())

	getReq := httptest.NewRequest(http.MethodGet, "/account/"+kp.Address.String()+"/get", nil)
	getRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", getRec.Code)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/account/list", nil)
	listRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(listRec, listReq)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", listRec.Code)
	}
}

func TestGetReturnsNotFoundForMissingKey(t *testing.T) {
	store := newFakeIngressStore()
	s := newTestServer(store, time.Now())

	req := httptest.NewRequest(http.MethodGet, "/account/0xdeadbeef/get", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestUnknownEntityIsNotFound(t *testing.T) {
	store := newFakeIngressStore()
	s := newTestServer(store, time.Now())

	req := httptest.NewRequest(http.MethodGet, "/widget/list", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for an unknown entity kind", rec.Code)
	}
}

func TestApplyErrorsMapToSpecTaxonomy(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid signature", rs.ErrInvalidSignature, http.StatusBadRequest},
		{"not authorized", rs.ErrNotAuthorized, http.StatusForbidden},
		{"busy", oplog.ErrBusy, http.StatusServiceUnavailable},
		{"unexpected", errUnexpected, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeIngressStore()
			store.applyErr = tc.err
			kp, _ := identity.GenerateKeyPair()
			now := time.Unix(1_700_000_000, 0)
			s := newTestServer(store, now)

			body := []byte(`{"address":"` + kp.Address.String() + `"}`)
			req := signedRequest(t, kp, http.MethodPost, "/account/create", body, now)
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

var errUnexpected = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
