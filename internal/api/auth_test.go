package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/lucendex/crossroute/internal/kv"
)

type mockDB struct {
	principals map[uuid.UUID]*Principal
	keys       map[uuid.UUID]*APIKey
	requestIDs map[string]bool
	err        error
}

func newMockDB() *mockDB {
	return &mockDB{
		principals: make(map[uuid.UUID]*Principal),
		keys:       make(map[uuid.UUID]*APIKey),
		requestIDs: make(map[string]bool),
	}
}

func (m *mockDB) GetPrincipalByID(ctx context.Context, id uuid.UUID) (*Principal, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.principals[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

func (m *mockDB) GetActiveAPIKey(ctx context.Context, principalID uuid.UUID) (*APIKey, error) {
	if m.err != nil {
		return nil, m.err
	}
	k, ok := m.keys[principalID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return k, nil
}

func (m *mockDB) CheckRequestID(ctx context.Context, requestID uuid.UUID, principalID uuid.UUID) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.requestIDs[principalID.String()+requestID.String()], nil
}

func (m *mockDB) StoreRequestID(ctx context.Context, requestID uuid.UUID, principalID uuid.UUID, expiresAt time.Time) error {
	m.requestIDs[principalID.String()+requestID.String()] = true
	return m.err
}

type identity struct {
	principal *Principal
	priv      ed25519.PrivateKey
}

func (m *mockDB) addPrincipal(t *testing.T, name, role string, addr common.Address) identity {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	p := &Principal{
		ID:      uuid.New(),
		Name:    name,
		Role:    role,
		Address: addr,
		Plan:    "standard",
		Status:  "active",
	}
	m.principals[p.ID] = p
	m.keys[p.ID] = &APIKey{ID: uuid.New(), PrincipalID: p.ID, PublicKey: hex.EncodeToString(pub)}
	return identity{principal: p, priv: priv}
}

func signedRequest(id identity, method, target string, body []byte, at time.Time) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	ts := at.UTC().Format(time.RFC3339)
	canonical := CanonicalRequest(method, req.URL.Path, req.URL.RawQuery, body, ts)

	req.Header.Set("X-Principal-Id", id.principal.ID.String())
	req.Header.Set("X-Request-Id", uuid.NewString())
	req.Header.Set("X-Timestamp", ts)
	req.Header.Set("X-Signature", base64.StdEncoding.EncodeToString(ed25519.Sign(id.priv, canonical)))
	return req
}

func echoPrincipal() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(p.Name))
	})
}

func TestAuthMiddleware_ValidSignature(t *testing.T) {
	db := newMockDB()
	alice := db.addPrincipal(t, "alice", RoleUser, common.HexToAddress("0xa11ce"))
	logger, _ := test.NewNullLogger()
	am := NewAuthMiddleware(db, nil, logger)

	rec := httptest.NewRecorder()
	am.Middleware(echoPrincipal()).ServeHTTP(rec, signedRequest(alice, http.MethodPost, "/v1/quote?x=1", []byte(`{"a":1}`), time.Now()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "alice" {
		t.Errorf("principal = %q, want alice", rec.Body.String())
	}
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	db := newMockDB()
	alice := db.addPrincipal(t, "alice", RoleUser, common.HexToAddress("0xa11ce"))
	_, otherKey, _ := ed25519.GenerateKey(rand.Reader)

	suspended := db.addPrincipal(t, "bob", RoleUser, common.HexToAddress("0xb0b"))
	suspended.principal.Status = "suspended"

	ghost := identity{principal: &Principal{ID: uuid.New()}, priv: alice.priv}

	tests := []struct {
		name       string
		build      func() *http.Request
		wantStatus int
	}{
		{
			name: "missing headers",
			build: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/v1/routes", nil)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "malformed principal id",
			build: func() *http.Request {
				r := signedRequest(alice, http.MethodGet, "/v1/routes", nil, time.Now())
				r.Header.Set("X-Principal-Id", "not-a-uuid")
				return r
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "stale timestamp",
			build: func() *http.Request {
				return signedRequest(alice, http.MethodGet, "/v1/routes", nil, time.Now().Add(-2*time.Minute))
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "wrong key",
			build: func() *http.Request {
				return signedRequest(identity{principal: alice.principal, priv: otherKey}, http.MethodGet, "/v1/routes", nil, time.Now())
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "tampered body",
			build: func() *http.Request {
				r := signedRequest(alice, http.MethodPost, "/v1/quote", []byte(`{"amount":"1"}`), time.Now())
				r.Body = httptestBody(`{"amount":"9"}`)
				return r
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "unknown principal",
			build: func() *http.Request {
				return signedRequest(ghost, http.MethodGet, "/v1/routes", nil, time.Now())
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "suspended principal",
			build: func() *http.Request {
				return signedRequest(suspended, http.MethodGet, "/v1/routes", nil, time.Now())
			},
			wantStatus: http.StatusForbidden,
		},
	}

	am := NewAuthMiddleware(db, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			am.Middleware(echoPrincipal()).ServeHTTP(rec, tt.build())
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func httptestBody(s string) *nopBody {
	return &nopBody{strings.NewReader(s)}
}

type nopBody struct{ *strings.Reader }

func (nopBody) Close() error { return nil }

func TestAuthMiddleware_Replay(t *testing.T) {
	db := newMockDB()
	alice := db.addPrincipal(t, "alice", RoleUser, common.HexToAddress("0xa11ce"))

	for _, withCache := range []bool{false, true} {
		var seen SeenCache
		if withCache {
			store := kv.NewMemoryStore()
			defer store.Close()
			seen = store
		}
		am := NewAuthMiddleware(db, seen, nil)

		req := signedRequest(alice, http.MethodGet, "/v1/routes", nil, time.Now())
		replay := req.Clone(context.Background())

		rec := httptest.NewRecorder()
		am.Middleware(echoPrincipal()).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("first request status = %d", rec.Code)
		}

		rec = httptest.NewRecorder()
		am.Middleware(echoPrincipal()).ServeHTTP(rec, replay)
		if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), "replay") {
			t.Errorf("replay (cache=%v) status = %d, body = %s", withCache, rec.Code, rec.Body.String())
		}
	}
}

func TestAuthMiddleware_ForgedRequestKeepsRequestIDFree(t *testing.T) {
	db := newMockDB()
	alice := db.addPrincipal(t, "alice", RoleUser, common.HexToAddress("0xa11ce"))
	store := kv.NewMemoryStore()
	defer store.Close()
	am := NewAuthMiddleware(db, store, nil)

	req := signedRequest(alice, http.MethodGet, "/v1/routes", nil, time.Now())
	forged := req.Clone(context.Background())
	forged.Header.Set("X-Signature", base64.StdEncoding.EncodeToString(make([]byte, ed25519.SignatureSize)))

	rec := httptest.NewRecorder()
	am.Middleware(echoPrincipal()).ServeHTTP(rec, forged)
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), ErrInvalidSignature.Error()) {
		t.Fatalf("forged status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	am.Middleware(echoPrincipal()).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("signed request after forgery status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestAuthMiddleware_DatabaseError(t *testing.T) {
	db := newMockDB()
	alice := db.addPrincipal(t, "alice", RoleUser, common.HexToAddress("0xa11ce"))
	db.err = sql.ErrConnDone

	logger, hook := test.NewNullLogger()
	am := NewAuthMiddleware(db, nil, logger)

	rec := httptest.NewRecorder()
	am.Middleware(echoPrincipal()).ServeHTTP(rec, signedRequest(alice, http.MethodGet, "/v1/routes", nil, time.Now()))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if hook.LastEntry() == nil || hook.LastEntry().Message != "authentication error" {
		t.Error("expected an authentication error log entry")
	}
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	guarded := RequireRole(ok, RoleAdmin, RoleExecutor)

	tests := []struct {
		role string
		want int
	}{
		{RoleAdmin, http.StatusOK},
		{RoleExecutor, http.StatusOK},
		{RoleUser, http.StatusForbidden},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(context.WithValue(req.Context(), ContextKeyPrincipal, &Principal{Role: tt.role}))
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("role %s: status = %d, want %d", tt.role, rec.Code, tt.want)
		}
	}

	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no principal: status = %d", rec.Code)
	}
}

func TestCanonicalRequest(t *testing.T) {
	got := string(CanonicalRequest("GET", "/v1/routes", "a=1", nil, "2026-01-01T00:00:00Z"))
	want := "GET\n/v1/routes\na=1\ne3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855\n2026-01-01T00:00:00Z"
	if got != want {
		t.Errorf("CanonicalRequest() = %q, want %q", got, want)
	}
}
