package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lucendex/crossroute/internal/kv"
)

const (
	MaxClockDrift  = 60 * time.Second
	RequestIDTTL   = 2 * time.Minute
	MaxRequestBody = 1 << 20
)

type DB interface {
	GetPrincipalByID(ctx context.Context, id uuid.UUID) (*Principal, error)
	GetActiveAPIKey(ctx context.Context, principalID uuid.UUID) (*APIKey, error)
	CheckRequestID(ctx context.Context, requestID uuid.UUID, principalID uuid.UUID) (bool, error)
	StoreRequestID(ctx context.Context, requestID uuid.UUID, principalID uuid.UUID, expiresAt time.Time) error
}

// SeenCache is the in-process replay filter consulted before the database.
type SeenCache interface {
	Remember(namespace, key string, ttl time.Duration) (bool, error)
}

// AuthMiddleware verifies ed25519-signed requests. The signature covers
//
//	METHOD \n PATH \n RAW_QUERY \n hex(sha256(body)) \n TIMESTAMP
//
// and each X-Request-Id is accepted once per principal.
type AuthMiddleware struct {
	db     DB
	seen   SeenCache
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewAuthMiddleware(db DB, seen SeenCache, logger logrus.FieldLogger) *AuthMiddleware {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AuthMiddleware{db: db, seen: seen, logger: logger, now: time.Now}
}

func (am *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		principalIDStr := r.Header.Get("X-Principal-Id")
		requestIDStr := r.Header.Get("X-Request-Id")
		timestamp := r.Header.Get("X-Timestamp")
		signature := r.Header.Get("X-Signature")

		if principalIDStr == "" || requestIDStr == "" || timestamp == "" || signature == "" {
			am.reject(w, r, http.StatusUnauthorized, ErrMissingAuthHeaders.Error())
			return
		}

		principalID, err := uuid.Parse(principalIDStr)
		if err != nil {
			am.reject(w, r, http.StatusUnauthorized, "invalid principal-id format")
			return
		}
		requestID, err := uuid.Parse(requestIDStr)
		if err != nil {
			am.reject(w, r, http.StatusUnauthorized, "invalid request-id format")
			return
		}

		ts, err := time.Parse(time.RFC3339, timestamp)
		if err != nil {
			am.reject(w, r, http.StatusUnauthorized, "invalid timestamp format")
			return
		}
		drift := am.now().Sub(ts)
		if drift < 0 {
			drift = -drift
		}
		if drift > MaxClockDrift {
			am.reject(w, r, http.StatusUnauthorized, ErrInvalidTimestamp.Error())
			return
		}

		exists, err := am.db.CheckRequestID(ctx, requestID, principalID)
		if err != nil {
			am.fail(w, "check request id", principalID, err)
			return
		}
		if exists {
			am.reject(w, r, http.StatusUnauthorized, ErrReplayAttack.Error())
			return
		}

		principal, err := am.db.GetPrincipalByID(ctx, principalID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				am.reject(w, r, http.StatusUnauthorized, ErrInvalidPrincipal.Error())
				return
			}
			am.fail(w, "load principal", principalID, err)
			return
		}
		if principal.Status != "active" {
			am.reject(w, r, http.StatusForbidden, ErrPrincipalSuspended.Error())
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBody)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		apiKey, err := am.db.GetActiveAPIKey(ctx, principalID)
		if err != nil {
			am.reject(w, r, http.StatusUnauthorized, ErrInvalidPrincipal.Error())
			return
		}

		sig, err := base64.StdEncoding.DecodeString(signature)
		if err != nil {
			am.reject(w, r, http.StatusUnauthorized, "invalid signature encoding")
			return
		}
		pub, err := hex.DecodeString(apiKey.PublicKey)
		if err != nil || len(pub) != ed25519.PublicKeySize {
			am.fail(w, "decode public key", principalID, fmt.Errorf("malformed key %s", apiKey.ID))
			return
		}
		if !ed25519.Verify(pub, CanonicalRequest(r.Method, r.URL.Path, r.URL.RawQuery, body, timestamp), sig) {
			am.reject(w, r, http.StatusUnauthorized, ErrInvalidSignature.Error())
			return
		}

		// Only a verified request may claim its request id.
		if am.seen != nil {
			fresh, err := am.seen.Remember(kv.NamespaceSeen, principalID.String()+":"+requestID.String(), RequestIDTTL)
			if err == nil && !fresh {
				am.reject(w, r, http.StatusUnauthorized, ErrReplayAttack.Error())
				return
			}
		}

		if err := am.db.StoreRequestID(ctx, requestID, principalID, am.now().Add(RequestIDTTL)); err != nil {
			am.fail(w, "store request id", principalID, err)
			return
		}

		ctx = context.WithValue(ctx, ContextKeyPrincipal, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CanonicalRequest is the byte string a client signs.
func CanonicalRequest(method, path, rawQuery string, body []byte, timestamp string) []byte {
	sum := sha256.Sum256(body)
	return []byte(fmt.Sprintf("%s\n%s\n%s\n%x\n%s", method, path, rawQuery, sum, timestamp))
}

// RequireRole rejects principals whose role is not listed.
func RequireRole(next http.Handler, roles ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing principal context")
			return
		}
		for _, role := range roles {
			if p.Role == role {
				next.ServeHTTP(w, r)
				return
			}
		}
		writeError(w, http.StatusForbidden, ErrForbiddenRole.Error())
	})
}

func (am *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request, status int, msg string) {
	AuthFailures.WithLabelValues(msg).Inc()
	am.logger.WithFields(logrus.Fields{
		"path":   r.URL.Path,
		"reason": msg,
	}).Debug("request rejected")
	writeError(w, status, msg)
}

func (am *AuthMiddleware) fail(w http.ResponseWriter, step string, principalID uuid.UUID, err error) {
	am.logger.WithFields(logrus.Fields{
		"step":         step,
		"principal_id": principalID.String(),
		"error":        err.Error(),
	}).Error("authentication error")
	writeError(w, http.StatusInternalServerError, "authentication error")
}
