package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/auth"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/common"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newService(t *testing.T, now time.Time) *auth.Service {
	t.Helper()
	svc, err := auth.NewService(auth.Config{
		Secret:    testSecret,
		Issuer:    "tpq-billing",
		Audience:  "tpq-app",
		AccessTTL: 15 * time.Minute,
		ClockSkew: time.Second,
	})
	require.NoError(t, err)
	svc.Now = func() time.Time { return now }
	return svc
}

func TestSignParseRoundTrip(t *testing.T) {
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	svc := newService(t, now)
	guardian := uuid.New()

	token, expiresAt, err := svc.Sign(auth.Identity{GuardianID: guardian, Role: common.RoleAdmin})
	require.NoError(t, err)
	require.Equal(t, now.Add(15*time.Minute), expiresAt)

	id, err := svc.Parse(token)
	require.NoError(t, err)
	require.Equal(t, guardian, id.GuardianID)
	require.Equal(t, common.RoleAdmin, id.Role)
}

func TestParseDefaultsToGuardianRole(t *testing.T) {
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	svc := newService(t, now)

	token, _, err := svc.Sign(auth.Identity{GuardianID: uuid.New()})
	require.NoError(t, err)

	id, err := svc.Parse(token)
	require.NoError(t, err)
	require.Equal(t, common.RoleGuardian, id.Role)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	svc := newService(t, now)
	token, _, err := svc.Sign(auth.Identity{GuardianID: uuid.New()})
	require.NoError(t, err)

	svc.Now = func() time.Time { return now.Add(time.Hour) }
	_, err = svc.Parse(token)
	require.Error(t, err)
}

func TestParseRejectsForeignSecret(t *testing.T) {
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	other, err := auth.NewService(auth.Config{Secret: "ffffffffffffffffffffffffffffffff", Issuer: "tpq-billing", Audience: "tpq-app"})
	require.NoError(t, err)
	other.Now = func() time.Time { return now }
	token, _, err := other.Sign(auth.Identity{GuardianID: uuid.New()})
	require.NoError(t, err)

	svc := newService(t, now)
	_, err = svc.Parse(token)
	require.Error(t, err)
}

func TestNewServiceRejectsShortSecret(t *testing.T) {
	_, err := auth.NewService(auth.Config{Secret: "short"})
	require.Error(t, err)
}

func TestMiddlewareRequireAuth(t *testing.T) {
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	svc := newService(t, now)
	guardian := uuid.New()
	token, _, err := svc.Sign(auth.Identity{GuardianID: guardian})
	require.NoError(t, err)

	mw := auth.Middleware{Service: svc}
	var gotGuardian uuid.UUID
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotGuardian, _ = common.GuardianID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, guardian, gotGuardian)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareRequireAdmin(t *testing.T) {
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	svc := newService(t, now)
	mw := auth.Middleware{Service: svc}
	handler := mw.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	guardianToken, _, err := svc.Sign(auth.Identity{GuardianID: uuid.New()})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+guardianToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	adminToken, _, err := svc.Sign(auth.Identity{GuardianID: uuid.New(), Role: common.RoleAdmin})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
