package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestVerifyRoundTrip(t *testing.T) {
	tok, err := Sign(secret, Principal{UserID: "u1", Role: RoleSeller}, time.Minute)
	require.NoError(t, err)

	p, err := NewVerifier(secret).Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "u1", Role: RoleSeller}, p)
}

func TestVerifyRejects(t *testing.T) {
	v := NewVerifier(secret)

	expired, err := Sign(secret, Principal{UserID: "u1"}, -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongKey, err := Sign("other", Principal{UserID: "u1"}, time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(wrongKey)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noSubject, err := Sign(secret, Principal{}, time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(noSubject)
	assert.ErrorIs(t, err, ErrInvalidToken)

	badRole, err := Sign(secret, Principal{UserID: "u1", Role: "ROOT"}, time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(badRole)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyDefaultsToBuyer(t *testing.T) {
	tok, err := Sign(secret, Principal{UserID: "u1"}, time.Minute)
	require.NoError(t, err)
	p, err := NewVerifier(secret).Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, RoleBuyer, p.Role)
}

func protected(roles ...Role) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := FromContext(r.Context())
		_, _ = w.Write([]byte(p.UserID))
	})
	h := http.Handler(ok)
	if len(roles) > 0 {
		h = RequireRole(roles...)(h)
	}
	return Middleware(NewVerifier(secret))(h)
}

func request(t *testing.T, h http.Handler, p *Principal) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if p != nil {
		tok, err := Sign(secret, *p, time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware(t *testing.T) {
	rec := request(t, protected(), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_AUTHORIZED")

	rec = request(t, protected(), &Principal{UserID: "u1", Role: RoleBuyer})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	protected().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	h := protected(RoleSeller)
	assert.Equal(t, http.StatusForbidden, request(t, h, &Principal{UserID: "u1", Role: RoleBuyer}).Code)
	assert.Equal(t, http.StatusOK, request(t, h, &Principal{UserID: "u2", Role: RoleSeller}).Code)
	assert.Equal(t, http.StatusOK, request(t, h, &Principal{UserID: "u3", Role: RoleAdmin}).Code)
}
