package access

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticator_IssueValidate(t *testing.T) {
	a := NewAuthenticator([]byte("secret"), nil)
	token, err := a.Issue(&User{ID: 7, Email: "dev@example.com", Permissions: []string{PermAddonsEdit}}, time.Hour)
	require.NoError(t, err)

	u, err := a.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID)
	assert.Equal(t, "dev@example.com", u.Email)
	assert.Equal(t, []string{PermAddonsEdit}, u.Permissions)

	_, err = NewAuthenticator([]byte("other"), nil).Validate(token)
	assert.Error(t, err)

	expired, err := a.Issue(&User{ID: 7}, -time.Minute)
	require.NoError(t, err)
	_, err = a.Validate(expired)
	assert.Error(t, err)
}

func TestAuthenticator_Middleware(t *testing.T) {
	a := NewAuthenticator([]byte("secret"), nil)
	var seen *User
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	// Anonymous
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, seen)

	// Valid token
	token, err := a.Issue(&User{ID: 3}, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, int64(3), seen.ID)

	// Garbage
	seen = nil
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, seen)
}
