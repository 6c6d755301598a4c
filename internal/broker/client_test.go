package broker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseCreds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/database/creds/inneri_readonly", r.URL.Path)
		require.Equal(t, "tok-123", r.Header.Get("X-Vault-Token"))

		_, _ = w.Write([]byte(`{
			"request_id": "req-1",
			"lease_id": "database/creds/inneri_readonly/abc",
			"lease_duration": 300,
			"renewable": true,
			"data": {"username": "v-user", "password": "v-pass"}
		}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "tok-123", 0)
	require.NoError(t, err)

	creds, err := c.DatabaseCreds(context.Background(), "inneri_readonly")
	require.NoError(t, err)
	assert.Equal(t, "database/creds/inneri_readonly/abc", creds.LeaseID)
	assert.Equal(t, 300, creds.LeaseDuration)
	assert.Equal(t, "v-user", creds.Username)
	assert.Equal(t, "v-pass", creds.Password)
}

func TestNewClient_requiresToken(t *testing.T) {
	_, err := NewClient("http://broker", "", 0)
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestDatabaseCreds_brokerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "tok", 0)
	require.NoError(t, err)

	_, err = c.DatabaseCreds(context.Background(), "r")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
	// Credential material must never surface in errors.
	assert.NotContains(t, err.Error(), "tok")
}

func TestDatabaseCreds_missingData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"lease_id":"x","lease_duration":10,"data":{}}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "tok", 0)
	_, err := c.DatabaseCreds(context.Background(), "r")
	assert.Error(t, err)
}
