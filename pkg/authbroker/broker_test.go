package authbroker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueMatchTokenSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/match-tokens", r.URL.Path)
		_ = json.NewEncoder(w).Encode(struct {
			TokenID   string    `json:"tokenId"`
			Token     string    `json:"token"`
			ExpiresAt time.Time `json:"expiresAt"`
		}{TokenID: "t1", Token: "opaque", ExpiresAt: time.Now().Add(time.Hour)})
	}))
	defer srv.Close()

	broker := NewBroker(Config{AuthServiceURL: srv.URL, ConnectTimeout: time.Second, ReadTimeout: time.Second})
	result := broker.IssueMatchToken(context.Background(), "m1", "c1", "p1", "Alice", []string{"play"})
	require.NotNil(t, result.Success)
	assert.Equal(t, "opaque", result.Success.Token)
}

func TestIssueMatchTokenUpstreamFailureReturnsFailureNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	broker := NewBroker(Config{AuthServiceURL: srv.URL, ConnectTimeout: 50 * time.Millisecond, ReadTimeout: 50 * time.Millisecond})
	result := broker.IssueMatchToken(context.Background(), "m1", "c1", "p1", "Alice", []string{"play"})
	require.NotNil(t, result.Failure)
	assert.Equal(t, http.StatusServiceUnavailable, result.Failure.HTTPStatus)
}

func TestIssueMatchTokenClientErrorIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid scopes"))
	}))
	defer srv.Close()

	broker := NewBroker(Config{AuthServiceURL: srv.URL, ConnectTimeout: time.Second, ReadTimeout: time.Second})
	result := broker.IssueMatchToken(context.Background(), "m1", "c1", "p1", "Alice", []string{"play"})
	require.NotNil(t, result.Failure)
	assert.Equal(t, http.StatusBadRequest, result.Failure.HTTPStatus)
}

func TestRemoteValidationEnabledReflectsConfig(t *testing.T) {
	broker := NewBroker(Config{RemoteValidationEnabled: true})
	assert.True(t, broker.RemoteValidationEnabled())
}
