package engineclient

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

func TestCreateMatchDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/matches", r.URL.Path)
		_ = json.NewEncoder(w).Encode(CreateMatchResponse{LocalMatchID: "m1", HTTPBase: "http://node/m1", WSBase: "ws://node/m1"})
	}))
	defer srv.Close()

	client := New(srv.URL, time.Second, time.Second)
	resp, err := client.CreateMatch(context.Background(), "c1", []string{"lobby"})
	require.NoError(t, err)
	assert.Equal(t, "m1", resp.LocalMatchID)
}

func TestCreateMatchPropagatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(srv.URL, 50*time.Millisecond, 50*time.Millisecond)
	client.retryCfg.MaxAttempts = 1
	_, err := client.CreateMatch(context.Background(), "c1", []string{"lobby"})
	require.Error(t, err)
}

func TestHasModuleReturnsFalseOnNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := New(srv.URL, time.Second, time.Second)
	present, err := client.HasModule(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.False(t, present)
}
