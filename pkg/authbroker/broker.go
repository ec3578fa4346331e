// Package authbroker implements the Auth Broker (§4.H): the control plane's
// client for the external auth service's custom match-token endpoint. It
// never decodes tokens, it only requests and relays them, caching its own
// OAuth2 client-credentials service token, which the token source renews
// near expiry. A 401 from the auth service is retried once through that same
// token source; the cached token is not discarded, so the retry carries the
// same token unless it expired in between. Grounded on
// the teacher's pkg/client/client.go method-with-timeout shape and
// r3e-network-service_layer's infrastructure/serviceauth token-claims idiom;
// the client-credentials flow itself uses golang.org/x/oauth2, the
// standard ecosystem library for this flow (not present in the teacher's own
// go.mod, since the teacher had no external OAuth2 upstream to reach).
package authbroker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stormstack/control-plane/pkg/log"
	"github.com/stormstack/control-plane/pkg/resilience"
	"github.com/stormstack/control-plane/pkg/types"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Config controls how the broker reaches the auth service.
type Config struct {
	AuthServiceURL          string
	ClientID                string
	ClientSecret            string
	TokenURL                string
	ConnectTimeout          time.Duration
	ReadTimeout             time.Duration
	RemoteValidationEnabled bool
}

// Broker issues match tokens from the external auth service.
type Broker struct {
	cfg         Config
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
	breaker     *resilience.CircuitBreaker
}

// NewBroker constructs a Broker. If cfg.ClientID is empty, the broker skips
// the OAuth2 client-credentials flow entirely and calls the auth service
// unauthenticated (useful for local/dev auth services).
func NewBroker(cfg Config) *Broker {
	b := &Broker{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.ConnectTimeout + cfg.ReadTimeout},
		breaker:    resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
	}
	if cfg.ClientID != "" {
		ccCfg := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		b.tokenSource = ccCfg.TokenSource(context.Background())
	}
	return b
}

// IssueMatchToken requests a scoped token for a player joining a match
// (§4.H). Upstream failures never propagate as an error to the caller: they
// come back as a Failure result so createMatch can proceed without a token.
func (b *Broker) IssueMatchToken(ctx context.Context, matchID, containerID, playerID, playerName string, scopes []string) types.MatchTokenResult {
	reqCtx, cancel := context.WithTimeout(ctx, b.cfg.ConnectTimeout+b.cfg.ReadTimeout)
	defer cancel()

	if !b.breaker.Allow() {
		return types.MatchTokenResult{Failure: &types.MatchTokenFailure{HTTPStatus: http.StatusServiceUnavailable, Message: "auth service circuit open"}}
	}

	result, err := b.issueOnce(reqCtx, matchID, containerID, playerID, playerName, scopes, true)
	if err != nil {
		b.breaker.RecordFailure()
		log.WithComponent("authbroker").Warn().Err(err).Str("matchId", matchID).Msg("match token request failed")
		return types.MatchTokenResult{Failure: &types.MatchTokenFailure{HTTPStatus: http.StatusServiceUnavailable, Message: err.Error()}}
	}
	b.breaker.RecordSuccess()
	return result
}

func (b *Broker) issueOnce(ctx context.Context, matchID, containerID, playerID, playerName string, scopes []string, allowRefresh bool) (types.MatchTokenResult, error) {
	payload, err := json.Marshal(struct {
		MatchID     string   `json:"matchId"`
		ContainerID string   `json:"containerId"`
		PlayerID    string   `json:"playerId"`
		PlayerName  string   `json:"playerName"`
		Scopes      []string `json:"scopes"`
	}{matchID, containerID, playerID, playerName, scopes})
	if err != nil {
		return types.MatchTokenResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.AuthServiceURL+"/match-tokens", bytes.NewReader(payload))
	if err != nil {
		return types.MatchTokenResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	if b.tokenSource != nil {
		tok, err := b.tokenSource.Token()
		if err != nil {
			return types.MatchTokenResult{}, fmt.Errorf("failed to obtain service token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return types.MatchTokenResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && allowRefresh && b.tokenSource != nil {
		return b.issueOnce(ctx, matchID, containerID, playerID, playerName, scopes, false)
	}

	if resp.StatusCode >= 500 {
		return types.MatchTokenResult{}, fmt.Errorf("auth service returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return types.MatchTokenResult{Failure: &types.MatchTokenFailure{HTTPStatus: resp.StatusCode, Message: string(data)}}, nil
	}

	var out struct {
		TokenID   string    `json:"tokenId"`
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.MatchTokenResult{}, err
	}

	return types.MatchTokenResult{Success: &types.MatchTokenSuccess{
		TokenID:   out.TokenID,
		MatchID:   matchID,
		PlayerID:  playerID,
		Token:     out.Token,
		ExpiresAt: out.ExpiresAt,
	}}, nil
}

// RemoteValidationEnabled reports whether the configured auth service
// supports remote token validation (as opposed to offline verification),
// per §4.H.
func (b *Broker) RemoteValidationEnabled() bool {
	return b.cfg.RemoteValidationEnabled
}
