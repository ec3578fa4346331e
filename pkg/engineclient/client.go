// Package engineclient is the control plane's client for the node-local
// engine process's northbound RPC (§6): createMatch, finishMatch,
// deleteMatch, distributeModule and hasModule. It is HTTP+JSON rather than
// gRPC, since no protobuf schema exists for this surface and generating one
// without protoc would mean fabricating a dependency; the typed,
// timeout-per-call method shape is grounded on the teacher's
// pkg/client/client.go.
package engineclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stormstack/control-plane/pkg/apierrors"
	"github.com/stormstack/control-plane/pkg/resilience"
)

// Client talks to a single engine instance at Address.
type Client struct {
	address    string
	httpClient *http.Client
	connectTO  time.Duration
	readTO     time.Duration
	retryCfg   resilience.RetryConfig
}

// New constructs a Client for the engine reachable at address.
func New(address string, connectTimeout, readTimeout time.Duration) *Client {
	return &Client{
		address: address,
		httpClient: &http.Client{
			Timeout: connectTimeout + readTimeout,
		},
		connectTO: connectTimeout,
		readTO:    readTimeout,
		retryCfg:  resilience.DefaultRetryConfig(),
	}
}

// CreateMatchRequest is the payload sent to the engine to start a match.
type CreateMatchRequest struct {
	ContainerID string   `json:"containerId"`
	Modules     []string `json:"modules"`
}

// CreateMatchResponse is the engine's reply once the match is running.
type CreateMatchResponse struct {
	LocalMatchID string `json:"localMatchId"`
	HTTPBase     string `json:"httpBase"`
	WSBase       string `json:"wsBase"`
}

// CreateMatch asks the engine to start a match on its node.
func (c *Client) CreateMatch(ctx context.Context, containerID string, modules []string) (*CreateMatchResponse, error) {
	var out CreateMatchResponse
	err := c.doJSON(ctx, http.MethodPost, "/matches", CreateMatchRequest{ContainerID: containerID, Modules: modules}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FinishMatch asks the engine to gracefully end a running match.
func (c *Client) FinishMatch(ctx context.Context, containerID, localMatchID string) error {
	path := fmt.Sprintf("/matches/%s/%s/finish", containerID, localMatchID)
	return c.doJSON(ctx, http.MethodPost, path, nil, nil)
}

// DeleteMatch asks the engine to tear down a match's resources.
func (c *Client) DeleteMatch(ctx context.Context, containerID, localMatchID string) error {
	path := fmt.Sprintf("/matches/%s/%s", containerID, localMatchID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// HasModule asks the engine whether it already has a module by content hash.
func (c *Client) HasModule(ctx context.Context, hash string) (bool, error) {
	var out struct {
		Present bool `json:"present"`
	}
	path := fmt.Sprintf("/modules/%s", hash)
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	if err != nil {
		if se := apierrors.As(err); se != nil && se.Code == apierrors.CodeNotFound {
			return false, nil
		}
		return false, err
	}
	return out.Present, nil
}

// DistributeModule pushes a module's bytes to the engine.
func (c *Client) DistributeModule(ctx context.Context, name, version, hash string, data []byte) error {
	req := struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Hash    string `json:"hash"`
		Data    []byte `json:"data"`
	}{Name: name, Version: version, Hash: hash, Data: data}
	return c.doJSON(ctx, http.MethodPost, "/modules", req, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.connectTO+c.readTO)
	defer cancel()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return apierrors.Internal("failed to marshal engine request", err)
		}
	}

	var resp *http.Response
	err := resilience.Retry(reqCtx, c.retryCfg, func() error {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(reqCtx, method, c.address+path, bodyReader)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err = c.httpClient.Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return fmt.Errorf("engine returned %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		return apierrors.UpstreamUnavailable("engine", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return apierrors.NotFound("engine resource", path)
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return apierrors.Wrap(apierrors.CodeInternal, fmt.Sprintf("engine error %d: %s", resp.StatusCode, string(data)), resp.StatusCode, nil)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
