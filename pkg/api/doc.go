/*
Package api implements the control plane's administrative HTTP surface: a
JSON REST API over the node registry, match router, module registry and
module distributor, plus a read-only dashboard backed by the cluster view.

# Architecture

The server is a single gorilla/mux router fronting every admin operation:

	┌──────────── operator / CI / dashboard UI ────────────┐
	│                   HTTP + JSON                         │
	└───────────────────────┬────────────────────────────────┘
	                        │
	┌───────────────────────▼────────────────────────────────┐
	│            *api.Server (gorilla/mux router)             │
	│  logging → metrics → rate-limit middleware chain        │
	│  /nodes  /matches  /modules  /dashboard  /healthz        │
	└───┬──────────┬───────────┬────────────────┬─────────────┘
	    │          │           │                │
	    ▼          ▼           ▼                ▼
	pkg/nodes  pkg/router  pkg/modules     pkg/clusterview
	           pkg/distributor

Every handler translates a *pkg/apierrors.ServiceError returned from the
underlying component into its documented HTTP status and a small JSON
error body, so no handler duplicates status-code decisions.

# Middleware

Every route runs through a fixed chain: request logging (rs/zerolog, one
line per request with method/path/status/duration), Prometheus request
metrics, and a token-bucket rate limiter (golang.org/x/time/rate) keyed by
client address. /healthz and /metrics bypass the rate limiter so liveness
and scraping never compete with admin traffic for tokens.
*/
package api
