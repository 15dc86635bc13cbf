package keyresolver

import (
	"context"
	"net/http"
	"time"

	"github.com/MicahParks/jwkset"
	"golang.org/x/time/rate"
)

// Options are used to create a new JWKS resolver.
type Options struct {
	// Ctx is the context used for lookups made through JWKS.Keyfunc. It defaults to context.Background.
	Ctx context.Context

	// Storage is the JWK Set storage keys are read from. It is required.
	Storage jwkset.Storage

	// UseWhitelist is the list of accepted JWK "use" parameter values. An empty list accepts any value.
	UseWhitelist []jwkset.USE
}

// Override is used to change the defaults of NewDefaultOverrideCtx. Zero values keep the default.
type Override struct {
	// Client is the HTTP client used to fetch the remote JWK Sets. Defaults to http.DefaultClient.
	Client *http.Client

	// Given is a JWK Set storage consulted alongside the remote resources, usually built with AddGiven.
	Given jwkset.Storage

	// HTTPTimeout bounds each HTTP request for a remote JWK Set. Defaults to one minute.
	HTTPTimeout time.Duration

	// RateLimitWaitMax is the longest a lookup of an unknown "kid" waits for the rate limiter. Defaults to one
	// minute.
	RateLimitWaitMax time.Duration

	// RefreshErrorHandlerFactory creates the handler for background refresh errors of the resource at the given
	// URL. The default handler logs with slog.Default.
	RefreshErrorHandlerFactory func(u string) func(ctx context.Context, err error)

	// RefreshInterval is how often remote JWK Sets are refreshed in the background. Defaults to one hour.
	RefreshInterval time.Duration

	// RefreshUnknownKID limits refreshes triggered by an unknown "kid". Defaults to one refresh every five minutes.
	RefreshUnknownKID *rate.Limiter

	// ValidationSkipAll skips validation of remote JWKs.
	ValidationSkipAll bool
}
