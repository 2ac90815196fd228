// Package embed mints the signed capability tokens Metabase's embed endpoint
// consumes. Tokens are never persisted; revocation happens only by rotating
// the shared embedding secret.
package embed

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v4"
)

// ResourceType names the kinds of resources Metabase can render embedded.
type ResourceType string

const (
	ResourceDashboard  ResourceType = "dashboard"
	ResourceCollection ResourceType = "collection"
)

const (
	// DefaultTTL applies when the caller passes a zero ttl. Dashboards may
	// carry sensitive filtered views, so the default stays short.
	DefaultTTL = 10 * time.Minute
	// MaxTTL is the hard ceiling; leaked URLs stop working within a day.
	MaxTTL = 24 * time.Hour
)

// Issuer signs time-bounded embedding capability tokens with the pre-shared
// Metabase embedding secret (HS256, matching what the embed endpoint expects).
type Issuer struct {
	secret []byte
	maxTTL time.Duration
	clock  clock.Clock
}

// Config captures the issuer knobs.
type Config struct {
	Secret string
	MaxTTL time.Duration // optional; defaults to MaxTTL
	Clock  clock.Clock   // optional; defaults to wall clock
}

// NewIssuer constructs an Issuer.
func NewIssuer(cfg Config) *Issuer {
	if cfg.Secret == "" {
		panic("embed issuer requires a secret")
	}

	maxTTL := cfg.MaxTTL
	if maxTTL <= 0 {
		maxTTL = MaxTTL
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &Issuer{secret: []byte(cfg.Secret), maxTTL: maxTTL, clock: clk}
}

// Token is one issued embedding capability.
type Token struct {
	Value     string
	Path      string
	ExpiresAt time.Time
}

// Issue builds and signs the claim set
// {resource: {<type>: <id>}, params: {...}, exp: now+ttl}.
// A zero ttl falls back to DefaultTTL; anything above the ceiling is clamped.
func (i *Issuer) Issue(resource ResourceType, resourceID int, params map[string]interface{}, ttl time.Duration) (Token, error) {
	switch resource {
	case ResourceDashboard, ResourceCollection:
	default:
		return Token{}, fmt.Errorf("unsupported embed resource type %q", resource)
	}
	if resourceID <= 0 {
		return Token{}, errors.New("embed resource id is required")
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if ttl > i.maxTTL {
		ttl = i.maxTTL
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	expiresAt := i.clock.Now().Add(ttl)
	claims := jwt.MapClaims{
		"resource": map[string]int{string(resource): resourceID},
		"params":   params,
		"exp":      expiresAt.Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign embed token: %w", err)
	}

	return Token{
		Value:     signed,
		Path:      fmt.Sprintf("/embed/%s/%s", resource, signed),
		ExpiresAt: expiresAt,
	}, nil
}
