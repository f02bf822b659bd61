package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/diaz3618/mcp-sentinel/internal/domain/identity"
)

var (
	ErrNoToken         = errors.New("auth: no token provided")
	ErrTokenInvalid    = errors.New("auth: invalid token")
	ErrIssuerMismatch  = errors.New("auth: unexpected issuer")
	ErrAudienceMismatch = errors.New("auth: unexpected audience")
)

// JWTProviderConfig configures a JWTProvider against one OIDC issuer.
type JWTProviderConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// RolesClaim names the JWT claim holding the caller's roles, as a
	// string array. Defaults to "roles".
	RolesClaim string
}

// JWTProvider validates a bearer JWT against a JWKS-published key set with
// auto-refresh and returns the identity carried in its claims.
type JWTProvider struct {
	issuer     string
	audience   string
	jwksURL    string
	rolesClaim string
	cache      *jwk.Cache
}

// NewJWTProvider registers cfg.JWKSURL with a refreshing JWKS cache.
func NewJWTProvider(ctx context.Context, cfg JWTProviderConfig) (*JWTProvider, error) {
	if cfg.JWKSURL == "" {
		return nil, errors.New("auth: jwt provider requires a jwks_url")
	}
	rolesClaim := cfg.RolesClaim
	if rolesClaim == "" {
		rolesClaim = "roles"
	}

	cache := jwk.NewCache(ctx)
	if err := cache.Register(cfg.JWKSURL); err != nil {
		return nil, fmt.Errorf("auth: register jwks url: %w", err)
	}

	return &JWTProvider{
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		jwksURL:    cfg.JWKSURL,
		rolesClaim: rolesClaim,
		cache:      cache,
	}, nil
}

// Authenticate parses and validates rawToken as a JWT, checking signature
// (via JWKS key lookup by kid), issuer, audience, and expiry, and maps its
// claims onto an identity.Identity.
func (p *JWTProvider) Authenticate(ctx context.Context, rawToken string) (identity.Identity, error) {
	if rawToken == "" {
		return identity.Identity{}, ErrNoToken
	}

	token, err := jwt.Parse(rawToken, func(t *jwt.Token) (any, error) {
		return p.lookupKey(ctx, t)
	})
	if err != nil {
		return identity.Identity{}, fmt.Errorf("auth: %w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return identity.Identity{}, ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return identity.Identity{}, ErrTokenInvalid
	}
	if err := p.validateClaims(claims); err != nil {
		return identity.Identity{}, err
	}

	return p.identityFromClaims(claims), nil
}

func (p *JWTProvider) lookupKey(ctx context.Context, token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
	}

	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, errors.New("token header missing kid")
	}

	keySet, err := p.cache.Get(ctx, p.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	key, found := keySet.LookupKeyID(kid)
	if !found {
		return nil, fmt.Errorf("key id %q not found in jwks", kid)
	}

	var raw any
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("decode jwks key: %w", err)
	}
	return raw, nil
}

func (p *JWTProvider) validateClaims(claims jwt.MapClaims) error {
	if p.issuer != "" {
		iss, err := claims.GetIssuer()
		if err != nil || iss != p.issuer {
			return ErrIssuerMismatch
		}
	}
	if p.audience != "" {
		auds, err := claims.GetAudience()
		if err != nil {
			return ErrAudienceMismatch
		}
		found := false
		for _, a := range auds {
			if a == p.audience {
				found = true
				break
			}
		}
		if !found {
			return ErrAudienceMismatch
		}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil || exp.Before(time.Now()) {
		return ErrTokenInvalid
	}
	return nil
}

func (p *JWTProvider) identityFromClaims(claims jwt.MapClaims) identity.Identity {
	subject, _ := claims.GetSubject()
	id := identity.Identity{
		Subject:  subject,
		Provider: "jwt",
		Claims:   claims,
	}
	if email, ok := claims["email"].(string); ok {
		id.Email = email
	}
	if name, ok := claims["name"].(string); ok {
		id.DisplayName = name
	}
	if raw, ok := claims[p.rolesClaim].([]any); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				id.Roles = append(id.Roles, s)
			}
		}
	}
	return id
}
