package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sketchsync/pkg/logger"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned for every token the verifier cannot accept;
// callers should not distinguish further than "reject".
var ErrUnauthorized = errors.New("auth: invalid token")

// Verifier validates bearer tokens and yields the subject id.
//
// Two strategies, tried in order: signature verification against a remotely
// fetched JWKS (RS256/ES256), then, only when that fails outright and a
// symmetric secret is configured, HS256 against the secret. Both check the
// audience claim. The JWKS is fetched lazily on first use and cached for the
// life of the process; refresh is keyfunc's business.
type Verifier struct {
	JWKSURL      string
	Secret       []byte
	Audience     string
	FetchTimeout time.Duration

	mu   sync.Mutex
	keys keyfunc.Keyfunc
}

func NewVerifier(jwksURL, secret, audience string) *Verifier {
	return &Verifier{
		JWKSURL:      jwksURL,
		Secret:       []byte(secret),
		Audience:     audience,
		FetchTimeout: 10 * time.Second,
	}
}

// Verify returns the token's subject, or ErrUnauthorized.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrUnauthorized
	}

	if v.JWKSURL != "" {
		sub, err := v.verifyRemote(ctx, tokenString)
		if err == nil {
			return sub, nil
		}
		logger.Sugar.Debugf("JWKS verification failed: %v", err)
	}

	if len(v.Secret) > 0 {
		sub, err := v.verifySecret(tokenString)
		if err == nil {
			return sub, nil
		}
		logger.Sugar.Debugf("Secret verification failed: %v", err)
	}

	return "", ErrUnauthorized
}

func (v *Verifier) verifyRemote(ctx context.Context, tokenString string) (string, error) {
	keys, err := v.keySet()
	if err != nil {
		return "", fmt.Errorf("jwks init: %w", err)
	}

	token, err := jwt.Parse(tokenString, keys.Keyfunc,
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithAudience(v.Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}
	return subject(token)
}

// keySet returns the cached JWKS, populating it on first success. A failed
// fetch is not latched: the next verification attempts the fetch again, so a
// transient key-server outage at startup does not disable remote
// verification for the life of the process.
func (v *Verifier) keySet() (keyfunc.Keyfunc, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.keys != nil {
		return v.keys, nil
	}

	// The key set cache outlives any one request, so the fetch is bounded
	// by its own timeout rather than the request context.
	fetchCtx, cancel := context.WithTimeout(context.Background(), v.FetchTimeout)
	defer cancel()
	keys, err := keyfunc.NewDefaultCtx(fetchCtx, []string{v.JWKSURL})
	if err != nil {
		return nil, err
	}
	v.keys = keys
	return v.keys, nil
}

func (v *Verifier) verifySecret(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.Secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithAudience(v.Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}
	return subject(token)
}

func subject(token *jwt.Token) (string, error) {
	if !token.Valid {
		return "", ErrUnauthorized
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrUnauthorized
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", ErrUnauthorized
	}
	return sub, nil
}
