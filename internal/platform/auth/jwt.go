package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrTokenExpired = errors.New("token expired")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the token payload: registered claims plus a roles array.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

type JWTConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte
}

// Verifier checks HMAC-signed bearer tokens against one shared key.
type Verifier struct {
	key    []byte
	parser *jwt.Parser
}

func NewVerifier(cfg JWTConfig) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Verifier{key: cfg.SigningKey, parser: jwt.NewParser(opts...)}
}

// Verify parses raw and returns the caller it names. Tokens without a
// subject are rejected.
func (v *Verifier) Verify(raw string) (Principal, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Principal{}, ErrTokenExpired
	case err != nil:
		return Principal{}, ErrInvalidToken
	case claims.Subject == "":
		return Principal{}, ErrInvalidToken
	}
	return Principal{Subject: claims.Subject, Roles: claims.Roles}, nil
}

// bearerToken pulls the token out of an "Authorization: Bearer <t>" header.
func bearerToken(r *http.Request) (string, error) {
	scheme, token, ok := strings.Cut(r.Header.Get(echo.HeaderAuthorization), " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// JWTMiddleware rejects requests without a valid bearer token with 401 and
// a WWW-Authenticate challenge.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	v := NewVerifier(cfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := bearerToken(c.Request())
			if err == nil {
				var p Principal
				if p, err = v.Verify(raw); err == nil {
					c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
					return next(c)
				}
			}
			c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer realm="salulink"`)
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
	}
}

// DevAuthMiddleware lets every request through as an admin. Development only.
func DevAuthMiddleware() echo.MiddlewareFunc {
	dev := Principal{Subject: "dev-user", Roles: []string{RoleAdmin}}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), dev)))
			return next(c)
		}
	}
}
