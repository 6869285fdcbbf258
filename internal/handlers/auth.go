package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"github.com/imrishuroy/mahaprasad-donations/internal/payments"
)

// Token headers used by the portals. Neither uses a bearer scheme.
const (
	AdminTokenHeader = "aToken"
	UserTokenHeader  = "utoken"

	scopeKey = "scope"
)

// Claims carried by portal tokens. Admin tokens carry role=admin; user tokens
// carry the donor id as subject.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 tokens issued by the login service.
type Authenticator struct {
	secret  []byte
	nowFunc func() time.Time
}

// NewAuthenticator returns an Authenticator for the shared secret.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), nowFunc: time.Now}
}

// Issue signs a token; the login service does the same with the shared secret.
func (a *Authenticator) Issue(role payments.Role, subject string, ttl time.Duration) (string, error) {
	now := a.nowFunc()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) parse(raw string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// RequireAdmin authenticates the aToken header.
func (a *Authenticator) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := a.fromHeader(c, AdminTokenHeader)
		if err == nil && claims.Role != string(payments.RoleAdmin) {
			err = errors.New("not an admin token")
		}
		if err != nil {
			abortUnauthorized(c, err)
			return
		}
		c.Set(scopeKey, payments.Scope{Role: payments.RoleAdmin, UserID: claims.Subject})
		c.Next()
	}
}

// RequireUser authenticates the utoken header.
func (a *Authenticator) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := a.fromHeader(c, UserTokenHeader)
		if err == nil && claims.Subject == "" {
			err = errors.New("token has no subject")
		}
		if err != nil {
			abortUnauthorized(c, err)
			return
		}
		c.Set(scopeKey, payments.Scope{Role: payments.RoleUser, UserID: claims.Subject})
		c.Next()
	}
}

func (a *Authenticator) fromHeader(c *gin.Context, header string) (*Claims, error) {
	raw := strings.TrimSpace(c.GetHeader(header))
	if raw == "" {
		return nil, errors.New("missing " + header + " header")
	}
	return a.parse(raw)
}

func abortUnauthorized(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   "unauthorized",
		"message": "Not Authorized. Login Again",
	})
}

func scopeFrom(c *gin.Context) payments.Scope {
	if v, ok := c.Get(scopeKey); ok {
		if s, ok := v.(payments.Scope); ok {
			return s
		}
	}
	return payments.Scope{}
}
