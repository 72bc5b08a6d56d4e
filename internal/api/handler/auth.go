package handler

import (
	"accord/backend/internal/models"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	identityKey = "identity"
	tokenIssuer = "accord-auth"
)

// ErrNoToken means the request carried no bearer token.
var ErrNoToken = errors.New("authorization token missing")

// IdentityClaims is the token payload issued by the auth service.
type IdentityClaims struct {
	UserID      string `json:"uid"`
	DisplayName string `json:"displayName"`
	jwt.RegisteredClaims
}

// IssueToken signs an identity token. The auth service owns issuance in
// production; the admin CLI and tests use this for local tokens.
func IssueToken(secret []byte, id models.Identity, ttl time.Duration) (string, error) {
	claims := IdentityClaims{
		UserID:      id.UserID,
		DisplayName: id.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken verifies tokenString and returns the identity it carries.
func ParseToken(secret []byte, tokenString string) (models.Identity, error) {
	var claims IdentityClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Identity{}, err
	}
	if claims.UserID == "" {
		return models.Identity{}, errors.New("token has no uid")
	}
	return models.Identity{UserID: claims.UserID, DisplayName: claims.DisplayName}, nil
}

// bearerToken reads the token from the Authorization header or, for
// browsers that cannot set headers on a WebSocket, the access_token query.
func bearerToken(c *gin.Context) (string, error) {
	if header := c.GetHeader("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return "", ErrNoToken
		}
		return token, nil
	}
	if token := c.Query("access_token"); token != "" {
		return token, nil
	}
	return "", ErrNoToken
}

// AuthMiddleware rejects requests without a valid identity token and stores
// the identity in the gin context.
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		id, err := ParseToken(h.jwtSecret, token)
		if err != nil {
			h.log.Debug().Err(err).Msg("token rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// identityFrom returns the identity set by AuthMiddleware.
func identityFrom(c *gin.Context) models.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(models.Identity); ok {
			return id
		}
	}
	return models.Identity{}
}
