package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token issuer and audience accepted by the API.
const (
	TokenIssuer   = "billboard-api"
	TokenAudience = "billboard-client"
)

var (
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrInvalidIssuer = errors.New("invalid token issuer")
	ErrInvalidSubj   = errors.New("invalid subject claim")
)

// TokenClaims is the validated content of an access token.
type TokenClaims struct {
	UserID uint
	JTI    string
}

// BearerToken extracts the token from an "Authorization: Bearer <t>" header value.
func BearerToken(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// ParseToken validates an HMAC-signed access token and its issuer, audience
// and subject.
func ParseToken(secret, tokenString string) (TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	},
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(TokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenInvalidIssuer) || errors.Is(err, jwt.ErrTokenInvalidAudience) {
			return TokenClaims{}, ErrInvalidIssuer
		}
		return TokenClaims{}, ErrInvalidToken
	}
	if !token.Valid {
		return TokenClaims{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return TokenClaims{}, ErrInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return TokenClaims{}, ErrInvalidSubj
	}
	userID, err := strconv.ParseUint(sub, 10, 32)
	if err != nil || userID == 0 {
		return TokenClaims{}, ErrInvalidSubj
	}

	jti, _ := claims["jti"].(string)
	return TokenClaims{UserID: uint(userID), JTI: jti}, nil
}

// SignToken issues an access token for userID. Credentials are checked by the
// identity service; this is used by development tooling and tests.
func SignToken(secret string, userID uint, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatUint(uint64(userID), 10),
		"iss": TokenIssuer,
		"aud": TokenAudience,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"jti": uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
