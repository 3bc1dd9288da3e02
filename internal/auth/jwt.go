// Package auth valida o token bearer e expõe a identidade do chamador.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const userIDKey = "user_id"

var (
	ErrMissingToken = errors.New("auth: authorization header is missing")
	ErrInvalidToken = errors.New("auth: invalid or expired token")
)

// Verifier valida tokens HS256 cujo subject é o id numérico do usuário
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier cria uma nova instância de Verifier
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// UserID parses tokenString and returns the user id carried in its subject.
func (v *Verifier) UserID(tokenString string) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("%w: subject %q is not a user id", ErrInvalidToken, claims.Subject)
	}
	return userID, nil
}

// Issue assina um token para userID válido por ttl
func (v *Verifier) Issue(userID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(v.secret)
}

// Middleware rejeita requisições sem token válido com 401 e guarda o id do usuário no contexto.
// onError monta a resposta de erro; quando nil, um corpo simples é usado.
func (v *Verifier) Middleware(onError func(c *gin.Context, err error)) gin.HandlerFunc {
	if onError == nil {
		onError = func(c *gin.Context, err error) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		}
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			onError(c, ErrMissingToken)
			c.Abort()
			return
		}

		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			onError(c, ErrInvalidToken)
			c.Abort()
			return
		}

		userID, err := v.UserID(strings.TrimSpace(tokenString))
		if err != nil {
			onError(c, err)
			c.Abort()
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID devolve o usuário autenticado pela Middleware
func UserID(c *gin.Context) (int64, bool) {
	value, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	userID, ok := value.(int64)
	return userID, ok
}
