package security

import (
	"crypto/subtle"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ZanzyTHEbar/tender-guard/internal/errors"
	"github.com/ZanzyTHEbar/tender-guard/internal/ratelimit"
)

const (
	tokenIssuer     = "tender-guard"
	defaultTokenTTL = 12 * time.Hour
	apiKeyHeader    = "X-API-Key"
	operatorHeader  = "X-Operator"
)

// ErrInvalidToken is returned for tokens that fail signature, issuer or
// expiry checks.
var ErrInvalidToken = stderrors.New("invalid operator token")

// OperatorClaims are the claims carried by an operator session token
type OperatorClaims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

// SessionManager issues and verifies operator session tokens. Operators
// authenticate once with the shared API key and use the returned JWT
// afterwards.
type SessionManager struct {
	secret []byte
	apiKey string
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionManager creates a session manager. An empty apiKey leaves the
// operator endpoints open.
func NewSessionManager(secret, apiKey string, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &SessionManager{
		secret: []byte(secret),
		apiKey: apiKey,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Enabled reports whether operator authentication is enforced
func (m *SessionManager) Enabled() bool {
	return m.apiKey != ""
}

func (m *SessionManager) checkKey(key string) bool {
	return m.Enabled() && subtle.ConstantTimeCompare([]byte(key), []byte(m.apiKey)) == 1
}

// IssueToken signs a session token for operator
func (m *SessionManager) IssueToken(operator string) (string, time.Time, error) {
	if operator == "" {
		return "", time.Time{}, fmt.Errorf("operator is required")
	}

	now := m.now()
	expiresAt := now.Add(m.ttl)
	claims := OperatorClaims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   operator,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseToken verifies a session token and returns its operator
func (m *SessionManager) ParseToken(tokenString string) (string, error) {
	claims := &OperatorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Operator == "" {
		return "", ErrInvalidToken
	}
	return claims.Operator, nil
}

// RequireOperator authenticates operator-only routes with either a bearer
// session token or the raw API key. The operator is stored under
// ratelimit.OperatorKey so per-operator limits apply downstream.
func (m *SessionManager) RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.Enabled() {
			c.Next()
			return
		}

		if key := c.GetHeader(apiKeyHeader); key != "" {
			if !m.checkKey(key) {
				m.reject(c, "invalid API key")
				return
			}
			operator := c.GetHeader(operatorHeader)
			if operator == "" {
				operator = "api-key"
			}
			c.Set(ratelimit.OperatorKey, operator)
			c.Next()
			return
		}

		auth := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(auth, "Bearer ")
		if !found || tokenString == "" {
			m.reject(c, "operator credentials required")
			return
		}

		operator, err := m.ParseToken(tokenString)
		if err != nil {
			m.reject(c, "invalid or expired session token")
			return
		}

		c.Set(ratelimit.OperatorKey, operator)
		c.Next()
	}
}

func (m *SessionManager) reject(c *gin.Context, message string) {
	appErr := errors.NewUnauthorizedError(message)
	c.Header("WWW-Authenticate", `Bearer realm="tender-guard"`)
	c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
		"error":    message,
		"category": appErr.Category,
	})
}

// SessionRequest is the body of POST /api/session
type SessionRequest struct {
	APIKey   string `json:"api_key" binding:"required"`
	Operator string `json:"operator" binding:"required"`
}

// SessionResponse carries a freshly issued operator token
type SessionResponse struct {
	Token     string `json:"token"`
	Operator  string `json:"operator"`
	ExpiresAt string `json:"expires_at"`
}

// HandleSession exchanges the operator API key for a session token
// @Summary Issue operator session
// @Description Exchanges the operator API key for a short-lived JWT
// @Tags session
// @Accept json
// @Produce json
// @Param request body SessionRequest true "Operator credentials"
// @Success 200 {object} SessionResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /api/session [post]
func (m *SessionManager) HandleSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.Enabled() {
			_ = c.Error(errors.NewValidationError("operator sessions are not configured"))
			return
		}

		var req SessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(errors.NewValidationError("invalid session request", err.Error()))
			return
		}

		if !m.checkKey(req.APIKey) {
			m.reject(c, "invalid API key")
			return
		}

		operator := SanitizeName(req.Operator)
		token, expiresAt, err := m.IssueToken(operator)
		if err != nil {
			_ = c.Error(errors.NewValidationError(err.Error()))
			return
		}

		c.JSON(http.StatusOK, SessionResponse{
			Token:     token,
			Operator:  operator,
			ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
		})
	}
}
