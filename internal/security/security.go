package security

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
)

// SecurityConfig holds security configuration
type SecurityConfig struct {
	MaxBodyBytes   int64         `json:"max_body_bytes"`
	MaxTextLength  int           `json:"max_text_length"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// DefaultSecurityConfig returns secure defaults
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxBodyBytes:   1 << 20,
		MaxTextLength:  50000,
		RequestTimeout: 30 * time.Second,
	}
}

var (
	scriptPattern  = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	htmlTagPattern = regexp.MustCompile(`<[^>]+>`)
	spacePattern   = regexp.MustCompile(`[ \t]+`)
)

// SecurityMiddleware bundles the request hygiene checks applied to the API
type SecurityMiddleware struct {
	config SecurityConfig
}

// NewSecurityMiddleware creates a new security middleware instance
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	return &SecurityMiddleware{config: config}
}

// Config returns the active configuration
func (sm *SecurityMiddleware) Config() SecurityConfig {
	return sm.config
}

// ValidateText rejects free text that cannot be stored or analysed safely.
// Suspicious-looking content is allowed; proposals legitimately quote code
// and markup.
func (sm *SecurityMiddleware) ValidateText(field, input string) error {
	if len(input) > sm.config.MaxTextLength {
		return fmt.Errorf("%s exceeds maximum length of %d characters", field, sm.config.MaxTextLength)
	}
	if strings.Contains(input, "\x00") {
		return fmt.Errorf("%s contains invalid characters", field)
	}
	if !utf8.ValidString(input) {
		return fmt.Errorf("%s contains invalid UTF-8 encoding", field)
	}
	return nil
}

// SanitizeName strips markup from short display fields such as company
// names and tender titles.
func SanitizeName(input string) string {
	input = scriptPattern.ReplaceAllString(input, "")
	input = htmlTagPattern.ReplaceAllString(input, "")
	input = strings.ReplaceAll(input, "\n", " ")
	input = spacePattern.ReplaceAllString(input, " ")
	return strings.TrimSpace(input)
}

// ValidateContentType only lets JSON bodies through on write requests
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	switch c.Request.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		c.Next()
		return
	}

	contentType := strings.ToLower(c.GetHeader("Content-Type"))
	if c.Request.ContentLength != 0 && !strings.HasPrefix(contentType, "application/json") {
		c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
			"error": "unsupported content type",
		})
		return
	}

	c.Next()
}

// LimitBody caps the request body size
func (sm *SecurityMiddleware) LimitBody(c *gin.Context) {
	if c.Request.ContentLength > sm.config.MaxBodyBytes {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("request body exceeds %d bytes", sm.config.MaxBodyBytes),
		})
		return
	}
	if c.Request.Body != nil {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, sm.config.MaxBodyBytes)
	}
	c.Next()
}

// RequestTimeout enforces request timeout
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))

	c.Next()
}
