package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sourpie/gitknow/internal/domain"
	"github.com/sourpie/gitknow/internal/port"
)

// tokenHeader is the only header gitknow issues or accepts.
var tokenHeader = encodeSegment([]byte(`{"alg":"HS256","typ":"JWT"}`))

// Claims is the token payload. Subject is the user id.
type Claims struct {
	Subject   string `json:"sub"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	Issuer    string `json:"iss"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

func (c *Claims) expired(now time.Time) bool {
	return now.Unix() > c.ExpiresAt
}

// UserContext converts the claims into the per-request user.
func (c *Claims) UserContext() *domain.UserContext {
	return &domain.UserContext{UserID: c.Subject, Email: c.Email, Name: c.Name}
}

// GenerateJWT signs an HS256 token for user. The CLI mints local tokens with
// it; any issuer sharing the secret produces the same format.
func GenerateJWT(user *domain.User, cfg JWTConfig) (string, error) {
	now := time.Now()
	payload, err := json.Marshal(Claims{
		Subject:   user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Issuer:    cfg.Issuer,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(cfg.ExpiresIn).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("encode claims: %w", err)
	}
	unsigned := tokenHeader + "." + encodeSegment(payload)
	return unsigned + "." + sign(unsigned, cfg.Secret), nil
}

// ValidateJWT verifies signature, expiry and issuer.
// Failures wrap port.ErrTokenInvalid or are port.ErrTokenExpired.
func ValidateJWT(token string, cfg JWTConfig) (*Claims, error) {
	dot := strings.LastIndexByte(token, '.')
	if dot < 0 || strings.Count(token, ".") != 2 {
		return nil, fmt.Errorf("%w: malformed", port.ErrTokenInvalid)
	}
	unsigned, signature := token[:dot], token[dot+1:]
	if !hmac.Equal([]byte(signature), []byte(sign(unsigned, cfg.Secret))) {
		return nil, fmt.Errorf("%w: bad signature", port.ErrTokenInvalid)
	}

	_, payload, _ := strings.Cut(unsigned, ".")
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload encoding", port.ErrTokenInvalid)
	}
	var claims Claims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", port.ErrTokenInvalid, err)
	}

	switch {
	case claims.expired(time.Now()):
		return nil, port.ErrTokenExpired
	case claims.Issuer != cfg.Issuer:
		return nil, fmt.Errorf("%w: unexpected issuer %q", port.ErrTokenInvalid, claims.Issuer)
	}
	return &claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, value, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}

func sign(unsigned, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(unsigned))
	return encodeSegment(mac.Sum(nil))
}

func encodeSegment(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
