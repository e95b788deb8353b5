package middleware

import (
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/sourpie/gitknow/internal/domain"
)

const userLocal = "user"

// JWTConfig holds the token settings.
type JWTConfig struct {
	Secret    string
	Issuer    string
	ExpiresIn time.Duration
}

// JWTMiddleware rejects requests without a valid bearer token and stores the
// caller's UserContext in the request locals. EventSource clients cannot set
// headers, so a ?token= query parameter is accepted too.
func JWTMiddleware(cfg JWTConfig) fiber.Handler {
	return func(c fiber.Ctx) error {
		token := BearerToken(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			return reject(c, "missing authorization")
		}

		claims, err := ValidateJWT(token, cfg)
		if err != nil {
			return reject(c, err.Error())
		}
		if claims.Subject == "" {
			return reject(c, "token has no subject")
		}

		c.Locals(userLocal, claims.UserContext())
		return c.Next()
	}
}

// GetUserContext returns the authenticated user, or nil outside JWTMiddleware.
func GetUserContext(c fiber.Ctx) *domain.UserContext {
	u, _ := c.Locals(userLocal).(*domain.UserContext)
	return u
}

func reject(c fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": msg})
}
