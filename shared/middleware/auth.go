package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-apartment-rentals/shared/models"
	"github.com/pavitra93/go-apartment-rentals/shared/utils"
)

// Context keys set by RequireAuth
const (
	ContextUserID = "user_id"
	ContextEmail  = "email"
	ContextRole   = "role"
)

// AuthMiddleware handles JWT token validation. Identity issuance lives
// outside this system; tokens are HS256-signed with a shared secret.
type AuthMiddleware struct {
	secret   []byte
	redis    *redis.Client
	cacheTTL time.Duration
	log      logrus.FieldLogger
}

// RentalClaims represents the claims carried by a caller's token
type RentalClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// NewAuthMiddleware creates a new authentication middleware. redisClient may
// be nil, in which case every request verifies its token.
func NewAuthMiddleware(secret string, redisClient *redis.Client) (*AuthMiddleware, error) {
	if secret == "" {
		return nil, errors.New("JWT_SECRET must be set")
	}
	return &AuthMiddleware{
		secret:   []byte(secret),
		redis:    redisClient,
		cacheTTL: 15 * time.Minute,
		log:      logrus.WithField("component", "auth"),
	}, nil
}

// RequireAuth middleware validates JWT tokens
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			utils.UnauthorizedResponse(c, "Authorization token required")
			c.Abort()
			return
		}

		user, err := am.authenticate(c.Request.Context(), tokenString)
		if err != nil {
			am.log.WithError(err).Debug("Rejected bearer token")
			utils.UnauthorizedResponse(c, "Invalid token")
			c.Abort()
			return
		}

		c.Set(ContextUserID, user.UserID)
		c.Set(ContextEmail, user.Email)
		c.Set(ContextRole, string(user.Role))
		c.Next()
	}
}

// RequireRole middleware allows only the listed roles. Admins always pass.
func (am *AuthMiddleware) RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(ContextRole)
		if !exists {
			utils.UnauthorizedResponse(c, "User role not found in context")
			c.Abort()
			return
		}

		if role == string(models.RoleAdmin) {
			c.Next()
			return
		}
		for _, allowed := range roles {
			if role == string(allowed) {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, utils.APIResponse{
			Success: false,
			Error:   fmt.Sprintf("Insufficient permissions: role %v may not access this resource", role),
		})
		c.Abort()
	}
}

// authenticate returns the caller for token, consulting the claim cache first
func (am *AuthMiddleware) authenticate(ctx context.Context, tokenString string) (*models.UserInfo, error) {
	if am.redis != nil {
		if user, err := utils.CachedClaims(ctx, am.redis, tokenString); err == nil {
			return user, nil
		}
	}

	claims, err := am.ParseToken(tokenString)
	if err != nil {
		return nil, err
	}

	user := &models.UserInfo{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   models.UserRole(claims.Role),
	}

	if am.redis != nil {
		ttl := am.cacheTTL
		if claims.ExpiresAt != nil {
			if remaining := time.Until(claims.ExpiresAt.Time); remaining < ttl {
				ttl = remaining
			}
		}
		if err := utils.CacheClaims(ctx, am.redis, tokenString, user, ttl); err != nil {
			am.log.WithError(err).Warn("Failed to cache token claims")
		}
	}
	return user, nil
}

// ParseToken verifies the signature and expiry of tokenString
func (am *AuthMiddleware) ParseToken(tokenString string) (*RentalClaims, error) {
	claims := &RentalClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return am.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	switch models.UserRole(claims.Role) {
	case models.RoleOwner, models.RoleCustomer, models.RoleAdmin:
	default:
		return nil, fmt.Errorf("unknown role %q", claims.Role)
	}
	return claims, nil
}

// SignToken issues a token for user. Used by tooling and tests.
func SignToken(secret string, user models.UserInfo, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := RentalClaims{
		Email: user.Email,
		Role:  string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// extractToken extracts the JWT token from the Authorization header
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return authHeader
}

// GetUserInfoFromContext extracts the authenticated caller from the Gin context
func GetUserInfoFromContext(c *gin.Context) (*models.UserInfo, error) {
	userID := c.GetString(ContextUserID)
	if userID == "" {
		return nil, fmt.Errorf("user_id not found in context")
	}

	return &models.UserInfo{
		UserID: userID,
		Email:  c.GetString(ContextEmail),
		Role:   models.UserRole(c.GetString(ContextRole)),
	}, nil
}
