package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/uttal/internal/models"
)

const (
	timeFormat  = "2006-01-02 15:04:05"
	tokenKeyTpl = "auth:%s" // auth:${username}
)

type Claims struct {
	UserID   int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Auth issues and verifies JWT tokens. With the registry enabled, issued
// tokens are also tracked in redis so they can be revoked and their usage
// counted; verification then requires the token to still be registered.
type Auth struct {
	enabled     bool
	secret      []byte
	ttl         time.Duration
	tokenHeader string
	registry    *redis.Client
}

func NewAuth(config *Config) (*Auth, error) {
	if !config.Server.EnableAuth {
		return &Auth{enabled: false}, nil
	}

	a := &Auth{
		enabled:     true,
		secret:      []byte(config.Auth.JWTSecret),
		ttl:         time.Duration(config.Auth.TokenTTLHours) * time.Hour,
		tokenHeader: config.Auth.TokenHeader,
	}

	if config.Auth.EnableRegistry {
		opt, err := redis.ParseURL(config.Auth.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis URL: %w", err)
		}

		client := redis.NewClient(opt)
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.registry = client
	}

	return a, nil
}

func (a *Auth) Enabled() bool {
	return a.enabled
}

func (a *Auth) TokenHeader() string {
	return a.tokenHeader
}

func (a *Auth) Close() error {
	if a.registry != nil {
		return a.registry.Close()
	}
	return nil
}

func (a *Auth) IssueToken(ctx context.Context, user *models.User) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	if a.registry != nil {
		key := fmt.Sprintf(tokenKeyTpl, user.Username)
		pipe := a.registry.Pipeline()
		pipe.HSet(ctx, key, map[string]interface{}{
			"token":            token,
			"request_count":    0,
			"created_dttm_utc": now.Format(timeFormat),
		})
		pipe.Expire(ctx, key, a.ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			return "", fmt.Errorf("failed to register token: %w", err)
		}
	}

	return token, nil
}

func (a *Auth) VerifyToken(ctx context.Context, token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	if a.registry != nil {
		key := fmt.Sprintf(tokenKeyTpl, claims.Username)
		registered, err := a.registry.HGet(ctx, key, "token").Result()
		if err == redis.Nil || (err == nil && registered != token) {
			logger.Debug.Printf("Token not registered for user %s", claims.Username)
			return nil, fmt.Errorf("token revoked")
		}
		if err != nil {
			return nil, fmt.Errorf("redis error: %w", err)
		}

		now := time.Now().UTC()
		pipe := a.registry.Pipeline()
		pipe.HIncrBy(ctx, key, "request_count", 1)
		pipe.HSet(ctx, key, "last_request_dttm_utc", now.Format(timeFormat))
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Debug.Printf("Failed to update token stats for %s: %v", claims.Username, err)
		}
	}

	return claims, nil
}

func (a *Auth) RevokeToken(ctx context.Context, username string) error {
	if a.registry == nil {
		return nil
	}
	key := fmt.Sprintf(tokenKeyTpl, username)
	return a.registry.Del(ctx, key).Err()
}

// TokenInfo reports registry bookkeeping for one user's current token.
func (a *Auth) TokenInfo(ctx context.Context, username string) (map[string]string, error) {
	if a.registry == nil {
		return nil, fmt.Errorf("token registry is not enabled")
	}
	key := fmt.Sprintf(tokenKeyTpl, username)
	values, err := a.registry.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get token info: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no token registered for %s", username)
	}
	return values, nil
}

// RequestCount parses the registry counter for one user, 0 when absent.
func (a *Auth) RequestCount(ctx context.Context, username string) (int, error) {
	info, err := a.TokenInfo(ctx, username)
	if err != nil {
		return 0, err
	}
	count, _ := strconv.Atoi(info["request_count"])
	return count, nil
}
