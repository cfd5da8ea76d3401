package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/d60-Lab/anon-community/pkg/response"
)

// KeyAuthID 认证后的外部用户 ID（JWT sub）
const KeyAuthID = "auth_id"

var errMissingSubject = errors.New("token has no subject")

// JWTAuth 校验 HS256 Bearer token，把 sub 作为调用方的 auth id。
// 令牌签发不在本服务内
func JWTAuth(secret string) gin.HandlerFunc {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			response.Unauthorized(c, "missing bearer token")
			c.Abort()
			return
		}

		sub, err := subject(parser, raw, key)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}
		c.Set(KeyAuthID, sub)
		c.Next()
	}
}

func subject(p *jwt.Parser, raw string, key []byte) (string, error) {
	var claims jwt.RegisteredClaims
	if _, err := p.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) { return key, nil }); err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errMissingSubject
	}
	return claims.Subject, nil
}

// AuthID 读取 JWTAuth 写入的 auth id
func AuthID(c *gin.Context) string { return c.GetString(KeyAuthID) }
