package config

import (
	"log/slog"
	"os"
)

var JwtKey []byte

func InitJWT() {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "meridian-dev-secret"
		slog.Warn("JWT_SECRET не задан, используется небезопасный ключ по умолчанию.")
	}
	JwtKey = []byte(secret)
}
