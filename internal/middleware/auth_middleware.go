// meridian-crm/internal/middleware/auth_middleware.go
package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"meridian-crm/config"
	"meridian-crm/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

// CachedUserData - единая структура для всех данных пользователя в кэше.
type CachedUserData struct {
	UserID      uint     `json:"user_id"`
	Login       string   `json:"login"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// AuthMiddleware проверяет JWT (cookie или Bearer) и кладет данные
// пользователя в контекст запроса. Роли и права кэшируются в Redis.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := extractToken(c)
		if tokenStr == "" {
			handleAuthError(c, "Authorization token not provided")
			return
		}

		token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return config.JwtKey, nil
		})
		if err != nil || !token.Valid {
			c.SetCookie("auth_token", "", -1, "/", "", false, true)
			handleAuthError(c, "Invalid or expired token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			handleAuthError(c, "Invalid token claims")
			return
		}
		userIDFloat, ok := claims["user_id"].(float64)
		if !ok {
			handleAuthError(c, "Invalid user ID format in token")
			return
		}
		userID := uint(userIDFloat)

		if userData := loadCachedUserData(userID); userData != nil {
			setContextAndProceed(c, userData)
			return
		}

		userData, err := loadUserDataFromDB(userID)
		if err != nil {
			c.SetCookie("auth_token", "", -1, "/", "", false, true)
			handleAuthError(c, "User from token not found in DB")
			return
		}

		cacheUserData(userData)
		setContextAndProceed(c, userData)
	}
}

func extractToken(c *gin.Context) string {
	if tokenStr, err := c.Cookie("auth_token"); err == nil && tokenStr != "" {
		return tokenStr
	}
	authHeader := c.GetHeader("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
		return parts[1]
	}
	return ""
}

func loadCachedUserData(userID uint) *CachedUserData {
	if config.RDB == nil {
		return nil
	}
	cacheKey := fmt.Sprintf("user:%d:data", userID)
	cached, err := config.RDB.Get(config.Ctx, cacheKey).Result()
	if err != nil {
		if err != redis.Nil {
			slog.Error("Redis GET command failed", "error", err, "user_id", userID)
		}
		return nil
	}
	var userData CachedUserData
	if json.Unmarshal([]byte(cached), &userData) != nil {
		slog.Warn("Failed to unmarshal cached user data", "user_id", userID)
		return nil
	}
	return &userData
}

func loadUserDataFromDB(userID uint) (*CachedUserData, error) {
	var dbUser models.User
	if err := config.DB.Preload("Roles").First(&dbUser, userID).Error; err != nil {
		return nil, err
	}

	var roleIDs []uint
	var roleNames []string
	isAdmin := false
	for _, role := range dbUser.Roles {
		roleIDs = append(roleIDs, role.ID)
		roleNames = append(roleNames, role.Name)
		if role.Name == "admin" {
			isAdmin = true
		}
	}

	var permissionsList []string
	if len(roleIDs) > 0 {
		config.DB.Table("permissions").
			Joins("join role_permissions on role_permissions.permission_id = permissions.id").
			Where("role_permissions.role_id IN ?", roleIDs).
			Distinct().
			Pluck("name", &permissionsList)
	}

	// Админ проходит любую проверку прав.
	if isAdmin {
		permissionsList = append(permissionsList, "admin")
	}

	return &CachedUserData{
		UserID:      dbUser.ID,
		Login:       dbUser.Login,
		Roles:       roleNames,
		Permissions: permissionsList,
	}, nil
}

func cacheUserData(userData *CachedUserData) {
	if config.RDB == nil {
		return
	}
	jsonData, err := json.Marshal(userData)
	if err != nil {
		slog.Error("Failed to marshal user data for caching", "error", err, "user_id", userData.UserID)
		return
	}
	cacheKey := fmt.Sprintf("user:%d:data", userData.UserID)
	if err := config.RDB.Set(config.Ctx, cacheKey, jsonData, 10*time.Minute).Err(); err != nil {
		slog.Error("Failed to SET user data to cache", "error", err, "user_id", userData.UserID)
	}
}

func setContextAndProceed(c *gin.Context, userData *CachedUserData) {
	c.Set("user_id", userData.UserID)
	c.Set("login", userData.Login)
	c.Set("roles", userData.Roles)
	c.Set("permissions", userData.Permissions)
	c.Next()
}

// PermissionMiddleware пропускает запрос, только если у пользователя есть
// требуемое право. Роль admin проходит всегда.
func PermissionMiddleware(requiredPermission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if roles, exists := c.Get("roles"); exists {
			if userRoles, ok := roles.([]string); ok {
				for _, roleName := range userRoles {
					if roleName == "admin" {
						c.Next()
						return
					}
				}
			}
		}

		permissions, exists := c.Get("permissions")
		if !exists {
			c.JSON(http.StatusForbidden, gin.H{"error": "Permissions not found in context"})
			c.Abort()
			return
		}
		userPermissions, ok := permissions.([]string)
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "Internal permission format error"})
			c.Abort()
			return
		}
		for _, permissionName := range userPermissions {
			if permissionName == requiredPermission {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, gin.H{"error": "Permission denied"})
		c.Abort()
	}
}

func handleAuthError(c *gin.Context, message string) {
	if strings.Contains(c.GetHeader("Accept"), "text/html") {
		c.Redirect(http.StatusFound, "/")
	} else {
		c.JSON(http.StatusUnauthorized, gin.H{"error": message})
	}
	c.Abort()
}
