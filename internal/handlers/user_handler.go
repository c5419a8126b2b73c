// meridian-crm/internal/handlers/user_handler.go
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"meridian-crm/config"
	"meridian-crm/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ListUsersHandler возвращает пагинированный список пользователей с ролями.
func ListUsersHandler(c *gin.Context) {
	var users []models.User
	var totalRows int64

	query := config.DB.Model(&models.User{}).Preload("Roles")
	if err := query.Count(&totalRows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not count users"})
		return
	}

	if err := query.Scopes(Paginate(c)).Order("login asc").Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch users"})
		return
	}

	c.JSON(http.StatusOK, CreatePaginatedResponse(c, users, totalRows))
}

// GetUserHandler возвращает одного пользователя по ID.
func GetUserHandler(c *gin.Context) {
	var user models.User
	if err := config.DB.Preload("Roles").First(&user, c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Пользователь не найден"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateUserRolesHandler заменяет набор ролей пользователя и сбрасывает
// его кэш в Redis, чтобы новые права применились сразу.
func UpdateUserRolesHandler(c *gin.Context) {
	var user models.User
	if err := config.DB.First(&user, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Пользователь не найден"})
		return
	}

	var input struct {
		RoleIDs []uint `json:"roleIds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные: " + err.Error()})
		return
	}

	var roles []models.Role
	if err := config.DB.Where("id IN ?", input.RoleIDs).Find(&roles).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if err := config.DB.Model(&user).Association("Roles").Replace(roles); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось обновить роли"})
		return
	}

	if config.RDB != nil {
		config.RDB.Del(config.Ctx, fmt.Sprintf("user:%d:data", user.ID))
	}

	c.JSON(http.StatusOK, gin.H{"message": "Роли обновлены"})
}

// DeleteUserHandler удаляет пользователя.
func DeleteUserHandler(c *gin.Context) {
	result := config.DB.Delete(&models.User{}, c.Param("id"))
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось удалить пользователя"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Пользователь не найден"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Пользователь удален"})
}
