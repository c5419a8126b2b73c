package handlers

import (
	"net/http"
	"testing"

	"meridian-crm/config"
	"meridian-crm/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterCreatesUserWithoutRoles(t *testing.T) {
	setupTest(t)
	r := newTestRouter()

	rec := performRequest(r, http.MethodPost, "/register", gin.H{
		"login":    "bookkeeper",
		"password": "secret-1",
		"fullName": "Новый сотрудник",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Самостоятельная регистрация не дает никаких прав:
	// роли назначает администратор отдельно.
	var user models.User
	require.NoError(t, config.DB.Preload("Roles").Where("login = ?", "bookkeeper").First(&user).Error)
	assert.Empty(t, user.Roles)

	// Повторный логин занят.
	rec = performRequest(r, http.MethodPost, "/register", gin.H{
		"login":    "bookkeeper",
		"password": "secret-2",
		"fullName": "Тезка",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLogin(t *testing.T) {
	setupTest(t)
	r := newTestRouter()

	rec := performRequest(r, http.MethodPost, "/register", gin.H{
		"login":    "bookkeeper",
		"password": "secret-1",
		"fullName": "Сотрудник",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = performRequest(r, http.MethodPost, "/login", gin.H{
		"login":    "bookkeeper",
		"password": "secret-1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)

	rec = performRequest(r, http.MethodPost, "/login", gin.H{
		"login":    "bookkeeper",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
