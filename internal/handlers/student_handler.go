// meridian-crm/internal/handlers/student_handler.go
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"meridian-crm/config"
	"meridian-crm/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type StudentInput struct {
	LastName    string   `json:"lastName" binding:"required"`
	FirstName   string   `json:"firstName" binding:"required"`
	MiddleName  string   `json:"middleName"`
	Grade       string   `json:"grade"`
	Email       string   `json:"email"`
	Phone       string   `json:"phone"`
	Discount    *float64 `json:"discount"`
	ParentName  string   `json:"parentName"`
	ParentEmail string   `json:"parentEmail"`
	ParentPhone string   `json:"parentPhone"`
	Comments    string   `json:"comments"`
	IsStudying  *bool    `json:"isStudying"`
}

// ListStudentsHandler возвращает список учеников с поиском и пагинацией.
func ListStudentsHandler(c *gin.Context) {
	baseQuery := config.DB.Model(&models.Student{})

	if search := c.Query("search"); search != "" {
		searchPattern := "%" + strings.ToLower(search) + "%"
		baseQuery = baseQuery.Where(
			"LOWER(last_name) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(parent_name) LIKE ?",
			searchPattern, searchPattern, searchPattern,
		)
	}
	if grade := c.Query("grade"); grade != "" {
		baseQuery = baseQuery.Where("grade = ?", grade)
	}

	var totalRows int64
	if err := baseQuery.Count(&totalRows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось посчитать учеников"})
		return
	}

	var students []models.Student
	if err := baseQuery.Scopes(Paginate(c)).Order("last_name, first_name").Find(&students).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось получить список учеников"})
		return
	}

	c.JSON(http.StatusOK, CreatePaginatedResponse(c, students, totalRows))
}

// CreateStudentHandler создает нового ученика.
func CreateStudentHandler(c *gin.Context) {
	var input StudentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные: " + err.Error()})
		return
	}

	student := models.Student{
		LastName:    input.LastName,
		FirstName:   input.FirstName,
		MiddleName:  input.MiddleName,
		Grade:       input.Grade,
		Email:       input.Email,
		Phone:       input.Phone,
		ParentName:  input.ParentName,
		ParentEmail: input.ParentEmail,
		ParentPhone: input.ParentPhone,
		Comments:    input.Comments,
		IsStudying:  input.IsStudying,
	}
	if input.Discount != nil {
		student.Discount = *input.Discount
	}

	if err := config.DB.Create(&student).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось сохранить ученика: " + err.Error()})
		return
	}

	c.JSON(http.StatusCreated, student)
}

// GetStudentHandler возвращает одного ученика по ID.
func GetStudentHandler(c *gin.Context) {
	var student models.Student
	if err := config.DB.First(&student, c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Ученик не найден"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка получения данных ученика"})
		return
	}
	c.JSON(http.StatusOK, student)
}

// UpdateStudentHandler обновляет данные ученика.
func UpdateStudentHandler(c *gin.Context) {
	var student models.Student
	if err := config.DB.First(&student, c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Ученик не найден"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка получения данных ученика"})
		return
	}

	var input StudentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные: " + err.Error()})
		return
	}

	student.LastName = input.LastName
	student.FirstName = input.FirstName
	student.MiddleName = input.MiddleName
	student.Grade = input.Grade
	student.Email = input.Email
	student.Phone = input.Phone
	student.ParentName = input.ParentName
	student.ParentEmail = input.ParentEmail
	student.ParentPhone = input.ParentPhone
	student.Comments = input.Comments
	if input.Discount != nil {
		student.Discount = *input.Discount
	}
	if input.IsStudying != nil {
		student.IsStudying = input.IsStudying
	}

	if err := config.DB.Save(&student).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось обновить ученика"})
		return
	}

	c.JSON(http.StatusOK, student)
}
