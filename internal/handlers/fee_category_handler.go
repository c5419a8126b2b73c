// meridian-crm/internal/handlers/fee_category_handler.go
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"meridian-crm/config"
	"meridian-crm/internal/billing"
	"meridian-crm/models"

	"github.com/Knetic/govaluate"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type FeeCategoryInput struct {
	Name          string  `json:"name" binding:"required"`
	Description   string  `json:"description"`
	DefaultAmount float64 `json:"defaultAmount"`
	Formula       string  `json:"formula"`
}

type IssueClassInvoicesInput struct {
	Grade   string `json:"grade" binding:"required"`
	DueDate string `json:"dueDate" binding:"required"` // YYYY-MM-DD
}

// ListFeeCategoriesHandler retrieves all fee categories.
func ListFeeCategoriesHandler(c *gin.Context) {
	var categories []models.FeeCategory
	if err := config.DB.Order("name asc").Find(&categories).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch fee categories"})
		return
	}
	c.JSON(http.StatusOK, categories)
}

// CreateFeeCategoryHandler создает новую категорию оплаты.
func CreateFeeCategoryHandler(c *gin.Context) {
	var input FeeCategoryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные: " + err.Error()})
		return
	}

	if input.Formula != "" {
		// Проверяем формулу на этапе создания, а не при выставлении счетов.
		if _, err := govaluate.NewEvaluableExpression(input.Formula); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Ошибка в формуле: " + input.Formula})
			return
		}
	}

	category := models.FeeCategory{
		Name:          input.Name,
		Description:   input.Description,
		DefaultAmount: input.DefaultAmount,
		Formula:       input.Formula,
	}
	if err := config.DB.Create(&category).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось сохранить категорию"})
		return
	}

	c.JSON(http.StatusCreated, category)
}

// UpdateFeeCategoriesHandler updates multiple fee category records in one transaction.
func UpdateFeeCategoriesHandler(c *gin.Context) {
	var categories []models.FeeCategory
	if err := c.ShouldBindJSON(&categories); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid data provided"})
		return
	}

	// Формулы проверяются до записи, как и при создании категории.
	for _, cat := range categories {
		if cat.Formula == "" {
			continue
		}
		if _, err := govaluate.NewEvaluableExpression(cat.Formula); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Ошибка в формуле: " + cat.Formula})
			return
		}
	}

	tx := config.DB.Begin()
	for _, cat := range categories {
		err := tx.Model(&models.FeeCategory{}).Where("id = ?", cat.ID).
			Updates(map[string]interface{}{
				"description":    cat.Description,
				"default_amount": cat.DefaultAmount,
				"formula":        cat.Formula,
			}).Error
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update fee categories"})
			return
		}
	}

	if err := tx.Commit().Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Transaction commit error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Fee categories updated successfully"})
}

// IssueClassInvoicesHandler выставляет счета по категории всем ученикам
// указанного класса одной транзакцией. Сумма каждого счета берется из
// формулы категории (параметры "Сумма" и "Скидка") или из суммы по умолчанию.
func IssueClassInvoicesHandler(c *gin.Context) {
	var category models.FeeCategory
	if err := config.DB.First(&category, c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Категория не найдена"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	var input IssueClassInvoicesInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные: " + err.Error()})
		return
	}

	dueDate, err := time.Parse("2006-01-02", input.DueDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат даты. Используйте YYYY-MM-DD."})
		return
	}

	var students []models.Student
	if err := config.DB.
		Where("grade = ? AND (is_studying IS NULL OR is_studying = ?)", input.Grade, true).
		Order("last_name, first_name").
		Find(&students).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось получить список учеников"})
		return
	}
	if len(students) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "В классе " + input.Grade + " нет учеников"})
		return
	}

	now := time.Now()
	var created []InvoiceResponse

	err = config.DB.Transaction(func(tx *gorm.DB) error {
		for _, student := range students {
			amount, err := categoryAmountFor(category, student)
			if err != nil {
				return err
			}

			invoice := models.Invoice{
				StudentID:   student.ID,
				StudentName: student.FullName(),
				Grade:       student.Grade,
				FeeCategory: category.Name,
				Amount:      amount,
				IssueDate:   startOfToday(now),
				DueDate:     dueDate,
				Status:      billing.StatusPending,
			}
			if err := createInvoiceWithUniqueNumber(tx, &invoice); err != nil {
				return err
			}
			created = append(created, toInvoiceResponse(invoice, now))
		}
		return nil
	})
	if err != nil {
		slog.Error("Не удалось выставить счета классу", "grade", input.Grade, "category", category.Name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось выставить счета: " + err.Error()})
		return
	}

	slog.Info("Счета выставлены классу", "grade", input.Grade, "category", category.Name, "count", len(created))
	c.JSON(http.StatusCreated, gin.H{"message": "Счета успешно выставлены", "createdCount": len(created), "invoices": created})
}

// categoryAmountFor вычисляет сумму счета для ученика по формуле категории.
func categoryAmountFor(category models.FeeCategory, student models.Student) (float64, error) {
	if category.Formula == "" {
		return billing.Round2(category.DefaultAmount), nil
	}

	expr, err := govaluate.NewEvaluableExpression(category.Formula)
	if err != nil {
		return 0, fmt.Errorf("ошибка в формуле категории %q: %w", category.Name, err)
	}

	parameters := map[string]interface{}{
		"Сумма":  category.DefaultAmount,
		"Скидка": student.Discount,
	}
	result, err := expr.Evaluate(parameters)
	if err != nil {
		return 0, fmt.Errorf("не удалось вычислить формулу %q: %w", category.Formula, err)
	}

	amount, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("результат формулы %q не является числом", category.Formula)
	}
	if amount < 0 {
		return 0, fmt.Errorf("формула %q дала отрицательную сумму", category.Formula)
	}
	return billing.Round2(amount), nil
}
