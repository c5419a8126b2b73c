// FILE: meridian-crm/internal/handlers/invoice_handler.go
package handlers

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"meridian-crm/config"
	"meridian-crm/internal/billing"
	"meridian-crm/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// --- Структуры для входящих данных и ответов ---

type CreateInvoiceInput struct {
	StudentID   uint     `json:"studentId" binding:"required"`
	FeeCategory string   `json:"feeCategory" binding:"required"`
	Amount      *float64 `json:"amount" binding:"required"`
	DueDate     string   `json:"dueDate" binding:"required"` // YYYY-MM-DD
}

type RecordPaymentInput struct {
	Method string `json:"method" binding:"required"`
}

// InvoiceResponse — счет в том виде, в котором его видит клиент:
// статус уже вычислен по сроку оплаты, даты отформатированы.
type InvoiceResponse struct {
	ID               uint    `json:"id"`
	InvoiceNumber    string  `json:"invoiceNumber"`
	StudentID        uint    `json:"studentId"`
	StudentName      string  `json:"studentName"`
	Grade            string  `json:"grade"`
	FeeCategory      string  `json:"feeCategory"`
	Amount           float64 `json:"amount"`
	IssueDate        string  `json:"issueDate"`
	DueDate          string  `json:"dueDate"`
	Status           string  `json:"status"`
	DaysPastDue      int     `json:"daysPastDue"`
	PaymentDate      *string `json:"paymentDate"`
	PaymentMethod    *string `json:"paymentMethod"`
	LastReminderSent *string `json:"lastReminderSent"`
	ReminderCount    int     `json:"reminderCount"`
}

func toInvoiceResponse(inv models.Invoice, now time.Time) InvoiceResponse {
	resp := InvoiceResponse{
		ID:            inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		StudentID:     inv.StudentID,
		StudentName:   inv.StudentName,
		Grade:         inv.Grade,
		FeeCategory:   inv.FeeCategory,
		Amount:        inv.Amount,
		IssueDate:     inv.IssueDate.Format("2006-01-02"),
		DueDate:       inv.DueDate.Format("2006-01-02"),
		Status:        billing.EffectiveStatus(inv, now),
		PaymentMethod: inv.PaymentMethod,
		ReminderCount: inv.ReminderCount,
	}
	if resp.Status == billing.StatusOverdue {
		resp.DaysPastDue = billing.DaysPastDue(inv.DueDate, now)
	}
	if inv.PaymentDate != nil {
		d := inv.PaymentDate.Format("2006-01-02")
		resp.PaymentDate = &d
	}
	if inv.LastReminderSent != nil {
		d := inv.LastReminderSent.Format("2006-01-02")
		resp.LastReminderSent = &d
	}
	return resp
}

// startOfToday возвращает сегодняшнюю полночь — граница для вычисления просрочки в SQL.
func startOfToday(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// --- Обработчики ---

// ListInvoicesHandler возвращает список счетов с фильтрами.
// Все фильтры соединяются по "И"; статус Overdue вычисляется по сроку оплаты.
func ListInvoicesHandler(c *gin.Context) {
	now := time.Now()
	query := config.DB.Model(&models.Invoice{})

	if search := c.Query("search"); search != "" {
		searchPattern := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(invoice_number) LIKE ? OR LOWER(student_name) LIKE ? OR LOWER(fee_category) LIKE ?",
			searchPattern, searchPattern, searchPattern,
		)
	}
	if feeCategory := c.Query("feeCategory"); feeCategory != "" {
		query = query.Where("LOWER(fee_category) = LOWER(?)", feeCategory)
	}
	if studentID := c.Query("studentId"); studentID != "" {
		query = query.Where("student_id = ?", studentID)
	}

	switch status := c.Query("status"); status {
	case "":
	case billing.StatusPaid:
		query = query.Where("status = ?", billing.StatusPaid)
	case billing.StatusPending:
		query = query.Where("status = ? AND due_date >= ?", billing.StatusPending, startOfToday(now))
	case billing.StatusOverdue:
		query = query.Where("status = ? AND due_date < ?", billing.StatusPending, startOfToday(now))
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неизвестный статус: " + status})
		return
	}

	var totalRows int64
	if err := query.Count(&totalRows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not count invoices"})
		return
	}

	// Базовый порядок — порядок выставления счетов. Ключ сортировки,
	// если задан, применяется поверх него, ничьи разрешаются по id.
	order := "id asc"
	switch c.Query("sort") {
	case "studentName":
		order = "student_name asc, id asc"
	case "amount":
		order = "amount asc, id asc"
	case "dueDate":
		order = "due_date asc, id asc"
	}

	var invoices []models.Invoice
	if err := query.Scopes(Paginate(c)).Order(order).Find(&invoices).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch invoices"})
		return
	}

	data := make([]InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		data = append(data, toInvoiceResponse(inv, now))
	}

	c.JSON(http.StatusOK, CreatePaginatedResponse(c, data, totalRows))
}

// CreateInvoiceHandler выставляет новый счет ученику.
func CreateInvoiceHandler(c *gin.Context) {
	var input CreateInvoiceInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные: " + err.Error()})
		return
	}

	if *input.Amount < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Сумма счета не может быть отрицательной"})
		return
	}

	dueDate, err := time.Parse("2006-01-02", input.DueDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат даты. Используйте YYYY-MM-DD."})
		return
	}

	var student models.Student
	if err := config.DB.First(&student, input.StudentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Ученик не найден"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при поиске ученика"})
		return
	}

	now := time.Now()
	invoice := models.Invoice{
		StudentID:   student.ID,
		StudentName: student.FullName(),
		Grade:       student.Grade,
		FeeCategory: input.FeeCategory,
		Amount:      billing.Round2(*input.Amount),
		IssueDate:   startOfToday(now),
		DueDate:     dueDate,
		Status:      billing.StatusPending,
	}

	if err := createInvoiceWithUniqueNumber(config.DB, &invoice); err != nil {
		slog.Error("Не удалось сохранить счет", "error", err, "student_id", student.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось сохранить счет: " + err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Счет успешно выставлен", "invoice": toInvoiceResponse(invoice, now)})
}

// createInvoiceWithUniqueNumber сохраняет счет, гарантируя уникальный invoice_number.
// Формат номера: "INV-{год}-{seq}". При конфликте — увеличивает seq и повторяет вставку (до 10 попыток).
func createInvoiceWithUniqueNumber(db *gorm.DB, invoice *models.Invoice) error {
	const maxTries = 10
	year := invoice.IssueDate.Year()

	// стартовая последовательность — количество счетов за этот год + 1
	var existing int64
	if err := db.Model(&models.Invoice{}).
		Where("invoice_number LIKE ?", fmt.Sprintf("INV-%d-%%", year)).
		Count(&existing).Error; err != nil {
		return err
	}
	seq := int(existing) + 1

	for i := 0; i < maxTries; i++ {
		invoice.InvoiceNumber = fmt.Sprintf("INV-%d-%03d", year, seq)

		err := db.Create(invoice).Error
		if err == nil {
			return nil
		}

		// Конфликт уникальности номера — пробуем следующий номер.
		lower := strings.ToLower(err.Error())
		if strings.Contains(lower, "duplicate") || strings.Contains(lower, "unique") {
			seq++
			invoice.ID = 0
			continue
		}
		return err
	}

	return fmt.Errorf("не удалось подобрать уникальный номер счета после %d попыток", maxTries)
}

// GetInvoiceHandler возвращает один счет по его номеру.
func GetInvoiceHandler(c *gin.Context) {
	number := c.Param("number")

	var invoice models.Invoice
	if err := config.DB.Where("invoice_number = ?", number).First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Счет не найден"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, toInvoiceResponse(invoice, time.Now()))
}

// RecordPaymentHandler отмечает счет оплаченным. Статус, дата и способ оплаты
// пишутся одним UPDATE с условием на текущий статус, поэтому повторная оплата
// невозможна даже при конкурентных запросах.
func RecordPaymentHandler(c *gin.Context) {
	number := c.Param("number")

	var input RecordPaymentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Не указан способ оплаты"})
		return
	}

	now := time.Now()
	result := config.DB.Model(&models.Invoice{}).
		Where("invoice_number = ? AND status = ?", number, billing.StatusPending).
		Updates(map[string]interface{}{
			"status":         billing.StatusPaid,
			"payment_date":   now,
			"payment_method": input.Method,
		})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось обновить статус счета"})
		return
	}

	if result.RowsAffected == 0 {
		var invoice models.Invoice
		if err := config.DB.Where("invoice_number = ?", number).First(&invoice).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Счет не найден"})
			return
		}
		// Счет существует, но уже оплачен. Поля первой оплаты не трогаем.
		c.JSON(http.StatusConflict, gin.H{"error": "Счет уже оплачен", "invoice": toInvoiceResponse(invoice, now)})
		return
	}

	var invoice models.Invoice
	if err := config.DB.Where("invoice_number = ?", number).First(&invoice).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	slog.Info("Счет успешно отмечен как оплаченный", "invoice_number", number, "method", input.Method)
	c.JSON(http.StatusOK, gin.H{"message": "Оплата успешно принята", "invoice": toInvoiceResponse(invoice, now)})
}

// GetInvoiceTotalsHandler возвращает суммы по корзинам статусов.
func GetInvoiceTotalsHandler(c *gin.Context) {
	query := config.DB.Model(&models.Invoice{})
	if studentID := c.Query("studentId"); studentID != "" {
		query = query.Where("student_id = ?", studentID)
	}

	var invoices []models.Invoice
	if err := query.Find(&invoices).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch invoices"})
		return
	}

	c.JSON(http.StatusOK, billing.ComputeTotals(invoices, time.Now()))
}

// DownloadInvoiceArchiveHandler отдает все счета в виде CSV файла.
func DownloadInvoiceArchiveHandler(c *gin.Context) {
	var invoices []models.Invoice
	if err := config.DB.Order("id asc").Find(&invoices).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch invoices from database"})
		return
	}

	if len(invoices) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No invoices found to export"})
		return
	}

	now := time.Now()
	b := &bytes.Buffer{}
	b.Write([]byte{0xEF, 0xBB, 0xBF}) // BOM for UTF-8

	w := csv.NewWriter(b)
	w.Comma = ';'

	headers := []string{
		"Номер счета", "Ученик", "Класс", "Категория", "Сумма",
		"Дата выставления", "Срок оплаты", "Статус",
		"Дата оплаты", "Способ оплаты", "Напоминаний",
	}
	if err := w.Write(headers); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to write CSV header"})
		return
	}

	for _, inv := range invoices {
		var paymentDate, paymentMethod string
		if inv.PaymentDate != nil {
			paymentDate = inv.PaymentDate.Format("2006-01-02")
		}
		if inv.PaymentMethod != nil {
			paymentMethod = *inv.PaymentMethod
		}

		record := []string{
			inv.InvoiceNumber, inv.StudentName, inv.Grade, inv.FeeCategory,
			fmt.Sprintf("%.2f", inv.Amount),
			inv.IssueDate.Format("2006-01-02"), inv.DueDate.Format("2006-01-02"),
			billing.EffectiveStatus(inv, now),
			paymentDate, paymentMethod,
			fmt.Sprintf("%d", inv.ReminderCount),
		}
		if err := w.Write(record); err != nil {
			slog.Warn("Failed to write record to CSV", "invoice_number", inv.InvoiceNumber, "error", err)
			continue
		}
	}
	w.Flush()

	if err := w.Error(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error writing CSV data"})
		return
	}

	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename=invoices_export.csv")
	c.Data(http.StatusOK, "text/csv", b.Bytes())
}
