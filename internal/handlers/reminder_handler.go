// FILE: meridian-crm/internal/handlers/reminder_handler.go
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"meridian-crm/config"
	"meridian-crm/internal/billing"
	"meridian-crm/internal/mailer"
	"meridian-crm/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// --- Структуры для входящих данных и ответов ---

type SendRemindersInput struct {
	InvoiceNumbers []string `json:"invoiceNumbers" binding:"required,min=1"`
	Method         string   `json:"method" binding:"required"` // пока поддерживается только email
	Template       string   `json:"template"`                  // polite | firm | final
	Message        string   `json:"message"`
	// BatchKey — ключ идемпотентности пачки. Если клиент повторит запрос
	// с тем же ключом, счетчики напоминаний не увеличатся второй раз.
	BatchKey string `json:"batchKey"`
}

// OverdueInvoiceResponse — просроченный счет вместе с контактом родителя.
type OverdueInvoiceResponse struct {
	InvoiceNumber    string  `json:"invoiceNumber"`
	StudentID        uint    `json:"studentId"`
	StudentName      string  `json:"studentName"`
	Grade            string  `json:"grade"`
	FeeCategory      string  `json:"feeCategory"`
	Amount           float64 `json:"amount"`
	DueDate          string  `json:"dueDate"`
	DaysPastDue      int     `json:"daysPastDue"`
	Severity         string  `json:"severity"`
	ParentName       string  `json:"parentName"`
	ParentEmail      string  `json:"parentEmail"`
	ParentPhone      string  `json:"parentPhone"`
	LastReminderSent *string `json:"lastReminderSent"`
	ReminderCount    int     `json:"reminderCount"`
}

func toOverdueResponse(inv models.Invoice, now time.Time) OverdueInvoiceResponse {
	days := billing.DaysPastDue(inv.DueDate, now)
	resp := OverdueInvoiceResponse{
		InvoiceNumber: inv.InvoiceNumber,
		StudentID:     inv.StudentID,
		StudentName:   inv.StudentName,
		Grade:         inv.Grade,
		FeeCategory:   inv.FeeCategory,
		Amount:        inv.Amount,
		DueDate:       inv.DueDate.Format("2006-01-02"),
		DaysPastDue:   days,
		Severity:      billing.SeverityFor(days),
		ParentName:    inv.Student.ParentName,
		ParentEmail:   inv.Student.ParentEmail,
		ParentPhone:   inv.Student.ParentPhone,
		ReminderCount: inv.ReminderCount,
	}
	if inv.LastReminderSent != nil {
		d := inv.LastReminderSent.Format("2006-01-02")
		resp.LastReminderSent = &d
	}
	return resp
}

// loadOverdueInvoices загружает просроченные счета вместе с учениками.
func loadOverdueInvoices(now time.Time, search string) ([]models.Invoice, error) {
	query := config.DB.Preload("Student").
		Where("status = ? AND due_date < ?", billing.StatusPending, startOfToday(now))

	if search != "" {
		searchPattern := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(invoice_number) LIKE ? OR LOWER(student_name) LIKE ?",
			searchPattern, searchPattern,
		)
	}

	var invoices []models.Invoice
	if err := query.Order("due_date asc, id asc").Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

// --- Обработчики ---

// ListOverdueInvoicesHandler возвращает просроченные счета. Степень просрочки
// (critical/moderate/recent) вычисляется от сегодняшней даты.
func ListOverdueInvoicesHandler(c *gin.Context) {
	now := time.Now()
	invoices, err := loadOverdueInvoices(now, c.Query("search"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось получить просроченные счета"})
		return
	}

	severity := c.Query("severity")
	data := make([]OverdueInvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		resp := toOverdueResponse(inv, now)
		if severity != "" && resp.Severity != severity {
			continue
		}
		data = append(data, resp)
	}

	c.JSON(http.StatusOK, gin.H{"data": data, "totalRows": len(data)})
}

// GetOverdueSummaryHandler возвращает счетчики по корзинам просрочки.
// Сводка без фильтров кэшируется в Redis на минуту.
func GetOverdueSummaryHandler(c *gin.Context) {
	const cacheKey = "reminders:overdue:summary"

	if config.RDB != nil {
		if cached, err := config.RDB.Get(config.Ctx, cacheKey).Result(); err == nil {
			c.Data(http.StatusOK, "application/json", []byte(cached))
			return
		} else if err != redis.Nil {
			slog.Error("Redis GET command failed", "error", err, "key", cacheKey)
		}
	}

	now := time.Now()
	invoices, err := loadOverdueInvoices(now, "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось получить просроченные счета"})
		return
	}

	summary := gin.H{
		"critical":    0,
		"moderate":    0,
		"recent":      0,
		"totalCount":  len(invoices),
		"totalAmount": 0.0,
	}
	var totalAmount float64
	for _, inv := range invoices {
		severity := billing.SeverityFor(billing.DaysPastDue(inv.DueDate, now))
		summary[severity] = summary[severity].(int) + 1
		totalAmount += inv.Amount
	}
	summary["totalAmount"] = billing.Round2(totalAmount)

	if config.RDB != nil {
		if jsonData, err := json.Marshal(summary); err == nil {
			if err := config.RDB.Set(config.Ctx, cacheKey, jsonData, time.Minute).Err(); err != nil {
				slog.Error("Failed to SET overdue summary to cache", "error", err)
			}
		}
	}

	c.JSON(http.StatusOK, summary)
}

// ExportOverdueReportHandler выгружает отчет по просроченным платежам в Excel.
func ExportOverdueReportHandler(c *gin.Context) {
	now := time.Now()
	invoices, err := loadOverdueInvoices(now, c.Query("search"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch data for export"})
		return
	}

	f := excelize.NewFile()
	sheetName := "Просроченные платежи"
	index, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"Номер счета", "ФИО ученика", "Класс", "Категория", "Сумма", "Срок оплаты", "Дней просрочки", "Степень", "Родитель", "Email", "Телефон", "Напоминаний"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}

	for i, inv := range invoices {
		row := i + 2
		resp := toOverdueResponse(inv, now)
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), resp.InvoiceNumber)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), resp.StudentName)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), resp.Grade)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), resp.FeeCategory)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), resp.Amount)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), inv.DueDate.Format("02.01.2006"))
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), resp.DaysPastDue)
		f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), resp.Severity)
		f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), resp.ParentName)
		f.SetCellValue(sheetName, fmt.Sprintf("J%d", row), resp.ParentEmail)
		f.SetCellValue(sheetName, fmt.Sprintf("K%d", row), resp.ParentPhone)
		f.SetCellValue(sheetName, fmt.Sprintf("L%d", row), resp.ReminderCount)
	}

	fileName := fmt.Sprintf("overdue_report_%s.xlsx", time.Now().Format("20060102_150405"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename="+fileName)
	if err := f.Write(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to write Excel file"})
	}
}

// SendRemindersHandler отправляет пачку напоминаний по просроченным счетам.
//
// Пачка проверяется целиком до каких-либо изменений: неизвестные номера —
// 404 со списком, не просроченные — 409 со списком. Молчаливый пропуск
// неизвестных номеров маскировал бы ошибки клиента.
// Счетчик напоминания растет только по счетам, по которым отправка удалась;
// неудачи возвращаются в поле failed.
func SendRemindersHandler(c *gin.Context) {
	var input SendRemindersInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные: " + err.Error()})
		return
	}

	if input.Method != "email" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неподдерживаемый канал отправки: " + input.Method})
		return
	}

	batchKey := input.BatchKey
	if batchKey == "" {
		batchKey = uuid.NewString()
	}

	// Защита от повторной обработки той же пачки (ретраи клиента).
	if replay, cached := batchAlreadyProcessed(batchKey); replay {
		slog.Info("Повторная пачка напоминаний пропущена", "batch_key", batchKey)
		if cached != nil {
			c.Data(http.StatusOK, "application/json", cached)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sentCount": 0, "failed": []gin.H{}, "batchKey": batchKey, "message": "Пачка уже обработана"})
		return
	}

	now := time.Now()
	var invoices []models.Invoice
	if err := config.DB.Preload("Student").
		Where("invoice_number IN ?", input.InvoiceNumbers).
		Find(&invoices).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось загрузить счета"})
		return
	}

	found := make(map[string]models.Invoice, len(invoices))
	for _, inv := range invoices {
		found[inv.InvoiceNumber] = inv
	}

	var missing []string
	var notOverdue []string
	for _, number := range input.InvoiceNumbers {
		inv, ok := found[number]
		if !ok {
			missing = append(missing, number)
			continue
		}
		if billing.EffectiveStatus(inv, now) != billing.StatusOverdue {
			notOverdue = append(notOverdue, number)
		}
	}
	if len(missing) > 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Счета не найдены", "missingInvoices": missing})
		return
	}
	if len(notOverdue) > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Счета не просрочены или уже оплачены", "invalidInvoices": notOverdue})
		return
	}

	failed := make([]gin.H, 0)
	var sent []models.Invoice
	for _, number := range input.InvoiceNumbers {
		inv := found[number]
		reminder := buildReminder(inv, input, now)

		if err := config.Mail.SendReminder(reminder); err != nil {
			slog.Warn("Не удалось отправить напоминание", "invoice_number", number, "error", err)
			failed = append(failed, gin.H{"invoiceNumber": number, "error": err.Error()})
			continue
		}
		sent = append(sent, inv)
	}

	if len(sent) > 0 {
		err := config.DB.Transaction(func(tx *gorm.DB) error {
			for _, inv := range sent {
				if err := tx.Model(&models.Invoice{}).Where("id = ?", inv.ID).
					Updates(map[string]interface{}{
						"last_reminder_sent": now,
						"reminder_count":     gorm.Expr("reminder_count + 1"),
					}).Error; err != nil {
					return err
				}
				log := models.ReminderLog{
					BatchKey:  batchKey,
					InvoiceID: inv.ID,
					Method:    input.Method,
					Template:  input.Template,
					Message:   input.Message,
					SentAt:    now,
				}
				if err := tx.Create(&log).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			slog.Error("Ошибка записи результатов пачки напоминаний", "batch_key", batchKey, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось записать результаты отправки"})
			return
		}
	}

	result := gin.H{"sentCount": len(sent), "failed": failed, "batchKey": batchKey}
	rememberBatchResult(batchKey, result)

	slog.Info("Пачка напоминаний обработана", "batch_key", batchKey, "sent", len(sent), "failed", len(failed))
	c.JSON(http.StatusOK, result)
}

func buildReminder(inv models.Invoice, input SendRemindersInput, now time.Time) mailer.Reminder {
	return mailer.Reminder{
		ParentName:    inv.Student.ParentName,
		ParentEmail:   inv.Student.ParentEmail,
		StudentName:   inv.StudentName,
		InvoiceNumber: inv.InvoiceNumber,
		FeeCategory:   inv.FeeCategory,
		Amount:        inv.Amount,
		AmountInWords: billing.AmountInWords(inv.Amount),
		DueDate:       inv.DueDate,
		DaysPastDue:   billing.DaysPastDue(inv.DueDate, now),
		Template:      input.Template,
		Message:       input.Message,
	}
}

// batchAlreadyProcessed проверяет, обрабатывалась ли пачка с таким ключом.
// С Redis возвращается сохраненный результат; без него проверка идет по
// журналу напоминаний.
func batchAlreadyProcessed(batchKey string) (bool, []byte) {
	if config.RDB != nil {
		cached, err := config.RDB.Get(config.Ctx, "reminders:batch:"+batchKey).Result()
		if err == nil {
			return true, []byte(cached)
		}
		if err != redis.Nil {
			slog.Error("Redis GET command failed", "error", err, "batch_key", batchKey)
		}
		return false, nil
	}

	var count int64
	config.DB.Model(&models.ReminderLog{}).Where("batch_key = ?", batchKey).Count(&count)
	return count > 0, nil
}

func rememberBatchResult(batchKey string, result gin.H) {
	if config.RDB == nil {
		return
	}
	jsonData, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := config.RDB.Set(config.Ctx, "reminders:batch:"+batchKey, jsonData, 24*time.Hour).Err(); err != nil {
		slog.Error("Failed to SET batch result to cache", "error", err, "batch_key", batchKey)
	}
}
