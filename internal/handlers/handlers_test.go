package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"meridian-crm/config"
	"meridian-crm/internal/billing"
	"meridian-crm/internal/mailer"
	"meridian-crm/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// recordingMailer накапливает отправленные напоминания для проверок в тестах.
type recordingMailer struct {
	mu   sync.Mutex
	sent []mailer.Reminder
}

var _ mailer.Service = (*recordingMailer)(nil)

func (m *recordingMailer) SendReminder(r mailer.Reminder) error {
	m.mu.Lock()
	m.sent = append(m.sent, r)
	m.mu.Unlock()
	return nil
}

func (m *recordingMailer) Sent() []mailer.Reminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Reminder(nil), m.sent...)
}

// setupTest поднимает чистую in-memory базу и записывающий почтовый сервис.
// Имя базы уникально на тест, cache=shared держит ее общей для всех
// соединений пула. Redis в тестах отключен: код должен работать и без него.
func setupTest(t *testing.T) *recordingMailer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Role{}, &models.Permission{},
		&models.Student{}, &models.FeeCategory{},
		&models.Invoice{}, &models.ReminderLog{},
	))

	rec := &recordingMailer{}
	config.DB = db
	config.RDB = nil
	config.Mail = rec
	config.JwtKey = []byte("test-secret")
	return rec
}

// newTestRouter регистрирует обработчики без auth middleware.
func newTestRouter() *gin.Engine {
	r := gin.New()

	r.POST("/login", LoginHandler)
	r.POST("/register", RegisterHandler)

	r.GET("/api/invoices", ListInvoicesHandler)
	r.POST("/api/invoices", CreateInvoiceHandler)
	r.GET("/api/invoices/totals", GetInvoiceTotalsHandler)
	r.GET("/api/invoices/archive/download", DownloadInvoiceArchiveHandler)
	r.GET("/api/invoices/:number", GetInvoiceHandler)
	r.POST("/api/invoices/:number/payments", RecordPaymentHandler)

	r.GET("/api/reminders/overdue", ListOverdueInvoicesHandler)
	r.GET("/api/reminders/overdue/summary", GetOverdueSummaryHandler)
	r.GET("/api/reminders/overdue/export", ExportOverdueReportHandler)
	r.POST("/api/reminders", SendRemindersHandler)

	r.GET("/api/fee-categories", ListFeeCategoriesHandler)
	r.POST("/api/fee-categories", CreateFeeCategoryHandler)
	r.PUT("/api/fee-categories", UpdateFeeCategoriesHandler)
	r.POST("/api/fee-categories/:id/issue", IssueClassInvoicesHandler)

	return r
}

func performRequest(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func seedStudent(t *testing.T, lastName, grade string) models.Student {
	t.Helper()
	student := models.Student{
		LastName:    lastName,
		FirstName:   "Тест",
		Grade:       grade,
		ParentName:  "Родитель " + lastName,
		ParentEmail: "parent@example.com",
		ParentPhone: "+7 700 000 00 00",
	}
	require.NoError(t, config.DB.Create(&student).Error)
	return student
}

// seedInvoice вставляет счет напрямую, минуя обработчики.
func seedInvoice(t *testing.T, number string, student models.Student, category string, amount float64, dueDate time.Time, paid bool) models.Invoice {
	t.Helper()
	inv := models.Invoice{
		InvoiceNumber: number,
		StudentID:     student.ID,
		StudentName:   student.FullName(),
		Grade:         student.Grade,
		FeeCategory:   category,
		Amount:        amount,
		IssueDate:     dueDate.AddDate(0, -1, 0),
		DueDate:       dueDate,
		Status:        billing.StatusPending,
	}
	if paid {
		now := time.Now()
		method := "Cash"
		inv.Status = billing.StatusPaid
		inv.PaymentDate = &now
		inv.PaymentMethod = &method
	}
	require.NoError(t, config.DB.Create(&inv).Error)
	return inv
}

func daysAgo(n int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -n).Truncate(24 * time.Hour)
}

func daysFromNow(n int) time.Time {
	return time.Now().UTC().AddDate(0, 0, n).Truncate(24 * time.Hour)
}
