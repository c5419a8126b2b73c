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

func TestListOverdueInvoices(t *testing.T) {
	setupTest(t)
	r := newTestRouter()
	student := seedStudent(t, "Ахметов", "5А")

	seedInvoice(t, "INV-2025-001", student, "Tuition Fee", 1500, daysAgo(15), false)
	seedInvoice(t, "INV-2025-002", student, "Tuition Fee", 1000, daysAgo(10), false)
	seedInvoice(t, "INV-2025-003", student, "Library Fee", 200, daysAgo(3), false)
	seedInvoice(t, "INV-2025-004", student, "Tuition Fee", 500, daysFromNow(5), false) // не просрочен
	seedInvoice(t, "INV-2025-005", student, "Tuition Fee", 800, daysAgo(20), true)     // оплачен

	rec := performRequest(r, http.MethodGet, "/api/reminders/overdue", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data []OverdueInvoiceResponse `json:"data"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Data, 3)

	// Сортировка — от самого старого долга.
	severities := map[string]string{}
	for _, inv := range resp.Data {
		severities[inv.InvoiceNumber] = inv.Severity
	}
	assert.Equal(t, "INV-2025-001", resp.Data[0].InvoiceNumber)
	assert.Equal(t, "critical", severities["INV-2025-001"])
	assert.Equal(t, "moderate", severities["INV-2025-002"])
	assert.Equal(t, "recent", severities["INV-2025-003"])

	// Контакт родителя подтягивается из карточки ученика.
	assert.Equal(t, "parent@example.com", resp.Data[0].ParentEmail)
	assert.Equal(t, 15, resp.Data[0].DaysPastDue)

	// Фильтр по степени просрочки.
	rec = performRequest(r, http.MethodGet, "/api/reminders/overdue?severity=moderate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "INV-2025-002", resp.Data[0].InvoiceNumber)
}

func TestOverdueSummary(t *testing.T) {
	setupTest(t)
	r := newTestRouter()
	student := seedStudent(t, "Ахметов", "5А")

	seedInvoice(t, "INV-2025-001", student, "Tuition Fee", 1500.50, daysAgo(20), false)
	seedInvoice(t, "INV-2025-002", student, "Tuition Fee", 1000, daysAgo(10), false)
	seedInvoice(t, "INV-2025-003", student, "Library Fee", 200, daysAgo(2), false)
	seedInvoice(t, "INV-2025-004", student, "Library Fee", 300, daysAgo(1), false)

	rec := performRequest(r, http.MethodGet, "/api/reminders/overdue/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary struct {
		Critical    int     `json:"critical"`
		Moderate    int     `json:"moderate"`
		Recent      int     `json:"recent"`
		TotalCount  int     `json:"totalCount"`
		TotalAmount float64 `json:"totalAmount"`
	}
	decodeBody(t, rec, &summary)
	assert.Equal(t, 1, summary.Critical)
	assert.Equal(t, 1, summary.Moderate)
	assert.Equal(t, 2, summary.Recent)
	assert.Equal(t, 4, summary.TotalCount)
	assert.Equal(t, 3000.50, summary.TotalAmount)
}

func TestExportOverdueReport(t *testing.T) {
	setupTest(t)
	r := newTestRouter()
	student := seedStudent(t, "Ахметов", "5А")
	seedInvoice(t, "INV-2025-001", student, "Tuition Fee", 1500, daysAgo(15), false)

	rec := performRequest(r, http.MethodGet, "/api/reminders/overdue/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "overdue_report_")

	// xlsx — это zip-архив.
	body := rec.Body.Bytes()
	require.True(t, len(body) > 4)
	assert.Equal(t, []byte{'P', 'K'}, body[:2])
}

func TestSendReminders(t *testing.T) {
	sent := setupTest(t)
	r := newTestRouter()
	student := seedStudent(t, "Ахметов", "5А")

	seedInvoice(t, "INV-2025-001", student, "Tuition Fee", 1500, daysAgo(15), false)
	seedInvoice(t, "INV-2025-002", student, "Tuition Fee", 1000, daysAgo(10), false)
	seedInvoice(t, "INV-2025-003", student, "Library Fee", 200, daysAgo(3), false) // не в пачке

	rec := performRequest(r, http.MethodPost, "/api/reminders", gin.H{
		"invoiceNumbers": []string{"INV-2025-001", "INV-2025-002"},
		"method":         "email",
		"template":       "firm",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		SentCount int    `json:"sentCount"`
		BatchKey  string `json:"batchKey"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, 2, resp.SentCount)
	assert.NotEmpty(t, resp.BatchKey)
	assert.Len(t, sent.Sent(), 2)

	// Счетчики выросли ровно на единицу и только у адресатов пачки.
	counts := reminderCounts(t)
	assert.Equal(t, 1, counts["INV-2025-001"])
	assert.Equal(t, 1, counts["INV-2025-002"])
	assert.Equal(t, 0, counts["INV-2025-003"])

	var inv models.Invoice
	require.NoError(t, config.DB.Where("invoice_number = ?", "INV-2025-001").First(&inv).Error)
	assert.NotNil(t, inv.LastReminderSent)

	// Журнал хранит по записи на каждый отправленный счет.
	var logCount int64
	config.DB.Model(&models.ReminderLog{}).Where("batch_key = ?", resp.BatchKey).Count(&logCount)
	assert.EqualValues(t, 2, logCount)
}

func TestSendRemindersRejectsUnknownInvoice(t *testing.T) {
	sent := setupTest(t)
	r := newTestRouter()
	student := seedStudent(t, "Ахметов", "5А")
	seedInvoice(t, "INV-2025-001", student, "Tuition Fee", 1500, daysAgo(15), false)

	rec := performRequest(r, http.MethodPost, "/api/reminders", gin.H{
		"invoiceNumbers": []string{"INV-2025-001", "INV-2025-999"},
		"method":         "email",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp struct {
		MissingInvoices []string `json:"missingInvoices"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, []string{"INV-2025-999"}, resp.MissingInvoices)

	// Пачка отклонена целиком: ничего не отправлено, счетчики на месте.
	assert.Empty(t, sent.Sent())
	assert.Equal(t, 0, reminderCounts(t)["INV-2025-001"])
}

func TestSendRemindersRejectsNotOverdue(t *testing.T) {
	sent := setupTest(t)
	r := newTestRouter()
	student := seedStudent(t, "Ахметов", "5А")
	seedInvoice(t, "INV-2025-001", student, "Tuition Fee", 1500, daysAgo(15), false)
	seedInvoice(t, "INV-2025-002", student, "Tuition Fee", 1000, daysFromNow(10), false)
	seedInvoice(t, "INV-2025-003", student, "Tuition Fee", 800, daysAgo(20), true)

	rec := performRequest(r, http.MethodPost, "/api/reminders", gin.H{
		"invoiceNumbers": []string{"INV-2025-001", "INV-2025-002", "INV-2025-003"},
		"method":         "email",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp struct {
		InvalidInvoices []string `json:"invalidInvoices"`
	}
	decodeBody(t, rec, &resp)
	assert.ElementsMatch(t, []string{"INV-2025-002", "INV-2025-003"}, resp.InvalidInvoices)
	assert.Empty(t, sent.Sent())
}

func TestSendRemindersUnsupportedMethod(t *testing.T) {
	setupTest(t)
	r := newTestRouter()

	rec := performRequest(r, http.MethodPost, "/api/reminders", gin.H{
		"invoiceNumbers": []string{"INV-2025-001"},
		"method":         "sms",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Пустая пачка не проходит валидацию.
	rec = performRequest(r, http.MethodPost, "/api/reminders", gin.H{
		"invoiceNumbers": []string{},
		"method":         "email",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendRemindersBatchIdempotency(t *testing.T) {
	sent := setupTest(t)
	r := newTestRouter()
	student := seedStudent(t, "Ахметов", "5А")
	seedInvoice(t, "INV-2025-001", student, "Tuition Fee", 1500, daysAgo(15), false)

	body := gin.H{
		"invoiceNumbers": []string{"INV-2025-001"},
		"method":         "email",
		"batchKey":       "batch-retry-42",
	}

	rec := performRequest(r, http.MethodPost, "/api/reminders", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, reminderCounts(t)["INV-2025-001"])

	// Повтор с тем же ключом — счетчик не растет, письмо не уходит.
	rec = performRequest(r, http.MethodPost, "/api/reminders", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, reminderCounts(t)["INV-2025-001"])
	assert.Len(t, sent.Sent(), 1)

	// Новый ключ — новая пачка.
	body["batchKey"] = "batch-retry-43"
	rec = performRequest(r, http.MethodPost, "/api/reminders", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, reminderCounts(t)["INV-2025-001"])
}

// reminderCounts собирает счетчики напоминаний по номерам счетов.
func reminderCounts(t *testing.T) map[string]int {
	t.Helper()
	var invoices []models.Invoice
	require.NoError(t, config.DB.Find(&invoices).Error)
	counts := make(map[string]int, len(invoices))
	for _, inv := range invoices {
		counts[inv.InvoiceNumber] = inv.ReminderCount
	}
	return counts
}
