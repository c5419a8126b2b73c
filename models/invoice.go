// FILE: meridian-crm/models/invoice.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// Invoice представляет счет на оплату, выставленный ученику.
//
// В базе хранятся только статусы "Pending" и "Paid". Статус "Overdue"
// не хранится, а вычисляется при чтении по полю DueDate, чтобы он не
// расходился с реальной датой (см. internal/billing).
type Invoice struct {
	gorm.Model
	InvoiceNumber string  `json:"invoiceNumber" gorm:"uniqueIndex;not null"`
	StudentID     uint    `json:"studentId" gorm:"not null;index"`
	Student       Student `json:"-"`

	// Денормализованные данные ученика на момент выставления счета.
	StudentName string `json:"studentName"`
	Grade       string `json:"grade"`

	FeeCategory string    `json:"feeCategory" gorm:"not null"`
	Amount      float64   `json:"amount" gorm:"type:numeric(12,2);not null"`
	IssueDate   time.Time `json:"issueDate" gorm:"not null"`
	DueDate     time.Time `json:"dueDate" gorm:"not null"`

	Status string `json:"status" gorm:"default:'Pending'"`

	// PaymentDate и PaymentMethod заполняются вместе и только при переходе
	// в статус "Paid". Для неоплаченного счета оба равны NULL.
	PaymentDate   *time.Time `json:"paymentDate"`
	PaymentMethod *string    `json:"paymentMethod"`

	// Поля учета напоминаний. ReminderCount только растет.
	LastReminderSent *time.Time `json:"lastReminderSent"`
	ReminderCount    int        `json:"reminderCount" gorm:"default:0"`
}

// ReminderLog хранит факт отправки одного напоминания по одному счету.
// Уникальность пары (batch_key, invoice_id) не дает повторной отправке
// той же пачки увеличить счетчик напоминаний второй раз.
type ReminderLog struct {
	gorm.Model
	BatchKey  string    `json:"batchKey" gorm:"index:idx_reminder_batch_invoice,unique;not null"`
	InvoiceID uint      `json:"invoiceId" gorm:"index:idx_reminder_batch_invoice,unique;not null"`
	Method    string    `json:"method"`
	Template  string    `json:"template"`
	Message   string    `json:"message"`
	SentAt    time.Time `json:"sentAt"`
}
