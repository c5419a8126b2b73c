// meridian-crm/internal/mailer/mailer.go
package mailer

import (
	"fmt"
	"log/slog"
	"time"
)

// Reminder — данные одного напоминания о просроченном счете.
type Reminder struct {
	ParentName    string
	ParentEmail   string
	StudentName   string
	InvoiceNumber string
	FeeCategory   string
	Amount        float64
	AmountInWords string
	DueDate       time.Time
	DaysPastDue   int
	Template      string // polite | firm | final
	Message       string // произвольный текст вместо шаблона
}

// Service отправляет напоминания родителям. Ошибка отправки означает,
// что счетчик напоминаний по этому счету увеличивать нельзя.
type Service interface {
	SendReminder(r Reminder) error
}

// Subject возвращает тему письма.
func (r Reminder) Subject() string {
	return fmt.Sprintf("Напоминание об оплате: счет %s", r.InvoiceNumber)
}

// Body собирает текст письма из шаблона или произвольного сообщения.
func (r Reminder) Body() string {
	if r.Message != "" {
		return r.Message
	}

	intro := fmt.Sprintf(
		"Уважаемый(ая) %s! Напоминаем, что счет %s (%s) за обучение ученика %s на сумму %.2f (%s) не оплачен. Срок оплаты истек %s (%d дн. назад).",
		r.ParentName, r.InvoiceNumber, r.FeeCategory, r.StudentName,
		r.Amount, r.AmountInWords, r.DueDate.Format("02.01.2006"), r.DaysPastDue,
	)

	switch r.Template {
	case "firm":
		return intro + " Просим погасить задолженность в течение 3 рабочих дней."
	case "final":
		return intro + " Это последнее напоминание: при отсутствии оплаты вопрос будет передан администрации школы."
	default: // polite
		return intro + " Пожалуйста, произведите оплату при первой возможности."
	}
}

type consoleService struct{}

var _ Service = (*consoleService)(nil)

// NewConsoleService возвращает сервис, который пишет напоминания в лог
// и ничего не хранит. Режим разработки без SENDGRID_API_KEY.
func NewConsoleService() Service {
	return &consoleService{}
}

func (svc *consoleService) SendReminder(r Reminder) error {
	slog.Info("Напоминание (консоль)",
		"to", r.ParentEmail,
		"subject", r.Subject(),
		"body", r.Body(),
	)
	return nil
}
