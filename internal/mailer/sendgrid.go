package mailer

import (
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type sendgridService struct {
	client *sendgrid.Client
	from   string
}

var _ Service = (*sendgridService)(nil)

// NewSendgridService возвращает сервис отправки напоминаний через SendGrid.
func NewSendgridService(apiKey, from string) Service {
	return &sendgridService{
		client: sendgrid.NewSendClient(apiKey),
		from:   from,
	}
}

func (svc *sendgridService) SendReminder(r Reminder) error {
	if r.ParentEmail == "" {
		return fmt.Errorf("у родителя %q не указан email", r.ParentName)
	}

	from := mail.NewEmail("Meridian School", svc.from)
	to := mail.NewEmail(r.ParentName, r.ParentEmail)
	body := r.Body()
	message := mail.NewSingleEmail(from, r.Subject(), to, body, body)

	resp, err := svc.client.Send(message)
	if err != nil {
		return fmt.Errorf("ошибка отправки через SendGrid: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("SendGrid вернул статус %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
