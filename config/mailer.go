// FILE: config/mailer.go
package config

import (
	"log/slog"
	"os"

	"meridian-crm/internal/mailer"
)

var Mail mailer.Service

// InitMailer выбирает канал отправки напоминаний.
// При наличии SENDGRID_API_KEY письма уходят через SendGrid,
// иначе выводятся в лог (режим разработки).
func InitMailer() {
	apiKey := os.Getenv("SENDGRID_API_KEY")
	if apiKey == "" {
		Mail = mailer.NewConsoleService()
		slog.Warn("SENDGRID_API_KEY не установлен, напоминания будут выводиться в консоль.")
		return
	}

	from := os.Getenv("MAIL_FROM")
	if from == "" {
		from = "fees@meridian-school.kz"
	}

	Mail = mailer.NewSendgridService(apiKey, from)
	slog.Info("SendGrid client initialized successfully.")
}
