// meridian-crm/internal/billing/billing.go
//
// Package billing holds the pure derivation logic of the fee ledger:
// effective invoice status, days past due, overdue severity and totals.
// Everything here works on snapshots passed in by the caller and never
// touches the database.
package billing

import (
	"fmt"
	"math"
	"time"

	"github.com/divan/num2words"

	"meridian-crm/models"
)

// Persisted invoice statuses. "Overdue" is never stored — it is derived
// from the due date at read time, so it cannot drift.
const (
	StatusPending = "Pending"
	StatusPaid    = "Paid"
	StatusOverdue = "Overdue"
)

// Overdue severity buckets.
const (
	SeverityCritical = "critical" // more than 14 days past due
	SeverityModerate = "moderate" // 8-14 days past due
	SeverityRecent   = "recent"   // up to 7 days past due
)

// EffectiveStatus returns the status an invoice should be reported with:
// a stored "Paid" wins, otherwise a due date strictly before today makes
// the invoice "Overdue".
func EffectiveStatus(inv models.Invoice, now time.Time) string {
	if inv.Status == StatusPaid {
		return StatusPaid
	}
	if DaysPastDue(inv.DueDate, now) > 0 {
		return StatusOverdue
	}
	return StatusPending
}

// DaysPastDue returns the number of whole days elapsed since the due date,
// comparing calendar dates rather than instants. Invoices that are not yet
// due return 0.
func DaysPastDue(dueDate, now time.Time) int {
	due := time.Date(dueDate.Year(), dueDate.Month(), dueDate.Day(), 0, 0, 0, 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	days := int(today.Sub(due).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// SeverityFor buckets a days-past-due value: >14 critical, 8-14 moderate,
// everything else recent.
func SeverityFor(daysPastDue int) string {
	switch {
	case daysPastDue > 14:
		return SeverityCritical
	case daysPastDue > 7:
		return SeverityModerate
	default:
		return SeverityRecent
	}
}

// Totals is the sum of invoice amounts per effective status bucket.
type Totals struct {
	TotalPaid    float64 `json:"totalPaid"`
	TotalPending float64 `json:"totalPending"`
	TotalOverdue float64 `json:"totalOverdue"`
}

// ComputeTotals reduces a snapshot of invoices into per-bucket sums.
// The result does not depend on the order of the input.
func ComputeTotals(invoices []models.Invoice, now time.Time) Totals {
	var t Totals
	for _, inv := range invoices {
		switch EffectiveStatus(inv, now) {
		case StatusPaid:
			t.TotalPaid += inv.Amount
		case StatusOverdue:
			t.TotalOverdue += inv.Amount
		default:
			t.TotalPending += inv.Amount
		}
	}
	t.TotalPaid = Round2(t.TotalPaid)
	t.TotalPending = Round2(t.TotalPending)
	t.TotalOverdue = Round2(t.TotalOverdue)
	return t
}

// Round2 rounds a currency value to 2 decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// AmountInWords возвращает сумму прописью для писем-напоминаний,
// например "пять тысяч двести тенге 50 тиын".
func AmountInWords(amount float64) string {
	tenge := int(amount)
	tiyn := int(math.Round((amount - float64(tenge)) * 100))
	return fmt.Sprintf("%s тенге %02d тиын", num2words.Convert(tenge), tiyn)
}
