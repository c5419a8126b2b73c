package billing

import (
	"strings"
	"testing"
	"time"

	"meridian-crm/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDaysPastDue(t *testing.T) {
	now := date(2025, 4, 30)

	tests := []struct {
		name string
		due  time.Time
		want int
	}{
		{name: "due today", due: date(2025, 4, 30), want: 0},
		{name: "due tomorrow", due: date(2025, 5, 1), want: 0},
		{name: "due next month", due: date(2025, 5, 15), want: 0},
		{name: "one day late", due: date(2025, 4, 29), want: 1},
		{name: "a week late", due: date(2025, 4, 23), want: 7},
		{name: "fifteen days late", due: date(2025, 4, 15), want: 15},
		{name: "time of day ignored", due: time.Date(2025, 4, 29, 23, 59, 0, 0, time.UTC), want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysPastDue(tt.due, now); got != tt.want {
				t.Errorf("DaysPastDue() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		days int
		want string
	}{
		{days: 0, want: SeverityRecent},
		{days: 3, want: SeverityRecent},
		{days: 7, want: SeverityRecent},
		{days: 8, want: SeverityModerate},
		{days: 10, want: SeverityModerate},
		{days: 14, want: SeverityModerate},
		{days: 15, want: SeverityCritical},
		{days: 60, want: SeverityCritical},
	}
	for _, tt := range tests {
		if got := SeverityFor(tt.days); got != tt.want {
			t.Errorf("SeverityFor(%d) = %q, want %q", tt.days, got, tt.want)
		}
	}
}

func TestEffectiveStatus(t *testing.T) {
	now := date(2025, 4, 30)

	tests := []struct {
		name string
		inv  models.Invoice
		want string
	}{
		{
			name: "paid stays paid even past due",
			inv:  models.Invoice{Status: StatusPaid, DueDate: date(2025, 4, 1)},
			want: StatusPaid,
		},
		{
			name: "pending before due date",
			inv:  models.Invoice{Status: StatusPending, DueDate: date(2025, 5, 15)},
			want: StatusPending,
		},
		{
			name: "pending on due date",
			inv:  models.Invoice{Status: StatusPending, DueDate: date(2025, 4, 30)},
			want: StatusPending,
		},
		{
			name: "pending past due becomes overdue",
			inv:  models.Invoice{Status: StatusPending, DueDate: date(2025, 4, 15)},
			want: StatusOverdue,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EffectiveStatus(tt.inv, now); got != tt.want {
				t.Errorf("EffectiveStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestComputeTotals(t *testing.T) {
	now := date(2025, 4, 30)
	invoices := []models.Invoice{
		{Status: StatusPaid, DueDate: date(2025, 4, 1), Amount: 1500},
		{Status: StatusPaid, DueDate: date(2025, 5, 1), Amount: 250.50},
		{Status: StatusPending, DueDate: date(2025, 5, 15), Amount: 1000.10},
		{Status: StatusPending, DueDate: date(2025, 5, 20), Amount: 0.20},
		{Status: StatusPending, DueDate: date(2025, 4, 10), Amount: 300},
	}

	want := Totals{TotalPaid: 1750.50, TotalPending: 1000.30, TotalOverdue: 300}
	if got := ComputeTotals(invoices, now); got != want {
		t.Errorf("ComputeTotals() = %+v, want %+v", got, want)
	}

	// Sum must not depend on the order of the snapshot.
	reversed := make([]models.Invoice, 0, len(invoices))
	for i := len(invoices) - 1; i >= 0; i-- {
		reversed = append(reversed, invoices[i])
	}
	if got := ComputeTotals(reversed, now); got != want {
		t.Errorf("ComputeTotals(reversed) = %+v, want %+v", got, want)
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{in: 0.1 + 0.2, want: 0.3},
		{in: 1234.567, want: 1234.57},
		{in: 1234.564, want: 1234.56},
		{in: 0, want: 0},
	}
	for _, tt := range tests {
		if got := Round2(tt.in); got != tt.want {
			t.Errorf("Round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAmountInWords(t *testing.T) {
	got := AmountInWords(1500.50)
	if !strings.HasSuffix(got, "тенге 50 тиын") {
		t.Errorf("AmountInWords(1500.50) = %q, want suffix %q", got, "тенге 50 тиын")
	}
	if got := AmountInWords(100); !strings.HasSuffix(got, "тенге 00 тиын") {
		t.Errorf("AmountInWords(100) = %q, want suffix %q", got, "тенге 00 тиын")
	}
}
