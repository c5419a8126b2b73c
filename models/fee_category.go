package models

import "gorm.io/gorm"

// FeeCategory represents a billable fee type (tuition, library, transport...).
type FeeCategory struct {
	gorm.Model
	Name          string  `json:"name" gorm:"unique;not null"`
	Description   string  `json:"description"`
	DefaultAmount float64 `json:"defaultAmount" gorm:"type:numeric(12,2)"`

	// Formula — необязательная формула расчета суммы счета.
	// Доступные параметры: "Сумма" (DefaultAmount) и "Скидка" (процент скидки ученика).
	// Пример: "Сумма - (Сумма * Скидка / 100)".
	Formula string `json:"formula"`
}
