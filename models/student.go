// meridian-crm/models/student.go

package models

import (
	"strings"

	"gorm.io/gorm"
)

// Student represents the student model in the database.
type Student struct {
	gorm.Model
	IsStudying *bool  `json:"isStudying" gorm:"default:true"`
	LastName   string `json:"lastName" gorm:"not null"`
	FirstName  string `json:"firstName" gorm:"not null"`
	MiddleName string `json:"middleName"`
	Grade      string `json:"grade"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`

	// Скидка по оплате в процентах (многодетные семьи и т.п.).
	// Используется в формулах категорий оплаты.
	Discount float64 `json:"discount" gorm:"default:0"`

	// Контакт родителя — адресат напоминаний о просроченных платежах.
	ParentName  string `json:"parentName"`
	ParentEmail string `json:"parentEmail"`
	ParentPhone string `json:"parentPhone"`

	Comments string `json:"comments"`
}

// FullName возвращает "Фамилия Имя Отчество" без лишних пробелов.
func (s Student) FullName() string {
	return strings.TrimSpace(strings.Join([]string{s.LastName, s.FirstName, s.MiddleName}, " "))
}
