// meridian-crm/config/database.go

package config

import (
	"log/slog"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"meridian-crm/models"
)

var DB *gorm.DB

func ConnectDB() {
	dsn := os.Getenv("DB_URL")
	if dsn == "" {
		slog.Error("Критическая ошибка: переменная окружения DB_URL не установлена.")
		os.Exit(1)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		slog.Error("Ошибка подключения к БД", "error", err)
		os.Exit(1)
	}

	DB = db
	slog.Info("Успешное подключение к базе данных!")
}

// MigrateDB выполняет автомиграцию всех моделей и создает стартовые записи
// (роли, права, администратор), если база пустая.
func MigrateDB() {
	err := DB.AutoMigrate(
		&models.User{},
		&models.Role{},
		&models.Permission{},
		&models.Student{},
		&models.FeeCategory{},
		&models.Invoice{},
		&models.ReminderLog{},
	)
	if err != nil {
		slog.Error("Ошибка автомиграции", "error", err)
		os.Exit(1)
	}

	seedRolesAndPermissions()
	seedAdminUser()
}

func seedRolesAndPermissions() {
	permissions := []models.Permission{
		{Name: "invoices_view", Description: "Просмотр счетов", Category: "Счета"},
		{Name: "invoices_create", Description: "Выставление счетов", Category: "Счета"},
		{Name: "invoices_mark_paid", Description: "Прием оплаты по счетам", Category: "Счета"},
		{Name: "invoices_export", Description: "Выгрузка архива счетов", Category: "Счета"},
		{Name: "reminders_view", Description: "Просмотр просроченных платежей", Category: "Напоминания"},
		{Name: "reminders_send", Description: "Отправка напоминаний родителям", Category: "Напоминания"},
		{Name: "students_view", Description: "Просмотр учеников", Category: "Ученики"},
		{Name: "students_edit", Description: "Редактирование учеников", Category: "Ученики"},
		{Name: "fee_categories_view", Description: "Просмотр категорий оплаты", Category: "Категории"},
		{Name: "fee_categories_edit", Description: "Редактирование категорий оплаты", Category: "Категории"},
		{Name: "users_view", Description: "Просмотр пользователей", Category: "Пользователи"},
		{Name: "users_edit", Description: "Управление пользователями", Category: "Пользователи"},
	}
	for _, p := range permissions {
		DB.Where(models.Permission{Name: p.Name}).FirstOrCreate(&p)
	}

	// Роль admin получает все права через проверку в middleware,
	// поэтому связывать ее с правами не нужно.
	adminRole := models.Role{Name: "admin", Description: "Администратор системы"}
	DB.Where(models.Role{Name: "admin"}).FirstOrCreate(&adminRole)

	var accountantPerms []models.Permission
	DB.Where("name IN ?", []string{
		"invoices_view", "invoices_create", "invoices_mark_paid", "invoices_export",
		"reminders_view", "reminders_send", "students_view",
		"fee_categories_view",
	}).Find(&accountantPerms)

	accountant := models.Role{Name: "accountant", Description: "Бухгалтер"}
	DB.Where(models.Role{Name: "accountant"}).FirstOrCreate(&accountant)
	if len(accountantPerms) > 0 {
		DB.Model(&accountant).Association("Permissions").Replace(accountantPerms)
	}
}

func seedAdminUser() {
	var count int64
	DB.Model(&models.User{}).Count(&count)
	if count > 0 {
		return
	}

	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "admin"
		slog.Warn("ADMIN_PASSWORD не задан, используется пароль по умолчанию. Смените его сразу после первого входа.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("Не удалось захешировать пароль администратора", "error", err)
		return
	}

	var adminRole models.Role
	DB.Where("name = ?", "admin").First(&adminRole)

	admin := models.User{
		Login:        "admin",
		FullName:     "Администратор",
		PasswordHash: string(hash),
		Roles:        []models.Role{adminRole},
	}
	if err := DB.Create(&admin).Error; err != nil {
		slog.Error("Не удалось создать пользователя admin", "error", err)
		return
	}
	slog.Info("Создан стартовый пользователь admin")
}
