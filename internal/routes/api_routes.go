// meridian-crm/internal/routes/api_routes.go
package routes

import (
	"meridian-crm/internal/handlers"
	"meridian-crm/internal/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterAPIRoutes регистрирует все маршруты API, требующие аутентификации.
func RegisterAPIRoutes(api *gin.RouterGroup) {
	apiGroup := api.Group("/api")
	{
		// --- СЧЕТА ---
		invoices := apiGroup.Group("/invoices")
		invoices.Use(middleware.PermissionMiddleware("invoices_view"))
		{
			invoices.GET("", handlers.ListInvoicesHandler)
			invoices.POST("", middleware.PermissionMiddleware("invoices_create"), handlers.CreateInvoiceHandler)
			invoices.GET("/totals", handlers.GetInvoiceTotalsHandler)
			invoices.GET("/archive/download", middleware.PermissionMiddleware("invoices_export"), handlers.DownloadInvoiceArchiveHandler)
			invoices.GET("/:number", handlers.GetInvoiceHandler)
			invoices.POST("/:number/payments", middleware.PermissionMiddleware("invoices_mark_paid"), handlers.RecordPaymentHandler)
		}

		// --- НАПОМИНАНИЯ ---
		reminders := apiGroup.Group("/reminders")
		reminders.Use(middleware.PermissionMiddleware("reminders_view"))
		{
			reminders.GET("/overdue", handlers.ListOverdueInvoicesHandler)
			reminders.GET("/overdue/summary", handlers.GetOverdueSummaryHandler)
			reminders.GET("/overdue/export", handlers.ExportOverdueReportHandler)
			reminders.POST("", middleware.PermissionMiddleware("reminders_send"), handlers.SendRemindersHandler)
		}

		// --- УЧЕНИКИ ---
		students := apiGroup.Group("/students")
		students.Use(middleware.PermissionMiddleware("students_view"))
		{
			students.GET("", handlers.ListStudentsHandler)
			students.POST("", middleware.PermissionMiddleware("students_edit"), handlers.CreateStudentHandler)
			students.GET("/:id", handlers.GetStudentHandler)
			students.PUT("/:id", middleware.PermissionMiddleware("students_edit"), handlers.UpdateStudentHandler)
		}

		// --- КАТЕГОРИИ ОПЛАТЫ ---
		feeCategories := apiGroup.Group("/fee-categories")
		feeCategories.Use(middleware.PermissionMiddleware("fee_categories_view"))
		{
			feeCategories.GET("", handlers.ListFeeCategoriesHandler)
			feeCategories.POST("", middleware.PermissionMiddleware("fee_categories_edit"), handlers.CreateFeeCategoryHandler)
			feeCategories.PUT("", middleware.PermissionMiddleware("fee_categories_edit"), handlers.UpdateFeeCategoriesHandler)
			feeCategories.POST("/:id/issue", middleware.PermissionMiddleware("invoices_create"), handlers.IssueClassInvoicesHandler)
		}

		// --- ПОЛЬЗОВАТЕЛИ ---
		users := apiGroup.Group("/users")
		users.Use(middleware.PermissionMiddleware("users_view"))
		{
			users.GET("", handlers.ListUsersHandler)
			users.GET("/:id", handlers.GetUserHandler)
			users.PUT("/:id/roles", middleware.PermissionMiddleware("users_edit"), handlers.UpdateUserRolesHandler)
			users.DELETE("/:id", middleware.PermissionMiddleware("users_edit"), handlers.DeleteUserHandler)
		}
	}
}
