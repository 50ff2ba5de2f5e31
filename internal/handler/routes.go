package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-records-api/internal/middleware"
	"github.com/noah-isme/edu-records-api/internal/models"
	"github.com/noah-isme/edu-records-api/internal/service"
)

// Handlers bundles every HTTP handler for route registration.
type Handlers struct {
	Auth       *AuthHandler
	User       *UserHandler
	Policy     *PolicyHandler
	Subject    *SubjectHandler
	Assignment *AssignmentHandler
	Attendance *AttendanceHandler
	Mark       *MarkHandler
	Report     *ReportHandler
	Metrics    *MetricsHandler
}

// RegisterRoutes mounts the whole API under /api/v1. Route groups carry a
// coarse role gate; ownership and visibility-policy checks happen in the
// services.
func RegisterRoutes(r *gin.Engine, h Handlers, authSvc *service.AuthService, auditWriter middleware.AuditWriter) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/metrics", h.Metrics.Prometheus)

	v1 := r.Group("/api/v1")

	auth := v1.Group("/auth")
	{
		auth.POST("/signup", h.Auth.Signup)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
	}

	authed := v1.Group("")
	authed.Use(middleware.JWT(authSvc))
	{
		authed.POST("/auth/logout", h.Auth.Logout)
		authed.POST("/auth/change-password", h.Auth.ChangePassword)
		authed.GET("/auth/me", h.Auth.Me)

		authed.GET("/users", h.User.List)
		authed.PUT("/users/me", h.User.UpdateProfile)
		authed.GET("/users/:id", h.User.Get)

		authed.GET("/subjects", h.Subject.List)
		authed.GET("/subjects/:id", h.Subject.Get)

		authed.GET("/assignments", h.Assignment.List)
		authed.GET("/assignments/:id", h.Assignment.Get)

		authed.GET("/attendance", h.Attendance.List)
		authed.GET("/marks", h.Mark.List)

		authed.GET("/reports/download/:token", h.Report.Download)
	}

	reports := v1.Group("/reports")
	reports.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleHOD, models.RoleFaculty))
	{
		reports.POST("", h.Report.Generate)
		reports.GET("", h.Report.ListOwn)
		reports.GET("/:id", h.Report.Status)
	}

	student := v1.Group("/student")
	student.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleStudent))
	{
		student.POST("/assignments/:id/submit", h.Assignment.Submit)
		student.GET("/assignments/:id/submission", h.Assignment.OwnSubmission)
	}

	faculty := v1.Group("/faculty")
	faculty.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleHOD, models.RoleFaculty))
	{
		faculty.POST("/assignments", h.Assignment.Create)
		faculty.PUT("/assignments/:id", h.Assignment.Update)
		faculty.DELETE("/assignments/:id", h.Assignment.Delete)
		faculty.GET("/assignments/:id/submissions", h.Assignment.ListSubmissions)
		faculty.POST("/assignments/:id/submissions/:submissionId/grade", h.Assignment.Grade)

		faculty.POST("/attendance", h.Attendance.Mark)
		faculty.PUT("/attendance/:id", h.Attendance.UpdateStatus)

		faculty.POST("/marks", h.Mark.Create)
		faculty.PUT("/marks/:id", h.Mark.Update)
		faculty.DELETE("/marks/:id", h.Mark.Delete)
	}

	admin := v1.Group("/admin")
	admin.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	{
		admin.POST("/users", middleware.Audit(auditWriter, models.AuditActionUserCreate, "users"), h.User.Create)
		admin.PUT("/users/:id", middleware.Audit(auditWriter, models.AuditActionUserUpdate, "users"), h.User.Update)
		admin.DELETE("/users/:id", middleware.Audit(auditWriter, models.AuditActionUserDelete, "users"), h.User.Delete)

		admin.GET("/policies", h.Policy.List)
		admin.GET("/policies/:role", h.Policy.Get)
		admin.PUT("/policies", h.Policy.Upsert)
		admin.DELETE("/policies/:role", h.Policy.Delete)

		admin.POST("/subjects", h.Subject.Create)
		admin.PUT("/subjects/:id", h.Subject.Update)
		admin.DELETE("/subjects/:id", h.Subject.Delete)

		admin.DELETE("/attendance/:id", h.Attendance.Delete)

		admin.GET("/metrics", h.Metrics.Snapshot)
	}
}
