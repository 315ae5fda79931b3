package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tutorconnect/tutorconnect-api/internal/middleware"
	"github.com/tutorconnect/tutorconnect-api/internal/models"
)

// Handlers groups every HTTP handler mounted by RegisterRoutes.
type Handlers struct {
	Auth         *AuthHandler
	Profile      *ProfileHandler
	Posts        *PostHandler
	Chats        *ChatHandler
	Appointments *AppointmentHandler
	GDPR         *GDPRHandler
	Metrics      *MetricsHandler
}

// RouterDeps carries the cross-cutting collaborators of the route tree.
type RouterDeps struct {
	APIPrefix   string
	Tokens      middleware.TokenValidator
	Audit       middleware.AuditWriter
	AuthLimiter *middleware.RateLimiter
	Logger      *zap.Logger
}

// RegisterRoutes mounts ops endpoints at the root and the API under the prefix.
func RegisterRoutes(r *gin.Engine, h Handlers, deps RouterDeps) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(deps.APIPrefix)
	api.Use(middleware.WithResponseMeta())

	authRequired := middleware.JWT(deps.Tokens)
	audit := func(action, resource string) gin.HandlerFunc {
		if deps.Audit == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.Audit(deps.Audit, logger, action, resource)
	}
	var limit gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if deps.AuthLimiter != nil {
		limit = deps.AuthLimiter.Handler()
	}

	auth := api.Group("/auth")
	{
		auth.POST("/register", limit, h.Auth.Register)
		auth.POST("/login", limit, h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
		auth.POST("/logout", authRequired, h.Auth.Logout)
		auth.POST("/change-password", authRequired, h.Auth.ChangePassword)
		auth.GET("/me", authRequired, h.Auth.Me)
	}

	profile := api.Group("/profile", authRequired)
	{
		profile.GET("", h.Profile.Get)
		profile.PATCH("", audit(models.AuditActionProfileUpdate, "user"), h.Profile.Update)
		profile.PUT("/avatar", audit(models.AuditActionAvatarUpload, "user"), h.Profile.UploadAvatar)
	}

	users := api.Group("/users")
	{
		users.GET("/:id", middleware.OptionalJWT(deps.Tokens), h.Profile.GetPublic)
		users.GET("/:id/stats", h.Profile.Stats)
		users.GET("/:id/avatar", h.Profile.Avatar)
	}

	posts := api.Group("/posts")
	{
		posts.GET("", h.Posts.List)
		posts.GET("/:id", h.Posts.Get)
		posts.POST("", authRequired, audit(models.AuditActionPostCreate, "post"), h.Posts.Create)
		posts.PATCH("/:id", authRequired, audit(models.AuditActionPostUpdate, "post"), h.Posts.Update)
		posts.DELETE("/:id", authRequired, audit(models.AuditActionPostDelete, "post"), h.Posts.Delete)
	}

	chats := api.Group("/chats", authRequired)
	{
		chats.POST("", h.Chats.Open)
		chats.GET("", h.Chats.List)
		chats.GET("/:id", h.Chats.Get)
		chats.GET("/:id/messages", h.Chats.Messages)
		chats.POST("/:id/messages", h.Chats.Send)
		chats.POST("/:id/read", h.Chats.MarkRead)
		chats.POST("/:id/typing", h.Chats.SetTyping)
		chats.GET("/:id/typing", h.Chats.Typing)
		chats.GET("/:id/typing/stream", h.Chats.TypingStream)
		chats.GET("/:id/appointments", h.Appointments.ListForChat)
		chats.POST("/:id/appointments", audit(models.AuditActionAppointmentCreate, "chat"), h.Appointments.Create)
	}

	appointments := api.Group("/appointments", authRequired)
	{
		appointments.GET("", h.Appointments.ListOwn)
		appointments.POST("/:id/accept", audit(models.AuditActionAppointmentAccept, "appointment"), h.Appointments.Accept)
		appointments.POST("/:id/cancel", audit(models.AuditActionAppointmentCancel, "appointment"), h.Appointments.Cancel)
		appointments.POST("/:id/ready", audit(models.AuditActionAppointmentReady, "appointment"), h.Appointments.Ready)
	}

	gdpr := api.Group("/gdpr")
	{
		gdpr.POST("/requests", authRequired, audit(models.AuditActionDataRequest, "data_request"), h.GDPR.Create)
		gdpr.GET("/requests", authRequired, h.GDPR.ListOwn)
		gdpr.GET("/exports/download", h.GDPR.Download)
	}

	admin := api.Group("/admin", authRequired, middleware.RequireRoles(models.RoleAdmin))
	{
		admin.POST("/appointments/sweep", audit(models.AuditActionAppointmentSweep, "appointment"), h.Appointments.Sweep)
		admin.GET("/gdpr/requests", h.GDPR.ListAll)
		admin.GET("/metrics/system", h.Metrics.System)
	}
}
