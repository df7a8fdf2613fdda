package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/harentsoaR/dentalab-api/internal/middleware"
	"github.com/harentsoaR/dentalab-api/internal/models"
	"github.com/harentsoaR/dentalab-api/internal/services"
	"github.com/harentsoaR/dentalab-api/internal/utils"
)

// Handler carries the services every route needs.
type Handler struct {
	Orders        *services.OrderService
	Products      *services.ProductService
	Users         *services.UserService
	Notifications *services.NotificationService
	Tokens        *utils.TokenManager
	Logger        *zap.Logger
	now           func() time.Time
}

func NewHandler(
	orders *services.OrderService,
	products *services.ProductService,
	users *services.UserService,
	notifications *services.NotificationService,
	tokens *utils.TokenManager,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		Orders:        orders,
		Products:      products,
		Users:         users,
		Notifications: notifications,
		Tokens:        tokens,
		Logger:        logger,
		now:           time.Now,
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/login", h.Login)
	}

	admin := middleware.RequireRole(models.RoleAdmin)
	staff := middleware.RequireRole(models.RoleAdmin, models.RoleTechnician)
	orderers := middleware.RequireRole(models.RoleAdmin, models.RoleDoctor)

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(h.Tokens))
	{
		api.GET("/me", h.GetCurrentUser)
		api.PUT("/me", h.UpdateCurrentUser)

		api.GET("/orders", h.GetOrders)
		api.GET("/orders/stats", h.GetOrderStats)
		api.GET("/orders/export", h.ExportOrders)
		api.GET("/orders/:id", h.GetOrder)
		api.POST("/orders", orderers, h.CreateOrder)
		api.PUT("/orders/:id", staff, h.UpdateOrder)
		api.POST("/orders/:id/advance", staff, h.AdvanceOrder)
		api.POST("/orders/:id/assign", staff, h.AssignOrder)
		api.DELETE("/orders/:id", admin, h.DeleteOrder)

		api.GET("/products", h.GetProducts)
		api.POST("/products", admin, h.CreateProduct)
		api.PUT("/products/:id", admin, h.UpdateProduct)
		api.DELETE("/products/:id", admin, h.DeleteProduct)

		api.GET("/technicians", h.GetTechnicians)
		api.GET("/users", admin, h.GetUsers)
		api.POST("/users", admin, h.CreateUser)
		api.PUT("/users/:id", admin, h.UpdateUser)
		api.DELETE("/users/:id", admin, h.DeleteUser)

		api.GET("/notifications", h.GetNotifications)
		api.GET("/notifications/unread-count", h.GetUnreadCount)
		api.PATCH("/notifications/read-all", h.MarkAllNotificationsRead)
		api.PATCH("/notifications/:id/read", h.MarkNotificationRead)
	}
}

// respondError maps service errors to HTTP statuses.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrInvalidStatus):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrProductNotFound),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrNotificationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, services.ErrAllocation):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
