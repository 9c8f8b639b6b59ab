package auth

import (
	"errors"
	"net/http"

	"github.com/abduss/budgetauth/internal/logger"
	"github.com/abduss/budgetauth/internal/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	msgInvalidCredentials = "Invalid email or password."
	msgInvalidToken       = "Token is invalid or expired."
	msgDuplicateEmail     = "A user with this email already exists."
	msgInternal           = "internal server error"
	msgLoggedOut          = "Logged out successfully"
)

// RegisterRoutes mounts authentication endpoints under /auth.
func RegisterRoutes(router gin.IRouter, service *Service, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	handler := &httpHandler{service: service, log: log}

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register/", handler.register)
		authGroup.POST("/login/", handler.login)
		authGroup.POST("/logout/", handler.logout)
		authGroup.POST("/token/refresh/", handler.refresh)
	}

	protected := authGroup.Group("")
	protected.Use(AuthMiddleware(service, log))
	{
		protected.GET("/user/", handler.currentUser)
		protected.GET("/active-accounts/", handler.activeAccounts)
	}
}

type httpHandler struct {
	service *Service
	log     *zap.Logger
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type authResponse struct {
	Token   string     `json:"token"`
	Refresh string     `json:"refresh"`
	User    Projection `json:"user"`
}

func (h *httpHandler) register(c *gin.Context) {
	var req RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, "register", err)
		return
	}

	result, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, "register", err)
		return
	}

	metrics.RecordAuthEvent("register", "success")
	c.JSON(http.StatusCreated, h.authResponse(c, result))
}

func (h *httpHandler) login(c *gin.Context) {
	var req LoginInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, "login", err)
		return
	}

	result, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, "login", err)
		return
	}

	metrics.RecordAuthEvent("login", "success")
	c.JSON(http.StatusOK, h.authResponse(c, result))
}

// logout is stateless: issued tokens stay valid until they expire.
func (h *httpHandler) logout(c *gin.Context) {
	metrics.RecordAuthEvent("logout", "success")
	c.JSON(http.StatusOK, gin.H{"message": msgLoggedOut})
}

func (h *httpHandler) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, "refresh", err)
		return
	}

	access, err := h.service.Refresh(req.Refresh)
	if err != nil {
		h.writeError(c, "refresh", err)
		return
	}

	metrics.RecordAuthEvent("refresh", "success")
	c.JSON(http.StatusOK, gin.H{"token": access.Value})
}

func (h *httpHandler) currentUser(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": msgInvalidToken})
		return
	}

	c.JSON(http.StatusOK, h.service.Project(c.Request.Context(), user.Identity()))
}

func (h *httpHandler) activeAccounts(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": msgInvalidToken})
		return
	}

	c.JSON(http.StatusOK, h.service.ActiveAccounts(c.Request.Context(), user.Identity()))
}

func (h *httpHandler) authResponse(c *gin.Context, result AuthResult) authResponse {
	return authResponse{
		Token:   result.Tokens.Access.Value,
		Refresh: result.Tokens.Refresh.Value,
		User:    h.service.Project(c.Request.Context(), result.User),
	}
}

func (h *httpHandler) badBody(c *gin.Context, operation string, err error) {
	metrics.RecordAuthEvent(operation, "validation_error")
	logger.WithRequest(h.log, c).Debug("decode request body", zap.String("operation", operation), zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object"})
}

func (h *httpHandler) writeError(c *gin.Context, operation string, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		metrics.RecordAuthEvent(operation, "validation_error")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "fields": verr.Fields})
	case errors.Is(err, ErrDuplicateEmail):
		metrics.RecordAuthEvent(operation, "duplicate_email")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  msgDuplicateEmail,
			"fields": gin.H{"email": msgDuplicateEmail},
		})
	case errors.Is(err, ErrInvalidCredentials):
		metrics.RecordAuthEvent(operation, "invalid_credentials")
		c.JSON(http.StatusUnauthorized, gin.H{"error": msgInvalidCredentials})
	case errors.Is(err, ErrInvalidToken):
		metrics.RecordAuthEvent(operation, "invalid_token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": msgInvalidToken})
	default:
		metrics.RecordAuthEvent(operation, "error")
		logger.WithRequest(h.log, c).Error("auth request failed", zap.String("operation", operation), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
	}
}
