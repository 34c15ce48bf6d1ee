package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parking_garage/internal/domain"
	"parking_garage/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(as *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: as}
}

// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var dto domain.RegisterUserDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		bindError(c, err)
		return
	}
	// Self-registration never grants staff roles.
	dto.Role = domain.RoleUser

	user, err := h.authService.Register(c.Request.Context(), dto)
	if err != nil {
		respondError(c, err)
		return
	}
	user.Password = ""
	c.JSON(http.StatusCreated, user)
}

// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var dto domain.LoginUserDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		bindError(c, err)
		return
	}

	authResponse, err := h.authService.Login(c.Request.Context(), dto)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, authResponse)
}
