package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/princeprakhar/movie-watchlist/internal/api/middleware"
	"github.com/princeprakhar/movie-watchlist/internal/services"
	"github.com/princeprakhar/movie-watchlist/internal/utils"
)

type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	response, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SendCreated(c, response)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	response, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SendSuccess(c, response)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	identity := middleware.CurrentIdentity(c)
	if err := h.authService.Logout(c.Request.Context(), identity); err != nil {
		respondError(c, err)
		return
	}

	utils.SendMessage(c, fmt.Sprintf("%s logged out successfully", identity.Username))
}
