package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/princeprakhar/movie-watchlist/internal/services"
	"github.com/princeprakhar/movie-watchlist/internal/utils"
)

type PlatformHandler struct {
	catalog *services.CatalogService
}

func NewPlatformHandler(catalog *services.CatalogService) *PlatformHandler {
	return &PlatformHandler{catalog: catalog}
}

func (h *PlatformHandler) List(c *gin.Context) {
	platforms, err := h.catalog.ListPlatforms(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SendSuccess(c, platforms)
}

func (h *PlatformHandler) Create(c *gin.Context) {
	var req services.PlatformRequest
	if !bindJSON(c, &req) {
		return
	}

	platform, err := h.catalog.CreatePlatform(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SendCreated(c, platform)
}

func (h *PlatformHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id", "Platform")
	if !ok {
		return
	}

	platform, err := h.catalog.GetPlatform(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SendSuccess(c, platform)
}

func (h *PlatformHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id", "Platform")
	if !ok {
		return
	}
	var req services.PlatformRequest
	ctx := c.Request.Context()
	if !bindJSONAfter(c, &req, func() error { return h.catalog.PlatformExists(ctx, id) }) {
		return
	}

	platform, err := h.catalog.UpdatePlatform(ctx, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SendSuccess(c, platform)
}

func (h *PlatformHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id", "Platform")
	if !ok {
		return
	}

	if err := h.catalog.DeletePlatform(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	utils.SendNoContent(c)
}
