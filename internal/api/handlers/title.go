package handlers

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/princeprakhar/movie-watchlist/internal/services"
	"github.com/princeprakhar/movie-watchlist/internal/utils"
)

type TitleHandler struct {
	catalog *services.CatalogService
}

func NewTitleHandler(catalog *services.CatalogService) *TitleHandler {
	return &TitleHandler{catalog: catalog}
}

// FilterResponse is a limit/offset page of titles.
type FilterResponse struct {
	Count    int64                    `json:"count"`
	Next     *string                  `json:"next"`
	Previous *string                  `json:"previous"`
	Results  []services.TitleResponse `json:"results"`
}

func (h *TitleHandler) List(c *gin.Context) {
	page := 1
	if raw := c.Query("page"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, services.ErrInvalidPage)
			return
		}
		page = p
	}

	titles, err := h.catalog.ListTitles(c.Request.Context(), page)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SendSuccess(c, titles)
}

func (h *TitleHandler) Create(c *gin.Context) {
	var req services.TitleRequest
	ctx := c.Request.Context()
	if !bindJSONAfter(c, &req, func() error { return h.catalog.PlatformNamed(ctx, req.Platform) }) {
		return
	}

	title, err := h.catalog.CreateTitle(ctx, req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SendCreated(c, title)
}

func (h *TitleHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id", "Movie")
	if !ok {
		return
	}

	title, err := h.catalog.GetTitle(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SendSuccess(c, title)
}

func (h *TitleHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id", "Movie")
	if !ok {
		return
	}
	var req services.TitleRequest
	ctx := c.Request.Context()
	lookup := func() error {
		if err := h.catalog.TitleExists(ctx, id); err != nil {
			return err
		}
		return h.catalog.PlatformNamed(ctx, req.Platform)
	}
	if !bindJSONAfter(c, &req, lookup) {
		return
	}

	title, err := h.catalog.UpdateTitle(ctx, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SendSuccess(c, title)
}

func (h *TitleHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id", "Movie")
	if !ok {
		return
	}

	if err := h.catalog.DeleteTitle(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	utils.SendNoContent(c)
}

// Filter matches title and platform__name exactly and pages with limit/start.
func (h *TitleHandler) Filter(c *gin.Context) {
	result, err := h.catalog.FilterTitles(c.Request.Context(), services.TitleFilter{
		Title:        c.Query("title"),
		PlatformName: c.Query("platform__name"),
		Page:         services.Page{Limit: queryInt(c, "limit"), Offset: queryInt(c, "start")},
	})
	if err != nil {
		respondError(c, err)
		return
	}

	next, previous := pageLinks(c, result.Count, result.Page)
	utils.SendSuccess(c, FilterResponse{
		Count:    result.Count,
		Next:     next,
		Previous: previous,
		Results:  result.Results,
	})
}

func (h *TitleHandler) Search(c *gin.Context) {
	titles, err := h.catalog.SearchTitles(c.Request.Context(), c.Query("search"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SendSuccess(c, titles)
}

// UploadPoster stores the multipart "poster" image for a title.
func (h *TitleHandler) UploadPoster(c *gin.Context) {
	id, ok := parseID(c, "id", "Movie")
	if !ok {
		return
	}

	header, err := c.FormFile("poster")
	if err != nil {
		utils.SendFieldErrors(c, map[string][]string{"poster": {"No file was submitted."}})
		return
	}
	file, err := header.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer file.Close()

	// Sniff the type rather than trusting the client's header.
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		respondError(c, err)
		return
	}
	head = head[:n]

	title, err := h.catalog.AttachPoster(c.Request.Context(), id, services.PosterUpload{
		Filename:    header.Filename,
		ContentType: http.DetectContentType(head),
		Size:        header.Size,
		Body:        io.MultiReader(bytes.NewReader(head), file),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SendSuccess(c, title)
}

// pageLinks builds the next and previous URLs of a limit/offset page.
func pageLinks(c *gin.Context, count int64, page services.Page) (next, previous *string) {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	base := url.URL{Scheme: scheme, Host: c.Request.Host, Path: c.Request.URL.Path}

	link := func(offset int) *string {
		q := c.Request.URL.Query()
		q.Set("limit", strconv.Itoa(page.Limit))
		if offset > 0 {
			q.Set("start", strconv.Itoa(offset))
		} else {
			q.Del("start")
		}
		u := base
		u.RawQuery = q.Encode()
		s := u.String()
		return &s
	}

	if int64(page.Offset+page.Limit) < count {
		next = link(page.Offset + page.Limit)
	}
	if page.Offset > 0 {
		previous = link(page.Offset - page.Limit)
	}
	return next, previous
}
