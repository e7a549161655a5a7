package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/princeprakhar/movie-watchlist/internal/models"
	"github.com/princeprakhar/movie-watchlist/internal/utils"
	"github.com/princeprakhar/movie-watchlist/pkg/logger"
)

const MaxPosterSize = 10 << 20

var ErrInvalidPage = errors.New("Invalid page.")

var posterExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// PosterUploader stores poster images and returns their public URL.
type PosterUploader interface {
	UploadPoster(ctx context.Context, key, contentType string, body io.Reader) (string, error)
	DeletePoster(ctx context.Context, key string) error
}

type CatalogService struct {
	db      *gorm.DB
	posters PosterUploader
}

// NewCatalogService builds the service. posters may be nil, in which case
// poster uploads fail with ErrStorageDisabled.
func NewCatalogService(db *gorm.DB, posters PosterUploader) *CatalogService {
	return &CatalogService{db: db, posters: posters}
}

type PlatformRequest struct {
	Name    string `json:"name" binding:"required,max=20"`
	About   string `json:"about" binding:"required,max=200"`
	Website string `json:"website" binding:"required,url,max=200"`
}

// TitleRequest creates or replaces a title. Platform is looked up by name.
type TitleRequest struct {
	Title     string `json:"title" binding:"required,max=50"`
	Storyline string `json:"storyline" binding:"required,max=200"`
	Platform  string `json:"platform" binding:"required"`
	Active    *bool  `json:"active"`
}

type TitleResponse struct {
	ID              uint      `json:"id"`
	Platform        string    `json:"platform"`
	Title           string    `json:"title"`
	Storyline       string    `json:"storyline"`
	AverageRating   float64   `json:"average_rating"`
	NumberOfRatings int       `json:"number_of_ratings"`
	Active          bool      `json:"active"`
	PosterURL       string    `json:"poster_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type PlatformResponse struct {
	ID        uint            `json:"id"`
	Watchlist []TitleResponse `json:"watchlist"`
	Name      string          `json:"name"`
	About     string          `json:"about"`
	Website   string          `json:"website"`
}

func newTitleResponse(t *models.Title) TitleResponse {
	return TitleResponse{
		ID:              t.ID,
		Platform:        t.Platform.Name,
		Title:           t.Title,
		Storyline:       t.Storyline,
		AverageRating:   t.Rating(),
		NumberOfRatings: t.NumberOfRatings,
		Active:          t.Active,
		PosterURL:       t.PosterURL,
		CreatedAt:       t.CreatedAt,
	}
}

func newTitleResponses(titles []models.Title) []TitleResponse {
	out := make([]TitleResponse, 0, len(titles))
	for i := range titles {
		out = append(out, newTitleResponse(&titles[i]))
	}
	return out
}

func newPlatformResponse(p *models.Platform) PlatformResponse {
	for i := range p.Titles {
		p.Titles[i].Platform = models.Platform{ID: p.ID, Name: p.Name}
	}
	return PlatformResponse{
		ID:        p.ID,
		Watchlist: newTitleResponses(p.Titles),
		Name:      p.Name,
		About:     p.About,
		Website:   p.Website,
	}
}

func checkPlatform(req PlatformRequest) error {
	verr := &ValidationError{}
	if strings.TrimSpace(req.Name) == "" {
		verr.Add("name", "This field may not be blank.")
	}
	if strings.TrimSpace(req.About) == "" {
		verr.Add("about", "This field may not be blank.")
	}
	if !utils.IsValidURL(req.Website) {
		verr.Add("website", "Enter a valid URL.")
	}
	return verr.OrNil()
}

// Platforms

func (s *CatalogService) ListPlatforms(ctx context.Context) ([]PlatformResponse, error) {
	var platforms []models.Platform
	err := s.db.WithContext(ctx).
		Preload("Titles", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Order("id ASC").
		Find(&platforms).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list platforms: %w", err)
	}

	out := make([]PlatformResponse, 0, len(platforms))
	for i := range platforms {
		out = append(out, newPlatformResponse(&platforms[i]))
	}
	return out, nil
}

func (s *CatalogService) GetPlatform(ctx context.Context, id uint) (*PlatformResponse, error) {
	platform, err := s.findPlatform(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := newPlatformResponse(platform)
	return &resp, nil
}

func (s *CatalogService) findPlatform(ctx context.Context, id uint) (*models.Platform, error) {
	var platform models.Platform
	err := s.db.WithContext(ctx).
		Preload("Titles", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&platform, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("Platform")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load platform: %w", err)
	}
	return &platform, nil
}

// PlatformExists reports a NotFoundError for an unknown platform id.
func (s *CatalogService) PlatformExists(ctx context.Context, id uint) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Platform{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("failed to look up platform: %w", err)
	}
	if n == 0 {
		return notFound("Platform")
	}
	return nil
}

func (s *CatalogService) CreatePlatform(ctx context.Context, req PlatformRequest) (*PlatformResponse, error) {
	if err := checkPlatform(req); err != nil {
		return nil, err
	}

	platform := models.Platform{
		Name:    utils.SanitizeString(req.Name),
		About:   utils.SanitizeString(req.About),
		Website: strings.TrimSpace(req.Website),
	}
	if err := s.db.WithContext(ctx).Create(&platform).Error; err != nil {
		return nil, fmt.Errorf("failed to create platform: %w", err)
	}

	logger.WithFields(map[string]interface{}{"platform_id": platform.ID, "name": platform.Name}).Info("Platform created")
	resp := newPlatformResponse(&platform)
	return &resp, nil
}

func (s *CatalogService) UpdatePlatform(ctx context.Context, id uint, req PlatformRequest) (*PlatformResponse, error) {
	platform, err := s.findPlatform(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkPlatform(req); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Model(platform).Updates(map[string]interface{}{
		"name":    utils.SanitizeString(req.Name),
		"about":   utils.SanitizeString(req.About),
		"website": strings.TrimSpace(req.Website),
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to update platform: %w", err)
	}

	return s.GetPlatform(ctx, id)
}

// DeletePlatform removes the platform together with its titles and their
// reviews. Posters of the removed titles are deleted best-effort afterwards.
func (s *CatalogService) DeletePlatform(ctx context.Context, id uint) error {
	var posterKeys []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.Title{}).
			Where("platform_id = ? AND poster_key <> ''", id).
			Pluck("poster_key", &posterKeys).Error
		if err != nil {
			return fmt.Errorf("failed to collect posters: %w", err)
		}

		result := tx.Delete(&models.Platform{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete platform: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return notFound("Platform")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.deletePosters(ctx, posterKeys)
	return nil
}

// deletePosters removes stored images whose titles are gone. Failures are
// only logged.
func (s *CatalogService) deletePosters(ctx context.Context, keys []string) {
	if s.posters == nil {
		return
	}
	for _, key := range keys {
		if err := s.posters.DeletePoster(ctx, key); err != nil {
			logger.WithError(err).WithField("poster_key", key).Warn("Failed to delete poster of removed title")
		}
	}
}

// Titles

// ListTitles returns one page of titles. Pages are 1-based; a page past the
// last one is ErrInvalidPage, except page 1 of an empty catalog.
func (s *CatalogService) ListTitles(ctx context.Context, page int) ([]TitleResponse, error) {
	if page < 1 {
		return nil, ErrInvalidPage
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Title{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count titles: %w", err)
	}
	pages := (int(total) + TitlePageSize - 1) / TitlePageSize
	if pages == 0 {
		pages = 1
	}
	if page > pages {
		return nil, ErrInvalidPage
	}

	var titles []models.Title
	err := s.db.WithContext(ctx).
		Preload("Platform").
		Order("id ASC").
		Offset((page - 1) * TitlePageSize).
		Limit(TitlePageSize).
		Find(&titles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list titles: %w", err)
	}
	return newTitleResponses(titles), nil
}

func (s *CatalogService) GetTitle(ctx context.Context, id uint) (*TitleResponse, error) {
	title, err := s.findTitle(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := newTitleResponse(title)
	return &resp, nil
}

func (s *CatalogService) findTitle(ctx context.Context, id uint) (*models.Title, error) {
	var title models.Title
	err := s.db.WithContext(ctx).Preload("Platform").First(&title, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("Movie")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load title: %w", err)
	}
	return &title, nil
}

// platformByName resolves the platform a title request names.
func (s *CatalogService) platformByName(ctx context.Context, name string) (*models.Platform, error) {
	var platform models.Platform
	err := s.db.WithContext(ctx).Where("name = ?", strings.TrimSpace(name)).Order("id ASC").First(&platform).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("Platform")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up platform: %w", err)
	}
	return &platform, nil
}

// TitleExists reports a NotFoundError for an unknown title id.
func (s *CatalogService) TitleExists(ctx context.Context, id uint) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Title{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("failed to look up title: %w", err)
	}
	if n == 0 {
		return notFound("Movie")
	}
	return nil
}

// PlatformNamed reports a NotFoundError when a title request names an unknown
// platform. A blank name is left to field validation.
func (s *CatalogService) PlatformNamed(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	_, err := s.platformByName(ctx, name)
	return err
}

func checkTitle(req TitleRequest) error {
	verr := &ValidationError{}
	if strings.TrimSpace(req.Title) == "" {
		verr.Add("title", "This field may not be blank.")
	}
	if strings.TrimSpace(req.Storyline) == "" {
		verr.Add("storyline", "This field may not be blank.")
	}
	return verr.OrNil()
}

// CreateTitle adds a title to the named platform. A missing platform is a
// NotFoundError, checked before the other fields.
func (s *CatalogService) CreateTitle(ctx context.Context, req TitleRequest) (*TitleResponse, error) {
	platform, err := s.platformByName(ctx, req.Platform)
	if err != nil {
		return nil, err
	}
	if err := checkTitle(req); err != nil {
		return nil, err
	}

	title := models.Title{
		Title:      utils.SanitizeString(req.Title),
		Storyline:  utils.SanitizeString(req.Storyline),
		PlatformID: platform.ID,
		Active:     true,
	}
	if req.Active != nil {
		title.Active = *req.Active
	}

	if err := s.db.WithContext(ctx).Create(&title).Error; err != nil {
		return nil, fmt.Errorf("failed to create title: %w", err)
	}
	// Create leaves a false bool to the column default.
	if !title.Active {
		if err := s.db.WithContext(ctx).Model(&title).Update("active", false).Error; err != nil {
			return nil, fmt.Errorf("failed to create title: %w", err)
		}
	}

	title.Platform = *platform
	logger.WithFields(map[string]interface{}{"title_id": title.ID, "platform": platform.Name}).Info("Title created")
	resp := newTitleResponse(&title)
	return &resp, nil
}

// UpdateTitle replaces the editable fields of a title. Rating aggregates are
// never touched here.
func (s *CatalogService) UpdateTitle(ctx context.Context, id uint, req TitleRequest) (*TitleResponse, error) {
	title, err := s.findTitle(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTitle(req); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"title":     utils.SanitizeString(req.Title),
		"storyline": utils.SanitizeString(req.Storyline),
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if req.Platform != "" && req.Platform != title.Platform.Name {
		platform, err := s.platformByName(ctx, req.Platform)
		if err != nil {
			return nil, err
		}
		updates["platform_id"] = platform.ID
	}

	if err := s.db.WithContext(ctx).Model(title).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update title: %w", err)
	}
	return s.GetTitle(ctx, id)
}

func (s *CatalogService) DeleteTitle(ctx context.Context, id uint) error {
	title, err := s.findTitle(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.Title{}, title.ID).Error; err != nil {
		return fmt.Errorf("failed to delete title: %w", err)
	}

	if title.PosterKey != "" {
		s.deletePosters(ctx, []string{title.PosterKey})
	}
	return nil
}

type TitleFilter struct {
	Title        string
	PlatformName string
	Page         Page
}

type FilterResult struct {
	Count   int64
	Page    Page
	Results []TitleResponse
}

// FilterTitles matches title and platform name exactly. Empty filters match
// everything.
func (s *CatalogService) FilterTitles(ctx context.Context, f TitleFilter) (*FilterResult, error) {
	page := f.Page.Normalize(DefaultFilterLimit, MaxFilterLimit)

	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Joins("JOIN platforms ON platforms.id = titles.platform_id")
		if f.Title != "" {
			db = db.Where("titles.title = ?", f.Title)
		}
		if f.PlatformName != "" {
			db = db.Where("platforms.name = ?", f.PlatformName)
		}
		return db
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Title{}).Scopes(scope).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to count titles: %w", err)
	}

	var titles []models.Title
	query := s.db.WithContext(ctx).Scopes(scope).Preload("Platform").Order("titles.id ASC")
	if err := page.apply(query).Find(&titles).Error; err != nil {
		return nil, fmt.Errorf("failed to filter titles: %w", err)
	}

	return &FilterResult{Count: count, Page: page, Results: newTitleResponses(titles)}, nil
}

// SearchTitles returns titles where every whitespace-separated term occurs,
// case-insensitively, in the title or the platform name.
func (s *CatalogService) SearchTitles(ctx context.Context, search string) ([]TitleResponse, error) {
	query := s.db.WithContext(ctx).
		Joins("JOIN platforms ON platforms.id = titles.platform_id")

	for _, term := range strings.Fields(search) {
		pattern := "%" + utils.EscapeLike(term) + "%"
		query = query.Where(`(titles.title ILIKE ? OR platforms.name ILIKE ?)`, pattern, pattern)
	}

	var titles []models.Title
	if err := query.Preload("Platform").Order("titles.id ASC").Find(&titles).Error; err != nil {
		return nil, fmt.Errorf("failed to search titles: %w", err)
	}
	return newTitleResponses(titles), nil
}

type PosterUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// AttachPoster uploads an image and records its URL on the title. A previous
// poster is removed once the new one is stored.
func (s *CatalogService) AttachPoster(ctx context.Context, id uint, upload PosterUpload) (*TitleResponse, error) {
	if s.posters == nil {
		return nil, ErrStorageDisabled
	}

	title, err := s.findTitle(ctx, id)
	if err != nil {
		return nil, err
	}

	ext, ok := posterExtensions[upload.ContentType]
	if !ok {
		return nil, fieldError("poster", "Upload a valid image. Supported types are jpeg, png and webp.")
	}
	if upload.Size <= 0 {
		return nil, fieldError("poster", "The submitted file is empty.")
	}
	if upload.Size > MaxPosterSize {
		return nil, fieldError("poster", "Ensure the file is no larger than 10MB.")
	}

	key := path.Join("posters", fmt.Sprint(title.ID), uuid.NewString()+ext)
	url, err := s.posters.UploadPoster(ctx, key, upload.ContentType, upload.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to upload poster: %w", err)
	}

	previous := title.PosterKey
	err = s.db.WithContext(ctx).Model(title).Updates(map[string]interface{}{
		"poster_url": url,
		"poster_key": key,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to save poster: %w", err)
	}

	if previous != "" {
		if err := s.posters.DeletePoster(ctx, previous); err != nil {
			logger.WithError(err).Warn("Failed to delete replaced poster")
		}
	}

	return s.GetTitle(ctx, id)
}
