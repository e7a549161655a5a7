package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/princeprakhar/movie-watchlist/internal/models"
	"github.com/princeprakhar/movie-watchlist/internal/types"
	"github.com/princeprakhar/movie-watchlist/internal/utils"
	"github.com/princeprakhar/movie-watchlist/pkg/logger"
)

const uniqueViolation = "23505"

type AuthService struct {
	db       *gorm.DB
	secret   string
	tokenTTL time.Duration
	emails   EmailChecker
	mailer   Mailer
}

// NewAuthService wires account handling. emails and mailer are optional.
func NewAuthService(db *gorm.DB, jwtSecret string, tokenTTL time.Duration, emails EmailChecker, mailer Mailer) *AuthService {
	return &AuthService{
		db:       db,
		secret:   jwtSecret,
		tokenTTL: tokenTTL,
		emails:   emails,
		mailer:   mailer,
	}
}

type RegisterRequest struct {
	Username  string `json:"username" binding:"required,max=150"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required"`
	Password2 string `json:"password_2" binding:"required"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Register creates a user account and issues its first token.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*types.AuthResponse, error) {
	username := utils.SanitizeString(req.Username)
	email := strings.ToLower(utils.SanitizeString(req.Email))

	if req.Password != req.Password2 {
		return nil, &ValidationError{NonField: []string{"Password didn't match"}}
	}
	if !utils.IsValidEmail(email) {
		return nil, fieldError("email", "Enter a valid email address.")
	}

	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if count > 0 {
		return nil, &ValidationError{NonField: []string{"User with the given email already exists"}}
	}
	if err := db.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if count > 0 {
		return nil, fieldError("username", "A user with that username already exists.")
	}

	if s.emails != nil {
		ok, err := s.emails.IsDeliverable(ctx, email)
		switch {
		case err != nil:
			logger.WithError(err).Warn("Email verification unavailable, accepting address")
		case !ok:
			return nil, fieldError("email", "Enter a deliverable email address.")
		}
	}

	user := models.User{
		Username: username,
		Email:    email,
		Password: req.Password, // hashed in BeforeCreate
		Role:     models.RoleUser,
		IsActive: true,
	}
	if err := db.Create(&user).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fieldError("username", "A user with that username already exists.")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	issued, err := s.issueToken(ctx, &user)
	if err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{"user_id": user.ID, "username": user.Username}).Info("User registered")
	sendWelcomeAsync(s.mailer, user.Email, user.Username)

	return &types.AuthResponse{
		Message:   fmt.Sprintf("%s successfully registered", user.Username),
		Username:  user.Username,
		Email:     user.Email,
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt.Unix(),
	}, nil
}

// Login exchanges credentials for a new bearer token.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("username = ? AND is_active = ?", utils.SanitizeString(req.Username), true).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.CheckPassword(req.Password) {
		return nil, ErrInvalidCredentials
	}

	issued, err := s.issueToken(ctx, &user)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{Token: issued.Token}, nil
}

func (s *AuthService) issueToken(ctx context.Context, user *models.User) (*utils.IssuedToken, error) {
	issued, err := utils.GenerateAccessToken(user.ID, user.Username, user.Role, s.secret, s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	record := models.AuthToken{
		UserID:    user.ID,
		Token:     issued.ID,
		ExpiresAt: issued.ExpiresAt,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}
	return issued, nil
}

// Authenticate resolves a bearer token to the caller. Revoked, expired and
// unknown tokens all yield ErrInvalidToken.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*types.Identity, error) {
	claims, err := utils.ValidateToken(token, s.secret)
	if err != nil {
		return nil, ErrInvalidToken
	}

	var record models.AuthToken
	err = s.db.WithContext(ctx).
		Preload("User").
		Where("token = ? AND is_revoked = ? AND expires_at > ?", claims.ID, false, time.Now()).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	if !record.User.IsActive || record.UserID != claims.UserID {
		return nil, ErrInvalidToken
	}

	// The role is read from the account so demotions apply to live tokens.
	return &types.Identity{
		UserID:   record.User.ID,
		Username: record.User.Username,
		Email:    record.User.Email,
		Role:     record.User.Role,
		TokenID:  record.Token,
	}, nil
}

// Logout revokes the token the caller authenticated with.
func (s *AuthService) Logout(ctx context.Context, caller *types.Identity) error {
	if caller == nil {
		return ErrUnauthorized
	}
	err := s.db.WithContext(ctx).Model(&models.AuthToken{}).
		Where("token = ?", caller.TokenID).
		Update("is_revoked", true).Error
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// EnsureAdmin makes sure username exists with the admin role. An existing
// account keeps its password. Empty username or password is a no-op.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, email, password string) error {
	if username == "" || password == "" {
		return nil
	}
	db := s.db.WithContext(ctx)

	var user models.User
	err := db.Where("username = ?", username).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{
			Username: username,
			Email:    strings.ToLower(email),
			Password: password,
			Role:     models.RoleAdmin,
			IsActive: true,
		}
		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to create admin: %w", err)
		}
		logger.WithField("username", username).Info("Administrator account created")
		return nil
	case err != nil:
		return fmt.Errorf("failed to load admin: %w", err)
	}

	if user.Role != models.RoleAdmin {
		if err := db.Model(&user).Update("role", models.RoleAdmin).Error; err != nil {
			return fmt.Errorf("failed to promote admin: %w", err)
		}
		logger.WithField("username", username).Info("Account promoted to administrator")
	}
	return nil
}
