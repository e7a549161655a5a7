package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/princeprakhar/movie-watchlist/internal/metrics"
	"github.com/princeprakhar/movie-watchlist/pkg/logger"
)

// EmailChecker decides whether an address can receive mail.
type EmailChecker interface {
	IsDeliverable(ctx context.Context, email string) (bool, error)
}

// EmailVerifier asks the Abstract email validation API about an address.
// Calls go through a circuit breaker so a failing API is skipped quickly.
type EmailVerifier struct {
	apiKey  string
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*EmailValidationResponse]
}

type EmailValidationResponse struct {
	Email          string                `json:"email"`
	Autocorrect    string                `json:"autocorrect"`
	Deliverability string                `json:"deliverability"`
	QualityScore   string                `json:"quality_score"`
	IsValidFormat  EmailValidationDetail `json:"is_valid_format"`
	IsFreeEmail    EmailValidationDetail `json:"is_free_email"`
	IsDisposable   EmailValidationDetail `json:"is_disposable_email"`
	IsRoleEmail    EmailValidationDetail `json:"is_role_email"`
	IsCatchall     EmailValidationDetail `json:"is_catchall_email"`
	IsMxFound      EmailValidationDetail `json:"is_mx_found"`
	IsSmtpValid    EmailValidationDetail `json:"is_smtp_valid"`
}

type EmailValidationDetail struct {
	Value bool   `json:"value"`
	Text  string `json:"text"`
}

func NewEmailVerifier(apiKey, baseURL string) *EmailVerifier {
	v := &EmailVerifier{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}

	v.breaker = gobreaker.NewCircuitBreaker[*EmailValidationResponse](gobreaker.Settings{
		Name:        "email-verifier",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.EmailVerifierState.Set(float64(to))
			logger.WithFields(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return v
}

// Validate fetches the API verdict for email.
func (v *EmailVerifier) Validate(ctx context.Context, email string) (*EmailValidationResponse, error) {
	return v.breaker.Execute(func() (*EmailValidationResponse, error) {
		return v.fetch(ctx, email)
	})
}

func (v *EmailVerifier) fetch(ctx context.Context, email string) (*EmailValidationResponse, error) {
	query := url.Values{}
	query.Set("api_key", v.apiKey)
	query.Set("email", email)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build email validation request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make email validation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("email validation API returned status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read email validation response: %w", err)
	}

	var result EmailValidationResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse email validation response: %w", err)
	}
	return &result, nil
}

// IsDeliverable reports the API verdict. Disposable addresses are refused.
func (v *EmailVerifier) IsDeliverable(ctx context.Context, email string) (bool, error) {
	result, err := v.Validate(ctx, email)
	if err != nil {
		return false, err
	}

	ok := result.IsValidFormat.Value &&
		!result.IsDisposable.Value &&
		result.IsMxFound.Value &&
		result.Deliverability == "DELIVERABLE"
	return ok, nil
}
