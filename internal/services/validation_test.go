package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const deliverableBody = `{
	"email": "ann@example.com",
	"deliverability": "DELIVERABLE",
	"is_valid_format": {"value": true, "text": "TRUE"},
	"is_disposable_email": {"value": false, "text": "FALSE"},
	"is_mx_found": {"value": true, "text": "TRUE"},
	"is_smtp_valid": {"value": true, "text": "TRUE"}
}`

const disposableBody = `{
	"email": "ann@mailinator.com",
	"deliverability": "DELIVERABLE",
	"is_valid_format": {"value": true, "text": "TRUE"},
	"is_disposable_email": {"value": true, "text": "TRUE"},
	"is_mx_found": {"value": true, "text": "TRUE"}
}`

func TestEmailVerifierVerdicts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("email") == "ann@mailinator.com" {
			_, _ = w.Write([]byte(disposableBody))
			return
		}
		_, _ = w.Write([]byte(deliverableBody))
	}))
	defer server.Close()

	v := NewEmailVerifier("key", server.URL+"/v1/")
	ctx := context.Background()

	ok, err := v.IsDeliverable(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.IsDeliverable(ctx, "ann@mailinator.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEmailVerifierBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	v := NewEmailVerifier("key", server.URL+"/")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := v.IsDeliverable(ctx, "ann@example.com")
		assert.Error(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
}
