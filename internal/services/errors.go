package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnauthorized       = errors.New("authentication credentials were not provided")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidCredentials = errors.New("unable to log in with provided credentials")
	ErrForbidden          = errors.New("you do not have permission to perform this action")
	ErrAlreadyReviewed    = errors.New("You have already reviewed this movie")
	ErrStorageDisabled    = errors.New("poster storage is not configured")
)

// NotFoundError reports a missing platform, title, review or user.
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s does not exist", e.Entity)
}

func notFound(entity string) error {
	return &NotFoundError{Entity: entity}
}

// ValidationError carries per-field messages, plus messages tied to no field.
type ValidationError struct {
	Fields   map[string][]string
	NonField []string
}

func (e *ValidationError) Error() string {
	var parts []string
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], " ")))
	}
	parts = append(parts, e.NonField...)
	if len(parts) == 0 {
		return "validation failed"
	}
	return strings.Join(parts, "; ")
}

// Add records a message for field; an empty field records a non-field message.
func (e *ValidationError) Add(field, message string) {
	if field == "" {
		e.NonField = append(e.NonField, message)
		return
	}
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
}

func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0 && len(e.NonField) == 0
}

// OrNil returns e as an error only when it holds messages.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func fieldError(field, message string) error {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}
