// Package validation turns request binding failures into per-field messages.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	gojson "github.com/goccy/go-json"
)

var registerOnce sync.Once

// Register makes gin's validator report json field names instead of Go names.
func Register() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(jsonName)
	})
}

func jsonName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}

// Errors maps field names to messages. The empty key holds messages that
// belong to no field.
type Errors map[string][]string

// Translate converts the error returned by ShouldBind* into field messages.
func Translate(err error) Errors {
	out := Errors{}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			out[fe.Field()] = append(out[fe.Field()], message(fe))
		}
		return out
	}

	// gin decodes with encoding/json unless built with the go_json tag.
	var stdTypeErr *json.UnmarshalTypeError
	if errors.As(err, &stdTypeErr) && stdTypeErr.Field != "" {
		out[stdTypeErr.Field] = append(out[stdTypeErr.Field], fmt.Sprintf("Expected a %s.", kindName(stdTypeErr.Type)))
		return out
	}
	var typeErr *gojson.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		out[typeErr.Field] = append(out[typeErr.Field], fmt.Sprintf("Expected a %s.", kindName(typeErr.Type)))
		return out
	}

	out[""] = []string{"Invalid request body."}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "url", "http_url":
		return "Enter a valid URL."
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
		}
		return fmt.Sprintf("Ensure this value is less than or equal to %s.", fe.Param())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
		}
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
	case "gte":
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
	case "lte":
		return fmt.Sprintf("Ensure this value is less than or equal to %s.", fe.Param())
	case "oneof":
		return fmt.Sprintf("Must be one of: %s.", fe.Param())
	default:
		return "Invalid value."
	}
}

func kindName(t reflect.Type) string {
	if t == nil {
		return "valid value"
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "valid integer"
	case reflect.Float32, reflect.Float64:
		return "valid number"
	case reflect.Bool:
		return "valid boolean"
	case reflect.String:
		return "valid string"
	default:
		return "valid value"
	}
}
