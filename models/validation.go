package models

import (
	"errors"
	"fmt"
	"net/mail"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Normalizer is implemented by request bodies that rewrite fields (e.g. lower-casing
// an email) before they are validated
type Normalizer interface {
	Normalize()
}

// FieldError names the offending field (by its JSON name) and the rule it broke
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// Message renders the failure the way clients expect to read it
func (e FieldError) Message() string {
	switch e.Rule {
	case "required":
		return e.Field + " should not be empty"
	case "loginemail", "email":
		return e.Field + " must be an email"
	case "min":
		return fmt.Sprintf("%s must be longer than or equal to %s characters", e.Field, e.Param)
	case "max":
		return fmt.Sprintf("%s must be shorter than or equal to %s characters", e.Field, e.Param)
	default:
		return e.Field + " failed " + e.Rule
	}
}

// ValidationErrors is the structured rejection returned by Validate
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, fe := range e {
		msgs = append(msgs, fe.Message())
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether field failed rule
func (e ValidationErrors) Has(field, rule string) bool {
	for _, fe := range e {
		if fe.Field == field && fe.Rule == rule {
			return true
		}
	}
	return false
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("loginemail", isLoginEmail); err != nil {
		panic(err)
	}
	return v
}

// isLoginEmail accepts bare addresses; a top-level domain is not required (user@localhost is fine)
func isLoginEmail(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return false
	}
	at := strings.LastIndex(value, "@")
	return at > 0 && at < len(value)-1
}

// Validate normalizes v (when it implements Normalizer) and checks its validate tags.
// v must be a pointer to a struct. A rule failure is returned as ValidationErrors.
func Validate(v interface{}) error {
	if n, ok := v.(Normalizer); ok {
		n.Normalize()
	}

	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := make(ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
	}
	return out
}
