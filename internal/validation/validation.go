// Package validation is the single declarative input validator used by every endpoint.
//
// Struct inputs declare their constraints in `validate` tags. Inputs whose required
// fields depend on configuration are checked against a named RuleSet instead.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var couponPattern = regexp.MustCompile(`^[A-Z0-9-]+$`)

// FieldError describes one failed constraint.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

func (fe FieldError) String() string {
	return fmt.Sprintf("%s: %s", fe.Field, fe.Message)
}

// Rule declares the constraint tag for one named field.
type Rule struct {
	Field string
	Tag   string
}

// RuleSet is a named list of field rules.
type RuleSet struct {
	Name  string
	Rules []Rule
}

// Fields returns the field names the set constrains, in declaration order.
func (rs RuleSet) Fields() []string {
	names := make([]string, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		names = append(names, r.Field)
	}
	return names
}

// Validator wraps a configured go-playground validator.
type Validator struct {
	v *validator.Validate
}

// New creates a validator that reports JSON field names and knows the marketplace tags.
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("coupon", func(fl validator.FieldLevel) bool {
		return couponPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("objectid", func(fl validator.FieldLevel) bool {
		return primitive.IsValidObjectID(fl.Field().String())
	})
	return &Validator{v: v}
}

// Struct validates s against its tags and returns every failing field.
func (v *Validator) Struct(s interface{}) []FieldError {
	return v.convert(v.v.Struct(s), "")
}

// Var validates a single value against tag, reporting failures under field.
func (v *Validator) Var(field string, value interface{}, tag string) []FieldError {
	return v.convert(v.v.Var(value, tag), field)
}

// Check validates values against every rule of rs. Missing keys validate as empty strings.
func (v *Validator) Check(rs RuleSet, values map[string]string) []FieldError {
	var out []FieldError
	for _, r := range rs.Rules {
		out = append(out, v.Var(r.Field, strings.TrimSpace(values[r.Field]), r.Tag)...)
	}
	return out
}

// FieldNames returns the distinct field names of errs, in order.
func FieldNames(errs []FieldError) []string {
	seen := make(map[string]bool, len(errs))
	names := make([]string, 0, len(errs))
	for _, fe := range errs {
		if seen[fe.Field] {
			continue
		}
		seen[fe.Field] = true
		names = append(names, fe.Field)
	}
	return names
}

func (v *Validator) convert(err error, field string) []FieldError {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: field, Rule: "invalid", Message: err.Error()}}
	}

	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		name := field
		if name == "" {
			name = fieldPath(fe.Namespace())
		}
		out = append(out, FieldError{
			Field:   name,
			Rule:    fe.Tag(),
			Param:   fe.Param(),
			Message: message(fe),
		})
	}
	return out
}

// fieldPath drops the top-level struct name from a validator namespace.
func fieldPath(ns string) string {
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.Slice || fe.Kind() == reflect.String {
			return fmt.Sprintf("must contain at least %s", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be %s characters or less", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "coupon":
		return "can only contain uppercase letters, numbers, and hyphens"
	case "objectid":
		return "must be a 24 character hex id"
	case "email":
		return "must be a valid email address"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
