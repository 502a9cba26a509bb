package validation

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validation rule patterns
var (
	// ClassRefPattern matches a class id: positive for persisted classes,
	// negative for placeholders created by the submission.
	ClassRefPattern = `^-?[1-9]\d*$`

	// OptionalIDPattern matches an empty cell or a class or subpart id.
	OptionalIDPattern = `^(-?[1-9]\d*)?$`
)

// CompiledPatterns caches compiled regex patterns for better performance
var CompiledPatterns = struct {
	ClassRef   *regexp.Regexp
	OptionalID *regexp.Regexp
}{
	ClassRef:   regexp.MustCompile(ClassRefPattern),
	OptionalID: regexp.MustCompile(OptionalIDPattern),
}

// RegisterRules adds the class setup tags to v:
//
//	class_ref    a persisted id or a placeholder
//	optional_id  empty or an id
func RegisterRules(v *validator.Validate) error {
	if err := v.RegisterValidation("class_ref", func(fl validator.FieldLevel) bool {
		return CompiledPatterns.ClassRef.MatchString(strings.TrimSpace(fl.Field().String()))
	}); err != nil {
		return err
	}
	return v.RegisterValidation("optional_id", func(fl validator.FieldLevel) bool {
		return CompiledPatterns.OptionalID.MatchString(strings.TrimSpace(fl.Field().String()))
	})
}
