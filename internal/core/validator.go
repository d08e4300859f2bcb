package core

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"certgen/internal/types"
)

// Validator wraps go-playground/validator with the certgen tags registered.
//
// Custom tags:
//   - event_id: types.ValidEventID (empty allowed)
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator. Field names in errors use the json tag.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	if err := v.RegisterValidation("event_id", func(fl validator.FieldLevel) bool {
		return types.ValidEventID(fl.Field().String())
	}); err != nil {
		logger.Error("failed to register event_id validation", "error", err)
	}

	return &Validator{validate: v, logger: logger}
}

// ValidateStruct validates s and maps the first failure to an AppError.
// A missing required field is validation_missing_required_field; a bad
// event is validation_invalid_event; anything else is
// validation_invalid_input. All failures are listed under details.fields.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return types.NewAppError(types.ErrCodeValidationInvalidInput, "invalid request", err)
	}

	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	details := map[string]any{"fields": fields}

	first := verrs[0]
	switch first.Tag() {
	case "required":
		return types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			first.Field()+" is required", err, details)
	case "event_id":
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidEvent,
			"event identifier is not valid", err, details)
	default:
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidInput,
			first.Field()+" failed "+first.Tag()+" validation", err, details)
	}
}
