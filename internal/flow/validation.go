package flow

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/BradenHooton/otpflow/internal/models"
)

// Rules are the local input bounds checked before any remote call
type Rules struct {
	CodeMinLength       int
	CodeMaxLength       int
	CredentialMinLength int
}

// DefaultRules match the bounds the authority enforces
func DefaultRules() Rules {
	return Rules{
		CodeMinLength:       4,
		CodeMaxLength:       6,
		CredentialMinLength: 6,
	}
}

// Global validator instance, field names come from the json tags
var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type identifierInput struct {
	Identifier string `json:"email" validate:"required,email"`
}

type signupInput struct {
	Identifier string `json:"email" validate:"required,email"`
	Name       string `json:"name" validate:"required,max=100"`
	Credential string `json:"password" validate:"required"`
}

type credentialInput struct {
	NewCredential     string `json:"new_password" validate:"required"`
	ConfirmCredential string `json:"confirm_password" validate:"required,eqfield=NewCredential"`
}

// Validator checks flow input against a set of Rules
type Validator struct {
	rules Rules
}

// NewValidator creates a validator, falling back to DefaultRules for unset bounds
func NewValidator(rules Rules) *Validator {
	def := DefaultRules()
	if rules.CodeMinLength <= 0 {
		rules.CodeMinLength = def.CodeMinLength
	}
	if rules.CodeMaxLength < rules.CodeMinLength {
		rules.CodeMaxLength = max(def.CodeMaxLength, rules.CodeMinLength)
	}
	if rules.CredentialMinLength <= 0 {
		rules.CredentialMinLength = def.CredentialMinLength
	}
	return &Validator{rules: rules}
}

// Rules returns the effective bounds
func (v *Validator) Rules() Rules {
	return v.rules
}

// Initiate validates the input for opening a challenge
func (v *Validator) Initiate(variant models.FlowVariant, req InitiateRequest) error {
	if variant != models.FlowSignup {
		return toLocalError(validate.Struct(identifierInput{Identifier: req.Identifier}))
	}

	in := signupInput{
		Identifier: req.Identifier,
		Name:       strings.TrimSpace(req.Name),
		Credential: req.Credential,
	}
	if err := toLocalError(validate.Struct(in)); err != nil {
		return err
	}
	return v.credentialLength("password", req.Credential)
}

// Code validates a submitted OTP
func (v *Validator) Code(code string) error {
	tag := fmt.Sprintf("required,number,min=%d,max=%d", v.rules.CodeMinLength, v.rules.CodeMaxLength)
	if err := validate.Var(code, tag); err != nil {
		return toLocalError(err, "otp")
	}
	return nil
}

// Credential validates a new credential and its confirmation
func (v *Validator) Credential(newCredential, confirmCredential string) error {
	in := credentialInput{NewCredential: newCredential, ConfirmCredential: confirmCredential}
	if err := toLocalError(validate.Struct(in)); err != nil {
		return err
	}
	return v.credentialLength("new_password", newCredential)
}

func (v *Validator) credentialLength(field, credential string) error {
	if err := validate.Var(credential, fmt.Sprintf("min=%d", v.rules.CredentialMinLength)); err != nil {
		return &models.LocalValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be at least %d characters", v.rules.CredentialMinLength),
			Err:     models.ErrCredentialTooShort,
		}
	}
	return nil
}

// toLocalError converts the first validator failure into a LocalValidationError.
// field names a validate.Var target, which carries no field name of its own.
func toLocalError(err error, field ...string) error {
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return &models.LocalValidationError{Message: err.Error(), Err: err}
	}

	fe := ve[0]
	name := fe.Field()
	if len(field) > 0 {
		name = field[0]
	}

	lv := &models.LocalValidationError{
		Field:   name,
		Message: formatValidationError(fe),
	}
	if fe.Tag() == "eqfield" {
		lv.Field = ""
		lv.Err = models.ErrCredentialMismatch
	}
	return lv
}

// formatValidationError converts a validator FieldError to a user-friendly message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "number":
		return "must contain digits only"
	case "min":
		return fmt.Sprintf("must have a minimum of %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must have a maximum of %s characters", fe.Param())
	case "eqfield":
		return "passwords do not match"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
