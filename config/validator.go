package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	_ = validate.RegisterValidation("env", validateEnvironment)
	_ = validate.RegisterValidation("file_exists", validateFileExists)
	_ = validate.RegisterValidation("host", validateHost)

	validate.RegisterStructValidation(validateStorage, StorageConfig{})
	validate.RegisterStructValidation(validateRelay, RelayConfig{})
	validate.RegisterStructValidation(validateGateway, Config{})
}

// ConfigError is a validation failure of one field.
type ConfigError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every failed field.
type ValidationErrors []ConfigError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

// ValidateWithDetails validates cfg and returns ValidationErrors on failure.
func ValidateWithDetails(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	details := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, ConfigError{
			Field:   fe.Namespace(),
			Message: formatValidationError(fe),
			Value:   fe.Value(),
		})
	}
	return details
}

func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "required_if":
		return fmt.Sprintf("this field is required when %s", fe.Param())
	case "required_with_gateway":
		return "this field is required when the gateway is enabled"
	case "required_with_type":
		return fmt.Sprintf("this field is required when type is %s", fe.Param())
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gtefield":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	case "env":
		return "must be one of [development staging production]"
	case "file_exists":
		return "file does not exist"
	case "host":
		return "must be a valid host name or address"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

func validateEnvironment(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "development", "staging", "production":
		return true
	default:
		return false
	}
}

// validateFileExists passes for empty paths; pair with required when needed.
func validateFileExists(fl validator.FieldLevel) bool {
	path := fl.Field().String()
	if path == "" {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func validateHost(fl validator.FieldLevel) bool {
	host := fl.Field().String()
	for _, r := range host {
		if !isValidHostChar(r) {
			return false
		}
	}
	return true
}

func isValidHostChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '.', r == ':', r == '_', r == '[', r == ']':
		return true
	default:
		return false
	}
}

// validateStorage requires a badger path unless the store is in-memory.
func validateStorage(sl validator.StructLevel) {
	s := sl.Current().Interface().(StorageConfig)
	if s.Type == "badger" && !s.Badger.InMemory && strings.TrimSpace(s.Badger.Path) == "" {
		sl.ReportError(s.Badger.Path, "Badger.Path", "Path", "required_with_type", "badger")
	}
}

// validateRelay requires a redis address when the relay is enabled.
func validateRelay(sl validator.StructLevel) {
	r := sl.Current().Interface().(RelayConfig)
	if r.Enabled && strings.TrimSpace(r.Redis.Address) == "" {
		sl.ReportError(r.Redis.Address, "Redis.Address", "Address", "required_if", "Enabled true")
	}
}

// validateGateway requires a redis address when the gateway is enabled, even
// with the relay off.
func validateGateway(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)
	if c.Gateway.Enabled && strings.TrimSpace(c.Relay.Redis.Address) == "" {
		sl.ReportError(c.Relay.Redis.Address, "Relay.Redis.Address", "Address", "required_with_gateway", "")
	}
}
