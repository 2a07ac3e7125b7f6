// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `Load` calls `validateStruct` immediately after it unmarshals the merged
// Koanf tree.  Any validation error aborts startup, so the binary never
// runs with partial or malformed configuration.
//
// Custom rules
// ------------
//   - dsn_secret       the DSN template carries exactly one %s verb, the
//     slot the password is spliced into.
//   - cron_expression  five-field cron or an @descriptor, parsed the same
//     way the scheduler parses it.
package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	_ = val.RegisterValidation("dsn_secret", validateDSNSecret)
	_ = val.RegisterValidation("cron_expression", validateCron)
	return val
}

func validateDSNSecret(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return strings.Count(s, "%s") == 1 && strings.Count(s, "%") == 1
}

func validateCron(fl validator.FieldLevel) bool {
	_, err := cron.ParseStandard(fl.Field().String())
	return err == nil
}

// validateStruct returns the validation errors, or nil on success.
func validateStruct(c *Config) error {
	return v.Struct(c)
}
