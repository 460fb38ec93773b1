package utils

import (
	"bytes"
	"errors"
	"text/template"

	"github.com/go-playground/validator/v10"
	"github.com/ttacon/libphonenumber"
)

// execute given template string and return generated string
func ExecTemplate(tString string, data map[string]interface{}) (string, error) {
	t, err := template.New("sql").Parse(tString)
	if err != nil {
		return "", errors.New("error parsing sql template: " + err.Error())
	}
	var b bytes.Buffer
	if err := t.Execute(&b, data); err != nil {
		return "", errors.New("failed to execute sql template: " + err.Error())
	}
	return b.String(), nil
}

// safely dereference pointer of type T, nil pointer return zero value or optional default
func DereferencePtr[T any](ptr *T, defaults ...T) T {
	var defaultValue T
	if len(defaults) > 0 {
		defaultValue = defaults[0]
	}
	if ptr == nil {
		return defaultValue
	}
	return *ptr
}

// map binding validation errors to field:tag pairs for 400 responses
func ValidationErrorMessages(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return map[string]string{"request": err.Error()}
	}
	errorResponse := make(map[string]string)
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}

// NormalizePhone returns the E.164 form of a marketplace phone number.
// Numbers that cannot be parsed are kept as-is; the raw value is still useful
// for display and must not block ingestion.
func NormalizePhone(raw string) string {
	if raw == "" {
		return raw
	}
	num, err := libphonenumber.Parse(raw, "IN")
	if err != nil || !libphonenumber.IsValidNumber(num) {
		return raw
	}
	return libphonenumber.Format(num, libphonenumber.E164)
}
