// Package apperr provides the typed error taxonomy used at response boundaries.
package apperr

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// Category classifies an error into one of a small closed set.
type Category string

const (
	CategoryValidation     Category = "validation"
	CategoryAuthentication Category = "authentication"
	CategoryAuthorization  Category = "authorization"
	CategoryNotFound       Category = "not_found"
	CategoryDatabase       Category = "database"
	CategoryExternalAPI    Category = "external_api"
	CategoryBusinessLogic  Category = "business_logic"
	CategorySystem         Category = "system"
	CategoryNetwork        Category = "network"
	CategoryRateLimit      Category = "rate_limit"
	CategoryPayment        Category = "payment"
)

// Severity indicates how urgently an error needs attention.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// categoryDefaults maps each category to its default severity and HTTP status.
var categoryDefaults = map[Category]struct {
	severity Severity
	status   int
}{
	CategoryValidation:     {SeverityLow, http.StatusBadRequest},
	CategoryAuthentication: {SeverityMedium, http.StatusUnauthorized},
	CategoryAuthorization:  {SeverityMedium, http.StatusForbidden},
	CategoryNotFound:       {SeverityLow, http.StatusNotFound},
	CategoryRateLimit:      {SeverityLow, http.StatusTooManyRequests},
	CategoryPayment:        {SeverityHigh, http.StatusPaymentRequired},
	CategoryExternalAPI:    {SeverityHigh, http.StatusBadGateway},
	CategoryDatabase:       {SeverityHigh, http.StatusInternalServerError},
	CategoryBusinessLogic:  {SeverityMedium, http.StatusUnprocessableEntity},
	CategorySystem:         {SeverityMedium, http.StatusInternalServerError},
	CategoryNetwork:        {SeverityHigh, http.StatusBadGateway},
}

// Error is a categorized application error. It is created once at the point of
// detection and carried unchanged to the response boundary.
type Error struct {
	ID          string
	Category    Category
	Severity    Severity
	HTTPStatus  int
	Message     string
	Operational bool
	Context     map[string]any
	cause       error
}

// New creates an Error with the category's default severity and HTTP status.
func New(category Category, message string) *Error {
	defaults, ok := categoryDefaults[category]
	if !ok {
		defaults.severity = SeverityMedium
		defaults.status = http.StatusInternalServerError
	}
	return &Error{
		ID:          uuid.NewString(),
		Category:    category,
		Severity:    defaults.severity,
		HTTPStatus:  defaults.status,
		Message:     message,
		Operational: true,
	}
}

// Wrap creates an Error around a lower-level cause.
func Wrap(category Category, message string, cause error) *Error {
	e := New(category, message)
	e.cause = cause
	return e
}

// WithSeverity overrides the default severity.
func (e *Error) WithSeverity(s Severity) *Error {
	e.Severity = s
	return e
}

// WithStatus overrides the default HTTP status.
func (e *Error) WithStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithContext attaches a key/value pair for logging.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}
