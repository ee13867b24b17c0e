package apperr

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// Postgres error codes normalized by the handler.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// AlertFunc is invoked for errors at or above critical severity.
type AlertFunc func(err *Error)

// Handler normalizes errors into the taxonomy, logs them, and escalates
// critical ones. One Handler instance is constructed per process and passed to
// request handlers; there is no package-level state.
type Handler struct {
	logger zerolog.Logger
	alert  AlertFunc
}

// NewHandler creates a Handler. alert may be nil.
func NewHandler(logger zerolog.Logger, alert AlertFunc) *Handler {
	return &Handler{
		logger: logger.With().Str("component", "error_handler").Logger(),
		alert:  alert,
	}
}

// Normalize converts any error into a taxonomy Error. Errors that are already
// categorized pass through unchanged so they are never re-wrapped twice.
func (h *Handler) Normalize(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return Wrap(CategoryBusinessLogic, "duplicate record", err)
		case pgForeignKeyViolation:
			return Wrap(CategoryValidation, "referenced record does not exist", err)
		}
		return Wrap(CategoryDatabase, "database operation failed", err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return Wrap(CategoryNotFound, "record not found", err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(CategoryNetwork, "operation timed out or was canceled", err)
	}

	return Wrap(CategorySystem, "unexpected error", err).WithSeverity(SeverityMedium)
}

// Handle normalizes, logs, and (for critical errors) alerts. It returns the
// normalized Error so callers can write the mapped response.
func (h *Handler) Handle(err error) *Error {
	appErr := h.Normalize(err)

	event := h.levelFor(appErr.Severity).
		Str("error_id", appErr.ID).
		Str("category", string(appErr.Category)).
		Str("severity", string(appErr.Severity)).
		Int("http_status", appErr.HTTPStatus).
		Bool("operational", appErr.Operational)
	for k, v := range appErr.Context {
		event = event.Interface(k, v)
	}
	if cause := appErr.Unwrap(); cause != nil {
		event = event.Err(cause)
	}
	event.Msg(appErr.Message)

	if appErr.Severity == SeverityCritical && h.alert != nil {
		h.alert(appErr)
	}

	return appErr
}

// levelFor maps severity to a zerolog level. Low and medium are logged only;
// high and critical stand out in the log stream.
func (h *Handler) levelFor(s Severity) *zerolog.Event {
	switch s {
	case SeverityLow:
		return h.logger.Info()
	case SeverityMedium:
		return h.logger.Warn()
	default:
		return h.logger.Error()
	}
}
