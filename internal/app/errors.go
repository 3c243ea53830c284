package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"sayit/api/internal/auth"
	"sayit/api/internal/export"
	"sayit/api/internal/gitrepo"
	"sayit/api/internal/ingest"
	"sayit/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var reconcileErr *ingest.ReconcileError
	if errors.As(err, &reconcileErr) {
		details := map[string]any{"reason": reconcileErr.Reason, "stage": reconcileErr.Stage}
		switch reconcileErr.Reason {
		case ingest.ReasonAllocationOverflow, ingest.ReasonNoAnchorAvailable:
			return http.StatusUnprocessableEntity, "ALLOCATION_FAILED", "Could not allocate section IDs", details
		case ingest.ReasonRenderFailure:
			return http.StatusUnprocessableEntity, "RENDER_FAILED", "Could not render markdown", details
		default:
			return http.StatusInternalServerError, "PERSISTENCE_FAILED", "Could not save speech", details
		}
	}

	switch {
	case errors.Is(err, sql.ErrNoRows),
		errors.Is(err, export.ErrContentUnavailable),
		errors.Is(err, gitrepo.ErrNotArchived):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, store.ErrSpeechExists):
		return http.StatusConflict, "SPEECH_EXISTS", "Filename already exists in speech index", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", err.Error(), nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available", nil
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
