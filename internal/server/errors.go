package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	activitydomain "github.com/smallbiznis/prospector/internal/activitylog/domain"
	companydomain "github.com/smallbiznis/prospector/internal/company/domain"
	"github.com/smallbiznis/prospector/internal/enrichment"
	"github.com/smallbiznis/prospector/internal/executor"
	keyworddomain "github.com/smallbiznis/prospector/internal/keyword/domain"
	plandomain "github.com/smallbiznis/prospector/internal/plan/domain"
	proposaldomain "github.com/smallbiznis/prospector/internal/proposal/domain"
	"github.com/smallbiznis/prospector/internal/quota"
	usagedomain "github.com/smallbiznis/prospector/internal/usage/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type     string            `json:"type"`
	Message  string            `json:"message"`
	Errors   []ValidationError `json:"errors,omitempty"`
	Decision *quota.Decision   `json:"decision,omitempty"`
	Kind     string            `json:"kind,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	var denial quota.Decision
	if errors.As(err, &denial) {
		return http.StatusTooManyRequests, errorPayload{
			Type:     "quota_denied",
			Message:  denial.Error(),
			Decision: &denial,
		}
	}

	var invalid *proposaldomain.InvalidProposalError
	if errors.As(err, &invalid) {
		return http.StatusBadGateway, errorPayload{
			Type:    "invalid_response",
			Message: invalid.Error(),
			Kind:    string(invalid.Kind.Category()),
		}
	}

	var callErr *executor.CallError
	if errors.As(err, &callErr) {
		if callErr.Kind == executor.KindAuthOrConfig {
			return http.StatusServiceUnavailable, errorPayload{
				Type:    "provider_config",
				Message: "provider credentials are missing or rejected",
				Kind:    string(callErr.Kind),
			}
		}
		return http.StatusBadGateway, errorPayload{
			Type:    "provider_error",
			Message: callErr.Error(),
			Kind:    string(callErr.Kind),
		}
	}

	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, plandomain.ErrOverrideAlreadyActive),
		errors.Is(err, companydomain.ErrDuplicateName):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, enrichment.ErrProviderConfig):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, plandomain.ErrOverrideAlreadyActive):
		return "a temporary tier override is already active"
	case errors.Is(err, companydomain.ErrDuplicateName):
		return "company already exists"
	default:
		return "conflict"
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, plandomain.ErrUnknownTier),
		errors.Is(err, usagedomain.ErrUnknownOperation),
		errors.Is(err, usagedomain.ErrInvalidDays),
		errors.Is(err, keyworddomain.ErrEmptyTerms),
		errors.Is(err, keyworddomain.ErrInvalidStatus),
		errors.Is(err, keyworddomain.ErrInvalidPageToken),
		errors.Is(err, companydomain.ErrInvalidName),
		errors.Is(err, activitydomain.ErrInvalidRunID):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, keyworddomain.ErrNotFound),
		errors.Is(err, companydomain.ErrNotFound),
		errors.Is(err, proposaldomain.ErrCompanyNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, plandomain.ErrUnknownTier):
		return plandomain.ErrUnknownTier.Error()
	case errors.Is(err, keyworddomain.ErrEmptyTerms):
		return keyworddomain.ErrEmptyTerms.Error()
	case errors.Is(err, usagedomain.ErrUnknownOperation):
		return usagedomain.ErrUnknownOperation.Error()
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "unknown_tier":
		return "tier"
	case "empty_terms":
		return "terms"
	case "unknown_operation":
		return "operation"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "unknown_tier":
		return "tier must be one of trial, starter, standard, pro"
	case "empty_terms":
		return "at least one non-blank term is required"
	default:
		return "invalid value"
	}
}
