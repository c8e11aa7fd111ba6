package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"ncbproc/internal/dataprocessing"
	"ncbproc/internal/infrastructure"
	"ncbproc/internal/ruleset"
	"ncbproc/pkg/contracts/domain"
)

// Common error types following RFC 7807
const (
	TypeValidation       = "/errors/validation"
	TypeNotFound         = "/errors/not-found"
	TypeMethodNotAllowed = "/errors/method-not-allowed"
	TypeRateLimit        = "/errors/rate-limit"
	TypeInternal         = "/errors/internal"
	TypeServiceDown      = "/errors/service-unavailable"
	TypeTimeout          = "/errors/timeout"
	TypePayloadTooLarge  = "/errors/payload-too-large"
)

// Workbook and ruleset error types
const (
	TypeSheetNotFound       = "/errors/workbook/sheet-not-found"
	TypeMalformedHeader     = "/errors/workbook/malformed-header"
	TypeInsufficientColumns = "/errors/workbook/insufficient-columns"
	TypeUnreadableWorkbook  = "/errors/workbook/unreadable"
	TypeUnknownRuleset      = "/errors/ruleset/unknown"
)

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates a new error handler. includeStack adds stack
// traces to problem responses and is meant for development.
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError converts any error to RFC 7807 format and responds
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	problem := h.ErrorToProblem(err, r)

	level := slog.LevelWarn
	if problem.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		slog.String("error", err.Error()),
		slog.Int("status", problem.Status),
		slog.String("type", problem.Type),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	h.withTrace(problem, r)
	if h.includeStack {
		problem.WithExtension("stack", getStackTrace())
	}

	_ = render.Render(w, r, problem)
}

// ErrorToProblem converts an error to RFC 7807 Problem Details
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(
			http.StatusGatewayTimeout,
			TypeTimeout,
			"Request Timeout",
			"The request took too long to process and was cancelled",
			r.URL.Path,
		)
	}

	var pe *dataprocessing.ProcessingError
	if errors.As(err, &pe) {
		return processingErrorToProblem(pe, r)
	}

	if errors.Is(err, dataprocessing.ErrUnreadableWorkbook) {
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			TypeUnreadableWorkbook,
			"Unreadable Workbook",
			"The upload is not a readable xlsx workbook",
			r.URL.Path,
		).WithExtension("cause", err.Error())
	}

	if errors.Is(err, ruleset.ErrUnknownRuleset) {
		return NewProblemDetails(
			http.StatusBadRequest,
			TypeUnknownRuleset,
			"Unknown Ruleset",
			err.Error(),
			r.URL.Path,
		).WithExtension("available", ruleset.Names())
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return NewProblemDetails(
			http.StatusRequestEntityTooLarge,
			TypePayloadTooLarge,
			"Payload Too Large",
			"The request body exceeds the maximum allowed size",
			r.URL.Path,
		).WithExtension("limit_bytes", maxBytes.Limit)
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]ValidationError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, ValidationError{
				Field:   fe.Field(),
				Message: fmt.Sprintf("failed %s validation", fe.Tag()),
			})
		}
		return NewProblemDetails(
			http.StatusBadRequest,
			TypeValidation,
			"Validation Failed",
			"The request contains invalid fields",
			r.URL.Path,
		).WithExtension("errors", fields)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErrorToProblem(apiErr, r)
	}

	return ErrInternalServer.Problem(r)
}

// processingErrorToProblem reports a workbook that the pipeline rejected.
// The extensions carry what a person needs to fix the workbook.
func processingErrorToProblem(pe *dataprocessing.ProcessingError, r *http.Request) *ProblemDetails {
	var problemType, title string
	switch pe.Kind {
	case domain.KindSheetNotFound:
		problemType, title = TypeSheetNotFound, "Sheet Not Found"
	case domain.KindMalformedHeader:
		problemType, title = TypeMalformedHeader, "Malformed Header"
	case domain.KindInsufficientColumns:
		problemType, title = TypeInsufficientColumns, "Insufficient Columns"
	default:
		problemType, title = TypeValidation, "Unprocessable Workbook"
	}

	problem := NewProblemDetails(http.StatusUnprocessableEntity, problemType, title, pe.Message, r.URL.Path).
		WithExtension("kind", pe.Kind)
	if pe.Sheet != "" {
		problem.WithExtension("sheet", pe.Sheet)
	}
	if len(pe.Available) > 0 {
		problem.WithExtension("available", pe.Available)
	}
	if pe.Kind == domain.KindMalformedHeader {
		problem.WithExtension("header_row", pe.HeaderRow+1)
	}
	if pe.Required > 0 {
		problem.WithExtension("found", pe.Found).WithExtension("required", pe.Required)
	}
	if len(pe.Missing) > 0 {
		problem.WithExtension("missing", pe.Missing)
	}
	if len(pe.Resolved) > 0 {
		problem.WithExtension("resolved", pe.Resolved)
	}
	return problem
}

// apiErrorToProblem converts APIError to ProblemDetails
func apiErrorToProblem(apiErr *APIError, r *http.Request) *ProblemDetails {
	problemType := TypeInternal
	switch apiErr.StatusCode {
	case http.StatusBadRequest:
		problemType = TypeValidation
	case http.StatusNotFound:
		problemType = TypeNotFound
	case http.StatusRequestEntityTooLarge:
		problemType = TypePayloadTooLarge
	case http.StatusTooManyRequests:
		problemType = TypeRateLimit
	case http.StatusServiceUnavailable:
		problemType = TypeServiceDown
	}

	problem := NewProblemDetails(
		apiErr.StatusCode,
		problemType,
		http.StatusText(apiErr.StatusCode),
		apiErr.Message,
		r.URL.Path,
	).WithExtension("error_code", apiErr.ErrorCode)

	if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}
	return problem
}

// HandlePanic recovers from panics and returns RFC 7807 error
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", getStackTrace()),
	)

	problem := NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred",
		r.URL.Path,
	)
	h.withTrace(problem, r)

	if h.includeStack {
		problem.WithExtension("panic", fmt.Sprintf("%v", recovered))
		problem.WithExtension("stack", getStackTrace())
	}

	_ = render.Render(w, r, problem)
}

// NotFound returns a standard 404 error
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	problem := ErrNotFound.Problem(r)
	h.withTrace(problem, r)
	_ = render.Render(w, r, problem)
}

// MethodNotAllowed returns a standard 405 error
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusMethodNotAllowed,
		TypeMethodNotAllowed,
		"Method Not Allowed",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method),
		r.URL.Path,
	)
	h.withTrace(problem, r)
	_ = render.Render(w, r, problem)
}

// withTrace adds the request ID and, when a span is active, the trace ID.
func (h *ErrorHandler) withTrace(problem *ProblemDetails, r *http.Request) {
	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		problem.WithExtension("request_id", reqID)
	}
	if traceID := infrastructure.TraceIDFromContext(r.Context()); traceID != "" {
		problem.WithExtension("trace_id", traceID)
	}
}

// getStackTrace returns the current stack trace
func getStackTrace() string {
	buf := make([]byte, 1024*8)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
