package http

import (
	"bytes"
	"errors"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "ncbproc/internal/errors"
	"ncbproc/internal/exporter"
	"ncbproc/internal/services"
	"ncbproc/internal/validation"
	"ncbproc/pkg/contracts/domain"
)

// uploadMemory is the part of a multipart upload kept in memory before
// spilling to a temporary file.
const uploadMemory = 8 << 20

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var validate = validator.New()

// processForm holds the form fields of an upload request.
type processForm struct {
	Ruleset string `validate:"omitempty,max=64,excludesall=/\\"`
	Format  string `validate:"omitempty,oneof=json xlsx"`
	Bucket  string `validate:"omitempty,max=32"`
}

// TableSummary describes one output table of a processed upload.
type TableSummary struct {
	Bucket  domain.Bucket `json:"bucket"`
	Sheet   string        `json:"sheet"`
	File    string        `json:"file"`
	Headers []string      `json:"headers"`
	Rows    int           `json:"rows"`
}

// ProcessSummary is the JSON response of POST /api/v1/process.
type ProcessSummary struct {
	RunID             string                   `json:"run_id"`
	Source            string                   `json:"source"`
	Ruleset           string                   `json:"ruleset"`
	Sheet             string                   `json:"sheet"`
	HeaderRow         int                      `json:"header_row"`
	TotalRows         int                      `json:"total_rows"`
	Classified        map[domain.Bucket]int    `json:"classified"`
	Kept              map[domain.Bucket]int    `json:"kept"`
	ColumnMap         domain.ColumnMap         `json:"column_map"`
	Tables            []TableSummary           `json:"tables"`
	WarningCounts     map[domain.ErrorKind]int `json:"warning_counts"`
	Warnings          []domain.Warning         `json:"warnings"`
	WarningsTruncated bool                     `json:"warnings_truncated,omitempty"`
	DurationMS        int64                    `json:"duration_ms"`
}

// ProcessHandler accepts workbook uploads and runs them through the
// processing service.
type ProcessHandler struct {
	service      *services.ProcessingService
	maxWarnings  int
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewProcessHandler creates a new process handler. maxWarnings caps the
// warnings listed in a JSON summary; the counts always cover all of them.
func NewProcessHandler(service *services.ProcessingService, maxWarnings int, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *ProcessHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessHandler{
		service:      service,
		maxWarnings:  maxWarnings,
		logger:       logger.With(slog.String("handler", "process")),
		errorHandler: errorHandler,
	}
}

// Process handles POST /api/v1/process
func (h *ProcessHandler) Process(w http.ResponseWriter, r *http.Request) {
	file, header, err := h.upload(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	defer file.Close()

	form := processForm{
		Ruleset: r.FormValue("ruleset"),
		Format:  r.FormValue("format"),
		Bucket:  r.FormValue("bucket"),
	}
	if err := validate.Struct(form); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	var bucket domain.Bucket
	if form.Bucket != "" {
		if bucket, err = domain.ParseBucket(form.Bucket); err != nil {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("bucket", err.Error()))
			return
		}
	}

	run, err := h.service.Process(r.Context(), file, header.Filename, form.Ruleset)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	tables := run.Tables
	if bucket != "" {
		t, ok := run.Table(bucket)
		if !ok {
			h.errorHandler.HandleError(w, r, apierrors.NotFoundError("output table "+string(bucket)))
			return
		}
		tables = []domain.OutputTable{*t}
	}

	if form.Format == "xlsx" {
		name := tables[0].File
		if bucket == "" {
			rs, err := h.service.Ruleset(form.Ruleset)
			if err != nil {
				h.errorHandler.HandleError(w, r, err)
				return
			}
			name = services.WorkbookName(rs, header.Filename)
		}
		h.writeWorkbook(w, r, name, tables)
		return
	}

	render.JSON(w, r, h.summarize(run, tables))
}

// Inspect handles POST /api/v1/inspect
func (h *ProcessHandler) Inspect(w http.ResponseWriter, r *http.Request) {
	file, _, err := h.upload(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	defer file.Close()

	form := processForm{Ruleset: r.FormValue("ruleset")}
	if err := validate.Struct(form); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	report, err := h.service.Inspect(r.Context(), file, form.Ruleset)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, report)
}

// upload parses the multipart body and returns the workbook of the "file"
// field.
func (h *ProcessHandler) upload(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, nil, err
		}
		return nil, nil, apierrors.InvalidRequestWithError(err)
	}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, apierrors.ErrMissingFile
	}
	if err != nil {
		return nil, nil, apierrors.InvalidRequestWithError(err)
	}
	if !validation.IsWorkbookName(header.Filename) {
		file.Close()
		return nil, nil, apierrors.ErrUnsupportedFile
	}

	h.logger.DebugContext(r.Context(), "upload received",
		slog.String("filename", header.Filename),
		slog.Int64("size", header.Size))
	return file, header, nil
}

func (h *ProcessHandler) summarize(run *services.Run, tables []domain.OutputTable) ProcessSummary {
	summary := ProcessSummary{
		RunID:         run.ID,
		Source:        run.Source,
		Ruleset:       run.Ruleset,
		Sheet:         run.Sheet,
		HeaderRow:     run.HeaderRow,
		TotalRows:     run.TotalRows,
		Classified:    run.Classified,
		Kept:          run.Kept,
		ColumnMap:     run.ColumnMap,
		Tables:        make([]TableSummary, 0, len(tables)),
		WarningCounts: run.WarningCounts(),
		Warnings:      run.Warnings,
		DurationMS:    run.Duration.Milliseconds(),
	}
	for i := range tables {
		t := &tables[i]
		summary.Tables = append(summary.Tables, TableSummary{
			Bucket:  t.Bucket,
			Sheet:   t.Sheet,
			File:    t.File,
			Headers: t.Headers(),
			Rows:    t.Len(),
		})
	}
	if len(summary.Warnings) > h.maxWarnings {
		summary.Warnings = summary.Warnings[:h.maxWarnings]
		summary.WarningsTruncated = true
	}
	if summary.Warnings == nil {
		summary.Warnings = []domain.Warning{}
	}
	return summary
}

// writeWorkbook sends tables as an attachment. The workbook is buffered
// before any header is written.
func (h *ProcessHandler) writeWorkbook(w http.ResponseWriter, r *http.Request, name string, tables []domain.OutputTable) {
	var buf bytes.Buffer
	if err := exporter.NewXLSXWriter(h.logger).WriteWorkbook(&buf, tables); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.WarnContext(r.Context(), "failed to send workbook",
			slog.String("filename", name),
			slog.String("error", err.Error()))
	}
}
