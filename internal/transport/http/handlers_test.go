package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/goleak"

	"ncbproc/internal/config"
	apierrors "ncbproc/internal/errors"
	"ncbproc/internal/infrastructure"
	"ncbproc/internal/services"
	"ncbproc/internal/shared/testutil"
	"ncbproc/pkg/contracts/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func records() []testutil.Record {
	return []testutil.Record{
		testutil.Txn("NB", "K1", 100.5, 0),
		testutil.Txn("NB", "K2", -5),
		testutil.Txn("C", "K3", 0, -10),
		testutil.Txn("C", "K4", 10, -5),
		testutil.Txn("R", "K5", 30),
		testutil.Txn("XFER", "K6", 12),
		testutil.Txn("XFER", "K7", 12),
		testutil.Txn("XFER", "K8", 12),
	}
}

// newRouter wires the handlers the way the application does, minus the
// middleware stack.
func newRouter(t *testing.T, maxWarnings int) http.Handler {
	t.Helper()
	providers, err := infrastructure.InitializeOTel(config.TelemetryConfig{
		MetricsEnabled: true,
		ServiceName:    "ncbproc-test",
		TraceExporter:  "none",
	}, "test", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = providers.Shutdown(context.Background()) })

	logger, _ := testutil.NewTestLogger(t)
	cfg := config.Default().Processing
	cfg.Summary = false
	svc, err := services.NewProcessingService(cfg, providers.Metrics, logger)
	require.NoError(t, err)

	errs := apierrors.NewErrorHandler(logger, false)
	health := NewHealthHandler(services.NewHealthService("test", svc, logger), logger)
	process := NewProcessHandler(svc, maxWarnings, logger, errs)

	r := chi.NewRouter()
	r.NotFound(errs.NotFound)
	r.MethodNotAllowed(errs.MethodNotAllowed)
	r.Get("/api/health", health.HealthCheck)
	r.Get("/api/version", health.Version)
	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/rulesets", NewRulesetHandler(logger, errs).Routes())
		r.Post("/process", process.Process)
		r.Post("/inspect", process.Inspect)
	})
	r.Method(http.MethodGet, "/metrics", NewMetricsHandler(providers.PrometheusHTTP, errs))
	return r
}

// uploadRequest builds a multipart POST with data in the "file" field.
func uploadRequest(t *testing.T, target, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthHandler(t *testing.T) {
	h := newRouter(t, 10)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[services.HealthStatus](t, rec)
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "karen-3.0", status.Ruleset)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	version := decode[map[string]any](t, rec)
	assert.Equal(t, "test", version["version"])
	assert.Equal(t, "karen-3.0", version["default_ruleset"])
}

func TestHealthHandlerDegraded(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	h := NewHealthHandler(services.NewHealthService("test", nil, logger), logger)

	rec := httptest.NewRecorder()
	h.writeStatus(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil), services.HealthStatus{
		Status:   "degraded",
		Rulesets: []services.RulesetHealth{{Name: "karen-9", Status: "unavailable"}},
	})

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, apierrors.TypeServiceDown, body["type"])
	assert.Equal(t, apierrors.ErrServiceUnavailable.ErrorCode, body["error_code"])
	details, ok := body["details"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	assert.Equal(t, "degraded", details["status"])
	assert.True(t, logs.ContainsMessage("health check degraded"))
}

func TestRulesetHandler(t *testing.T) {
	h := newRouter(t, 10)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/rulesets", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[RulesetList](t, rec)
	assert.Equal(t, "karen-3.0", list.Default)
	names := make([]string, 0, len(list.Rulesets))
	for _, rs := range list.Rulesets {
		names = append(names, rs.Name)
		assert.Equal(t, "available", rs.Status)
	}
	assert.Equal(t, []string{"karen-2.0", "karen-3.0"}, names)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/rulesets/karen-2.0", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	rs := decode[map[string]any](t, rec)
	assert.Equal(t, "karen-2.0", rs["name"])
	assert.Equal(t, "combined", rs["output"].(map[string]any)["layout"])

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/rulesets/karen-9", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "/errors/not-found", decode[map[string]any](t, rec)["type"])
}

func TestProcessHandler_JSON(t *testing.T) {
	h := newRouter(t, 2)
	data := testutil.WorkbookBytes(t, testutil.Karen30Layout.Fixture(records()...))

	rec := serve(h, uploadRequest(t, "/api/v1/process", "export.xlsx", data, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	summary := decode[ProcessSummary](t, rec)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, "export.xlsx", summary.Source)
	assert.Equal(t, "karen-3.0", summary.Ruleset)
	assert.Equal(t, map[domain.Bucket]int{
		domain.BucketNewBusiness:   1,
		domain.BucketReinstatement: 1,
		domain.BucketCancellation:  2,
	}, summary.Kept)
	require.Len(t, summary.Tables, 3)
	assert.Equal(t, domain.BucketNewBusiness, summary.Tables[0].Bucket)
	assert.Equal(t, 1, summary.Tables[0].Rows)
	assert.Contains(t, summary.ColumnMap, domain.RoleTransactionType)

	assert.Equal(t, 3, summary.WarningCounts[domain.KindUnclassifiableRow])
	assert.Len(t, summary.Warnings, 2)
	assert.True(t, summary.WarningsTruncated)
}

func TestProcessHandler_Workbook(t *testing.T) {
	h := newRouter(t, 10)
	data := testutil.WorkbookBytes(t, testutil.Karen30Layout.Fixture(records()...))

	tests := []struct {
		name        string
		fields      map[string]string
		wantFile    string
		wantSheets  []string
		wantRowsOf  string
		wantDataRow int
	}{
		{
			name:       "combined",
			fields:     map[string]string{"format": "xlsx"},
			wantFile:   "export_NCB_Output.xlsx",
			wantSheets: []string{"New Business", "Reinstatements", "Cancellations"},
		},
		{
			name:        "single bucket by code",
			fields:      map[string]string{"format": "xlsx", "bucket": "C"},
			wantFile:    "Karen_3_0_Cancellations.xlsx",
			wantSheets:  []string{"Cancellations"},
			wantRowsOf:  "Cancellations",
			wantDataRow: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, uploadRequest(t, "/api/v1/process", "export.xlsx", data, tt.fields))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
			assert.Equal(t, `attachment; filename=`+tt.wantFile, rec.Header().Get("Content-Disposition"))

			f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
			require.NoError(t, err)
			defer f.Close()
			assert.Equal(t, tt.wantSheets, f.GetSheetList())

			if tt.wantRowsOf != "" {
				rows, err := f.GetRows(tt.wantRowsOf)
				require.NoError(t, err)
				assert.Len(t, rows, tt.wantDataRow+1, "header plus data rows")
			}
		})
	}
}

func TestProcessHandler_Rejections(t *testing.T) {
	h := newRouter(t, 10)
	valid := testutil.WorkbookBytes(t, testutil.Karen30Layout.Fixture(records()...))
	noData := testutil.WorkbookBytes(t, testutil.Sheet{Name: "Summary", Rows: [][]any{{"Totals"}}})

	tests := []struct {
		name     string
		filename string
		data     []byte
		fields   map[string]string
		status   int
		wantType string
	}{
		{name: "missing file", status: http.StatusBadRequest, wantType: apierrors.TypeValidation},
		{name: "wrong extension", filename: "export.csv", data: []byte("a,b"), status: http.StatusBadRequest, wantType: apierrors.TypeValidation},
		{name: "bad format", filename: "export.xlsx", data: valid, fields: map[string]string{"format": "pdf"}, status: http.StatusBadRequest, wantType: apierrors.TypeValidation},
		{name: "bad bucket", filename: "export.xlsx", data: valid, fields: map[string]string{"bucket": "transfers"}, status: http.StatusBadRequest, wantType: apierrors.TypeValidation},
		{name: "unknown ruleset", filename: "export.xlsx", data: valid, fields: map[string]string{"ruleset": "karen-9"}, status: http.StatusBadRequest, wantType: apierrors.TypeUnknownRuleset},
		{name: "not a workbook", filename: "export.xlsx", data: []byte("plain text"), status: http.StatusUnprocessableEntity, wantType: apierrors.TypeUnreadableWorkbook},
		{name: "sheet not found", filename: "export.xlsx", data: noData, status: http.StatusUnprocessableEntity, wantType: apierrors.TypeSheetNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, uploadRequest(t, "/api/v1/process", tt.filename, tt.data, tt.fields))
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			problem := decode[map[string]any](t, rec)
			assert.Equal(t, tt.wantType, problem["type"])
		})
	}
}

func TestProcessHandler_Inspect(t *testing.T) {
	h := newRouter(t, 10)
	data := testutil.WorkbookBytes(t, testutil.Karen20Layout.Fixture(records()...))

	rec := serve(h, uploadRequest(t, "/api/v1/inspect", "ncb.xlsx", data, map[string]string{"ruleset": "karen-2.0"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	report := decode[map[string]any](t, rec)
	assert.Equal(t, "karen-2.0", report["ruleset"])
	assert.Equal(t, "Transaction Data", report["sheet"])
	assert.NotEmpty(t, report["transaction_values"])
}

func TestMetricsHandler(t *testing.T) {
	h := newRouter(t, 10)
	serve(h, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# TYPE")

	logger, _ := testutil.NewTestLogger(t)
	disabled := NewMetricsHandler(nil, apierrors.NewErrorHandler(logger, false))
	rec = serve(disabled, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
