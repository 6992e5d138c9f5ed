package web

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/sheetload/internal/config"
	"github.com/JonMunkholm/sheetload/internal/core"
	"github.com/JonMunkholm/sheetload/internal/core/dialects"
)

const peopleCSV = "id,name,score\n1,ann,1.5\n2,bob,x\n3,cy,\n"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 10 * time.Second},
		Upload: config.UploadConfig{MaxFileSize: 1 << 20, PreviewRows: 5},
		Defaults: config.FormDefaults{
			Kind:      "mysql",
			Host:      "localhost",
			Port:      "3306",
			Username:  "root",
			TableName: "new_table",
			Policy:    "replace",
		},
		History: config.HistoryConfig{Enabled: true, ListLimit: 50},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()

	history, err := core.NewHistoryStore(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewHistoryStore() error = %v", err)
	}
	t.Cleanup(func() { history.Close() })

	svc := core.NewService(core.ServiceConfig{
		MaxConcurrent: 2,
		MaxWaitTime:   time.Second,
		BatchSize:     2,
		PreviewRows:   cfg.Upload.PreviewRows,
	}, history)

	s := NewServer(svc, cfg)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

// form builds a multipart body. An empty fileName omits the file part.
func form(t *testing.T, fields map[string]string, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content))
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func do(s *Server, method, path string, body *bytes.Buffer, contentType, accept string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, body)
		req.Header.Set("Content-Type", contentType)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func sqliteFields(dbPath, table, policy string) map[string]string {
	return map[string]string{
		"kind":      "sqlite",
		"database":  dbPath,
		"password":  "hunter2",
		"table":     table,
		"if_exists": policy,
	}
}

func TestIndex(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := do(s, http.MethodGet, "/", nil, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`name="host" value="localhost"`,
		`name="port" value="3306"`,
		`name="table" value="new_table"`,
		`<option value="mysql" selected>`,
		`id="history-section"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}

func TestInspect(t *testing.T) {
	s := newTestServer(t, testConfig())

	t.Run("html", func(t *testing.T) {
		body, ct := form(t, nil, "people.csv", peopleCSV)
		rec := do(s, http.MethodPost, "/api/inspect", body, ct, "text/html")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		for _, want := range []string{`name="include_0"`, `name="type_2"`, "3 rows"} {
			if !strings.Contains(rec.Body.String(), want) {
				t.Errorf("editor missing %q", want)
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		body, ct := form(t, nil, "people.csv", peopleCSV)
		rec := do(s, http.MethodPost, "/api/inspect", body, ct, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		var resp inspectResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Rows != 3 || len(resp.Plan) != 3 {
			t.Errorf("rows = %d, plan = %d columns", resp.Rows, len(resp.Plan))
		}
		if resp.Plan[0].Type != core.TypeInt64 {
			t.Errorf("id type = %s, want int64", resp.Plan[0].Type)
		}
	})
}

func TestInspect_Errors(t *testing.T) {
	small := testConfig()
	small.Upload.MaxFileSize = 64

	tests := []struct {
		name     string
		cfg      *config.Config
		fileName string
		content  string
		status   int
		code     string
	}{
		{"no file", testConfig(), "", "", http.StatusBadRequest, "FILE004"},
		{"empty file", testConfig(), "a.csv", "", http.StatusBadRequest, "FILE005"},
		{"bad workbook", testConfig(), "a.xlsx", "not a zip", http.StatusBadRequest, "FILE003"},
		{"too large", small, "a.csv", strings.Repeat("a,b\n", 100), http.StatusRequestEntityTooLarge, "FILE001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.cfg)
			body, ct := form(t, nil, tt.fileName, tt.content)
			rec := do(s, http.MethodPost, "/api/inspect", body, ct, "")

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := decodeError(t, rec).Code; got != tt.code {
				t.Errorf("code = %s, want %s", got, tt.code)
			}
		})
	}
}

func TestPreview_AppliesPlan(t *testing.T) {
	s := newTestServer(t, testConfig())

	fields := map[string]string{
		"plan":      "1",
		"include_0": "1",
		"type_0":    "string",
		"include_2": "1",
		"type_2":    "float64",
	}
	body, ct := form(t, fields, "people.csv", peopleCSV)
	rec := do(s, http.MethodPost, "/api/preview", body, ct, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp previewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(resp.Columns, ","); got != "id,score" {
		t.Errorf("columns = %s, want id,score", got)
	}
	if len(resp.Warnings) != 1 || resp.Warnings[0].Column != "score" {
		t.Errorf("warnings = %+v, want one for score", resp.Warnings)
	}
	if resp.Preview.Columns[0].Type != core.TypeString {
		t.Errorf("id type = %s, want string", resp.Preview.Columns[0].Type)
	}
}

func TestLoad_EndToEnd(t *testing.T) {
	s := newTestServer(t, testConfig())
	dbPath := filepath.Join(t.TempDir(), "dest.db")

	body, ct := form(t, sqliteFields(dbPath, "people", "replace"), "people.csv", peopleCSV)
	rec := do(s, http.MethodPost, "/api/load", body, ct, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var started loadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatal(err)
	}
	if started.LoadID == "" || started.Rows != 3 {
		t.Fatalf("load response = %+v", started)
	}

	stream := do(s, http.MethodGet, "/api/load/"+started.LoadID+"/progress", nil, "", "text/event-stream")
	if got := stream.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	events := stream.Body.String()
	for _, want := range []string{"event: progress", `"phase":"complete"`, `"percent":100`, "event: complete"} {
		if !strings.Contains(events, want) {
			t.Errorf("stream missing %q:\n%s", want, events)
		}
	}

	rec = do(s, http.MethodGet, "/api/load/"+started.LoadID+"/result", nil, "", "")
	var result core.LoadResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if !result.Success || result.RowsWritten != 3 {
		t.Fatalf("result = %+v", result)
	}

	rec = do(s, http.MethodGet, "/api/load/"+started.LoadID+"/result", nil, "", "text/html")
	if !strings.Contains(rec.Body.String(), "Data uploaded successfully: 3 rows written to <code>people</code>") {
		t.Errorf("outcome = %s", rec.Body.String())
	}

	db, err := sql.Open("sqlite", dialects.SQLiteDSN(dbPath))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM "people"`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("rows in table = %d, want 3", n)
	}

	rec = do(s, http.MethodGet, "/api/history", nil, "", "")
	if strings.Contains(rec.Body.String(), "hunter2") {
		t.Error("history leaks the password")
	}
	var entries []core.HistoryEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Status != core.StatusSucceeded || entries[0].RowsWritten != 3 {
		t.Errorf("history = %+v", entries)
	}
}

func TestLoad_RejectsInvalidInput(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "dest.db")

	with := func(mod func(map[string]string)) map[string]string {
		f := sqliteFields(dbPath, "people", "replace")
		mod(f)
		return f
	}

	tests := []struct {
		name     string
		fields   map[string]string
		fileName string
		code     string
	}{
		{"no file", sqliteFields(dbPath, "people", "replace"), "", "FILE004"},
		{"empty table name", with(func(f map[string]string) { f["table"] = "  " }), "people.csv", "VAL001"},
		{"all columns excluded", with(func(f map[string]string) { f["plan"] = "1" }), "people.csv", "VAL002"},
		{"unknown kind", with(func(f map[string]string) { f["kind"] = "oracle" }), "people.csv", "VAL003"},
		{"unknown policy", with(func(f map[string]string) { f["if_exists"] = "merge" }), "people.csv", "VAL004"},
		{"missing database", with(func(f map[string]string) { f["database"] = "" }), "people.csv", "VAL005"},
		{"missing host", with(func(f map[string]string) { f["kind"] = "postgresql" }), "people.csv", "VAL005"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, testConfig())
			body, ct := form(t, tt.fields, tt.fileName, peopleCSV)
			rec := do(s, http.MethodPost, "/api/load", body, ct, "")

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", rec.Code, rec.Body.String())
			}
			if got := decodeError(t, rec).Code; got != tt.code {
				t.Errorf("code = %s, want %s", got, tt.code)
			}
		})
	}

	if _, err := os.Stat(dbPath); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("rejected loads touched the destination: stat error = %v", err)
	}
}

func TestLoad_ErrorFragment(t *testing.T) {
	s := newTestServer(t, testConfig())

	fields := sqliteFields(filepath.Join(t.TempDir(), "d.db"), "", "replace")
	body, ct := form(t, fields, "people.csv", peopleCSV)
	rec := do(s, http.MethodPost, "/api/load", body, ct, "text/html")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	html := rec.Body.String()
	for _, want := range []string{`class="notice notice-error"`, "Please enter a valid table name!", "VAL001"} {
		if !strings.Contains(html, want) {
			t.Errorf("fragment missing %q: %s", want, html)
		}
	}
}

func TestLoad_HTMLClientGetsJSONOnAccept(t *testing.T) {
	s := newTestServer(t, testConfig())
	dbPath := filepath.Join(t.TempDir(), "dest.db")

	body, ct := form(t, sqliteFields(dbPath, "people", "replace"), "people.csv", peopleCSV)
	rec := do(s, http.MethodPost, "/api/load", body, ct, "text/html")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q, want JSON", ct)
	}
	var started loadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode load response %q: %v", rec.Body.String(), err)
	}
	if started.LoadID == "" {
		t.Fatal("empty load ID")
	}

	// wait for the load so the temp dir can be removed
	do(s, http.MethodGet, "/api/load/"+started.LoadID+"/progress", nil, "", "text/event-stream")
}

func TestLoad_FailPolicy(t *testing.T) {
	s := newTestServer(t, testConfig())
	dbPath := filepath.Join(t.TempDir(), "dest.db")

	load := func(policy string) core.LoadResult {
		t.Helper()
		body, ct := form(t, sqliteFields(dbPath, "people", policy), "people.csv", peopleCSV)
		rec := do(s, http.MethodPost, "/api/load", body, ct, "")
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		var started loadResponse
		json.Unmarshal(rec.Body.Bytes(), &started)

		rec = do(s, http.MethodGet, "/api/load/"+started.LoadID+"/result", nil, "", "")
		var result core.LoadResult
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatal(err)
		}
		return result
	}

	if r := load("replace"); !r.Success {
		t.Fatalf("first load failed: %s", r.Error)
	}
	r := load("fail")
	if r.Success {
		t.Fatal("second load with fail policy succeeded")
	}
	if r.ErrorCode != "LOAD001" || !strings.Contains(r.Error, "already exists") {
		t.Errorf("error = %q (%s)", r.Error, r.ErrorCode)
	}
}

func TestUnknownLoad(t *testing.T) {
	s := newTestServer(t, testConfig())

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/load/nope/progress"},
		{http.MethodGet, "/api/load/nope/result"},
		{http.MethodPost, "/api/load/nope/cancel"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(s, tt.method, tt.path, nil, "", "")
			if rec.Code != http.StatusNotFound {
				t.Errorf("status = %d, want 404", rec.Code)
			}
			if got := decodeError(t, rec).Code; got != "LOAD003" {
				t.Errorf("code = %s, want LOAD003", got)
			}
		})
	}
}

func TestTestConnection(t *testing.T) {
	s := newTestServer(t, testConfig())

	fields := map[string]string{"kind": "sqlite", "database": filepath.Join(t.TempDir(), "ping.db")}
	body, ct := form(t, fields, "", "")
	rec := do(s, http.MethodPost, "/api/connection/test", body, ct, "text/html")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Connected to SQLite") {
		t.Errorf("body = %s", rec.Body.String())
	}

	body, ct = form(t, map[string]string{"kind": "nosql"}, "", "")
	rec = do(s, http.MethodPost, "/api/connection/test", body, ct, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown kind status = %d, want 400", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := do(s, http.MethodGet, "/healthz", nil, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Status string             `json:"status"`
		Loads  core.LimiterStatus `json:"loads"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.Loads.MaxConcurrent != 2 {
		t.Errorf("healthz = %+v", resp)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, LoadLimit: 1}
	s := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		if rec := do(s, http.MethodGet, "/healthz", nil, "", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := do(s, http.MethodGet, "/healthz", nil, "", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := decodeError(t, rec).Code; got != "RATE001" {
		t.Errorf("code = %s, want RATE001", got)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrNoFile, http.StatusBadRequest},
		{fmt.Errorf("table: %w", core.ErrEmptyTableName), http.StatusBadRequest},
		{fmt.Errorf("%w: line 3", core.ErrInvalidCSV), http.StatusBadRequest},
		{fmt.Errorf("file too large: %w", &http.MaxBytesError{Limit: 1}), http.StatusRequestEntityTooLarge},
		{fmt.Errorf("%w: x", core.ErrLoadNotFound), http.StatusNotFound},
		{fmt.Errorf("table %q: %w", "t", core.ErrTableExists), http.StatusConflict},
		{core.ErrTooManyLoads, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("dial tcp: connection refused"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor() = %d, want %d", got, tt.want)
			}
		})
	}
}
