package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/sheetload/internal/core"
	"github.com/JonMunkholm/sheetload/internal/web/templates"
)

// handleIndex renders the single page with the configured form defaults.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	d := s.cfg.Defaults

	kind, err := core.ParseDBKind(d.Kind)
	if err != nil {
		kind = core.KindMySQL
	}
	port := d.Port
	if port == "" {
		if dialect, ok := core.Get(kind); ok {
			port = dialect.DefaultPort()
		}
	}
	policy, err := core.ParseConflictPolicy(d.Policy)
	if err != nil {
		policy = core.PolicyReplace
	}

	s.render(w, r, http.StatusOK, templates.Page(templates.PageParams{
		Kind:           kind,
		Host:           d.Host,
		Port:           port,
		Username:       d.Username,
		Database:       d.Database,
		TableName:      d.TableName,
		Policy:         policy,
		Kinds:          core.Kinds(),
		HistoryEnabled: s.service.HistoryEnabled(),
		MaxFileSizeMB:  s.cfg.Upload.MaxFileSize >> 20,
	}))
}

// inspectResponse is the JSON form of an inspected file.
type inspectResponse struct {
	FileName string          `json:"fileName"`
	Rows     int             `json:"rows"`
	Plan     core.ColumnPlan `json:"plan"`
	Preview  core.Preview    `json:"preview"`
}

// handleInspect parses the uploaded file and returns its column editor.
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	insp, err := s.service.Inspect(up.Name, up.Data)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	if wantsHTML(r) {
		s.render(w, r, http.StatusOK, templates.Editor(insp))
		return
	}
	writeJSON(w, http.StatusOK, inspectResponse{
		FileName: insp.FileName,
		Rows:     insp.Table.Rows,
		Plan:     insp.Plan,
		Preview:  insp.Preview,
	})
}

// previewResponse is the JSON form of a prepared table.
type previewResponse struct {
	Columns  []string               `json:"columns"`
	Preview  core.Preview           `json:"preview"`
	Warnings []core.CoercionWarning `json:"warnings"`
}

// handlePreview applies the column plan to the uploaded file and returns
// the filtered preview with any coercion warnings.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	insp, err := s.service.Inspect(up.Name, up.Data)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	prep := s.service.Prepare(insp.Table, parsePlan(r, insp.Plan))

	if wantsHTML(r) {
		s.render(w, r, http.StatusOK, templates.PreviewPanel(prep.Preview, prep.Warnings))
		return
	}
	writeJSON(w, http.StatusOK, previewResponse{
		Columns:  prep.Table.ColumnNames(),
		Preview:  prep.Preview,
		Warnings: nonNil(prep.Warnings),
	})
}

// loadResponse is returned when a load has been accepted.
type loadResponse struct {
	LoadID   string                 `json:"load_id"`
	Rows     int                    `json:"rows"`
	Warnings []core.CoercionWarning `json:"warnings"`
}

// handleLoad starts loading the uploaded file into the destination.
// Every input is validated before the load starts; the response carries
// the load ID to follow on the progress stream. The 202 body is JSON
// whatever the Accept header; errors follow it.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	conn, err := parseConnection(r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	req, err := parseLoadRequest(r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	insp, err := s.service.Inspect(up.Name, up.Data)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	prep := s.service.Prepare(insp.Table, parsePlan(r, insp.Plan))

	job := &core.LoadJob{
		Conn:     conn,
		Request:  req,
		FileName: up.Name,
		Table:    prep.Table,
		Warnings: prep.Warnings,
	}

	loadID, err := s.service.StartLoad(WithRequestMetadata(r.Context(), r), job)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	writeJSON(w, http.StatusAccepted, loadResponse{
		LoadID:   loadID,
		Rows:     prep.Table.Rows,
		Warnings: nonNil(prep.Warnings),
	})
}

// handleLoadProgress streams load progress via Server-Sent Events.
// The event ID is the progress percentage; a reconnecting client passes it
// back as lastEventId (or the Last-Event-ID header) to skip events it
// already received.
func (s *Server) handleLoadProgress(w http.ResponseWriter, r *http.Request) {
	loadID := chi.URLParam(r, "loadID")

	lastEventIDStr := r.URL.Query().Get("lastEventId")
	if lastEventIDStr == "" {
		lastEventIDStr = r.Header.Get("Last-Event-ID")
	}
	lastEventID, _ := strconv.Atoi(lastEventIDStr)

	progressCh, err := s.service.SubscribeProgress(loadID)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				_ = rc.Flush()
				return
			}

			if lastEventIDStr != "" && progress.Percent <= lastEventID && !progress.Phase.Terminal() {
				continue
			}

			data, err := json.Marshal(progress)
			if err != nil {
				slog.Error("encode progress", "error", err, "load_id", loadID)
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", progress.Percent, data)
			if err := rc.Flush(); err != nil {
				slog.Error("streaming not supported", "error", err)
				return
			}

		case <-r.Context().Done():
			return
		}
	}
}

// handleLoadResult waits for a load to finish and returns its outcome.
func (s *Server) handleLoadResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.GetLoadResult(r.Context(), chi.URLParam(r, "loadID"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	if wantsHTML(r) {
		s.render(w, r, http.StatusOK, templates.Outcome(result))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCancelLoad cancels an in-progress load.
func (s *Server) handleCancelLoad(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CancelLoad(chi.URLParam(r, "loadID")); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// handleTestConnection opens and pings the destination described by the
// connection fields.
func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	spec, err := parseConnection(r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if err := s.service.TestConnection(r.Context(), spec); err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	if wantsHTML(r) {
		s.render(w, r, http.StatusOK, templates.ConnectionOK(spec))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHistory lists recent load attempts.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := min(parseIntParam(r, "limit", s.cfg.History.ListLimit), s.cfg.History.ListLimit)

	entries, err := s.service.History(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	if wantsHTML(r) {
		s.render(w, r, http.StatusOK, templates.HistoryTable(entries))
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

// handleHealthz reports liveness and load slot usage.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"loads":  s.service.LimiterStatus(),
	})
}

// render writes an HTML component with status.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "path", r.URL.Path, "error", err)
	}
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// nonNil keeps empty lists as [] rather than null in JSON.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
