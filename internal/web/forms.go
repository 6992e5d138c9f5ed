package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/sheetload/internal/core"
)

// multipartMemory is the part of a multipart form kept in memory; the rest
// spills to temporary files.
const multipartMemory = 32 << 20

// upload is the file part of a submitted form.
type upload struct {
	Name string
	Data []byte
}

// readUpload parses the multipart form and reads the "file" part.
// The body is capped at the configured maximum file size.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, fmt.Errorf("file too large: %w", err)
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, core.ErrNoFile
		}
		return nil, fmt.Errorf("read form: %w", err)
	}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, core.ErrNoFile
	}
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if header.Filename == "" && len(data) == 0 {
		return nil, core.ErrNoFile
	}
	return &upload{Name: header.Filename, Data: data}, nil
}

// parseConnection reads the connection fields. The password is taken
// verbatim; every other field is trimmed.
func parseConnection(r *http.Request) (core.ConnectionSpec, error) {
	kind, err := core.ParseDBKind(r.FormValue("kind"))
	if err != nil {
		return core.ConnectionSpec{}, err
	}
	return core.ConnectionSpec{
		Kind:     kind,
		Host:     strings.TrimSpace(r.FormValue("host")),
		Port:     strings.TrimSpace(r.FormValue("port")),
		Username: strings.TrimSpace(r.FormValue("username")),
		Password: r.FormValue("password"),
		Database: strings.TrimSpace(r.FormValue("database")),
	}, nil
}

// parsePlan applies the column editor's fields to plan. A form without the
// editor (no "plan" field) keeps plan unchanged.
func parsePlan(r *http.Request, plan core.ColumnPlan) core.ColumnPlan {
	if r.FormValue("plan") == "" {
		return plan
	}
	for i := range plan {
		idx := strconv.Itoa(i)
		plan[i].Included = r.FormValue("include_"+idx) != ""
		if t := r.FormValue("type_" + idx); t != "" {
			plan[i].Type = core.ParseColumnType(t)
		}
	}
	return plan
}

// parseLoadRequest reads the table name and conflict policy. An empty
// policy means replace.
func parseLoadRequest(r *http.Request) (core.LoadRequest, error) {
	policy := core.PolicyReplace
	if v := r.FormValue("if_exists"); v != "" {
		p, err := core.ParseConflictPolicy(v)
		if err != nil {
			return core.LoadRequest{}, err
		}
		policy = p
	}
	return core.LoadRequest{
		TableName: strings.TrimSpace(r.FormValue("table")),
		Policy:    policy,
	}, nil
}
