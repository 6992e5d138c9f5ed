package core_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/sheetload/internal/core"
	_ "github.com/JonMunkholm/sheetload/internal/core/dialects"
)

const peopleCSV = "id,name,score\n1,Ann,3.5\n2,Bob,\n3,Cy,4\n"

func newTestService(t *testing.T, history *core.HistoryStore) *core.Service {
	t.Helper()
	return core.NewService(core.ServiceConfig{
		MaxConcurrent: 2,
		MaxWaitTime:   time.Second,
		BatchSize:     1,
		Timeout:       10 * time.Second,
	}, history)
}

func sqliteJob(t *testing.T, svc *core.Service, dbPath string, policy core.ConflictPolicy) *core.LoadJob {
	t.Helper()
	insp, err := svc.Inspect("people.csv", []byte(peopleCSV))
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	prep := svc.Prepare(insp.Table, insp.Plan)
	return &core.LoadJob{
		Conn: core.ConnectionSpec{
			Kind:     core.KindSQLite,
			Password: "hunter2",
			Database: dbPath,
		},
		Request:  core.LoadRequest{TableName: "people", Policy: policy},
		FileName: insp.FileName,
		Table:    prep.Table,
		Warnings: prep.Warnings,
	}
}

func TestService_Inspect(t *testing.T) {
	svc := newTestService(t, nil)

	insp, err := svc.Inspect("people.csv", []byte(peopleCSV))
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}

	if got := len(insp.Plan); got != 3 {
		t.Fatalf("plan has %d entries, want 3", got)
	}
	wantTypes := []core.ColumnType{core.TypeInt64, core.TypeString, core.TypeFloat64}
	for i, want := range wantTypes {
		if insp.Plan[i].Type != want || !insp.Plan[i].Included {
			t.Errorf("plan[%d] = %+v, want included %s", i, insp.Plan[i], want)
		}
	}
	if insp.Preview.TotalRows != 3 || len(insp.Preview.Rows) != 3 {
		t.Errorf("preview = %d of %d rows", len(insp.Preview.Rows), insp.Preview.TotalRows)
	}
	if insp.Preview.Rows[1][2] != nil {
		t.Errorf("missing score previewed as %q", *insp.Preview.Rows[1][2])
	}
}

func TestService_InspectNoFile(t *testing.T) {
	svc := newTestService(t, nil)
	if _, err := svc.Inspect("", nil); !errors.Is(err, core.ErrNoFile) {
		t.Errorf("Inspect() error = %v, want ErrNoFile", err)
	}
}

func TestService_LoadRejectsBeforeIO(t *testing.T) {
	svc := newTestService(t, nil)
	dbPath := filepath.Join(t.TempDir(), "dest.db")

	tests := []struct {
		name    string
		mutate  func(*core.LoadJob)
		wantErr error
	}{
		{"no file", func(j *core.LoadJob) { j.Table = nil }, core.ErrNoFile},
		{"empty table name", func(j *core.LoadJob) { j.Request.TableName = "  " }, core.ErrEmptyTableName},
		{"no columns", func(j *core.LoadJob) { j.Table = &core.Table{} }, core.ErrNoColumns},
		{"unknown policy", func(j *core.LoadJob) { j.Request.Policy = "merge" }, core.ErrUnknownPolicy},
		{"unknown kind", func(j *core.LoadJob) { j.Conn.Kind = "oracle" }, core.ErrUnknownKind},
		{"missing database", func(j *core.LoadJob) { j.Conn.Database = "" }, core.ErrMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := sqliteJob(t, svc, dbPath, core.PolicyReplace)
			tt.mutate(job)

			if err := core.ValidateJob(job); !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateJob() error = %v, want %v", err, tt.wantErr)
			}

			res := svc.Load(context.Background(), job, nil)
			if res.Success {
				t.Fatal("Load() succeeded, want failure")
			}
			if res.Error == "" || res.ErrorCode == "" {
				t.Errorf("result = %+v, want error and code", res)
			}
			if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
				t.Errorf("destination touched: stat error = %v", err)
			}
		})
	}
}

func TestService_LoadProgress(t *testing.T) {
	svc := newTestService(t, nil)
	job := sqliteJob(t, svc, filepath.Join(t.TempDir(), "dest.db"), core.PolicyReplace)

	var updates []core.LoadProgress
	res := svc.Load(context.Background(), job, func(p core.LoadProgress) {
		updates = append(updates, p)
	})
	if !res.Success {
		t.Fatalf("Load() failed: %s", res.Error)
	}
	if res.RowsWritten != 3 {
		t.Errorf("RowsWritten = %d, want 3", res.RowsWritten)
	}

	if len(updates) == 0 {
		t.Fatal("no progress reported")
	}
	if updates[0].Percent != 0 || updates[0].Phase != core.PhaseStarting {
		t.Errorf("first update = %+v", updates[0])
	}
	last := updates[len(updates)-1]
	if last.Percent != 100 || last.Phase != core.PhaseComplete {
		t.Errorf("last update = %+v", last)
	}
	for i := 1; i < len(updates); i++ {
		if updates[i].Percent < updates[i-1].Percent {
			t.Errorf("percent went from %d to %d", updates[i-1].Percent, updates[i].Percent)
		}
	}

	var sawWriting bool
	for _, u := range updates {
		if u.Phase == core.PhaseWriting {
			sawWriting = true
			if u.Percent < 10 || u.Percent > 99 {
				t.Errorf("writing percent %d outside 10..99", u.Percent)
			}
		}
	}
	if !sawWriting {
		t.Error("no writing phase reported")
	}
}

func TestService_LoadFailPolicy(t *testing.T) {
	svc := newTestService(t, nil)
	dbPath := filepath.Join(t.TempDir(), "dest.db")

	if res := svc.Load(context.Background(), sqliteJob(t, svc, dbPath, core.PolicyReplace), nil); !res.Success {
		t.Fatalf("first Load() failed: %s", res.Error)
	}

	res := svc.Load(context.Background(), sqliteJob(t, svc, dbPath, core.PolicyFail), nil)
	if res.Success {
		t.Fatal("Load() with fail policy succeeded on existing table")
	}
	if res.ErrorCode != "LOAD001" {
		t.Errorf("ErrorCode = %q, want LOAD001", res.ErrorCode)
	}
	if !strings.Contains(res.Error, "already exists") {
		t.Errorf("Error = %q", res.Error)
	}
}

func TestService_StartLoad(t *testing.T) {
	svc := newTestService(t, nil)
	job := sqliteJob(t, svc, filepath.Join(t.TempDir(), "dest.db"), core.PolicyAppend)

	loadID, err := svc.StartLoad(context.Background(), job)
	if err != nil {
		t.Fatalf("StartLoad() error = %v", err)
	}

	ch, err := svc.SubscribeProgress(loadID)
	if err != nil {
		t.Fatalf("SubscribeProgress() error = %v", err)
	}

	var last core.LoadProgress
	timeout := time.After(10 * time.Second)
	for done := false; !done; {
		select {
		case p, ok := <-ch:
			if !ok {
				done = true
				break
			}
			last = p
		case <-timeout:
			t.Fatal("timed out waiting for progress to close")
		}
	}
	if last.Phase != core.PhaseComplete || last.Percent != 100 {
		t.Errorf("final progress = %+v", last)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := svc.GetLoadResult(ctx, loadID)
	if err != nil {
		t.Fatalf("GetLoadResult() error = %v", err)
	}
	if !res.Success || res.RowsWritten != 3 || res.LoadID != loadID {
		t.Errorf("result = %+v", res)
	}

	// A late subscriber still gets the final state.
	late, err := svc.SubscribeProgress(loadID)
	if err != nil {
		t.Fatalf("late SubscribeProgress() error = %v", err)
	}
	if p := <-late; p.Phase != core.PhaseComplete {
		t.Errorf("late subscriber got %+v", p)
	}
	if _, ok := <-late; ok {
		t.Error("late subscriber channel not closed")
	}
}

func TestService_StartLoadValidates(t *testing.T) {
	svc := newTestService(t, nil)
	job := sqliteJob(t, svc, filepath.Join(t.TempDir(), "dest.db"), core.PolicyReplace)
	job.Request.TableName = ""

	if _, err := svc.StartLoad(context.Background(), job); !errors.Is(err, core.ErrEmptyTableName) {
		t.Errorf("StartLoad() error = %v, want ErrEmptyTableName", err)
	}
	if got := svc.LimiterStatus().Active; got != 0 {
		t.Errorf("Active = %d after rejected load", got)
	}
}

func TestService_UnknownLoad(t *testing.T) {
	svc := newTestService(t, nil)

	if _, err := svc.GetLoadProgress("nope"); !errors.Is(err, core.ErrLoadNotFound) {
		t.Errorf("GetLoadProgress() error = %v", err)
	}
	if err := svc.CancelLoad("nope"); !errors.Is(err, core.ErrLoadNotFound) {
		t.Errorf("CancelLoad() error = %v", err)
	}
	if _, err := svc.SubscribeProgress("nope"); !errors.Is(err, core.ErrLoadNotFound) {
		t.Errorf("SubscribeProgress() error = %v", err)
	}
}

func TestService_TestConnection(t *testing.T) {
	svc := newTestService(t, nil)

	spec := core.ConnectionSpec{Kind: core.KindSQLite, Database: filepath.Join(t.TempDir(), "ping.db")}
	if err := svc.TestConnection(context.Background(), spec); err != nil {
		t.Errorf("TestConnection() error = %v", err)
	}

	spec.Kind = "oracle"
	if err := svc.TestConnection(context.Background(), spec); !errors.Is(err, core.ErrUnknownKind) {
		t.Errorf("TestConnection() error = %v, want ErrUnknownKind", err)
	}
}

func TestService_HistoryOmitsPassword(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	history, err := core.NewHistoryStore(ctx, filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatalf("NewHistoryStore() error = %v", err)
	}
	defer history.Close()

	svc := newTestService(t, history)
	dbPath := filepath.Join(dir, "dest.db")

	job := sqliteJob(t, svc, dbPath, core.PolicyReplace)
	job.ClientIP = "203.0.113.9"
	svc.Load(ctx, job, nil)
	svc.Load(ctx, sqliteJob(t, svc, dbPath, core.PolicyFail), nil)

	entries, err := svc.History(ctx, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("History() returned %d entries, want 2", len(entries))
	}

	statuses := map[string]int{}
	for _, e := range entries {
		statuses[e.Status]++
	}
	if statuses[core.StatusSucceeded] != 1 || statuses[core.StatusFailed] != 1 {
		t.Errorf("statuses = %v", statuses)
	}

	raw, err := json.Marshal(entries)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "hunter2") {
		t.Error("history contains the password")
	}
	if !strings.Contains(string(raw), "203.0.113.9") {
		t.Error("history missing client IP")
	}
}

func TestService_MalformedConnectionKeepsPasswordOut(t *testing.T) {
	ctx := context.Background()
	const password = "s3cretpw"

	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	history, err := core.NewHistoryStore(ctx, filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewHistoryStore() error = %v", err)
	}
	defer history.Close()
	svc := newTestService(t, history)

	tests := []struct {
		name string
		kind core.DBKind
		host string
		port string
	}{
		{"mysql space in host", core.KindMySQL, "bad host", ""},
		{"sqlserver space in host", core.KindSQLServer, "bad host", ""},
		{"postgres slash in host", core.KindPostgreSQL, "db/x", ""},
		{"mysql at sign in host", core.KindMySQL, "root@db", ""},
		{"sqlserver letters in port", core.KindSQLServer, "db", "14x3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := sqliteJob(t, svc, filepath.Join(t.TempDir(), "unused.db"), core.PolicyReplace)
			job.Conn = core.ConnectionSpec{
				Kind:     tt.kind,
				Host:     tt.host,
				Port:     tt.port,
				Username: "root",
				Password: password,
				Database: "db",
			}

			result := svc.Load(ctx, job, nil)
			if result.Success {
				t.Fatal("Load() succeeded")
			}
			if result.ErrorCode != "VAL006" || result.ErrorMessage != "A connection field is not valid" {
				t.Errorf("result = %q %q, want VAL006 (%s)", result.ErrorCode, result.ErrorMessage, result.Error)
			}
			if strings.Contains(result.Error, password) {
				t.Errorf("result error contains the password: %q", result.Error)
			}

			err := svc.TestConnection(ctx, job.Conn)
			if !errors.Is(err, core.ErrInvalidField) {
				t.Errorf("TestConnection() error = %v, want ErrInvalidField", err)
			}
			if err != nil && strings.Contains(err.Error(), password) {
				t.Errorf("TestConnection() error contains the password: %v", err)
			}
		})
	}

	entries, err := svc.History(ctx, 50)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	raw, _ := json.Marshal(entries)
	if strings.Contains(string(raw), password) {
		t.Error("history contains the password")
	}
	if strings.Contains(logs.String(), password) {
		t.Errorf("logs contain the password:\n%s", logs.String())
	}
}

func TestService_HistoryDisabled(t *testing.T) {
	svc := newTestService(t, nil)
	entries, err := svc.History(context.Background(), 10)
	if err != nil || entries != nil {
		t.Errorf("History() = %v, %v; want nil, nil", entries, err)
	}
	if svc.HistoryEnabled() {
		t.Error("HistoryEnabled() = true")
	}
}
