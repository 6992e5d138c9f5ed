package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/sheetload/internal/config"
	"github.com/JonMunkholm/sheetload/internal/core"
	_ "github.com/JonMunkholm/sheetload/internal/core/dialects"
)

const ordersCSV = "id,customer,amount,notes\n1,acme,10.5,rush\n2,globex,7,\n3,initech,abc,late\n"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestApplyColumnFlags(t *testing.T) {
	base := func() core.ColumnPlan {
		return core.ColumnPlan{
			{Name: "id", Included: true, Type: core.TypeInt64, Inferred: core.TypeInt64},
			{Name: "amount", Included: true, Type: core.TypeString, Inferred: core.TypeString},
		}
	}

	tests := []struct {
		name    string
		exclude []string
		types   map[string]string
		wantErr string
		check   func(t *testing.T, p core.ColumnPlan)
	}{
		{
			name:    "exclude keeps type",
			exclude: []string{"amount"},
			check: func(t *testing.T, p core.ColumnPlan) {
				if p[1].Included || p[1].Type != core.TypeString {
					t.Errorf("amount = %+v", p[1])
				}
			},
		},
		{
			name:  "retype",
			types: map[string]string{"amount": "Float64"},
			check: func(t *testing.T, p core.ColumnPlan) {
				if !p[1].Included || p[1].Type != core.TypeFloat64 {
					t.Errorf("amount = %+v", p[1])
				}
			},
		},
		{name: "unknown excluded column", exclude: []string{"nope"}, wantErr: `unknown column "nope"`},
		{name: "unknown typed column", types: map[string]string{"nope": "bool"}, wantErr: `unknown column "nope"`},
		{name: "unknown type", types: map[string]string{"id": "decimal"}, wantErr: `unknown type "decimal"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := base()
			err := applyColumnFlags(plan, tt.exclude, tt.types)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, plan)
		})
	}
}

func TestInspectCommand(t *testing.T) {
	file := writeFile(t, "orders.csv", ordersCSV)

	out, _, err := run(t, "inspect", "--file", file)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, want := range []string{"3 rows, 4 columns", "customer", "int64", "globex", "Showing 3 of 3 rows"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLoadCommand(t *testing.T) {
	t.Setenv("SHEETLOAD_PASSWORD", "hunter2")
	file := writeFile(t, "orders.csv", ordersCSV)
	db := filepath.Join(t.TempDir(), "dest.db")

	out, progress, err := run(t, "load",
		"--file", file,
		"--kind", "sqlite",
		"--database", db,
		"--table", "orders",
		"--if-exists", "replace",
		"--exclude", "notes",
		"--type", "amount=float64",
	)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if !strings.Contains(out, "warning: Could not convert column 'amount' to float64") {
		t.Errorf("missing coercion warning:\n%s", out)
	}
	if !strings.Contains(out, "Data uploaded successfully: 3 rows written to orders (SQLite, replace)") {
		t.Errorf("missing success line:\n%s", out)
	}
	if !strings.Contains(progress, "100% complete") {
		t.Errorf("progress missing completion:\n%s", progress)
	}

	_, _, err = run(t, "load", "--file", file, "--kind", "sqlite", "--database", db,
		"--table", "orders", "--if-exists", "fail")
	if err == nil {
		t.Fatal("fail policy on an existing table succeeded")
	}
	if !strings.Contains(err.Error(), "LOAD001") {
		t.Errorf("error = %v, want LOAD001", err)
	}
}

func TestServiceUsesConfiguredODBCDriver(t *testing.T) {
	t.Setenv("SQLSERVER_ODBC_DRIVER", "ODBC Driver 18 for SQL Server")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}

	svc := (&app{cfg: cfg}).service()
	got, err := svc.ConnectionString(core.ConnectionSpec{Kind: core.KindSQLServer, Host: "mssql", Database: "dw"})
	if err != nil {
		t.Fatalf("ConnectionString() error = %v", err)
	}
	if !strings.Contains(got, "driver=ODBC+Driver+18+for+SQL+Server") {
		t.Errorf("ConnectionString() = %q, want the configured driver", got)
	}
}

func TestLoadCommand_RequiresFile(t *testing.T) {
	if _, _, err := run(t, "load", "--kind", "sqlite"); err == nil {
		t.Fatal("load without --file succeeded")
	}
}
