package cli

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetload/internal/config"
	"github.com/JonMunkholm/sheetload/internal/core"
)

type loadOptions struct {
	file        string
	kind        string
	host        string
	port        string
	user        string
	passwordEnv string
	database    string
	table       string
	ifExists    string
	exclude     []string
	types       map[string]string
}

func newLoadCmd(a *app) *cobra.Command {
	opts := &loadOptions{}

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load a CSV or Excel file into a database table",
		Long: `Load a CSV or Excel file into a database table.

Columns can be dropped with --exclude and retyped with --type. Columns that
cannot be converted are loaded unchanged and reported as warnings.

The password is read from the environment variable named by --password-env
so it never appears in the process list or shell history. Flags left unset
take the DEFAULT_* values of the server configuration.`,
		Example: `  SHEETLOAD_PASSWORD=secret sheetload load --file orders.csv \
    --kind postgresql --host db.internal --user loader --database sales \
    --table orders --if-exists append --exclude notes --type amount=float64`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.applyDefaults(cmd, a.cfg.Defaults)
			return runLoad(cmd, a.service(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.file, "file", "f", "", "CSV or Excel file (required)")
	f.StringVar(&opts.kind, "kind", "", "database kind: mysql, postgresql, sqlserver or sqlite")
	f.StringVar(&opts.host, "host", "", "database host")
	f.StringVar(&opts.port, "port", "", "database port (default: the kind's standard port)")
	f.StringVar(&opts.user, "user", "", "database user")
	f.StringVar(&opts.passwordEnv, "password-env", "SHEETLOAD_PASSWORD", "environment variable holding the password")
	f.StringVar(&opts.database, "database", "", "database name, or the file path for sqlite")
	f.StringVar(&opts.table, "table", "", "destination table")
	f.StringVar(&opts.ifExists, "if-exists", "", "replace, append or fail")
	f.StringSliceVar(&opts.exclude, "exclude", nil, "column to leave out (repeatable)")
	f.StringToStringVar(&opts.types, "type", nil, "column type override as COLUMN=TYPE (repeatable)")
	cmd.MarkFlagRequired("file")
	return cmd
}

// applyDefaults fills flags the user did not set from the form defaults.
// The port is left empty so the kind's default applies when the kind
// differs from the configured one.
func (o *loadOptions) applyDefaults(cmd *cobra.Command, d config.FormDefaults) {
	set := func(name string, dst *string, def string) {
		if !cmd.Flags().Changed(name) {
			*dst = def
		}
	}
	set("kind", &o.kind, d.Kind)
	set("host", &o.host, d.Host)
	set("user", &o.user, d.Username)
	set("database", &o.database, d.Database)
	set("table", &o.table, d.TableName)
	set("if-exists", &o.ifExists, d.Policy)
	if !cmd.Flags().Changed("port") && !cmd.Flags().Changed("kind") {
		o.port = d.Port
	}
}

func runLoad(cmd *cobra.Command, service *core.Service, o *loadOptions) error {
	data, err := os.ReadFile(o.file)
	if err != nil {
		return fmt.Errorf("read %s: %w", o.file, err)
	}

	kind, err := core.ParseDBKind(o.kind)
	if err != nil {
		return err
	}
	policy, err := core.ParseConflictPolicy(o.ifExists)
	if err != nil {
		return err
	}

	insp, err := service.Inspect(o.file, data)
	if err != nil {
		return err
	}
	plan := insp.Plan
	if err := applyColumnFlags(plan, o.exclude, o.types); err != nil {
		return err
	}
	prep := service.Prepare(insp.Table, plan)

	out := cmd.OutOrStdout()
	for _, w := range prep.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w.Message())
	}

	job := &core.LoadJob{
		Conn: core.ConnectionSpec{
			Kind:     kind,
			Host:     o.host,
			Port:     o.port,
			Username: o.user,
			Password: os.Getenv(o.passwordEnv),
			Database: o.database,
		},
		Request:   core.LoadRequest{TableName: o.table, Policy: policy},
		FileName:  o.file,
		Table:     prep.Table,
		Warnings:  prep.Warnings,
		UserAgent: "sheetload-cli",
	}

	result := service.Load(cmd.Context(), job, progressPrinter(cmd.ErrOrStderr()))
	if !result.Success {
		return fmt.Errorf("%s (%s): %s", result.ErrorMessage, result.ErrorCode, result.Error)
	}

	fmt.Fprintf(out, "Data uploaded successfully: %d rows written to %s (%s, %s) in %s.\n",
		result.RowsWritten, result.TableName, result.Kind.Label(), result.Policy,
		result.Duration.Round(time.Millisecond))
	return nil
}

// applyColumnFlags excludes and retypes columns of plan by name.
func applyColumnFlags(plan core.ColumnPlan, exclude []string, types map[string]string) error {
	for _, name := range exclude {
		s, ok := plan.Lookup(name)
		if !ok {
			return fmt.Errorf("--exclude: unknown column %q", name)
		}
		plan.Set(name, false, s.Type)
	}
	for name, typ := range types {
		s, ok := plan.Lookup(name)
		if !ok {
			return fmt.Errorf("--type: unknown column %q", name)
		}
		t := core.ColumnType(strings.ToLower(strings.TrimSpace(typ)))
		if !slices.Contains(core.ColumnTypes, t) {
			return fmt.Errorf("--type %s: unknown type %q", name, typ)
		}
		plan.Set(name, s.Included, t)
	}
	return nil
}

// progressPrinter writes one line per phase change or percent step.
func progressPrinter(w io.Writer) core.ProgressCallback {
	last := core.LoadProgress{Percent: -1}
	return func(p core.LoadProgress) {
		if p.Phase == last.Phase && p.Percent == last.Percent {
			return
		}
		last = p
		if p.Phase == core.PhaseWriting {
			fmt.Fprintf(w, "%3d%% %s (%d/%d rows)\n", p.Percent, p.Phase, p.RowsWritten, p.TotalRows)
			return
		}
		fmt.Fprintf(w, "%3d%% %s\n", p.Percent, p.Phase)
	}
}
