package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"

	"notedb/internal/app"
	"notedb/internal/config"
	"notedb/internal/domain"
	"notedb/internal/view"
)

var errUsage = errors.New("wrong number of arguments")

type opener func() (*app.App, error)

// withApp opens the app for the duration of fn.
func withApp(open opener, fn func(*app.App) error) error {
	a, err := open()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func commands(cfg config.Config, open opener) []*Command {
	return []*Command{
		serveCmd(open),
		databasesCmd(open),
		renderCmd(open),
		importCmd(open),
		importsCmd(open),
		printConfigCmd(cfg),
	}
}

// ── serve ──────────────────────────────────────────────────

func serveCmd(open opener) *Command {
	return &Command{
		Flags: flag.NewFlagSet("serve", flag.ContinueOnError),
		Usage: "serve",
		Short: "Serve the database tools over stdio (MCP)",
		Long: "Serve the database tools over stdio using the Model Context Protocol.\n" +
			"Scheduled and file-watch imports run while the server is up.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 0 {
				return errUsage
			}
			return withApp(open, func(a *app.App) error {
				return a.Serve(ctx, Version)
			})
		},
	}
}

// ── databases ──────────────────────────────────────────────

func databasesCmd(open opener) *Command {
	fs := flag.NewFlagSet("databases", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "Print JSON")

	return &Command{
		Flags: fs,
		Usage: "databases [--json]",
		Short: "List databases",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return withApp(open, func(a *app.App) error {
				infos, err := a.Databases.ListDatabases(ctx)
				if err != nil {
					return err
				}
				if *asJSON {
					return printJSON(o, infos)
				}
				if len(infos) == 0 {
					o.Println("no databases")
					return nil
				}
				for _, info := range infos {
					o.Println(info.String())
				}
				return nil
			})
		},
	}
}

// ── render ─────────────────────────────────────────────────

func renderCmd(open opener) *Command {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	dbArg := fs.String("db", "", "Database id or name (required)")
	mode := fs.String("mode", "", "table, board or calendar (default: the view's kind)")
	viewID := fs.String("view", "", "Persisted view id")
	groupBy := fs.String("group-by", "", "Select column id for board lanes")
	dateCol := fs.String("date-column", "", "Date column id for the calendar")
	month := fs.String("month", "", "Calendar month as YYYY-MM")
	asJSON := fs.Bool("json", false, "Print JSON")

	return &Command{
		Flags: fs,
		Usage: "render --db <id> [flags]",
		Short: "Render a database as a table, board or calendar",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if *dbArg == "" {
				return errors.New("--db is required")
			}
			return withApp(open, func(a *app.App) error {
				dbID, err := resolveDatabase(ctx, a, *dbArg)
				if err != nil {
					return err
				}
				cfg := view.BlockConfig{
					DatabaseID: dbID,
					Mode:       domain.ViewKind(*mode),
					ViewID:     *viewID,
					GroupBy:    *groupBy,
					DateColumn: *dateCol,
					Month:      *month,
				}
				if err := cfg.Validate(); err != nil {
					return err
				}
				sess, err := a.Sessions.Get(ctx, dbID)
				if err != nil {
					return err
				}
				rendered, err := view.RenderBlock(ctx, sess, cfg)
				if err != nil {
					return err
				}
				if *asJSON {
					return printJSON(o, rendered)
				}
				printRendered(o, sess.Schema(), rendered)
				return nil
			})
		},
	}
}

// resolveDatabase accepts an id or a case-insensitive name.
func resolveDatabase(ctx context.Context, a *app.App, key string) (string, error) {
	infos, err := a.Databases.ListDatabases(ctx)
	if err != nil {
		return "", err
	}
	for _, info := range infos {
		if info.ID == key {
			return info.ID, nil
		}
	}
	for _, info := range infos {
		if strings.EqualFold(info.Name, key) {
			return info.ID, nil
		}
	}
	return "", fmt.Errorf("database %q: %w", key, domain.ErrDatabaseNotFound)
}

// ── import ─────────────────────────────────────────────────

func importCmd(open opener) *Command {
	return &Command{
		Flags: flag.NewFlagSet("import", flag.ContinueOnError),
		Usage: "import <job>",
		Short: "Run a configured import job once",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errUsage
			}
			return withApp(open, func(a *app.App) error {
				result, err := a.Imports.RunJob(ctx, args[0])
				if err != nil {
					return err
				}
				o.Printf("%s: %s, read %d, wrote %d in %s\n",
					result.Job, result.Status, result.RowsRead, result.RowsWritten, result.Duration)
				return nil
			})
		},
	}
}

func importsCmd(open opener) *Command {
	fs := flag.NewFlagSet("imports", flag.ContinueOnError)
	history := fs.String("history", "", "Show recent runs of this job")
	limit := fs.Int("limit", 10, "Number of runs with --history")

	return &Command{
		Flags: fs,
		Usage: "imports [--history <job>]",
		Short: "List import jobs or a job's run history",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return withApp(open, func(a *app.App) error {
				if *history != "" {
					logs, err := a.Imports.ListRunLogs(ctx, *history, *limit)
					if err != nil {
						return err
					}
					for _, l := range logs {
						line := fmt.Sprintf("%s  %-7s read %d, wrote %d", l.StartedAt.Format("2006-01-02 15:04:05"), l.Status, l.RowsRead, l.RowsWritten)
						if l.Error != "" {
							line += "  " + l.Error
						}
						o.Println(line)
					}
					return nil
				}
				jobs := a.Imports.ListJobs()
				if len(jobs) == 0 {
					o.Println("no import jobs configured")
					return nil
				}
				for _, j := range jobs {
					trigger := j.TriggerType
					if trigger == "" {
						trigger = "manual"
					}
					if j.TriggerConfig != "" {
						trigger += " " + j.TriggerConfig
					}
					if !j.Enabled {
						trigger += " (disabled)"
					}
					o.Printf("%-20s %-12s -> %-20s %-8s %s\n", j.Name, j.SourceType, j.Target, j.SyncMode, trigger)
				}
				return nil
			})
		},
	}
}

// ── print-config ───────────────────────────────────────────

func printConfigCmd(cfg config.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show the resolved configuration and where it came from",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			o.Println("data_dir:", cfg.DataDirAbs)
			o.Println("backend:", cfg.Backend)
			o.Println("debug:", cfg.Debug)
			o.Println("imports:", len(cfg.Imports))
			o.Println("connections:", len(cfg.Connections))
			if cfg.Sources.Global != "" {
				o.Println("global config:", cfg.Sources.Global)
			}
			if cfg.Sources.Project != "" {
				o.Println("project config:", cfg.Sources.Project)
			}
			return nil
		},
	}
}

func printJSON(o *IO, v any) error {
	enc := json.NewEncoder(o.Out())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
