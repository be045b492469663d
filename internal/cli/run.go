package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"notedb/internal/app"
	"notedb/internal/config"
)

// Version is reported by the tool server. Set with -ldflags at build time.
var Version = "dev"

type globalFlags struct {
	workDir    string
	configPath string
	dataDir    string
	backend    string
	debug      bool
	debugSet   bool
	remaining  []string
}

func parseGlobalFlags(args []string) (globalFlags, error) {
	var g globalFlags

	fs := flag.NewFlagSet("notedb", flag.ContinueOnError)
	fs.SetOutput(&strings.Builder{})
	fs.SetInterspersed(false)
	fs.StringVarP(&g.workDir, "cwd", "C", "", "Run as if started in `dir`")
	fs.StringVarP(&g.configPath, "config", "c", "", "Use this config file instead of .notedb.json")
	fs.StringVar(&g.dataDir, "data-dir", "", "Override the data directory")
	fs.StringVar(&g.backend, "backend", "", "Override the backend (sqlite or markdown)")
	fs.BoolVar(&g.debug, "debug", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return globalFlags{}, err
	}
	g.debugSet = fs.Changed("debug")
	g.remaining = fs.Args()
	return g, nil
}

// Run is the main entry point. Returns exit code.
func Run(out, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	o := NewIO(out, errOut)

	var rest []string
	if len(args) > 1 {
		rest = args[1:]
	}
	g, err := parseGlobalFlags(rest)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(o, nil)
			return 0
		}
		o.ErrPrintln("error:", err)
		return 1
	}

	in := config.LoadInput{
		WorkDir:    g.workDir,
		ConfigPath: g.configPath,
		DataDir:    g.dataDir,
		Backend:    g.backend,
		Env:        env,
	}
	if g.debugSet {
		in.Debug = &g.debug
	}
	cfg, err := config.Load(in)
	if err != nil {
		o.ErrPrintln("error:", err)
		return 1
	}

	cmds := commands(cfg, func() (*app.App, error) { return app.New(cfg) })

	if len(g.remaining) == 0 || g.remaining[0] == "-h" || g.remaining[0] == "--help" || g.remaining[0] == "help" {
		printUsage(o, cmds)
		return 0
	}

	name := g.remaining[0]
	var cmd *Command
	for _, c := range cmds {
		if c.Name() == name {
			cmd = c
			break
		}
	}
	if cmd == nil {
		o.ErrPrintln("error: unknown command:", name)
		printUsage(NewIO(errOut, errOut), cmds)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return cmd.Run(ctx, o, g.remaining[1:])
}

func printUsage(o *IO, cmds []*Command) {
	o.Println("notedb: typed databases for notes, with table, board and calendar views")
	o.Println()
	o.Println("Usage: notedb [global flags] <command> [flags]")
	o.Println()
	o.Println("Global flags:")
	o.Println("  -C, --cwd <dir>           Run as if started in <dir>")
	o.Println("  -c, --config <file>       Use this config file instead of .notedb.json")
	o.Println("      --data-dir <dir>      Override the data directory")
	o.Println("      --backend <name>      Override the backend (sqlite or markdown)")
	o.Println("      --debug               Enable debug logging")
	if len(cmds) == 0 {
		return
	}
	o.Println()
	o.Println("Commands:")
	for _, c := range cmds {
		o.Println(c.HelpLine())
	}
}
