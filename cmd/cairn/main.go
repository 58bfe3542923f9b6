// Command cairn is the CLI front end for the Cairn embeddable relational
// engine: run a batch file, drop into an interactive REPL, serve it over
// HTTP/WebSocket, or back up/restore its on-disk file.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/mattn/go-isatty"

	"github.com/cairndb/cairn/core/backup"
	"github.com/cairndb/cairn/core/db"
	"github.com/cairndb/cairn/internal/config"
	"github.com/cairndb/cairn/internal/dsn"
	"github.com/cairndb/cairn/internal/server"
)

const version = "0.1.0"

// CLI defines cairn's command-line interface.
var CLI struct {
	DSN string `help:"Storage connection string." default:"file:cairn.db"`

	Run     RunCmd     `cmd:"" help:"Run a batch of SQL statements from a file or stdin."`
	Repl    ReplCmd    `cmd:"" help:"Start an interactive batch REPL."`
	Serve   ServeCmd   `cmd:"" help:"Serve the database over HTTP (POST /batch) and WebSocket (/ws)."`
	Backup  BackupCmd  `cmd:"" help:"Archive the database file into a tar.xz backup."`
	Restore RestoreCmd `cmd:"" help:"Restore a database file from a tar.xz backup."`
	Version VersionCmd `cmd:"" help:"Print version information."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("cairn"),
		kong.Description("Cairn - an embeddable relational database with a SQL-like batch language"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}

// RunCmd runs one batch (from the file named by its positional argument, or
// stdin if omitted) and prints every row it selects.
type RunCmd struct {
	File string `arg:"" optional:"" help:"Path to a .sql batch file; omit to read from stdin."`
}

func (c *RunCmd) Run() error {
	var source []byte
	var err error
	if c.File != "" {
		source, err = os.ReadFile(c.File)
	} else {
		source, err = readAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("read batch source: %w", err)
	}

	database, err := db.Open(CLI.DSN)
	if err != nil {
		return fmt.Errorf("open %s: %w", CLI.DSN, err)
	}
	defer database.Close()

	req := db.NewBasicRequest()
	req.Method = "RUN"
	if err := database.RunBatch(string(source), req); err != nil {
		return err
	}
	printRows(req)
	return nil
}

// ReplCmd reads stdin line by line, collecting lines until one holds only
// GO; it then runs the collected text as one batch and prints its rows.
// Lines after the last GO are not run when input ends. The prompt banner
// is suppressed when stdin isn't a terminal (isatty).
type ReplCmd struct{}

func (c *ReplCmd) Run() error {
	database, err := db.Open(CLI.DSN)
	if err != nil {
		return fmt.Errorf("open %s: %w", CLI.DSN, err)
	}
	defer database.Close()

	interactive := isatty.IsTerminal(os.Stdin.Fd())
	scanner := bufio.NewScanner(os.Stdin)

	var buf strings.Builder
	prompt := func() {
		if interactive {
			fmt.Print("cairn> ")
		}
	}

	prompt()
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')

		if strings.TrimSpace(strings.ToUpper(line)) != "GO" {
			continue
		}

		req := db.NewBasicRequest()
		req.Method = "RUN"
		if err := database.RunBatch(buf.String(), req); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		} else {
			printRows(req)
		}
		buf.Reset()
		prompt()
	}
	return scanner.Err()
}

// ServeCmd starts internal/server's HTTP+WebSocket host.
type ServeCmd struct {
	Listen string `help:"Address to listen on." default:":8080"`
}

func (c *ServeCmd) Run() error {
	database, err := db.Open(CLI.DSN)
	if err != nil {
		return fmt.Errorf("open %s: %w", CLI.DSN, err)
	}
	defer database.Close()

	cfg := config.FromEnvironment(config.New(config.WithDSN(CLI.DSN), config.WithListenAddr(c.Listen)))
	return server.Start(database, cfg)
}

// BackupCmd archives the database file (and its .wal, if present).
type BackupCmd struct {
	Out string `arg:"" help:"Path to write the tar.xz backup to."`
}

func (c *BackupCmd) Run() error {
	d, err := dsn.Parse(CLI.DSN)
	if err != nil {
		return err
	}
	manifest, err := backup.Create(d.Path, c.Out)
	if err != nil {
		return err
	}
	fmt.Println(backup.Summary(manifest))
	return nil
}

// RestoreCmd extracts a tar.xz backup into a directory.
type RestoreCmd struct {
	Archive string `arg:"" help:"Path to the tar.xz backup to restore."`
	Dest    string `arg:"" help:"Directory to restore the database file(s) into."`
}

func (c *RestoreCmd) Run() error {
	manifest, err := backup.Restore(c.Archive, c.Dest)
	if err != nil {
		return err
	}
	fmt.Println(backup.Summary(manifest))
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("cairn version %s\n", version)
	return nil
}

func printRows(req *db.BasicRequest) {
	for _, row := range req.Rows() {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprintf("%v", v)
		}
		fmt.Println(strings.Join(cells, "\t"))
	}
}

func readAll(f *os.File) ([]byte, error) {
	var buf strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		buf.WriteString(scanner.Text())
		buf.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}
