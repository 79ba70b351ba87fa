// Package shell provides an interactive and scripted command interface to
// a running data stream service.
//
// The Executor parses one command line at a time and writes its results to
// an io.Writer, so it runs the same under go-prompt, from a script, or in
// tests.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/xtxerr/datastreams/internal/errors"
	"github.com/xtxerr/datastreams/internal/storage"
	"github.com/xtxerr/datastreams/internal/storage/config"
	"github.com/xtxerr/datastreams/internal/storage/parquet"
	"github.com/xtxerr/datastreams/internal/storage/query"
	"github.com/xtxerr/datastreams/internal/storage/types"
	"github.com/xtxerr/datastreams/internal/wire"
)

// ErrExit is returned by Execute for the exit and quit commands.
var ErrExit = errors.New("exit")

type command struct {
	name    string
	usage   string
	help    string
	minArgs int
	run     func(e *Executor, args []string) error
}

// commands is filled in init because help refers back to it.
var commands []command

func init() {
	commands = []command{
		{"help", "help", "list commands", 0, (*Executor).help},
		{"deployments", "deployments", "list configured deployments", 0, (*Executor).deployments},
		{"open", "open <deployment> <role>=<data.type>...", "open the expected streams of a deployment", 2, (*Executor).open},
		{"load", "load <deployment> <file>", "append framed sequences from a file", 2, (*Executor).load},
		{"query", "query <deployment> <role>=<data.type> <from> [to]", "print stored sequences of a stream", 3, (*Executor).query},
		{"close", "close <deployment>...", "stop accepting data", 1, (*Executor).close},
		{"remove", "remove <deployment>...", "drop configuration and data", 1, (*Executor).remove},
		{"export", "export <deployment> [file]", "write a parquet snapshot", 1, (*Executor).export},
		{"import", "import <deployment> [file]", "restore a parquet snapshot", 1, (*Executor).importSnapshot},
		{"summary", "summary <deployment|file>", "summarize a snapshot with DuckDB", 1, (*Executor).summary},
		{"stats", "stats", "print service statistics", 0, (*Executor).stats},
		{"exit", "exit", "leave the shell", 0, nil},
		{"quit", "quit", "leave the shell", 0, nil},
	}
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// Executor runs shell commands against a service.
type Executor struct {
	svc       *storage.Service
	analytics *query.Service
	cfg       *config.Config
	out       io.Writer
}

// NewExecutor creates an executor. analytics may be nil, which disables
// the summary command.
func NewExecutor(svc *storage.Service, analytics *query.Service, cfg *config.Config, out io.Writer) *Executor {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Executor{svc: svc, analytics: analytics, cfg: cfg, out: out}
}

// Execute runs one command line. Blank lines and lines starting with # are
// ignored.
func (e *Executor) Execute(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	args, err := splitArgs(line)
	if err != nil {
		return err
	}

	c, ok := lookupCommand(args[0])
	if !ok {
		return fmt.Errorf("unknown command %q, try help", args[0])
	}
	if c.run == nil {
		return ErrExit
	}
	if len(args)-1 < c.minArgs {
		return fmt.Errorf("usage: %s", c.usage)
	}
	return c.run(e, args[1:])
}

// RunScript executes every line of r and stops at the first failing
// command. An exit command ends the script without error.
func (e *Executor) RunScript(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		err := e.Execute(scanner.Text())
		if errors.Is(err, ErrExit) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return scanner.Err()
}

// =============================================================================
// Commands
// =============================================================================

func (e *Executor) help(_ []string) error {
	w := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	for _, c := range commands {
		fmt.Fprintf(w, "%s\t%s\n", c.usage, c.help)
	}
	return w.Flush()
}

func (e *Executor) deployments(_ []string) error {
	w := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DEPLOYMENT\tSTATE\tSTREAMS\tSEQUENCES\tMEASUREMENTS")
	for _, id := range e.svc.Deployments() {
		cfg, ok := e.svc.Configuration(id)
		if !ok {
			continue
		}
		b, err := e.svc.Snapshot(id)
		if err != nil {
			continue
		}
		state := "open"
		if e.svc.IsClosed(id) {
			state = "closed"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", id, state, len(cfg.ExpectedStreams), b.Len(), b.PointCount())
	}
	return w.Flush()
}

func (e *Executor) open(args []string) error {
	id, err := parseDeployment(args[0])
	if err != nil {
		return err
	}

	cfg := types.DataStreamsConfiguration{DeploymentID: id}
	for _, arg := range args[1:] {
		role, dt, err := parseStreamArg(arg)
		if err != nil {
			return err
		}
		cfg.ExpectedStreams = append(cfg.ExpectedStreams, types.ExpectedStream{DeviceRole: role, DataType: dt})
	}

	if err := e.svc.OpenStreams(cfg); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "opened %d streams for %s\n", len(cfg.ExpectedStreams), id)
	return nil
}

func (e *Executor) load(args []string) error {
	id, err := parseDeployment(args[0])
	if err != nil {
		return err
	}

	f, err := os.Open(args[1])
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := wire.ReadBatch(wire.NewReaderSize(f, e.cfg.Wire.MaxMessageSize))
	if err != nil {
		return err
	}
	if err := e.svc.Append(id, b); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "appended %d sequences (%d measurements) to %s\n", b.Len(), b.PointCount(), id)
	return nil
}

func (e *Executor) query(args []string) error {
	id, err := parseDeployment(args[0])
	if err != nil {
		return err
	}
	role, dt, err := parseStreamArg(args[1])
	if err != nil {
		return err
	}
	stream, err := types.NewStreamID(id, role, dt)
	if err != nil {
		return err
	}

	from, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return errors.NewInvalidValue("from", args[2], "must be an integer")
	}
	var to *int64
	if len(args) > 3 {
		v, err := strconv.ParseInt(args[3], 10, 64)
		if err != nil {
			return errors.NewInvalidValue("to", args[3], "must be an integer")
		}
		to = &v
	}

	b, err := e.svc.Query(stream, from, to)
	if err != nil {
		return err
	}
	for _, s := range b.Sequences() {
		fmt.Fprintln(e.out, s)
	}
	fmt.Fprintf(e.out, "%d sequences, %d measurements\n", b.Len(), b.PointCount())
	return nil
}

func (e *Executor) close(args []string) error {
	ids, err := parseDeployments(args)
	if err != nil {
		return err
	}
	if err := e.svc.CloseStreams(ids...); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "closed %d deployments\n", len(ids))
	return nil
}

func (e *Executor) remove(args []string) error {
	ids, err := parseDeployments(args)
	if err != nil {
		return err
	}
	removed := e.svc.RemoveStreams(ids...)
	fmt.Fprintf(e.out, "removed %d deployments\n", len(removed))
	return nil
}

func (e *Executor) snapshotPath(id uuid.UUID, args []string) string {
	if len(args) > 1 {
		return args[1]
	}
	return e.cfg.SnapshotPath(id)
}

func (e *Executor) export(args []string) error {
	id, err := parseDeployment(args[0])
	if err != nil {
		return err
	}
	path := e.snapshotPath(id, args)

	rows, err := e.svc.Export(id, path, e.snapshotOptions())
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "exported %d rows to %s\n", rows, path)
	return nil
}

func (e *Executor) importSnapshot(args []string) error {
	id, err := parseDeployment(args[0])
	if err != nil {
		return err
	}
	path := e.snapshotPath(id, args)

	ok, err := e.svc.Import(id, path)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no snapshot at %s", path)
	}
	fmt.Fprintf(e.out, "imported %s\n", path)
	return nil
}

func (e *Executor) summary(args []string) error {
	if e.analytics == nil {
		return errors.New("analytics are not enabled")
	}

	path := args[0]
	if id, err := uuid.Parse(args[0]); err == nil {
		path = e.cfg.SnapshotPath(id)
	}

	summaries, err := e.analytics.StreamSummaries(context.Background(), path)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STREAM\tSEQUENCES\tPOINTS\tFIRST\tLAST")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", s.Stream, s.Sequences, s.Points, s.MinSequenceID, s.MaxSequenceID)
	}
	return w.Flush()
}

func (e *Executor) stats(_ []string) error {
	st := e.svc.Stats()

	w := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "deployments\t%d (open %d, closed %d)\n", st.Deployments, st.Open, st.Closed)
	fmt.Fprintf(w, "stored\t%d sequences, %d measurements\n", st.StoredSequences, st.StoredMeasurements)
	fmt.Fprintf(w, "appended\t%d sequences, %d measurements\n", st.SequencesAppended, st.MeasurementsAppended)
	fmt.Fprintf(w, "rejected\t%d\n", st.AppendsRejected)
	fmt.Fprintf(w, "queries\t%d\n", st.Queries)
	if st.SequenceLength.HasPercentiles {
		fmt.Fprintf(w, "sequence length\tp50=%.1f p90=%.1f p99=%.1f\n",
			st.SequenceLength.P50, st.SequenceLength.P90, st.SequenceLength.P99)
	}
	fmt.Fprintf(w, "uptime\t%s\n", st.Uptime.Round(time.Second))
	return w.Flush()
}

func (e *Executor) snapshotOptions() parquet.Options {
	opts := parquet.DefaultOptions()
	opts.Compression = parquet.ParseCompressionType(e.cfg.Snapshot.Compression)
	opts.RowGroupSize = e.cfg.Snapshot.RowGroupSize
	return opts
}

// =============================================================================
// Argument Parsing
// =============================================================================

// splitArgs splits a line on whitespace. Double quotes group words, so
// device roles may contain spaces.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		quoted  bool
		inArg   bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			inArg = true
		case !quoted && (r == ' ' || r == '\t'):
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}
		default:
			current.WriteRune(r)
			inArg = true
		}
	}
	if quoted {
		return nil, errors.New("unterminated quote")
	}
	if inArg {
		args = append(args, current.String())
	}
	return args, nil
}

func parseDeployment(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errors.NewInvalidValue("deployment", s, "must be a UUID")
	}
	return id, nil
}

func parseDeployments(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(args))
	for i, a := range args {
		id, err := parseDeployment(a)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// parseStreamArg parses "<role>=<namespace.name>".
func parseStreamArg(s string) (string, types.DataType, error) {
	i := strings.LastIndex(s, "=")
	if i <= 0 {
		return "", types.DataType{}, errors.NewInvalidValue("stream", s, "expected <role>=<namespace.name>")
	}
	dt, err := types.ParseDataType(s[i+1:])
	if err != nil {
		return "", types.DataType{}, err
	}
	return s[:i], dt, nil
}
