package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/rlch/relgraph/inference"
)

// Formatter renders pipeline events and results.
type Formatter interface {
	Format(event Event, result *Result) error
	Summary(result *Result) error
}

// Summarizer renders a final summary once a run ends.
type Summarizer interface {
	Summary(result *Result) error
}

// FormatHandler is a Handler that delegates to a Formatter.
type FormatHandler struct {
	formatter Formatter
	stderr    io.Writer
}

// NewFormatHandler creates a handler that formats events.
func NewFormatHandler(f Formatter, stderr io.Writer) *FormatHandler {
	return &FormatHandler{formatter: f, stderr: stderr}
}

// Event formats the event.
func (h *FormatHandler) Event(_ context.Context, event Event, result *Result) error {
	return h.formatter.Format(event, result)
}

// Err writes to stderr.
func (h *FormatHandler) Err(text string) error {
	_, err := h.stderr.Write([]byte(text + "\n"))

	return err
}

// Summary renders the final summary.
func (h *FormatHandler) Summary(result *Result) error {
	return h.formatter.Summary(result)
}

// -----------------------------------------------------------------------------
// Text Formatter
// -----------------------------------------------------------------------------

// TextFormatter prints one line per finished stage and a short summary.
// Colour is used only when writing to a terminal.
type TextFormatter struct {
	w     io.Writer
	color bool

	ok, fail, skip, warn, dim, title lipgloss.Style
}

// NewTextFormatter creates a text formatter. Colour is enabled when w is a
// terminal and NO_COLOR is unset.
func NewTextFormatter(w io.Writer) *TextFormatter {
	return newTextFormatter(w, IsTerminal(w) && os.Getenv("NO_COLOR") == "")
}

func newTextFormatter(w io.Writer, color bool) *TextFormatter {
	r := lipgloss.NewRenderer(w)

	return &TextFormatter{
		w:     w,
		color: color,
		ok:    r.NewStyle().Foreground(lipgloss.Color("#00BA7C")).Bold(true),
		fail:  r.NewStyle().Foreground(lipgloss.Color("#F4212E")).Bold(true),
		skip:  r.NewStyle().Foreground(lipgloss.Color("#8899A6")),
		warn:  r.NewStyle().Foreground(lipgloss.Color("#FFAD1F")),
		dim:   r.NewStyle().Foreground(lipgloss.Color("#8899A6")),
		title: r.NewStyle().Bold(true),
	}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (t *TextFormatter) render(s lipgloss.Style, text string) string {
	if !t.color {
		return text
	}

	return s.Render(text)
}

// Format prints terminal events and advisories.
func (t *TextFormatter) Format(event Event, _ *Result) error {
	var err error

	switch event.Action {
	case ActionDone:
		_, err = fmt.Fprintf(t.w, "%s %-8s %s %s\n",
			t.render(t.ok, "✓"), event.Stage, event.Detail,
			t.render(t.dim, "("+event.Elapsed.Round(time.Millisecond).String()+")"))
	case ActionFail:
		_, err = fmt.Fprintf(t.w, "%s %-8s %v\n", t.render(t.fail, "✗"), event.Stage, event.Error)
	case ActionSkip:
		_, err = fmt.Fprintf(t.w, "%s %-8s %s\n", t.render(t.skip, "-"), event.Stage, t.render(t.dim, event.Detail))
	case ActionAdvisory:
		if event.Advisory == nil {
			return nil
		}

		mark := t.render(t.dim, "i")
		if event.Advisory.Severity == inference.SeverityWarning {
			mark = t.render(t.warn, "!")
		}

		_, err = fmt.Fprintf(t.w, "  %s %s\n", mark, event.Advisory)
	case ActionRun:
	}

	return err
}

// Summary prints the overall status.
func (t *TextFormatter) Summary(result *Result) error {
	status := t.render(t.ok, "OK")
	if !result.Ok() {
		status = t.render(t.fail, "FAILED")
	}

	line := fmt.Sprintf("%s %d stages, %d done, %d failed, %d skipped",
		status, result.Done+result.Failed+result.Skipped, result.Done, result.Failed, result.Skipped)

	if n := len(result.Advisories); n > 0 {
		line += fmt.Sprintf(", %d advisories", n)
	}

	if gs := result.Graph; gs != nil {
		st := gs.Stats()
		line += fmt.Sprintf(", %d constraints, %d indexes", st.Constraints, st.Indexes)
	}

	if result.Migration != nil && !result.Migration.DryRun {
		nodes, rels := result.Migrated()
		line += fmt.Sprintf(", %d nodes, %d relationships migrated", nodes, rels)
	}

	_, err := fmt.Fprintf(t.w, "\n%s %s\n", line, t.render(t.dim, "in "+result.Elapsed().Round(time.Millisecond).String()))

	return err
}

// -----------------------------------------------------------------------------
// Verbose Formatter
// -----------------------------------------------------------------------------

// VerboseFormatter prints every event as it occurs.
type VerboseFormatter struct {
	w io.Writer
}

// NewVerboseFormatter creates a verbose formatter.
func NewVerboseFormatter(w io.Writer) *VerboseFormatter {
	return &VerboseFormatter{w: w}
}

// Format prints each event as it occurs.
func (v *VerboseFormatter) Format(event Event, _ *Result) error {
	switch event.Action {
	case ActionRun:
		_, _ = fmt.Fprintf(v.w, "=== RUN   %s\n", event.Stage)
	case ActionDone:
		_, _ = fmt.Fprintf(v.w, "--- DONE: %s (%s)\n", event.Stage, event.Elapsed)

		if event.Detail != "" {
			_, _ = fmt.Fprintf(v.w, "    %s\n", event.Detail)
		}
	case ActionFail:
		_, _ = fmt.Fprintf(v.w, "--- FAIL: %s (%s)\n", event.Stage, event.Elapsed)
		_, _ = fmt.Fprintf(v.w, "    %v\n", event.Error)
	case ActionSkip:
		_, _ = fmt.Fprintf(v.w, "--- SKIP: %s (%s)\n", event.Stage, event.Detail)
	case ActionAdvisory:
		if event.Advisory != nil {
			_, _ = fmt.Fprintf(v.w, "    [%s] %s\n", event.Advisory.Severity, event.Advisory)
		}
	}

	return nil
}

// Summary prints the final results.
func (v *VerboseFormatter) Summary(result *Result) error {
	_, _ = fmt.Fprintln(v.w)

	status := "OK"
	if !result.Ok() {
		status = "FAIL"
	}

	_, _ = fmt.Fprintf(v.w, "%s\n", status)
	_, _ = fmt.Fprintf(v.w, "  %d done, %d failed, %d skipped, %d advisories\n",
		result.Done,
		result.Failed,
		result.Skipped,
		len(result.Advisories),
	)
	_, _ = fmt.Fprintf(v.w, "  elapsed: %s\n", result.Elapsed().Round(time.Millisecond))

	return nil
}

// -----------------------------------------------------------------------------
// JSON Formatter
// -----------------------------------------------------------------------------

// JSONFormatter outputs newline-delimited JSON events.
type JSONFormatter struct {
	enc *json.Encoder
}

// NewJSONFormatter creates a JSON formatter.
func NewJSONFormatter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{enc: json.NewEncoder(w)}
}

type jsonEvent struct {
	Time     string              `json:"time"`
	Action   string              `json:"action"`
	Stage    string              `json:"stage"`
	Elapsed  float64             `json:"elapsed,omitempty"`
	Detail   string              `json:"detail,omitempty"`
	Error    string              `json:"error,omitempty"`
	Advisory *inference.Advisory `json:"advisory,omitempty"`
}

// Format outputs a JSON event.
func (j *JSONFormatter) Format(event Event, _ *Result) error {
	je := jsonEvent{
		Time:     event.Time.Format(time.RFC3339Nano),
		Action:   string(event.Action),
		Stage:    string(event.Stage),
		Detail:   event.Detail,
		Advisory: event.Advisory,
	}

	if event.Action.IsTerminal() {
		je.Elapsed = event.Elapsed.Seconds()
	}

	if event.Error != nil {
		je.Error = event.Error.Error()
	}

	return j.enc.Encode(je)
}

type jsonSummary struct {
	Action     string             `json:"action"`
	Done       int                `json:"done"`
	Failed     int                `json:"failed"`
	Skipped    int                `json:"skipped"`
	Advisories int                `json:"advisories"`
	Applied    int                `json:"applied"`
	Nodes      int                `json:"nodes,omitempty"`
	Rels       int                `json:"relationships,omitempty"`
	Timings    map[string]float64 `json:"timings"`
	Elapsed    float64            `json:"elapsed"`
	Ok         bool               `json:"ok"`
}

// Summary outputs the final JSON summary.
func (j *JSONFormatter) Summary(result *Result) error {
	timings := make(map[string]float64)
	for s, d := range result.Timings() {
		timings[string(s)] = d.Seconds()
	}

	nodes, rels := result.Migrated()

	return j.enc.Encode(jsonSummary{
		Action:     "summary",
		Done:       result.Done,
		Failed:     result.Failed,
		Skipped:    result.Skipped,
		Advisories: len(result.Advisories),
		Applied:    result.Applied(),
		Nodes:      nodes,
		Rels:       rels,
		Timings:    timings,
		Elapsed:    result.Elapsed().Seconds(),
		Ok:         result.Ok(),
	})
}

// Formatter names accepted by NewFormatter.
const (
	FormatText    = "text"
	FormatVerbose = "verbose"
	FormatJSON    = "json"
)

// NewFormatter creates a formatter by name.
func NewFormatter(name string, w io.Writer) Formatter { //nolint:ireturn
	switch name {
	case FormatVerbose:
		return NewVerboseFormatter(w)
	case FormatJSON:
		return NewJSONFormatter(w)
	default:
		return NewTextFormatter(w)
	}
}
