package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/telhawk-systems/cardvault/vault/internal/models"
	"github.com/telhawk-systems/cardvault/vault/internal/rollback"
)

// Output formats accepted by --output.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warnColor    = color.New(color.FgYellow)
	headerColor  = color.New(color.FgWhite, color.Bold)
)

func stateColor(s models.RollbackState) *color.Color {
	switch s {
	case models.RollbackNormal:
		return successColor
	case models.RollbackActive, models.RollbackInitiated:
		return warnColor
	default:
		return errorColor
	}
}

// printer renders command results in the format chosen by --output.
type printer struct {
	w      io.Writer
	format string
}

func newPrinter(w io.Writer, format string) (*printer, error) {
	switch format {
	case outputTable, outputJSON, outputYAML:
		return &printer{w: w, format: format}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

// structured writes v as JSON or YAML. It reports false for table output.
func (p *printer) structured(v any) (bool, error) {
	switch p.format {
	case outputJSON:
		return true, writeJSON(p.w, v)
	case outputYAML:
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}

func (p *printer) status(s rollback.Status) error {
	if ok, err := p.structured(s); ok {
		return err
	}
	fmt.Fprintf(p.w, "State:    %s\n", stateColor(s.State).Sprint(s.State))
	fmt.Fprintf(p.w, "History:  %d event(s)\n", s.HistoryCount)
	if ev := s.LastEvent; ev != nil {
		fmt.Fprintf(p.w, "Last:     %s (%s) at %s\n", ev.Reason, ev.ID, ev.Timestamp.UTC().Format(time.RFC3339))
		if ev.Error != "" {
			errorColor.Fprintf(p.w, "Error:    %s\n", ev.Error)
		}
	}
	return nil
}

func (p *printer) history(events []models.RollbackEvent) error {
	if ok, err := p.structured(map[string]any{"events": events}); ok {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(p.w, "No rollback events")
		return nil
	}
	t := newTable("ID", "Reason", "State", "Steps", "Timestamp")
	for _, ev := range events {
		t.addRow([]cell{
			{text: ev.ID},
			{text: ev.Reason},
			{text: string(ev.State), color: stateColor(ev.State)},
			{text: stepSummary(ev.Steps)},
			{text: ev.Timestamp.UTC().Format(time.RFC3339)},
		})
	}
	t.render(p.w)
	return nil
}

// outcome prints a trigger or restore result.
func (p *printer) outcome(v any, action string, success bool, ev *models.RollbackEvent, errMsg string) error {
	if ok, err := p.structured(v); ok {
		return err
	}
	if !success {
		errorColor.Fprintf(p.w, "✗ %s failed: %s\n", action, errMsg)
	} else {
		successColor.Fprintf(p.w, "✓ %s succeeded\n", action)
	}
	if ev != nil {
		for _, s := range ev.Steps {
			mark := successColor.Sprint("ok")
			if !s.Success {
				mark = errorColor.Sprint("failed")
			}
			fmt.Fprintf(p.w, "  %-28s %s\n", s.Step, mark)
		}
	}
	return nil
}

func stepSummary(steps []models.StepResult) string {
	ok := 0
	for _, s := range steps {
		if s.Success {
			ok++
		}
	}
	return strconv.Itoa(ok) + "/" + strconv.Itoa(len(steps))
}

type cell struct {
	text  string
	color *color.Color
}

type table struct {
	headers []string
	rows    [][]cell
}

func newTable(headers ...string) *table {
	return &table{headers: headers}
}

func (t *table) addRow(row []cell) {
	t.rows = append(t.rows, row)
}

// render pads on the plain text so colour escapes do not skew the columns.
func (t *table) render(w io.Writer) {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, c := range row {
			widths[i] = max(widths[i], len(c.text))
		}
	}

	for i, h := range t.headers {
		fmt.Fprint(w, headerColor.Sprint(pad(h, widths[i])), "  ")
	}
	fmt.Fprintln(w)
	for i := range t.headers {
		fmt.Fprint(w, strings.Repeat("-", widths[i]), "  ")
	}
	fmt.Fprintln(w)
	for _, row := range t.rows {
		for i, c := range row {
			text := pad(c.text, widths[i])
			if c.color != nil {
				text = c.color.Sprint(text)
			}
			fmt.Fprint(w, text, "  ")
		}
		fmt.Fprintln(w)
	}
}

func pad(s string, width int) string {
	return s + strings.Repeat(" ", width-len(s))
}
