// Package export renders events for terminals and files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/radar-cli/internal/model"
)

// Format is an output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
	FormatXLSX  Format = "xlsx"
)

// ParseFormat validates a --format value. Empty means table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", eris.Errorf("export: unknown format %q (want table, json, csv or xlsx)", s)
	}
}

// columns defines the ordered tabular output columns.
var columns = []string{
	"Rank",
	"Hotness",
	"Validity",
	"Headline",
	"Instruments",
	"Sources",
	"Window Start",
	"Window End",
	"Why Now",
	"Dedup Key",
}

const tableHeadlineRunes = 80

// Write renders events to w. XLSX needs a file path; use WriteXLSX.
func Write(w io.Writer, f Format, events []model.Event) error {
	switch f {
	case FormatTable, "":
		return WriteTable(w, events)
	case FormatJSON:
		return WriteJSON(w, events)
	case FormatCSV:
		return WriteCSV(w, events)
	default:
		return eris.Errorf("export: format %q cannot be written to a stream", f)
	}
}

// WriteTable prints an aligned summary table.
func WriteTable(w io.Writer, events []model.Event) error {
	if len(events) == 0 {
		_, err := fmt.Fprintln(w, "No events in the window.")
		return eris.Wrap(err, "export: write table")
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tHOT\tVALID\tINSTRUMENTS\tSRC\tLATEST\tHEADLINE")
	_, _ = fmt.Fprintln(tw, "-\t---\t-----\t-----------\t---\t------\t--------")
	for i, ev := range events {
		_, _ = fmt.Fprintf(tw, "%d\t%.3f\t%.3f\t%s\t%d\t%s\t%s\n",
			i+1,
			ev.Hotness,
			ev.Validity,
			strings.Join(ev.InstrumentIDs, ","),
			len(ev.Sources),
			formatTime(ev.WindowEnd, "2006-01-02 15:04"),
			ellipsize(ev.Headline, tableHeadlineRunes),
		)
	}
	return eris.Wrap(tw.Flush(), "export: flush table")
}

// WriteJSON writes the full event records as an indented JSON array.
func WriteJSON(w io.Writer, events []model.Event) error {
	if events == nil {
		events = []model.Event{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return eris.Wrap(enc.Encode(events), "export: encode json")
}

// WriteCSV writes one row per event with a header row.
func WriteCSV(w io.Writer, events []model.Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for i, ev := range events {
		if err := cw.Write(row(i, ev)); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// row maps an event to the tabular columns.
func row(i int, ev model.Event) []string {
	return []string{
		strconv.Itoa(i + 1),
		strconv.FormatFloat(ev.Hotness, 'f', 3, 64),
		strconv.FormatFloat(ev.Validity, 'f', 3, 64),
		ev.Headline,
		strings.Join(ev.InstrumentIDs, " "),
		sourceNames(ev.Sources),
		formatTime(ev.WindowStart, time.RFC3339),
		formatTime(ev.WindowEnd, time.RFC3339),
		ev.WhyNow,
		ev.DedupKey,
	}
}

func sourceNames(refs []model.SourceRef) string {
	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.SourceName
	}
	return strings.Join(names, "; ")
}

func formatTime(epoch int64, layout string) string {
	return time.Unix(epoch, 0).UTC().Format(layout)
}

// ellipsize cuts s to n runes, marking the cut with "...".
func ellipsize(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 3 {
		return string([]rune(s)[:n])
	}
	return string([]rune(s)[:n-3]) + "..."
}
