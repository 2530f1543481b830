package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/radar-cli/internal/model"
)

// Sheet names in exported workbooks.
const (
	EventsSheet   = "Events"
	TimelineSheet = "Timeline"
)

var timelineColumns = []string{"Rank", "Dedup Key", "Time", "Source", "Title", "URL"}

// WriteXLSX saves events to a workbook at path: one summary row per event
// and one timeline row per constituent item.
func WriteXLSX(path string, events []model.Event) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet(EventsSheet)
	if err != nil {
		return eris.Wrap(err, "export: add events sheet")
	}
	addStringRow(summary, columns)
	for i, ev := range events {
		r := summary.AddRow()
		for j, v := range row(i, ev) {
			c := r.AddCell()
			switch j {
			case 0:
				c.SetInt(i + 1)
			case 1:
				c.SetFloat(ev.Hotness)
			case 2:
				c.SetFloat(ev.Validity)
			default:
				c.SetString(v)
			}
		}
	}

	timeline, err := f.AddSheet(TimelineSheet)
	if err != nil {
		return eris.Wrap(err, "export: add timeline sheet")
	}
	addStringRow(timeline, timelineColumns)
	for i, ev := range events {
		for _, e := range ev.Timeline {
			r := timeline.AddRow()
			r.AddCell().SetInt(i + 1)
			r.AddCell().SetString(ev.DedupKey)
			r.AddCell().SetString(formatTime(e.Time, "2006-01-02 15:04:05"))
			r.AddCell().SetString(e.Source)
			r.AddCell().SetString(e.Title)
			r.AddCell().SetString(e.URL)
		}
	}

	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

func addStringRow(sheet *xlsx.Sheet, values []string) {
	r := sheet.AddRow()
	for _, v := range values {
		r.AddCell().SetString(v)
	}
}
