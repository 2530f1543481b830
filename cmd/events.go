package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/radar-cli/internal/export"
	"github.com/sells-group/radar-cli/internal/model"
)

var (
	eventsHours    int
	eventsTop      int
	eventsFormat   string
	eventsOutput   string
	eventsNoIngest bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Build and print the hottest events for a time window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		format, err := export.ParseFormat(eventsFormat)
		if err != nil {
			return err
		}
		if format == export.FormatXLSX && eventsOutput == "" {
			return eris.New("events: --output is required for xlsx")
		}

		if eventsNoIngest {
			cfg.Pipeline.Ingest = false
		}

		env, err := initRadar(ctx, "events")
		if err != nil {
			return err
		}
		defer env.Close()

		hours, top := eventsWindow(eventsHours, eventsTop)
		events, err := env.Pipeline.BuildEvents(ctx, hours, top)
		if err != nil {
			return eris.Wrap(err, "events: build")
		}

		return writeEvents(cmd.OutOrStdout(), format, eventsOutput, events)
	},
}

// eventsWindow resolves flag values against config. Zero hours and a
// negative top mean "use the configured value".
func eventsWindow(hours, top int) (int, int) {
	if hours <= 0 {
		hours = cfg.Pipeline.WindowHours
	}
	if top < 0 {
		top = cfg.Pipeline.TopK
	}
	return hours, top
}

// writeEvents writes to path when set, otherwise to stdout.
func writeEvents(stdout io.Writer, format export.Format, path string, events []model.Event) error {
	if format == export.FormatXLSX {
		if err := export.WriteXLSX(path, events); err != nil {
			return err
		}
		zap.L().Info("events written", zap.String("path", path), zap.Int("events", len(events)))
		return nil
	}

	if path == "" {
		return export.Write(stdout, format, events)
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "events: create %s", path)
	}
	if err := export.Write(f, format, events); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "events: close %s", path)
	}
	zap.L().Info("events written", zap.String("path", path), zap.Int("events", len(events)))
	return nil
}

func init() {
	eventsCmd.Flags().IntVar(&eventsHours, "hours", 0, "window size in hours (default from config)")
	eventsCmd.Flags().IntVar(&eventsTop, "top", -1, "number of events before overshoot (default from config)")
	eventsCmd.Flags().StringVar(&eventsFormat, "format", "table", "output format: table, json, csv or xlsx")
	eventsCmd.Flags().StringVarP(&eventsOutput, "output", "o", "", "write to file instead of stdout")
	eventsCmd.Flags().BoolVar(&eventsNoIngest, "no-ingest", false, "skip polling feeds before building")
	rootCmd.AddCommand(eventsCmd)
}
