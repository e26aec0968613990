package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/pgsim/devicectl/pkg/datasource"
	"github.com/pgsim/devicectl/pkg/histdata"
	"github.com/pgsim/devicectl/pkg/units"
)

var (
	file        = flag.String("file", "", "csv file to inspect")
	sqlite      = flag.String("sqlite", "", "sqlite recording to inspect")
	columns     = flag.Bool("columns", false, "list csv columns")
	devicesFlag = flag.Bool("devices", false, "list recorded device ids")
	rangeFlag   = flag.Bool("range", false, "print the replayable time range")
	timeColumn  = flag.String("time-column", "", "csv time column")
	timeFormat  = flag.String("time-format", "", "time layout, 'unix' for epochs")
	powerColumn = flag.String("power-column", "", "csv power column")
	device      = flag.String("device", "", "sqlite source device id")
	preview     = flag.Int("preview", 0, "print the first N samples")
	at          = flag.String("at", "", "RFC3339 time to map into the range")
	loop        = flag.Bool("loop", true, "wrap instead of clamping with -at")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if *file == "" && *sqlite == "" {
		return fmt.Errorf("one of -file or -sqlite is required")
	}
	if *file != "" && *sqlite != "" {
		return fmt.Errorf("-file and -sqlite are mutually exclusive")
	}
	if *sqlite != "" {
		return runSqlite(context.Background())
	}
	return runCSV()
}

func runCSV() error {
	r := histdata.NewCSV(*file)
	if *columns {
		cols, err := r.Columns()
		if err != nil {
			return err
		}
		for _, c := range cols {
			fmt.Println(c)
		}
		return nil
	}
	if *timeColumn == "" {
		return fmt.Errorf("-time-column is required for csv files")
	}
	if *rangeFlag || *at != "" {
		tr, err := r.TimeRange(*timeColumn, *timeFormat)
		if err != nil {
			return err
		}
		printRange(*tr)
		if *at != "" {
			return printMapped(*tr)
		}
		return nil
	}
	if *preview > 0 {
		cfg := datasource.HistoricalConfig{
			Source:     datasource.HistCSV,
			FilePath:   *file,
			TimeColumn: *timeColumn,
			TimeFormat: *timeFormat,
		}
		if *powerColumn != "" {
			cfg.PowerColumn = &units.ColumnSource{ColumnName: *powerColumn}
		}
		samples, err := r.Preview(cfg, *preview)
		if err != nil {
			return err
		}
		printSamples(samples)
		return nil
	}
	return fmt.Errorf("nothing to do, pass -columns, -range, -preview or -at")
}

func runSqlite(ctx context.Context) error {
	r, err := histdata.OpenSQLite(*sqlite)
	if err != nil {
		return err
	}
	defer r.Close()

	if *devicesFlag {
		ids, err := r.Devices(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	}
	if *rangeFlag || *at != "" {
		tr, err := r.TimeRange(ctx, *device)
		if err != nil {
			return err
		}
		printRange(*tr)
		if *at != "" {
			return printMapped(*tr)
		}
		return nil
	}
	if *preview > 0 {
		cfg := datasource.HistoricalConfig{
			Source:         datasource.HistSQLite,
			FilePath:       *sqlite,
			SourceDeviceID: *device,
		}
		samples, err := r.Preview(ctx, cfg, *preview)
		if err != nil {
			return err
		}
		printSamples(samples)
		return nil
	}
	return fmt.Errorf("nothing to do, pass -devices, -range, -preview or -at")
}

func printRange(tr histdata.TimeRange) {
	fmt.Printf("%d rows from %s to %s\n", tr.Rows, tr.Start.Format(time.RFC3339), tr.End.Format(time.RFC3339))
}

func printMapped(tr histdata.TimeRange) error {
	ts, err := time.Parse(time.RFC3339, *at)
	if err != nil {
		return fmt.Errorf("bad -at time: %w", err)
	}
	mapped := histdata.MapReplayTime(ts, tr, *loop)
	fmt.Printf("%s maps to %s\n", ts.Format(time.RFC3339), mapped.Format(time.RFC3339))
	return nil
}

func printSamples(samples []histdata.Sample) {
	for _, s := range samples {
		line := fmt.Sprintf("%s  %.3f kW", s.Timestamp.Format(time.RFC3339), s.PowerKW)
		if s.ReactiveKVAr != nil {
			line += fmt.Sprintf("  %.3f kVAr", *s.ReactiveKVAr)
		}
		fmt.Println(line)
	}
}
