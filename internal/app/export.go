package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"basis-monitor/internal/basis"
	"basis-monitor/internal/storage"
)

// Export renders historical observations as CSV and the current term
// structure as PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.CSVPath != "" {
		if err := a.exportCSV(ctx, store, opts); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := a.exportTermStructurePNG(ctx, store, opts); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) exportCSV(ctx context.Context, store *storage.Store, opts ExportOptions) error {
	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := store.ListObservationsBetween(ctx, opts.Currency, from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Str("currency", opts.Currency).Msg("no observations found for export window")
		return nil
	}

	downsampled := downsampleObservations(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting observations")

	return writeObservationsCSV(opts.CSVPath, downsampled)
}

func downsampleObservations(records []storage.ObservationRecord, max int) []storage.ObservationRecord {
	if max <= 0 || len(records) <= max {
		return records
	}

	result := make([]storage.ObservationRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeObservationsCSV(path string, records []storage.ObservationRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"observed_at", "instrument", "expiry", "tenor_days", "reference_price", "contract_price", "basis", "yield_pct", "z_score", "classification", "provenance"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		zScore := ""
		if rec.ZScore != nil {
			zScore = strconv.FormatFloat(*rec.ZScore, 'f', 4, 64)
		}
		classification := ""
		if rec.Classification != nil {
			classification = *rec.Classification
		}
		record := []string{
			rec.ObservedAt.UTC().Format(time.RFC3339),
			rec.InstrumentID,
			rec.ExpiryKey,
			strconv.FormatFloat(rec.TenorDays, 'f', 4, 64),
			strconv.FormatFloat(rec.ReferencePrice, 'f', 2, 64),
			strconv.FormatFloat(rec.ContractPrice, 'f', 2, 64),
			strconv.FormatFloat(rec.BasisAmount, 'f', 2, 64),
			strconv.FormatFloat(rec.YieldPct, 'f', 4, 64),
			zScore,
			classification,
			string(rec.Provenance),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

// exportTermStructurePNG plots the latest yield per contract against tenor,
// with the fitted curves and the benchmark band where available.
func (a *App) exportTermStructurePNG(ctx context.Context, store *storage.Store, opts ExportOptions) error {
	records, err := store.ListLatestObservations(ctx, opts.Currency)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Str("currency", opts.Currency).Msg("no observations found for term structure")
		return nil
	}

	sort.Slice(records, func(i, j int) bool { return records[i].TenorDays < records[j].TenorDays })

	tenors := make([]float64, len(records))
	yields := make([]float64, len(records))
	for i, rec := range records {
		tenors[i] = rec.TenorDays
		yields[i] = rec.YieldPct
	}

	series := []chart.Series{
		chart.ContinuousSeries{
			Name:    fmt.Sprintf("%s observed", opts.Currency),
			XValues: tenors,
			YValues: yields,
			Style: chart.Style{
				StrokeWidth: chart.Disabled,
				DotWidth:    4,
			},
		},
	}

	series = append(series, fittedSeries(a.fitter().Fit(tenors, yields), tenors)...)

	if rows, err := a.loadBenchmark(); err == nil && len(rows) > 0 {
		if band := benchmarkSeries(rows, tenors); band != nil {
			series = append(series, band...)
		}
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			Name: "Tenor (days)",
		},
		YAxis: chart.YAxis{
			Name: "Annualized yield (%)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	if err := ensureDir(opts.PNGPath); err != nil {
		return err
	}
	file, err := os.Create(opts.PNGPath)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func (a *App) fitter() basis.Fitter {
	methods := make([]basis.FitMethod, 0, len(a.Config.Pipeline.FitMethods))
	for _, m := range a.Config.Pipeline.FitMethods {
		methods = append(methods, basis.FitMethod(m))
	}
	return basis.Fitter{Methods: methods}
}

func fittedSeries(result basis.FitResult, tenors []float64) []chart.Series {
	if !result.Available() || len(tenors) == 0 {
		return nil
	}

	grid := tenorGrid(tenors[0], tenors[len(tenors)-1], 64)
	series := make([]chart.Series, 0, 2)
	for _, curve := range []*basis.FitCurve{result.LogLinear, result.Quadratic} {
		if curve == nil || curve.Degenerate {
			continue
		}
		ys := make([]float64, len(grid))
		for i, t := range grid {
			ys[i] = curve.At(t)
		}
		series = append(series, chart.ContinuousSeries{
			Name:    fmt.Sprintf("%s fit", curve.Method),
			XValues: grid,
			YValues: ys,
		})
	}
	return series
}

func benchmarkSeries(rows []basis.BenchmarkRow, tenors []float64) []chart.Series {
	interp, err := basis.NewInterpolator(rows)
	if err != nil || interp.Empty() || len(tenors) == 0 {
		return nil
	}

	grid := tenorGrid(tenors[0], tenors[len(tenors)-1], 64)
	median := make([]float64, len(grid))
	q1 := make([]float64, len(grid))
	q3 := make([]float64, len(grid))
	for i, t := range grid {
		exp, ok := interp.Lookup(t)
		if !ok {
			return nil
		}
		median[i] = exp.Median
		q1[i] = exp.Q1
		q3[i] = exp.Q3
	}

	dashed := chart.Style{StrokeDashArray: []float64{4, 4}}
	return []chart.Series{
		chart.ContinuousSeries{Name: "benchmark median", XValues: grid, YValues: median},
		chart.ContinuousSeries{Name: "benchmark q1", XValues: grid, YValues: q1, Style: dashed},
		chart.ContinuousSeries{Name: "benchmark q3", XValues: grid, YValues: q3, Style: dashed},
	}
}

func tenorGrid(min, max float64, points int) []float64 {
	if points < 2 || max <= min {
		return []float64{min}
	}
	grid := make([]float64, points)
	step := (max - min) / float64(points-1)
	for i := range grid {
		grid[i] = min + step*float64(i)
	}
	return grid
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
