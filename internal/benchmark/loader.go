package benchmark

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"basis-monitor/internal/basis"
)

// Loader reads the static fair-value benchmark table from a CSV file with
// columns tenor_days, median_yield_pct, q1_yield_pct, q3_yield_pct. A missing
// file is not an error: the pipeline degrades to an unscored cycle.
type Loader struct {
	path   string
	logger zerolog.Logger
}

// NewLoader constructs a benchmark loader for the given path.
func NewLoader(path string, logger zerolog.Logger) *Loader {
	return &Loader{path: path, logger: logger.With().Str("component", "benchmark_loader").Logger()}
}

// Load parses the benchmark table. The returned slice is in file order;
// ordering and duplicate validation belongs to the interpolator.
func (l *Loader) Load() ([]basis.BenchmarkRow, error) {
	if l.path == "" {
		return nil, nil
	}

	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Warn().Str("path", l.path).Msg("benchmark file not found; cycles will be unscored")
			return nil, nil
		}
		return nil, fmt.Errorf("open benchmark file: %w", err)
	}
	defer file.Close()

	rows, err := parse(file)
	if err != nil {
		return nil, fmt.Errorf("parse benchmark file %s: %w", l.path, err)
	}

	l.logger.Debug().Int("rows", len(rows)).Str("path", l.path).Msg("benchmark table loaded")
	return rows, nil
}

func parse(r io.Reader) ([]basis.BenchmarkRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	start := 0
	if isHeader(records[0]) {
		start = 1
	}

	rows := make([]basis.BenchmarkRow, 0, len(records))
	for i := start; i < len(records); i++ {
		record := records[i]
		if len(record) != 4 {
			return nil, fmt.Errorf("line %d: expected 4 columns, got %d", i+1, len(record))
		}

		values := make([]float64, 4)
		for j, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: column %d: %w", i+1, j+1, err)
			}
			values[j] = v
		}

		rows = append(rows, basis.BenchmarkRow{
			TenorDays:      values[0],
			MedianYieldPct: values[1],
			Q1YieldPct:     values[2],
			Q3YieldPct:     values[3],
		})
	}
	return rows, nil
}

func isHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
	return err != nil
}
