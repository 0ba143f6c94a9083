package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"
)

// Show prints the latest term structure for a currency.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show observations")
	}
	if closeStore != nil {
		defer closeStore()
	}

	records, err := store.ListLatestObservations(ctx, opts.Currency)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no observations found")
		return nil
	}

	sort.Slice(records, func(i, j int) bool { return records[i].TenorDays < records[j].TenorDays })

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Instrument\tExpiry\tTenor (d)\tYield %\tZ\tClass\tObserved (UTC)")

	for _, rec := range records {
		zScore := "-"
		if rec.ZScore != nil {
			zScore = fmt.Sprintf("%.2f", *rec.ZScore)
		}
		classification := "-"
		if rec.Classification != nil {
			classification = *rec.Classification
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%.1f\t%.2f\t%s\t%s\t%s\n",
			rec.InstrumentID,
			rec.ExpiryKey,
			rec.TenorDays,
			rec.YieldPct,
			zScore,
			classification,
			rec.ObservedAt.UTC().Format(time.RFC3339),
		)
	}

	writer.Flush()
	return nil
}
