package app

import (
	"context"
	"errors"
	"strings"

	"basis-monitor/internal/basis"
	"basis-monitor/internal/storage"
)

// Backfill reconstructs historical observation buckets from the venue's
// close-price series. Rows are written with history provenance so later
// cycles fold them into the stitched series like any other stored bucket.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	start := opts.From.UTC()
	end := opts.To.UTC()
	if !start.Before(end) {
		return errors.New("backfill window is empty; check --from/--to")
	}
	if opts.Resolution == "" {
		opts.Resolution = "60"
	}

	var store *storage.Store
	var closeStore func()
	var err error

	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: nothing will be written")
	} else {
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn not configured; cannot backfill")
		}
		if closeStore != nil {
			defer closeStore()
		}
	}

	market := a.newMarketData()
	pipeline := basis.NewPipeline(a.Config.PipelineSettings(), a.Logger)

	written := 0
	skipped := 0
	for _, currency := range a.Config.Pipeline.Currencies {
		currency = strings.ToUpper(currency)
		log := a.Logger.With().Str("currency", currency).Logger()

		specs, err := market.ListActiveFutures(ctx, currency)
		if err != nil {
			return err
		}

		refSeries, err := market.FetchHistory(ctx, a.Config.SpotInstrument(currency), start, end, opts.Resolution)
		if err != nil {
			return err
		}
		refByTime := make(map[int64]float64, len(refSeries))
		for _, point := range refSeries {
			refByTime[point.Timestamp.Unix()] = point.Price
		}
		if len(refByTime) == 0 {
			log.Warn().Msg("no reference history in window; skipping currency")
			continue
		}

		for _, spec := range specs {
			series, err := market.FetchHistory(ctx, spec.InstrumentID, start, end, opts.Resolution)
			if err != nil {
				log.Error().Err(err).Str("instrument", spec.InstrumentID).Msg("history fetch failed")
				continue
			}

			for _, point := range series {
				reference, ok := refByTime[point.Timestamp.Unix()]
				if !ok {
					skipped++
					continue
				}

				obs, ok, err := pipeline.BuildObservation(spec, point.Price, reference, point.Timestamp, basis.ProvenanceHistory)
				if err != nil {
					log.Error().Err(err).Str("instrument", spec.InstrumentID).Msg("invalid historical inputs")
					skipped++
					continue
				}
				if !ok {
					skipped++
					continue
				}

				if opts.DryRun {
					written++
					continue
				}

				rec := storage.NewObservationRecord(currency, basis.ScoredObservation{YieldObservation: obs})
				if err := store.UpsertObservation(ctx, rec); err != nil {
					return err
				}
				written++
			}
		}
	}

	a.Logger.Info().Int("written", written).Int("skipped", skipped).Msg("backfill complete")
	return nil
}
