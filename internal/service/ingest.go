// Package service sequences the pipeline: one ingestion run, one live
// snapshot, one aggregate export.
package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"skyblock-ah-tracker/internal/hypixel"
	"skyblock-ah-tracker/internal/model"
	"skyblock-ah-tracker/internal/normalize"
	"skyblock-ah-tracker/internal/repository"
	"skyblock-ah-tracker/pkg/runerror"
	"skyblock-ah-tracker/pkg/uid"
)

// EndedSource fetches the ended-auction window. Satisfied by
// *hypixel.Client; tests substitute fakes.
type EndedSource interface {
	FetchEndedAuctions(ctx context.Context) (*hypixel.EndedResult, error)
}

// IngestService runs one fetch-decode-dedupe-aggregate pass and exits.
// The external scheduler is the retry mechanism; a failed run leaves
// the store untouched.
type IngestService struct {
	source     EndedSource
	normalizer *normalize.Normalizer
	store      repository.Store
	leaseTTL   time.Duration
}

// NewIngestService creates the run orchestrator.
func NewIngestService(source EndedSource, n *normalize.Normalizer, store repository.Store, leaseTTL time.Duration) *IngestService {
	if leaseTTL <= 0 {
		leaseTTL = 10 * time.Minute
	}
	return &IngestService{source: source, normalizer: n, store: store, leaseTTL: leaseTTL}
}

// Run executes one ingestion pass. The returned record carries the
// counts of the run whether it completed or aborted; its Status says
// which. An aborted run has made no store writes.
func (s *IngestService) Run(ctx context.Context) (model.RunRecord, error) {
	run := model.RunRecord{
		RunID:     uid.New(),
		StartedAt: time.Now().UTC(),
		Status:    model.RunStatusAborted,
	}
	tag := uid.Short(run.RunID)

	log.Printf("[ingest] run %s: %s -> %s", tag, model.PhaseIdle, model.PhaseFetching)
	result, err := s.source.FetchEndedAuctions(ctx)
	if err != nil {
		run.FinishedAt = time.Now().UTC()
		log.Printf("[ingest] run %s: %s -> %s: %v", tag, model.PhaseFetching, model.PhaseAborted, err)
		return run, err
	}
	run.Pages = result.Pages
	run.Fetched = len(result.Entries)

	log.Printf("[ingest] run %s: %s -> %s (%d pages, %d entries)",
		tag, model.PhaseFetching, model.PhaseProcessing, run.Pages, run.Fetched)
	records, stats := s.normalizer.NormalizeBatch(ctx, result.Entries, run.StartedAt)
	run.DecodeFailed = stats.DecodeFailed
	run.Filtered = stats.Filtered()

	log.Printf("[ingest] run %s: %s -> %s (%d candidates)",
		tag, model.PhaseProcessing, model.PhaseCommitting, len(records))

	if err := s.store.AcquireLease(ctx, repository.LeaseName, run.RunID, s.leaseTTL); err != nil {
		run.FinishedAt = time.Now().UTC()
		log.Printf("[ingest] run %s: %s -> %s: %v", tag, model.PhaseCommitting, model.PhaseAborted, err)
		return run, err
	}
	defer func() {
		if err := s.store.ReleaseLease(context.WithoutCancel(ctx), repository.LeaseName, run.RunID); err != nil {
			log.Printf("[ingest] run %s: failed to release lease: %v", tag, err)
		}
	}()

	err = s.store.Atomic(ctx, func(tx repository.Tx) error {
		admitted, err := s.commit(ctx, tx, records, run.StartedAt)
		if err != nil {
			return err
		}
		run.Admitted = admitted
		run.Duplicates = len(records) - admitted

		run.FinishedAt = time.Now().UTC()
		run.Status = model.RunStatusCompleted
		return tx.InsertRun(ctx, run)
	})
	if err != nil {
		run.Status = model.RunStatusAborted
		run.Admitted = 0
		run.Duplicates = 0
		run.FinishedAt = time.Now().UTC()
		log.Printf("[ingest] run %s: %s -> %s: %v", tag, model.PhaseCommitting, model.PhaseAborted, err)
		if runerror.KindOf(err) == "" {
			err = runerror.Storage("commit transaction failed", err)
		}
		return run, err
	}

	log.Printf("[ingest] run %s: %s -> %s", tag, model.PhaseCommitting, model.PhaseIdle)
	return run, nil
}

// commit performs dedup admission, log appends and aggregate folds
// against one open transaction. Returns the number of admitted
// records.
func (s *IngestService) commit(ctx context.Context, tx repository.Tx, records []model.AuctionRecord, now time.Time) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	ids := make([]string, len(records))
	byID := make(map[string]model.AuctionRecord, len(records))
	for i, rec := range records {
		ids[i] = rec.AuctionID
		byID[rec.AuctionID] = rec
	}

	unseen, err := tx.FilterKnown(ctx, ids)
	if err != nil {
		return 0, err
	}

	// Fold all admitted sales for a key before writing the row back,
	// so each key is read and written once per run.
	byKey := make(map[string][]model.AuctionRecord)
	for _, id := range unseen {
		rec := byID[id]
		if err := tx.InsertAuction(ctx, rec); err != nil {
			return 0, err
		}
		byKey[rec.ItemKey] = append(byKey[rec.ItemKey], rec)
	}

	for key, recs := range byKey {
		agg, err := tx.GetAggregate(ctx, key)
		if err != nil {
			return 0, err
		}
		for _, rec := range recs {
			if agg == nil {
				seeded := model.NewItemAggregate(rec, now)
				agg = &seeded
				continue
			}
			agg.Apply(rec.Price, now)
		}
		if err := tx.PutAggregate(ctx, *agg); err != nil {
			return 0, err
		}
	}

	return len(unseen), nil
}

// Summary renders the one-line human-readable run report.
func Summary(run model.RunRecord) string {
	return fmt.Sprintf("run %s %s: pages=%d fetched=%d admitted=%d duplicates=%d decode_failed=%d filtered=%d elapsed=%s",
		uid.Short(run.RunID), run.Status, run.Pages, run.Fetched, run.Admitted,
		run.Duplicates, run.DecodeFailed, run.Filtered,
		run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
}
