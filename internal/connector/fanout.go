package connector

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rockmrack/crownsafe/internal/metrics"
	"github.com/rockmrack/crownsafe/internal/notify"
	"github.com/rockmrack/crownsafe/internal/recall"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrAllSourcesFailed is returned when no connector produced a
// successful fetch during a cycle.
var ErrAllSourcesFailed = errors.New("all sources failed")

const (
	SourceOK     = "ok"
	SourceFailed = "failed"
)

type SourceReport struct {
	Agency   string `json:"agency"`
	Status   string `json:"status"`
	Fetched  int    `json:"fetched"`
	Upserted int    `json:"upserted"`
	Skipped  int    `json:"skipped"`
	Error    string `json:"error,omitempty"`
}

type CycleReport struct {
	TotalFetched  int            `json:"total_fetched"`
	TotalUpserted int            `json:"total_upserted"`
	TotalSkipped  int            `json:"total_skipped"`
	PerSource     []SourceReport `json:"per_source"`
	Duration      time.Duration  `json:"duration"`
}

type FanoutOptions struct {
	BatchSize     int
	SourceTimeout time.Duration
	SinceWindow   time.Duration
	Limit         int
}

// Fanout runs one ingestion cycle across every registered connector
// concurrently. One source failing or timing out never touches its
// siblings; the cycle as a whole fails only when every source does.
type Fanout struct {
	connectors []Connector
	store      recall.Store
	notifier   *notify.Notifier
	logger     *zap.Logger
	opts       FanoutOptions
}

func NewFanout(connectors []Connector, store recall.Store, notifier *notify.Notifier, logger *zap.Logger, opts FanoutOptions) *Fanout {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = 30 * time.Second
	}
	if opts.SinceWindow <= 0 {
		opts.SinceWindow = 30 * 24 * time.Hour
	}
	if opts.Limit <= 0 {
		opts.Limit = 8
	}
	return &Fanout{
		connectors: connectors,
		store:      store,
		notifier:   notifier,
		logger:     logger,
		opts:       opts,
	}
}

func (f *Fanout) RunCycle(ctx context.Context) (CycleReport, error) {
	ctx, span := otel.Tracer("crownsafe/connector").Start(ctx, "ingestion.cycle")
	defer span.End()

	started := time.Now()
	since := started.Add(-f.opts.SinceWindow)
	reports := make([]SourceReport, len(f.connectors))

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.Limit)
	for i, conn := range f.connectors {
		g.Go(func() error {
			reports[i] = f.ingestSource(groupCtx, conn, since)
			// Source failures are recorded, never propagated; a
			// propagated error would cancel sibling fetches.
			return nil
		})
	}
	_ = g.Wait()

	report := CycleReport{
		PerSource: reports,
		Duration:  time.Since(started),
	}
	failures := 0
	for _, sr := range reports {
		report.TotalFetched += sr.Fetched
		report.TotalUpserted += sr.Upserted
		report.TotalSkipped += sr.Skipped
		if sr.Status == SourceFailed {
			failures++
		}
	}
	span.SetAttributes(
		attribute.Int("ingest.fetched", report.TotalFetched),
		attribute.Int("ingest.upserted", report.TotalUpserted),
		attribute.Int("ingest.failed_sources", failures),
	)
	metrics.ObserveCycleDuration(report.Duration)

	f.logger.Info("ingestion cycle finished",
		zap.Int("fetched", report.TotalFetched),
		zap.Int("upserted", report.TotalUpserted),
		zap.Int("skipped", report.TotalSkipped),
		zap.Int("failed_sources", failures),
		zap.Duration("duration", report.Duration),
	)
	f.notifier.Event("ingestion.cycle.finished", map[string]any{
		"total_fetched":  report.TotalFetched,
		"total_upserted": report.TotalUpserted,
		"failed_sources": failures,
	})

	if len(f.connectors) > 0 && failures == len(f.connectors) {
		return report, ErrAllSourcesFailed
	}
	return report, nil
}

func (f *Fanout) ingestSource(ctx context.Context, conn Connector, since time.Time) SourceReport {
	agency := conn.Agency()
	report := SourceReport{Agency: agency, Status: SourceOK}

	fetchCtx, cancel := context.WithTimeout(ctx, f.opts.SourceTimeout)
	defer cancel()

	raws, err := conn.Fetch(fetchCtx, since, 0)
	if err != nil {
		f.logger.Warn("source fetch failed", zap.String("agency", agency), zap.Error(err))
		metrics.RecordSourceFailure(agency)
		report.Status = SourceFailed
		report.Error = err.Error()
		return report
	}
	report.Fetched = len(raws)
	metrics.RecordFetched(agency, len(raws))

	fetchedAt := time.Now()
	batch := make([]recall.Record, 0, f.opts.BatchSize)
	flush := func() bool {
		if len(batch) == 0 {
			return true
		}
		result, err := f.store.UpsertBatch(ctx, batch)
		if err != nil {
			// Earlier committed batches are retained; the rest of this
			// source's records are lost for this cycle.
			f.logger.Warn("batch commit failed", zap.String("agency", agency), zap.Error(err))
			report.Status = SourceFailed
			report.Error = err.Error()
			return false
		}
		report.Upserted += result.Total()
		metrics.RecordUpserted(agency, string(recall.OutcomeInserted), result.Inserted)
		metrics.RecordUpserted(agency, string(recall.OutcomeUpdated), result.Updated)
		batch = batch[:0]
		return true
	}

	for _, raw := range raws {
		rec, warnings := recall.Normalize(agency, raw, fetchedAt)
		for _, w := range warnings {
			f.logger.Warn("normalization warning",
				zap.String("agency", agency),
				zap.String("source_id", rec.SourceID),
				zap.String("warning", w),
			)
		}
		if rec.SourceID == "" {
			report.Skipped++
			continue
		}
		batch = append(batch, rec)
		if len(batch) >= f.opts.BatchSize {
			if !flush() {
				return report
			}
		}
	}
	flush()
	return report
}

// Execute lets an ingestion cycle run as a plan step.
func (f *Fanout) Execute(ctx context.Context, _ map[string]any) (map[string]any, error) {
	report, err := f.RunCycle(ctx)
	if err != nil {
		return nil, err
	}
	return toMap(report)
}

func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
