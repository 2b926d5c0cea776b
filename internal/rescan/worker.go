package rescan

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"ingest-backend/internal/artifacts"
	"ingest-backend/internal/quarantine"
	"ingest-backend/internal/shared/metrics"
	"ingest-backend/internal/shared/telemetry"
)

// Worker settles versions stored without a scan verdict. Clean versions are
// promoted; infected ones are condemned and their bytes removed. A scan that
// is still inconclusive stays pending for the next sweep.
type Worker struct {
	Store       *artifacts.Store
	Scanner     quarantine.Scanner
	ScanTimeout time.Duration
	Concurrency int
	BatchSize   int
}

// NewWorker constructs a Worker with bounded defaults.
func NewWorker(store *artifacts.Store, scanner quarantine.Scanner) *Worker {
	return &Worker{
		Store:       store,
		Scanner:     scanner,
		ScanTimeout: 15 * time.Second,
		Concurrency: 4,
		BatchSize:   50,
	}
}

// Sweep processes one batch of pending versions and reports how many were
// settled (promoted or condemned).
func (w *Worker) Sweep(ctx context.Context) (int, error) {
	pending, err := w.Store.PendingRescan(ctx, w.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	settled := make(chan struct{}, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInt(1, w.Concurrency))
	for _, dv := range pending {
		dv := dv
		g.Go(func() error {
			if done := w.settle(gctx, dv); done {
				settled <- struct{}{}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	close(settled)
	return len(settled), nil
}

// Process settles one version named by a queue message.
func (w *Worker) Process(ctx context.Context, msg Message) error {
	dv, err := w.Store.VersionRecord(ctx, msg.DocumentID, msg.Version)
	if err != nil {
		return err
	}
	if dv.ScanStatus != artifacts.ScanPendingRescan {
		// Already settled by an earlier delivery or a sweep.
		return nil
	}
	w.settle(ctx, dv)
	return nil
}

// settle reports true when the version reached a final state.
func (w *Worker) settle(ctx context.Context, dv artifacts.DocumentVersion) bool {
	fields := map[string]any{
		"document_id": dv.DocumentID,
		"version":     dv.Version,
	}

	if w.Scanner == nil {
		telemetry.Warn("rescan.no_scanner", fields)
		return false
	}

	data, err := w.Store.RawVersionBytes(ctx, dv)
	if err != nil {
		fields["error"] = err.Error()
		telemetry.Error("rescan.load_failed", fields)
		return false
	}

	scanCtx, cancel := context.WithTimeout(ctx, w.ScanTimeout)
	verdict, err := w.Scanner.Scan(scanCtx, data)
	cancel()
	if err != nil || verdict == quarantine.VerdictUnknown {
		if err != nil {
			fields["error"] = err.Error()
		}
		telemetry.Warn("rescan.inconclusive", fields)
		return false
	}

	switch verdict {
	case quarantine.VerdictInfected:
		if err := w.Store.RemoveCondemned(ctx, dv.DocumentID, dv.Version); err != nil {
			fields["error"] = err.Error()
			telemetry.Error("rescan.condemn_failed", fields)
			return false
		}
		metrics.IncScanInfected()
		telemetry.Info("rescan.condemned", fields)
	default:
		if err := w.Store.PromoteClean(ctx, dv.DocumentID, dv.Version); err != nil {
			fields["error"] = err.Error()
			telemetry.Error("rescan.promote_failed", fields)
			return false
		}
		telemetry.Info("rescan.promoted", fields)
	}
	return true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
