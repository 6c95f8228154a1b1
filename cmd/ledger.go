package main

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/waitprep/internal/config"
	"github.com/sells-group/waitprep/internal/store"
)

func initStore(ctx context.Context, c config.LedgerConfig) (store.Store, error) {
	st, err := store.NewSQLite(c.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// runLedger records one command invocation. Every ledger failure is logged
// and swallowed; a run never fails because its bookkeeping did.
type runLedger struct {
	st    store.Store
	runID string
}

// beginRun opens the ledger and records a running entry. Without a ledger
// the run still gets an id for the manifest.
func beginRun(ctx context.Context, c config.LedgerConfig, command string) *runLedger {
	l := &runLedger{runID: uuid.New().String()}
	if !c.Enabled {
		return l
	}
	st, err := initStore(ctx, c)
	if err != nil {
		zap.L().Warn("ledger unavailable", zap.String("path", c.Path), zap.Error(err))
		return l
	}
	run, err := st.StartRun(ctx, command)
	if err != nil {
		zap.L().Warn("ledger: start run failed", zap.Error(err))
		_ = st.Close()
		return l
	}
	l.st = st
	l.runID = run.ID
	return l
}

func (l *runLedger) complete(ctx context.Context, res store.RunResult) {
	if l.st == nil {
		return
	}
	if err := l.st.CompleteRun(context.WithoutCancel(ctx), l.runID, res); err != nil {
		zap.L().Warn("ledger: complete run failed", zap.String("run_id", l.runID), zap.Error(err))
	}
}

func (l *runLedger) fail(ctx context.Context, runErr error) {
	if l.st == nil {
		return
	}
	if err := l.st.FailRun(context.WithoutCancel(ctx), l.runID, runErr); err != nil {
		zap.L().Warn("ledger: fail run failed", zap.String("run_id", l.runID), zap.Error(err))
	}
}

func (l *runLedger) close() {
	if l.st != nil {
		_ = l.st.Close()
	}
}
