package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/index"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/logger"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/metrics"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/model"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/repository"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/util"
)

// Writer orchestrates one consistency-preserving write:
//
//  1. mint a token
//  2. in one short relational tx: lock-read sync_status, append the
//     operation, flip the row to processing, commit
//  3. outside any tx: the index mutation, bounded by its own timeout
//  4. settle sync_status to synced or failed/backoff
//
// Index failures after step 2 are absorbed into sync_status, not returned:
// the intent is durable and reconciliation converges it. Callers needing
// visibility before responding use the Verifier.
type Writer struct {
	txr      TxRunner
	oplog    repository.OperationLogRepository
	status   repository.SyncStatusRepository
	index    index.Client
	dedup    Deduper                       // optional
	attempts repository.AttemptsRepository // optional

	backoff      Backoff
	maxRetries   int
	indexTimeout time.Duration
}

type WriterOptions struct {
	Dedup        Deduper
	Attempts     repository.AttemptsRepository
	Backoff      Backoff
	MaxRetries   int
	IndexTimeout time.Duration
}

func NewWriter(
	txr TxRunner,
	oplogRepo repository.OperationLogRepository,
	statusRepo repository.SyncStatusRepository,
	idx index.Client,
	opts WriterOptions,
) *Writer {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 8
	}
	if opts.IndexTimeout <= 0 {
		opts.IndexTimeout = 3 * time.Second
	}
	return &Writer{
		txr:          txr,
		oplog:        oplogRepo,
		status:       statusRepo,
		index:        idx,
		dedup:        opts.Dedup,
		attempts:     opts.Attempts,
		backoff:      opts.Backoff,
		maxRetries:   opts.MaxRetries,
		indexTimeout: opts.IndexTimeout,
	}
}

func (w *Writer) MaxRetries() int { return w.maxRetries }

// Apply records and attempts one index mutation, returning the operation
// token. A non-nil error means the intent was never durably recorded and the
// caller may retry at the business layer.
func (w *Writer) Apply(ctx context.Context, intent model.OperationIntent) (string, error) {
	if intent.TenantID == "" {
		return "", ErrTenantRequired
	}
	if intent.EntityType == "" || intent.EntityID == "" || !intent.Kind.Valid() {
		return "", fmt.Errorf("%w: kind=%q type=%q id=%q", ErrInvalidIntent, intent.Kind, intent.EntityType, intent.EntityID)
	}
	if intent.Kind == model.KindUpsert {
		if err := model.ValidatePayload(intent.EntityType, intent.Payload); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	} else if !model.KnownEntityType(intent.EntityType) {
		return "", fmt.Errorf("%w: unknown entity type %q", ErrInvalidPayload, intent.EntityType)
	}

	key := model.EntityKey{TenantID: intent.TenantID, EntityType: intent.EntityType, EntityID: intent.EntityID}
	token := util.NewToken()

	reserved := false
	if w.dedup != nil && intent.IdempotencyKey != "" {
		winner, fresh, err := w.dedup.Reserve(ctx, intent.TenantID, intent.IdempotencyKey, token)
		if err != nil {
			// window unavailable; the operation-log unique token still guards
			logger.Log.Warn("dedup window unavailable", zap.Error(err))
		} else if !fresh {
			metrics.AppliesTotal.WithLabelValues("deduped").Inc()
			return winner, nil
		} else {
			reserved = true
		}
	}
	// The reservation may only outlive this call if token got durably logged.
	// Otherwise a legitimate retry of the same key would be answered with a
	// token that references nothing.
	release := func() {
		if !reserved {
			return
		}
		if rerr := w.dedup.Release(ctx, intent.TenantID, intent.IdempotencyKey, token); rerr != nil {
			logger.Log.Warn("dedup release failed", zap.Error(rerr))
		}
	}

	var (
		op           model.Operation
		version      int64
		superseded   bool
		supersededBy string
	)
	err := w.txr.InTx(ctx, func(tx *sqlx.Tx) error {
		st, err := w.status.GetForUpdate(ctx, tx, key)
		if err != nil {
			return err
		}

		var prev int64
		if st != nil {
			prev = st.Version
			// already-superseded write: never applied, reported as
			// consistent with the newer state
			if intent.Version > 0 && intent.Version <= st.Version && st.Status == model.StateSynced {
				supersededBy = st.LastToken
				superseded = true
				return nil
			}
		}

		version = prev + 1
		if intent.Version > version {
			version = intent.Version
		}

		op = model.Operation{
			ID:         util.New(),
			TenantID:   intent.TenantID,
			EntityType: intent.EntityType,
			EntityID:   intent.EntityID,
			Kind:       intent.Kind,
			Token:      token,
			Payload:    intent.Payload,
		}
		if err := w.oplog.Append(ctx, tx, op); err != nil {
			return err
		}

		next := model.SyncStatus{
			TenantID:   key.TenantID,
			EntityType: key.EntityType,
			EntityID:   key.EntityID,
			Version:    version,
			Status:     model.StateProcessing,
			LastToken:  token,
		}
		return w.status.Upsert(ctx, tx, next, prev)
	})

	switch {
	case err == nil:
	case errors.Is(err, repository.ErrStaleVersion):
		// lost the race to a concurrent writer; its write supersedes ours
		release()
		if st, gerr := w.status.Get(ctx, key); gerr == nil && st != nil {
			metrics.AppliesTotal.WithLabelValues("superseded").Inc()
			return st.LastToken, nil
		}
		return "", err
	default:
		// includes a duplicate-token append, which with 128-bit random
		// tokens can only mean a collision, never a replay
		release()
		metrics.AppliesTotal.WithLabelValues("rejected").Inc()
		return "", err
	}

	if superseded {
		release()
		metrics.AppliesTotal.WithLabelValues("superseded").Inc()
		return supersededBy, nil
	}

	if w.drive(ctx, op, version, 0) {
		metrics.AppliesTotal.WithLabelValues("synced").Inc()
	} else {
		metrics.AppliesTotal.WithLabelValues("deferred").Inc()
	}
	return token, nil
}

// Redrive re-runs the index mutation for a claimed sync_status row, looking
// the operation up by its recorded token. Used by the reconciliation worker.
func (w *Writer) Redrive(ctx context.Context, st model.SyncStatus) (bool, error) {
	key := st.Key()
	if st.LastToken == "" {
		// row without a recorded intent cannot be replayed
		err := w.status.MarkFailed(ctx, key, st.LastToken, "no operation recorded", w.maxRetries, time.Now())
		return false, err
	}

	op, err := w.oplog.FindByToken(ctx, st.TenantID, st.LastToken)
	if err != nil {
		return false, err
	}
	if op == nil {
		err := w.status.MarkFailed(ctx, key, st.LastToken, "operation missing from log", w.maxRetries, time.Now())
		return false, err
	}

	return w.drive(ctx, *op, st.Version, st.RetryCount), nil
}

// drive is steps 3-5: the external call plus the settle. Returns whether the
// row reached synced. Settle failures are logged loudly; the row stays
// claimable and the next reconcile pass repeats the (idempotent) mutation.
func (w *Writer) drive(ctx context.Context, op model.Operation, version int64, retryCount int) bool {
	key := model.EntityKey{TenantID: op.TenantID, EntityType: op.EntityType, EntityID: op.EntityID}

	cctx, cancel := context.WithTimeout(ctx, w.indexTimeout)
	err := w.index.Mutate(cctx, index.MutateRequest{
		TenantID:        op.TenantID,
		EntityType:      op.EntityType,
		EntityID:        op.EntityID,
		Kind:            op.Kind,
		Token:           op.Token,
		ExpectedVersion: version,
		Payload:         op.Payload,
	})
	cancel()

	attempt := retryCount + 1
	synced := false

	switch {
	case err == nil, errors.Is(err, index.ErrConflict):
		// conflict = the index already holds this or a newer version
		if serr := w.status.MarkSynced(ctx, key, op.Token, op.Kind == model.KindDelete); serr != nil {
			logger.Log.Error("mark synced failed", zap.Error(serr), zap.String("token", op.Token))
		} else {
			synced = true
		}
	case index.IsPermanent(err):
		// the index will never accept this; park it without burning retries
		if serr := w.status.MarkFailed(ctx, key, op.Token, err.Error(), w.maxRetries, time.Now()); serr != nil {
			logger.Log.Error("mark failed failed", zap.Error(serr), zap.String("token", op.Token))
		}
		logger.Log.Warn("permanent index failure",
			zap.String("tenant", op.TenantID),
			zap.String("entity_type", op.EntityType),
			zap.String("entity_id", op.EntityID),
			zap.Error(err))
	default:
		next := time.Now().Add(w.backoff.Next(attempt))
		if serr := w.status.MarkFailed(ctx, key, op.Token, err.Error(), attempt, next); serr != nil {
			logger.Log.Error("mark failed failed", zap.Error(serr), zap.String("token", op.Token))
		}
	}

	w.recordAttempt(ctx, op, attempt, synced, err)
	return synced
}

func (w *Writer) recordAttempt(ctx context.Context, op model.Operation, attempt int, synced bool, cause error) {
	if w.attempts == nil {
		return
	}
	a := model.SyncAttempt{
		TenantID:   op.TenantID,
		EntityType: op.EntityType,
		EntityID:   op.EntityID,
		Token:      op.Token,
		Outcome:    "failed",
		Attempt:    int32(attempt),
		OccurredAt: time.Now(),
	}
	if synced {
		a.Outcome = "synced"
	}
	if cause != nil && !synced {
		a.Error = cause.Error()
	}
	if err := w.attempts.Insert(ctx, a); err != nil {
		// history is best-effort; sync_status stays authoritative
		logger.Log.Warn("attempt history insert failed", zap.Error(err))
	}
}
