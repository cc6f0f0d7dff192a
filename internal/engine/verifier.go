package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/index"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/logger"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/model"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/repository"
)

// Verifier answers "is the mutation behind this token visible yet" for
// callers that need read-your-own-write before responding to an end user.
type Verifier struct {
	oplog  repository.OperationLogRepository
	status repository.SyncStatusRepository
	index  index.Client // nil = skip the point read
}

func NewVerifier(oplogRepo repository.OperationLogRepository, statusRepo repository.SyncStatusRepository, idx index.Client) *Verifier {
	return &Verifier{oplog: oplogRepo, status: statusRepo, index: idx}
}

func (v *Verifier) Verify(ctx context.Context, tenantID, token string) (model.ConsistencyResult, error) {
	if tenantID == "" {
		return model.ConsistencyResult{}, ErrTenantRequired
	}

	op, err := v.oplog.FindByToken(ctx, tenantID, token)
	if err != nil {
		return model.ConsistencyResult{}, err
	}
	if op == nil {
		return model.ConsistencyResult{}, ErrUnknownToken
	}

	key := model.EntityKey{TenantID: op.TenantID, EntityType: op.EntityType, EntityID: op.EntityID}
	st, err := v.status.Get(ctx, key)
	if err != nil {
		return model.ConsistencyResult{}, err
	}
	if st == nil {
		// log row without status row: apply never committed its status; the
		// reconciler cannot see it, so report pending rather than lie
		return model.ConsistencyResult{Outcome: model.OutcomePending, Token: token}, nil
	}

	res := model.ConsistencyResult{Token: token, Version: st.Version}

	switch st.Status {
	case model.StateSynced:
		if st.LastToken != token {
			// a newer operation superseded this one and is applied; the
			// index reflects state at least as new as this token
			res.Outcome = model.OutcomeConsistent
			return res, nil
		}
		res.Outcome = model.OutcomeConsistent
		if v.index != nil {
			res.Outcome = v.compareIndex(ctx, st, token)
		}
		return res, nil
	case model.StateFailed:
		res.Outcome = model.OutcomeFailed
		if st.LastError.Valid {
			res.LastError = st.LastError.String
		}
		return res, nil
	default: // pending, processing
		res.Outcome = model.OutcomePending
		return res, nil
	}
}

// compareIndex point-reads the index and checks it caught up to the status
// row. Read trouble degrades to pending, never to a hard error: the stored
// status already said synced.
func (v *Verifier) compareIndex(ctx context.Context, st *model.SyncStatus, token string) model.ConsistencyOutcome {
	doc, err := v.index.Get(ctx, st.TenantID, st.EntityType, st.EntityID)
	if err != nil {
		logger.Log.Warn("verify point read failed", zap.Error(err))
		return model.OutcomePending
	}

	if st.Deleted {
		if doc == nil {
			return model.OutcomeConsistent
		}
		return model.OutcomePending
	}
	if doc == nil {
		return model.OutcomePending
	}
	if doc.Token == token || doc.Version >= st.Version {
		return model.OutcomeConsistent
	}
	return model.OutcomePending
}
