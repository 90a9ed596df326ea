// internal/app/features/auditlog/handler.go
package auditlog

import (
	"context"

	"github.com/dalemusser/rosterhub/internal/app/store/audit"
	"go.uber.org/zap"
)

// QueryFunc reads one page of the roster audit trail. Both the MongoDB
// audit store (Query) and the memory store (QueryAudit) satisfy it.
type QueryFunc func(ctx context.Context, f audit.QueryFilter) (audit.Page, error)

type Handler struct {
	Query QueryFunc
	Log   *zap.Logger
}

// NewHandler constructs an audit log Handler reading through query.
func NewHandler(query QueryFunc, logger *zap.Logger) *Handler {
	return &Handler{
		Query: query,
		Log:   logger,
	}
}
