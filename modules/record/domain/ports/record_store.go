package ports

import (
	"context"

	"github.com/sovrium/sovrium/modules/permission/domain/types"
)

// RecordStore persists rows of operator-declared tables. Every call binds
// the principal's identity to the store session for its own transaction only,
// so the store's row policies enforce the same decision independently of the
// application gate.
type RecordStore interface {
	Insert(ctx context.Context, p types.Principal, table string, values map[string]any) (map[string]any, error)
	GetByID(ctx context.Context, p types.Principal, table string, id string) (map[string]any, bool, error)
	List(ctx context.Context, p types.Principal, table string, limit int) ([]map[string]any, error)
	Update(ctx context.Context, p types.Principal, table string, id string, values map[string]any) (map[string]any, bool, error)
	Delete(ctx context.Context, p types.Principal, table string, id string) (bool, error)
}

// PolicySynchronizer installs compiled row-policy DDL on the store.
type PolicySynchronizer interface {
	Apply(ctx context.Context, stmts []string) error
}
