package persistence

import (
	"context"

	"github.com/sovrium/sovrium/modules/record/domain/ports"
)

// PolicyPGSync applies compiled row-policy DDL in one transaction, so a
// table never ends up with a half-installed policy set.
type PolicyPGSync struct {
	pool pgBeginner
}

func NewPolicyPGSync(pool pgBeginner) ports.PolicySynchronizer {
	return &PolicyPGSync{pool: pool}
}

func (s *PolicyPGSync) Apply(ctx context.Context, stmts []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
