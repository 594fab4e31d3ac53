package persistence

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/sovrium/sovrium/modules/permission/domain/types"
	permission "github.com/sovrium/sovrium/modules/permission/services"
	"github.com/sovrium/sovrium/modules/record/domain/ports"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// RecordPGStore reads and writes declared-table rows through Postgres with
// row level security active. Session variables are set with the tx-local
// form of set_config, so they are cleared when the connection returns to the
// pool and can never leak into another request.
type RecordPGStore struct {
	pool pgBeginner
}

func NewRecordPGStore(pool pgBeginner) ports.RecordStore {
	return &RecordPGStore{pool: pool}
}

func bindSession(ctx context.Context, tx pgx.Tx, p types.Principal) error {
	_, err := tx.Exec(ctx, fmt.Sprintf(
		`SELECT set_config('%s', $1, true), set_config('%s', $2, true), set_config('%s', $3, true);`,
		permission.SessionUserVar, permission.SessionOrgVar, permission.SessionRolesVar,
	), p.UserID, p.OrganizationID, p.RolesCSV())
	return err
}

func (s *RecordPGStore) Insert(ctx context.Context, p types.Principal, table string, values map[string]any) (map[string]any, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := bindSession(ctx, tx, p); err != nil {
		return nil, err
	}

	cols := sortedKeys(values)
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	quoted := make([]string, len(cols))
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[c]
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s);",
		pgx.Identifier{table}.Sanitize(),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	), args...); err != nil {
		return nil, err
	}

	row, found, err := fetchByID(ctx, tx, table, values["id"])
	if err != nil {
		return nil, err
	}
	if !found {
		// The insert succeeded but the row policies hide the row from
		// its own writer; report what was stored.
		row = values
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *RecordPGStore) GetByID(ctx context.Context, p types.Principal, table string, id string) (map[string]any, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := bindSession(ctx, tx, p); err != nil {
		return nil, false, err
	}

	row, found, err := fetchByID(ctx, tx, table, id)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return row, found, nil
}

func (s *RecordPGStore) List(ctx context.Context, p types.Principal, table string, limit int) ([]map[string]any, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := bindSession(ctx, tx, p); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, fmt.Sprintf(
		`SELECT * FROM %s ORDER BY "id" LIMIT $1;`,
		pgx.Identifier{table}.Sanitize(),
	), limit)
	if err != nil {
		return nil, err
	}
	out, err := collectRows(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RecordPGStore) Update(ctx context.Context, p types.Principal, table string, id string, values map[string]any) (map[string]any, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := bindSession(ctx, tx, p); err != nil {
		return nil, false, err
	}

	cols := sortedKeys(values)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{c}.Sanitize(), i+1)
		args = append(args, values[c])
	}
	args = append(args, id)

	tag, err := tx.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET %s WHERE "id" = $%d;`,
		pgx.Identifier{table}.Sanitize(),
		strings.Join(sets, ", "),
		len(cols)+1,
	), args...)
	if err != nil {
		return nil, false, err
	}
	if tag.RowsAffected() == 0 {
		return nil, false, nil
	}

	row, found, err := fetchByID(ctx, tx, table, id)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return row, found, nil
}

func (s *RecordPGStore) Delete(ctx context.Context, p types.Principal, table string, id string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := bindSession(ctx, tx, p); err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE "id" = $1;`,
		pgx.Identifier{table}.Sanitize(),
	), id)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func fetchByID(ctx context.Context, tx pgx.Tx, table string, id any) (map[string]any, bool, error) {
	rows, err := tx.Query(ctx, fmt.Sprintf(
		`SELECT * FROM %s WHERE "id" = $1;`,
		pgx.Identifier{table}.Sanitize(),
	), id)
	if err != nil {
		return nil, false, err
	}
	collected, err := collectRows(rows)
	if err != nil {
		return nil, false, err
	}
	if len(collected) == 0 {
		return nil, false, nil
	}
	return collected[0], true, nil
}

func collectRows(rows pgx.Rows) ([]map[string]any, error) {
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		descs := rows.FieldDescriptions()
		row := make(map[string]any, len(descs))
		for i, d := range descs {
			row[d.Name] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
