package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sovrium/sovrium/modules/permission/domain/types"
	permission "github.com/sovrium/sovrium/modules/permission/services"
)

func main() {
	if len(os.Args) < 2 {
		fatalf("usage: dbtool <rls-smoke|sync-policies> [args]")
	}

	switch os.Args[1] {
	case "rls-smoke":
		rlsSmoke(os.Args[2:])
	case "sync-policies":
		syncPolicies(os.Args[2:])
	default:
		fatalf("unknown subcommand: %s", os.Args[1])
	}
}

// rlsSmoke verifies on a live database that the compiled row policies hold
// without the application gate: cross-organization rows are invisible, owner
// conditions filter, and an unbound session admits nothing.
func rlsSmoke(args []string) {
	fs := flag.NewFlagSet("rls-smoke", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var url string
	fs.StringVar(&url, "url", "", "postgres connection string")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if url == "" {
		fatalf("missing --url")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		fatal(err)
	}
	defer conn.Close(context.Background())

	_ = tryEnsureRole(ctx, conn, "app_nobypassrls")

	policy, err := permission.Compile(types.TableSpec{
		Name:              "rls_smoke",
		OrganizationField: "organization_id",
		Fields: []types.FieldSpec{
			{Name: "id", System: true},
			{Name: "organization_id"},
			{Name: "owner_id"},
			{Name: "note"},
		},
		Permissions: types.TablePermissionSpec{
			Create: &types.Rule{Kind: types.RuleKindAuthenticated},
			Read:   &types.Rule{Kind: types.RuleKindCustom, Condition: "{userId} = owner_id"},
			Update: &types.Rule{Kind: types.RuleKindCustom, Condition: "{userId} = owner_id"},
			Delete: &types.Rule{Kind: types.RuleKindRoles, Roles: []string{"admin"}},
		},
	})
	if err != nil {
		fatal(err)
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	_ = trySetRole(ctx, tx, "app_nobypassrls")

	if _, err := tx.Exec(ctx, `CREATE TEMP TABLE rls_smoke (id text PRIMARY KEY, organization_id text NOT NULL, owner_id text NOT NULL, note text);`); err != nil {
		fatal(err)
	}
	for _, stmt := range permission.PolicyDDL(policy) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			fatal(err)
		}
	}

	// Unbound session: nothing is visible and nothing can be written.
	var count int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM rls_smoke;`).Scan(&count); err != nil {
		fatal(err)
	}
	if count != 0 {
		fatalf("expected empty table, got %d", count)
	}
	if _, err := tx.Exec(ctx, `SAVEPOINT sp_unbound;`); err != nil {
		fatal(err)
	}
	_, err = tx.Exec(ctx, `INSERT INTO rls_smoke (id, organization_id, owner_id) VALUES ('r1', 'org_a', 'user_1');`)
	if _, rbErr := tx.Exec(ctx, `ROLLBACK TO SAVEPOINT sp_unbound;`); rbErr != nil {
		fatal(rbErr)
	}
	if err == nil {
		fatalf("expected insert rejection with no session bound")
	}

	// user_1 in org_a writes and reads back its own row.
	bind := func(user, org, roles string) {
		if _, err := tx.Exec(ctx, fmt.Sprintf(
			`SELECT set_config('%s', $1, true), set_config('%s', $2, true), set_config('%s', $3, true);`,
			permission.SessionUserVar, permission.SessionOrgVar, permission.SessionRolesVar), user, org, roles); err != nil {
			fatal(err)
		}
	}
	bind("user_1", "org_a", "member")
	if _, err := tx.Exec(ctx, `INSERT INTO rls_smoke (id, organization_id, owner_id, note) VALUES ('r1', 'org_a', 'user_1', 'mine');`); err != nil {
		fatal(err)
	}
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM rls_smoke;`).Scan(&count); err != nil {
		fatal(err)
	}
	if count != 1 {
		fatalf("expected count=1 for owner, got %d", count)
	}

	// Cross-organization insert is rejected even by the owner.
	if _, err := tx.Exec(ctx, `SAVEPOINT sp_cross;`); err != nil {
		fatal(err)
	}
	_, err = tx.Exec(ctx, `INSERT INTO rls_smoke (id, organization_id, owner_id) VALUES ('r2', 'org_b', 'user_1');`)
	if _, rbErr := tx.Exec(ctx, `ROLLBACK TO SAVEPOINT sp_cross;`); rbErr != nil {
		fatal(rbErr)
	}
	if err == nil {
		fatalf("expected RLS rejection on cross-organization insert")
	}

	// A different user in the same organization sees nothing: the owner
	// condition filters row visibility, not just the org boundary.
	bind("user_2", "org_a", "member")
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM rls_smoke;`).Scan(&count); err != nil {
		fatal(err)
	}
	if count != 0 {
		fatalf("expected count=0 for non-owner, got %d", count)
	}

	// Same user from another organization: invisible again.
	bind("user_1", "org_b", "member")
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM rls_smoke;`).Scan(&count); err != nil {
		fatal(err)
	}
	if count != 0 {
		fatalf("expected count=0 across organizations, got %d", count)
	}

	if err := tx.Commit(ctx); err != nil {
		fatal(err)
	}

	fmt.Println("[rls-smoke] OK")
}

// syncPolicies compiles the declared tables and installs their row policies.
func syncPolicies(args []string) {
	fs := flag.NewFlagSet("sync-policies", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var url, tablesPath string
	fs.StringVar(&url, "url", "", "postgres connection string")
	fs.StringVar(&tablesPath, "tables", "config/tables.json", "tables declaration file")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if url == "" {
		fatalf("missing --url")
	}

	specs, err := types.LoadTables(tablesPath)
	if err != nil {
		fatal(err)
	}
	policies, err := permission.CompileAll(specs)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		fatal(err)
	}
	defer conn.Close(context.Background())

	tx, err := conn.Begin(ctx)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	applied := 0
	for _, p := range policies {
		for _, stmt := range permission.PolicyDDL(p) {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				fatal(err)
			}
			applied++
		}
	}
	if err := tx.Commit(ctx); err != nil {
		fatal(err)
	}

	fmt.Printf("[sync-policies] applied %d statements for %d tables\n", applied, len(policies))
}

func tryEnsureRole(ctx context.Context, conn *pgx.Conn, role string) error {
	if !validSQLIdent(role) {
		return fmt.Errorf("invalid role: %s", role)
	}

	stmt := fmt.Sprintf(`DO $$
BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = '%s') THEN
    EXECUTE 'CREATE ROLE %s NOBYPASSRLS';
  END IF;
END
$$;`, role, role)
	if _, err := conn.Exec(ctx, stmt); err != nil {
		return err
	}
	return nil
}

func trySetRole(ctx context.Context, tx pgx.Tx, role string) bool {
	if _, err := tx.Exec(ctx, `SET ROLE `+role+`;`); err != nil {
		return false
	}
	return true
}

var reSQLIdent = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func validSQLIdent(s string) bool {
	return reSQLIdent.MatchString(s)
}

func fatal(err error) {
	if err == nil {
		os.Exit(1)
	}
	fatalf("%v", err)
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
