package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sovrium/sovrium/internal/server"
	"github.com/sovrium/sovrium/modules/permission/domain/types"
	permission "github.com/sovrium/sovrium/modules/permission/services"
	"github.com/sovrium/sovrium/modules/record/infrastructure/persistence"
	recordsvc "github.com/sovrium/sovrium/modules/record/services"
)

func main() {
	ctx := context.Background()

	tablesPath := os.Getenv("TABLES_PATH")
	if tablesPath == "" {
		tablesPath = "config/tables.json"
	}

	specs, err := types.LoadTables(tablesPath)
	if err != nil {
		log.Fatalf("load tables: %v", err)
	}
	policies, err := permission.CompileAll(specs)
	if err != nil {
		log.Fatalf("compile tables: %v", err)
	}
	registry := permission.NewRegistry()
	registry.Replace(policies)

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	policySync := persistence.NewPolicyPGSync(pool)
	var stmts []string
	for _, p := range policies {
		stmts = append(stmts, permission.PolicyDDL(p)...)
	}
	if err := policySync.Apply(ctx, stmts); err != nil {
		log.Fatalf("sync row policies: %v", err)
	}

	records := recordsvc.NewRecordService(registry, persistence.NewRecordPGStore(pool))

	mux, err := server.NewMuxFromEnv(registry, records, policySync)
	if err != nil {
		log.Fatalf("build server: %v", err)
	}

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	log.Printf("listening on %s (%d tables)", addr, len(policies))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}
