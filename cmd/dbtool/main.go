package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fleetgrid/fleetgrid/internal/registry"
	"github.com/fleetgrid/fleetgrid/modules/fleet/infrastructure/persistence"
	"github.com/fleetgrid/fleetgrid/pkg/uuidv7"
)

func main() {
	if len(os.Args) < 2 {
		fatalf("usage: dbtool <apply-schema|seed-admin-key|store-smoke> [args]")
	}

	switch os.Args[1] {
	case "apply-schema":
		applySchema(os.Args[2:])
	case "seed-admin-key":
		seedAdminKey(os.Args[2:])
	case "store-smoke":
		storeSmoke(os.Args[2:])
	default:
		fatalf("unknown subcommand: %s", os.Args[1])
	}
}

func applySchema(args []string) {
	fs := flag.NewFlagSet("apply-schema", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var url string
	fs.StringVar(&url, "url", "", "postgres connection string")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if url == "" {
		fatalf("missing --url")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		fatal(err)
	}
	defer conn.Close(context.Background())

	for _, t := range persistence.AllTables() {
		if _, err := conn.Exec(ctx, registry.CreateTableSQL(t)); err != nil {
			fatalf("create %s: %v", t.Name, err)
		}
		fmt.Printf("applied %s\n", t.Name)
	}
}

func seedAdminKey(args []string) {
	fs := flag.NewFlagSet("seed-admin-key", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var url, label string
	fs.StringVar(&url, "url", "", "postgres connection string")
	fs.StringVar(&label, "label", "bootstrap admin", "key label")
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

	token, err := uuidv7.NewString()
	if err != nil {
		fatal(err)
	}
	if _, err := conn.Exec(ctx,
		`INSERT INTO api_keys (token, label, admin, tenants, created_at) VALUES ($1, $2, TRUE, '', $3)`,
		token, label, time.Now().UnixMilli()); err != nil {
		fatal(err)
	}
	fmt.Printf("admin token: %s\n", token)
}

// storeSmoke exercises the record store end to end against a live database:
// create a tenant, insert a row, read it back, delete it.
func storeSmoke(args []string) {
	fs := flag.NewFlagSet("store-smoke", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var url string
	fs.StringVar(&url, "url", "", "postgres connection string")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if url == "" {
		fatalf("missing --url")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	engine, err := registry.NewPGEngine(ctx, url)
	if err != nil {
		fatal(err)
	}
	defer engine.Close()

	store := registry.NewStore(engine)
	scope := registry.UnrestrictedScope("store-smoke")

	rows, err := store.Add(ctx, scope, persistence.Hardware, []registry.Row{
		{"imei": fmt.Sprintf("smoke-%d", time.Now().UnixNano()), "phone": "+000"},
	}, registry.AddOptions{CreateTenant: true})
	if err != nil {
		fatal(err)
	}
	id := rows[0].ID()

	got, err := store.Get(ctx, scope, persistence.Hardware, registry.Query{
		Criteria: registry.Criteria{registry.Eq(registry.ColID, id)},
	})
	if err != nil {
		fatal(err)
	}
	if len(got) != 1 {
		fatalf("roundtrip: expected 1 row, got %d", len(got))
	}
	if err := store.Delete(ctx, scope, persistence.Hardware, id); err != nil {
		fatal(err)
	}
	fmt.Println("store smoke ok")
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
