package main

import (
	"log"

	"github.com/humanbelnik/judgement/internal/config"
	infra_pg_init "github.com/humanbelnik/judgement/internal/infra/postgres/init"
	infra_pg_migrations "github.com/humanbelnik/judgement/internal/infra/postgres/migrations"
)

func main() {
	cfg := config.Load()

	if err := infra_pg_migrations.Up(infra_pg_init.DSN(cfg.Postgres)); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}
	log.Println("database migrations applied")
}
