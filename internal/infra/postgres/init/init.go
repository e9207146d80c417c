package infra_pg_init

import (
	"log"
	"net/url"

	"github.com/humanbelnik/judgement/internal/config"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// DSN is a postgres:// URL. It is shared by the pool, the LISTEN
// connection pq opens on its own, and the migrator.
func DSN(cfg config.Postgres) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host + ":" + cfg.Port,
		Path:     "/" + cfg.DBName,
		RawQuery: url.Values{"sslmode": {cfg.SSLMode}}.Encode(),
	}
	return u.String()
}

func MustEstablishConn(cfg config.Postgres) *sqlx.DB {
	db, err := sqlx.Connect("postgres", DSN(cfg))
	if err != nil {
		log.Fatal(err)
	}

	return db
}
