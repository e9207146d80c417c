package app

import (
	"log"
	"log/slog"

	"github.com/humanbelnik/judgement/internal/config"
	http_init "github.com/humanbelnik/judgement/internal/delivery/http/init"
	http_health "github.com/humanbelnik/judgement/internal/delivery/http/health"
	http_access_middleware "github.com/humanbelnik/judgement/internal/delivery/http/middleware/access"
	http_room "github.com/humanbelnik/judgement/internal/delivery/http/room"
	http_rules "github.com/humanbelnik/judgement/internal/delivery/http/rules"
	http_swagger "github.com/humanbelnik/judgement/internal/delivery/http/swagger"
	ws_room "github.com/humanbelnik/judgement/internal/delivery/ws/room"
	infra_memory_directory "github.com/humanbelnik/judgement/internal/infra/memory/directory"
	infra_postgres_directory "github.com/humanbelnik/judgement/internal/infra/postgres/directory"
	infra_pg_init "github.com/humanbelnik/judgement/internal/infra/postgres/init"
	infra_pg_migrations "github.com/humanbelnik/judgement/internal/infra/postgres/migrations"
	infra_redis_directory "github.com/humanbelnik/judgement/internal/infra/redis/directory"
	infra_redis_init "github.com/humanbelnik/judgement/internal/infra/redis/init"
	usecase_room "github.com/humanbelnik/judgement/internal/usecase/room"
)

// directory bundles the selected backend with its health check.
type directory struct {
	usecase_room.RoomDirectory
	pinger http_health.Pinger
}

func mustBuildDirectory(cfg *config.Config) directory {
	logger := slog.Default().With("backend", cfg.Directory.Backend)

	switch cfg.Directory.Backend {
	case config.BackendMemory:
		logger.Warn("rooms are kept in process memory and are not shared between instances")
		return directory{
			RoomDirectory: infra_memory_directory.New(infra_memory_directory.WithTxRetries(cfg.Directory.TxRetries)),
		}

	case config.BackendPostgres:
		if err := infra_pg_migrations.Up(infra_pg_init.DSN(cfg.Postgres)); err != nil {
			log.Fatalf("database migration failed: %v", err)
		}
		db := infra_pg_init.MustEstablishConn(cfg.Postgres)
		dir, err := infra_postgres_directory.New(db, infra_pg_init.DSN(cfg.Postgres),
			infra_postgres_directory.WithTxRetries(cfg.Directory.TxRetries),
			infra_postgres_directory.WithLogger(logger),
		)
		if err != nil {
			log.Fatalf("failed to start postgres room directory: %v", err)
		}
		return directory{RoomDirectory: dir, pinger: dir}
	}

	client := infra_redis_init.MustEstablishConn(cfg.Redis)
	dir, err := infra_redis_directory.New(client,
		infra_redis_directory.WithTxRetries(cfg.Directory.TxRetries),
		infra_redis_directory.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("failed to start redis room directory: %v", err)
	}
	return directory{RoomDirectory: dir, pinger: dir}
}

// buildServer assembles the HTTP and websocket surface over dir.
func buildServer(cfg *config.Config, dir directory) (*http_init.ControllerPool, *ws_room.Hub) {
	roomUC := usecase_room.New(dir.RoomDirectory,
		usecase_room.WithCodeAttempts(cfg.Game.CodeAttempts),
		usecase_room.WithLogger(slog.Default().With("component", "rooms")),
	)

	hub := ws_room.NewHub()

	controllerPool := http_init.NewControllerPool(http_access_middleware.ReadOnly(cfg.HTTP.ReadOnly))
	controllerPool.Add(http_swagger.New())
	controllerPool.Add(http_health.New(dir.pinger))
	controllerPool.Add(http_rules.New())
	controllerPool.Add(http_room.New(roomUC))
	controllerPool.Add(ws_room.New(roomUC, hub))
	controllerPool.Register()

	return controllerPool, hub
}

func Go(cfg *config.Config) {
	controllerPool, hub := buildServer(cfg, mustBuildDirectory(cfg))
	defer hub.Shutdown()

	controllerPool.RunAll(cfg.HTTP.Port)
}
