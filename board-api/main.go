package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"prism-board/board-api/api"
	"prism-board/board-api/board"
	"prism-board/board-api/broadcast"
	"prism-board/board-api/storage"
	"prism-board/internal/auth"
	"prism-board/internal/env"
)

func main() {
	env.ConfigureLogging()
	ctx := context.Background()

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	rc := redis.NewClient(env.RedisOptions(redisConn))

	var base board.Storage
	switch driver := env.String("STORAGE_DRIVER", "sqlite"); driver {
	case "sqlite":
		db, err := storage.OpenSQLite(ctx, env.String("SQLITE_PATH", "board.db"))
		if err != nil {
			log.Fatalf("sqlite: %v", err)
		}
		defer db.Close()
		base = db
	case "tables":
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		columns := os.Getenv("COLUMNS_TABLE")
		items := os.Getenv("ITEMS_TABLE")
		tasks := os.Getenv("TASKS_TABLE")
		if connStr == "" || columns == "" || items == "" || tasks == "" {
			log.Fatal("missing storage config")
		}
		tables, err := storage.NewTables(connStr, columns, items, tasks)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		base = tables
	default:
		log.Fatalf("unsupported STORAGE_DRIVER %q", driver)
	}

	cacheTTL, err := env.Duration("BOARD_CACHE_TTL", 5*time.Minute)
	if err != nil {
		log.Fatal(err)
	}
	store := storage.NewCache(base, rc, cacheTTL)

	intentTTL, err := env.Duration("INTENT_TTL", 24*time.Hour)
	if err != nil {
		log.Fatal(err)
	}
	intents := board.NewRedisIntents(rc, intentTTL)

	publishers := broadcast.Fanout{broadcast.NewRedisPublisher(rc)}
	if queue := os.Getenv("EVENTS_QUEUE"); queue != "" {
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		if connStr == "" {
			log.Fatal("EVENTS_QUEUE requires STORAGE_CONNECTION_STRING")
		}
		qp, err := broadcast.NewQueuePublisher(connStr, queue)
		if err != nil {
			log.Fatalf("queue: %v", err)
		}
		publishers = append(publishers, qp)
	}

	authenticator, err := auth.FromEnv()
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	logger := log.New()
	logger.SetLevel(log.GetLevel())
	svc := board.NewService(store, publishers, intents, logger)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
	}))
	api.Register(e, svc, authenticator, logger)

	listenAddr := ":" + env.String("BOARD_API_PORT", "8080")
	log.Infof("board api listening on %s", listenAddr)
	e.Logger.Fatal(e.Start(listenAddr))
}
