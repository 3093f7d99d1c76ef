package main

import (
	"context"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"prism-board/internal/auth"
	"prism-board/internal/env"
	"prism-board/stream-service/api"
	"prism-board/stream-service/subscription"
)

func main() {
	env.ConfigureLogging()

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	rc := redis.NewClient(env.RedisOptions(redisConn))

	authenticator, err := auth.FromEnv()
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	buffer, err := env.Int("STREAM_CLIENT_BUFFER", 64)
	if err != nil {
		log.Fatal(err)
	}

	logger := log.New()
	logger.SetLevel(log.GetLevel())
	hub := subscription.NewHub(rc, logger)
	go hub.Run(context.Background())

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	api.Register(e, hub, authenticator, logger, api.WithClientBuffer(buffer))

	listenAddr := ":" + env.String("STREAM_SERVICE_PORT", "9000")
	log.Infof("stream service listening on %s", listenAddr)
	e.Logger.Fatal(e.Start(listenAddr))
}
