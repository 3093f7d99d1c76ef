package main

import (
	"context"
	"errors"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"

	"prism-board/board-api/storage"
	"prism-board/internal/env"
)

const queueAlreadyExists = "QueueAlreadyExists"

func main() {
	env.ConfigureLogging()
	log.Info("storage init starting")
	ctx := context.Background()

	switch driver := env.String("STORAGE_DRIVER", "sqlite"); driver {
	case "sqlite":
		path := env.String("SQLITE_PATH", "board.db")
		db, err := storage.OpenSQLite(ctx, path)
		if err != nil {
			log.Fatalf("migrate sqlite %s: %v", path, err)
		}
		_ = db.Close()
	case "tables":
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		if connStr == "" {
			log.Fatal("missing STORAGE_CONNECTION_STRING")
		}
		if err := createTables(ctx, connStr, []string{
			os.Getenv("COLUMNS_TABLE"),
			os.Getenv("ITEMS_TABLE"),
			os.Getenv("TASKS_TABLE"),
		}); err != nil {
			log.Fatalf("create tables: %v", err)
		}
	default:
		log.Fatalf("unsupported STORAGE_DRIVER %q", driver)
	}

	if queue := os.Getenv("EVENTS_QUEUE"); queue != "" {
		if err := createQueues(ctx, os.Getenv("STORAGE_CONNECTION_STRING"), []string{queue}); err != nil {
			log.Fatalf("create queues: %v", err)
		}
	}

	log.Info("storage init complete")
}

func createTables(ctx context.Context, connStr string, names []string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, err := svc.NewClient(name).CreateTable(ctx, nil); err != nil && !alreadyExists(err, string(aztables.TableAlreadyExists)) {
			return err
		}
		log.WithField("table", name).Debug("table ready")
	}
	return nil
}

func createQueues(ctx context.Context, connStr string, names []string) error {
	if connStr == "" {
		return errors.New("missing STORAGE_CONNECTION_STRING")
	}
	for _, name := range names {
		q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
		if err != nil {
			return err
		}
		if _, err := q.Create(ctx, nil); err != nil && !alreadyExists(err, queueAlreadyExists) {
			return err
		}
		log.WithField("queue", name).Debug("queue ready")
	}
	return nil
}

func alreadyExists(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}
