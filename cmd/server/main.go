package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pixel-chat/auth"
	"pixel-chat/infrastructure/blobhttp"
	chatgrpc "pixel-chat/infrastructure/grpc"
	"pixel-chat/infrastructure/storage"
	"pixel-chat/internal"
	"pixel-chat/runtime"

	"github.com/bwmarrin/snowflake"
	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	sdkgrpc "github.com/mama165/sdk-go/grpc"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run keeps every defer (database close included) ahead of the exit code.
func run() error {
	config, err := internal.LoadServerConfig()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	node, err := snowflake.NewNode(config.NodeID)
	if err != nil {
		return fmt.Errorf("snowflake node: %w", err)
	}
	issuer, err := auth.NewIssuer(config.AuthSecret, config.AuthTokenDuration)
	if err != nil {
		return err
	}
	blobs, err := storage.NewBlobStore(config.BlobRoot, config.BlobPublicURL, log)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}
	documents := storage.NewDocumentStore(db, node, log)

	if config.DebugPort > 0 {
		log.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d/inspect", config.DebugPort))
		database.StartDebugServer(db, config.DebugPort, "/inspect", recordMapper)
	}

	interceptor := auth.NewInterceptor(issuer, chatgrpc.PublicMethods...)
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			sdkgrpc.UnaryLoggingInterceptor(log),
			interceptor.Unary(),
		),
		grpc.StreamInterceptor(interceptor.Stream()),
	)
	chatgrpc.NewServer(documents, issuer, log).Register(grpcServer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := runtime.NewSupervisor(log)
	sup.Add(
		runtime.NewGRPCServer(config.GRPCAddress, grpcServer, log),
		runtime.NewHTTPServer(config.BlobAddress, blobhttp.NewServer(blobs, config.BlobRoot, log), log),
	)
	log.Info("Pixel chat server started", "grpc", config.GRPCAddress, "blobs", config.BlobAddress)
	sup.Run(ctx)

	log.Info("Program stopped cleanly")
	return nil
}

// recordMapper renders document entries on the debug inspector.
func recordMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	record, ok, err := storage.DecodeEntry([]byte(key), val)
	if err != nil {
		row.Detail = "Error: unmarshal failed"
		return row
	}
	if !ok {
		row.Type = "INDEX"
		return row
	}
	row.Type = "TEXT"
	if kind, _ := record.Fields["type"].(string); kind == "photo" {
		row.Type = "PHOTO"
	}
	row.Timestamp = record.CreatedAt.Format(time.TimeOnly)
	row.EntityID = record.ID
	row.Namespace, _ = record.Fields["uid"].(string)
	if text, _ := record.Fields["text"].(string); text != "" {
		row.Detail = text
	} else if photo, _ := record.Fields["photoURL"].(string); photo != "" {
		row.Detail = photo
	}
	if status, _ := record.Fields["status"].(string); status != "" {
		row.Scores = status
	}
	return row
}
