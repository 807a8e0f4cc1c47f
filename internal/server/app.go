// Package server wires the messaging core together: it opens storage,
// applies migrations, loads the master key, builds the services and runs the
// gRPC endpoint until the process is signalled.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/gophtalk/internal/cryptox"
	"github.com/dmitrijs2005/gophtalk/internal/envelope"
	"github.com/dmitrijs2005/gophtalk/internal/keyvault"
	"github.com/dmitrijs2005/gophtalk/internal/logging"
	"github.com/dmitrijs2005/gophtalk/internal/server/blobstore"
	"github.com/dmitrijs2005/gophtalk/internal/server/cache"
	"github.com/dmitrijs2005/gophtalk/internal/server/config"
	"github.com/dmitrijs2005/gophtalk/internal/server/events"
	"github.com/dmitrijs2005/gophtalk/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophtalk/internal/server/services"

	gs "github.com/dmitrijs2005/gophtalk/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	server  *gs.GRPCServer
	closers []io.Closer
}

// NewApp validates c and builds every dependency of the server. The master
// key is dropped from c once the vault holds it.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.NewJSON(os.Stdout, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	alg, err := cryptox.ParseAlgorithm(c.CipherAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("cipher init error: %w", err)
	}
	vault, err := keyvault.NewFromHex(alg, c.MasterKey, c.PreviousMasterKeys...)
	if err != nil {
		return nil, fmt.Errorf("key vault init error: %w", err)
	}
	retired := len(c.PreviousMasterKeys)
	c.MasterKey = ""
	c.PreviousMasterKeys = nil

	app := &App{config: c, logger: logger}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	app.closers = append(app.closers, db)

	if err := db.PingContext(ctx); err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("migration error: %w", err)
	}

	roomCache, err := app.initRoomCache(ctx)
	if err != nil {
		app.close(ctx)
		return nil, err
	}

	publisher := app.initPublisher(ctx)

	blobs, err := blobstore.NewS3Store(ctx, c)
	if err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	cipher := envelope.NewCipher(vault)

	audit := services.NewAuditService(db, rm, logger)
	rooms := services.NewRoomService(db, rm, audit, roomCache, publisher, logger)
	guard := services.NewAccessGuard(rooms, audit, logger)
	messages := services.NewMessageService(db, rm, c, cipher, guard, rooms, audit, publisher, logger)
	attachments := services.NewAttachmentService(db, rm, c, cipher, blobs, guard, audit, publisher, logger)

	app.server = gs.NewGRPCServer(c.EndpointAddrGRPC, logger, rooms, messages, attachments, c.SecretKey, c.MaxAttachmentSize)

	logger.Info(ctx, "App initialized", "cipher", string(alg), "retired_keys", retired)

	return app, nil
}

func (app *App) initRoomCache(ctx context.Context) (cache.RoomCache, error) {
	if app.config.RedisAddr == "" {
		app.logger.Info(ctx, "Room cache disabled")
		return cache.NopRoomCache{}, nil
	}

	client, err := cache.NewRedisClient(ctx, app.config.RedisAddr, app.config.RedisPassword, app.config.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("redis init error: %w", err)
	}
	app.closers = append(app.closers, client)

	return cache.NewRedisRoomCache(client, app.config.RoomCacheTTL), nil
}

func (app *App) initPublisher(ctx context.Context) events.Publisher {
	if len(app.config.KafkaBrokers) == 0 {
		app.logger.Info(ctx, "Room events disabled")
		return events.NopPublisher{}
	}

	p := events.NewKafkaPublisher(app.config.KafkaBrokers, app.config.KafkaTopic)
	app.closers = append(app.closers, p)
	return p
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// close releases resources in reverse order of acquisition.
func (app *App) close(ctx context.Context) {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			app.logger.Error(ctx, "close failed", "error", err)
		}
	}
	app.closers = nil
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.close(context.WithoutCancel(ctx))
	app.logger.Info(ctx, "App stopped")
}
