package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/biosecret/go-tasks/cache"
	"github.com/biosecret/go-tasks/config"
	"github.com/biosecret/go-tasks/database"
	"github.com/biosecret/go-tasks/events"
	"github.com/biosecret/go-tasks/handlers"
	"github.com/biosecret/go-tasks/logging"
	"github.com/biosecret/go-tasks/middleware"
	"github.com/biosecret/go-tasks/router"
	"github.com/biosecret/go-tasks/services"
)

// Dependencies are the collaborators New wires into the Fiber app.
// Cache and Publisher are optional.
type Dependencies struct {
	Config    *config.Config
	Log       zerolog.Logger
	Store     database.Store
	Cache     *cache.TaskListCache
	Publisher events.Publisher
}

// New builds the Fiber app with middleware, routes and swagger.
func New(deps Dependencies) *fiber.App {
	tokens := services.NewTokenManager(deps.Config.JWT.Secret, deps.Config.JWT.ExpiresIn, deps.Config.JWT.Issuer)
	auth := services.NewAuthService(deps.Store, tokens, deps.Config.JWT.BcryptCost)

	opts := []services.TaskOption{services.WithLogger(deps.Log)}
	if deps.Cache != nil {
		opts = append(opts, services.WithListCache(deps.Cache))
	}
	if deps.Publisher != nil {
		opts = append(opts, services.WithPublisher(deps.Publisher))
	}
	tasks := services.NewTaskService(deps.Store, opts...)

	app := fiber.New(fiber.Config{
		AppName:      "go-tasks",
		ErrorHandler: handlers.ErrorHandler(deps.Log),
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Đính kèm middleware để xử lý lỗi và ghi log
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${ip}]:${port} ${status} - ${method} ${path} ${latency}\n",
	}))

	var handlerOpts []handlers.Option
	if deps.Cache != nil {
		handlerOpts = append(handlerOpts, handlers.WithCache(deps.Cache))
	}
	router.SetupRoutes(app, handlers.New(auth, tasks, deps.Store, handlerOpts...), middleware.Auth(auth))
	config.AddSwaggerRoutes(app)

	return app
}

// SetupAndRunApp khởi động ứng dụng Fiber.
// It blocks until a shutdown signal has been handled or Listen fails.
func SetupAndRunApp() error {
	if err := config.LoadENV(); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logging.New(cfg.Server.LogLevel, cfg.IsDevelopment())

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, err := database.Open(startCtx, cfg.Database)
	if err != nil {
		return err
	}
	log.Info().Str("driver", cfg.Database.Driver).Msg("database connected")

	deps := Dependencies{Config: cfg, Log: log, Store: store}

	if cfg.Cache.RedisURL != "" {
		taskCache, err := cache.Connect(startCtx, cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			store.Close()
			return err
		}
		deps.Cache = taskCache
		log.Info().Dur("ttl", cfg.Cache.TTL).Msg("task list cache enabled")
	}

	if cfg.Events.MQTTURL != "" {
		publisher, err := events.NewMQTTPublisher(cfg.Events.MQTTURL, cfg.Events.ClientID)
		if err != nil {
			// events are best effort; the API works without them
			log.Warn().Err(err).Msg("mqtt unavailable, task events disabled")
		} else {
			deps.Publisher = publisher
			log.Info().Msg("task events enabled")
		}
	}

	app := New(deps)

	listenErr := make(chan error, 1)
	go func() {
		// Lắng nghe trên cổng chỉ định
		listenErr <- app.Listen(":" + cfg.Server.Port)
	}()
	log.Info().Str("port", cfg.Server.Port).Msg("server started")

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.Server.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http": func(ctx context.Context) error {
				log.Info().Msg("graceful shutdown initiated")
				return closeAll(ctx, app, deps)
			},
		},
	)

	var code int
	select {
	case err := <-listenErr:
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return errors.Join(err, closeAll(closeCtx, app, deps))
		}
		// Listen returns nil once the shutdown operation stopped the server
		code = <-wait
	case code = <-wait:
	}

	if code != 0 {
		return fmt.Errorf("shutdown finished with exit code %d", code)
	}
	log.Info().Msg("server stopped")
	return nil
}

// closeAll stops accepting requests before releasing what handlers use.
func closeAll(ctx context.Context, app *fiber.App, deps Dependencies) error {
	var errs []error
	if err := app.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	if deps.Publisher != nil {
		deps.Publisher.Close()
	}
	if deps.Cache != nil {
		if err := deps.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache: %w", err))
		}
	}
	if err := deps.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	return errors.Join(errs...)
}
