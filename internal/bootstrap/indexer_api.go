package bootstrap

import (
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog"

	"indexer_server/adapter/in/http"
	"indexer_server/config"
	"indexer_server/infra/middleware"
	"indexer_server/pkg/logger"
)

// NewAPI builds the fiber app with all control-plane routes.
func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	logLevel := logger.ParseLevel(cfg.LogLevel)
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   logLevel,
		Service: "mailindex-api",
	})

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "api").Logger()

	deps, cleanup, err := NewDependencies(cfg, zlog)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),

		// go-json: faster JSON codec than encoding/json
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit: 1 * 1024 * 1024, // control plane only
	})

	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger())
	app.Use(compress.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, X-Request-ID",
		AllowMethods: "GET, POST",
	}))

	// Routes
	http.NewHealthHandler(deps.IndexService).Register(app)
	http.NewIndexHandler(deps.IndexService, deps.Producer, zlog).Register(app)
	http.NewSSEHandler(deps.SSEHub, zlog).Register(app)

	return app, cleanup, nil
}
