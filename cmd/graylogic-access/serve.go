package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-access/internal/api"
	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-access/internal/terminal"
	"github.com/nerrad567/gray-logic-access/internal/terminal/simulator"
)

// configLoader returns the configuration selected by the root flags.
type configLoader func() (*config.Config, error)

func newServeCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

// serve is the gateway lifecycle, separated from the command for testability.
// It returns nil on clean shutdown once ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.New(cfg.Logging, version)
	log.Info("starting Gray Logic Access",
		"version", version,
		"commit", commit,
		"build_date", date,
		"site", cfg.Site.ID,
	)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database ready", "path", cfg.Database.Path)

	driver, err := buildDriver(ctx, cfg, db, log)
	if err != nil {
		return err
	}

	// Audit trail, written off the request path
	auditRepo := audit.NewSQLiteRepository(db.DB)
	auditWriter := audit.NewWriter(auditRepo, log, "api")
	writerCtx, stopWriter := context.WithCancel(context.Background())
	go auditWriter.Run(writerCtx)
	defer func() {
		stopWriter()
		<-auditWriter.Done()
		log.Info("audit writer drained")
	}()

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	var publisher terminal.EventPublisher
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT online status published", "topic", mqtt.Topics{}.SystemStatus())
		})
		defer func() {
			stats := mqttClient.Stats()
			log.Info("disconnecting from MQTT", "published", stats.Published, "publish_failures", stats.Failed)
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		publisher = newMQTTPublisher(mqttClient)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	var recorder terminal.ProbeRecorder
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		defer func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
			stats := influxClient.Stats()
			log.Info("InfluxDB connection closed", "points_queued", stats.Queued, "batch_failures", stats.Failed)
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		recorder = newInfluxRecorder(influxClient)
	} else {
		log.Info("InfluxDB disabled")
	}

	svc := terminal.NewService(terminal.Options{
		Driver:    driver,
		Primary:   terminal.Transport(cfg.Terminal.Transport),
		Secondary: terminal.Transport(cfg.Terminal.FallbackTransport),
		Location:  cfg.Location(),
		AfterYear: cfg.Attendance.AfterYear,
		Logger:    log.With("component", "terminal"),
		Auditor:   auditWriter,
		Publisher: publisher,
		Recorder:  recorder,
	})

	srv, err := api.New(api.Deps{
		Config:   cfg.API,
		Security: cfg.Security,
		Terminal: cfg.Terminal,
		Logger:   log,
		Service:  svc,
		Audit:    auditRepo,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if cfg.Security.JWT.Secret == "" {
		log.Warn("security.jwt.secret is empty; the API accepts unauthenticated requests")
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API server, InfluxDB, MQTT, audit writer, database.
	return nil
}

// openDatabase opens the SQLite database and applies pending migrations.
func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// noDriver rejects every dial. It backs terminal.driver "none".
var noDriver = terminal.DriverFunc(func(context.Context, terminal.Endpoint) (terminal.Session, error) {
	return nil, fmt.Errorf("%w: no terminal driver configured", terminal.ErrUnsupported)
})

// buildDriver returns the terminal backend named by terminal.driver.
// The simulator's terminals are seeded from the simulator section.
func buildDriver(ctx context.Context, cfg *config.Config, db *database.DB, log *logging.Logger) (terminal.Driver, error) {
	switch cfg.Terminal.Driver {
	case "simulator":
		sim := simulator.New(db.DB, cfg.Location(), log.With("component", "simulator"))
		for _, t := range cfg.Simulator.Terminals {
			if _, err := sim.Seed(ctx, t); err != nil {
				return nil, err
			}
		}
		log.Info("simulator driver ready", "seeded_terminals", len(cfg.Simulator.Terminals))
		return sim, nil
	case "none":
		log.Warn("no terminal driver configured; terminal routes will answer 501")
		return noDriver, nil
	default:
		return nil, fmt.Errorf("unknown terminal driver %q", cfg.Terminal.Driver)
	}
}

// healthCheck verifies all infrastructure connections are healthy.
// Disabled clients are nil and skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
