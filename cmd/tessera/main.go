// Tessera - Exhibit Fleet Orchestrator
//
// This is the main entry point for the tessera orchestrator. Tessera keeps
// a museum floor running: it ingests heartbeats from interactive exhibits,
// derives liveness from timestamps, queues commands for at-most-once pickup,
// coordinates synchronized playback starts, drives the 21-day calendar
// scheduler, and polls projectors and wake-on-LAN hosts that never phone
// home themselves.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/openexhibits/tessera-core/migrations"

	"github.com/openexhibits/tessera-core/internal/api"
	"github.com/openexhibits/tessera-core/internal/barrier"
	"github.com/openexhibits/tessera-core/internal/component"
	"github.com/openexhibits/tessera-core/internal/driver"
	"github.com/openexhibits/tessera-core/internal/health"
	"github.com/openexhibits/tessera-core/internal/infrastructure/config"
	"github.com/openexhibits/tessera-core/internal/infrastructure/database"
	"github.com/openexhibits/tessera-core/internal/infrastructure/influxdb"
	"github.com/openexhibits/tessera-core/internal/infrastructure/logging"
	"github.com/openexhibits/tessera-core/internal/infrastructure/mqtt"
	"github.com/openexhibits/tessera-core/internal/schedule"
	"github.com/openexhibits/tessera-core/internal/timers"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cancel); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// selfRestarter implements the scheduler's daily restart by cancelling the
// run context; the service supervisor brings the process back up. Restarting
// rather than running indefinitely keeps long-lived leaks in embedded
// exhibit installations from ever mattering.
type selfRestarter struct {
	cancel context.CancelFunc
	logger *logging.Logger
}

func (r *selfRestarter) Restart() {
	r.logger.Info("daily restart: shutting down for supervisor relaunch")
	r.cancel()
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context, cancel context.CancelFunc) error { //nolint:gocognit,gocyclo // startup wiring: each component connects in sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting tessera",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// The timer wheel drives every deferred action in the system: status
	// decay, health poll cycles, schedule fires, the midnight reload.
	wheel := timers.NewWheel()
	go wheel.Run(ctx)

	// Component registry
	repo := component.NewSQLiteRepository(db.DB)
	repo.SetLogger(log)
	registry := component.NewRegistry(repo, wheel)
	registry.SetLogger(log)

	activeHold, onlineHold, waitingHold := cfg.DecayWindows()
	registry.SetDecayConfig(component.DecayConfig{
		ActiveHold:  activeHold,
		OnlineHold:  onlineHold,
		WaitingHold: waitingHold,
	})

	if loadErr := registry.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading component registry: %w", loadErr)
	}
	log.Info("component registry initialised", "components", registry.Count())

	// Connect to MQTT broker (optional: without it, commands fall back to
	// the heartbeat pull queue and DMX scene entries are dropped)
	var mqttClient *mqtt.Client
	var mqttBridge *driver.MQTTBridge
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		mqttBridge = driver.NewMQTTBridge(mqttClient)
		mqttBridge.SetLogger(log)

		// Broker-attached components (DMX bridges, embedded players) push
		// heartbeats over MQTT instead of HTTP.
		listener := driver.NewMQTTListener(mqttClient, mqttClient, registry)
		listener.SetLogger(log)
		if listenErr := listener.Start(); listenErr != nil {
			return fmt.Errorf("starting broker heartbeat listener: %w", listenErr)
		}
	} else {
		log.Info("MQTT disabled, immediate command delivery unavailable")
	}

	// Wake-on-LAN sender
	wolSender := driver.NewWOLSender(cfg.Health.WakeBroadcast)
	wolSender.SetLogger(log)

	if mqttBridge != nil {
		registry.SetDrivers(mqttBridge, wolSender)
	} else {
		registry.SetDrivers(nil, wolSender)
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		registry.SetTelemetrySink(influxClient)
		registry.SetStatusRecorder(influxClient)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Health poller for the kinds that never phone home
	pinger := driver.NewPinger(cfg.Health.PingPrivileged)
	poller := health.New(registry, wheel)
	poller.SetLogger(log)
	intervals := health.DefaultIntervals()
	intervals.Projector = secondsToDuration(cfg.Health.ProjectorInterval)
	intervals.WakeState = secondsToDuration(cfg.Health.WakeInterval)
	intervals.Latency = secondsToDuration(cfg.Health.LatencyInterval)
	poller.SetIntervals(intervals)
	poller.SetProber(component.KindProjector, driver.NewPJLinkProber(cfg.Health.PJLinkPassword))
	poller.SetProber(component.KindWakeOnLAN, driver.NewWakeStateProber(pinger))
	poller.SetLatencyProber(pinger)
	if influxClient != nil {
		poller.SetLatencySink(influxClient)
	}
	poller.Start(ctx)
	log.Info("health poller started")

	// Synchronization barrier coordinator
	coordinator := barrier.New(registry)
	coordinator.SetLogger(log)

	// Calendar scheduler
	store, err := schedule.NewStore(cfg.Schedule.Dir, cfg.Location())
	if err != nil {
		return fmt.Errorf("opening schedule store: %w", err)
	}
	store.SetLogger(log)

	engine := schedule.NewEngine(store, wheel, registry)
	engine.SetLogger(log)
	engine.SetNotifier(registry.Clock())
	if mqttBridge != nil {
		engine.SetScenePublisher(mqttBridge)
	}
	if cfg.Schedule.RestartTime != "" {
		engine.SetRestart(cfg.Schedule.RestartTime, &selfRestarter{cancel: cancel, logger: log})
	}
	if reloadErr := engine.Reload(ctx); reloadErr != nil {
		return fmt.Errorf("loading schedule: %w", reloadErr)
	}
	log.Info("scheduler started", "dir", cfg.Schedule.Dir, "timezone", cfg.Site.Timezone)

	// HTTP API server
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Registry: registry,
		Barrier:  coordinator,
		Schedule: engine,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// The hub fans registry change events out to connected consoles.
	registry.SetEventSink(server.Hub())

	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal (or the daily scheduled restart)
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("tessera stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses TESSERA_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TESSERA_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// secondsToDuration converts a config interval in whole seconds.
func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

// healthCheck verifies all infrastructure connections are healthy.
// MQTT and InfluxDB are optional; nil clients are skipped.
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
