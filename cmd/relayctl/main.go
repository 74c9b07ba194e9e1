// relayctl supervises a single media-relay process and exposes an HTTP
// control surface for its configuration and lifecycle.
//
// For the route table, see internal/api/doc.go.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/relayctl/internal/api"
	"github.com/nerrad567/relayctl/internal/audit"
	"github.com/nerrad567/relayctl/internal/events"
	"github.com/nerrad567/relayctl/internal/infrastructure/config"
	"github.com/nerrad567/relayctl/internal/infrastructure/database"
	"github.com/nerrad567/relayctl/internal/infrastructure/influxdb"
	"github.com/nerrad567/relayctl/internal/infrastructure/logging"
	"github.com/nerrad567/relayctl/internal/infrastructure/mqtt"
	"github.com/nerrad567/relayctl/internal/metrics"
	"github.com/nerrad567/relayctl/internal/process"
	"github.com/nerrad567/relayctl/internal/relayconfig"
	"github.com/nerrad567/relayctl/internal/relaylog"
	"github.com/nerrad567/relayctl/internal/webui"
	"github.com/nerrad567/relayctl/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// auditTimeout bounds the synchronous audit write for MQTT commands.
const auditTimeout = 5 * time.Second

type options struct {
	Config  string `short:"c" long:"config" env:"RELAYCTL_CONFIG" description:"path to the relayctl config file"`
	Version bool   `short:"v" long:"version" description:"print version and exit"`
}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if opts.Version {
		fmt.Printf("relayctl %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseOptions parses command-line flags. The config path falls back to
// RELAYCTL_CONFIG and then to defaultConfigPath.
func parseOptions(args []string) (options, error) {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag)
	if _, err := parser.ParseArgs(args); err != nil {
		return opts, err
	}
	if opts.Config == "" {
		opts.Config = defaultConfigPath
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context, opts options) error {
	log := logging.Default()
	log.Info("starting relayctl",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", opts.Config,
		"relay", cfg.Relay.Name,
		"binary", cfg.Relay.Binary,
	)

	checks := make(map[string]api.HealthChecker)

	// Audit trail (optional)
	var repo *audit.SQLiteRepository
	if cfg.Database.Enabled {
		db, dbErr := database.Open(cfg.Database)
		if dbErr != nil {
			return fmt.Errorf("opening database: %w", dbErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		repo = audit.NewSQLiteRepository(db.DB)
		checks["database"] = db
		log.Info("database ready", "path", cfg.Database.Path)
	} else {
		log.Info("database disabled, audit trail and revisions unavailable")
	}

	output := relaylog.New(cfg.Relay.Name, cfg.Relay.TailLines, log)
	store := relayconfig.NewStore(cfg.Relay.ConfigPath)
	dispatcher := events.NewDispatcher(log)

	sup := process.NewSupervisor(process.Config{
		Name:            cfg.Relay.Name,
		Binary:          cfg.Relay.Binary,
		ConfigPath:      cfg.Relay.ConfigPath,
		Args:            cfg.Relay.Args,
		Env:             cfg.Relay.Env,
		WorkDir:         cfg.Relay.WorkDir,
		GracefulTimeout: cfg.Relay.StopTimeout,
		PollInterval:    cfg.Relay.PollInterval,
		Watchdog:        cfg.Relay.Watchdog,
		Output:          output,
		OnEvent:         dispatcher.Dispatch,
	})
	sup.SetLogger(log.Component("supervisor"))

	dispatcher.Register("metrics", events.MetricsSink())
	if repo != nil {
		dispatcher.Register("audit", events.AuditSink(repo))
	}

	// MQTT bridge (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		var mqttErr error
		mqttClient, mqttErr = startMQTT(cfg, sup, repo, log)
		if mqttErr != nil {
			return mqttErr
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		dispatcher.Register("mqtt", events.MQTTSink(mqttClient))
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			metrics.RecordSinkError("influxdb")
			log.Error("InfluxDB write error", "error", err)
		})
		dispatcher.Register("influxdb", events.InfluxSink(influxClient))
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	deps := api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log,
		Supervisor: sup,
		Store:      store,
		Output:     output,
		Checks:     checks,
		UI:         webui.Handler(cfg.UI.Dir),
		Version:    version,
	}
	if repo != nil {
		deps.Audit = repo
		deps.Revisions = repo
	}
	srv, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	dispatcher.Register("websocket", events.BroadcastSink(srv.Hub()))
	log.Info("event sinks registered", "sinks", dispatcher.Sinks())

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	if cfg.Relay.AutoStart {
		if !sup.Start() {
			log.Warn("relay did not start, waiting for a control request")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Relay.WatchConfig {
		watcher := relayconfig.NewWatcher(store, cfg.Relay.WatchDebounce, func() {
			metrics.RecordConfigReload()
			ok := sup.Restart()
			auditWatcherRestart(repo, ok, log)
		}, log)
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	log.Info("initialisation complete, waiting for shutdown signal", "address", srv.Addr())

	<-gctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Cut off every source of lifecycle calls before the final stop.
	if mqttClient != nil {
		if unsubErr := mqttClient.StopCommands(); unsubErr != nil {
			log.Warn("error dropping MQTT command subscription", "error", unsubErr)
		}
	}
	if closeErr := srv.Close(); closeErr != nil {
		log.Error("error closing API server", "error", closeErr)
	}
	watchErr := g.Wait()

	if !sup.Shutdown(2 * cfg.Relay.StopTimeout) {
		log.Warn("relay did not stop cleanly")
	}

	// Remaining deferred Close() calls run in reverse order:
	// InfluxDB, MQTT, database.
	if watchErr != nil {
		return fmt.Errorf("config watcher: %w", watchErr)
	}

	log.Info("relayctl stopped")
	return nil
}

// startMQTT connects the bridge and routes broker commands to the supervisor.
func startMQTT(cfg *config.Config, sup *process.Supervisor, repo *audit.SQLiteRepository, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg.MQTT, cfg.Relay.Name)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttLog := log.Component("mqtt")
	client.SetLogger(mqttLog)
	client.SetOnConnect(func() {
		mqttLog.Info("MQTT connected")
	})
	client.SetOnDisconnect(func(err error) {
		mqttLog.Warn("MQTT disconnected", "error", err)
	})

	hook := func(action string, ok bool) {
		mqttLog.Info("relay command handled", "action", action, "success", ok)
		if repo == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		if err := repo.Create(ctx, &audit.AuditLog{
			Action:     "relay." + action,
			EntityType: "relay",
			EntityID:   cfg.Relay.Name,
			Source:     audit.SourceMQTT,
			Success:    ok,
		}); err != nil {
			mqttLog.Warn("failed to write audit log", "action", action, "error", err)
		}
	}
	if err := client.HandleCommands(sup, hook); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("subscribing to MQTT commands: %w", err)
	}

	topics := client.Topics()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"commands", topics.AllCommands(),
	)
	return client, nil
}

func auditWatcherRestart(repo *audit.SQLiteRepository, ok bool, log *logging.Logger) {
	if repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	if err := repo.Create(ctx, &audit.AuditLog{
		Action:     audit.ActionRelayRestart,
		EntityType: "relay",
		Source:     audit.SourceWatcher,
		Success:    ok,
	}); err != nil {
		log.Warn("failed to write audit log", "action", audit.ActionRelayRestart, "error", err)
	}
}
