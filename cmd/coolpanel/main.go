// coolpanel drives a 320x240 USB display panel.
//
// It shows a live telemetry dashboard (CPU load, temperature, power, uptime)
// or a still image or video, switched at runtime over a local control socket.
// MQTT, InfluxDB and an HTTP status API are optional side channels.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/nerrad567/coolpanel/migrations"

	"github.com/nerrad567/coolpanel/internal/api"
	"github.com/nerrad567/coolpanel/internal/control"
	"github.com/nerrad567/coolpanel/internal/dashboard"
	"github.com/nerrad567/coolpanel/internal/infrastructure/config"
	"github.com/nerrad567/coolpanel/internal/infrastructure/database"
	"github.com/nerrad567/coolpanel/internal/infrastructure/influxdb"
	"github.com/nerrad567/coolpanel/internal/infrastructure/logging"
	"github.com/nerrad567/coolpanel/internal/infrastructure/mqtt"
	"github.com/nerrad567/coolpanel/internal/media"
	"github.com/nerrad567/coolpanel/internal/mode"
	"github.com/nerrad567/coolpanel/internal/panel"
	"github.com/nerrad567/coolpanel/internal/render"
	"github.com/nerrad567/coolpanel/internal/settings"
	"github.com/nerrad567/coolpanel/internal/telemetry"
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

// shutdownTimeout bounds the final uptime flush and settings writes.
const shutdownTimeout = 5 * time.Second

// mediaProbeTimeout bounds each ffprobe run.
const mediaProbeTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, runs the render loop until ctx is cancelled,
// then tears everything down in order.
//
// Parameters:
//   - ctx: Context cancelled by SIGINT/SIGTERM
//
// Returns:
//   - error: nil on clean shutdown, or the startup failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting coolpanel",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath, err := getConfigPath()
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if configPath == "" {
		log.Info("no config file found, using defaults")
	} else {
		log.Info("configuration loaded", "path", configPath)
	}

	log = logging.New(cfg.Logging, version)

	socketMode, err := cfg.SocketFileMode()
	if err != nil {
		return fmt.Errorf("control socket mode: %w", err)
	}

	// Persistence
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	store := settings.NewStore(db, log.Component("settings"))
	defer store.Close() //nolint:errcheck // Closing after the final flush
	persisted, err := store.Load(ctx)
	if err != nil {
		log.Warn("reading persisted settings, using defaults", "error", err)
	}

	composer, err := dashboard.NewRenderer()
	if err != nil {
		return fmt.Errorf("loading dashboard fonts: %w", err)
	}

	// Mode state and control
	opener := media.NewOpener(media.Config{
		Width:         cfg.Panel.Width,
		Height:        cfg.Panel.Height,
		FFmpegBinary:  cfg.Media.FFmpegBinary,
		FFprobeBinary: cfg.Media.FFprobeBinary,
		ProbeTimeout:  mediaProbeTimeout,
	})
	opener.SetLogger(log.Component("media"))

	modes := mode.New(opener, store, cfg.Render.DefaultVideoFPS)
	modes.SetLogger(log.Component("mode"))

	channel := control.NewChannel(modes)
	channel.SetLogger(log.Component("control"))

	listener, err := control.Listen(cfg.Control.SocketPath, socketMode, channel)
	if err != nil {
		return fmt.Errorf("starting control listener: %w", err)
	}
	defer listener.Close() //nolint:errcheck // Idempotent; shutdown closes it first
	listener.SetLogger(log.Component("control"))
	log.Info("control socket listening", "path", listener.Path())

	// Telemetry
	host := telemetry.NewHostSensors(cfg.Telemetry.BootIDPath)
	uptime, err := telemetry.NewUptimeAccumulator(ctx, persisted, host, store, cfg.Telemetry.FlushInterval)
	if err != nil {
		return fmt.Errorf("initialising uptime: %w", err)
	}
	uptime.SetLogger(log.Component("uptime"))

	// Nothing below returns early: shutdown flushes uptime and releases
	// the media opened by Restore.
	power := telemetry.NewPowerSampler(
		telemetry.NewRAPLSensor(cfg.Telemetry.RAPLPath),
		cfg.Telemetry.Power.MaxFailures,
		cfg.Telemetry.Power.ReprobeInterval,
	)
	power.SetLogger(log.Component("power"))

	source := telemetry.NewSource(host, power, uptime)
	source.SetLogger(log.Component("telemetry"))

	modes.Restore(ctx, persisted)
	log.Info("mode restored", "mode", modes.View().Mode)

	// Device
	usb := panel.NewUSBOpener(cfg.Panel.VendorID, cfg.Panel.ProductID, cfg.Panel.Interface)
	link := panel.NewLink(usb, panel.Timeouts{
		Handshake: cfg.Panel.HandshakeTimeout,
		Header:    cfg.Panel.HeaderTimeout,
		Payload:   cfg.Panel.PayloadTimeout,
	})
	link.SetLogger(log.Component("panel"))

	loop := render.New(render.Config{
		MonitorInterval: cfg.MonitorInterval(),
		PublishInterval: cfg.Telemetry.PublishInterval,
	}, link, modes, source, composer)
	loop.SetLogger(log.Component("render"))
	loop.SetUptime(uptime)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if serveErr := listener.Serve(ctx); serveErr != nil && !errors.Is(serveErr, control.ErrListenerClosed) {
			log.Error("control listener stopped", "error", serveErr)
		}
	}()

	var onChange []func(mode.View)

	// Optional side channels
	mqttClient := startMQTT(ctx, cfg, channel, loop, &onChange, log)
	influxClient := startInfluxDB(ctx, cfg, loop, log)

	var apiServer *api.Server
	if cfg.API.Enabled {
		hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
		loop.AddSink("websocket", hub)
		onChange = append(onChange, hub.PublishState)

		deps := api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log.Component("api"),
			Control: channel,
			Modes:   modes,
			Link:    link,
			Loop:    loop,
			DB:      db,
			Hub:     hub,
			Version: version,
		}
		if mqttClient != nil {
			deps.MQTT = mqttClient
		}
		apiServer = startAPI(ctx, deps, log)
	}

	modes.OnChange(func(v mode.View) {
		for _, fn := range onChange {
			fn(v)
		}
	})

	log.Info("initialisation complete")
	runErr := loop.Run(ctx)

	log.Info("shutting down")
	shutdown(shutdownDeps{
		log:      log,
		modes:    modes,
		listener: listener,
		uptime:   uptime,
		link:     link,
		usb:      usb,
		api:      apiServer,
		mqtt:     mqttClient,
		influx:   influxClient,
	})
	wg.Wait()

	log.Info("coolpanel stopped")
	return runErr
}

// shutdownDeps lists everything released on exit.
type shutdownDeps struct {
	log      *logging.Logger
	modes    *mode.Controller
	listener *control.Listener
	uptime   *telemetry.UptimeAccumulator
	link     *panel.Link
	usb      *panel.USBOpener
	api      *api.Server
	mqtt     *mqtt.Client
	influx   *influxdb.Client
}

// shutdown releases media, removes the control socket, flushes uptime,
// and closes the device and side channels. Each step runs even when an
// earlier one fails. The database is closed by run's deferred call.
func shutdown(d shutdownDeps) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if d.api != nil {
		if err := d.api.Close(); err != nil {
			d.log.Error("closing API server", "error", err)
		}
	}
	if err := d.listener.Close(); err != nil {
		d.log.Error("closing control socket", "error", err)
	}
	if err := d.modes.Close(); err != nil {
		d.log.Error("releasing media", "error", err)
	}
	if err := d.uptime.Close(ctx); err != nil {
		d.log.Error("final uptime flush", "error", err)
	}
	if err := d.link.Close(); err != nil && !errors.Is(err, panel.ErrClosed) {
		d.log.Error("closing panel", "error", err)
	}
	if err := d.usb.Close(); err != nil {
		d.log.Error("closing USB context", "error", err)
	}
	if d.mqtt != nil {
		if err := d.mqtt.Close(); err != nil {
			d.log.Error("closing MQTT", "error", err)
		}
	}
	if d.influx != nil {
		if err := d.influx.Close(); err != nil {
			d.log.Error("closing InfluxDB", "error", err)
		}
	}
}

// startMQTT connects to the broker when enabled and wires telemetry
// publishing, retained mode state, and the command topic. A broker that
// cannot be reached is logged and skipped; the panel keeps running.
func startMQTT(ctx context.Context, cfg *config.Config, channel *control.Channel, loop *render.Loop, onChange *[]func(mode.View), log *logging.Logger) *mqtt.Client {
	if !cfg.MQTT.Enabled {
		log.Info("MQTT disabled")
		return nil
	}

	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		log.Warn("MQTT unavailable, continuing without it", "error", err)
		return nil
	}
	client.SetLogger(log.Component("mqtt"))
	client.SetOnConnect(func() { log.Info("MQTT reconnected") })
	client.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	publisher := mqtt.NewPublisher(client)
	loop.AddSink("mqtt", publisher)
	*onChange = append(*onChange, func(v mode.View) {
		if err := publisher.PublishState(v); err != nil {
			log.Warn("publishing mode state", "error", err)
		}
	})

	if err := control.ServeMQTT(ctx, client, client.Topics(), client.QoS(), channel); err != nil {
		log.Warn("MQTT control disabled", "error", err)
	}
	return client
}

// startInfluxDB connects when enabled and registers the snapshot writer.
func startInfluxDB(ctx context.Context, cfg *config.Config, loop *render.Loop, log *logging.Logger) *influxdb.Client {
	if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB disabled")
		return nil
	}

	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
	if err != nil {
		log.Warn("InfluxDB unavailable, continuing without it", "error", err)
		return nil
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	loop.AddSink("influxdb", render.SinkFunc(client.WriteSnapshot))
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client
}

// startAPI starts the HTTP API. Failures are logged and the service runs
// without it.
func startAPI(ctx context.Context, deps api.Deps, log *logging.Logger) *api.Server {
	srv, err := api.New(deps)
	if err != nil {
		log.Warn("API server disabled", "error", err)
		return nil
	}
	if err := srv.Start(ctx); err != nil {
		log.Warn("API server disabled", "error", err)
		return nil
	}
	return srv
}

// getConfigPath returns the configuration file path.
//
// COOLPANEL_CONFIG must name an existing file when set. Without it the
// default path is used if present; otherwise "" selects built-in defaults.
func getConfigPath() (string, error) {
	if path := os.Getenv("COOLPANEL_CONFIG"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return path, nil
	}
	if _, err := os.Stat(defaultConfigPath); err != nil {
		return "", nil //nolint:nilerr // A missing default config means built-in defaults
	}
	return defaultConfigPath, nil
}
