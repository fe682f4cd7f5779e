// Command fridge-monitor samples thermocouples on a 1-Wire hat, raises
// temperature alarms and publishes state to MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sweeney/fridge-monitor/internal/config"
	"github.com/sweeney/fridge-monitor/internal/coordinator"
	"github.com/sweeney/fridge-monitor/internal/debounce"
	"github.com/sweeney/fridge-monitor/internal/gpio"
	"github.com/sweeney/fridge-monitor/internal/logger"
	"github.com/sweeney/fridge-monitor/internal/logic"
	"github.com/sweeney/fridge-monitor/internal/monitor"
	"github.com/sweeney/fridge-monitor/internal/mqtt"
	"github.com/sweeney/fridge-monitor/internal/netinfo"
	"github.com/sweeney/fridge-monitor/internal/status"
	"github.com/sweeney/fridge-monitor/internal/store"
	"github.com/sweeney/fridge-monitor/internal/w1"
	"github.com/sweeney/fridge-monitor/internal/web"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var printState bool
	cmd := &cobra.Command{
		Use:           "fridge-monitor",
		Short:         "Monitor fridge and freezer temperatures and publish alarms to MQTT",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			if printState {
				return printSensors(cmd.OutOrStdout(), cfg)
			}
			return run(cfg, log)
		},
	}
	config.RegisterFlags(cmd.Flags())
	cmd.Flags().BoolVar(&printState, "print-state", false, "read every sensor once, print and exit")
	return cmd
}

func loadConfig(cmd *cobra.Command) (config.Config, *logger.Logger, error) {
	fs := cmd.Flags()
	v := viper.New()
	if err := config.BindFlags(v, fs); err != nil {
		return config.Config{}, nil, err
	}
	configFile, _ := fs.GetString("config")
	envFile, _ := fs.GetString("env-file")

	cfg, err := config.Load(v, configFile, envFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	notes := cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid config: %w", err)
	}

	log := logger.New(cfg.LogLevel)
	for _, n := range notes {
		log.Warnw("config adjusted", "change", n)
	}
	if f := v.ConfigFileUsed(); f != "" {
		log.Infow("loaded config file", "path", f)
	}
	return cfg, log, nil
}

// printSensors reads every sensor once.
func printSensors(w io.Writer, cfg config.Config) error {
	sensors, err := w1.Scan(cfg.W1Dir, cfg.Thermocouples)
	if err != nil {
		return fmt.Errorf("scan sensors: %w", err)
	}
	fmt.Fprintf(w, "%s: %s\n", cfg.BoardName, readingString(sensors.Board))
	for i, tc := range sensors.Thermocouples {
		fmt.Fprintf(w, "TC%d %s (%s): %s\n", i+1, cfg.Channels[i].Name, tc.ID, readingString(tc))
	}
	return nil
}

func readingString(s w1.Source) string {
	v, err := s.Read()
	if err != nil {
		return "error: " + err.Error()
	}
	return mqtt.FormatTemperature(v) + " °C"
}

func openStore(cfg config.Store) (store.Store, error) {
	switch cfg.Driver {
	case config.StoreFile:
		return store.NewFileStore(cfg.Path)
	case config.StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		return store.OpenSQLite(cfg.Path)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// eventLog fans alarm events out to every recorder. The id is assigned
// once so all copies agree.
type eventLog []coordinator.EventRecorder

func (l eventLog) RecordEvent(e store.AlarmEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	var errs []error
	for _, r := range l {
		if err := r.RecordEvent(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildProbes(cfg config.Config, sensors w1.Sensors, log *logger.Logger) []monitor.Probe {
	probes := []monitor.Probe{{
		Channel: logic.NewReferenceChannel(cfg.BoardName, log),
		Source:  sensors.Board,
		Key:     "board",
	}}
	for i, tc := range sensors.Thermocouples {
		ch := cfg.Channels[i]
		probes = append(probes, monitor.Probe{
			Channel: logic.NewChannel(ch.Name, ch.Thresholds, log),
			Source:  tc,
			Key:     fmt.Sprintf("tc%d", i+1),
		})
	}
	return probes
}

func run(cfg config.Config, log *logger.Logger) error {
	st, err := openStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warnw("close store", "err", err)
		}
	}()

	sensors, err := w1.Scan(cfg.W1Dir, cfg.Thermocouples)
	if err != nil {
		return fmt.Errorf("scan sensors: %w", err)
	}
	if n := len(sensors.Thermocouples); n < cfg.Thermocouples {
		log.Warnw("fewer thermocouples found than configured", "found", n, "configured", cfg.Thermocouples)
	}

	var alerter coordinator.Alerter
	if cfg.Buzzer.Enabled {
		buzzer, err := gpio.NewRealAlerter(cfg.Buzzer.Chip, cfg.Buzzer.Pin)
		if err != nil {
			return fmt.Errorf("init buzzer: %w", err)
		}
		defer buzzer.Close()
		alerter = buzzer
	}

	initial := coordinator.GlobalState{}
	switch g, err := st.LoadGlobal(); {
	case err == nil:
		initial.AlarmDisable = g.AlarmDisable
	case errors.Is(err, store.ErrNotFound):
		log.Infow("no saved global state, starting fresh")
	default:
		log.Warnw("discarding saved global state", "err", err)
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		SampleInterval: cfg.SampleInterval,
		TickInterval:   cfg.TickInterval,
		SaveDelay:      cfg.SaveDelay,
		ResetHour:      cfg.ResetHour,
		Broker:         cfg.MQTT.Broker,
		BaseTopic:      cfg.MQTT.BaseTopic,
		HTTPAddr:       cfg.HTTPAddr,
		StoreDriver:    cfg.Store.Driver,
	})
	tracker.SetNetwork(netinfo.ReadNetwork(cfg.PiHelperEnv))

	client := mqtt.NewClient(mqtt.Options{
		Broker:    cfg.MQTT.Broker,
		ClientID:  cfg.MQTT.ClientID,
		Username:  cfg.MQTT.Username,
		Password:  cfg.MQTT.Password,
		BaseTopic: cfg.MQTT.BaseTopic,
		QoS:       byte(cfg.MQTT.QoS),
		KeepAlive: cfg.MQTT.KeepAlive,
	}, log.Named("mqtt"))
	defer client.Close()

	saver := debounce.New(cfg.SaveDelay, st.SaveGlobal, log.Named("save"))
	defer saver.Stop()

	coord := coordinator.New(initial, coordinator.Options{
		Sink:      client,
		Saver:     saver,
		Alerter:   alerter,
		Events:    eventLog{st, tracker},
		Log:       log.Named("alarm"),
		Channels:  len(sensors.Thermocouples),
		ResetHour: cfg.ResetHour,
		Buzzer:    cfg.Buzzer.Enabled,
	})
	client.OnCommand(func(payload string) { coord.HandleCommand(payload) })
	client.OnConnect(coord.MarkDirty)

	sampler := monitor.New(monitor.Options{
		Probes:  buildProbes(cfg, sensors, log.Named("channel")),
		Sink:    client,
		Alarms:  coord,
		Tracker: tracker,
		Log:     log.Named("sampler"),
		RSSI: func() (int, error) {
			return netinfo.RSSI(cfg.WirelessFile, cfg.WirelessInterface)
		},
	})
	sampler.Restore(st)

	if err := client.Connect(cfg.MQTT.ConnectWait); err != nil {
		log.Warnw("mqtt connect failed, retrying in background", "err", err)
	}
	tracker.SetMQTTConnected(client.IsConnected())

	snap := tracker.Snapshot()
	if err := client.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}); err != nil {
		log.Warnw("publish startup event", "err", err)
	}

	if cfg.HTTPAddr != "" {
		opts := []web.Option{web.WithCommands(coord)}
		if l, ok := st.(web.EventLister); ok {
			opts = append(opts, web.WithEvents(l))
		}
		srv := web.New(cfg.HTTPAddr, tracker, log.Named("http"), opts...)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("http server error", "err", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			srv.Shutdown(ctx) //nolint:errcheck
		}()
		log.Infow("http status server listening", "addr", cfg.HTTPAddr)
	}

	log.Infow("started",
		"board", sensors.Board.ID,
		"thermocouples", len(sensors.Thermocouples),
		"broker", cfg.MQTT.Broker,
		"base_topic", cfg.MQTT.BaseTopic,
		"store", cfg.Store.Driver,
	)

	sampleTicker := time.NewTicker(cfg.SampleInterval)
	defer sampleTicker.Stop()
	minuteTicker := time.NewTicker(cfg.TickInterval)
	defer minuteTicker.Stop()
	reconcileTicker := time.NewTicker(cfg.ReconcileInterval)
	defer reconcileTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	d := &daemon{
		log:      log,
		sampler:  sampler,
		coord:    coord,
		channels: st,
		system:   client,
		tracker:  tracker,
	}
	return runLoop(d, time.Now, sampleTicker.C, minuteTicker.C, reconcileTicker.C, sigCh)
}

// systemPublisher sends lifecycle events.
type systemPublisher interface {
	PublishSystem(mqtt.SystemEvent) error
	IsConnected() bool
}

// daemon is everything runLoop drives.
type daemon struct {
	log      *logger.Logger
	sampler  *monitor.Sampler
	coord    *coordinator.Coordinator
	channels monitor.ChannelStore
	system   systemPublisher
	tracker  *status.Tracker
}

// reconcile runs one pass of the reconcile loop.
func (d *daemon) reconcile(now time.Time) {
	if d.coord.CheckDailyReset(now) {
		d.log.Infow("daily alarm disable reset", "hour", now.Hour())
	}
	d.coord.Reconcile(now)
	cur := d.coord.Current()
	d.tracker.SetAlarm(cur.AlarmDisable, cur.Alarm)
}

func runLoop(d *daemon, now func() time.Time, sample, minute, reconcile <-chan time.Time, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		d.sampler.Run(ctx, now, sample, minute)
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-reconcile:
				d.reconcile(now())
			}
		}
	}()

	s := <-sig
	d.log.Infow("shutting down", "signal", s.String())
	cancel()
	wg.Wait()

	return d.shutdown(now(), signalName(s))
}

// shutdown saves state and announces the shutdown. The caller still owns
// the transports and closes them afterwards.
func (d *daemon) shutdown(now time.Time, reason string) error {
	var errs []error
	if err := d.sampler.Save(d.channels); err != nil {
		d.log.Errorw("save channel snapshots", "err", err)
		errs = append(errs, err)
	}

	// One last pass so a pending command is published and saved.
	d.reconcile(now)

	d.tracker.SetMQTTConnected(d.system.IsConnected())
	snap := d.tracker.Snapshot()
	if err := d.system.PublishSystem(mqtt.SystemEvent{
		Timestamp:  now,
		Event:      "SHUTDOWN",
		Reason:     reason,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
	}); err != nil {
		d.log.Warnw("publish shutdown event", "err", err)
	} else {
		d.log.Infow("published shutdown event")
	}

	if err := d.coord.Close(); err != nil {
		d.log.Errorw("flush global state", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
