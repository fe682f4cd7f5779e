package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/fridge-monitor/internal/config"
	"github.com/sweeney/fridge-monitor/internal/coordinator"
	"github.com/sweeney/fridge-monitor/internal/debounce"
	"github.com/sweeney/fridge-monitor/internal/gpio"
	"github.com/sweeney/fridge-monitor/internal/logger"
	"github.com/sweeney/fridge-monitor/internal/logic"
	"github.com/sweeney/fridge-monitor/internal/monitor"
	"github.com/sweeney/fridge-monitor/internal/mqtt"
	"github.com/sweeney/fridge-monitor/internal/status"
	"github.com/sweeney/fridge-monitor/internal/store"
	"github.com/sweeney/fridge-monitor/internal/w1"
)

// clock is a settable time source shared by the loop goroutines.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type fixture struct {
	d       *daemon
	sink    *mqtt.FakeSink
	store   *store.FileStore
	buzzer  *gpio.FakeAlerter
	tc      *w1.FakeSource
	tracker *status.Tracker
	clock   *clock
}

func newFixture(t *testing.T, initial coordinator.GlobalState, at time.Time) *fixture {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	log := logger.Nop()
	f := &fixture{
		sink:    mqtt.NewFakeSink(),
		store:   fs,
		buzzer:  gpio.NewFakeAlerter(),
		tc:      w1.Constant(4.0),
		tracker: status.NewTracker(at, status.Config{}),
		clock:   &clock{now: at},
	}
	saver := debounce.New(time.Hour, fs.SaveGlobal, log)
	coord := coordinator.New(initial, coordinator.Options{
		Sink:      f.sink,
		Saver:     saver,
		Alerter:   f.buzzer,
		Events:    eventLog{fs, f.tracker},
		Log:       log,
		Channels:  1,
		ResetHour: coordinator.DefaultResetHour,
		Buzzer:    true,
	})
	sampler := monitor.New(monitor.Options{
		Probes: []monitor.Probe{
			{Channel: logic.NewReferenceChannel("Board", log), Source: w1.Constant(21.0), Key: "board"},
			{Channel: logic.NewChannel("Fridge", logic.DefaultThresholds(), log), Source: f.tc, Key: "tc1"},
		},
		Sink:    f.sink,
		Alarms:  coord,
		Tracker: f.tracker,
		Log:     log,
	})
	f.d = &daemon{
		log:      log,
		sampler:  sampler,
		coord:    coord,
		channels: fs,
		system:   f.sink,
		tracker:  f.tracker,
	}
	return f
}

// ticks describes what to feed runLoop before the signal.
type ticks struct {
	samples   int
	minutes   int
	reconcile int
}

func (f *fixture) run(t *testing.T, tk ticks, s os.Signal) error {
	t.Helper()
	sample := make(chan time.Time)
	minute := make(chan time.Time)
	reconcile := make(chan time.Time)
	sig := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(f.d, f.clock.Now, sample, minute, reconcile, sig)
	}()

	for i := 0; i < tk.samples; i++ {
		sample <- time.Time{}
	}
	for i := 0; i < tk.minutes; i++ {
		minute <- time.Time{}
	}
	for i := 0; i < tk.reconcile; i++ {
		reconcile <- time.Time{}
	}
	sig <- s

	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("runLoop did not return")
		return nil
	}
}

var morning = time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)

func TestRunLoopShutdownSIGTERM(t *testing.T) {
	f := newFixture(t, coordinator.GlobalState{}, morning)
	if err := f.run(t, ticks{}, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	events := f.sink.SystemEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(events))
	}
	se := events[0]
	if se.Event != "SHUTDOWN" || se.Reason != "SIGTERM" {
		t.Errorf("unexpected system event %+v", se)
	}
	if !bytes.Contains(se.RawPayload, []byte(`"event":"SHUTDOWN"`)) {
		t.Errorf("payload missing event: %s", se.RawPayload)
	}
	if f.buzzer.On() {
		t.Error("buzzer should be off after shutdown")
	}
}

func TestRunLoopShutdownSIGINT(t *testing.T) {
	f := newFixture(t, coordinator.GlobalState{}, morning)
	if err := f.run(t, ticks{}, syscall.SIGINT); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if got := f.sink.SystemEvents()[0].Reason; got != "SIGINT" {
		t.Errorf("reason = %q, want SIGINT", got)
	}
}

func TestRunLoopPublishesInitialState(t *testing.T) {
	f := newFixture(t, coordinator.GlobalState{}, morning)
	if err := f.run(t, ticks{reconcile: 1}, syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"alarm_disable", "alarm", "tc1_alarm"} {
		if got, ok := f.sink.Last(key); !ok || got != "OFF" {
			t.Errorf("%s = %q (published %v), want OFF", key, got, ok)
		}
	}
}

func TestRunLoopSavesChannelsOnShutdown(t *testing.T) {
	f := newFixture(t, coordinator.GlobalState{}, morning)
	if err := f.run(t, ticks{samples: 3, minutes: 1}, syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}
	snap, err := f.store.LoadChannel("Fridge")
	if err != nil {
		t.Fatalf("LoadChannel: %v", err)
	}
	if len(snap.Buckets) != 1 || snap.Buckets[0].Temp != 4.0 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if _, err := f.store.LoadChannel("Board"); err != nil {
		t.Errorf("board snapshot not saved: %v", err)
	}
}

func TestRunLoopRaisesAlarm(t *testing.T) {
	f := newFixture(t, coordinator.GlobalState{}, morning)
	f.tc.Set(w1.Reading{Temp: 30})
	if err := f.run(t, ticks{samples: 1, minutes: 1}, syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}
	if got, _ := f.sink.Last("tc1_alarm"); got != "ON" {
		t.Errorf("tc1_alarm = %q, want ON", got)
	}
	if got, _ := f.sink.Last("alarm"); got != "ON" {
		t.Errorf("alarm = %q, want ON", got)
	}
	if !f.tracker.Snapshot().Alarm {
		t.Error("tracker should show the alarm")
	}

	var sawBuzzer bool
	for _, on := range f.buzzer.States {
		sawBuzzer = sawBuzzer || on
	}
	if !sawBuzzer {
		t.Error("buzzer never sounded")
	}
	if f.buzzer.On() {
		t.Error("buzzer should be silenced on shutdown")
	}

	evs := f.tracker.Snapshot().Events
	if len(evs) == 0 || evs[0].Kind != string(coordinator.TransitionActive) {
		t.Errorf("expected an ACTIVE event, got %+v", evs)
	}
}

func TestRunLoopPersistsAlarmDisable(t *testing.T) {
	f := newFixture(t, coordinator.GlobalState{}, morning)
	if !f.d.coord.HandleCommand("ON") {
		t.Fatal("command rejected")
	}
	if err := f.run(t, ticks{}, syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}
	if got, _ := f.sink.Last("alarm_disable"); got != "ON" {
		t.Errorf("alarm_disable = %q, want ON", got)
	}
	g, err := f.store.LoadGlobal()
	if err != nil {
		t.Fatalf("LoadGlobal: %v", err)
	}
	if !g.AlarmDisable {
		t.Error("alarm disable should be flushed on shutdown")
	}
}

func TestRunLoopDailyReset(t *testing.T) {
	evening := time.Date(2026, 2, 3, 18, 5, 0, 0, time.UTC)
	f := newFixture(t, coordinator.GlobalState{AlarmDisable: true}, evening)
	if err := f.run(t, ticks{reconcile: 1}, syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}
	if got, _ := f.sink.Last("alarm_disable"); got != "OFF" {
		t.Errorf("alarm_disable = %q, want OFF after the reset hour", got)
	}
	if f.tracker.Snapshot().AlarmDisable {
		t.Error("tracker should show alarm disable cleared")
	}
}

func TestRunLoopDisconnectedShutdown(t *testing.T) {
	f := newFixture(t, coordinator.GlobalState{}, morning)
	f.sink.SetConnected(false)
	if err := f.run(t, ticks{reconcile: 2}, syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}
	if len(f.sink.Messages()) != 0 {
		t.Error("nothing should be published while disconnected")
	}
	if !f.d.coord.Dirty() {
		t.Error("divergence should be retained while disconnected")
	}
	if f.tracker.Snapshot().MQTTConnected {
		t.Error("tracker should report disconnected")
	}
}

func TestSignalName(t *testing.T) {
	tests := []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGHUP, "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := signalName(tt.sig); got != tt.want {
			t.Errorf("signalName(%v) = %q, want %q", tt.sig, got, tt.want)
		}
	}
}

type recorder struct {
	events []store.AlarmEvent
	err    error
}

func (r *recorder) RecordEvent(e store.AlarmEvent) error {
	r.events = append(r.events, e)
	return r.err
}

func TestEventLogFansOut(t *testing.T) {
	a := &recorder{}
	b := &recorder{err: errors.New("disk full")}
	err := eventLog{a, b}.RecordEvent(store.AlarmEvent{Kind: "ACTIVE"})
	if err == nil {
		t.Error("expected the failing recorder's error")
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatal("every recorder should receive the event")
	}
	if a.events[0].ID == "" || a.events[0].ID != b.events[0].ID {
		t.Errorf("ids differ: %q vs %q", a.events[0].ID, b.events[0].ID)
	}
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()
	fs, err := openStore(config.Store{Driver: config.StoreFile, Path: filepath.Join(dir, "state")})
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	fs.Close()

	db, err := openStore(config.Store{Driver: config.StoreSQLite, Path: filepath.Join(dir, "db", "fridge.db")})
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	db.Close()

	if _, err := openStore(config.Store{Driver: "redis", Path: dir}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

const (
	boardSlave = "32 00 4b 46 ff ff 02 10 f4 : crc=f4 YES\n32 00 4b 46 ff ff 02 10 f4 t=24875\n"
	tcSlave    = "72 01 ff 14 f1 ff ff ff d9 : crc=d9 YES\n72 01 ff 14 f1 ff ff ff d9 t=23000\n"
)

func fakeSysfs(t *testing.T, slaves map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for id, content := range slaves {
		if err := os.MkdirAll(filepath.Join(dir, id), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, id, "w1_slave"), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestPrintSensors(t *testing.T) {
	cfg := config.Config{
		BoardName:     "Board",
		Thermocouples: 1,
		W1Dir: fakeSysfs(t, map[string]string{
			"10-000802b5f3a1": boardSlave,
			"3b-000000000001": tcSlave,
		}),
	}
	cfg.Channels[0].Name = "Fridge"

	var out bytes.Buffer
	if err := printSensors(&out, cfg); err != nil {
		t.Fatalf("printSensors: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", out.String())
	}
	if !strings.HasPrefix(lines[0], "Board: 24.88") {
		t.Errorf("board line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "TC1 Fridge (3b-000000000001): ") {
		t.Errorf("thermocouple line = %q", lines[1])
	}
}

func TestPrintSensorsNoDevices(t *testing.T) {
	cfg := config.Config{Thermocouples: 1, W1Dir: t.TempDir()}
	if err := printSensors(&bytes.Buffer{}, cfg); !errors.Is(err, w1.ErrNoSensor) {
		t.Errorf("expected ErrNoSensor, got %v", err)
	}
}

func TestRootCommandFlags(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"print-state", "config", "env-file", "broker", "store", "buzzer"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("missing flag --%s", name)
		}
	}
}
