package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func loadFrom(t *testing.T, yaml string, args ...string) Config {
	t.Helper()
	dir := t.TempDir()
	var file string
	if yaml != "" {
		file = filepath.Join(dir, "fridgemonitor.yaml")
		if err := os.WriteFile(file, []byte(yaml), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	v := viper.New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if err := BindFlags(v, fs); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}
	c, err := Load(v, file, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return c
}

func TestDefaults(t *testing.T) {
	c := loadFrom(t, "")
	if c.SampleInterval != 5*time.Second || c.TickInterval != time.Minute {
		t.Errorf("intervals = %v/%v", c.SampleInterval, c.TickInterval)
	}
	if c.ResetHour != 18 || c.SaveDelay != time.Minute {
		t.Errorf("reset hour %d, save delay %v", c.ResetHour, c.SaveDelay)
	}
	if c.Thermocouples != 1 || c.Channels[0].Name != "TC1" {
		t.Errorf("thermocouples = %d, tc1 = %+v", c.Thermocouples, c.Channels[0])
	}
	th := c.Channels[2].Thresholds
	if th.SetTemp != 15 || th.ResetTemp != 10 || th.SetTime != 30*time.Minute {
		t.Errorf("tc3 thresholds = %+v", th)
	}
	if c.MQTT.QoS != 1 || c.MQTT.BaseTopic != "home/fridge-monitor" {
		t.Errorf("mqtt = %+v", c.MQTT)
	}
	if c.Buzzer.Pin != 27 || c.Buzzer.Enabled {
		t.Errorf("buzzer = %+v", c.Buzzer)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestYAMLFile(t *testing.T) {
	c := loadFrom(t, `
thermocouples: 2
tc2:
  name: Freezer
  set_temp: -10
  reset_temp: -15
  max_temp: 0
  set_time: 45m
mqtt:
  broker: tcp://broker.lan:1883
  qos: 0
store:
  driver: file
  path: /tmp/fridge
`)
	if c.Thermocouples != 2 || c.Channels[1].Name != "Freezer" {
		t.Errorf("thermocouples %d, tc2 %+v", c.Thermocouples, c.Channels[1])
	}
	if c.Channels[1].Thresholds.SetTime != 45*time.Minute || c.Channels[1].Thresholds.SetTemp != -10 {
		t.Errorf("tc2 thresholds = %+v", c.Channels[1].Thresholds)
	}
	if c.MQTT.Broker != "tcp://broker.lan:1883" || c.MQTT.QoS != 0 {
		t.Errorf("mqtt = %+v", c.MQTT)
	}
	if c.Store.Driver != StoreFile || len(c.Active()) != 2 {
		t.Errorf("store %+v, active %d", c.Store, len(c.Active()))
	}
}

func TestPrecedence(t *testing.T) {
	t.Setenv("FRIDGE_MQTT_BROKER", "tcp://env:1883")
	t.Setenv("FRIDGE_TC1_SET_TEMP", "12.5")
	c := loadFrom(t, "mqtt:\n  broker: tcp://file:1883\n  base_topic: file/topic\n", "--base-topic", "flag/topic")

	if c.MQTT.Broker != "tcp://env:1883" {
		t.Errorf("env should beat file: %s", c.MQTT.Broker)
	}
	if c.MQTT.BaseTopic != "flag/topic" {
		t.Errorf("flag should beat file: %s", c.MQTT.BaseTopic)
	}
	if c.Channels[0].Thresholds.SetTemp != 12.5 {
		t.Errorf("env tc1 set temp = %v", c.Channels[0].Thresholds.SetTemp)
	}
}

func TestDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("FRIDGE_HTTP_ADDR=:9090\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("FRIDGE_HTTP_ADDR") })

	c, err := Load(viper.New(), "", envFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want :9090", c.HTTPAddr)
	}
}

func TestMissingExplicitConfigFails(t *testing.T) {
	if _, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"), ""); err == nil {
		t.Error("expected error for a missing explicit config file")
	}
}

func TestNormalize(t *testing.T) {
	c := loadFrom(t, "", "--thermocouples", "7")
	c.TickInterval = 10 * time.Second
	notes := c.Normalize()
	if c.Thermocouples != MaxThermocouples || c.TickInterval != MinTickInterval {
		t.Errorf("not clamped: %d, %v", c.Thermocouples, c.TickInterval)
	}
	if len(notes) != 2 {
		t.Errorf("notes = %v", notes)
	}

	c.Thermocouples = 0
	c.Normalize()
	if c.Thermocouples != 1 {
		t.Errorf("thermocouples = %d, want 1", c.Thermocouples)
	}
	if notes := c.Normalize(); len(notes) != 0 {
		t.Errorf("second normalize should be quiet: %v", notes)
	}
}

func TestValidate(t *testing.T) {
	base := loadFrom(t, "")
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"reset above set", func(c *Config) { c.Channels[0].Thresholds.ResetTemp = 20 }, "tc1"},
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }, "qos"},
		{"bad hour", func(c *Config) { c.ResetHour = 24 }, "reset hour"},
		{"bad driver", func(c *Config) { c.Store.Driver = "postgres" }, "store driver"},
		{"wildcard topic", func(c *Config) { c.MQTT.BaseTopic = "home/#" }, "base topic"},
		{"zero sample", func(c *Config) { c.SampleInterval = 0 }, "sample interval"},
		{"slow sample", func(c *Config) { c.SampleInterval = time.Minute }, "raw window"},
		{"empty name", func(c *Config) { c.Channels[0].Name = "" }, "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}
