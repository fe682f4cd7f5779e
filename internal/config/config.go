// Package config loads daemon settings from defaults, an optional YAML
// file, a .env file, FRIDGE_* environment variables and command-line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sweeney/fridge-monitor/internal/coordinator"
	"github.com/sweeney/fridge-monitor/internal/gpio"
	"github.com/sweeney/fridge-monitor/internal/logger"
	"github.com/sweeney/fridge-monitor/internal/logic"
	"github.com/sweeney/fridge-monitor/internal/mqtt"
	"github.com/sweeney/fridge-monitor/internal/netinfo"
	"github.com/sweeney/fridge-monitor/internal/w1"
)

// MaxThermocouples is the number of MAX31850K channels on the hat.
const MaxThermocouples = coordinator.MaxChannels - 1

// MinTickInterval is the shortest allowed minute-bucket interval.
const MinTickInterval = time.Minute

// EnvPrefix prefixes environment overrides, e.g. FRIDGE_MQTT_BROKER.
const EnvPrefix = "FRIDGE"

// Store drivers.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Channel configures one thermocouple.
type Channel struct {
	Name       string
	Thresholds logic.Thresholds
}

// MQTT configures the broker connection.
type MQTT struct {
	Broker      string
	Username    string
	Password    string
	ClientID    string
	BaseTopic   string
	QoS         int
	KeepAlive   time.Duration
	ConnectWait time.Duration
}

// Store selects the persistence backend.
type Store struct {
	Driver string
	Path   string
}

// Buzzer configures the alert output.
type Buzzer struct {
	Enabled bool
	Chip    string
	Pin     int
}

// Config is the complete daemon configuration.
type Config struct {
	LogLevel string

	SampleInterval    time.Duration
	TickInterval      time.Duration
	ReconcileInterval time.Duration
	SaveDelay         time.Duration
	ResetHour         int

	BoardName     string
	Thermocouples int
	Channels      [MaxThermocouples]Channel

	MQTT     MQTT
	Store    Store
	HTTPAddr string
	Buzzer   Buzzer

	W1Dir             string
	PiHelperEnv       string
	WirelessFile      string
	WirelessInterface string
}

// Active returns the configured thermocouples.
func (c Config) Active() []Channel {
	return c.Channels[:c.Thermocouples]
}

func channelKey(i int, field string) string {
	return fmt.Sprintf("tc%d.%s", i+1, field)
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", logger.InfoLevel)
	v.SetDefault("sample_interval", 5*time.Second)
	v.SetDefault("tick_interval", time.Minute)
	v.SetDefault("reconcile_interval", 100*time.Millisecond)
	v.SetDefault("save_delay", time.Minute)
	v.SetDefault("reset_hour", coordinator.DefaultResetHour)

	v.SetDefault("board_name", "Board")
	v.SetDefault("thermocouples", 1)
	th := logic.DefaultThresholds()
	for i := 0; i < MaxThermocouples; i++ {
		v.SetDefault(channelKey(i, "name"), fmt.Sprintf("TC%d", i+1))
		v.SetDefault(channelKey(i, "set_temp"), th.SetTemp)
		v.SetDefault(channelKey(i, "reset_temp"), th.ResetTemp)
		v.SetDefault(channelKey(i, "max_temp"), th.MaxTemp)
		v.SetDefault(channelKey(i, "set_time"), th.SetTime)
		v.SetDefault(channelKey(i, "rise_threshold"), th.RiseThreshold)
	}

	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.client_id", "fridge-monitor")
	v.SetDefault("mqtt.base_topic", mqtt.DefaultBaseTopic)
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.keepalive", time.Minute)
	v.SetDefault("mqtt.connect_wait", 10*time.Second)

	v.SetDefault("store.driver", StoreSQLite)
	v.SetDefault("store.path", "/var/lib/fridge-monitor/fridge.db")
	v.SetDefault("http.addr", ":8080")

	v.SetDefault("buzzer.enabled", false)
	v.SetDefault("buzzer.chip", gpio.DefaultChip)
	v.SetDefault("buzzer.pin", gpio.DefaultBuzzerPin)

	v.SetDefault("w1_dir", w1.DefaultBaseDir)
	v.SetDefault("pi_helper_env", netinfo.DefaultEnvFile)
	v.SetDefault("wireless.file", netinfo.DefaultWirelessFile)
	v.SetDefault("wireless.interface", netinfo.DefaultInterface)
}

// RegisterFlags defines the command-line overrides on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (default ./fridgemonitor.yaml or /etc/fridge-monitor/fridgemonitor.yaml)")
	fs.String("env-file", ".env", "dotenv file loaded into the environment")
	fs.String("log-level", logger.InfoLevel, "log level: debug, info, warn or error")
	fs.String("broker", "", "MQTT broker address")
	fs.String("base-topic", "", "MQTT base topic")
	fs.String("http", "", "HTTP status address (empty keeps the configured value)")
	fs.String("store", "", "store driver: file or sqlite")
	fs.String("store-path", "", "store directory (file) or database path (sqlite)")
	fs.Int("thermocouples", 0, "number of thermocouples, 1 to 3")
	fs.String("w1-dir", "", "1-Wire sysfs device directory")
	fs.Bool("buzzer", false, "sound the buzzer while the alarm is active")
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"log-level":     "log_level",
	"broker":        "mqtt.broker",
	"base-topic":    "mqtt.base_topic",
	"http":          "http.addr",
	"store":         "store.driver",
	"store-path":    "store.path",
	"thermocouples": "thermocouples",
	"w1-dir":        "w1_dir",
	"buzzer":        "buzzer.enabled",
}

// BindFlags binds the flags defined by RegisterFlags. Unset flags do not
// override other sources.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the configuration. configFile may be empty to search the
// default locations; envFile may name a missing file.
func Load(v *viper.Viper, configFile, envFile string) (Config, error) {
	if envFile != "" {
		// A missing .env is normal.
		_ = godotenv.Load(envFile)
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("fridgemonitor")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/fridge-monitor")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	c := fromViper(v)
	return c, nil
}

func fromViper(v *viper.Viper) Config {
	c := Config{
		LogLevel:          v.GetString("log_level"),
		SampleInterval:    v.GetDuration("sample_interval"),
		TickInterval:      v.GetDuration("tick_interval"),
		ReconcileInterval: v.GetDuration("reconcile_interval"),
		SaveDelay:         v.GetDuration("save_delay"),
		ResetHour:         v.GetInt("reset_hour"),
		BoardName:         v.GetString("board_name"),
		Thermocouples:     v.GetInt("thermocouples"),
		MQTT: MQTT{
			Broker:      v.GetString("mqtt.broker"),
			Username:    v.GetString("mqtt.username"),
			Password:    v.GetString("mqtt.password"),
			ClientID:    v.GetString("mqtt.client_id"),
			BaseTopic:   v.GetString("mqtt.base_topic"),
			QoS:         v.GetInt("mqtt.qos"),
			KeepAlive:   v.GetDuration("mqtt.keepalive"),
			ConnectWait: v.GetDuration("mqtt.connect_wait"),
		},
		Store: Store{
			Driver: v.GetString("store.driver"),
			Path:   v.GetString("store.path"),
		},
		HTTPAddr: v.GetString("http.addr"),
		Buzzer: Buzzer{
			Enabled: v.GetBool("buzzer.enabled"),
			Chip:    v.GetString("buzzer.chip"),
			Pin:     v.GetInt("buzzer.pin"),
		},
		W1Dir:             v.GetString("w1_dir"),
		PiHelperEnv:       v.GetString("pi_helper_env"),
		WirelessFile:      v.GetString("wireless.file"),
		WirelessInterface: v.GetString("wireless.interface"),
	}
	for i := 0; i < MaxThermocouples; i++ {
		c.Channels[i] = Channel{
			Name: v.GetString(channelKey(i, "name")),
			Thresholds: logic.Thresholds{
				SetTemp:       v.GetFloat64(channelKey(i, "set_temp")),
				ResetTemp:     v.GetFloat64(channelKey(i, "reset_temp")),
				MaxTemp:       v.GetFloat64(channelKey(i, "max_temp")),
				SetTime:       v.GetDuration(channelKey(i, "set_time")),
				RiseThreshold: v.GetFloat64(channelKey(i, "rise_threshold")),
			},
		}
	}
	return c
}

// Normalize clamps out-of-range values and describes each adjustment.
func (c *Config) Normalize() []string {
	var notes []string
	if c.Thermocouples < 1 {
		notes = append(notes, fmt.Sprintf("thermocouples %d raised to 1", c.Thermocouples))
		c.Thermocouples = 1
	}
	if c.Thermocouples > MaxThermocouples {
		notes = append(notes, fmt.Sprintf("thermocouples %d lowered to %d", c.Thermocouples, MaxThermocouples))
		c.Thermocouples = MaxThermocouples
	}
	if c.TickInterval < MinTickInterval {
		notes = append(notes, fmt.Sprintf("tick interval %v raised to %v", c.TickInterval, MinTickInterval))
		c.TickInterval = MinTickInterval
	}
	return notes
}

// Validate reports settings the daemon cannot run with.
func (c Config) Validate() error {
	if c.SampleInterval <= 0 {
		return fmt.Errorf("sample interval must be positive, got %v", c.SampleInterval)
	}
	if c.SampleInterval >= logic.RawWindow {
		return fmt.Errorf("sample interval %v must be shorter than the %v raw window", c.SampleInterval, logic.RawWindow)
	}
	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("reconcile interval must be positive, got %v", c.ReconcileInterval)
	}
	if c.SaveDelay < 0 {
		return fmt.Errorf("save delay must not be negative, got %v", c.SaveDelay)
	}
	if c.ResetHour < 0 || c.ResetHour > 23 {
		return fmt.Errorf("reset hour must be 0-23, got %d", c.ResetHour)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.MQTT.Broker == "" {
		return errors.New("mqtt broker must be set")
	}
	if c.MQTT.BaseTopic == "" || strings.ContainsAny(c.MQTT.BaseTopic, "#+") {
		return fmt.Errorf("invalid mqtt base topic %q", c.MQTT.BaseTopic)
	}
	switch c.Store.Driver {
	case StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Path == "" {
		return errors.New("store path must be set")
	}
	n := c.Thermocouples
	if n < 1 || n > MaxThermocouples {
		n = MaxThermocouples
	}
	for i, ch := range c.Channels[:n] {
		if ch.Name == "" {
			return fmt.Errorf("tc%d: name must be set", i+1)
		}
		if err := ch.Thresholds.Validate(); err != nil {
			return fmt.Errorf("tc%d: %w", i+1, err)
		}
	}
	return nil
}
