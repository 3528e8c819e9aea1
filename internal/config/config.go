// Package config holds the panel daemon settings. Values come from
// defaults, then an optional YAML or TOML file, then explicitly set flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/pacemaker-panel/internal/pacing"
)

// Config is the resolved daemon configuration.
type Config struct {
	HTTPAddr      string
	HardwareURLs  []string
	Poll          time.Duration
	Retry         time.Duration
	FailThreshold int
	Cooldown      time.Duration
	AutoLock      time.Duration
	Watchdog      time.Duration
	Notice        time.Duration
	Broker        string
	ClientID      string
	Heartbeat     time.Duration
}

// Default returns the built-in configuration.
func Default() Config {
	t := pacing.DefaultTiming()
	return Config{
		HTTPAddr:      ":8080",
		HardwareURLs:  []string{"http://pacemaker.local:5000", "http://localhost:5000"},
		Poll:          100 * time.Millisecond,
		Retry:         3 * time.Second,
		FailThreshold: 3,
		Cooldown:      t.Cooldown,
		AutoLock:      t.AutoLock,
		Watchdog:      t.Watchdog,
		Notice:        t.NoticeTTL,
		ClientID:      "pacemaker-panel",
		Heartbeat:     15 * time.Minute,
	}
}

// Timing returns the session timer durations.
func (c Config) Timing() pacing.Timing {
	return pacing.Timing{
		Cooldown:  c.Cooldown,
		AutoLock:  c.AutoLock,
		Watchdog:  c.Watchdog,
		NoticeTTL: c.Notice,
	}
}

// Validate reports settings the daemon cannot run with.
func (c Config) Validate() error {
	var errs []error
	if len(c.HardwareURLs) == 0 {
		errs = append(errs, errors.New("hardware: at least one adapter URL is required"))
	}
	if c.Poll <= 0 {
		errs = append(errs, fmt.Errorf("poll: must be positive, got %v", c.Poll))
	}
	if c.Retry <= 0 {
		errs = append(errs, fmt.Errorf("retry: must be positive, got %v", c.Retry))
	}
	if c.FailThreshold < 1 {
		errs = append(errs, fmt.Errorf("fail-threshold: must be at least 1, got %d", c.FailThreshold))
	}
	if c.Cooldown < 0 || c.AutoLock < 0 || c.Watchdog < 0 || c.Notice < 0 || c.Heartbeat < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	return errors.Join(errs...)
}

// fileConfig is the on-disk shape. Durations are Go duration strings
// ("100ms", "1m"); empty values keep the current setting.
type fileConfig struct {
	HTTP          *string  `toml:"http" yaml:"http"`
	HardwareURLs  []string `toml:"hardware_urls" yaml:"hardware_urls"`
	Poll          string   `toml:"poll" yaml:"poll"`
	Retry         string   `toml:"retry" yaml:"retry"`
	FailThreshold int      `toml:"fail_threshold" yaml:"fail_threshold"`
	Cooldown      string   `toml:"cooldown" yaml:"cooldown"`
	AutoLock      string   `toml:"auto_lock" yaml:"auto_lock"`
	Watchdog      string   `toml:"watchdog" yaml:"watchdog"`
	Notice        string   `toml:"notice" yaml:"notice"`
	Broker        *string  `toml:"broker" yaml:"broker"`
	ClientID      string   `toml:"client_id" yaml:"client_id"`
	Heartbeat     string   `toml:"heartbeat" yaml:"heartbeat"`
}

// Load reads path and applies its settings over base. The format is chosen
// by extension: .yaml/.yml or .toml.
func Load(path string, base Config) (Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(buf, &fc)
	case ".toml":
		err = toml.Unmarshal(buf, &fc)
	default:
		return base, fmt.Errorf("config %s: unsupported format (want .yaml, .yml or .toml)", path)
	}
	if err != nil {
		return base, fmt.Errorf("%s parse failed: %w", path, err)
	}
	return fc.apply(base)
}

func (fc fileConfig) apply(c Config) (Config, error) {
	if fc.HTTP != nil {
		c.HTTPAddr = *fc.HTTP
	}
	if len(fc.HardwareURLs) > 0 {
		c.HardwareURLs = fc.HardwareURLs
	}
	if fc.FailThreshold != 0 {
		c.FailThreshold = fc.FailThreshold
	}
	if fc.Broker != nil {
		c.Broker = *fc.Broker
	}
	if fc.ClientID != "" {
		c.ClientID = fc.ClientID
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"poll", fc.Poll, &c.Poll},
		{"retry", fc.Retry, &c.Retry},
		{"cooldown", fc.Cooldown, &c.Cooldown},
		{"auto_lock", fc.AutoLock, &c.AutoLock},
		{"watchdog", fc.Watchdog, &c.Watchdog},
		{"notice", fc.Notice, &c.Notice},
		{"heartbeat", fc.Heartbeat, &c.Heartbeat},
	}
	for _, d := range durations {
		if strings.TrimSpace(d.raw) == "" {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return c, fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = v
	}
	return c, nil
}

// urlList is a comma-separated flag value.
type urlList struct{ dst *[]string }

func (u urlList) String() string {
	if u.dst == nil {
		return ""
	}
	return strings.Join(*u.dst, ",")
}

func (u urlList) Set(s string) error {
	var urls []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			urls = append(urls, part)
		}
	}
	*u.dst = urls
	return nil
}

// BindFlags registers one flag per setting on fs, writing into c. The
// current values of c become the flag defaults.
func BindFlags(fs *flag.FlagSet, c *Config) {
	fs.StringVar(&c.HTTPAddr, "http", c.HTTPAddr, "HTTP panel address (empty to disable)")
	fs.Var(urlList{&c.HardwareURLs}, "hardware", "Comma-separated hardware adapter URLs, tried in order")
	fs.DurationVar(&c.Poll, "poll", c.Poll, "Hardware polling interval while connected")
	fs.DurationVar(&c.Retry, "retry", c.Retry, "Hardware connect interval while disconnected")
	fs.IntVar(&c.FailThreshold, "fail-threshold", c.FailThreshold, "Consecutive failed polls before disconnecting")
	fs.DurationVar(&c.Cooldown, "cooldown", c.Cooldown, "Local-control-active window")
	fs.DurationVar(&c.AutoLock, "auto-lock", c.AutoLock, "Inactivity before the panel locks (0 to disable)")
	fs.DurationVar(&c.Watchdog, "watchdog", c.Watchdog, "Stuck-encoder watchdog period (0 to disable)")
	fs.DurationVar(&c.Notice, "notice", c.Notice, "Notification lifetime")
	fs.StringVar(&c.Broker, "broker", c.Broker, "MQTT broker address (empty to disable)")
	fs.StringVar(&c.ClientID, "client-id", c.ClientID, "MQTT client ID")
	fs.DurationVar(&c.Heartbeat, "heartbeat", c.Heartbeat, "Heartbeat interval (0 to disable)")
}

// Merge returns file with every flag that was explicitly set on fs taken
// from flags instead.
func Merge(fs *flag.FlagSet, flags, file Config) Config {
	out := file
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http":
			out.HTTPAddr = flags.HTTPAddr
		case "hardware":
			out.HardwareURLs = flags.HardwareURLs
		case "poll":
			out.Poll = flags.Poll
		case "retry":
			out.Retry = flags.Retry
		case "fail-threshold":
			out.FailThreshold = flags.FailThreshold
		case "cooldown":
			out.Cooldown = flags.Cooldown
		case "auto-lock":
			out.AutoLock = flags.AutoLock
		case "watchdog":
			out.Watchdog = flags.Watchdog
		case "notice":
			out.Notice = flags.Notice
		case "broker":
			out.Broker = flags.Broker
		case "client-id":
			out.ClientID = flags.ClientID
		case "heartbeat":
			out.Heartbeat = flags.Heartbeat
		}
	})
	return out
}

// Parse resolves the configuration from command-line args: defaults, then
// the file named by -config, then explicitly set flags.
func Parse(fs *flag.FlagSet, args []string) (Config, error) {
	flags := Default()
	BindFlags(fs, &flags)
	path := fs.String("config", "", "Optional YAML or TOML config file")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := flags
	if *path != "" {
		file, err := Load(*path, Default())
		if err != nil {
			return Config{}, err
		}
		cfg = Merge(fs, flags, file)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
