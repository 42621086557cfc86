package config

import (
	"bytes"
	"errors"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"timebase-node/errcode"
	"timebase-node/types"
)

// ProfileLookup allows overriding how profiles are resolved.
var ProfileLookup = func(device string) ([]byte, bool) {
	b, err := profiles.ReadFile("profiles/" + device + ".yaml")
	if err != nil {
		return nil, false
	}
	return b, true
}

type Config struct {
	RetriesBeforeReboot int           `yaml:"retries_before_reboot"`
	BackoffStep         time.Duration `yaml:"backoff_step"`
	NoWifiBeforeAp      time.Duration `yaml:"no_wifi_before_ap"`
	ApWait              time.Duration `yaml:"ap_wait"`
	Tick                time.Duration `yaml:"tick"`
	WaitPerIteration    time.Duration `yaml:"wait_per_iteration"`
	WaitBetweenPosts    time.Duration `yaml:"wait_between_posts"`

	AP      types.Credentials `yaml:"ap"`
	WLAN    types.Credentials `yaml:"wlan"`
	Upload  Upload            `yaml:"upload"`
	Token   Token             `yaml:"token"`
	NTP     NTP               `yaml:"ntp"`
	Console Console           `yaml:"console"`
}

type Upload struct {
	Host   string `yaml:"host"` // base URL, scheme included
	Stream string `yaml:"stream"`
}

type Token struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	RefreshToken string `yaml:"refresh_token"`
}

type NTP struct {
	Server string `yaml:"server"`
}

type Console struct {
	Baud uint32 `yaml:"baud"`
}

// Load resolves the embedded profile for device.
func Load(device string) (*Config, error) {
	if device == "" {
		return nil, errcode.New(errcode.InvalidConfig, "config.load", "missing device id")
	}
	raw, ok := ProfileLookup(device)
	if !ok || len(raw) == 0 {
		return nil, &errcode.E{C: errcode.NotFound, Op: "config.load", Msg: "no embedded profile for device: " + device}
	}
	return Parse(raw)
}

// Parse decodes a YAML profile, fills defaults and validates it. Unknown
// keys are rejected.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, errcode.Wrap(errcode.Decode, "config.parse", err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, &errcode.E{C: errcode.InvalidConfig, Op: "config.validate", Err: err}
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.RetriesBeforeReboot == 0 {
		cfg.RetriesBeforeReboot = 5
	}
	if cfg.BackoffStep == 0 {
		cfg.BackoffStep = time.Millisecond
	}
	if cfg.NoWifiBeforeAp == 0 {
		cfg.NoWifiBeforeAp = 300 * time.Second
	}
	if cfg.ApWait == 0 {
		cfg.ApWait = 120 * time.Second
	}
	if cfg.Tick == 0 {
		cfg.Tick = time.Second
	}
	if cfg.WaitPerIteration == 0 {
		cfg.WaitPerIteration = 10 * time.Second
	}
	if cfg.WaitBetweenPosts == 0 {
		cfg.WaitBetweenPosts = 60 * time.Second
	}
	if cfg.NTP.Server == "" {
		cfg.NTP.Server = "pool.ntp.org:123"
	}
	if cfg.Console.Baud == 0 {
		cfg.Console.Baud = 115200
	}
	cfg.Upload.Host = strings.TrimRight(cfg.Upload.Host, "/")
}

func validate(cfg *Config) error {
	switch {
	case cfg.RetriesBeforeReboot < 1:
		return errors.New("retries_before_reboot must be at least 1")
	case cfg.BackoffStep < 0, cfg.NoWifiBeforeAp < 0, cfg.ApWait < 0,
		cfg.Tick < 0, cfg.WaitPerIteration < 0, cfg.WaitBetweenPosts < 0:
		return errors.New("durations must not be negative")
	case cfg.AP.Name == "":
		return errors.New("ap.name is required")
	case len(cfg.AP.Secret) < 8:
		return errors.New("ap.passphrase must be at least 8 characters")
	case cfg.Upload.Host == "":
		return errors.New("upload.host is required")
	case !strings.HasPrefix(cfg.Upload.Host, "http://") && !strings.HasPrefix(cfg.Upload.Host, "https://"):
		return errors.New("upload.host must be an http(s) URL")
	case cfg.Upload.Stream == "":
		return errors.New("upload.stream is required")
	}
	return nil
}
