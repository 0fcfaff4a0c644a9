// Package config loads and validates the bridge's flat configuration file
// (§2.1, §6 "Configuration"). It is deliberately thin: a typed struct plus
// the startup validation spec §7 calls CONFIG errors.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mteedev/lighthouse-bridge/internal/berr"
)

const changeMeSentinel = "CHANGE_ME"

type MatrixConfig struct {
	BaseURL      string `yaml:"base_url"`
	Homeserver   string `yaml:"homeserver"`
	ASToken      string `yaml:"as_token"`
	HSToken      string `yaml:"hs_token"`
	BotLocalpart string `yaml:"bot_localpart"`
}

func (m MatrixConfig) BotMXID() string {
	return "@" + m.BotLocalpart + ":" + m.Homeserver
}

type SimConfig struct {
	BridgeSecret string `yaml:"bridge_secret"`
	RegionURL    string `yaml:"region_url"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// URI builds the dbutil-style pool URI (§6 "database coordinates") from the
// discrete fields a flat YAML config naturally exposes.
func (d DatabaseConfig) URI() string {
	if d.Driver == "sqlite3" {
		return d.Name
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", d.User, d.Password, d.Host, d.Port, d.Name)
}

type AvatarConfig struct {
	BaseURL  string `yaml:"base_url"`
	CacheDir string `yaml:"cache_dir"`
}

// ServerConfig describes the single HTTP listener the bridge binds. Both the
// AppService surface (/transactions, /users) and the bridge's own admin and
// /sim/event endpoints are served on this one address — there is no separate
// OpenSim-facing bind.
type ServerConfig struct {
	AppServiceHost string `yaml:"appservice_host"`
	AppServicePort int    `yaml:"appservice_port"`
	LogLevel       string `yaml:"log_level"`
}

type Config struct {
	Matrix   MatrixConfig   `yaml:"matrix"`
	Sim      SimConfig      `yaml:"opensim"`
	Database DatabaseConfig `yaml:"database"`
	Avatar   AvatarConfig   `yaml:"avatar"`
	Server   ServerConfig   `yaml:"server"`
}

func defaults() Config {
	return Config{
		Matrix: MatrixConfig{
			BaseURL:      "http://127.0.0.1:6167",
			Homeserver:   "localhost",
			BotLocalpart: "opensim_bot",
		},
		Sim: SimConfig{
			RegionURL: "http://127.0.0.1:9000",
		},
		Database: DatabaseConfig{
			Driver: "postgres",
			Host:   "127.0.0.1",
			Port:   5432,
			Name:   "opensim_matrix_bridge",
			User:   "bridge",
		},
		Avatar: AvatarConfig{
			CacheDir: "./data/avpic-cache",
		},
		Server: ServerConfig{
			AppServiceHost: "127.0.0.1",
			AppServicePort: 9009,
			LogLevel:       "info",
		},
	}
}

// Load reads and validates the YAML file at path, matching
// original_source/bridge/config.py's LIGHTHOUSE_CONFIG env-var convention
// one layer up in main.go.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, berr.Configf("reading config file %s: %v", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, berr.Configf("parsing config file %s: %v", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate enforces that the three bridge secrets are present and not the
// placeholder sentinel (§6 "Three secrets are required and startup must
// fail if any is empty or the literal sentinel CHANGE_ME").
func (c Config) Validate() error {
	secrets := map[string]string{
		"matrix.as_token":      c.Matrix.ASToken,
		"matrix.hs_token":      c.Matrix.HSToken,
		"opensim.bridge_secret": c.Sim.BridgeSecret,
	}
	for field, val := range secrets {
		if val == "" || val == changeMeSentinel {
			return berr.Configf("%s must be set and not left as %s", field, changeMeSentinel)
		}
	}
	return nil
}
