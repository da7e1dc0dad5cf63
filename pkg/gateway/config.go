package gateway

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/easelhq/framegit/pkg/errs"
)

// Config holds the trusted-boundary settings. The bearer token lives
// here and nowhere else; it is never sent to or stored for the
// sandboxed client.
type Config struct {
	Listen      string        `toml:"listen"`
	APIBase     string        `toml:"api_base"`
	Token       string        `toml:"token"`
	Timeout     time.Duration `toml:"-"`
	TimeoutSecs int           `toml:"timeout_seconds"`
	MaxAttempts int           `toml:"max_attempts"`
}

// EnvToken is consulted when the config file carries no token.
const EnvToken = "FRAMEGIT_TOKEN"

// LoadConfig reads a TOML config file. A missing file is not an error:
// defaults plus the environment are enough to run. An empty token after
// both sources is a misconfiguration.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		Listen:      ":8472",
		MaxAttempts: 3,
	}
	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("load config %q: %w", path, err)
			}
		}
	}
	if cfg.Token == "" {
		cfg.Token = strings.TrimSpace(os.Getenv(EnvToken))
	}
	if cfg.Token == "" {
		return Config{}, fmt.Errorf("no hosted API token in config or %s: %w", EnvToken, errs.ErrMisconfigured)
	}
	if cfg.TimeoutSecs > 0 {
		cfg.Timeout = time.Duration(cfg.TimeoutSecs) * time.Second
	}
	return cfg, nil
}
