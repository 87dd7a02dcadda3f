package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/tbourn/teamhub/internal/apperr"
	"github.com/tbourn/teamhub/internal/config"
	"github.com/tbourn/teamhub/internal/sysutil"
)

const configFileName = ".teamctl.yaml"

// fileConfig is the on-disk ~/.teamctl.yaml.
type fileConfig struct {
	Server  string `yaml:"server,omitempty"`
	Token   string `yaml:"token,omitempty"`
	Timeout string `yaml:"timeout,omitempty"`
	Retries *int   `yaml:"retries,omitempty"`
}

// globalFlags are the root persistent flags.
type globalFlags struct {
	server     string
	token      string
	configPath string
	timeout    time.Duration
	retries    int
	rps        float64
	debug      bool
}

// settings is the merged view used to build the client.
type settings struct {
	client config.ClientConfig
	token  string
	rps    float64
	debug  bool
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return configFileName
	}
	return filepath.Join(home, configFileName)
}

// readFileConfig loads path. A missing file is an empty config.
func readFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fc, nil
	}
	if err != nil {
		return fc, apperr.Validation("cannot read config file", map[string]any{apperr.MetaField: "config"}).WithCause(err)
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fc, apperr.Validation(fmt.Sprintf("invalid config file %s", path), map[string]any{apperr.MetaField: "config"}).WithCause(err)
	}
	return fc, nil
}

func writeFileConfig(path string, fc fileConfig) error {
	b, err := yaml.Marshal(fc)
	if err != nil {
		return apperr.Internal("encode config file", nil).WithCause(err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return apperr.Internal("write config file", nil).WithCause(err)
	}
	return nil
}

// changedFunc reports whether a flag was set on the command line.
type changedFunc func(name string) bool

// resolve merges, from lowest to highest precedence: CLIENT_* environment
// (with its defaults), the config file, TEAMCTL_* environment, then flags.
func resolve(env config.ClientConfig, fc fileConfig, f globalFlags, changed changedFunc) (settings, error) {
	s := settings{client: env, rps: f.rps}

	if server := sysutil.FirstNonEmpty(flagString(changed, "server", f.server), os.Getenv("TEAMCTL_SERVER"), fc.Server); server != "" {
		s.client.BaseURL = strings.TrimRight(strings.TrimSpace(server), "/")
	}
	s.token = strings.TrimSpace(sysutil.FirstNonEmpty(flagString(changed, "token", f.token), os.Getenv("TEAMCTL_TOKEN"), fc.Token))

	switch {
	case changed("timeout"):
		s.client.Timeout = f.timeout
	case fc.Timeout != "":
		d, err := time.ParseDuration(fc.Timeout)
		if err != nil {
			return s, apperr.Validation("timeout in config file is not a duration", map[string]any{apperr.MetaField: "timeout"}).WithCause(err)
		}
		s.client.Timeout = d
	}
	switch {
	case changed("retries"):
		s.client.MaxRetries = f.retries
	case fc.Retries != nil:
		s.client.MaxRetries = *fc.Retries
	}

	s.debug = f.debug || sysutil.IsTruthy(os.Getenv("TEAMCTL_DEBUG"))

	if s.client.BaseURL == "" {
		return s, apperr.Validation("server URL is required", map[string]any{apperr.MetaField: "server"})
	}
	if s.client.Timeout <= 0 {
		return s, apperr.Validation("timeout must be positive", map[string]any{apperr.MetaField: "timeout"})
	}
	if s.client.MaxRetries < 0 {
		return s, apperr.Validation("retries must not be negative", map[string]any{apperr.MetaField: "retries"})
	}
	if s.rps < 0 {
		return s, apperr.Validation("rps must not be negative", map[string]any{apperr.MetaField: "rps"})
	}
	return s, nil
}

func flagString(changed changedFunc, name, v string) string {
	if changed(name) {
		return v
	}
	return ""
}
