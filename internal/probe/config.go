//go:build linux

package probe

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Config controls a probe run.
type Config struct {
	// Descriptors lists the descriptor numbers to inspect.
	Descriptors []int `json:"descriptors"`

	// CheckDup enables the kernel F_DUPFD_CLOEXEC capability probe.
	CheckDup bool `json:"check_dup"`

	// ToggleNonblock additionally round-trips each open descriptor
	// through non-blocking mode to verify the toggle works. The
	// original blocking state is restored.
	ToggleNonblock bool `json:"toggle_nonblock"`

	// ReportPath is where `fdprobe report` writes its JSON output.
	// Empty means stdout only.
	ReportPath string `json:"report_path,omitempty"`

	// Source is the config file the values came from, or "defaults".
	// Not serialized.
	Source string `json:"-"`
}

// ConfigFileName is the config file fdprobe looks for in the working
// directory when --config is not given.
const ConfigFileName = ".fdprobe.json"

// DefaultConfig returns the configuration used when no config file
// exists: inspect the three standard descriptors and check dup support.
func DefaultConfig() Config {
	return Config{
		Descriptors: []int{0, 1, 2},
		CheckDup:    true,
		Source:      "defaults",
	}
}

// LoadConfig loads configuration from path, which may be JSON or HuJSON
// (JSON with comments and trailing commas).
//
// If path is empty, [ConfigFileName] in the working directory is used
// when present; otherwise [DefaultConfig] is returned. A path given
// explicitly must exist.
func LoadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = ConfigFileName
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}

		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}

	cfg := DefaultConfig()
	cfg.Source = path

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}

	if err := validate(cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}

	return cfg, nil
}

func validate(cfg Config) error {
	for _, raw := range cfg.Descriptors {
		if raw < 0 {
			return fmt.Errorf("negative descriptor %d", raw)
		}
	}

	return nil
}
