package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// Config represents the TOML configuration structure
type Config struct {
	Runner struct {
		Host           string   `toml:"host"`
		CBOR           bool     `toml:"cbor"`
		Parallel       uint     `toml:"parallel"`
		LoadTimeout    string   `toml:"load_timeout"`
		RequestTimeout string   `toml:"request_timeout"`
		Origins        []string `toml:"origins"`
	} `toml:"runner"`

	Schedule struct {
		InferenceTemp float64 `toml:"inference_temp"`
		AutoTemp      float64 `toml:"auto_temp"`
	} `toml:"schedule"`

	Sampler struct {
		Scale     float64  `toml:"scale"`
		Steps     uint     `toml:"steps"`
		Eta       *float64 `toml:"eta"`
		Precision string   `toml:"precision"`
		Seed      int64    `toml:"seed"`
	} `toml:"sampler"`

	Data struct {
		Height      uint   `toml:"height"`
		Width       uint   `toml:"width"`
		Output      string `toml:"output"`
		NumParallel uint   `toml:"num_parallel"`
	} `toml:"data"`

	Logging struct {
		Debug int `toml:"debug"`
	} `toml:"logging"`
}

var (
	configOnce sync.Once
	config     *Config
	configPath string
	configErr  error
)

// ConfigPath returns the file the configuration was loaded from, if any.
func ConfigPath() string {
	loadOnce()
	return configPath
}

// ConfigError returns the error encountered while loading the file, if any.
func ConfigError() error {
	loadOnce()
	return configErr
}

// GetConfigPaths returns the list of possible config file paths for the current OS
func GetConfigPaths() []string {
	if p := os.Getenv("TURNTABLE_CONFIG"); p != "" {
		return []string{p}
	}

	var paths []string
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			paths = append(paths, filepath.Join(appData, "turntable", "config.toml"))
		}
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			paths = append(paths, filepath.Join(xdgConfig, "turntable", "config.toml"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			paths = append(paths,
				filepath.Join(home, ".config", "turntable", "config.toml"),
				filepath.Join(home, ".turntable", "config.toml"),
			)
		}
		if runtime.GOOS != "darwin" {
			paths = append(paths, "/etc/turntable/config.toml")
		}
	}

	return paths
}

// loadConfig loads the first available configuration file
func loadConfig() (*Config, string, error) {
	for _, path := range GetConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			var cfg Config
			md, err := toml.DecodeFile(path, &cfg)
			if err != nil {
				return nil, path, fmt.Errorf("error parsing config file %s: %w", path, err)
			}
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				return nil, path, fmt.Errorf("unknown keys in config file %s: %v", path, undecoded)
			}
			return &cfg, path, nil
		}
	}
	return nil, "", nil
}

func loadOnce() {
	configOnce.Do(func() {
		config, configPath, configErr = loadConfig()
		if configErr != nil {
			slog.Warn("failed to load config file", "error", configErr)
		} else if config != nil {
			slog.Debug("loaded config file", "path", configPath)
		}
	})
}

// resetConfig forgets the loaded file so the next lookup reads it again.
func resetConfig() {
	configOnce = sync.Once{}
	config, configPath, configErr = nil, "", nil
}

// GetConfigValue returns the value for a given environment variable key from the config file
func GetConfigValue(key string) string {
	loadOnce()
	if config == nil {
		return ""
	}

	uintValue := func(n uint) string {
		if n > 0 {
			return strconv.FormatUint(uint64(n), 10)
		}
		return ""
	}

	floatValue := func(f float64) string {
		if f != 0 {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return ""
	}

	switch key {
	case "TURNTABLE_HOST":
		return config.Runner.Host
	case "TURNTABLE_CBOR":
		if config.Runner.CBOR {
			return "true"
		}
	case "TURNTABLE_RUNNER_PARALLEL":
		return uintValue(config.Runner.Parallel)
	case "TURNTABLE_LOAD_TIMEOUT":
		return config.Runner.LoadTimeout
	case "TURNTABLE_REQUEST_TIMEOUT":
		return config.Runner.RequestTimeout
	case "TURNTABLE_ORIGINS":
		return strings.Join(config.Runner.Origins, ",")
	case "TURNTABLE_INFERENCE_TEMP":
		return floatValue(config.Schedule.InferenceTemp)
	case "TURNTABLE_AUTO_TEMP":
		return floatValue(config.Schedule.AutoTemp)
	case "TURNTABLE_SCALE":
		return floatValue(config.Sampler.Scale)
	case "TURNTABLE_STEPS":
		return uintValue(config.Sampler.Steps)
	case "TURNTABLE_ETA":
		// eta = 0 is a valid setting
		if config.Sampler.Eta != nil {
			return strconv.FormatFloat(*config.Sampler.Eta, 'g', -1, 64)
		}
	case "TURNTABLE_PRECISION":
		return config.Sampler.Precision
	case "TURNTABLE_SEED":
		if config.Sampler.Seed != 0 {
			return strconv.FormatInt(config.Sampler.Seed, 10)
		}
	case "TURNTABLE_HEIGHT":
		return uintValue(config.Data.Height)
	case "TURNTABLE_WIDTH":
		return uintValue(config.Data.Width)
	case "TURNTABLE_OUTPUT":
		return config.Data.Output
	case "TURNTABLE_NUM_PARALLEL":
		return uintValue(config.Data.NumParallel)
	case "TURNTABLE_DEBUG":
		if config.Logging.Debug != 0 {
			return strconv.Itoa(config.Logging.Debug)
		}
	}

	return ""
}

// GenerateExampleConfig returns a commented example TOML configuration
func GenerateExampleConfig() string {
	return `# Turntable Configuration File
# Environment variables (TURNTABLE_*) take precedence over these values.

[runner]
# Address of the view synthesis runner (default: "127.0.0.1:11500")
host = "127.0.0.1:11500"
# Encode requests as CBOR instead of JSON (default: false)
cbor = false
# Maximum in-flight requests per runner (default: 1)
parallel = 1
# How long to wait for the runner to become ready (default: "5m")
load_timeout = "5m"
# Timeout of a single synthesize request (default: "10m")
request_timeout = "10m"
# Extra origins browsers may call the runner from; local hosts are always allowed
origins = []

[schedule]
# Decay temperature of the input view weight (default: 0.5)
inference_temp = 0.5
# Softmax temperature among generated anchors (default: 0.5)
auto_temp = 0.5

[sampler]
# Guidance scale (default: 3.0)
scale = 3.0
# Sampling steps per view (default: 75)
steps = 75
# Sampler noise parameter (default: 1.0)
eta = 1.0
# fp32, autocast, fp16 or bf16 (default: "fp32")
precision = "fp32"
seed = 8007

[data]
# Input resolution (default: 256x256)
height = 256
width = 256
# Directory runs are written under (default: "experiments")
output = "experiments"
# Items processed in parallel (default: 1)
num_parallel = 1

[logging]
# 0 info, 1 debug, 2 trace (default: 0)
debug = 0
`
}
