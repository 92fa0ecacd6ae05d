package envconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/maps"
)

// Host returns the scheme and host of the view synthesis runner. Host can be
// configured via the TURNTABLE_HOST environment variable.
// Default is scheme "http" and host "127.0.0.1:11500"
func Host() *url.URL {
	defaultPort := "11500"

	s := strings.TrimSpace(Var("TURNTABLE_HOST"))
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	hostport, path, _ := strings.Cut(hostport, "/")
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   path,
	}
}

// LogLevel returns the log level for the application.
// Values are 0 or false INFO (Default), 1 or true DEBUG, 2 TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("TURNTABLE_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Output returns the root directory runs are written under. Configured via
// TURNTABLE_OUTPUT.
func Output() string {
	if s := Var("TURNTABLE_OUTPUT"); s != "" {
		return s
	}
	return "experiments"
}

// Precision returns the numeric precision mode requested via
// TURNTABLE_PRECISION. It is validated by the api package.
func Precision() string {
	if s := Var("TURNTABLE_PRECISION"); s != "" {
		return s
	}
	return "fp32"
}

// AllowedOrigins returns the origins browsers may call the runner from.
// Extra origins can be configured via TURNTABLE_ORIGINS, a comma separated
// list. Local hosts on any port are always allowed.
func AllowedOrigins() (origins []string) {
	if s := Var("TURNTABLE_ORIGINS"); s != "" {
		for _, origin := range strings.Split(s, ",") {
			origin = strings.TrimSpace(origin)
			if err := validOrigin(origin); err != nil {
				slog.Warn("ignoring origin", "origin", origin, "error", err)
				continue
			}
			origins = append(origins, origin)
		}
	}

	for _, host := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		origins = append(origins,
			"http://"+host,
			"https://"+host,
			"http://"+net.JoinHostPort(host, "*"),
			"https://"+net.JoinHostPort(host, "*"),
		)
	}

	return origins
}

// validOrigin accepts "*" or an http(s) origin with at most one wildcard,
// which must come last.
func validOrigin(origin string) error {
	if origin == "*" {
		return nil
	}
	if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
		return errors.New("origin must start with http:// or https://")
	}
	if i := strings.Index(origin, "*"); i >= 0 && i != len(origin)-1 {
		return errors.New("only a trailing * is allowed")
	}
	return nil
}

func Bool(k string) func() bool {
	return func() bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}

			return b
		}

		return false
	}
}

var (
	// CBOR sends runner requests as CBOR instead of JSON.
	CBOR = Bool("TURNTABLE_CBOR")
)

func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}

		return defaultValue
	}
}

func Int64(key string, defaultValue int64) func() int64 {
	return func() int64 {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseInt(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return n
			}
		}

		return defaultValue
	}
}

func Float(key string, defaultValue float64) func() float64 {
	return func() float64 {
		if s := Var(key); s != "" {
			if f, err := strconv.ParseFloat(s, 64); err != nil || math.IsNaN(f) {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return f
			}
		}

		return defaultValue
	}
}

func Duration(key string, defaultValue time.Duration) func() time.Duration {
	return func() time.Duration {
		if s := Var(key); s != "" {
			if d, err := time.ParseDuration(s); err == nil && d >= 0 {
				return d
			} else if n, err := strconv.ParseInt(s, 10, 64); err == nil && n >= 0 {
				return time.Duration(n) * time.Second
			}
			slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
		}

		return defaultValue
	}
}

var (
	// InferenceTemp controls how fast the input view loses weight.
	InferenceTemp = Float("TURNTABLE_INFERENCE_TEMP", 0.5)
	// AutoTemp controls how sharply weight concentrates on near anchors.
	AutoTemp = Float("TURNTABLE_AUTO_TEMP", 0.5)
	// Scale is the guidance scale forwarded to the runner.
	Scale = Float("TURNTABLE_SCALE", 3.0)
	// Eta is the sampler noise parameter.
	Eta = Float("TURNTABLE_ETA", 1.0)
	// SamplingSteps is the number of denoising steps per view.
	SamplingSteps = Uint("TURNTABLE_STEPS", 75)
	// Seed is forwarded to the runner with every request.
	Seed = Int64("TURNTABLE_SEED", 8007)
	// Height and Width are the resolution input photos are resized to.
	Height = Uint("TURNTABLE_HEIGHT", 256)
	Width  = Uint("TURNTABLE_WIDTH", 256)
	// NumParallel is the number of items processed concurrently.
	NumParallel = Uint("TURNTABLE_NUM_PARALLEL", 1)
	// RunnerParallel bounds in-flight requests per runner.
	RunnerParallel = Uint("TURNTABLE_RUNNER_PARALLEL", 1)
	// LoadTimeout bounds how long to wait for the runner to become ready.
	LoadTimeout = Duration("TURNTABLE_LOAD_TIMEOUT", 5*time.Minute)
	// RequestTimeout bounds a single synthesize call.
	RequestTimeout = Duration("TURNTABLE_REQUEST_TIMEOUT", 10*time.Minute)
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"TURNTABLE_AUTO_TEMP":       {"TURNTABLE_AUTO_TEMP", AutoTemp(), "Softmax temperature among generated anchors (default 0.5)"},
		"TURNTABLE_CBOR":            {"TURNTABLE_CBOR", CBOR(), "Encode runner requests as CBOR"},
		"TURNTABLE_CONFIG":          {"TURNTABLE_CONFIG", ConfigPath(), "Path to a TOML configuration file"},
		"TURNTABLE_DEBUG":           {"TURNTABLE_DEBUG", LogLevel(), "Show additional debug information (e.g. TURNTABLE_DEBUG=1)"},
		"TURNTABLE_ETA":             {"TURNTABLE_ETA", Eta(), "Sampler noise parameter (default 1.0)"},
		"TURNTABLE_HEIGHT":          {"TURNTABLE_HEIGHT", Height(), "Input height in pixels (default 256)"},
		"TURNTABLE_HOST":            {"TURNTABLE_HOST", Host(), "Address of the view synthesis runner (default 127.0.0.1:11500)"},
		"TURNTABLE_INFERENCE_TEMP":  {"TURNTABLE_INFERENCE_TEMP", InferenceTemp(), "Decay temperature of the input view weight (default 0.5)"},
		"TURNTABLE_LOAD_TIMEOUT":    {"TURNTABLE_LOAD_TIMEOUT", LoadTimeout(), "How long to wait for the runner to become ready (default \"5m\")"},
		"TURNTABLE_NUM_PARALLEL":    {"TURNTABLE_NUM_PARALLEL", NumParallel(), "Number of items processed in parallel (default 1)"},
		"TURNTABLE_ORIGINS":         {"TURNTABLE_ORIGINS", AllowedOrigins(), "A comma separated list of origins allowed to call the runner"},
		"TURNTABLE_OUTPUT":          {"TURNTABLE_OUTPUT", Output(), "Directory runs are written under"},
		"TURNTABLE_PRECISION":       {"TURNTABLE_PRECISION", Precision(), "Numeric precision: fp32, autocast, fp16, bf16 (default fp32)"},
		"TURNTABLE_REQUEST_TIMEOUT": {"TURNTABLE_REQUEST_TIMEOUT", RequestTimeout(), "Timeout of a single synthesize request (default \"10m\")"},
		"TURNTABLE_RUNNER_PARALLEL": {"TURNTABLE_RUNNER_PARALLEL", RunnerParallel(), "Maximum in-flight requests per runner (default 1)"},
		"TURNTABLE_SCALE":           {"TURNTABLE_SCALE", Scale(), "Guidance scale (default 3.0)"},
		"TURNTABLE_SEED":            {"TURNTABLE_SEED", Seed(), "Sampler seed (default 8007)"},
		"TURNTABLE_STEPS":           {"TURNTABLE_STEPS", SamplingSteps(), "Sampling steps per view (default 75)"},
		"TURNTABLE_WIDTH":           {"TURNTABLE_WIDTH", Width(), "Input width in pixels (default 256)"},
	}
}

// Names returns every recognized variable name, sorted.
func Names() []string {
	names := maps.Keys(AsMap())
	slices.Sort(names)
	return names
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// Var returns an environment variable stripped of leading and trailing quotes or spaces,
// falling back to the configuration file.
func Var(key string) string {
	if s := strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'"); s != "" {
		return s
	}
	return GetConfigValue(key)
}

// Validate reports configuration that cannot be used. Accessors fall back
// to defaults on bad input; Validate lets startup refuse it instead.
func Validate() error {
	var errs []error
	if err := ConfigError(); err != nil {
		errs = append(errs, err)
	}

	for _, key := range []string{"TURNTABLE_INFERENCE_TEMP", "TURNTABLE_AUTO_TEMP", "TURNTABLE_SCALE", "TURNTABLE_ETA"} {
		if s := Var(key); s != "" {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				errs = append(errs, fmt.Errorf("%s=%q: %w", key, s, err))
			}
		}
	}

	for _, key := range []string{"TURNTABLE_STEPS", "TURNTABLE_HEIGHT", "TURNTABLE_WIDTH", "TURNTABLE_NUM_PARALLEL", "TURNTABLE_RUNNER_PARALLEL"} {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				errs = append(errs, fmt.Errorf("%s=%q: %w", key, s, err))
			} else if n == 0 {
				errs = append(errs, fmt.Errorf("%s must be greater than zero", key))
			}
		}
	}

	if s := Var("TURNTABLE_ORIGINS"); s != "" {
		for _, origin := range strings.Split(s, ",") {
			if err := validOrigin(strings.TrimSpace(origin)); err != nil {
				errs = append(errs, fmt.Errorf("TURNTABLE_ORIGINS=%q: %w", origin, err))
			}
		}
	}

	if s := Var("TURNTABLE_SEED"); s != "" {
		if _, err := strconv.ParseInt(s, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("TURNTABLE_SEED=%q: %w", s, err))
		}
	}

	return errors.Join(errs...)
}
