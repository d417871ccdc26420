package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata" // zone names must resolve in distroless images

	"github.com/claude/gbinsight/internal/analysis"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig             `yaml:"server"`
	Database  DatabaseConfig           `yaml:"database"`
	Auth      AuthConfig               `yaml:"auth"`
	Tailscale TailscaleConfig          `yaml:"tailscale"`
	Analysis  AnalysisConfig           `yaml:"analysis"`
	Devices   map[string]DeviceProfile `yaml:"devices"`
	Import    ImportConfig             `yaml:"import"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// AnalysisConfig holds the thresholds used by the analyzers. Lengths are in
// minutes, like the settings of the phone app.
type AnalysisConfig struct {
	Timezone      string          `yaml:"timezone"`
	CacheSize     int             `yaml:"cache_size"`
	CacheTTLMin   int             `yaml:"cache_ttl_min"`
	SampleSeconds int             `yaml:"sample_seconds"`
	Steps         StepsConfig     `yaml:"steps"`
	Sleep         SleepConfig     `yaml:"sleep"`
	HeartRate     HeartRateConfig `yaml:"heart_rate"`
}

type StepsConfig struct {
	MinSessionLengthMin     int `yaml:"min_session_length_min"`
	MaxIdlePhaseMin         int `yaml:"max_idle_phase_min"`
	MinStepsPerMinute       int `yaml:"min_steps_per_minute"`
	MinStepsPerMinuteForRun int `yaml:"min_steps_per_minute_for_run"`
	StepLengthCm            int `yaml:"step_length_cm"`
}

type SleepConfig struct {
	MinSessionLengthMin int `yaml:"min_session_length_min"`
	MaxWakePhaseMin     int `yaml:"max_wake_phase_min"`
	// DayOffsetHours shifts the sleep day so a night is not split at midnight.
	DayOffsetHours int `yaml:"day_offset_hours"`
}

type HeartRateConfig struct {
	MaxGapMin int `yaml:"max_gap_min"`
	BucketSec int `yaml:"bucket_sec"`
}

// DeviceProfile describes how a device type reports stress.
type DeviceProfile struct {
	StressRanges []int `yaml:"stress_ranges"`
	SampleRate   int   `yaml:"sample_rate"`
	Interval     int   `yaml:"interval"`
	Delta        int   `yaml:"delta"`
}

// ImportConfig lists the sample tables read from a Gadgetbridge export.
type ImportConfig struct {
	DeviceType     string          `yaml:"device_type"`
	ActivityTables []ActivityTable `yaml:"activity_tables"`
	StressTables   []StressTable   `yaml:"stress_tables"`
}

type ActivityTable struct {
	Table           string  `yaml:"table"`
	DistanceColumn  string  `yaml:"distance_column"`
	IntensityScale  float64 `yaml:"intensity_scale"`
	CumulativeSteps bool    `yaml:"cumulative_steps"`
	// TimestampShift is added to every timestamp, in seconds.
	TimestampShift int `yaml:"timestamp_shift"`
	// Kinds maps raw kind codes to kind names; unmapped codes are unknown.
	Kinds map[int]string `yaml:"kinds"`
}

type StressTable struct {
	Table           string `yaml:"table"`
	TimestampMillis bool   `yaml:"timestamp_millis"`
}

// DefaultKinds are the activity kind codes stored by Gadgetbridge.
var DefaultKinds = map[int]string{
	0:    "unknown",
	1:    "activity",
	2:    "light_sleep",
	4:    "deep_sleep",
	8:    "not_worn",
	16:   "running",
	32:   "walking",
	512:  "exercise",
	2048: "rem_sleep",
	4096: "awake_sleep",
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Load reads config from a YAML file, fills defaults, then applies environment
// variable overrides. Env vars use the prefix GBINSIGHT_ and underscore-separated paths:
//
//	GBINSIGHT_SERVER_HOST, GBINSIGHT_SERVER_PORT,
//	GBINSIGHT_DB_HOST, GBINSIGHT_DB_PORT, GBINSIGHT_DB_NAME,
//	GBINSIGHT_DB_USER, GBINSIGHT_DB_PASSWORD, GBINSIGHT_DB_SSLMODE,
//	GBINSIGHT_AUTH_API_KEY, GBINSIGHT_TIMEZONE
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	a := &cfg.Analysis
	if a.Timezone == "" {
		a.Timezone = "UTC"
	}
	if a.CacheSize == 0 {
		a.CacheSize = 512
	}
	setDefault(&a.CacheTTLMin, 5)
	if a.SampleSeconds == 0 {
		a.SampleSeconds = 60
	}

	steps := analysis.DefaultStepConfig()
	setDefault(&a.Steps.MinSessionLengthMin, int(steps.MinSessionLength/60))
	setDefault(&a.Steps.MaxIdlePhaseMin, int(steps.MaxIdlePhase/60))
	setDefault(&a.Steps.MinStepsPerMinute, steps.MinStepsPerMinute)
	setDefault(&a.Steps.MinStepsPerMinuteForRun, steps.MinStepsPerMinuteForRun)
	setDefault(&a.Steps.StepLengthCm, steps.StepLengthCm)

	sleep := analysis.DefaultSleepConfig()
	setDefault(&a.Sleep.MinSessionLengthMin, int(sleep.MinSessionLength/60))
	setDefault(&a.Sleep.MaxWakePhaseMin, int(sleep.MaxWakePhase/60))
	setDefault(&a.Sleep.DayOffsetHours, 12)

	hr := analysis.DefaultHeartRateConfig()
	setDefault(&a.HeartRate.MaxGapMin, int(hr.MaxGap/60))
	setDefault(&a.HeartRate.BucketSec, int(hr.Bucket))

	cfg.Import.applyDefaults()
}

// applyDefaults reads Garmin tables when none are configured.
func (ic *ImportConfig) applyDefaults() {
	if len(ic.ActivityTables) == 0 {
		ic.ActivityTables = []ActivityTable{{
			Table:           "GARMIN_ACTIVITY_SAMPLE",
			DistanceColumn:  "DISTANCE_CM",
			IntensityScale:  100,
			CumulativeSteps: true,
			TimestampShift:  -60,
		}}
	}
	if len(ic.StressTables) == 0 {
		ic.StressTables = []StressTable{{Table: "GARMIN_STRESS_SAMPLE", TimestampMillis: true}}
	}
	for i := range ic.ActivityTables {
		t := &ic.ActivityTables[i]
		if t.IntensityScale == 0 {
			t.IntensityScale = 1
		}
		if len(t.Kinds) == 0 {
			t.Kinds = DefaultKinds
		}
	}
}

// LoadImport reads only the import section of a config file, for tools that
// do not talk to the database. An empty path yields the defaults.
func LoadImport(path string) (ImportConfig, error) {
	var cfg struct {
		Import ImportConfig `yaml:"import"`
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return ImportConfig{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return ImportConfig{}, fmt.Errorf("parsing config file: %w", err)
		}
	}
	cfg.Import.applyDefaults()
	if err := cfg.Import.validate(); err != nil {
		return ImportConfig{}, fmt.Errorf("config validation: %w", err)
	}
	return cfg.Import, nil
}

func setDefault(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GBINSIGHT_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("GBINSIGHT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("GBINSIGHT_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("GBINSIGHT_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("GBINSIGHT_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("GBINSIGHT_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("GBINSIGHT_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("GBINSIGHT_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("GBINSIGHT_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("GBINSIGHT_TIMEZONE"); v != "" {
		cfg.Analysis.Timezone = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	if _, err := time.LoadLocation(c.Analysis.Timezone); err != nil {
		return fmt.Errorf("analysis.timezone: %w", err)
	}
	if c.Analysis.CacheSize < 0 {
		return fmt.Errorf("analysis.cache_size must not be negative")
	}
	if c.Analysis.CacheTTLMin < 0 {
		return fmt.Errorf("analysis.cache_ttl_min must not be negative")
	}
	if _, err := analysis.NewStepAnalyzer(c.Analysis.StepConfig()); err != nil {
		return fmt.Errorf("analysis.steps: %w", err)
	}
	if _, err := analysis.NewSleepAnalyzer(c.Analysis.SleepConfig()); err != nil {
		return fmt.Errorf("analysis.sleep: %w", err)
	}
	if _, err := analysis.NewHeartRateAnalyzer(c.Analysis.HeartRateConfig()); err != nil {
		return fmt.Errorf("analysis.heart_rate: %w", err)
	}
	for name, p := range c.Devices {
		sc, err := p.StressConfig()
		if err != nil {
			return fmt.Errorf("devices.%s: %w", name, err)
		}
		if _, err := analysis.NewStressClassifier(sc); err != nil {
			return fmt.Errorf("devices.%s: %w", name, err)
		}
	}
	return c.Import.validate()
}

func (ic ImportConfig) validate() error {
	for i, t := range ic.ActivityTables {
		if t.Table == "" {
			return fmt.Errorf("import.activity_tables[%d].table is required", i)
		}
	}
	for i, t := range ic.StressTables {
		if t.Table == "" {
			return fmt.Errorf("import.stress_tables[%d].table is required", i)
		}
	}
	return nil
}

// Location returns the time zone days are cut in.
func (a AnalysisConfig) Location() *time.Location {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (a AnalysisConfig) StepConfig() analysis.StepConfig {
	return analysis.StepConfig{
		MinSessionLength:        int64(a.Steps.MinSessionLengthMin) * 60,
		MaxIdlePhase:            int64(a.Steps.MaxIdlePhaseMin) * 60,
		MinStepsPerMinute:       a.Steps.MinStepsPerMinute,
		MinStepsPerMinuteForRun: a.Steps.MinStepsPerMinuteForRun,
		StepLengthCm:            a.Steps.StepLengthCm,
	}
}

func (a AnalysisConfig) SleepConfig() analysis.SleepConfig {
	return analysis.SleepConfig{
		MinSessionLength: int64(a.Sleep.MinSessionLengthMin) * 60,
		MaxWakePhase:     int64(a.Sleep.MaxWakePhaseMin) * 60,
	}
}

func (a AnalysisConfig) HeartRateConfig() analysis.HeartRateConfig {
	return analysis.HeartRateConfig{
		MaxGap: int64(a.HeartRate.MaxGapMin) * 60,
		Bucket: int64(a.HeartRate.BucketSec),
	}
}

// StressConfig converts the profile, filling unset fields from the default
// continuous device.
func (p DeviceProfile) StressConfig() (analysis.StressConfig, error) {
	sc := analysis.DefaultStressConfig()
	if len(p.StressRanges) > 0 {
		if len(p.StressRanges) != len(sc.Ranges) {
			return sc, fmt.Errorf("stress_ranges needs %d values, got %d", len(sc.Ranges), len(p.StressRanges))
		}
		copy(sc.Ranges[:], p.StressRanges)
	}
	if p.SampleRate > 0 {
		sc.SampleRate = int64(p.SampleRate)
	}
	sc.Interval = int64(p.Interval)
	sc.Delta = int64(p.Delta)
	return sc, nil
}

// StressConfig returns the stress settings for a device type, or the
// defaults when the type has no profile.
func (c *Config) StressConfig(deviceType string) analysis.StressConfig {
	p, ok := c.Devices[deviceType]
	if !ok {
		return analysis.DefaultStressConfig()
	}
	sc, err := p.StressConfig()
	if err != nil {
		return analysis.DefaultStressConfig()
	}
	return sc
}
