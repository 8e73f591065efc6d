package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/costmgr/costmgr/internal/logger"
)

const gib = 1024 * 1024 * 1024

// Storage class names recognized by the pricing table.
const (
	ClassStandard           = "STANDARD"
	ClassIntelligentTiering = "INTELLIGENT_TIERING"
	ClassStandardIA         = "STANDARD_IA"
	ClassOneZoneIA          = "ONEZONE_IA"
	ClassGlacierIR          = "GLACIER_IR"
	ClassGlacier            = "GLACIER"
	ClassDeepArchive        = "DEEP_ARCHIVE"
)

// Pricing holds the per-storage-class cost tables. Rates are USD per
// GB-month; transition costs are USD per 1000 requests; minimum durations
// are days charged even if the object is removed earlier.
type Pricing struct {
	StorageRates    map[string]float64 `yaml:"storage_rates"`
	TransitionCosts map[string]float64 `yaml:"transition_costs"`
	MinDurationDays map[string]int     `yaml:"min_duration_days"`
}

// Rate returns the per-GB-month rate for a storage class, defaulting to
// the STANDARD rate for unknown classes.
func (p Pricing) Rate(class string) float64 {
	if rate, ok := p.StorageRates[class]; ok {
		return rate
	}
	return p.StorageRates[ClassStandard]
}

// TransitionCost returns the per-1000-requests transition cost for a
// target class.
func (p Pricing) TransitionCost(class string) float64 {
	return p.TransitionCosts[class]
}

// MinDuration returns the minimum storage duration in days for a target
// class and whether one applies.
func (p Pricing) MinDuration(class string) (int, bool) {
	days, ok := p.MinDurationDays[class]
	return days, ok
}

// MonthlySavings computes the monthly saving of moving sizeBytes from one
// storage class to another, rounded to 4 decimals.
func (p Pricing) MonthlySavings(sizeBytes int64, from, to string) float64 {
	diff := p.Rate(from) - p.Rate(to)
	return Round4(diff * float64(sizeBytes) / gib)
}

// MonthlyCost computes the monthly storage cost of sizeBytes in a
// storage class, rounded to 4 decimals.
func (p Pricing) MonthlyCost(sizeBytes int64, class string) float64 {
	return Round4(p.Rate(class) * float64(sizeBytes) / gib)
}

// Round4 rounds to 4 decimal places, the precision used for all dollar
// estimates.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Scanner holds the scanner thresholds.
type Scanner struct {
	StaleDays           int      `yaml:"stale_days"`
	VeryStaleDays       int      `yaml:"very_stale_days"`
	PrefixStaleDays     int      `yaml:"prefix_stale_days"`
	PrefixMinCount      int      `yaml:"prefix_min_count"`
	MultipartAgeDays    int      `yaml:"multipart_age_days"`
	MinObjectBytes      int64    `yaml:"min_object_bytes"`
	LargeObjectBytes    int64    `yaml:"large_object_bytes"`
	ApprovalSizeBytes   int64    `yaml:"approval_size_bytes"`
	MaxObjectsPerBucket int      `yaml:"max_objects_per_bucket"`
	BucketPrefixSkip    []string `yaml:"bucket_prefix_skip"`
	Workers             int      `yaml:"workers"`
}

// Executor holds the execution policy.
type Executor struct {
	GrantedPermissions   []string      `yaml:"granted_permissions"`
	AllowDestructive     bool          `yaml:"allow_destructive"`
	MaxFailures          int           `yaml:"max_failures"`
	MaxActions           int           `yaml:"max_actions"`
	DelayBetweenActions  time.Duration `yaml:"delay_between_actions"`
	DelayAfterFailure    time.Duration `yaml:"delay_after_failure"`
	VerifyBeforeRollback bool          `yaml:"verify_before_rollback"`
}

// HasPermission reports whether a permission is in the granted set.
func (e Executor) HasPermission(perm string) bool {
	for _, granted := range e.GrantedPermissions {
		if granted == perm {
			return true
		}
	}
	return false
}

// Server holds HTTP server settings.
type Server struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Cloud holds object-store client settings.
type Cloud struct {
	Region            string  `yaml:"region"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// Config is the process-wide configuration, loaded once and immutable
// afterwards.
type Config struct {
	Pricing   Pricing       `yaml:"pricing"`
	Scanner   Scanner       `yaml:"scanner"`
	Executor  Executor      `yaml:"executor"`
	Server    Server        `yaml:"server"`
	Cloud     Cloud         `yaml:"cloud"`
	Log       logger.Config `yaml:"log"`
	StorePath string        `yaml:"store_path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Pricing: Pricing{
			StorageRates: map[string]float64{
				ClassStandard:           0.023,
				ClassIntelligentTiering: 0.023,
				ClassStandardIA:         0.0125,
				ClassOneZoneIA:          0.01,
				ClassGlacierIR:          0.004,
				ClassGlacier:            0.0036,
				ClassDeepArchive:        0.00099,
			},
			TransitionCosts: map[string]float64{
				ClassStandardIA:         0.01,
				ClassOneZoneIA:          0.01,
				ClassIntelligentTiering: 0.0025,
				ClassGlacierIR:          0.02,
				ClassGlacier:            0.03,
				ClassDeepArchive:        0.05,
			},
			MinDurationDays: map[string]int{
				ClassStandardIA:  30,
				ClassOneZoneIA:   30,
				ClassGlacierIR:   90,
				ClassGlacier:     90,
				ClassDeepArchive: 180,
			},
		},
		Scanner: Scanner{
			StaleDays:           90,
			VeryStaleDays:       365,
			PrefixStaleDays:     180,
			PrefixMinCount:      10,
			MultipartAgeDays:    7,
			MinObjectBytes:      1024 * 1024,
			LargeObjectBytes:    128 * 1024,
			ApprovalSizeBytes:   10 * gib,
			MaxObjectsPerBucket: 1000,
			Workers:             8,
		},
		Executor: Executor{
			MaxFailures:         3,
			MaxActions:          100,
			DelayBetweenActions: 500 * time.Millisecond,
			DelayAfterFailure:   2 * time.Second,
		},
		Server: Server{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Cloud: Cloud{
			RequestsPerSecond: 50,
		},
		Log: logger.Config{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		StorePath: "costmgr.db",
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment overrides, in that order of precedence.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv applies the recognized environment variables.
func (c *Config) applyEnv() {
	if raw, ok := os.LookupEnv("GRANTED_PERMISSIONS"); ok {
		c.Executor.GrantedPermissions = ParsePermissionList(raw)
	}
	if raw, ok := os.LookupEnv("ALLOW_DESTRUCTIVE_EXECUTION"); ok {
		c.Executor.AllowDestructive = ParseDestructiveFlag(raw)
	}
	if raw, ok := os.LookupEnv("MAX_ACTIONS"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && n > 0 {
			c.Executor.MaxActions = n
		}
	}
	if raw, ok := os.LookupEnv("MAX_FAILURES"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && n > 0 {
			c.Executor.MaxFailures = n
		}
	}
	if raw, ok := os.LookupEnv("DATA_STORE_PATH"); ok && strings.TrimSpace(raw) != "" {
		c.StorePath = strings.TrimSpace(raw)
	}
}

// ParsePermissionList splits a comma-separated permission list, trimming
// whitespace and dropping empty items.
func ParsePermissionList(raw string) []string {
	parts := strings.Split(raw, ",")
	perms := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			perms = append(perms, trimmed)
		}
	}
	return perms
}

// ParseDestructiveFlag enables destructive execution iff the lower-cased
// value equals the literal "true". Other truthy spellings are rejected.
func ParseDestructiveFlag(raw string) bool {
	return strings.ToLower(raw) == "true"
}
