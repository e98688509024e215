package config

import "strconv"

// WorkersMode specifies how the worker count is determined.
type WorkersMode int

const (
	// WorkersAuto sizes the worker pool from the available CPUs.
	WorkersAuto WorkersMode = iota
	// WorkersFixed uses a specific worker count.
	WorkersFixed
)

// WorkerSetting represents the workers configuration.
type WorkerSetting struct {
	Mode  WorkersMode
	Value int
}

// String returns the string representation of the worker setting.
func (w WorkerSetting) String() string {
	if w.Mode == WorkersAuto {
		return "auto"
	}
	return strconv.Itoa(w.Value)
}

// ServerConfig contains the DNS listener settings.
type ServerConfig struct {
	Host       string        `json:"host"`
	Port       int           `json:"port"`
	Workers    WorkerSetting `json:"-"`
	WorkersRaw string        `json:"workers"`
	EnableTCP  bool          `json:"enable_tcp"`
}

// ZoneConfig locates the zone data.
type ZoneConfig struct {
	File string `json:"file"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `json:"level"`
	Structured       bool              `json:"structured"`
	StructuredFormat string            `json:"structured_format"`
	IncludePID       bool              `json:"include_pid"`
	ExtraFields      map[string]string `json:"extra_fields,omitempty"`
}

// RateLimitConfig contains pre-parse admission control settings.
// A rate or burst of zero disables that level.
type RateLimitConfig struct {
	CleanupSeconds   float64 `json:"cleanup_seconds"`
	MaxIPEntries     int     `json:"max_ip_entries"`
	MaxPrefixEntries int     `json:"max_prefix_entries"`
	GlobalQPS        float64 `json:"global_qps"`
	GlobalBurst      int     `json:"global_burst"`
	PrefixQPS        float64 `json:"prefix_qps"`
	PrefixBurst      int     `json:"prefix_burst"`
	IPQPS            float64 `json:"ip_qps"`
	IPBurst          int     `json:"ip_burst"`
}

// APIConfig contains management API settings.
type APIConfig struct {
	Enabled   bool   `json:"enabled"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	APIKey    string `json:"api_key,omitempty"`
	StaticDir string `json:"static_dir,omitempty"`
}

// QueryLogConfig controls the sampled query log store.
type QueryLogConfig struct {
	Enabled       bool   `json:"enabled"`
	Path          string `json:"path"`
	QueueSize     int    `json:"queue_size"`
	FlushInterval string `json:"flush_interval"` // e.g. "5s"
}

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Zone      ZoneConfig      `json:"zone"`
	Logging   LoggingConfig   `json:"logging"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	API       APIConfig       `json:"api"`
	QueryLog  QueryLogConfig  `json:"query_log"`
}
