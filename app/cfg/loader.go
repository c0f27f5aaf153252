package cfg

import (
	"cmp"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

const (
	CacheMemory   = "memory"
	CacheSQLite   = "sqlite"
	CachePostgres = "postgres"
	CacheRedis    = "redis"
)

type rawCfg struct {
	// Application configuration
	GroupsDir         string `long:"groups-dir" env:"GROUPS_DIR" default:"./groups" description:"Directory containing feed group configuration files"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"3" description:"Number of background workers for group refreshes"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"30" description:"Scheduler interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	Aggregate         string `long:"aggregate" description:"Aggregate the named group once, print JSON and exit"`

	// Fetching
	UserAgent      string `long:"user-agent" env:"USER_AGENT" default:"RSS Blend/1.0" description:"User agent string for HTTP requests"`
	RequestTimeout int    `long:"request-timeout" env:"REQUEST_TIMEOUT" default:"30" description:"Per-request fetch timeout in seconds"`
	MaxRetries     int    `long:"max-retries" env:"MAX_RETRIES" default:"2" description:"Retries for failed feed fetches"`
	FetchWorkers   int    `long:"fetch-workers" env:"FETCH_WORKERS" default:"4" description:"Sources fetched in parallel per aggregation"`
	QueryTimeout   int    `long:"query-timeout" env:"QUERY_TIMEOUT" default:"60" description:"Overall aggregation deadline in seconds (0 disables)"`

	// Cache backend
	CacheBackend  string `long:"cache" env:"CACHE_BACKEND" default:"memory" choice:"memory" choice:"sqlite" choice:"postgres" choice:"redis" description:"Cache backend"`
	SQLitePath    string `long:"sqlite-path" env:"SQLITE_PATH" default:"./data/cache.db" description:"SQLite cache database file"`
	PostgresDSN   string `long:"postgres-dsn" env:"POSTGRES_DSN" description:"PostgreSQL connection string for the cache"`
	RedisAddr     string `long:"redis-addr" env:"REDIS_ADDR" default:"localhost:6379" description:"Redis address for the cache"`
	RedisPassword string `long:"redis-password" env:"REDIS_PASSWORD" description:"Redis password"`
	RedisDB       int    `long:"redis-db" env:"REDIS_DB" default:"0" description:"Redis database number"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

// Load parses the command line and environment. It returns nil, nil when
// help was requested.
func Load() (*Cfg, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		GroupsDir:         raw.GroupsDir,
		Port:              raw.Port,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		APIAccessKey:      raw.APIAccessKey,
		Aggregate:         raw.Aggregate,
		UserAgent:         raw.UserAgent,
		RequestTimeout:    time.Duration(raw.RequestTimeout) * time.Second,
		MaxRetries:        raw.MaxRetries,
		FetchWorkers:      raw.FetchWorkers,
		QueryTimeout:      time.Duration(raw.QueryTimeout) * time.Second,
		CacheBackend:      raw.CacheBackend,
		SQLitePath:        raw.SQLitePath,
		PostgresDSN:       raw.PostgresDSN,
		RedisAddr:         raw.RedisAddr,
		RedisPassword:     raw.RedisPassword,
		RedisDB:           raw.RedisDB,
		Timezone:          raw.Timezone,
		Location:          time.UTC,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if loc, err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Invalid timezone '%s', using UTC: %v\n", cfg.Timezone, err)
	} else if loc != nil {
		cfg.Location = loc
	}

	globalCfg = cfg

	return cfg, nil
}

func (c *Cfg) validate() error {
	if c.SchedulerInterval <= 0 {
		return fmt.Errorf("scheduler interval must be positive")
	}
	if c.WorkerCount <= 0 || c.FetchWorkers <= 0 {
		return fmt.Errorf("worker counts must be positive")
	}
	if c.RequestTimeout < 0 || c.QueryTimeout < 0 || c.MaxRetries < 0 {
		return fmt.Errorf("timeouts and retries must be non-negative")
	}
	if c.CacheBackend == CachePostgres && c.PostgresDSN == "" {
		return fmt.Errorf("postgres cache requires --postgres-dsn")
	}
	return nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) (*time.Location, error) {
	if timezone == "" {
		return nil, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, err
	}
	time.Local = loc
	return loc, nil
}
