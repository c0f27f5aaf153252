package cfg

import "time"

type Cfg struct {
	// Application configuration
	GroupsDir         string
	Port              string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string
	Aggregate         string

	// Fetching
	UserAgent      string
	RequestTimeout time.Duration
	MaxRetries     int
	FetchWorkers   int
	QueryTimeout   time.Duration

	// Cache backend
	CacheBackend  string
	SQLitePath    string
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Application metadata
	Timezone string
	Location *time.Location
	Debug    bool
	Version  string
}
