package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Storage    StorageConfig    `yaml:"storage"`
	Codeforces CodeforcesConfig `yaml:"codeforces"`
	Sync       SyncConfig       `yaml:"sync"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Reminders  RemindersConfig  `yaml:"reminders"`
	Workers    WorkersConfig    `yaml:"workers"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	Charset            string        `yaml:"charset"`
	ParseTime          bool          `yaml:"parse_time"`
	Loc                string        `yaml:"loc"`
	MaxConnections     int           `yaml:"max_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections"`
	ConnectionLifetime time.Duration `yaml:"connection_lifetime"`
}

type RedisConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Password    string `yaml:"password"`
	DB          int    `yaml:"db"`
	PoolSize    int    `yaml:"pool_size"`
	SyncQueue   string `yaml:"sync_queue"`
	RosterQueue string `yaml:"roster_queue"`
	DLQSuffix   string `yaml:"dlq_suffix"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type CodeforcesConfig struct {
	BaseURL        string        `yaml:"base_url"`
	UserAgent      string        `yaml:"user_agent"`
	RequestSpacing time.Duration `yaml:"request_spacing"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	SubmissionsMax int           `yaml:"submissions_max"`
	APIKey         string        `yaml:"api_key"`
	APISecret      string        `yaml:"api_secret"`
}

type SyncConfig struct {
	StudentDelay time.Duration `yaml:"student_delay"`
}

// SchedulerConfig holds the settings used when none have been persisted yet.
type SchedulerConfig struct {
	Timezone  string `yaml:"timezone"`
	Enabled   bool   `yaml:"enabled"`
	Time      string `yaml:"time"`
	Frequency string `yaml:"frequency"`
}

type RemindersConfig struct {
	InactivityDays int     `yaml:"inactivity_days"`
	SendsPerSecond float64 `yaml:"sends_per_second"`
}

type WorkersConfig struct {
	Ingestion IngestionWorkerConfig `yaml:"ingestion"`
	Sync      SyncWorkerConfig      `yaml:"sync"`
}

type IngestionWorkerConfig struct {
	Count int `yaml:"count"`
}

type SyncWorkerConfig struct {
	Count int `yaml:"count"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load() (*Config, error) {
	// .env is optional; it only supplies secrets
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes a YAML document, applies environment overrides and fills defaults.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyEnv()
	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"DB_PASSWORD":    &c.Database.Password,
		"REDIS_PASSWORD": &c.Redis.Password,
		"S3_ACCESS_KEY":  &c.Storage.S3.AccessKey,
		"S3_SECRET_KEY":  &c.Storage.S3.SecretKey,
		"CF_API_KEY":     &c.Codeforces.APIKey,
		"CF_API_SECRET":  &c.Codeforces.APISecret,
	}
	for key, field := range overrides {
		if value, ok := os.LookupEnv(key); ok {
			*field = value
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Database.Charset == "" {
		c.Database.Charset = "utf8mb4"
	}
	if c.Database.Loc == "" {
		c.Database.Loc = "UTC"
	}
	if c.Codeforces.BaseURL == "" {
		c.Codeforces.BaseURL = "https://codeforces.com/api"
	}
	if c.Codeforces.UserAgent == "" {
		c.Codeforces.UserAgent = "Student-Progress-System/1.0"
	}
	if c.Codeforces.RequestSpacing == 0 {
		c.Codeforces.RequestSpacing = 200 * time.Millisecond
	}
	if c.Codeforces.RequestTimeout == 0 {
		c.Codeforces.RequestTimeout = 10 * time.Second
	}
	if c.Codeforces.SubmissionsMax == 0 {
		c.Codeforces.SubmissionsMax = 10000
	}
	if c.Sync.StudentDelay == 0 {
		c.Sync.StudentDelay = time.Second
	}
	if c.Scheduler.Time == "" {
		c.Scheduler.Time = "02:00"
		c.Scheduler.Enabled = true
	}
	if c.Scheduler.Frequency == "" {
		c.Scheduler.Frequency = "daily"
	}
	if c.Reminders.InactivityDays == 0 {
		c.Reminders.InactivityDays = 7
	}
	if c.Reminders.SendsPerSecond == 0 {
		c.Reminders.SendsPerSecond = 1
	}
	if c.Workers.Sync.Count == 0 {
		c.Workers.Sync.Count = 1
	}
	if c.Workers.Ingestion.Count == 0 {
		c.Workers.Ingestion.Count = 2
	}
	if c.Redis.SyncQueue == "" {
		c.Redis.SyncQueue = "queue:sync"
	}
	if c.Redis.RosterQueue == "" {
		c.Redis.RosterQueue = "queue:roster"
	}
	if c.Redis.DLQSuffix == "" {
		c.Redis.DLQSuffix = ":dlq"
	}
}

// Location resolves the scheduler timezone, falling back to the local zone.
func (c *Config) Location() *time.Location {
	if c.Scheduler.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// MySQL DSN format: [username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.Charset, c.Database.ParseTime, c.Database.Loc)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
