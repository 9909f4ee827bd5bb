package models

import "time"

// Config holds every setting the server reads from config.json or the environment.
type Config struct {
	HTTPAddr  string `mapstructure:"http_addr" json:"http_addr"`
	JWTSecret string `mapstructure:"jwt_secret" json:"jwt_secret"`

	DBDriver   string `mapstructure:"db_driver" json:"db_driver"` // postgres | sqlite
	DBHost     string `mapstructure:"db_host" json:"db_host"`
	DBUser     string `mapstructure:"db_user" json:"db_user"`
	DBPassword string `mapstructure:"db_password" json:"db_password"`
	DBName     string `mapstructure:"db_name" json:"db_name"`
	DBSSLMode  string `mapstructure:"db_sslmode" json:"db_sslmode"`
	DBPath     string `mapstructure:"db_path" json:"db_path"`

	RedisAddr     string `mapstructure:"redis_addr" json:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" json:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" json:"redis_db"`

	WorkerURL     string        `mapstructure:"worker_url" json:"worker_url"`
	WorkerTimeout time.Duration `mapstructure:"worker_timeout" json:"worker_timeout"`

	// StorageURL is a gocloud bucket URL: file:///var/streams, s3://bucket?region=..., mem://
	StorageURL       string        `mapstructure:"storage_url" json:"storage_url"`
	StorageBucket    string        `mapstructure:"storage_bucket" json:"storage_bucket"`
	StoragePublicURL string        `mapstructure:"storage_public_url" json:"storage_public_url"`
	UploadTimeout    time.Duration `mapstructure:"upload_timeout" json:"upload_timeout"`
	// LiveStreamURL is recorded on every stream of an ended game; empty when no live relay exists.
	LiveStreamURL    string        `mapstructure:"live_stream_url" json:"live_stream_url"`

	EventsDriver string   `mapstructure:"events_driver" json:"events_driver"` // kafka | redis | none
	KafkaBrokers []string `mapstructure:"kafka_brokers" json:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic" json:"kafka_topic"`
	RedisStream  string   `mapstructure:"redis_stream" json:"redis_stream"`

	LockDriver string        `mapstructure:"lock_driver" json:"lock_driver"` // memory | redis
	LockTTL    time.Duration `mapstructure:"lock_ttl" json:"lock_ttl"`
	LockWait   time.Duration `mapstructure:"lock_wait" json:"lock_wait"`

	LogLevel      string `mapstructure:"log_level" json:"log_level"`
	LogFile       string `mapstructure:"log_file" json:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb" json:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups" json:"log_max_backups"`
	LogMaxAgeDays int    `mapstructure:"log_max_age_days" json:"log_max_age_days"`
	LogCompress   bool   `mapstructure:"log_compress" json:"log_compress"`

	CleanupSchedule string        `mapstructure:"cleanup_schedule" json:"cleanup_schedule"`
	StaleGameAge    time.Duration `mapstructure:"stale_game_age" json:"stale_game_age"`

	AllowOrigins []string `mapstructure:"allow_origins" json:"allow_origins"`
}
