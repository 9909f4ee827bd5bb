package database

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"battlebots/models"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. BATTLEBOTS_DB_HOST.
const EnvPrefix = "BATTLEBOTS"

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("db_driver", "postgres")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_password", "")
	v.SetDefault("db_name", "battlebots")
	v.SetDefault("db_sslmode", "disable")
	v.SetDefault("db_path", "battlebots.db")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("worker_url", "http://localhost:9000")
	v.SetDefault("worker_timeout", 10*time.Second)
	v.SetDefault("storage_url", "mem://")
	v.SetDefault("storage_bucket", "streams")
	v.SetDefault("storage_public_url", "")
	v.SetDefault("upload_timeout", 2*time.Minute)
	v.SetDefault("live_stream_url", "")
	v.SetDefault("events_driver", "none")
	v.SetDefault("kafka_brokers", []string{})
	v.SetDefault("kafka_topic", "battlebots.games")
	v.SetDefault("redis_stream", "battlebots:games")
	v.SetDefault("lock_driver", "memory")
	v.SetDefault("lock_ttl", 30*time.Second)
	v.SetDefault("lock_wait", 5*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 100)
	v.SetDefault("log_max_backups", 3)
	v.SetDefault("log_max_age_days", 28)
	v.SetDefault("log_compress", true)
	v.SetDefault("cleanup_schedule", "@hourly")
	v.SetDefault("stale_game_age", 24*time.Hour)
	v.SetDefault("allow_origins", []string{"http://localhost:8080"})
}

// LoadConfig reads filename (JSON) when it exists, then applies environment
// overrides. A missing file is not an error.
func LoadConfig(filename string) (models.Config, error) {
	var config models.Config
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filename != "" {
		v.SetConfigFile(filename)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config, err
		}
	}
	err := v.Unmarshal(&config)
	return config, err
}
