package config

import (
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"moss-etl"`
	Port                          int      `env:"PORT" env-default:"3005" validate:"min=1,max=65535"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PostgreSQL (movies source of truth, read-only)
	DatabaseDriver           string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost             string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort             string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName         string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword         string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName             string        `env:"DB_NAME" env-default:"movies_database"`
	DatabaseSSLMode          string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns     int           `env:"DB_MAX_OPEN_CONNS" env-default:"10"`
	DatabaseMaxIdleConns     int           `env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	DatabaseConnMaxLifetime  time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`

	// Local schema migrations (dev/test only; the admin panel owns the
	// production schema)
	MigrationsEnabled           bool   `env:"DB_MIGRATIONS_ENABLED" env-default:"false"`
	DatabaseMigrationFolderPath string `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion    int    `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce      int    `env:"DB_MIGRATION_FORCE" env-default:"0"`

	// Elasticsearch
	ElasticAddresses []string `env:"ELASTIC_ADDRESSES" env-default:"http://localhost:9200" validate:"min=1"`
	ElasticUsername  string   `env:"ELASTIC_USERNAME" env-default:""`
	ElasticPassword  string   `env:"ELASTIC_PASSWORD" env-default:""`

	// Checkpoint store
	CheckpointBackend  string `env:"CHECKPOINT_BACKEND" env-default:"file" validate:"oneof=file redis"`
	CheckpointFilePath string `env:"CHECKPOINT_FILE_PATH" env-default:"./cache/main.json"`
	CheckpointRedisKey string `env:"CHECKPOINT_REDIS_KEY" env-default:"moss:checkpoint"`

	// Redis (only required when CheckpointBackend=redis)
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Kafka sync events (downstream cache invalidation)
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaTopic        string   `env:"KAFKA_TOPIC" env-default:"search-documents"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Synchronization
	SyncBatchSize        int           `env:"SYNC_BATCH_SIZE" env-default:"1000" validate:"min=1"`
	SyncSleepPeriod      time.Duration `env:"SYNC_SLEEP_PERIOD" env-default:"2m"`
	SyncRetryMaxAttempts int           `env:"SYNC_RETRY_MAX_ATTEMPTS" env-default:"5" validate:"min=1"`
	SyncRetryBaseDelay   time.Duration `env:"SYNC_RETRY_BASE_DELAY" env-default:"500ms"`
}

var validate = validator.New()

func (c *Config) Validate() error {
	return validate.Struct(c)
}
