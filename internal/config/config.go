package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa toda la configuración del proceso de ingesta.
type Config struct {
	LogLevel string
	HTTPPort string

	// ---- Event log (Redis Streams) ----
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	Stream           string
	Group            string
	Consumer         string
	GroupStart       string
	ReadCount        int64
	ReadBlock        time.Duration
	ErrorBackoff     time.Duration
	ReclaimMinIdle   time.Duration
	ReclaimInterval  time.Duration
	MaxDeliveries    int64
	DeadLetterStream string
	EnvelopeFields   []string

	// ---- Store ----
	DBDriver    string // sqlite | postgres
	SQLitePath  string
	DatabaseURL string
	CacheTTL    time.Duration

	// ---- Dispatch (cola secundaria) ----
	DispatchBackend string // lmstfy | kafka | memory | none
	LmstfyHost      string
	LmstfyPort      int
	LmstfyNamespace string
	LmstfyToken     string
	LmstfyQueue     string
	LmstfyTTL       uint32
	LmstfyTries     uint16
	LmstfyDelay     uint32
	KafkaBrokers    []string
	KafkaTaskTopic  string
	KafkaGroupID    string

	// ---- Follow-up worker ----
	FollowupEnabled bool
	FollowupLedger  string // sql | mongo
	FollowupTimeout time.Duration
	MongoURI        string
	MongoDB         string
	ClickHouseAddr  string
	ClickHouseDB    string
}

var defaults = map[string]interface{}{
	"log_level":          "info",
	"http_port":          "8080",
	"redis_addr":         "localhost:6379",
	"redis_password":     "",
	"redis_db":           0,
	"redis_stream":       "events_stream",
	"redis_group":        "main_group",
	"redis_consumer":     "worker-1",
	"redis_group_start":  "$",
	"read_count":         10,
	"read_block":         "5s",
	"error_backoff":      "5s",
	"reclaim_min_idle":   "1m",
	"reclaim_interval":   "30s",
	"max_deliveries":     0,
	"dead_letter_stream": "",
	"envelope_fields":    "message,data",
	"db_driver":          "sqlite",
	"sqlite_path":        "./logistrack.db",
	"database_url":       "",
	"cache_ttl":          "5m",
	"dispatch_backend":   "memory",
	"lmstfy_host":        "localhost",
	"lmstfy_port":        7777,
	"lmstfy_namespace":   "logistrack",
	"lmstfy_token":       "",
	"lmstfy_queue":       "ingested-events",
	"lmstfy_ttl":         3600,
	"lmstfy_tries":       3,
	"lmstfy_delay":       0,
	"kafka_brokers":      "localhost:9092",
	"kafka_task_topic":   "logistrack.ingested-events",
	"kafka_group_id":     "logistrack-followup",
	"followup_enabled":   true,
	"followup_ledger":    "sql",
	"followup_timeout":   "5s",
	"mongo_uri":          "mongodb://localhost:27017",
	"mongo_db":           "logistrack",
	"clickhouse_addr":    "",
	"clickhouse_db":      "logistrack",
}

// LoadConfig lee la configuración de las variables de entorno y, si CONFIG_FILE
// apunta a un YAML, de ese fichero. El entorno siempre tiene prioridad.
func LoadConfig() (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config failed: %w", err)
		}
	}

	stream := v.GetString("redis_stream")
	deadLetter := v.GetString("dead_letter_stream")
	if deadLetter == "" {
		deadLetter = stream + ".dead"
	}

	cfg := &Config{
		LogLevel: v.GetString("log_level"),
		HTTPPort: v.GetString("http_port"),

		RedisAddr:        v.GetString("redis_addr"),
		RedisPassword:    v.GetString("redis_password"),
		RedisDB:          v.GetInt("redis_db"),
		Stream:           stream,
		Group:            v.GetString("redis_group"),
		Consumer:         v.GetString("redis_consumer"),
		GroupStart:       v.GetString("redis_group_start"),
		ReadCount:        v.GetInt64("read_count"),
		ReadBlock:        v.GetDuration("read_block"),
		ErrorBackoff:     v.GetDuration("error_backoff"),
		ReclaimMinIdle:   v.GetDuration("reclaim_min_idle"),
		ReclaimInterval:  v.GetDuration("reclaim_interval"),
		MaxDeliveries:    v.GetInt64("max_deliveries"),
		DeadLetterStream: deadLetter,
		EnvelopeFields:   splitList(v.GetString("envelope_fields")),

		DBDriver:    v.GetString("db_driver"),
		SQLitePath:  v.GetString("sqlite_path"),
		DatabaseURL: v.GetString("database_url"),
		CacheTTL:    v.GetDuration("cache_ttl"),

		DispatchBackend: v.GetString("dispatch_backend"),
		LmstfyHost:      v.GetString("lmstfy_host"),
		LmstfyPort:      v.GetInt("lmstfy_port"),
		LmstfyNamespace: v.GetString("lmstfy_namespace"),
		LmstfyToken:     v.GetString("lmstfy_token"),
		LmstfyQueue:     v.GetString("lmstfy_queue"),
		LmstfyTTL:       v.GetUint32("lmstfy_ttl"),
		LmstfyTries:     v.GetUint16("lmstfy_tries"),
		LmstfyDelay:     v.GetUint32("lmstfy_delay"),
		KafkaBrokers:    splitList(v.GetString("kafka_brokers")),
		KafkaTaskTopic:  v.GetString("kafka_task_topic"),
		KafkaGroupID:    v.GetString("kafka_group_id"),

		FollowupEnabled: v.GetBool("followup_enabled"),
		FollowupLedger:  v.GetString("followup_ledger"),
		FollowupTimeout: v.GetDuration("followup_timeout"),
		MongoURI:        v.GetString("mongo_uri"),
		MongoDB:         v.GetString("mongo_db"),
		ClickHouseAddr:  v.GetString("clickhouse_addr"),
		ClickHouseDB:    v.GetString("clickhouse_db"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate comprueba las combinaciones que no tienen sentido en ejecución.
func (c *Config) Validate() error {
	// Consumer vacío: el adapter genera un nombre único por proceso.
	if c.Stream == "" || c.Group == "" {
		return fmt.Errorf("redis_stream and redis_group are required")
	}
	if c.ReadBlock <= 0 {
		// BLOCK 0 en Redis significa esperar indefinidamente.
		return fmt.Errorf("read_block must be positive, got %s", c.ReadBlock)
	}
	if c.ReadCount <= 0 {
		return fmt.Errorf("read_count must be positive, got %d", c.ReadCount)
	}
	if len(c.EnvelopeFields) == 0 {
		return fmt.Errorf("envelope_fields must name at least one field")
	}
	switch c.DBDriver {
	case "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required for db_driver=postgres")
		}
	default:
		return fmt.Errorf("unsupported db_driver %q", c.DBDriver)
	}
	switch c.DispatchBackend {
	case "lmstfy", "kafka", "memory", "none":
	default:
		return fmt.Errorf("unsupported dispatch_backend %q", c.DispatchBackend)
	}
	switch c.FollowupLedger {
	case "sql", "mongo":
	default:
		return fmt.Errorf("unsupported followup_ledger %q", c.FollowupLedger)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
