package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Realtime     RealtimeConfig
	Cache        CacheConfig
	Optimistic   OptimisticConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Mongo        MongoConfig
	Sheets       SheetsConfig
	Outbox       OutboxConfig
	Kitchen      KitchenConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if !isValidRealtimeSource(cfg.Realtime.Source) {
		return nil, fmt.Errorf("invalid %s %q", EnvRealtimeSource, cfg.Realtime.Source)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"TABLEPOS_APP_ENV" required:"true"`
	Port         string   `envconfig:"TABLEPOS_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"TABLEPOS_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"TABLEPOS_LOG_WARN_STACK" default:"false"`
	LogFormat    string   `envconfig:"TABLEPOS_LOG_FORMAT" default:"json"`
	CORSOrigins  []string `envconfig:"TABLEPOS_CORS_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
	// MutationsPerMinute caps writes per staff member; 0 turns the cap off.
	MutationsPerMinute int64 `envconfig:"TABLEPOS_MUTATIONS_PER_MINUTE" default:"240"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TABLEPOS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TABLEPOS_DB_DSN"`
	Driver string `envconfig:"TABLEPOS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TABLEPOS_DB_HOST"`
	LegacyPort     int    `envconfig:"TABLEPOS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TABLEPOS_DB_USER"`
	LegacyPassword string `envconfig:"TABLEPOS_DB_PASSWORD"`
	LegacyName     string `envconfig:"TABLEPOS_DB_NAME"`
	LegacySSLMode  string `envconfig:"TABLEPOS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TABLEPOS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TABLEPOS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TABLEPOS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TABLEPOS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"TABLEPOS_DB_SLOW_QUERY" default:"500ms"`
	TxAttempts      int           `envconfig:"TABLEPOS_DB_TX_ATTEMPTS" default:"3"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TABLEPOS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TABLEPOS_REDIS_ADDR"`
	Password     string        `envconfig:"TABLEPOS_REDIS_PASSWORD"`
	DB           int           `envconfig:"TABLEPOS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TABLEPOS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TABLEPOS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TABLEPOS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TABLEPOS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TABLEPOS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig only carries what is needed to verify staff tokens; issuing them
// belongs to the identity provider.
type JWTConfig struct {
	Secret string `envconfig:"TABLEPOS_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"TABLEPOS_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TABLEPOS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TABLEPOS_AUTO_MIGRATE" default:"false"`
	MenuImport  bool `envconfig:"TABLEPOS_FEATURE_MENU_IMPORT" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"TABLEPOS_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type RealtimeConfig struct {
	Source         string        `envconfig:"TABLEPOS_REALTIME_SOURCE" default:"redis"`
	ChannelPrefix  string        `envconfig:"TABLEPOS_REALTIME_CHANNEL_PREFIX" default:"tp:changes"`
	RabbitMQURL    string        `envconfig:"TABLEPOS_RABBITMQ_URL"`
	Exchange       string        `envconfig:"TABLEPOS_RABBITMQ_EXCHANGE" default:"tablepos.changes"`
	DedupeWindow   time.Duration `envconfig:"TABLEPOS_REALTIME_DEDUPE_WINDOW" default:"2m"`
	WSWriteTimeout time.Duration `envconfig:"TABLEPOS_REALTIME_WS_WRITE_TIMEOUT" default:"10s"`
}

type CacheConfig struct {
	EntryTTL time.Duration `envconfig:"TABLEPOS_CACHE_ENTRY_TTL" default:"5m"`
}

type OptimisticConfig struct {
	Backend     string        `envconfig:"TABLEPOS_OPTIMISTIC_BACKEND" default:"memory"`
	InFlightTTL time.Duration `envconfig:"TABLEPOS_OPTIMISTIC_INFLIGHT_TTL" default:"30s"`
}

func (o OptimisticConfig) UsesRedis() bool {
	return strings.EqualFold(o.Backend, "redis")
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TABLEPOS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"TABLEPOS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TABLEPOS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic            string `envconfig:"TABLEPOS_PUBSUB_DOMAIN_TOPIC" default:"tp-domain-events"`
	AnalyticsSubscription  string `envconfig:"TABLEPOS_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"tp-analytics-sub"`
	AuditSubscription      string `envconfig:"TABLEPOS_PUBSUB_AUDIT_SUBSCRIPTION" default:"tp-audit-sub"`
	StaffAlertSubscription string `envconfig:"TABLEPOS_PUBSUB_STAFF_ALERT_SUBSCRIPTION" default:"tp-staff-alerts-sub"`
	// OrderedPublishing keys domain events by aggregate so one order's events
	// arrive in the order they were written. Subscriptions need ordering on.
	OrderedPublishing bool `envconfig:"TABLEPOS_PUBSUB_ORDERED" default:"true"`
}

type BigQueryConfig struct {
	Dataset      string `envconfig:"TABLEPOS_BIGQUERY_DATASET" default:"tablepos"`
	SalesTable   string `envconfig:"TABLEPOS_BIGQUERY_SALES_TABLE" default:"sales_facts"`
	CreateTables bool   `envconfig:"TABLEPOS_BIGQUERY_CREATE_TABLES" default:"false"`
}

type MongoConfig struct {
	URI             string        `envconfig:"TABLEPOS_MONGO_URI"`
	Database        string        `envconfig:"TABLEPOS_MONGO_DATABASE" default:"tablepos"`
	AuditCollection string        `envconfig:"TABLEPOS_MONGO_AUDIT_COLLECTION" default:"line_item_status_audit"`
	ConnectTimeout  time.Duration `envconfig:"TABLEPOS_MONGO_CONNECT_TIMEOUT" default:"10s"`
}

type SheetsConfig struct {
	CredentialsJSON string `envconfig:"TABLEPOS_SHEETS_CREDENTIALS_JSON"`
	SpreadsheetID   string `envconfig:"TABLEPOS_SHEETS_SPREADSHEET_ID"`
	DefaultRange    string `envconfig:"TABLEPOS_SHEETS_RANGE" default:"A:F"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TABLEPOS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TABLEPOS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TABLEPOS_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type KitchenConfig struct {
	// LateAfter marks a ticket as late on the board once it has waited this long.
	LateAfter time.Duration `envconfig:"TABLEPOS_KITCHEN_LATE_AFTER" default:"15m"`
	Timezone  string        `envconfig:"TABLEPOS_KITCHEN_TIMEZONE" default:"Asia/Ho_Chi_Minh"`
}

// Location resolves the configured timezone, falling back to UTC.
func (k KitchenConfig) Location() *time.Location {
	loc, err := time.LoadLocation(k.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type CronConfig struct {
	Interval                  time.Duration `envconfig:"TABLEPOS_CRON_INTERVAL" default:"1h"`
	CartStaleAfter            time.Duration `envconfig:"TABLEPOS_CRON_CART_STALE_AFTER" default:"12h"`
	OutboxRetentionDays       int           `envconfig:"TABLEPOS_CRON_OUTBOX_RETENTION_DAYS" default:"7"`
	NotificationRetentionDays int           `envconfig:"TABLEPOS_CRON_NOTIFICATION_RETENTION_DAYS" default:"30"`
	JobTimeout                time.Duration `envconfig:"TABLEPOS_CRON_JOB_TIMEOUT" default:"10m"`
	// Jobs restricts a cycle to the named jobs; empty runs all of them.
	Jobs []string `envconfig:"TABLEPOS_CRON_JOBS"`
}

func isValidRealtimeSource(source string) bool {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case RealtimeSourceRedis, RealtimeSourcePostgres, RealtimeSourceRabbitMQ:
		return true
	default:
		return false
	}
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
