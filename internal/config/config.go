package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Job store backends
const (
	BackendMongo  = "mongo"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Policies for failures that cannot be classified
const (
	FailurePolicyRetry   = "retry"
	FailurePolicyAbandon = "abandon"
)

// Config holds all configuration values
type Config struct {
	// Server configuration
	Port        int    `json:"port"`
	Environment string `json:"environment"`
	AdminToken  string `json:"-"`

	// MongoDB configuration
	MongoURI            string `json:"mongo_uri"`
	MongoDatabase       string `json:"mongo_database"`
	MongoTransactions   bool   `json:"mongo_transactions"`
	JobCollection       string `json:"mongo_job_collection"`
	UserCollection      string `json:"mongo_user_collection"`
	GroupCollection     string `json:"mongo_group_collection"`
	RoleCollection      string `json:"mongo_role_collection"`
	RealmCollection     string `json:"mongo_realm_collection"`
	ComponentCollection string `json:"mongo_component_collection"`

	// Backends
	JobStoreBackend   string `json:"job_store_backend"`
	SQLitePath        string `json:"sqlite_path"`
	DirectoryBackend  string `json:"directory_backend"`
	DirectorySeedFile string `json:"directory_seed_file"`

	// Redis configuration
	RedisURI      string `json:"redis_uri"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	// Sync configuration
	SyncRealms                []string      `json:"sync_realms"`
	DrainInterval             time.Duration `json:"drain_interval"`
	FullSyncInterval          time.Duration `json:"full_sync_interval"`
	PageSize                  int           `json:"sync_page_size"`
	MaxRetries                int           `json:"sync_max_retries"`
	DrainMaxPages             int           `json:"drain_max_pages"`
	WorkerCount               int           `json:"sync_worker_count"`
	UnclassifiedFailurePolicy string        `json:"unclassified_failure_policy"`
	RunLockTTL                time.Duration `json:"run_lock_ttl"`

	// SCIM client configuration
	ScimRequestTimeout time.Duration `json:"scim_request_timeout"`
	ScimRateLimit      float64       `json:"scim_rate_limit"`
	ScimProviderID     string        `json:"scim_provider_id"`
	ScimTokenPath      string        `json:"scim_token_path"`

	// Tracing configuration
	TracingEnabled  bool   `json:"tracing_enabled"`
	TracingEndpoint string `json:"tracing_endpoint"`
}

var (
	AppConfig *Config
)

// LoadConfig loads configuration from environment variables
func LoadConfig() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

// Load reads configuration from the environment without touching AppConfig
func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnvOrDefault("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	redisDB, err := strconv.Atoi(getEnvOrDefault("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	mongoTx, err := strconv.ParseBool(getEnvOrDefault("MONGODB_TRANSACTIONS", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid MONGODB_TRANSACTIONS: %w", err)
	}

	drainInterval, err := time.ParseDuration(getEnvOrDefault("DRAIN_INTERVAL", "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid DRAIN_INTERVAL: %w", err)
	}

	fullSyncInterval, err := time.ParseDuration(getEnvOrDefault("FULL_SYNC_INTERVAL", "0s"))
	if err != nil {
		return nil, fmt.Errorf("invalid FULL_SYNC_INTERVAL: %w", err)
	}

	pageSize, err := positiveInt("SYNC_PAGE_SIZE", "1000")
	if err != nil {
		return nil, err
	}

	maxRetries, err := strconv.Atoi(getEnvOrDefault("SYNC_MAX_RETRIES", "2"))
	if err != nil || maxRetries < 0 {
		return nil, fmt.Errorf("invalid SYNC_MAX_RETRIES: must be a non-negative integer")
	}

	drainMaxPages, err := positiveInt("DRAIN_MAX_PAGES", "100")
	if err != nil {
		return nil, err
	}

	workers, err := positiveInt("SYNC_WORKER_COUNT", "1")
	if err != nil {
		return nil, err
	}

	policy := strings.ToLower(getEnvOrDefault("UNCLASSIFIED_FAILURE_POLICY", FailurePolicyRetry))
	if policy != FailurePolicyRetry && policy != FailurePolicyAbandon {
		return nil, fmt.Errorf("invalid UNCLASSIFIED_FAILURE_POLICY %q: must be %s or %s", policy, FailurePolicyRetry, FailurePolicyAbandon)
	}

	runLockTTL, err := time.ParseDuration(getEnvOrDefault("RUN_LOCK_TTL", "10m"))
	if err != nil {
		return nil, fmt.Errorf("invalid RUN_LOCK_TTL: %w", err)
	}

	scimTimeout, err := time.ParseDuration(getEnvOrDefault("SCIM_REQUEST_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCIM_REQUEST_TIMEOUT: %w", err)
	}

	scimRate, err := strconv.ParseFloat(getEnvOrDefault("SCIM_RATE_LIMIT", "0"), 64)
	if err != nil || scimRate < 0 {
		return nil, fmt.Errorf("invalid SCIM_RATE_LIMIT: must be a non-negative number")
	}

	tracingEnabled, err := strconv.ParseBool(getEnvOrDefault("TRACING_ENABLED", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRACING_ENABLED: %w", err)
	}

	jobBackend := strings.ToLower(getEnvOrDefault("JOB_STORE_BACKEND", BackendMongo))
	switch jobBackend {
	case BackendMongo, BackendSQLite, BackendMemory:
	default:
		return nil, fmt.Errorf("invalid JOB_STORE_BACKEND %q", jobBackend)
	}

	dirBackend := strings.ToLower(getEnvOrDefault("DIRECTORY_BACKEND", BackendMongo))
	switch dirBackend {
	case BackendMongo, BackendMemory:
	default:
		return nil, fmt.Errorf("invalid DIRECTORY_BACKEND %q", dirBackend)
	}

	return &Config{
		// Server configuration
		Port:        port,
		Environment: getEnvOrDefault("ENVIRONMENT", "development"),
		AdminToken:  getEnvOrDefault("ADMIN_TOKEN", ""),

		// MongoDB configuration
		MongoURI:            getEnvOrDefault("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:       getEnvOrDefault("MONGODB_DATABASE", "scim_sync"),
		MongoTransactions:   mongoTx,
		JobCollection:       getEnvOrDefault("MONGODB_JOB_COLLECTION", "scim_sync_jobs"),
		UserCollection:      getEnvOrDefault("MONGODB_USER_COLLECTION", "users"),
		GroupCollection:     getEnvOrDefault("MONGODB_GROUP_COLLECTION", "groups"),
		RoleCollection:      getEnvOrDefault("MONGODB_ROLE_COLLECTION", "roles"),
		RealmCollection:     getEnvOrDefault("MONGODB_REALM_COLLECTION", "realms"),
		ComponentCollection: getEnvOrDefault("MONGODB_COMPONENT_COLLECTION", "components"),

		// Backends
		JobStoreBackend:   jobBackend,
		SQLitePath:        getEnvOrDefault("SQLITE_PATH", "scim_sync.db"),
		DirectoryBackend:  dirBackend,
		DirectorySeedFile: getEnvOrDefault("DIRECTORY_SEED_FILE", ""),

		// Redis configuration
		RedisURI:      getEnvOrDefault("REDIS_URI", ""),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:       redisDB,

		// Sync configuration
		SyncRealms:                splitList(getEnvOrDefault("SYNC_REALMS", "")),
		DrainInterval:             drainInterval,
		FullSyncInterval:          fullSyncInterval,
		PageSize:                  pageSize,
		MaxRetries:                maxRetries,
		DrainMaxPages:             drainMaxPages,
		WorkerCount:               workers,
		UnclassifiedFailurePolicy: policy,
		RunLockTTL:                runLockTTL,

		// SCIM client configuration
		ScimRequestTimeout: scimTimeout,
		ScimRateLimit:      scimRate,
		ScimProviderID:     getEnvOrDefault("SCIM_PROVIDER_ID", "scim"),
		ScimTokenPath:      getEnvOrDefault("SCIM_TOKEN_PATH", "/oauth2/token"),

		// Tracing configuration
		TracingEnabled:  tracingEnabled,
		TracingEndpoint: getEnvOrDefault("TRACING_ENDPOINT", "localhost:4317"),
	}, nil
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func positiveInt(key, defaultValue string) (int, error) {
	n, err := strconv.Atoi(getEnvOrDefault(key, defaultValue))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
