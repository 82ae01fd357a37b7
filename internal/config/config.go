package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendSurreal = "surreal"
	BackendBolt    = "bolt"
)

// Orchestrator implementations.
const (
	OrchestratorLocal = "local"
	OrchestratorOozie = "oozie"
)

// Provider exposes configuration through getters so components do not depend
// on the concrete Config struct.
type Provider interface {
	GetServerAddr() string
	GetSessionSecret() string
	GetAuthUserHeader() string
	GetAuthGroupsHeader() string
	GetSuperusers() []string

	GetStoreBackend() string
	GetDBURL() string
	GetDBNs() string
	GetDBDb() string
	GetDBUser() string
	GetDBPass() string
	GetDBQueryTimeout() time.Duration
	GetDBExecuteTimeout() time.Duration
	GetBoltPath() string

	GetOrchestrator() string
	GetOozieURL() string
	GetOrchestratorTimeout() time.Duration
	GetScriptTimeout() time.Duration

	GetFileStoreRoot() string
	GetWorkspaceDir() string
	GetOutputDir() string
	GetDashboardBaseURL() string

	GetRunRateLimit() int
	GetWatchStreamInterval() time.Duration

	GetTracingEnabled() bool
	GetTracingServiceName() string
	GetZipkinURL() string
}

// Config holds all configuration for the application.
type Config struct {
	ServerAddr       string
	SessionSecret    string
	AuthUserHeader   string
	AuthGroupsHeader string
	Superusers       []string

	StoreBackend     string
	DBUrl            string
	DBNs             string
	DBDb             string
	DBUser           string
	DBPass           string
	DBQueryTimeout   time.Duration
	DBExecuteTimeout time.Duration
	BoltPath         string

	Orchestrator        string
	OozieURL            string
	OrchestratorTimeout time.Duration
	ScriptTimeout       time.Duration

	FileStoreRoot    string
	WorkspaceDir     string
	OutputDir        string
	DashboardBaseURL string

	RunRateLimit        int
	WatchStreamInterval time.Duration

	TracingEnabled     bool
	TracingServiceName string
	ZipkinURL          string
}

var _ Provider = (*Config)(nil)

// New loads configuration from a .env file, if present, and the environment.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables, applying defaults for
// everything that is not set.
func FromEnv() *Config {
	return &Config{
		ServerAddr:       getEnv("SERVER_ADDR", ":8080"),
		SessionSecret:    os.Getenv("SESSION_SECRET"),
		AuthUserHeader:   getEnv("AUTH_USER_HEADER", "X-Remote-User"),
		AuthGroupsHeader: getEnv("AUTH_GROUPS_HEADER", "X-Remote-Groups"),
		Superusers:       splitList(os.Getenv("SUPERUSERS")),

		StoreBackend:     strings.ToLower(getEnv("STORE_BACKEND", BackendBolt)),
		DBUrl:            os.Getenv("SURREAL_URL"),
		DBNs:             os.Getenv("SURREAL_NS"),
		DBDb:             os.Getenv("SURREAL_DB"),
		DBUser:           os.Getenv("SURREAL_USER"),
		DBPass:           os.Getenv("SURREAL_PASS"),
		DBQueryTimeout:   getDuration("DB_QUERY_TIMEOUT", 5*time.Second),
		DBExecuteTimeout: getDuration("DB_EXECUTE_TIMEOUT", 10*time.Second),
		BoltPath:         getEnv("BOLT_PATH", "scriptdesk.db"),

		Orchestrator:        strings.ToLower(getEnv("ORCHESTRATOR", OrchestratorLocal)),
		OozieURL:            strings.TrimRight(os.Getenv("OOZIE_URL"), "/"),
		OrchestratorTimeout: getDuration("ORCHESTRATOR_TIMEOUT", 30*time.Second),
		ScriptTimeout:       getDuration("SCRIPT_TIMEOUT", 30*time.Second),

		FileStoreRoot:    os.Getenv("FILESTORE_ROOT"),
		WorkspaceDir:     getEnv("WORKSPACE_DIR", "/user/scriptdesk/workspaces"),
		OutputDir:        getEnv("OUTPUT_DIR", "/user/scriptdesk/output"),
		DashboardBaseURL: strings.TrimRight(getEnv("DASHBOARD_BASE_URL", "/oozie"), "/"),

		RunRateLimit:        getInt("RUN_RATE_LIMIT", 10),
		WatchStreamInterval: getDuration("WATCH_STREAM_INTERVAL", 2*time.Second),

		TracingEnabled:     getBool("PUBSUB_TRACING_ENABLED", false),
		TracingServiceName: getEnv("PUBSUB_TRACING_SERVICE_NAME", "scriptdesk"),
		ZipkinURL:          getEnv("PUBSUB_TRACING_ZIPKIN_URL", "http://localhost:9411/api/v2/spans"),
	}
}

// Validate reports every setting that the selected backends require but that
// is missing or malformed.
func (c *Config) Validate() error {
	var errs []error
	if c.SessionSecret == "" {
		errs = append(errs, errors.New("SESSION_SECRET is required"))
	}

	switch c.StoreBackend {
	case BackendSurreal:
		if c.DBUrl == "" || c.DBNs == "" || c.DBDb == "" {
			errs = append(errs, errors.New("SURREAL_URL, SURREAL_NS and SURREAL_DB are required for the surreal store"))
		}
		if c.DBQueryTimeout <= 0 || c.DBExecuteTimeout <= 0 {
			errs = append(errs, errors.New("DB_QUERY_TIMEOUT and DB_EXECUTE_TIMEOUT must be positive durations"))
		}
	case BackendBolt:
		if c.BoltPath == "" {
			errs = append(errs, errors.New("BOLT_PATH is required for the bolt store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	switch c.Orchestrator {
	case OrchestratorOozie:
		if c.OozieURL == "" {
			errs = append(errs, errors.New("OOZIE_URL is required for the oozie orchestrator"))
		}
	case OrchestratorLocal:
	default:
		errs = append(errs, fmt.Errorf("unknown ORCHESTRATOR %q", c.Orchestrator))
	}

	if c.OrchestratorTimeout <= 0 {
		errs = append(errs, errors.New("ORCHESTRATOR_TIMEOUT must be a positive duration"))
	}
	return errors.Join(errs...)
}

func (c *Config) GetServerAddr() string                 { return c.ServerAddr }
func (c *Config) GetSessionSecret() string              { return c.SessionSecret }
func (c *Config) GetAuthUserHeader() string             { return c.AuthUserHeader }
func (c *Config) GetAuthGroupsHeader() string           { return c.AuthGroupsHeader }
func (c *Config) GetSuperusers() []string               { return c.Superusers }
func (c *Config) GetStoreBackend() string               { return c.StoreBackend }
func (c *Config) GetDBURL() string                      { return c.DBUrl }
func (c *Config) GetDBNs() string                       { return c.DBNs }
func (c *Config) GetDBDb() string                       { return c.DBDb }
func (c *Config) GetDBUser() string                     { return c.DBUser }
func (c *Config) GetDBPass() string                     { return c.DBPass }
func (c *Config) GetDBQueryTimeout() time.Duration      { return c.DBQueryTimeout }
func (c *Config) GetDBExecuteTimeout() time.Duration    { return c.DBExecuteTimeout }
func (c *Config) GetBoltPath() string                   { return c.BoltPath }
func (c *Config) GetOrchestrator() string               { return c.Orchestrator }
func (c *Config) GetOozieURL() string                   { return c.OozieURL }
func (c *Config) GetOrchestratorTimeout() time.Duration { return c.OrchestratorTimeout }
func (c *Config) GetScriptTimeout() time.Duration       { return c.ScriptTimeout }
func (c *Config) GetFileStoreRoot() string              { return c.FileStoreRoot }
func (c *Config) GetWorkspaceDir() string               { return c.WorkspaceDir }
func (c *Config) GetOutputDir() string                  { return c.OutputDir }
func (c *Config) GetDashboardBaseURL() string           { return c.DashboardBaseURL }
func (c *Config) GetRunRateLimit() int                  { return c.RunRateLimit }
func (c *Config) GetWatchStreamInterval() time.Duration { return c.WatchStreamInterval }
func (c *Config) GetTracingEnabled() bool               { return c.TracingEnabled }
func (c *Config) GetTracingServiceName() string         { return c.TracingServiceName }
func (c *Config) GetZipkinURL() string                  { return c.ZipkinURL }

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Invalid duration %q for %s, using %s", v, key, fallback)
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Invalid integer %q for %s, using %d", v, key, fallback)
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Invalid boolean %q for %s, using %t", v, key, fallback)
		return fallback
	}
	return b
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
