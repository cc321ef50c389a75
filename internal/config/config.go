package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Identity    IdentityConfig
	Platform    PlatformConfig
	DocumentDB  DocumentDBConfig
	Metrics     MetricsConfig
	Health      HealthConfig
	Alerting    AlertingConfig
	Notify      NotifyConfig
	Provisioner ProvisionerConfig
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	URL            string
	AdminURL       string // superuser DSN used by the relational DB provisioner
	MaxConnections int
	MaxIdleConns   int
}

type RedisConfig struct {
	URL string
}

type IdentityConfig struct {
	URL          string
	AdminRealm   string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// PlatformConfig points at the internal platform controller that owns
// namespaces and workload deployments.
type PlatformConfig struct {
	URL       string
	AuthToken string
	Timeout   time.Duration
}

type DocumentDBConfig struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
}

type MetricsConfig struct {
	QueryURL       string
	RemoteWriteURL string
	TenantHeader   string
	AuthToken      string
	Timeout        time.Duration
}

type HealthConfig struct {
	Interval     time.Duration
	CheckTimeout time.Duration
	WorkerCount  int
	BaseDomain   string // tenants are reachable at <subdomain>.<base domain>
	DNSResolver  string
}

type AlertingConfig struct {
	TickInterval    time.Duration
	MinRuleInterval time.Duration
	QueryTimeout    time.Duration
}

type NotifyConfig struct {
	SMTPAddr      string
	SMTPFrom      string
	SMSGatewayURL string
	RatePerSecond float64
	Timeout       time.Duration
}

type ProvisionerConfig struct {
	CacheHost     string
	CachePortBase int
}

func Load() (*Config, error) {
	// .env is optional; real deployments rely on the environment.
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("TENANTD")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("database.maxconnections", 25)
	viper.SetDefault("database.maxidleconns", 5)
	viper.SetDefault("identity.adminrealm", "master")
	viper.SetDefault("identity.timeout", "15s")
	viper.SetDefault("platform.timeout", "60s")
	viper.SetDefault("documentdb.timeout", "15s")
	viper.SetDefault("metrics.tenantheader", "X-Scope-OrgID")
	viper.SetDefault("metrics.timeout", "30s")
	viper.SetDefault("health.interval", "5m")
	viper.SetDefault("health.checktimeout", "30s")
	viper.SetDefault("health.workercount", 10)
	viper.SetDefault("health.basedomain", "tenants.example.com")
	viper.SetDefault("alerting.tickinterval", "15s")
	viper.SetDefault("alerting.minruleinterval", "30s")
	viper.SetDefault("alerting.querytimeout", "30s")
	viper.SetDefault("notify.ratepersecond", 5.0)
	viper.SetDefault("notify.timeout", "15s")
	viper.SetDefault("provisioner.cacheportbase", 6400)

	var cfg Config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Override with environment variables
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if url := os.Getenv("DATABASE_ADMIN_URL"); url != "" {
		cfg.Database.AdminURL = url
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if url := os.Getenv("IDENTITY_URL"); url != "" {
		cfg.Identity.URL = url
	}
	if url := os.Getenv("PLATFORM_URL"); url != "" {
		cfg.Platform.URL = url
	}
	if token := os.Getenv("PLATFORM_AUTH_TOKEN"); token != "" {
		cfg.Platform.AuthToken = token
	}
	if url := os.Getenv("METRICS_QUERY_URL"); url != "" {
		cfg.Metrics.QueryURL = url
	}
	if url := os.Getenv("METRICS_REMOTE_WRITE_URL"); url != "" {
		cfg.Metrics.RemoteWriteURL = url
	}

	return &cfg, nil
}
