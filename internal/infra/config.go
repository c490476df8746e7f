package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации консоли комплаенса.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"` // Origin фронтенда дашборда
	MaxUploadMB  int64         `mapstructure:"max_upload_mb"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GRPCConfig — порт gRPC health-check для оркестратора.
type GRPCConfig struct {
	Port int `mapstructure:"port"`
}

type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // postgres | memory
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub и Cache).
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	StatsTTL time.Duration `mapstructure:"stats_ttl"` // TTL кэша статистики дашборда
}

// AuthConfig содержит пути к RSA ключам и настройки JWT.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	AdminPassword  string        `mapstructure:"admin_password"` // учетка admin при database.driver=memory
	PublicKey      []byte
	PrivateKey     []byte
}

// ProviderConfig — настройки одного внешнего провайдера (KYC/AML/Risk).
type ProviderConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIToken string        `mapstructure:"api_token"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ProvidersConfig описывает внешних провайдеров и общие параметры надежности.
type ProvidersConfig struct {
	DefaultKYC string `mapstructure:"default_kyc"` // onfido | idenfy | mock
	DefaultAML string `mapstructure:"default_aml"` // refinitiv | complyadvantage | mock

	Onfido          ProviderConfig `mapstructure:"onfido"`
	Idenfy          ProviderConfig `mapstructure:"idenfy"`
	Refinitiv       ProviderConfig `mapstructure:"refinitiv"`
	ComplyAdvantage ProviderConfig `mapstructure:"complyadvantage"`
	Risk            ProviderConfig `mapstructure:"risk"`

	// Circuit Breaker и лимитер для исходящих вызовов
	CBMaxRequests int           `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
	RateLimit     float64       `mapstructure:"rate_limit"` // запросов в секунду
	RateBurst     int           `mapstructure:"rate_burst"`
	RetryAttempts uint          `mapstructure:"retry_attempts"`
}

// RosterEntry — ревьюер, назначаемый на ступень при создании workflow.
type RosterEntry struct {
	UserID string `mapstructure:"user_id"`
	Role   string `mapstructure:"role"`
}

type WorkflowConfig struct {
	// Roster: ступень (L1, L2, EXECUTIVE) -> список ревьюеров
	Roster map[string][]RosterEntry `mapstructure:"roster"`
}

type AuditConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	BatchSize     int           `mapstructure:"batch_size"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла, .env и ENV.
func LoadConfig() (*Config, error) {
	// .env удобен локально, в контейнере его обычно нет
	_ = godotenv.Load()

	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. ENV перекрывает конфиг: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if len(cfg.Workflow.Roster) == 0 {
		cfg.Workflow.Roster = DefaultRoster()
	}

	// 6. Ключи: PEM прямо в ENV (Docker/K8s) или файл по пути из конфига
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.max_upload_mb", 10)
	v.SetDefault("grpc.port", 9091)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.stats_ttl", time.Minute)
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("auth.admin_password", "")
	v.SetDefault("providers.default_kyc", "onfido")
	v.SetDefault("providers.default_aml", "complyadvantage")
	v.SetDefault("providers.cb_max_requests", 3)
	v.SetDefault("providers.cb_interval", 5*time.Second)
	v.SetDefault("providers.cb_timeout", 30*time.Second)
	v.SetDefault("providers.rate_limit", 20)
	v.SetDefault("providers.rate_burst", 5)
	v.SetDefault("providers.retry_attempts", 3)
	v.SetDefault("audit.buffer_size", 1000)
	v.SetDefault("audit.flush_interval", 500*time.Millisecond)
	v.SetDefault("audit.batch_size", 100)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

// DefaultRoster повторяет состав ревьюеров по умолчанию:
// два комплаенс-офицера на L1, менеджер на L2, executive на последней ступени.
func DefaultRoster() map[string][]RosterEntry {
	return map[string][]RosterEntry{
		"L1": {
			{UserID: "compliance-officer-1", Role: "COMPLIANCE_OFFICER"},
			{UserID: "compliance-officer-2", Role: "COMPLIANCE_OFFICER"},
		},
		"L2":        {{UserID: "compliance-manager-1", Role: "MANAGER"}},
		"EXECUTIVE": {{UserID: "executive-1", Role: "EXECUTIVE"}},
	}
}

// loadKeyResource — ключ из ENV имеет приоритет над файлом
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
