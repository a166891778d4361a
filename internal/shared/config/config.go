package config

import (
	"fmt"
	"strconv"
	"time"

	"ipg-server/internal/shared/utils"

	"github.com/joho/godotenv"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Redis          RedisConfig
	Auth           AuthConfig
	OAuth          OAuthConfig
	Frontend       FrontendConfig
	Logging        LoggingConfig
	RateLimit      RateLimitConfig
	Game           GameConfig
	WebSocket      WebSocketConfig
	CircuitBreaker CircuitBreakerConfig
}

type RedisConfig struct {
	Enabled  bool
	URL      string
	Host     string
	Port     string
	Password string
	DB       int
}

type ServerConfig struct {
	Port         string
	URL          string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Enabled         bool
	Driver          string
	DSN             string
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	JWTSecret       string
	TokenExpiration time.Duration
	CookieSecure    bool
	CookieSameSite  string
}

type OAuthConfig struct {
	Google GoogleOAuthConfig
	GitHub GitHubOAuthConfig
}

type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

type GitHubOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

type FrontendConfig struct {
	URL       string
	CORSDebug bool
}

type LoggingConfig struct {
	Level      string
	Format     string
	JSONFormat bool
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	BurstSize         int
	TrustProxy        bool
}

type GameConfig struct {
	MapsDir           string
	DefaultMinPlayers int
	SendBuffer        int
	RejoinTTL         time.Duration
	HistoryQueue      int
}

type WebSocketConfig struct {
	MessagesPerSecond float64
	Burst             int
	ReadLimit         int64
	WriteTimeout      time.Duration
	PongWait          time.Duration
	PingInterval      time.Duration
}

type CircuitBreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

var GlobalConfig *Config

func Init() error {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using system environment variables")
	}

	config, err := load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := config.validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	GlobalConfig = config
	return nil
}

func load() (*Config, error) {
	config := &Config{
		Server:         loadServerConfig(),
		Database:       loadDatabaseConfig(),
		Redis:          loadRedisConfig(),
		Auth:           loadAuthConfig(),
		OAuth:          loadOAuthConfig(),
		Frontend:       loadFrontendConfig(),
		Logging:        loadLoggingConfig(),
		RateLimit:      loadRateLimitConfig(),
		Game:           loadGameConfig(),
		WebSocket:      loadWebSocketConfig(),
		CircuitBreaker: loadCircuitBreakerConfig(),
	}

	return config, nil
}

func loadRedisConfig() RedisConfig {
	enabled := utils.GetEnv("REDIS_ENABLED", "true") == "true"
	redisURL := utils.GetEnv("REDIS_URL", "")

	db, _ := strconv.Atoi(utils.GetEnv("REDIS_DB", "0"))

	return RedisConfig{
		Enabled:  enabled,
		URL:      redisURL,
		Host:     utils.GetEnv("REDIS_HOST", "localhost"),
		Port:     utils.GetEnv("REDIS_PORT", "6379"),
		Password: utils.GetEnv("REDIS_PASSWORD", ""),
		DB:       db,
	}
}

func loadServerConfig() ServerConfig {
	readTimeout, _ := strconv.Atoi(utils.GetEnv("SERVER_READ_TIMEOUT_SECONDS", "15"))
	writeTimeout, _ := strconv.Atoi(utils.GetEnv("SERVER_WRITE_TIMEOUT_SECONDS", "15"))
	idleTimeout, _ := strconv.Atoi(utils.GetEnv("SERVER_IDLE_TIMEOUT_SECONDS", "60"))

	return ServerConfig{
		Port:         utils.GetEnv("SERVER_PORT", "8080"),
		URL:          utils.GetEnv("SERVER_URL", "http://localhost:8080"),
		Environment:  utils.GetEnv("ENVIRONMENT", "development"),
		ReadTimeout:  time.Duration(readTimeout) * time.Second,
		WriteTimeout: time.Duration(writeTimeout) * time.Second,
		IdleTimeout:  time.Duration(idleTimeout) * time.Second,
	}
}

func loadDatabaseConfig() DatabaseConfig {
	maxOpenConns, _ := strconv.Atoi(utils.GetEnv("DB_MAX_OPEN_CONNS", "25"))
	maxIdleConns, _ := strconv.Atoi(utils.GetEnv("DB_MAX_IDLE_CONNS", "5"))
	connMaxLifetime, _ := strconv.Atoi(utils.GetEnv("DB_CONN_MAX_LIFETIME_MINUTES", "5"))

	return DatabaseConfig{
		Enabled:         utils.GetEnv("DB_ENABLED", "true") == "true",
		Driver:          utils.GetEnv("DB_DRIVER", "postgres"),
		DSN:             utils.GetEnv("DB_DSN", "ipg.db"),
		Host:            utils.GetEnv("DB_HOST", "localhost"),
		Port:            utils.GetEnv("DB_PORT", "5432"),
		User:            utils.GetEnv("DB_USER", "postgres"),
		Password:        utils.GetEnv("DB_PASSWORD", "postgres"),
		Name:            utils.GetEnv("DB_NAME", "ipg"),
		SSLMode:         utils.GetEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    maxOpenConns,
		MaxIdleConns:    maxIdleConns,
		ConnMaxLifetime: time.Duration(connMaxLifetime) * time.Minute,
	}
}

func loadAuthConfig() AuthConfig {
	tokenExpiration, _ := strconv.Atoi(utils.GetEnv("JWT_EXPIRATION_HOURS", "24"))

	environment := utils.GetEnv("ENVIRONMENT", "development")
	cookieSecure := environment == "production"

	return AuthConfig{
		JWTSecret:       utils.GetEnv("JWT_SECRET", ""),
		TokenExpiration: time.Duration(tokenExpiration) * time.Hour,
		CookieSecure:    cookieSecure,
		CookieSameSite:  utils.GetEnv("COOKIE_SAME_SITE", "lax"),
	}
}

func loadOAuthConfig() OAuthConfig {
	serverURL := utils.GetEnv("SERVER_URL", "http://localhost:8080")

	return OAuthConfig{
		Google: GoogleOAuthConfig{
			ClientID:     utils.GetEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: utils.GetEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  serverURL + "/auth/google/callback",
			Scopes:       []string{"openid", "profile", "email"},
		},
		GitHub: GitHubOAuthConfig{
			ClientID:     utils.GetEnv("GITHUB_CLIENT_ID", ""),
			ClientSecret: utils.GetEnv("GITHUB_CLIENT_SECRET", ""),
			RedirectURL:  serverURL + "/auth/github/callback",
			Scopes:       []string{"read:user"},
		},
	}
}

func loadFrontendConfig() FrontendConfig {
	corsDebug := utils.GetEnv("CORS_DEBUG", "") == "true"

	return FrontendConfig{
		URL:       utils.GetEnv("FRONTEND_URL", "http://localhost:3000"),
		CORSDebug: corsDebug,
	}
}

func loadLoggingConfig() LoggingConfig {
	environment := utils.GetEnv("ENVIRONMENT", "development")
	jsonFormat := environment == "production"

	return LoggingConfig{
		Level:      utils.GetEnv("LOG_LEVEL", "debug"),
		Format:     utils.GetEnv("LOG_FORMAT", "text"),
		JSONFormat: jsonFormat,
	}
}

func loadRateLimitConfig() RateLimitConfig {
	enabled := utils.GetEnv("RATE_LIMIT_ENABLED", "true") == "true"
	requestsPerSecond, _ := strconv.ParseFloat(utils.GetEnv("RATE_LIMIT_REQUESTS_PER_SECOND", "10"), 64)
	burstSize, _ := strconv.Atoi(utils.GetEnv("RATE_LIMIT_BURST_SIZE", "20"))

	return RateLimitConfig{
		Enabled:           enabled,
		RequestsPerSecond: requestsPerSecond,
		BurstSize:         burstSize,
		TrustProxy:        utils.GetEnvBool("RATE_LIMIT_TRUST_PROXY", false),
	}
}

func loadGameConfig() GameConfig {
	return GameConfig{
		MapsDir:           utils.GetEnv("GAME_MAPS_DIR", "maps"),
		DefaultMinPlayers: utils.GetEnvInt("GAME_DEFAULT_MIN_PLAYERS", 2),
		SendBuffer:        utils.GetEnvInt("GAME_SEND_BUFFER", 64),
		RejoinTTL:         time.Duration(utils.GetEnvInt("GAME_REJOIN_TTL_MINUTES", 120)) * time.Minute,
		HistoryQueue:      utils.GetEnvInt("GAME_HISTORY_QUEUE", 256),
	}
}

func loadWebSocketConfig() WebSocketConfig {
	messagesPerSecond, _ := strconv.ParseFloat(utils.GetEnv("WS_MESSAGES_PER_SECOND", "20"), 64)

	return WebSocketConfig{
		MessagesPerSecond: messagesPerSecond,
		Burst:             utils.GetEnvInt("WS_BURST", 40),
		ReadLimit:         int64(utils.GetEnvInt("WS_READ_LIMIT_BYTES", 4096)),
		WriteTimeout:      time.Duration(utils.GetEnvInt("WS_WRITE_TIMEOUT_SECONDS", 10)) * time.Second,
		PongWait:          time.Duration(utils.GetEnvInt("WS_PONG_WAIT_SECONDS", 60)) * time.Second,
		PingInterval:      time.Duration(utils.GetEnvInt("WS_PING_INTERVAL_SECONDS", 30)) * time.Second,
	}
}

func loadCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests:      uint32(utils.GetEnvInt("CB_MAX_REQUESTS", 1)),
		Interval:         time.Duration(utils.GetEnvInt("CB_INTERVAL_SECONDS", 60)) * time.Second,
		Timeout:          time.Duration(utils.GetEnvInt("CB_TIMEOUT_SECONDS", 30)) * time.Second,
		FailureThreshold: uint32(utils.GetEnvInt("CB_FAILURE_THRESHOLD", 5)),
	}
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	if c.Server.URL == "" {
		return fmt.Errorf("SERVER_URL is required")
	}

	if c.Database.Enabled {
		switch c.Database.Driver {
		case "postgres":
			if c.Database.Host == "" {
				return fmt.Errorf("DB_HOST is required")
			}
			if c.Database.Name == "" {
				return fmt.Errorf("DB_NAME is required")
			}
		case "sqlite":
			if c.Database.DSN == "" {
				return fmt.Errorf("DB_DSN is required for the sqlite driver")
			}
		default:
			return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver)
		}
	}

	if c.Game.MapsDir == "" {
		return fmt.Errorf("GAME_MAPS_DIR is required")
	}

	if c.Game.DefaultMinPlayers < 2 {
		return fmt.Errorf("GAME_DEFAULT_MIN_PLAYERS must be at least 2")
	}

	if c.Game.SendBuffer <= 0 {
		return fmt.Errorf("GAME_SEND_BUFFER must be positive")
	}

	if c.WebSocket.MessagesPerSecond <= 0 || c.WebSocket.Burst <= 0 {
		return fmt.Errorf("WS_MESSAGES_PER_SECOND and WS_BURST must be positive")
	}

	if c.WebSocket.PingInterval >= c.WebSocket.PongWait {
		return fmt.Errorf("WS_PING_INTERVAL_SECONDS must be shorter than WS_PONG_WAIT_SECONDS")
	}

	return nil
}

func (c *Config) GoogleOAuthConfigured() bool {
	return c.OAuth.Google.ClientID != "" && c.OAuth.Google.ClientSecret != ""
}

func (c *Config) GitHubOAuthConfigured() bool {
	return c.OAuth.GitHub.ClientID != "" && c.OAuth.GitHub.ClientSecret != ""
}

// ConnectionString returns the data source name for the configured driver
func (c *Config) ConnectionString() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.DSN
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
