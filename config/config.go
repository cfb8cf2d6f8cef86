package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"gradreach/models"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type OAuthConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"-"`
	RedirectURI  string `json:"redirect_uri"`
}

type SMTPConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
}

type IMAPConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"-"`
	Encryption string `json:"encryption"` // SSL, STARTTLS, none
	Mailbox    string `json:"mailbox"`
}

type GeminiConfig struct {
	APIKey  string        `json:"-"`
	Model   string        `json:"model"`
	Timeout time.Duration `json:"timeout"`
}

type SendConfig struct {
	Concurrency     int           `json:"concurrency"`
	MaxRetries      int           `json:"max_retries"`
	BackoffBase     time.Duration `json:"backoff_base"`
	BackoffCap      time.Duration `json:"backoff_cap"`
	DeliveryTimeout time.Duration `json:"delivery_timeout"`
	HourlyLimit     int           `json:"hourly_limit"` // 0 disables the quota
}

type DraftConfig struct {
	MinWords   int `json:"min_words"`
	MaxWords   int `json:"max_words"`
	MaxRetries int `json:"max_retries"`
}

type ScraperConfig struct {
	DelayMinSec int           `json:"delay_min_sec"`
	DelayMaxSec int           `json:"delay_max_sec"`
	Timeout     time.Duration `json:"timeout"`
	UserAgent   string        `json:"user_agent"`
}

type Config struct {
	Environment    string        `json:"environment"`
	ServerPort     string        `json:"server_port"`
	AppURL         string        `json:"app_url"`
	CORSOrigins    []string      `json:"cors_origins"`
	EncryptionKey  string        `json:"-"`
	SentryDSN      string        `json:"-"`
	Google         OAuthConfig   `json:"google"`
	DBHost         string        `json:"db_host"`
	DBPort         string        `json:"db_port"`
	DBUser         string        `json:"db_user"`
	DBPassword     string        `json:"-"`
	DBName         string        `json:"db_name"`
	DBSSLMode      string        `json:"db_ssl_mode"`
	DBMaxIdleConns int           `json:"db_max_idle_conns"`
	DBMaxOpenConns int           `json:"db_max_open_conns"`
	Redis          RedisConfig   `json:"redis"`
	SMTP           SMTPConfig    `json:"smtp"`
	IMAP           IMAPConfig    `json:"imap"`
	Gemini         GeminiConfig  `json:"gemini"`
	Send           SendConfig    `json:"send"`
	Draft          DraftConfig   `json:"draft"`
	Scraper        ScraperConfig `json:"scraper"`

	RateLimitScrape int `json:"rate_limit_scrape"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:   getEnv("ENVIRONMENT", "development"),
		ServerPort:    getEnv("SERVER_PORT", "5000"),
		AppURL:        getEnv("APP_URL", ""),
		CORSOrigins:   strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"), ","),
		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		SentryDSN:     getEnv("SENTRY_DSN", ""),
		Google: OAuthConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("GOOGLE_REDIRECT_URI", ""),
		},
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "gradreach"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "false") == "true",
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", ""),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("SMTP_FROM_EMAIL", ""),
			FromName:  getEnv("SMTP_FROM_NAME", "GradReach"),
		},
		IMAP: IMAPConfig{
			Host:       getEnv("IMAP_HOST", ""),
			Port:       getEnvAsInt("IMAP_PORT", 993),
			Username:   getEnv("IMAP_USERNAME", ""),
			Password:   getEnv("IMAP_PASSWORD", ""),
			Encryption: getEnv("IMAP_ENCRYPTION", "SSL"),
			Mailbox:    getEnv("IMAP_MAILBOX", "INBOX"),
		},
		Gemini: GeminiConfig{
			APIKey:  getEnv("GEMINI_API_KEY", ""),
			Model:   getEnv("GEMINI_MODEL", "gemini-2.5-pro"),
			Timeout: getEnvAsDuration("GEMINI_TIMEOUT", 30*time.Second),
		},
		Send: SendConfig{
			Concurrency:     getEnvAsInt("SEND_CONCURRENCY", 5),
			MaxRetries:      getEnvAsInt("SEND_MAX_RETRIES", 3),
			BackoffBase:     getEnvAsDuration("SEND_BACKOFF_BASE", 2*time.Second),
			BackoffCap:      getEnvAsDuration("SEND_BACKOFF_CAP", 1*time.Minute),
			DeliveryTimeout: getEnvAsDuration("SEND_DELIVERY_TIMEOUT", 30*time.Second),
			HourlyLimit:     getEnvAsInt("SEND_HOURLY_LIMIT", 0),
		},
		Draft: DraftConfig{
			MinWords:   getEnvAsInt("DRAFT_MIN_WORDS", 150),
			MaxWords:   getEnvAsInt("DRAFT_MAX_WORDS", 400),
			MaxRetries: getEnvAsInt("DRAFT_MAX_RETRIES", 2),
		},
		Scraper: ScraperConfig{
			DelayMinSec: getEnvAsInt("SCRAPER_DELAY_MIN", 2),
			DelayMaxSec: getEnvAsInt("SCRAPER_DELAY_MAX", 5),
			Timeout:     getEnvAsDuration("SCRAPER_TIMEOUT", 30*time.Second),
			UserAgent:   getEnv("SCRAPER_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"),
		},
		RateLimitScrape: getEnvAsInt("RATE_LIMIT_SCRAPE", 5),
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if AppConfig.Environment == "production" {
		if AppConfig.Gemini.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required in production")
		}
		if AppConfig.SMTP.Host == "" {
			return fmt.Errorf("SMTP_HOST is required in production")
		}
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("✅ Successfully connected to the database")
	log.Println("🔄 Starting database migration...")
	if err := MigrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

// MigrateDB runs auto-migration for every model. Exported so tests can
// migrate an sqlite database with the same schema.
func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.University{},
		&models.Professor{},
		&models.MatchScore{},
		&models.Application{},
		&models.Email{},
		&models.EmailBatch{},
		&models.ScrapingJob{},
	)
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("⚠️ Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Gemini model: %s (key set: %t)", AppConfig.Gemini.Model, AppConfig.Gemini.APIKey != "")
	log.Printf("Redis enabled: %t", AppConfig.Redis.Enabled)
}
