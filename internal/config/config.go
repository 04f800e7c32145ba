package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	defaultUploadDir        = "uploads/resumes"
	defaultMaxFileSizeMB    = 5
	defaultJWTExpire        = time.Hour
	defaultBcryptCost       = 10
	defaultSubmitRateLimit  = 10
	defaultSubmitRateWindow = time.Minute
	defaultJobCacheTTL      = 10 * time.Minute
	defaultOrphanGrace      = 24 * time.Hour
)

// Config is built once at start up and handed by value to every component.
type Config struct {
	Port             string
	Env              string // either prod or dev, dev enables console logs and localhost binding
	DatabaseURL      string
	JwtSigningKey    []byte
	JwtExpire        time.Duration
	SessionKey       []byte
	AdminEmail       string // env admin account, logs in with role admin
	AdminPassword    string
	UploadDir        string // where resumes are written, also the public /uploads/resumes/ root
	MaxFileSizeMB    int
	CorsOrigins      []string
	BcryptCost       int
	RedisURL         string // empty disables submit rate limiting
	SubmitRateLimit  int
	SubmitRateWindow time.Duration
	TrustedProxyHops int // reverse proxies in front of the api that append to x-forwarded-for
	SentryDSN        string
	LogLevel         string
	JobCacheTTL      time.Duration
	OrphanGrace      time.Duration // minimum age of an unreferenced resume before the sweeper removes it
}

// MaxFileSizeBytes is the upload ceiling in bytes.
func (c Config) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

func (c Config) IsDev() bool {
	return c.Env == "dev"
}

func LoadConfig() (Config, error) {
	// .env is optional, real environment wins
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		return Config{}, fmt.Errorf("PORT cannot be empty")
	}
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL cannot be empty")
	}
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		return Config{}, fmt.Errorf("JWT_SIGNING_KEY cannot be empty")
	}
	sessionKeyString := os.Getenv("SESSION_KEY")
	if sessionKeyString == "" {
		return Config{}, fmt.Errorf("SESSION_KEY cannot be empty")
	}
	sessionKeyBytes, err := base64.StdEncoding.DecodeString(sessionKeyString)
	if err != nil {
		return Config{}, errors.Wrapf(err, "unable to decode session key to bytes")
	}
	adminEmail := os.Getenv("ADMIN_EMAIL")
	if adminEmail == "" {
		return Config{}, fmt.Errorf("ADMIN_EMAIL cannot be empty")
	}
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminPassword == "" {
		return Config{}, fmt.Errorf("ADMIN_PASSWORD cannot be empty")
	}
	env := strings.ToLower(os.Getenv("ENV"))
	if env == "" {
		env = "dev"
	}
	uploadDir := os.Getenv("UPLOAD_DIR")
	if uploadDir == "" {
		uploadDir = defaultUploadDir
	}
	maxFileSizeMB, err := intFromEnv("MAX_FILE_SIZE_MB", defaultMaxFileSizeMB)
	if err != nil {
		return Config{}, err
	}
	if maxFileSizeMB <= 0 {
		return Config{}, fmt.Errorf("MAX_FILE_SIZE_MB must be positive, got %d", maxFileSizeMB)
	}
	jwtExpire, err := durationFromEnv("JWT_EXPIRE", defaultJWTExpire)
	if err != nil {
		return Config{}, err
	}
	bcryptCost, err := intFromEnv("BCRYPT_COST", defaultBcryptCost)
	if err != nil {
		return Config{}, err
	}
	submitRateLimit, err := intFromEnv("SUBMIT_RATE_LIMIT", defaultSubmitRateLimit)
	if err != nil {
		return Config{}, err
	}
	submitRateWindow, err := durationFromEnv("SUBMIT_RATE_WINDOW", defaultSubmitRateWindow)
	if err != nil {
		return Config{}, err
	}
	trustedProxyHops, err := intFromEnv("TRUSTED_PROXY_HOPS", 0)
	if err != nil {
		return Config{}, err
	}
	if trustedProxyHops < 0 {
		return Config{}, fmt.Errorf("TRUSTED_PROXY_HOPS cannot be negative, got %d", trustedProxyHops)
	}
	jobCacheTTL, err := durationFromEnv("JOB_CACHE_TTL", defaultJobCacheTTL)
	if err != nil {
		return Config{}, err
	}
	orphanGrace, err := durationFromEnv("ORPHAN_GRACE", defaultOrphanGrace)
	if err != nil {
		return Config{}, err
	}
	logLevel := strings.ToLower(os.Getenv("LOG_LEVEL"))
	if logLevel == "" {
		logLevel = "info"
	}

	return Config{
		Port:             port,
		Env:              env,
		DatabaseURL:      databaseURL,
		JwtSigningKey:    []byte(jwtSigningKey),
		JwtExpire:        jwtExpire,
		SessionKey:       sessionKeyBytes,
		AdminEmail:       strings.ToLower(strings.TrimSpace(adminEmail)),
		AdminPassword:    adminPassword,
		UploadDir:        uploadDir,
		MaxFileSizeMB:    maxFileSizeMB,
		CorsOrigins:      splitList(os.Getenv("CORS_ORIGIN")),
		BcryptCost:       bcryptCost,
		RedisURL:         os.Getenv("REDIS_URL"),
		SubmitRateLimit:  submitRateLimit,
		SubmitRateWindow: submitRateWindow,
		TrustedProxyHops: trustedProxyHops,
		SentryDSN:        os.Getenv("SENTRY_DSN"),
		LogLevel:         logLevel,
		JobCacheTTL:      jobCacheTTL,
		OrphanGrace:      orphanGrace,
	}, nil
}

func intFromEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "unable to convert %s to int", key)
	}
	return i, nil
}

func durationFromEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "unable to parse %s as duration", key)
	}
	return d, nil
}

func splitList(s string) []string {
	out := []string{}
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
