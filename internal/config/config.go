package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr  string
	PublicURL string

	DBDriver string // sqlite|postgres|mysql
	DBDSN    string

	BlobBasePath string

	AuthHMACSecret string
	BcryptCost     int
	CORSOrigins    []string

	// External grading service
	GraderURL          string
	QRReaderURL        string
	GraderTokenURL     string
	GraderClientID     string
	GraderClientSecret string
	GraderTimeout      time.Duration
	ExpectedQuestions  int // 0: use the answer key length
	EnableOCRFallback  bool

	// Device side (gabicam CLI / agent)
	APIBaseURL   string
	RedisAddr    string
	RedisDB      int
	DeviceID     string
	ImagesDir    string
	SyncSchedule string
}

// File mirrors Config for the optional YAML overlay. Env vars win.
type File struct {
	HTTPAddr string `yaml:"httpAddr"`
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	BlobBasePath string   `yaml:"blobBasePath"`
	CORSOrigins  []string `yaml:"corsOrigins"`
	Grader       struct {
		URL               string `yaml:"url"`
		QRReaderURL       string `yaml:"qrReaderUrl"`
		TokenURL          string `yaml:"tokenUrl"`
		ClientID          string `yaml:"clientId"`
		Timeout           string `yaml:"timeout"`
		ExpectedQuestions int    `yaml:"expectedQuestions"`
		OCRFallback       bool   `yaml:"ocrFallback"`
	} `yaml:"grader"`
	Device struct {
		APIBaseURL   string `yaml:"apiBaseUrl"`
		RedisAddr    string `yaml:"redisAddr"`
		RedisDB      int    `yaml:"redisDb"`
		ImagesDir    string `yaml:"imagesDir"`
		SyncSchedule string `yaml:"syncSchedule"`
	} `yaml:"device"`
}

// Load reads .env (if present), then the YAML file at path (if any), then env.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file")
	}
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	var f File
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &f); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	return fromEnv(f), nil
}

func FromEnv() Config { return fromEnv(File{}) }

func fromEnv(f File) Config {
	return Config{
		HTTPAddr:     envOr("HTTP_ADDR", or(f.HTTPAddr, ":3000")),
		PublicURL:    os.Getenv("PUBLIC_URL"),
		DBDriver:     envOr("DB_DRIVER", or(f.Database.Driver, "sqlite")),
		DBDSN:        envOr("DB_DSN", f.Database.DSN),
		BlobBasePath: envOr("BLOB_BASE_PATH", or(f.BlobBasePath, "./data")),

		AuthHMACSecret: envOr("AUTH_HMAC_SECRET", "gabicam-dev-secret"),
		BcryptCost:     envInt("BCRYPT_COST", 10),
		CORSOrigins:    csvOr("CORS_ORIGINS", or(strings.Join(f.CORSOrigins, ","), "*")),

		GraderURL:          envOr("GRADER_URL", or(f.Grader.URL, "http://localhost:5000/corrigir")),
		QRReaderURL:        envOr("QR_READER_URL", or(f.Grader.QRReaderURL, "http://localhost:5001/ler-qrcode")),
		GraderTokenURL:     envOr("GRADER_TOKEN_URL", f.Grader.TokenURL),
		GraderClientID:     envOr("GRADER_CLIENT_ID", f.Grader.ClientID),
		GraderClientSecret: os.Getenv("GRADER_CLIENT_SECRET"),
		GraderTimeout:      envDuration("GRADER_TIMEOUT", durationOr(f.Grader.Timeout, 30*time.Second)),
		ExpectedQuestions:  envInt("EXPECTED_QUESTIONS", f.Grader.ExpectedQuestions),
		EnableOCRFallback:  envBool("ENABLE_OCR_FALLBACK", f.Grader.OCRFallback),

		APIBaseURL:   envOr("API_BASE_URL", or(f.Device.APIBaseURL, "http://localhost:3000")),
		RedisAddr:    envOr("REDIS_ADDR", or(f.Device.RedisAddr, "127.0.0.1:6379")),
		RedisDB:      envInt("REDIS_DB", f.Device.RedisDB),
		DeviceID:     envOr("DEVICE_ID", "default"),
		ImagesDir:    envOr("IMAGES_DIR", or(f.Device.ImagesDir, "./normalized_images")),
		SyncSchedule: envOr("SYNC_SCHEDULE", or(f.Device.SyncSchedule, "@every 5m")),
	}
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func envInt(k string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return def
}
func envDuration(k string, def time.Duration) time.Duration {
	return durationOr(os.Getenv(k), def)
}
func durationOr(v string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	return def
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
