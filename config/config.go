package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL string
	DBPath      string
	ListenAddr  string
	LogLevel    string
	LogFile     string
	LogMaxBytes int64
	NATS        NATSConfig
	OpenAI      OpenAIConfig
	S3          S3Config
	SMTP        SMTPConfig
	Scheduler   SchedulerConfig
	Fetcher     FetcherConfig
	Sites       map[string]*SiteConfig
}

type NATSConfig struct {
	URL string // empty disables the bus; progress and queueing degrade to in-process
}

type OpenAIConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Recipients []string
}

type SchedulerConfig struct {
	Cron     string
	Interval time.Duration
	SheetURL string // CSV export URL of the batch spreadsheet
}

type FetcherConfig struct {
	DelayMS    int
	UseBrowser bool
	ProxyURL   string
}

type SiteConfig struct {
	ID     string   `yaml:"id"`
	Name   string   `yaml:"name"`
	Hosts  []string `yaml:"hosts"`
	Color  string   `yaml:"color"`
	Active bool     `yaml:"active"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBPath:      getEnv("DB_PATH", "ingest.db"),
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     getEnv("LOG_FILE", "casaingest.log"),
		LogMaxBytes: int64(getEnvInt("LOG_MAX_BYTES", 2*1024*1024)),
		NATS: NATSConfig{
			URL: os.Getenv("NATS_URL"),
		},
		OpenAI: OpenAIConfig{
			APIKey:         os.Getenv("OPENAI_API_KEY"),
			Model:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			EmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("SMTP_FROM", "ingest@localhost"),
		},
		Scheduler: SchedulerConfig{
			Cron:     os.Getenv("SHEET_POLL_CRON"),
			SheetURL: os.Getenv("SHEET_CSV_URL"),
		},
		Fetcher: FetcherConfig{
			DelayMS:    getEnvInt("FETCH_DELAY_MS", 500),
			UseBrowser: os.Getenv("FETCH_USE_BROWSER") == "true",
			ProxyURL:   os.Getenv("FETCH_PROXY_URL"),
		},
		Sites: make(map[string]*SiteConfig),
	}

	if recips := os.Getenv("SMTP_RECIPIENTS"); recips != "" {
		cfg.SMTP.Recipients = splitCSV(recips)
	}

	if interval := os.Getenv("SHEET_POLL_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err == nil {
			cfg.Scheduler.Interval = d
		}
	}

	if err := cfg.loadSiteConfigs(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadSiteConfigs() error {
	configDir := "config/sites"
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(configDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var site SiteConfig
		if err := yaml.Unmarshal(data, &site); err != nil {
			return err
		}

		c.Sites[site.ID] = &site
	}

	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
