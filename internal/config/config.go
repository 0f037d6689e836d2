package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/yosuke-furukawa/json5/encoding/json5"
)

const (
	DirName         = "jobscrape"
	ConfigFileName  = "config.json"
	ProxiesFileName = "proxies.txt"
	CookiesFileName = "cookies.json"
	SeenFileName    = "seen.json"
)

// DB holds discrete connection settings, used when no DATABASE_URL is set.
type DB struct {
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Name     string `json:"name,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	SSLMode  string `json:"sslmode,omitempty"`
}

// Config contains the settings shared by every command. File values are
// overridden by the environment.
type Config struct {
	DatabaseURL string `json:"database_url,omitempty"`
	DB          DB     `json:"db"`

	KeywordsFile string  `json:"keywords_file"`
	MaxPages     int     `json:"max_pages"`
	PageSleep    float64 `json:"page_sleep"`
	BatchSize    int     `json:"batch_size"`
	Concurrency  int     `json:"concurrency"`

	Headless    bool   `json:"headless"`
	ChromePath  string `json:"chrome_path,omitempty"`
	CookiesPath string `json:"cookies_path,omitempty"`

	Email         string `json:"email,omitempty"`
	EmailPassword string `json:"email_password,omitempty"`

	RedisAddr          string `json:"redis_addr,omitempty"`
	ElasticsearchURL   string `json:"elasticsearch_url,omitempty"`
	ElasticsearchIndex string `json:"elasticsearch_index,omitempty"`

	GeminiAPIKey string `json:"gemini_api_key,omitempty"`
	GeminiModel  string `json:"gemini_model,omitempty"`

	AdzunaAppID   string `json:"adzuna_app_id,omitempty"`
	AdzunaAppKey  string `json:"adzuna_app_key,omitempty"`
	AdzunaCountry string `json:"adzuna_country,omitempty"`

	RatesURL string `json:"rates_url,omitempty"`
}

// Defaults returns the built-in settings, without reading the environment.
func Defaults() Config {
	return Config{
		DB:            DB{Port: 5432, SSLMode: "disable"},
		KeywordsFile:  "job_list.json",
		MaxPages:      50,
		PageSleep:     1,
		BatchSize:     20,
		Concurrency:   4,
		Headless:      true,
		AdzunaCountry: "gb",
	}
}

func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, DirName), nil
}

func ConfigPath() (string, error) {
	return configFile(ConfigFileName)
}

func ProxiesPath() (string, error) {
	return configFile(ProxiesFileName)
}

func CookiesPath() (string, error) {
	return configFile(CookiesFileName)
}

func SeenPath() (string, error) {
	return configFile(SeenFileName)
}

func configFile(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the environment. Variables
// already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the config file, if any, and applies environment overrides.
func Load() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Defaults()
		applyEnv(&cfg)
		return cfg, err
	}
	return LoadFile(path)
}

func LoadFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, err
	case len(strings.TrimSpace(string(data))) > 0:
		if err := json5.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DatabaseURL = envString("DATABASE_URL", cfg.DatabaseURL)
	cfg.DB.Host = envString("DB_HOST", envString("PG_HOST", cfg.DB.Host))
	cfg.DB.Port = envInt("DB_PORT", envInt("PG_PORT", cfg.DB.Port))
	cfg.DB.Name = envString("DB_NAME", envString("PG_DB", cfg.DB.Name))
	cfg.DB.User = envString("DB_USER", envString("PG_USER", cfg.DB.User))
	cfg.DB.Password = envString("DB_PASSWORD", envString("PG_PASSWORD", cfg.DB.Password))
	cfg.DB.SSLMode = envString("DB_SSLMODE", envString("PG_SSLMODE", cfg.DB.SSLMode))

	cfg.KeywordsFile = envString("JOBSCRAPE_KEYWORDS_FILE", envString("JOBS_PATH", cfg.KeywordsFile))
	cfg.MaxPages = envInt("MAX_PAGES", cfg.MaxPages)
	cfg.PageSleep = envFloat("PAGE_SLEEP", cfg.PageSleep)
	cfg.BatchSize = envInt("BATCH_SIZE", cfg.BatchSize)
	cfg.Concurrency = envInt("JOBSCRAPE_CONCURRENCY", cfg.Concurrency)

	cfg.Headless = envBool("HEADLESS", cfg.Headless)
	cfg.ChromePath = envString("CHROME_PATH", cfg.ChromePath)
	cfg.CookiesPath = envString("COOKIES_PATH", cfg.CookiesPath)

	cfg.Email = envString("EMAIL", cfg.Email)
	cfg.EmailPassword = envString("EMAIL_PASSWORD", cfg.EmailPassword)

	cfg.RedisAddr = envString("REDIS_ADDR", cfg.RedisAddr)
	cfg.ElasticsearchURL = envString("ELASTICSEARCH_URL", cfg.ElasticsearchURL)
	cfg.ElasticsearchIndex = envString("ELASTICSEARCH_INDEX", cfg.ElasticsearchIndex)

	cfg.GeminiAPIKey = envString("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.GeminiModel = envString("GEMINI_MODEL", cfg.GeminiModel)

	cfg.AdzunaAppID = envString("ADZUNA_APP_ID", cfg.AdzunaAppID)
	cfg.AdzunaAppKey = envString("ADZUNA_APP_KEY", cfg.AdzunaAppKey)
	cfg.AdzunaCountry = envString("ADZUNA_COUNTRY", cfg.AdzunaCountry)

	cfg.RatesURL = envString("CBU_URL", cfg.RatesURL)
}

// PageSleepDuration converts the PageSleep seconds into a duration.
func (c Config) PageSleepDuration() time.Duration {
	if c.PageSleep <= 0 {
		return 0
	}
	return time.Duration(c.PageSleep * float64(time.Second))
}

// DSN returns DATABASE_URL when set, otherwise a key/value connection string
// built from DB. It is empty when neither is configured.
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	if c.DB.Host == "" || c.DB.Name == "" {
		return ""
	}

	parts := []string{
		"host=" + dsnValue(c.DB.Host),
		"dbname=" + dsnValue(c.DB.Name),
	}
	if c.DB.Port > 0 {
		parts = append(parts, "port="+strconv.Itoa(c.DB.Port))
	}
	if c.DB.User != "" {
		parts = append(parts, "user="+dsnValue(c.DB.User))
	}
	if c.DB.Password != "" {
		parts = append(parts, "password="+dsnValue(c.DB.Password))
	}
	if c.DB.SSLMode != "" {
		parts = append(parts, "sslmode="+dsnValue(c.DB.SSLMode))
	}
	return strings.Join(parts, " ")
}

// Redacted is DSN with the password masked, for logs.
func (c Config) Redacted() string {
	dsn := c.DSN()
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
		return u.Redacted()
	}
	if c.DB.Password == "" {
		return dsn
	}
	return strings.Replace(dsn, "password="+dsnValue(c.DB.Password), "password=xxxxx", 1)
}

func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Init writes default config.json and proxies.txt if they don't already exist.
func Init() ([]string, error) {
	var created []string

	dir, err := ConfigDir()
	if err != nil {
		return created, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return created, err
	}

	configPath := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		if err := writeConfig(configPath, Defaults()); err != nil {
			return created, err
		}
		created = append(created, configPath)
	}

	proxiesPath := filepath.Join(dir, ProxiesFileName)
	if _, err := os.Stat(proxiesPath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(proxiesPath, []byte(""), 0o644); err != nil {
			return created, err
		}
		created = append(created, proxiesPath)
	}

	return created, nil
}

func writeConfig(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func LoadProxies(flagValue string) ([]string, error) {
	if strings.TrimSpace(flagValue) != "" {
		return splitCSV(flagValue), nil
	}

	if env := strings.TrimSpace(os.Getenv("JOBSCRAPE_PROXIES")); env != "" {
		return splitCSV(env), nil
	}

	path, err := ProxiesPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var proxies []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		proxies = append(proxies, line)
	}
	return proxies, nil
}

func envString(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func envInt(key string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
