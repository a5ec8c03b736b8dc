package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string `json:"port"`

	// Хранилище: memory | file | postgres | sqlite
	StoreDriver string `json:"storeDriver"`
	DataFile    string `json:"dataFile"`   // для file: JSON-блоб состояния
	DBURL       string `json:"dbUrl"`      // для postgres
	SQLitePath  string `json:"sqlitePath"` // для sqlite

	// Seed-схема и справочники вариантов для select
	SeedDir    string `json:"seedDir"`
	OptionsDir string `json:"optionsDir"`
	AutoSeed   bool   `json:"autoSeed"`

	// Часовой пояс для границ дат в отчётах
	Location string `json:"location"`

	LogLevel string `json:"logLevel"` // debug | info | warn | error

	// Архив экспортов
	BlobDriver string `json:"blobDriver"` // "local" (default) | "s3"
	FilesRoot  string `json:"filesRoot"`  // для local: папка хранения

	S3Region    string `json:"s3Region"`
	S3Bucket    string `json:"s3Bucket"`
	S3Prefix    string `json:"s3Prefix"`
	S3Endpoint  string `json:"s3Endpoint"`
	S3AccessKey string `json:"s3AccessKey"`
	S3SecretKey string `json:"s3SecretKey"`
	S3UseSSL    bool   `json:"s3UseSSL"`
}

func def() Config {
	return Config{
		Port:        "8080",
		StoreDriver: "file",
		DataFile:    "data/datalogger.json",
		DBURL:       "",
		SQLitePath:  "data/datalogger.db",

		SeedDir:    "seed",
		OptionsDir: "reference/options",
		AutoSeed:   false,

		Location: "UTC",
		LogLevel: "info",

		BlobDriver: "local",
		FilesRoot:  "exports",

		S3UseSSL: true,
	}
}

func loadJSON(path string) (Config, error) {
	c := def()
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, err
	}
	return c, nil
}

func getenv(k, fallback string) string {
	if v, ok := os.LookupEnv(k); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func getenvBool(k string, fallback bool) bool {
	if v, ok := os.LookupEnv(k); ok {
		if b, ok := parseBool(v); ok {
			return b
		}
	}
	return fallback
}

func parseBool(v string) (bool, bool) {
	switch strings.TrimSpace(strings.ToLower(v)) {
	case "1", "true", "yes":
		return true, true
	case "0", "false", "no":
		return false, true
	}
	return false, false
}

// Load: дефолты -> JSON (если файл есть) -> .env -> ENV.
func Load(jsonPath string) (Config, error) {
	cfg := def()

	if st, err := os.Stat(jsonPath); err == nil && !st.IsDir() {
		c2, err := loadJSON(jsonPath)
		if err != nil {
			return cfg, fmt.Errorf("config %s: %w", jsonPath, err)
		}
		cfg = c2
	}

	// .env не обязателен
	_ = godotenv.Load()

	cfg.Port = getenv("DATALOGGER_PORT", cfg.Port)
	cfg.StoreDriver = getenv("DATALOGGER_STORE", cfg.StoreDriver)
	cfg.DataFile = getenv("DATALOGGER_DATA_FILE", cfg.DataFile)
	cfg.DBURL = getenv("DATALOGGER_DB_URL", cfg.DBURL)
	cfg.SQLitePath = getenv("DATALOGGER_SQLITE_PATH", cfg.SQLitePath)
	cfg.SeedDir = getenv("DATALOGGER_SEED_DIR", cfg.SeedDir)
	cfg.OptionsDir = getenv("DATALOGGER_OPTIONS_DIR", cfg.OptionsDir)
	cfg.AutoSeed = getenvBool("DATALOGGER_AUTO_SEED", cfg.AutoSeed)
	cfg.Location = getenv("DATALOGGER_LOCATION", cfg.Location)
	cfg.LogLevel = getenv("DATALOGGER_LOG_LEVEL", cfg.LogLevel)

	cfg.BlobDriver = getenv("DATALOGGER_BLOB_DRIVER", cfg.BlobDriver)
	cfg.FilesRoot = getenv("DATALOGGER_FILES_ROOT", cfg.FilesRoot)
	cfg.S3Region = getenv("DATALOGGER_S3_REGION", cfg.S3Region)
	cfg.S3Bucket = getenv("DATALOGGER_S3_BUCKET", cfg.S3Bucket)
	cfg.S3Prefix = getenv("DATALOGGER_S3_PREFIX", cfg.S3Prefix)
	cfg.S3Endpoint = getenv("DATALOGGER_S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3AccessKey = getenv("DATALOGGER_S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = getenv("DATALOGGER_S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.S3UseSSL = getenvBool("DATALOGGER_S3_USE_SSL", cfg.S3UseSSL)

	return cfg, nil
}

// LoadWithFlags читает JSON по пути, потом ENV, потом флаги из args.
func LoadWithFlags(fs *flag.FlagSet, args []string, jsonPath string) (Config, error) {
	// -config надо знать до чтения остального
	pre := flag.NewFlagSet("pre", flag.ContinueOnError)
	pre.SetOutput(discard{})
	configPath := pre.String("config", jsonPath, "Path to config JSON")
	_ = pre.Parse(filterFlag(args, "config"))

	cfg, err := Load(*configPath)
	if err != nil {
		return cfg, err
	}

	fs.String("config", *configPath, "Path to config JSON")
	port := fs.String("port", cfg.Port, "HTTP port")
	driver := fs.String("store", cfg.StoreDriver, "Store driver (memory/file/postgres/sqlite)")
	dataFile := fs.String("data-file", cfg.DataFile, "State file (store=file)")
	db := fs.String("db", cfg.DBURL, "Postgres URL (store=postgres)")
	sqlitePath := fs.String("sqlite", cfg.SQLitePath, "SQLite path (store=sqlite)")
	seed := fs.String("seed", cfg.SeedDir, "Path to seed DSL directory")
	options := fs.String("options", cfg.OptionsDir, "Path to select option catalogs")
	autoSeed := fs.String("auto-seed", strconv.FormatBool(cfg.AutoSeed), "Apply seed on start (true/false)")
	loc := fs.String("location", cfg.Location, "Time zone for report date bounds")
	level := fs.String("log-level", cfg.LogLevel, "Log level")
	blob := fs.String("blob-driver", cfg.BlobDriver, "Blob driver (local/s3)")
	files := fs.String("files-root", cfg.FilesRoot, "Local export archive root (blob=local)")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.Port = strings.TrimSpace(*port)
	cfg.StoreDriver = strings.TrimSpace(*driver)
	cfg.DataFile = strings.TrimSpace(*dataFile)
	cfg.DBURL = strings.TrimSpace(*db)
	cfg.SQLitePath = strings.TrimSpace(*sqlitePath)
	cfg.SeedDir = strings.TrimSpace(*seed)
	cfg.OptionsDir = strings.TrimSpace(*options)
	if b, ok := parseBool(*autoSeed); ok {
		cfg.AutoSeed = b
	}
	cfg.Location = strings.TrimSpace(*loc)
	cfg.LogLevel = strings.TrimSpace(*level)
	cfg.BlobDriver = strings.TrimSpace(*blob)
	cfg.FilesRoot = strings.TrimSpace(*files)

	return cfg, cfg.Validate()
}

// Validate проверяет согласованность значений.
func (c Config) Validate() error {
	switch strings.ToLower(c.StoreDriver) {
	case "memory":
	case "file":
		if c.DataFile == "" {
			return fmt.Errorf("store=file requires dataFile")
		}
	case "postgres":
		if c.DBURL == "" {
			return fmt.Errorf("store=postgres requires dbUrl")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("store=sqlite requires sqlitePath")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	switch strings.ToLower(c.BlobDriver) {
	case "local", "":
	case "s3":
		if c.S3Bucket == "" || c.S3Endpoint == "" {
			return fmt.Errorf("blobDriver=s3 requires s3Bucket and s3Endpoint")
		}
	default:
		return fmt.Errorf("unknown blob driver %q", c.BlobDriver)
	}
	if _, err := c.TimeLocation(); err != nil {
		return err
	}
	return nil
}

// TimeLocation: *time.Location для границ дат
func (c Config) TimeLocation() (*time.Location, error) {
	name := strings.TrimSpace(c.Location)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("location %q: %w", name, err)
	}
	return loc, nil
}

// filterFlag оставляет только -name/--name (с =value или следующим аргументом)
func filterFlag(args []string, name string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		trim := strings.TrimLeft(a, "-")
		if trim == name && i+1 < len(args) && a != trim {
			out = append(out, a, args[i+1])
			i++
			continue
		}
		if strings.HasPrefix(trim, name+"=") && a != trim {
			out = append(out, a)
		}
	}
	return out
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
