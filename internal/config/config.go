package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Crawl      CrawlConfig      `yaml:"crawl" mapstructure:"crawl"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
	LH         LHConfig         `yaml:"lh" mapstructure:"lh"`
	Schedule   ScheduleConfig   `yaml:"schedule" mapstructure:"schedule"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the Postgres sink.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url" validate:"required"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns" validate:"gte=1"`
}

// CrawlConfig configures the SOCO board crawl.
type CrawlConfig struct {
	ListURL           string  `yaml:"list_url" mapstructure:"list_url" validate:"required,url"`
	DetailURL         string  `yaml:"detail_url" mapstructure:"detail_url" validate:"required,url"`
	BoardID           string  `yaml:"board_id" mapstructure:"board_id" validate:"required"`
	MenuNo            string  `yaml:"menu_no" mapstructure:"menu_no" validate:"required"`
	HousingType       string  `yaml:"housing_type" mapstructure:"housing_type"`
	CheckpointBackend string  `yaml:"checkpoint_backend" mapstructure:"checkpoint_backend" validate:"oneof=file sqlite"`
	CheckpointFile    string  `yaml:"checkpoint_file" mapstructure:"checkpoint_file" validate:"required_if=CheckpointBackend file"`
	CheckpointDB      string  `yaml:"checkpoint_db" mapstructure:"checkpoint_db" validate:"required_if=CheckpointBackend sqlite"`
	LockFile          string  `yaml:"lock_file" mapstructure:"lock_file"`
	FetchTimeoutSecs  int     `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs" validate:"gte=1"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gt=0"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	MaxPages          int     `yaml:"max_pages" mapstructure:"max_pages" validate:"gte=0"`
}

// ExtractConfig configures document extraction.
type ExtractConfig struct {
	PdfToTextPath       string  `yaml:"pdftotext_path" mapstructure:"pdftotext_path" validate:"required"`
	TempDir             string  `yaml:"temp_dir" mapstructure:"temp_dir"`
	ContextWindowPt     float64 `yaml:"context_window_pt" mapstructure:"context_window_pt" validate:"gt=0"`
	DocumentTimeoutSecs int     `yaml:"document_timeout_secs" mapstructure:"document_timeout_secs" validate:"gte=1"`
	Workers             int     `yaml:"workers" mapstructure:"workers" validate:"gte=1"`
}

// ClassifierConfig locates the tier model server. An empty endpoint
// disables prediction.
type ClassifierConfig struct {
	Endpoint    string `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gte=1"`
	// BreakerFailures consecutive failures pause the classifier for
	// BreakerCooldownSecs.
	BreakerFailures     int      `yaml:"breaker_failures" mapstructure:"breaker_failures" validate:"gte=0"`
	BreakerCooldownSecs int      `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs" validate:"gte=0"`
	HousingPrograms     []string `yaml:"housing_programs" mapstructure:"housing_programs"`
}

// LHConfig configures the LH lease notice import.
type LHConfig struct {
	BaseURL    string `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`
	ServiceKey string `yaml:"service_key" mapstructure:"service_key" validate:"required"`
	PageSize   int    `yaml:"page_size" mapstructure:"page_size" validate:"gte=1,lte=1000"`
}

// ScheduleConfig configures the in-process crawl scheduler.
type ScheduleConfig struct {
	Spec string `yaml:"spec" mapstructure:"spec" validate:"required"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("crawl.list_url", "https://soco.seoul.go.kr/youth/pgm/home/yohome/bbsListJson.json")
	v.SetDefault("crawl.detail_url", "https://soco.seoul.go.kr/youth/bbs/BMSR00015/view.do")
	v.SetDefault("crawl.board_id", "BMSR00015")
	v.SetDefault("crawl.menu_no", "400008")
	v.SetDefault("crawl.housing_type", "청년안심주택")
	v.SetDefault("crawl.checkpoint_backend", "file")
	v.SetDefault("crawl.checkpoint_file", "last_scraped_no.txt")
	v.SetDefault("crawl.checkpoint_db", "pass_state.db")
	v.SetDefault("crawl.lock_file", "pass_crawl.lock")
	v.SetDefault("crawl.fetch_timeout_secs", 30)
	v.SetDefault("crawl.requests_per_second", 1.0)
	v.SetDefault("crawl.user_agent", "pass-crawler/1.0")
	v.SetDefault("crawl.max_pages", 0)
	v.SetDefault("extract.pdftotext_path", "pdftotext")
	v.SetDefault("extract.temp_dir", "")
	v.SetDefault("extract.context_window_pt", 40.0)
	v.SetDefault("extract.document_timeout_secs", 60)
	v.SetDefault("extract.workers", 4)
	v.SetDefault("classifier.endpoint", "")
	v.SetDefault("classifier.timeout_secs", 10)
	v.SetDefault("classifier.breaker_failures", 3)
	v.SetDefault("classifier.breaker_cooldown_secs", 300)
	v.SetDefault("classifier.housing_programs", []string{})
	v.SetDefault("lh.base_url", "https://apis.data.go.kr/B552555/lhLeaseNoticeInfo1/lhLeaseNoticeInfo1")
	v.SetDefault("lh.service_key", "")
	v.SetDefault("lh.page_size", 50)
	v.SetDefault("schedule.spec", "@every 6h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validation scopes, one per command family.
const (
	ScopeStore    = "store"
	ScopeCrawl    = "crawl"
	ScopeExtract  = "extract"
	ScopeLH       = "lh"
	ScopeSchedule = "schedule"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("mapstructure")
	})
	return v
}

type section struct {
	name  string
	value any
}

// Validate checks the sections the given scope needs.
func (c *Config) Validate(scope string) error {
	store := section{"store", c.Store}
	crawl := section{"crawl", c.Crawl}
	extract := section{"extract", c.Extract}
	classifier := section{"classifier", c.Classifier}

	var sections []section
	switch scope {
	case ScopeStore:
		sections = []section{store}
	case ScopeExtract:
		sections = []section{store, extract, classifier}
	case ScopeCrawl:
		sections = []section{store, crawl, extract, classifier}
	case ScopeSchedule:
		sections = []section{store, crawl, extract, classifier, {"schedule", c.Schedule}}
	case ScopeLH:
		sections = []section{store, {"lh", c.LH}}
	default:
		return eris.Errorf("config: unknown scope %q", scope)
	}
	sections = append(sections, section{"log", c.Log})

	var problems []string
	for _, s := range sections {
		err := validate.Struct(s.value)
		if err == nil {
			continue
		}
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return eris.Wrapf(err, "config: validate %s", s.name)
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s.%s fails %s", s.name, fe.Field(), fe.Tag()))
		}
	}
	if len(problems) > 0 {
		return eris.Errorf("config: invalid %s config: %s", scope, strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
