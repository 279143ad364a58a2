package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "BMSR00015", cfg.Crawl.BoardID)
	assert.Equal(t, "400008", cfg.Crawl.MenuNo)
	assert.Equal(t, "file", cfg.Crawl.CheckpointBackend)
	assert.Equal(t, "last_scraped_no.txt", cfg.Crawl.CheckpointFile)
	assert.Equal(t, 30, cfg.Crawl.FetchTimeoutSecs)
	assert.InDelta(t, 1.0, cfg.Crawl.RequestsPerSecond, 0.001)
	assert.Zero(t, cfg.Crawl.MaxPages)
	assert.Equal(t, "pdftotext", cfg.Extract.PdfToTextPath)
	assert.InDelta(t, 40.0, cfg.Extract.ContextWindowPt, 0.001)
	assert.Equal(t, 4, cfg.Extract.Workers)
	assert.Empty(t, cfg.Classifier.Endpoint)
	assert.Equal(t, 50, cfg.LH.PageSize)
	assert.Equal(t, "@every 6h", cfg.Schedule.Spec)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  database_url: postgres://localhost/pass
crawl:
  checkpoint_backend: sqlite
  max_pages: 3
classifier:
  endpoint: http://localhost:8000/predict_proba
  housing_programs: [행복주택, 국민임대]
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/pass", cfg.Store.DatabaseURL)
	assert.Equal(t, "sqlite", cfg.Crawl.CheckpointBackend)
	assert.Equal(t, 3, cfg.Crawl.MaxPages)
	assert.Equal(t, []string{"행복주택", "국민임대"}, cfg.Classifier.HousingPrograms)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, "pass_state.db", cfg.Crawl.CheckpointDB)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  database_url: postgres://localhost/file
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("PASS_STORE_DATABASE_URL", "postgres://localhost/env")
	t.Setenv("PASS_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/env", cfg.Store.DatabaseURL)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PASS_LH_SERVICE_KEY=from-dotenv\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("PASS_LH_SERVICE_KEY") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.LH.ServiceKey)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with every section populated.
func validDefaults() *Config {
	return &Config{
		Store: StoreConfig{DatabaseURL: "postgres://localhost/pass", MaxConns: 10},
		Crawl: CrawlConfig{
			ListURL:           "https://soco.seoul.go.kr/list.json",
			DetailURL:         "https://soco.seoul.go.kr/view.do",
			BoardID:           "BMSR00015",
			MenuNo:            "400008",
			CheckpointBackend: "file",
			CheckpointFile:    "last_scraped_no.txt",
			FetchTimeoutSecs:  30,
			RequestsPerSecond: 1,
		},
		Extract: ExtractConfig{
			PdfToTextPath:       "pdftotext",
			ContextWindowPt:     40,
			DocumentTimeoutSecs: 60,
			Workers:             4,
		},
		Classifier: ClassifierConfig{TimeoutSecs: 10},
		LH: LHConfig{
			BaseURL:    "https://apis.data.go.kr/B552555/lhLeaseNoticeInfo1/lhLeaseNoticeInfo1",
			ServiceKey: "key",
			PageSize:   50,
		},
		Schedule: ScheduleConfig{Spec: "@every 6h"},
		Log:      LogConfig{Level: "info", Format: "json"},
	}
}

func TestValidate_AllScopesValid(t *testing.T) {
	cfg := validDefaults()
	for _, scope := range []string{ScopeStore, ScopeCrawl, ScopeExtract, ScopeLH, ScopeSchedule} {
		t.Run(scope, func(t *testing.T) {
			assert.NoError(t, cfg.Validate(scope))
		})
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		scope  string
		mutate func(*Config)
		want   string
	}{
		{"missing database url", ScopeStore, func(c *Config) { c.Store.DatabaseURL = "" }, "store.database_url fails required"},
		{"bad list url", ScopeCrawl, func(c *Config) { c.Crawl.ListURL = "not a url" }, "crawl.list_url fails url"},
		{"unknown backend", ScopeCrawl, func(c *Config) { c.Crawl.CheckpointBackend = "redis" }, "crawl.checkpoint_backend fails oneof"},
		{"sqlite without path", ScopeCrawl, func(c *Config) {
			c.Crawl.CheckpointBackend = "sqlite"
			c.Crawl.CheckpointDB = ""
		}, "crawl.checkpoint_db fails required_if"},
		{"zero rate", ScopeCrawl, func(c *Config) { c.Crawl.RequestsPerSecond = 0 }, "crawl.requests_per_second fails gt"},
		{"no workers", ScopeExtract, func(c *Config) { c.Extract.Workers = 0 }, "extract.workers fails gte"},
		{"bad classifier endpoint", ScopeExtract, func(c *Config) { c.Classifier.Endpoint = "::" }, "classifier.endpoint fails url"},
		{"missing service key", ScopeLH, func(c *Config) { c.LH.ServiceKey = "" }, "lh.service_key fails required"},
		{"page size too large", ScopeLH, func(c *Config) { c.LH.PageSize = 5000 }, "lh.page_size fails lte"},
		{"empty schedule", ScopeSchedule, func(c *Config) { c.Schedule.Spec = "" }, "schedule.spec fails required"},
		{"bad log level", ScopeStore, func(c *Config) { c.Log.Level = "verbose" }, "log.level fails oneof"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate(tt.scope)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_ScopeIgnoresOtherSections(t *testing.T) {
	cfg := validDefaults()
	cfg.LH.ServiceKey = ""
	assert.NoError(t, cfg.Validate(ScopeCrawl))
}

func TestValidate_UnknownScope(t *testing.T) {
	err := validDefaults().Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scope")
}
