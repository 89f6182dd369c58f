package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
oauth:
  client_id: file-client
export:
  submit_url: https://export.example/submit
  base_url: https://export.example
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8765 {
		t.Errorf("server.port = %d", cfg.Server.Port)
	}
	if cfg.OAuth.RedirectURI != "http://localhost:8765/oauth/callback" {
		t.Errorf("oauth.redirect_uri = %q", cfg.OAuth.RedirectURI)
	}
	if cfg.OAuth.Timeout != 5*time.Minute || cfg.OAuth.FallbackGrace != 500*time.Millisecond {
		t.Errorf("oauth timings = %s / %s", cfg.OAuth.Timeout, cfg.OAuth.FallbackGrace)
	}
	if cfg.Export.PollInterval != 5*time.Second {
		t.Errorf("export.poll_interval = %s", cfg.Export.PollInterval)
	}
	if cfg.Workflow.MaxRetries != 3 || cfg.Workflow.BackoffUnit != time.Second {
		t.Errorf("workflow = %+v", cfg.Workflow)
	}
	if cfg.Publish.Target != "hub" || cfg.Publish.License != "cc-by-4.0" {
		t.Errorf("publish = %+v", cfg.Publish)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("database.driver = %q", cfg.Database.Driver)
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
workflow:
  max_retries: 5
  backoff_unit: 250ms
publish:
  target: s3
`)
	t.Setenv("OAUTH_CLIENT_ID", "env-client")
	t.Setenv("S3_BUCKET", "exports")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OAuth.ClientID != "env-client" {
		t.Errorf("client_id = %q, want env override", cfg.OAuth.ClientID)
	}
	if cfg.Workflow.MaxRetries != 5 || cfg.Workflow.BackoffUnit != 250*time.Millisecond {
		t.Errorf("workflow = %+v", cfg.Workflow)
	}
	if cfg.Publish.Target != "s3" || cfg.Storage.Bucket != "exports" {
		t.Errorf("publish target %q bucket %q", cfg.Publish.Target, cfg.Storage.Bucket)
	}
}

func TestLoad_ServeOnlyNeedsNoExportSettings(t *testing.T) {
	for _, key := range []string{"OAUTH_CLIENT_ID", "EXPORT_SUBMIT_URL", "EXPORT_BASE_URL"} {
		t.Setenv(key, "")
	}
	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	if err != nil {
		t.Fatalf("Load without export settings: %v", err)
	}
	if err := cfg.ValidateExport(); err == nil {
		t.Error("ValidateExport must reject a config without oauth and export settings")
	}
}

func TestLoad_LogSettings(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, minimalConfig+`
log:
  file: /tmp/hubexport.log
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log level/format = %q/%q", cfg.Log.Level, cfg.Log.Format)
	}
	if cfg.Log.File != "/tmp/hubexport.log" || cfg.Log.MaxSize != 100 || !cfg.Log.Compress {
		t.Errorf("log file settings = %+v", cfg.Log)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			OAuth:    OAuthConfig{ClientID: "c"},
			Export:   ExportConfig{SubmitURL: "s", BaseURL: "b"},
			Workflow: WorkflowConfig{MaxRetries: 3},
			Publish:  PublishConfig{Target: "hub"},
		}
	}

	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   string
		exportErr string
	}{
		{"valid", func(c *Config) {}, "", ""},
		{"no client id", func(c *Config) { c.OAuth.ClientID = "" }, "", "oauth.client_id"},
		{"no submit url", func(c *Config) { c.Export.SubmitURL = "" }, "", "export.submit_url"},
		{"no base url", func(c *Config) { c.Export.BaseURL = "" }, "", "export.base_url"},
		{"zero retries", func(c *Config) { c.Workflow.MaxRetries = 0 }, "max_retries", ""},
		{"unknown target", func(c *Config) { c.Publish.Target = "ftp" }, "publish.target", ""},
	}

	check := func(t *testing.T, label string, err error, want string) {
		t.Helper()
		if want == "" {
			if err != nil {
				t.Errorf("%s() = %v", label, err)
			}
			return
		}
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Errorf("%s() = %v, want error mentioning %q", label, err, want)
		}
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			check(t, "Validate", cfg.Validate(), tt.wantErr)
			check(t, "ValidateExport", cfg.ValidateExport(), tt.exportErr)
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", DBName: "hubexport", SSLMode: "disable"}
	if got := pg.DSN(); !strings.Contains(got, "host=db") || !strings.Contains(got, "dbname=hubexport") {
		t.Errorf("postgres DSN = %q", got)
	}

	lite := DatabaseConfig{Driver: "sqlite", Path: "./data/x.db"}
	if got := lite.DSN(); got != "./data/x.db" {
		t.Errorf("sqlite DSN = %q", got)
	}
}
