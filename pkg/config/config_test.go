package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("default server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("default server.read_timeout = %v, want 30s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 300*time.Second {
		t.Errorf("default server.write_timeout = %v, want 300s", cfg.Server.WriteTimeout)
	}
	if cfg.Kiro.Region != "us-east-1" {
		t.Errorf("default kiro.region = %q, want \"us-east-1\"", cfg.Kiro.Region)
	}
	if cfg.Kiro.RequestTimeout != 30*time.Second {
		t.Errorf("default kiro.request_timeout = %v, want 30s", cfg.Kiro.RequestTimeout)
	}
	if cfg.Kiro.RetryBackoffBase != time.Second {
		t.Errorf("default kiro.retry_backoff_base = %v, want 1s", cfg.Kiro.RetryBackoffBase)
	}
	if cfg.Auth.Type != "none" {
		t.Errorf("default auth.type = %q, want \"none\"", cfg.Auth.Type)
	}
	if !cfg.Observability.Metrics.Enabled {
		t.Error("default observability.metrics.enabled = false, want true")
	}
	if cfg.Observability.Metrics.Path != "/metrics" {
		t.Errorf("default observability.metrics.path = %q, want \"/metrics\"", cfg.Observability.Metrics.Path)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
server:
  port: 9090
  read_timeout: 60s
  write_timeout: 180s
kiro:
  region: eu-west-1
  credential_file: /var/lib/kiro/credentials.json
  profile_arn: arn:aws:codewhisperer:eu-west-1:123:profile/test
  request_timeout: 45s
  retry_backoff_base: 500ms
auth:
  type: apikey
  api_keys:
    - key: sk-key-1
      subject: alice
    - key: sk-key-2
      subject: bob
observability:
  metrics:
    enabled: false
    path: /internal/metrics
`

	tmpFile := writeTemp(t, "config-*.yaml", yamlContent)

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Server
	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 60*time.Second {
		t.Errorf("server.read_timeout = %v, want 60s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 180*time.Second {
		t.Errorf("server.write_timeout = %v, want 180s", cfg.Server.WriteTimeout)
	}

	// Kiro
	if cfg.Kiro.Region != "eu-west-1" {
		t.Errorf("kiro.region = %q, want \"eu-west-1\"", cfg.Kiro.Region)
	}
	if cfg.Kiro.CredentialFile != "/var/lib/kiro/credentials.json" {
		t.Errorf("kiro.credential_file = %q", cfg.Kiro.CredentialFile)
	}
	if cfg.Kiro.ProfileArn != "arn:aws:codewhisperer:eu-west-1:123:profile/test" {
		t.Errorf("kiro.profile_arn = %q", cfg.Kiro.ProfileArn)
	}
	if cfg.Kiro.RequestTimeout != 45*time.Second {
		t.Errorf("kiro.request_timeout = %v, want 45s", cfg.Kiro.RequestTimeout)
	}
	if cfg.Kiro.RetryBackoffBase != 500*time.Millisecond {
		t.Errorf("kiro.retry_backoff_base = %v, want 500ms", cfg.Kiro.RetryBackoffBase)
	}

	// Auth
	if cfg.Auth.Type != "apikey" {
		t.Errorf("auth.type = %q, want \"apikey\"", cfg.Auth.Type)
	}
	if len(cfg.Auth.APIKeys) != 2 {
		t.Fatalf("auth.api_keys length = %d, want 2", len(cfg.Auth.APIKeys))
	}
	if cfg.Auth.APIKeys[0].Key != "sk-key-1" {
		t.Errorf("auth.api_keys[0].key = %q, want \"sk-key-1\"", cfg.Auth.APIKeys[0].Key)
	}
	if cfg.Auth.APIKeys[0].Subject != "alice" {
		t.Errorf("auth.api_keys[0].subject = %q, want \"alice\"", cfg.Auth.APIKeys[0].Subject)
	}

	// Observability
	if cfg.Observability.Metrics.Enabled {
		t.Error("observability.metrics.enabled = true, want false")
	}
	if cfg.Observability.Metrics.Path != "/internal/metrics" {
		t.Errorf("observability.metrics.path = %q, want \"/internal/metrics\"", cfg.Observability.Metrics.Path)
	}
}

func TestEnvOverride(t *testing.T) {
	yamlContent := `
kiro:
  region: us-west-2
  credential_file: /from/yaml/credentials.json
server:
  port: 9090
`
	tmpFile := writeTemp(t, "config-*.yaml", yamlContent)

	// Set env vars that should override the YAML values.
	t.Setenv("KIRO_REGION", "ap-southeast-2")
	t.Setenv("KIRO_CREDENTIAL_FILE", "/from/env/credentials.json")
	t.Setenv("KIRO_PORT", "7070")
	t.Setenv("KIRO_PROFILE_ARN", "arn:from-env")

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Kiro.Region != "ap-southeast-2" {
		t.Errorf("kiro.region = %q, want env override", cfg.Kiro.Region)
	}
	if cfg.Kiro.CredentialFile != "/from/env/credentials.json" {
		t.Errorf("kiro.credential_file = %q, want env override", cfg.Kiro.CredentialFile)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("server.port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Kiro.ProfileArn != "arn:from-env" {
		t.Errorf("kiro.profile_arn = %q, want env override", cfg.Kiro.ProfileArn)
	}
}

func TestEnvOnlyConfig(t *testing.T) {
	// No config file, only env vars.
	t.Setenv("KIRO_CREDENTIAL_FILE", "/etc/kiro/credentials.json")
	t.Setenv("KIRO_PORT", "3000")
	t.Setenv("KIRO_AUTH_TYPE", "apikey")
	t.Setenv("KIRO_API_KEYS", `[{"key":"sk-env","subject":"env-user"}]`)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Kiro.CredentialFile != "/etc/kiro/credentials.json" {
		t.Errorf("kiro.credential_file = %q, want env value", cfg.Kiro.CredentialFile)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("server.port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Auth.Type != "apikey" {
		t.Errorf("auth.type = %q, want \"apikey\"", cfg.Auth.Type)
	}
	if len(cfg.Auth.APIKeys) != 1 {
		t.Fatalf("auth.api_keys length = %d, want 1", len(cfg.Auth.APIKeys))
	}
	if cfg.Auth.APIKeys[0].Key != "sk-env" {
		t.Errorf("auth.api_keys[0].key = %q, want \"sk-env\"", cfg.Auth.APIKeys[0].Key)
	}
	if cfg.Auth.APIKeys[0].Subject != "env-user" {
		t.Errorf("auth.api_keys[0].subject = %q, want \"env-user\"", cfg.Auth.APIKeys[0].Subject)
	}
}

func TestFileReferenceForAPIKeys(t *testing.T) {
	keyFile := writeTemp(t, "apikey-*.txt", "  sk-key-from-file  \n")

	yamlContent := `
kiro:
  credential_file: /etc/kiro/credentials.json
auth:
  type: apikey
  api_keys:
    - key_file: ` + keyFile + `
      subject: file-user
`
	tmpFile := writeTemp(t, "config-*.yaml", yamlContent)

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if len(cfg.Auth.APIKeys) != 1 {
		t.Fatalf("auth.api_keys length = %d, want 1", len(cfg.Auth.APIKeys))
	}
	if cfg.Auth.APIKeys[0].Key != "sk-key-from-file" {
		t.Errorf("auth.api_keys[0].key = %q, want \"sk-key-from-file\"", cfg.Auth.APIKeys[0].Key)
	}
}

func TestFileReferenceDoesNotOverrideExplicitValue(t *testing.T) {
	keyFile := writeTemp(t, "apikey-*.txt", "sk-from-file")

	yamlContent := `
kiro:
  credential_file: /etc/kiro/credentials.json
auth:
  type: apikey
  api_keys:
    - key: sk-explicit
      key_file: ` + keyFile + `
`
	tmpFile := writeTemp(t, "config-*.yaml", yamlContent)

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// When both key and key_file are set, the explicit value takes precedence.
	if cfg.Auth.APIKeys[0].Key != "sk-explicit" {
		t.Errorf("auth.api_keys[0].key = %q, want \"sk-explicit\"", cfg.Auth.APIKeys[0].Key)
	}
}

func TestFileDiscovery(t *testing.T) {
	// Explicit path.
	tmpFile := writeTemp(t, "config-*.yaml", `
kiro:
  credential_file: /explicit/credentials.json
`)

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load(explicit) error: %v", err)
	}
	if cfg.Kiro.CredentialFile != "/explicit/credentials.json" {
		t.Errorf("explicit path: credential_file = %q", cfg.Kiro.CredentialFile)
	}

	// KIRO_CONFIG env var.
	envFile := writeTemp(t, "envconfig-*.yaml", `
kiro:
  credential_file: /env-config/credentials.json
`)
	t.Setenv("KIRO_CONFIG", envFile)

	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load(KIRO_CONFIG) error: %v", err)
	}
	if cfg.Kiro.CredentialFile != "/env-config/credentials.json" {
		t.Errorf("KIRO_CONFIG: credential_file = %q", cfg.Kiro.CredentialFile)
	}

	// No file at all, defaults plus env overrides.
	t.Setenv("KIRO_CONFIG", "")
	t.Setenv("KIRO_CREDENTIAL_FILE", "/defaults-only/credentials.json")

	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load(no file) error: %v", err)
	}
	if cfg.Kiro.CredentialFile != "/defaults-only/credentials.json" {
		t.Errorf("no file: credential_file = %q, want env override", cfg.Kiro.CredentialFile)
	}
}

func TestYAMLDefaultsMerge(t *testing.T) {
	// A minimal YAML that only sets the credential file.
	// All other fields should retain defaults.
	yamlContent := `
kiro:
  credential_file: /etc/kiro/credentials.json
`
	tmpFile := writeTemp(t, "config-*.yaml", yamlContent)

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want default 8080", cfg.Server.Port)
	}
	if cfg.Kiro.Region != "us-east-1" {
		t.Errorf("kiro.region = %q, want default \"us-east-1\"", cfg.Kiro.Region)
	}
	if cfg.Kiro.RetryBackoffBase != time.Second {
		t.Errorf("kiro.retry_backoff_base = %v, want default 1s", cfg.Kiro.RetryBackoffBase)
	}
	if cfg.Auth.Type != "none" {
		t.Errorf("auth.type = %q, want default \"none\"", cfg.Auth.Type)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:    "missing credential_file",
			modify:  func(c *Config) {},
			wantErr: "kiro.credential_file is required",
		},
		{
			name: "missing region",
			modify: func(c *Config) {
				c.Kiro.CredentialFile = "/etc/kiro/credentials.json"
				c.Kiro.Region = ""
			},
			wantErr: "kiro.region is required",
		},
		{
			name: "invalid port",
			modify: func(c *Config) {
				c.Kiro.CredentialFile = "/etc/kiro/credentials.json"
				c.Server.Port = 0
			},
			wantErr: "server.port must be > 0",
		},
		{
			name: "invalid auth type",
			modify: func(c *Config) {
				c.Kiro.CredentialFile = "/etc/kiro/credentials.json"
				c.Auth.Type = "oauth2"
			},
			wantErr: "auth.type must be",
		},
		{
			name: "apikey auth without keys",
			modify: func(c *Config) {
				c.Kiro.CredentialFile = "/etc/kiro/credentials.json"
				c.Auth.Type = "apikey"
			},
			wantErr: "auth.api_keys must not be empty",
		},
		{
			name: "valid config",
			modify: func(c *Config) {
				c.Kiro.CredentialFile = "/etc/kiro/credentials.json"
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}

			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

// writeTemp creates a temporary file with the given content and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, pattern, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), pattern)
	if err != nil {
		t.Fatalf("creating temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		t.Fatalf("writing temp file: %v", err)
	}
	f.Close()
	return f.Name()
}
