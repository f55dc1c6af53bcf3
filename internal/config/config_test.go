package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfigFile(t, `
listen: ":9090"
connections:
  - name: prod
    host: psa.example.com
    username: api@user
    secret: s3cret
    integration_code: INTEG
    insecure: true
`)

	c := &Config{}
	if err := c.loadFile(path); err != nil {
		t.Fatalf("loadFile returned error: %v", err)
	}
	if c.Listen != ":9090" {
		t.Errorf("Listen = %q", c.Listen)
	}
	if len(c.Connections) != 1 {
		t.Fatalf("Connections = %v", c.Connections)
	}
	conn := c.Connections[0]
	if conn.Name != "prod" || conn.Host != "psa.example.com" || !conn.Insecure {
		t.Errorf("connection = %+v", conn)
	}
	if conn.IntegrationCode != "INTEG" {
		t.Errorf("IntegrationCode = %q", conn.IntegrationCode)
	}
}

func TestLoadFile_CLIValueWins(t *testing.T) {
	path := writeConfigFile(t, "listen: \":9090\"\n")

	c := &Config{Listen: ":7070"}
	if err := c.loadFile(path); err != nil {
		t.Fatalf("loadFile returned error: %v", err)
	}
	if c.Listen != ":7070" {
		t.Errorf("Listen = %q, want the flag value kept", c.Listen)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	c := &Config{}
	if err := c.loadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("loadFile on missing file returned nil")
	}
	path := writeConfigFile(t, "listen: [broken")
	if err := c.loadFile(path); err == nil {
		t.Error("loadFile on invalid YAML returned nil")
	}
}
