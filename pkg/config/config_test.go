package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	Level string `yaml:"level"`
}

func (s *sample) Validate() error {
	if s.Port == 0 {
		return errors.New("port is required")
	}
	return nil
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("CFG_SET", "value")
	t.Setenv("CFG_EMPTY", "")

	tests := map[string]string{
		"$CFG_SET":               "value",
		"${CFG_SET}":             "value",
		"${CFG_SET:-fallback}":   "value",
		"${CFG_EMPTY:-fallback}": "fallback",
		"${CFG_MISSING:-a:b}":    "a:b",
		"${CFG_MISSING}":         "",
		"plain text":             "plain text",
		"x-${CFG_MISSING:-}-y":   "x--y",
	}
	for in, want := range tests {
		if got := ExpandEnv(in); got != want {
			t.Errorf("ExpandEnv(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoad_KeepsDefaults(t *testing.T) {
	t.Setenv("CFG_PORT", "9000")
	path := writeConfig(t, "port: ${CFG_PORT}\nlevel: ${CFG_LEVEL:-info}\n")

	s := sample{Name: "default"}
	if err := Load(path, &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "default" || s.Port != 9000 || s.Level != "info" {
		t.Errorf("loaded = %+v", s)
	}
}

func TestLoad_ValidationError(t *testing.T) {
	path := writeConfig(t, "name: x\n")
	err := Load(path, &sample{})
	if err == nil || !strings.Contains(err.Error(), "port is required") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadIfExists(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	if err := LoadIfExists(missing, &sample{Port: 1}); err != nil {
		t.Errorf("missing file with valid defaults: %v", err)
	}
	if err := LoadIfExists(missing, &sample{}); err == nil {
		t.Error("missing file should still validate defaults")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	def := writeConfig(t, "port: 1\n")
	var s sample
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "nope.yaml"), def, &s); err != nil || s.Port != 1 {
		t.Errorf("fallback: %+v, %v", s, err)
	}
}
