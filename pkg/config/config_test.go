package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

func (s *sample) Validate() error {
	if s.Port == 0 {
		return errors.New("port is required")
	}
	return nil
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_ExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("NBWEB_TEST_NAME", "journal")
	p := writeConfig(t, "name: ${NBWEB_TEST_NAME}\n")

	s := sample{Port: 5050}
	if err := Load(p, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "journal" || s.Port != 5050 {
		t.Errorf("loaded %+v", s)
	}
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	p := writeConfig(t, "name: x\nprot: 1\n")
	s := sample{Port: 1}
	if err := Load(p, &s); err == nil {
		t.Fatal("expected unknown key error")
	}
}

func TestLoad_Validates(t *testing.T) {
	p := writeConfig(t, "port: 0\n")
	s := sample{}
	err := Load(p, &s)
	if err == nil || !strings.Contains(err.Error(), "port is required") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	p := writeConfig(t, "")
	s := sample{Port: 1}
	if err := Load(p, &s); err != nil {
		t.Fatalf("empty file should keep defaults: %v", err)
	}
}

func TestLoadOptional_MissingFile(t *testing.T) {
	s := sample{Port: 1}
	read, err := LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"), &s)
	if err != nil || read {
		t.Fatalf("LoadOptional = %v, %v", read, err)
	}

	s = sample{}
	if _, err := LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"), &s); err == nil {
		t.Fatal("defaults should still be validated")
	}
}
