package internal

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func editorHash(t *testing.T) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte("editor-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return string(h)
}

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
	if cfg.API().Enabled {
		t.Error("API auth should be disabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	hash := editorHash(t)
	for _, cfg := range []AuthConfig{
		{Mode: "token", ReaderToken: "reader"},
		{Mode: "token", EditorTokenHash: hash},
		{Mode: "token", ReaderToken: "reader", EditorTokenHash: hash},
	} {
		if err := cfg.Validate(); err != nil {
			t.Fatalf("%+v should pass: %v", cfg, err)
		}
		if !cfg.AuthEnabled() {
			t.Error("token mode should be enabled")
		}
		a := cfg.API()
		if !a.Enabled || a.ReaderToken != cfg.ReaderToken || a.EditorTokenHash != cfg.EditorTokenHash {
			t.Errorf("API() = %+v", a)
		}
	}
}

func TestAuthConfig_TokenModeWithoutTokens(t *testing.T) {
	cfg := AuthConfig{Mode: "token"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode without tokens should fail")
	}
	if !strings.Contains(err.Error(), "no reader token") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_RejectsPlainEditorToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", EditorTokenHash: "plain-secret"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("a plain editor token should be rejected")
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", ReaderToken: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_DefaultsValidate(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	found := false
	for _, ex := range cfg.Notebook.Exclusions {
		if ex == "_*" {
			found = true
		}
	}
	if !found {
		t.Errorf("default exclusions not appended: %v", cfg.Notebook.Exclusions)
	}
	if got := cfg.App.HTTP.Address(); got != ":5050" {
		t.Errorf("address = %q", got)
	}
}

func TestFullConfig_NestedErrors(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}

	cfg = NewDefaultConfig()
	cfg.Notebook.RefType = "slug"
	err := cfg.Validate()
	if err == nil || !strings.HasPrefix(err.Error(), "notebook:") {
		t.Fatalf("expected notebook error, got %v", err)
	}

	cfg = NewDefaultConfig()
	cfg.SQLite.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty sqlite path should fail")
	}
}
