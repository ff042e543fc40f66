package config

import (
	"os"
	"path/filepath"
	"testing"
)

type fileExistsStruct struct {
	Path string `validate:"file_exists"`
}

type hostStruct struct {
	Host string `validate:"host"`
}

func TestValidateFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "scenes.yaml")
	if err := os.WriteFile(tmpFile, []byte("scenes: {}"), 0o644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}

	tests := []struct {
		name  string
		path  string
		valid bool
	}{
		{"empty path", "", true},
		{"existing file", tmpFile, true},
		{"missing file", filepath.Join(tmpDir, "missing.yaml"), false},
		{"directory", tmpDir, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(fileExistsStruct{Path: tt.path})
			if tt.valid != (err == nil) {
				t.Errorf("validate(%q) error = %v, want valid=%v", tt.path, err, tt.valid)
			}
		})
	}
}

func TestValidateHost(t *testing.T) {
	tests := []struct {
		host  string
		valid bool
	}{
		{"", true},
		{"localhost", true},
		{"0.0.0.0", true},
		{"recall.internal", true},
		{"::1", true},
		{"[2001:db8::1]", true},
		{"my_host", true},
		{"bad host", false},
		{"bad\thost", false},
		{"host/path", false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			err := validate.Struct(hostStruct{Host: tt.host})
			if tt.valid != (err == nil) {
				t.Errorf("validate(%q) error = %v, want valid=%v", tt.host, err, tt.valid)
			}
		})
	}
}

func TestStructLevelValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name: "badger without path",
			mutate: func(c *Config) {
				c.Storage.Type = "badger"
				c.Storage.Badger.Path = ""
			},
			field: "Config.Storage.Badger.Path",
		},
		{
			name: "relay without redis address",
			mutate: func(c *Config) {
				c.Relay.Enabled = true
				c.Relay.Redis.Address = " "
			},
			field: "Config.Relay.Redis.Address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := ValidateWithDetails(cfg)
			details, ok := err.(ValidationErrors)
			if !ok {
				t.Fatalf("expected ValidationErrors, got %T: %v", err, err)
			}
			found := false
			for _, d := range details {
				if d.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.field, details)
			}
		})
	}

	cfg := DefaultConfig()
	cfg.Storage.Type = "badger"
	cfg.Storage.Badger.Path = ""
	cfg.Storage.Badger.InMemory = true
	if err := ValidateWithDetails(cfg); err != nil {
		t.Errorf("in-memory badger should not need a path: %v", err)
	}
}
