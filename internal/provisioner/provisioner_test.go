package provisioner

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDetectFromLockFile(t *testing.T) {
	tests := []struct {
		name     string
		files    []string
		expected PackageManager
	}{
		{"no lock file", nil, NPM},
		{"npm", []string{"package-lock.json"}, NPM},
		{"yarn", []string{"yarn.lock"}, Yarn},
		{"bun", []string{"bun.lockb"}, Bun},
		{"pnpm wins over yarn", []string{"yarn.lock", "pnpm-lock.yaml"}, PNPM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, f := range tt.files {
				os.WriteFile(filepath.Join(dir, f), nil, 0o644)
			}
			if got := Detect(dir).Manager; got != tt.expected {
				t.Errorf("Detect() = %s; want %s", got, tt.expected)
			}
		})
	}
}

func TestToolchainArgs(t *testing.T) {
	npm := Toolchain{Manager: NPM}
	bun := Toolchain{Manager: Bun}

	if got := npm.RunArgs("dev", "--port", "3001"); !reflect.DeepEqual(got, []string{"npm", "run", "dev", "--", "--port", "3001"}) {
		t.Errorf("npm RunArgs = %v", got)
	}
	if got := bun.RunArgs("dev", "--port", "3001"); !reflect.DeepEqual(got, []string{"bun", "run", "dev", "--port", "3001"}) {
		t.Errorf("bun RunArgs = %v", got)
	}
	if got := npm.AddArgs("left-pad"); !reflect.DeepEqual(got, []string{"npm", "install", "left-pad"}) {
		t.Errorf("npm AddArgs = %v", got)
	}
	if got := bun.AddArgs("left-pad"); !reflect.DeepEqual(got, []string{"bun", "add", "left-pad"}) {
		t.Errorf("bun AddArgs = %v", got)
	}
}

func TestNeedsInstall(t *testing.T) {
	dir := t.TempDir()
	tc := Toolchain{Dir: dir}
	if !tc.NeedsInstall() {
		t.Error("expected NeedsInstall without node_modules")
	}
	os.Mkdir(filepath.Join(dir, "node_modules"), 0o755)
	if tc.NeedsInstall() {
		t.Error("expected no install once node_modules exists")
	}
}

func TestCheckMissingManager(t *testing.T) {
	tc := Toolchain{Manager: PNPM, Installed: false}
	if err := tc.Check(); err == nil {
		t.Error("expected an error for a missing manager")
	}
}
