package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func buildBinary(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("standalone binary test is unix-focused")
	}
	if testing.Short() {
		t.Skip("builds the binary")
	}

	goModPathBytes, err := exec.Command("go", "env", "GOMOD").Output()
	if err != nil {
		t.Fatalf("go env GOMOD: %v", err)
	}
	goModPath := strings.TrimSpace(string(goModPathBytes))
	if goModPath == "" {
		t.Fatalf("go env GOMOD returned empty")
	}

	binaryPath := filepath.Join(t.TempDir(), "faultlens")
	build := exec.Command("go", "build", "-o", binaryPath, "./cmd/faultlens")
	build.Dir = filepath.Dir(goModPath)
	build.Env = os.Environ()
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("go build: %v\n%s", err, string(out))
	}
	return binaryPath
}

func isolatedEnv(t *testing.T) []string {
	home := t.TempDir()
	env := []string{
		"HOME=" + home,
		"XDG_CONFIG_HOME=" + filepath.Join(home, "config"),
		"XDG_DATA_HOME=" + filepath.Join(home, "data"),
		"FAULTLENS_DB_PATH=:memory:",
		"PATH=" + os.Getenv("PATH"),
	}
	return env
}

func TestStandaloneBinaryVersionAndHelpWorkOutsideRepo(t *testing.T) {
	binary := buildBinary(t)
	outside := t.TempDir()

	for _, args := range [][]string{{"version"}, {"--help"}} {
		command := exec.Command(binary, args...)
		command.Dir = outside
		command.Env = isolatedEnv(t)
		if out, err := command.CombinedOutput(); err != nil {
			t.Fatalf("%v failed: %v\n%s", args, err, string(out))
		}
	}
}

func TestAnalyzeLogWithoutProviderDegrades(t *testing.T) {
	binary := buildBinary(t)
	dir := t.TempDir()

	logPath := filepath.Join(dir, "build.log")
	if err := os.WriteFile(logPath, []byte("starting\n[error] connection refused\n"), 0o600); err != nil {
		t.Fatalf("write log: %v", err)
	}

	command := exec.Command(binary, "analyze", logPath)
	command.Dir = dir
	command.Env = isolatedEnv(t)
	out, err := command.Output()
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	text := string(out)
	if !strings.Contains(text, ". EXECUTION ANALYSIS .") {
		t.Fatalf("expected execution banner, got:\n%s", text)
	}
	if strings.Contains(text, ". Success .") {
		t.Fatalf("log analysis must not report success:\n%s", text)
	}
}
