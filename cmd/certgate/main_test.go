package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadEnv_FileAndFlags(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("CG_TEST_FROM_FILE=file\nCG_TEST_PRESET=file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CG_TEST_PRESET", "process")
	t.Setenv("CG_LOG_LEVEL", "info")
	t.Cleanup(func() {
		_ = os.Unsetenv("CG_TEST_FROM_FILE")
		viper.Reset()
	})
	viper.Set("log-level", "debug")

	if err := loadEnv(envFile); err != nil {
		t.Fatalf("loadEnv: %v", err)
	}
	if got := os.Getenv("CG_TEST_FROM_FILE"); got != "file" {
		t.Errorf("CG_TEST_FROM_FILE = %q, ожидается значение из файла", got)
	}
	if got := os.Getenv("CG_TEST_PRESET"); got != "process" {
		t.Errorf("CG_TEST_PRESET = %q, переменная процесса не должна перезаписываться", got)
	}
	if got := os.Getenv("CG_LOG_LEVEL"); got != "debug" {
		t.Errorf("CG_LOG_LEVEL = %q, флаг должен иметь приоритет", got)
	}
}

func TestLoadEnv_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)
	if err := loadEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("отсутствующий .env не должен быть ошибкой: %v", err)
	}
}

func TestKeysCreate_InvalidMinutes(t *testing.T) {
	cmd := keysCreateCmd()
	cmd.SetArgs([]string{"abc"})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	if err := cmd.Execute(); err == nil {
		t.Error("ожидалась ошибка для нечислового срока")
	}
}
