package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvFile(t *testing.T) {
	if err := loadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("缺失的 .env 不应报错: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PHARMAFORECAST_TEST_ONLY=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("写入 .env 失败: %v", err)
	}
	t.Setenv("PHARMAFORECAST_TEST_ONLY", "")
	os.Unsetenv("PHARMAFORECAST_TEST_ONLY")

	if err := loadEnvFile(path); err != nil {
		t.Fatalf("加载 .env 失败: %v", err)
	}
	if got := os.Getenv("PHARMAFORECAST_TEST_ONLY"); got != "from-dotenv" {
		t.Fatalf("期望 from-dotenv, 实际 %q", got)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"run", "forecast", "export", "synth", "retrain", "runs", "catalog", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("命令 %s 未注册", name)
		}
	}
}
