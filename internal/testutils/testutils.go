package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/nfrund/scriptdesk/internal/config"
)

// ConfigForTests returns a config backed by a private bolt file, the local
// orchestrator and an in-memory file store. Values in the project's
// .env.test, when present, override these defaults.
func ConfigForTests(t *testing.T) *config.Config {
	t.Helper()

	defaults := map[string]string{
		"SERVER_ADDR":            "127.0.0.1:0",
		"SESSION_SECRET":         "test-secret-test-secret-test-sec",
		"STORE_BACKEND":          config.BackendBolt,
		"BOLT_PATH":              filepath.Join(t.TempDir(), "scriptdesk.db"),
		"ORCHESTRATOR":           config.OrchestratorLocal,
		"FILESTORE_ROOT":         "",
		"PUBSUB_TRACING_ENABLED": "false",
	}
	for key, value := range defaults {
		t.Setenv(key, value)
	}

	if root, ok := projectRoot(); ok {
		env, err := godotenv.Read(filepath.Join(root, ".env.test"))
		if err == nil {
			for key, value := range env {
				t.Setenv(key, value)
			}
		}
	}

	return config.FromEnv()
}

// projectRoot walks up from the working directory to the directory holding go.mod.
func projectRoot() (string, bool) {
	path, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if _, err := os.Stat(filepath.Join(path, "go.mod")); err == nil {
			return path, true
		}
		if path == filepath.Dir(path) {
			return "", false
		}
		path = filepath.Dir(path)
	}
}
