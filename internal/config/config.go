package config

import (
	"os"

	"zerodeploy/internal/logger"

	"github.com/joho/godotenv"
)

func init() {
	envFiles := []string{
		".env",
	}

	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err != nil {
			if !os.IsNotExist(err) {
				logger.Warn("Error loading %s: %v", envFile, err)
			}
		}
	}
}

func GetEnv(key string, defaultValue string) string {
	value := os.Getenv(key)

	if value == "" {
		return defaultValue
	}

	return value
}

type Configuration struct {
	// DefaultInterpreter, when set, is used as the remote interpreter for
	// every deployment that does not carry an explicit override.
	DefaultInterpreter string

	// PythonVersion seeds interpreter probing, e.g. "3.11" probes
	// python3.11, then python3, then the fallback.
	PythonVersion string

	// FallbackInterpreter is the last probe candidate.
	FallbackInterpreter string

	// ScriptFileName is the name the rendered bootstrap script is staged
	// under inside the remote temp directory.
	ScriptFileName string

	// TempDirPrefix names remote temp directories for easy identification.
	TempDirPrefix string
}

var Config = &Configuration{
	DefaultInterpreter:  GetEnv("ZERODEPLOY_PYTHON", ""),
	PythonVersion:       GetEnv("ZERODEPLOY_PYTHON_VERSION", ""),
	FallbackInterpreter: GetEnv("ZERODEPLOY_FALLBACK_INTERPRETER", "python3"),
	ScriptFileName:      GetEnv("ZERODEPLOY_SCRIPT_NAME", "deployed-server.py"),
	TempDirPrefix:       GetEnv("ZERODEPLOY_TMP_PREFIX", "zerodeploy"),
}
