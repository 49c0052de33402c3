package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("ZERODEPLOY_TEST_KEY", "override")
	assert.Equal(t, "override", GetEnv("ZERODEPLOY_TEST_KEY", "default"))
	assert.Equal(t, "default", GetEnv("ZERODEPLOY_TEST_KEY_UNSET", "default"))
}

func TestDefaults(t *testing.T) {
	assert.Equal(t, "python3", Config.FallbackInterpreter)
	assert.Equal(t, "deployed-server.py", Config.ScriptFileName)
	assert.Equal(t, "zerodeploy", Config.TempDirPrefix)
}
