package app

import (
	"os"
	"strconv"
)

// TestModeEnv marks processes started under go test. Entrypoints skip network
// side effects while it is set.
const TestModeEnv = "PAWHUB_TEST_MODE"

// InTestMode reports whether PAWHUB_TEST_MODE holds a true value.
func InTestMode() bool {
	on, _ := strconv.ParseBool(os.Getenv(TestModeEnv))
	return on
}
