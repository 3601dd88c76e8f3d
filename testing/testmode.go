// Package testing switches the process into test mode when imported for side
// effects from a _test.go file.
package testing

import "os"

func init() {
	if os.Getenv("PAWHUB_TEST_MODE") == "" {
		_ = os.Setenv("PAWHUB_TEST_MODE", "1")
	}
}
