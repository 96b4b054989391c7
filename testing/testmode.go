// Package testing holds helpers shared by package tests. Importing it marks
// the process as running under test so binaries skip their runtime startup.
package testing

import (
	"os"
	"sync"
)

// TestModeEnv is read by app.InTestMode.
const TestModeEnv = "ODYSSEY_TEST_MODE"

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv(TestModeEnv, "1")
	})
}

func init() {
	ensureTestMode()
}
