// Package guard flips the process into test mode when imported from test helpers.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("BIZGATE_TEST_MODE") == "" {
			_ = os.Setenv("BIZGATE_TEST_MODE", "1")
		}
	})
}
