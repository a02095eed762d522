package events

import (
	"testing"

	"go.uber.org/goleak"
)

// Published handlers run on their own goroutines; Wait must drain them all.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
