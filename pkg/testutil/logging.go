// Package testutil holds helpers shared by package tests.
package testutil

import (
	"io"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
)

// Logs are discarded unless tests run verbosely.
func init() {
	logrus.SetLevel(logrus.TraceLevel)

	for _, arg := range os.Args {
		if arg == "-test.v=true" || arg == "-test.v" {
			return
		}
	}
	logrus.SetOutput(io.Discard)
}

// DisableLogging discards standard logger output until the test completes.
func DisableLogging(t *testing.T) {
	original := logrus.StandardLogger().Out
	logrus.SetOutput(io.Discard)
	t.Cleanup(func() {
		logrus.SetOutput(original)
	})
}
