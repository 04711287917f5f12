package monitor

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	saved := baseLogger
	baseLogger = newBaseLogger(&buf)
	t.Cleanup(func() { baseLogger = saved })
	return &buf
}

func TestInfof_NoDoubleFormattingWithPercent(t *testing.T) {
	buf := captureLogs(t)
	SetLogLevel("info")

	msg := "[fetch] svMain loaded 288 entries (100.0% of window) median=4 ms"
	Infof(msg)

	out := buf.String()
	if !strings.Contains(out, "(100.0% of window)") {
		t.Fatalf("log output missing expected percent segment: %s", out)
	}
	if strings.Contains(out, "%!o(MISSING)") || strings.Contains(out, "%!w(MISSING)") {
		t.Fatalf("log output still shows fmt artifact: %s", out)
	}
}

func TestSetLogLevelFiltersDebug(t *testing.T) {
	buf := captureLogs(t)
	SetLogLevel("warn")
	if GetLogLevel() != LevelWarn {
		t.Fatalf("level = %v, want warn", GetLogLevel())
	}
	Infof("hidden %d", 1)
	Warnf("shown %d", 2)
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown 2") {
		t.Fatalf("unexpected filtering result: %q", out)
	}
	// unknown names leave the level untouched
	SetLogLevel("verbose")
	if GetLogLevel() != LevelWarn {
		t.Fatalf("unknown level changed state to %v", GetLogLevel())
	}
	SetLogLevel("debug")
	Debugf("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Fatalf("debug line missing: %q", buf.String())
	}
}

func TestWithFieldsCarriesContext(t *testing.T) {
	buf := captureLogs(t)
	SetLogLevel("info")
	WithFields(logrus.Fields{"thread": "svSync"}).Info("loaded")
	if !strings.Contains(buf.String(), "thread=svSync") {
		t.Fatalf("structured field missing: %q", buf.String())
	}
}
