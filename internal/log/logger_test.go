package log

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func newTestAdapter(level logrus.Level, out *bytes.Buffer) Logger {
	l := logrus.New()
	l.SetFormatter(&formatter{pattern: defaultPattern, time: defaultTimeLayout})
	l.SetLevel(level)
	l.SetOutput(out)
	return &logrusAdapter{entry: logrus.NewEntry(l)}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	lg := newTestAdapter(logrus.InfoLevel, &buf)

	lg.Debug("debug message")
	lg.Info("info message")
	lg.Warn("warn message")

	output := buf.String()
	if strings.Contains(output, "debug message") {
		t.Error("debug message should be filtered out at info level")
	}
	if !strings.Contains(output, "info message") {
		t.Error("info message should be present")
	}
	if !strings.Contains(output, "warn message") {
		t.Error("warn message should be present")
	}
}

func TestIsDebugEnabled(t *testing.T) {
	var buf bytes.Buffer
	if newTestAdapter(logrus.InfoLevel, &buf).IsDebugEnabled() {
		t.Error("debug should be disabled at info level")
	}
	if !newTestAdapter(logrus.DebugLevel, &buf).IsDebugEnabled() {
		t.Error("debug should be enabled at debug level")
	}
}

func TestFormatterPattern(t *testing.T) {
	f := &formatter{pattern: "%time [%level] %msg%field\n", time: "2006-01-02"}
	entry := &logrus.Entry{
		Logger:  logrus.New(),
		Time:    time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
		Level:   logrus.InfoLevel,
		Message: "server locked",
		Data:    logrus.Fields{},
	}

	out, err := f.Format(entry)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if string(out) != "2025-03-14 [info] server locked\n" {
		t.Errorf("unexpected output: %q", string(out))
	}
}

func TestFormatterFields(t *testing.T) {
	f := &formatter{pattern: "%msg%field", time: defaultTimeLayout}
	entry := &logrus.Entry{
		Logger:  logrus.New(),
		Level:   logrus.InfoLevel,
		Message: "lock",
		Data:    logrus.Fields{"device": "eth0"},
	}

	out, err := f.Format(entry)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if string(out) != "lock device=eth0" {
		t.Errorf("unexpected output: %q", string(out))
	}
}

func TestWithFieldChaining(t *testing.T) {
	var buf bytes.Buffer
	lg := newTestAdapter(logrus.InfoLevel, &buf)

	lg.WithField("uid", "114514").Info("damage recorded")

	output := buf.String()
	if !strings.Contains(output, "uid=114514") {
		t.Errorf("expected field in output, got %q", output)
	}
	if !strings.Contains(output, "damage recorded") {
		t.Errorf("expected message in output, got %q", output)
	}
}

func TestMultiWriterFanout(t *testing.T) {
	var a, b bytes.Buffer
	mw := NewMultiWriter().Add(&a).Add(&b)

	n, err := mw.Write([]byte("hello"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != 5 {
		t.Errorf("expected 5 bytes, got %d", n)
	}
	if a.String() != "hello" || b.String() != "hello" {
		t.Errorf("fanout mismatch: %q / %q", a.String(), b.String())
	}
}

func TestFileAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meter.log")
	mw := NewMultiWriter().AddFileAppender(FileAppenderOpt{Filename: path})

	if _, err := mw.Write([]byte("rotating entry\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

func TestGetLoggerDefault(t *testing.T) {
	// GetLogger must never return nil, even without Init.
	if GetLogger() == nil {
		t.Fatal("GetLogger returned nil")
	}
}
