package logging

import (
	"testing"
)

func TestNewLoggerDefaults(t *testing.T) {
	logger := NewLogger()
	if logger == nil {
		t.Fatal("Expected logger, got nil")
	}
	if logger.minLevel > LevelStartup {
		t.Errorf("Unexpected minimum level %d", logger.minLevel)
	}
}

func TestGetLoggerSingleton(t *testing.T) {
	a := GetLogger()
	b := GetLogger()
	if a != b {
		t.Error("GetLogger must return the same instance")
	}
}

func TestSetLevel(t *testing.T) {
	logger := NewLogger()
	logger.SetLevel(LevelError)
	if logger.minLevel != LevelError {
		t.Errorf("Expected level %d, got %d", LevelError, logger.minLevel)
	}
}

func TestLoggingDoesNotPanic(t *testing.T) {
	logger := NewLogger()

	// Each level must be callable with printf-style arguments.
	logger.Debug("debug %s %d", "msg", 1)
	logger.Info("info %s", "msg")
	logger.Warn("warn %v", []string{"a", "b"})
	logger.Error("error %v", nil)
	logger.Startup("startup")
}

func TestLoggingMode(t *testing.T) {
	mode := LoggingMode()
	if mode != "full" && mode != "minimal (startup only)" {
		t.Errorf("Unexpected logging mode %q", mode)
	}
}
