package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default", *DefaultConfig(), false},
		{"debug to stdout", Config{Level: DebugLevel, Format: TextFormat, Output: StdoutOutput}, false},
		{"bad level", Config{Level: "trace", Format: TextFormat, Output: StderrOutput}, true},
		{"bad format", Config{Level: InfoLevel, Format: "xml", Output: StderrOutput}, true},
		{"file without path", Config{Level: InfoLevel, Format: TextFormat, Output: FileOutput}, true},
		{"discard", Config{Level: InfoLevel, Format: JSONFormat, Output: DiscardOutput}, false},
		{"bad output", Config{Level: InfoLevel, Format: TextFormat, Output: "syslog"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFieldsAccumulate(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&buf, DebugLevel, JSONFormat)
	if err != nil {
		t.Fatalf("NewWithWriter failed: %v", err)
	}

	log.WithComponent("matcher").WithField("run_id", "abc").Info("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if entry["component"] != "matcher" {
		t.Errorf("expected component field, got %v", entry["component"])
	}
	if entry["run_id"] != "abc" {
		t.Errorf("expected run_id field, got %v", entry["run_id"])
	}
	if entry["msg"] != "hello" {
		t.Errorf("expected msg hello, got %v", entry["msg"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&buf, WarnLevel, TextFormat)
	if err != nil {
		t.Fatalf("NewWithWriter failed: %v", err)
	}

	log.Info("hidden")
	log.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn should be logged")
	}
}

func TestPhaseTracker(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&buf, DebugLevel, JSONFormat)
	if err != nil {
		t.Fatalf("NewWithWriter failed: %v", err)
	}

	p := StartPhase(log, "match")
	p.Set("exact", 3)
	p.Complete()

	out := buf.String()
	if !strings.Contains(out, `"phase":"match"`) {
		t.Errorf("expected phase field in output: %s", out)
	}
	if !strings.Contains(out, `"exact":3`) {
		t.Errorf("expected counter in completion line: %s", out)
	}

	buf.Reset()
	StartPhase(log, "aggregate").Fail(errors.New("boom"))
	if !strings.Contains(buf.String(), "Phase failed") {
		t.Errorf("expected failure line: %s", buf.String())
	}
}
