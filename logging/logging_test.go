package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNew_JSONWithStaticFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{
		Level:        "debug",
		Format:       "json",
		Writer:       &buf,
		StaticFields: map[string]string{"app": "mc-translator"},
	})

	log.Debug().Str("path", "en_us.json").Msg("hello")

	var event map[string]any
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if event["app"] != "mc-translator" {
		t.Errorf("static field missing: %v", event)
	}
	if event["path"] != "en_us.json" || event["message"] != "hello" {
		t.Errorf("event = %v", event)
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "warn", Format: "json", Writer: &buf})

	log.Info().Msg("dropped")
	log.Warn().Msg("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info event passed a warn-level logger")
	}
	if !strings.Contains(out, "kept") {
		t.Error("warn event was filtered out")
	}
}

func TestNamed(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Format: "json", Writer: &buf})

	named := Named(log, "pipeline")
	named.Info().Msg("hi")

	var event map[string]any
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatal(err)
	}
	if event["component"] != "pipeline" {
		t.Errorf("event = %v", event)
	}
}
