package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Str("account_id", "acc-1").Msg("test message")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if record["message"] != "test message" || record["account_id"] != "acc-1" {
		t.Errorf("record = %v", record)
	}
	if _, ok := record["time"]; !ok {
		t.Error("expected a timestamp field")
	}
}

func TestNew_Level(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":         zerolog.InfoLevel,
		"debug":    zerolog.DebugLevel,
		"warn":     zerolog.WarnLevel,
		"nonsense": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := New(Options{Level: in}).GetLevel(); got != want {
			t.Errorf("New(%q).GetLevel() = %v, want %v", in, got, want)
		}
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	log := FromContext(ctx)
	log.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("expected output from the context logger")
	}
}

func TestFromContext_Default(t *testing.T) {
	log := FromContext(context.Background())
	if log.GetLevel() != zerolog.Disabled {
		t.Errorf("default logger level = %v, want disabled", log.GetLevel())
	}
}
