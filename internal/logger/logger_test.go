package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelsFilterOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(LevelNormal, &buf)

	log.Debug("hidden %d", 1)
	log.Info("shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked at normal level: %q", out)
	}
	if !strings.Contains(out, "[INF]") || !strings.Contains(out, "shown 2") {
		t.Fatalf("info line missing: %q", out)
	}

	buf.Reset()
	log.SetLevel(LevelOff)
	log.Error("nope")
	if buf.Len() != 0 {
		t.Fatalf("expected no output when off, got %q", buf.String())
	}
}

func TestNamedSharesLevelAndPrefixes(t *testing.T) {
	var buf bytes.Buffer
	root := New(LevelNormal, &buf)
	child := root.Named("capture").Named("meter")

	child.Debug("ignored")
	root.SetLevel(LevelVerbose)
	child.Debug("tick %d", 3)

	out := buf.String()
	if strings.Contains(out, "ignored") {
		t.Fatalf("child ignored the parent's level: %q", out)
	}
	if !strings.Contains(out, "capture/meter: tick 3") {
		t.Fatalf("missing nested prefix: %q", out)
	}
	if child.GetLevel() != LevelVerbose {
		t.Fatalf("child level = %s, want verbose", child.GetLevel())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"off":     LevelOff,
		"":        LevelNormal,
		"INFO":    LevelNormal,
		"debug":   LevelVerbose,
		"verbose": LevelVerbose,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
