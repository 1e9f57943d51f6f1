package main

import (
	"bytes"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/randomizedcoder/go-sample-profiler/internal/config"
)

func TestPrintBanner_BoxAligned(t *testing.T) {
	var buf bytes.Buffer
	printBanner(&buf, config.DefaultConfig())

	var box []string
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.HasPrefix(line, "╔") || strings.HasPrefix(line, "║") || strings.HasPrefix(line, "╚") {
			box = append(box, line)
		}
	}
	if len(box) != 4 {
		t.Fatalf("banner box has %d rows, want 4:\n%s", len(box), buf.String())
	}

	want := utf8.RuneCountInString(box[0])
	for i, row := range box {
		if got := utf8.RuneCountInString(row); got != want {
			t.Errorf("row %d is %d wide, want %d: %q", i, got, want, row)
		}
	}
}

func TestPrintSampleCommands(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SamplePath = "sample"
	cfg.Targets = []config.TargetSpec{{PID: 42, Output: "/tmp/p.txt"}}

	var buf bytes.Buffer
	printSampleCommands(&buf, cfg)

	if !strings.Contains(buf.String(), "sample 42 -mayDie -file /tmp/p.txt") {
		t.Errorf("output = %q", buf.String())
	}
}
