package sysutil

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"  DeBuG ", zerolog.DebugLevel, false},
		{"info", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"warn", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"fatal", zerolog.FatalLevel, false},
		{"panic", zerolog.PanicLevel, false},
		{"trace", zerolog.NoLevel, true},
		{"disabled", zerolog.NoLevel, true},
		{"verbose", zerolog.NoLevel, true},
	}
	for _, tc := range cases {
		got, err := ParseLogLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseLogLevel(%q) err = %v; wantErr %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Fatalf("ParseLogLevel(%q) = %v; want %v", tc.in, got, tc.want)
		}
	}
}

func TestSetLogLevel(t *testing.T) {
	orig := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(orig) })

	if lvl := SetLogLevel("error"); lvl != zerolog.ErrorLevel || zerolog.GlobalLevel() != zerolog.ErrorLevel {
		t.Fatalf("SetLogLevel(error) = %v, global %v", lvl, zerolog.GlobalLevel())
	}
	if lvl := SetLogLevel("nonsense"); lvl != zerolog.InfoLevel || zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("unknown level should fall back to info, got %v", lvl)
	}
}

func TestRequestID(t *testing.T) {
	if got := RequestIDFrom(context.Background()); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
	ctx := WithRequestID(context.Background(), "rid-1")
	if got := RequestIDFrom(WithRequestID(ctx, "rid-2")); got != "rid-2" {
		t.Fatalf("inner id should win, got %q", got)
	}
	if got := RequestIDFrom(ctx); got != "rid-1" {
		t.Fatalf("RequestIDFrom = %q; want rid-1", got)
	}
	//lint:ignore SA1012 nil context is handled explicitly
	if got := RequestIDFrom(nil); got != "" {
		t.Fatalf("nil ctx should yield empty id, got %q", got)
	}
}
