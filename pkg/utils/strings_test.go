package utils

import (
	"reflect"
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name     string
		input    int64
		expected string
	}{
		{"bytes", 512, "512 B"},
		{"kilobytes", 2048, "2.0 KB"},
		{"megabytes", 5242880, "5.0 MB"},
		{"gigabytes", 1234567890, "1.1 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatBytes(tt.input)
			if result != tt.expected {
				t.Errorf("FormatBytes(%d) = %s; want %s", tt.input, result, tt.expected)
			}
		})
	}
}

func TestMiBPerSecond(t *testing.T) {
	if got := MiBPerSecond(10*1024*1024, 2*time.Second); got != 5 {
		t.Errorf("MiBPerSecond = %v; want 5", got)
	}
	if got := MiBPerSecond(1024, 0); got != 0 {
		t.Errorf("MiBPerSecond with zero duration = %v; want 0", got)
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{0, "00:00:00"},
		{59 * time.Second, "00:00:59"},
		{time.Hour + 2*time.Minute + 3*time.Second, "01:02:03"},
		{26 * time.Hour, "26:00:00"},
		{-time.Second, "00:00:00"},
	}
	for _, tt := range tests {
		if got := FormatClock(tt.input); got != tt.expected {
			t.Errorf("FormatClock(%v) = %s; want %s", tt.input, got, tt.expected)
		}
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"true", "true", true},
		{"1", "1", true},
		{"yes", "yes", true},
		{"on", "on", true},
		{"TRUE", "TRUE", true},
		{"false", "false", false},
		{"0", "0", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseBool(tt.input)
			if result != tt.expected {
				t.Errorf("ParseBool(%q) = %v; want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestSplitKeyValue(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		expectedKey   string
		expectedValue string
		expectedOK    bool
	}{
		{"valid", "KEY=value", "KEY", "value", true},
		{"with quotes", `KEY="value"`, "KEY", "value", true},
		{"with spaces", "  KEY  =  value  ", "KEY", "value", true},
		{"export prefix", "export KEY=value", "KEY", "value", true},
		{"no equals", "INVALID", "", "", false},
		{"multiple equals", "KEY=value=123", "KEY", "value=123", true},
		{"empty value", "KEY=", "KEY", "", true},
		{"inline comment", "KEY=value # comment", "KEY", "value", true},
		{"quoted hash", `KEY="value # keep" # drop`, "KEY", "value # keep", true},
		{"windows path", `VOLUME_MOUNT_PATH='D:\'`, "VOLUME_MOUNT_PATH", `D:\`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, value, ok := SplitKeyValue(tt.input)
			if ok != tt.expectedOK {
				t.Errorf("SplitKeyValue(%q) ok = %v; want %v", tt.input, ok, tt.expectedOK)
			}
			if ok {
				if key != tt.expectedKey {
					t.Errorf("SplitKeyValue(%q) key = %q; want %q", tt.input, key, tt.expectedKey)
				}
				if value != tt.expectedValue {
					t.Errorf("SplitKeyValue(%q) value = %q; want %q", tt.input, value, tt.expectedValue)
				}
			}
		})
	}
}

func TestIsComment(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"# This is a comment", true},
		{"  # Comment", true},
		{"", true},
		{"   ", true},
		{"KEY=value", false},
		{"KEY=#value", false},
	}

	for _, tt := range tests {
		if got := IsComment(tt.input); got != tt.expected {
			t.Errorf("IsComment(%q) = %v; want %v", tt.input, got, tt.expected)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(` time.google.com, "pool.ntp.org";  ,time.windows.com `)
	want := []string{"time.google.com", "pool.ntp.org", "time.windows.com"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SplitList = %v; want %v", got, want)
	}
	if got := SplitList(""); len(got) != 0 {
		t.Fatalf("SplitList(\"\") = %v; want empty", got)
	}
}
