// SPDX-License-Identifier: MPL-2.0

package process

import (
	"errors"
	"regexp"
	"slices"
	"strings"
	"testing"
)

func TestMatchers(t *testing.T) {
	tests := []struct {
		name    string
		matcher Matcher
		line    string
		want    bool
	}{
		{"contains hit", Contains("IS_READY"), "PAYLOAD_SYSTEM_IS_READY__x", true},
		{"contains miss", Contains("IS_READY"), "compiling bevy", false},
		{"prefix hit", Prefix("Finished"), "    Finished `dev` profile", true},
		{"prefix miss", Prefix("Finished"), "Compiling; Finished", false},
		{"regexp", Regexp(regexp.MustCompile(`^\s*error\[E\d+\]`)), "error[E0308]: mismatched types", true},
		{"marker exact", MarkerValue("PAYLOAD_RANDOM_VALUE", "12"), "PAYLOAD_RANDOM_VALUE=12", true},
		{"marker among fields", MarkerValue("PAYLOAD_RANDOM_VALUE", "12"), "INFO app: PAYLOAD_RANDOM_VALUE=12 ok", true},
		{"marker longer value", MarkerValue("PAYLOAD_RANDOM_VALUE", "12"), "PAYLOAD_RANDOM_VALUE=123", false},
		{"marker old value", MarkerValue("PAYLOAD_RANDOM_VALUE", "12"), "PAYLOAD_RANDOM_VALUE=7", false},
		{"func", MatcherFunc(func(l string) bool { return len(l) == 3 }), "abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.matcher.Match(tt.line); got != tt.want {
				t.Errorf("%s.Match(%q) = %v, want %v", tt.matcher, tt.line, got, tt.want)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantName string
		wantArgs []string
		wantErr  bool
	}{
		{"simple", "cargo build", "cargo", []string{"build"}, false},
		{"quoted", `dx serve --features "bevy/hotpatching"`, "dx", []string{"serve", "--features", "bevy/hotpatching"}, false},
		{"single quotes", `cargo build --message-format 'short'`, "cargo", []string{"build", "--message-format", "short"}, false},
		{"empty", "   ", "", nil, true},
		{"unterminated", `cargo "build`, "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, args, err := ParseCommand(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCommand(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if name != tt.wantName || !slices.Equal(args, tt.wantArgs) {
				t.Errorf("ParseCommand(%q) = %q %q, want %q %q", tt.line, name, args, tt.wantName, tt.wantArgs)
			}
		})
	}

	if _, _, err := ParseCommand(""); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("ParseCommand(\"\") error = %v, want ErrEmptyCommand", err)
	}
}

func TestLineBuffer(t *testing.T) {
	b := newLineBuffer()
	cursor := 0

	_, ok, closed, wait := b.next(&cursor)
	if ok || closed || wait == nil {
		t.Fatal("empty buffer returned a line")
	}

	b.append("one")
	select {
	case <-wait:
	default:
		t.Fatal("append did not notify waiters")
	}

	line, ok, _, _ := b.next(&cursor)
	if !ok || line != "one" || cursor != 1 {
		t.Fatalf("next() = %q, %v, cursor %d", line, ok, cursor)
	}

	b.close()
	if _, ok, closed, _ := b.next(&cursor); ok || !closed {
		t.Error("closed buffer not reported as closed")
	}
}

func TestLineBuffer_Trim(t *testing.T) {
	b := newLineBuffer()
	for i := 0; i <= maxBufferedLines; i++ {
		b.append(strings.Repeat("x", i%7))
	}
	if got := len(b.snapshot()); got > maxBufferedLines {
		t.Errorf("buffer holds %d lines, limit %d", got, maxBufferedLines)
	}

	cursor := 0
	if _, ok, _, _ := b.next(&cursor); !ok {
		t.Fatal("stale cursor did not resume")
	}
	if cursor != b.base+1 {
		t.Errorf("cursor = %d, want %d", cursor, b.base+1)
	}
}
