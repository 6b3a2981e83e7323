// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"testing"
	"time"
)

// recorder captures Fatalf instead of stopping the test. Fatalf panics
// so that the helper does not fall through, matching testing.T.
type recorder struct {
	message string
	skipped bool
}

type fatal struct{}

func (r *recorder) Helper() {}

func (r *recorder) Fatalf(format string, args ...any) {
	r.message = fmt.Sprintf(format, args...)
	panic(fatal{})
}

func (r *recorder) Skip(...any) { r.skipped = true }

func catchFatal(f func()) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(fatal); !ok {
				panic(r)
			}
		}
	}()
	f()
}

func TestRequireReceive(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 7
	if got := RequireReceive(t, ch, time.Second, "reading"); got != 7 {
		t.Errorf("RequireReceive = %d, want 7", got)
	}
}

func TestRequireReceiveFailures(t *testing.T) {
	cases := []struct {
		name string
		ch   chan int
		want string
	}{
		{"timeout", make(chan int), "timed out after 10ms: waiting for 3"},
		{"closed", func() chan int { ch := make(chan int); close(ch); return ch }(), "channel closed without sending a value: waiting for 3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := &recorder{}
			catchFatal(func() { RequireReceive(r, tc.ch, 10*time.Millisecond, "waiting for %d", 3) })
			if r.message != tc.want {
				t.Errorf("message = %q, want %q", r.message, tc.want)
			}
		})
	}
}

func TestFormatMessage(t *testing.T) {
	cases := []struct {
		args []any
		want string
	}{
		{nil, "(no message)"},
		{[]any{"plain"}, "plain"},
		{[]any{"inode %d", 16}, "inode 16"},
		{[]any{42}, "42"},
	}
	for _, tc := range cases {
		if got := formatMessage(tc.args); got != tc.want {
			t.Errorf("formatMessage(%v) = %q, want %q", tc.args, got, tc.want)
		}
	}
}
