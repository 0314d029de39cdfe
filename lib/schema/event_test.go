// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"strings"
	"testing"
)

func TestNewEventClassifiesTagPush(t *testing.T) {
	t.Parallel()

	event := NewEvent(EventPush, "refs/tags/v1.0", "abc123")
	if event.Kind != EventTag {
		t.Fatalf("Kind = %q, want %q", event.Kind, EventTag)
	}
	if !event.IsTag() {
		t.Fatal("IsTag() = false, want true")
	}
	if got := event.TagName(); got != "v1.0" {
		t.Fatalf("TagName() = %q, want %q", got, "v1.0")
	}
}

func TestNewEventKeepsBranchPush(t *testing.T) {
	t.Parallel()

	event := NewEvent(EventPush, "refs/heads/main", "abc123")
	if event.Kind != EventPush {
		t.Fatalf("Kind = %q, want %q", event.Kind, EventPush)
	}
	if event.IsTag() {
		t.Fatal("IsTag() = true, want false")
	}
	if got := event.TagName(); got != "" {
		t.Fatalf("TagName() = %q, want empty", got)
	}
}

func TestEventShortRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ref  string
		want string
	}{
		{"refs/heads/main", "main"},
		{"refs/heads/release/2.x", "release/2.x"},
		{"refs/tags/v1.0", "v1.0"},
		{"refs/pull/42/head", "refs/pull/42/head"},
	}
	for _, test := range tests {
		event := Event{Ref: test.ref}
		if got := event.ShortRef(); got != test.want {
			t.Errorf("ShortRef(%q) = %q, want %q", test.ref, got, test.want)
		}
	}
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		event   Event
		wantErr string
	}{
		{
			name:  "valid push",
			event: Event{Kind: EventPush, Ref: "refs/heads/main"},
		},
		{
			name:  "valid tag",
			event: Event{Kind: EventTag, Ref: "refs/tags/v1.0"},
		},
		{
			name:  "valid pull request",
			event: Event{Kind: EventPullRequest, Ref: "refs/heads/main", PullRequest: 7},
		},
		{
			name:    "missing ref",
			event:   Event{Kind: EventPush},
			wantErr: "ref is required",
		},
		{
			name:    "missing kind",
			event:   Event{Ref: "refs/heads/main"},
			wantErr: "kind is required",
		},
		{
			name:    "unknown kind",
			event:   Event{Kind: "deploy", Ref: "refs/heads/main"},
			wantErr: "unknown kind",
		},
		{
			name:    "tag kind without tag ref",
			event:   Event{Kind: EventTag, Ref: "refs/heads/main"},
			wantErr: "lacks the refs/tags/ prefix",
		},
		{
			name:    "push kind with tag ref",
			event:   Event{Kind: EventPush, Ref: "refs/tags/v1.0"},
			wantErr: "use NewEvent to classify",
		},
		{
			name:    "pull request without number",
			event:   Event{Kind: EventPullRequest, Ref: "refs/heads/main"},
			wantErr: "positive PR number",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			err := test.event.Validate()
			if test.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", test.wantErr)
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Fatalf("Validate() = %q, want it to contain %q", err, test.wantErr)
			}
		})
	}
}
