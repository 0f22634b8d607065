package models

import (
	"testing"
	"time"
)

func TestSecurityLevelFlags(t *testing.T) {
	tests := []struct {
		name         string
		level        SecurityLevel
		confidential bool
		signed       bool
	}{
		{"none", LevelNone, false, false},
		{"confidentiality", LevelConfidentiality, true, false},
		{"integrity", LevelIntegrity, false, true},
		{"all", LevelAll, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.level.Confidential(); got != tt.confidential {
				t.Errorf("Confidential() = %v, want %v", got, tt.confidential)
			}
			if got := tt.level.Signed(); got != tt.signed {
				t.Errorf("Signed() = %v, want %v", got, tt.signed)
			}
			if !tt.level.Valid() {
				t.Errorf("Expected level %s to be valid", tt.level)
			}
		})
	}
}

func TestSecurityLevelAllIsUnion(t *testing.T) {
	if LevelAll != LevelConfidentiality|LevelIntegrity {
		t.Fatal("LevelAll must be exactly the union of confidentiality and integrity")
	}
}

func TestParseSecurityLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    SecurityLevel
		wantErr bool
	}{
		{"none", LevelNone, false},
		{"", LevelNone, false},
		{"confidentiality", LevelConfidentiality, false},
		{"CONFIDENTIAL", LevelConfidentiality, false},
		{"integrity", LevelIntegrity, false},
		{"all", LevelAll, false},
		{"both", LevelAll, false},
		{"bogus", LevelNone, true},
	}

	for _, tt := range tests {
		t.Run("input="+tt.input, func(t *testing.T) {
			got, err := ParseSecurityLevel(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error for input %q, got none", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseSecurityLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDocumentID(t *testing.T) {
	id := DocumentID("alice", "report.txt")
	if id != "alice/report.txt" {
		t.Errorf("Expected alice/report.txt, got %s", id)
	}

	owner, filename, err := SplitDocumentID(id)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if owner != "alice" || filename != "report.txt" {
		t.Errorf("SplitDocumentID returned (%s, %s)", owner, filename)
	}

	t.Run("filename may contain slashes", func(t *testing.T) {
		owner, filename, err := SplitDocumentID("bob/dir/notes.md")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if owner != "bob" || filename != "dir/notes.md" {
			t.Errorf("SplitDocumentID returned (%s, %s)", owner, filename)
		}
	})

	t.Run("malformed ids rejected", func(t *testing.T) {
		for _, bad := range []string{"", "alice", "alice/", "/report.txt"} {
			if _, _, err := SplitDocumentID(bad); err == nil {
				t.Errorf("Expected error for %q, got none", bad)
			}
		}
	})
}

func TestGrantExpired(t *testing.T) {
	now := time.Now()
	grant := &Grant{ExpiresAt: now}

	if grant.Expired(now) {
		t.Error("Grant must still be live at its expiry instant")
	}
	if !grant.Expired(now.Add(time.Second)) {
		t.Error("Grant must be expired after its expiry instant")
	}
	if grant.Expired(now.Add(-time.Second)) {
		t.Error("Grant must be live before its expiry instant")
	}
}

func TestErrorFormatting(t *testing.T) {
	inner := ErrDocumentNotFound
	err := &Error{Code: ErrCodeNotFound, Message: "lookup failed", Err: inner}

	want := "NOT_FOUND: lookup failed: document not found"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
	if err.Unwrap() != inner {
		t.Error("Unwrap did not return the inner error")
	}

	bare := &Error{Code: ErrCodeAccessDenied, Message: "no grant"}
	if bare.Error() != "ACCESS_DENIED: no grant" {
		t.Errorf("Unexpected bare error string: %q", bare.Error())
	}
}
