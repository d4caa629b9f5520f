// SPDX-License-Identifier: MIT

package validate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidatorAccumulates(t *testing.T) {
	v := New()
	v.URL("BaseURL", "ftp://example.com", []string{"http", "https"})
	v.Range("MaxConcurrent", 0, 1, 64)
	v.Positive("TTL", 0)
	v.OneOf("Mode", "other", []string{"signed", "sealed"})
	v.NotEmpty("Secret", "  ")

	if v.IsValid() {
		t.Fatal("expected validator to be invalid")
	}
	err := v.Err()
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if got := len(verr.Errors()); got != 5 {
		t.Fatalf("expected 5 errors, got %d: %v", got, err)
	}
}

func TestValidatorValid(t *testing.T) {
	v := New()
	v.URL("BaseURL", "https://example.com", []string{"http", "https"})
	v.ListenAddr("Listen", ":8080")
	v.Range("MaxConcurrent", 2, 1, 64)
	v.Positive("TTL", time.Minute)
	v.Directory("TempDir", t.TempDir(), true)

	if err := v.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDirectory(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "f")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name      string
		path      string
		mustExist bool
		wantErr   bool
	}{
		{"existing", root, true, false},
		{"missing allowed", filepath.Join(root, "new"), false, false},
		{"missing required", filepath.Join(root, "new"), true, true},
		{"missing parent", filepath.Join(root, "a", "b"), false, true},
		{"file", file, false, true},
		{"empty", "", false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := New()
			v.Directory("Dir", tc.path, tc.mustExist)
			if got := v.Err() != nil; got != tc.wantErr {
				t.Fatalf("wantErr=%v, got err=%v", tc.wantErr, v.Err())
			}
		})
	}
}
