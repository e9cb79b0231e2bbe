package vectorstoreclient

import (
	"errors"
	"testing"

	"github.com/codelens/indexcore/internal/errs"
)

func TestParseAddr(t *testing.T) {
	cases := []struct {
		addr     string
		wantHost string
		wantPort int
	}{
		{"", "localhost", 6334},
		{"qdrant", "qdrant", 6334},
		{"qdrant:6333", "qdrant", 6333},
		{"localhost:notaport", "localhost", 6334},
	}
	for _, tc := range cases {
		host, port := parseAddr(tc.addr)
		if host != tc.wantHost || port != tc.wantPort {
			t.Errorf("parseAddr(%q) = (%q, %d), want (%q, %d)", tc.addr, host, port, tc.wantHost, tc.wantPort)
		}
	}
}

func TestFilter_ToQdrant_Empty(t *testing.T) {
	f := Filter{}
	if f.toQdrant() != nil {
		t.Error("empty filter should produce a nil qdrant filter")
	}
}

func TestFilter_ToQdrant_BuildsMustConditions(t *testing.T) {
	f := Filter{Must: []FieldMatch{{Key: "project_id", Value: "abcd1234"}, {Key: "git_branch", Value: "main"}}}
	qf := f.toQdrant()
	if qf == nil {
		t.Fatal("expected non-nil filter")
	}
	if len(qf.Must) != 2 {
		t.Errorf("expected 2 must conditions, got %d", len(qf.Must))
	}
}

func TestClassify_PermanentOnNotFound(t *testing.T) {
	err := classify("search", errors.New("collection not found"))
	var perm *errs.PermanentError
	if !errors.As(err, &perm) {
		t.Errorf("expected a PermanentError, got %T", err)
	}
}

func TestClassify_TransientByDefault(t *testing.T) {
	err := classify("search", errors.New("connection refused"))
	var trans *errs.TransientError
	if !errors.As(err, &trans) {
		t.Errorf("expected a TransientError, got %T", err)
	}
}

func TestIsAlreadyExists(t *testing.T) {
	if !isAlreadyExists(errors.New("Collection `x` already exists!")) {
		t.Error("expected case-insensitive match on 'already exists'")
	}
	if isAlreadyExists(errors.New("connection refused")) {
		t.Error("unexpected match")
	}
}
