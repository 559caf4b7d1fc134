package model

import "testing"

func TestCanonicalUserID(t *testing.T) {
	const id = "9b2f4c1e-3a5d-4e7f-8a1b-2c3d4e5f6a70"

	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"canonical", id, id, true},
		{"uppercase", "9B2F4C1E-3A5D-4E7F-8A1B-2C3D4E5F6A70", id, true},
		{"no hyphens", "9b2f4c1e3a5d4e7f8a1b2c3d4e5f6a70", id, true},
		{"braces", "{" + id + "}", id, true},
		{"malformed", "admin-1", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CanonicalUserID(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("CanonicalUserID(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestSameUser(t *testing.T) {
	const id = "9b2f4c1e-3a5d-4e7f-8a1b-2c3d4e5f6a70"

	if !SameUser(id, "9B2F4C1E3A5D4E7F8A1B2C3D4E5F6A70") {
		t.Error("SameUser() = false for alternate spelling")
	}
	if !SameUser("cli", "cli") {
		t.Error("SameUser() = false for identical non-uuid ids")
	}
	if SameUser(id, "1f0e2d3c-4b5a-4697-8877-665544332211") {
		t.Error("SameUser() = true for different users")
	}
	if SameUser("cli", id) {
		t.Error("SameUser() = true for non-uuid vs uuid")
	}
}
