package utils

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"+919876543210", "+919876543210"},
		{"9876543210", "+919876543210"},
		{"098765 43210", "+919876543210"},
		{"not-a-number", "not-a-number"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizePhone(tc.in); got != tc.expected {
			t.Fatalf("NormalizePhone(%q) = %q, expected %q", tc.in, got, tc.expected)
		}
	}
}

func TestExecTemplateConditionalClauses(t *testing.T) {
	tmpl := `WHERE 1 = 1{{- if .category }} AND category = @category{{- end }}`

	withFilter, err := ExecTemplate(tmpl, map[string]interface{}{"category": "Electronics"})
	if err != nil {
		t.Fatalf("ExecTemplate: %v", err)
	}
	if withFilter != "WHERE 1 = 1 AND category = @category" {
		t.Fatalf("unexpected sql: %q", withFilter)
	}

	withoutFilter, err := ExecTemplate(tmpl, map[string]interface{}{"category": ""})
	if err != nil {
		t.Fatalf("ExecTemplate: %v", err)
	}
	if withoutFilter != "WHERE 1 = 1" {
		t.Fatalf("unexpected sql: %q", withoutFilter)
	}
}

func TestDereferencePtr(t *testing.T) {
	v := "x"
	if got := DereferencePtr(&v); got != "x" {
		t.Fatalf("expected x, got %q", got)
	}
	if got := DereferencePtr[string](nil); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
	if got := DereferencePtr[int](nil, 7); got != 7 {
		t.Fatalf("expected default 7, got %d", got)
	}
}
