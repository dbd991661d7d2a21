package slot

import "testing"

func TestAliasResolve(t *testing.T) {
	table := AliasTable{
		{From: "recipient", To: "to_email"},
		{From: "to", To: "to_email"},
		{From: "message", To: "body"},
	}
	tests := []struct {
		name      string
		field     string
		extracted map[string]any
		want      any
		ok        bool
	}{
		{"alias only", "to_email", map[string]any{"recipient": "a@b.com"}, "a@b.com", true},
		{"first declared alias wins", "to_email", map[string]any{"to": "x@y.com", "recipient": "a@b.com"}, "a@b.com", true},
		{"second alias when first absent", "to_email", map[string]any{"to": "x@y.com"}, "x@y.com", true},
		{"canonical present blocks alias", "to_email", map[string]any{"to_email": "bad", "recipient": "a@b.com"}, nil, false},
		{"nil alias value ignored", "to_email", map[string]any{"recipient": nil}, nil, false},
		{"no alias for field", "subject", map[string]any{"recipient": "a@b.com"}, nil, false},
		{"other field alias", "body", map[string]any{"message": "hello"}, "hello", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := table.Resolve(tt.field, tt.extracted)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Resolve(%s) = (%v, %v), want (%v, %v)", tt.field, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestAliasLookupIgnoresCanonical(t *testing.T) {
	got, ok := DefaultAliases.Lookup("to_email", map[string]any{"to_email": "not-an-email", "recipient": "a@b.com"})
	if !ok || got != "a@b.com" {
		t.Errorf("Lookup() = (%v, %v), want (a@b.com, true)", got, ok)
	}
	if _, ok := DefaultAliases.Lookup("to_email", map[string]any{"to_email": "a@b.com"}); ok {
		t.Error("Lookup() without alias keys = true, want false")
	}
}

func TestAliasValidateTargets(t *testing.T) {
	known := func(f string) bool { return f == "to_email" || f == "body" }
	if err := (AliasTable{{From: "recipient", To: "to_email"}}).ValidateTargets(known); err != nil {
		t.Errorf("ValidateTargets() error = %v", err)
	}
	bad := []AliasTable{
		{{From: "recipient", To: "cc_email"}},
		{{From: "", To: "body"}},
		{{From: "body", To: "body"}},
		{{From: "message", To: "body"}, {From: "message", To: "body"}},
	}
	for i, table := range bad {
		if err := table.ValidateTargets(known); err == nil {
			t.Errorf("case %d: ValidateTargets() = nil, want error", i)
		}
	}
}

func TestDefaultAliasesTargets(t *testing.T) {
	targets := DefaultAliases.Targets()
	if len(targets) == 0 || targets[0] != "to_email" {
		t.Errorf("Targets() = %v, want to_email first", targets)
	}
	for _, f := range targets {
		if _, ok := fieldKinds[f]; !ok {
			t.Errorf("default alias target %q has no declared kind", f)
		}
	}
}
