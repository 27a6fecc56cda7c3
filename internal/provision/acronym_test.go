package provision

import "testing"

func TestGenerateAcronym(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Steal a Brainrot", "SaB"},
		{"The Great Escape", "TGE"},
		{"Rise of Kingdoms", "RoK"},
		{"the lost world", "TLW"},
		{"Solo", "S"},
		{"", ""},
		{"A Tale of Two Cities", "AToTC"},
		{"Project: X-9!", "PX"},
	}
	for _, tc := range cases {
		if got := GenerateAcronym(tc.name); got != tc.want {
			t.Errorf("GenerateAcronym(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestResolveAcronymConflict(t *testing.T) {
	cases := []struct {
		base     string
		existing []string
		want     string
	}{
		{"SaB", nil, "SaB"},
		{"SaB", []string{"SaB"}, "SaB2"},
		{"SaB", []string{"SaB", "SaB2"}, "SaB3"},
		{"SaB", []string{"sab"}, "SaB2"},
		{"RoK", []string{"SaB"}, "RoK"},
	}
	for _, tc := range cases {
		if got := ResolveAcronymConflict(tc.base, tc.existing); got != tc.want {
			t.Errorf("ResolveAcronymConflict(%q, %v) = %q, want %q", tc.base, tc.existing, got, tc.want)
		}
	}
}

func TestFormatNames(t *testing.T) {
	if got := FormatChannelName("💻", "SaB", "code-frontend"); got != "💻-sab-code-frontend" {
		t.Errorf("channel name = %q", got)
	}
	if got := FormatRoleName("SaB", "Coder"); got != "SaB-Coder" {
		t.Errorf("role name = %q", got)
	}
	if got := ExpandTemplate("{acronym}-board", "SaB"); got != "sab-board" {
		t.Errorf("template = %q", got)
	}
}
