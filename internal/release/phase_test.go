package release

import "testing"

func TestFilenameRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		v    Version
		p    Phase
		want string
	}{
		{"development", Version{1, 3, 4}, Phase{Kind: PhaseDevelopment}, "1.3.4-patches.toml"},
		{"candidate", Version{1, 3, 4}, Phase{Kind: PhaseCandidate, N: 1}, "1.3.4-rc1.txt"},
		{"production", Version{1, 3, 4}, Phase{Kind: PhaseProduction}, "1.3.4.txt"},
		{"hotfix", Version{1, 3, 4}, Phase{Kind: PhaseHotfix, N: 2}, "1.3.4-hotfix2.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filename(tt.v, tt.p)
			if got != tt.want {
				t.Fatalf("Filename() = %q, want %q", got, tt.want)
			}
			gotV, gotP, err := ParseFilename(got)
			if err != nil {
				t.Fatalf("ParseFilename(%q): %v", got, err)
			}
			if gotV != tt.v || gotP != tt.p {
				t.Fatalf("ParseFilename(%q) = %v, %v, want %v, %v", got, gotV, gotP, tt.v, tt.p)
			}
		})
	}
}

func TestParseFilenameRejectsGarbage(t *testing.T) {
	for _, name := range []string{"garbage", "1.3.txt", "1.3.4-rcX.txt", "README.md"} {
		if _, _, err := ParseFilename(name); err == nil {
			t.Errorf("ParseFilename(%q) expected error", name)
		}
	}
}

func TestValidPatchID(t *testing.T) {
	valid := []string{"42", "42-login", "1-fix.patch_v2"}
	invalid := []string{"", "login", "-42", "42 login", "42/login"}
	for _, id := range valid {
		if !ValidPatchID(id) {
			t.Errorf("ValidPatchID(%q) = false, want true", id)
		}
	}
	for _, id := range invalid {
		if ValidPatchID(id) {
			t.Errorf("ValidPatchID(%q) = true, want false", id)
		}
	}
}

func TestIssueNumber(t *testing.T) {
	n, err := IssueNumber("42-login")
	if err != nil || n != 42 {
		t.Fatalf("IssueNumber(42-login) = %d, %v, want 42, nil", n, err)
	}
	if _, err := IssueNumber("-login"); err == nil {
		t.Fatal("expected error for id with no leading digits")
	}
}
