package release

import "testing"

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Version
		wantErr bool
	}{
		{name: "simple", in: "1.3.4", want: Version{1, 3, 4}},
		{name: "zero", in: "0.0.0", want: Version{0, 0, 0}},
		{name: "missing component", in: "1.3", wantErr: true},
		{name: "non-numeric", in: "a.b.c", wantErr: true},
		{name: "prerelease suffix rejected", in: "1.3.4-rc1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVersion(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseVersion(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseVersion(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("ParseVersion(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestVersionNext(t *testing.T) {
	v := Version{Major: 1, Minor: 3, Patch: 3}
	tests := []struct {
		level Level
		want  Version
	}{
		{LevelPatch, Version{1, 3, 4}},
		{LevelMinor, Version{1, 4, 0}},
		{LevelMajor, Version{2, 0, 0}},
	}
	for _, tt := range tests {
		if got := v.Next(tt.level); got != tt.want {
			t.Errorf("Next(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestVersionCompare(t *testing.T) {
	a := Version{1, 3, 4}
	b := Version{1, 4, 0}
	if a.Compare(b) >= 0 {
		t.Errorf("expected %v < %v", a, b)
	}
	if b.Compare(a) <= 0 {
		t.Errorf("expected %v > %v", b, a)
	}
	if a.Compare(a) != 0 {
		t.Errorf("expected %v == %v", a, a)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"patch": LevelPatch, "MINOR": LevelMinor, "Major": LevelMajor} {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("bogus"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
