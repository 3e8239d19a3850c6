package release

import (
	"testing"

	"github.com/halfxyz/hop/internal/release"
)

func v(major, minor, patch uint64) release.Version {
	return release.Version{Major: major, Minor: minor, Patch: patch}
}

func TestCanCreateRelease(t *testing.T) {
	tests := []struct {
		name        string
		ctx         CreateReleaseContext
		wantAllowed bool
		wantCode    string
	}{
		{
			name:        "no existing release",
			ctx:         CreateReleaseContext{TargetVersion: v(1, 3, 4)},
			wantAllowed: true,
		},
		{
			name:        "release already exists",
			ctx:         CreateReleaseContext{TargetVersion: v(1, 3, 4), ReleaseExists: true},
			wantAllowed: false,
			wantCode:    "BranchExists",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CanCreateRelease(tt.ctx)
			if result.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v", result.Allowed, tt.wantAllowed)
			}
			if !tt.wantAllowed && result.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", result.Code, tt.wantCode)
			}
		})
	}
}

func TestCanPromoteToRC(t *testing.T) {
	tests := []struct {
		name        string
		ctx         PromoteContext
		wantAllowed bool
		wantCode    string
	}{
		{
			name: "minimal open version with production predecessor",
			ctx: PromoteContext{
				TargetVersion:     v(0, 2, 0),
				OpenReleases:      []release.Version{v(0, 2, 0), v(0, 3, 0), v(1, 0, 0)},
				ProductionVersion: v(0, 1, 0),
			},
			wantAllowed: true,
		},
		{
			name: "skipping ahead violates sequentiality",
			ctx: PromoteContext{
				TargetVersion:     v(1, 0, 0),
				OpenReleases:      []release.Version{v(0, 2, 0), v(0, 3, 0), v(1, 0, 0)},
				ProductionVersion: v(0, 1, 0),
			},
			wantAllowed: false,
			wantCode:    "SequentialityViolated",
		},
		{
			name: "active rc blocks a different version",
			ctx: PromoteContext{
				TargetVersion:     v(0, 3, 0),
				OpenReleases:      []release.Version{v(0, 3, 0)},
				ProductionVersion: v(0, 2, 0),
				ActiveRCExists:    true,
				ActiveRCVersion:   v(0, 2, 5),
			},
			wantAllowed: false,
			wantCode:    "ActiveRCExists",
		},
		{
			name: "active rc allows re-promotion of the same version",
			ctx: PromoteContext{
				TargetVersion:     v(0, 2, 5),
				OpenReleases:      []release.Version{v(0, 2, 5)},
				ProductionVersion: v(0, 2, 0),
				ActiveRCExists:    true,
				ActiveRCVersion:   v(0, 2, 5),
			},
			wantAllowed: true,
		},
		{
			name: "first ever release with no production yet",
			ctx: PromoteContext{
				TargetVersion:     v(0, 1, 0),
				OpenReleases:      []release.Version{v(0, 1, 0)},
				ProductionVersion: release.Version{},
			},
			wantAllowed: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CanPromoteToRC(tt.ctx)
			if result.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v (%s)", result.Allowed, tt.wantAllowed, result.Reason)
			}
			if !tt.wantAllowed && result.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", result.Code, tt.wantCode)
			}
		})
	}
}

func TestCanPromoteToProd(t *testing.T) {
	tests := []struct {
		name        string
		ctx         PromoteContext
		wantAllowed bool
		wantCode    string
	}{
		{
			name:        "immediate successor of production",
			ctx:         PromoteContext{TargetVersion: v(0, 2, 0), ProductionVersion: v(0, 1, 0)},
			wantAllowed: true,
		},
		{
			name:        "not greater than production",
			ctx:         PromoteContext{TargetVersion: v(0, 1, 0), ProductionVersion: v(0, 1, 0)},
			wantAllowed: false,
			wantCode:    "SequentialityViolated",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CanPromoteToProd(tt.ctx)
			if result.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v", result.Allowed, tt.wantAllowed)
			}
			if !tt.wantAllowed && result.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", result.Code, tt.wantCode)
			}
		})
	}
}

func TestCanHotfixOpen(t *testing.T) {
	tests := []struct {
		name        string
		ctx         HotfixOpenContext
		wantAllowed bool
		wantCode    string
	}{
		{
			name:        "tag exists and no open release",
			ctx:         HotfixOpenContext{Version: v(1, 3, 4), ProductionTagExists: true},
			wantAllowed: true,
		},
		{
			name:        "never promoted to production",
			ctx:         HotfixOpenContext{Version: v(1, 3, 4), ProductionTagExists: false},
			wantAllowed: false,
			wantCode:    "TagMissing",
		},
		{
			name:        "release already open",
			ctx:         HotfixOpenContext{Version: v(1, 3, 4), ProductionTagExists: true, ReleaseExists: true},
			wantAllowed: false,
			wantCode:    "BranchExists",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CanHotfixOpen(tt.ctx)
			if result.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v", result.Allowed, tt.wantAllowed)
			}
			if !tt.wantAllowed && result.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", result.Code, tt.wantCode)
			}
		})
	}
}
