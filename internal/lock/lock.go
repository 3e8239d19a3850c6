// Package lock implements LockService: the distributed patch-id
// reservation and scoped mutual-exclusion lock built on atomic Git tag push
// (spec.md §4.5).
package lock

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/halfxyz/hop/internal/hoperrors"
	"github.com/halfxyz/hop/internal/ports/secondary"
)

// StalenessHorizonMillis is the 30-minute staleness horizon of spec.md §3/§5.
const StalenessHorizonMillis = 30 * 60 * 1000

// Clock abstracts "now" in unix milliseconds so tests can control staleness
// without sleeping.
type Clock func() int64

// Service implements secondary.LockService against a GitDriver.
type Service struct {
	Git   secondary.GitDriver
	Now   Clock
	Log   *log.Logger
	Sleep func(attempt int) // used only by callers retrying pushes; unused here
}

// New returns a Service that reads the time from now.
func New(git secondary.GitDriver, now Clock, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{Git: git, Now: now, Log: logger}
}

// ReservePatch implements the patch-id reservation protocol: fetch, check
// for an existing remote tag, tag the commit that materializes
// Patches/<id>/, and push. The first successful push wins; everyone else
// observes ReservedElsewhere with no remote side effects.
func (s *Service) ReservePatch(ctx context.Context, id string, ref string) error {
	tagName := "patch-id/" + id

	if err := s.Git.Fetch(ctx, true, true); err != nil {
		return err
	}

	existing, err := s.Git.ListTags(ctx, tagName)
	if err != nil {
		return hoperrors.Internal("reserve_patch", err)
	}
	if len(existing) > 0 {
		return hoperrors.Coordination("reserve_patch", "ReservedElsewhere", fmt.Errorf("patch id %s already reserved", id))
	}

	if err := s.Git.CreateTag(ctx, tagName, ref, ""); err != nil {
		return err
	}

	result, err := s.Git.PushTag(ctx, tagName)
	if err != nil {
		_ = s.Git.DeleteTag(ctx, tagName, false)
		return err
	}
	if result == secondary.Rejected {
		_ = s.Git.DeleteTag(ctx, tagName, false)
		return hoperrors.Coordination("reserve_patch", "ReservedElsewhere", fmt.Errorf("patch id %s reserved by a concurrent caller", id))
	}
	return nil
}

// lockHandle is the LockHandle returned by Lock.
type lockHandle struct {
	svc *Service
	tag string
}

func (h *lockHandle) TagName() string { return h.tag }

// Release always deletes the tag locally and remotely; remote delete
// failures are logged, never fatal, matching spec.md §4.5.
func (h *lockHandle) Release(ctx context.Context) {
	if err := h.svc.Git.DeleteTag(ctx, h.tag, true); err != nil {
		h.svc.Log.Printf("lock: failed to delete tag %s on release: %v", h.tag, err)
	}
}

// Lock acquires the mutual-exclusion lock for scope. It fetches, sweeps any
// stale lock tags for the scope, fails with Busy if a live lock remains,
// then creates and pushes a new lock tag stamped with the current time.
func (s *Service) Lock(ctx context.Context, scope string) (secondary.LockHandle, error) {
	prefix := "lock-" + scope + "-"

	if err := s.Git.Fetch(ctx, true, true); err != nil {
		return nil, err
	}

	tags, err := s.Git.ListTags(ctx, prefix+"*")
	if err != nil {
		return nil, hoperrors.Internal("lock", err)
	}

	now := s.Now()
	var live []string
	for _, t := range tags {
		if !strings.HasPrefix(t, prefix) {
			continue
		}
		ms, ok := tagTimestamp(t, prefix)
		if !ok {
			continue
		}
		if now-ms > StalenessHorizonMillis {
			// Best-effort sweep of a stale lock; never fatal.
			_ = s.Git.DeleteTag(ctx, t, true)
			continue
		}
		live = append(live, t)
	}
	if len(live) > 0 {
		return nil, hoperrors.Coordination("lock", "Busy", fmt.Errorf("lock %s is held (age < %dms)", live[0], StalenessHorizonMillis))
	}

	tagName := fmt.Sprintf("%s%d", prefix, now)
	if err := s.Git.CreateTag(ctx, tagName, "", ""); err != nil {
		return nil, err
	}
	result, err := s.Git.PushTag(ctx, tagName)
	if err != nil {
		_ = s.Git.DeleteTag(ctx, tagName, false)
		return nil, err
	}
	if result == secondary.Rejected {
		_ = s.Git.DeleteTag(ctx, tagName, false)
		return nil, hoperrors.Coordination("lock", "Busy", fmt.Errorf("lock %s was acquired by a concurrent caller", scope))
	}
	return &lockHandle{svc: s, tag: tagName}, nil
}

func tagTimestamp(tag, prefix string) (int64, bool) {
	suffix := strings.TrimPrefix(tag, prefix)
	var ms int64
	if _, err := fmt.Sscanf(suffix, "%d", &ms); err != nil {
		return 0, false
	}
	return ms, true
}

var _ secondary.LockService = (*Service)(nil)
