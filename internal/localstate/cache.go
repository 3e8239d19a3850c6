package localstate

import (
	"database/sql"
	"errors"
)

// ObservedLock records that a lock-<scope>-<ms> tag was seen on the
// remote, so a caller that only needs a cheap approximation can read it
// back without re-listing tags.
type ObservedLock struct {
	TagName      string
	Scope        string
	ObservedAtMs int64
}

// RecordLock upserts an observed lock tag.
func (s *Store) RecordLock(l ObservedLock) error {
	_, err := s.db.Exec(`
		INSERT INTO observed_locks (tag_name, scope, observed_at_ms)
		VALUES (?, ?, ?)
		ON CONFLICT(tag_name) DO UPDATE SET observed_at_ms = excluded.observed_at_ms
	`, l.TagName, l.Scope, l.ObservedAtMs)
	return err
}

// ForgetLock removes a lock tag once it has been released.
func (s *Store) ForgetLock(tagName string) error {
	_, err := s.db.Exec(`DELETE FROM observed_locks WHERE tag_name = ?`, tagName)
	return err
}

// ObservedLocks returns every cached lock observation.
func (s *Store) ObservedLocks() ([]ObservedLock, error) {
	rows, err := s.db.Query(`SELECT tag_name, scope, observed_at_ms FROM observed_locks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ObservedLock
	for rows.Next() {
		var l ObservedLock
		if err := rows.Scan(&l.TagName, &l.Scope, &l.ObservedAtMs); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ReleaseSnapshotCache is a cheap, possibly-stale count pair for an open
// release, which a caller can read instead of reloading and re-parsing the
// manifest file.
type ReleaseSnapshotCache struct {
	Version        string
	CandidateCount int
	StagedCount    int
	CachedAtMs     int64
}

// PutReleaseSnapshot upserts the cached counts for a release version.
func (s *Store) PutReleaseSnapshot(c ReleaseSnapshotCache) error {
	_, err := s.db.Exec(`
		INSERT INTO release_snapshot_cache (version, candidate_count, staged_count, cached_at_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(version) DO UPDATE SET
			candidate_count = excluded.candidate_count,
			staged_count = excluded.staged_count,
			cached_at_ms = excluded.cached_at_ms
	`, c.Version, c.CandidateCount, c.StagedCount, c.CachedAtMs)
	return err
}

// ReleaseSnapshot returns the cached counts for a version, if present.
func (s *Store) ReleaseSnapshot(version string) (ReleaseSnapshotCache, bool, error) {
	var c ReleaseSnapshotCache
	c.Version = version
	err := s.db.QueryRow(`
		SELECT candidate_count, staged_count, cached_at_ms
		FROM release_snapshot_cache WHERE version = ?
	`, version).Scan(&c.CandidateCount, &c.StagedCount, &c.CachedAtMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ReleaseSnapshotCache{}, false, nil
		}
		return ReleaseSnapshotCache{}, false, err
	}
	return c, true, nil
}

// ClearReleaseSnapshot drops a cached entry once the release closes.
func (s *Store) ClearReleaseSnapshot(version string) error {
	_, err := s.db.Exec(`DELETE FROM release_snapshot_cache WHERE version = ?`, version)
	return err
}
