package store

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vico-research-and-consulting/k8s-zabbix/internal/k8sobjects"
)

// UpsertResult classifies what an upsert did to the store.
type UpsertResult int

const (
	ResultUnchanged UpsertResult = iota
	ResultInserted
	ResultModified
)

func (r UpsertResult) String() string {
	switch r {
	case ResultInserted:
		return "inserted"
	case ResultModified:
		return "modified"
	default:
		return "unchanged"
	}
}

// State is the one long-lived shared-state object: the per-kind
// stores plus the discovery and refresh ledgers, all guarded by a
// single mutex. Sink and upstream I/O never happens while the lock is
// held — callers snapshot, release, then send.
type State struct {
	mu sync.Mutex

	objects       map[k8sobjects.Kind]map[string]*k8sobjects.Record
	discoverySent map[k8sobjects.Kind]time.Time
	dataRefreshed map[k8sobjects.Kind]time.Time

	// Clock is swappable in tests; defaults to time.Now.
	Clock func() time.Time
}

func NewState() *State {
	return &State{
		objects:       map[k8sobjects.Kind]map[string]*k8sobjects.Record{},
		discoverySent: map[k8sobjects.Kind]time.Time{},
		dataRefreshed: map[k8sobjects.Kind]time.Time{},
		Clock:         time.Now,
	}
}

// Upsert admits a freshly projected record. First admission stamps
// Added and leaves both dirty flags set; a content change carries the
// old bookkeeping forward and re-dirties; identical content is a
// no-op. The returned record is a clone safe to use outside the lock.
func (s *State) Upsert(rec *k8sobjects.Record) (UpsertResult, *k8sobjects.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(rec)
}

func (s *State) upsertLocked(rec *k8sobjects.Record) (UpsertResult, *k8sobjects.Record) {
	kind := rec.Kind
	if s.objects[kind] == nil {
		s.objects[kind] = map[string]*k8sobjects.Record{}
	}

	uid := rec.UID()
	existing, found := s.objects[kind][uid]
	if !found {
		rec.Added = s.Clock()
		rec.DirtyZabbix = true
		rec.DirtyWeb = true
		s.objects[kind][uid] = rec
		return ResultInserted, rec.Clone()
	}

	if existing.Checksum == rec.Checksum {
		return ResultUnchanged, existing.Clone()
	}

	rec.Added = existing.Added
	rec.LastSentZabbix = existing.LastSentZabbix
	rec.LastSentWeb = existing.LastSentWeb
	rec.DirtyZabbix = true
	rec.DirtyWeb = true
	s.objects[kind][uid] = rec
	return ResultModified, rec.Clone()
}

// Delete removes a record by uid and returns a clone of the removed
// record, or nil if it was not present.
func (s *State) Delete(kind k8sobjects.Kind, uid string) *k8sobjects.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, found := s.objects[kind][uid]
	if !found {
		return nil
	}
	delete(s.objects[kind], uid)
	return existing.Clone()
}

// Snapshot returns clones of all records of a kind.
func (s *State) Snapshot(kind k8sobjects.Kind) []*k8sobjects.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]*k8sobjects.Record, 0, len(s.objects[kind]))
	for _, rec := range s.objects[kind] {
		records = append(records, rec.Clone())
	}
	return records
}

// Reconcile applies an authoritative full list: every listed record is
// upserted and every stored uid absent from the list is removed. The
// refresh ledger is stamped. Returns clones of the removed records.
// Relist deletions stay silent toward the inventory sink on purpose;
// only watch-observed deletions send the "deleted" action.
func (s *State) Reconcile(kind k8sobjects.Kind, recs []*k8sobjects.Record) []*k8sobjects.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	present := map[string]bool{}
	for _, rec := range recs {
		_, _ = s.upsertLocked(rec)
		present[rec.UID()] = true
	}

	var removed []*k8sobjects.Record
	for uid, rec := range s.objects[kind] {
		if !present[uid] {
			logrus.Infof("reconcile[%s]: %s no longer listed, removing", kind, uid)
			removed = append(removed, rec.Clone())
			delete(s.objects[kind], uid)
		}
	}
	s.dataRefreshed[kind] = s.Clock()
	return removed
}

// Count returns the number of live records of a kind.
func (s *State) Count(kind k8sobjects.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects[kind])
}

// DiscoverySent returns when a kind's discovery was last pushed.
func (s *State) DiscoverySent(kind k8sobjects.Kind) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.discoverySent[kind]
	return t, ok
}

// SetDiscoverySent stamps the discovery ledger.
func (s *State) SetDiscoverySent(kind k8sobjects.Kind, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discoverySent[kind] = t
}

// DataRefreshed returns when a kind was last fully relisted.
func (s *State) DataRefreshed(kind k8sobjects.Kind) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.dataRefreshed[kind]
	return t, ok
}

// NeedsRefresh reports whether the kind has never been relisted or
// the last relist is older than the refresh interval.
func (s *State) NeedsRefresh(kind k8sobjects.Kind, refreshInterval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.dataRefreshed[kind]
	if !ok {
		return true
	}
	return last.Before(s.Clock().Add(-refreshInterval))
}

// MarkZabbixSent advances the zabbix bookkeeping for records that were
// actually delivered and clears their dirty flag. Records deleted in
// the meantime are skipped; timestamps never move backwards.
func (s *State) MarkZabbixSent(kind k8sobjects.Kind, uids []string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, uid := range uids {
		rec, found := s.objects[kind][uid]
		if !found {
			continue
		}
		if t.After(rec.LastSentZabbix) {
			rec.LastSentZabbix = t
		}
		rec.DirtyZabbix = false
	}
}

// MarkWebSent advances the inventory bookkeeping like MarkZabbixSent.
func (s *State) MarkWebSent(kind k8sobjects.Kind, uids []string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, uid := range uids {
		rec, found := s.objects[kind][uid]
		if !found {
			continue
		}
		if t.After(rec.LastSentWeb) {
			rec.LastSentWeb = t
		}
		rec.DirtyWeb = false
	}
}

// View runs fn with the raw records of a kind while holding the state
// lock. fn must not perform I/O or call back into State.
func (s *State) View(kind k8sobjects.Kind, fn func(objects map[string]*k8sobjects.Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects[kind] == nil {
		s.objects[kind] = map[string]*k8sobjects.Record{}
	}
	fn(s.objects[kind])
}

// Kinds lists every kind currently holding records.
func (s *State) Kinds() []k8sobjects.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]k8sobjects.Kind, 0, len(s.objects))
	for kind := range s.objects {
		kinds = append(kinds, kind)
	}
	return kinds
}
