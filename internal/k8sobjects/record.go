package k8sobjects

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// InitialDate is the "never sent" sentinel for bookkeeping timestamps.
var InitialDate = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// SlugMaxLen bounds the {#SLUG} discovery tag.
const SlugMaxLen = 40

// Record is the projected form of one live cluster object, plus the
// per-object bookkeeping the dispatch engine needs. The store key is
// UID(), derived from kind, namespace and name.
type Record struct {
	Kind      Kind
	Name      string
	Namespace string // empty for cluster-scoped kinds
	BaseName  string // pods only: generator name stripped per owner kind

	Payload  map[string]string
	Checksum string

	Added          time.Time
	LastSentZabbix time.Time
	LastSentWeb    time.Time
	DirtyZabbix    bool
	DirtyWeb       bool
}

// UID returns the stable store identity kind_[namespace_]name.
func (r *Record) UID() string {
	if r.Namespace != "" {
		return string(r.Kind) + "_" + r.Namespace + "_" + r.Name
	}
	return string(r.Kind) + "_" + r.Name
}

// Slug returns the human-readable discovery key for a name.
func (r *Record) Slug(name string) string {
	ns := r.Namespace
	if ns == "" {
		ns = "None"
	}
	return Slugit(ns, name, SlugMaxLen)
}

// Clone returns a shallow copy with its own payload map, safe to hand
// to sink I/O outside the store lock.
func (r *Record) Clone() *Record {
	cp := *r
	cp.Payload = make(map[string]string, len(r.Payload))
	for k, v := range r.Payload {
		cp.Payload[k] = v
	}
	return &cp
}

// IsUnsubmittedWeb reports whether the record was never posted to the
// inventory API.
func (r *Record) IsUnsubmittedWeb() bool {
	return r.LastSentWeb.Equal(InitialDate)
}

// IsUnsubmittedZabbix reports whether the record never reached zabbix.
func (r *Record) IsUnsubmittedZabbix() bool {
	return r.LastSentZabbix.Equal(InitialDate)
}

func newRecord(kind Kind, namespace, name string) *Record {
	return &Record{
		Kind:           kind,
		Name:           name,
		Namespace:      namespace,
		Payload:        map[string]string{},
		Added:          InitialDate,
		LastSentZabbix: InitialDate,
		LastSentWeb:    InitialDate,
		DirtyZabbix:    true,
		DirtyWeb:       true,
	}
}

// ComputeChecksum hashes the canonical JSON serialisation of a raw
// object: keys sorted, dates in RFC 3339. Two objects that differ only
// in serialisation whitespace hash identically.
func ComputeChecksum(obj interface{}) (string, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("marshal object for checksum: %w", err)
	}
	// round-trip through a generic value so map keys come out sorted
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("canonicalise object for checksum: %w", err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("marshal canonical object: %w", err)
	}
	sum := md5.Sum(canonical)
	return hex.EncodeToString(sum[:]), nil
}

var (
	kibiRe  = regexp.MustCompile(`^(\d+)Ki$`)
	milliRe = regexp.MustCompile(`^(\d+)m$`)
)

// TransformValue normalises the upstream scalar grammar to plain
// strings: NKi becomes bytes, Nm becomes a fraction, empty becomes 0.
func TransformValue(value string) string {
	if value == "" {
		return "0"
	}
	if m := kibiRe.FindStringSubmatch(value); m != nil {
		n, _ := strconv.ParseInt(m[1], 10, 64)
		return strconv.FormatInt(n*1024, 10)
	}
	if m := milliRe.FindStringSubmatch(value); m != nil {
		n, _ := strconv.ParseFloat(m[1], 64)
		return strconv.FormatFloat(n/1000, 'g', -1, 64)
	}
	return value
}

// Slugit builds namespace/name, truncated to maxlen by joining a
// prefix and a suffix with "~".
func Slugit(namespace, name string, maxlen int) string {
	slug := name
	if namespace != "" {
		slug = namespace + "/" + name
	}
	if len(slug) <= maxlen {
		return slug
	}
	prefixPos := maxlen/2 - 1
	suffixPos := len(slug) - (maxlen - prefixPos - 1)
	return slug[:prefixPos] + "~" + slug[suffixPos:]
}
