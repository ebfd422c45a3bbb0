package alerting

import (
	"hash/fnv"
	"sort"
	"strconv"
	"time"

	"github.com/ftahirops/xdiag/model"
)

// volatileKeys change on every evaluation and are left out of fingerprints
// and similarity.
var volatileKeys = map[string]bool{"value": true}

// fingerprint hashes the alert type and its stable context entries in key order.
func fingerprint(t model.AlertType, ctx map[string]string) string {
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		if !volatileKeys[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	h := fnv.New64a()
	_, _ = h.Write([]byte(t))
	for _, k := range keys {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(k))
		_, _ = h.Write([]byte{'='})
		_, _ = h.Write([]byte(ctx[k]))
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// suppressionTable maps fingerprints to expiry times.
type suppressionTable struct {
	until map[string]time.Time
}

func newSuppressionTable() *suppressionTable {
	return &suppressionTable{until: make(map[string]time.Time)}
}

func (s *suppressionTable) add(fp string, until time.Time) {
	if cur, ok := s.until[fp]; ok && cur.After(until) {
		return
	}
	s.until[fp] = until
}

func (s *suppressionTable) suppressed(fp string, now time.Time) bool {
	until, ok := s.until[fp]
	return ok && now.Before(until)
}

// prune drops expired entries and returns how many were removed.
func (s *suppressionTable) prune(now time.Time) int {
	n := 0
	for fp, until := range s.until {
		if !now.Before(until) {
			delete(s.until, fp)
			n++
		}
	}
	return n
}

func (s *suppressionTable) size() int { return len(s.until) }

// similar reports whether two contexts share at least half of the larger
// key set. Two empty contexts are similar.
func similar(a, b map[string]string) bool {
	na, nb := stableKeyCount(a), stableKeyCount(b)
	larger := na
	if nb > larger {
		larger = nb
	}
	if larger == 0 {
		return true
	}
	shared := 0
	for k := range a {
		if volatileKeys[k] {
			continue
		}
		if _, ok := b[k]; ok {
			shared++
		}
	}
	return float64(shared)/float64(larger) >= 0.5
}

func stableKeyCount(m map[string]string) int {
	n := 0
	for k := range m {
		if !volatileKeys[k] {
			n++
		}
	}
	return n
}
