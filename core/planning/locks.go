package planning

import (
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/kilianp07/haulboard/core/model"
)

type keyedMutex struct {
	mu   sync.Mutex
	refs int
}

// KeyedLocker hands out one mutex per key. Entries are dropped once no
// goroutine holds or waits for them.
type KeyedLocker struct {
	locks *xsync.Map[string, *keyedMutex]
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: xsync.NewMap[string, *keyedMutex]()}
}

// Lock acquires every key in sorted order and returns the release func.
// Duplicate and empty keys are ignored.
func (l *KeyedLocker) Lock(keys ...string) func() {
	keys = normalizeKeys(keys)
	held := make([]*keyedMutex, 0, len(keys))
	for _, k := range keys {
		m, _ := l.locks.Compute(k, func(cur *keyedMutex, loaded bool) (*keyedMutex, xsync.ComputeOp) {
			if !loaded {
				cur = &keyedMutex{}
			}
			cur.refs++
			return cur, xsync.UpdateOp
		})
		m.mu.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.locks.Compute(keys[i], func(cur *keyedMutex, loaded bool) (*keyedMutex, xsync.ComputeOp) {
				if !loaded {
					return cur, xsync.CancelOp
				}
				cur.refs--
				if cur.refs <= 0 {
					return cur, xsync.DeleteOp
				}
				return cur, xsync.UpdateOp
			})
		}
	}
}

// Len returns the number of keys currently tracked.
func (l *KeyedLocker) Len() int {
	return l.locks.Size()
}

func normalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func assignmentKey(transportID string, day time.Time) string {
	return "transport:" + transportID + "|" + day.Format(model.DayLayout)
}

func resourceKey(kind model.ResourceKind, id *string, day time.Time) string {
	if id == nil || *id == "" {
		return ""
	}
	return string(kind) + ":" + *id + "|" + day.Format(model.DayLayout)
}
