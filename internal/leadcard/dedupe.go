package leadcard

import (
	"cmp"
	"slices"
	"time"
)

// Seen records which sources reported a channel entry and when.
type Seen struct {
	Sources   []string  `json:"sources"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Entry is a card channel entry that can be grouped and ranked.
type Entry[T any] interface {
	Primary() bool
	Provenance() Seen
	WithProvenance(Seen) T
}

// Dedupe collapses entries that share a key into one representative and
// returns them ranked. Entries whose key is invalid are dropped. Within a
// group the representative is the explicit primary, then the entry with the
// most sources, then the most recently seen; its provenance becomes the
// union of the group's.
func Dedupe[T Entry[T]](items []T, key func(T) (string, bool)) []T {
	type group struct {
		key  string
		rep  T
		seen Seen
	}

	var groups []*group
	byKey := make(map[string]*group)
	for _, it := range items {
		k, ok := key(it)
		if !ok {
			continue
		}
		g, exists := byKey[k]
		if !exists {
			g = &group{key: k, rep: it, seen: it.Provenance()}
			byKey[k] = g
			groups = append(groups, g)
			continue
		}
		if preferred(it, g.rep) {
			g.rep = it
		}
		g.seen = unionSeen(g.seen, it.Provenance())
	}

	slices.SortStableFunc(groups, func(a, b *group) int {
		if c := rank(a.rep.WithProvenance(a.seen), b.rep.WithProvenance(b.seen)); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})

	out := make([]T, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.rep.WithProvenance(g.seen))
	}
	return out
}

// preferred reports whether a should replace b as a group representative.
func preferred[T Entry[T]](a, b T) bool {
	return rank(a, b) < 0
}

// rank orders entries: flagged primary by a source first, then more sources,
// then most recently seen.
func rank[T Entry[T]](a, b T) int {
	if a.Primary() != b.Primary() {
		if a.Primary() {
			return -1
		}
		return 1
	}
	sa, sb := a.Provenance(), b.Provenance()
	if c := cmp.Compare(len(sb.Sources), len(sa.Sources)); c != 0 {
		return c
	}
	return sb.LastSeen.Compare(sa.LastSeen)
}

func unionSeen(a, b Seen) Seen {
	out := Seen{
		Sources:   unionStrings(a.Sources, b.Sources),
		FirstSeen: a.FirstSeen,
		LastSeen:  a.LastSeen,
	}
	if out.FirstSeen.IsZero() || (!b.FirstSeen.IsZero() && b.FirstSeen.Before(out.FirstSeen)) {
		out.FirstSeen = b.FirstSeen
	}
	if b.LastSeen.After(out.LastSeen) {
		out.LastSeen = b.LastSeen
	}
	return out
}

func unionStrings(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	slices.Sort(out)
	return slices.Compact(out)
}
