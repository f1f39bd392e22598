package mirror

import (
	"fmt"
	"sort"

	"github.com/platinummonkey/rpmmirror/pkg/content"
	"github.com/platinummonkey/rpmmirror/pkg/store"
)

// IdentityConflictError reports two records in one sync batch that claim the
// same natural key with different content. Nothing is guessed; the sync
// fails and the previous version stays current.
type IdentityConflictError struct {
	Key     content.NaturalKey
	Digests [2]content.Digest
}

func (e *IdentityConflictError) Error() string {
	return fmt.Sprintf("identity conflict on %s: digest %s vs %s",
		e.Key, e.Digests[0], e.Digests[1])
}

// Changeset is the outcome of diffing an incoming batch against the previous
// repository version. Added records still need storing; Removed and Carried
// are handles into the previous version.
type Changeset struct {
	Added   []content.Record
	Removed []store.Handle
	Carried []store.Handle
}

// Empty reports whether the changeset would produce a version identical to
// the previous one.
func (c *Changeset) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0
}

// Reconcile diffs incoming records against the member handles of the
// previous version.
//
// Matching keys with equal digests carry the stored record forward; a
// changed digest removes the old record and adds the new one. Keys present
// before but absent from the batch are removed only when their type was
// actually provided in this sync AND the type is authoritative for the
// remote; everything else is carried forward untouched.
func Reconcile(previous []store.Handle, incoming []content.Record, present, authoritative map[content.RecordType]bool) (*Changeset, error) {
	incomingByKey := make(map[content.NaturalKey]content.Record, len(incoming))
	digests := make(map[content.NaturalKey]content.Digest, len(incoming))
	for _, rec := range incoming {
		key := rec.Key()
		digest := rec.Fingerprint()
		if prior, ok := digests[key]; ok {
			if prior != digest {
				return nil, &IdentityConflictError{
					Key:     key,
					Digests: [2]content.Digest{prior, digest},
				}
			}
			// Exact duplicate within the batch, keep the first.
			continue
		}
		incomingByKey[key] = rec
		digests[key] = digest
	}

	previousByKey := make(map[content.NaturalKey]store.Handle, len(previous))
	for _, h := range previous {
		previousByKey[h.Key] = h
	}

	cs := &Changeset{}
	for key, rec := range incomingByKey {
		prev, existed := previousByKey[key]
		switch {
		case !existed:
			cs.Added = append(cs.Added, rec)
		case prev.Digest == digests[key]:
			cs.Carried = append(cs.Carried, prev)
		default:
			cs.Removed = append(cs.Removed, prev)
			cs.Added = append(cs.Added, rec)
		}
	}

	for _, h := range previous {
		if _, ok := incomingByKey[h.Key]; ok {
			continue
		}
		if present[h.Key.Type] && authoritative[h.Key.Type] {
			cs.Removed = append(cs.Removed, h)
		} else {
			cs.Carried = append(cs.Carried, h)
		}
	}

	sort.Slice(cs.Added, func(i, j int) bool {
		return cs.Added[i].Key().Less(cs.Added[j].Key())
	})
	sort.Slice(cs.Removed, func(i, j int) bool {
		return cs.Removed[i].Key.Less(cs.Removed[j].Key)
	})
	sort.Slice(cs.Carried, func(i, j int) bool {
		return cs.Carried[i].Key.Less(cs.Carried[j].Key)
	})

	return cs, nil
}
