package mirror

import (
	"sort"

	"github.com/platinummonkey/rpmmirror/pkg/content"
)

// CrossReferences links advisories and groups to the package records of one
// repository version. They are derived data: rebuilt from the full content
// set after every sync, never patched incrementally, so a removed package
// can never leave a dangling link behind.
type CrossReferences struct {
	// AdvisoryPackages maps advisory ID to the keys of affected packages
	// present in the version.
	AdvisoryPackages map[string][]content.NaturalKey

	// GroupPackages maps group ID to the keys of member packages present
	// in the version (all architectures of a named package).
	GroupPackages map[string][]content.NaturalKey
}

// BuildCrossReferences recomputes all cross-references from a version's
// complete record set. Advisory packages match on NEVRA; group members match
// on package name.
func BuildCrossReferences(records []content.Record) CrossReferences {
	byNEVRA := make(map[string][]content.NaturalKey)
	byName := make(map[string][]content.NaturalKey)
	for _, rec := range records {
		pkg, ok := rec.(*content.PackageRecord)
		if !ok {
			continue
		}
		byNEVRA[pkg.NEVRA()] = append(byNEVRA[pkg.NEVRA()], pkg.Key())
		byName[pkg.Name] = append(byName[pkg.Name], pkg.Key())
	}

	xr := CrossReferences{
		AdvisoryPackages: make(map[string][]content.NaturalKey),
		GroupPackages:    make(map[string][]content.NaturalKey),
	}

	for _, rec := range records {
		switch r := rec.(type) {
		case *content.AdvisoryRecord:
			var keys []content.NaturalKey
			seen := make(map[content.NaturalKey]bool)
			for _, pkg := range r.Packages() {
				for _, key := range byNEVRA[pkg.NEVRA()] {
					if !seen[key] {
						seen[key] = true
						keys = append(keys, key)
					}
				}
			}
			sortKeys(keys)
			xr.AdvisoryPackages[r.ID] = keys
		case *content.GroupRecord:
			var keys []content.NaturalKey
			seen := make(map[content.NaturalKey]bool)
			for _, member := range r.Packages {
				for _, key := range byName[member.Name] {
					if !seen[key] {
						seen[key] = true
						keys = append(keys, key)
					}
				}
			}
			sortKeys(keys)
			xr.GroupPackages[r.ID] = keys
		}
	}

	return xr
}

func sortKeys(keys []content.NaturalKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}
