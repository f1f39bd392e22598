package mirror

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/rpmmirror/pkg/content"
	"github.com/platinummonkey/rpmmirror/pkg/store"
)

func pkg(name, release, checksum string) *content.PackageRecord {
	return &content.PackageRecord{
		Name:         name,
		Epoch:        "0",
		Version:      "1.0",
		Release:      release,
		Arch:         "x86_64",
		ChecksumType: "sha256",
		Checksum:     checksum,
	}
}

func handleFor(rec content.Record) store.Handle {
	return store.Handle{Key: rec.Key(), Digest: rec.Fingerprint()}
}

func allTypes() map[content.RecordType]bool {
	m := make(map[content.RecordType]bool)
	for _, t := range content.AllRecordTypes() {
		m[t] = true
	}
	return m
}

func TestReconcileFirstSync(t *testing.T) {
	incoming := []content.Record{pkg("bash", "1", "aa"), pkg("zsh", "1", "bb")}

	cs, err := Reconcile(nil, incoming, allTypes(), allTypes())
	require.NoError(t, err)

	assert.Len(t, cs.Added, 2)
	assert.Empty(t, cs.Removed)
	assert.Empty(t, cs.Carried)
}

func TestReconcileUnchangedCarriesHandle(t *testing.T) {
	a := pkg("bash", "1", "aa")
	previous := []store.Handle{handleFor(a)}

	cs, err := Reconcile(previous, []content.Record{pkg("bash", "1", "aa")}, allTypes(), allTypes())
	require.NoError(t, err)

	assert.True(t, cs.Empty())
	require.Len(t, cs.Carried, 1)
	assert.Equal(t, a.Key(), cs.Carried[0].Key)
}

func TestReconcileChangedDigestReplaces(t *testing.T) {
	old := pkg("bash", "1", "aa")
	old.Summary = "old"
	previous := []store.Handle{handleFor(old)}

	updated := pkg("bash", "1", "aa")
	updated.Summary = "new"
	require.Equal(t, old.Key(), updated.Key())

	cs, err := Reconcile(previous, []content.Record{updated}, allTypes(), allTypes())
	require.NoError(t, err)

	require.Len(t, cs.Added, 1)
	require.Len(t, cs.Removed, 1)
	assert.Equal(t, old.Key(), cs.Removed[0].Key)
}

func TestReconcileRemovesOnlyAuthoritativeTypes(t *testing.T) {
	previous := []store.Handle{
		handleFor(pkg("bash", "1", "aa")),
		handleFor(&content.AdvisoryRecord{ID: "RHSA-2024:0001"}),
	}

	// Both types provided, but only packages are authoritative. The vanished
	// advisory stays; the vanished package goes.
	present := map[content.RecordType]bool{
		content.TypePackage:  true,
		content.TypeAdvisory: true,
	}
	authoritative := map[content.RecordType]bool{content.TypePackage: true}

	cs, err := Reconcile(previous, nil, present, authoritative)
	require.NoError(t, err)

	require.Len(t, cs.Removed, 1)
	assert.Equal(t, content.TypePackage, cs.Removed[0].Key.Type)
	require.Len(t, cs.Carried, 1)
	assert.Equal(t, content.TypeAdvisory, cs.Carried[0].Key.Type)
}

func TestReconcileAbsentTypeCarriedForward(t *testing.T) {
	previous := []store.Handle{handleFor(&content.AdvisoryRecord{ID: "RHSA-2024:0001"})}

	// No updateinfo in this snapshot at all: advisories are not diffed even
	// though the type is authoritative.
	present := map[content.RecordType]bool{content.TypePackage: true}

	cs, err := Reconcile(previous, nil, present, allTypes())
	require.NoError(t, err)

	assert.Empty(t, cs.Removed)
	require.Len(t, cs.Carried, 1)
}

func TestReconcileIdentityConflict(t *testing.T) {
	a := pkg("bash", "1", "aa")
	a.Summary = "one"
	b := pkg("bash", "1", "aa")
	b.Summary = "two"

	_, err := Reconcile(nil, []content.Record{a, b}, allTypes(), allTypes())

	var conflict *IdentityConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, a.Key(), conflict.Key)
}

func TestReconcileToleratesExactDuplicates(t *testing.T) {
	cs, err := Reconcile(nil, []content.Record{pkg("bash", "1", "aa"), pkg("bash", "1", "aa")}, allTypes(), allTypes())
	require.NoError(t, err)
	assert.Len(t, cs.Added, 1)
}

func TestReconcileDeterministicOrder(t *testing.T) {
	incoming := []content.Record{pkg("zsh", "1", "cc"), pkg("bash", "1", "aa"), pkg("tcsh", "1", "bb")}

	cs, err := Reconcile(nil, incoming, allTypes(), allTypes())
	require.NoError(t, err)

	require.Len(t, cs.Added, 3)
	assert.Equal(t, "bash", cs.Added[0].(*content.PackageRecord).Name)
	assert.Equal(t, "tcsh", cs.Added[1].(*content.PackageRecord).Name)
	assert.Equal(t, "zsh", cs.Added[2].(*content.PackageRecord).Name)
}

func TestBuildCrossReferences(t *testing.T) {
	bash := pkg("bash", "1", "aa")
	zsh := pkg("zsh", "1", "bb")

	advisory := &content.AdvisoryRecord{
		ID: "RHSA-2024:0001",
		Collections: []content.AdvisoryCollection{{
			Name: "base",
			Packages: []content.AdvisoryPackage{
				{Name: "bash", Epoch: "0", Version: "1.0", Release: "1", Arch: "x86_64"},
				{Name: "httpd", Epoch: "0", Version: "2.4", Release: "1", Arch: "x86_64"},
			},
		}},
	}
	group := &content.GroupRecord{
		ID: "shells",
		Packages: []content.GroupPackage{
			{Name: "bash", Type: content.GroupPackageMandatory},
			{Name: "zsh", Type: content.GroupPackageOptional},
			{Name: "fish", Type: content.GroupPackageOptional},
		},
	}

	xr := BuildCrossReferences([]content.Record{bash, zsh, advisory, group})

	// httpd and fish are not in the version: no dangling links.
	require.Len(t, xr.AdvisoryPackages["RHSA-2024:0001"], 1)
	assert.Equal(t, bash.Key(), xr.AdvisoryPackages["RHSA-2024:0001"][0])

	require.Len(t, xr.GroupPackages["shells"], 2)
	assert.Equal(t, bash.Key(), xr.GroupPackages["shells"][0])
	assert.Equal(t, zsh.Key(), xr.GroupPackages["shells"][1])
}

func TestBuildCrossReferencesAllArches(t *testing.T) {
	x86 := pkg("bash", "1", "aa")
	arm := pkg("bash", "1", "bb")
	arm.Arch = "aarch64"

	group := &content.GroupRecord{
		ID:       "shells",
		Packages: []content.GroupPackage{{Name: "bash", Type: content.GroupPackageMandatory}},
	}

	xr := BuildCrossReferences([]content.Record{x86, arm, group})
	assert.Len(t, xr.GroupPackages["shells"], 2)
}
