package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePackage() *PackageRecord {
	return &PackageRecord{
		Name:         "bash",
		Epoch:        "0",
		Version:      "5.1.8",
		Release:      "4.el9",
		Arch:         "x86_64",
		ChecksumType: "sha256",
		Checksum:     "deadbeef",
		Location:     "Packages/b/bash-5.1.8-4.el9.x86_64.rpm",
		Summary:      "The GNU Bourne Again shell",
		PackageSize:  1234567,
		Requires: []Dependency{
			{Name: "glibc", Flags: DepFlagGE, Version: "2.34"},
		},
		Files: []string{"/usr/bin/bash"},
	}
}

func TestPackageNaturalKey(t *testing.T) {
	pkg := samplePackage()
	key := pkg.Key()
	assert.Equal(t, TypePackage, key.Type)
	assert.Equal(t, "bash/0/5.1.8/4.el9/x86_64/deadbeef", key.ID)
}

func TestPackageNaturalKeyDefaultsEpoch(t *testing.T) {
	pkg := samplePackage()
	pkg.Epoch = ""
	assert.Equal(t, "bash/0/5.1.8/4.el9/x86_64/deadbeef", pkg.Key().ID)
	assert.Equal(t, "bash-0:5.1.8-4.el9.x86_64", pkg.NEVRA())
}

func TestPackageFingerprintStable(t *testing.T) {
	a := samplePackage()
	b := samplePackage()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestPackageFingerprintSensitiveToFiles(t *testing.T) {
	a := samplePackage()
	b := samplePackage()
	b.Files = append(b.Files, "/usr/bin/sh")
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestPackageFingerprintFieldsCannotShift(t *testing.T) {
	// Length prefixing must prevent adjacent fields from colliding when
	// content moves across a field boundary.
	a := samplePackage()
	b := samplePackage()
	a.Version = "5.1"
	a.Release = "8"
	b.Version = "5.1.8"
	b.Release = ""
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestAdvisoryFingerprintChangesOnUpdatedTimestamp(t *testing.T) {
	a := &AdvisoryRecord{
		ID:           "RHSA-2024:0001",
		AdvisoryType: "security",
		Issued:       "2024-01-01 00:00:00",
		Updated:      "2024-01-01 00:00:00",
	}
	b := &AdvisoryRecord{
		ID:           "RHSA-2024:0001",
		AdvisoryType: "security",
		Issued:       "2024-01-01 00:00:00",
		Updated:      "2024-02-01 00:00:00",
	}
	assert.Equal(t, a.Key(), b.Key(), "revised advisory keeps its natural key")
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestGroupFingerprintIgnoresTranslationOrder(t *testing.T) {
	a := &GroupRecord{
		ID: "core",
		TranslatedNames: map[string]string{
			"de": "Kern", "fr": "Noyau", "es": "Nucleo",
		},
	}
	b := &GroupRecord{
		ID: "core",
		TranslatedNames: map[string]string{
			"es": "Nucleo", "de": "Kern", "fr": "Noyau",
		},
	}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestModuleNaturalKey(t *testing.T) {
	m := &ModuleRecord{
		Name:    "nodejs",
		Stream:  "18",
		Version: 9100020230206143818,
		Context: "rhel9",
		Arch:    "x86_64",
	}
	assert.Equal(t, "nodejs/18/9100020230206143818/rhel9/x86_64", m.Key().ID)
}

func TestMarshalRoundTrip(t *testing.T) {
	for _, rec := range []Record{
		samplePackage(),
		&GroupRecord{ID: "core", Name: "Core", Packages: []GroupPackage{{Name: "bash", Type: GroupPackageMandatory}}},
		&CategoryRecord{ID: "base", Groups: []string{"core"}},
		&EnvironmentRecord{ID: "minimal", Groups: []string{"core"}, Options: []string{"debug"}},
		&AdvisoryRecord{ID: "RHSA-2024:0001", AdvisoryType: "security"},
		&ModuleRecord{Name: "nodejs", Stream: "18", Version: 1, Context: "c1", Arch: "x86_64"},
		&ModuleDefaultsRecord{Module: "nodejs", Stream: "18"},
	} {
		data, err := Marshal(rec)
		require.NoError(t, err)

		decoded, err := Unmarshal(rec.Type(), data)
		require.NoError(t, err)
		assert.Equal(t, rec.Key(), decoded.Key())
		assert.Equal(t, rec.Fingerprint(), decoded.Fingerprint())
	}
}

func TestUnmarshalUnknownType(t *testing.T) {
	_, err := Unmarshal(RecordType("distribution"), []byte("{}"))
	assert.Error(t, err)
}

func TestNaturalKeyOrdering(t *testing.T) {
	a := NaturalKey{Type: TypePackage, ID: "bash/0/5.1.8/4.el9/aarch64/aa"}
	b := NaturalKey{Type: TypePackage, ID: "bash/0/5.1.8/4.el9/x86_64/bb"}
	assert.True(t, a.Less(b), "architecture is the trailing tiebreak")
	assert.False(t, b.Less(a))
}
