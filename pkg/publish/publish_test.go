package publish

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/rpmmirror/pkg/content"
	"github.com/platinummonkey/rpmmirror/pkg/metadata"
	"github.com/platinummonkey/rpmmirror/pkg/observability"
	"github.com/platinummonkey/rpmmirror/pkg/store"
)

func newTestPublisher(t *testing.T) (*Publisher, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewPublisher(st, logger, nil), st
}

func fixtureRecords() []content.Record {
	return []content.Record{
		&content.PackageRecord{
			Name:          "bash",
			Epoch:         "0",
			Version:       "5.1.8",
			Release:       "4.el9",
			Arch:          "x86_64",
			ChecksumType:  "sha256",
			Checksum:      "deadbeef",
			Location:      "Packages/b/bash-5.1.8-4.el9.x86_64.rpm",
			Summary:       "The GNU Bourne Again shell",
			Description:   "Bash is the shell.",
			License:       "GPLv3+",
			Vendor:        "Example",
			SourceRPM:     "bash-5.1.8-4.el9.src.rpm",
			BuildTime:     1690000000,
			PackageSize:   1834480,
			InstalledSize: 7618417,
			ArchiveSize:   7622900,
			Provides: []content.Dependency{
				{Name: "bash", Flags: content.DepFlagEQ, Epoch: "0", Version: "5.1.8", Release: "4.el9"},
			},
			Requires: []content.Dependency{
				{Name: "glibc", Flags: content.DepFlagGE, Version: "2.34"},
				{Name: "filesystem", PreInstall: true},
			},
			Files: []string{"/usr/bin/bash", "/usr/bin/sh"},
			Changelogs: []content.Changelog{
				{Author: "Jane Doe - 5.1.8-4", Date: 1690000000, Text: "- rebuild"},
			},
		},
		&content.PackageRecord{
			Name:         "zsh",
			Epoch:        "0",
			Version:      "5.8",
			Release:      "9.el9",
			Arch:         "aarch64",
			ChecksumType: "sha256",
			Checksum:     "cafef00d",
			Location:     "Packages/z/zsh-5.8-9.el9.aarch64.rpm",
			Summary:      "Z shell",
		},
		&content.GroupRecord{
			ID:              "shells",
			Name:            "Shells",
			Description:     "Command shells",
			UserVisible:     true,
			TranslatedNames: map[string]string{"de": "Shells", "fr": "Interpreteurs"},
			Packages: []content.GroupPackage{
				{Name: "bash", Type: content.GroupPackageMandatory},
				{Name: "zsh", Type: content.GroupPackageOptional},
			},
		},
		&content.CategoryRecord{
			ID:     "base-system",
			Name:   "Base System",
			Groups: []string{"shells"},
		},
		&content.EnvironmentRecord{
			ID:      "minimal",
			Name:    "Minimal Install",
			Groups:  []string{"shells"},
			Options: []string{"base-system"},
		},
		&content.AdvisoryRecord{
			ID:           "RHSA-2024:0001",
			AdvisoryType: "security",
			Severity:     "Important",
			Title:        "bash security update",
			Summary:      "An update for bash.",
			Issued:       "2024-01-10 08:00:00",
			Updated:      "2024-01-15 12:30:00",
			From:         "security@example.com",
			Status:       "final",
			Version:      "2",
			References: []content.AdvisoryReference{
				{Type: "cve", ID: "CVE-2024-0001", Href: "https://example.com/cve/CVE-2024-0001", Title: "CVE-2024-0001"},
			},
			Collections: []content.AdvisoryCollection{{
				Name:      "Base",
				ShortName: "base",
				Packages: []content.AdvisoryPackage{{
					Name: "bash", Epoch: "0", Version: "5.1.8", Release: "5.el9", Arch: "x86_64",
					Src: "bash-5.1.8-5.el9.src.rpm", Filename: "bash-5.1.8-5.el9.x86_64.rpm",
					ChecksumType: "sha256", Checksum: "feedface",
				}},
			}},
		},
		&content.ModuleRecord{
			Name:        "nodejs",
			Stream:      "18",
			Version:     9100020240110,
			Context:     "rhel9",
			Arch:        "x86_64",
			Summary:     "Javascript runtime",
			Description: "Node.js",
			Profiles:    map[string][]string{"common": {"nodejs", "npm"}},
			Artifacts:   []string{"nodejs-1:18.19.0-1.module+el9.x86_64"},
			Dependencies: []content.ModuleDependency{
				{Module: "platform", Streams: []string{"el9"}},
			},
		},
		&content.ModuleDefaultsRecord{
			Module:   "nodejs",
			Stream:   "18",
			Profiles: map[string][]string{"18": {"common"}},
		},
	}
}

func storeVersion(t *testing.T, st *store.SQLiteStore, repository string, records []content.Record) *store.RepositoryVersion {
	t.Helper()
	ctx := context.Background()
	var handles []store.Handle
	for _, rec := range records {
		h, err := st.Put(ctx, rec)
		require.NoError(t, err)
		handles = append(handles, h)
	}
	v, err := st.CreateVersion(ctx, repository, handles)
	require.NoError(t, err)
	return v
}

func TestPublishVersionLayout(t *testing.T) {
	p, st := newTestPublisher(t)
	v := storeVersion(t, st, "rhel9", fixtureRecords())

	tree, err := p.PublishVersion(context.Background(), v, Options{OutDir: t.TempDir()})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(filepath.Dir(filepath.Dir(tree.Dir)), "rhel9", "1"), tree.Dir)
	require.Len(t, tree.Files, 6)

	// No staging leftovers next to the published tree.
	entries, err := os.ReadDir(filepath.Dir(filepath.Dir(tree.Dir)))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	f, err := os.Open(filepath.Join(tree.Dir, "repodata", "repomd.xml"))
	require.NoError(t, err)
	defer f.Close()

	md, err := metadata.ParseRepomd(f)
	require.NoError(t, err)
	assert.Equal(t, "1", md.Revision)

	for _, want := range []string{"primary", "filelists", "other", "group", "updateinfo", "modules"} {
		entry, ok := md.Get(want)
		require.True(t, ok, "repomd missing %s", want)
		assert.Contains(t, entry.Href, entry.Checksum+"-")
		assert.NotEmpty(t, entry.OpenChecksum)
		assert.Greater(t, entry.Size, int64(0))
		assert.Greater(t, entry.OpenSize, int64(0))

		_, err := os.Stat(filepath.Join(tree.Dir, filepath.FromSlash(entry.Href)))
		require.NoError(t, err)
	}
}

func TestPublishVersionChecksumsVerify(t *testing.T) {
	p, st := newTestPublisher(t)
	v := storeVersion(t, st, "rhel9", fixtureRecords())

	tree, err := p.PublishVersion(context.Background(), v, Options{OutDir: t.TempDir()})
	require.NoError(t, err)

	for _, pf := range tree.Files {
		f, err := os.Open(filepath.Join(tree.Dir, filepath.FromSlash(pf.Href)))
		require.NoError(t, err)

		src := metadata.Source{
			Format:       pf.Type,
			Reader:       f,
			Compression:  metadata.CompressionForPath(pf.Href),
			ChecksumType: pf.ChecksumType,
			Checksum:     pf.Checksum,
		}
		rc, err := src.Open()
		require.NoError(t, err)
		_, err = io.Copy(io.Discard, rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close(), "declared checksum must match file %s", pf.Href)
		f.Close()
	}
}

func TestPublishVersionDeterministic(t *testing.T) {
	p, st := newTestPublisher(t)
	v := storeVersion(t, st, "rhel9", fixtureRecords())
	ctx := context.Background()

	treeA, err := p.PublishVersion(ctx, v, Options{OutDir: t.TempDir()})
	require.NoError(t, err)
	treeB, err := p.PublishVersion(ctx, v, Options{OutDir: t.TempDir()})
	require.NoError(t, err)

	require.Equal(t, treeA.Files, treeB.Files)

	a, err := os.ReadFile(filepath.Join(treeA.Dir, "repodata", "repomd.xml"))
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(treeB.Dir, "repodata", "repomd.xml"))
	require.NoError(t, err)
	assert.Equal(t, a, b, "identical version publishes byte-identical indexes")
}

func TestPublishVersionRoundTrip(t *testing.T) {
	p, st := newTestPublisher(t)
	records := fixtureRecords()
	v := storeVersion(t, st, "rhel9", records)

	tree, err := p.PublishVersion(context.Background(), v, Options{OutDir: t.TempDir()})
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(tree.Dir, "repodata", "repomd.xml"))
	require.NoError(t, err)
	md, err := metadata.ParseRepomd(f)
	f.Close()
	require.NoError(t, err)

	open := func(name string) io.ReadCloser {
		entry, ok := md.Get(name)
		require.True(t, ok)
		raw, err := os.Open(filepath.Join(tree.Dir, filepath.FromSlash(entry.Href)))
		require.NoError(t, err)
		t.Cleanup(func() { raw.Close() })
		rc, err := metadata.SourceForEntry(entry, raw).Open()
		require.NoError(t, err)
		return rc
	}

	var parsed []content.Record

	primary := metadata.NewPrimaryParser(open("primary"))
	var packages []*content.PackageRecord
	for {
		pkg, err := primary.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		packages = append(packages, pkg)
	}

	files := make(map[string]*metadata.PackageFiles)
	fl := metadata.NewFilelistsParser(open("filelists"))
	for {
		pf, err := fl.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		files[pf.PkgID] = pf
	}
	changelogs := make(map[string]*metadata.PackageChangelogs)
	other := metadata.NewOtherParser(open("other"))
	for {
		pc, err := other.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		changelogs[pc.PkgID] = pc
	}
	metadata.MergePackageData(packages, files, changelogs)
	for _, pkg := range packages {
		parsed = append(parsed, pkg)
	}

	comps := metadata.NewCompsParser(open("group"))
	for {
		rec, err := comps.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		parsed = append(parsed, rec)
	}

	updates := metadata.NewUpdateinfoParser(open("updateinfo"))
	for {
		rec, err := updates.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		parsed = append(parsed, rec)
	}

	modules := metadata.NewModulesParser(open("modules"))
	for {
		rec, err := modules.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		parsed = append(parsed, rec)
	}

	assert.Equal(t, fingerprints(records), fingerprints(parsed),
		"parsing a published tree reproduces the content set")
}

func fingerprints(records []content.Record) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Key().String()+"@"+string(rec.Fingerprint()))
	}
	sort.Strings(out)
	return out
}

func TestPublishVersionEmptyRepository(t *testing.T) {
	p, st := newTestPublisher(t)
	v := storeVersion(t, st, "empty", nil)

	tree, err := p.PublishVersion(context.Background(), v, Options{OutDir: t.TempDir()})
	require.NoError(t, err)

	// The package family is always present; optional formats are not.
	require.Len(t, tree.Files, 3)
	types := []string{tree.Files[0].Type, tree.Files[1].Type, tree.Files[2].Type}
	assert.ElementsMatch(t, []string{"primary", "filelists", "other"}, types)
}

func TestPublishVersionSha512(t *testing.T) {
	p, st := newTestPublisher(t)
	v := storeVersion(t, st, "rhel9", fixtureRecords())

	tree, err := p.PublishVersion(context.Background(), v, Options{
		OutDir:       t.TempDir(),
		ChecksumType: "sha512",
		Compression:  metadata.CompressionZstd,
	})
	require.NoError(t, err)

	for _, f := range tree.Files {
		assert.Equal(t, "sha512", f.ChecksumType)
		assert.Len(t, f.Checksum, 128)
		assert.Contains(t, f.Href, ".zst")
	}
}

func TestPublishVersionRejectsWeakChecksum(t *testing.T) {
	p, st := newTestPublisher(t)
	v := storeVersion(t, st, "rhel9", nil)

	_, err := p.PublishVersion(context.Background(), v, Options{
		OutDir:       t.TempDir(),
		ChecksumType: "sha1",
	})

	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
}

func TestPublishVersionNoPartialTreeOnFailure(t *testing.T) {
	p, st := newTestPublisher(t)
	v := storeVersion(t, st, "rhel9", fixtureRecords())

	outDir := t.TempDir()
	_, err := p.PublishVersion(context.Background(), v, Options{
		OutDir:      outDir,
		Compression: metadata.CompressionBz2, // read-only codec, compression fails
	})

	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed publish leaves nothing visible behind")
}

func TestPublishVersionReplacesExistingTree(t *testing.T) {
	p, st := newTestPublisher(t)
	v := storeVersion(t, st, "rhel9", fixtureRecords())
	ctx := context.Background()
	outDir := t.TempDir()

	first, err := p.PublishVersion(ctx, v, Options{OutDir: outDir})
	require.NoError(t, err)
	second, err := p.PublishVersion(ctx, v, Options{OutDir: outDir})
	require.NoError(t, err)

	assert.Equal(t, first.Dir, second.Dir)

	entries, err := os.ReadDir(filepath.Join(outDir, "rhel9"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "republish swaps the tree in place")
}
