package metadata

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const repomdFixture = `<?xml version="1.0" encoding="UTF-8"?>
<repomd xmlns="http://linux.duke.edu/metadata/repo" xmlns:rpm="http://linux.duke.edu/metadata/rpm">
  <revision>1700000000</revision>
  <data type="primary">
    <checksum type="sha256">aaaa</checksum>
    <open-checksum type="sha256">bbbb</open-checksum>
    <location href="repodata/aaaa-primary.xml.gz"/>
    <timestamp>1700000000</timestamp>
    <size>1024</size>
    <open-size>8192</open-size>
  </data>
  <data type="primary_db">
    <checksum type="sha256">cccc</checksum>
    <location href="repodata/cccc-primary.sqlite.bz2"/>
  </data>
  <data type="group">
    <checksum type="sha256">dddd</checksum>
    <location href="repodata/dddd-comps.xml"/>
  </data>
  <data type="group_gz">
    <checksum type="sha256">eeee</checksum>
    <location href="repodata/eeee-comps.xml.gz"/>
  </data>
  <data type="modules">
    <checksum type="sha256">ffff</checksum>
    <location href="repodata/ffff-modules.yaml.zst"/>
  </data>
</repomd>`

func TestParseRepomd(t *testing.T) {
	repomd, err := ParseRepomd(strings.NewReader(repomdFixture))
	require.NoError(t, err)

	assert.Equal(t, "1700000000", repomd.Revision)

	primary, ok := repomd.Get(FilePrimary)
	require.True(t, ok)
	assert.Equal(t, "repodata/aaaa-primary.xml.gz", primary.Href)
	assert.Equal(t, "sha256", primary.ChecksumType)
	assert.Equal(t, "aaaa", primary.Checksum)
	assert.Equal(t, "bbbb", primary.OpenChecksum)
	assert.Equal(t, int64(1024), primary.Size)
	assert.Equal(t, int64(8192), primary.OpenSize)
	assert.Equal(t, CompressionGzip, primary.Compression())

	// sqlite sidecars are never mirrored
	_, ok = repomd.Files["primary_db"]
	assert.False(t, ok)
}

func TestParseRepomdPrefersGroupGz(t *testing.T) {
	repomd, err := ParseRepomd(strings.NewReader(repomdFixture))
	require.NoError(t, err)

	group, ok := repomd.Get(FileGroup)
	require.True(t, ok)
	assert.Equal(t, "repodata/eeee-comps.xml.gz", group.Href)
}

func TestParseRepomdCompressionFromHref(t *testing.T) {
	repomd, err := ParseRepomd(strings.NewReader(repomdFixture))
	require.NoError(t, err)

	modules, ok := repomd.Get(FileModules)
	require.True(t, ok)
	assert.Equal(t, CompressionZstd, modules.Compression())
}

func TestParseRepomdMalformed(t *testing.T) {
	_, err := ParseRepomd(strings.NewReader("<repomd><data"))

	var malformedErr *MalformedError
	require.ErrorAs(t, err, &malformedErr)
	assert.Equal(t, "repomd", malformedErr.Format)
}
