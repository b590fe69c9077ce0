package source

import (
	"testing"

	"github.com/minelauncher/mcfetch/internal/utils"
	"github.com/stretchr/testify/assert"
)

const libURL = "https://libraries.minecraft.net/com/example/lib/1.0/lib-1.0.jar"

func TestResolveURLsOrdering(t *testing.T) {
	mirror := "https://bmclapi2.bangbang93.com/maven/com/example/lib/1.0/lib-1.0.jar"
	cases := []struct {
		pref utils.SourcePreference
		want []string
	}{
		{utils.MirrorFirst, []string{mirror, libURL}},
		{utils.OfficialFirst, []string{libURL, mirror}},
		{utils.MirrorOnly, []string{mirror}},
		{utils.OfficialOnly, []string{libURL}},
	}
	for _, tc := range cases {
		t.Run(tc.pref.String(), func(t *testing.T) {
			r := NewResolver(tc.pref, DefaultOrigins())
			assert.Equal(t, tc.want, r.ResolveURLs(libURL, false))
		})
	}
}

func TestResolveURLsAssets(t *testing.T) {
	r := NewResolver(utils.MirrorFirst, DefaultOrigins())
	official := "https://resources.download.minecraft.net/ab/abcdef"
	got := r.ResolveURLs(official, true)
	assert.Equal(t, []string{"https://bmclapi2.bangbang93.com/assets/ab/abcdef", official}, got)
}

func TestResolveURLsMetadataDomains(t *testing.T) {
	r := NewResolver(utils.MirrorFirst, DefaultOrigins())
	official := "https://piston-data.mojang.com/v1/objects/abc/client.jar"
	got := r.ResolveURLs(official, false)
	assert.Equal(t, "https://bmclapi2.bangbang93.com/v1/objects/abc/client.jar", got[0])
	// Asset lookups fall back to the general table.
	assert.Equal(t, got, r.ResolveURLs(official, true))
}

func TestResolveURLsUnknownDomain(t *testing.T) {
	r := NewResolver(utils.MirrorFirst, DefaultOrigins())
	u := "https://example.com/file.jar"
	assert.Equal(t, []string{u, u}, r.ResolveURLs(u, false))
}

func TestResolveURLsRequiresPathBoundary(t *testing.T) {
	r := NewResolver(utils.MirrorFirst, DefaultOrigins())
	u := "https://libraries.minecraft.net.evil.example/x.jar"
	assert.Equal(t, []string{u, u}, r.ResolveURLs(u, false))
}

func TestManifestURLs(t *testing.T) {
	r := NewResolver(utils.OfficialFirst, DefaultOrigins())
	assert.Equal(t, []string{utils.OfficialManifestURL, utils.MirrorManifestURL}, r.ManifestURLs())
}

func TestMirrorOriginsS3(t *testing.T) {
	o := MirrorOrigins("s3://private-mirror/mc/")
	r := NewResolver(utils.MirrorOnly, o)
	assert.Equal(t, []string{"s3://private-mirror/mc/maven/com/example/lib/1.0/lib-1.0.jar"}, r.ResolveURLs(libURL, false))
	assert.Empty(t, o.MirrorHosts())
}

func TestMirrorHosts(t *testing.T) {
	assert.Equal(t, []string{"bmclapi2.bangbang93.com"}, DefaultOrigins().MirrorHosts())
}
