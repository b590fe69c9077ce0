package planner

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/minelauncher/mcfetch/internal/source"
	"github.com/minelauncher/mcfetch/internal/testutils"
	"github.com/minelauncher/mcfetch/internal/transport"
	"github.com/minelauncher/mcfetch/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlanner(t *testing.T, d *testutils.Distribution, pref utils.SourcePreference) (*Planner, string) {
	t.Helper()
	mux := transport.NewMux(transport.HTTPClientConfig{Timeout: 5 * time.Second}, transport.S3Config{})
	t.Cleanup(mux.Close)
	root := t.TempDir()
	return New(mux, source.NewResolver(pref, d.Origins()), root), root
}

func TestPlanBatch(t *testing.T) {
	d := testutils.NewDistribution(t, "1.0")
	p, root := newPlanner(t, d, utils.MirrorFirst)

	batch, err := p.PlanBatch(context.Background(), "1.0")
	require.NoError(t, err)

	assert.Equal(t, "1.0", batch.VersionID)
	assert.Equal(t, 4, batch.Len())
	assert.Len(t, batch.Libraries, 1)
	assert.Len(t, batch.Assets, 2)

	client := batch.Client
	assert.Equal(t, filepath.Join(root, "versions", "1.0", "1.0.jar"), client.LocalPath)
	assert.Equal(t, testutils.SHA1(d.Client), client.ExpectedHash)
	assert.Equal(t, int64(utils.ClientMinSize), client.MinSize)
	assert.True(t, client.Required)
	assert.Equal(t, []string{d.Mirror.URL + d.ClientPath(), d.Official.URL + d.ClientPath()}, client.URLs)

	lib := batch.Libraries[0]
	assert.Equal(t, filepath.Join(root, "libraries", filepath.FromSlash(testutils.LibraryRel)), lib.LocalPath)
	assert.Equal(t, int64(len(d.Library)), lib.MinSize)
	assert.Equal(t, d.Mirror.URL+"/maven/"+testutils.LibraryRel, lib.URLs[0])
	assert.False(t, lib.Required)

	for _, job := range batch.Assets {
		hash := job.ExpectedHash
		assert.Equal(t, filepath.Join(root, "assets", "objects", hash[:2], hash), job.LocalPath)
		assert.Equal(t, int64(len(d.Assets[hash])), job.MinSize)
		assert.Equal(t, []string{d.Mirror.URL + "/assets/" + hash[:2] + "/" + hash, d.Official.URL + d.AssetPath(hash)}, job.URLs)
	}
	assert.Less(t, batch.Assets[0].ExpectedHash, batch.Assets[1].ExpectedHash)

	assert.FileExists(t, batch.Descriptor)
	assert.Equal(t, filepath.Join(root, "versions", "1.0", "1.0.json"), batch.Descriptor)
	index, err := os.ReadFile(batch.AssetIndex.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, batch.AssetIndex.ExpectedHash, testutils.SHA1(index))
	assert.Equal(t, filepath.Join(root, "assets", "indexes", d.IndexID+".json"), batch.AssetIndex.LocalPath)

	// Metadata came from the mirror only.
	assert.Zero(t, d.Official.TotalHits())
}

func TestPlanBatchFallsBackToOfficial(t *testing.T) {
	d := testutils.NewDistribution(t, "1.0")
	d.Mirror.SetDown(true)
	p, _ := newPlanner(t, d, utils.MirrorFirst)

	batch, err := p.PlanBatch(context.Background(), "1.0")
	require.NoError(t, err)
	assert.Equal(t, 4, batch.Len())
	assert.Equal(t, 1, d.Official.Hits("/mc/game/version_manifest_v2.json"))
}

func TestPlanBatchOfficialOnly(t *testing.T) {
	d := testutils.NewDistribution(t, "1.0")
	p, _ := newPlanner(t, d, utils.OfficialOnly)

	batch, err := p.PlanBatch(context.Background(), "1.0")
	require.NoError(t, err)
	assert.Equal(t, []string{d.Official.URL + d.ClientPath()}, batch.Client.URLs)
	assert.Zero(t, d.Mirror.TotalHits())
}

func TestPlanBatchVersionNotFound(t *testing.T) {
	d := testutils.NewDistribution(t, "1.0")
	p, _ := newPlanner(t, d, utils.MirrorFirst)

	_, err := p.PlanBatch(context.Background(), "9.9")
	var nf *utils.VersionNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "9.9", nf.VersionID)
}

func TestPlanBatchManifestUnavailable(t *testing.T) {
	d := testutils.NewDistribution(t, "1.0")
	d.Mirror.SetDown(true)
	d.Official.SetDown(true)
	p, _ := newPlanner(t, d, utils.MirrorFirst)

	_, err := p.PlanBatch(context.Background(), "1.0")
	var mf *utils.MetadataFetchError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, "version manifest", mf.Resource)
	assert.Len(t, mf.Attempts, 2)
}

func TestPlanBatchDescriptorUnavailable(t *testing.T) {
	d := testutils.NewDistribution(t, "1.0")
	d.Mirror.FailPath(d.DescriptorPath(), http.StatusNotFound)
	d.Official.FailPath(d.DescriptorPath(), http.StatusInternalServerError)
	p, root := newPlanner(t, d, utils.MirrorFirst)

	_, err := p.PlanBatch(context.Background(), "1.0")
	var mf *utils.MetadataFetchError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, "descriptor 1.0", mf.Resource)
	assert.NoFileExists(t, filepath.Join(root, "versions", "1.0", "1.0.json"))
}

func TestPlanBatchAssetIndexUnavailable(t *testing.T) {
	d := testutils.NewDistribution(t, "1.0")
	d.Mirror.FailPath(d.IndexPath(), http.StatusNotFound)
	d.Official.FailPath(d.IndexPath(), http.StatusNotFound)
	p, _ := newPlanner(t, d, utils.MirrorFirst)

	_, err := p.PlanBatch(context.Background(), "1.0")
	var mf *utils.MetadataFetchError
	require.ErrorAs(t, err, &mf)
}

func TestPlanBatchReusesValidIndex(t *testing.T) {
	d := testutils.NewDistribution(t, "1.0")
	p, _ := newPlanner(t, d, utils.MirrorFirst)

	_, err := p.PlanBatch(context.Background(), "1.0")
	require.NoError(t, err)
	_, err = p.PlanBatch(context.Background(), "1.0")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Mirror.Hits(d.IndexPath()))
}

func TestPlanBatchLibraryRules(t *testing.T) {
	d := testutils.NewDistribution(t, "1.0")
	p, root := newPlanner(t, d, utils.MirrorFirst)
	other := "windows"
	if HostOS() == "windows" {
		other = "osx"
	}
	p.SetOS(other)

	batch, err := p.PlanBatch(context.Background(), "1.0")
	require.NoError(t, err)
	require.Len(t, batch.Libraries, 2)
	assert.Equal(t, 5, batch.Len())
	paths := []string{batch.Libraries[0].LocalPath, batch.Libraries[1].LocalPath}
	assert.Contains(t, paths, filepath.Join(root, "libraries", "com", "example", "platform-only", "1.0", "platform-only-1.0.jar"))
}

func TestPlanBatchCancelled(t *testing.T) {
	d := testutils.NewDistribution(t, "1.0")
	p, _ := newPlanner(t, d, utils.MirrorFirst)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.PlanBatch(ctx, "1.0")
	assert.True(t, utils.IsCancelled(err))
}

func TestFetchManifest(t *testing.T) {
	d := testutils.NewDistribution(t, "1.0")
	p, _ := newPlanner(t, d, utils.MirrorFirst)

	m, err := p.FetchManifest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.0", m.Latest.Release)
	assert.Len(t, m.Versions, 2)
	assert.Len(t, m.Filter("snapshot"), 1)
	assert.Len(t, m.Filter(""), 2)
}
