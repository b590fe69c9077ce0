package planner

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/minelauncher/mcfetch/internal/source"
	"github.com/minelauncher/mcfetch/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	descriptorURL = "https://piston-meta.mojang.com/v1/packages/desc.json"
	indexURL      = "https://piston-meta.mojang.com/v1/packages/index.json"
	clientURL     = "https://piston-data.mojang.com/v1/objects/abc/client.jar"
	libraryBase   = "https://libraries.minecraft.net/"
)

// fakeGetter serves fixed documents by URL.
type fakeGetter map[string][]byte

func (g fakeGetter) Get(_ context.Context, url string) ([]byte, error) {
	if data, ok := g[url]; ok {
		return data, nil
	}
	return nil, &utils.TransferError{URL: url, StatusCode: 404}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func library(name string) map[string]any {
	return map[string]any{
		"name": name,
		"downloads": map[string]any{
			"artifact": map[string]any{"url": libraryBase + "lib.jar", "sha1": strings.Repeat("b", 40), "size": 10},
		},
	}
}

func documents(t *testing.T, versionID, indexID string, libraries []any, objects map[string]any) fakeGetter {
	t.Helper()
	index := mustJSON(t, map[string]any{"objects": objects})
	desc := mustJSON(t, map[string]any{
		"id": versionID,
		"downloads": map[string]any{
			"client": map[string]any{"url": clientURL, "sha1": strings.Repeat("a", 40), "size": 1},
		},
		"libraries":  libraries,
		"assetIndex": map[string]any{"id": indexID, "url": indexURL, "size": len(index)},
	})
	manifest := mustJSON(t, map[string]any{
		"latest":   map[string]any{"release": versionID},
		"versions": []any{map[string]any{"id": versionID, "type": "release", "url": descriptorURL}},
	})
	return fakeGetter{utils.OfficialManifestURL: manifest, descriptorURL: desc, indexURL: index}
}

func newOfficialPlanner(t *testing.T, g fakeGetter) (*Planner, string) {
	t.Helper()
	root := t.TempDir()
	return New(g, source.NewResolver(utils.OfficialOnly, source.DefaultOrigins()), root), root
}

func assertInside(t *testing.T, root, path string) {
	t.Helper()
	rel, err := filepath.Rel(root, path)
	require.NoError(t, err)
	assert.False(t, rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)), path)
}

func TestPlanBatchSkipsMalformedAssetHashes(t *testing.T) {
	good := "0123456789abcdef0123456789abcdef01234567"
	g := documents(t, "1.0", "1", nil, map[string]any{
		"escape":    map[string]any{"hash": "../../../../../tmp/victim", "size": 1},
		"upper":     map[string]any{"hash": strings.ToUpper(good), "size": 1},
		"short":     map[string]any{"hash": "ab", "size": 1},
		"separator": map[string]any{"hash": "01/3456789abcdef0123456789abcdef01234567", "size": 1},
		"good":      map[string]any{"hash": good, "size": 3},
	})
	p, root := newOfficialPlanner(t, g)

	batch, err := p.PlanBatch(context.Background(), "1.0")
	require.NoError(t, err)
	require.Len(t, batch.Assets, 1)
	assert.Equal(t, good, batch.Assets[0].ExpectedHash)
	for _, job := range batch.Jobs() {
		assertInside(t, root, job.LocalPath)
	}
}

func TestPlanBatchRejectsUnsafeIndexID(t *testing.T) {
	for _, id := range []string{"../../../escape", "a/b", `a\b`, ".."} {
		p, root := newOfficialPlanner(t, documents(t, "1.0", id, nil, map[string]any{}))
		_, err := p.PlanBatch(context.Background(), "1.0")
		var mf *utils.MetadataFetchError
		assert.ErrorAs(t, err, &mf, id)
		assert.NoFileExists(t, filepath.Join(filepath.Dir(root), "escape.json"))
	}
}

func TestPlanBatchRejectsUnsafeVersionID(t *testing.T) {
	for _, id := range []string{"../evil", "a/../../b", ".."} {
		g := documents(t, id, "1", nil, map[string]any{})
		p, root := newOfficialPlanner(t, g)
		_, err := p.PlanBatch(context.Background(), id)
		assert.ErrorContains(t, err, "invalid version id", id)
		assert.NoFileExists(t, filepath.Join(root, "evil.json"))
	}
}

func TestPlanBatchSkipsUnsafeLibraryNames(t *testing.T) {
	g := documents(t, "1.0", "1", []any{
		library("com.example:../../../evil:1.0"),
		library("com..example:evil:1.0"),
		library("com.example:evil:1.0:../../x"),
		library("com.example:good:1.0"),
	}, map[string]any{})
	p, root := newOfficialPlanner(t, g)

	batch, err := p.PlanBatch(context.Background(), "1.0")
	require.NoError(t, err)
	require.Len(t, batch.Libraries, 1)
	assert.Equal(t, filepath.Join(root, "libraries", "com", "example", "good", "1.0", "good-1.0.jar"), batch.Libraries[0].LocalPath)
}

func TestPlanBatchReportsOnlyWrittenFiles(t *testing.T) {
	p, root := newOfficialPlanner(t, documents(t, "1.0", "1", nil, map[string]any{}))
	var written []string
	p.OnWrite(func(path string) { written = append(written, path) })

	_, err := p.PlanBatch(context.Background(), "1.0")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "versions", "1.0", "1.0.json"),
		filepath.Join(root, "assets", "indexes", "1.json"),
	}, written)

	written = nil
	_, err = p.PlanBatch(context.Background(), "1.0")
	require.NoError(t, err)
	assert.Empty(t, written)
}

func TestPlanBatchReportsDescriptorWhenIndexFails(t *testing.T) {
	g := documents(t, "1.0", "1", nil, map[string]any{})
	delete(g, indexURL)
	p, root := newOfficialPlanner(t, g)
	var written []string
	p.OnWrite(func(path string) { written = append(written, path) })

	_, err := p.PlanBatch(context.Background(), "1.0")
	var mf *utils.MetadataFetchError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, []string{filepath.Join(root, "versions", "1.0", "1.0.json")}, written)
}
