// Package planner turns a version id into the full list of file jobs by
// reading the version manifest, the version descriptor and the asset index.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/minelauncher/mcfetch/internal/integrity"
	"github.com/minelauncher/mcfetch/internal/source"
	"github.com/minelauncher/mcfetch/internal/utils"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Getter reads a whole metadata document.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

type Planner struct {
	getter   Getter
	resolver *source.Resolver
	root     string
	osName   string
	onWrite  func(path string)
}

func New(getter Getter, resolver *source.Resolver, root string) *Planner {
	return &Planner{getter: getter, resolver: resolver, root: root, osName: HostOS()}
}

// SetOS overrides the platform used for library rules.
func (p *Planner) SetOS(name string) {
	p.osName = name
}

// OnWrite registers fn to see every metadata file the planner creates or
// replaces, before it is written.
func (p *Planner) OnWrite(fn func(path string)) {
	p.onWrite = fn
}

func (p *Planner) FetchManifest(ctx context.Context) (*Manifest, error) {
	data, err := p.fetchFirst(ctx, "version manifest", p.resolver.ManifestURLs(), 0, "")
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &utils.MetadataFetchError{Resource: "version manifest", Attempts: []error{fmt.Errorf("decoding: %w", err)}}
	}
	return &m, nil
}

func (p *Planner) PlanBatch(ctx context.Context, versionID string) (*utils.JobBatch, error) {
	if !SafeName(versionID) {
		return nil, fmt.Errorf("invalid version id %q", versionID)
	}
	manifest, err := p.FetchManifest(ctx)
	if err != nil {
		return nil, err
	}
	entry, ok := manifest.Find(versionID)
	if !ok {
		return nil, &utils.VersionNotFoundError{VersionID: versionID}
	}

	resource := "descriptor " + versionID
	raw, err := p.fetchFirst(ctx, resource, p.resolver.ResolveURLs(entry.URL, false), 0, entry.SHA1)
	if err != nil {
		return nil, err
	}
	var desc Descriptor
	if err := json.Unmarshal(raw, &desc); err != nil {
		return nil, &utils.MetadataFetchError{Resource: resource, Attempts: []error{fmt.Errorf("decoding: %w", err)}}
	}
	if desc.Downloads.Client == nil || desc.Downloads.Client.URL == "" {
		return nil, &utils.MetadataFetchError{Resource: resource, Attempts: []error{fmt.Errorf("no client download")}}
	}
	if desc.AssetIndex == nil || desc.AssetIndex.URL == "" {
		return nil, &utils.MetadataFetchError{Resource: resource, Attempts: []error{fmt.Errorf("no asset index")}}
	}
	if !SafeName(desc.AssetIndex.ID) {
		return nil, &utils.MetadataFetchError{Resource: resource, Attempts: []error{fmt.Errorf("invalid asset index id %q", desc.AssetIndex.ID)}}
	}

	versionDir := filepath.Join(p.root, "versions", versionID)
	batch := &utils.JobBatch{
		VersionID:  versionID,
		Descriptor: filepath.Join(versionDir, versionID+".json"),
	}
	if err := p.save(batch.Descriptor, raw); err != nil {
		return nil, fmt.Errorf("saving descriptor: %w", err)
	}

	client := desc.Downloads.Client
	batch.Client = utils.FileJob{
		URLs:         p.resolver.ResolveURLs(client.URL, false),
		LocalPath:    filepath.Join(versionDir, versionID+".jar"),
		ExpectedHash: client.SHA1,
		MinSize:      utils.ClientMinSize,
		Kind:         utils.KindClient,
		Required:     true,
	}
	batch.Libraries = p.libraryJobs(desc.Libraries)

	idx := desc.AssetIndex
	batch.AssetIndex = utils.FileJob{
		URLs:         p.resolver.ResolveURLs(idx.URL, true),
		LocalPath:    filepath.Join(p.root, "assets", "indexes", idx.ID+".json"),
		ExpectedHash: idx.SHA1,
		MinSize:      sizeOr(idx.Size, utils.DefaultMinSize),
		Kind:         utils.KindAssetIndex,
		Required:     true,
	}
	assets, err := p.assetJobs(ctx, batch.AssetIndex)
	if err != nil {
		return nil, err
	}
	batch.Assets = assets

	log.Debug().Str("op", "planner/planner").Msgf("planned %s: %d libraries, %d assets", versionID, len(batch.Libraries), len(batch.Assets))
	return batch, nil
}

func (p *Planner) libraryJobs(libs []Library) []utils.FileJob {
	var jobs []utils.FileJob
	for _, lib := range libs {
		art := lib.Downloads.Artifact
		if art == nil || art.URL == "" {
			continue
		}
		if !lib.Allowed(p.osName) {
			log.Debug().Str("op", "planner/planner").Msgf("library %s not used on %s", lib.Name, p.osName)
			continue
		}
		rel, ok := LibraryPath(lib.Name)
		if !ok {
			log.Warn().Str("op", "planner/planner").Msgf("skipping library with malformed name %q", lib.Name)
			continue
		}
		jobs = append(jobs, utils.FileJob{
			URLs:         p.resolver.ResolveURLs(art.URL, false),
			LocalPath:    filepath.Join(p.root, "libraries", rel),
			ExpectedHash: art.SHA1,
			MinSize:      sizeOr(art.Size, utils.DefaultMinSize),
			Kind:         utils.KindLibrary,
		})
	}
	return jobs
}

// assetJobs reads the asset index, stores it at its job path and plans one
// job per distinct object hash. An index already valid on disk is reused.
func (p *Planner) assetJobs(ctx context.Context, index utils.FileJob) ([]utils.FileJob, error) {
	resource := "asset index " + index.Name()
	var data []byte
	if integrity.Valid(index.LocalPath, index.MinSize, index.ExpectedHash) {
		data, _ = os.ReadFile(index.LocalPath)
	}
	if data == nil {
		var err error
		data, err = p.fetchFirst(ctx, resource, index.URLs, index.MinSize, index.ExpectedHash)
		if err != nil {
			return nil, err
		}
		if err := p.save(index.LocalPath, data); err != nil {
			return nil, fmt.Errorf("saving asset index: %w", err)
		}
	}
	var ai AssetIndex
	if err := json.Unmarshal(data, &ai); err != nil {
		return nil, &utils.MetadataFetchError{Resource: resource, Attempts: []error{fmt.Errorf("decoding: %w", err)}}
	}

	valid, invalid := lo.FilterReject(lo.Values(ai.Objects), func(obj AssetObject, _ int) bool {
		return ValidAssetHash(obj.Hash)
	})
	if len(invalid) > 0 {
		log.Warn().Str("op", "planner/planner").Msgf("%s: skipping %d objects with malformed hashes", resource, len(invalid))
	}
	objects := lo.UniqBy(valid, func(obj AssetObject) string { return obj.Hash })
	base := p.resolver.AssetBase()
	jobs := lo.Map(objects, func(obj AssetObject, _ int) utils.FileJob {
		prefix := obj.Hash[:2]
		return utils.FileJob{
			URLs:         p.resolver.ResolveURLs(base+"/"+prefix+"/"+obj.Hash, true),
			LocalPath:    filepath.Join(p.root, "assets", "objects", prefix, obj.Hash),
			ExpectedHash: obj.Hash,
			MinSize:      obj.Size,
			Kind:         utils.KindAsset,
		}
	})
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ExpectedHash < jobs[j].ExpectedHash })
	return jobs, nil
}

// fetchFirst tries urls in order and returns the first document that passes
// the optional hash check.
func (p *Planner) fetchFirst(ctx context.Context, resource string, urls []string, minSize int64, hash string) ([]byte, error) {
	var attempts []error
	for _, u := range urls {
		if ctx.Err() != nil {
			return nil, &utils.CancelledError{Path: resource}
		}
		data, err := p.getter.Get(ctx, u)
		if err == nil {
			err = integrity.VerifyBytes(u, data, minSize, hash)
		}
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, &utils.CancelledError{Path: resource}
		}
		log.Debug().Str("op", "planner/planner").Err(err).Msgf("fetching %s from %s failed", resource, u)
		attempts = append(attempts, err)
	}
	return nil, &utils.MetadataFetchError{Resource: resource, Attempts: attempts}
}

// save writes data to path unless the file already holds exactly data, so
// only files this plan created or changed are reported.
func (p *Planner) save(path string, data []byte) error {
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return nil
	}
	if err := utils.EnsureParent(path); err != nil {
		return err
	}
	if p.onWrite != nil {
		p.onWrite(path)
	}
	return os.WriteFile(path, data, 0644)
}

func sizeOr(size, fallback int64) int64 {
	if size > 0 {
		return size
	}
	return fallback
}
