// Package testutils serves a fake game distribution from an official and a
// mirror host for package tests.
package testutils

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minelauncher/mcfetch/internal/source"
)

// Host is one origin serving the distribution content.
type Host struct {
	*httptest.Server
	mu      sync.Mutex
	hits    map[string]int
	ranges  map[string][]string
	status  map[string]int
	stalls  map[string]int
	down    bool
	release chan struct{}
}

func newHost(t *testing.T, lookup func(string) ([]byte, bool)) *Host {
	h := &Host{
		hits:    map[string]int{},
		ranges:  map[string][]string{},
		status:  map[string]int{},
		stalls:  map[string]int{},
		release: make(chan struct{}),
	}
	h.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		h.mu.Lock()
		h.hits[p]++
		h.ranges[p] = append(h.ranges[p], r.Header.Get("Range"))
		status, down := h.status[p], h.down
		stall, stalling := h.stalls[p]
		h.mu.Unlock()

		if down {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		if status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
		data, ok := lookup(p)
		if !ok {
			http.NotFound(w, r)
			return
		}
		if stalling {
			w.Header().Set("Content-Length", fmt.Sprint(len(data)))
			_, _ = w.Write(data[:min(stall, len(data))])
			w.(http.Flusher).Flush()
			select {
			case <-h.release:
			case <-r.Context().Done():
			}
			return
		}
		http.ServeContent(w, r, path.Base(p), time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(func() {
		close(h.release)
		h.Close()
	})
	return h
}

// Hits counts requests for an exact path.
func (h *Host) Hits(p string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[p]
}

func (h *Host) TotalHits() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.hits {
		n += c
	}
	return n
}

// Ranges lists the Range headers sent for a path, "" for unranged requests.
func (h *Host) Ranges(p string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.ranges[p]...)
}

// FailPath answers every request for p with status.
func (h *Host) FailPath(p string, status int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status[p] = status
}

// StallPath sends the first n bytes of p and then blocks until the client
// goes away.
func (h *Host) StallPath(p string, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stalls[p] = n
}

// SetDown makes every request fail with 503.
func (h *Host) SetDown(down bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.down = down
}

// Distribution is one version with a client jar, one library and an asset
// index with two objects. Official paths are the canonical keys; the mirror
// serves the same content under the mirror layout.
type Distribution struct {
	VersionID string
	IndexID   string
	Official  *Host
	Mirror    *Host

	Client  []byte
	Library []byte
	Assets  map[string][]byte

	content map[string][]byte
}

const (
	LibraryName = "com.example:toolkit:1.2.3"
	LibraryRel  = "com/example/toolkit/1.2.3/toolkit-1.2.3.jar"
)

func NewDistribution(t *testing.T, versionID string) *Distribution {
	t.Helper()
	d := &Distribution{
		VersionID: versionID,
		IndexID:   "idx-" + versionID,
		Client:    RandomBytes(150*1024, 1),
		Library:   RandomBytes(4096, 2),
		Assets:    map[string][]byte{},
		content:   map[string][]byte{},
	}
	for i, seed := range []uint64{3, 4} {
		data := RandomBytes(2048+i*512, seed)
		d.Assets[SHA1(data)] = data
	}
	d.Official = newHost(t, d.lookupOfficial)
	d.Mirror = newHost(t, d.lookupMirror)
	d.build()
	return d
}

// RandomBytes returns n deterministic pseudo-random bytes.
func RandomBytes(n int, seed uint64) []byte {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.UintN(256))
	}
	return b
}

func SHA1(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

// Origins maps the fake official host onto the fake mirror.
func (d *Distribution) Origins() source.Origins {
	off, mir := d.Official.URL, d.Mirror.URL
	return source.Origins{
		OfficialManifest: off + "/mc/game/version_manifest_v2.json",
		MirrorManifest:   mir + "/mc/game/version_manifest.json",
		AssetBase:        off + "/resources",
		Rules: []source.Rule{
			{Official: off + "/libraries", Mirror: mir + "/maven"},
			{Official: off, Mirror: mir},
		},
		AssetRules: []source.Rule{
			{Official: off + "/resources", Mirror: mir + "/assets"},
		},
	}
}

func (d *Distribution) ClientPath() string {
	return "/v1/objects/" + SHA1(d.Client) + "/client.jar"
}

func (d *Distribution) LibraryPath() string {
	return "/libraries/" + LibraryRel
}

func (d *Distribution) DescriptorPath() string {
	return "/v1/packages/" + d.VersionID + ".json"
}

func (d *Distribution) IndexPath() string {
	return "/v1/indexes/" + d.IndexID + ".json"
}

// AssetPath is the official path of an asset object.
func (d *Distribution) AssetPath(hash string) string {
	return "/resources/" + hash[:2] + "/" + hash
}

// MirrorPath translates an official path into the mirror layout.
func (d *Distribution) MirrorPath(officialPath string) string {
	if rest, ok := strings.CutPrefix(officialPath, "/libraries/"); ok {
		return "/maven/" + rest
	}
	if rest, ok := strings.CutPrefix(officialPath, "/resources/"); ok {
		return "/assets/" + rest
	}
	if officialPath == "/mc/game/version_manifest_v2.json" {
		return "/mc/game/version_manifest.json"
	}
	return officialPath
}

// LocalFiles lists the installed file paths below root, excluding metadata.
func (d *Distribution) LocalFiles(root string) map[string][]byte {
	files := map[string][]byte{
		filepath.Join(root, "versions", d.VersionID, d.VersionID+".jar"): d.Client,
		filepath.Join(root, "libraries", filepath.FromSlash(LibraryRel)):  d.Library,
	}
	for hash, data := range d.Assets {
		files[filepath.Join(root, "assets", "objects", hash[:2], hash)] = data
	}
	return files
}

func (d *Distribution) build() {
	off := d.Official.URL
	otherOS := "windows"
	if runtime.GOOS == "windows" {
		otherOS = "osx"
	}

	objects := map[string]any{}
	i := 0
	for hash, data := range d.Assets {
		objects[fmt.Sprintf("minecraft/sounds/s%d.ogg", i)] = map[string]any{"hash": hash, "size": len(data)}
		d.content[d.AssetPath(hash)] = data
		i++
	}
	// Same object under a second name; planned once.
	for hash, data := range d.Assets {
		objects["minecraft/lang/alias.json"] = map[string]any{"hash": hash, "size": len(data)}
		break
	}
	index := mustJSON(map[string]any{"objects": objects})
	d.content[d.IndexPath()] = index

	descriptor := mustJSON(map[string]any{
		"id": d.VersionID,
		"downloads": map[string]any{
			"client": map[string]any{"url": off + d.ClientPath(), "sha1": SHA1(d.Client), "size": len(d.Client)},
		},
		"libraries": []any{
			map[string]any{
				"name": LibraryName,
				"downloads": map[string]any{
					"artifact": map[string]any{"path": LibraryRel, "url": off + d.LibraryPath(), "sha1": SHA1(d.Library), "size": len(d.Library)},
				},
			},
			map[string]any{
				"name": "com.example:natives:1.0",
				"downloads": map[string]any{
					"classifiers": map[string]any{"natives-linux": map[string]any{"url": off + "/libraries/natives.jar"}},
				},
			},
			map[string]any{
				"name": "com.example:platform-only:1.0",
				"downloads": map[string]any{
					"artifact": map[string]any{"url": off + "/libraries/platform-only.jar", "sha1": SHA1([]byte("x")), "size": 1},
				},
				"rules": []any{map[string]any{"action": "allow", "os": map[string]any{"name": otherOS}}},
			},
		},
		"assetIndex": map[string]any{
			"id": d.IndexID, "url": off + d.IndexPath(), "sha1": SHA1(index), "size": len(index), "totalSize": 0,
		},
	})
	d.content[d.DescriptorPath()] = descriptor
	d.content[d.ClientPath()] = d.Client
	d.content[d.LibraryPath()] = d.Library

	d.content["/mc/game/version_manifest_v2.json"] = mustJSON(map[string]any{
		"latest": map[string]any{"release": d.VersionID, "snapshot": d.VersionID},
		"versions": []any{
			map[string]any{"id": d.VersionID, "type": "release", "url": off + d.DescriptorPath(), "time": "2024-01-01T00:00:00+00:00", "releaseTime": "2024-01-01T00:00:00+00:00", "sha1": SHA1(descriptor)},
			map[string]any{"id": "0.9-snap", "type": "snapshot", "url": off + "/v1/packages/0.9-snap.json", "time": "2023-12-01T00:00:00+00:00", "releaseTime": "2023-12-01T00:00:00+00:00"},
		},
	})
}

func (d *Distribution) lookupOfficial(p string) ([]byte, bool) {
	data, ok := d.content[p]
	return data, ok
}

func (d *Distribution) lookupMirror(p string) ([]byte, bool) {
	for off := range d.content {
		if d.MirrorPath(off) == p {
			return d.content[off], true
		}
	}
	return nil, false
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
