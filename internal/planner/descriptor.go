package planner

import (
	"path/filepath"
	"runtime"
	"strings"
)

type Manifest struct {
	Latest   Latest            `json:"latest"`
	Versions []ManifestVersion `json:"versions"`
}

type Latest struct {
	Release  string `json:"release"`
	Snapshot string `json:"snapshot"`
}

type ManifestVersion struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	URL         string `json:"url"`
	Time        string `json:"time"`
	ReleaseTime string `json:"releaseTime"`
	SHA1        string `json:"sha1,omitempty"`
}

// Find returns the manifest entry for id.
func (m *Manifest) Find(id string) (ManifestVersion, bool) {
	for _, v := range m.Versions {
		if v.ID == id {
			return v, true
		}
	}
	return ManifestVersion{}, false
}

// Filter returns the entries of the given type, or all of them when typ is empty.
func (m *Manifest) Filter(typ string) []ManifestVersion {
	if typ == "" {
		return m.Versions
	}
	var out []ManifestVersion
	for _, v := range m.Versions {
		if v.Type == typ {
			out = append(out, v)
		}
	}
	return out
}

// Descriptor is the per-version JSON. Only the fields the planner reads are mapped.
type Descriptor struct {
	ID         string         `json:"id"`
	Downloads  Downloads      `json:"downloads"`
	Libraries  []Library      `json:"libraries"`
	AssetIndex *AssetIndexRef `json:"assetIndex"`
}

type Downloads struct {
	Client *Download `json:"client"`
}

type Download struct {
	URL  string `json:"url"`
	SHA1 string `json:"sha1"`
	Size int64  `json:"size"`
}

type Library struct {
	Name      string           `json:"name"`
	Downloads LibraryDownloads `json:"downloads"`
	Rules     []LibraryRule    `json:"rules,omitempty"`
}

type LibraryDownloads struct {
	Artifact    *Artifact           `json:"artifact"`
	Classifiers map[string]Artifact `json:"classifiers,omitempty"`
}

type Artifact struct {
	Path string `json:"path"`
	URL  string `json:"url"`
	SHA1 string `json:"sha1"`
	Size int64  `json:"size"`
}

type LibraryRule struct {
	Action string     `json:"action"`
	OS     *RuleMatch `json:"os,omitempty"`
}

type RuleMatch struct {
	Name string `json:"name"`
}

type AssetIndexRef struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	SHA1      string `json:"sha1"`
	Size      int64  `json:"size"`
	TotalSize int64  `json:"totalSize"`
}

type AssetIndex struct {
	Objects map[string]AssetObject `json:"objects"`
}

type AssetObject struct {
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// HostOS is the os.name used by library rules for the running platform.
func HostOS() string {
	switch runtime.GOOS {
	case "darwin":
		return "osx"
	case "windows":
		return "windows"
	default:
		return "linux"
	}
}

// Allowed evaluates library rules for osName. No rules means allowed;
// otherwise the last matching rule decides and nothing matching means denied.
func (l Library) Allowed(osName string) bool {
	if len(l.Rules) == 0 {
		return true
	}
	allowed := false
	for _, rule := range l.Rules {
		if rule.OS != nil && rule.OS.Name != "" && rule.OS.Name != osName {
			continue
		}
		allowed = rule.Action == "allow"
	}
	return allowed
}

// LibraryPath maps group:artifact:version[:classifier] to its path below
// the libraries directory. Names with a part that is not a plain path
// element are rejected.
func LibraryPath(name string) (string, bool) {
	parts := strings.Split(name, ":")
	if len(parts) < 3 {
		return "", false
	}
	group, artifact, version := parts[0], parts[1], parts[2]
	dirs := strings.Split(group, ".")
	for _, part := range append(dirs, artifact, version) {
		if !SafeName(part) {
			return "", false
		}
	}
	file := artifact + "-" + version
	if len(parts) > 3 && parts[3] != "" {
		if !SafeName(parts[3]) {
			return "", false
		}
		file += "-" + parts[3]
	}
	dirs = append(dirs, artifact, version, file+".jar")
	return filepath.Join(dirs...), true
}

// SafeName reports whether name can be used as a single path element: not
// empty, no separators and no "..".
func SafeName(name string) bool {
	return name != "" && name != "." && !strings.Contains(name, "..") && !strings.ContainsAny(name, `/\:`)
}

// ValidAssetHash reports whether hash is a lower-case hex SHA-1, the only
// form asset objects are stored under.
func ValidAssetHash(hash string) bool {
	if len(hash) != 40 {
		return false
	}
	for _, c := range hash {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
