// Package source maps official download URLs to ordered candidate lists
// across the mirror and the official origin.
package source

import (
	"strings"

	"github.com/minelauncher/mcfetch/internal/utils"
)

// Rule substitutes an official origin prefix with a mirror base.
type Rule struct {
	Official string
	Mirror   string
}

type Origins struct {
	OfficialManifest string
	MirrorManifest   string
	// AssetBase is the official base for asset objects (<base>/<hh>/<hash>).
	AssetBase string
	// Rules apply to metadata, client and library URLs.
	Rules []Rule
	// AssetRules are consulted first for asset lookups.
	AssetRules []Rule
}

// DefaultOrigins is the BMCLAPI mirror of the Mojang distribution.
func DefaultOrigins() Origins {
	return MirrorOrigins(utils.MirrorBase)
}

// MirrorOrigins builds the standard table against an arbitrary mirror base,
// which may be an s3:// prefix.
func MirrorOrigins(mirrorBase string) Origins {
	base := strings.TrimSuffix(mirrorBase, "/")
	return Origins{
		OfficialManifest: utils.OfficialManifestURL,
		MirrorManifest:   base + "/mc/game/version_manifest.json",
		AssetBase:        utils.OfficialAssetBase,
		Rules: []Rule{
			{Official: "https://piston-meta.mojang.com", Mirror: base},
			{Official: "https://piston-data.mojang.com", Mirror: base},
			{Official: "https://launchermeta.mojang.com", Mirror: base},
			{Official: "https://launcher.mojang.com", Mirror: base},
			{Official: "https://libraries.minecraft.net", Mirror: base + "/maven"},
		},
		AssetRules: []Rule{
			{Official: "https://resources.download.minecraft.net", Mirror: base + "/assets"},
		},
	}
}

type Resolver struct {
	pref    utils.SourcePreference
	origins Origins
}

func NewResolver(pref utils.SourcePreference, origins Origins) *Resolver {
	return &Resolver{pref: pref, origins: origins}
}

func (r *Resolver) AssetBase() string {
	return strings.TrimSuffix(r.origins.AssetBase, "/")
}

// ResolveURLs returns the candidates for an official URL in preference order.
// When no rule matches, the mirror candidate is the original URL.
func (r *Resolver) ResolveURLs(originalURL string, isAsset bool) []string {
	mirror, ok := "", false
	if isAsset {
		mirror, ok = substitute(originalURL, r.origins.AssetRules)
	}
	if !ok {
		mirror, ok = substitute(originalURL, r.origins.Rules)
	}
	if !ok {
		mirror = originalURL
	}
	return r.order(originalURL, mirror)
}

// ManifestURLs orders the two version manifest locations.
func (r *Resolver) ManifestURLs() []string {
	return r.order(r.origins.OfficialManifest, r.origins.MirrorManifest)
}

func (r *Resolver) order(official, mirror string) []string {
	switch r.pref {
	case utils.OfficialOnly:
		return []string{official}
	case utils.MirrorOnly:
		return []string{mirror}
	case utils.OfficialFirst:
		return []string{official, mirror}
	default:
		return []string{mirror, official}
	}
}

// MirrorHosts lists the host[:port] of every http(s) mirror base.
func (o Origins) MirrorHosts() []string {
	seen := map[string]bool{}
	var hosts []string
	for _, rule := range append(append([]Rule{}, o.Rules...), o.AssetRules...) {
		host := hostOf(rule.Mirror)
		if host != "" && !seen[host] {
			seen[host] = true
			hosts = append(hosts, host)
		}
	}
	return hosts
}

func substitute(u string, rules []Rule) (string, bool) {
	for _, rule := range rules {
		if rest, ok := strings.CutPrefix(u, rule.Official); ok && (rest == "" || strings.HasPrefix(rest, "/")) {
			return strings.TrimSuffix(rule.Mirror, "/") + rest, true
		}
	}
	return "", false
}

func hostOf(base string) string {
	for _, scheme := range []string{"https://", "http://"} {
		if rest, ok := strings.CutPrefix(base, scheme); ok {
			host, _, _ := strings.Cut(rest, "/")
			return host
		}
	}
	return ""
}
