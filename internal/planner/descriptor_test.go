package planner

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLibraryPath(t *testing.T) {
	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"org.lwjgl:lwjgl:3.3.1", "org/lwjgl/lwjgl/3.3.1/lwjgl-3.3.1.jar", true},
		{"org.lwjgl:lwjgl:3.3.1:natives-linux", "org/lwjgl/lwjgl/3.3.1/lwjgl-3.3.1-natives-linux.jar", true},
		{"com.mojang:brigadier:1.0.18", "com/mojang/brigadier/1.0.18/brigadier-1.0.18.jar", true},
		{"broken:name", "", false},
		{"::1.0", "", false},
		{"com.example:../../../evil:1.0", "", false},
		{"com..example:evil:1.0", "", false},
		{"com.example:evil:..", "", false},
		{"com.example:evil:1.0:../x", "", false},
		{`com.example:a\b:1.0`, "", false},
	}
	for _, tt := range tests {
		got, ok := LibraryPath(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		if tt.ok {
			assert.Equal(t, filepath.FromSlash(tt.want), got)
		}
	}
}

func TestLibraryAllowed(t *testing.T) {
	allowOSX := Library{Rules: []LibraryRule{{Action: "allow", OS: &RuleMatch{Name: "osx"}}}}
	assert.True(t, allowOSX.Allowed("osx"))
	assert.False(t, allowOSX.Allowed("linux"))

	allButOSX := Library{Rules: []LibraryRule{
		{Action: "allow"},
		{Action: "disallow", OS: &RuleMatch{Name: "osx"}},
	}}
	assert.True(t, allButOSX.Allowed("windows"))
	assert.False(t, allButOSX.Allowed("osx"))

	assert.True(t, Library{}.Allowed("linux"))
}

func TestManifestFind(t *testing.T) {
	m := Manifest{Versions: []ManifestVersion{{ID: "1.0"}, {ID: "1.1"}}}
	v, ok := m.Find("1.1")
	assert.True(t, ok)
	assert.Equal(t, "1.1", v.ID)
	_, ok = m.Find("2.0")
	assert.False(t, ok)
}

func TestSafeName(t *testing.T) {
	for _, name := range []string{"1.20.1", "1.14 Pre-Release 1", "17", "legacy"} {
		assert.True(t, SafeName(name), name)
	}
	for _, name := range []string{"", ".", "..", "../x", "a/b", `a\b`, "a..b", "C:x"} {
		assert.False(t, SafeName(name), name)
	}
}

func TestValidAssetHash(t *testing.T) {
	assert.True(t, ValidAssetHash("0123456789abcdef0123456789abcdef01234567"))
	assert.False(t, ValidAssetHash("0123456789ABCDEF0123456789ABCDEF01234567"))
	assert.False(t, ValidAssetHash("0123456789abcdef"))
	assert.False(t, ValidAssetHash("../../../../../tmp/victim"))
	assert.False(t, ValidAssetHash("0123456789abcdef0123456789abcdef0123456g"))
}
