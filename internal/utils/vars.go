package utils

import "time"

const (
	KiB = 1024
	MiB = 1024 * KiB
)

const (
	LargeFileThreshold = 5 * MiB
	LargeChunkSize     = 128 * KiB
	SmallChunkSize     = 32 * KiB

	ClientMinSize   = 100 * KiB
	DefaultMinSize  = 1 * KiB
	DefaultWorkers  = 8
	MaxLargeWorkers = 4
	MaxWorkers      = 256

	DefaultAttemptsPerURL = 2
	SpeedTickInterval     = time.Second
	MonitorStopTimeout    = 2 * time.Second
)

const PartSuffix = ".part"
const LogFile = ".mcfetch.log"

const ToolUserAgent = "mcfetch/1.0"

const (
	OfficialManifestURL = "https://piston-meta.mojang.com/mc/game/version_manifest.json"
	OfficialAssetBase   = "https://resources.download.minecraft.net"
	MirrorBase          = "https://bmclapi2.bangbang93.com"
	MirrorManifestURL   = MirrorBase + "/mc/game/version_manifest.json"
)

