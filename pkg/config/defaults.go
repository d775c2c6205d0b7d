package config

import (
	"path/filepath"
	"time"

	"github.com/dcwire/aircore/internal/logger"
	"github.com/dcwire/aircore/pkg/hub"
	"github.com/dcwire/aircore/pkg/queue"
	"github.com/dcwire/aircore/pkg/share"
	"github.com/dcwire/aircore/pkg/upload"
)

// ApplyDefaults fills in zero-valued fields of cfg with this package's
// defaults. Explicitly set values, including zero values a host set on
// purpose for a bool field, are left alone except where noted.
func ApplyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	if cfg.Identity.Nick == "" {
		cfg.Identity.Nick = "aircore"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = "127.0.0.1:9100"
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = "127.0.0.1:8620"
	}
	if cfg.API.SessionTTL == 0 {
		cfg.API.SessionTTL = 24 * time.Hour
	}

	applyZeroQueueDefaults(&cfg.Queue, queue.DefaultConfig())
	applyZeroUploadDefaults(&cfg.Upload, upload.DefaultConfig())
	applyZeroHubDefaults(&cfg.Hub, hub.DefaultConfig())
	applyZeroShareDefaults(&cfg.Share, share.DefaultConfig())

	if cfg.Share.HashCacheDir == "" {
		cfg.Share.HashCacheDir = filepath.Join(cfg.DataDir, "hashcache")
	}
}

// applyZeroQueueDefaults fills any zero-valued field of dst from def,
// leaving fields a host already set untouched. Queue, upload, hub and
// share configs are plain numeric/duration structs, so a per-field
// zero-check is enough; a fully generic reflection-based merge would
// obscure which fields this package actually expects hosts to override.
func applyZeroQueueDefaults(dst *queue.Config, def queue.Config) {
	if dst.DownloadSlots == 0 {
		dst.DownloadSlots = def.DownloadSlots
	}
	if dst.ExtraDownloadSlots == 0 {
		dst.ExtraDownloadSlots = def.ExtraDownloadSlots
	}
	if dst.ChunkSize == 0 {
		dst.ChunkSize = def.ChunkSize
	}
	if dst.SmallFileThreshold == 0 {
		dst.SmallFileThreshold = def.SmallFileThreshold
	}
	if dst.MaxSegmentsPerFile == 0 {
		dst.MaxSegmentsPerFile = def.MaxSegmentsPerFile
	}
	if len(dst.ForbiddenExtensions) == 0 {
		dst.ForbiddenExtensions = def.ForbiddenExtensions
	}
	if dst.HookTimeout == 0 {
		dst.HookTimeout = def.HookTimeout
	}
}

func applyZeroUploadDefaults(dst *upload.Config, def upload.Config) {
	if dst.StandardSlots == 0 {
		dst.StandardSlots = def.StandardSlots
	}
	if dst.ExtraAutoOpenSlots == 0 {
		dst.ExtraAutoOpenSlots = def.ExtraAutoOpenSlots
	}
	if dst.SpeedThresholdBytesPS == 0 {
		dst.SpeedThresholdBytesPS = def.SpeedThresholdBytesPS
	}
	if dst.MinGrantInterval == 0 {
		dst.MinGrantInterval = def.MinGrantInterval
	}
	if dst.MiniSlots == 0 {
		dst.MiniSlots = def.MiniSlots
	}
	if dst.MiniFileSizeThreshold == 0 {
		dst.MiniFileSizeThreshold = def.MiniFileSizeThreshold
	}
	if dst.MCNSmallSlotCap == 0 {
		dst.MCNSmallSlotCap = def.MCNSmallSlotCap
	}
	if dst.MCNPerUserCap == 0 {
		dst.MCNPerUserCap = def.MCNPerUserCap
	}
	if dst.DelayGrace == 0 {
		dst.DelayGrace = def.DelayGrace
	}
	if dst.HookTimeout == 0 {
		dst.HookTimeout = def.HookTimeout
	}
}

func applyZeroHubDefaults(dst *hub.Config, def hub.Config) {
	if dst.FloodPeriod == 0 {
		dst.FloodPeriod = def.FloodPeriod
	}
	if dst.CTMMinorLimit == 0 {
		dst.CTMMinorLimit = def.CTMMinorLimit
	}
	if dst.CTMSevereLimit == 0 {
		dst.CTMSevereLimit = def.CTMSevereLimit
	}
	if dst.CTMMCNMinorLimit == 0 {
		dst.CTMMCNMinorLimit = def.CTMMCNMinorLimit
	}
	if dst.CTMMCNSevereLimit == 0 {
		dst.CTMMCNSevereLimit = def.CTMMCNSevereLimit
	}
	if dst.SearchMinorLimit == 0 {
		dst.SearchMinorLimit = def.SearchMinorLimit
	}
	if dst.SearchSevereLimit == 0 {
		dst.SearchSevereLimit = def.SearchSevereLimit
	}
	if dst.ReconnectDelayMin == 0 {
		dst.ReconnectDelayMin = def.ReconnectDelayMin
	}
	if dst.ReconnectDelayMax == 0 {
		dst.ReconnectDelayMax = def.ReconnectDelayMax
	}
	if dst.ReconnectJitterMax == 0 {
		dst.ReconnectJitterMax = def.ReconnectJitterMax
	}
	if dst.SevereFloodReconnectDelay == 0 {
		dst.SevereFloodReconnectDelay = def.SevereFloodReconnectDelay
	}
	if dst.SearchInterval == 0 {
		dst.SearchInterval = def.SearchInterval
	}
	if dst.MessageCacheSize == 0 {
		dst.MessageCacheSize = def.MessageCacheSize
	}
}

func applyZeroShareDefaults(dst *share.Config, def share.Config) {
	noneSet := dst.RefreshWorkers == 0 && dst.MaxErrorsPerKind == 0 &&
		!dst.RejectZeroByte && dst.MaxFileSize == 0 && len(dst.ExcludedPaths) == 0 &&
		len(dst.ForbiddenExtensions) == 0

	if len(dst.ForbiddenExtensions) == 0 {
		dst.ForbiddenExtensions = def.ForbiddenExtensions
	}
	if dst.RefreshWorkers == 0 {
		dst.RefreshWorkers = def.RefreshWorkers
	}
	if dst.MaxErrorsPerKind == 0 {
		dst.MaxErrorsPerKind = def.MaxErrorsPerKind
	}
	// RejectZeroByte defaults to true, but false is also a meaningful
	// host choice; only apply the default when the share section was
	// left entirely unconfigured.
	if noneSet {
		dst.RejectZeroByte = def.RejectZeroByte
	}
}

func defaultDataDir() string {
	return filepath.Join(getConfigDir(), "data")
}

// GetDefaultConfig returns a complete, valid Config built entirely from
// this package's defaults plus the per-subsystem DefaultConfig functions.
// Hosts embedding the core for tests or quick starts can use this
// directly instead of authoring a YAML file.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Identity: IdentityConfig{
			Nick: "aircore",
		},
		Queue:  queue.DefaultConfig(),
		Upload: upload.DefaultConfig(),
		Hub:    hub.DefaultConfig(),
		Share:  share.DefaultConfig(),
		Logging: logger.Config{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
