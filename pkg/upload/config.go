package upload

import "time"

// Config tunes slot admission thresholds. The zero Config is not usable;
// start from DefaultConfig and override individual fields.
type Config struct {
	// StandardSlots is the number of USERSLOTs normally available.
	StandardSlots int `mapstructure:"standard_slots" validate:"required,gt=0" yaml:"standard_slots"`
	// ExtraAutoOpenSlots is added to StandardSlots when deciding whether
	// a slot may be auto-opened under the speed/uploader-count relief
	// clause of standard_slots_remaining.
	ExtraAutoOpenSlots int `mapstructure:"extra_auto_open_slots" validate:"gte=0" yaml:"extra_auto_open_slots"`
	// SpeedThresholdBytesPS is the upload speed below which the relief
	// clause can fire.
	SpeedThresholdBytesPS int64 `mapstructure:"speed_threshold_bytes_per_sec" validate:"gte=0" yaml:"speed_threshold_bytes_per_sec"`
	// MinGrantInterval is the minimum time between auto-opened slot
	// grants under the relief clause.
	MinGrantInterval time.Duration `mapstructure:"min_grant_interval" validate:"required,gt=0" yaml:"min_grant_interval"`

	// MiniSlots is the number of minislot-tagged FILESLOTs available to
	// non-operators.
	MiniSlots int `mapstructure:"mini_slots" validate:"gte=0" yaml:"mini_slots"`
	// MiniFileSizeThreshold is the file size at or under which a
	// non-meta file still counts as "small" for mcn_small eligibility.
	MiniFileSizeThreshold int64 `mapstructure:"mini_file_size_threshold" validate:"gte=0" yaml:"mini_file_size_threshold"`

	// MCNSmallSlotCap bounds concurrent mcn_small connections regardless
	// of per-user or standard slot state.
	MCNSmallSlotCap int `mapstructure:"mcn_small_slot_cap" validate:"gte=0" yaml:"mcn_small_slot_cap"`
	// MCNPerUserCap bounds one user's total concurrent MCN connections.
	MCNPerUserCap int `mapstructure:"mcn_per_user_cap" validate:"gte=0" yaml:"mcn_per_user_cap"`

	// DelayGrace is how long a finished upload's stream stays reusable
	// on the delay list before it is closed. Exposed to hosts as
	// AIRCORE_UPLOAD_DELAY_GRACE_DURATION.
	DelayGrace time.Duration `mapstructure:"delay_grace_duration" validate:"required,gt=0" yaml:"delay_grace_duration"`

	// HookTimeout bounds each slot-type hook's run time.
	HookTimeout time.Duration `mapstructure:"hook_timeout" validate:"required,gt=0" yaml:"hook_timeout"`
}

// DefaultConfig returns the thresholds used when no explicit configuration
// is supplied.
func DefaultConfig() Config {
	return Config{
		StandardSlots:         3,
		ExtraAutoOpenSlots:    3,
		SpeedThresholdBytesPS: 10 * 1024,
		MinGrantInterval:      30 * time.Second,
		MiniSlots:             3,
		MiniFileSizeThreshold: 64 * 1024,
		MCNSmallSlotCap:       8,
		MCNPerUserCap:         3,
		DelayGrace:            5 * time.Second,
		HookTimeout:           2 * time.Second,
	}
}
