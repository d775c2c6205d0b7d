package hub

import "time"

// Config tunes flood thresholds, reconnect timing and search pacing for a
// Session. Use DefaultConfig and override individual fields.
type Config struct {
	FloodPeriod time.Duration `mapstructure:"flood_period" validate:"required,gt=0" yaml:"flood_period"`

	CTMMinorLimit     int `mapstructure:"ctm_minor_limit" validate:"required,gt=0" yaml:"ctm_minor_limit"`
	CTMSevereLimit    int `mapstructure:"ctm_severe_limit" validate:"required,gt=0" yaml:"ctm_severe_limit"`
	CTMMCNMinorLimit  int `mapstructure:"ctm_mcn_minor_limit" validate:"required,gt=0" yaml:"ctm_mcn_minor_limit"` // relief limits for MCN-capable peers
	CTMMCNSevereLimit int `mapstructure:"ctm_mcn_severe_limit" validate:"required,gt=0" yaml:"ctm_mcn_severe_limit"`

	SearchMinorLimit  int `mapstructure:"search_minor_limit" validate:"required,gt=0" yaml:"search_minor_limit"`
	SearchSevereLimit int `mapstructure:"search_severe_limit" validate:"required,gt=0" yaml:"search_severe_limit"`

	// ReconnectDelayMin/Max bound the randomized base delay before an
	// automatic reconnect attempt.
	ReconnectDelayMin time.Duration `mapstructure:"reconnect_delay_min" validate:"required,gt=0" yaml:"reconnect_delay_min"`
	ReconnectDelayMax time.Duration `mapstructure:"reconnect_delay_max" validate:"required,gtfield=ReconnectDelayMin" yaml:"reconnect_delay_max"`
	// ReconnectJitterMax bounds the extra random jitter added on top of
	// the base delay.
	ReconnectJitterMax time.Duration `mapstructure:"reconnect_jitter_max" validate:"gte=0" yaml:"reconnect_jitter_max"`
	// SevereFloodReconnectDelay replaces the normal delay after a
	// confirmed severe flood disconnects the session.
	SevereFloodReconnectDelay time.Duration `mapstructure:"severe_flood_reconnect_delay" validate:"required,gt=0" yaml:"severe_flood_reconnect_delay"`

	// SearchInterval is the minimum time between two outgoing search
	// sends on one hub connection.
	SearchInterval time.Duration `mapstructure:"search_interval" validate:"required,gt=0" yaml:"search_interval"`

	// MessageCacheSize bounds the ring buffer's retained chat history.
	MessageCacheSize int `mapstructure:"message_cache_size" validate:"gte=0" yaml:"message_cache_size"`
}

// DefaultConfig returns the thresholds from the flood-defense and
// reconnect-timing contract.
func DefaultConfig() Config {
	return Config{
		FloodPeriod:               60 * time.Second,
		CTMMinorLimit:             15,
		CTMSevereLimit:            40,
		CTMMCNMinorLimit:          100,
		CTMMCNSevereLimit:         150,
		SearchMinorLimit:          20,
		SearchSevereLimit:         60,
		ReconnectDelayMin:         120 * time.Second,
		ReconnectDelayMax:         180 * time.Second,
		ReconnectJitterMax:        60 * time.Second,
		SevereFloodReconnectDelay: 10 * time.Minute,
		SearchInterval:            10 * time.Second,
		MessageCacheSize:          200,
	}
}
