package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const basisPointsTotal = 10_000

// CompensationConfig is the commission plan. Amounts are minor units, shares are basis points.
type CompensationConfig struct {
	MembershipFee     int64 `mapstructure:"membership_fee"`
	RenewalPeriodDays int   `mapstructure:"renewal_period_days"`
	WarningWindowDays int   `mapstructure:"warning_window_days"`
	GraceWindowDays   int   `mapstructure:"grace_window_days"`

	TransferMin   int64 `mapstructure:"transfer_min"`
	TransferMax   int64 `mapstructure:"transfer_max"`
	WithdrawalMin int64 `mapstructure:"withdrawal_min"`

	GridWidth     int `mapstructure:"grid_width"`
	GridDepth     int `mapstructure:"grid_depth"`
	MaxGridCycles int `mapstructure:"max_grid_cycles"`

	DirectBps   int64   `mapstructure:"direct_bps"`
	LevelBps    []int64 `mapstructure:"level_bps"`
	PlatformBps int64   `mapstructure:"platform_bps"`

	WalkerMaxDepth  int `mapstructure:"walker_max_depth"`
	CascadeMaxDepth int `mapstructure:"cascade_max_depth"`
}

func DefaultCompensationConfig() CompensationConfig {
	return CompensationConfig{
		MembershipFee:     2000,
		RenewalPeriodDays: 30,
		WarningWindowDays: 3,
		GraceWindowDays:   5,
		TransferMin:       100,
		TransferMax:       50_000,
		WithdrawalMin:     500,
		GridWidth:         8,
		GridDepth:         8,
		DirectBps:         4000,
		LevelBps:          []int64{1500, 1000, 800, 600, 500, 400, 400, 300},
		PlatformBps:       500,
		WalkerMaxDepth:    500,
		CascadeMaxDepth:   50,
	}
}

func (c CompensationConfig) RenewalPeriod() time.Duration {
	return time.Duration(c.RenewalPeriodDays) * 24 * time.Hour
}

func (c CompensationConfig) WarningWindow() time.Duration {
	return time.Duration(c.WarningWindowDays) * 24 * time.Hour
}

func (c CompensationConfig) GraceWindow() time.Duration {
	return time.Duration(c.GraceWindowDays) * 24 * time.Hour
}

// GridCapacity is the number of seats in one grid.
func (c CompensationConfig) GridCapacity() int {
	return c.GridWidth * c.GridDepth
}

// Validate rejects plans that cannot conserve value.
func (c CompensationConfig) Validate() error {
	if c.MembershipFee <= 0 {
		return errors.New("compensation.membership_fee must be positive")
	}
	if c.RenewalPeriodDays <= 0 || c.WarningWindowDays < 0 || c.GraceWindowDays < 0 {
		return errors.New("compensation renewal windows are invalid")
	}
	if c.TransferMin <= 0 || c.TransferMax < c.TransferMin {
		return errors.New("compensation transfer bounds are invalid")
	}
	if c.WithdrawalMin <= 0 {
		return errors.New("compensation.withdrawal_min must be positive")
	}
	if c.GridWidth <= 0 || c.GridDepth <= 0 {
		return errors.New("compensation grid dimensions must be positive")
	}
	if c.MaxGridCycles < 0 {
		return errors.New("compensation.max_grid_cycles cannot be negative")
	}
	if len(c.LevelBps) == 0 {
		return errors.New("compensation.level_bps cannot be empty")
	}
	total := c.DirectBps + c.PlatformBps
	if c.DirectBps < 0 || c.PlatformBps < 0 {
		return errors.New("compensation shares cannot be negative")
	}
	for i, bps := range c.LevelBps {
		if bps < 0 {
			return fmt.Errorf("compensation.level_bps[%d] cannot be negative", i)
		}
		total += bps
	}
	if total != basisPointsTotal {
		return fmt.Errorf("compensation shares sum to %d bps, want %d", total, basisPointsTotal)
	}
	if c.WalkerMaxDepth <= 0 || c.CascadeMaxDepth <= 0 {
		return errors.New("compensation walk depths must be positive")
	}
	return nil
}

type CompensationConfigHolder struct {
	current atomic.Value // holds CompensationConfig
}

// NewStaticCompensationConfigHolder wraps a fixed plan without file watching.
func NewStaticCompensationConfigHolder(cfg CompensationConfig) (*CompensationConfigHolder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	holder := &CompensationConfigHolder{}
	holder.current.Store(cfg)
	return holder, nil
}

func NewCompensationConfigHolder() (*CompensationConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("compensation")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/uplink/config")
	v.AddConfigPath("/etc/uplink")
	v.AddConfigPath(".")

	v.SetEnvPrefix("UPLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultCompensationConfig()
	v.SetDefault("compensation.membership_fee", defaults.MembershipFee)
	v.SetDefault("compensation.renewal_period_days", defaults.RenewalPeriodDays)
	v.SetDefault("compensation.warning_window_days", defaults.WarningWindowDays)
	v.SetDefault("compensation.grace_window_days", defaults.GraceWindowDays)
	v.SetDefault("compensation.transfer_min", defaults.TransferMin)
	v.SetDefault("compensation.transfer_max", defaults.TransferMax)
	v.SetDefault("compensation.withdrawal_min", defaults.WithdrawalMin)
	v.SetDefault("compensation.grid_width", defaults.GridWidth)
	v.SetDefault("compensation.grid_depth", defaults.GridDepth)
	v.SetDefault("compensation.max_grid_cycles", defaults.MaxGridCycles)
	v.SetDefault("compensation.direct_bps", defaults.DirectBps)
	v.SetDefault("compensation.level_bps", defaults.LevelBps)
	v.SetDefault("compensation.platform_bps", defaults.PlatformBps)
	v.SetDefault("compensation.walker_max_depth", defaults.WalkerMaxDepth)
	v.SetDefault("compensation.cascade_max_depth", defaults.CascadeMaxDepth)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg CompensationConfig
	if err := v.UnmarshalKey("compensation", &cfg); err != nil {
		return nil, err
	}
	holder, err := NewStaticCompensationConfigHolder(cfg)
	if err != nil {
		return nil, err
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated CompensationConfig
		if err := v.UnmarshalKey("compensation", &updated); err != nil {
			log.Printf("[compensation-config] reload failed: %v", err)
			return
		}
		if err := updated.Validate(); err != nil {
			log.Printf("[compensation-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[compensation-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *CompensationConfigHolder) Get() CompensationConfig {
	return h.current.Load().(CompensationConfig)
}
