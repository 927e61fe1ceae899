// Package policy holds the archive policy: the knobs operators tune at
// runtime without restarting the archiver. The policy file is optional;
// defaults apply when it is absent.
package policy

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ArchivePolicy controls which records the migration engine selects and how
// aggressively a cycle runs.
type ArchivePolicy struct {
	// Cutoff is the minimum age of a record before it becomes eligible
	// for migration to the cold tier.
	Cutoff time.Duration `mapstructure:"cutoff"`
	// RunInterval is the pause between migration cycles.
	RunInterval time.Duration `mapstructure:"runInterval"`
	// BatchSize caps candidates selected per cycle.
	BatchSize int `mapstructure:"batchSize"`
	// Workers bounds per-record concurrency within a cycle.
	Workers int `mapstructure:"workers"`
	// OpTimeout bounds each individual tier operation.
	OpTimeout time.Duration `mapstructure:"opTimeout"`
}

func DefaultArchivePolicy() ArchivePolicy {
	return ArchivePolicy{
		Cutoff:      90 * 24 * time.Hour,
		RunInterval: 24 * time.Hour,
		BatchSize:   500,
		Workers:     8,
		OpTimeout:   30 * time.Second,
	}
}

// Holder exposes the current policy and swaps it atomically on file change.
type Holder struct {
	current atomic.Value // holds ArchivePolicy
}

func NewHolder(log *zap.Logger) (*Holder, error) {
	log = log.Named("archive.policy")
	v := viper.New()

	v.SetConfigName("archive")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/coldline/config")
	v.AddConfigPath("/etc/coldline")
	v.AddConfigPath(".")

	v.SetEnvPrefix("COLDLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultArchivePolicy()
	v.SetDefault("archive.cutoff", defaults.Cutoff)
	v.SetDefault("archive.runInterval", defaults.RunInterval)
	v.SetDefault("archive.batchSize", defaults.BatchSize)
	v.SetDefault("archive.workers", defaults.Workers)
	v.SetDefault("archive.opTimeout", defaults.OpTimeout)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var pol ArchivePolicy
	if err := v.UnmarshalKey("archive", &pol); err != nil {
		return nil, err
	}
	pol = pol.withDefaults()
	if err := validate(pol); err != nil {
		return nil, err
	}

	holder := &Holder{}
	holder.current.Store(pol)

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated ArchivePolicy
			if err := v.UnmarshalKey("archive", &updated); err != nil {
				log.Warn("policy reload failed", zap.Error(err))
				return
			}
			updated = updated.withDefaults()
			if err := validate(updated); err != nil {
				log.Warn("invalid policy ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("policy reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

// NewStaticHolder returns a holder pinned to the given policy. Used by tests
// and by callers that manage policy themselves.
func NewStaticHolder(pol ArchivePolicy) *Holder {
	holder := &Holder{}
	holder.current.Store(pol.withDefaults())
	return holder
}

func (h *Holder) Get() ArchivePolicy {
	return h.current.Load().(ArchivePolicy)
}

func (p ArchivePolicy) withDefaults() ArchivePolicy {
	defaults := DefaultArchivePolicy()
	if p.Cutoff <= 0 {
		p.Cutoff = defaults.Cutoff
	}
	if p.RunInterval <= 0 {
		p.RunInterval = defaults.RunInterval
	}
	if p.BatchSize <= 0 {
		p.BatchSize = defaults.BatchSize
	}
	if p.Workers <= 0 {
		p.Workers = defaults.Workers
	}
	if p.OpTimeout <= 0 {
		p.OpTimeout = defaults.OpTimeout
	}
	return p
}

func validate(p ArchivePolicy) error {
	if p.Cutoff < time.Hour {
		return errors.New("archive.cutoff must be at least one hour")
	}
	if p.BatchSize > 100_000 {
		return errors.New("archive.batchSize is unreasonably large")
	}
	return nil
}
