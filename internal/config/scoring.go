package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ScoringConfig carries the tunable inputs of the match scorer.
type ScoringConfig struct {
	Target         TargetConfig              `mapstructure:"target"`
	Affinity       map[string]AffinityConfig `mapstructure:"affinity"`
	GrowthKeywords []string                  `mapstructure:"growthKeywords"`
}

type TargetConfig struct {
	SizeClass string `mapstructure:"sizeClass"`
	Industry  string `mapstructure:"industry"`
}

type AffinityConfig struct {
	High   []string `mapstructure:"high" json:"high"`
	Medium []string `mapstructure:"medium" json:"medium"`
	Low    []string `mapstructure:"low" json:"low"`
}

func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		Target: TargetConfig{SizeClass: "any", Industry: "software"},
		Affinity: map[string]AffinityConfig{
			"software": {
				High:   []string{"saas", "software", "cloud", "platform", "it services", "web development"},
				Medium: []string{"consulting", "marketing", "digital", "e-commerce", "media"},
				Low:    []string{"government", "public sector", "non-profit"},
			},
			"manufacturing": {
				High:   []string{"manufacturing", "factory", "industrial", "machinery", "parts"},
				Medium: []string{"logistics", "wholesale", "construction"},
				Low:    []string{"entertainment", "media"},
			},
			"retail": {
				High:   []string{"retail", "store", "shop", "e-commerce", "consumer goods"},
				Medium: []string{"food", "apparel", "restaurant", "wholesale"},
				Low:    []string{"heavy industry", "mining"},
			},
		},
		GrowthKeywords: []string{
			"growth", "growing", "expanding", "expansion", "hiring", "recruiting",
			"funding", "raised", "series a", "series b", "launch", "new office",
			"scale", "scaling", "rapid", "award", "partnership", "ipo",
		},
	}
}

type ScoringConfigHolder struct {
	current atomic.Value // holds ScoringConfig
}

// NewScoringConfigHolder loads scoring.yml when present and keeps it fresh
// while the process runs.
func NewScoringConfigHolder(log *zap.Logger) (*ScoringConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	v := viper.New()

	v.SetConfigName("scoring")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/prospector")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PROSPECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &ScoringConfigHolder{}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(DefaultScoringConfig())
		return holder, nil
	}

	cfg, err := decodeScoringConfig(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeScoringConfig(v)
		if err != nil {
			log.Warn("scoring config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("scoring config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStaticScoringConfigHolder pins a fixed config, mostly for tests.
func NewStaticScoringConfigHolder(cfg ScoringConfig) *ScoringConfigHolder {
	holder := &ScoringConfigHolder{}
	holder.current.Store(normalizeScoringConfig(cfg))
	return holder
}

func (h *ScoringConfigHolder) Get() ScoringConfig {
	if h == nil {
		return DefaultScoringConfig()
	}
	cfg, ok := h.current.Load().(ScoringConfig)
	if !ok {
		return DefaultScoringConfig()
	}
	return cfg
}

func decodeScoringConfig(v *viper.Viper) (ScoringConfig, error) {
	cfg := DefaultScoringConfig()
	if err := v.UnmarshalKey("scoring", &cfg); err != nil {
		return ScoringConfig{}, err
	}
	cfg = normalizeScoringConfig(cfg)
	if err := validateScoringConfig(cfg); err != nil {
		return ScoringConfig{}, err
	}
	return cfg, nil
}

func normalizeScoringConfig(cfg ScoringConfig) ScoringConfig {
	cfg.Target.SizeClass = strings.ToLower(strings.TrimSpace(cfg.Target.SizeClass))
	if cfg.Target.SizeClass == "" {
		cfg.Target.SizeClass = "any"
	}
	cfg.Target.Industry = strings.ToLower(strings.TrimSpace(cfg.Target.Industry))

	affinity := make(map[string]AffinityConfig, len(cfg.Affinity))
	for industry, table := range cfg.Affinity {
		affinity[strings.ToLower(strings.TrimSpace(industry))] = AffinityConfig{
			High:   lowerAll(table.High),
			Medium: lowerAll(table.Medium),
			Low:    lowerAll(table.Low),
		}
	}
	cfg.Affinity = affinity
	cfg.GrowthKeywords = lowerAll(cfg.GrowthKeywords)
	return cfg
}

func validateScoringConfig(cfg ScoringConfig) error {
	if len(cfg.GrowthKeywords) == 0 {
		return errors.New("scoring.growthKeywords cannot be empty")
	}
	if len(cfg.Affinity) == 0 {
		return errors.New("scoring.affinity cannot be empty")
	}
	return nil
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
