package config

import (
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PlatformConfig is the deploy-time module allowlist read from soko.yml.
// An empty EnabledModules list means every registered module is served.
type PlatformConfig struct {
	EnabledModules []string `mapstructure:"enabledModules"`
}

func DefaultPlatformConfig() PlatformConfig {
	return PlatformConfig{EnabledModules: nil}
}

type ModulesHolder struct {
	current atomic.Value // holds PlatformConfig
}

func NewModulesHolder() (*ModulesHolder, error) {
	v := viper.New()

	v.SetConfigName("soko")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/soko/config") // Volume-mounted config
	v.AddConfigPath("/etc/soko")            // System config
	v.AddConfigPath(".")                    // Current directory (dev mode)

	v.SetEnvPrefix("SOKO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// no config file means no allowlist, all modules enabled
	}

	var cfg PlatformConfig
	if err := v.UnmarshalKey("platform", &cfg); err != nil {
		return nil, err
	}

	holder := &ModulesHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlatformConfig
		if err := v.UnmarshalKey("platform", &updated); err != nil {
			log.Printf("[platform-config] reload failed: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[platform-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *ModulesHolder) Get() PlatformConfig {
	return h.current.Load().(PlatformConfig)
}

// Enabled reports whether a module key is allowed by the current snapshot.
func (h *ModulesHolder) Enabled(key string) bool {
	if h == nil {
		return true
	}
	cfg := h.Get()
	if len(cfg.EnabledModules) == 0 {
		return true
	}
	key = strings.TrimSpace(key)
	for _, allowed := range cfg.EnabledModules {
		if strings.EqualFold(strings.TrimSpace(allowed), key) {
			return true
		}
	}
	return false
}
