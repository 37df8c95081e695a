package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var Logger = logrus.WithFields(logrus.Fields{"prefix": "config"})

func LoadConfig(cfgfile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(cfgfile)

	v.SetEnvPrefix("matterfed")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	// use environment variables
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s", err)
	}

	if v.GetString("federation.domain") == "" {
		return nil, fmt.Errorf("federation.domain is not set in %s", cfgfile)
	}

	// reload config on file changes
	if runtime.GOOS != "illumos" {
		v.OnConfigChange(func(e fsnotify.Event) {
			Logger.Infof("config file %s changed", e.Name)
		})
		v.WatchConfig()
	}

	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.path", "matterfed.db")
	v.SetDefault("matrix.profilecache", 512)
	v.SetDefault("intake.workers", 8)
	v.SetDefault("intake.queue", 1000)
	v.SetDefault("intake.slowevent", 10*time.Second)
}

// Settings exposes the federation settings of a loaded config.
type Settings struct {
	v *viper.Viper
}

func NewSettings(v *viper.Viper) *Settings {
	return &Settings{v: v}
}

// GetHomeServerDomain returns the domain of the local homeserver, without a
// leading colon.
func (s *Settings) GetHomeServerDomain() string {
	return strings.TrimPrefix(s.v.GetString("federation.domain"), ":")
}
