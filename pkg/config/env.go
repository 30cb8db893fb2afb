package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/conduit-lang/opmeta/pkg/resolve"
)

// EnvSource serves env fallbacks from the process environment, with the
// configured fallbacks as defaults. Every lookup reads the environment
// again, so a changed variable is seen by the next request.
type EnvSource struct {
	v *viper.Viper
}

var _ resolve.ConfigSource = (*EnvSource)(nil)

// NewEnvSource creates an env source with the given defaults
func NewEnvSource(defaults map[string]string) *EnvSource {
	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return &EnvSource{v: v}
}

// Lookup implements resolve.ConfigSource
func (s *EnvSource) Lookup(key string) (any, bool) {
	key = strings.TrimSpace(key)
	if key == "" || !s.v.IsSet(key) {
		return nil, false
	}
	return s.v.Get(key), true
}
