package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	tests := []struct {
		env, level string
		enabled    zap.AtomicLevel
		wantErr    bool
	}{
		{env: Production, enabled: zap.NewAtomicLevelAt(zap.InfoLevel)},
		{env: Development, enabled: zap.NewAtomicLevelAt(zap.DebugLevel)},
		{env: Production, level: "warn", enabled: zap.NewAtomicLevelAt(zap.WarnLevel)},
		{env: "staging", wantErr: true},
		{env: Production, level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.env+"/"+tt.level, func(t *testing.T) {
			logger, err := New(tt.env, tt.level)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			lvl := tt.enabled.Level()
			assert.True(t, logger.Core().Enabled(lvl))
			if lvl > zap.DebugLevel {
				assert.False(t, logger.Core().Enabled(lvl-1))
			}
		})
	}
}

func TestMust(t *testing.T) {
	assert.NotNil(t, Must("nope", ""))
}
