package logger_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alkime/workbench/internal/logger"
)

func TestSetupLevels(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	tests := []struct {
		level   uint8
		warnOn  bool
		infoOn  bool
		debugOn bool
	}{
		{level: 0, warnOn: false, infoOn: false, debugOn: false},
		{level: 1, warnOn: false, infoOn: false, debugOn: false},
		{level: 2, warnOn: true, infoOn: false, debugOn: false},
		{level: 3, warnOn: true, infoOn: true, debugOn: false},
		{level: 4, warnOn: true, infoOn: true, debugOn: true},
		{level: 9, warnOn: true, infoOn: true, debugOn: true},
	}

	ctx := context.Background()
	for _, tt := range tests {
		l := logger.Setup(tt.level)
		require.True(t, l.Enabled(ctx, slog.LevelError), "level %d", tt.level)
		require.Equal(t, tt.warnOn, l.Enabled(ctx, slog.LevelWarn), "level %d", tt.level)
		require.Equal(t, tt.infoOn, l.Enabled(ctx, slog.LevelInfo), "level %d", tt.level)
		require.Equal(t, tt.debugOn, l.Enabled(ctx, slog.LevelDebug), "level %d", tt.level)
	}
}

func TestSetupInstallsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	l := logger.Setup(3)
	require.Same(t, l, slog.Default())
}
