package node

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ModuleCert is the module field carried by every certificate log line.
const ModuleCert = "cert"

// NewLogger builds a JSON zap logger at level. With an empty file it writes
// to stderr; otherwise to a size-rotated file.
func NewLogger(level string, file string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var out zapcore.WriteSyncer
	if file == "" {
		out = zapcore.AddSync(os.Stderr)
	} else {
		if err := os.MkdirAll(filepath.Dir(file), 0o700); err != nil {
			return nil, fmt.Errorf("log dir: %w", err)
		}
		out = zapcore.AddSync(&lumberjack.Logger{
			Filename:   file,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), out, zap.NewAtomicLevelAt(lvl))
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// NewLoggerFromConfig is NewLogger for cfg's log fields.
func NewLoggerFromConfig(cfg Config) (*zap.Logger, error) {
	return NewLogger(cfg.LogLevel, cfg.LogFile)
}
