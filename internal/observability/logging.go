package observability

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/spec-kit/staff-profile/internal/config"
)

// NewLogger creates a structured zap.Logger configured via env settings.
// Output goes to stderr so command output on stdout stays machine readable.
func NewLogger(cfg config.LoggerConfig) (*zap.Logger, error) {
	level := zapcore.WarnLevel
	if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
		level = zapcore.WarnLevel
	}

	encoding := "console"
	encodeLevel := zapcore.CapitalColorLevelEncoder
	if strings.EqualFold(cfg.Format, "json") {
		encoding = "json"
		encodeLevel = zapcore.LowercaseLevelEncoder
	}

	zapCfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Development: false,
		Encoding:    encoding,
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:  "message",
			LevelKey:    "level",
			TimeKey:     "ts",
			NameKey:     "logger",
			EncodeLevel: encodeLevel,
			EncodeTime:  zapcore.ISO8601TimeEncoder,
			EncodeName:  zapcore.FullNameEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return logger, nil
}
