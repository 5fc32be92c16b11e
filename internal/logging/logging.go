package logging

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where and how verbosely wpforge logs.
type Options struct {
	Verbose bool
	// Quiet suppresses the console core entirely; the file core still runs.
	// The TUI sets this so log lines do not fight the render loop.
	Quiet bool
	// Dir is where the rotating log file lives. Empty means ./.wpforge.
	Dir string
}

const logFileName = "wpforge.log"

// New builds the process logger: a human-readable console core on stderr and
// a JSON file core with rotation. Callers own Sync on shutdown.
func New(opts Options) (*zap.Logger, error) {
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		dir = ".wpforge"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	fileWriter := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(dir, logFileName),
		MaxSize:    15, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	})

	fileEncCfg := zap.NewProductionEncoderConfig()
	fileEncCfg.TimeKey = "ts"
	fileEncCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(fileEncCfg), fileWriter, zap.DebugLevel)

	cores := []zapcore.Core{fileCore}
	if !opts.Quiet {
		consoleLevel := zap.InfoLevel
		if opts.Verbose {
			consoleLevel = zap.DebugLevel
		}
		consoleEncCfg := zap.NewDevelopmentEncoderConfig()
		consoleEncCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEncCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		consoleCore := zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleEncCfg),
			zapcore.Lock(os.Stderr),
			consoleLevel,
		)
		cores = append(cores, consoleCore)
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}

// Nop returns a logger that discards everything. Tests and default struct
// fields use it so nil checks stay out of call sites.
func Nop() *zap.Logger {
	return zap.NewNop()
}
