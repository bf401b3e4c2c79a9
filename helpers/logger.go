package helpers

import (
	"os"

	"go.uber.org/zap"
)

var Log *zap.SugaredLogger

func init() {
	logger, _ := zap.NewDevelopment()
	Log = logger.Sugar()
}

// InitLogger switches to the production encoder; LOG_LEVEL=debug keeps
// debug output on.
func InitLogger() {
	cfg := zap.NewProductionConfig()
	if os.Getenv("LOG_LEVEL") == "debug" {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		Log.Fatalw("failed to build logger", "error", err)
	}
	Log = logger.Sugar()
}
