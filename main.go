package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v2"

	"incomeserve/db"
	qhttp "incomeserve/http"
	"incomeserve/ml"
	"incomeserve/monitoring"
)

// Config is the yaml configuration. The listen port can also be
// overridden with the PORT environment variable.
type Config struct {
	Http struct {
		Port    int           `yaml:"port"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"http"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Model struct {
		Dir   string `yaml:"dir"`
		Watch bool   `yaml:"watch"`
	} `yaml:"model"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
	} `yaml:"log"`
}

func defaultConfig() *Config {
	config := &Config{}
	config.Http.Port = 5000
	config.Http.Timeout = 30 * time.Second
	config.Database.Path = "predictions.db"
	config.Model.Dir = "data"
	config.Model.Watch = true
	config.Log.Level = "info"
	config.Log.MaxSizeMB = 100
	config.Log.MaxBackups = 3
	return config
}

func main() {
	config, err := loadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(config)
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	store, err := db.Open(config.Database.Path)
	if err != nil {
		zap.S().Fatalw("failed to open prediction store", "path", config.Database.Path, "err", err)
	}
	defer store.Close()
	zap.S().Infow("prediction store ready", "path", config.Database.Path)

	provider, err := ml.NewProvider(config.Model.Dir)
	if err != nil {
		zap.S().Fatalw("failed to load model artifact", "dir", config.Model.Dir, "err", err)
	}
	defer provider.Close()
	zap.S().Infow("model artifact loaded",
		"dir", config.Model.Dir,
		"columns", len(provider.Artifact().Columns),
	)

	if config.Model.Watch {
		if err := provider.Watch(); err != nil {
			zap.S().Warnw("model hot reload disabled", "err", err)
		}
	}

	feed := monitoring.NewFeed()
	go feed.Start()
	defer feed.Stop()

	app := &qhttp.App{
		Store:    store,
		Pipeline: provider,
		Stats:    monitoring.NewStats(),
		Feed:     feed,
	}

	serverConfig := qhttp.DefaultServerConfig()
	serverConfig.Port = config.Http.Port
	if config.Http.Timeout > 0 {
		serverConfig.Timeout = config.Http.Timeout
	}

	server := qhttp.NewServer(serverConfig, app)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			zap.S().Fatalw("HTTP server failed", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.S().Info("shutting down")

	if err := server.Stop(); err != nil {
		zap.S().Errorw("server forced to shutdown", "err", err)
	}
	zap.S().Info("exiting")
}

// loadConfig reads the yaml file, falls back to defaults when it is
// absent, and applies environment overrides.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(config); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, err
		}
		config.Http.Port = p
	}
	return config, nil
}

// newLogger builds the zap logger; when a log file is configured the
// output rotates via lumberjack.
func newLogger(config *Config) *zap.Logger {
	level := zapcore.InfoLevel
	if err := level.Set(config.Log.Level); err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var sink zapcore.WriteSyncer
	if config.Log.File != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   config.Log.File,
			MaxSize:    config.Log.MaxSizeMB,
			MaxBackups: config.Log.MaxBackups,
		})
	} else {
		sink = zapcore.AddSync(os.Stderr)
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), sink, level)
	return zap.New(core)
}
