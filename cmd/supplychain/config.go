package main

import (
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const appID = "supplychain"

type config struct {
	ServeRESTAddress string        `envconfig:"serve_rest_address" default:":8080"`
	StorageDriver    string        `envconfig:"storage_driver" default:"memory"`
	MySQLDSN         string        `envconfig:"mysql_dsn"`
	BadgerPath       string        `envconfig:"badger_path" default:"data/badger"`
	RoleCacheTTL     time.Duration `envconfig:"role_cache_ttl" default:"30s"`
	RoleGrants       []string      `envconfig:"role_grants"`
	LogLevel         string        `envconfig:"log_level" default:"info"`
	LogFile          string        `envconfig:"log_file"`
	LogFileMaxSizeMB int           `envconfig:"log_file_max_size_mb" default:"100"`
	LogFileBackups   int           `envconfig:"log_file_backups" default:"5"`
}

func parseEnv() (*config, error) {
	c := new(config)
	if err := envconfig.Process(appID, c); err != nil {
		return nil, errors.Wrap(err, "failed to parse env")
	}
	return c, nil
}

// setupLogging returns a function that closes the log file, if one is configured.
func setupLogging(c *config) (func(), error) {
	log.SetFormatter(&log.JSONFormatter{})
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", c.LogLevel)
	}
	log.SetLevel(level)

	if c.LogFile == "" {
		log.SetOutput(os.Stderr)
		return func() {}, nil
	}
	file := &lumberjack.Logger{
		Filename:   c.LogFile,
		MaxSize:    c.LogFileMaxSizeMB,
		MaxBackups: c.LogFileBackups,
		Compress:   true,
	}
	log.SetOutput(file)
	return func() { _ = file.Close() }, nil
}
