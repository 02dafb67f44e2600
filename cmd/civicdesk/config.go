package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/civicdesk/civicdesk/internal/logger"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
	defaultEmailAddr    = "http://localhost:8010"
	defaultAuditAddr    = "http://localhost:8011"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the civicdesk service will be run
	ListenAddr string

	// Email notification service address to push events to
	EmailServiceAddr string

	// Audit logging service address to push events to
	AuditServiceAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key
	// Access tokens are signed symmetrically, so keep this one private
	SecretKey string

	// Environment
	Environment string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:         defaultLoggingLevel,
		ListenAddr:       defaultListenAddr,
		EmailServiceAddr: defaultEmailAddr,
		AuditServiceAddr: defaultAuditAddr,
		Environment:      defaultEnvironment,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":           setString(&c.ListenAddr),
		"DATABASE_URI":          setString(&c.DatabaseDSN),
		"SECRET_KEY":            setString(&c.SecretKey),
		"LOG_LEVEL":             setString(&c.LogLevel),
		"EMAIL_SERVICE_ADDRESS": setString(&c.EmailServiceAddr),
		"AUDIT_SERVICE_ADDRESS": setString(&c.AuditServiceAddr),
		"ENVIRONMENT":           setString(&c.Environment),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("civicdesk", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVar(&c.EmailServiceAddr, "email-service", c.EmailServiceAddr, "Email notification service address")
	fs.StringVar(&c.AuditServiceAddr, "audit-service", c.AuditServiceAddr, "Audit logging service address")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")

	return fs.Parse(args)
}
