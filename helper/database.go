package helper

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// DatabaseConfiguration holds the connection settings for Postgres
type DatabaseConfiguration struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	Schema   string
	SSLMode  string
}

// NewDatabaseConfiguration reads the database configuration from the environment.
// A .env file in the working directory is loaded first if present.
// Required: KGWALKER_DB_HOST, KGWALKER_DB_PORT, KGWALKER_DB_DATABASE, KGWALKER_DB_USERNAME.
func NewDatabaseConfiguration() (*DatabaseConfiguration, error) {
	_ = godotenv.Load()

	config := &DatabaseConfiguration{
		Host:     os.Getenv("KGWALKER_DB_HOST"),
		Port:     os.Getenv("KGWALKER_DB_PORT"),
		Database: os.Getenv("KGWALKER_DB_DATABASE"),
		Username: os.Getenv("KGWALKER_DB_USERNAME"),
		Password: os.Getenv("KGWALKER_DB_PASSWORD"),
		Schema:   os.Getenv("KGWALKER_DB_SCHEMA"),
		SSLMode:  os.Getenv("KGWALKER_DB_SSLMODE"),
	}

	if config.Host == "" || config.Port == "" || config.Database == "" || config.Username == "" {
		return nil, NewError("database configuration", fmt.Errorf("KGWALKER_DB_HOST, KGWALKER_DB_PORT, KGWALKER_DB_DATABASE and KGWALKER_DB_USERNAME must be set"))
	}
	if config.Schema == "" {
		config.Schema = "public"
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	return config, nil
}

// ConnectionString returns the lib/pq connection string
func (c *DatabaseConfiguration) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s dbname=%s user=%s password=%s sslmode=%s search_path=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode, c.Schema,
	)
}

// Database bundles the connection pool with its logger
type Database struct {
	Name     string
	Instance *sql.DB
	Logger   *slog.Logger
}

// NewDatabase opens and pings a Postgres connection.
// It panics if the database is unreachable.
func NewDatabase(name string, config *DatabaseConfiguration, logger *slog.Logger) *Database {
	instance, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		log.Panicf("error opening database %s: %v", name, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = instance.PingContext(ctx)
	if err != nil {
		log.Panicf("error connecting to database %s: %v", name, err)
	}

	instance.SetMaxOpenConns(10)
	instance.SetConnMaxIdleTime(time.Minute)

	logger.Info("Connected to database", slog.String("name", name), slog.String("host", config.Host))

	return &Database{
		Name:     name,
		Instance: instance,
		Logger:   logger,
	}
}

// Close closes the connection pool
func (d *Database) Close() error {
	if err := d.Instance.Close(); err != nil {
		return NewError("close database", err)
	}
	return nil
}
