package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the POS core
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	RabbitMQ  RabbitMQConfig
	Auth      AuthConfig
	POS       POSConfig
	Tables    []TableSeed
	Customers []CustomerSeed
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            int
	MaxConcurrent   int
	ShutdownTimeout time.Duration
}

// StorageConfig selects the storage engine
type StorageConfig struct {
	Driver         string
	DSN            string
	MigrationsPath string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// RabbitMQConfig holds RabbitMQ connection configuration
type RabbitMQConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
}

// AuthConfig holds the bearer token verification secret. An empty secret
// disables token checks.
type AuthConfig struct {
	Secret string
}

// POSConfig holds business settings
type POSConfig struct {
	TaxRate             decimal.Decimal
	KitchenPollInterval time.Duration
	CatalogFile         string
}

// TableSeed is one physical table from the tables section
type TableSeed struct {
	Number   int
	Capacity int
	Section  string
}

// CustomerSeed is one credit account from the customers section
type CustomerSeed struct {
	ID          string
	CreditLimit decimal.Decimal
	Balance     decimal.Decimal
}

// Storage drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
)

// Default returns the configuration used when a key is absent
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			MaxConcurrent:   50,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Driver:         DriverMemory,
			MigrationsPath: "migrations",
		},
		Database: DatabaseConfig{Port: 5432},
		RabbitMQ: RabbitMQConfig{Port: 5672},
		POS: POSConfig{
			TaxRate:             decimal.RequireFromString("0.08"),
			KitchenPollInterval: 5 * time.Second,
		},
	}
}

// Load reads configuration from a YAML-style file on top of the defaults
func Load(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	config := Default()
	scanner := bufio.NewScanner(file)

	var currentSection string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip comments and empty lines
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Check for section headers
		if strings.HasSuffix(line, ":") && !strings.Contains(line, " ") {
			currentSection = strings.TrimSuffix(line, ":")
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"`)

		if err := config.setValue(currentSection, key, value); err != nil {
			return nil, fmt.Errorf("failed to set config value %s.%s: %w", currentSection, key, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return config, config.validate()
}

// LoadEnv loads a .env file if present and applies POS_* overrides
func (c *Config) LoadEnv(envFile string) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	if v := os.Getenv("POS_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("POS_STORAGE_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("POS_AUTH_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	if v := os.Getenv("POS_RABBITMQ_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid POS_RABBITMQ_ENABLED: %w", err)
		}
		c.RabbitMQ.Enabled = enabled
	}
	return c.validate()
}

// setValue sets a configuration value based on section and key
func (c *Config) setValue(section, key, value string) error {
	switch section {
	case "server":
		return c.setServerValue(key, value)
	case "storage":
		return c.setStorageValue(key, value)
	case "database":
		return c.setDatabaseValue(key, value)
	case "rabbitmq":
		return c.setRabbitMQValue(key, value)
	case "auth":
		return c.setAuthValue(key, value)
	case "pos":
		return c.setPOSValue(key, value)
	case "tables":
		return c.addTable(key, value)
	case "customers":
		return c.addCustomer(key, value)
	default:
		return fmt.Errorf("unknown section: %s", section)
	}
}

func (c *Config) setServerValue(key, value string) error {
	var err error
	switch key {
	case "port":
		c.Server.Port, err = parsePort(value)
	case "max_concurrent":
		c.Server.MaxConcurrent, err = strconv.Atoi(value)
	case "shutdown_timeout":
		c.Server.ShutdownTimeout, err = time.ParseDuration(value)
	default:
		return fmt.Errorf("unknown server key: %s", key)
	}
	return err
}

func (c *Config) setStorageValue(key, value string) error {
	switch key {
	case "driver":
		c.Storage.Driver = value
	case "dsn":
		c.Storage.DSN = value
	case "migrations":
		c.Storage.MigrationsPath = value
	default:
		return fmt.Errorf("unknown storage key: %s", key)
	}
	return nil
}

// setDatabaseValue sets database configuration values
func (c *Config) setDatabaseValue(key, value string) error {
	switch key {
	case "host":
		c.Database.Host = value
	case "port":
		port, err := parsePort(value)
		if err != nil {
			return err
		}
		c.Database.Port = port
	case "user":
		c.Database.User = value
	case "password":
		c.Database.Password = value
	case "database":
		c.Database.Database = value
	default:
		return fmt.Errorf("unknown database key: %s", key)
	}
	return nil
}

// setRabbitMQValue sets RabbitMQ configuration values
func (c *Config) setRabbitMQValue(key, value string) error {
	switch key {
	case "enabled":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid enabled value: %w", err)
		}
		c.RabbitMQ.Enabled = enabled
	case "host":
		c.RabbitMQ.Host = value
	case "port":
		port, err := parsePort(value)
		if err != nil {
			return err
		}
		c.RabbitMQ.Port = port
	case "user":
		c.RabbitMQ.User = value
	case "password":
		c.RabbitMQ.Password = value
	default:
		return fmt.Errorf("unknown rabbitmq key: %s", key)
	}
	return nil
}

func (c *Config) setAuthValue(key, value string) error {
	if key != "secret" {
		return fmt.Errorf("unknown auth key: %s", key)
	}
	c.Auth.Secret = value
	return nil
}

func (c *Config) setPOSValue(key, value string) error {
	switch key {
	case "tax_rate":
		rate, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("invalid tax_rate: %w", err)
		}
		if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("tax_rate must be in [0, 1)")
		}
		c.POS.TaxRate = rate
	case "kitchen_poll_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid kitchen_poll_interval: %w", err)
		}
		c.POS.KitchenPollInterval = d
	case "catalog_file":
		c.POS.CatalogFile = value
	default:
		return fmt.Errorf("unknown pos key: %s", key)
	}
	return nil
}

// addTable parses "<number>: <capacity> [section]"
func (c *Config) addTable(key, value string) error {
	number, err := strconv.Atoi(key)
	if err != nil || number < 1 {
		return fmt.Errorf("invalid table number %q", key)
	}
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return fmt.Errorf("table %d: capacity is required", number)
	}
	capacity, err := strconv.Atoi(fields[0])
	if err != nil || capacity < 1 {
		return fmt.Errorf("table %d: invalid capacity %q", number, fields[0])
	}
	section := "main"
	if len(fields) > 1 {
		section = strings.Join(fields[1:], " ")
	}
	c.Tables = append(c.Tables, TableSeed{Number: number, Capacity: capacity, Section: section})
	return nil
}

// addCustomer parses "<id>: <credit limit> [balance]"
func (c *Config) addCustomer(key, value string) error {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return fmt.Errorf("customer %s: credit limit is required", key)
	}
	limit, err := decimal.NewFromString(fields[0])
	if err != nil {
		return fmt.Errorf("customer %s: invalid credit limit: %w", key, err)
	}
	balance := decimal.Zero
	if len(fields) > 1 {
		balance, err = decimal.NewFromString(fields[1])
		if err != nil {
			return fmt.Errorf("customer %s: invalid balance: %w", key, err)
		}
	}
	c.Customers = append(c.Customers, CustomerSeed{ID: key, CreditLimit: limit, Balance: balance})
	return nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverPostgres, DriverSQLite, DriverMySQL:
	default:
		return fmt.Errorf("unknown storage driver: %s", c.Storage.Driver)
	}
	seen := make(map[int]bool, len(c.Tables))
	for _, t := range c.Tables {
		if seen[t.Number] {
			return fmt.Errorf("duplicate table number %d", t.Number)
		}
		seen[t.Number] = true
	}
	return nil
}

func parsePort(value string) (int, error) {
	port, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid port value: %w", err)
	}
	return port, nil
}

// DatabaseURL returns a PostgreSQL connection URL
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Database)
}

// RabbitMQURL returns an AMQP connection URL
func (c *Config) RabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/",
		c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port)
}

// StorageDSN returns the DSN for the configured driver. Postgres falls back
// to the database section.
func (c *Config) StorageDSN() string {
	if c.Storage.DSN != "" {
		return c.Storage.DSN
	}
	switch c.Storage.Driver {
	case DriverPostgres:
		return c.DatabaseURL()
	case DriverSQLite:
		return "file:pos.db?_pragma=busy_timeout(5000)"
	default:
		return ""
	}
}
