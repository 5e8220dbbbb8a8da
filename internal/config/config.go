// Package config содержит логику чтения конфигурации банковского сервиса.
package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	defaultRunAddress = "localhost:8080"
	defaultStaffKey   = "123456"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress  string `yaml:"run_address"`
	DatabaseURI string `yaml:"database_uri"`
	AuthSecret  string `yaml:"auth_secret"`
	// StaffRegistrationKey — ключ, который нужно указать при регистрации сотрудника.
	StaffRegistrationKey string `yaml:"staff_registration_key"`
	// RequireFutureDeadline запрещает цели со сроком не позже текущего дня.
	RequireFutureDeadline bool   `yaml:"goal_require_future_deadline"`
	ConfigFile            string `yaml:"-"`
}

// envConfig повторяет Config для переменных окружения. Пустая строка и nil означают «не задано».
type envConfig struct {
	RunAddress            string `env:"RUN_ADDRESS"`
	DatabaseURI           string `env:"DATABASE_URI"`
	AuthSecret            string `env:"AUTH_SECRET"`
	StaffRegistrationKey  string `env:"STAFF_REGISTRATION_KEY"`
	RequireFutureDeadline *bool  `env:"GOAL_REQUIRE_FUTURE_DEADLINE"`
	ConfigFile            string `env:"CONFIG_FILE"`
}

func defaults() *Config {
	return &Config{
		RunAddress:            defaultRunAddress,
		StaffRegistrationKey:  defaultStaffKey,
		RequireFutureDeadline: true,
	}
}

// Parse считывает конфигурацию. Приоритет: значения по умолчанию, файл конфигурации,
// флаги командной строки, переменные окружения.
func Parse() (*Config, error) {
	var e envConfig
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	d := defaults()
	f := &Config{}
	flag.StringVar(&f.RunAddress, "a", d.RunAddress, "address and port for HTTP server")
	flag.StringVar(&f.DatabaseURI, "d", "", "database URI, empty for in-memory storage")
	flag.StringVar(&f.AuthSecret, "s", "", "secret for signing auth cookies")
	flag.StringVar(&f.StaffRegistrationKey, "k", d.StaffRegistrationKey, "staff registration key")
	flag.BoolVar(&f.RequireFutureDeadline, "future-deadline", d.RequireFutureDeadline, "require goal deadlines in the future")
	flag.StringVar(&f.ConfigFile, "c", "", "path to YAML config file")

	flag.Parse()

	set := make(map[string]bool)
	flag.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	cfg := d
	cfg.ConfigFile = f.ConfigFile
	if e.ConfigFile != "" {
		cfg.ConfigFile = e.ConfigFile
	}
	if cfg.ConfigFile != "" {
		if err := loadFile(cfg.ConfigFile, cfg); err != nil {
			return nil, err
		}
	}

	if set["a"] {
		cfg.RunAddress = f.RunAddress
	}
	if set["d"] {
		cfg.DatabaseURI = f.DatabaseURI
	}
	if set["s"] {
		cfg.AuthSecret = f.AuthSecret
	}
	if set["k"] {
		cfg.StaffRegistrationKey = f.StaffRegistrationKey
	}
	if set["future-deadline"] {
		cfg.RequireFutureDeadline = f.RequireFutureDeadline
	}

	if e.RunAddress != "" {
		cfg.RunAddress = e.RunAddress
	}
	if e.DatabaseURI != "" {
		cfg.DatabaseURI = e.DatabaseURI
	}
	if e.AuthSecret != "" {
		cfg.AuthSecret = e.AuthSecret
	}
	if e.StaffRegistrationKey != "" {
		cfg.StaffRegistrationKey = e.StaffRegistrationKey
	}
	if e.RequireFutureDeadline != nil {
		cfg.RequireFutureDeadline = *e.RequireFutureDeadline
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}
