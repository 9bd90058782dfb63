package app

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/shrimpsizemoose/trekker/logger"
)

type HeaderConfig struct {
	Name  string `toml:"name"`
	Value string `toml:"value"`
}

type Config struct {
	Server struct {
		Port       string `toml:"port"`
		EnableAuth bool   `toml:"enable_auth"`
	} `toml:"server"`

	Course struct {
		// Name selects the course policy; "sdmm" is the self-paced course,
		// anything else gets the deadline-driven default.
		Name       string `toml:"name"`
		WebhookURL string `toml:"webhook_url"`
	} `toml:"course"`

	Auth struct {
		RedisURL         string `toml:"redis_url"`
		TokenHeader      string `toml:"token_header"`
		TokenKeyTemplate string `toml:"token_key_template"`
	} `toml:"auth"`

	API struct {
		PersonIDHeader  string         `toml:"person_id_header"`
		RequiredHeaders []HeaderConfig `toml:"required_headers"`
	} `toml:"api"`

	GitHub struct {
		APIURL string `toml:"api_url"`
		WebURL string `toml:"web_url"`
		Org    string `toml:"org"`
		Token  string `toml:"token"`
	} `toml:"github"`

	Database struct {
		DSN           string `toml:"dsn"`
		MigrationsDir string `toml:"migrations_dir"`
	} `toml:"database"`

	Export struct {
		SpreadsheetID   string `toml:"spreadsheet_id"`
		SheetName       string `toml:"sheet_name"`
		CredentialsFile string `toml:"credentials_file"`
		IntervalMinutes int    `toml:"interval_minutes"`
	} `toml:"export"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf(
			"error reading config file %s\n> Error: %w\n> Content:\n%s",
			path,
			err,
			string(data),
		)
	}

	if config.Server.Port == "" {
		return nil, fmt.Errorf("server port is not specified in config, use a value like :9999")
	}
	if config.Course.Name == "" {
		return nil, fmt.Errorf("course name is not specified in config")
	}
	if config.GitHub.APIURL == "" {
		config.GitHub.APIURL = "https://api.github.com"
	}
	if config.GitHub.WebURL == "" {
		config.GitHub.WebURL = "https://github.com"
	}
	if config.Database.MigrationsDir == "" {
		config.Database.MigrationsDir = "./migrations"
	}

	logger.Debug.Printf("Loaded config for course %s", config.Course.Name)

	return &config, nil
}
