package config

import (
	"os"

	"github.com/Veraticus/shotscan/internal/sheets"
)

// SheetsConfig builds the Google Sheets writer configuration.
// It follows this precedence:
// 1. Viper configuration (from config file or SHOTSCAN_ env vars)
// 2. Direct environment variables (GOOGLE_SHEETS_*)
// 3. Default values
// A saved OAuth2 token file is used when no refresh token is configured.
func (c *Config) SheetsConfig() (*sheets.Config, error) {
	config := sheets.DefaultConfig()

	s := c.Sheets
	config.ClientID = firstNonEmpty(s.ClientID, os.Getenv("GOOGLE_SHEETS_CLIENT_ID"))
	config.ClientSecret = firstNonEmpty(s.ClientSecret, os.Getenv("GOOGLE_SHEETS_CLIENT_SECRET"))
	config.RefreshToken = firstNonEmpty(s.RefreshToken, os.Getenv("GOOGLE_SHEETS_REFRESH_TOKEN"))
	config.ServiceAccountPath = firstNonEmpty(s.ServiceAccountPath, ExpandPath(os.Getenv("GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH")))
	config.SpreadsheetID = firstNonEmpty(s.SpreadsheetID, os.Getenv("GOOGLE_SHEETS_SPREADSHEET_ID"))
	if s.SpreadsheetName != "" && s.SpreadsheetName != config.SpreadsheetName {
		config.SpreadsheetName = s.SpreadsheetName
	} else if v := os.Getenv("GOOGLE_SHEETS_SPREADSHEET_NAME"); v != "" {
		config.SpreadsheetName = v
	}
	if s.BatchSize > 0 {
		config.BatchSize = s.BatchSize
	}

	if config.RefreshToken == "" && config.ServiceAccountPath == "" {
		if _, err := os.Stat(c.TokenFile()); err == nil {
			config.TokenFile = c.TokenFile()
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
