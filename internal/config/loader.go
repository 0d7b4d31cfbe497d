package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures environment driven configuration values for the lending
// service.
type Config struct {
	HTTPPort           int
	SQLitePath         string
	MasterRoot         string
	CirculationRoot    string
	DefaultLoanDays    int
	MaxLoansPerPatron  int
	MaxRenewals        int
	ReminderLeadDays   int
	ExpiryInterval     time.Duration
	ReminderInterval   time.Duration
	WatermarkTimeout   time.Duration
	LibraryName        string
	ContactEmail       string
	SMTPAddr           string
	SMTPUsername       string
	SMTPPassword       string
	SMTPSender         string
}

// Load parses configuration values from the current process environment.
//
// Optional fields fall back to defaults; required values and malformed
// entries are collected and reported together so a misconfigured deployment
// fails with one actionable error.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:          8080,
		SQLitePath:        "lending.db",
		DefaultLoanDays:   14,
		MaxLoansPerPatron: 5,
		MaxRenewals:       2,
		ReminderLeadDays:  2,
		ExpiryInterval:    5 * time.Minute,
		ReminderInterval:  60 * time.Minute,
		WatermarkTimeout:  90 * time.Second,
		LibraryName:       "Digital Lending Library",
		ContactEmail:      "library@example.org",
	}

	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 2)

	intVar := func(name string, min int, target *int) {
		value := strings.TrimSpace(os.Getenv(name))
		if value == "" {
			return
		}
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < min {
			invalid = append(invalid, name)
			return
		}
		*target = parsed
	}

	durationVar := func(name string, target *time.Duration) {
		value := strings.TrimSpace(os.Getenv(name))
		if value == "" {
			return
		}
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed <= 0 {
			invalid = append(invalid, name)
			return
		}
		*target = parsed
	}

	stringVar := func(name string, target *string) {
		if value := strings.TrimSpace(os.Getenv(name)); value != "" {
			*target = value
		}
	}

	intVar("LENDING_HTTP_PORT", 1, &cfg.HTTPPort)
	stringVar("LENDING_SQLITE_PATH", &cfg.SQLitePath)

	if root := strings.TrimSpace(os.Getenv("LENDING_MASTER_ROOT")); root == "" {
		missing = append(missing, "LENDING_MASTER_ROOT")
	} else {
		cfg.MasterRoot = root
	}
	if root := strings.TrimSpace(os.Getenv("LENDING_CIRCULATION_ROOT")); root == "" {
		missing = append(missing, "LENDING_CIRCULATION_ROOT")
	} else {
		cfg.CirculationRoot = root
	}

	intVar("LENDING_DEFAULT_LOAN_DAYS", 1, &cfg.DefaultLoanDays)
	intVar("LENDING_MAX_LOANS_PER_PATRON", 1, &cfg.MaxLoansPerPatron)
	intVar("LENDING_MAX_RENEWALS", 0, &cfg.MaxRenewals)
	intVar("LENDING_REMINDER_LEAD_DAYS", 1, &cfg.ReminderLeadDays)
	durationVar("LENDING_EXPIRY_INTERVAL", &cfg.ExpiryInterval)
	durationVar("LENDING_REMINDER_INTERVAL", &cfg.ReminderInterval)
	durationVar("LENDING_WATERMARK_TIMEOUT", &cfg.WatermarkTimeout)

	stringVar("LENDING_LIBRARY_NAME", &cfg.LibraryName)
	stringVar("LENDING_CONTACT_EMAIL", &cfg.ContactEmail)
	stringVar("LENDING_SMTP_ADDR", &cfg.SMTPAddr)
	stringVar("LENDING_SMTP_USERNAME", &cfg.SMTPUsername)
	stringVar("LENDING_SMTP_PASSWORD", &cfg.SMTPPassword)
	stringVar("LENDING_SMTP_SENDER", &cfg.SMTPSender)

	if cfg.SMTPAddr != "" && cfg.SMTPSender == "" {
		missing = append(missing, "LENDING_SMTP_SENDER")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
