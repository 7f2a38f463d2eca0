package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "ctlpanel.hcl"

// EnvPrefix prefixes every environment override, e.g. CTLPANEL_LISTEN_ADDR.
const EnvPrefix = "CTLPANEL"

// Settings is the resolved panel configuration.
type Settings struct {
	ListenAddr         string `hcl:"listen_addr,optional" envconfig:"LISTEN_ADDR" json:"listen_addr"`
	MaxConnections     int    `hcl:"max_connections,optional" envconfig:"MAX_CONNECTIONS" json:"max_connections"`
	DatabasePath       string `hcl:"database_path,optional" envconfig:"DATABASE_PATH" json:"database_path"`
	LogDir             string `hcl:"log_dir,optional" envconfig:"LOG_DIR" json:"log_dir"`
	KeyDir             string `hcl:"key_dir,optional" envconfig:"KEY_DIR" json:"key_dir"`
	StatusAddr         string `hcl:"status_addr,optional" envconfig:"STATUS_ADDR" json:"status_addr"`
	AuditRetentionDays int    `hcl:"audit_retention_days,optional" envconfig:"AUDIT_RETENTION_DAYS" json:"audit_retention_days"`
	AuditPurgeSchedule string `hcl:"audit_purge_schedule,optional" envconfig:"AUDIT_PURGE_SCHEDULE" json:"audit_purge_schedule"`
	Banner             string `hcl:"banner,optional" envconfig:"BANNER" json:"banner"`
	DebugRaiseErrors   bool   `hcl:"debug_raise_errors,optional" envconfig:"DEBUG_RAISE_ERRORS" json:"debug_raise_errors"`
	InPlaceHistory     bool   `hcl:"in_place_history,optional" envconfig:"IN_PLACE_HISTORY" json:"in_place_history"`
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		ListenAddr:         ":7000",
		MaxConnections:     50,
		DatabasePath:       "database/Data.db",
		LogDir:             "logs",
		KeyDir:             "keys",
		AuditRetentionDays: 90,
		AuditPurgeSchedule: "@daily",
		InPlaceHistory:     true,
	}
}

// Load layers the HCL file at path and then CTLPANEL_* variables over the
// defaults. A missing file is only an error when required is set.
func Load(path string, required bool) (Settings, error) {
	s := Defaults()
	if path != "" {
		if err := LoadFile(path, &s); err != nil {
			if !errors.Is(err, os.ErrNotExist) || required {
				return s, err
			}
		}
	}
	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return s, fmt.Errorf("environment: %w", err)
	}
	return s, s.Validate()
}

// LoadFile decodes path over s. Attributes absent from the file keep their
// current values.
func LoadFile(path string, s *Settings) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	if err := hclsimple.DecodeFile(path, nil, s); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Validate reports every invalid setting at once.
func (s Settings) Validate() error {
	var result *multierror.Error
	if _, _, err := net.SplitHostPort(s.ListenAddr); err != nil {
		result = multierror.Append(result, fmt.Errorf("listen_addr %q: %w", s.ListenAddr, err))
	}
	if s.StatusAddr != "" {
		if _, _, err := net.SplitHostPort(s.StatusAddr); err != nil {
			result = multierror.Append(result, fmt.Errorf("status_addr %q: %w", s.StatusAddr, err))
		}
	}
	if s.MaxConnections < 0 {
		result = multierror.Append(result, fmt.Errorf("max_connections must not be negative, got %d", s.MaxConnections))
	}
	if s.DatabasePath == "" {
		result = multierror.Append(result, errors.New("database_path must be set"))
	}
	if s.LogDir == "" {
		result = multierror.Append(result, errors.New("log_dir must be set"))
	}
	if s.KeyDir == "" {
		result = multierror.Append(result, errors.New("key_dir must be set"))
	}
	if s.AuditRetentionDays < 0 {
		result = multierror.Append(result, fmt.Errorf("audit_retention_days must not be negative, got %d", s.AuditRetentionDays))
	}
	if s.AuditPurgeSchedule != "" {
		if _, err := cron.ParseStandard(s.AuditPurgeSchedule); err != nil {
			result = multierror.Append(result, fmt.Errorf("audit_purge_schedule %q: %w", s.AuditPurgeSchedule, err))
		}
	}
	return result.ErrorOrNil()
}

// LogFile is the append-only process log.
func (s Settings) LogFile() string { return filepath.Join(s.LogDir, "ctlpanel.log") }

// PasswordLog receives generated root credentials.
func (s Settings) PasswordLog() string { return filepath.Join(s.LogDir, "root_passwords.log") }

// HostKeyFile is the SSH host key path.
func (s Settings) HostKeyFile() string { return filepath.Join(s.KeyDir, "ssh_host_ed25519_key") }
