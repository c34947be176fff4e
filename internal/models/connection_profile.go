package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"gorm.io/gorm"
)

// Supported database drivers
const (
	DriverPostgres  = "postgres"
	DriverMySQL     = "mysql"
	DriverSQLServer = "sqlserver"
	DriverSQLite    = "sqlite"
)

// User identifies the database account a profile logs in as
type User struct {
	Username string `gorm:"column:username" json:"username" yaml:"username" mapstructure:"username"`
}

// ConnectionProfile describes how to reach and authenticate against a database.
// It performs no validation; callers fill it in before use.
type ConnectionProfile struct {
	ID             string `gorm:"primaryKey" json:"id,omitempty" yaml:"id,omitempty" mapstructure:"id"`
	Name           string `gorm:"unique;not null" json:"name" yaml:"name" mapstructure:"name"`
	Driver         string `gorm:"not null;default:postgres" json:"driver,omitempty" yaml:"driver,omitempty" mapstructure:"driver"`
	Host           string `json:"host" yaml:"host" mapstructure:"host"`
	Port           int    `json:"port" yaml:"port" mapstructure:"port"`
	User           User   `gorm:"embedded;embeddedPrefix:user_" json:"user" yaml:"user" mapstructure:"user"`
	Password       string `gorm:"-" json:"password" yaml:"password" mapstructure:"password"`
	PasswordEnc    string `gorm:"column:password_enc" json:"-" yaml:"-" mapstructure:"-"` // Encrypted, never serialized
	Database       string `gorm:"column:database_name" json:"database" yaml:"database" mapstructure:"database"`
	SSLMode        string `gorm:"column:ssl_mode" json:"sslMode,omitempty" yaml:"sslMode,omitempty" mapstructure:"sslMode"`
	SaveToKeychain bool   `gorm:"column:save_to_keychain" json:"saveToKeychain" yaml:"saveToKeychain" mapstructure:"saveToKeychain"`

	CreatedAt time.Time `json:"-" yaml:"-" mapstructure:"-"`
	UpdatedAt time.Time `json:"-" yaml:"-" mapstructure:"-"`
}

// BeforeCreate hook to generate UUID before creating record
func (p *ConnectionProfile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Driver == "" {
		p.Driver = DriverPostgres
	}
	return nil
}

// TableName specifies the table name for GORM
func (ConnectionProfile) TableName() string {
	return "connection_profiles"
}

// ProfileFromMap builds a profile from persisted key-value data.
// Values are weakly typed, so "5432" decodes into Port. Unknown keys are ignored.
func ProfileFromMap(data map[string]interface{}) (*ConnectionProfile, error) {
	var profile ConnectionProfile
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &profile,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create profile decoder: %w", err)
	}
	if err := decoder.Decode(data); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return &profile, nil
}

// ToMap is the inverse of ProfileFromMap
func (p *ConnectionProfile) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"name":           p.Name,
		"host":           p.Host,
		"user":           map[string]interface{}{"username": p.User.Username},
		"password":       p.Password,
		"database":       p.Database,
		"port":           p.Port,
		"saveToKeychain": p.SaveToKeychain,
	}
	if p.ID != "" {
		m["id"] = p.ID
	}
	if p.Driver != "" {
		m["driver"] = p.Driver
	}
	if p.SSLMode != "" {
		m["sslMode"] = p.SSLMode
	}
	return m
}

// Address returns host:port, or the file path for SQLite
func (p *ConnectionProfile) Address() string {
	if p.Driver == DriverSQLite {
		return p.Database
	}
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// Redacted returns a copy without secrets, safe to log or display
func (p ConnectionProfile) Redacted() ConnectionProfile {
	if p.Password != "" {
		p.Password = "********"
	}
	p.PasswordEnc = ""
	return p
}
