package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kat-co/vala"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env      string // DEV (local; default), TEST, QA, PROD
		Build    string
		Debug    bool
		TestMode bool

		AppName          string
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail string
		SendgridApiKey   string
		RollbarToken     string

		Server   ServerConfig
		Database DatabaseConfig
		Google   GoogleConfig
		Activity ActivityConfig
	}

	ServerConfig struct {
		Host                      string
		Port                      string
		DebugHost                 string
		DisableRequestLogs        bool
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	GoogleConfig struct {
		CredentialsFile string
		SheetRange      string
		RequestTimeout  time.Duration
	}

	ActivityConfig struct {
		GroupSize       int
		MinStudents     int
		HeartbeatWindow time.Duration
		RotationPeriod  time.Duration
		NotifyMembers   bool
	}
)

func (c ServerConfig) Address() string { return net.JoinHostPort(c.Host, c.Port) }

func (c DatabaseConfig) Address() string { return net.JoinHostPort(c.Host, c.Port) }

// FromEmail parses DefaultFromEmail, falling back to a bare address on malformed input.
func (c *Config) FromEmail() mail.Address {
	if addr, err := mail.ParseAddress(c.DefaultFromEmail); err == nil {
		return *addr
	}
	return mail.Address{Name: c.AppName, Address: c.DefaultFromEmail}
}

// Validate checks the settings every binary depends on.
func (c *Config) Validate() error {
	return vala.BeginValidation().Validate(
		vala.StringNotEmpty(c.SecretKey, "secretKey"),
		vala.StringNotEmpty(c.Database.Engine, "database.engine"),
		vala.StringNotEmpty(c.Database.Name, "database.name"),
		vala.GreaterThan(c.Activity.GroupSize, 0, "activity.groupSize"),
		vala.GreaterThan(int(c.Activity.RotationPeriod), 0, "activity.rotationPeriod"),
		vala.GreaterThan(int(c.Activity.HeartbeatWindow), 0, "activity.heartbeatWindow"),
	).Check()
}

func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "POGIL")
	v.SetDefault("secretKey", "x8c1-r2j)pl$w#3=qk&vda0(t!y)#*f4(#mz^$hebn7spe")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "POGIL <noreply@localhost>")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.debugHost", "localhost:4000")
	v.SetDefault("server.disableRequestLogs", false)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "pogil")
	v.SetDefault("database.user", "pogil")
	v.SetDefault("database.password", "pogil")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("google.credentialsFile", "config/google-credentials.json")
	v.SetDefault("google.sheetRange", "A:A")
	v.SetDefault("google.requestTimeout", 15*time.Second)

	v.SetDefault("activity.groupSize", 4)
	v.SetDefault("activity.minStudents", 4)
	v.SetDefault("activity.heartbeatWindow", 60*time.Second)
	v.SetDefault("activity.rotationPeriod", 60*time.Second)
	v.SetDefault("activity.notifyMembers", true)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	case "QA", "PROD":
		v.SetDefault("debug", false)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		DefaultFromEmail: v.GetString("defaultFromEmail"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Port:                      v.GetString("server.port"),
			DebugHost:                 v.GetString("server.debugHost"),
			DisableRequestLogs:        v.GetBool("server.disableRequestLogs"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Google: GoogleConfig{
			CredentialsFile: v.GetString("google.credentialsFile"),
			SheetRange:      v.GetString("google.sheetRange"),
			RequestTimeout:  v.GetDuration("google.requestTimeout"),
		},
		Activity: ActivityConfig{
			GroupSize:       v.GetInt("activity.groupSize"),
			MinStudents:     v.GetInt("activity.minStudents"),
			HeartbeatWindow: v.GetDuration("activity.heartbeatWindow"),
			RotationPeriod:  v.GetDuration("activity.rotationPeriod"),
			NotifyMembers:   v.GetBool("activity.notifyMembers"),
		},
	}
}

// NewTestConfig returns a Config suitable for unit tests; it never reads the environment.
func NewTestConfig() *Config {
	return &Config{
		Env:              "TEST",
		Build:            "test",
		Debug:            false,
		TestMode:         true,
		AppName:          "POGIL",
		SecretKey:        "secret",
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: "POGIL <noreply@localhost>",
		Server: ServerConfig{
			Port:                      "8000",
			DisableRequestLogs:        true,
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Database: DatabaseConfig{Engine: "postgres", Name: "pogil_test", DisableTLS: true},
		Google:   GoogleConfig{SheetRange: "A:A", RequestTimeout: time.Second},
		Activity: ActivityConfig{
			GroupSize:       4,
			MinStudents:     4,
			HeartbeatWindow: 60 * time.Second,
			RotationPeriod:  60 * time.Second,
			NotifyMembers:   true,
		},
	}
}

func (c *Config) String() string {
	return fmt.Sprintf("env=%s build=%s debug=%t", c.Env, c.Build, c.Debug)
}
