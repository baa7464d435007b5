package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is loaded from the environment, with .env as a fallback for local
// runs. Lifecycle constants default to the production values the scrims
// system has always used.
type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,required"`
	GuildID      string `env:"GUILD_ID,required"`

	AuditChannelID string `env:"AUDIT_LOG_CHANNEL_ID"`
	StaffChannelID string `env:"STAFF_VERIFICATION_CHANNEL_ID"`

	PendingExpiry  time.Duration `env:"PENDING_EXPIRY" envDefault:"5m"`
	PaymentTimeout time.Duration `env:"PAYMENT_TIMEOUT" envDefault:"10m"`
	DuplicateGrace time.Duration `env:"DUPLICATE_GRACE_WINDOW" envDefault:"10m"`

	LobbyCapacity       int  `env:"LOBBY_CAPACITY" envDefault:"36"`
	TypeCapacity        int  `env:"TYPE_CAPACITY" envDefault:"12"`
	EnforceTypeCapacity bool `env:"ENFORCE_TYPE_CAPACITY" envDefault:"false"`
	AutoBlacklist       bool `env:"AUTO_BLACKLIST_ON_TIMEOUT" envDefault:"true"`

	StoragePath  string `env:"STORAGE_PATH" envDefault:"datastore.json"`
	AuditLogPath string `env:"AUDIT_LOG_PATH" envDefault:"audit.log"`

	DashboardAddr  string `env:"DASHBOARD_ADDR" envDefault:":8000"`
	DashboardToken string `env:"DASHBOARD_TOKEN"`

	PaymentQRURL string `env:"PAYMENT_QR_URL"`

	// Submissions per leader: one every SubmitEvery, with a small burst.
	SubmitEvery time.Duration `env:"SUBMIT_EVERY" envDefault:"30s"`
	SubmitBurst int           `env:"SUBMIT_BURST" envDefault:"2"`

	// Per-lobby channel ids: the public registration channel and the locked
	// room channel opened to confirmed squads.
	Lobby12PMChannel string `env:"L12_LOBBY"`
	Lobby12PMRoom    string `env:"L12_ROOM"`
	Lobby3PMChannel  string `env:"L15_LOBBY"`
	Lobby3PMRoom     string `env:"L15_ROOM"`
	Lobby6PMChannel  string `env:"L18_LOBBY"`
	Lobby6PMRoom     string `env:"L18_ROOM"`
	Lobby9PMChannel  string `env:"L21_LOBBY"`
	Lobby9PMRoom     string `env:"L21_ROOM"`
	Lobby12AMChannel string `env:"L00_LOBBY"`
	Lobby12AMRoom    string `env:"L00_ROOM"`

	Timezone string `env:"TIMEZONE" envDefault:"Asia/Kolkata"`
}

func Load() (*Config, error) {
	// Missing .env is fine; the process environment wins either way.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Location resolves the configured timezone for the lobby scheduler.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}
