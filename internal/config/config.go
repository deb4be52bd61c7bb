package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds application configuration
type Config struct {
	// MariaDB接続設定
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"3306"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME"`

	// 起動時にテーブルを作成する
	BootstrapSchema bool `env:"BOOTSTRAP_SCHEMA" envDefault:"false"`

	// サーバー設定
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	Env        string `env:"ENV" envDefault:"development"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	// CORS設定
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://127.0.0.1:3000"`

	// 上流の認証プロキシが検証済みユーザーIDを載せるヘッダー
	IdentityHeader string `env:"IDENTITY_HEADER" envDefault:"X-User-ID"`

	// チャット設定
	MaxContentLength int           `env:"MAX_CONTENT_LENGTH" envDefault:"4000"`
	SendBufferSize   int           `env:"SEND_BUFFER_SIZE" envDefault:"64"`
	MaxFrameBytes    int64         `env:"MAX_FRAME_BYTES" envDefault:"65536"`
	WriteWait        time.Duration `env:"WRITE_WAIT" envDefault:"10s"`
	PongWait         time.Duration `env:"PONG_WAIT" envDefault:"60s"`
}

// PingInterval is how often the server pings idle connections. It must be
// shorter than PongWait.
func (c Config) PingInterval() time.Duration {
	return c.PongWait * 9 / 10
}

// IsProduction reports whether ENV names a production deployment.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Load loads configuration from environment variables
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	for i := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(cfg.AllowedOrigins[i])
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.MaxContentLength <= 0 {
		return fmt.Errorf("MAX_CONTENT_LENGTH must be positive, got %d", c.MaxContentLength)
	}
	if c.SendBufferSize <= 0 {
		return fmt.Errorf("SEND_BUFFER_SIZE must be positive, got %d", c.SendBufferSize)
	}
	if c.PongWait < time.Second || c.WriteWait <= 0 {
		return fmt.Errorf("WRITE_WAIT must be positive and PONG_WAIT at least 1s")
	}
	if c.IdentityHeader == "" {
		return fmt.Errorf("IDENTITY_HEADER must not be empty")
	}
	return nil
}
