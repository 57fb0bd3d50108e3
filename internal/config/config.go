package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error
	DBPath   string `envconfig:"DB_PATH" default:"./data/autocheckin.db"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"` // healthz

	PortalBaseURL string `envconfig:"PORTAL_BASE_URL" default:"http://k8n.cn"`
	LoginURL      string `envconfig:"LOGIN_URL" default:"https://login.b8n.cn/qr/weixin/student/2"`
	LoginLinkURL  string `envconfig:"LOGIN_LINK_URL" default:"http://login.b8n.cn/weixin/login/student/2"`
	LoginHost     string `envconfig:"LOGIN_HOST" default:"login.b8n.cn"`
	UIDLoginURL   string `envconfig:"UID_LOGIN_URL" default:"https://bj.k8n.cn/student/uidlogin"`
	WeComAPIURL   string `envconfig:"WECOM_API_URL" default:"https://qyapi.weixin.qq.com/cgi-bin"`

	TickInterval time.Duration `envconfig:"TICK_INTERVAL" default:"60s"`
	HTTPTimeout  time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`

	// Telegram is optional; an empty token disables the bot and its channel.
	TelegramToken  string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID int64  `envconfig:"TELEGRAM_CHAT_ID" default:"0"`
}

// Load reads environment variables into Config.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TelegramEnabled reports whether the bot should be started.
func (c Config) TelegramEnabled() bool { return c.TelegramToken != "" }
