package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

type (
	Config struct {
		TelegramAPIToken  string   `env:"TOKEN,required"`
		EnabledHandlers   []string `env:"HANDLERS,default=moderator"`
		LogLevel          int      `env:"LOG_LEVEL,default=2"`
		DBPath            string   `env:"DB_PATH,default=modguard.db"`
		MetricsListenAddr string   `env:"METRICS_ADDR,default=:2112"`
		Moderation        Moderation
		Toxicity          Toxicity
		VirusTotal        VirusTotal
	}

	Moderation struct {
		SpamLimit            int           `env:"SPAM_LIMIT,default=5"`
		SpamWindow           time.Duration `env:"SPAM_WINDOW,default=60s"`
		MuteDurationSeconds  int64         `env:"MUTE_DURATION_SECONDS,default=30"`
		WarningsThreshold    int           `env:"WARNINGS_THRESHOLD,default=3"`
		AdminRefreshInterval time.Duration `env:"ADMIN_REFRESH_INTERVAL,default=600s"`
		RateSweepInterval    time.Duration `env:"RATE_SWEEP_INTERVAL,default=60s"`
		BannedWordsPath      string        `env:"BANNED_WORDS_PATH"`
	}

	Toxicity struct {
		APIURL    string        `env:"TOXICITY_API_URL,default=http://127.0.0.1:8901/classify"`
		Threshold float64       `env:"TOXICITY_THRESHOLD,default=0.6"`
		Timeout   time.Duration `env:"TOXICITY_TIMEOUT,default=10s"`
	}

	VirusTotal struct {
		APIKey  string        `env:"VIRUSTOTAL_API_KEY"`
		BaseURL string        `env:"VIRUSTOTAL_BASE_URL,default=https://www.virustotal.com/api/v3"`
		Timeout time.Duration `env:"VIRUSTOTAL_TIMEOUT,default=10s"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg := &Config{}
		envcfg := envconfig.Config{
			Lookuper: envconfig.PrefixLookuper("MG_", envconfig.OsLookuper()),
			Target:   cfg,
		}
		if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
			globalErr = fmt.Errorf("process env config: %w", err)
			return
		}
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}
