package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/modguard/modguard/internal/adapters/toxicity"
	"github.com/modguard/modguard/internal/adapters/virustotal"
	"github.com/modguard/modguard/internal/bot"
	"github.com/modguard/modguard/internal/config"
	"github.com/modguard/modguard/internal/db/sqlite"
	"github.com/modguard/modguard/internal/handlers"
	"github.com/modguard/modguard/internal/infra"
	"github.com/modguard/modguard/internal/infrastructure/telegram"
	"github.com/modguard/modguard/internal/lifecycle"
	"github.com/modguard/modguard/internal/moderation"
	"github.com/modguard/modguard/internal/observability"
)

func main() {
	log.SetFormatter(&config.GuardFormatter{})
	log.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatalln("cant load config")
	}
	log.SetLevel(log.Level(cfg.LogLevel + 2))

	ctx, cancelFunc := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancelFunc()

	if err := observability.Init(ctx, cfg.MetricsListenAddr); err != nil {
		log.WithError(err).Fatalln("cant init observability")
	}

	tgbot, err := api.NewBotAPI(cfg.TelegramAPIToken)
	if err != nil {
		log.WithError(err).Errorln("cant initialize bot api")
		time.Sleep(1 * time.Second)
		log.Fatalln("exiting")
	}
	tgbot.Debug = false

	dbClient := sqlite.NewSQLiteClient(cfg.DBPath)
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.WithError(err).Error("cant close db")
		}
	}()

	words, err := moderation.LoadWordList(cfg.Moderation.BannedWordsPath)
	if err != nil {
		log.WithError(err).Fatalln("cant load banned words")
	}
	log.Infof("loaded %d banned words", words.Len())

	ops := telegram.NewOperations(tgbot)
	policies := moderation.NewPolicyStore(dbClient)
	admins := moderation.NewAdminDirectory(ops, cfg.Moderation.AdminRefreshInterval)
	rates := moderation.NewRateWindow(cfg.Moderation.SpamWindow, cfg.Moderation.RateSweepInterval)
	mutes := moderation.NewMuteRegistry(ops)
	warnings := moderation.NewWarningLedger(cfg.Moderation.WarningsThreshold)
	actuator := moderation.NewActuator(ops, mutes, warnings)

	var reputation moderation.URLChecker
	if cfg.VirusTotal.APIKey != "" {
		reputation = virustotal.New(cfg.VirusTotal)
	} else {
		log.Warn("virustotal api key not provided, safe links policy will skip reputation checks")
	}

	pipeline := moderation.NewPipeline(
		moderation.NewBannedWordsDetector(words),
		moderation.NewLinkDetector(reputation),
		moderation.NewSpamRateDetector(rates, mutes, cfg.Moderation.SpamLimit),
		moderation.NewToxicityDetector(toxicity.New(cfg.Toxicity)),
	)

	service := bot.NewService(tgbot, dbClient)
	bot.RegisterUpdateHandler("moderator", handlers.NewModerator(service, policies, admins, pipeline, actuator, mutes, ops))

	runtime := lifecycle.NewRuntime(admins, rates, mutes)
	if err := runtime.Start(ctx); err != nil {
		log.WithError(err).Fatalln("cant start components")
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := runtime.Stop(stopCtx); err != nil {
			log.WithError(err).Error("cant stop components")
		}
	}()

	infra.GoRecoverable(-1, "process_updates", func() {
		defer cancelFunc()

		updateConfig := api.NewUpdate(0)
		updateConfig.Timeout = 60
		updateHandler := bot.NewUpdateProcessor(service)

		for update := range tgbot.GetUpdatesChan(updateConfig) {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if err := updateHandler.Process(ctx, &update); err != nil {
				log.WithError(err).Errorln("cant process update")
			}
		}
	})

	<-ctx.Done()
	log.Infoln("shutting down")
}
