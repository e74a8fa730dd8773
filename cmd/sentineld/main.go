// Command sentineld is the long-running RCON monitoring daemon spec.md §1
// describes: it wires the protocol engine, failure controller, schedule
// executor, and their out-of-scope collaborators (Postgres, ClickHouse,
// Valkey, Discord) into one running process. Its bootstrap shape —
// load config, set up the logger, open the database, recover from panics,
// wait for SIGTERM/SIGINT, then stop the scheduler and close its
// collaborators (no grace period is applied) — is
// grounded on cmd/server/main.go's main(), narrowed to this daemon's own
// dependency graph instead of the teacher's full HTTP/extension stack.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codycody31/rcon-sentinel/internal/alerting"
	"github.com/codycody31/rcon-sentinel/internal/commandresolver"
	"github.com/codycody31/rcon-sentinel/internal/config"
	"github.com/codycody31/rcon-sentinel/internal/eventbridge"
	"github.com/codycody31/rcon-sentinel/internal/eventbus"
	"github.com/codycody31/rcon-sentinel/internal/executors"
	"github.com/codycody31/rcon-sentinel/internal/logger"
	"github.com/codycody31/rcon-sentinel/internal/models"
	"github.com/codycody31/rcon-sentinel/internal/rcon"
	"github.com/codycody31/rcon-sentinel/internal/repository"
	chrepo "github.com/codycody31/rcon-sentinel/internal/repository/clickhouse"
	pgrepo "github.com/codycody31/rcon-sentinel/internal/repository/postgres"
	valkeyrepo "github.com/codycody31/rcon-sentinel/internal/repository/valkey"
	"github.com/codycody31/rcon-sentinel/internal/retrycontroller"
	"github.com/codycody31/rcon-sentinel/internal/scheduler"
	"github.com/codycody31/rcon-sentinel/internal/sessionregistry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	if err := logger.Setup(ctx, cfg.Log.Level, cfg.Debug.Pretty, cfg.Debug.NoColor, cfg.Log.File); err != nil {
		panic(err)
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("sentineld crashed")
			os.Exit(1)
		}
	}()

	db, err := pgrepo.Open(pgrepo.Config{
		Host: cfg.Db.Host, Port: cfg.Db.Port, Name: cfg.Db.Name, User: cfg.Db.User, Pass: cfg.Db.Pass,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer db.Close()

	if err := pgrepo.Migrate(db, cfg.Debug.Pretty); err != nil {
		log.Fatal().Err(err).Msg("failed to run postgres migrations")
	}

	chClient, err := chrepo.NewClient(chrepo.Config{
		Host: cfg.ClickHouse.Host, Port: cfg.ClickHouse.Port,
		Database: cfg.ClickHouse.Database, Username: cfg.ClickHouse.Username, Password: cfg.ClickHouse.Password,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to clickhouse")
	}
	defer chClient.Close()

	if err := chClient.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure clickhouse schema")
	}

	loadWriter := chrepo.NewLoadHistoryWriter(chClient)
	defer loadWriter.Close()

	credentialCipher, err := repository.NewCredentialCipher(mustCredentialKey())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init credential cipher")
	}

	servers := pgrepo.NewServerRepo(db)
	credentialsRepo := pgrepo.NewCredentialsRepo(db, credentialCipher)
	configRepo := pgrepo.NewConfigRepo(db)
	statusRepo := pgrepo.NewStatusRepo(db)

	var (
		invalidator      *valkeyrepo.Invalidator
		cacheInvalidator commandresolver.CacheInvalidator
	)
	if cfg.Valkey.Host != "" {
		invalidator, err = valkeyrepo.NewInvalidator(valkeyrepo.Config{
			Host: cfg.Valkey.Host, Port: cfg.Valkey.Port, Password: cfg.Valkey.Password, Database: cfg.Valkey.Database,
		})
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to valkey, command-resolver cache invalidation will be instance-local only")
		} else {
			defer invalidator.Close()
			cacheInvalidator = invalidator
		}
	}

	resolver := commandresolver.New(configRepo, servers, cacheInvalidator)
	if invalidator != nil {
		invalidator.OnInvalidate(func(serverID int, clearAll bool) {
			if clearAll {
				resolver.ClearCacheLocal()
			} else {
				resolver.ClearServerCacheLocal(serverID)
			}
		})
	}

	rconSvc := rcon.New(
		credentialsRepo,
		rcon.WithTimeouts(time.Duration(cfg.Rcon.ConnectTimeoutMs)*time.Millisecond, time.Duration(cfg.Rcon.CommandTimeoutMs)*time.Millisecond),
		rcon.WithMaxRetries(cfg.Rcon.MaxRetries),
	)
	defer rconSvc.DisconnectAll()

	retryCtl := retrycontroller.New(retrycontroller.Config{
		MaxConsecutiveFailures: cfg.Retry.MaxConsecutiveFailures,
		BackoffMultiplier:      cfg.Retry.BackoffMultiplier,
		MaxBackoffMinutes:      cfg.Retry.MaxBackoffMinutes,
		DormantRetryMinutes:    cfg.Retry.DormantRetryMinutes,
		OnTransition:           buildAlertHook(cfg, servers),
	})

	sessions := sessionregistry.New()

	monitoringExecutor := &executors.MonitoringExecutor{
		Rcon:       rconSvc,
		Retry:      retryCtl,
		Sessions:   sessions,
		StatusRepo: statusRepo,
		LoadWriter: loadWriter,
	}
	messageExecutor := &executors.MessageExecutor{Rcon: rconSvc}
	statsProbeExecutor := executors.NewStatsProbeExecutor(rconSvc, func(ctx context.Context, serverID int, kind string) (string, any) {
		command, caps := resolver.GetCommand(ctx, serverID, kind)
		return command, caps
	})

	bus := eventbus.NewBus(ctx, 256)
	defer bus.Shutdown()

	bridge := eventbridge.New(bus, monitoringExecutor, servers)

	sched, err := scheduler.New(scheduler.Config{
		Enabled:                cfg.Schedule.Enabled,
		DefaultTimeoutMs:       cfg.Schedule.DefaultTimeoutMs,
		DefaultRetryOnFailure:  cfg.Schedule.DefaultRetryOnFailure,
		DefaultMaxRetries:      cfg.Schedule.DefaultMaxRetries,
		HistoryRetentionHours:  cfg.Schedule.HistoryRetentionHours,
		MaxConcurrentPerServer: cfg.Schedule.MaxConcurrentPerServer,
	}, servers, bridge)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build scheduler")
	}

	sched.RegisterExecutor(monitoringExecutor)
	sched.RegisterExecutor(messageExecutor)
	sched.RegisterExecutor(statsProbeExecutor)

	var schedules []models.ScheduledCommand
	if path := os.Getenv("SCHEDULES_FILE"); path != "" {
		loaded, errs := config.LoadSchedules(path)
		for _, err := range errs {
			log.Warn().Err(err).Msg("skipping malformed schedule entry")
		}
		schedules = loaded
	}

	if err := sched.Start(ctx, schedules); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	log.Info().Msg("sentineld started")

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, stopping sentineld")

	sched.Stop()

	log.Info().Msg("sentineld stopped")
}

// mustCredentialKey reads the base64-encoded 32-byte AEAD key used to
// decrypt at-rest RCON passwords. There is no sane default for a secret
// key, so a missing value is fatal rather than silently falling back to
// a hardcoded one.
func mustCredentialKey() string {
	key := os.Getenv("CREDENTIAL_ENCRYPTION_KEY")
	if key == "" {
		log.Fatal().Msg("CREDENTIAL_ENCRYPTION_KEY must be set to a base64-encoded 32-byte key")
	}
	return key
}

// buildAlertHook wires a Discord notifier into the retry controller's
// transition hook when Discord alerting is enabled in config, per spec.md's
// domain-stack expansion for internal/alerting.
func buildAlertHook(cfg *config.Struct, names alerting.ServerNamer) func(serverID int, from, to retrycontroller.Status) {
	if !cfg.Discord.Enabled || cfg.Discord.BotToken == "" || cfg.Discord.ChannelID == "" {
		return nil
	}

	notifier, err := alerting.NewDiscordNotifier(cfg.Discord.BotToken, cfg.Discord.ChannelID, names)
	if err != nil {
		log.Warn().Err(err).Msg("failed to start discord alerting, continuing without it")
		return nil
	}

	return notifier.OnTransition
}
