package executors

import (
	"context"
	"fmt"

	logger "github.com/sirupsen/logrus"

	"positionengine/src/batch"
	"positionengine/src/blacklist"
	"positionengine/src/connectors"
	"positionengine/src/engine"
	"positionengine/src/execution"
	"positionengine/src/exit"
	"positionengine/src/livesync"
	"positionengine/src/monitor"
	"positionengine/src/notify"
	"positionengine/src/pricecache"
	"positionengine/src/repository"
	"positionengine/src/risk"
	"positionengine/src/security"
	"positionengine/src/signalbus"
)

// Loops holds the wired engine surface handed to the HTTP layer after the
// background loops are started.
type Loops struct {
	Engine  *engine.Engine
	Checker *blacklist.Checker
}

// StartLoop wires every repository, cache and background loop of the engine
// and starts them on the given context. It returns the handles the HTTP
// layer needs; the loops stop when the context is cancelled.
func StartLoop(ctx context.Context) (*Loops, error) {
	config := GetConfig()

	positionRepo := repository.NewPositionRepository()
	priceRepo := repository.NewPriceRepository()
	blacklistRepo := repository.NewBlacklistRepository()
	strengthRepo := repository.NewStrengthRepository()
	eventRepo := repository.NewCloseEventRepository()
	accountRepo := repository.NewAccountRepository()

	// Price cache: periodic snapshot refresh plus optional websocket fast path.
	cache := pricecache.NewCache(priceRepo)
	go cache.Run(ctx, pricecache.GetConfig().RefreshInterval)

	if len(config.StreamSymbols) > 0 {
		stream := connectors.NewTickerStream(connectors.GetConfig().ExchangeWSURL, config.StreamSymbols, cache)
		go stream.Run(ctx)
	}

	// Blacklist snapshot, reloaded periodically.
	checker := blacklist.NewChecker(blacklistRepo)
	if err := checker.Reload(ctx); err != nil {
		logger.WithError(err).Warn("initial blacklist load failed, starting with empty snapshot")
	}
	go checker.Run(ctx, blacklist.GetConfig().ReloadInterval)

	// Batch entry builder.
	builder := batch.NewBuilder(positionRepo, cache, batch.GetConfig())
	go builder.Run(ctx)

	// Exit path: optimizer plus paper closer feeding the monitor.
	notifier := notify.NewWebhookNotifier()
	optimizer := exit.NewOptimizer(exit.GetConfig())
	paperCloser := execution.NewPaperCloser(positionRepo, eventRepo, cache, notifier)

	mon := monitor.NewMonitor(positionRepo, cache, strengthRepo, optimizer, paperCloser, monitor.GetConfig())
	go mon.Run(ctx)

	// Paper→live mirror, only when an account with credentials is configured.
	if config.LiveAccountID > 0 {
		liveCloser, err := buildLiveCloser(ctx, accountRepo, positionRepo, notifier, config.LiveAccountID)
		if err != nil {
			return nil, err
		}
		bridge := livesync.NewBridge(eventRepo, positionRepo, accountRepo, liveCloser, livesync.GetConfig())
		go bridge.Run(ctx)
	} else {
		logger.Info("LIVE_ACCOUNT_ID not set, live sync disabled")
	}

	eng := engine.NewEngine(
		checker,
		positionRepo,
		cache,
		builder,
		paperCloser,
		risk.DefaultSizingConfig(),
		batch.DefaultPlan(),
	)

	if config.SignalBusEnabled {
		subscriber, err := signalbus.NewSubscriber(eng, engine.IsRejection)
		if err != nil {
			return nil, err
		}
		go func() {
			if err := subscriber.Run(ctx); err != nil {
				logger.WithError(err).Error("signal bus subscriber stopped")
			}
		}()
	}

	return &Loops{Engine: eng, Checker: checker}, nil
}

func buildLiveCloser(
	ctx context.Context,
	accounts *repository.AccountRepository,
	positions *repository.PositionRepository,
	notifier execution.Notifier,
	accountID uint,
) (*execution.LiveCloser, error) {
	account, err := accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("live account %d not found", accountID)
	}
	if account.ExchangeAPIKeyEnc == "" || account.ExchangeAPISecretEnc == "" {
		return nil, fmt.Errorf("live account %d has no exchange credentials", accountID)
	}

	apiKey, err := security.DecryptString(account.ExchangeAPIKeyEnc)
	if err != nil {
		logger.WithError(err).Error("Failed to decrypt API Key")
		return nil, err
	}
	apiSecret, err := security.DecryptString(account.ExchangeAPISecretEnc)
	if err != nil {
		logger.WithError(err).Error("Failed to decrypt API Secret")
		return nil, err
	}

	client := connectors.NewExchangeClient(apiKey, apiSecret, connectors.GetConfig().ExchangeBaseURL)
	return execution.NewLiveCloser(client, positions, notifier), nil
}
