package pricefeed

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	logger "github.com/sirupsen/logrus"

	"positionengine/src/model"
	"positionengine/src/repository"
)

// PriceFeed polls spot tickers and upserts one snapshot row per symbol. The
// engine's price cache reads those rows; this process is the only writer.
type PriceFeed struct {
	Log      *logger.Entry
	Config   *Config
	Prices   *repository.PriceRepository
	exchange goex.API
}

func (p *PriceFeed) Start() error {
	p.Config = GetConfig()
	p.exchange = p.newBinanceInstance()

	if p.Prices == nil {
		p.Prices = repository.NewPriceRepository()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(p.Config.PollInterval)
	defer ticker.Stop()

	p.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			p.Log.Info("price feed stopped")
			return nil
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (*PriceFeed) newBinanceInstance() *binance.Binance {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return binance.NewWithConfig(apiConfig)
}

func (p *PriceFeed) pollOnce(ctx context.Context) {
	for _, symbol := range p.Config.Symbols {
		pair := goex.NewCurrencyPair(goex.Currency{Symbol: symbol}, goex.Currency{Symbol: p.Config.Quote})

		ticker, err := p.exchange.GetTicker(pair)
		if err != nil {
			p.Log.WithError(err).
				WithField("symbol", symbol).
				Error("failed to fetch ticker, keeping previous snapshot")
			continue
		}

		snapshot := &model.PriceSnapshot{
			Symbol: pair.String(),
			Price:  ticker.Last,
			Bid:    ticker.Buy,
			Ask:    ticker.Sell,
		}

		if err := p.Prices.Upsert(ctx, snapshot); err != nil {
			continue
		}

		p.Log.WithFields(logger.Fields{
			"Symbol": snapshot.Symbol,
			"Price":  snapshot.Price,
		}).Debug("price snapshot updated")
	}
}
