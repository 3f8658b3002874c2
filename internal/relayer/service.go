package relayer

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/aptsend/relayer/config"
	"github.com/aptsend/relayer/internal/ingest"
	"github.com/aptsend/relayer/internal/processor"
	"github.com/aptsend/relayer/pkg/cache"
	"github.com/aptsend/relayer/pkg/db"
	"github.com/aptsend/relayer/pkg/parser"
	"github.com/aptsend/relayer/pkg/resolver"
	"github.com/aptsend/relayer/pkg/scraper"
	"github.com/aptsend/relayer/pkg/settlement"
)

const (
	debounceKeyProcessTransfer = "process_aptos_transfer"
	debounceKeyScrapeTweets    = "scrape_tweets"
)

type feedIngestor interface {
	Ingest(ctx context.Context) (ingest.Summary, error)
	RetryLookups(ctx context.Context) (resolved, remaining int, err error)
}

type transferProcessor interface {
	ProcessOne(ctx context.Context) (processor.Result, error)
}

type pendingQueue interface {
	HasPendingTransfers(ctx context.Context) (bool, error)
}

type dispatchGuard interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) bool
}

// Service wires the ingestion pipeline and the transfer queue processor and
// drives both from periodic ticks. Each tick is a short-lived blocking unit
// of work; the debounce flag spaces dispatches of the same key at least its
// TTL apart, while claim correctness stays with the database row lock.
type Service struct {
	queue     pendingQueue
	ingestor  feedIngestor
	processor transferProcessor
	guard     dispatchGuard

	cfg    *config.Config
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(cfg *config.Config, dbAdapter *db.DatabaseAdapter, redisClient *redis.Client) (*Service, error) {
	cacheService := cache.NewRedisCache(redisClient)
	debouncer := cache.NewDebouncer(redisClient)

	twitterClient := resolver.NewTwitterClient(cfg.Twitter.APIBaseURL, cfg.Twitter.BearerToken)
	recipientResolver := resolver.New(twitterClient, dbAdapter, cacheService)

	commandParser := parser.New(cfg.Scraper.Tag, parser.ChannelTwitter)
	source := scraper.NewScriptSource(cfg.Scraper.Script, time.Duration(cfg.Scraper.TimeoutSeconds)*time.Second)
	ingestService := ingest.NewService(source, commandParser, recipientResolver, dbAdapter)

	executor := settlement.NewScriptExecutor(cfg.Settlement.Script, time.Duration(cfg.Settlement.TimeoutSeconds)*time.Second)
	processorService := processor.NewService(dbAdapter, executor, cfg.Settlement.MinTransferAmount)

	return &Service{
		queue:     dbAdapter,
		ingestor:  ingestService,
		processor: processorService,
		guard:     debouncer,
		cfg:       cfg,
	}, nil
}

func (s *Service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go s.runProcessorLoop(ctx)
	go s.runIngestLoop(ctx)

	log.Info().
		Int("processorIntervalSeconds", s.cfg.Settlement.IntervalSeconds).
		Int("scraperIntervalSeconds", s.cfg.Scraper.IntervalSeconds).
		Msg("[Relayer] [Start] scheduler loops running")
	return nil
}

func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	log.Info().Msg("[Relayer] [Stop] scheduler loops stopped")
}

func (s *Service) runProcessorLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Duration(s.cfg.Settlement.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.processorTick(ctx)
		}
	}
}

func (s *Service) processorTick(ctx context.Context) {
	pending, err := s.queue.HasPendingTransfers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("[Relayer] [processorTick] failed to check pending transfers")
		return
	}
	if !pending {
		return
	}
	// The flag is never cleared early; it expires on its own, spacing
	// dispatches the way the original schedule does.
	ttl := time.Duration(s.cfg.Settlement.DebounceSeconds) * time.Second
	if !s.guard.TryAcquire(ctx, debounceKeyProcessTransfer, ttl) {
		log.Debug().Msg("[Relayer] [processorTick] dispatch window still open, skipping")
		return
	}

	result, err := s.processor.ProcessOne(ctx)
	if err != nil {
		log.Error().Err(err).Msg("[Relayer] [processorTick] processor run failed")
		return
	}
	if result.Invalid > 0 {
		log.Warn().Msg("[Relayer] [processorTick] found invalid transfer")
	}
}

func (s *Service) runIngestLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Duration(s.cfg.Scraper.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ingestTick(ctx)
		}
	}
}

func (s *Service) ingestTick(ctx context.Context) {
	ttl := time.Duration(s.cfg.Scraper.DebounceSeconds) * time.Second
	if !s.guard.TryAcquire(ctx, debounceKeyScrapeTweets, ttl) {
		log.Debug().Msg("[Relayer] [ingestTick] dispatch window still open, skipping")
		return
	}

	if _, err := s.ingestor.Ingest(ctx); err != nil {
		log.Error().Err(err).Msg("[Relayer] [ingestTick] ingestion run failed")
	}
	if _, _, err := s.ingestor.RetryLookups(ctx); err != nil {
		log.Error().Err(err).Msg("[Relayer] [ingestTick] lookup retry pass failed")
	}
}
