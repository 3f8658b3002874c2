package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/aptsend/relayer/pkg/db"
	"github.com/aptsend/relayer/pkg/db/models"
	"github.com/aptsend/relayer/pkg/parser"
	"github.com/aptsend/relayer/pkg/scraper"
)

const lookupRetryBatchSize = 50

// Store is the slice of the database adapter that ingestion writes through.
type Store interface {
	CommandExists(ctx context.Context, tweetID string) (bool, error)
	CreateCommand(ctx context.Context, command *models.Command) error
	CreateCommandWithTransfer(ctx context.Context, command *models.Command, transfer *models.Transfer) error
	ListNeedsLookupCommands(ctx context.Context, limit int) ([]models.Command, error)
	ResolveCommand(ctx context.Context, command *models.Command, resolvedUserID string) error
}

// RecipientResolver maps a (channel, identifier) pair to a canonical id.
type RecipientResolver interface {
	Resolve(ctx context.Context, channel, identifier string) (string, error)
}

// Summary is the structured outcome of one ingestion run. A post parks as
// NEEDS_LOOKUP still counts as processed: ingestion succeeded, settlement is
// deferred.
type Summary struct {
	Processed int
	Skipped   int
	Failed    int
}

type Service struct {
	source   scraper.Source
	parser   *parser.Parser
	resolver RecipientResolver
	store    Store
}

func NewService(source scraper.Source, p *parser.Parser, resolver RecipientResolver, store Store) *Service {
	return &Service{source: source, parser: p, resolver: resolver, store: store}
}

// Ingest fetches one batch of candidate posts and materializes command and
// transfer records. Idempotent per post: the tweet id dedup check makes a
// re-run of the same batch a pile of skips. One bad post never aborts the
// batch.
func (s *Service) Ingest(ctx context.Context) (Summary, error) {
	var summary Summary

	tweets, err := s.source.FetchTweets(ctx)
	if err != nil {
		return summary, fmt.Errorf("fetch candidate posts: %w", err)
	}
	if len(tweets) == 0 {
		log.Info().Msg("[Ingest] [Ingest] no posts to process")
		return summary, nil
	}
	log.Info().Int("count", len(tweets)).Msg("[Ingest] [Ingest] processing candidate posts")

	for _, tweet := range tweets {
		if !s.parser.HasTag(tweet.Text) {
			continue
		}
		outcome := s.ingestOne(ctx, tweet)
		switch outcome {
		case outcomeProcessed:
			summary.Processed++
		case outcomeSkipped:
			summary.Skipped++
		case outcomeFailed:
			summary.Failed++
		}
	}

	log.Info().
		Int("processed", summary.Processed).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("[Ingest] [Ingest] batch complete")
	return summary, nil
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (s *Service) ingestOne(ctx context.Context, tweet scraper.Tweet) outcome {
	exists, err := s.store.CommandExists(ctx, tweet.ID)
	if err != nil {
		log.Error().Err(err).Str("tweetId", tweet.ID).Msg("[Ingest] [ingestOne] dedup check failed")
		return outcomeFailed
	}
	if exists {
		log.Debug().Str("tweetId", tweet.ID).Msg("[Ingest] [ingestOne] already processed, skipping")
		return outcomeSkipped
	}

	intent, err := s.parser.Parse(tweet.Text)
	if err != nil {
		log.Warn().Err(err).Str("tweetId", tweet.ID).Str("text", tweet.Text).
			Msg("[Ingest] [ingestOne] failed to parse command")
		return outcomeFailed
	}

	command := &models.Command{
		TweetID:        tweet.ID,
		AuthorUsername: tweet.Username,
		AuthorUserID:   tweet.UserID,
		RawText:        tweet.Text,
		TweetCreatedAt: tweet.CreatedAt,
		Amount:         intent.AmountOctas,
		Token:          intent.Token,
		ToChannel:      intent.Channel,
		Sent:           db.CommandNotSent,
	}

	recipientID, err := s.resolver.Resolve(ctx, intent.Channel, intent.Identifier)
	if err != nil {
		// Resolution failure parks the command for a later lookup pass; the
		// raw identifier is kept in the recipient field and no transfer is
		// created yet.
		log.Warn().Err(err).Str("tweetId", tweet.ID).
			Msg("[Ingest] [ingestOne] recipient unresolved, parking as needs-lookup")
		command.Status = int(db.CommandNeedsLookup)
		command.ToUserID = intent.Identifier
		if err := s.store.CreateCommand(ctx, command); err != nil {
			log.Error().Err(err).Str("tweetId", tweet.ID).Msg("[Ingest] [ingestOne] failed to create command")
			return outcomeFailed
		}
		return outcomeProcessed
	}

	command.Status = int(db.CommandReady)
	command.ToUserID = recipientID
	transfer := &models.Transfer{
		SourceType:  parser.ChannelTwitter,
		FromChannel: parser.ChannelTwitter,
		FromUserID:  tweet.UserID,
		ToChannel:   intent.Channel,
		ToUserID:    recipientID,
		Amount:      intent.AmountOctas,
		Token:       intent.Token,
		Status:      int(db.TransferPending),
	}
	if err := s.store.CreateCommandWithTransfer(ctx, command, transfer); err != nil {
		log.Error().Err(err).Str("tweetId", tweet.ID).Msg("[Ingest] [ingestOne] failed to create records")
		return outcomeFailed
	}
	log.Info().Str("tweetId", tweet.ID).Uint("transferId", transfer.ID).
		Msg("[Ingest] [ingestOne] command ready, transfer queued")
	return outcomeProcessed
}

// RetryLookups re-attempts resolution for parked NEEDS_LOOKUP commands,
// promoting successes to READY and queueing their transfers. Returns how
// many were resolved and how many remain parked.
func (s *Service) RetryLookups(ctx context.Context) (resolved, remaining int, err error) {
	commands, err := s.store.ListNeedsLookupCommands(ctx, lookupRetryBatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("list needs-lookup commands: %w", err)
	}
	for i := range commands {
		command := &commands[i]
		recipientID, resolveErr := s.resolver.Resolve(ctx, command.ToChannel, command.ToUserID)
		if resolveErr != nil {
			remaining++
			continue
		}
		if err := s.store.ResolveCommand(ctx, command, recipientID); err != nil {
			log.Error().Err(err).Uint("commandId", command.ID).
				Msg("[Ingest] [RetryLookups] failed to promote command")
			remaining++
			continue
		}
		resolved++
	}
	if resolved > 0 || remaining > 0 {
		log.Info().Int("resolved", resolved).Int("remaining", remaining).
			Msg("[Ingest] [RetryLookups] lookup retry pass complete")
	}
	return resolved, remaining, nil
}
