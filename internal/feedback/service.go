// Package feedback implements the reinforcement loop.
//
// User ratings flow in here and mutate the knowledge store and memory cache:
// well-rated turns are promoted into durable knowledge, poorly-rated answers
// land in a bounded suppression ledger the orchestrator consults before
// emitting any candidate answer. No other component mutates entry
// confidence or importance.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/knowledge"
	"github.com/fyrsmithlabs/recalld/internal/memory"
)

const instrumentationName = "github.com/fyrsmithlabs/recalld/internal/feedback"

var (
	// ErrInvalidFeedback indicates a rating outside 1..5. This is a
	// caller mistake and surfaces as an explicit error; nothing mutates.
	ErrInvalidFeedback = errors.New("invalid feedback")

	// ErrTurnNotFound indicates the rated turn is unknown.
	ErrTurnNotFound = errors.New("rated turn not found")
)

// promotedEntryID derives the knowledge entry id for a promoted turn.
// Deterministic so re-rating overwrites the same entry instead of
// duplicating it.
func promotedEntryID(turnID string) string {
	return "conv-" + turnID
}

// Service consumes ratings and reinforces or suppresses material.
type Service struct {
	store  *knowledge.Store
	cache  *memory.Cache
	ledger *Ledger
	logger *zap.Logger
	tracer trace.Tracer
}

// NewService creates the feedback service.
func NewService(store *knowledge.Store, cache *memory.Cache, ledger *Ledger, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("knowledge store is required")
	}
	if cache == nil {
		return nil, errors.New("memory cache is required")
	}
	if ledger == nil {
		ledger = NewLedger(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		store:  store,
		cache:  cache,
		ledger: ledger,
		logger: logger.Named("feedback"),
		tracer: otel.Tracer(instrumentationName),
	}, nil
}

// Ledger exposes the suppression ledger for the orchestrator's pre-emit
// check.
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// Rate applies a user rating to a turn.
//
//   - rating >= 4 promotes the Q/A pair into the knowledge store as a
//     conversation entry with confidence rating/5 and bumps the cached
//     turn's importance.
//   - rating <= 2 withholds the answer from future use via the suppression
//     ledger; any previously promoted entry for the turn is removed.
//   - rating == 3 is recorded for analytics only.
//
// Re-rating a turn overwrites its prior feedback; rating the same turn
// twice with the same value leaves store state unchanged.
func (s *Service) Rate(ctx context.Context, turnID string, rating int, comments string) error {
	ctx, span := s.tracer.Start(ctx, "feedback.rate")
	defer span.End()
	span.SetAttributes(
		attribute.String("turn_id", turnID),
		attribute.Int("rating", rating),
	)

	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating %d outside 1..5", ErrInvalidFeedback, rating)
	}

	turn, err := s.cache.ApplyFeedback(turnID, rating, comments)
	if err != nil {
		if errors.Is(err, memory.ErrTurnNotFound) {
			return fmt.Errorf("%w: %s", ErrTurnNotFound, turnID)
		}
		if errors.Is(err, memory.ErrInvalidRating) {
			return fmt.Errorf("%w: %v", ErrInvalidFeedback, err)
		}
		return fmt.Errorf("applying feedback to turn: %w", err)
	}

	RatingsTotal.WithLabelValues(strconv.Itoa(rating)).Inc()

	switch {
	case rating >= 4:
		return s.promote(ctx, turn, rating)
	case rating <= 2:
		return s.suppress(ctx, turn, rating)
	default:
		// Neutral: analytics only, no store mutation.
		s.logger.Debug("neutral feedback recorded",
			zap.String("turn_id", turnID),
		)
		return nil
	}
}

// promote writes the turn's Q/A pair into the knowledge store.
func (s *Service) promote(ctx context.Context, turn *memory.Turn, rating int) error {
	entry := &knowledge.Entry{
		ID:         promotedEntryID(turn.ID),
		Content:    fmt.Sprintf("Q: %s\nA: %s", turn.Question, turn.Answer),
		Category:   knowledge.CategoryConversation,
		Source:     knowledge.SourceConversation,
		Confidence: float64(rating) / 5,
		Importance: turn.Importance,
		Meta: knowledge.Meta{
			Conversation: &knowledge.ConversationMeta{
				TurnID:    turn.ID,
				SessionID: turn.SessionID,
				Rating:    rating,
			},
		},
	}

	if err := s.store.Put(ctx, entry); err != nil {
		return fmt.Errorf("promoting turn %s: %w", turn.ID, err)
	}

	PromotionsTotal.Inc()
	s.logger.Info("promoted turn into knowledge store",
		zap.String("turn_id", turn.ID),
		zap.String("entry_id", entry.ID),
		zap.Int("rating", rating),
	)
	return nil
}

// suppress records the answer in the ledger and withdraws any prior
// promotion of the same turn.
func (s *Service) suppress(ctx context.Context, turn *memory.Turn, rating int) error {
	s.ledger.Add(SuppressedAnswer{
		TurnID:       turn.ID,
		Question:     turn.Question,
		AnswerPrefix: turn.Answer,
		Rating:       rating,
		QuestionVec:  turn.Embedding,
	})

	// A turn previously rated well may have been promoted; withdraw it.
	if err := s.store.Delete(ctx, promotedEntryID(turn.ID)); err != nil && !errors.Is(err, knowledge.ErrNotFound) {
		return fmt.Errorf("withdrawing promoted entry for turn %s: %w", turn.ID, err)
	}

	SuppressionsTotal.Inc()
	s.logger.Info("suppressed answer",
		zap.String("turn_id", turn.ID),
		zap.Int("rating", rating),
		zap.Int("ledger_size", s.ledger.Len()),
	)
	return nil
}
