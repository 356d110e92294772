// Package relay forwards game prompts to the completion provider with the
// rules and the running history as context, and records each exchange.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/worldlog/internal/domain"
	"github.com/ashureev/worldlog/internal/llm"
	"github.com/ashureev/worldlog/internal/metrics"
	"github.com/ashureev/worldlog/internal/session"
	"github.com/ashureev/worldlog/internal/store"
	"github.com/google/uuid"
)

const (
	// DefaultTerminationPhrase ends the session when sent as a prompt.
	DefaultTerminationPhrase = "trpg 마치기"

	// FarewellMessage is returned whenever a session is ended.
	FarewellMessage = "WorldLog TRPG를 마치겠습니다..! 재밌게 시간 보내주셔서 감사합니다!"
)

// ErrMissingPrompt is returned for an absent or empty prompt.
var ErrMissingPrompt = errors.New("프롬프트가 제공되지 않았습니다.")

// RulesSource provides the system instructions.
type RulesSource interface {
	Load() (string, error)
}

// HistoryStore persists the exchanges of the running session.
type HistoryStore interface {
	ReadAll() ([]domain.HistoryEntry, error)
	Snapshot() ([]domain.HistoryEntry, error)
	Append(entry domain.HistoryEntry) error
	Clear() (bool, error)
}

// Options configures a Service. Archive and Metrics may be nil.
type Options struct {
	Rules             RulesSource
	History           HistoryStore
	Gate              *session.Gate
	LLM               llm.Client
	Archive           store.Archive
	Metrics           *metrics.Collector
	TerminationPhrase string
}

// Result is the reply to one prompt.
type Result struct {
	Response string
	// Ended is set when the prompt was the termination phrase.
	Ended bool
}

// Service is the completion relay.
type Service struct {
	rules       RulesSource
	history     HistoryStore
	gate        *session.Gate
	llm         llm.Client
	archive     store.Archive
	metrics     *metrics.Collector
	termination string
	now         func() time.Time
}

// NewService creates a relay service.
func NewService(opts Options) (*Service, error) {
	if opts.Rules == nil || opts.History == nil || opts.LLM == nil {
		return nil, errors.New("relay: rules, history and llm are required")
	}
	gate := opts.Gate
	if gate == nil {
		gate = session.NewGate("", "")
	}
	phrase := strings.ToLower(strings.TrimSpace(opts.TerminationPhrase))
	if phrase == "" {
		phrase = DefaultTerminationPhrase
	}

	return &Service{
		rules:       opts.Rules,
		history:     opts.History,
		gate:        gate,
		llm:         opts.LLM,
		archive:     opts.Archive,
		metrics:     opts.Metrics,
		termination: phrase,
		now:         time.Now,
	}, nil
}

// Complete answers one prompt. The provider is called at most once, and the
// exchange is appended to the history only after a successful reply.
func (s *Service) Complete(ctx context.Context, prompt string) (Result, error) {
	if prompt == "" {
		s.metrics.RecordCompletion(metrics.OutcomeRejected)
		return Result{}, ErrMissingPrompt
	}

	if strings.ToLower(strings.TrimSpace(prompt)) == s.termination {
		if _, err := s.End(ctx); err != nil {
			s.metrics.RecordCompletion(metrics.OutcomeStorageError)
			return Result{}, err
		}
		s.metrics.RecordCompletion(metrics.OutcomeTerminated)
		return Result{Response: FarewellMessage, Ended: true}, nil
	}

	prompt = s.gate.Apply(prompt)

	rules, err := s.rules.Load()
	if err != nil {
		s.metrics.RecordCompletion(metrics.OutcomeStorageError)
		return Result{}, err
	}

	previous, err := s.history.ReadAll()
	if err != nil {
		s.metrics.RecordCompletion(metrics.OutcomeStorageError)
		return Result{}, err
	}
	historyJSON, err := json.Marshal(previous)
	if err != nil {
		s.metrics.RecordCompletion(metrics.OutcomeStorageError)
		return Result{}, fmt.Errorf("encode history: %w", err)
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: rules},
		{Role: llm.RoleUser, Content: string(historyJSON)},
		{Role: llm.RoleUser, Content: prompt},
	}

	// The provider call is not tied to the client connection.
	start := s.now()
	resp, err := s.llm.Generate(context.WithoutCancel(ctx), messages)
	s.metrics.RecordProviderCall(s.now().Sub(start), err)
	if err != nil {
		s.metrics.RecordCompletion(metrics.OutcomeProviderError)
		return Result{}, err
	}

	reply := strings.TrimSpace(resp.Content)
	if err := s.history.Append(domain.HistoryEntry{User: prompt, Host: reply}); err != nil {
		s.metrics.RecordCompletion(metrics.OutcomeStorageError)
		return Result{}, err
	}

	slog.Info("Completion relayed",
		"model", resp.Model,
		"history_entries", len(previous)+1,
		"prompt_tokens", resp.PromptTokens,
		"completion_tokens", resp.CompletionTokens,
	)
	s.metrics.RecordCompletion(metrics.OutcomeSuccess)
	return Result{Response: reply}, nil
}

// End deletes the history log and reports whether one existed. When an
// archive is configured the deleted entries are saved there; archive
// failures are logged and do not fail the call.
func (s *Service) End(ctx context.Context) (bool, error) {
	var entries []domain.HistoryEntry
	if s.archive != nil {
		var err error
		entries, err = s.history.Snapshot()
		if err != nil {
			slog.Warn("Failed to read history for archiving", "error", err)
		}
	}

	existed, err := s.history.Clear()
	if err != nil {
		return false, err
	}
	s.metrics.RecordTermination(existed)

	if existed && len(entries) > 0 {
		s.archiveEntries(ctx, entries)
	}
	return existed, nil
}

func (s *Service) archiveEntries(ctx context.Context, entries []domain.HistoryEntry) {
	archived := &domain.ArchivedSession{
		ID:      uuid.NewString(),
		EndedAt: s.now().UTC(),
		Entries: entries,
	}
	if err := s.archive.SaveSession(context.WithoutCancel(ctx), archived); err != nil {
		slog.Warn("Failed to archive session", "error", err, "entries", len(entries))
		return
	}
	s.metrics.RecordArchived()
	slog.Info("Session archived", "session_id", archived.ID, "entries", len(entries))
}
