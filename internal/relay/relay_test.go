package relay

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ashureev/worldlog/internal/domain"
	"github.com/ashureev/worldlog/internal/history"
	"github.com/ashureev/worldlog/internal/llm"
	"github.com/ashureev/worldlog/internal/metrics"
	"github.com/ashureev/worldlog/internal/session"
	"github.com/ashureev/worldlog/internal/store"
)

type fakeRules struct {
	text string
	err  error
}

func (f fakeRules) Load() (string, error) { return f.text, f.err }

type fakeLLM struct {
	mu    sync.Mutex
	calls [][]llm.Message
	reply string
	err   error
}

func (f *fakeLLM) Generate(_ context.Context, messages []llm.Message) (llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, messages)
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.reply, Model: "gpt-4o-mini"}, nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeLLM) lastCall() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type fakeArchive struct {
	mu       sync.Mutex
	sessions []*domain.ArchivedSession
	err      error
}

func (f *fakeArchive) SaveSession(_ context.Context, s *domain.ArchivedSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sessions = append(f.sessions, s)
	return nil
}

func (f *fakeArchive) ListSessions(context.Context, int) ([]*domain.ArchivedSession, error) {
	return nil, nil
}

func (f *fakeArchive) GetSession(context.Context, string) (*domain.ArchivedSession, error) {
	return nil, store.ErrNotFound
}

func (f *fakeArchive) Ping(context.Context) error { return nil }
func (f *fakeArchive) Close() error               { return nil }

type testEnv struct {
	svc     *Service
	llm     *fakeLLM
	history *history.Store
	archive *fakeArchive
}

func newTestEnv(t *testing.T, withArchive bool) *testEnv {
	t.Helper()
	env := &testEnv{
		llm:     &fakeLLM{reply: "  당신은 숲 속에 서 있습니다.  "},
		history: history.New(filepath.Join(t.TempDir(), "history.json")),
	}
	opts := Options{
		Rules:   fakeRules{text: "You are the game master."},
		History: env.history,
		Gate:    session.NewGate("", ""),
		LLM:     env.llm,
		Metrics: metrics.NewCollector("test"),
	}
	if withArchive {
		env.archive = &fakeArchive{}
		opts.Archive = env.archive
	}
	svc, err := NewService(opts)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	env.svc = svc
	return env
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := NewService(Options{}); err == nil {
		t.Fatal("expected error without dependencies")
	}
}

func TestCompleteMissingPrompt(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	if _, err := env.svc.Complete(context.Background(), ""); !errors.Is(err, ErrMissingPrompt) {
		t.Fatalf("expected ErrMissingPrompt, got %v", err)
	}
	if env.llm.callCount() != 0 {
		t.Fatal("provider must not be called")
	}
	if _, err := os.Stat(env.history.Path()); !os.IsNotExist(err) {
		t.Fatal("history file must not be created")
	}
}

func TestCompleteFirstPromptRewritten(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	ctx := context.Background()

	res, err := env.svc.Complete(ctx, "hello there")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if res.Response != "당신은 숲 속에 서 있습니다." {
		t.Fatalf("expected trimmed reply, got %q", res.Response)
	}

	msgs := env.llm.lastCall()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Role != llm.RoleSystem || msgs[0].Content != "You are the game master." {
		t.Errorf("unexpected system message: %+v", msgs[0])
	}
	if msgs[1].Role != llm.RoleUser || msgs[1].Content != "[]" {
		t.Errorf("unexpected history message: %+v", msgs[1])
	}
	if msgs[2].Content != session.DefaultInstruction {
		t.Errorf("expected rewritten first prompt, got %q", msgs[2].Content)
	}

	if _, err := env.svc.Complete(ctx, "hello there"); err != nil {
		t.Fatalf("second Complete failed: %v", err)
	}
	msgs = env.llm.lastCall()
	if msgs[2].Content != "hello there" {
		t.Errorf("expected literal second prompt, got %q", msgs[2].Content)
	}

	var sent []domain.HistoryEntry
	if err := json.Unmarshal([]byte(msgs[1].Content), &sent); err != nil {
		t.Fatalf("history message is not JSON: %v", err)
	}
	if len(sent) != 1 || sent[0].User != session.DefaultInstruction {
		t.Fatalf("expected first exchange in context, got %+v", sent)
	}

	entries, err := env.history.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1] != (domain.HistoryEntry{User: "hello there", Host: "당신은 숲 속에 서 있습니다."}) {
		t.Fatalf("unexpected entry: %+v", entries[1])
	}
}

func TestCompleteKeywordPromptUnchanged(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	if _, err := env.svc.Complete(context.Background(), "TRPG 판타지로 시작해줘"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got := env.llm.lastCall()[2].Content; got != "TRPG 판타지로 시작해줘" {
		t.Fatalf("expected prompt unchanged, got %q", got)
	}
	if !env.svc.gate.Handled() {
		t.Fatal("expected gate flag to be set")
	}
}

func TestCompleteTerminationPhrase(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, true)
	if err := env.history.Append(domain.HistoryEntry{User: "a", Host: "b"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	res, err := env.svc.Complete(context.Background(), "  TRPG 마치기 ")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if !res.Ended || res.Response != FarewellMessage {
		t.Fatalf("unexpected result: %+v", res)
	}
	if env.llm.callCount() != 0 {
		t.Fatal("provider must not be called on termination")
	}
	if _, err := os.Stat(env.history.Path()); !os.IsNotExist(err) {
		t.Fatal("expected history file to be deleted")
	}
	if env.svc.gate.Handled() {
		t.Fatal("termination must not consume the first prompt")
	}
	if len(env.archive.sessions) != 1 || len(env.archive.sessions[0].Entries) != 1 {
		t.Fatalf("expected one archived session, got %+v", env.archive.sessions)
	}
}

func TestCompleteTerminationWithoutHistory(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, true)
	res, err := env.svc.Complete(context.Background(), "trpg 마치기")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if res.Response != FarewellMessage {
		t.Fatalf("expected farewell, got %q", res.Response)
	}
	if env.llm.callCount() != 0 {
		t.Fatal("provider must not be called on termination")
	}
	if len(env.archive.sessions) != 0 {
		t.Fatal("nothing should be archived")
	}
}

func TestCompleteProviderFailureLeavesHistory(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	if err := env.history.Append(domain.HistoryEntry{User: "a", Host: "b"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	before, err := os.ReadFile(env.history.Path())
	if err != nil {
		t.Fatalf("read history: %v", err)
	}

	env.llm.err = errors.New("quota exceeded")
	_, err = env.svc.Complete(context.Background(), "attack the goblin")
	if err == nil || err.Error() != "quota exceeded" {
		t.Fatalf("expected provider error, got %v", err)
	}

	after, err := os.ReadFile(env.history.Path())
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	if string(before) != string(after) {
		t.Fatalf("history changed after provider failure:\n%s\n%s", before, after)
	}
}

func TestCompleteMalformedHistory(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	if err := os.WriteFile(env.history.Path(), []byte("not json"), 0o644); err != nil {
		t.Fatalf("write history: %v", err)
	}

	if _, err := env.svc.Complete(context.Background(), "trpg"); err == nil {
		t.Fatal("expected parse error")
	}
	if env.llm.callCount() != 0 {
		t.Fatal("provider must not be called when history is unreadable")
	}
}

func TestCompleteRulesError(t *testing.T) {
	t.Parallel()

	svc, err := NewService(Options{
		Rules:   fakeRules{err: errors.New("read rules file: permission denied")},
		History: history.New(filepath.Join(t.TempDir(), "history.json")),
		LLM:     &fakeLLM{},
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	if _, err := svc.Complete(context.Background(), "trpg"); err == nil {
		t.Fatal("expected rules error")
	}
}

func TestEndTwice(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	if err := env.history.Append(domain.HistoryEntry{User: "a", Host: "b"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	existed, err := env.svc.End(context.Background())
	if err != nil || !existed {
		t.Fatalf("expected first End to delete, got existed=%v err=%v", existed, err)
	}
	existed, err = env.svc.End(context.Background())
	if err != nil || existed {
		t.Fatalf("expected second End to find nothing, got existed=%v err=%v", existed, err)
	}
}

func TestEndArchiveFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, true)
	env.archive.err = errors.New("disk full")
	if err := env.history.Append(domain.HistoryEntry{User: "a", Host: "b"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	existed, err := env.svc.End(context.Background())
	if err != nil || !existed {
		t.Fatalf("expected End to succeed, got existed=%v err=%v", existed, err)
	}
}

func TestCustomTerminationPhrase(t *testing.T) {
	t.Parallel()

	svc, err := NewService(Options{
		Rules:             fakeRules{},
		History:           history.New(filepath.Join(t.TempDir(), "history.json")),
		LLM:               &fakeLLM{},
		TerminationPhrase: "End TRPG",
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	res, err := svc.Complete(context.Background(), "end trpg")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if !res.Ended {
		t.Fatal("expected custom phrase to end the session")
	}
}
