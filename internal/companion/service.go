package companion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/kindred/internal/live"
	"github.com/ent0n29/kindred/internal/memory"
	"github.com/ent0n29/kindred/internal/policy"
	"github.com/ent0n29/kindred/internal/reminders"
)

var (
	ErrEmptyMessage  = errors.New("message is empty")
	ErrPromptBlocked = errors.New("prompt blocked")
)

const (
	maxBondLevel   = 100
	historyLimit   = 20
	memoryLimit    = 20
	summaryHistory = 40
)

// Service implements the companion features shared by the HTTP API and the
// live voice session.
type Service struct {
	store     memory.Store
	brain     Brain
	catalog   Catalog
	reminders reminders.Store
	logger    *zap.Logger
	now       func() time.Time

	// profileMu serializes profile read-modify-write cycles.
	profileMu sync.Mutex
}

func NewService(store memory.Store, brain Brain, catalog Catalog, reminderStore reminders.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if brain == nil {
		brain = MockBrain{}
	}
	if reminderStore == nil {
		reminderStore = reminders.NewInMemoryStore()
	}
	return &Service{
		store:     store,
		brain:     brain,
		catalog:   catalog,
		reminders: reminderStore,
		logger:    logger.With(zap.String("component", "companion")),
		now:       time.Now,
	}
}

func (s *Service) Catalog() Catalog { return s.catalog }

// Profile returns the user's companion state, or defaults for a new user.
func (s *Service) Profile(ctx context.Context, userID string) (memory.Profile, error) {
	p, err := s.store.Profile(ctx, userID)
	if errors.Is(err, memory.ErrNotFound) {
		return memory.Profile{
			UserID:      userID,
			Personality: s.catalog.Default().ID,
			Mode:        ModeChat,
			Mood:        defaultMood,
		}, nil
	}
	if err != nil {
		return memory.Profile{}, err
	}
	if _, ok := s.catalog.Personality(p.Personality); !ok {
		p.Personality = s.catalog.Default().ID
	}
	return p, nil
}

func (s *Service) updateProfile(ctx context.Context, userID string, mutate func(*memory.Profile) error) (memory.Profile, error) {
	s.profileMu.Lock()
	defer s.profileMu.Unlock()
	p, err := s.Profile(ctx, userID)
	if err != nil {
		return memory.Profile{}, err
	}
	if err := mutate(&p); err != nil {
		return memory.Profile{}, err
	}
	p.UpdatedAt = s.now().UTC()
	if err := s.store.SaveProfile(ctx, p); err != nil {
		return memory.Profile{}, fmt.Errorf("save profile: %w", err)
	}
	return p, nil
}

// SetPersonality switches the active personality.
func (s *Service) SetPersonality(ctx context.Context, userID, personality string) (memory.Profile, error) {
	return s.updateProfile(ctx, userID, func(p *memory.Profile) error {
		if _, ok := s.catalog.Personality(personality); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownPersonality, personality)
		}
		p.Personality = personality
		return nil
	})
}

// SetMode switches the app mode. Any catalog mode is accepted here.
func (s *Service) SetMode(ctx context.Context, userID, mode string) (memory.Profile, error) {
	return s.updateProfile(ctx, userID, func(p *memory.Profile) error {
		if !s.catalog.HasMode(mode) {
			return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
		}
		p.Mode = mode
		return nil
	})
}

type ChatResult struct {
	Reply     string `json:"reply"`
	Mood      string `json:"mood"`
	BondLevel int    `json:"bond_level"`
}

// Chat answers one text message and updates mood, memories and bond level.
func (s *Service) Chat(ctx context.Context, userID, text string) (ChatResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatResult{}, ErrEmptyMessage
	}
	profile, err := s.Profile(ctx, userID)
	if err != nil {
		return ChatResult{}, err
	}
	history, err := s.store.RecentContext(ctx, userID, historyLimit)
	if err != nil {
		return ChatResult{}, fmt.Errorf("load history: %w", err)
	}
	memories := s.memoryTexts(ctx, userID)
	personality, _ := s.catalog.Personality(profile.Personality)

	reply, err := s.brain.Reply(ctx, BuildInstruction(personality, profile, memories, false), toMessages(history), text)
	if err != nil {
		return ChatResult{}, fmt.Errorf("companion reply: %w", err)
	}
	reply = strings.TrimSpace(reply)

	if err := s.saveExchange(ctx, userID, "", text, reply); err != nil {
		return ChatResult{}, err
	}

	mood := s.learnFrom(ctx, userID, text)
	updated, err := s.updateProfile(ctx, userID, func(p *memory.Profile) error {
		if mood != "" {
			p.Mood = mood
		}
		p.BondLevel = min(p.BondLevel+1, maxBondLevel)
		return nil
	})
	if err != nil {
		return ChatResult{}, err
	}
	return ChatResult{Reply: reply, Mood: updated.Mood, BondLevel: updated.BondLevel}, nil
}

// learnFrom runs mood classification and memory extraction side by side.
// Both are best effort; failures are logged and the chat still succeeds.
func (s *Service) learnFrom(ctx context.Context, userID, text string) string {
	var mood string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		answer, err := s.brain.Complete(gctx, moodSystem, text)
		if err != nil {
			s.logger.Debug("mood classification failed", zap.Error(err))
			return nil
		}
		if m, ok := parseMood(answer); ok {
			mood = m
		}
		return nil
	})
	g.Go(func() error {
		answer, err := s.brain.Complete(gctx, extractSystem, text)
		if err != nil {
			s.logger.Debug("memory extraction failed", zap.Error(err))
			return nil
		}
		for _, fact := range parseFacts(answer) {
			s.remember(gctx, userID, fact)
		}
		return nil
	})
	_ = g.Wait()
	return mood
}

func (s *Service) remember(ctx context.Context, userID, fact string) {
	redacted, changed := policy.RedactPII(fact)
	if !policy.ShouldRemember(redacted) {
		return
	}
	err := s.store.SaveFact(ctx, memory.Fact{UserID: userID, Content: redacted, PIIRedacted: changed})
	if err != nil {
		s.logger.Warn("save memory failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *Service) saveExchange(ctx context.Context, userID, sessionID, userText, assistantText string) error {
	now := s.now().UTC()
	if userText != "" {
		if err := s.store.SaveTurn(ctx, memory.TurnRecord{UserID: userID, SessionID: sessionID, Role: memory.RoleUser, Content: userText, CreatedAt: now}); err != nil {
			return fmt.Errorf("save user turn: %w", err)
		}
	}
	if assistantText != "" {
		if err := s.store.SaveTurn(ctx, memory.TurnRecord{UserID: userID, SessionID: sessionID, Role: memory.RoleAssistant, Content: assistantText, CreatedAt: now.Add(time.Millisecond)}); err != nil {
			return fmt.Errorf("save assistant turn: %w", err)
		}
	}
	return nil
}

func (s *Service) History(ctx context.Context, userID string, limit int) ([]memory.TurnRecord, error) {
	return s.store.RecentContext(ctx, userID, limit)
}

// Summarize condenses the recent conversation.
func (s *Service) Summarize(ctx context.Context, userID string) (string, error) {
	history, err := s.store.RecentContext(ctx, userID, summaryHistory)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	if len(history) == 0 {
		return "", nil
	}
	summary, err := s.brain.Complete(ctx, summarySystem, transcriptText(history))
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(summary), nil
}

func (s *Service) Memories(ctx context.Context, userID string) ([]memory.Fact, error) {
	return s.store.Facts(ctx, userID, 0)
}

func (s *Service) memoryTexts(ctx context.Context, userID string) []string {
	facts, err := s.store.Facts(ctx, userID, memoryLimit)
	if err != nil {
		s.logger.Warn("load memories failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	out := make([]string, 0, len(facts))
	for _, f := range facts {
		out = append(out, f.Content)
	}
	return out
}

// WriteDiary stores an entry with a reflection from the companion.
func (s *Service) WriteDiary(ctx context.Context, userID, text string) (memory.DiaryEntry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return memory.DiaryEntry{}, ErrEmptyMessage
	}
	reflection, err := s.brain.Complete(ctx, reflectionSystem, text)
	if err != nil {
		s.logger.Warn("diary reflection failed", zap.String("user_id", userID), zap.Error(err))
		reflection = ""
	}
	mood := guessMood(text)
	if answer, err := s.brain.Complete(ctx, moodSystem, text); err == nil {
		if m, ok := parseMood(answer); ok {
			mood = m
		}
	}
	entry := memory.DiaryEntry{
		UserID:     userID,
		Content:    text,
		Reflection: strings.TrimSpace(reflection),
		Mood:       mood,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.SaveDiary(ctx, entry); err != nil {
		return memory.DiaryEntry{}, fmt.Errorf("save diary entry: %w", err)
	}
	return entry, nil
}

func (s *Service) ListDiary(ctx context.Context, userID string, limit int) ([]memory.DiaryEntry, error) {
	return s.store.DiaryEntries(ctx, userID, limit)
}

// GenerateImage renders prompt after the content policy check.
func (s *Service) GenerateImage(ctx context.Context, userID, prompt string) (Image, error) {
	if d := policy.DecideImagePrompt(prompt); d.Blocked {
		return Image{}, fmt.Errorf("%w: %s", ErrPromptBlocked, d.Reason)
	}
	img, err := s.brain.Image(ctx, strings.TrimSpace(prompt))
	if err != nil {
		return Image{}, fmt.Errorf("generate image: %w", err)
	}
	s.logger.Info("image generated", zap.String("user_id", userID), zap.Int("bytes", len(img.Data)))
	return img, nil
}

func (s *Service) AddReminder(ctx context.Context, userID, text, when string) (reminders.Reminder, error) {
	return reminders.Create(ctx, s.reminders, s.now(), userID, text, when)
}

func (s *Service) ListReminders(ctx context.Context, userID string) ([]reminders.Reminder, error) {
	return s.reminders.List(ctx, userID)
}

// LiveSetup is everything a live voice session is opened with.
type LiveSetup struct {
	Context     live.Context
	Instruction string
	Voice       string
}

// LiveContext snapshots the user's companion state for a new live session.
func (s *Service) LiveContext(ctx context.Context, userID string) (LiveSetup, error) {
	profile, err := s.Profile(ctx, userID)
	if err != nil {
		return LiveSetup{}, err
	}
	personality, _ := s.catalog.Personality(profile.Personality)
	memories := s.memoryTexts(ctx, userID)
	return LiveSetup{
		Context: live.Context{
			Personality: profile.Personality,
			Mode:        ModeLive,
			BondLevel:   profile.BondLevel,
			Mood:        profile.Mood,
			Memories:    memories,
		},
		Instruction: BuildInstruction(personality, profile, memories, true),
		Voice:       personality.Voice,
	}, nil
}

// ApplyLiveTurn persists a finished live turn to history.
func (s *Service) ApplyLiveTurn(ctx context.Context, userID, sessionID string, turn live.Transcript) error {
	userText := strings.TrimSpace(turn.User)
	assistantText := strings.TrimSpace(turn.Assistant)
	if userText == "" && assistantText == "" {
		return nil
	}
	if err := s.saveExchange(ctx, userID, sessionID, userText, assistantText); err != nil {
		return err
	}
	if userText == "" || assistantText == "" {
		return nil
	}
	_, err := s.updateProfile(ctx, userID, func(p *memory.Profile) error {
		p.BondLevel = min(p.BondLevel+1, maxBondLevel)
		return nil
	})
	return err
}

func toMessages(history []memory.TurnRecord) []Message {
	out := make([]Message, 0, len(history))
	for _, t := range history {
		out = append(out, Message{Role: t.Role, Text: t.Content})
	}
	return out
}
