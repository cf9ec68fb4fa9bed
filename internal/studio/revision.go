package studio

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/qmuntal/stateless"
	"go.uber.org/zap"

	"github.com/suPer8Hu/ai-component-studio/internal/generator"
	"github.com/suPer8Hu/ai-component-studio/internal/logger"
)

// Generator produces the next component for a turn. previous is nil for a
// fresh generation. Implementations must not fail.
type Generator interface {
	Generate(ctx context.Context, prompt string, previous *generator.Source, recent []generator.Turn) generator.Source
}

const (
	slotEmpty = "empty"
	slotLive  = "live"

	triggerInstall = "install"
	triggerRevert  = "revert"
)

const (
	revertedMessage = "Reverted to a previous component version."

	defaultContextWindow = 10
)

// Engine applies turns and reverts to a loaded session and persists the result.
type Engine struct {
	gen    Generator
	repo   *Repo
	window int
	now    func() time.Time
}

func NewEngine(gen Generator, repo *Repo, contextWindowSize int) *Engine {
	if contextWindowSize <= 0 || contextWindowSize > 100 {
		contextWindowSize = defaultContextWindow
	}
	return &Engine{gen: gen, repo: repo, window: contextWindowSize, now: time.Now}
}

// SubmitTurn runs one chat turn: log the user message, generate, archive the
// outgoing component, install the new one, log the reply, persist.
func (e *Engine) SubmitTurn(ctx context.Context, s *Session, text, image string) (Message, Component, error) {
	if strings.TrimSpace(text) == "" && image == "" {
		return Message{}, Component{}, fmt.Errorf("empty turn: %w", ErrInvalidInput)
	}
	clock := newStamper(e.now, s)

	// 1) user message
	s.Messages = append(s.Messages, Message{
		Role:      RoleUser,
		Content:   text,
		Image:     image,
		Timestamp: e.now().UTC(),
	})

	// 2) refinement iff a component is live
	isRefinement := !s.Current.IsEmpty()

	// 3) generate
	var previous *generator.Source
	if isRefinement {
		previous = &generator.Source{JSX: s.Current.JSX, CSS: s.Current.CSS}
	}
	src := e.gen.Generate(ctx, text, previous, recentTurns(s.Messages, e.window))

	// 4-5) archive + install
	installed, err := e.transition(ctx, s, triggerInstall, Component{JSX: src.JSX, CSS: src.CSS}, clock)
	if err != nil {
		return Message{}, Component{}, err
	}

	// 6) assistant message
	content := fmt.Sprintf("I've generated a React component for: \"%s\"", text)
	if isRefinement {
		content = fmt.Sprintf("I've updated your component based on your request: \"%s\"", text)
	}
	reply := Message{Role: RoleAssistant, Content: content, Timestamp: e.now().UTC()}
	s.Messages = append(s.Messages, reply)

	// 7) persist
	s.LastAccessed = e.now().UTC()
	if err := e.repo.Save(ctx, s); err != nil {
		return Message{}, Component{}, fmt.Errorf("save session %s: %w", s.ID, err)
	}

	logger.FromContext(ctx).Info("turn applied",
		zap.String("session_id", s.ID),
		zap.Bool("refinement", isRefinement),
		zap.Int("history_len", len(s.History)),
	)
	return s.Messages[len(s.Messages)-1], installed, nil
}

// Revert promotes History[index] to current. The entry stays in history; the
// displaced component, if any, is archived. An out-of-range index leaves the
// session untouched.
func (e *Engine) Revert(ctx context.Context, s *Session, index int) (Message, Component, error) {
	if index < 0 || index >= len(s.History) {
		return Message{}, Component{}, fmt.Errorf("history index %d out of range [0,%d): %w", index, len(s.History), ErrInvalidInput)
	}
	clock := newStamper(e.now, s)
	target := s.History[index].Component

	restored, err := e.transition(ctx, s, triggerRevert, target, clock)
	if err != nil {
		return Message{}, Component{}, err
	}

	s.Messages = append(s.Messages, Message{Role: RoleAssistant, Content: revertedMessage, Timestamp: e.now().UTC()})
	s.LastAccessed = e.now().UTC()
	if err := e.repo.Save(ctx, s); err != nil {
		return Message{}, Component{}, fmt.Errorf("save session %s: %w", s.ID, err)
	}

	logger.FromContext(ctx).Info("component reverted",
		zap.String("session_id", s.ID),
		zap.Int("index", index),
	)
	return s.Messages[len(s.Messages)-1], restored, nil
}

// transition drives the component slot through one install or revert.
// Leaving live archives the outgoing component; entering either state
// installs the incoming one with a fresh timestamp.
func (e *Engine) transition(ctx context.Context, s *Session, trigger string, incoming Component, clock *stamper) (Component, error) {
	initial := slotEmpty
	if !s.Current.IsEmpty() {
		initial = slotLive
	}
	sm := stateless.NewStateMachine(initial)

	install := func(_ context.Context, args ...any) error {
		c := args[0].(Component)
		c.Timestamp = clock.next()
		s.Current = c
		return nil
	}
	archive := func(_ context.Context, _ ...any) error {
		out := s.Current
		out.Timestamp = clock.next()
		s.History = append(s.History, HistoryEntry{Component: out})
		return nil
	}
	toLive := func(_ context.Context, args ...any) bool { return !args[0].(Component).IsEmpty() }
	toEmpty := func(_ context.Context, args ...any) bool { return args[0].(Component).IsEmpty() }

	for _, tr := range []string{triggerInstall, triggerRevert} {
		sm.SetTriggerParameters(tr, reflect.TypeOf(Component{}))
	}

	sm.Configure(slotEmpty).
		OnEntry(install).
		Permit(triggerInstall, slotLive, toLive).
		PermitReentry(triggerInstall, toEmpty).
		Permit(triggerRevert, slotLive, toLive).
		PermitReentry(triggerRevert, toEmpty)

	sm.Configure(slotLive).
		OnEntry(install).
		OnExit(archive).
		PermitReentry(triggerInstall, toLive).
		Permit(triggerInstall, slotEmpty, toEmpty).
		PermitReentry(triggerRevert, toLive).
		Permit(triggerRevert, slotEmpty, toEmpty)

	if err := sm.FireCtx(ctx, trigger, incoming); err != nil {
		return Component{}, fmt.Errorf("component slot %s: %w", trigger, err)
	}
	return s.Current, nil
}

// recentTurns returns the last n messages as generator context, images dropped.
func recentTurns(msgs []Message, n int) []generator.Turn {
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]generator.Turn, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, generator.Turn{Role: m.Role, Content: m.Content})
	}
	return out
}

// stamper hands out strictly increasing millisecond component timestamps,
// starting after the newest one already in the session, so ordering by
// timestamp survives datetime(3) columns.
type stamper struct {
	now  func() time.Time
	last time.Time
}

func newStamper(now func() time.Time, s *Session) *stamper {
	st := &stamper{now: now, last: s.Current.Timestamp}
	for _, h := range s.History {
		if h.Timestamp.After(st.last) {
			st.last = h.Timestamp
		}
	}
	return st
}

func (st *stamper) next() time.Time {
	t := st.now().UTC().Truncate(time.Millisecond)
	if !t.After(st.last) {
		t = st.last.Add(time.Millisecond)
	}
	st.last = t
	return t
}
