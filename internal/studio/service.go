package studio

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/suPer8Hu/ai-component-studio/internal/common"
	"github.com/suPer8Hu/ai-component-studio/internal/logger"
)

const (
	defaultMaxImageBytes = 5 * 1024 * 1024
	maxNameLen           = 255
)

// TurnResult is what a turn or revert hands back to the client.
type TurnResult struct {
	Message   Message   `json:"message"`
	Component Component `json:"component"`
}

type Service struct {
	repo          *Repo
	engine        *Engine
	cache         SummaryCache
	maxImageBytes int64
	jobStaleAfter time.Duration
	now           func() time.Time
}

// NewService wires the session operations. cache may be nil.
func NewService(repo *Repo, engine *Engine, cache SummaryCache, maxImageBytes int64) *Service {
	if cache == nil {
		cache = noCache{}
	}
	if maxImageBytes <= 0 {
		maxImageBytes = defaultMaxImageBytes
	}
	return &Service{repo: repo, engine: engine, cache: cache, maxImageBytes: maxImageBytes, jobStaleAfter: DefaultJobStaleAfter, now: time.Now}
}

func (s *Service) CreateSession(ctx context.Context, userID uint64, name string) (*Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultSessionName
	}
	if len(name) > maxNameLen {
		return nil, fmt.Errorf("name longer than %d bytes: %w", maxNameLen, ErrInvalidInput)
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC().Truncate(time.Millisecond)
	sess := &Session{
		ID:           id,
		UserID:       userID,
		Name:         name,
		Messages:     []Message{},
		Current:      Component{Timestamp: now},
		History:      []HistoryEntry{},
		CreatedAt:    now,
		LastAccessed: now,
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.invalidate(ctx, userID)
	return sess, nil
}

// ListSummaries returns the owner's sessions, most recently accessed first.
// Listing does not count as a session access.
func (s *Service) ListSummaries(ctx context.Context, userID uint64) ([]SessionSummary, error) {
	log := logger.FromContext(ctx)
	if list, ok, err := s.cache.GetSummaries(ctx, userID); err != nil {
		log.Warn("summary cache get failed", zap.Uint64("user_id", userID), zap.Error(err))
	} else if ok {
		return list, nil
	}

	list, err := s.repo.ListSummaries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if err := s.cache.SetSummaries(ctx, userID, list); err != nil {
		log.Warn("summary cache set failed", zap.Uint64("user_id", userID), zap.Error(err))
	}
	return list, nil
}

// GetSession loads an owned session and records the access.
func (s *Service) GetSession(ctx context.Context, userID uint64, id string) (*Session, error) {
	sess, err := s.repo.LoadOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.touch(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) RenameSession(ctx context.Context, userID uint64, id, name string) (*Session, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLen {
		return nil, fmt.Errorf("session name must be 1-%d bytes: %w", maxNameLen, ErrInvalidInput)
	}
	sess, err := s.repo.LoadOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	at := s.now().UTC()
	if err := s.repo.Rename(ctx, id, name, at); err != nil {
		return nil, fmt.Errorf("rename session: %w", err)
	}
	sess.Name = name
	sess.LastAccessed = at
	s.invalidate(ctx, userID)
	return sess, nil
}

func (s *Service) DeleteSession(ctx context.Context, userID uint64, id string) error {
	if _, err := s.repo.LoadOwned(ctx, userID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete session: %w", err)
	}
	s.invalidate(ctx, userID)
	return nil
}

// PostTurn validates the optional image and runs one generation turn.
func (s *Service) PostTurn(ctx context.Context, userID uint64, id, text string, image []byte) (*TurnResult, error) {
	imageURL, err := s.EncodeImage(image)
	if err != nil {
		return nil, err
	}
	return s.postTurn(ctx, userID, id, text, imageURL)
}

func (s *Service) postTurn(ctx context.Context, userID uint64, id, text, imageURL string) (*TurnResult, error) {
	if strings.TrimSpace(text) == "" && imageURL == "" {
		return nil, fmt.Errorf("content or image required: %w", ErrInvalidInput)
	}
	sess, err := s.repo.LoadOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	msg, comp, err := s.engine.SubmitTurn(ctx, sess, text, imageURL)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	return &TurnResult{Message: msg, Component: comp}, nil
}

// GetHistory lists every version of the session, newest first.
func (s *Service) GetHistory(ctx context.Context, userID uint64, id string) ([]Component, error) {
	sess, err := s.GetSession(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return ListHistory(sess), nil
}

func (s *Service) Revert(ctx context.Context, userID uint64, id string, index int) (*TurnResult, error) {
	sess, err := s.repo.LoadOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	msg, comp, err := s.engine.Revert(ctx, sess, index)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	return &TurnResult{Message: msg, Component: comp}, nil
}

// ResolveComponent returns the current component (version < 0) or
// History[version], for preview and export. A session without one is NotFound.
func (s *Service) ResolveComponent(ctx context.Context, userID uint64, id string, version int) (*Session, Component, error) {
	sess, err := s.GetSession(ctx, userID, id)
	if err != nil {
		return nil, Component{}, err
	}
	if version < 0 {
		if sess.Current.IsEmpty() {
			return nil, Component{}, fmt.Errorf("session %s has no component: %w", id, ErrNotFound)
		}
		return sess, sess.Current, nil
	}
	if version >= len(sess.History) {
		return nil, Component{}, fmt.Errorf("history index %d: %w", version, ErrNotFound)
	}
	return sess, sess.History[version].Component, nil
}

// ListHistory returns history plus the live component, sorted by timestamp descending.
func ListHistory(sess *Session) []Component {
	out := sess.Components()
	if !sess.Current.IsEmpty() {
		out = append(out, sess.Current)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// EncodeImage turns an upload into a data URL. Empty input means no image.
func (s *Service) EncodeImage(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	if int64(len(data)) > s.maxImageBytes {
		return "", fmt.Errorf("image larger than %d bytes: %w", s.maxImageBytes, ErrInvalidInput)
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("unsupported image type %s: %w", mt.String(), ErrInvalidInput)
	}
	// drop parameters such as "; charset=utf-8" from svg detection
	mime := strings.TrimSpace(strings.SplitN(mt.String(), ";", 2)[0])
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (s *Service) touch(ctx context.Context, sess *Session) error {
	at := s.now().UTC()
	if err := s.repo.Touch(ctx, sess.ID, at); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	sess.LastAccessed = at
	s.bumpCached(ctx, sess.UserID, sess.ID, at)
	return nil
}

// bumpCached moves a touched session to the front of the owner's cached
// summaries. Anything it cannot patch in place is invalidated instead.
func (s *Service) bumpCached(ctx context.Context, userID uint64, id string, at time.Time) {
	list, ok, err := s.cache.GetSummaries(ctx, userID)
	if err != nil {
		s.invalidate(ctx, userID)
		return
	}
	if !ok {
		return
	}
	i := slices.IndexFunc(list, func(sum SessionSummary) bool { return sum.ID == id })
	if i < 0 {
		s.invalidate(ctx, userID)
		return
	}
	list[i].LastAccessed = at
	sort.SliceStable(list, func(a, b int) bool { return list[a].LastAccessed.After(list[b].LastAccessed) })
	if err := s.cache.SetSummaries(ctx, userID, list); err != nil {
		logger.FromContext(ctx).Warn("summary cache set failed", zap.Uint64("user_id", userID), zap.Error(err))
		s.invalidate(ctx, userID)
	}
}

func (s *Service) invalidate(ctx context.Context, userID uint64) {
	if err := s.cache.InvalidateSummaries(ctx, userID); err != nil {
		logger.FromContext(ctx).Warn("summary cache invalidate failed", zap.Uint64("user_id", userID), zap.Error(err))
	}
}
