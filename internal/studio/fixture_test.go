package studio

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/suPer8Hu/ai-component-studio/internal/generator"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&Session{}, &Message{}, &HistoryEntry{}, &Job{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type generateCall struct {
	prompt   string
	previous *generator.Source
	recent   []generator.Turn
}

// fakeGenerator returns replies in order, repeating the last one.
type fakeGenerator struct {
	mu      sync.Mutex
	replies []generator.Source
	calls   []generateCall
	// during runs inside Generate, e.g. to cancel the turn's context
	during func()
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string, previous *generator.Source, recent []generator.Turn) generator.Source {
	_ = ctx
	if g.during != nil {
		g.during()
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	call := generateCall{prompt: prompt, recent: append([]generator.Turn(nil), recent...)}
	if previous != nil {
		p := *previous
		call.previous = &p
	}
	g.calls = append(g.calls, call)

	if len(g.replies) == 0 {
		return generator.Source{JSX: fmt.Sprintf("export default function C%d(){return null}", len(g.calls))}
	}
	i := len(g.calls) - 1
	if i >= len(g.replies) {
		i = len(g.replies) - 1
	}
	return g.replies[i]
}

func (g *fakeGenerator) lastCall() generateCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[len(g.calls)-1]
}

// mapCache is an in-memory SummaryCache that counts invalidations.
type mapCache struct {
	mu            sync.Mutex
	m             map[uint64][]SessionSummary
	invalidations int
}

func newMapCache() *mapCache { return &mapCache{m: map[uint64][]SessionSummary{}} }

func (c *mapCache) GetSummaries(_ context.Context, userID uint64) ([]SessionSummary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[userID]
	return v, ok, nil
}

func (c *mapCache) SetSummaries(_ context.Context, userID uint64, list []SessionSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[userID] = list
	return nil
}

func (c *mapCache) InvalidateSummaries(_ context.Context, userID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, userID)
	c.invalidations++
	return nil
}

type fixture struct {
	db    *gorm.DB
	repo  *Repo
	gen   *fakeGenerator
	cache *mapCache
	svc   *Service
}

func newFixture(t *testing.T, replies ...generator.Source) *fixture {
	t.Helper()
	db := openTestDB(t)
	repo := NewRepo(db)
	gen := &fakeGenerator{replies: replies}
	cache := newMapCache()
	svc := NewService(repo, NewEngine(gen, repo, 10), cache, 1024)
	return &fixture{db: db, repo: repo, gen: gen, cache: cache, svc: svc}
}

func (f *fixture) mustCreate(t *testing.T, owner uint64) *Session {
	t.Helper()
	s, err := f.svc.CreateSession(context.Background(), owner, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return s
}

func (f *fixture) mustLoad(t *testing.T, id string) *Session {
	t.Helper()
	s, err := f.repo.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	return s
}
