// Package app assembles the studio service shared by the API server and the worker.
package app

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/suPer8Hu/ai-component-studio/internal/ai"
	"github.com/suPer8Hu/ai-component-studio/internal/config"
	"github.com/suPer8Hu/ai-component-studio/internal/generator"
	"github.com/suPer8Hu/ai-component-studio/internal/logger"
	"github.com/suPer8Hu/ai-component-studio/internal/store/memcache"
	"github.com/suPer8Hu/ai-component-studio/internal/store/redisstore"
	"github.com/suPer8Hu/ai-component-studio/internal/studio"
)

// Studio is the wired service plus whatever needs closing on shutdown.
type Studio struct {
	Svc   *studio.Service
	Redis *redisstore.Store // nil when the LRU fallback is in use
}

func (s *Studio) Close() {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
}

func NewStudio(ctx context.Context, cfg config.Config, gdb *gorm.DB) *Studio {
	reg := ai.NewRegistry()
	ai.RegisterDefaults(reg, cfg)
	gen := generator.New(reg, cfg.AIProvider, cfg.AIModel)

	repo := studio.NewRepo(gdb)
	engine := studio.NewEngine(gen, repo, cfg.ChatContextWindowSize)

	out := &Studio{}
	var cache studio.SummaryCache
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		rds, err := redisstore.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SummaryCacheTTL)
		if err != nil {
			logger.L().Warn("redis unavailable, using in-process summary cache", zap.Error(err))
		} else {
			out.Redis = rds
			cache = rds
		}
	}
	if cache == nil {
		cache = memcache.NewSummaryCache(cfg.SummaryCacheSize, cfg.SummaryCacheTTL)
	}

	out.Svc = studio.NewService(repo, engine, cache, cfg.MaxImageBytes)
	out.Svc.SetJobStaleAfter(cfg.AITimeout + 2*time.Minute)
	logger.L().Info("studio ready",
		zap.String("ai_provider", cfg.AIProvider),
		zap.String("ai_model", cfg.AIModel),
		zap.Strings("registered_providers", reg.Names()),
		zap.Bool("redis_cache", out.Redis != nil),
	)
	return out
}
