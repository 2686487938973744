package service

import (
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/medrecord/record-module/internal/domain/model"
)

// Метрики кэша записей.
var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_cache_hits_total",
		Help: "Количество попаданий в кэш записей.",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_cache_misses_total",
		Help: "Количество промахов кэша записей.",
	})
)

// CacheService — LRU-кэш записей по content id с TTL.
// Снижает нагрузку на PostgreSQL при повторных проверках одной записи.
type CacheService struct {
	cache  *expirable.LRU[string, *model.Record]
	logger *slog.Logger
}

// NewCacheService создаёт кэш записей.
// size — максимальное количество элементов, ttl — время жизни элемента.
func NewCacheService(size int, ttl time.Duration, logger *slog.Logger) *CacheService {
	return &CacheService{
		cache:  expirable.NewLRU[string, *model.Record](size, nil, ttl),
		logger: logger,
	}
}

// Get возвращает запись из кэша по content id.
func (s *CacheService) Get(contentID string) (*model.Record, bool) {
	rec, ok := s.cache.Get(contentID)
	if ok {
		cacheHits.Inc()
		s.logger.Debug("Попадание в кэш записей", slog.String("content_id", contentID))
		return rec, true
	}
	cacheMisses.Inc()
	return nil, false
}

// Set сохраняет запись в кэш по content id.
func (s *CacheService) Set(contentID string, rec *model.Record) {
	s.cache.Add(contentID, rec)
}

// Invalidate удаляет запись из кэша.
// Вызывается при подмене контента: старый content id больше не
// должен отдаваться из кэша.
func (s *CacheService) Invalidate(contentID string) {
	s.cache.Remove(contentID)
}

// Len возвращает текущее количество элементов в кэше.
func (s *CacheService) Len() int {
	return s.cache.Len()
}
