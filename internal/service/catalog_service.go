package service

import (
	"context"
	"fmt"
	"gamehub_backend/internal/config"
	"gamehub_backend/internal/model"
	"gamehub_backend/internal/repository"
	"gamehub_backend/internal/util"
	"gamehub_backend/pkg/logger"
	"gamehub_backend/pkg/monitoring"
	"gamehub_backend/pkg/tracing"
	"slices"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type SortKey string

const (
	SortNewest    SortKey = "newest"
	SortPopular   SortKey = "popular"
	SortRating    SortKey = "rating"
	SortPriceLow  SortKey = "price_low"
	SortPriceHigh SortKey = "price_high"
)

var sortOrders = map[SortKey]repository.OrderBy{
	SortNewest:    {Field: repository.FieldCreatedAt, Desc: true},
	SortPopular:   {Field: repository.FieldDownloadCount, Desc: true},
	SortRating:    {Field: repository.FieldRating, Desc: true},
	SortPriceLow:  {Field: repository.FieldPrice},
	SortPriceHigh: {Field: repository.FieldPrice, Desc: true},
}

// GameStore 目录查询的后端存储
type GameStore interface {
	Query(ctx context.Context, q repository.CatalogQuery) ([]model.Game, error)
	Capabilities() repository.StoreCapabilities
}

// FilterSpec 目录筛选条件。PriceMax 为 nil 表示不设上限，Cursor 为空表示第一页。
type FilterSpec struct {
	Search    string
	Genre     model.Genre
	Platform  model.Platform
	PriceMin  float64
	PriceMax  *float64
	IsFree    *bool
	MinRating float64
	SortBy    SortKey
	Tags      []string
	PageSize  int
	Cursor    string
}

type CatalogPage struct {
	Records    []model.Game `json:"records"`
	NextCursor string       `json:"nextCursor"`
}

type CatalogService struct {
	Store GameStore

	mu              sync.RWMutex
	defaultPageSize int
	maxPageSize     int
}

func NewCatalogService(store GameStore, cfg config.CatalogConfig) *CatalogService {
	s := &CatalogService{Store: store}
	s.ApplyConfig(cfg)
	return s
}

// ApplyConfig 热更新分页大小
func (s *CatalogService) ApplyConfig(cfg config.CatalogConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultPageSize = cfg.DefaultPageSize
	s.maxPageSize = cfg.MaxPageSize
}

func (s *CatalogService) DefaultPageSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultPageSize
}

func (s *CatalogService) MaxPageSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxPageSize
}

// FetchPage 按筛选条件返回一页已发布的游戏。
// 存储层无法表达的条件在本页内过滤，页面可能少于 PageSize 条，不会为此追加查询。
func (s *CatalogService) FetchPage(ctx context.Context, spec FilterSpec) (*CatalogPage, error) {
	ctx, span := tracing.Tracer.Start(ctx, "CatalogService.FetchPage")
	defer span.End()

	spec, err := s.normalize(spec)
	if err != nil {
		monitoring.CatalogQueries.WithLabelValues("", "invalid").Inc()
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("catalog.sort", string(spec.SortBy)),
		attribute.Int("catalog.page_size", spec.PageSize),
	)

	q, residualTags, err := s.buildQuery(spec)
	if err != nil {
		monitoring.CatalogQueries.WithLabelValues(string(spec.SortBy), "invalid").Inc()
		return nil, err
	}

	rows, err := s.Store.Query(ctx, q)
	if err != nil {
		monitoring.CatalogQueries.WithLabelValues(string(spec.SortBy), "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "store query failed")
		logger.Log.Error("Catalog query failed", zap.String("sort", string(spec.SortBy)), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", util.ErrCatalogUnavailable, err)
	}

	page := &CatalogPage{Records: []model.Game{}}
	if len(rows) > spec.PageSize {
		rows = rows[:spec.PageSize]
		page.NextCursor = encodeCursor(spec.SortBy, q.Order, &rows[len(rows)-1])
	}

	for i := range rows {
		if matchesResidual(&rows[i], spec, residualTags) {
			page.Records = append(page.Records, rows[i])
		}
	}
	if dropped := len(rows) - len(page.Records); dropped > 0 {
		monitoring.CatalogFilteredOut.Add(float64(dropped))
	}

	switch spec.SortBy {
	case SortPriceLow:
		slices.SortStableFunc(page.Records, func(a, b model.Game) int { return compareFloat(a.Price, b.Price) })
	case SortPriceHigh:
		slices.SortStableFunc(page.Records, func(a, b model.Game) int { return compareFloat(b.Price, a.Price) })
	}

	monitoring.CatalogQueries.WithLabelValues(string(spec.SortBy), "ok").Inc()
	span.SetAttributes(attribute.Int("catalog.records", len(page.Records)))
	return page, nil
}

func (s *CatalogService) normalize(spec FilterSpec) (FilterSpec, error) {
	invalid := func(format string, args ...any) (FilterSpec, error) {
		return spec, fmt.Errorf("%w: %s", util.ErrInvalidFilterSpec, fmt.Sprintf(format, args...))
	}

	if spec.SortBy == "" {
		spec.SortBy = SortNewest
	}
	if _, ok := sortOrders[spec.SortBy]; !ok {
		return invalid("unknown sort %q", spec.SortBy)
	}
	maxSize := s.MaxPageSize()
	if spec.PageSize <= 0 || spec.PageSize > maxSize {
		return invalid("pageSize must be between 1 and %d", maxSize)
	}
	if spec.PriceMin < 0 {
		return invalid("priceMin must not be negative")
	}
	if spec.PriceMax != nil {
		if *spec.PriceMax < 0 {
			return invalid("priceMax must not be negative")
		}
		if spec.PriceMin > *spec.PriceMax {
			return invalid("priceMin exceeds priceMax")
		}
	}
	if spec.MinRating < 0 || spec.MinRating > model.MaxRating {
		return invalid("rating must be between 0 and %d", model.MaxRating)
	}
	if spec.Genre != "" && !spec.Genre.Valid() {
		return invalid("unknown genre %q", spec.Genre)
	}
	if spec.Platform != "" && !spec.Platform.Valid() {
		return invalid("unknown platform %q", spec.Platform)
	}

	var tags []string
	for _, t := range spec.Tags {
		if t = strings.TrimSpace(t); t != "" && !slices.Contains(tags, t) {
			tags = append(tags, t)
		}
	}
	spec.Tags = tags
	spec.Search = strings.TrimSpace(spec.Search)
	return spec, nil
}

// buildQuery 生成下推查询，返回存储层容纳不下、需在内存中过滤的标签
func (s *CatalogService) buildQuery(spec FilterSpec) (repository.CatalogQuery, []string, error) {
	q := repository.CatalogQuery{
		Predicates: []repository.Predicate{
			{Field: repository.FieldStatus, Op: repository.OpEq, Value: string(model.StatusPublished)},
		},
		Order: sortOrders[spec.SortBy],
		Limit: spec.PageSize + 1,
	}

	if spec.Genre != "" {
		q.Predicates = append(q.Predicates, repository.Predicate{
			Field: repository.FieldGenre, Op: repository.OpEq, Value: string(spec.Genre),
		})
	}
	if spec.Platform != "" {
		q.Predicates = append(q.Predicates, repository.Predicate{
			Field: repository.FieldPlatforms, Op: repository.OpArrayContains, Value: string(spec.Platform),
		})
	}
	if spec.IsFree != nil {
		q.Predicates = append(q.Predicates, repository.Predicate{
			Field: repository.FieldIsFree, Op: repository.OpEq, Value: *spec.IsFree,
		})
	}

	pushable := len(spec.Tags)
	if limit := s.Store.Capabilities().ArrayContainsLimit; limit > 0 {
		pushable = max(0, min(pushable, limit-q.ArrayContainsCount()))
	}
	for _, t := range spec.Tags[:pushable] {
		q.Predicates = append(q.Predicates, repository.Predicate{
			Field: repository.FieldTags, Op: repository.OpArrayContains, Value: t,
		})
	}

	if spec.Cursor != "" {
		after, err := decodeCursor(spec.Cursor, spec.SortBy)
		if err != nil {
			return q, nil, err
		}
		q.After = after
	}
	return q, spec.Tags[pushable:], nil
}

func matchesResidual(g *model.Game, spec FilterSpec, tags []string) bool {
	if g.Status != model.StatusPublished {
		return false
	}
	if spec.Platform != "" && !g.SupportsPlatform(spec.Platform) {
		return false
	}
	if spec.Search != "" && !matchesSearch(g, strings.ToLower(spec.Search)) {
		return false
	}
	for _, t := range tags {
		if !g.HasTag(t) {
			return false
		}
	}
	if g.Price < spec.PriceMin {
		return false
	}
	if spec.PriceMax != nil && g.Price > *spec.PriceMax {
		return false
	}
	return g.Rating >= spec.MinRating
}

func matchesSearch(g *model.Game, term string) bool {
	if strings.Contains(strings.ToLower(g.Title), term) ||
		strings.Contains(strings.ToLower(g.Developer), term) {
		return true
	}
	for _, t := range g.Tags {
		if strings.Contains(strings.ToLower(t), term) {
			return true
		}
	}
	return false
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
