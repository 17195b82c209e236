package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/tirewatch/backend/internal/domain"
	"golang.org/x/sync/errgroup"
)

// ComparisonServiceConfig holds configuration for the comparison service
type ComparisonServiceConfig struct {
	CacheTTL           time.Duration
	Workers            int
	SuggestMinScore    float64
	EnableDebugLogging bool
}

// ComparisonService runs normalization and reconciliation with caching and snapshots
type ComparisonService struct {
	cache              domain.CacheRepository
	catalog            domain.CatalogClient
	snapshots          domain.SnapshotRepository
	builder            *RecordBuilder
	suggester          *RuleSuggester
	cacheTTL           time.Duration
	workers            int
	enableDebugLogging bool
	now                func() time.Time
}

// fieldErrorKeys names the field failures counted in BatchSummary.FieldErrors
var fieldErrorKeys = []struct {
	err error
	key string
}{
	{domain.ErrSpecFormat, "spec_format"},
	{domain.ErrIncompleteSpec, "incomplete_spec"},
	{domain.ErrPriceFormat, "price_format"},
}

// NewComparisonService creates a new comparison service with dependencies.
// catalog and snapshots may be nil; requests that need them then fail.
func NewComparisonService(
	cache domain.CacheRepository,
	catalog domain.CatalogClient,
	snapshots domain.SnapshotRepository,
	builder *RecordBuilder,
	config ComparisonServiceConfig,
) *ComparisonService {
	if builder == nil {
		builder = NewRecordBuilder(nil, config.EnableDebugLogging)
	}

	cacheTTL := config.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 6 * time.Hour
	}

	workers := config.Workers
	if workers <= 0 {
		workers = 4
	}

	return &ComparisonService{
		cache:     cache,
		catalog:   catalog,
		snapshots: snapshots,
		builder:   builder,
		suggester: NewRuleSuggester(SuggestConfig{
			MinScore:           config.SuggestMinScore,
			EnableDebugLogging: config.EnableDebugLogging,
		}),
		cacheTTL:           cacheTTL,
		workers:            workers,
		enableDebugLogging: config.EnableDebugLogging,
		now:                time.Now,
	}
}

// RulesVersion returns the version of the rule tables in use
func (s *ComparisonService) RulesVersion() string {
	return s.builder.RulesVersion()
}

// BuildBatch normalizes one source's fragments in parallel. Output keeps the
// input order so occurrence indexes match encounter order.
func (s *ComparisonService) BuildBatch(
	ctx context.Context,
	source domain.Source,
	fragments []domain.RawFragment,
	referenceNames domain.NameSet,
) ([]domain.CanonicalProduct, domain.BatchSummary, error) {
	summary := domain.BatchSummary{Source: source, FragmentsIn: len(fragments)}

	products := make([]*domain.CanonicalProduct, len(fragments))
	errs := make([]error, len(fragments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range fragments {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f := fragments[i]
			if f.Source == "" {
				f.Source = source
			}
			products[i], errs[i] = s.builder.BuildRecord(f, referenceNames)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, summary, err
	}

	records := make([]domain.CanonicalProduct, 0, len(fragments))
	for i, p := range products {
		if p == nil {
			s.drop(&summary, domain.DropMissingName, fragments[i], errs[i])
			continue
		}
		if errs[i] != nil {
			s.countFieldErrors(&summary, errs[i])
			log.WithFields(log.Fields{
				"source": source,
				"sku":    p.SKUName,
			}).WithError(errs[i]).Warn("field parse failed")
		}
		records = append(records, *p)
	}
	summary.RecordsOut = len(records)

	return records, summary, nil
}

// ReferenceProducts builds the reference side from fragments when given, else from the catalog
func (s *ComparisonService) ReferenceProducts(
	ctx context.Context,
	fragments []domain.RawFragment,
) ([]domain.CanonicalProduct, domain.BatchSummary, error) {
	if len(fragments) > 0 {
		return s.BuildBatch(ctx, domain.SourceReference, fragments, nil)
	}

	if s.catalog == nil {
		return nil, domain.BatchSummary{}, fmt.Errorf("%w: no reference fragments and no catalog configured", domain.ErrInvalidRequest)
	}

	rows, err := s.catalog.FetchCatalog(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrCatalogFailure) {
			return nil, domain.BatchSummary{}, err
		}
		return nil, domain.BatchSummary{}, fmt.Errorf("%w: %v", domain.ErrCatalogFailure, err)
	}

	summary := domain.BatchSummary{Source: domain.SourceReference, FragmentsIn: len(rows)}
	products := make([]domain.CanonicalProduct, 0, len(rows))
	for _, row := range rows {
		p, err := s.builder.BuildCatalogRecord(row)
		if p == nil {
			s.drop(&summary, domain.DropMissingName, domain.RawFragment{Source: domain.SourceReference, Name: row.Pattern}, err)
			continue
		}
		if err != nil {
			s.countFieldErrors(&summary, err)
			log.WithField("sku", p.SKUName).WithError(err).Warn("catalog field parse failed")
		}
		products = append(products, *p)
	}
	summary.RecordsOut = len(products)

	return products, summary, nil
}

// Compare runs a full comparison.
// Flow: check cache -> build reference -> build competitors -> reconcile -> suggest -> snapshot -> cache
func (s *ComparisonService) Compare(ctx context.Context, request *domain.CompareRequest) (*domain.ComparisonResult, error) {
	if request == nil || len(request.Competitors) == 0 {
		return nil, domain.ErrInvalidRequest
	}

	cacheKey, err := s.generateCacheKey(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	// Saved runs always recompute so each snapshot reflects its own run
	if !request.Save {
		if cached, err := s.getFromCache(ctx, cacheKey); err == nil {
			result := *cached
			result.Source = "cache"
			return &result, nil
		}
	}

	reference, refSummary, err := s.ReferenceProducts(ctx, request.Reference)
	if err != nil {
		return nil, err
	}

	refNames := make(domain.NameSet, len(reference))
	for _, p := range reference {
		if p.Name != "" {
			refNames[p.Name] = struct{}{}
		}
	}

	competitors := make(map[domain.Source][]domain.CanonicalProduct, len(request.Competitors))
	summaries := []domain.BatchSummary{refSummary}
	for _, source := range sortedRequestSources(request.Competitors) {
		records, summary, err := s.BuildBatch(ctx, source, request.Competitors[source], refNames)
		if err != nil {
			return nil, err
		}
		competitors[source] = records
		summaries = append(summaries, summary)
	}

	rows := Reconcile(reference, competitors)

	suggestions, err := s.suggest(ctx, competitors, refNames)
	if err != nil {
		return nil, err
	}

	result := &domain.ComparisonResult{
		Rows:         rows,
		Sources:      CompetitorSources(competitors),
		Summaries:    summaries,
		Suggestions:  suggestions,
		RulesVersion: s.builder.RulesVersion(),
		GeneratedAt:  s.now().UTC(),
		Source:       "computed",
	}

	if s.enableDebugLogging {
		log.WithFields(log.Fields{
			"reference":   len(reference),
			"sources":     len(result.Sources),
			"rows":        len(rows),
			"suggestions": len(suggestions),
		}).Debug("comparison computed")
	}

	if request.Save {
		id, err := s.saveSnapshot(ctx, result)
		if err != nil {
			return nil, err
		}
		result.SnapshotID = id
	}

	if err := s.setInCache(ctx, cacheKey, result); err != nil {
		log.WithError(err).Warn("caching comparison failed")
	}

	return result, nil
}

// ListSnapshots returns the most recent snapshots, newest first
func (s *ComparisonService) ListSnapshots(ctx context.Context, limit int) ([]domain.SnapshotInfo, error) {
	if s.snapshots == nil {
		return nil, domain.ErrSnapshotNotFound
	}
	if limit <= 0 {
		limit = 20
	}
	return s.snapshots.List(ctx, limit)
}

// GetSnapshot returns one snapshot by id
func (s *ComparisonService) GetSnapshot(ctx context.Context, id string) (*domain.Snapshot, error) {
	if id == "" {
		return nil, domain.ErrInvalidRequest
	}
	if s.snapshots == nil {
		return nil, domain.ErrSnapshotNotFound
	}
	return s.snapshots.Get(ctx, id)
}

// LatestSnapshot returns the newest snapshot
func (s *ComparisonService) LatestSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	if s.snapshots == nil {
		return nil, domain.ErrSnapshotNotFound
	}
	return s.snapshots.Latest(ctx)
}

// suggest collects competitor names missing from the reference set and proposes rules for them
func (s *ComparisonService) suggest(
	ctx context.Context,
	competitors map[domain.Source][]domain.CanonicalProduct,
	refNames domain.NameSet,
) ([]domain.RuleSuggestion, error) {
	var all []domain.RuleSuggestion
	for _, source := range CompetitorSources(competitors) {
		var unresolved []string
		for _, p := range competitors[source] {
			if p.Name != "" && !refNames.Contains(p.Name) {
				unresolved = append(unresolved, p.Name)
			}
		}
		suggestions, err := s.suggester.Suggest(ctx, source, unresolved, refNames)
		if err != nil {
			return nil, err
		}
		all = append(all, suggestions...)
	}
	return all, nil
}

func (s *ComparisonService) saveSnapshot(ctx context.Context, result *domain.ComparisonResult) (string, error) {
	if s.snapshots == nil {
		return "", fmt.Errorf("%w: snapshot store not configured", domain.ErrInvalidRequest)
	}

	snapshot := &domain.Snapshot{
		ID:           uuid.NewString(),
		TakenOn:      result.GeneratedAt.Format(time.DateOnly),
		CreatedAt:    result.GeneratedAt,
		RulesVersion: result.RulesVersion,
		Sources:      result.Sources,
		Rows:         result.Rows,
		Summaries:    result.Summaries,
	}
	if err := s.snapshots.Save(ctx, snapshot); err != nil {
		return "", fmt.Errorf("saving snapshot: %w", err)
	}

	log.WithFields(log.Fields{
		"id":   snapshot.ID,
		"rows": len(snapshot.Rows),
	}).Info("snapshot saved")

	return snapshot.ID, nil
}

func (s *ComparisonService) drop(summary *domain.BatchSummary, reason string, fragment domain.RawFragment, err error) {
	summary.Dropped++
	if summary.DropReasons == nil {
		summary.DropReasons = make(map[string]int)
	}
	summary.DropReasons[reason]++

	log.WithFields(log.Fields{
		"source": fragment.Source,
		"reason": reason,
		"info":   fragment.Info,
	}).WithError(err).Info("fragment dropped")
}

func (s *ComparisonService) countFieldErrors(summary *domain.BatchSummary, err error) {
	if summary.FieldErrors == nil {
		summary.FieldErrors = make(map[string]int)
	}
	for _, fe := range fieldErrorKeys {
		if errors.Is(err, fe.err) {
			summary.FieldErrors[fe.key]++
		}
	}
}

// generateCacheKey hashes the request together with the rules version.
// Format: "comparison:{rules_version}:{sha1}"
func (s *ComparisonService) generateCacheKey(request *domain.CompareRequest) (string, error) {
	body, err := json.Marshal(struct {
		Reference   []domain.RawFragment
		Competitors map[domain.Source][]domain.RawFragment
	}{request.Reference, request.Competitors})
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(body)
	return fmt.Sprintf("comparison:%s:%s", s.builder.RulesVersion(), hex.EncodeToString(sum[:])), nil
}

// getFromCache retrieves a comparison result from cache
func (s *ComparisonService) getFromCache(ctx context.Context, key string) (*domain.ComparisonResult, error) {
	if s.cache == nil {
		return nil, domain.ErrCacheMiss
	}
	value, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	switch v := value.(type) {
	case *domain.ComparisonResult:
		return v, nil
	case json.RawMessage:
		var result domain.ComparisonResult
		if err := json.Unmarshal(v, &result); err != nil {
			return nil, domain.ErrCacheMiss
		}
		return &result, nil
	default:
		return nil, domain.ErrCacheMiss
	}
}

// setInCache stores a comparison result in cache
func (s *ComparisonService) setInCache(ctx context.Context, key string, result *domain.ComparisonResult) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Set(ctx, key, result, s.cacheTTL)
}

func sortedRequestSources(competitors map[domain.Source][]domain.RawFragment) []domain.Source {
	keyed := make(map[domain.Source][]domain.CanonicalProduct, len(competitors))
	for s := range competitors {
		keyed[s] = nil
	}
	return CompetitorSources(keyed)
}
