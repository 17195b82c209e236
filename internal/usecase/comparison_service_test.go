package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tirewatch/backend/internal/domain"
)

// MockCacheRepository is a mock implementation of domain.CacheRepository
type MockCacheRepository struct {
	data      map[string]interface{}
	getError  error
	setError  error
	getCalled bool
	setCalled bool
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		data: make(map[string]interface{}),
	}
}

func (m *MockCacheRepository) Get(ctx context.Context, key string) (interface{}, error) {
	m.getCalled = true
	if m.getError != nil {
		return nil, m.getError
	}
	if value, ok := m.data[key]; ok {
		return value, nil
	}
	return nil, domain.ErrCacheMiss
}

func (m *MockCacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.setCalled = true
	if m.setError != nil {
		return m.setError
	}
	m.data[key] = value
	return nil
}

func (m *MockCacheRepository) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m *MockCacheRepository) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.data[key]
	return ok, nil
}

// MockCatalogClient is a mock implementation of domain.CatalogClient
type MockCatalogClient struct {
	rows  []domain.CatalogRow
	err   error
	calls int
}

func (m *MockCatalogClient) FetchCatalog(ctx context.Context) ([]domain.CatalogRow, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.rows, nil
}

// MockSnapshotRepository is a mock implementation of domain.SnapshotRepository
type MockSnapshotRepository struct {
	saved   map[string]*domain.Snapshot
	saveErr error
}

func NewMockSnapshotRepository() *MockSnapshotRepository {
	return &MockSnapshotRepository{saved: make(map[string]*domain.Snapshot)}
}

func (m *MockSnapshotRepository) Save(ctx context.Context, snapshot *domain.Snapshot) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved[snapshot.ID] = snapshot
	return nil
}

func (m *MockSnapshotRepository) Get(ctx context.Context, id string) (*domain.Snapshot, error) {
	if s, ok := m.saved[id]; ok {
		return s, nil
	}
	return nil, domain.ErrSnapshotNotFound
}

func (m *MockSnapshotRepository) Latest(ctx context.Context) (*domain.Snapshot, error) {
	var latest *domain.Snapshot
	for _, s := range m.saved {
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, domain.ErrSnapshotNotFound
	}
	return latest, nil
}

func (m *MockSnapshotRepository) List(ctx context.Context, limit int) ([]domain.SnapshotInfo, error) {
	infos := make([]domain.SnapshotInfo, 0, len(m.saved))
	for _, s := range m.saved {
		infos = append(infos, domain.SnapshotInfo{ID: s.ID, TakenOn: s.TakenOn, CreatedAt: s.CreatedAt, RowCount: len(s.Rows)})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.After(infos[j].CreatedAt) })
	if len(infos) > limit {
		infos = infos[:limit]
	}
	return infos, nil
}

func opatRequest() *domain.CompareRequest {
	return &domain.CompareRequest{
		Reference: []domain.RawFragment{
			{Name: "OPEN COUNTRY A/T", Info: "265/65 R17 TOYO", Price: "₱10,000.00"},
			{Name: "PROXES CF2", Info: "205/55R16 TOYO", Price: "₱5,200.00"},
		},
		Competitors: map[domain.Source][]domain.RawFragment{
			"gogulong": {
				{Name: "TOYO OPAT 265/65R17 112S", Price: "₱9,500.00"},
				{Name: "", Info: "Promo"},
			},
			"partspro": {
				{Name: "Proxes CF2", Info: "205/55R16 TOYO", Price: "₱5,000"},
				{Name: "Proxes CF2", Info: "205/55R16 TOYO", Price: "sold out"},
			},
		},
	}
}

func TestNewComparisonService(t *testing.T) {
	t.Run("creates service with default values", func(t *testing.T) {
		svc := NewComparisonService(nil, nil, nil, nil, ComparisonServiceConfig{})
		if svc == nil {
			t.Fatal("expected service to be created")
		}
		if svc.cacheTTL != 6*time.Hour {
			t.Errorf("cacheTTL = %v, want 6h", svc.cacheTTL)
		}
		if svc.workers != 4 {
			t.Errorf("workers = %d, want 4", svc.workers)
		}
		if svc.RulesVersion() != DefaultRuleTables().Version {
			t.Errorf("RulesVersion() = %q, want embedded version", svc.RulesVersion())
		}
	})

	t.Run("creates service with custom values", func(t *testing.T) {
		svc := NewComparisonService(nil, nil, nil, nil, ComparisonServiceConfig{
			CacheTTL: time.Hour,
			Workers:  8,
		})
		if svc.cacheTTL != time.Hour || svc.workers != 8 {
			t.Errorf("got ttl=%v workers=%d, want 1h and 8", svc.cacheTTL, svc.workers)
		}
	})
}

func TestBuildBatch(t *testing.T) {
	svc := NewComparisonService(nil, nil, nil, nil, ComparisonServiceConfig{Workers: 3})
	ctx := context.Background()

	fragments := make([]domain.RawFragment, 0, 12)
	for i := 0; i < 10; i++ {
		fragments = append(fragments, domain.RawFragment{
			Name:  fmt.Sprintf("MODEL %02d", i),
			Info:  "205/55R16 TOYO",
			Price: fmt.Sprintf("₱%d", 1000+i),
		})
	}
	fragments = append(fragments,
		domain.RawFragment{Name: "  ", Info: "Promo"},
		domain.RawFragment{Name: "MODEL 99", Info: "205/55 TOYO", Price: "n/a"},
	)

	records, summary, err := svc.BuildBatch(ctx, "gogulong", fragments, nil)
	require.NoError(t, err)

	assert.Len(t, records, 11)
	for i := 0; i < 10; i++ {
		assert.Equal(t, fmt.Sprintf("MODEL %02d", i), records[i].Name, "order must follow input")
		assert.Equal(t, domain.Source("gogulong"), records[i].Source)
	}

	assert.Equal(t, domain.Source("gogulong"), summary.Source)
	assert.Equal(t, 12, summary.FragmentsIn)
	assert.Equal(t, 11, summary.RecordsOut)
	assert.Equal(t, 1, summary.Dropped)
	assert.Equal(t, map[string]int{domain.DropMissingName: 1}, summary.DropReasons)
	assert.Equal(t, map[string]int{"spec_format": 1, "price_format": 1}, summary.FieldErrors)
}

func TestBuildBatch_Cancelled(t *testing.T) {
	svc := NewComparisonService(nil, nil, nil, nil, ComparisonServiceConfig{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := svc.BuildBatch(ctx, "gogulong", []domain.RawFragment{{Name: "OPAT"}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompare(t *testing.T) {
	ctx := context.Background()

	t.Run("returns error for nil request", func(t *testing.T) {
		svc := NewComparisonService(NewMockCacheRepository(), nil, nil, nil, ComparisonServiceConfig{})
		_, err := svc.Compare(ctx, nil)
		if !errors.Is(err, domain.ErrInvalidRequest) {
			t.Errorf("error = %v, want ErrInvalidRequest", err)
		}
	})

	t.Run("returns error without competitors", func(t *testing.T) {
		svc := NewComparisonService(NewMockCacheRepository(), nil, nil, nil, ComparisonServiceConfig{})
		_, err := svc.Compare(ctx, &domain.CompareRequest{Reference: opatRequest().Reference})
		if !errors.Is(err, domain.ErrInvalidRequest) {
			t.Errorf("error = %v, want ErrInvalidRequest", err)
		}
	})

	t.Run("joins OPAT against OPEN COUNTRY A/T", func(t *testing.T) {
		svc := NewComparisonService(NewMockCacheRepository(), nil, nil, nil, ComparisonServiceConfig{})

		result, err := svc.Compare(ctx, opatRequest())
		require.NoError(t, err)

		assert.Equal(t, "computed", result.Source)
		assert.Equal(t, []domain.Source{"gogulong", "partspro"}, result.Sources)
		require.Len(t, result.Rows, 2)

		proxes := result.Rows[0]
		assert.Equal(t, "TOYO 205/55R16 PROXES CF2", proxes.SKUName)
		assert.False(t, proxes.Prices["gogulong"].Valid)
		assert.True(t, proxes.Prices["partspro"].Decimal.Equal(decimal.NewFromInt(5000)))

		opat := result.Rows[1]
		assert.Equal(t, "OPEN COUNTRY AT", opat.Name)
		assert.Equal(t, "265/65/17", opat.Spec)
		assert.True(t, opat.ReferencePrice.Decimal.Equal(decimal.NewFromInt(10000)))
		assert.True(t, opat.Prices["gogulong"].Decimal.Equal(decimal.NewFromInt(9500)))
		assert.False(t, opat.Prices["partspro"].Valid)

		require.Len(t, result.Summaries, 3)
		assert.Equal(t, domain.SourceReference, result.Summaries[0].Source)
		assert.Equal(t, 1, result.Summaries[1].Dropped)
		assert.Equal(t, 1, result.Summaries[2].FieldErrors["price_format"])
	})

	t.Run("serves repeated request from cache", func(t *testing.T) {
		cache := NewMockCacheRepository()
		svc := NewComparisonService(cache, nil, nil, nil, ComparisonServiceConfig{})

		first, err := svc.Compare(ctx, opatRequest())
		require.NoError(t, err)
		assert.True(t, cache.setCalled)

		second, err := svc.Compare(ctx, opatRequest())
		require.NoError(t, err)
		assert.Equal(t, "cache", second.Source)
		assert.Equal(t, "computed", first.Source)
		assert.Len(t, second.Rows, len(first.Rows))
	})

	t.Run("cache failure does not fail the request", func(t *testing.T) {
		cache := NewMockCacheRepository()
		cache.setError = errors.New("cache down")
		svc := NewComparisonService(cache, nil, nil, nil, ComparisonServiceConfig{})

		result, err := svc.Compare(ctx, opatRequest())
		require.NoError(t, err)
		assert.Len(t, result.Rows, 2)
	})

	t.Run("falls back to the catalog", func(t *testing.T) {
		catalog := &MockCatalogClient{rows: []domain.CatalogRow{
			{Pattern: "Open Country A/T", Make: "Toyo", SectionWidth: "265", AspectRatio: "65", RimSize: "17", Price: "10000", Active: true},
			{Pattern: "", Make: "Toyo"},
		}}
		svc := NewComparisonService(NewMockCacheRepository(), catalog, nil, nil, ComparisonServiceConfig{})

		req := opatRequest()
		req.Reference = nil
		result, err := svc.Compare(ctx, req)
		require.NoError(t, err)

		assert.Equal(t, 1, catalog.calls)
		require.Len(t, result.Rows, 1)
		assert.Equal(t, "TOYO 265/65/17 OPEN COUNTRY AT", result.Rows[0].SKUName)
		assert.Equal(t, 1, result.Summaries[0].Dropped)
	})

	t.Run("wraps catalog failures", func(t *testing.T) {
		catalog := &MockCatalogClient{err: errors.New("connection refused")}
		svc := NewComparisonService(NewMockCacheRepository(), catalog, nil, nil, ComparisonServiceConfig{})

		req := opatRequest()
		req.Reference = nil
		_, err := svc.Compare(ctx, req)
		if !errors.Is(err, domain.ErrCatalogFailure) {
			t.Errorf("error = %v, want ErrCatalogFailure", err)
		}
	})

	t.Run("needs reference or catalog", func(t *testing.T) {
		svc := NewComparisonService(NewMockCacheRepository(), nil, nil, nil, ComparisonServiceConfig{})

		req := opatRequest()
		req.Reference = nil
		_, err := svc.Compare(ctx, req)
		if !errors.Is(err, domain.ErrInvalidRequest) {
			t.Errorf("error = %v, want ErrInvalidRequest", err)
		}
	})

	t.Run("saves a snapshot", func(t *testing.T) {
		snapshots := NewMockSnapshotRepository()
		svc := NewComparisonService(NewMockCacheRepository(), nil, snapshots, nil, ComparisonServiceConfig{})
		svc.now = func() time.Time { return time.Date(2022, 8, 10, 9, 30, 0, 0, time.UTC) }

		req := opatRequest()
		req.Save = true
		result, err := svc.Compare(ctx, req)
		require.NoError(t, err)
		require.NotEmpty(t, result.SnapshotID)

		saved, err := svc.GetSnapshot(ctx, result.SnapshotID)
		require.NoError(t, err)
		assert.Equal(t, "2022-08-10", saved.TakenOn)
		assert.Equal(t, result.RulesVersion, saved.RulesVersion)
		assert.Len(t, saved.Rows, 2)

		latest, err := svc.LatestSnapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, result.SnapshotID, latest.ID)

		infos, err := svc.ListSnapshots(ctx, 0)
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, 2, infos[0].RowCount)
	})

	t.Run("save without store is rejected", func(t *testing.T) {
		svc := NewComparisonService(NewMockCacheRepository(), nil, nil, nil, ComparisonServiceConfig{})

		req := opatRequest()
		req.Save = true
		_, err := svc.Compare(ctx, req)
		if !errors.Is(err, domain.ErrInvalidRequest) {
			t.Errorf("error = %v, want ErrInvalidRequest", err)
		}
	})

	t.Run("suggests rules for unknown competitor names", func(t *testing.T) {
		svc := NewComparisonService(NewMockCacheRepository(), nil, nil, nil, ComparisonServiceConfig{})

		req := &domain.CompareRequest{
			Reference: []domain.RawFragment{
				{Name: "GEOLANDAR AT G015", Info: "265/70R16 YOKOHAMA", Price: "₱8,000"},
			},
			Competitors: map[domain.Source][]domain.RawFragment{
				"gogulong": {{Name: "GEOLANDER AT G015", Info: "265/70R16 YOKOHAMA", Price: "₱7,800"}},
			},
		}
		result, err := svc.Compare(ctx, req)
		require.NoError(t, err)

		assert.Empty(t, result.Rows)
		require.Len(t, result.Suggestions, 1)
		assert.Equal(t, "GEOLANDER AT G015", result.Suggestions[0].RawName)
		assert.Equal(t, "GEOLANDAR AT G015", result.Suggestions[0].Candidate)
	})
}

func TestSnapshotsWithoutStore(t *testing.T) {
	svc := NewComparisonService(nil, nil, nil, nil, ComparisonServiceConfig{})
	ctx := context.Background()

	_, err := svc.ListSnapshots(ctx, 10)
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)

	_, err = svc.LatestSnapshot(ctx)
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)

	_, err = svc.GetSnapshot(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestGenerateCacheKey(t *testing.T) {
	svc := NewComparisonService(nil, nil, nil, nil, ComparisonServiceConfig{})

	a, err := svc.generateCacheKey(opatRequest())
	require.NoError(t, err)
	b, err := svc.generateCacheKey(opatRequest())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "comparison:"+svc.RulesVersion()+":")

	saved := opatRequest()
	saved.Save = true
	c, err := svc.generateCacheKey(saved)
	require.NoError(t, err)
	assert.Equal(t, a, c, "save flag is not part of the key")

	other := opatRequest()
	other.Competitors["gogulong"][0].Price = "₱9,400.00"
	d, err := svc.generateCacheKey(other)
	require.NoError(t, err)
	assert.NotEqual(t, a, d)
}
