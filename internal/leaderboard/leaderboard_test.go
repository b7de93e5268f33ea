package leaderboard

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kickspeed/kickspeed/internal/datastore"
	"github.com/kickspeed/kickspeed/internal/errors"
	"github.com/kickspeed/kickspeed/internal/logger"
)

var day = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

type memStore struct {
	records map[string]*datastore.AnalysisResult
	broken  map[string]error
	listErr error
}

func newMemStore() *memStore {
	return &memStore{
		records: make(map[string]*datastore.AnalysisResult),
		broken:  make(map[string]error),
	}
}

func (m *memStore) add(id string, speed float64, createdAt time.Time) {
	m.records[id] = &datastore.AnalysisResult{
		ID:        id,
		Analysis:  datastore.Analysis{SpeedKmh: speed},
		CreatedAt: createdAt,
	}
}

func (m *memStore) Get(id string) (*datastore.AnalysisResult, error) {
	if err, ok := m.broken[id]; ok {
		return nil, err
	}
	r, ok := m.records[id]
	if !ok {
		return nil, errors.NotFoundError("result", id)
	}
	return r.Clone(), nil
}

func (m *memStore) ListIDs() ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	ids := make([]string, 0, len(m.records)+len(m.broken))
	for id := range m.records {
		ids = append(ids, id)
	}
	for id := range m.broken {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

type countingObserver struct {
	calls                     int
	scanned, skipped, matched int
}

func (c *countingObserver) ObserveScan(scanned, skipped, matched int, _ time.Duration) {
	c.calls++
	c.scanned, c.skipped, c.matched = scanned, skipped, matched
}

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

func newTestEngine(store Store, opts ...Option) *Engine {
	return NewEngine(store, append([]Option{WithLogger(quietLogger())}, opts...)...)
}

func intPtr(v int) *int { return &v }

func TestRank_ConcreteScenario(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.add("A", 30, day)
	store.add("B", 25, day.Add(time.Minute))
	store.add("C", 20, day.Add(2*time.Minute))
	store.add("D", 15, day.Add(3*time.Minute))
	store.add("E", 10, day.Add(4*time.Minute))

	got, err := newTestEngine(store).Rank("B")
	require.NoError(t, err)

	want := &DailyRanking{
		Date:       "2026-10-17",
		TotalToday: 5,
		MySpeedKmh: 25,
		MyRank:     intPtr(2),
		Top: []Entry{
			{ID: "A", Rank: intPtr(1), SpeedKmh: 30},
			{ID: "B", Rank: intPtr(2), SpeedKmh: 25, IsYou: true},
			{ID: "C", Rank: intPtr(3), SpeedKmh: 20},
			{ID: "D", Rank: intPtr(4), SpeedKmh: 15},
			{ID: "E", Rank: intPtr(5), SpeedKmh: 10},
		},
	}
	assert.Equal(t, want, got)
}

func TestRank_StrictlyDecreasingSpeeds(t *testing.T) {
	t.Parallel()

	const n = 25
	store := newMemStore()
	for i := range n {
		store.add(fmt.Sprintf("r%02d", i), float64(200-i), day)
	}
	engine := newTestEngine(store)

	for i := range n {
		got, err := engine.Rank(fmt.Sprintf("r%02d", i))
		require.NoError(t, err)
		require.NotNil(t, got)
		require.NotNil(t, got.MyRank)
		assert.Equal(t, i+1, *got.MyRank)
		assert.Equal(t, n, got.TotalToday)
		assert.LessOrEqual(t, len(got.Top), TopSize)
	}
}

func TestRank_SmallDayContainsEveryone(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 7, 10} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			t.Parallel()

			store := newMemStore()
			for i := range n {
				store.add(fmt.Sprintf("k%02d", i), float64(100-i), day)
			}

			got, err := newTestEngine(store).Rank(fmt.Sprintf("k%02d", n-1))
			require.NoError(t, err)
			require.Len(t, got.Top, n)
			for i, entry := range got.Top {
				require.NotNil(t, entry.Rank)
				assert.Equal(t, i+1, *entry.Rank)
			}
			require.NotNil(t, got.MyRank)
			assert.LessOrEqual(t, *got.MyRank, TopSize)
		})
	}
}

func TestRank_TargetOutsideTopTen(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	for i := range 20 {
		store.add(fmt.Sprintf("s%02d", i), float64(100-i), day)
	}

	got, err := newTestEngine(store).Rank("s14")
	require.NoError(t, err)

	require.Len(t, got.Top, TopSize)
	for i := range headSize {
		assert.Equal(t, i+1, *got.Top[i].Rank)
		assert.False(t, got.Top[i].IsYou)
	}
	last := got.Top[TopSize-1]
	assert.Equal(t, "s14", last.ID)
	assert.True(t, last.IsYou)
	require.NotNil(t, last.Rank)
	assert.Equal(t, 15, *last.Rank)
	assert.Equal(t, 15, *got.MyRank)
}

func TestRank_EleventhPlaceKeepsHeadOfNine(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	for i := range 11 {
		store.add(fmt.Sprintf("e%02d", i), float64(50-i), day)
	}

	got, err := newTestEngine(store).Rank("e10")
	require.NoError(t, err)
	require.Len(t, got.Top, TopSize)
	assert.Equal(t, 9, *got.Top[8].Rank)
	assert.Equal(t, 11, *got.Top[9].Rank)
	assert.True(t, got.Top[9].IsYou)
}

func TestRankFor_SyntheticEntryHasNilRank(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	for i := range 12 {
		store.add(fmt.Sprintf("o%02d", i), float64(80-i), day)
	}
	store.add("target", 0, day)

	got := newTestEngine(store).RankFor("target", 33, "2026-10-17")
	require.NotNil(t, got)

	assert.Nil(t, got.MyRank)
	assert.Equal(t, 12, got.TotalToday)
	assert.InDelta(t, 33, got.MySpeedKmh, 0)
	require.Len(t, got.Top, TopSize)

	last := got.Top[TopSize-1]
	assert.Equal(t, Entry{ID: "target", Rank: nil, SpeedKmh: 33, IsYou: true}, last)
}

func TestRank_TargetWithoutValidSpeedIsNotShown(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	for i := range 3 {
		store.add(fmt.Sprintf("v%d", i), float64(60-i), day)
	}
	store.add("zero", 0, day)

	got, err := newTestEngine(store).Rank("zero")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Nil(t, got.MyRank)
	assert.Len(t, got.Top, 3)
	for _, entry := range got.Top {
		assert.False(t, entry.IsYou)
	}
}

func TestRank_FiltersOtherDaysAndInvalidSpeeds(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.add("today-1", 40, day)
	store.add("today-2", 35, time.Date(2026, 10, 17, 23, 59, 59, 0, time.UTC))
	store.add("yesterday", 99, time.Date(2026, 10, 16, 23, 59, 59, 0, time.UTC))
	store.add("tomorrow", 98, time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC))
	store.add("negative", -5, day)
	store.add("nan", math.NaN(), day)
	store.add("inf", math.Inf(1), day)
	store.broken["corrupt"] = errors.New(errors.NewStd("unexpected end of JSON input")).
		Category(errors.CategoryFileParsing).Build()

	observer := &countingObserver{}
	got, err := newTestEngine(store, WithObserver(observer)).Rank("today-2")
	require.NoError(t, err)

	assert.Equal(t, 2, got.TotalToday)
	assert.Equal(t, 2, *got.MyRank)
	assert.Equal(t, []string{"today-1", "today-2"}, []string{got.Top[0].ID, got.Top[1].ID})

	assert.Equal(t, 1, observer.calls)
	assert.Equal(t, 8, observer.scanned)
	assert.Equal(t, 1, observer.skipped)
	assert.Equal(t, 2, observer.matched)
}

func TestRank_NonUTCTimestampsUseUTCDay(t *testing.T) {
	t.Parallel()

	plus3 := time.FixedZone("UTC+3", 3*3600)
	store := newMemStore()
	store.add("local-early", 50, time.Date(2026, 10, 18, 1, 0, 0, 0, plus3)) // 2026-10-17 22:00 UTC
	store.add("utc", 45, day)

	got, err := newTestEngine(store).Rank("utc")
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalToday)
	assert.Equal(t, "local-early", got.Top[0].ID)
}

func TestRank_TieBreakByID(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.add("c", 70, day)
	store.add("a", 70, day)
	store.add("b", 70, day)
	store.add("d", 90, day)

	got, err := newTestEngine(store).Rank("b")
	require.NoError(t, err)

	ids := make([]string, 0, len(got.Top))
	for _, entry := range got.Top {
		ids = append(ids, entry.ID)
	}
	assert.Equal(t, []string{"d", "a", "b", "c"}, ids)
	assert.Equal(t, 3, *got.MyRank)
}

func TestRank_Idempotent(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	for i := range 15 {
		store.add(fmt.Sprintf("i%02d", i), float64(30+i%4), day)
	}
	engine := newTestEngine(store)

	first, err := engine.Rank("i03")
	require.NoError(t, err)
	second, err := engine.Rank("i03")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRank_NilResults(t *testing.T) {
	t.Parallel()

	t.Run("no date", func(t *testing.T) {
		t.Parallel()
		store := newMemStore()
		store.add("x", 10, day)
		assert.Nil(t, newTestEngine(store).RankFor("x", 10, ""))
	})

	t.Run("no valid records", func(t *testing.T) {
		t.Parallel()
		store := newMemStore()
		store.add("only", 0, day)
		got, err := newTestEngine(store).Rank("only")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("listing fails", func(t *testing.T) {
		t.Parallel()
		store := newMemStore()
		store.add("x", 10, day)
		store.listErr = errors.NewStd("permission denied")
		got, err := newTestEngine(store).Rank("x")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestRank_MissingTargetPropagatesNotFound(t *testing.T) {
	t.Parallel()

	_, err := newTestEngine(newMemStore()).Rank("ghost")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestRank_WithFileStore(t *testing.T) {
	t.Parallel()

	store, err := datastore.NewFileStore(filepath.Join(t.TempDir(), "outputs"), time.Minute)
	require.NoError(t, err)

	for i, speed := range []float64{88, 120, 64} {
		require.NoError(t, store.Put(&datastore.AnalysisResult{
			ID:        fmt.Sprintf("f%d", i),
			Analysis:  datastore.Analysis{SpeedKmh: speed},
			CreatedAt: day,
		}))
	}
	_, err = store.WorkDir("unfinished")
	require.NoError(t, err)

	got, err := newTestEngine(store).Rank("f0")
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalToday)
	assert.Equal(t, 2, *got.MyRank)
	assert.Equal(t, "f1", got.Top[0].ID)
}
