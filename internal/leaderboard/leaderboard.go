// Package leaderboard computes the same-day speed ranking for a stored result.
//
// Rankings are derived on every read by scanning the result store; nothing is
// cached or persisted. A record becomes visible here once it is fully written.
package leaderboard

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/kickspeed/kickspeed/internal/datastore"
	"github.com/kickspeed/kickspeed/internal/logger"
)

const (
	// TopSize is the maximum number of entries in a ranking view
	TopSize = 10

	// headSize is the number of leading entries kept when the target ranks outside the top view
	headSize = TopSize - 1
)

// Store is the read side of the result store used for ranking
type Store interface {
	Get(id string) (*datastore.AnalysisResult, error)
	ListIDs() ([]string, error)
}

// Observer receives statistics about each ranking scan
type Observer interface {
	ObserveScan(scanned, skipped, matched int, elapsed time.Duration)
}

// Entry is one row of the ranking view. Rank is nil when the id is not part of the day's ranking.
type Entry struct {
	ID       string  `json:"id"`
	Rank     *int    `json:"rank"`
	SpeedKmh float64 `json:"speed_kmh"`
	IsYou    bool    `json:"is_you"`
}

// DailyRanking is the ranking view for one target submission
type DailyRanking struct {
	Date       string  `json:"date"`
	TotalToday int     `json:"total_today"`
	MySpeedKmh float64 `json:"my_speed_kmh"`
	MyRank     *int    `json:"my_rank"`
	Top        []Entry `json:"top"`
}

// rankingEntry is built transiently from stored records sharing the target's date
type rankingEntry struct {
	id       string
	speedKmh float64
}

// Engine computes daily rankings from a Store
type Engine struct {
	store    Store
	log      logger.Logger
	observer Observer
}

// Option configures an Engine
type Option func(*Engine)

// WithObserver sets the scan statistics observer
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithLogger overrides the module logger
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// NewEngine creates a ranking engine reading from store
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		log:   GetLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rank loads the target record and computes its daily ranking.
// Errors come only from loading the target; a nil ranking means there is nothing to rank.
func (e *Engine) Rank(targetID string) (*DailyRanking, error) {
	target, err := e.store.Get(targetID)
	if err != nil {
		return nil, err
	}
	return e.RankFor(targetID, target.Analysis.SpeedKmh, datastore.DateKey(target.CreatedAt)), nil
}

// RankFor computes the ranking of targetID among records dated dateKey.
// targetSpeed is shown as the target's own speed and used for a synthetic
// entry when the target is not part of the day's valid records.
func (e *Engine) RankFor(targetID string, targetSpeed float64, dateKey string) *DailyRanking {
	if dateKey == "" {
		return nil
	}

	entries := e.collect(dateKey)
	if len(entries) == 0 {
		return nil
	}

	// Descending speed, ties broken by id so the order never depends on scan order.
	slices.SortFunc(entries, func(a, b rankingEntry) int {
		if c := cmp.Compare(b.speedKmh, a.speedKmh); c != 0 {
			return c
		}
		return strings.Compare(a.id, b.id)
	})

	positions := make(map[string]int, len(entries))
	for i, entry := range entries {
		positions[entry.id] = i + 1
	}
	rankOf := func(id string) *int {
		if pos, ok := positions[id]; ok {
			return &pos
		}
		return nil
	}

	myRank := rankOf(targetID)

	var view []rankingEntry
	if myRank != nil && *myRank <= TopSize {
		view = entries[:min(TopSize, len(entries))]
	} else {
		view = slices.Clone(entries[:min(headSize, len(entries))])
		switch {
		case myRank != nil:
			view = append(view, entries[*myRank-1])
		case validSpeed(targetSpeed):
			view = append(view, rankingEntry{id: targetID, speedKmh: targetSpeed})
		}
	}

	top := make([]Entry, 0, len(view))
	for _, entry := range view {
		top = append(top, Entry{
			ID:       entry.id,
			Rank:     rankOf(entry.id),
			SpeedKmh: entry.speedKmh,
			IsYou:    entry.id == targetID,
		})
	}

	return &DailyRanking{
		Date:       dateKey,
		TotalToday: len(entries),
		MySpeedKmh: targetSpeed,
		MyRank:     myRank,
		Top:        top,
	}
}

// collect scans every stored record and keeps same-day records with a valid speed.
// Unreadable records are skipped so one corrupt file never breaks the ranking.
func (e *Engine) collect(dateKey string) []rankingEntry {
	start := time.Now()

	ids, err := e.store.ListIDs()
	if err != nil {
		e.log.Warn("Failed to list results for ranking",
			logger.String("date", dateKey),
			logger.Error(err))
		return nil
	}

	var entries []rankingEntry
	skipped := 0
	for _, id := range ids {
		record, err := e.store.Get(id)
		if err != nil {
			skipped++
			e.log.Debug("Skipping unreadable result",
				logger.String("id", id),
				logger.Error(err))
			continue
		}
		if datastore.DateKey(record.CreatedAt) != dateKey || !validSpeed(record.Analysis.SpeedKmh) {
			continue
		}
		entries = append(entries, rankingEntry{id: id, speedKmh: record.Analysis.SpeedKmh})
	}

	elapsed := time.Since(start)
	if e.observer != nil {
		e.observer.ObserveScan(len(ids), skipped, len(entries), elapsed)
	}
	e.log.Trace("Ranking scan complete",
		logger.String("date", dateKey),
		logger.Int("scanned", len(ids)),
		logger.Int("skipped", skipped),
		logger.Int("matched", len(entries)),
		logger.Duration("elapsed", elapsed))

	return entries
}

// validSpeed reports whether v is a finite positive number
func validSpeed(v float64) bool {
	return v > 0 && !math.IsInf(v, 1) && !math.IsNaN(v)
}

// GetLogger returns the leaderboard module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("leaderboard")
}
