package health

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/2beens/vitalscale/internal/kv"
	"github.com/2beens/vitalscale/pkg"

	log "github.com/sirupsen/logrus"
)

const entryIDLength = 12

// Store owns the three entry collections and the user profile. Every
// mutation runs to completion inside the collection mutex, including the
// write-through of the whole affected collection to the kv adapter.
// Collections are kept sorted by date descending at all times; entries
// with equal dates retain insertion order, most recent insertion first.
type Store struct {
	mutex sync.RWMutex
	kv    kv.Store

	weights  []WeightEntry
	waters   []WaterEntry
	aerobics []AerobicEntry
	profile  UserProfile
}

// NewStore loads all collections from the kv adapter. Absent or corrupt
// stored data is recovered locally by substituting an empty collection
// or the default profile, never surfaced to the caller.
func NewStore(ctx context.Context, kvStore kv.Store) *Store {
	s := &Store{
		kv:      kvStore,
		profile: DefaultProfile(),
	}

	loadCollection(ctx, kvStore, KeyWeights, &s.weights)
	loadCollection(ctx, kvStore, KeyWaters, &s.waters)
	loadCollection(ctx, kvStore, KeyAerobics, &s.aerobics)

	profileBytes, err := kvStore.Get(ctx, KeyProfile)
	if err == nil {
		var profile UserProfile
		if err := json.Unmarshal(profileBytes, &profile); err != nil {
			log.Warnf("health store: malformed stored profile, using default: %s", err)
		} else {
			s.profile = profile
		}
	} else if !errors.Is(err, kv.ErrKeyNotFound) {
		log.Errorf("health store: load profile: %s", err)
	}

	sortWeightsByDateDesc(s.weights)
	sortWatersByDateDesc(s.waters)
	sortAerobicsByDateDesc(s.aerobics)

	log.Debugf(
		"health store loaded: %d weights, %d waters, %d aerobics",
		len(s.weights), len(s.waters), len(s.aerobics),
	)

	return s
}

func loadCollection[E any](ctx context.Context, kvStore kv.Store, key string, target *[]E) {
	collectionBytes, err := kvStore.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kv.ErrKeyNotFound) {
			log.Errorf("health store: load %s: %s", key, err)
		}
		return
	}
	if err := json.Unmarshal(collectionBytes, target); err != nil {
		log.Warnf("health store: malformed stored %s, using empty collection: %s", key, err)
		*target = nil
	}
}

func sortWeightsByDateDesc(entries []WeightEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date > entries[j].Date
	})
}

func sortWatersByDateDesc(entries []WaterEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date > entries[j].Date
	})
}

func sortAerobicsByDateDesc(entries []AerobicEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date > entries[j].Date
	})
}

// newEntryID generates an id unique within the collection
// for the lifetime of the store
func (s *Store) newEntryID(exists func(id string) bool) string {
	for {
		id, err := pkg.GenerateRandomString(entryIDLength)
		if err != nil {
			log.Errorf("health store: generate entry id: %s", err)
			id = strconv.FormatInt(time.Now().UnixNano(), 10)
		}
		if !exists(id) {
			return id
		}
	}
}

func (s *Store) persist(ctx context.Context, key string, collection any) {
	collectionJson, err := json.Marshal(collection)
	if err != nil {
		log.Errorf("health store: marshal %s: %s", key, err)
		return
	}
	if err := s.kv.Set(ctx, key, collectionJson); err != nil {
		log.Errorf("health store: persist %s: %s", key, err)
	}
}

// AddWeight accepts any well-typed entry, validation belongs to the boundary.
func (s *Store) AddWeight(ctx context.Context, weight float64, date string) WeightEntry {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry := WeightEntry{
		ID: s.newEntryID(func(id string) bool {
			for _, e := range s.weights {
				if e.ID == id {
					return true
				}
			}
			return false
		}),
		Weight: weight,
		Date:   date,
	}

	s.weights = append([]WeightEntry{entry}, s.weights...)
	sortWeightsByDateDesc(s.weights)
	s.persist(ctx, KeyWeights, s.weights)

	return entry
}

// DeleteWeight removes the entry with matching id; it is a no-op
// returning false when the id is absent.
func (s *Store) DeleteWeight(ctx context.Context, id string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i, e := range s.weights {
		if e.ID == id {
			s.weights = append(s.weights[:i], s.weights[i+1:]...)
			s.persist(ctx, KeyWeights, s.weights)
			return true
		}
	}
	return false
}

func (s *Store) Weights() []WeightEntry {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	weights := make([]WeightEntry, len(s.weights))
	copy(weights, s.weights)
	return weights
}

func (s *Store) AddWater(ctx context.Context, amount int, date string) WaterEntry {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry := WaterEntry{
		ID: s.newEntryID(func(id string) bool {
			for _, e := range s.waters {
				if e.ID == id {
					return true
				}
			}
			return false
		}),
		Amount: amount,
		Date:   date,
	}

	s.waters = append([]WaterEntry{entry}, s.waters...)
	sortWatersByDateDesc(s.waters)
	s.persist(ctx, KeyWaters, s.waters)

	return entry
}

func (s *Store) DeleteWater(ctx context.Context, id string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i, e := range s.waters {
		if e.ID == id {
			s.waters = append(s.waters[:i], s.waters[i+1:]...)
			s.persist(ctx, KeyWaters, s.waters)
			return true
		}
	}
	return false
}

func (s *Store) Waters() []WaterEntry {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	waters := make([]WaterEntry, len(s.waters))
	copy(waters, s.waters)
	return waters
}

func (s *Store) AddAerobic(ctx context.Context, distance float64, duration int, date string) AerobicEntry {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry := AerobicEntry{
		ID: s.newEntryID(func(id string) bool {
			for _, e := range s.aerobics {
				if e.ID == id {
					return true
				}
			}
			return false
		}),
		Distance: distance,
		Duration: duration,
		Date:     date,
	}

	s.aerobics = append([]AerobicEntry{entry}, s.aerobics...)
	sortAerobicsByDateDesc(s.aerobics)
	s.persist(ctx, KeyAerobics, s.aerobics)

	return entry
}

func (s *Store) DeleteAerobic(ctx context.Context, id string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i, e := range s.aerobics {
		if e.ID == id {
			s.aerobics = append(s.aerobics[:i], s.aerobics[i+1:]...)
			s.persist(ctx, KeyAerobics, s.aerobics)
			return true
		}
	}
	return false
}

func (s *Store) Aerobics() []AerobicEntry {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	aerobics := make([]AerobicEntry, len(s.aerobics))
	copy(aerobics, s.aerobics)
	return aerobics
}

// DailyWaterTotal sums water amounts across entries whose date equals
// the given date exactly (string equality, not calendar-aware)
func (s *Store) DailyWaterTotal(date string) int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	total := 0
	for _, e := range s.waters {
		if e.Date == date {
			total += e.Amount
		}
	}
	return total
}

// DailyAerobicTotals sums exercise minutes and km for the given date
func (s *Store) DailyAerobicTotals(date string) (minutes int, distance float64) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, e := range s.aerobics {
		if e.Date == date {
			minutes += e.Duration
			distance += e.Distance
		}
	}
	return minutes, distance
}

func (s *Store) Profile() UserProfile {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.profile
}

func (s *Store) UpdateProfile(ctx context.Context, profile UserProfile) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.profile = profile
	s.persist(ctx, KeyProfile, s.profile)
}

// BMI computes the current result from the latest weight entry and the
// profile height. Empty weight history yields the Unknown sentinel.
func (s *Store) BMI() BMIResult {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.weights) == 0 {
		return UnknownBMI()
	}
	return ComputeBMI(s.weights[0].Weight, float64(s.profile.Height))
}

// WeightTrend returns the difference between the two most recent
// weigh-ins, 0 when there are fewer than two entries
func (s *Store) WeightTrend() float64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.weights) < 2 {
		return 0
	}
	return roundToOneDecimal(s.weights[0].Weight - s.weights[1].Weight)
}

// RecentWeights returns up to n most recent weight entries
func (s *Store) RecentWeights(n int) []WeightEntry {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if n > len(s.weights) {
		n = len(s.weights)
	}
	recent := make([]WeightEntry, n)
	copy(recent, s.weights[:n])
	return recent
}

// ChartSeries returns up to the last n weight entries in ascending
// date order, for the weight chart
func (s *Store) ChartSeries(n int) []WeightEntry {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if n > len(s.weights) {
		n = len(s.weights)
	}
	series := make([]WeightEntry, n)
	for i := 0; i < n; i++ {
		series[i] = s.weights[n-1-i]
	}
	return series
}

// Reset clears all stored collections and restores the default profile.
func (s *Store) Reset(ctx context.Context) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.weights = nil
	s.waters = nil
	s.aerobics = nil
	s.profile = DefaultProfile()

	for _, key := range []string{KeyWeights, KeyWaters, KeyAerobics, KeyProfile} {
		if err := s.kv.Delete(ctx, key); err != nil {
			log.Errorf("health store: reset, delete %s: %s", key, err)
		}
	}
}
