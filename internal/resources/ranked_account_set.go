package resources

import (
	"math/rand"
	"sort"
	"sync"
	"time"
)

const (
	defaultNumberOfBuckets = 6
	defaultBucketDuration  = 10 * time.Second
)

// bucket accumulates upload outcomes for one time slice.
type bucket struct {
	successCount int
	totalCount   int
}

// RankedAccount tracks the recent success rate of one storage account over a
// fixed ring of time buckets.
type RankedAccount struct {
	accountName    string
	buckets        []bucket
	currentBucket  int
	bucketDuration time.Duration
	lastAction     time.Time
	now            func() time.Time
}

func newRankedAccount(name string, numberOfBuckets int, bucketDuration time.Duration, now func() time.Time) *RankedAccount {
	return &RankedAccount{
		accountName:    name,
		buckets:        make([]bucket, numberOfBuckets),
		bucketDuration: bucketDuration,
		lastAction:     now(),
		now:            now,
	}
}

// AccountName returns the storage account name.
func (a *RankedAccount) AccountName() string {
	return a.accountName
}

// logResult records one upload outcome in the newest bucket, first advancing
// the ring by however many bucket durations have elapsed.
func (a *RankedAccount) logResult(success bool) {
	a.advance()
	if success {
		a.buckets[a.currentBucket].successCount++
	}
	a.buckets[a.currentBucket].totalCount++
}

func (a *RankedAccount) advance() {
	now := a.now()
	elapsed := int(now.Sub(a.lastAction) / a.bucketDuration)
	a.lastAction = now

	if elapsed <= 0 {
		return
	}
	if elapsed >= len(a.buckets) {
		for i := range a.buckets {
			a.buckets[i] = bucket{}
		}
		a.currentBucket = 0
		return
	}
	for i := 0; i < elapsed; i++ {
		a.currentBucket = (a.currentBucket + 1) % len(a.buckets)
		a.buckets[a.currentBucket] = bucket{}
	}
}

// rank is the weighted average of per-bucket success rates, weighted from
// the newest bucket (weight = number of buckets) down to the oldest
// (weight = 1). Empty buckets are skipped and omit their weight. An account
// with no recorded outcomes ranks 1.0.
func (a *RankedAccount) rank() float64 {
	n := len(a.buckets)
	var sum, weights float64
	for i := 0; i < n; i++ {
		// i == 0 is the newest bucket.
		b := a.buckets[(a.currentBucket-i+n*2)%n]
		if b.totalCount == 0 {
			continue
		}
		w := float64(n - i)
		sum += w * float64(b.successCount) / float64(b.totalCount)
		weights += w
	}
	if weights == 0 {
		return 1.0
	}
	return sum / weights
}

// RankedAccountSet ranks storage accounts by recent upload success so the
// uploader can prefer healthy accounts. Mutations are serialized; reads take
// the same lock, which is cheap at the per-upload cadence involved.
type RankedAccountSet struct {
	mu              sync.Mutex
	accounts        map[string]*RankedAccount
	numberOfBuckets int
	bucketDuration  time.Duration
	now             func() time.Time
	shuffle         func(n int, swap func(i, j int))
}

// NewRankedAccountSet creates a set with the given ring geometry. The time
// and shuffle providers exist for tests.
func NewRankedAccountSet(numberOfBuckets int, bucketDuration time.Duration, now func() time.Time) *RankedAccountSet {
	return &RankedAccountSet{
		accounts:        make(map[string]*RankedAccount),
		numberOfBuckets: numberOfBuckets,
		bucketDuration:  bucketDuration,
		now:             now,
		shuffle:         rand.Shuffle,
	}
}

// NewDefaultRankedAccountSet creates a set with the default geometry of six
// ten-second buckets.
func NewDefaultRankedAccountSet() *RankedAccountSet {
	return NewRankedAccountSet(defaultNumberOfBuckets, defaultBucketDuration, time.Now)
}

// Register adds an account if it is not yet tracked.
func (r *RankedAccountSet) Register(accountName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[accountName]; !ok {
		r.accounts[accountName] = newRankedAccount(accountName, r.numberOfBuckets, r.bucketDuration, r.now)
	}
}

// AddResult records one upload outcome for an account. Unknown accounts are
// ignored.
func (r *RankedAccountSet) AddResult(accountName string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.accounts[accountName]; ok {
		account.logResult(success)
	}
}

// Rank returns the current rank of an account in [0, 1]. Unknown accounts
// rank 1.0, same as accounts with no recorded outcomes.
func (r *RankedAccountSet) Rank(accountName string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.accounts[accountName]; ok {
		return account.rank()
	}
	return 1.0
}

// RankedShuffled returns the tracked account names sorted by descending
// rank. Accounts with equal rank are shuffled to spread load.
func (r *RankedAccountSet) RankedShuffled() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	type ranked struct {
		name string
		rank float64
	}
	all := make([]ranked, 0, len(r.accounts))
	for name, account := range r.accounts {
		all = append(all, ranked{name: name, rank: account.rank()})
	}

	// Shuffle first so that the stable sort's order within equal ranks is
	// random rather than map-iteration dependent.
	r.shuffle(len(all), func(i, j int) {
		all[i], all[j] = all[j], all[i]
	})
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].rank > all[j].rank
	})

	names := make([]string, len(all))
	for i, a := range all {
		names[i] = a.name
	}
	return names
}
