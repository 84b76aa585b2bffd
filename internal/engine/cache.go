package engine

// cacheKey buckets recognition results per track and detection epoch.
type cacheKey struct {
	trackID int
	epoch   int
}

// RecognitionCache memoizes identities per (track, detection epoch) so the
// recognizer runs at most once per track between detector frames.
type RecognitionCache struct {
	interval int
	entries  map[cacheKey]Identity
}

// NewRecognitionCache creates a cache whose epochs span interval processed frames.
func NewRecognitionCache(interval int) *RecognitionCache {
	return &RecognitionCache{
		interval: interval,
		entries:  make(map[cacheKey]Identity),
	}
}

func (c *RecognitionCache) key(trackID, processedIndex int) cacheKey {
	return cacheKey{trackID: trackID, epoch: processedIndex / c.interval}
}

// Get returns the cached identity for the track in the epoch of processedIndex.
func (c *RecognitionCache) Get(trackID, processedIndex int) (Identity, bool) {
	id, ok := c.entries[c.key(trackID, processedIndex)]
	return id, ok
}

// Put stores an identity (Unknown included) for the track and epoch.
func (c *RecognitionCache) Put(trackID, processedIndex int, identity Identity) {
	c.entries[c.key(trackID, processedIndex)] = identity
}

// Len returns the number of cached entries.
func (c *RecognitionCache) Len() int {
	return len(c.entries)
}

// Reset empties the cache.
func (c *RecognitionCache) Reset() {
	c.entries = make(map[cacheKey]Identity)
}
