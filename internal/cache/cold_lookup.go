package cache

import (
	"time"

	recorddomain "github.com/smallbiznis/coldline/internal/record/domain"
)

const defaultColdLookupTTL = 5 * time.Minute

// ColdLookup caches decoded cold-tier records so repeated reads of the same
// archived record skip the blob fetch. Only positive hits are cached: an
// absent blob can appear at any moment once a migration cycle lands. Every
// write path that can supersede an archived copy (overwrite, restore) must
// Delete the entry, otherwise a re-archive within the TTL would serve the
// old content.
type ColdLookup struct {
	records Cache[string, recorddomain.Record]
	ttl     time.Duration
}

func NewColdLookup(ttl time.Duration) *ColdLookup {
	if ttl <= 0 {
		ttl = defaultColdLookupTTL
	}
	return &ColdLookup{
		records: NewTTLCache[string, recorddomain.Record](),
		ttl:     ttl,
	}
}

func (c *ColdLookup) Get(id string) (*recorddomain.Record, bool) {
	if c == nil {
		return nil, false
	}
	record, ok := c.records.Get(id)
	if !ok {
		return nil, false
	}
	out := record
	return &out, true
}

func (c *ColdLookup) Set(record *recorddomain.Record) {
	if c == nil || record == nil {
		return
	}
	c.records.Set(record.ID, *record, c.ttl)
}

// Delete drops a cached entry. Called whenever the hot tier accepts content
// for an id, since the next archived copy of that id may differ from what
// was cached.
func (c *ColdLookup) Delete(id string) {
	if c == nil {
		return
	}
	c.records.Delete(id)
}
