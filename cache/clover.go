package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ostafen/clover"

	"github.com/saiset-co/sai-relay/types"
	"github.com/saiset-co/sai-relay/utils"
)

const cloverCollection = "cache_entries"

// CloverStore is the structured tier: a document store keyed by
// endpoint tag, so the host can run range queries ("everything for
// these topics fresher than maxAge") and topic-scoped invalidation.
type CloverStore struct {
	db *clover.DB
}

func NewCloverStore(path string) (*CloverStore, error) {
	db, err := clover.Open(path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open clover store")
	}

	exists, err := db.HasCollection(cloverCollection)
	if err != nil {
		db.Close()
		return nil, types.WrapError(err, "failed to check clover collection")
	}

	if !exists {
		if err := db.CreateCollection(cloverCollection); err != nil {
			db.Close()
			return nil, types.WrapError(err, "failed to create clover collection")
		}
	}

	return &CloverStore{db: db}, nil
}

func (c *CloverStore) Save(_ context.Context, entry *types.CacheEntry) error {
	if entry == nil || entry.Fingerprint == "" {
		return types.ErrCacheKeyEmpty
	}

	payload, err := utils.Marshal(entry.Payload)
	if err != nil {
		return types.WrapError(err, "failed to marshal entry payload")
	}

	// Entries are replaced, never edited in place.
	err = c.db.Query(cloverCollection).
		Where(clover.Field("fingerprint").Eq(entry.Fingerprint)).
		Delete()
	if err != nil {
		return types.WrapError(err, "failed to replace existing entry")
	}

	doc := clover.NewDocument()
	doc.Set("internal_id", uuid.New().String())
	doc.Set("fingerprint", entry.Fingerprint)
	doc.Set("endpoint", entry.Endpoint)
	doc.Set("payload", string(payload))
	doc.Set("ttl_ns", int64(entry.TTL))
	doc.Set("created_at", entry.CreatedAt.UnixNano())
	doc.Set("expires_at", entry.ExpiresAt.UnixNano())

	if err := c.db.Insert(cloverCollection, doc); err != nil {
		return types.WrapError(err, "failed to insert cache entry")
	}

	return nil
}

func (c *CloverStore) QueryByTag(_ context.Context, tags []string, maxAge time.Duration) ([]*types.CacheEntry, error) {
	if len(tags) == 0 {
		return nil, nil
	}

	now := time.Now()

	tagValues := make([]interface{}, 0, len(tags))
	for _, tag := range tags {
		tagValues = append(tagValues, tag)
	}

	query := c.db.Query(cloverCollection).
		Where(clover.Field("endpoint").In(tagValues...).
			And(clover.Field("expires_at").Gt(now.UnixNano())))

	if maxAge > 0 {
		query = query.Where(clover.Field("created_at").GtEq(now.Add(-maxAge).UnixNano()))
	}

	docs, err := query.
		Sort(clover.SortOption{Field: "created_at", Direction: -1}).
		FindAll()
	if err != nil {
		return nil, types.WrapError(err, "failed to query entries by tag")
	}

	entries := make([]*types.CacheEntry, 0, len(docs))
	for _, doc := range docs {
		entry, err := documentToEntry(doc)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

func (c *CloverStore) DeleteByTag(_ context.Context, tag string) error {
	err := c.db.Query(cloverCollection).
		Where(clover.Field("endpoint").Eq(tag)).
		Delete()
	return types.WrapError(err, "failed to delete entries by tag")
}

func (c *CloverStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	query := c.db.Query(cloverCollection).
		Where(clover.Field("expires_at").LtEq(now.UnixNano()))

	count, err := query.Count()
	if err != nil {
		return 0, types.WrapError(err, "failed to count expired entries")
	}

	if count == 0 {
		return 0, nil
	}

	if err := query.Delete(); err != nil {
		return 0, types.WrapError(err, "failed to delete expired entries")
	}

	return int64(count), nil
}

func (c *CloverStore) Clear(_ context.Context) error {
	err := c.db.Query(cloverCollection).Delete()
	return types.WrapError(err, "failed to clear clover store")
}

func (c *CloverStore) Close() error {
	return c.db.Close()
}

func documentToEntry(doc *clover.Document) (*types.CacheEntry, error) {
	var payload interface{}
	payloadStr, _ := doc.Get("payload").(string)
	if err := utils.Unmarshal([]byte(payloadStr), &payload); err != nil {
		return nil, types.WrapError(err, "failed to unmarshal entry payload")
	}

	createdAt, _ := doc.Get("created_at").(int64)
	expiresAt, _ := doc.Get("expires_at").(int64)
	ttl, _ := doc.Get("ttl_ns").(int64)
	fingerprint, _ := doc.Get("fingerprint").(string)
	endpoint, _ := doc.Get("endpoint").(string)

	return &types.CacheEntry{
		Fingerprint: fingerprint,
		Endpoint:    endpoint,
		Payload:     payload,
		TTL:         time.Duration(ttl),
		CreatedAt:   time.Unix(0, createdAt),
		ExpiresAt:   time.Unix(0, expiresAt),
	}, nil
}
