// internal/app/store/offlinecache/store.go
package offlinecache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dalemusser/guiafarma/internal/app/system/offline"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	PartitionsCollection = "offline_partitions"
	EntriesCollection    = "offline_entries"
)

// partitionDoc marks that a partition exists, even while it is empty.
type partitionDoc struct {
	Name      string    `bson:"_id"`
	CreatedAt time.Time `bson:"created_at"`
}

// entryDoc is one stored response.
type entryDoc struct {
	Partition string              `bson:"partition"`
	Method    string              `bson:"method"`
	URL       string              `bson:"url"`
	Status    int                 `bson:"status"`
	Header    map[string][]string `bson:"header,omitempty"`
	Body      []byte              `bson:"body"`
	Type      string              `bson:"type"`
	RespURL   string              `bson:"resp_url,omitempty"`
	StoredAt  time.Time           `bson:"stored_at"`
}

// Store is a MongoDB-backed offline.Registry. Partitions survive restarts,
// so an installed generation keeps serving after the process comes back.
type Store struct {
	parts   *mongo.Collection
	entries *mongo.Collection
}

// New creates a new offline cache Store.
func New(db *mongo.Database) *Store {
	return &Store{
		parts:   db.Collection(PartitionsCollection),
		entries: db.Collection(EntriesCollection),
	}
}

// EnsureIndexes creates necessary indexes for efficient querying.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		// One response per (partition, method, url)
		{
			Keys: bson.D{
				{Key: "partition", Value: 1},
				{Key: "method", Value: 1},
				{Key: "url", Value: 1},
			},
			Options: options.Index().SetName("uniq_offline_entries_key").SetUnique(true),
		},
	}
	_, err := s.entries.Indexes().CreateMany(ctx, indexes)
	return err
}

// Open returns the named partition, creating it if needed.
func (s *Store) Open(ctx context.Context, name string) (offline.Partition, error) {
	_, err := s.parts.UpdateOne(ctx,
		bson.M{"_id": name},
		bson.M{"$setOnInsert": bson.M{"created_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return nil, fmt.Errorf("open partition %s: %w", name, err)
	}
	return &partition{s: s, name: name}, nil
}

// Delete removes a partition and all of its entries. It reports whether the
// partition existed.
func (s *Store) Delete(ctx context.Context, name string) (bool, error) {
	if _, err := s.entries.DeleteMany(ctx, bson.M{"partition": name}); err != nil {
		return false, fmt.Errorf("delete entries of %s: %w", name, err)
	}
	res, err := s.parts.DeleteOne(ctx, bson.M{"_id": name})
	if err != nil {
		return false, fmt.Errorf("delete partition %s: %w", name, err)
	}
	return res.DeletedCount > 0, nil
}

// Keys lists partition names in ascending order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetProjection(bson.M{"_id": 1})
	cur, err := s.parts.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []partitionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(docs))
	for _, d := range docs {
		names = append(names, d.Name)
	}
	return names, nil
}

type partition struct {
	s    *Store
	name string
}

func (p *partition) Name() string { return p.name }

func (p *partition) filter(key offline.RequestKey) bson.M {
	return bson.M{"partition": p.name, "method": key.Method, "url": key.URL}
}

func (p *partition) doc(key offline.RequestKey, resp offline.Response) entryDoc {
	return entryDoc{
		Partition: p.name,
		Method:    key.Method,
		URL:       key.URL,
		Status:    resp.Status,
		Header:    resp.Header,
		Body:      resp.Body,
		Type:      string(resp.Type),
		RespURL:   resp.URL,
		StoredAt:  time.Now().UTC(),
	}
}

func (p *partition) Match(ctx context.Context, key offline.RequestKey) (offline.Response, bool, error) {
	var d entryDoc
	err := p.s.entries.FindOne(ctx, p.filter(key)).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return offline.Response{}, false, nil
	}
	if err != nil {
		return offline.Response{}, false, err
	}
	resp := offline.Response{
		Status: d.Status,
		Header: http.Header(d.Header),
		Body:   d.Body,
		Type:   offline.ResponseType(d.Type),
		URL:    d.RespURL,
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	return resp, true, nil
}

func (p *partition) Put(ctx context.Context, key offline.RequestKey, resp offline.Response) error {
	if err := offline.CheckKey(key); err != nil {
		return err
	}
	if err := p.live(ctx); err != nil {
		return err
	}
	if _, err := p.s.entries.ReplaceOne(ctx, p.filter(key), p.doc(key, resp), options.Replace().SetUpsert(true)); err != nil {
		return err
	}
	// Delete may have run between the check and the upsert.
	if err := p.live(ctx); errors.Is(err, offline.ErrPartitionDeleted) {
		if _, derr := p.s.entries.DeleteOne(ctx, p.filter(key)); derr != nil {
			return errors.Join(err, fmt.Errorf("drop orphan in %s: %w", p.name, derr))
		}
		return err
	} else if err != nil {
		return err
	}
	return nil
}

// live reports offline.ErrPartitionDeleted once the partition row is gone.
func (p *partition) live(ctx context.Context) error {
	n, err := p.s.parts.CountDocuments(ctx, bson.M{"_id": p.name}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("check partition %s: %w", p.name, err)
	}
	if n == 0 {
		return offline.ErrPartitionDeleted
	}
	return nil
}

// PutAll writes entries in one bulk request. Keys are checked first, so a
// non-GET entry means nothing is written. If the bulk write fails, the
// entries it may have written are removed again.
func (p *partition) PutAll(ctx context.Context, entries []offline.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := p.live(ctx); err != nil {
		return err
	}
	models := make([]mongo.WriteModel, 0, len(entries))
	for _, e := range entries {
		if err := offline.CheckKey(e.Key); err != nil {
			return err
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(p.filter(e.Key)).
			SetReplacement(p.doc(e.Key, e.Response)).
			SetUpsert(true))
	}
	_, err := p.s.entries.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err == nil {
		return nil
	}

	keys := make(bson.A, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, bson.M{"method": e.Key.Method, "url": e.Key.URL})
	}
	if _, derr := p.s.entries.DeleteMany(ctx, bson.M{"partition": p.name, "$or": keys}); derr != nil {
		return errors.Join(err, fmt.Errorf("roll back %s: %w", p.name, derr))
	}
	return err
}

func (p *partition) Len(ctx context.Context) (int, error) {
	n, err := p.s.entries.CountDocuments(ctx, bson.M{"partition": p.name})
	return int(n), err
}
