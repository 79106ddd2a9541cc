package testutil

import (
	"context"
	"net/http"
	"testing"

	"github.com/dalemusser/guiafarma/internal/app/store/offlinecache"
	"github.com/dalemusser/guiafarma/internal/app/system/offline"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// SeedPartition creates a partition holding one 200 text response per URL.
func (f *Fixtures) SeedPartition(ctx context.Context, name string, bodies map[string]string) offline.Partition {
	f.t.Helper()

	p, err := offlinecache.New(f.db).Open(ctx, name)
	if err != nil {
		f.t.Fatalf("failed to open partition %s: %v", name, err)
	}
	entries := make([]offline.Entry, 0, len(bodies))
	for url, body := range bodies {
		h := make(http.Header)
		h.Set("Content-Type", "text/plain")
		entries = append(entries, offline.Entry{
			Key:      offline.RequestKey{Method: http.MethodGet, URL: url},
			Response: offline.Response{Status: http.StatusOK, Header: h, Body: []byte(body), Type: offline.TypeBasic, URL: url},
		})
	}
	if err := p.PutAll(ctx, entries); err != nil {
		f.t.Fatalf("failed to seed partition %s: %v", name, err)
	}
	return p
}
