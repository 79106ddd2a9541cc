// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
//
// WAFFLE passes DBDeps by value to every hook, so the services built in
// Startup hang off a pointer that ConnectDB allocates.
type DBDeps struct {
	MongoClient   *mongo.Client   // nil with the memory cache store
	MongoDatabase *mongo.Database // nil with the memory cache store

	Services *Services
}
