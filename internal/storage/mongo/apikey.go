package mongo

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/auth"
)

type apiKeyDoc struct {
	ID         string   `bson:"_id"`
	KeyHash    string   `bson:"keyHash"`
	Name       string   `bson:"name"`
	CustomerID string   `bson:"customerId"`
	Scopes     []string `bson:"scopes"`
	Active     bool     `bson:"active"`
}

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository provides API key lookups backed by MongoDB.
type APIKeyRepository struct {
	coll *mongo.Collection
}

// NewAPIKeyRepository returns an APIKeyRepository on db's api_keys collection.
func NewAPIKeyRepository(db *mongo.Database) *APIKeyRepository {
	return &APIKeyRepository{coll: db.Collection(APIKeysCollection)}
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var d apiKeyDoc
	err := r.coll.FindOne(ctx, bson.M{"keyHash": hash, "active": true}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, auth.ErrNotFound
		}
		return nil, fmt.Errorf("finding api key by hash: %w", err)
	}
	return &auth.APIKeyInfo{
		ID:         d.ID,
		KeyHash:    d.KeyHash,
		Name:       d.Name,
		CustomerID: d.CustomerID,
		Scopes:     d.Scopes,
	}, nil
}

// Upsert stores an active API key.
func (r *APIKeyRepository) Upsert(ctx context.Context, info *auth.APIKeyInfo) error {
	d := apiKeyDoc{
		ID:         info.ID,
		KeyHash:    info.KeyHash,
		Name:       info.Name,
		CustomerID: info.CustomerID,
		Scopes:     nonNil(info.Scopes),
		Active:     true,
	}
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": d.ID}, d, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upserting api key %q: %w", info.ID, err)
	}
	return nil
}
