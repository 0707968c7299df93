package mongo

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/product"
)

type imageDoc struct {
	Thumbnail string `bson:"thumbnail"`
	Mobile    string `bson:"mobile"`
	Tablet    string `bson:"tablet"`
	Desktop   string `bson:"desktop"`
}

type productDoc struct {
	ID          string               `bson:"_id"`
	Name        string               `bson:"name"`
	Description string               `bson:"description"`
	Price       primitive.Decimal128 `bson:"price"`
	Category    string               `bson:"category"`
	Image       imageDoc             `bson:"image"`
}

func toProductDoc(p *product.Product) (productDoc, error) {
	price, err := toDecimal128(p.Price)
	if err != nil {
		return productDoc{}, fmt.Errorf("encoding product %q: %w", p.ID, err)
	}
	return productDoc{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       price,
		Category:    p.Category,
		Image:       imageDoc(p.Image),
	}, nil
}

func (d productDoc) toDomain() (product.Product, error) {
	price, err := fromDecimal128(d.Price)
	if err != nil {
		return product.Product{}, fmt.Errorf("decoding product %q: %w", d.ID, err)
	}
	return product.Product{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Price:       price,
		Category:    d.Category,
		Image:       product.Image(d.Image),
	}, nil
}

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by MongoDB.
type ProductRepository struct {
	coll *mongo.Collection
}

// NewProductRepository returns a ProductRepository on db's products collection.
func NewProductRepository(db *mongo.Database) *ProductRepository {
	return &ProductRepository{coll: db.Collection(ProductsCollection)}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	return r.find(ctx, bson.M{})
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	var d productDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	p, err := d.toDomain()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	return r.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

// Upsert inserts or replaces a catalog product.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	d, err := toProductDoc(p)
	if err != nil {
		return err
	}
	if _, err := r.coll.ReplaceOne(ctx, bson.M{"_id": p.ID}, d, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

func (r *ProductRepository) find(ctx context.Context, filter bson.M) ([]product.Product, error) {
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}

	out := make([]product.Product, 0, len(docs))
	for _, d := range docs {
		p, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
