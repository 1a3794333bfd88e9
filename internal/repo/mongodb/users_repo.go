package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/holocron/internal/domain/user"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const usersCollection = "users"

type userDoc struct {
	ID               string    `bson:"_id"`
	Email            string    `bson:"email"`
	PasswordHash     string    `bson:"passwordHash"`
	Role             string    `bson:"role"`
	RefreshTokenHash *string   `bson:"refreshTokenHash"`
	CreatedAt        time.Time `bson:"createdAt"`
	UpdatedAt        time.Time `bson:"updatedAt"`
}

func (d userDoc) toUser() user.User {
	return user.User{
		ID:               d.ID,
		Email:            d.Email,
		PasswordHash:     d.PasswordHash,
		Role:             user.Role(d.Role),
		RefreshTokenHash: d.RefreshTokenHash,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

// Observer wraps a store operation for metrics; see observability.Prom.ObserveDB.
type Observer interface {
	ObserveDB(op string, fn func() error) error
}

type passthrough struct{}

func (passthrough) ObserveDB(_ string, fn func() error) error { return fn() }

type UsersRepo struct {
	client *mongo.Client
	coll   *mongo.Collection
	obs    Observer
}

func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetServerSelectionTimeout(5 * time.Second))
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return client, nil
}

func NewUsersRepo(client *mongo.Client, database string, obs Observer) *UsersRepo {
	if obs == nil {
		obs = passthrough{}
	}

	return &UsersRepo{
		client: client,
		coll:   client.Database(database).Collection(usersCollection),
		obs:    obs,
	}
}

// EnsureIndexes creates the unique email index that backs duplicate detection.
func (r *UsersRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	return err
}

func (r *UsersRepo) Create(ctx context.Context, email, passwordHash string, role user.Role) (user.User, error) {
	now := time.Now().UTC()

	doc := userDoc{
		ID:           uuid.NewString(),
		Email:        user.NormalizeEmail(email),
		PasswordHash: passwordHash,
		Role:         string(role),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := r.obs.ObserveDB("users.create", func() error {
		_, err := r.coll.InsertOne(ctx, doc)
		return err
	})

	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, err
	}

	return doc.toUser(), nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.findOne(ctx, "users.get_by_email", bson.D{{Key: "email", Value: user.NormalizeEmail(email)}})
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	return r.findOne(ctx, "users.get_by_id", bson.D{{Key: "_id", Value: id}})
}

func (r *UsersRepo) SetRefreshTokenHash(ctx context.Context, id, hash string) error {
	matched, err := r.update(ctx, "users.set_refresh_hash", bson.D{{Key: "_id", Value: id}}, hash)
	if err != nil {
		return err
	}
	if !matched {
		return user.ErrNotFound
	}
	return nil
}

// SwapRefreshTokenHash matches on the old hash inside the filter, so the
// compare and the write are one atomic document update.
func (r *UsersRepo) SwapRefreshTokenHash(ctx context.Context, id, oldHash, newHash string) (bool, error) {
	return r.update(ctx, "users.swap_refresh_hash",
		bson.D{{Key: "_id", Value: id}, {Key: "refreshTokenHash", Value: oldHash}},
		newHash,
	)
}

func (r *UsersRepo) ClearRefreshTokenHash(ctx context.Context, id string) error {
	matched, err := r.update(ctx, "users.clear_refresh_hash", bson.D{{Key: "_id", Value: id}}, nil)
	if err != nil {
		return err
	}
	if !matched {
		return user.ErrNotFound
	}
	return nil
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

func (r *UsersRepo) findOne(ctx context.Context, op string, filter bson.D) (user.User, error) {
	var doc userDoc

	err := r.obs.ObserveDB(op, func() error {
		return r.coll.FindOne(ctx, filter).Decode(&doc)
	})

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}

	return doc.toUser(), nil
}

func (r *UsersRepo) update(ctx context.Context, op string, filter bson.D, hash any) (bool, error) {
	var res *mongo.UpdateResult

	err := r.obs.ObserveDB(op, func() error {
		var err error
		res, err = r.coll.UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: bson.D{
			{Key: "refreshTokenHash", Value: hash},
			{Key: "updatedAt", Value: time.Now().UTC()},
		}}})
		return err
	})

	if err != nil {
		return false, err
	}

	return res.MatchedCount == 1, nil
}
