package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/prefeitura-rio/app-scim-sync/internal/config"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collections names the MongoDB collections backing the directory
type Collections struct {
	Realms     string
	Users      string
	Groups     string
	Roles      string
	Components string
}

// CollectionsFromConfig reads collection names from the application config
func CollectionsFromConfig(cfg *config.Config) Collections {
	return Collections{
		Realms:     cfg.RealmCollection,
		Users:      cfg.UserCollection,
		Groups:     cfg.GroupCollection,
		Roles:      cfg.RoleCollection,
		Components: cfg.ComponentCollection,
	}
}

// Mongo is a Directory backed by MongoDB
type Mongo struct {
	realms     *mongo.Collection
	users      *mongo.Collection
	groups     *mongo.Collection
	roles      *mongo.Collection
	components *mongo.Collection
}

// NewMongo returns a Mongo directory on db
func NewMongo(db *mongo.Database, c Collections) *Mongo {
	return &Mongo{
		realms:     db.Collection(c.Realms),
		users:      db.Collection(c.Users),
		groups:     db.Collection(c.Groups),
		roles:      db.Collection(c.Roles),
		components: db.Collection(c.Components),
	}
}

// EnsureIndexes creates the lookup indexes used by sweeps and unique lookups
func (d *Mongo) EnsureIndexes(ctx context.Context) error {
	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{d.users, mongo.IndexModel{
			Keys:    bson.D{{Key: "realm_id", Value: 1}, {Key: "enabled", Value: 1}, {Key: "federation_link", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("realm_sweep_1"),
		}},
		{d.users, mongo.IndexModel{
			Keys:    bson.D{{Key: "realm_id", Value: 1}, {Key: "username", Value: 1}},
			Options: options.Index().SetName("realm_username_1").SetUnique(true),
		}},
		{d.groups, mongo.IndexModel{
			Keys:    bson.D{{Key: "realm_id", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().SetName("realm_name_1"),
		}},
		{d.components, mongo.IndexModel{
			Keys:    bson.D{{Key: "realm_id", Value: 1}, {Key: "provider_id", Value: 1}},
			Options: options.Index().SetName("realm_provider_1"),
		}},
	}
	for _, idx := range indexes {
		if err := config.EnsureIndex(ctx, idx.coll, idx.model); err != nil {
			return fmt.Errorf("ensure directory index: %w", err)
		}
	}
	return nil
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, notFound error) (*T, error) {
	var out T
	err := coll.FindOne(ctx, filter).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound
	}
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", coll.Name(), err)
	}
	return &out, nil
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, opts *options.FindOptions) ([]*T, error) {
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)

	out := make([]*T, 0)
	for cursor.Next(ctx) {
		var item T
		if err := cursor.Decode(&item); err != nil {
			return nil, fmt.Errorf("decode %s: %w", coll.Name(), err)
		}
		out = append(out, &item)
	}
	return out, cursor.Err()
}

func (d *Mongo) GetRealm(ctx context.Context, realmID string) (*models.Realm, error) {
	return findOne[models.Realm](ctx, d.realms, bson.M{"_id": realmID}, models.ErrRealmNotFound)
}

func (d *Mongo) GetUser(ctx context.Context, realmID, userID string) (*models.User, error) {
	return findOne[models.User](ctx, d.users, bson.M{"_id": userID, "realm_id": realmID}, models.ErrUserNotFound)
}

func (d *Mongo) GetUserByUsername(ctx context.Context, realmID, username string) (*models.User, error) {
	return findOne[models.User](ctx, d.users, bson.M{"realm_id": realmID, "username": username}, models.ErrUserNotFound)
}

func (d *Mongo) GetGroup(ctx context.Context, realmID, groupID string) (*models.Group, error) {
	return findOne[models.Group](ctx, d.groups, bson.M{"_id": groupID, "realm_id": realmID}, models.ErrGroupNotFound)
}

func (d *Mongo) GetGroupByName(ctx context.Context, realmID, name string) (*models.Group, error) {
	return findOne[models.Group](ctx, d.groups, bson.M{"realm_id": realmID, "name": name}, models.ErrGroupNotFound)
}

func (d *Mongo) GetRole(ctx context.Context, realmID, roleID string) (*models.Role, error) {
	return findOne[models.Role](ctx, d.roles, bson.M{"_id": roleID, "realm_id": realmID}, models.ErrRoleNotFound)
}

func (d *Mongo) ListGroups(ctx context.Context, realmID string) ([]*models.Group, error) {
	return findAll[models.Group](ctx, d.groups, bson.M{"realm_id": realmID},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (d *Mongo) SearchUsers(ctx context.Context, realmID string, q UserQuery) ([]*models.User, error) {
	filter := bson.M{"realm_id": realmID}
	if q.Enabled != nil {
		filter["enabled"] = *q.Enabled
	}
	if len(q.FederationLinks) > 0 {
		filter["federation_link"] = bson.M{"$in": q.FederationLinks}
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if q.Offset > 0 {
		opts.SetSkip(int64(q.Offset))
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	return findAll[models.User](ctx, d.users, filter, opts)
}

func (d *Mongo) setExternalID(ctx context.Context, coll *mongo.Collection, realmID, id, componentID, externalID string, notFound error) error {
	res, err := coll.UpdateOne(ctx,
		bson.M{"_id": id, "realm_id": realmID},
		bson.M{"$set": bson.M{"external_ids." + componentID: externalID}},
	)
	if err != nil {
		return fmt.Errorf("set external id: %w", err)
	}
	if res.MatchedCount == 0 {
		return notFound
	}
	return nil
}

func (d *Mongo) SetUserExternalID(ctx context.Context, realmID, userID, componentID, externalID string) error {
	return d.setExternalID(ctx, d.users, realmID, userID, componentID, externalID, models.ErrUserNotFound)
}

func (d *Mongo) SetGroupExternalID(ctx context.Context, realmID, groupID, componentID, externalID string) error {
	return d.setExternalID(ctx, d.groups, realmID, groupID, componentID, externalID, models.ErrGroupNotFound)
}

func (d *Mongo) ClearGroupExternalID(ctx context.Context, realmID, groupID, componentID string) error {
	_, err := d.groups.UpdateOne(ctx,
		bson.M{"_id": groupID, "realm_id": realmID},
		bson.M{"$unset": bson.M{"external_ids." + componentID: ""}},
	)
	if err != nil {
		return fmt.Errorf("clear external id: %w", err)
	}
	return nil
}

func (d *Mongo) RemoveGroupAttribute(ctx context.Context, realmID, groupID, name string) error {
	res, err := d.groups.UpdateOne(ctx,
		bson.M{"_id": groupID, "realm_id": realmID},
		bson.M{"$unset": bson.M{"attributes." + name: ""}},
	)
	if err != nil {
		return fmt.Errorf("remove group attribute: %w", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrGroupNotFound
	}
	return nil
}

func (d *Mongo) ListComponents(ctx context.Context, realmID, providerID string) ([]*models.Component, error) {
	filter := bson.M{"realm_id": realmID}
	if providerID != "" {
		filter["provider_id"] = providerID
	}
	return findAll[models.Component](ctx, d.components, filter,
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (d *Mongo) GetComponent(ctx context.Context, realmID, componentID string) (*models.Component, error) {
	return findOne[models.Component](ctx, d.components, bson.M{"_id": componentID, "realm_id": realmID}, models.ErrComponentNotFound)
}

func upsert(ctx context.Context, coll *mongo.Collection, id string, doc interface{}) error {
	_, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert into %s: %w", coll.Name(), err)
	}
	return nil
}

// ImportSeed upserts every object of seed. Existing documents are replaced.
func (d *Mongo) ImportSeed(ctx context.Context, seed *Seed) (int, error) {
	n := 0
	for i := range seed.Realms {
		realm := &seed.Realms[i]
		if err := upsert(ctx, d.realms, realm.ID, &realm.Realm); err != nil {
			return n, err
		}
		n++
		for j := range realm.Components {
			if err := upsert(ctx, d.components, realm.Components[j].ID, &realm.Components[j]); err != nil {
				return n, err
			}
			n++
		}
		for j := range realm.Roles {
			if err := upsert(ctx, d.roles, realm.Roles[j].ID, &realm.Roles[j]); err != nil {
				return n, err
			}
			n++
		}
		for j := range realm.Groups {
			if err := upsert(ctx, d.groups, realm.Groups[j].ID, &realm.Groups[j]); err != nil {
				return n, err
			}
			n++
		}
		for j := range realm.Users {
			if err := upsert(ctx, d.users, realm.Users[j].ID, &realm.Users[j]); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}
