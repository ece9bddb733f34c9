package jobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/prefeitura-rio/app-scim-sync/internal/config"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopts "go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is a Store backed by a MongoDB collection
type MongoStore struct {
	coll         *mongo.Collection
	transactions bool
	inTx         bool
	opts         options
}

// NewMongoStore returns a MongoStore on collection. With transactions set,
// InTx runs inside a multi-document transaction (requires a replica set).
func NewMongoStore(db *mongo.Database, collection string, transactions bool, opts ...Option) *MongoStore {
	return &MongoStore{
		coll:         db.Collection(collection),
		transactions: transactions,
		opts:         buildOptions(opts),
	}
}

// EnsureIndexes creates the target and due-ordering indexes
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "group_id", Value: 1}, {Key: "role_id", Value: 1}, {Key: "action", Value: 1}},
			Options: mopts.Index().SetName("target_1"),
		},
		{
			Keys:    bson.D{{Key: "retry_count", Value: 1}, {Key: "created_at", Value: 1}},
			Options: mopts.Index().SetName("due_1"),
		},
		{
			// at most one due job per target
			Keys: bson.D{
				{Key: "realm_id", Value: 1}, {Key: "action", Value: 1},
				{Key: "user_id", Value: 1}, {Key: "group_id", Value: 1}, {Key: "role_id", Value: 1},
			},
			Options: mopts.Index().
				SetName(fmt.Sprintf("due_target_unique_c%d", s.opts.ceiling)).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"retry_count": bson.M{"$lte": s.opts.ceiling}}),
		},
	}
	for _, idx := range indexes {
		if err := config.EnsureIndex(ctx, s.coll, idx); err != nil {
			return fmt.Errorf("ensure job index: %w", err)
		}
	}
	return nil
}

func dueFilter(ceiling int) bson.M {
	return bson.M{"retry_count": bson.M{"$gte": 0, "$lte": ceiling}}
}

func targetFilter(t models.JobTarget) bson.M {
	return bson.M{
		"realm_id": t.RealmID,
		"action":   t.Action,
		"user_id":  t.UserID,
		"group_id": t.GroupID,
		"role_id":  t.RoleID,
	}
}

func fifo() *mopts.FindOptions {
	return mopts.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
}

func (s *MongoStore) findDue(ctx context.Context, t models.JobTarget) (*models.SyncJob, error) {
	filter := targetFilter(t)
	for k, v := range dueFilter(s.opts.ceiling) {
		filter[k] = v
	}

	var job models.SyncJob
	err := s.coll.FindOne(ctx, filter,
		mopts.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}),
	).Decode(&job)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *MongoStore) Enqueue(ctx context.Context, req EnqueueRequest) (*models.SyncJob, bool, error) {
	if err := validateRequest(req); err != nil {
		return nil, false, err
	}

	existing, err := s.findDue(ctx, req.Target())
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, fmt.Errorf("find due job: %w", err)
	}

	job := s.opts.newJob(req)
	if _, err := s.coll.InsertOne(ctx, job); err != nil {
		// a concurrent enqueue won the unique due-target index
		if mongo.IsDuplicateKeyError(err) {
			existing, findErr := s.findDue(ctx, req.Target())
			if findErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("insert job: %w", err)
	}
	return job, true, nil
}

func (s *MongoStore) FetchDue(ctx context.Context, limit int) ([]*models.SyncJob, error) {
	return s.find(ctx, dueFilter(s.opts.ceiling), limit)
}

func (s *MongoStore) MarkRetry(ctx context.Context, job *models.SyncJob) error {
	res, err := s.coll.UpdateByID(ctx, job.ID, bson.M{"$inc": bson.M{"retry_count": 1}})
	if err != nil {
		return fmt.Errorf("mark retry: %w", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrJobNotFound
	}
	job.RetryCount++
	return nil
}

// Requeue is a single document update, so it needs no transaction to be atomic
func (s *MongoStore) Requeue(ctx context.Context, job *models.SyncJob) error {
	now := s.opts.now()
	res, err := s.coll.UpdateByID(ctx, job.ID, bson.M{
		"$inc": bson.M{"retry_count": 1},
		"$set": bson.M{"created_at": now},
	})
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrJobNotFound
	}
	job.RetryCount++
	job.CreatedAt = now
	return nil
}

func (s *MongoStore) Remove(ctx context.Context, job *models.SyncJob) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": job.ID}); err != nil {
		return fmt.Errorf("remove job: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*models.SyncJob, error) {
	var job models.SyncJob
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

func (s *MongoStore) ListAbandoned(ctx context.Context, limit int) ([]*models.SyncJob, error) {
	return s.find(ctx, bson.M{"retry_count": bson.M{"$gt": s.opts.ceiling}}, limit)
}

func (s *MongoStore) FindAbandoned(ctx context.Context, t models.JobTarget) (*models.SyncJob, error) {
	filter := targetFilter(t)
	filter["retry_count"] = bson.M{"$gt": s.opts.ceiling}

	var job models.SyncJob
	err := s.coll.FindOne(ctx, filter,
		mopts.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}),
	).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find abandoned job: %w", err)
	}
	return &job, nil
}

func (s *MongoStore) Park(ctx context.Context, job *models.SyncJob) error {
	parked := s.opts.parkedCount()
	res, err := s.coll.UpdateByID(ctx, job.ID, bson.M{"$set": bson.M{"retry_count": parked}})
	if err != nil {
		return fmt.Errorf("park job: %w", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrJobNotFound
	}
	job.RetryCount = parked
	return nil
}

func (s *MongoStore) Revive(ctx context.Context, id string) (*models.SyncJob, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.IsDue(s.opts.ceiling) {
		return job, nil
	}

	if _, err := s.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{"retry_count": 0}}); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateDue
		}
		return nil, fmt.Errorf("revive job: %w", err)
	}
	job.RetryCount = 0
	return job, nil
}

func (s *MongoStore) Stats(ctx context.Context) (Stats, error) {
	due, err := s.coll.CountDocuments(ctx, dueFilter(s.opts.ceiling))
	if err != nil {
		return Stats{}, fmt.Errorf("count due jobs: %w", err)
	}
	abandoned, err := s.coll.CountDocuments(ctx, bson.M{"retry_count": bson.M{"$gt": s.opts.ceiling}})
	if err != nil {
		return Stats{}, fmt.Errorf("count abandoned jobs: %w", err)
	}
	return Stats{Due: due, Abandoned: abandoned}, nil
}

// InTx runs fn inside a session transaction when transactions are enabled.
// Without them each operation is individually atomic.
func (s *MongoStore) InTx(ctx context.Context, fn TxFunc) error {
	if s.inTx || !s.transactions {
		return fn(ctx, s)
	}

	session, err := s.coll.Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	tx := &MongoStore{coll: s.coll, transactions: true, inTx: true, opts: s.opts}
	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx, tx)
	})
	return err
}

// Close is a no-op; the caller owns the MongoDB client
func (s *MongoStore) Close() error { return nil }

func (s *MongoStore) find(ctx context.Context, filter bson.M, limit int) ([]*models.SyncJob, error) {
	opts := fifo()
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer cursor.Close(ctx)

	jobs := make([]*models.SyncJob, 0)
	for cursor.Next(ctx) {
		var job models.SyncJob
		if err := cursor.Decode(&job); err != nil {
			return nil, fmt.Errorf("decode job: %w", err)
		}
		jobs = append(jobs, &job)
	}
	return jobs, cursor.Err()
}
