package store

import (
	"context"
	stderrors "errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/gridrisk/pkg/errors"
	"github.com/matzehuels/gridrisk/pkg/observability"
	"github.com/matzehuels/gridrisk/pkg/simulation"
)

// ReportsCollection holds one document per run.
const ReportsCollection = "reports"

const mongoTimeout = 10 * time.Second

// MongoStore upserts run reports into MongoDB.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ Sink = (*MongoStore)(nil)

// NewMongoStore connects to uri and checks the server is reachable.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "connect to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(mongoErrorCode(err), err, "ping mongodb")
	}
	return &MongoStore{client: client, coll: client.Database(database).Collection(ReportsCollection)}, nil
}

// mongoErrorCode classifies a driver error. Server-side command errors such
// as failed authentication repeat on every run and are fatal.
func mongoErrorCode(err error) errors.Code {
	switch {
	case mongo.IsTimeout(err):
		return errors.ErrCodeTimeout
	case mongo.IsNetworkError(err):
		return errors.ErrCodeNetwork
	}
	var cmd mongo.CommandError
	if stderrors.As(err, &cmd) {
		return errors.ErrCodeInvalidConfig
	}
	return errors.ErrCodeNetwork
}

// Name implements [Sink].
func (s *MongoStore) Name() string { return "mongo" }

// reportFilter selects the document of one run.
func reportFilter(r Report) bson.M {
	return bson.M{"run_id": r.RunID}
}

// reportUpdate replaces every field of the run's document.
func reportUpdate(r Report) bson.D {
	return bson.D{{Key: "$set", Value: r}}
}

// Write implements [Sink].
func (s *MongoStore) Write(ctx context.Context, res *simulation.Result) error {
	start := time.Now()
	r := NewReport(res)
	_, err := s.coll.UpdateOne(ctx, reportFilter(r), reportUpdate(r), options.Update().SetUpsert(true))
	if err != nil {
		err = errors.Wrap(mongoErrorCode(err), err, "store report %s", r.RunID)
	}
	observability.Store().OnWrite(ctx, s.Name(), 1, time.Since(start), err)
	return err
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
