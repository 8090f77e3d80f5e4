// Package mongo provides a MongoDB-backed participant store.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"voice-survey-service/internal/models"
	"voice-survey-service/internal/store"
)

// Config holds MongoDB connection settings.
type Config struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store implements store.Store on a single collection keyed by callId.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	now        func() time.Time
}

var _ store.Store = (*Store)(nil)

// New connects to MongoDB, verifies the connection and ensures the unique
// callId index exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.Timeout > 0 {
		opts.SetTimeout(cfg.Timeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "callId", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("callId_unique"),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ensure callId index: %w", err)
	}

	log.Info().
		Str("database", cfg.Database).
		Str("collection", cfg.Collection).
		Msg("Mongo participant store initialized")

	return &Store{client: client, collection: coll, now: time.Now}, nil
}

func (s *Store) FindByCallID(ctx context.Context, callID string) (*models.Participant, error) {
	var p models.Participant
	err := s.collection.FindOne(ctx, bson.M{"callId": callID}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find participant %s: %w", callID, err)
	}
	return &p, nil
}

func (s *Store) Create(ctx context.Context, callID, number string) (*models.Participant, error) {
	now := s.now().UTC()
	p := &models.Participant{
		CallID:    callID,
		Number:    number,
		Responses: []models.Answer{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := s.collection.InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, store.ErrDuplicateKey
		}
		return nil, fmt.Errorf("insert participant %s: %w", callID, err)
	}
	return p, nil
}

func (s *Store) AppendAnswer(ctx context.Context, callID string, answer models.Answer, limit int) (*models.Participant, error) {
	if answer.RecordedAt.IsZero() {
		answer.RecordedAt = s.now().UTC()
	}

	if limit > 0 {
		var p models.Participant
		err := s.collection.FindOneAndUpdate(ctx,
			appendFilter(callID, answer, limit),
			appendUpdate(answer),
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&p)
		if err == nil {
			return &p, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("append answer for %s: %w", callID, err)
		}
	}

	// Guard did not match: the participant is missing, already holds this
	// leg, or is full. Report what is stored.
	return s.FindByCallID(ctx, callID)
}

// List returns every participant ordered by creation time.
func (s *Store) List(ctx context.Context) ([]*models.Participant, error) {
	cur, err := s.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer cur.Close(ctx)

	var out []*models.Participant
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}
	return out, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// appendFilter matches the participant only while the recording is
// unstored and fewer than limit answers are stored. Blank references are
// never deduplicated.
func appendFilter(callID string, answer models.Answer, limit int) bson.M {
	f := bson.M{
		"callId": callID,
		fmt.Sprintf("responses.%d", limit-1): bson.M{"$exists": false},
	}
	if answer.Keyed() {
		f["responses"] = bson.M{"$not": bson.M{"$elemMatch": bson.M{
			"legId":       answer.LegID,
			"recordingId": answer.RecordingID,
		}}}
	}
	return f
}

func appendUpdate(answer models.Answer) bson.M {
	return bson.M{
		"$push": bson.M{"responses": answer},
		"$set":  bson.M{"updatedAt": answer.RecordedAt},
	}
}
