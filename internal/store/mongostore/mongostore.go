// Package mongostore keeps users, guesses and the round state in three
// MongoDB collections keyed by username (and "round" for the state).
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	models "github.com/CodeAndHammer/roundguess/internal/models"
)

const (
	usersCollection   = "users"
	guessesCollection = "guesses"
	systemCollection  = "system"
	roundStateID      = "round"
)

type Options struct {
	URI      string
	Database string
	// Transactions wraps RunInTx in a multi-document transaction. The
	// server must be a replica set or sharded cluster.
	Transactions bool
}

type roundDoc struct {
	ID        string `bson:"_id"`
	RoundOpen bool   `bson:"roundOpen"`
}

type Store struct {
	client       *mongo.Client
	users        *mongo.Collection
	guesses      *mongo.Collection
	system       *mongo.Collection
	transactions bool
}

func Open(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.URI) == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if strings.TrimSpace(opts.Database) == "" {
		return nil, fmt.Errorf("mongo database is required")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(opts.Database)
	return &Store{
		client:       client,
		users:        db.Collection(usersCollection),
		guesses:      db.Collection(guessesCollection),
		system:       db.Collection(systemCollection),
		transactions: opts.Transactions,
	}, nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) GetUser(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := s.users.FindOne(ctx, bson.M{"_id": username}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, models.ErrNotFound
		}
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *Store) CreateUserIfAbsent(ctx context.Context, username string) (bool, error) {
	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": username},
		bson.M{"$setOnInsert": bson.M{"score": 0}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		// A concurrent upsert won the insert.
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("create user: %w", err)
	}
	return res.UpsertedCount == 1, nil
}

func (s *Store) AddScore(ctx context.Context, username string, delta int) error {
	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": username},
		bson.M{"$inc": bson.M{"score": delta}},
	)
	if err != nil {
		return fmt.Errorf("add score: %w", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	cur, err := s.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]models.User, 0)
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *Store) GetGuess(ctx context.Context, username string) (models.Guess, error) {
	var guess models.Guess
	err := s.guesses.FindOne(ctx, bson.M{"_id": username}).Decode(&guess)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Guess{}, models.ErrNotFound
		}
		return models.Guess{}, fmt.Errorf("get guess: %w", err)
	}
	return guess, nil
}

func (s *Store) UpsertGuess(ctx context.Context, guess models.Guess) error {
	_, err := s.guesses.ReplaceOne(ctx,
		bson.M{"_id": guess.Username},
		guess,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert guess: %w", err)
	}
	return nil
}

func (s *Store) ListGuesses(ctx context.Context) ([]models.Guess, error) {
	cur, err := s.guesses.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list guesses: %w", err)
	}
	guesses := make([]models.Guess, 0)
	if err := cur.All(ctx, &guesses); err != nil {
		return nil, fmt.Errorf("list guesses: %w", err)
	}
	return guesses, nil
}

func (s *Store) DeleteGuess(ctx context.Context, username string) (bool, error) {
	res, err := s.guesses.DeleteOne(ctx, bson.M{"_id": username})
	if err != nil {
		return false, fmt.Errorf("delete guess: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (s *Store) DeleteAllGuesses(ctx context.Context) error {
	if _, err := s.guesses.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("delete guesses: %w", err)
	}
	return nil
}

func (s *Store) GetRoundState(ctx context.Context) (models.RoundState, error) {
	var doc roundDoc
	err := s.system.FindOne(ctx, bson.M{"_id": roundStateID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.RoundState{}, models.ErrNotFound
		}
		return models.RoundState{}, fmt.Errorf("get round state: %w", err)
	}
	return models.RoundState{RoundOpen: doc.RoundOpen}, nil
}

func (s *Store) SetRoundState(ctx context.Context, state models.RoundState) error {
	_, err := s.system.UpdateOne(ctx,
		bson.M{"_id": roundStateID},
		bson.M{"$set": bson.M{"roundOpen": state.RoundOpen}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("set round state: %w", err)
	}
	return nil
}

func (s *Store) InitRoundState(ctx context.Context, state models.RoundState) error {
	_, err := s.system.UpdateOne(ctx,
		bson.M{"_id": roundStateID},
		bson.M{"$setOnInsert": bson.M{"roundOpen": state.RoundOpen}},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("init round state: %w", err)
	}
	return nil
}

// RunInTx runs fn inside a session transaction when transactions are
// enabled. Otherwise fn runs directly and each write commits on its own.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx models.Store) error) error {
	if !s.transactions {
		return fn(ctx, s)
	}
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx, s)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(context.Background())

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, s)
	})
	return err
}

func (s *Store) Transactional() bool {
	return s.transactions
}

var _ models.Store = (*Store)(nil)
