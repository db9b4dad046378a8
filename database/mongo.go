package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/biosecret/go-tasks/apperror"
	"github.com/biosecret/go-tasks/models"
)

// MongoStore keeps users and tasks as documents, one collection each.
type MongoStore struct {
	client *mongo.Client
	users  *mongo.Collection
	tasks  *mongo.Collection
}

type userDoc struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"passwordHash"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

type taskDoc struct {
	ID          string     `bson:"_id"`
	OwnerID     string     `bson:"ownerId"`
	Title       string     `bson:"title"`
	Description string     `bson:"description"`
	Status      string     `bson:"status"`
	DueDate     *time.Time `bson:"dueDate,omitempty"`
	CreatedAt   time.Time  `bson:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt"`
}

func (d taskDoc) toModel() models.Task {
	task := models.Task{
		ID:          d.ID,
		OwnerID:     d.OwnerID,
		Title:       d.Title,
		Description: d.Description,
		Status:      models.Status(d.Status),
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
	if d.DueDate != nil {
		due := d.DueDate.UTC()
		task.DueDate = &due
	}
	return task
}

// OpenMongo connects, pings the primary and ensures the indexes exist.
func OpenMongo(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("cannot connect to MongoDB: %w", err)
	}

	db := client.Database(dbName)
	s := &MongoStore{
		client: client,
		users:  db.Collection("users"),
		tasks:  db.Collection("tasks"),
	}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = s.tasks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	return err
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.users.InsertOne(ctx, userDoc{
		ID:           user.ID,
		Name:         user.Name,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.New(apperror.KindConflict, "User already exists")
		}
		return apperror.Internal("insert user", err)
	}
	return nil
}

func (s *MongoStore) UserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *MongoStore) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("user")
		}
		return nil, apperror.Internal("find user", err)
	}
	return &models.User{
		ID:           doc.ID,
		Name:         doc.Name,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt.UTC(),
		UpdatedAt:    doc.UpdatedAt.UTC(),
	}, nil
}

func (s *MongoStore) CreateTask(ctx context.Context, task *models.Task) error {
	_, err := s.tasks.InsertOne(ctx, taskDoc{
		ID:          task.ID,
		OwnerID:     task.OwnerID,
		Title:       task.Title,
		Description: task.Description,
		Status:      string(task.Status),
		DueDate:     task.DueDate,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	})
	if err != nil {
		return apperror.Internal("insert task", err)
	}
	return nil
}

func (s *MongoStore) TaskByID(ctx context.Context, id string) (*models.Task, error) {
	var doc taskDoc
	if err := s.tasks.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("task")
		}
		return nil, apperror.Internal("find task", err)
	}
	task := doc.toModel()
	return &task, nil
}

func (s *MongoStore) TasksByOwner(ctx context.Context, ownerID string) ([]models.Task, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.tasks.Find(ctx, bson.M{"ownerId": ownerID}, opts)
	if err != nil {
		return nil, apperror.Internal("find tasks", err)
	}

	var docs []taskDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperror.Internal("decode tasks", err)
	}

	tasks := make([]models.Task, 0, len(docs))
	for _, doc := range docs {
		tasks = append(tasks, doc.toModel())
	}
	return tasks, nil
}

func (s *MongoStore) UpdateTask(ctx context.Context, ownerID, id string, patch models.TaskPatch, updatedAt time.Time) (*models.Task, error) {
	set := bson.M{"updatedAt": updatedAt}
	unset := bson.M{}

	if patch.Title.Present() {
		set["title"] = patch.Title.Value
	}
	if patch.Description.Set {
		set["description"] = patch.Description.Value
	}
	if patch.DueDate.Set {
		if patch.DueDate.Null {
			unset["dueDate"] = ""
		} else {
			set["dueDate"] = patch.DueDate.Value.Time
		}
	}
	if patch.Status.Present() {
		set["status"] = string(patch.Status.Value)
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	var doc taskDoc
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := s.tasks.FindOneAndUpdate(ctx, bson.M{"_id": id, "ownerId": ownerID}, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("task")
		}
		return nil, apperror.Internal("update task", err)
	}
	task := doc.toModel()
	return &task, nil
}

func (s *MongoStore) DeleteTask(ctx context.Context, ownerID, id string) error {
	res, err := s.tasks.DeleteOne(ctx, bson.M{"_id": id, "ownerId": ownerID})
	if err != nil {
		return apperror.Internal("delete task", err)
	}
	if res.DeletedCount == 0 {
		return apperror.NotFound("task")
	}
	return nil
}
