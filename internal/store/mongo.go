package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"context-rag-platform/models"
)

// MongoStore implements Store on MongoDB collections.
type MongoStore struct {
	client    *mongo.Client
	contexts  *mongo.Collection
	documents *mongo.Collection
	versions  *mongo.Collection
	tags      *mongo.Collection
}

func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	db := client.Database(dbName)
	return &MongoStore{
		client:    client,
		contexts:  db.Collection("contexts"),
		documents: db.Collection("documents"),
		versions:  db.Collection("context_versions"),
		tags:      db.Collection("version_tags"),
	}
}

func (s *MongoStore) CreateContext(ctx context.Context, c *models.Context) error {
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err := s.contexts.InsertOne(ctx, c)
	if err != nil {
		return fmt.Errorf("failed to insert context: %w", err)
	}
	return nil
}

func (s *MongoStore) GetContext(ctx context.Context, id primitive.ObjectID) (*models.Context, error) {
	var c models.Context
	err := s.contexts.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrContextNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load context: %w", err)
	}
	return &c, nil
}

func (s *MongoStore) ListContexts(ctx context.Context) ([]models.Context, error) {
	cursor, err := s.contexts.Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"created_at": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list contexts: %w", err)
	}
	defer cursor.Close(ctx)

	var contexts []models.Context
	if err := cursor.All(ctx, &contexts); err != nil {
		return nil, fmt.Errorf("failed to decode contexts: %w", err)
	}
	return contexts, nil
}

// DeleteContext removes the context and everything it owns: documents,
// versions, and tags.
func (s *MongoStore) DeleteContext(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.contexts.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete context: %w", err)
	}
	if res.DeletedCount == 0 {
		return models.ErrContextNotFound
	}

	filter := bson.M{"context_id": id}
	if _, err := s.documents.DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("failed to delete context documents: %w", err)
	}
	if _, err := s.versions.DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("failed to delete context versions: %w", err)
	}
	if _, err := s.tags.DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("failed to delete version tags: %w", err)
	}
	return nil
}

func (s *MongoStore) UpdateContextConfig(ctx context.Context, id primitive.ObjectID, config map[string]any, chunkStrategy, embeddingModel string) error {
	res, err := s.contexts.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"config":          config,
			"chunk_strategy":  chunkStrategy,
			"embedding_model": embeddingModel,
			"updated_at":      time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update context config: %w", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrContextNotFound
	}
	return nil
}

func (s *MongoStore) TryMarkProcessing(ctx context.Context, id primitive.ObjectID) error {
	res := s.contexts.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": bson.M{"$ne": models.StatusProcessing}},
		bson.M{"$set": bson.M{
			"status":        models.StatusProcessing,
			"progress":      0,
			"error_message": "",
			"updated_at":    time.Now(),
		}},
	)
	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Either absent or already processing; disambiguate.
			if _, getErr := s.GetContext(ctx, id); getErr != nil {
				return getErr
			}
			return models.ErrAlreadyProcessing
		}
		return fmt.Errorf("failed to mark context processing: %w", err)
	}
	return nil
}

func (s *MongoStore) UpdateStatus(ctx context.Context, id primitive.ObjectID, status string, progress int, errorMessage string) error {
	res, err := s.contexts.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"status":        status,
			"progress":      progress,
			"error_message": errorMessage,
			"updated_at":    time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update context status: %w", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrContextNotFound
	}
	return nil
}

func (s *MongoStore) SetProgress(ctx context.Context, id primitive.ObjectID, progress int) error {
	_, err := s.contexts.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"progress": progress, "updated_at": time.Now()},
	})
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

func (s *MongoStore) SetIndexPath(ctx context.Context, id primitive.ObjectID, path string) error {
	_, err := s.contexts.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"index_path": path, "updated_at": time.Now()},
	})
	if err != nil {
		return fmt.Errorf("failed to set index path: %w", err)
	}
	return nil
}

func (s *MongoStore) AddStatistics(ctx context.Context, id primitive.ObjectID, chunks, tokens int) error {
	_, err := s.contexts.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{"total_chunks": chunks, "total_tokens": tokens},
		"$set": bson.M{"updated_at": time.Now()},
	})
	if err != nil {
		return fmt.Errorf("failed to accumulate statistics: %w", err)
	}
	return nil
}

func (s *MongoStore) ResetStatistics(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.contexts.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"total_chunks": 0, "total_tokens": 0, "updated_at": time.Now()},
	})
	if err != nil {
		return fmt.Errorf("failed to reset statistics: %w", err)
	}
	return nil
}

func (s *MongoStore) CreateDocument(ctx context.Context, d *models.Document) error {
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	d.UploadedAt = time.Now()
	_, err := s.documents.InsertOne(ctx, d)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (s *MongoStore) GetDocument(ctx context.Context, id primitive.ObjectID) (*models.Document, error) {
	var d models.Document
	err := s.documents.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return &d, nil
}

func (s *MongoStore) ListDocuments(ctx context.Context, contextID primitive.ObjectID) ([]models.Document, error) {
	return s.findDocuments(ctx, bson.M{"context_id": contextID})
}

func (s *MongoStore) ListUnprocessedDocuments(ctx context.Context, contextID primitive.ObjectID) ([]models.Document, error) {
	return s.findDocuments(ctx, bson.M{"context_id": contextID, "processed_at": nil})
}

func (s *MongoStore) findDocuments(ctx context.Context, filter bson.M) ([]models.Document, error) {
	cursor, err := s.documents.Find(ctx, filter, options.Find().SetSort(bson.M{"uploaded_at": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}
	return docs, nil
}

func (s *MongoStore) MarkDocumentProcessed(ctx context.Context, id primitive.ObjectID, chunkCount, tokenEstimate int, category string) error {
	now := time.Now()
	_, err := s.documents.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"processed_at":   now,
			"chunk_count":    chunkCount,
			"token_estimate": tokenEstimate,
			"category":       category,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to mark document processed: %w", err)
	}
	return nil
}

func (s *MongoStore) ResetProcessedMarkers(ctx context.Context, contextID primitive.ObjectID) error {
	_, err := s.documents.UpdateMany(ctx, bson.M{"context_id": contextID}, bson.M{
		"$set": bson.M{"processed_at": nil, "chunk_count": 0, "token_estimate": 0},
	})
	if err != nil {
		return fmt.Errorf("failed to reset processed markers: %w", err)
	}
	return nil
}

func (s *MongoStore) FindDocumentByHash(ctx context.Context, contextID primitive.ObjectID, hash string) (*models.Document, error) {
	var d models.Document
	err := s.documents.FindOne(ctx, bson.M{"context_id": contextID, "file_hash": hash}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up document by hash: %w", err)
	}
	return &d, nil
}

func (s *MongoStore) CountDocuments(ctx context.Context, contextID primitive.ObjectID) (int, error) {
	n, err := s.documents.CountDocuments(ctx, bson.M{"context_id": contextID})
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return int(n), nil
}

func (s *MongoStore) SaveExtractionCache(ctx context.Context, id primitive.ObjectID, data []byte, compression string) error {
	_, err := s.documents.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"extracted_text": data, "compression": compression},
	})
	if err != nil {
		return fmt.Errorf("failed to save extraction cache: %w", err)
	}
	return nil
}

// CreateVersion unsets the previous current flag and inserts the new version
// inside one transaction, so the one-current-per-context invariant holds
// under concurrent version creation. Requires a replica set deployment.
func (s *MongoStore) CreateVersion(ctx context.Context, v *models.ContextVersion) error {
	if v.ID.IsZero() {
		v.ID = primitive.NewObjectID()
	}
	v.CreatedAt = time.Now()
	v.IsCurrent = true

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		_, err := s.versions.UpdateMany(sc,
			bson.M{"context_id": v.ContextID, "is_current": true},
			bson.M{"$set": bson.M{"is_current": false}},
		)
		if err != nil {
			return nil, err
		}
		_, err = s.versions.InsertOne(sc, v)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to create version: %w", err)
	}
	return nil
}

func (s *MongoStore) GetVersion(ctx context.Context, id primitive.ObjectID) (*models.ContextVersion, error) {
	var v models.ContextVersion
	err := s.versions.FindOne(ctx, bson.M{"_id": id}).Decode(&v)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load version: %w", err)
	}
	return &v, nil
}

func (s *MongoStore) GetCurrentVersion(ctx context.Context, contextID primitive.ObjectID) (*models.ContextVersion, error) {
	var v models.ContextVersion
	err := s.versions.FindOne(ctx, bson.M{"context_id": contextID, "is_current": true}).Decode(&v)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load current version: %w", err)
	}
	return &v, nil
}

func (s *MongoStore) ListVersions(ctx context.Context, contextID primitive.ObjectID) ([]models.ContextVersion, error) {
	cursor, err := s.versions.Find(ctx,
		bson.M{"context_id": contextID},
		options.Find().SetSort(bson.M{"created_at": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer cursor.Close(ctx)

	var versions []models.ContextVersion
	if err := cursor.All(ctx, &versions); err != nil {
		return nil, fmt.Errorf("failed to decode versions: %w", err)
	}
	return versions, nil
}

func (s *MongoStore) CreateTag(ctx context.Context, t *models.VersionTag) error {
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	t.CreatedAt = time.Now()
	_, err := s.tags.InsertOne(ctx, t)
	if err != nil {
		return fmt.Errorf("failed to insert tag: %w", err)
	}
	return nil
}

func (s *MongoStore) ListTags(ctx context.Context, contextID primitive.ObjectID) ([]models.VersionTag, error) {
	cursor, err := s.tags.Find(ctx, bson.M{"context_id": contextID}, options.Find().SetSort(bson.M{"created_at": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer cursor.Close(ctx)

	var tags []models.VersionTag
	if err := cursor.All(ctx, &tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	return tags, nil
}

func (s *MongoStore) DeleteTag(ctx context.Context, contextID primitive.ObjectID, name string) error {
	res, err := s.tags.DeleteOne(ctx, bson.M{"context_id": contextID, "name": name})
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	if res.DeletedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}
