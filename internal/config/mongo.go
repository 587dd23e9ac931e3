package config

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"context-rag-platform/utils"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := utils.WithTimeout(context.Background())
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	// Create indexes
	err = createIndexes(client, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

func createIndexes(client *mongo.Client, dbName string) error {
	db := client.Database(dbName)

	// Contexts collection indexes
	contextsCollection := db.Collection("contexts")
	contextIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
	}
	_, err := contextsCollection.Indexes().CreateMany(context.Background(), contextIndexes)
	if err != nil {
		return err
	}

	// Documents collection indexes
	documentsCollection := db.Collection("documents")
	documentIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "context_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "context_id", Value: 1}, {Key: "file_hash", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "context_id", Value: 1}, {Key: "processed_at", Value: 1}},
		},
	}
	_, err = documentsCollection.Indexes().CreateMany(context.Background(), documentIndexes)
	if err != nil {
		return err
	}

	// Context versions collection indexes
	versionsCollection := db.Collection("context_versions")
	versionIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "context_id", Value: 1}, {Key: "version", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "context_id", Value: 1}, {Key: "is_current", Value: 1}},
		},
	}
	_, err = versionsCollection.Indexes().CreateMany(context.Background(), versionIndexes)
	if err != nil {
		return err
	}

	// Version tags collection indexes
	tagsCollection := db.Collection("version_tags")
	tagIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "context_id", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "version_id", Value: 1}},
		},
	}
	_, err = tagsCollection.Indexes().CreateMany(context.Background(), tagIndexes)
	if err != nil {
		return err
	}

	return nil
}
