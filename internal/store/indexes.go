package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

// Name constants for index creation and selection.
const (
	indexChunksPath         = "path_1"
	indexChunksPathHash     = "path_1_hash_1"
	indexChunksUpdatedAt    = "updatedAt_1"
	indexChunksEmbedStatus  = "embeddingStatus_1_updatedAt_1"
	indexChunksText         = "text_text"
	indexFilesUpdatedAt     = "updatedAt_1"
	indexKBChunksDocID      = "docId_1"
	indexKBChunksText       = "text_text"
	indexKBDocsTags         = "tags_1"
	indexStructuredKey      = "agentId_1_type_1_key_1"
	indexStructuredText     = "value_context_key_text"
	indexCacheKey           = "provider_1_model_1_providerKey_1_hash_1"
	indexCacheTTL           = "createdAt_ttl"
	indexCacheCreatedAtFlat = "createdAt_1"
)

// EnsureStandardIndexes creates the B-tree and text indexes every deployment
// tier relies on. cacheTTL > 0 additionally puts a TTL index on the
// embedding cache; zero drops it again. Idempotent.
func (s *Store) EnsureStandardIndexes(ctx context.Context, cacheTTL time.Duration) error {
	e, ctx := errgroup.WithContext(ctx)

	e.Go(func() error {
		_, err := s.chunks().Indexes().CreateMany(ctx, []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: keyPath, Value: 1}},
				Options: options.Index().SetName(indexChunksPath),
			},
			{
				Keys:    bson.D{{Key: keyPath, Value: 1}, {Key: keyHash, Value: 1}},
				Options: options.Index().SetName(indexChunksPathHash),
			},
			{
				Keys:    bson.D{{Key: keyUpdatedAt, Value: 1}},
				Options: options.Index().SetName(indexChunksUpdatedAt),
			},
			{
				Keys:    bson.D{{Key: keyEmbeddingStatus, Value: 1}, {Key: keyUpdatedAt, Value: 1}},
				Options: options.Index().SetName(indexChunksEmbedStatus),
			},
			{
				Keys:    bson.D{{Key: keyText, Value: "text"}},
				Options: options.Index().SetName(indexChunksText),
			},
		})
		return wrapIndexErr(CollChunks, err)
	})

	e.Go(func() error {
		_, err := s.files().Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: keyUpdatedAt, Value: 1}},
			Options: options.Index().SetName(indexFilesUpdatedAt),
		})
		return wrapIndexErr(CollFiles, err)
	})

	e.Go(func() error {
		_, err := s.kbChunks().Indexes().CreateMany(ctx, []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: keyDocID, Value: 1}},
				Options: options.Index().SetName(indexKBChunksDocID),
			},
			{
				Keys:    bson.D{{Key: keyText, Value: "text"}},
				Options: options.Index().SetName(indexKBChunksText),
			},
		})
		return wrapIndexErr(CollKBChunks, err)
	})

	e.Go(func() error {
		_, err := s.kbDocs().Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: keyTags, Value: 1}},
			Options: options.Index().SetName(indexKBDocsTags),
		})
		return wrapIndexErr(CollKBDocs, err)
	})

	e.Go(func() error {
		_, err := s.structured().Indexes().CreateMany(ctx, []mongo.IndexModel{
			{
				Keys: bson.D{
					{Key: keyAgentID, Value: 1},
					{Key: keyType, Value: 1},
					{Key: keyKey, Value: 1},
				},
				Options: options.Index().SetName(indexStructuredKey).SetUnique(true),
			},
			{
				Keys: bson.D{
					{Key: keyValue, Value: "text"},
					{Key: keyContext, Value: "text"},
					{Key: keyKey, Value: "text"},
				},
				Options: options.Index().SetName(indexStructuredText),
			},
		})
		return wrapIndexErr(CollStructured, err)
	})

	e.Go(func() error {
		_, err := s.cache().Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{
				{Key: keyProvider, Value: 1},
				{Key: keyModel, Value: 1},
				{Key: keyProviderKey, Value: 1},
				{Key: keyHash, Value: 1},
			},
			Options: options.Index().SetName(indexCacheKey).SetUnique(true),
		})
		if err != nil {
			return wrapIndexErr(CollCache, err)
		}
		return s.ensureCacheTTL(ctx, cacheTTL)
	})

	return e.Wait()
}

// ensureCacheTTL reconciles the TTL index on embedding_cache.createdAt with
// the configured retention. The server refuses two indexes over the same key
// with different options, so the conflicting one is dropped first.
func (s *Store) ensureCacheTTL(ctx context.Context, ttl time.Duration) error {
	v := s.cache().Indexes()
	keys := bson.D{{Key: keyCreatedAt, Value: 1}}

	if ttl <= 0 {
		// Retention disabled: replace the TTL index with a plain one.
		if err := s.dropIndexIfExists(ctx, v, indexCacheTTL); err != nil {
			return err
		}
		_, err := v.CreateOne(ctx, mongo.IndexModel{
			Keys:    keys,
			Options: options.Index().SetName(indexCacheCreatedAtFlat),
		})
		return wrapIndexErr(CollCache, err)
	}

	seconds := int32(ttl.Seconds())
	model := mongo.IndexModel{
		Keys:    keys,
		Options: options.Index().SetName(indexCacheTTL).SetExpireAfterSeconds(seconds),
	}

	if err := s.dropIndexIfExists(ctx, v, indexCacheCreatedAtFlat); err != nil {
		return err
	}
	_, err := v.CreateOne(ctx, model)
	if err == nil {
		return nil
	}
	if !hasErrorCode(err, codeIndexOptionsConflict) && !hasErrorCode(err, codeIndexKeySpecsConflict) {
		return wrapIndexErr(CollCache, err)
	}

	// Same name, different expireAfterSeconds. collMod changes the value in
	// place; dropping and re-creating would momentarily lose the index.
	if err := s.db.RunCommand(ctx, bson.D{
		{Key: "collMod", Value: s.prefix + CollCache},
		{Key: "index", Value: bson.D{
			{Key: "keyPattern", Value: keys},
			{Key: "expireAfterSeconds", Value: seconds},
		}},
	}).Err(); err != nil {
		s.logger.Warn("cache ttl update via collMod failed, recreating index",
			slog.String("error", err.Error()))
		if err := s.dropIndexIfExists(ctx, v, indexCacheTTL); err != nil {
			return err
		}
		_, err := v.CreateOne(ctx, model)
		return wrapIndexErr(CollCache, err)
	}
	return nil
}

func (s *Store) dropIndexIfExists(ctx context.Context, v mongo.IndexView, name string) error {
	_, err := v.DropOne(ctx, name)
	if err == nil || hasErrorCode(err, codeIndexNotFound) || hasErrorCode(err, codeNamespaceNotFound) {
		return nil
	}
	return fmt.Errorf("drop index %s: %w", name, err)
}

func wrapIndexErr(base string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ensure indexes on %s: %w", base, err)
}
