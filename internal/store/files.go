package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// FileHash returns the stored whole-file hash for a path. found is false
// when the path has never been ingested.
func (s *Store) FileHash(ctx context.Context, path string) (hash string, found bool, err error) {
	var meta FileMeta
	err = s.files().FindOne(ctx, bson.M{keyID: path},
		options.FindOne().SetProjection(bson.D{{Key: keyHash, Value: 1}})).Decode(&meta)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return meta.Hash, true, nil
}

// StoredPaths lists the tracked file paths restricted to the given sources.
// Stale cleanup diffs this against the paths a sync run enumerated.
func (s *Store) StoredPaths(ctx context.Context, sources []Source) ([]string, error) {
	raw, err := s.files().Distinct(ctx, keyID, bson.M{keySource: bson.M{"$in": sources}})
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(raw))
	for _, v := range raw {
		if p, ok := v.(string); ok {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// ExpiredPaths returns paths of the given source whose file meta is older
// than cutoff. Used by the memory TTL sweep.
func (s *Store) ExpiredPaths(ctx context.Context, source Source, cutoff time.Time) ([]string, error) {
	filter := bson.M{
		keySource:    source,
		keyUpdatedAt: bson.M{"$lt": cutoff},
	}
	return s.FindIDs(ctx, s.prefix+CollFiles, filter, 0)
}

// DeletePaths removes the chunks and file metas for the given paths and
// returns the number of chunks removed.
func (s *Store) DeletePaths(ctx context.Context, paths []string) (int64, error) {
	if len(paths) == 0 {
		return 0, nil
	}

	res, err := s.chunks().DeleteMany(ctx, bson.M{keyPath: bson.M{"$in": paths}})
	if err != nil {
		return 0, err
	}
	if _, err := s.files().DeleteMany(ctx, bson.M{keyID: bson.M{"$in": paths}}); err != nil {
		return res.DeletedCount, err
	}
	return res.DeletedCount, nil
}

// ReplaceFileChunks replaces a path's entire chunk set and its file meta in
// one transaction with majority write concern. The first server error
// proving the deployment cannot run transactions (standalone) latches the
// sequential fallback for the rest of the process; the write is retried
// through it immediately.
func (s *Store) ReplaceFileChunks(ctx context.Context, meta FileMeta, chunks []Chunk) error {
	return s.atomically(ctx, func(c context.Context) error {
		return s.replaceBody(c, meta, chunks)
	})
}

// atomically runs body in a transaction when the deployment supports them,
// and sequentially otherwise. Bodies must be idempotent: the driver may
// re-run them on transient transaction errors, and the fallback retries
// them outside a transaction.
func (s *Store) atomically(ctx context.Context, body func(context.Context) error) error {
	if !s.txnUnsupported.Load() {
		err := s.runInTxn(ctx, body)
		if err == nil || !isTxnUnsupported(err) {
			return err
		}
		s.txnUnsupported.Store(true)
		s.logger.Warn("transactions unavailable on this deployment, using sequential writes",
			slog.String("error", err.Error()))
	}
	return body(ctx)
}

func (s *Store) runInTxn(ctx context.Context, body func(context.Context) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	txnOpts := options.Transaction().SetWriteConcern(writeconcern.Majority())
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, body(sc)
	}, txnOpts)
	return err
}

// replaceBody deletes the path's old chunks, upserts the new set, then
// upserts the file meta. Deterministic _ids keep it idempotent.
func (s *Store) replaceBody(ctx context.Context, meta FileMeta, chunks []Chunk) error {
	if _, err := s.chunks().DeleteMany(ctx, bson.M{keyPath: meta.Path}); err != nil {
		return err
	}

	if len(chunks) > 0 {
		models := make([]mongo.WriteModel, len(chunks))
		for i, c := range chunks {
			models[i] = mongo.NewReplaceOneModel().
				SetFilter(bson.M{keyID: c.ID}).
				SetReplacement(c).
				SetUpsert(true)
		}
		if _, err := s.chunks().BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
			return err
		}
	}

	_, err := s.files().ReplaceOne(ctx, bson.M{keyID: meta.Path}, meta,
		options.Replace().SetUpsert(true))
	return err
}

// isTxnUnsupported classifies server errors that mean the deployment cannot
// run multi-document transactions at all, as opposed to a transient abort.
func isTxnUnsupported(err error) bool {
	if err == nil {
		return false
	}
	if hasErrorCode(err, codeIllegalOperation) || hasErrorCode(err, codeNoSuchTransaction) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Transaction numbers are only allowed on a replica set") ||
		strings.Contains(msg, "does not support sessions")
}
