package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// KBDocHash returns the stored content hash for a knowledge base document.
func (s *Store) KBDocHash(ctx context.Context, docID string) (hash string, found bool, err error) {
	var doc KBDocument
	err = s.kbDocs().FindOne(ctx, bson.M{keyID: docID},
		options.FindOne().SetProjection(bson.D{{Key: keyHash, Value: 1}})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return doc.Hash, true, nil
}

// ReplaceKBDocument replaces a knowledge base document and its entire chunk
// set atomically, through the same transaction-or-sequential path as file
// ingest.
func (s *Store) ReplaceKBDocument(ctx context.Context, doc KBDocument, chunks []KBChunk) error {
	return s.atomically(ctx, func(c context.Context) error {
		return s.kbReplaceBody(c, doc, chunks)
	})
}

func (s *Store) kbReplaceBody(ctx context.Context, doc KBDocument, chunks []KBChunk) error {
	if _, err := s.kbChunks().DeleteMany(ctx, bson.M{keyDocID: doc.DocID}); err != nil {
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
		if _, err := s.kbChunks().BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
			return err
		}
	}

	_, err := s.kbDocs().ReplaceOne(ctx, bson.M{keyID: doc.DocID}, doc,
		options.Replace().SetUpsert(true))
	return err
}

// KBDocIDs lists document ids, restricted to the given source types when
// any are passed. The KB refresh diffs this against its valid import set.
func (s *Store) KBDocIDs(ctx context.Context, types []KBSourceType) ([]string, error) {
	filter := bson.M{}
	if len(types) > 0 {
		filter[keySource+"."+keyType] = bson.M{"$in": types}
	}
	return s.FindIDs(ctx, s.prefix+CollKBDocs, filter, 0)
}

// DeleteKBDocuments removes documents and their chunks, returning the
// number of chunks removed.
func (s *Store) DeleteKBDocuments(ctx context.Context, docIDs []string) (int64, error) {
	if len(docIDs) == 0 {
		return 0, nil
	}

	res, err := s.kbChunks().DeleteMany(ctx, bson.M{keyDocID: bson.M{"$in": docIDs}})
	if err != nil {
		return 0, err
	}
	if _, err := s.kbDocs().DeleteMany(ctx, bson.M{keyID: bson.M{"$in": docIDs}}); err != nil {
		return res.DeletedCount, err
	}
	return res.DeletedCount, nil
}

// ListKBDocuments returns all knowledge base documents, without chunk
// bodies.
func (s *Store) ListKBDocuments(ctx context.Context) ([]KBDocument, error) {
	cur, err := s.kbDocs().Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}

	var docs []KBDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// CheckKBOrphans reports kb chunk docIds that have no parent document.
// Diagnostics only: nothing is deleted, the caller decides what to log.
func (s *Store) CheckKBOrphans(ctx context.Context) ([]string, error) {
	raw, err := s.kbChunks().Distinct(ctx, keyDocID, bson.M{})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	known, err := s.KBDocIDs(ctx, nil)
	if err != nil {
		return nil, err
	}
	knownSet := make(map[string]bool, len(known))
	for _, id := range known {
		knownSet[id] = true
	}

	var orphans []string
	for _, v := range raw {
		id, ok := v.(string)
		if ok && !knownSet[id] {
			orphans = append(orphans, id)
		}
	}
	return orphans, nil
}
