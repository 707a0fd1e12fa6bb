package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB server error codes the schema manager reacts to.
const (
	codeNamespaceExists       = 48
	codeNamespaceNotFound     = 26
	codeIndexOptionsConflict  = 85
	codeIndexKeySpecsConflict = 86
	codeIndexNotFound         = 27
	codeIllegalOperation      = 20
	codeNoSuchTransaction     = 251
	codeUnrecognizedStage     = 40324
)

// validatorFor returns the $jsonSchema validator for a base collection name,
// or nil when the collection carries none. Validation is advisory: documents
// that fail still land, the server only logs a warning.
func validatorFor(base string) bson.M {
	switch base {
	case CollChunks:
		return bson.M{
			"$jsonSchema": bson.M{
				"bsonType": "object",
				"required": []string{keyPath, keyText, keyHash, keyUpdatedAt},
			},
		}
	case CollKBDocs:
		return bson.M{
			"$jsonSchema": bson.M{
				"bsonType": "object",
				"required": []string{keyHash, "title", keySource, keyUpdatedAt},
				"properties": bson.M{
					keySource: bson.M{
						"bsonType": "object",
						"properties": bson.M{
							keyType: bson.M{
								"enum": []string{
									string(KBSourceFile),
									string(KBSourceURL),
									string(KBSourceManual),
									string(KBSourceAPI),
								},
							},
						},
					},
				},
			},
		}
	case CollKBChunks:
		return bson.M{
			"$jsonSchema": bson.M{
				"bsonType": "object",
				"required": []string{keyDocID, keyPath, keyText, keyStartLine, keyEndLine, keyUpdatedAt},
				"properties": bson.M{
					keyDocID: bson.M{"bsonType": "string"},
				},
			},
		}
	case CollStructured:
		return bson.M{
			"$jsonSchema": bson.M{
				"bsonType": "object",
				"required": []string{keyType, keyKey, keyValue, keyUpdatedAt},
				"properties": bson.M{
					"confidence": bson.M{
						"bsonType": "double",
						"minimum":  0,
						"maximum":  1,
					},
				},
			},
		}
	default:
		return nil
	}
}

// allCollections lists every base collection the subsystem uses.
func allCollections() []string {
	return []string{
		CollChunks, CollFiles, CollKBDocs, CollKBChunks,
		CollStructured, CollCache, CollMeta,
	}
}

// EnsureCollections creates every collection, attaching warn-level schema
// validators where defined. Existing collections are left in place;
// EnsureSchemaValidation refreshes their validators.
func (s *Store) EnsureCollections(ctx context.Context) error {
	for _, base := range allCollections() {
		opts := options.CreateCollection()
		if v := validatorFor(base); v != nil {
			opts.SetValidator(v).SetValidationAction("warn")
		}

		err := s.db.CreateCollection(ctx, s.prefix+base, opts)
		if err == nil {
			continue
		}
		if hasErrorCode(err, codeNamespaceExists) {
			continue
		}
		return fmt.Errorf("create collection %s: %w", base, err)
	}
	return nil
}

// EnsureSchemaValidation applies the current validators to collections that
// already exist, via collMod. Idempotent.
func (s *Store) EnsureSchemaValidation(ctx context.Context) error {
	for _, base := range allCollections() {
		v := validatorFor(base)
		if v == nil {
			continue
		}

		err := s.db.RunCommand(ctx, bson.D{
			{Key: "collMod", Value: s.prefix + base},
			{Key: "validator", Value: v},
			{Key: "validationAction", Value: "warn"},
		}).Err()
		if err == nil || errors.Is(err, mongo.ErrNoDocuments) {
			continue
		}
		if hasErrorCode(err, codeNamespaceNotFound) {
			// Collection missing entirely; EnsureCollections covers it.
			continue
		}
		s.logger.Warn("schema validation update failed",
			slog.String("collection", base),
			slog.String("error", err.Error()))
	}
	return nil
}

// hasErrorCode reports whether err is a MongoDB server error carrying code.
func hasErrorCode(err error, code int) bool {
	var srvErr mongo.ServerError
	if errors.As(err, &srvErr) {
		return srvErr.HasErrorCode(code)
	}
	return false
}
