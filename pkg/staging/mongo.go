package staging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const insertBatchSize = 1000

// MongoStore implements Store on a MongoDB database.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// NewMongoStore connects to uri and uses database dbName.
func NewMongoStore(ctx context.Context, uri, dbName string, logger *slog.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(dbName), logger: logger}, nil
}

// Ping checks the server is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// PendingSources implements Store.
func (s *MongoStore) PendingSources(ctx context.Context) ([]string, error) {
	cur, err := s.db.Collection(SrcDumpCollection).Find(ctx, bson.M{"pending_to_upload": true})
	if err != nil {
		return nil, fmt.Errorf("failed to query src_dump: %w", err)
	}
	defer cur.Close(ctx)

	var srcs []string
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		// ObjectId ids are not user-defined sources.
		if id, ok := doc["_id"].(string); ok {
			srcs = append(srcs, id)
		}
	}
	return srcs, cur.Err()
}

// MarkUploadStarted implements Store.
func (s *MongoStore) MarkUploadStarted(ctx context.Context, src string) error {
	_, err := s.db.Collection(SrcDumpCollection).UpdateOne(ctx,
		bson.M{"_id": src},
		bson.M{"$unset": bson.M{"pending_to_upload": "", "upload": ""}})
	if err != nil {
		return fmt.Errorf("failed to mark upload of %s: %w", src, err)
	}
	return nil
}

// SourceStatus implements Store.
func (s *MongoStore) SourceStatus(ctx context.Context, src string) (*SrcDump, error) {
	var doc SrcDump
	err := s.db.Collection(SrcDumpCollection).FindOne(ctx, bson.M{"_id": src}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("src_dump %s: %w", src, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// RegisterDump implements Store.
func (s *MongoStore) RegisterDump(ctx context.Context, src string, rec DumpRecord) error {
	set := bson.M{
		"download": DownloadStatus{
			Status:    rec.Status,
			StartedAt: rec.StartedAt,
			Time:      FormatElapsed(rec.Elapsed),
			Error:     rec.Err,
		},
	}
	if rec.Status == StatusSuccess {
		set["release"] = rec.Release
		set["data_folder"] = rec.DataFolder
		if rec.PendingToUpload {
			set["pending_to_upload"] = true
		}
	}
	if rec.LogFile != "" {
		set["logfile"] = rec.LogFile
	}
	_, err := s.db.Collection(SrcDumpCollection).UpdateOne(ctx,
		bson.M{"_id": src}, bson.M{"$set": set}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to register dump of %s: %w", src, err)
	}
	return nil
}

// RegisterUpload implements Store.
func (s *MongoStore) RegisterUpload(ctx context.Context, src, uploader string, job UploadJob) error {
	_, err := s.db.Collection(SrcDumpCollection).UpdateOne(ctx,
		bson.M{"_id": src},
		bson.M{"$set": bson.M{
			"upload.status":          job.Status,
			"upload.jobs." + uploader: job,
		}}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to register upload %s/%s: %w", src, uploader, err)
	}
	return nil
}

// ReplaceCollection implements Store.
func (s *MongoStore) ReplaceCollection(ctx context.Context, name string, docs <-chan Doc) (int64, error) {
	tmpName := fmt.Sprintf("%s_temp_%d", name, time.Now().UnixNano())
	tmp := s.db.Collection(tmpName)

	var count int64
	batch := make([]any, 0, insertBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := tmp.InsertMany(ctx, batch); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", tmpName, err)
		}
		count += int64(len(batch))
		batch = batch[:0]
		return nil
	}
	abort := func(err error) (int64, error) {
		if derr := tmp.Drop(context.WithoutCancel(ctx)); derr != nil {
			s.logger.Warn("failed to drop temp collection", "collection", tmpName, "error", derr)
		}
		return count, err
	}

	for done := false; !done; {
		select {
		case <-ctx.Done():
			return abort(ctx.Err())
		case doc, ok := <-docs:
			if !ok {
				done = true
				break
			}
			batch = append(batch, doc)
			if len(batch) >= insertBatchSize {
				if err := flush(); err != nil {
					return abort(err)
				}
			}
		}
	}
	if err := flush(); err != nil {
		return abort(err)
	}

	if count == 0 {
		if err := s.db.Collection(name).Drop(ctx); err != nil {
			return 0, fmt.Errorf("failed to empty %s: %w", name, err)
		}
		return 0, nil
	}

	cmd := bson.D{
		{Key: "renameCollection", Value: s.db.Name() + "." + tmpName},
		{Key: "to", Value: s.db.Name() + "." + name},
		{Key: "dropTarget", Value: true},
	}
	if err := s.client.Database("admin").RunCommand(ctx, cmd).Err(); err != nil {
		return abort(fmt.Errorf("failed to rename %s to %s: %w", tmpName, name, err))
	}
	s.logger.Info("uploaded collection", "collection", name, "count", count)
	return count, nil
}

// Find implements Store.
func (s *MongoStore) Find(ctx context.Context, name string, filter Filter) (Cursor, error) {
	if filter == nil {
		filter = Filter{}
	}
	cur, err := s.db.Collection(name).Find(ctx, bson.M(filter), options.Find().SetNoCursorTimeout(true))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", name, err)
	}
	return cur, nil
}

// FindOne implements Store.
func (s *MongoStore) FindOne(ctx context.Context, name, id string, v any) error {
	err := s.db.Collection(name).FindOne(ctx, bson.M{"_id": id}).Decode(v)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s/%s: %w", name, id, ErrNotFound)
	}
	return err
}

// Count implements Store.
func (s *MongoStore) Count(ctx context.Context, name string, filter Filter) (int64, error) {
	if filter == nil {
		filter = Filter{}
	}
	return s.db.Collection(name).CountDocuments(ctx, bson.M(filter))
}

// Drop removes the whole database.
func (s *MongoStore) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
