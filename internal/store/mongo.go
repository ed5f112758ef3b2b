// Package store implements the Persistence Adapter (§4.4) against MongoDB:
// connection setup in the idiom of this codebase's NewDB()/Health()/Close()
// database lifecycle, and the node/root/datahash document shapes described
// in SPEC_FULL.md §3 and §4.4.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/kvpair-io/kvpair-server/internal/apierr"
	"github.com/kvpair-io/kvpair-server/internal/merkletree"
)

const rootDocID = "root"

// kind discriminators for the three document shapes sharing a collection.
const (
	kindNode     = "node"
	kindRoot     = "root"
	kindDataHash = "datahash"
)

// nodeDoc is the BSON shape for all three document kinds a tenant
// collection holds; unused fields are simply absent rather than zero, since
// Mongo is schemaless.
type nodeDoc struct {
	ID       string `bson:"_id"`
	Kind     string `bson:"kind"`
	Index    int64  `bson:"index,omitempty"`
	Hash     []byte `bson:"hash,omitempty"`
	NodeType int32  `bson:"node_type,omitempty"`
	Data     []byte `bson:"data,omitempty"`
	Left     []byte `bson:"left,omitempty"`
	Right    []byte `bson:"right,omitempty"`
}

func nodeDocID(index uint64) string {
	return fmt.Sprintf("node:%d", index)
}

func dataHashDocID(h merkletree.Hash) string {
	return fmt.Sprintf("datahash:%x", h[:])
}

func toDoc(n *merkletree.Node) nodeDoc {
	d := nodeDoc{
		ID:       nodeDocID(n.Index),
		Kind:     kindNode,
		Index:    int64(n.Index),
		Hash:     n.Hash[:],
		NodeType: int32(n.Type),
	}
	switch n.Type {
	case merkletree.NodeTypeLeaf:
		d.Data = n.Data[:]
	case merkletree.NodeTypeNonLeaf:
		d.Left = n.Left[:]
		d.Right = n.Right[:]
	}
	return d
}

func fromDoc(d nodeDoc) (*merkletree.Node, error) {
	n := &merkletree.Node{Index: uint64(d.Index), Type: merkletree.NodeType(d.NodeType)}
	if len(d.Hash) != 32 {
		return nil, apierr.New(apierr.StorageFatal, "stored node hash has wrong length")
	}
	copy(n.Hash[:], d.Hash)
	switch n.Type {
	case merkletree.NodeTypeLeaf:
		if len(d.Data) != 32 {
			return nil, apierr.New(apierr.StorageFatal, "stored leaf data has wrong length")
		}
		copy(n.Data[:], d.Data)
	case merkletree.NodeTypeNonLeaf:
		if len(d.Left) != 32 || len(d.Right) != 32 {
			return nil, apierr.New(apierr.StorageFatal, "stored non-leaf children have wrong length")
		}
		copy(n.Left[:], d.Left)
		copy(n.Right[:], d.Right)
	default:
		return nil, apierr.New(apierr.StorageFatal, "stored node has unknown node_type")
	}
	return n, nil
}

// Mongo is the MongoDB-backed Persistence Adapter; it implements
// merkletree.NodeStore.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// Config holds the environment-driven settings for connecting to MongoDB.
type Config struct {
	URI      string
	Database string
}

// ConfigFromEnv reads MONGODB_URI (required) and MONGODB_DATABASE (default
// "kvpair") from the environment.
func ConfigFromEnv() (Config, error) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		return Config{}, fmt.Errorf("MONGODB_URI environment variable is required")
	}
	database := os.Getenv("MONGODB_DATABASE")
	if database == "" {
		database = "kvpair"
	}
	return Config{URI: uri, Database: database}, nil
}

// Connect establishes the MongoDB client and verifies connectivity with a
// bounded ping, mirroring this codebase's NewDB() connect-then-ping idiom.
func Connect(ctx context.Context, cfg Config) (*Mongo, error) {
	clientOpts := options.Client().ApplyURI(cfg.URI).
		SetMaxPoolSize(100).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &Mongo{client: client, db: client.Database(cfg.Database)}, nil
}

// Close disconnects the MongoDB client.
func (m *Mongo) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	return m.client.Disconnect(ctx)
}

// Health pings MongoDB with a bounded timeout.
func (m *Mongo) Health(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := m.client.Ping(pingCtx, nil); err != nil {
		return fmt.Errorf("mongodb health check failed: %w", err)
	}
	return nil
}

func (m *Mongo) collection(name string) *mongo.Collection {
	return m.db.Collection(name)
}

// EnsureIndexes creates a non-unique compound index on (kind, index, hash)
// (§4.4 EXPANSION). LoadNode does not depend on it: it looks nodes up by _id.
// Safe to call repeatedly; Mongo treats a duplicate index creation as a
// no-op.
func (m *Mongo) EnsureIndexes(ctx context.Context, collection string) error {
	coll := m.collection(collection)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "kind", Value: 1}, {Key: "index", Value: 1}, {Key: "hash", Value: 1}},
		Options: options.Index().SetName("kind_index_hash"),
	})
	if err != nil {
		return apierr.Wrap(apierr.StorageFatal, "failed to ensure node index", pkgerrors.Wrap(err, "mongo create_index"))
	}
	return nil
}

func (m *Mongo) LoadNode(ctx context.Context, collection string, index uint64) (*merkletree.Node, error) {
	coll := m.collection(collection)
	var doc nodeDoc
	err := coll.FindOne(ctx, bson.M{"_id": nodeDocID(index)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.StorageFatal, "failed to load node", pkgerrors.Wrap(err, "mongo find_one node"))
	}
	return fromDoc(doc)
}

func (m *Mongo) GetRoot(ctx context.Context, collection string) (merkletree.Hash, bool, error) {
	coll := m.collection(collection)
	var doc nodeDoc
	err := coll.FindOne(ctx, bson.M{"_id": rootDocID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return merkletree.Hash{}, false, nil
	}
	if err != nil {
		return merkletree.Hash{}, false, apierr.Wrap(apierr.StorageFatal, "failed to load root pointer", pkgerrors.Wrap(err, "mongo find_one root"))
	}
	if len(doc.Hash) != 32 {
		return merkletree.Hash{}, false, apierr.New(apierr.StorageFatal, "stored root pointer has wrong length")
	}
	var h merkletree.Hash
	copy(h[:], doc.Hash)
	return h, true, nil
}

// Commit writes every updated node and the new root pointer in a single
// MongoDB session transaction. The root pointer write is a conditional
// replace against expectedOldRoot; a transaction abort due to a write
// conflict (the driver's TransientTransactionError label) surfaces as
// StorageConflict (retryable), everything else as StorageFatal.
func (m *Mongo) Commit(ctx context.Context, collection string, updates []*merkletree.Node, newRoot, expectedOldRoot merkletree.Hash) error {
	coll := m.collection(collection)

	sess, err := m.client.StartSession()
	if err != nil {
		return apierr.Wrap(apierr.StorageFatal, "failed to start session", err)
	}
	defer sess.EndSession(ctx)

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	// The root pointer write is a conditional replace keyed on both _id and
	// the last-observed hash: if another writer already moved the root,
	// this filter matches nothing and, because _id carries a unique index,
	// the upsert collides on _id and returns a duplicate-key error instead
	// of silently inserting a second root document.
	_, err = sess.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		rootFilter := bson.M{"_id": rootDocID, "hash": expectedOldRoot[:]}
		if _, err := coll.UpdateOne(sessCtx, rootFilter,
			bson.M{"$set": bson.M{"_id": rootDocID, "kind": kindRoot, "hash": newRoot[:]}},
			options.Update().SetUpsert(true),
		); err != nil {
			return nil, err
		}

		for _, n := range updates {
			doc := toDoc(n)
			if _, err := coll.ReplaceOne(sessCtx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true)); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}, txnOpts)

	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apierr.WrapRetryable(apierr.StorageConflict, "root pointer changed since siblings were read", err)
		}
		var serverErr mongo.ServerError
		if errors.As(err, &serverErr) && serverErr.HasErrorLabel("TransientTransactionError") {
			return apierr.WrapRetryable(apierr.StorageConflict, "transient transaction error", err)
		}
		return apierr.Wrap(apierr.StorageFatal, "commit transaction failed", pkgerrors.Wrap(err, "mongo with_transaction"))
	}
	return nil
}

func (m *Mongo) PutNode(ctx context.Context, collection string, n *merkletree.Node) error {
	coll := m.collection(collection)
	doc := toDoc(n)
	_, err := coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return apierr.Wrap(apierr.StorageFatal, "failed to put node", pkgerrors.Wrap(err, "mongo replace_one node"))
	}
	return nil
}

func (m *Mongo) PutRoot(ctx context.Context, collection string, newRoot merkletree.Hash) error {
	coll := m.collection(collection)
	_, err := coll.ReplaceOne(ctx, bson.M{"_id": rootDocID},
		nodeDoc{ID: rootDocID, Kind: kindRoot, Hash: newRoot[:]},
		options.Replace().SetUpsert(true))
	if err != nil {
		return apierr.Wrap(apierr.StorageFatal, "failed to put root", pkgerrors.Wrap(err, "mongo replace_one root"))
	}
	return nil
}

func (m *Mongo) LoadDataHash(ctx context.Context, collection string, hash merkletree.Hash) ([]byte, bool, error) {
	coll := m.collection(collection)
	var doc nodeDoc
	err := coll.FindOne(ctx, bson.M{"_id": dataHashDocID(hash)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apierr.Wrap(apierr.StorageFatal, "failed to load data hash record", pkgerrors.Wrap(err, "mongo find_one datahash"))
	}
	return doc.Data, true, nil
}

func (m *Mongo) StoreDataHash(ctx context.Context, collection string, hash merkletree.Hash, data []byte) error {
	coll := m.collection(collection)
	doc := nodeDoc{ID: dataHashDocID(hash), Kind: kindDataHash, Data: data}
	_, err := coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return apierr.Wrap(apierr.StorageFatal, "failed to store data hash record", pkgerrors.Wrap(err, "mongo replace_one datahash"))
	}
	return nil
}
