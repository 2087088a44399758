package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/delivery-service/internal/domain"
)

type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore ensures the message indexes and returns the store.
func NewMongoStore(ctx context.Context, coll *mongo.Collection) (*MongoStore, error) {
	ix := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("pair_created_idx"),
		},
		{
			Keys:    bson.D{{Key: "receiver_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("receiver_status_idx"),
		},
		{
			Keys: bson.D{
				{Key: "sender_id", Value: 1},
				{Key: "receiver_id", Value: 1},
				{Key: "client_correlation_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("correlation_idx").
				SetPartialFilterExpression(bson.M{"client_correlation_id": bson.M{"$exists": true}}),
		},
	}
	if _, err := coll.Indexes().CreateMany(ctx, ix); err != nil {
		return nil, fmt.Errorf("create message indexes: %w", err)
	}
	return &MongoStore{coll: coll}, nil
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ErrNotFound
	}
	return err
}

func (r *MongoStore) Create(ctx context.Context, m *domain.Message) error {
	if m.ID == "" {
		m.ID = primitive.NewObjectID().Hex()
	}
	_, err := r.coll.InsertOne(ctx, m)
	return err
}

func (r *MongoStore) Get(ctx context.Context, id string) (*domain.Message, error) {
	var m domain.Message
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *MongoStore) FindByCorrelation(ctx context.Context, senderID, receiverID, correlationID string, since time.Time) (*domain.Message, error) {
	filter := bson.M{
		"sender_id":             senderID,
		"receiver_id":           receiverID,
		"client_correlation_id": correlationID,
		"created_at":            bson.M{"$gte": since},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	var m domain.Message
	if err := r.coll.FindOne(ctx, filter, opts).Decode(&m); err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *MongoStore) UpdateContent(ctx context.Context, id, body, attachmentRef string, at time.Time) (*domain.Message, error) {
	set := bson.M{"updated_at": at}
	if body != "" {
		set["body"] = body
	}
	if attachmentRef != "" {
		set["attachment_ref"] = attachmentRef
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var m domain.Message
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&m); err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// advanceUpdate keeps an existing delivered_at so sent -> delivered -> read
// records the first delivery time.
func advanceUpdate(to domain.Status, at time.Time) mongo.Pipeline {
	set := bson.D{
		{Key: "status", Value: to},
		{Key: "updated_at", Value: at},
		{Key: "delivered_at", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$delivered_at", at}}}},
	}
	if to == domain.StatusRead {
		set = append(set, bson.E{Key: "read_at", Value: at})
	}
	return mongo.Pipeline{{{Key: "$set", Value: set}}}
}

func (r *MongoStore) AdvanceStatus(ctx context.Context, id string, to domain.Status, at time.Time) (*domain.Message, bool, error) {
	filter := bson.M{"_id": id, "status": bson.M{"$in": to.Predecessors()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var m domain.Message
	err := r.coll.FindOneAndUpdate(ctx, filter, advanceUpdate(to, at), opts).Decode(&m)
	if err == nil {
		return &m, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, err
	}
	// either unknown or already at/after `to`
	cur, err := r.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return cur, false, nil
}

func (r *MongoStore) AdvanceConversation(ctx context.Context, senderID, receiverID string, to domain.Status, at time.Time) ([]*domain.Message, error) {
	filter := bson.M{
		"sender_id":   senderID,
		"receiver_id": receiverID,
		"status":      bson.M{"$in": to.Predecessors()},
	}
	pending, err := r.find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(pending))
	for _, m := range pending {
		ids = append(ids, m.ID)
	}

	filter["_id"] = bson.M{"$in": ids}
	if _, err := r.coll.UpdateMany(ctx, filter, advanceUpdate(to, at)); err != nil {
		return nil, err
	}
	sort := bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": ids}, "status": to, "updated_at": at}, options.Find().SetSort(sort))
}

func (r *MongoStore) ListConversation(ctx context.Context, a, b string, rg Range) ([]*domain.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender_id": a, "receiver_id": b},
		bson.M{"sender_id": b, "receiver_id": a},
	}}
	created := bson.M{}
	if !rg.Before.IsZero() {
		created["$lt"] = rg.Before
	}
	if !rg.After.IsZero() {
		created["$gt"] = rg.After
	}
	if len(created) > 0 {
		filter["created_at"] = created
	}

	dir := 1
	if rg.newestFirst() {
		dir = -1
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: dir}, {Key: "_id", Value: dir}})
	if rg.Limit > 0 {
		opts.SetLimit(int64(rg.Limit))
	}
	out, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	if dir < 0 {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func (r *MongoStore) ListByParticipant(ctx context.Context, userID string) ([]*domain.Message, error) {
	filter := bson.M{"$or": bson.A{bson.M{"sender_id": userID}, bson.M{"receiver_id": userID}}}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
}

func (r *MongoStore) find(ctx context.Context, filter any, opts *options.FindOptions) ([]*domain.Message, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*domain.Message{}
	for cur.Next(ctx) {
		var m domain.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, cur.Err()
}

// MongoDirectory looks users up in the accounts collection. User ids may be
// stored as ObjectIDs or as plain strings.
type MongoDirectory struct {
	coll *mongo.Collection
}

func NewMongoDirectory(coll *mongo.Collection) *MongoDirectory {
	return &MongoDirectory{coll: coll}
}

func (d *MongoDirectory) Profiles(ctx context.Context, ids []string) (map[string]domain.Profile, error) {
	out := make(map[string]domain.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make(bson.A, 0, 2*len(ids))
	for _, id := range ids {
		keys = append(keys, id)
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			keys = append(keys, oid)
		}
	}

	cur, err := d.coll.Find(ctx, bson.M{"_id": bson.M{"$in": keys}}, options.Find().SetProjection(bson.M{"_id": 1, "name": 1, "avatar": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var row struct {
			ID     any    `bson:"_id"`
			Name   string `bson:"name"`
			Avatar string `bson:"avatar"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		p := domain.Profile{Name: row.Name, Avatar: row.Avatar}
		switch v := row.ID.(type) {
		case primitive.ObjectID:
			p.ID = v.Hex()
		case string:
			p.ID = v
		default:
			continue
		}
		out[p.ID] = p
	}
	return out, cur.Err()
}
