package quotestore

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/tradeflow/market/providers"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoConfig configures the durable quote store backend.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string // default: "stock_daily_quotes"
}

// DefaultMongoConfig returns the default collection name of the persistent
// layout ("stock_daily_quotes").
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{Collection: "stock_daily_quotes"}
}

// MongoStore is the durable, write-through Store backed by MongoDB.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore connects to MongoDB and ensures the unique-key index on
// (symbol, trade_date, provider, period) exists.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.Collection == "" {
		cfg.Collection = "stock_daily_quotes"
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("quotestore: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("quotestore: ping: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)

	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "symbol", Value: 1},
			{Key: "trade_date", Value: 1},
			{Key: "provider", Value: 1},
			{Key: "period", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("quotestore: create index: %w", err)
	}

	return &MongoStore{client: client, coll: coll}, nil
}

type quoteDoc struct {
	Symbol       string    `bson:"symbol"`
	TradeDate    time.Time `bson:"trade_date"`
	Provider     string    `bson:"provider"`
	Period       string    `bson:"period"`
	Open         *float64  `bson:"open,omitempty"`
	High         *float64  `bson:"high,omitempty"`
	Low          *float64  `bson:"low,omitempty"`
	Close        *float64  `bson:"close,omitempty"`
	Volume       *float64  `bson:"volume,omitempty"`
	Amount       *float64  `bson:"amount,omitempty"`
	PE           *float64  `bson:"pe,omitempty"`
	PB           *float64  `bson:"pb,omitempty"`
	TurnoverRate *float64  `bson:"turnover_rate,omitempty"`
	TotalMV      *float64  `bson:"total_mv,omitempty"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func toDoc(q providers.Quote) quoteDoc {
	return quoteDoc{
		Symbol: q.Symbol, TradeDate: q.TradeDate, Provider: q.Provider, Period: string(q.Period),
		Open: q.Open, High: q.High, Low: q.Low, Close: q.Close, Volume: q.Volume, Amount: q.Amount,
		PE: q.PE, PB: q.PB, TurnoverRate: q.TurnoverRate, TotalMV: q.TotalMV,
		UpdatedAt: time.Now(),
	}
}

func fromDoc(d quoteDoc) providers.Quote {
	return providers.Quote{
		Symbol: d.Symbol, TradeDate: d.TradeDate, Provider: d.Provider, Period: providers.Period(d.Period),
		Open: d.Open, High: d.High, Low: d.Low, Close: d.Close, Volume: d.Volume, Amount: d.Amount,
		PE: d.PE, PB: d.PB, TurnoverRate: d.TurnoverRate, TotalMV: d.TotalMV,
		UpdatedAt: d.UpdatedAt,
	}
}

func (s *MongoStore) Upsert(ctx context.Context, q providers.Quote) error {
	return s.UpsertBatch(ctx, []providers.Quote{q})
}

func (s *MongoStore) UpsertBatch(ctx context.Context, qs []providers.Quote) error {
	for _, q := range qs {
		doc := toDoc(q)
		filter := bson.D{
			{Key: "symbol", Value: doc.Symbol},
			{Key: "trade_date", Value: doc.TradeDate},
			{Key: "provider", Value: doc.Provider},
			{Key: "period", Value: doc.Period},
		}
		_, err := s.coll.UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: doc}}, options.UpdateOne().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("quotestore: upsert %s: %w", keyOf(q), err)
		}
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, key Key) (*providers.Quote, error) {
	filter := bson.D{
		{Key: "symbol", Value: key.Symbol},
		{Key: "trade_date", Value: key.TradeDate},
		{Key: "provider", Value: key.Provider},
		{Key: "period", Value: string(key.Period)},
	}
	var doc quoteDoc
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("quotestore: get: %w", err)
	}
	q := fromDoc(doc)
	return &q, nil
}

func (s *MongoStore) ListBySymbol(ctx context.Context, symbol string, period providers.Period, from, to time.Time) ([]providers.Quote, error) {
	filter := bson.D{
		{Key: "symbol", Value: symbol},
		{Key: "period", Value: string(period)},
		{Key: "trade_date", Value: bson.D{{Key: "$gte", Value: from}, {Key: "$lte", Value: to}}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "trade_date", Value: 1}})
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("quotestore: list: %w", err)
	}
	defer cur.Close(ctx)

	var out []providers.Quote
	for cur.Next(ctx) {
		var doc quoteDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("quotestore: decode: %w", err)
		}
		out = append(out, fromDoc(doc))
	}
	return out, cur.Err()
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}
