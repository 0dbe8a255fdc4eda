package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventStore is durable keyed storage for event records: one namespace
// mapping event id to its serialized form. Every backend keeps each
// operation independently atomic per key.
type EventStore interface {
	Save(ctx context.Context, ev *Event) error
	Get(ctx context.Context, id string) (*Event, error)
	Delete(ctx context.Context, id string) error
	ListIDs(ctx context.Context) ([]string, error)
}

const eventsKey = "events"

// ConnectRedis opens a client and verifies the connection.
func ConnectRedis(addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Println("✅ Redis connected")
	return rdb, nil
}

// redisEventStore keeps events as JSON values in a single Redis hash.
type redisEventStore struct {
	rdb *redis.Client
}

func NewRedisEventStore(rdb *redis.Client) EventStore {
	return &redisEventStore{rdb: rdb}
}

func (s *redisEventStore) Save(ctx context.Context, ev *Event) error {
	data, err := marshalEvent(ev)
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, eventsKey, ev.ID, data).Err()
}

func (s *redisEventStore) Get(ctx context.Context, id string) (*Event, error) {
	data, err := s.rdb.HGet(ctx, eventsKey, id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return unmarshalEvent([]byte(data))
}

func (s *redisEventStore) Delete(ctx context.Context, id string) error {
	return s.rdb.HDel(ctx, eventsKey, id).Err()
}

func (s *redisEventStore) ListIDs(ctx context.Context) ([]string, error) {
	return s.rdb.HKeys(ctx, eventsKey).Result()
}

// EventRecord is the Postgres row shape: the event id plus its JSON
// form, preserving the same keyed-namespace semantics as the Redis
// backend.
type EventRecord struct {
	ID   string         `gorm:"primaryKey"`
	Data datatypes.JSON `gorm:"not null"`
}

func (EventRecord) TableName() string { return "events" }

type gormEventStore struct {
	db *gorm.DB
}

// InitDB connects to Postgres using the DB_* environment variables and
// migrates the events table. Used when STORE_BACKEND=postgres.
func InitDB() (EventStore, error) {
	host := os.Getenv("DB_HOST")
	user := os.Getenv("DB_USER")
	pass := os.Getenv("DB_PASS")
	name := os.Getenv("DB_NAME")
	port := os.Getenv("DB_PORT")

	if host == "" || user == "" || pass == "" || name == "" || port == "" {
		return nil, errors.New("DATABASE ENV MISSING — check .env file")
	}

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		host, user, pass, name, port,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	log.Println("✅ Database connected and migrated successfully")
	return &gormEventStore{db: db}, nil
}

func (s *gormEventStore) Save(ctx context.Context, ev *Event) error {
	data, err := marshalEvent(ev)
	if err != nil {
		return err
	}
	rec := EventRecord{ID: ev.ID, Data: datatypes.JSON(data)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data"}),
	}).Create(&rec).Error
}

func (s *gormEventStore) Get(ctx context.Context, id string) (*Event, error) {
	var rec EventRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return unmarshalEvent(rec.Data)
}

func (s *gormEventStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&EventRecord{}, "id = ?", id).Error
}

func (s *gormEventStore) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&EventRecord{}).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
