package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Artifact names served at the site root
const (
	ArtifactSitemap = "sitemap.xml"
	ArtifactFeed    = "feed.xml"
)

var ErrArtifactNotFound = errors.New("artifact not found")

// Artifact is a rendered static document
type Artifact struct {
	Name        string
	ContentType string
	Body        []byte
	GeneratedAt time.Time
}

// ArtifactStore persists rendered artifacts by name
type ArtifactStore interface {
	Put(ctx context.Context, a *Artifact) error
	Get(ctx context.Context, name string) (*Artifact, error)
	Close() error
}

// MemoryArtifactStore keeps artifacts in process memory
type MemoryArtifactStore struct {
	mu sync.RWMutex
	m  map[string]*Artifact
}

func NewMemoryArtifactStore() *MemoryArtifactStore {
	return &MemoryArtifactStore{m: make(map[string]*Artifact)}
}

func (s *MemoryArtifactStore) Put(_ context.Context, a *Artifact) error {
	cp := *a
	cp.Body = append([]byte(nil), a.Body...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[a.Name] = &cp
	return nil
}

func (s *MemoryArtifactStore) Get(_ context.Context, name string) (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.m[name]
	if !ok {
		return nil, ErrArtifactNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryArtifactStore) Close() error { return nil }

// RedisArtifactStore stores each artifact as a hash so several instances can share it
type RedisArtifactStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisArtifactStore(client redis.UniversalClient, prefix string) *RedisArtifactStore {
	if prefix == "" {
		prefix = "magpie:artifact:"
	}
	return &RedisArtifactStore{client: client, prefix: prefix}
}

func (s *RedisArtifactStore) Put(ctx context.Context, a *Artifact) error {
	err := s.client.HSet(ctx, s.prefix+a.Name,
		"content_type", a.ContentType,
		"body", a.Body,
		"generated_at", a.GeneratedAt.UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("redis put artifact %s: %w", a.Name, err)
	}
	return nil
}

func (s *RedisArtifactStore) Get(ctx context.Context, name string) (*Artifact, error) {
	fields, err := s.client.HGetAll(ctx, s.prefix+name).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get artifact %s: %w", name, err)
	}
	if len(fields) == 0 {
		return nil, ErrArtifactNotFound
	}
	generatedAt, _ := time.Parse(time.RFC3339Nano, fields["generated_at"])
	return &Artifact{
		Name:        name,
		ContentType: fields["content_type"],
		Body:        []byte(fields["body"]),
		GeneratedAt: generatedAt,
	}, nil
}

func (s *RedisArtifactStore) Close() error {
	return s.client.Close()
}

// BadgerArtifactStore keeps artifacts in an embedded badger database
type BadgerArtifactStore struct {
	db  *badger.DB
	log logrus.FieldLogger
}

// NewBadgerArtifactStore opens (or creates) the database at dir
func NewBadgerArtifactStore(dir string, logger logrus.FieldLogger) (*BadgerArtifactStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db at %s: %w", dir, err)
	}
	return &BadgerArtifactStore{db: db, log: logger.WithField("component", "artifact_store")}, nil
}

func artifactKey(name string) []byte      { return []byte("artifact:" + name + ":body") }
func artifactMetaKey(name string) []byte  { return []byte("artifact:" + name + ":type") }
func artifactStampKey(name string) []byte { return []byte("artifact:" + name + ":at") }

func (s *BadgerArtifactStore) Put(_ context.Context, a *Artifact) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(artifactKey(a.Name), a.Body); err != nil {
			return err
		}
		if err := txn.Set(artifactMetaKey(a.Name), []byte(a.ContentType)); err != nil {
			return err
		}
		return txn.Set(artifactStampKey(a.Name), []byte(a.GeneratedAt.UTC().Format(time.RFC3339Nano)))
	})
}

func (s *BadgerArtifactStore) Get(_ context.Context, name string) (*Artifact, error) {
	a := &Artifact{Name: name}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(artifactKey(name))
		if err != nil {
			return err
		}
		if a.Body, err = item.ValueCopy(nil); err != nil {
			return err
		}
		if item, err = txn.Get(artifactMetaKey(name)); err == nil {
			v, _ := item.ValueCopy(nil)
			a.ContentType = string(v)
		}
		if item, err = txn.Get(artifactStampKey(name)); err == nil {
			v, _ := item.ValueCopy(nil)
			a.GeneratedAt, _ = time.Parse(time.RFC3339Nano, string(v))
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *BadgerArtifactStore) Close() error {
	if err := s.db.Close(); err != nil {
		s.log.WithError(err).Error("Error closing BadgerDB")
		return err
	}
	return nil
}

// badgerLogger adapts logrus to badger's logger interface
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{})   { l.logger.Errorf(f, v...) }
func (l *badgerLogger) Warningf(f string, v ...interface{}) { l.logger.Warningf(f, v...) }
func (l *badgerLogger) Infof(f string, v ...interface{})    { l.logger.Debugf(f, v...) }
func (l *badgerLogger) Debugf(f string, v ...interface{})   { l.logger.Debugf(f, v...) }
