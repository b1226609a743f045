package store

import (
	"context"
	"sync"

	"github.com/jonathan/fineprint/internal/types"
)

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// serialized linearizes writes that touch the same URL.
type serialized struct {
	Store
	keys *keyedMutex
}

// Serialize wraps s so that writes for one URL never interleave.
func Serialize(s Store) Store {
	if _, ok := s.(*serialized); ok {
		return s
	}
	return &serialized{Store: s, keys: newKeyedMutex()}
}

func (s *serialized) RecordCandidate(ctx context.Context, c types.CandidateURL) (bool, error) {
	defer s.keys.lock(c.URL)()
	return s.Store.RecordCandidate(ctx, c)
}

func (s *serialized) RecordDocument(ctx context.Context, doc types.Document, text string) error {
	defer s.keys.lock(doc.URL)()
	return s.Store.RecordDocument(ctx, doc, text)
}

func (s *serialized) MarkScored(ctx context.Context, url string) error {
	defer s.keys.lock(url)()
	return s.Store.MarkScored(ctx, url)
}

func (s *serialized) SaveResult(ctx context.Context, r types.Result) error {
	defer s.keys.lock(r.DocumentURL)()
	return s.Store.SaveResult(ctx, r)
}
