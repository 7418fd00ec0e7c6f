package session

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/umldraft/umlbot/internal/models"
	"github.com/umldraft/umlbot/internal/plantuml"
)

// Store keeps live sessions in memory. The expirable LRU bounds both the
// session count and the idle lifetime, which is the whole persistence
// story: nothing survives the process.
type Store struct {
	sessions *expirable.LRU[string, *Session]
}

func NewStore(cfg StoreConfig) *Store {
	maxSessions := cfg.MaxSessions
	if maxSessions <= 0 {
		maxSessions = 1024
	}
	return &Store{
		sessions: expirable.NewLRU[string, *Session](maxSessions, nil, cfg.TTL),
	}
}

type StoreConfig struct {
	MaxSessions int
	TTL         time.Duration
}

// Create makes a session seeded with the default diagram type and its
// starter skeleton.
func (s *Store) Create() *Session {
	sess := newSession(newID(), DiagramState{
		Type: models.DefaultDiagramType,
		Code: plantuml.DefaultSkeleton(models.DefaultDiagramType),
	})
	s.sessions.Add(sess.ID, sess)
	return sess
}

func (s *Store) Get(id string) (*Session, bool) {
	return s.sessions.Get(id)
}

func (s *Store) Delete(id string) bool {
	return s.sessions.Remove(id)
}

func newID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
