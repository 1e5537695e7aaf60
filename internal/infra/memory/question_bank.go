package memory

import (
	"context"
	"encoding/json"
	"math/rand"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"treasure-quest-service/internal/domain"
)

// QuestionLoader fetches question sets from a backing store (file, DB).
type QuestionLoader interface {
	LoadQuestionSet(ctx context.Context, chapterID, levelID string) ([]domain.Question, error)
}

// QuestionBank caches question sets with TTL to avoid repeated loader hits.
type QuestionBank struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedSet
}

type cachedSet struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionBank(loader QuestionLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedSet),
	}
}

func (b *QuestionBank) QuestionSet(ctx context.Context, chapterID, levelID string) ([]domain.Question, error) {
	key := chapterID + ":" + levelID
	now := b.clock()

	b.mu.RLock()
	if entry, ok := b.cache[key]; ok && entry.expiresAt.After(now) {
		b.mu.RUnlock()
		return entry.questions, nil
	}
	b.mu.RUnlock()

	result, err, _ := b.sf.Do(key, func() (interface{}, error) {
		now := b.clock()
		b.mu.RLock()
		if entry, ok := b.cache[key]; ok && entry.expiresAt.After(now) {
			b.mu.RUnlock()
			return entry.questions, nil
		}
		b.mu.RUnlock()

		questions, err := b.loader.LoadQuestionSet(ctx, chapterID, levelID)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		b.cache[key] = cachedSet{
			questions: questions,
			expiresAt: now.Add(b.ttlWithJitter()),
		}
		b.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader serves question sets from an in-memory slice
// (useful for tests/demos).
type StaticQuestionLoader struct {
	questions []domain.Question
}

func NewStaticQuestionLoader(questions []domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{questions: questions}
}

func (l *StaticQuestionLoader) LoadQuestionSet(_ context.Context, chapterID, levelID string) ([]domain.Question, error) {
	return filterSet(l.questions, chapterID, levelID)
}

// FileQuestionLoader reads the question bank from a JSON file, the same
// flat array format the classroom deployments ship as data/questionare.json.
type FileQuestionLoader struct {
	path string
}

func NewFileQuestionLoader(path string) *FileQuestionLoader {
	return &FileQuestionLoader{path: path}
}

func (l *FileQuestionLoader) LoadQuestionSet(_ context.Context, chapterID, levelID string) ([]domain.Question, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, err
	}
	var questions []domain.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, err
	}
	return filterSet(questions, chapterID, levelID)
}

func filterSet(questions []domain.Question, chapterID, levelID string) ([]domain.Question, error) {
	set := make([]domain.Question, 0, len(questions))
	for _, q := range questions {
		if q.ChapterID == chapterID && (q.LevelID == levelID || q.LevelID == "") {
			set = append(set, q)
		}
	}
	if len(set) == 0 {
		return nil, domain.ErrQuestionSetNotFound
	}
	return set, nil
}
