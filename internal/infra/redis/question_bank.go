package redis

import (
	"context"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"treasure-quest-service/internal/domain"
	"treasure-quest-service/internal/infra/memory"
)

// QuestionBank caches chest answer keys in Redis (hash per chapter/level)
// and falls back to a loader on cache miss.
// Answers are stored as: HSET chest:{chapter}:{level}:answers {questionID} {answer}
// Titles are stored as:  HSET chest:{chapter}:{level}:titles  {questionID} {title}
type QuestionBank struct {
	client *redis.Client
	loader memory.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionBank(client *redis.Client, loader memory.QuestionLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *QuestionBank) QuestionSet(ctx context.Context, chapterID, levelID string) ([]domain.Question, error) {
	answerKey := b.answersKey(chapterID, levelID)
	titleKey := b.titlesKey(chapterID, levelID)

	answers, err := b.client.HGetAll(ctx, answerKey).Result()
	if err == nil && len(answers) > 0 {
		titles, _ := b.client.HGetAll(ctx, titleKey).Result()
		return buildSetFromCache(chapterID, levelID, answers, titles), nil
	}

	result, err, _ := b.sf.Do(chapterID+":"+levelID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		answers, err := b.client.HGetAll(ctx, answerKey).Result()
		if err == nil && len(answers) > 0 {
			titles, _ := b.client.HGetAll(ctx, titleKey).Result()
			return buildSetFromCache(chapterID, levelID, answers, titles), nil
		}

		questions, err := b.loader.LoadQuestionSet(ctx, chapterID, levelID)
		if err != nil {
			return nil, err
		}

		ttl := b.ttlWithJitter()
		pipe := b.client.Pipeline()
		for _, q := range questions {
			pipe.HSet(ctx, answerKey, q.ID, q.Answer)
			pipe.HSet(ctx, titleKey, q.ID, q.Title)
		}
		if ttl > 0 {
			pipe.Expire(ctx, answerKey, ttl)
			pipe.Expire(ctx, titleKey, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (b *QuestionBank) answersKey(chapterID, levelID string) string {
	return "chest:" + chapterID + ":" + levelID + ":answers"
}

func (b *QuestionBank) titlesKey(chapterID, levelID string) string {
	return "chest:" + chapterID + ":" + levelID + ":titles"
}

func buildSetFromCache(chapterID, levelID string, answers, titles map[string]string) []domain.Question {
	questions := make([]domain.Question, 0, len(answers))
	for questionID, answer := range answers {
		questions = append(questions, domain.Question{
			ID:        questionID,
			ChapterID: chapterID,
			LevelID:   levelID,
			Title:     titles[questionID],
			// description not cached in this lightweight form
			Answer: answer,
		})
	}
	return questions
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}
