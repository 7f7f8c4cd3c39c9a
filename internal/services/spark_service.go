package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"time"

	"github.com/sparkacademy/portal-service/internal/cache"
)

const (
	sparkMaxTokens = 300

	// warmSparkTTL keeps the last generated spark around across days so a
	// provider outage can still serve something personal.
	warmSparkTTL = 48 * time.Hour
)

const sparkSystemPrompt = `You are the Daily Spark writer for a student learning portal. ` +
	`Respond with a single JSON object {"message":"...","topic":"..."}. ` +
	`The message is one or two encouraging sentences about studying; the topic names the study angle in a few words. ` +
	`Do not include any text outside the JSON object.`

// fallbackSparks are served when the provider is down and the cache is
// cold. Picked deterministically so refreshing does not reroll the quote.
var fallbackSparks = []string{
	"Small steps every day beat big plans someday. Pick one topic and give it ten focused minutes.",
	"You don't have to be great to start, but you have to start to be great.",
	"Review something you learned yesterday. Repetition is how knowledge sticks.",
	"A short quiz is a workout for your memory. Try one today.",
	"Mistakes are proof you are trying. Check one wrong answer and learn why.",
	"Consistency builds streaks, and streaks build confidence. Keep yours alive today.",
	"Explain today's topic to an imaginary friend. If you can teach it, you know it.",
	"Your future self is watching. Make them proud with one finished task.",
}

type sparkPayload struct {
	Message string `json:"message"`
	Topic   string `json:"topic"`
}

type sparkService struct {
	cache     *cache.CacheHelper
	logger    *slog.Logger
	generator structuredGenerator

	// now is replaceable in tests
	now func() time.Time
}

// NewSparkService creates a new daily spark service instance
func NewSparkService(sparkCache *cache.CacheHelper, logger *slog.Logger, generator structuredGenerator) SparkService {
	return &sparkService{
		cache:     sparkCache,
		logger:    logger,
		generator: generator,
		now:       time.Now,
	}
}

// GetDailySpark serves the per-user daily message cache-aside: a cached
// entry wins, a miss generates and caches until midnight, and provider
// failure degrades to the warm cache and then to a deterministic quote.
func (s *sparkService) GetDailySpark(ctx context.Context, userID string) (*DailySparkResponse, error) {
	today := s.now()
	date := today.Format("2006-01-02")
	key := dailySparkKey(userID, date)

	var cached sparkPayload
	if err := s.cache.Get(ctx, key, &cached); err == nil && strings.TrimSpace(cached.Message) != "" {
		return sparkResponse(date, cached, SparkCached), nil
	}

	payload, err := s.generate(ctx, date)
	if err == nil {
		if cerr := s.cache.Set(ctx, key, payload, untilMidnight(today)); cerr != nil {
			s.logger.Warn("Failed to cache daily spark", "user_id", userID, "error", cerr)
		}
		if cerr := s.cache.Set(ctx, warmSparkKey(userID), payload, warmSparkTTL); cerr != nil {
			s.logger.Warn("Failed to cache warm spark", "user_id", userID, "error", cerr)
		}
		s.logger.Info("Daily spark generated", "user_id", userID, "date", date)
		return sparkResponse(date, payload, SparkGenerated), nil
	}

	s.logger.Warn("Daily spark generation failed", "user_id", userID, "date", date, "error", err)

	var warm sparkPayload
	if werr := s.cache.Get(ctx, warmSparkKey(userID), &warm); werr == nil && strings.TrimSpace(warm.Message) != "" {
		return sparkResponse(date, warm, SparkCached), nil
	}

	return sparkResponse(date, fallbackSpark(userID, date), SparkFallback), nil
}

func (s *sparkService) generate(ctx context.Context, date string) (sparkPayload, error) {
	prompt := fmt.Sprintf("Write today's spark for %s. Vary the angle from previous days.", date)

	var payload sparkPayload
	if err := s.generator.GenerateJSON(ctx, sparkSystemPrompt, prompt, sparkMaxTokens, &payload); err != nil {
		return sparkPayload{}, err
	}
	payload.Message = strings.TrimSpace(payload.Message)
	payload.Topic = strings.TrimSpace(payload.Topic)
	if payload.Message == "" {
		return sparkPayload{}, ErrProviderResponseInvalid
	}
	return payload, nil
}

func sparkResponse(date string, payload sparkPayload, source SparkSource) *DailySparkResponse {
	return &DailySparkResponse{
		Date:    date,
		Message: payload.Message,
		Topic:   payload.Topic,
		Source:  source,
	}
}

func dailySparkKey(userID string, date string) string {
	return userID + ":" + date
}

func warmSparkKey(userID string) string {
	return userID + ":last"
}

// untilMidnight returns the remaining lifetime of today's entry. Requests
// right at the boundary still get a minute instead of a zero TTL.
func untilMidnight(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	ttl := next.Sub(now)
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return ttl
}

// fallbackSpark picks a deterministic quote so the same user sees the same
// message all day even without cache or provider.
func fallbackSpark(userID string, date string) sparkPayload {
	h := fnv.New32a()
	h.Write([]byte(userID))
	h.Write([]byte(date))
	return sparkPayload{
		Message: fallbackSparks[h.Sum32()%uint32(len(fallbackSparks))],
	}
}
