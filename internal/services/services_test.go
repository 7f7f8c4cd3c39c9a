package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sparkacademy/portal-service/internal/events"
	"github.com/sparkacademy/portal-service/internal/models"
	"github.com/sparkacademy/portal-service/internal/repositories"
	"github.com/sparkacademy/portal-service/internal/repositories/postgres"
)

var testDBSeq atomic.Int64

// newTestDB opens an isolated in-memory database with the portal schema.
// Each call gets its own shared-cache name so pooled connections see the
// same database while tests stay independent of each other.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:portaltest%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access connection pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(
		&models.User{},
		&models.QuizResult{},
		&models.CustomTopic{},
		&models.CustomQuiz{},
		&models.ChatSession{},
		&models.ChatMessage{},
		&models.Task{},
		&models.ImageGenerationResult{},
		&models.VideoJob{},
	); err != nil {
		t.Fatalf("failed to migrate test schema: %v", err)
	}
	return db
}

// newTestRepo wires the repository over the test database without redis
// or an identity backend; both degrade to direct reads.
func newTestRepo(t *testing.T, db *gorm.DB) repositories.Repository {
	t.Helper()
	return postgres.NewPostgreSQLRepository(postgres.RepositoryConfig{DB: db})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedUser(t *testing.T, db *gorm.DB, id string) *models.User {
	t.Helper()

	user := &models.User{
		ID:       id,
		FullName: "Test Student",
		Email:    id + "@example.com",
		Rank:     models.RankBronze,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to seed user %s: %v", id, err)
	}
	return user
}

// stubGenerator satisfies structuredGenerator with a canned JSON payload
type stubGenerator struct {
	payload  string
	err      error
	calls    int
	lastUser string
}

func (g *stubGenerator) GenerateJSON(ctx context.Context, systemPrompt string, userPrompt string, maxTokens int, dest interface{}) error {
	g.calls++
	g.lastUser = userPrompt
	if g.err != nil {
		return g.err
	}
	return json.Unmarshal([]byte(g.payload), dest)
}

func eventsOfType(pub *events.MockEventPublisher, eventType string) []events.Event {
	var matched []events.Event
	for _, e := range pub.GetPublishedEvents() {
		if e.Type == eventType {
			matched = append(matched, e)
		}
	}
	return matched
}
