package repositories

import "context"

// Repository aggregates every domain repository behind one interface
type Repository interface {
	// Profile domain
	User() UserRepository

	// Quiz domain (results, custom topics, custom quizzes)
	Quiz() QuizRepository

	// Chat tutor domain
	Chat() ChatRepository

	// Study planner domain
	Planner() PlannerRepository

	// Media studio domain (image history, video jobs)
	Media() MediaRepository

	// Dashboard domain
	Dashboard() DashboardRepository

	// External identity directory (Casdoor)
	Identity() IdentityRepository

	// Transaction support
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	// Initialize repositories with database connections
	Initialize() error

	// Get repository instance
	GetRepository() Repository

	// Health check for all repositories
	HealthCheck(ctx context.Context) error

	// Graceful shutdown
	Shutdown(ctx context.Context) error
}
