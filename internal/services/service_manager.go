package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/sparkacademy/portal-service/internal/cache"
	"github.com/sparkacademy/portal-service/internal/events"
	"github.com/sparkacademy/portal-service/internal/live"
	"github.com/sparkacademy/portal-service/internal/llm"
	"github.com/sparkacademy/portal-service/internal/repositories"
	"github.com/sparkacademy/portal-service/internal/storage"
	"github.com/sparkacademy/portal-service/internal/validator"
)

// Dependencies bundles the shared infrastructure every service is built on
type Dependencies struct {
	DB           *gorm.DB
	Repo         repositories.Repository
	Logger       *slog.Logger
	Validator    *validator.Validator
	Publisher    events.EventPublisher
	CacheManager *cache.CacheManager
	Provider     *llm.Client
	Store        storage.ObjectStore
	TicketIssuer *live.TicketIssuer

	// MediaHistoryLimit caps the per-user media history; zero means the
	// service default
	MediaHistoryLimit int

	// DefaultVoice is used for live tickets that do not name one
	DefaultVoice string
}

func (d *Dependencies) validate() error {
	if d.DB == nil {
		return fmt.Errorf("database connection is required")
	}
	if d.Repo == nil {
		return fmt.Errorf("repository is required")
	}
	if d.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if d.Validator == nil {
		return fmt.Errorf("validator is required")
	}
	if d.CacheManager == nil {
		return fmt.Errorf("cache manager is required")
	}
	if d.Provider == nil {
		return fmt.Errorf("model provider client is required")
	}
	if d.Store == nil {
		return fmt.Errorf("object store is required")
	}
	// Publisher and TicketIssuer may be nil; events are skipped and live
	// sessions report unavailable.
	return nil
}

// ServiceManagerConfig holds configuration for the service manager
type ServiceManagerConfig struct {
	// Logging configuration
	EnableDebugLogging bool
	LogLevel           slog.Level

	// Service-specific configurations
	Quiz      ServiceConfig
	Chat      ServiceConfig
	Planner   ServiceConfig
	Media     ServiceConfig
	Dashboard ServiceConfig

	// Global settings
	DefaultTimeout time.Duration
}

type ServiceConfig struct {
	Enabled         bool
	CacheEnabled    bool
	CacheTTL        time.Duration
	ValidationLevel ValidationLevel
}

type ValidationLevel int

const (
	ValidationBasic ValidationLevel = iota
	ValidationStrict
	ValidationFull
)

// serviceManager implements ServiceManager interface
type serviceManager struct {
	deps   Dependencies
	config ServiceManagerConfig
	logger *slog.Logger

	// Service instances
	profileService   ProfileService
	quizService      QuizService
	chatService      ChatService
	plannerService   PlannerService
	mediaService     MediaService
	dashboardService DashboardService
	sparkService     SparkService
	exportService    ExportService
	liveService      LiveService

	// Lifecycle management
	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a new service manager with all dependencies
func NewServiceManager(deps Dependencies, config ServiceManagerConfig) ServiceManager {
	return &serviceManager{
		deps:   deps,
		config: config,
		logger: deps.Logger,
	}
}

// NewDefaultServiceManager creates a service manager with default configuration
func NewDefaultServiceManager(deps Dependencies) ServiceManager {
	config := ServiceManagerConfig{
		EnableDebugLogging: false,
		LogLevel:           slog.LevelInfo,

		Quiz: ServiceConfig{
			Enabled:         true,
			CacheEnabled:    false,
			CacheTTL:        0,
			ValidationLevel: ValidationStrict,
		},
		Chat: ServiceConfig{
			Enabled:         true,
			CacheEnabled:    false,
			CacheTTL:        0,
			ValidationLevel: ValidationStrict,
		},
		Planner: ServiceConfig{
			Enabled:         true,
			CacheEnabled:    false,
			CacheTTL:        0,
			ValidationLevel: ValidationStrict,
		},
		Media: ServiceConfig{
			Enabled:         true,
			CacheEnabled:    false,
			CacheTTL:        0,
			ValidationLevel: ValidationStrict,
		},
		Dashboard: ServiceConfig{
			Enabled:         true,
			CacheEnabled:    true,
			CacheTTL:        3 * time.Minute,
			ValidationLevel: ValidationBasic,
		},

		DefaultTimeout: 30 * time.Second,
	}

	return NewServiceManager(deps, config)
}

// Initialize sets up all services and their dependencies
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.logger.Info("Initializing service manager")

	if err := sm.deps.validate(); err != nil {
		return fmt.Errorf("invalid service dependencies: %w", err)
	}

	if err := sm.initializeServices(ctx); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully")

	return nil
}

func (sm *serviceManager) initializeServices(ctx context.Context) error {
	deps := sm.deps

	// Initialize ProfileService first; every points grant flows through it
	sm.profileService = NewProfileService(deps.Repo, deps.DB, sm.logger, deps.Validator, deps.Publisher)
	sm.logger.Info("Profile service initialized")

	// Initialize QuizService
	if sm.config.Quiz.Enabled {
		sm.quizService = NewQuizService(deps.Repo, deps.DB, sm.logger, deps.Validator, deps.Publisher, deps.Provider)
		sm.logger.Info("Quiz service initialized")
	}

	// Initialize ChatService
	if sm.config.Chat.Enabled {
		sm.chatService = NewChatService(deps.Repo, deps.DB, sm.logger, deps.Validator, deps.Provider)
		sm.logger.Info("Chat service initialized")
	}

	// Initialize PlannerService
	if sm.config.Planner.Enabled {
		sm.plannerService = NewPlannerService(deps.Repo, deps.DB, sm.logger, deps.Validator, deps.Publisher)
		sm.logger.Info("Planner service initialized")
	}

	// Initialize MediaService
	if sm.config.Media.Enabled {
		sm.mediaService = NewMediaService(deps.Repo, deps.DB, sm.logger, deps.Validator, deps.Publisher, deps.Provider, deps.Store, deps.MediaHistoryLimit)
		sm.logger.Info("Media service initialized")
	}

	// Initialize DashboardService
	sm.dashboardService = NewDashboardService(deps.Repo, deps.DB, sm.logger, deps.CacheManager)
	sm.logger.Info("Dashboard service initialized")

	// Initialize SparkService
	sm.sparkService = NewSparkService(deps.CacheManager.Spark, sm.logger, deps.Provider)
	sm.logger.Info("Spark service initialized")

	// Initialize ExportService
	sm.exportService = NewExportService(deps.Repo, deps.DB, sm.logger)
	sm.logger.Info("Export service initialized")

	// Initialize LiveService last; it records transcripts through ChatService
	sm.liveService = NewLiveService(sm.logger, deps.Validator, deps.Publisher, deps.TicketIssuer, deps.Provider, sm.chatService, deps.DefaultVoice)
	sm.logger.Info("Live service initialized")

	return nil
}

// Service getters
func (sm *serviceManager) Profile() ProfileService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}

	if sm.profileService != nil {
		return sm.profileService
	}

	panic("profile service not initialized")
}

func (sm *serviceManager) Quiz() QuizService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}

	if sm.config.Quiz.Enabled && sm.quizService != nil {
		return sm.quizService
	}

	panic("quiz service not enabled or not initialized")
}

func (sm *serviceManager) Chat() ChatService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}

	if sm.config.Chat.Enabled && sm.chatService != nil {
		return sm.chatService
	}

	panic("chat service not enabled or not initialized")
}

func (sm *serviceManager) Planner() PlannerService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}

	if sm.config.Planner.Enabled && sm.plannerService != nil {
		return sm.plannerService
	}

	panic("planner service not enabled or not initialized")
}

func (sm *serviceManager) Media() MediaService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}

	if sm.config.Media.Enabled && sm.mediaService != nil {
		return sm.mediaService
	}

	panic("media service not enabled or not initialized")
}

func (sm *serviceManager) Dashboard() DashboardService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}

	if sm.dashboardService != nil {
		return sm.dashboardService
	}

	panic("dashboard service not initialized")
}

func (sm *serviceManager) Spark() SparkService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}

	if sm.sparkService != nil {
		return sm.sparkService
	}

	panic("spark service not initialized")
}

func (sm *serviceManager) Export() ExportService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}

	if sm.exportService != nil {
		return sm.exportService
	}

	panic("export service not initialized")
}

func (sm *serviceManager) Live() LiveService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}

	if sm.liveService != nil {
		return sm.liveService
	}

	panic("live service not initialized")
}

// Health and lifecycle
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}

	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	// Repository ping covers both the database and the cache
	if err := sm.deps.Repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}

	return nil
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	if sm.deps.Publisher != nil {
		if err := sm.deps.Publisher.Close(); err != nil {
			sm.logger.Error("Failed to close event publisher", "error", err)
		}
	}

	if err := sm.deps.Repo.Close(); err != nil {
		sm.logger.Error("Failed to close repository connections", "error", err)
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down completed")

	return nil
}

// ===== UTILITY METHODS =====

// GetConfig returns the service manager configuration
func (sm *serviceManager) GetConfig() ServiceManagerConfig {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return sm.config
}

// IsInitialized returns whether the service manager has been initialized
func (sm *serviceManager) IsInitialized() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return sm.initialized
}

// WithTimeout creates a context with the default timeout
func (sm *serviceManager) WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := sm.config.DefaultTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(parent, timeout)
}

// ===== CONFIGURATION VALIDATION =====

// Validate validates the service manager configuration
func (config *ServiceManagerConfig) Validate() error {
	var errs []string

	if config.DefaultTimeout < 0 {
		errs = append(errs, "default timeout cannot be negative")
	}

	for name, sc := range map[string]ServiceConfig{
		"quiz":      config.Quiz,
		"chat":      config.Chat,
		"planner":   config.Planner,
		"media":     config.Media,
		"dashboard": config.Dashboard,
	} {
		if sc.CacheTTL < 0 {
			errs = append(errs, fmt.Sprintf("%s: cache TTL cannot be negative", name))
		}
		if sc.ValidationLevel < ValidationBasic || sc.ValidationLevel > ValidationFull {
			errs = append(errs, fmt.Sprintf("%s: invalid validation level", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// ===== FACTORY FUNCTIONS =====

// CreateProductionServiceManager creates a service manager configured for production
func CreateProductionServiceManager(deps Dependencies) ServiceManager {
	config := ServiceManagerConfig{
		EnableDebugLogging: false,
		LogLevel:           slog.LevelInfo,

		Quiz: ServiceConfig{
			Enabled:         true,
			CacheEnabled:    false,
			CacheTTL:        0,
			ValidationLevel: ValidationFull,
		},
		Chat: ServiceConfig{
			Enabled:         true,
			CacheEnabled:    false, // Streams are real-time
			CacheTTL:        0,
			ValidationLevel: ValidationStrict,
		},
		Planner: ServiceConfig{
			Enabled:         true,
			CacheEnabled:    false,
			CacheTTL:        0,
			ValidationLevel: ValidationStrict,
		},
		Media: ServiceConfig{
			Enabled:         true,
			CacheEnabled:    false,
			CacheTTL:        0,
			ValidationLevel: ValidationStrict,
		},
		Dashboard: ServiceConfig{
			Enabled:         true,
			CacheEnabled:    true,
			CacheTTL:        5 * time.Minute,
			ValidationLevel: ValidationBasic,
		},

		DefaultTimeout: 60 * time.Second,
	}

	return NewServiceManager(deps, config)
}

// CreateDevelopmentServiceManager creates a service manager configured for development
func CreateDevelopmentServiceManager(deps Dependencies) ServiceManager {
	config := ServiceManagerConfig{
		EnableDebugLogging: true,
		LogLevel:           slog.LevelDebug,

		Quiz: ServiceConfig{
			Enabled:         true,
			CacheEnabled:    false,
			CacheTTL:        0,
			ValidationLevel: ValidationBasic,
		},
		Chat: ServiceConfig{
			Enabled:         true,
			CacheEnabled:    false,
			CacheTTL:        0,
			ValidationLevel: ValidationBasic,
		},
		Planner: ServiceConfig{
			Enabled:         true,
			CacheEnabled:    false,
			CacheTTL:        0,
			ValidationLevel: ValidationBasic,
		},
		Media: ServiceConfig{
			Enabled:         true,
			CacheEnabled:    false,
			CacheTTL:        0,
			ValidationLevel: ValidationBasic,
		},
		Dashboard: ServiceConfig{
			Enabled:         true,
			CacheEnabled:    false,
			CacheTTL:        0,
			ValidationLevel: ValidationBasic,
		},

		DefaultTimeout: 10 * time.Second,
	}

	return NewServiceManager(deps, config)
}
