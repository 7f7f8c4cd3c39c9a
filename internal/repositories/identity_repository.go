package repositories

import (
	"context"

	"github.com/sparkacademy/portal-service/internal/models"
)

// IdentityRepository interface for the external identity provider. The
// portal never writes identity data; it reads claims-backed users to
// provision and refresh local profile rows.
type IdentityRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// Validation and checks
	ExistsByID(ctx context.Context, id string) (bool, error)
	HasRole(ctx context.Context, id string, role models.UserRole) (bool, error)
}
