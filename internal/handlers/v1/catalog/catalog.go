package catalog

import (
	"context"
	"time"

	"github.com/carson-networks/warp-server/internal/storage/sqlconfig"
)

type Profile struct {
	Code        string `json:"code" doc:"Warp profile code"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

type Package struct {
	ID             string `json:"id" doc:"Package UUID"`
	Name           string `json:"name"`
	DisplaySeconds int    `json:"displaySeconds"`
	Price          string `json:"price" doc:"Decimal price"`
	Active         bool   `json:"active"`
}

type catalogService interface {
	CreateProfile(ctx context.Context, create sqlconfig.ProfileCreate) (*sqlconfig.Profile, error)
	GetProfile(ctx context.Context, code string) (*sqlconfig.Profile, error)
	CreatePackage(ctx context.Context, create sqlconfig.PackageCreate) (*sqlconfig.Package, error)
	ListPackages(ctx context.Context) ([]*sqlconfig.Package, error)
}

func toProfile(p *sqlconfig.Profile) Profile {
	return Profile{
		Code:        p.Code,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
}

func toPackage(p *sqlconfig.Package) Package {
	return Package{
		ID:             p.ID.String(),
		Name:           p.Name,
		DisplaySeconds: p.DisplaySeconds,
		Price:          p.Price.StringFixed(2),
		Active:         p.Active,
	}
}
