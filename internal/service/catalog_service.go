package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/carson-networks/warp-server/internal/storage"
	"github.com/carson-networks/warp-server/internal/storage/sqlconfig"
)

var profileCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{2,32}$`)

// CatalogService manages warp profiles and purchasable packages.
type CatalogService struct {
	storage *storage.Storage
}

func NewCatalogService(store *storage.Storage) *CatalogService {
	return &CatalogService{storage: store}
}

func (s *CatalogService) CreateProfile(ctx context.Context, create sqlconfig.ProfileCreate) (*sqlconfig.Profile, error) {
	create.Code = strings.TrimSpace(create.Code)
	create.DisplayName = strings.TrimSpace(create.DisplayName)
	if !profileCodePattern.MatchString(create.Code) {
		return nil, invalid("code", "must be 2-32 letters, digits, '-' or '_'")
	}

	profile, err := s.storage.Profiles.Insert(ctx, &create)
	if errors.Is(err, sqlconfig.ErrDuplicateCode) {
		return nil, fmt.Errorf("%w: warp code %s", ErrConflict, create.Code)
	}
	return profile, err
}

func (s *CatalogService) GetProfile(ctx context.Context, code string) (*sqlconfig.Profile, error) {
	profile, err := s.storage.Profiles.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrNotFound
	}
	return profile, nil
}

func (s *CatalogService) CreatePackage(ctx context.Context, create sqlconfig.PackageCreate) (*sqlconfig.Package, error) {
	create.Name = strings.TrimSpace(create.Name)
	switch {
	case create.Name == "":
		return nil, invalid("name", "is required")
	case create.DisplaySeconds <= 0:
		return nil, invalid("displaySeconds", "must be positive")
	case !create.Price.GreaterThan(decimal.Zero):
		return nil, invalid("price", "must be positive")
	}
	return s.storage.Packages.Insert(ctx, &create)
}

func (s *CatalogService) ListPackages(ctx context.Context) ([]*sqlconfig.Package, error) {
	return s.storage.Packages.ListActive(ctx)
}
