package sqlconfig

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
)

// Profile is a warp display profile referenced by transaction codes.
type Profile struct {
	Code        string    `db:"code"`
	DisplayName string    `db:"display_name"`
	AvatarURL   string    `db:"avatar_url"`
	CreatedAt   time.Time `db:"created_at"`
}

// ProfileCreate is the input for creating a profile.
type ProfileCreate struct {
	Code        string
	DisplayName string
	AvatarURL   string
}

// Package is a purchasable bundle of display seconds.
type Package struct {
	ID             uuid.UUID       `db:"id"`
	Name           string          `db:"name"`
	DisplaySeconds int             `db:"display_seconds"`
	Price          decimal.Decimal `db:"price"`
	Active         bool            `db:"active"`
	CreatedAt      time.Time       `db:"created_at"`
}

// PackageCreate is the input for creating a package.
type PackageCreate struct {
	Name           string
	DisplaySeconds int
	Price          decimal.Decimal
	Active         bool
}

// IProfileTable stores warp profiles keyed by code.
type IProfileTable interface {
	Insert(ctx context.Context, create *ProfileCreate) (*Profile, error)
	FindByCode(ctx context.Context, code string) (*Profile, error)
}

type IPackageTable interface {
	Insert(ctx context.Context, create *PackageCreate) (*Package, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Package, error)
	ListActive(ctx context.Context) ([]*Package, error)
}
