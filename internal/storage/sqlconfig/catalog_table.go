package sqlconfig

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/scan"
)

const (
	profilesTable = "warp_profiles"
	packagesTable = "warp_packages"
)

var (
	profileColumns = []any{"code", "display_name", "avatar_url", "created_at"}
	packageColumns = []any{"id", "name", "display_seconds", "price", "active", "created_at"}
)

var (
	_ IProfileTable = (*ProfilesTable)(nil)
	_ IPackageTable = (*PackagesTable)(nil)
)

type ProfilesTable struct {
	db bob.DB
}

func NewProfilesTable(db *sql.DB) *ProfilesTable {
	return &ProfilesTable{db: bob.NewDB(db)}
}

// Insert creates a profile. A code that is already taken yields ErrDuplicateCode.
func (t *ProfilesTable) Insert(ctx context.Context, create *ProfileCreate) (*Profile, error) {
	q := psql.Insert(
		im.Into(profilesTable, "code", "display_name", "avatar_url", "created_at"),
		im.Values(psql.Arg(create.Code, create.DisplayName, create.AvatarURL, time.Now().UTC())),
		im.Returning(profileColumns...),
	)
	row, err := bob.One(ctx, t.db, q, scan.StructMapper[Profile]())
	if isUniqueViolation(err) {
		return nil, ErrDuplicateCode
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (t *ProfilesTable) FindByCode(ctx context.Context, code string) (*Profile, error) {
	q := psql.Select(
		sm.Columns(profileColumns...),
		sm.From(profilesTable),
		sm.Where(psql.Quote("code").EQ(psql.Arg(code))),
	)
	row, err := bob.One(ctx, t.db, q, scan.StructMapper[Profile]())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

type PackagesTable struct {
	db bob.DB
}

func NewPackagesTable(db *sql.DB) *PackagesTable {
	return &PackagesTable{db: bob.NewDB(db)}
}

func (t *PackagesTable) Insert(ctx context.Context, create *PackageCreate) (*Package, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	q := psql.Insert(
		im.Into(packagesTable, "id", "name", "display_seconds", "price", "active", "created_at"),
		im.Values(psql.Arg(id, create.Name, create.DisplaySeconds, create.Price, create.Active, time.Now().UTC())),
		im.Returning(packageColumns...),
	)
	row, err := bob.One(ctx, t.db, q, scan.StructMapper[Package]())
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (t *PackagesTable) FindByID(ctx context.Context, id uuid.UUID) (*Package, error) {
	q := psql.Select(
		sm.Columns(packageColumns...),
		sm.From(packagesTable),
		sm.Where(psql.Quote("id").EQ(psql.Arg(id))),
	)
	row, err := bob.One(ctx, t.db, q, scan.StructMapper[Package]())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListActive returns purchasable packages, cheapest first.
func (t *PackagesTable) ListActive(ctx context.Context) ([]*Package, error) {
	q := psql.Select(
		sm.Columns(packageColumns...),
		sm.From(packagesTable),
		sm.Where(psql.Quote("active").EQ(psql.Arg(true))),
		sm.OrderBy("price").Asc(),
		sm.OrderBy("display_seconds").Asc(),
	)
	rows, err := bob.All(ctx, t.db, q, scan.StructMapper[Package]())
	if err != nil {
		return nil, err
	}
	result := make([]*Package, len(rows))
	for i := range rows {
		result[i] = &rows[i]
	}
	return result, nil
}
