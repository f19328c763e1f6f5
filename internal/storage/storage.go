package storage

import (
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/carson-networks/warp-server/internal/config"
	"github.com/carson-networks/warp-server/internal/storage/memory"
	"github.com/carson-networks/warp-server/internal/storage/sqlconfig"
)

type Storage struct {
	DB           *sql.DB
	Transactions sqlconfig.ITransactionTable
	Profiles     sqlconfig.IProfileTable
	Packages     sqlconfig.IPackageTable
}

// NewStorage opens the configured backend. The memory driver leaves DB nil.
func NewStorage(env *config.Config) (*Storage, error) {
	if env.StorageDriver == config.StorageDriverMemory {
		return NewMemoryStorage(), nil
	}

	db, err := sql.Open("postgres", env.PostgresDSN())
	if err != nil {
		return nil, err
	}
	return NewPostgresStorage(db), nil
}

func NewPostgresStorage(db *sql.DB) *Storage {
	return &Storage{
		DB:           db,
		Transactions: sqlconfig.NewTransactionsTable(db),
		Profiles:     sqlconfig.NewProfilesTable(db),
		Packages:     sqlconfig.NewPackagesTable(db),
	}
}

func NewMemoryStorage() *Storage {
	return &Storage{
		Transactions: memory.NewTransactions(),
		Profiles:     memory.NewProfiles(),
		Packages:     memory.NewPackages(),
	}
}

// Close releases the database pool, if any.
func (s *Storage) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
