package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/carson-networks/warp-server/internal/storage/sqlconfig"
)

var (
	_ sqlconfig.IProfileTable = (*Profiles)(nil)
	_ sqlconfig.IPackageTable = (*Packages)(nil)
)

type Profiles struct {
	mu    sync.RWMutex
	items map[string]sqlconfig.Profile
}

func NewProfiles() *Profiles {
	return &Profiles{items: make(map[string]sqlconfig.Profile)}
}

func (s *Profiles) Insert(_ context.Context, create *sqlconfig.ProfileCreate) (*sqlconfig.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[create.Code]; exists {
		return nil, sqlconfig.ErrDuplicateCode
	}
	profile := sqlconfig.Profile{
		Code:        create.Code,
		DisplayName: create.DisplayName,
		AvatarURL:   create.AvatarURL,
		CreatedAt:   time.Now().UTC(),
	}
	s.items[create.Code] = profile
	return &profile, nil
}

func (s *Profiles) FindByCode(_ context.Context, code string) (*sqlconfig.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.items[code]
	if !ok {
		return nil, nil
	}
	return &profile, nil
}

type Packages struct {
	mu    sync.RWMutex
	items map[uuid.UUID]sqlconfig.Package
}

func NewPackages() *Packages {
	return &Packages{items: make(map[uuid.UUID]sqlconfig.Package)}
}

func (s *Packages) Insert(_ context.Context, create *sqlconfig.PackageCreate) (*sqlconfig.Package, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	pkg := sqlconfig.Package{
		ID:             id,
		Name:           create.Name,
		DisplaySeconds: create.DisplaySeconds,
		Price:          create.Price,
		Active:         create.Active,
		CreatedAt:      time.Now().UTC(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id] = pkg
	return &pkg, nil
}

func (s *Packages) FindByID(_ context.Context, id uuid.UUID) (*sqlconfig.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pkg, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	return &pkg, nil
}

func (s *Packages) ListActive(_ context.Context) ([]*sqlconfig.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*sqlconfig.Package, 0, len(s.items))
	for _, pkg := range s.items {
		if pkg.Active {
			p := pkg
			result = append(result, &p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if c := result[i].Price.Cmp(result[j].Price); c != 0 {
			return c < 0
		}
		if result[i].DisplaySeconds != result[j].DisplaySeconds {
			return result[i].DisplaySeconds < result[j].DisplaySeconds
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}
