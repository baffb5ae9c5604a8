package service

import (
	"context"
	"sort"
	"sync"

	"github.com/vehix/vehix-api/internal/domain"
	"github.com/vehix/vehix-api/internal/repository"
)

// MockKeyRepository is a mock implementation of repository.KeyRepository.
type MockKeyRepository struct {
	mu       sync.Mutex
	keys     map[string]*domain.Key
	applied  int
	applyErr error
	listErr  error
}

func NewMockKeyRepository() *MockKeyRepository {
	return &MockKeyRepository{keys: make(map[string]*domain.Key)}
}

func (m *MockKeyRepository) Create(ctx context.Context, key *domain.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.keys[key.UserID]; exists {
		return repository.ErrDuplicate
	}
	if key.State == domain.KeyStateActive && m.activeConflict(key.Email, key.UserID) {
		return domain.ErrKeyAlreadyActive
	}
	cp := *key
	m.keys[key.UserID] = &cp
	return nil
}

func (m *MockKeyRepository) GetByID(ctx context.Context, id string) (*domain.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok {
		return nil, domain.ErrKeyNotFound
	}
	cp := *k
	return &cp, nil
}

func (m *MockKeyRepository) ListByUsername(ctx context.Context, username string) ([]*domain.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*domain.Key
	for _, k := range m.keys {
		if k.Username == username {
			cp := *k
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *MockKeyRepository) ExistsActiveByEmail(ctx context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.Email == email && k.State == domain.KeyStateActive {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockKeyRepository) UpdateState(ctx context.Context, id string, state domain.KeyState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok {
		return domain.ErrKeyNotFound
	}
	if state == domain.KeyStateActive && m.activeConflict(k.Email, id) {
		return domain.ErrKeyAlreadyActive
	}
	k.State = state
	return nil
}

// activeConflict mirrors the one-Active-key-per-email index. Caller holds mu.
func (m *MockKeyRepository) activeConflict(email, exceptID string) bool {
	for id, k := range m.keys {
		if id != exceptID && k.Email == email && k.State == domain.KeyStateActive {
			return true
		}
	}
	return false
}

func (m *MockKeyRepository) MarkExpired(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok || k.State == domain.KeyStateExpired {
		return false, nil
	}
	k.State = domain.KeyStateExpired
	return true, nil
}

func (m *MockKeyRepository) ApplyUsage(ctx context.Context, id string, delta int64, lastResponseCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.applyErr != nil {
		return m.applyErr
	}
	k, ok := m.keys[id]
	if !ok {
		return domain.ErrKeyNotFound
	}
	k.UsageCount += delta
	k.LastResponseCode = lastResponseCode
	m.applied++
	return nil
}

func (m *MockKeyRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[id]; !ok {
		return domain.ErrKeyNotFound
	}
	delete(m.keys, id)
	return nil
}

func (m *MockKeyRepository) DeleteByUsername(ctx context.Context, username string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, k := range m.keys {
		if k.Username == username {
			delete(m.keys, id)
			n++
		}
	}
	return n, nil
}

func (m *MockKeyRepository) appliedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied
}

// MockAdminRepository is a mock implementation of repository.AdminRepository.
type MockAdminRepository struct {
	mu     sync.Mutex
	admins []*domain.Admin
	getErr error
}

func NewMockAdminRepository() *MockAdminRepository {
	return &MockAdminRepository{}
}

func (m *MockAdminRepository) Create(ctx context.Context, admin *domain.Admin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *admin
	m.admins = append(m.admins, &cp)
	return nil
}

func (m *MockAdminRepository) GetByUsername(ctx context.Context, username string) (*domain.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, a := range m.admins {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrAdminNotFound
}

func (m *MockAdminRepository) ListByUsername(ctx context.Context, username string) ([]*domain.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Admin
	for _, a := range m.admins {
		if a.Username == username {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockAdminRepository) DeleteByUsername(ctx context.Context, username string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.admins[:0]
	var n int64
	for _, a := range m.admins {
		if a.Username == username {
			n++
			continue
		}
		kept = append(kept, a)
	}
	m.admins = kept
	return n, nil
}

// MockVehicleRepository is a mock implementation of repository.VehicleRepository.
type MockVehicleRepository struct {
	mu       sync.Mutex
	vehicles map[string]*domain.Vehicle
	filters  []domain.VehicleFilter
	listErr  error
	topArgs  [2]int
}

func NewMockVehicleRepository() *MockVehicleRepository {
	return &MockVehicleRepository{vehicles: make(map[string]*domain.Vehicle)}
}

func (m *MockVehicleRepository) Create(ctx context.Context, v *domain.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *v
	m.vehicles[v.VehicleID] = &cp
	return nil
}

func (m *MockVehicleRepository) CreateMany(ctx context.Context, vehicles []*domain.Vehicle) error {
	for _, v := range vehicles {
		if err := m.Create(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockVehicleRepository) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return nil, domain.ErrVehicleNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *MockVehicleRepository) Update(ctx context.Context, v *domain.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vehicles[v.VehicleID]; !ok {
		return domain.ErrVehicleNotFound
	}
	cp := *v
	m.vehicles[v.VehicleID] = &cp
	return nil
}

func (m *MockVehicleRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vehicles[id]; !ok {
		return domain.ErrVehicleNotFound
	}
	delete(m.vehicles, id)
	return nil
}

func (m *MockVehicleRepository) List(ctx context.Context) ([]*domain.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]*domain.Vehicle, 0, len(m.vehicles))
	for _, v := range m.vehicles {
		out = append(out, v)
	}
	return out, nil
}

func (m *MockVehicleRepository) ListByFilter(ctx context.Context, filter domain.VehicleFilter) ([]*domain.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters = append(m.filters, filter)
	var out []*domain.Vehicle
	for _, v := range m.vehicles {
		if filter.Classic != nil {
			if v.IsClassic == *filter.Classic {
				out = append(out, v)
			}
			continue
		}
		var got string
		switch filter.Field {
		case domain.VehicleFieldType:
			got = v.VehicleType
		case domain.VehicleFieldBrand:
			got = v.Brand
		case domain.VehicleFieldFuelType:
			got = v.FuelType
		case domain.VehicleFieldBodyType:
			got = v.BodyType
		}
		if got == filter.Value {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *MockVehicleRepository) ListTopBrands(ctx context.Context, brandLimit, perBrand int) ([]*domain.Vehicle, error) {
	m.mu.Lock()
	m.topArgs = [2]int{brandLimit, perBrand}
	m.mu.Unlock()
	return m.List(ctx)
}
