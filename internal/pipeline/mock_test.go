package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
	"github.com/sells-group/prospect-cli/pkg/overpass"
)

// --- Overpass Mock ---

type mockSource struct {
	mock.Mock
}

func (m *mockSource) FindBusinesses(ctx context.Context, area string) ([]overpass.Element, error) {
	args := m.Called(ctx, area)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]overpass.Element), args.Error(1)
}

func (m *mockSource) VerifyConnectivity(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ExistsByOSMID(ctx context.Context, osmID int64) (bool, error) {
	args := m.Called(ctx, osmID)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) FindByEmail(ctx context.Context, email string) (*model.Prospect, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Prospect), args.Error(1)
}

func (m *mockStore) InsertProspects(ctx context.Context, prospects []model.Prospect) (*store.InsertReport, error) {
	args := m.Called(ctx, prospects)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.InsertReport), args.Error(1)
}

func (m *mockStore) ListProspects(ctx context.Context, filter store.Filter) ([]model.Prospect, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Prospect), args.Error(1)
}

func (m *mockStore) CreateRun(ctx context.Context, areas []string) (string, error) {
	args := m.Called(ctx, areas)
	return args.String(0), args.Error(1)
}

func (m *mockStore) CompleteRun(ctx context.Context, runID string, run *model.Run) error {
	args := m.Called(ctx, runID, run)
	return args.Error(0)
}

func (m *mockStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	args := m.Called(ctx, runID, errMsg)
	return args.Error(0)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
