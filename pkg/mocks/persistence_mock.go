package mocks

import (
	"context"

	"github.com/pipecd-crm/wfm/pkg/models"
	"github.com/pipecd-crm/wfm/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) List(ctx context.Context, includeArchived bool) ([]*models.Workflow, error) {
	args := m.Called(ctx, includeArchived)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockPersistence mocks HealthCheck and, when set, the workflow repository.
// Everything else is served by the wrapped persistence.
type MockPersistence struct {
	mock.Mock
	persistence.Persistence

	Workflows *MockWorkflowRepository
}

func NewMockPersistence(delegate persistence.Persistence) *MockPersistence {
	return &MockPersistence{Persistence: delegate}
}

//nolint:ireturn
func (m *MockPersistence) WorkflowRepository() persistence.WorkflowRepository {
	if m.Workflows != nil {
		return m.Workflows
	}

	return m.Persistence.WorkflowRepository()
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
