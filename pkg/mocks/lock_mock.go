package mocks

import (
	"context"

	"github.com/pipecd-crm/wfm/pkg/lock"
	"github.com/stretchr/testify/mock"
)

// MockLocker is a mock implementation of lock.Locker interface.
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Lock(ctx context.Context, key string) (lock.Unlock, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(lock.Unlock), args.Error(1)
}
