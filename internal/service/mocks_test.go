package service

import (
	"context"
	"time"

	"pickup-backend/internal/domain"
	"pickup-backend/internal/repository"

	"github.com/stretchr/testify/mock"
)

type MockActivityRepo struct {
	mock.Mock
}

func (m *MockActivityRepo) Create(ctx context.Context, a *domain.Activity) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockActivityRepo) GetByID(ctx context.Context, id int32) (*domain.Activity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// Hand out a copy so callers can mutate it like a freshly scanned row.
	a := *args.Get(0).(*domain.Activity)
	return &a, args.Error(1)
}

func (m *MockActivityRepo) Update(ctx context.Context, a *domain.Activity, expectedVersion int64) error {
	args := m.Called(ctx, a, expectedVersion)
	return args.Error(0)
}

func (m *MockActivityRepo) ListDiscoverable(ctx context.Context, q repository.DiscoveryQuery) ([]domain.Activity, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Activity), args.Error(1)
}

func (m *MockActivityRepo) ListDueForTransition(ctx context.Context, horizon time.Time) ([]domain.Activity, error) {
	args := m.Called(ctx, horizon)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Activity), args.Error(1)
}

func (m *MockActivityRepo) ListArchivable(ctx context.Context, cutoff time.Time) ([]domain.Activity, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Activity), args.Error(1)
}

type MockMembershipRepo struct {
	mock.Mock
}

func (m *MockMembershipRepo) ListByActivity(ctx context.Context, activityID int32) ([]domain.MembershipEntry, error) {
	args := m.Called(ctx, activityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.MembershipEntry), args.Error(1)
}

func (m *MockMembershipRepo) ListByParticipant(ctx context.Context, participantID int32) ([]domain.MembershipEntry, error) {
	args := m.Called(ctx, participantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.MembershipEntry), args.Error(1)
}
