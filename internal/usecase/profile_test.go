package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"health-agent/internal/domain"
)

func newTestProfileService(t *testing.T, store ProfileStore) *ProfileService {
	t.Helper()
	svc, err := NewProfileService(store, time.UTC, discardLogger())
	require.NoError(t, err)
	svc.clock.now = func() time.Time { return fixedNow }
	return svc
}

func requireCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	var uerr *Error
	require.True(t, errors.As(err, &uerr), "expected usecase error, got %v", err)
	require.Equal(t, code, uerr.Code)
}

func TestSaveProfile_IdentityAndBMI(t *testing.T) {
	store := newFakeStore()
	svc := newTestProfileService(t, store)

	delta := domain.ProfileDelta{Name: strPtr("Somchai"), Weight: floatPtr(70), Height: floatPtr(172)}
	require.NoError(t, svc.SaveProfile(context.Background(), 9, delta))

	require.Equal(t, delta, store.profiles[9])
	require.Equal(t, []domain.BMIRecord{{UserID: 9, Date: "2025-03-10", Weight: floatPtr(70), Height: floatPtr(172)}}, store.bmis)
	require.Empty(t, store.ensured)
}

func TestSaveProfile_FillsMissingHalfFromLatest(t *testing.T) {
	store := newFakeStore()
	store.latestBMI = &domain.BMIRecord{UserID: 9, Date: "2025-02-01", Weight: floatPtr(75), Height: floatPtr(170)}
	svc := newTestProfileService(t, store)

	require.NoError(t, svc.SaveProfile(context.Background(), 9, domain.ProfileDelta{Weight: floatPtr(72)}))

	require.Equal(t, []int64{9}, store.ensured)
	require.Len(t, store.bmis, 1)
	require.Equal(t, 72.0, *store.bmis[0].Weight)
	require.Equal(t, 170.0, *store.bmis[0].Height)
}

func TestSaveProfile_PersistenceError(t *testing.T) {
	store := newFakeStore()
	store.writeErr = errBoom
	svc := newTestProfileService(t, store)

	err := svc.SaveProfile(context.Background(), 9, domain.ProfileDelta{Name: strPtr("A")})
	requireCode(t, err, ErrorPersistence)
	require.ErrorIs(t, err, errBoom)
}

func TestSaveProfile_RejectsNegativeMeasurement(t *testing.T) {
	svc := newTestProfileService(t, newFakeStore())
	err := svc.SaveProfile(context.Background(), 9, domain.ProfileDelta{Height: floatPtr(-1)})
	requireCode(t, err, ErrorInvalidInput)
}

func TestLogHealthData(t *testing.T) {
	store := newFakeStore()
	svc := newTestProfileService(t, store)

	err := svc.LogHealthData(context.Background(), HealthLog{UserID: 5, Steps: intPtr(8000), SleepHours: floatPtr(6.5)})
	require.NoError(t, err)
	require.Equal(t, []int64{5}, store.ensured)
	require.Len(t, store.activities, 1)
	require.Equal(t, "2025-03-10", store.activities[0].Date)
	require.Equal(t, 8000, *store.activities[0].Steps)
	require.Empty(t, store.bmis)

	err = svc.LogHealthData(context.Background(), HealthLog{UserID: 5, Date: "2025-03-08", Weight: floatPtr(61), Height: floatPtr(160)})
	require.NoError(t, err)
	require.Len(t, store.activities, 1)
	require.Equal(t, "2025-03-08", store.bmis[0].Date)
}

func TestLogHealthData_InvalidInput(t *testing.T) {
	svc := newTestProfileService(t, newFakeStore())
	ctx := context.Background()

	requireCode(t, svc.LogHealthData(ctx, HealthLog{UserID: 5}), ErrorInvalidInput)
	requireCode(t, svc.LogHealthData(ctx, HealthLog{UserID: 5, Steps: intPtr(-3)}), ErrorInvalidInput)
	requireCode(t, svc.LogHealthData(ctx, HealthLog{UserID: 5, Date: "10/03/2025", Steps: intPtr(3)}), ErrorInvalidInput)
}

func TestUserContext(t *testing.T) {
	store := newFakeStore()
	store.contexts[4] = &domain.UserContext{Profile: domain.UserProfile{UserID: 4, Name: strPtr("Ploy"), DOB: strPtr("1995-06-01")}}
	svc := newTestProfileService(t, store)

	out, err := svc.UserContext(context.Background(), 4)
	require.NoError(t, err)
	require.Equal(t, "Name: Ploy\nAge: 29", out.Persona)
	require.Equal(t, int64(4), out.Context.Profile.UserID)

	_, err = svc.UserContext(context.Background(), 99)
	requireCode(t, err, ErrorNotFound)

	store.getErr = errBoom
	_, err = svc.UserContext(context.Background(), 4)
	requireCode(t, err, ErrorPersistence)
}

func TestResetUser(t *testing.T) {
	store := newFakeStore()
	svc := newTestProfileService(t, store)

	require.NoError(t, svc.ResetUser(context.Background(), 12))
	require.Equal(t, []int64{12}, store.deleted)

	store.writeErr = errBoom
	requireCode(t, svc.ResetUser(context.Background(), 12), ErrorPersistence)
}

func TestNewProfileService_NilStore(t *testing.T) {
	_, err := NewProfileService(nil, nil, nil)
	require.Error(t, err)
}
