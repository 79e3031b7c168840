package trip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripshare/internal/testutil"
	"tripshare/internal/types"
)

const joiners = 12

// joinConcurrently fires one single-seat join per user at the same trip and
// returns how many were accepted. Every rejection must be a seat or state
// error.
func joinConcurrently(t *testing.T, svc *Service, tripID types.ID, users []types.ID) int {
	t.Helper()
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		other    []error
	)
	start := make(chan struct{})
	for _, u := range users {
		wg.Add(1)
		go func(u types.ID) {
			defer wg.Done()
			<-start
			_, err := svc.JoinTrip(context.Background(), joinCmd(tripID, u))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, ErrCapacityExceeded), errors.Is(err, ErrInvalidState):
			default:
				other = append(other, err)
			}
		}(u)
	}
	close(start)
	wg.Wait()
	assert.Empty(t, other)
	return accepted
}

func TestJoinTrip_ConcurrentJoinsNeverOverbook(t *testing.T) {
	h := newHarness(t)
	h.seedTrip("trip-1", BookingTriple, StatusOpen, 24*time.Hour)
	users := make([]types.ID, joiners)
	for i := range users {
		users[i] = types.ID(fmt.Sprintf("u%02d", i))
		h.repo.putAccount(Account{UserID: users[i], Balance: 1000})
	}

	accepted := joinConcurrently(t, h.svc, "trip-1", users)

	got := h.repo.trip("trip-1")
	assert.Equal(t, 3, accepted)
	assert.Equal(t, 3, got.SeatsBooked)
	assert.Len(t, got.Members, 3)
	assert.Equal(t, StatusFull, got.Status)
}

func TestStore_ConcurrentJoinsNeverOverbook(t *testing.T) {
	s := NewStore(testutil.NewPool(t))
	ctx := context.Background()

	l := logrus.New()
	l.SetOutput(io.Discard)
	svc, err := NewService(Deps{
		Repo:     s,
		Pricing:  fixedPricing{cfg: testPricing},
		Routes:   straightRoutes{duration: time.Hour},
		Nearby:   &stubNearby{},
		Notifier: &recordingNotifier{},
		Config:   testLifecycle,
		Log:      l,
	})
	require.NoError(t, err)
	now := time.Now().UTC().Truncate(time.Second)
	svc.now = func() time.Time { return now }

	seedUsers(t, s, Account{UserID: "creator", Role: RolePassenger, Balance: 1000})
	users := make([]types.ID, joiners)
	for i := range users {
		users[i] = types.ID(fmt.Sprintf("u%02d", i))
		seedUsers(t, s, Account{UserID: users[i], Role: RolePassenger, Balance: 1000})
	}
	tr := storeTrip("race", "creator", now.Add(24*time.Hour))
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error { return tx.CreateTrip(ctx, tr) }))

	accepted := joinConcurrently(t, svc, "race", users)

	got, err := s.Get(ctx, "race")
	require.NoError(t, err)
	assert.Equal(t, 2, accepted, "the creator already holds one of three seats")
	assert.Equal(t, 3, got.SeatsBooked)
	assert.Len(t, got.Members, 3)
	assert.Equal(t, StatusFull, got.Status)
}
