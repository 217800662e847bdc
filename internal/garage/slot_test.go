package garage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"robogarage/internal/identity"
	"robogarage/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeIdentity struct{}

func (fakeIdentity) Nickname(ctx context.Context, hashID string) (string, error) {
	return "TestRobot" + hashID[:4], nil
}

func (fakeIdentity) Avatar(ctx context.Context, hashID string, size identity.AvatarSize) ([]byte, error) {
	return nil, nil
}

type fakeRemote struct {
	mu sync.Mutex

	robots   map[string]models.Robot
	robotErr map[string]error

	order    models.Order
	orderErr error

	made      models.Order
	makeErr   error
	makeAttrs []models.OrderAttributes
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		robots:   make(map[string]models.Robot),
		robotErr: make(map[string]error),
	}
}

func (f *fakeRemote) FetchRobot(ctx context.Context, robot models.Robot) (models.Robot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.robotErr[robot.ShortAlias]; err != nil {
		return models.Robot{}, err
	}

	reply := f.robots[robot.ShortAlias]
	fetched := models.NewRobot(robot.ShortAlias, robot.Credentials)
	fetched.LastOrderID = reply.LastOrderID
	fetched.ActiveOrderID = reply.ActiveOrderID
	fetched.Found = true

	return fetched, nil
}

func (f *fakeRemote) FetchOrder(ctx context.Context, order models.Order, robot models.Robot) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.order, f.orderErr
}

func (f *fakeRemote) MakeOrder(ctx context.Context, attrs models.OrderAttributes, robot models.Robot) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.makeAttrs = append(f.makeAttrs, attrs)

	return f.made, f.makeErr
}

type counter struct {
	n atomic.Int64
}

func (c *counter) inc()         { c.n.Add(1) }
func (c *counter) value() int64 { return c.n.Load() }

func newTestSlot(t *testing.T, aliases ...string) (*Slot, *counter) {
	t.Helper()

	updates := &counter{}
	slot := NewSlot("T1", aliases, models.KeyPair{PubKey: "pub", EncPrivKey: "enc"}, fakeIdentity{}, testLogger(), updates.inc)
	slot.Wait()

	return slot, updates
}

func robotReport(alias, lastID, activeID string) models.Robot {
	robot := models.NewRobot(alias, models.Credentials{Token: "T1"})
	robot.LastOrderID = lastID
	robot.ActiveOrderID = activeID

	return robot
}

func requireDistinctRefs(t *testing.T, slot *Slot) {
	t.Helper()

	active, hasActive := slot.ActiveOrder()
	last, hasLast := slot.LastOrder()
	if hasActive && hasLast {
		require.False(t, active.Is(last.ID, last.ShortAlias), "active and last share %s/%s", last.ID, last.ShortAlias)
	}
}

func TestNewSlotCreatesRobotPerCoordinator(t *testing.T) {
	slot, updates := newTestSlot(t, "c1", "c2")

	robots := slot.Robots()
	require.Len(t, robots, 2)
	require.Equal(t, "c1", robots[0].ShortAlias)
	require.Equal(t, "c2", robots[1].ShortAlias)
	require.Equal(t, robots[0].TokenSHA256, robots[1].TokenSHA256)
	require.Equal(t, identity.AuthDigest("T1"), robots[0].TokenSHA256)
	require.Equal(t, "pub", robots[1].PubKey)

	robot, ok := slot.GetRobot("")
	require.True(t, ok)
	require.Equal(t, "c1", robot.ShortAlias)

	require.Equal(t, identity.HashID("T1"), slot.HashID())
	require.Equal(t, "TestRobot"+slot.HashID()[:4], slot.Nickname())

	// construction + nickname
	require.Equal(t, int64(2), updates.value())

	_, ok = slot.ActiveOrder()
	require.False(t, ok)
	_, ok = slot.LastOrder()
	require.False(t, ok)
}

func TestNewSlotWithoutCoordinators(t *testing.T) {
	slot, _ := newTestSlot(t)

	_, ok := slot.GetRobot("")
	require.False(t, ok)

	_, ok = slot.GetRobot("c1")
	require.False(t, ok)
}

func TestUpdateSlotFromRobotAdoptsActiveOrder(t *testing.T) {
	slot, updates := newTestSlot(t, "c1", "c2")
	before := updates.value()

	slot.UpdateSlotFromRobot(robotReport("c1", "", "o1"))

	active, ok := slot.ActiveOrder()
	require.True(t, ok)
	require.Equal(t, "o1", active.ID)
	require.Equal(t, "c1", active.ShortAlias)
	require.Equal(t, models.StatusUnresolved, active.Status)

	slot.UpdateSlotFromRobot(robotReport("c1", "", "o1"))

	again, ok := slot.ActiveOrder()
	require.True(t, ok)
	require.Equal(t, active, again)

	// notification is sent even when nothing changed
	require.Equal(t, before+2, updates.value())
}

func TestUpdateSlotFromRobotDemotesActiveOrder(t *testing.T) {
	slot, _ := newTestSlot(t, "c1")

	slot.UpdateSlotFromRobot(robotReport("c1", "", "o1"))
	slot.UpdateSlotFromOrder(models.Order{ID: "o1", ShortAlias: "c1", Status: models.StatusSuccessful, IsParticipant: true})

	slot.UpdateSlotFromRobot(robotReport("c1", "o1", ""))

	_, ok := slot.ActiveOrder()
	require.False(t, ok)

	last, ok := slot.LastOrder()
	require.True(t, ok)
	require.Equal(t, "o1", last.ID)
	require.Equal(t, "c1", last.ShortAlias)
	// the demoted order keeps what was merged into it
	require.Equal(t, models.StatusSuccessful, last.Status)
}

func TestUpdateSlotFromRobotSameLastAndActive(t *testing.T) {
	slot, _ := newTestSlot(t, "c1")

	slot.UpdateSlotFromRobot(robotReport("c1", "o1", "o1"))

	active, ok := slot.ActiveOrder()
	require.True(t, ok)
	require.Equal(t, "o1", active.ID)

	_, ok = slot.LastOrder()
	require.False(t, ok)
}

func TestUpdateSlotFromRobotIdempotent(t *testing.T) {
	reports := []models.Robot{
		robotReport("c1", "", "o1"),
		robotReport("c2", "o7", ""),
		robotReport("c1", "o1", "o2"),
		robotReport("c2", "o7", "o8"),
		robotReport("c1", "o2", ""),
		robotReport("c1", "o3", "o3"),
		robotReport("c2", "o8", ""),
		robotReport("c1", "", ""),
	}

	for n := 1; n <= len(reports); n++ {
		slot, _ := newTestSlot(t, "c1", "c2")

		for _, r := range reports[:n] {
			slot.UpdateSlotFromRobot(r)
			requireDistinctRefs(t, slot)
		}

		before := slot.Snapshot()
		slot.UpdateSlotFromRobot(reports[n-1])
		require.Equal(t, before, slot.Snapshot(), "replaying report %d changed state", n-1)
	}
}

func TestUpdateSlotFromRobotSameIDOnAnotherCoordinator(t *testing.T) {
	slot, updates := newTestSlot(t, "c1", "c2")
	slot.UpdateSlotFromRobot(robotReport("c1", "o1", ""))

	last, ok := slot.LastOrder()
	require.True(t, ok)
	require.Equal(t, "c1", last.ShortAlias)

	before := updates.value()
	slot.UpdateSlotFromRobot(robotReport("c2", "o1", ""))

	last, ok = slot.LastOrder()
	require.True(t, ok)
	require.Equal(t, "o1", last.ID)
	require.Equal(t, "c2", last.ShortAlias)
	require.Equal(t, models.StatusUnresolved, last.Status)
	require.Equal(t, before+1, updates.value())

	slot.UpdateSlotFromRobot(robotReport("c1", "", "o1"))

	active, ok := slot.ActiveOrder()
	require.True(t, ok)
	require.Equal(t, "c1", active.ShortAlias)

	last, ok = slot.LastOrder()
	require.True(t, ok)
	require.Equal(t, "c2", last.ShortAlias)
	requireDistinctRefs(t, slot)
}

func TestUpdateSlotFromOrderRejectionKeepsTradeDetails(t *testing.T) {
	slot, _ := newTestSlot(t, "c1")
	slot.UpdateSlotFromRobot(robotReport("c1", "", "o1"))
	slot.UpdateSlotFromOrder(models.Order{
		ID:            "o1",
		ShortAlias:    "c1",
		Status:        models.StatusFiatSent,
		IsParticipant: true,
		Amount:        decimal.RequireFromString("120"),
	})

	slot.UpdateSlotFromOrder(models.Order{ID: "o1", ShortAlias: "c1", BadRequest: "This order has been cancelled"})

	_, ok := slot.ActiveOrder()
	require.False(t, ok)

	last, ok := slot.LastOrder()
	require.True(t, ok)
	require.Equal(t, models.StatusFiatSent, last.Status)
	require.True(t, last.Amount.Equal(decimal.RequireFromString("120")))
	require.Equal(t, "This order has been cancelled", last.BadRequest)
}

func TestGetRobotPrefersActiveOrderCoordinator(t *testing.T) {
	slot, _ := newTestSlot(t, "c1", "c2", "c3")

	slot.UpdateSlotFromRobot(robotReport("c2", "", "o5"))

	robot, ok := slot.GetRobot("")
	require.True(t, ok)
	require.Equal(t, "c2", robot.ShortAlias)

	explicit, ok := slot.GetRobot("c3")
	require.True(t, ok)
	require.Equal(t, "c3", explicit.ShortAlias)

	_, ok = slot.GetRobot("unknown")
	require.False(t, ok)
}

func TestGetRobotFallsBackToLastOrderCoordinator(t *testing.T) {
	slot, _ := newTestSlot(t, "c1", "c2")

	slot.UpdateSlotFromRobot(robotReport("c2", "o9", ""))

	robot, ok := slot.GetRobot("")
	require.True(t, ok)
	require.Equal(t, "c2", robot.ShortAlias)

	slot.restore(models.SlotRecord{LastOrder: &models.Order{ID: "o9", ShortAlias: "gone"}})

	robot, ok = slot.GetRobot("")
	require.True(t, ok)
	require.Equal(t, "c1", robot.ShortAlias)
}

func TestUpdateSlotFromOrderExpired(t *testing.T) {
	slot, _ := newTestSlot(t, "c1")
	slot.UpdateSlotFromRobot(robotReport("c1", "", "o1"))

	slot.UpdateSlotFromOrder(models.Order{ID: "o1", ShortAlias: "c1", Status: models.StatusUnresolved, BadRequest: "order expired"})

	_, ok := slot.ActiveOrder()
	require.False(t, ok)

	last, ok := slot.LastOrder()
	require.True(t, ok)
	require.Equal(t, "o1", last.ID)
	require.Equal(t, "c1", last.ShortAlias)
	require.Equal(t, models.StatusExpired, last.Status)
}

func TestUpdateSlotFromOrderMergesWithoutDemotion(t *testing.T) {
	slot, _ := newTestSlot(t, "c1")
	slot.UpdateSlotFromRobot(robotReport("c1", "", "o1"))

	slot.UpdateSlotFromOrder(models.Order{ID: "o1", ShortAlias: "c1", Status: models.StatusPublic, IsParticipant: true})

	active, ok := slot.ActiveOrder()
	require.True(t, ok)
	require.Equal(t, models.StatusPublic, active.Status)
	require.True(t, active.IsParticipant)
}

func TestUpdateSlotFromOrderParticipant(t *testing.T) {
	slot, updates := newTestSlot(t, "c1", "c2")
	slot.UpdateSlotFromRobot(robotReport("c1", "o1", ""))

	before := updates.value()

	// already known as historical
	slot.UpdateSlotFromOrder(models.Order{ID: "o1", ShortAlias: "c1", IsParticipant: true})
	_, ok := slot.ActiveOrder()
	require.False(t, ok)

	// not a participant
	slot.UpdateSlotFromOrder(models.Order{ID: "o2", ShortAlias: "c2"})
	_, ok = slot.ActiveOrder()
	require.False(t, ok)
	require.Equal(t, before, updates.value())

	// same id on another coordinator is a different order
	slot.UpdateSlotFromOrder(models.Order{ID: "o1", ShortAlias: "c2", IsParticipant: true, Status: models.StatusPublic})
	active, ok := slot.ActiveOrder()
	require.True(t, ok)
	require.Equal(t, "c2", active.ShortAlias)
	require.Equal(t, before+1, updates.value())
	requireDistinctRefs(t, slot)
}

func TestFetchRobotPartialFailure(t *testing.T) {
	slot, _ := newTestSlot(t, "c1", "c2")

	remote := newFakeRemote()
	remote.robotErr["c1"] = errors.New("connection refused")
	remote.robots["c2"] = robotReport("c2", "", "o4")

	err := slot.FetchRobot(context.Background(), remote)
	require.Error(t, err)
	require.ErrorContains(t, err, "c1")

	active, ok := slot.ActiveOrder()
	require.True(t, ok)
	require.Equal(t, "o4", active.ID)
	require.Equal(t, "c2", active.ShortAlias)

	robot, ok := slot.GetRobot("c2")
	require.True(t, ok)
	require.True(t, robot.Found)
	require.Equal(t, "o4", robot.ActiveOrderID)

	failed, ok := slot.GetRobot("c1")
	require.True(t, ok)
	require.False(t, failed.Found)
}

func TestFetchActiveOrder(t *testing.T) {
	slot, _ := newTestSlot(t, "c1")
	remote := newFakeRemote()

	require.ErrorIs(t, slot.FetchActiveOrder(context.Background(), remote), ErrNoActiveOrder)

	slot.UpdateSlotFromRobot(robotReport("c1", "", "o1"))

	remote.orderErr = errors.New("timeout")
	require.Error(t, slot.FetchActiveOrder(context.Background(), remote))

	active, ok := slot.ActiveOrder()
	require.True(t, ok)
	require.Equal(t, models.StatusUnresolved, active.Status)

	remote.orderErr = nil
	remote.order = models.Order{ID: "o1", ShortAlias: "c1", Status: models.StatusSendingFiat, IsParticipant: true}
	require.NoError(t, slot.FetchActiveOrder(context.Background(), remote))

	active, ok = slot.ActiveOrder()
	require.True(t, ok)
	require.Equal(t, models.StatusSendingFiat, active.Status)
}

func TestMakeOrder(t *testing.T) {
	slot, _ := newTestSlot(t, "c1", "c2")
	slot.UpdateSlotFromRobot(robotReport("c1", "", "o1"))

	remote := newFakeRemote()
	remote.made = models.Order{ID: "o2", Status: models.StatusWaitingForMakerBond, IsParticipant: true}

	order, err := slot.MakeOrder(context.Background(), remote, models.OrderAttributes{ShortAlias: "c2"})
	require.NoError(t, err)
	require.Equal(t, "o2", order.ID)
	require.Equal(t, "c2", order.ShortAlias)

	active, ok := slot.ActiveOrder()
	require.True(t, ok)
	require.Equal(t, order, active)

	last, ok := slot.LastOrder()
	require.True(t, ok)
	require.Equal(t, "o1", last.ID)
}

func TestMakeOrderDefaultsToResolvedRobot(t *testing.T) {
	slot, _ := newTestSlot(t, "c1", "c2")

	remote := newFakeRemote()
	remote.made = models.Order{ID: "o2"}

	_, err := slot.MakeOrder(context.Background(), remote, models.OrderAttributes{})
	require.NoError(t, err)
	require.Equal(t, "c1", remote.makeAttrs[0].ShortAlias)

	_, ok := slot.LastOrder()
	require.False(t, ok)
}

func TestMakeOrderClearsStaleLastOrder(t *testing.T) {
	slot, _ := newTestSlot(t, "c1")
	slot.UpdateSlotFromRobot(robotReport("c1", "o0", ""))

	_, ok := slot.LastOrder()
	require.True(t, ok)

	remote := newFakeRemote()
	remote.made = models.Order{ID: "o2", IsParticipant: true}

	_, err := slot.MakeOrder(context.Background(), remote, models.OrderAttributes{ShortAlias: "c1"})
	require.NoError(t, err)

	active, ok := slot.ActiveOrder()
	require.True(t, ok)
	require.Equal(t, "o2", active.ID)

	_, ok = slot.LastOrder()
	require.False(t, ok)
}

func TestMakeOrderFailureLeavesState(t *testing.T) {
	slot, updates := newTestSlot(t, "c1")
	slot.UpdateSlotFromRobot(robotReport("c1", "o0", "o1"))

	activeBefore, _ := slot.ActiveOrder()
	lastBefore, _ := slot.LastOrder()
	before := updates.value()

	remote := newFakeRemote()
	remote.makeErr = errors.New("coordinator rejected request")

	_, err := slot.MakeOrder(context.Background(), remote, models.OrderAttributes{ShortAlias: "c1"})
	require.Error(t, err)

	activeAfter, _ := slot.ActiveOrder()
	lastAfter, _ := slot.LastOrder()
	require.Equal(t, activeBefore, activeAfter)
	require.Equal(t, lastBefore, lastAfter)
	require.Equal(t, before, updates.value())

	_, err = slot.MakeOrder(context.Background(), remote, models.OrderAttributes{ShortAlias: "unknown"})
	require.ErrorIs(t, err, ErrRobotNotFound)
}

func TestSyncCoordinatorClonesCredentials(t *testing.T) {
	slot, _ := newTestSlot(t, "c1", "c2")
	remote := newFakeRemote()
	remote.robots["c3"] = robotReport("c3", "o3", "")

	require.NoError(t, slot.SyncCoordinator(context.Background(), remote, "c3"))

	def, ok := slot.GetRobot("c1")
	require.True(t, ok)

	joined, ok := slot.GetRobot("c3")
	require.True(t, ok)
	require.Equal(t, def.Credentials, joined.Credentials)
	require.Equal(t, "c3", joined.ShortAlias)

	robots := slot.Robots()
	require.Equal(t, "c3", robots[len(robots)-1].ShortAlias)

	last, ok := slot.LastOrder()
	require.True(t, ok)
	require.Equal(t, "o3", last.ID)
	require.Equal(t, "c3", last.ShortAlias)

	// joining again is a no-op
	require.NoError(t, slot.SyncCoordinator(context.Background(), remote, "c3"))
	require.Len(t, slot.Robots(), 3)
}

func TestSyncCoordinatorWithoutDefaultRobot(t *testing.T) {
	slot, _ := newTestSlot(t)

	require.NoError(t, slot.SyncCoordinator(context.Background(), newFakeRemote(), "c3"))
	require.Empty(t, slot.Robots())
}

func TestSyncCoordinatorFetchFailure(t *testing.T) {
	slot, _ := newTestSlot(t, "c1")
	remote := newFakeRemote()
	remote.robotErr["c3"] = errors.New("unreachable")

	require.Error(t, slot.SyncCoordinator(context.Background(), remote, "c3"))

	robot, ok := slot.GetRobot("c3")
	require.True(t, ok)
	require.False(t, robot.Found)
}
