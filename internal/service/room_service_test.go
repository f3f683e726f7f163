package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/immxrtalbeast/meetchat/internal/domain"
	"github.com/immxrtalbeast/meetchat/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoomService(meetingIDs ...string) *RoomService {
	return NewRoomService(repository.NewInMemoryMeetingRepository(meetingIDs...), nil)
}

func drainEvents(conn *domain.Connection) []domain.Event {
	var events []domain.Event
	for {
		select {
		case event := <-conn.Events():
			events = append(events, event)
		default:
			return events
		}
	}
}

func TestRoomService_JoinUnknownMeeting(t *testing.T) {
	svc := newTestRoomService("m1")
	conn := domain.NewConnection("u1", "Alice")

	err := svc.Join(context.Background(), conn, "nope", "Alice")

	require.ErrorIs(t, err, ErrInvalidRoom)
	assert.False(t, conn.InRoom("nope"))
	assert.Empty(t, svc.Members("nope"))
}

func TestRoomService_JoinAnnouncesToOthersOnly(t *testing.T) {
	svc := newTestRoomService("m1")
	first := domain.NewConnection("u1", "Alice")
	second := domain.NewConnection("u2", "Bob")

	require.NoError(t, svc.Join(context.Background(), first, "m1", "Alice"))
	require.NoError(t, svc.Join(context.Background(), second, "m1", "Bob"))

	firstEvents := drainEvents(first)
	require.Len(t, firstEvents, 1)
	assert.Equal(t, domain.EventUserJoined, firstEvents[0].Name)

	// The joiner itself gets no presence echo.
	assert.Empty(t, drainEvents(second))
}

func TestRoomService_MembershipViewsAreMutualInverses(t *testing.T) {
	svc := newTestRoomService("m1", "m2")
	conn := domain.NewConnection("u1", "Alice")
	ctx := context.Background()

	require.NoError(t, svc.Join(ctx, conn, "m1", "Alice"))
	require.NoError(t, svc.Join(ctx, conn, "m2", "Alice"))

	for _, meetingID := range []string{"m1", "m2"} {
		assert.True(t, conn.InRoom(meetingID))
		members := svc.Members(meetingID)
		require.Len(t, members, 1)
		assert.Equal(t, conn.ID, members[0].ID)
	}

	require.NoError(t, svc.Leave(ctx, conn, "m1"))

	assert.False(t, conn.InRoom("m1"))
	assert.Empty(t, svc.Members("m1"))
	assert.True(t, conn.InRoom("m2"))
	require.Len(t, svc.Members("m2"), 1)
}

func TestRoomService_DuplicateJoinIsNoop(t *testing.T) {
	svc := newTestRoomService("m1")
	member := domain.NewConnection("u1", "Alice")
	watcher := domain.NewConnection("u2", "Bob")
	ctx := context.Background()

	require.NoError(t, svc.Join(ctx, watcher, "m1", "Bob"))
	require.NoError(t, svc.Join(ctx, member, "m1", "Alice"))
	require.NoError(t, svc.Join(ctx, member, "m1", "Alice"))

	require.Len(t, svc.Members("m1"), 2)

	// Only one user_joined reached the watcher.
	events := drainEvents(watcher)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventUserJoined, events[0].Name)
}

func TestRoomService_LeaveNonMemberIsNoop(t *testing.T) {
	svc := newTestRoomService("m1")
	member := domain.NewConnection("u1", "Alice")
	stranger := domain.NewConnection("u2", "Bob")
	ctx := context.Background()

	require.NoError(t, svc.Join(ctx, member, "m1", "Alice"))

	require.NoError(t, svc.Leave(ctx, stranger, "m1"))
	require.NoError(t, svc.Leave(ctx, stranger, "unknown"))

	require.Len(t, svc.Members("m1"), 1)
	// No user_left was broadcast for the non-member.
	assert.Empty(t, drainEvents(member))
}

func TestRoomService_LeaveAnnouncesToRemaining(t *testing.T) {
	svc := newTestRoomService("m1")
	leaver := domain.NewConnection("u1", "Alice")
	stayer := domain.NewConnection("u2", "Bob")
	ctx := context.Background()

	require.NoError(t, svc.Join(ctx, leaver, "m1", "Alice"))
	require.NoError(t, svc.Join(ctx, stayer, "m1", "Bob"))
	drainEvents(leaver)
	drainEvents(stayer)

	require.NoError(t, svc.Leave(ctx, leaver, "m1"))

	events := drainEvents(stayer)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventUserLeft, events[0].Name)
	assert.Empty(t, drainEvents(leaver))
}

func TestRoomService_LeaveAllCleansEveryRoom(t *testing.T) {
	svc := newTestRoomService("m1", "m2", "m3")
	conn := domain.NewConnection("u1", "Alice")
	ctx := context.Background()

	for _, meetingID := range []string{"m1", "m2", "m3"} {
		require.NoError(t, svc.Join(ctx, conn, meetingID, "Alice"))
	}

	svc.LeaveAll(ctx, conn)

	assert.Empty(t, conn.Rooms())
	for _, meetingID := range []string{"m1", "m2", "m3"} {
		assert.Empty(t, svc.Members(meetingID))
	}
}

func TestRoomService_BroadcastExcludesSender(t *testing.T) {
	svc := newTestRoomService("m1")
	sender := domain.NewConnection("u1", "Alice")
	receiver := domain.NewConnection("u2", "Bob")
	ctx := context.Background()

	require.NoError(t, svc.Join(ctx, sender, "m1", "Alice"))
	require.NoError(t, svc.Join(ctx, receiver, "m1", "Bob"))
	drainEvents(sender)
	drainEvents(receiver)

	event := domain.NewEvent(domain.EventChatMessage, domain.ChatMessagePayload{ID: "x"})
	svc.Broadcast("m1", event, sender.ID)

	assert.Empty(t, drainEvents(sender))
	got := drainEvents(receiver)
	require.Len(t, got, 1)
	assert.Equal(t, domain.EventChatMessage, got[0].Name)
}

func TestRoomService_BroadcastToClosedMemberIsIsolated(t *testing.T) {
	svc := newTestRoomService("m1")
	dead := domain.NewConnection("u1", "Alice")
	live := domain.NewConnection("u2", "Bob")
	ctx := context.Background()

	require.NoError(t, svc.Join(ctx, dead, "m1", "Alice"))
	require.NoError(t, svc.Join(ctx, live, "m1", "Bob"))
	drainEvents(live)

	dead.Close()
	svc.Broadcast("m1", domain.NewEvent(domain.EventChatMessage, domain.ChatMessagePayload{ID: "x"}), "")

	// The live member still got the event; the dead one did not abort it.
	require.Len(t, drainEvents(live), 1)
}

func TestRoomService_ConcurrentJoinLeaveNoLostUpdate(t *testing.T) {
	svc := newTestRoomService("m1")
	ctx := context.Background()

	const workers = 16
	conns := make([]*domain.Connection, workers)
	for i := range conns {
		conns[i] = domain.NewConnection(fmt.Sprintf("u%d", i), fmt.Sprintf("user-%d", i))
	}

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(conn *domain.Connection) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = svc.Join(ctx, conn, "m1", conn.Name())
				_ = svc.Leave(ctx, conn, "m1")
			}
			_ = svc.Join(ctx, conn, "m1", conn.Name())
		}(conn)
	}
	wg.Wait()

	// Every connection ended on a join; both views agree.
	members := svc.Members("m1")
	require.Len(t, members, workers)
	for _, conn := range conns {
		assert.True(t, conn.InRoom("m1"), "connection %s lost its join", conn.UserID)
	}
}

func TestRoomService_JoinRetriesPastReapedRoom(t *testing.T) {
	svc := newTestRoomService("m1")
	conn := domain.NewConnection("u1", "Alice")
	ctx := context.Background()

	// A joiner can fetch the room pointer and then lose the race with the
	// reaper dropping it. Reproduce the reaped state directly, then join.
	stale := svc.roomFor("m1")
	svc.dropIfEmpty("m1")

	stale.Mutex.RLock()
	closed := stale.Closed
	stale.Mutex.RUnlock()
	require.True(t, closed)

	require.NoError(t, svc.Join(ctx, conn, "m1", "Alice"))

	// The join landed in the replacement room, not the orphan.
	assert.Zero(t, stale.Size())
	members := svc.Members("m1")
	require.Len(t, members, 1)
	assert.Equal(t, conn.ID, members[0].ID)
	assert.True(t, conn.InRoom("m1"))
}

func TestRoomService_JoinNeverLandsInReapedRoomStress(t *testing.T) {
	svc := newTestRoomService("m1")
	ctx := context.Background()

	const workers = 8
	deadline := time.Now().Add(2 * time.Second)

	var wg sync.WaitGroup
	faults := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := domain.NewConnection(fmt.Sprintf("u%d", i), fmt.Sprintf("user-%d", i))
			for time.Now().Before(deadline) {
				if err := svc.Join(ctx, conn, "m1", conn.Name()); err != nil {
					faults <- err.Error()
					return
				}
				// Joined connections must be visible to the broadcast view.
				present := false
				for _, member := range svc.Members("m1") {
					if member.ID == conn.ID {
						present = true
						break
					}
				}
				if !present {
					faults <- fmt.Sprintf("connection %s in joined set but absent from live room", conn.UserID)
					return
				}
				drainEvents(conn)
				_ = svc.Leave(ctx, conn, "m1")
			}
		}(i)
	}
	wg.Wait()
	close(faults)

	for fault := range faults {
		t.Fatal(fault)
	}
}

func TestRoomService_EmptyRoomIsDropped(t *testing.T) {
	svc := newTestRoomService("m1")
	conn := domain.NewConnection("u1", "Alice")
	ctx := context.Background()

	require.NoError(t, svc.Join(ctx, conn, "m1", "Alice"))
	require.NoError(t, svc.Leave(ctx, conn, "m1"))

	svc.mu.RLock()
	_, exists := svc.rooms["m1"]
	svc.mu.RUnlock()
	assert.False(t, exists)
}
