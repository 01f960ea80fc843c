package presence

import (
	"context"
	"errors"
	"testing"

	"parley/internal/logging"
	"parley/pkg/interfaces"
	"parley/pkg/types"
)

type mockDirectory struct {
	users map[string]*types.User
}

func (m *mockDirectory) ResolveByUsername(ctx context.Context, username string) (*types.User, error) {
	if u, ok := m.users[username]; ok {
		return u, nil
	}
	return nil, interfaces.ErrUserNotFound
}

type delivery struct {
	connectionIDs []string
	event         string
	payload       any
}

type mockGateway struct {
	deliveries []delivery
}

func (m *mockGateway) DeliverTo(ctx context.Context, connectionIDs []string, event string, payload any) {
	ids := make([]string, len(connectionIDs))
	copy(ids, connectionIDs)
	m.deliveries = append(m.deliveries, delivery{connectionIDs: ids, event: event, payload: payload})
}

func (m *mockGateway) byEvent(event string) []delivery {
	var out []delivery
	for _, d := range m.deliveries {
		if d.event == event {
			out = append(out, d)
		}
	}
	return out
}

func newTestChannel(usernames ...string) (*Channel, *Registry, *mockGateway) {
	users := make(map[string]*types.User, len(usernames))
	for _, u := range usernames {
		users[u] = &types.User{Username: u}
	}
	registry := NewRegistry()
	gateway := &mockGateway{}
	ch := NewChannel(registry, &mockDirectory{users: users}, gateway, logging.Component("test"))
	return ch, registry, gateway
}

func TestChannel_Connected_RejectsMissingIdentity(t *testing.T) {
	ch, registry, gateway := newTestChannel("alice")

	err := ch.Connected(context.Background(), types.Connection{ID: "c1"})
	if !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("expected ErrMissingIdentity, got %v", err)
	}
	if len(registry.AllConnections()) != 0 {
		t.Error("rejected connection must not be tracked")
	}
	if len(gateway.deliveries) != 0 {
		t.Error("rejected connection must not trigger deliveries")
	}
}

func TestChannel_Connected_RejectsUnknownUser(t *testing.T) {
	ch, registry, _ := newTestChannel("alice")

	err := ch.Connected(context.Background(), types.Connection{ID: "c1", Username: "mallory"})
	if !errors.Is(err, interfaces.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if len(registry.AllConnections()) != 0 {
		t.Error("unresolvable identity must not be tracked")
	}
}

func TestChannel_Connected_FirstConnectionBroadcastsOnline(t *testing.T) {
	ch, _, gateway := newTestChannel("alice", "bob")
	ctx := context.Background()

	if err := ch.Connected(ctx, types.Connection{ID: "b1", Username: "bob"}); err != nil {
		t.Fatalf("bob connect failed: %v", err)
	}
	gateway.deliveries = nil

	if err := ch.Connected(ctx, types.Connection{ID: "a1", Username: "alice"}); err != nil {
		t.Fatalf("alice connect failed: %v", err)
	}

	online := gateway.byEvent(types.EventUserIsOnline)
	if len(online) != 1 {
		t.Fatalf("expected one UserIsOnline delivery, got %d", len(online))
	}
	if len(online[0].connectionIDs) != 1 || online[0].connectionIDs[0] != "b1" {
		t.Errorf("online event should go to others only, got %v", online[0].connectionIDs)
	}
	ev, ok := online[0].payload.(types.PresenceEvent)
	if !ok || ev.Username != "alice" {
		t.Errorf("unexpected online payload: %+v", online[0].payload)
	}

	snapshots := gateway.byEvent(types.EventOnlineUsers)
	if len(snapshots) != 1 {
		t.Fatalf("expected one snapshot delivery, got %d", len(snapshots))
	}
	if len(snapshots[0].connectionIDs) != 1 || snapshots[0].connectionIDs[0] != "a1" {
		t.Errorf("snapshot should go to the caller only, got %v", snapshots[0].connectionIDs)
	}
	users, ok := snapshots[0].payload.([]string)
	if !ok || len(users) != 2 {
		t.Errorf("snapshot should list both online users, got %+v", snapshots[0].payload)
	}
}

func TestChannel_Connected_SecondConnectionSkipsBroadcast(t *testing.T) {
	ch, _, gateway := newTestChannel("alice", "bob")
	ctx := context.Background()

	if err := ch.Connected(ctx, types.Connection{ID: "b1", Username: "bob"}); err != nil {
		t.Fatalf("bob connect failed: %v", err)
	}
	if err := ch.Connected(ctx, types.Connection{ID: "a1", Username: "alice"}); err != nil {
		t.Fatalf("first alice connect failed: %v", err)
	}
	gateway.deliveries = nil

	if err := ch.Connected(ctx, types.Connection{ID: "a2", Username: "alice"}); err != nil {
		t.Fatalf("second alice connect failed: %v", err)
	}

	if got := gateway.byEvent(types.EventUserIsOnline); len(got) != 0 {
		t.Errorf("second connection must not re-announce, got %d deliveries", len(got))
	}
	if got := gateway.byEvent(types.EventOnlineUsers); len(got) != 1 {
		t.Errorf("every connect should still receive the snapshot, got %d", len(got))
	}
}

func TestChannel_Disconnected_LastConnectionBroadcastsOffline(t *testing.T) {
	ch, _, gateway := newTestChannel("alice", "bob")
	ctx := context.Background()

	if err := ch.Connected(ctx, types.Connection{ID: "b1", Username: "bob"}); err != nil {
		t.Fatalf("bob connect failed: %v", err)
	}
	if err := ch.Connected(ctx, types.Connection{ID: "a1", Username: "alice"}); err != nil {
		t.Fatalf("alice connect failed: %v", err)
	}
	if err := ch.Connected(ctx, types.Connection{ID: "a2", Username: "alice"}); err != nil {
		t.Fatalf("second alice connect failed: %v", err)
	}
	gateway.deliveries = nil

	ch.Disconnected(ctx, types.Connection{ID: "a1", Username: "alice"})
	if got := gateway.byEvent(types.EventUserIsOffline); len(got) != 0 {
		t.Fatalf("offline must not be announced while a connection remains")
	}

	ch.Disconnected(ctx, types.Connection{ID: "a2", Username: "alice"})
	offline := gateway.byEvent(types.EventUserIsOffline)
	if len(offline) != 1 {
		t.Fatalf("expected one UserIsOffline delivery, got %d", len(offline))
	}
	if len(offline[0].connectionIDs) != 1 || offline[0].connectionIDs[0] != "b1" {
		t.Errorf("offline event should go to others only, got %v", offline[0].connectionIDs)
	}
	ev, ok := offline[0].payload.(types.PresenceEvent)
	if !ok || ev.Username != "alice" {
		t.Errorf("unexpected offline payload: %+v", offline[0].payload)
	}
}

func TestChannel_Disconnected_UnknownConnectionIsSilent(t *testing.T) {
	ch, _, gateway := newTestChannel("alice")

	ch.Disconnected(context.Background(), types.Connection{ID: "ghost", Username: "alice"})
	if len(gateway.deliveries) != 0 {
		t.Errorf("unknown disconnect must not deliver anything, got %d", len(gateway.deliveries))
	}
}
