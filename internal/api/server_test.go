package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"parley/internal/chat"
	"parley/internal/config"
	"parley/internal/group"
	"parley/internal/logging"
	"parley/internal/presence"
	"parley/internal/websocket"
	"parley/pkg/interfaces"
	"parley/pkg/types"
)

// fakeStore serves canned listings and records how it was queried.
type fakeStore struct {
	listed        []*types.Message
	lastContainer string
	lastLimit     int
	deleteErrs    map[int64]error
}

func (f *fakeStore) MessagesForUser(ctx context.Context, username, container string, limit int) ([]*types.Message, error) {
	f.lastContainer = container
	f.lastLimit = limit
	return f.listed, nil
}

func (f *fakeStore) DeleteMessage(ctx context.Context, id int64, username string) error {
	if err, ok := f.deleteErrs[id]; ok {
		return err
	}
	return nil
}

func (f *fakeStore) AddMessage(ctx context.Context, message *types.Message) error { return nil }
func (f *fakeStore) GetMessage(ctx context.Context, id int64) (*types.Message, error) {
	return nil, interfaces.ErrMessageNotFound
}
func (f *fakeStore) ThreadBetween(ctx context.Context, currentUsername, otherUsername string) ([]*types.Message, error) {
	return nil, nil
}
func (f *fakeStore) MarkThreadRead(ctx context.Context, currentUsername, otherUsername string, at time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeStore) GetGroup(ctx context.Context, name string) (*types.Group, error) {
	return nil, interfaces.ErrGroupNotFound
}
func (f *fakeStore) AddConnection(ctx context.Context, groupName string, conn types.Connection, epoch string) error {
	return nil
}
func (f *fakeStore) RemoveConnection(ctx context.Context, connectionID string) error { return nil }
func (f *fakeStore) GroupForConnection(ctx context.Context, connectionID string) (*types.Group, error) {
	return nil, interfaces.ErrConnectionNotInGroup
}
func (f *fakeStore) PurgeConnectionsExcept(ctx context.Context, epoch string) (int64, error) {
	return 0, nil
}

type fakeDirectory struct{}

func (fakeDirectory) ResolveByUsername(ctx context.Context, username string) (*types.User, error) {
	return &types.User{Username: username}, nil
}

func newTestServer(t *testing.T, store *fakeStore) (*httptest.Server, *presence.Registry) {
	t.Helper()
	log := logging.Component("test")
	transport := websocket.NewRegistry(log)
	registry := presence.NewRegistry()
	groups := group.NewManager(store, "epoch-test", log)
	presenceChannel := presence.NewChannel(registry, fakeDirectory{}, transport, log)
	chatChannel := chat.NewChannel(groups, store, fakeDirectory{}, registry, transport, log)
	handlers := websocket.NewHandlers(transport, presenceChannel, chatChannel,
		config.Default().WebSocket, log)

	srv := httptest.NewServer(NewServer(store, registry, transport, handlers, log))
	t.Cleanup(srv.Close)
	return srv, registry
}

func TestServer_Health(t *testing.T) {
	srv, registry := newTestServer(t, &fakeStore{})
	registry.Connect("alice", "c1")

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("unexpected status: %v", body["status"])
	}
	if body["online"] != float64(1) {
		t.Errorf("expected 1 online user, got %v", body["online"])
	}
}

func TestServer_OnlineUsers(t *testing.T) {
	srv, registry := newTestServer(t, &fakeStore{})
	registry.Connect("bob", "c1")
	registry.Connect("alice", "c2")

	resp, err := http.Get(srv.URL + "/api/presence/online")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var users []string
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(users) != 2 || users[0] != "alice" || users[1] != "bob" {
		t.Errorf("expected sorted online users, got %v", users)
	}
}

func TestServer_ListMessages(t *testing.T) {
	store := &fakeStore{listed: []*types.Message{
		{ID: 1, SenderUsername: "bob", RecipientUsername: "alice", Content: "hi", SentAt: time.Now().UTC()},
	}}
	srv, _ := newTestServer(t, store)

	resp, err := http.Get(srv.URL + "/api/messages?username=alice")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if store.lastContainer != types.ContainerInbox {
		t.Errorf("container should default to inbox, got %q", store.lastContainer)
	}
	if store.lastLimit != 50 {
		t.Errorf("limit should default to 50, got %d", store.lastLimit)
	}

	var messages []types.Message
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "hi" {
		t.Errorf("unexpected listing: %+v", messages)
	}
}

func TestServer_ListMessagesRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t, &fakeStore{})

	cases := []struct {
		name string
		url  string
	}{
		{"missing username", "/api/messages"},
		{"invalid username", "/api/messages?username=no%20spaces"},
		{"unknown container", "/api/messages?username=alice&container=archive"},
		{"non-numeric limit", "/api/messages?username=alice&limit=many"},
		{"negative limit", "/api/messages?username=alice&limit=-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tc.url)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestServer_DeleteMessage(t *testing.T) {
	store := &fakeStore{deleteErrs: map[int64]error{
		2: interfaces.ErrMessageNotFound,
		3: interfaces.ErrNotMessageParticipant,
		4: errors.New("disk full"),
	}}
	srv, _ := newTestServer(t, store)

	cases := []struct {
		name   string
		path   string
		status int
	}{
		{"deleted", "/api/messages/1?username=alice", http.StatusNoContent},
		{"not found", "/api/messages/2?username=alice", http.StatusNotFound},
		{"not a participant", "/api/messages/3?username=alice", http.StatusForbidden},
		{"store failure", "/api/messages/4?username=alice", http.StatusInternalServerError},
		{"bad id", "/api/messages/xyz?username=alice", http.StatusBadRequest},
		{"missing username", "/api/messages/1", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodDelete, srv.URL+tc.path, nil)
			if err != nil {
				t.Fatalf("failed to build request: %v", err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tc.status {
				t.Errorf("expected %d, got %d", tc.status, resp.StatusCode)
			}
		})
	}
}
