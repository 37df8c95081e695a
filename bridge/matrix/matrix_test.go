package matrix

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/42wim/matterfed/bridge"
	"github.com/42wim/matterfed/federation"
	"github.com/42wim/matterfed/store"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

type fakeClient struct {
	names   map[id.UserID]string
	lookups int
	joins   []string
	invites []string
}

func (c *fakeClient) GetDisplayName(mxid id.UserID) (*mautrix.RespUserDisplayName, error) {
	c.lookups++

	name, ok := c.names[mxid]
	if !ok {
		return nil, errors.New("M_NOT_FOUND")
	}

	return &mautrix.RespUserDisplayName{DisplayName: name}, nil
}

func (c *fakeClient) JoinRoom(roomIDorAlias, serverName string, content interface{}) (*mautrix.RespJoinRoom, error) {
	c.joins = append(c.joins, roomIDorAlias)
	return &mautrix.RespJoinRoom{RoomID: id.RoomID(roomIDorAlias)}, nil
}

func (c *fakeClient) InviteUser(roomID id.RoomID, req *mautrix.ReqInviteUser) (*mautrix.RespInviteUser, error) {
	c.invites = append(c.invites, roomID.String()+" "+req.UserID.String())
	return &mautrix.RespInviteUser{}, nil
}

func newTestMatrix() (*Matrix, *fakeClient, chan *bridge.Event) {
	fc := &fakeClient{names: map[id.UserID]string{"@alice:remote.org": "Alice"}}
	events := make(chan *bridge.Event, 10)

	return newMatrix(viper.New(), bridge.Credentials{}, "local.org", events, fc), fc, events
}

func stateEvent(evType event.Type, room, sender, stateKey string, content map[string]interface{}) *event.Event {
	return &event.Event{
		Type:     evType,
		RoomID:   id.RoomID(room),
		Sender:   id.UserID(sender),
		StateKey: &stateKey,
		Content:  event.Content{Raw: content},
	}
}

func TestIsUserIDFromTheSameHomeserver(t *testing.T) {
	m, _, _ := newTestMatrix()

	assert.True(t, m.IsUserIDFromTheSameHomeserver("@bob:local.org", "local.org"))
	assert.False(t, m.IsUserIDFromTheSameHomeserver("@alice:remote.org", "local.org"))
	assert.False(t, m.IsUserIDFromTheSameHomeserver("not-a-user-id", "local.org"))
}

func TestGetUserProfileInformationIsCached(t *testing.T) {
	m, fc, _ := newTestMatrix()

	profile, err := m.GetUserProfileInformation("@alice:remote.org")
	require.NoError(t, err)
	assert.Equal(t, "Alice", profile.DisplayName)

	_, err = m.GetUserProfileInformation("@alice:remote.org")
	require.NoError(t, err)
	assert.Equal(t, 1, fc.lookups)

	_, err = m.GetUserProfileInformation("@ghost:remote.org")
	assert.Error(t, err)
}

func TestJoinAndInvite(t *testing.T) {
	m, fc, _ := newTestMatrix()

	require.NoError(t, m.JoinRoom("!r1:remote.org", "@bob:local.org"))
	require.NoError(t, m.InviteToRoom("!r1:remote.org", "@alice:remote.org", "@bob:local.org"))

	assert.Equal(t, []string{"!r1:remote.org"}, fc.joins)
	assert.Equal(t, []string{"!r1:remote.org @bob:local.org"}, fc.invites)
}

// newAppServiceMatrix returns a bridge holding an appservice token whose bot
// user lives on local.org.
func newAppServiceMatrix(t *testing.T) (*Matrix, *fakeClient, chan *bridge.Event) {
	t.Helper()

	m, fc, events := newTestMatrix()
	m.credentials = bridge.Credentials{Server: "https://matrix.local.org", AppService: true}

	mc, err := mautrix.NewClient("https://matrix.local.org", "@bot:local.org", "secret")
	require.NoError(t, err)

	m.mc = mc

	return m, fc, events
}

func TestAppServiceClientRouting(t *testing.T) {
	m, fc, _ := newAppServiceMatrix(t)

	c, err := m.appServiceClient("@alice:remote.org")
	require.NoError(t, err)
	assert.Same(t, fc, c)

	c, err = m.appServiceClient("@bot:local.org")
	require.NoError(t, err)
	assert.Same(t, fc, c)

	c, err = m.appServiceClient("@bob:local.org")
	require.NoError(t, err)

	as, ok := c.(*mautrix.Client)
	require.True(t, ok)
	assert.Equal(t, id.UserID("@bob:local.org"), as.AppServiceUserID)
	assert.Equal(t, "secret", as.AccessToken)

	m.credentials.AppService = false

	c, err = m.appServiceClient("@bob:local.org")
	require.NoError(t, err)
	assert.Same(t, fc, c)
}

func TestJoinAndInviteForRemoteUsersUseBot(t *testing.T) {
	m, fc, _ := newAppServiceMatrix(t)

	require.NoError(t, m.JoinRoom("!r2:remote.org", "@carol:remote.org"))
	require.NoError(t, m.InviteToRoom("!dm:remote.org", "@alice:remote.org", "@bob:local.org"))

	assert.Equal(t, []string{"!r2:remote.org"}, fc.joins)
	assert.Equal(t, []string{"!dm:remote.org @bob:local.org"}, fc.invites)
}

type homeServer string

func (h homeServer) GetHomeServerDomain() string {
	return string(h)
}

func TestReceiverOverMatrixReachesRemoteRooms(t *testing.T) {
	m, fc, _ := newAppServiceMatrix(t)
	fc.names["@bob:local.org"] = "Bob"
	fc.names["@carol:remote.org"] = "Carol"

	st, err := store.Open(filepath.Join(t.TempDir(), "matterfed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	alice := federation.CreateUserInstance("@alice:remote.org", "alice:remote.org", "Alice", false)
	require.NoError(t, st.CreateFederatedUser(alice))

	dm := federation.CreateRoomInstance("!dm:remote.org", "dm:remote.org", alice, federation.RoomTypeDirectMessage, "")
	require.NoError(t, st.CreateFederatedRoomForDirectMessage(dm, []string{"alice:remote.org"}))

	receiver := federation.NewReceiver(st, st, st, homeServer("local.org"), m)

	require.NoError(t, receiver.ChangeRoomMembership(&federation.RoomChangeMembershipInput{
		ExternalRoomID:      "!dm:remote.org",
		NormalizedRoomID:    "dm:remote.org",
		ExternalInviterID:   "@alice:remote.org",
		NormalizedInviterID: "alice:remote.org",
		InviterUsernameOnly: "alice",
		ExternalInviteeID:   "@bob:local.org",
		NormalizedInviteeID: "bob:local.org",
		InviteeUsernameOnly: "bob",
		EventOrigin:         federation.OriginRemote,
		RoomType:            federation.RoomTypeDirectMessage,
	}))

	members, err := st.RoomMembers("!dm:remote.org")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice:remote.org", "bob"}, members)
	assert.Equal(t, []string{"!dm:remote.org @bob:local.org"}, fc.invites)

	require.NoError(t, receiver.ChangeRoomMembership(&federation.RoomChangeMembershipInput{
		ExternalRoomID:      "!r2:remote.org",
		NormalizedRoomID:    "r2:remote.org",
		ExternalInviterID:   "@alice:remote.org",
		NormalizedInviterID: "alice:remote.org",
		InviterUsernameOnly: "alice",
		ExternalInviteeID:   "@carol:remote.org",
		NormalizedInviteeID: "carol:remote.org",
		InviteeUsernameOnly: "carol",
		EventOrigin:         federation.OriginRemote,
		RoomType:            federation.RoomTypeChannel,
	}))

	assert.Equal(t, []string{"!r2:remote.org"}, fc.joins)
}

func TestConvertMember(t *testing.T) {
	m, _, _ := newTestMatrix()

	ev := stateEvent(event.StateMember, "!r1:remote.org", "@alice:remote.org", "@bob:local.org",
		map[string]interface{}{"membership": "invite", "is_direct": true, "displayname": "Bob"})

	converted := m.convertMember(ev)
	require.NotNil(t, converted)
	assert.Equal(t, bridge.EventMembership, converted.Type)

	in, ok := converted.Data.(*federation.RoomChangeMembershipInput)
	require.True(t, ok)
	assert.Equal(t, "!r1:remote.org", in.ExternalRoomID)
	assert.Equal(t, "r1:remote.org", in.NormalizedRoomID)
	assert.Equal(t, "@alice:remote.org", in.ExternalInviterID)
	assert.Equal(t, "alice:remote.org", in.NormalizedInviterID)
	assert.Equal(t, "alice", in.InviterUsernameOnly)
	assert.Equal(t, "@bob:local.org", in.ExternalInviteeID)
	assert.Equal(t, "bob", in.InviteeUsernameOnly)
	assert.Equal(t, federation.OriginRemote, in.EventOrigin)
	assert.Equal(t, federation.RoomTypeDirectMessage, in.RoomType)
	assert.False(t, in.Leave)

	leave := stateEvent(event.StateMember, "!r1:remote.org", "@bob:local.org", "@bob:local.org",
		map[string]interface{}{"membership": "leave"})

	converted = m.convertMember(leave)
	require.NotNil(t, converted)

	in, ok = converted.Data.(*federation.RoomChangeMembershipInput)
	require.True(t, ok)
	assert.True(t, in.Leave)
	assert.Equal(t, federation.OriginLocal, in.EventOrigin)

	knock := stateEvent(event.StateMember, "!r1:remote.org", "@bob:local.org", "@bob:local.org",
		map[string]interface{}{"membership": "knock"})
	assert.Nil(t, m.convertMember(knock))
}

func TestConvertCreate(t *testing.T) {
	m, _, _ := newTestMatrix()

	ev := stateEvent(event.StateCreate, "!r1:remote.org", "@alice:remote.org", "",
		map[string]interface{}{"creator": "@alice:remote.org", "was_internally_programatically_created": true})

	converted := m.convertCreate(ev)
	require.NotNil(t, converted)

	in, ok := converted.Data.(*federation.RoomCreateInput)
	require.True(t, ok)
	assert.Equal(t, "@alice:remote.org", in.ExternalInviterID)
	assert.Equal(t, "alice:remote.org", in.NormalizedInviterID)
	assert.True(t, in.InternallyCreated)
	assert.Equal(t, federation.RoomTypeChannel, in.RoomType)
}

func TestSyncerRecordsStateFirst(t *testing.T) {
	m, _, events := newTestMatrix()
	s := NewSyncer(m)

	s.process("!r1:remote.org", []*event.Event{
		stateEvent(event.StateCreate, "", "@alice:remote.org", "", map[string]interface{}{"creator": "@alice:remote.org"}),
		stateEvent(event.StateJoinRules, "", "@alice:remote.org", "", map[string]interface{}{"join_rule": "invite"}),
		stateEvent(event.StateRoomName, "", "@alice:remote.org", "", map[string]interface{}{"name": "secret"}),
	})

	require.Len(t, events, 2)

	create := <-events
	in, ok := create.Data.(*federation.RoomCreateInput)
	require.True(t, ok)
	assert.Equal(t, "!r1:remote.org", in.ExternalRoomID)
	assert.Equal(t, "secret", in.ExternalRoomName)
	assert.Equal(t, federation.RoomTypePrivateGroup, in.RoomType)

	rename := <-events
	assert.Equal(t, bridge.EventRoomName, rename.Type)
}

func TestSyncerProcessesLeftRooms(t *testing.T) {
	m, _, events := newTestMatrix()
	s := NewSyncer(m)

	var resp mautrix.RespSync
	require.NoError(t, json.Unmarshal([]byte(`{
		"next_batch": "s2",
		"rooms": {"leave": {"!r1:remote.org": {"timeline": {"events": [{
			"type": "m.room.member",
			"event_id": "$kick",
			"sender": "@alice:remote.org",
			"state_key": "@bot:local.org",
			"content": {"membership": "leave"}
		}]}}}}
	}`), &resp))

	require.NoError(t, s.ProcessResponse(&resp, "s1"))
	require.Len(t, events, 1)

	ev := <-events
	in, ok := ev.Data.(*federation.RoomChangeMembershipInput)
	require.True(t, ok)
	assert.Equal(t, "!r1:remote.org", in.ExternalRoomID)
	assert.Equal(t, "@bot:local.org", in.ExternalInviteeID)
	assert.Equal(t, federation.OriginRemote, in.EventOrigin)
	assert.True(t, in.Leave)
}

func TestConvertMessage(t *testing.T) {
	m, _, _ := newTestMatrix()

	ev := &event.Event{
		Type:    event.EventMessage,
		RoomID:  "!r1:remote.org",
		Sender:  "@alice:remote.org",
		Content: event.Content{Raw: map[string]interface{}{"formatted_body": "<b>hello</b> world"}},
	}

	converted := m.convertMessage(ev)
	require.NotNil(t, converted)

	in, ok := converted.Data.(*federation.RoomSendInternalMessageInput)
	require.True(t, ok)
	assert.Equal(t, "hello world", in.Text)
	assert.Equal(t, "@alice:remote.org", in.ExternalSenderID)

	ev.Sender = "@bob:local.org"
	assert.Nil(t, m.convertMessage(ev))

	ev.Sender = "@alice:remote.org"
	ev.Content = event.Content{Raw: map[string]interface{}{}}
	assert.Nil(t, m.convertMessage(ev))
}

func TestNormalizeID(t *testing.T) {
	assert.Equal(t, "alice:remote.org", normalizeID("@alice:remote.org"))
	assert.Equal(t, "room:remote.org", normalizeID("!room:remote.org"))
	assert.Equal(t, "plain", normalizeID("plain"))
	assert.Equal(t, "", normalizeID(""))
	assert.Equal(t, "alice", usernameOnly("@alice:remote.org"))
}
