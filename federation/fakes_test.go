package federation

import (
	"errors"
	"strconv"
	"strings"
)

type memRooms struct {
	rooms   map[string]*FederatedRoom
	members map[string][]string
	creates int
	removed []string
	seq     int
}

func newMemRooms() *memRooms {
	return &memRooms{
		rooms:   make(map[string]*FederatedRoom),
		members: make(map[string][]string),
	}
}

func (m *memRooms) GetFederatedRoomByExternalID(externalRoomID string) (*FederatedRoom, error) {
	room, ok := m.rooms[externalRoomID]
	if !ok {
		return nil, nil
	}

	cp := *room
	cp.Usernames = append([]string(nil), m.members[externalRoomID]...)

	return &cp, nil
}

func (m *memRooms) CreateFederatedRoom(room *FederatedRoom) error {
	m.seq++
	m.creates++
	room.LocalID = "room" + strconv.Itoa(m.seq)
	m.rooms[room.ExternalID] = room

	if room.Creator != nil {
		m.add(room.ExternalID, room.Creator.Username)
	}

	for _, member := range room.Members {
		m.add(room.ExternalID, member.Username)
	}

	return nil
}

func (m *memRooms) CreateFederatedRoomForDirectMessage(room *FederatedRoom, usernames []string) error {
	m.seq++
	m.creates++
	room.LocalID = "room" + strconv.Itoa(m.seq)
	m.rooms[room.ExternalID] = room
	m.members[room.ExternalID] = append([]string(nil), usernames...)

	return nil
}

func (m *memRooms) RemoveDirectMessageRoom(room *FederatedRoom) error {
	delete(m.rooms, room.ExternalID)
	delete(m.members, room.ExternalID)
	m.removed = append(m.removed, room.ExternalID)

	return nil
}

func (m *memRooms) AddUserToRoom(room *FederatedRoom, user, actor *FederatedUser) error {
	m.add(room.ExternalID, user.Username)
	return nil
}

func (m *memRooms) RemoveUserFromRoom(room *FederatedRoom, user, actor *FederatedUser) error {
	var kept []string

	for _, u := range m.members[room.ExternalID] {
		if u != user.Username {
			kept = append(kept, u)
		}
	}

	m.members[room.ExternalID] = kept

	return nil
}

func (m *memRooms) UpdateRoomName(room *FederatedRoom, name string) error {
	m.rooms[room.ExternalID].DisplayName = name
	return nil
}

func (m *memRooms) add(externalRoomID, username string) {
	for _, u := range m.members[externalRoomID] {
		if u == username {
			return
		}
	}

	m.members[externalRoomID] = append(m.members[externalRoomID], username)
}

type memUsers struct {
	users   map[string]*FederatedUser
	creates int
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*FederatedUser)}
}

func (m *memUsers) GetFederatedUserByExternalID(externalUserID string) (*FederatedUser, error) {
	return m.users[externalUserID], nil
}

func (m *memUsers) CreateFederatedUser(user *FederatedUser) error {
	m.creates++
	user.LocalID = "user" + strconv.Itoa(m.creates)
	m.users[user.ExternalID] = user

	return nil
}

type sentMessage struct {
	sender string
	room   string
	text   string
}

type memMessages struct {
	sent []sentMessage
}

func (m *memMessages) SendMessage(sender *FederatedUser, text string, room *FederatedRoom) error {
	m.sent = append(m.sent, sentMessage{sender: sender.ExternalID, room: room.ExternalID, text: text})
	return nil
}

type staticSettings string

func (s staticSettings) GetHomeServerDomain() string {
	return string(s)
}

type fakeBridge struct {
	profiles   map[string]string
	profileErr error
	calls      []string
}

func (b *fakeBridge) GetUserProfileInformation(externalUserID string) (*UserProfile, error) {
	b.calls = append(b.calls, "profile "+externalUserID)
	if b.profileErr != nil {
		return nil, b.profileErr
	}

	return &UserProfile{DisplayName: b.profiles[externalUserID]}, nil
}

func (b *fakeBridge) IsUserIDFromTheSameHomeserver(externalUserID, domain string) bool {
	return strings.HasSuffix(externalUserID, ":"+domain)
}

func (b *fakeBridge) JoinRoom(externalRoomID, externalUserID string) error {
	b.calls = append(b.calls, "join "+externalRoomID+" "+externalUserID)
	return nil
}

func (b *fakeBridge) InviteToRoom(externalRoomID, externalInviterID, externalInviteeID string) error {
	b.calls = append(b.calls, "invite "+externalRoomID+" "+externalInviterID+" "+externalInviteeID)
	return nil
}

func (b *fakeBridge) count(prefix string) int {
	n := 0

	for _, c := range b.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}

	return n
}

var errProfile = errors.New("profile lookup failed")

type fixture struct {
	rooms    *memRooms
	users    *memUsers
	messages *memMessages
	bridge   *fakeBridge
	receiver *Receiver
}

func newFixture() *fixture {
	f := &fixture{
		rooms:    newMemRooms(),
		users:    newMemUsers(),
		messages: &memMessages{},
		bridge:   &fakeBridge{profiles: make(map[string]string)},
	}
	f.receiver = NewReceiver(f.rooms, f.users, f.messages, staticSettings("local.org"), f.bridge)

	return f
}
