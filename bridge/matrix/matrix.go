package matrix

import (
	"fmt"
	"strings"
	"sync"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/42wim/matterfed/bridge"
	"github.com/42wim/matterfed/federation"
	"github.com/davecgh/go-spew/spew"
	strip "github.com/grokify/html-strip-tags-go"
	lru "github.com/hashicorp/golang-lru"
	prefixed "github.com/matterbridge/logrus-prefixed-formatter"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// client is the part of *mautrix.Client the bridge uses.
type client interface {
	GetDisplayName(mxid id.UserID) (*mautrix.RespUserDisplayName, error)
	JoinRoom(roomIDorAlias, serverName string, content interface{}) (*mautrix.RespJoinRoom, error)
	InviteUser(roomID id.RoomID, req *mautrix.ReqInviteUser) (*mautrix.RespInviteUser, error)
}

type Matrix struct {
	mc          *mautrix.Client
	api         client
	credentials bridge.Credentials
	eventChan   chan *bridge.Event
	v           *viper.Viper
	domain      string
	connected   bool
	channels    map[id.RoomID]*Channel
	sync.RWMutex

	profileCache *lru.Cache
}

var _ bridge.Bridger = (*Matrix)(nil)

var logger = logrus.WithFields(logrus.Fields{"prefix": "bridge/matrix"})

// New logs in to the homeserver and starts syncing. Converted events are sent
// to eventChan.
func New(v *viper.Viper, cred bridge.Credentials, domain string, eventChan chan *bridge.Event) (*Matrix, error) {
	ourlog := logrus.New()
	ourlog.SetFormatter(&prefixed.TextFormatter{
		PrefixPadding: 14,
		FullTimestamp: true,
	})
	logger = ourlog.WithFields(logrus.Fields{"prefix": "bridge/matrix"})
	if v.GetBool("debug") {
		ourlog.SetLevel(logrus.DebugLevel)
	}

	if v.GetBool("trace") {
		ourlog.SetLevel(logrus.TraceLevel)
	}

	mc, err := mautrix.NewClient(cred.Server, "", "")
	if err != nil {
		return nil, err
	}

	if cred.Token != "" {
		mc.AccessToken = cred.Token
		mc.UserID = id.UserID(cred.Login)
	} else {
		_, err = mc.Login(&mautrix.ReqLogin{
			Type: "m.login.password",
			Identifier: mautrix.UserIdentifier{
				Type: "m.id.user",
				User: cred.Login,
			},
			Password:         cred.Pass,
			StoreCredentials: true,
		})
		if err != nil {
			return nil, err
		}
	}

	m := newMatrix(v, cred, domain, eventChan, mc)
	m.mc = mc
	mc.Syncer = NewSyncer(m)
	m.connected = true

	logger.Infof("logged in as %s on %s", mc.UserID, cred.Server)

	return m, nil
}

func newMatrix(v *viper.Viper, cred bridge.Credentials, domain string, eventChan chan *bridge.Event, api client) *Matrix {
	m := &Matrix{
		api:         api,
		credentials: cred,
		eventChan:   eventChan,
		v:           v,
		domain:      domain,
		channels:    make(map[id.RoomID]*Channel),
	}

	size := v.GetInt("matrix.profilecache")
	if size <= 0 {
		size = 512
	}

	m.profileCache, _ = lru.New(size)

	return m
}

// Sync runs the sync loop until StopSync is called or the loop fails.
func (m *Matrix) Sync() error {
	return m.mc.Sync()
}

func (m *Matrix) StopSync() {
	m.mc.StopSync()
}

// appServiceClient returns a client acting as userID. Only users of our own
// homeserver can be impersonated, and only with an appservice token; every
// other request goes out as the bot.
func (m *Matrix) appServiceClient(userID id.UserID) (client, error) {
	if m.mc == nil || !m.credentials.AppService || userID == m.mc.UserID ||
		!m.IsUserIDFromTheSameHomeserver(userID.String(), m.domain) {
		return m.api, nil
	}

	mc, err := mautrix.NewClient(m.credentials.Server, userID, m.mc.AccessToken)
	if err != nil {
		return nil, err
	}

	mc.AppServiceUserID = userID

	return mc, nil
}

func (m *Matrix) GetUserProfileInformation(externalUserID string) (*federation.UserProfile, error) {
	if v, ok := m.profileCache.Get(externalUserID); ok {
		if profile, ok := v.(*federation.UserProfile); ok {
			return profile, nil
		}
	}

	resp, err := m.api.GetDisplayName(id.UserID(externalUserID))
	if err != nil {
		return nil, fmt.Errorf("getting display name of %s: %w", externalUserID, err)
	}

	profile := &federation.UserProfile{DisplayName: resp.DisplayName}
	m.profileCache.Add(externalUserID, profile)

	return profile, nil
}

func (m *Matrix) IsUserIDFromTheSameHomeserver(externalUserID, domain string) bool {
	_, host, err := id.UserID(externalUserID).Parse()
	if err != nil {
		return false
	}

	return host == domain
}

func (m *Matrix) JoinRoom(externalRoomID, externalUserID string) error {
	mc, err := m.appServiceClient(id.UserID(externalUserID))
	if err != nil {
		return err
	}

	_, err = mc.JoinRoom(externalRoomID, "", nil)

	return err
}

func (m *Matrix) InviteToRoom(externalRoomID, externalInviterID, externalInviteeID string) error {
	mc, err := m.appServiceClient(id.UserID(externalInviterID))
	if err != nil {
		return err
	}

	_, err = mc.InviteUser(id.RoomID(externalRoomID), &mautrix.ReqInviteUser{
		UserID: id.UserID(externalInviteeID),
	})

	return err
}

func (m *Matrix) Protocol() string {
	return "matrix"
}

func (m *Matrix) Connected() bool {
	return m.connected
}

func (m *Matrix) Logout() error {
	m.connected = false

	if m.mc == nil {
		return nil
	}

	m.mc.StopSync()

	return nil
}

func (m *Matrix) channel(roomID id.RoomID) *Channel {
	m.Lock()
	defer m.Unlock()

	ch, ok := m.channels[roomID]
	if !ok {
		ch = &Channel{ID: roomID}
		m.channels[roomID] = ch
	}

	return ch
}

// recordState remembers the room properties later events are converted with.
func (m *Matrix) recordState(ev *event.Event) {
	switch ev.Type {
	case event.StateRoomName:
		if name, ok := ev.Content.Raw["name"].(string); ok {
			ch := m.channel(ev.RoomID)
			ch.Lock()
			ch.Name = name
			ch.Unlock()
		}
	case event.StateJoinRules:
		if rule, ok := ev.Content.Raw["join_rule"].(string); ok {
			ch := m.channel(ev.RoomID)
			ch.Lock()
			ch.JoinRule = rule
			ch.Unlock()
		}
	case event.StateMember:
		if direct, ok := ev.Content.Raw["is_direct"].(bool); ok && direct {
			ch := m.channel(ev.RoomID)
			ch.Lock()
			ch.IsDirect = true
			ch.Unlock()
		}
	}
}

func (m *Matrix) handleEvent(ev *event.Event) {
	var converted *bridge.Event

	switch ev.Type {
	case event.StateCreate:
		converted = m.convertCreate(ev)
	case event.StateMember:
		converted = m.convertMember(ev)
	case event.StateRoomName:
		converted = m.convertRoomName(ev)
	case event.EventMessage:
		converted = m.convertMessage(ev)
	default:
		logger.Tracef("handleEvent ignoring %s", ev.Type.Type)
		return
	}

	if converted == nil {
		return
	}

	if logger.Logger.IsLevelEnabled(logrus.TraceLevel) {
		logger.Tracef("handleEvent converted %s", spew.Sdump(converted))
	}

	m.eventChan <- converted
}

func (m *Matrix) origin(sender id.UserID) federation.EventOrigin {
	if m.IsUserIDFromTheSameHomeserver(sender.String(), m.domain) {
		return federation.OriginLocal
	}

	return federation.OriginRemote
}

type createContent struct {
	Creator           string `mapstructure:"creator"`
	InternallyCreated bool   `mapstructure:"was_internally_programatically_created"`
}

func (m *Matrix) convertCreate(ev *event.Event) *bridge.Event {
	var content createContent
	if err := decodeContent(ev, &content); err != nil {
		logger.Errorf("convertCreate: %s", err)
		return nil
	}

	inviter := ev.Sender
	if inviter == "" && content.Creator != "" {
		inviter = id.UserID(content.Creator)
	}

	ch := m.channel(ev.RoomID)

	return bridge.NewRoomCreateEvent(&federation.RoomCreateInput{
		ExternalRoomID:      ev.RoomID.String(),
		ExternalInviterID:   inviter.String(),
		NormalizedInviterID: normalizeID(inviter.String()),
		ExternalRoomName:    ch.name(),
		NormalizedRoomID:    normalizeID(ev.RoomID.String()),
		RoomType:            ch.roomType(),
		InternallyCreated:   content.InternallyCreated,
	})
}

type memberContent struct {
	Membership  string `mapstructure:"membership"`
	Displayname string `mapstructure:"displayname"`
	IsDirect    bool   `mapstructure:"is_direct"`
}

func (m *Matrix) convertMember(ev *event.Event) *bridge.Event {
	if ev.StateKey == nil || *ev.StateKey == "" {
		return nil
	}

	var content memberContent
	if err := decodeContent(ev, &content); err != nil {
		logger.Errorf("convertMember: %s", err)
		return nil
	}

	var leave bool

	switch content.Membership {
	case "invite", "join":
	case "leave", "ban":
		leave = true
	default:
		logger.Debugf("convertMember: ignoring membership %q in %s", content.Membership, ev.RoomID)
		return nil
	}

	inviter := ev.Sender
	invitee := id.UserID(*ev.StateKey)
	ch := m.channel(ev.RoomID)

	roomType := ch.roomType()
	if content.IsDirect {
		roomType = federation.RoomTypeDirectMessage
	}

	return bridge.NewMembershipEvent(&federation.RoomChangeMembershipInput{
		ExternalRoomID:      ev.RoomID.String(),
		NormalizedRoomID:    normalizeID(ev.RoomID.String()),
		ExternalRoomName:    ch.name(),
		ExternalInviterID:   inviter.String(),
		NormalizedInviterID: normalizeID(inviter.String()),
		InviterUsernameOnly: usernameOnly(inviter),
		ExternalInviteeID:   invitee.String(),
		NormalizedInviteeID: normalizeID(invitee.String()),
		InviteeUsernameOnly: usernameOnly(invitee),
		EventOrigin:         m.origin(inviter),
		RoomType:            roomType,
		Leave:               leave,
	})
}

func (m *Matrix) convertRoomName(ev *event.Event) *bridge.Event {
	name, ok := ev.Content.Raw["name"].(string)
	if !ok {
		return nil
	}

	return bridge.NewRoomNameEvent(&federation.RoomChangeNameInput{
		ExternalRoomID:   ev.RoomID.String(),
		ExternalSenderID: ev.Sender.String(),
		Name:             name,
		EventOrigin:      m.origin(ev.Sender),
	})
}

func (m *Matrix) convertMessage(ev *event.Event) *bridge.Event {
	// our own messages are already stored locally
	if m.origin(ev.Sender) == federation.OriginLocal {
		return nil
	}

	text := messageText(ev)
	if text == "" {
		logger.Debugf("convertMessage: empty message %s in %s", ev.ID, ev.RoomID)
		return nil
	}

	return bridge.NewMessageEvent(&federation.RoomSendInternalMessageInput{
		ExternalRoomID:   ev.RoomID.String(),
		ExternalSenderID: ev.Sender.String(),
		Text:             text,
	})
}

func messageText(ev *event.Event) string {
	if body, ok := ev.Content.Raw["body"].(string); ok && body != "" {
		return body
	}

	if formatted, ok := ev.Content.Raw["formatted_body"].(string); ok {
		return strings.TrimSpace(strip.StripTags(formatted))
	}

	return ""
}

func decodeContent(ev *event.Event, out interface{}) error {
	if err := mapstructure.Decode(ev.Content.Raw, out); err != nil {
		return fmt.Errorf("decoding %s content of %s: %w", ev.Type.Type, ev.ID, err)
	}

	return nil
}

// normalizeID strips the sigil of a Matrix identifier.
func normalizeID(s string) string {
	if s == "" {
		return s
	}

	switch s[0] {
	case '@', '!', '#', '$', '+':
		return s[1:]
	}

	return s
}

// usernameOnly returns the localpart of a user id.
func usernameOnly(userID id.UserID) string {
	localpart, _, err := userID.Parse()
	if err != nil {
		return normalizeID(userID.String())
	}

	return localpart
}
