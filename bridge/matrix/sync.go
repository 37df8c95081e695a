package matrix

import (
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

type Syncer struct {
	m *Matrix
}

func NewSyncer(m *Matrix) *Syncer {
	return &Syncer{
		m: m,
	}
}

// ProcessResponse feeds the events of every joined, invited and left room to
// the bridge. Room names and join rules are recorded before any event is
// converted so that creation and membership events see them.
func (s *Syncer) ProcessResponse(resp *mautrix.RespSync, since string) error {
	for room, sync := range resp.Rooms.Join {
		events := append(append([]*event.Event{}, sync.State.Events...), sync.Timeline.Events...)
		s.process(room, events)
	}

	for room, sync := range resp.Rooms.Invite {
		s.process(room, sync.State.Events)
	}

	// kicks, bans and our own leaves only show up here
	for room, sync := range resp.Rooms.Leave {
		events := append(append([]*event.Event{}, sync.State.Events...), sync.Timeline.Events...)
		s.process(room, events)
	}

	return nil
}

func (s *Syncer) process(room id.RoomID, events []*event.Event) {
	for _, ev := range events {
		ev.RoomID = room
		if ev.StateKey != nil {
			ev.Type.Class = event.StateEventType
		} else {
			ev.Type.Class = event.MessageEventType
		}
		ev.Content.ParseRaw(ev.Type) //nolint:errcheck
		s.m.recordState(ev)
	}

	for _, ev := range events {
		if logger.Logger.IsLevelEnabled(logrus.TraceLevel) {
			logger.Tracef("process %s", spew.Sdump(ev))
		}

		s.m.handleEvent(ev)
	}
}

func (s *Syncer) OnFailedSync(res *mautrix.RespSync, err error) (time.Duration, error) {
	logger.Errorf("sync failed: %s", err)
	return 10 * time.Second, nil
}

func (s *Syncer) GetFilterJSON(userID id.UserID) *mautrix.Filter {
	return &mautrix.Filter{
		Room: mautrix.RoomFilter{
			Timeline: mautrix.FilterPart{
				Limit: 50,
			},
		},
	}
}
