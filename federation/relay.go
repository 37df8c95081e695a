package federation

import (
	"fmt"
)

// MessageRelay delivers inbound federated messages into local rooms. Delivery
// is best effort: messages for unknown rooms or senders are dropped.
type MessageRelay struct {
	rooms    *RoomDirectory
	users    *IdentityDirectory
	messages MessageAdapter
}

func NewMessageRelay(rooms *RoomDirectory, users *IdentityDirectory, messages MessageAdapter) *MessageRelay {
	return &MessageRelay{
		rooms:    rooms,
		users:    users,
		messages: messages,
	}
}

// ReceiveExternalMessage reports whether the message was delivered.
func (r *MessageRelay) ReceiveExternalMessage(in *RoomSendInternalMessageInput) (bool, error) {
	room, err := r.rooms.Resolve(in.ExternalRoomID)
	if err != nil {
		return false, err
	}

	if room == nil {
		logger.Debugf("dropping message for unknown room %s", in.ExternalRoomID)
		return false, nil
	}

	sender, err := r.users.Resolve(in.ExternalSenderID)
	if err != nil {
		return false, err
	}

	if sender == nil {
		logger.Debugf("dropping message from unknown sender %s in room %s", in.ExternalSenderID, in.ExternalRoomID)
		return false, nil
	}

	if err := r.messages.SendMessage(sender, in.Text, room); err != nil {
		return false, fmt.Errorf("sending message to room %s: %w", in.ExternalRoomID, err)
	}

	return true, nil
}
