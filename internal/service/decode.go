package service

import (
	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
	"github.com/clippy-oss/homie/chat-sync/internal/encryption"
	"github.com/clippy-oss/homie/chat-sync/internal/realtime"
)

// decodeMessages turns a room snapshot into messages in key order. Children
// that are not message objects are skipped; an absent value is an empty room.
func decodeMessages(children []realtime.Child, cipher encryption.Cipher, log zerolog.Logger) []*domain.Message {
	msgs := make([]*domain.Message, 0, len(children))
	for _, child := range children {
		if _, ok := child.Value.(map[string]any); !ok {
			log.Warn().Str("key", child.Key).Msg("skipping malformed message")
			continue
		}
		var msg domain.Message
		if err := child.Decode(&msg); err != nil {
			log.Warn().Err(err).Str("key", child.Key).Msg("skipping malformed message")
			continue
		}
		msg.Key = child.Key
		decryptMessage(&msg, cipher, log)
		msgs = append(msgs, &msg)
	}
	return msgs
}

func decryptMessage(msg *domain.Message, cipher encryption.Cipher, log zerolog.Logger) {
	if msg.Type != domain.MessageTypeText && msg.Type != "" {
		msg.Plaintext = ""
		return
	}
	plain, err := encryption.DecryptOrMask(cipher, msg.Text)
	if err != nil {
		log.Debug().Err(err).Str("key", msg.Key).Msg("message body masked")
	}
	msg.Plaintext = plain
}

func indexByKey(msgs []*domain.Message) map[string]*domain.Message {
	idx := make(map[string]*domain.Message, len(msgs))
	for _, m := range msgs {
		idx[m.Key] = m
	}
	return idx
}

func messagePath(roomID domain.RoomID, key string) string {
	return realtime.Join(realtime.ChatsRoot, roomID.String(), key)
}

func roomPath(roomID domain.RoomID) string {
	return realtime.Join(realtime.ChatsRoot, roomID.String())
}
