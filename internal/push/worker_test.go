package push

import (
	"encoding/json"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/clippy-oss/homie/chat-sync/internal/broker"
)

func envelope(t *testing.T, typ string) []byte {
	t.Helper()
	body, err := json.Marshal(broker.Envelope{Type: typ, Payload: broker.MessagePayload{RoomID: "U1_U2", SenderID: "U1"}})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		delivery amqp.Delivery
		wantUser string
		wantErr  bool
	}{
		{
			name:     "routing key",
			delivery: amqp.Delivery{RoutingKey: "user.U2", Body: envelope(t, broker.EventTypeMessageCreated)},
			wantUser: "U2",
		},
		{
			name: "x-death header",
			delivery: amqp.Delivery{
				RoutingKey: "",
				Body:       envelope(t, broker.EventTypeMessageCreated),
				Headers: amqp.Table{"x-death": []interface{}{
					amqp.Table{"routing-keys": []interface{}{"user.U3"}},
				}},
			},
			wantUser: "U3",
		},
		{
			name:     "room notification",
			delivery: amqp.Delivery{RoutingKey: "room.U1_U2", Body: envelope(t, broker.EventTypeMessageCreated)},
			wantErr:  true,
		},
		{
			name:     "other event",
			delivery: amqp.Delivery{RoutingKey: "user.U2", Body: envelope(t, "PRESENCE")},
		},
		{
			name:     "malformed",
			delivery: amqp.Delivery{RoutingKey: "user.U2", Body: []byte("{")},
			wantErr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, payload, err := decode(tt.delivery)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if user != tt.wantUser {
				t.Errorf("user = %q, want %q", user, tt.wantUser)
			}
			if tt.wantUser != "" && payload.RoomID != "U1_U2" {
				t.Errorf("payload = %+v", payload)
			}
		})
	}
}
