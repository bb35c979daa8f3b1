package twitcheventsub

import (
	"encoding/json"
	"testing"

	"github.com/Tirta71/live-tiktok/internal/types"
	"github.com/joeyak/go-twitch-eventsub/v3"
)

type recordingHandler struct {
	gifts []types.RawGift
	chats []types.RawChat
}

func (h *recordingHandler) HandleGift(raw types.RawGift) error {
	h.gifts = append(h.gifts, raw)
	return nil
}

func (h *recordingHandler) HandleChat(raw types.RawChat) error {
	h.chats = append(h.chats, raw)
	return nil
}

const cheerPayload = `{
	"is_anonymous": false,
	"user_id": "1337",
	"user_login": "cool_user",
	"user_name": "Cool_User",
	"broadcaster_user_id": "1234",
	"broadcaster_user_login": "streamer",
	"broadcaster_user_name": "Streamer",
	"message": "Cheer100 usn: bob_99 Cheer50",
	"bits": 150
}`

const chatPayload = `{
	"broadcaster_user_id": "1234",
	"broadcaster_user_login": "streamer",
	"broadcaster_user_name": "Streamer",
	"chatter_user_id": "4145994",
	"chatter_user_login": "viewer32",
	"chatter_user_name": "viewer32",
	"message_id": "cc106a89-1814-919d-454c-f4f2f970aae7",
	"message": {
		"text": "check @Al.ice-1",
		"fragments": [{"type": "text", "text": "check @Al.ice-1"}]
	},
	"color": "#00FF7F",
	"message_type": "text"
}`

func newTestSource(t *testing.T) (*Source, *recordingHandler) {
	t.Helper()
	handler := &recordingHandler{}
	source, err := NewSource(Config{ClientID: "cid", AccessToken: "token", BroadcasterUserID: "1234"}, handler)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	return source, handler
}

func TestNewSource_RequiresCredentials(t *testing.T) {
	if _, err := NewSource(Config{ClientID: "cid"}, &recordingHandler{}); err == nil {
		t.Fatal("expected error for missing credentials")
	}
}

func TestDispatch_Cheer(t *testing.T) {
	source, handler := newTestSource(t)
	source.dispatch(twitch.SubChannelCheer, json.RawMessage(cheerPayload))

	if len(handler.gifts) != 1 {
		t.Fatalf("gifts got=%d want=1", len(handler.gifts))
	}
	gift := handler.gifts[0]
	if gift.UserID != "1337" || gift.Nickname != "Cool_User" || gift.CoinsPerGift != 150 || gift.GiftCount != 1 || !gift.IsFinalInBurst {
		t.Fatalf("gift got=%+v", gift)
	}

	if len(handler.chats) != 1 {
		t.Fatalf("chats got=%d want=1", len(handler.chats))
	}
	if got := handler.chats[0].CommentText; got != "usn: bob_99" {
		t.Fatalf("cheer message got=%q want=%q", got, "usn: bob_99")
	}
}

func TestDispatch_ChatDeduplicatesMessageID(t *testing.T) {
	source, handler := newTestSource(t)
	source.dispatch(twitch.SubChannelChatMessage, json.RawMessage(chatPayload))
	source.dispatch(twitch.SubChannelChatMessage, json.RawMessage(chatPayload))

	if len(handler.chats) != 1 {
		t.Fatalf("chats got=%d want=1", len(handler.chats))
	}
	chat := handler.chats[0]
	if chat.UserID != "4145994" || chat.Nickname != "viewer32" || chat.CommentText != "check @Al.ice-1" {
		t.Fatalf("chat got=%+v", chat)
	}
}

func TestDispatch_InvalidPayloadIgnored(t *testing.T) {
	source, handler := newTestSource(t)
	source.dispatch(twitch.SubChannelCheer, json.RawMessage(`{"bits": "lots"}`))

	if len(handler.gifts) != 0 || len(handler.chats) != 0 {
		t.Fatalf("unexpected forwards: gifts=%d chats=%d", len(handler.gifts), len(handler.chats))
	}
}

func TestIsCheermote(t *testing.T) {
	tests := map[string]bool{
		"Cheer100":  true,
		"Kappa1":    true,
		"cheer":     false,
		"100":       false,
		"usn:":      false,
		"bob_99":    false,
		"@Al.ice-1": false,
	}
	for word, want := range tests {
		if got := isCheermote(word); got != want {
			t.Fatalf("isCheermote(%q) got=%v want=%v", word, got, want)
		}
	}
}

func TestRecentIDs_Evicts(t *testing.T) {
	r := newRecentIDs(2)
	if !r.Add("a") || !r.Add("b") {
		t.Fatal("first adds should succeed")
	}
	if r.Add("a") {
		t.Fatal("duplicate should be rejected")
	}
	r.Add("c")
	if !r.Add("a") {
		t.Fatal("evicted id should be accepted again")
	}
}
