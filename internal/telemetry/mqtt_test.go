package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/energizer-project/palrcon/internal/config"
	"github.com/energizer-project/palrcon/internal/events"
	"github.com/energizer-project/palrcon/internal/protocol"
)

type published struct {
	topic    string
	retained bool
	body     map[string]interface{}
}

type recorder struct {
	mu  sync.Mutex
	got []published
}

func (r *recorder) publish(topic string, retained bool, data []byte) {
	var body map[string]interface{}
	_ = json.Unmarshal(data, &body)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, published{topic: topic, retained: retained, body: body})
}

func newTestHandler(t *testing.T) (*MQTTHandler, *recorder) {
	t.Helper()
	cfg := config.DefaultSettings().MQTT
	cfg.Enabled = true
	cfg.BrokerURL = "127.0.0.1"
	cfg.UseTLS = false
	cfg.ServerName = "My Server"

	h, err := NewMQTTHandler(cfg, func() interface{} { return map[string]int{"players": 2} }, 0)
	if err != nil {
		t.Fatalf("NewMQTTHandler failed: %s", err)
	}
	rec := &recorder{}
	h.publish = rec.publish
	return h, rec
}

func TestTopicBase(t *testing.T) {
	cases := map[string][2]string{
		"palrcon/main":      {"palrcon", "main"},
		"site/pal/My_World": {"/site/pal/", "My World"},
		"palrcon/a_b_c":     {"", "a/b+c"},
	}
	for want, in := range cases {
		if got := TopicBase(in[0], in[1]); got != want {
			t.Fatalf("TopicBase(%q, %q) = %q, want %q", in[0], in[1], got, want)
		}
	}
}

func TestHandlerRoutesEvents(t *testing.T) {
	h, rec := newTestHandler(t)
	bus := events.NewBus()
	h.Attach(bus)
	ctx := context.Background()

	alice := protocol.Player{Name: "Alice", PlayerUID: "1", SteamID: "7656"}
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("EmitSync failed: %s", err)
		}
	}
	must(bus.EmitSync(ctx, events.New(events.EventPlayersPolled, "manager", events.PlayersPolledPayload{Players: []protocol.Player{alice}})))
	must(bus.EmitSync(ctx, events.New(events.EventPlayerJoined, "manager", events.PlayerPayload{Player: alice})))
	must(bus.EmitSync(ctx, events.New(events.EventHealthChanged, "health", events.HealthChangedPayload{Current: events.HealthHealthy})))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.got) != 3 {
		t.Fatalf("Expected 3 messages, got %+v", rec.got)
	}
	want := []struct {
		topic    string
		retained bool
	}{
		{"palrcon/My_Server/players", true},
		{"palrcon/My_Server/events", false},
		{"palrcon/My_Server/status", true},
	}
	for i, w := range want {
		if rec.got[i].topic != w.topic || rec.got[i].retained != w.retained {
			t.Fatalf("Message %d: got %s retained=%v, want %s retained=%v",
				i, rec.got[i].topic, rec.got[i].retained, w.topic, w.retained)
		}
		if rec.got[i].body["server"] != "My Server" || rec.got[i].body["timestamp"] == nil {
			t.Fatalf("Message %d lacks metadata: %+v", i, rec.got[i].body)
		}
	}
	ev := rec.got[1].body["payload"].(map[string]interface{})
	if ev["event"] != string(events.EventPlayerJoined) {
		t.Fatalf("Unexpected event body: %+v", ev)
	}
}

func TestPublishStatus(t *testing.T) {
	h, rec := newTestHandler(t)
	h.publishStatus(true)
	h.publishStatus(false)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	online := rec.got[0].body["payload"].(map[string]interface{})
	if online["online"] != true || online["status"] == nil || online["load"] == nil {
		t.Fatalf("Unexpected online status: %+v", online)
	}
	offline := rec.got[1].body["payload"].(map[string]interface{})
	if offline["online"] != false || offline["status"] != nil {
		t.Fatalf("Unexpected offline status: %+v", offline)
	}
}

func TestDisabled(t *testing.T) {
	if _, err := NewMQTTHandler(config.DefaultSettings().MQTT, nil, 0); err == nil {
		t.Fatalf("Expected an error for a disabled handler")
	}
}
