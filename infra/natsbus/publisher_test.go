package natsbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/haulboard/core/model"
	"github.com/kilianp07/haulboard/core/notify"
)

func startServer(t *testing.T) *server.Server {
	t.Helper()
	opts := &server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true}
	ns, err := server.NewServer(opts)
	require.NoError(t, err)
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

type inbox struct {
	mu   sync.Mutex
	msgs map[string][]byte
	got  chan struct{}
}

func newInbox() *inbox {
	return &inbox{msgs: map[string][]byte{}, got: make(chan struct{}, 16)}
}

func (i *inbox) handle(topic string, payload []byte) {
	i.mu.Lock()
	i.msgs[topic] = payload
	i.mu.Unlock()
	i.got <- struct{}{}
}

func (i *inbox) wait(t *testing.T, n int) {
	t.Helper()
	for k := 0; k < n; k++ {
		select {
		case <-i.got:
		case <-time.After(5 * time.Second):
			t.Fatalf("received %d of %d messages", k, n)
		}
	}
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	ns := startServer(t)
	pub, err := Connect(Config{URL: ns.ClientURL(), SubjectPrefix: "hb"})
	require.NoError(t, err)
	defer pub.Close()

	sub, err := Connect(Config{URL: ns.ClientURL(), SubjectPrefix: "hb"})
	require.NoError(t, err)
	defer sub.Close()
	box := newInbox()
	require.NoError(t, sub.Subscribe([]string{"slot"}, box.handle))

	f := notify.NewFanout(nil, pub, nil)
	f.Notify(context.Background(), notify.SlotUpdated, model.PlanningSlot{ID: "s1", Number: 3})
	f.Notify(context.Background(), notify.DriverAssigned, notify.ResourceAssigned{Slot: model.PlanningSlot{ID: "s1"}, ResourceID: "D1"})
	f.Notify(context.Background(), notify.TransportUpdated, model.Transport{ID: "t1"})
	f.Wait()
	box.wait(t, 2)

	box.mu.Lock()
	defer box.mu.Unlock()
	require.Contains(t, box.msgs, "hb.slot")
	require.Contains(t, box.msgs, "hb.broadcast")
	assert.NotContains(t, box.msgs, "hb.transport")

	e, err := notify.Decode(box.msgs["hb.slot"])
	require.NoError(t, err)
	slot, ok := e.Data.(model.PlanningSlot)
	require.True(t, ok)
	assert.Equal(t, 3, slot.Number)
}

func TestPublishAfterClose(t *testing.T) {
	ns := startServer(t)
	pub, err := Connect(Config{URL: ns.ClientURL()})
	require.NoError(t, err)
	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close())
	err = pub.Publish(context.Background(), "slot", []byte("{}"))
	assert.True(t, errors.Is(err, notify.ErrClosed))
}

func TestConnectFailure(t *testing.T) {
	_, err := Connect(Config{URL: "nats://127.0.0.1:1", ConnectTimeoutMS: 100})
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.SetDefaults()
	assert.Equal(t, "haulboard", c.SubjectPrefix)
	assert.NotEmpty(t, c.URL)
}
