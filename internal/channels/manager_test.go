package channels

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayuer/kira-go/internal/bus"
)

type stubAdapter struct {
	BaseChannel
	startErr error
}

func newStub(name string, startErr error) *stubAdapter {
	return &stubAdapter{
		BaseChannel: BaseChannel{Config: AdapterConfig{Name: name, EmojiDict: map[string]string{"1": "smile"}}},
		startErr:    startErr,
	}
}

func (s *stubAdapter) Start(ctx context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.setRunning(true)
	<-ctx.Done()
	s.setRunning(false)
	return nil
}

func (s *stubAdapter) Stop() error { return nil }

func (s *stubAdapter) SendGroupMessage(context.Context, string, []bus.Element) (string, error) {
	return "g", nil
}

func (s *stubAdapter) SendDirectMessage(context.Context, string, []bus.Element) (string, error) {
	return "d", nil
}

func TestStubAdapter_Contract(t *testing.T) {
	RunAdapterContractTests(t, newStub("stub", nil))
}

func TestManager_Lookup(t *testing.T) {
	m := NewManager(nil)
	m.Register(newStub("qq", nil))
	m.Register(newStub("tg", nil))

	assert.Equal(t, []string{"qq", "tg"}, m.EnabledChannels())

	s, ok := m.Sender("qq")
	require.True(t, ok)
	id, err := s.SendGroupMessage(context.Background(), "1", nil)
	require.NoError(t, err)
	assert.Equal(t, "g", id)

	_, ok = m.Sender("missing")
	assert.False(t, ok)
	assert.Nil(t, m.Get("missing"))

	assert.Equal(t, map[string]string{"1": "smile"}, m.EmojiDict("qq"))
	assert.Nil(t, m.EmojiDict("missing"))
}

func TestManager_StartAllRunsUntilCancelled(t *testing.T) {
	m := NewManager(nil)
	a, b := newStub("a", nil), newStub("b", nil)
	m.Register(a)
	m.Register(b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.StartAll(ctx) }()

	assert.Eventually(t, func() bool {
		st := m.Status()
		return st["a"] && st["b"]
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("StartAll did not return")
	}
}

func TestManager_StartAllFailureStopsOthers(t *testing.T) {
	m := NewManager(nil)
	boom := errors.New("login failed")
	m.Register(newStub("ok", nil))
	m.Register(newStub("bad", boom))

	err := m.StartAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "adapter bad")
}
