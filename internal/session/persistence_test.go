package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/kontify-triage/internal/models"
	"github.com/xaenox/kontify-triage/internal/storage"
)

func TestPersistence_RoundTrip(t *testing.T) {
	e := newEnv(t, 0)
	s := e.open(t, "u1")
	ask(t, s, "Tengo una auditoría")
	ask(t, s, "¿Qué hago?")
	_, err := s.SaveContactData(context.Background(), validContact)
	require.NoError(t, err)
	want := s.State()

	other := NewManager(Deps{Store: e.store, Generator: e.responder}, Config{})
	defer other.CloseAll()
	restored, err := other.Open(context.Background(), "u1")
	require.NoError(t, err)

	got := restored.State()
	assert.Equal(t, want.Messages, got.Messages)
	assert.Equal(t, 2, got.QuestionsUsed)
	assert.Equal(t, models.SeverityRed, got.SeverityLevel)
	assert.Equal(t, want.Contact, got.Contact)
	assert.Equal(t, PhaseActive, got.Phase)

	// Restored sessions keep counting from where they were.
	out := ask(t, restored, "última")
	assert.True(t, out.Accepted)
	assert.False(t, out.State.CanAskMore)
}

func TestPersistence_StoredUnderSessionKey(t *testing.T) {
	e := newEnv(t, 0)
	e.open(t, "abc")

	raw, ok, err := e.store.Get(context.Background(), "kontify:session:abc")
	require.NoError(t, err)
	require.True(t, ok)

	p, err := decodeState(raw)
	require.NoError(t, err)
	assert.True(t, p.HasGreeted)
	assert.Len(t, p.Messages, 1)
}

func TestPersistence_CorruptStateStartsFresh(t *testing.T) {
	tests := map[string]string{
		"not json":       `{"messages": [`,
		"wrong version":  `{"version": 7, "has_greeted": true}`,
		"unknown level":  `{"version": 1, "has_greeted": true, "case_level": "purple"}`,
		"unknown role":   `{"version": 1, "has_greeted": true, "messages": [{"id": "1", "role": "system", "content": "x"}]}`,
		"negative quota": `{"version": 1, "has_greeted": true, "questions_used": -2}`,
		"ungreeted":      `{"version": 1, "messages": [{"id": "1", "role": "user", "content": "x"}]}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t, 0)
			require.NoError(t, e.store.Set(context.Background(), StorageKey("u1"), raw))

			st := e.open(t, "u1").State()
			assert.Equal(t, PhaseActive, st.Phase)
			assert.Len(t, st.Messages, 1)
			assert.Equal(t, 0, st.QuestionsUsed)
			assert.Equal(t, models.SeverityGreen, st.SeverityLevel)

			// The fresh state replaced the corrupt blob.
			stored, _, err := e.store.Get(context.Background(), StorageKey("u1"))
			require.NoError(t, err)
			_, err = decodeState(stored)
			assert.NoError(t, err)
		})
	}
}

func TestPersistence_QuotaClampedOnRestore(t *testing.T) {
	e := newEnv(t, 0)
	require.NoError(t, e.store.Set(context.Background(), StorageKey("u1"),
		`{"version": 1, "has_greeted": true, "questions_used": 9, "contact": {"name": "A", "email": "a@b.co", "whatsapp_number": "5512345678"}}`))

	st := e.open(t, "u1").State()
	assert.Equal(t, 3, st.QuestionsUsed)
	assert.False(t, st.CanAskMore)
	assert.False(t, st.NeedsContactData)
}

func TestPersistence_WriteFailureIsNotPropagated(t *testing.T) {
	m := NewManager(Deps{
		Store:     failingWrites{storage.NewMemoryStorage()},
		Generator: &scriptedResponder{},
	}, Config{})
	defer m.CloseAll()

	s, err := m.Open(context.Background(), "u1")
	require.NoError(t, err)
	out, err := s.SendMessage(context.Background(), "hola")
	require.NoError(t, err)
	assert.True(t, out.Accepted)
	assert.Equal(t, 1, out.State.QuestionsUsed)
}

func TestManager_OpenReturnsLiveSession(t *testing.T) {
	e := newEnv(t, 0)
	a := e.open(t, "u1")
	b := e.open(t, "u1")
	assert.Same(t, a, b)
	assert.Equal(t, 1, e.manager.Len())

	_, err := e.manager.Open(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestManager_SlowRestoreDoesNotBlockOtherSessions(t *testing.T) {
	store := newGatedReads(StorageKey("slow"))
	m := NewManager(Deps{Store: store, Generator: &scriptedResponder{}}, Config{})
	defer m.CloseAll()

	opened := make(chan *Session, 1)
	go func() {
		s, err := m.Open(context.Background(), "slow")
		if err != nil {
			s = nil
		}
		opened <- s
	}()
	<-store.entered

	fast, err := m.Open(context.Background(), "fast")
	require.NoError(t, err)
	assert.Equal(t, PhaseActive, fast.State().Phase)
	_, ok := m.Get("slow")
	assert.False(t, ok)

	close(store.release)
	slow := <-opened
	require.NotNil(t, slow)
	again, err := m.Open(context.Background(), "slow")
	require.NoError(t, err)
	assert.Same(t, slow, again)
	assert.Equal(t, 2, m.Len())
}

func TestManager_ConcurrentOpenSharesOneSession(t *testing.T) {
	e := newEnv(t, 0)
	const n = 8
	got := make([]*Session, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := e.manager.Open(context.Background(), "u1")
			if err == nil {
				got[i] = s
			}
		}(i)
	}
	wg.Wait()

	live, ok := e.manager.Get("u1")
	require.True(t, ok)
	for i, s := range got {
		assert.Same(t, live, s, "opener %d", i)
	}
	assert.Len(t, live.State().Messages, 1)
}

func TestManager_EvictIdle(t *testing.T) {
	clock := newFakeClock()
	store := storage.NewMemoryStorage()
	m := NewManager(Deps{Store: store, Generator: &scriptedResponder{}, Clock: clock.Now}, Config{})
	defer m.CloseAll()

	idle, err := m.Open(context.Background(), "idle")
	require.NoError(t, err)
	clock.Advance(20 * time.Minute)
	busy, err := m.Open(context.Background(), "busy")
	require.NoError(t, err)
	ask(t, busy, "hola")
	clock.Advance(15 * time.Minute)

	assert.Equal(t, 1, m.EvictIdle(30*time.Minute))
	_, ok := m.Get("idle")
	assert.False(t, ok)
	_, ok = m.Get("busy")
	assert.True(t, ok)

	_, err = idle.SendMessage(context.Background(), "hola")
	assert.ErrorIs(t, err, ErrSessionClosed)

	// The evicted session comes back from storage.
	back, err := m.Open(context.Background(), "idle")
	require.NoError(t, err)
	assert.Len(t, back.State().Messages, 1)

	assert.Equal(t, 0, m.EvictIdle(0))
}
