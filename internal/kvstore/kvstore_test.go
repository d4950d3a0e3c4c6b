package kvstore

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetGet(t *testing.T) {
	s := NewMemory()
	defer s.Close()

	require.NoError(t, s.Set("k", []byte(`{"a":1}`)))

	v, ok, err := s.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"a":1}`), v)
}

func TestMemory_GetMissing(t *testing.T) {
	s := NewMemory()
	defer s.Close()

	_, ok, err := s.Get("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_Delete(t *testing.T) {
	s := NewMemory()
	defer s.Close()

	require.NoError(t, s.Set("k", []byte("v")))
	require.NoError(t, s.Delete("k"))

	_, ok, _ := s.Get("k")
	assert.False(t, ok)

	// deleting a missing key is not an error
	assert.NoError(t, s.Delete("k"))
}

func TestMemory_WatchDeliversWrites(t *testing.T) {
	s := NewMemory()
	defer s.Close()

	ch := s.Watch()
	require.NoError(t, s.Set("k", []byte("v")))

	select {
	case c := <-ch:
		assert.Equal(t, "k", c.Key)
		assert.Equal(t, []byte("v"), c.Value)
		assert.WithinDuration(t, time.Now(), c.At, time.Second)
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}
}

func TestMemory_WatchClosedOnClose(t *testing.T) {
	s := NewMemory()
	ch := s.Watch()
	require.NoError(t, s.Close())

	_, open := <-ch
	assert.False(t, open)
}

func TestMemory_OpsAfterClose(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Set("k", nil), ErrClosed)
	_, _, err := s.Get("k")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemory_ValueIsolation(t *testing.T) {
	s := NewMemory()
	defer s.Close()

	buf := []byte("abc")
	require.NoError(t, s.Set("k", buf))
	buf[0] = 'z'

	v, _, _ := s.Get("k")
	assert.Equal(t, []byte("abc"), v)
}

func TestFactory(t *testing.T) {
	log := zerolog.Nop()

	s, err := New(Config{Backend: "memory"}, log)
	require.NoError(t, err)
	s.Close()

	s, err = New(Config{}, log)
	require.NoError(t, err)
	s.Close()

	_, err = New(Config{Backend: "redis"}, log)
	assert.Error(t, err)
}

func TestSqlite_RoundTripAndWatch(t *testing.T) {
	log := zerolog.Nop()
	path := t.TempDir() + "/kv.db"

	s, err := NewSqlite(path, log, 50*time.Millisecond)
	require.NoError(t, err)
	defer s.Close()

	ch := s.Watch()
	require.NoError(t, s.Set("lastSelectedVehicle", []byte(`{"id":"v1"}`)))

	v, ok, err := s.Get("lastSelectedVehicle")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"id":"v1"}`, string(v))

	select {
	case c := <-ch:
		assert.Equal(t, "lastSelectedVehicle", c.Key)
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}
}

func TestSqlite_SecondHandleSeesWrites(t *testing.T) {
	log := zerolog.Nop()
	path := t.TempDir() + "/kv.db"

	a, err := NewSqlite(path, log, 20*time.Millisecond)
	require.NoError(t, err)
	defer a.Close()

	b, err := NewSqlite(path, log, 20*time.Millisecond)
	require.NoError(t, err)
	defer b.Close()

	ch := b.Watch()
	require.NoError(t, a.Set("splitScreenMode", []byte(`"quad"`)))

	select {
	case c := <-ch:
		assert.Equal(t, "splitScreenMode", c.Key)
		assert.Equal(t, `"quad"`, string(c.Value))
	case <-time.After(2 * time.Second):
		t.Fatal("second handle never observed the write")
	}
}
