package transport

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pmsync/internal/engine"
	"github.com/roach88/pmsync/internal/journal"
	"github.com/roach88/pmsync/internal/pm"
)

func TestConnect_Validates(t *testing.T) {
	client, server := newEngines(t)

	_, err := Connect(nil, server)
	assert.True(t, pm.IsNullArgumentError(err))
	_, err = Connect(server, client)
	assert.Error(t, err)
}

func TestSession_Flush(t *testing.T) {
	client, server := newEngines(t)
	s, err := Connect(client, server, WithSessionLogger(quietLogger()))
	require.NoError(t, err)
	ctx := context.Background()

	basket, err := client.Repository().CreateRoot("Basket")
	require.NoError(t, err)
	item, err := client.Repository().Create("Item")
	require.NoError(t, err)
	items, err := basket.List("items")
	require.NoError(t, err)
	require.NoError(t, items.Add(item))
	assert.Positive(t, s.InFlight())

	res, err := s.Flush(ctx)
	require.NoError(t, err)
	assert.NoError(t, res.Err())
	assert.Zero(t, s.InFlight())

	mirror, ok := server.Repository().Find(basket.ModelID())
	require.True(t, ok)
	remote, err := mirror.List("items")
	require.NoError(t, err)
	assert.Equal(t, 1, remote.Len())

	// The server answers by renaming the item; the client sees it.
	serverItem, ok := server.Repository().Find(item.ModelID())
	require.True(t, ok)
	name, err := serverItem.Property("name")
	require.NoError(t, err)
	require.NoError(t, name.Set("from server"))
	_, err = s.Flush(ctx)
	require.NoError(t, err)

	local, err := item.Property("name")
	require.NoError(t, err)
	assert.Equal(t, "from server", local.Get())
	assert.Equal(t, int64(6), s.Seq(), "descriptor x2, beans x2, splice, change")
}

func TestSession_Run(t *testing.T) {
	client, server := newEngines(t)
	s, err := Connect(client, server, WithSessionLogger(quietLogger()))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	basket, err := client.Repository().CreateRoot("Basket")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := server.Repository().Find(basket.ModelID())
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	s.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("session did not stop")
	}
}

func TestSession_JournalReplay(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()
	ctx := context.Background()

	client, server := newEngines(t)
	s, err := Connect(client, server, WithSessionJournal(j), WithSessionLogger(quietLogger()))
	require.NoError(t, err)

	basket, err := client.Repository().CreateRoot("Basket")
	require.NoError(t, err)
	items, err := basket.List("items")
	require.NoError(t, err)
	for _, name := range []string{"a", "b", "c"} {
		item, err := client.Repository().Create("Item")
		require.NoError(t, err)
		p, err := item.Property("name")
		require.NoError(t, err)
		require.NoError(t, p.Set(name))
		require.NoError(t, items.Add(item))
	}
	_, err = items.Remove(1)
	require.NoError(t, err)
	_, err = s.Flush(ctx)
	require.NoError(t, err)

	last, err := j.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.Seq(), last)

	// A fresh server rebuilt from the client's journaled commands matches
	// the live one.
	fresh, err := engine.New(pm.SideServer, testRegistry(), engine.WithLogger(quietLogger()))
	require.NoError(t, err)
	res, err := j.Replay(ctx, pm.SideClient, fresh)
	require.NoError(t, err)
	assert.Empty(t, res.Failed)

	want, _ := server.Repository().Find(basket.ModelID())
	got, ok := fresh.Repository().Find(basket.ModelID())
	require.True(t, ok)
	wantItems, _ := want.List("items")
	gotItems, _ := got.List("items")
	assert.Equal(t, wantItems.WireValues(), gotItems.WireValues())
	assert.Equal(t, server.Repository().Len(), fresh.Repository().Len())
}
