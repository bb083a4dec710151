package notifier_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semcache/cache"
	"github.com/c360/semcache/notifier"
	"github.com/c360/semcache/testutil"
)

const staffSubject = notifier.DefaultSubjectPrefix + ".staff"

func staffManager(t *testing.T, nc *testutil.MockNATSClient, origin string) (*cache.Manager[*testutil.Employee], *notifier.NATS[*testutil.Employee]) {
	t.Helper()

	pub := notifier.NewNATS[*testutil.Employee](nc, notifier.WithOrigin(origin))
	cfg := cache.DefaultConfig()
	cfg.Name = "staff"
	cfg.Grouped = true
	cfg.SyncCluster = true
	mgr, err := cache.NewManager[*testutil.Employee](cfg,
		cache.WithLoader[*testutil.Employee](testutil.NewDepartmentLoader(testutil.Staff()...)),
		cache.WithNotifier[*testutil.Employee](pub))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr, pub
}

func TestNATS_PublishesMutations(t *testing.T) {
	nc := testutil.NewMockNATSClient()
	mgr, pub := staffManager(t, nc, "node-a")
	ctx := context.Background()

	e, found, err := mgr.Get(ctx, "e1")
	require.NoError(t, err)
	require.True(t, found)
	_, _, err = mgr.Get(ctx, "e1")
	require.NoError(t, err)
	require.NoError(t, mgr.Invalidate(ctx, e))

	msgs := nc.GetMessages(staffSubject)
	require.Len(t, msgs, 2, "reads are not published by default")

	var first notifier.Message
	require.NoError(t, json.Unmarshal(msgs[0], &first))
	assert.Equal(t, "node-a", first.Origin)
	assert.Equal(t, cache.EventRegister, first.Kind)
	assert.Equal(t, "staff", first.Cache)
	assert.Equal(t, "e1", first.Key)
	assert.Equal(t, "eng", first.GroupKey)
	assert.JSONEq(t, `{"id":"e1","department":"eng","email":"ada@example.com"}`, string(first.Entity))

	assert.Contains(t, string(msgs[1]), `"kind":"invalidate"`)
	assert.Equal(t, int64(2), pub.Published())
}

func TestNATS_KindFilterAndPrefix(t *testing.T) {
	nc := testutil.NewMockNATSClient()
	pub := notifier.NewNATS[*testutil.Letter](nc,
		notifier.WithSubjectPrefix("cluster.cache"),
		notifier.WithKinds(cache.EventHitInstance))

	pub.NotifyCache(letterEvt(cache.EventRegister, "a"))
	pub.NotifyCache(letterEvt(cache.EventHitInstance, "a"))

	assert.Equal(t, 1, nc.GetMessageCount("cluster.cache.alphabet"))
	assert.NotEmpty(t, pub.Origin(), "a random origin is generated")
}

func TestNATS_PublishFailureIsCounted(t *testing.T) {
	nc := testutil.NewMockNATSClient()
	nc.FailPublish(fmt.Errorf("connection lost"))
	pub := notifier.NewNATS[*testutil.Letter](nc)

	assert.NotPanics(t, func() { pub.NotifyCache(letterEvt(cache.EventRegister, "a")) })
	assert.Equal(t, int64(1), pub.Failed())
	assert.Equal(t, int64(0), pub.Published())
}

func TestListener_PeerInvalidation(t *testing.T) {
	ctx := context.Background()
	nc := testutil.NewMockNATSClient()
	nodeA, pubA := staffManager(t, nc, "node-a")
	nodeB, pubB := staffManager(t, nc, "node-b")

	listenA := notifier.NewListener[*testutil.Employee](nc, nodeA, notifier.WithOrigin(pubA.Origin()))
	listenB := notifier.NewListener[*testutil.Employee](nc, nodeB, notifier.WithOrigin(pubB.Origin()))
	require.NoError(t, listenA.Start(ctx))
	require.NoError(t, listenB.Start(ctx))

	eA, _, err := nodeA.Get(ctx, "e2")
	require.NoError(t, err)
	_, _, err = nodeB.Get(ctx, "e2")
	require.NoError(t, err)
	require.Equal(t, 1, nodeB.Size())

	require.NoError(t, nodeA.Invalidate(ctx, eA))

	_, cached := nodeB.Peek("e2")
	assert.False(t, cached, "node B dropped its copy")
	assert.Equal(t, int64(1), listenB.Applied())
	assert.Equal(t, int64(0), listenA.Applied(), "node B's echo finds nothing to drop on node A")
}

func TestListener_IgnoresWhenNotSyncing(t *testing.T) {
	ctx := context.Background()
	nc := testutil.NewMockNATSClient()
	local, pub := staffManager(t, nc, "node-a")
	local.SetSyncCluster(false)

	_, _, err := local.Get(ctx, "s1")
	require.NoError(t, err)

	l := notifier.NewListener[*testutil.Employee](nc, local, notifier.WithOrigin(pub.Origin()))
	require.NoError(t, l.Start(ctx))

	peer := notifier.NewNATS[*testutil.Employee](nc, notifier.WithOrigin("node-b"))
	peer.NotifyCache(cache.Event[*testutil.Employee]{
		Kind: cache.EventInvalidate, Cache: "staff", Key: "s1", Time: time.Now(),
	})

	_, cached := local.Peek("s1")
	assert.True(t, cached)
	assert.Equal(t, int64(1), l.Ignored())
}

func TestListener_SkipsOwnAndMalformed(t *testing.T) {
	ctx := context.Background()
	nc := testutil.NewMockNATSClient()
	local, pub := staffManager(t, nc, "node-a")

	l := notifier.NewListener[*testutil.Employee](nc, local, notifier.WithOrigin(pub.Origin()))
	require.NoError(t, l.Start(ctx))

	e, _, err := local.Get(ctx, "s2")
	require.NoError(t, err)
	require.NoError(t, local.Refresh(ctx, e))
	_, cached := local.Peek("s2")
	assert.True(t, cached, "own refresh is not applied")

	require.NoError(t, nc.Publish(ctx, staffSubject, []byte("{not json")))
	assert.Equal(t, int64(0), l.Applied())
	assert.Equal(t, int64(4), l.Ignored(), "two registers, one refresh, one malformed")
}

func TestListener_SubscribeFailure(t *testing.T) {
	nc := testutil.NewMockNATSClient()
	local, _ := staffManager(t, nc, "node-a")
	require.NoError(t, nc.Close())

	err := notifier.NewListener[*testutil.Employee](nc, local).Start(context.Background())
	assert.Error(t, err)
}
