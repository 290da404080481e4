package topics_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/relay/internal/relay"
	"github.com/nfrund/relay/internal/testutils"
	"github.com/nfrund/relay/internal/topics"
)

func ids(conns []relay.Conn) []string {
	out := make([]string, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.ID())
	}
	return out
}

func TestKey(t *testing.T) {
	assert.Equal(t, topics.Key("user:u1"), topics.User("u1"))
	assert.Equal(t, topics.Key("server:s1"), topics.Server("s1"))
	assert.Equal(t, topics.Key("channel:c1"), topics.Channel("c1"))

	k := topics.Channel("a:b")
	assert.Equal(t, topics.KindChannel, k.Kind())
	assert.Equal(t, "a:b", k.ID())
	assert.Equal(t, topics.Kind(""), topics.Key("bare").Kind())
}

func TestRegistry_JoinIsIdempotent(t *testing.T) {
	r := topics.NewRegistry()
	a := testutils.NewNamedConn("a")

	r.Join(topics.Channel("c1"), a)
	r.Join(topics.Channel("c1"), a)

	assert.Equal(t, []string{"a"}, ids(r.Audience(topics.Channel("c1"))))
	assert.Equal(t, topics.Stats{Topics: 1, Connections: 1, Memberships: 1}, r.Stats())
}

func TestRegistry_LeaveNonMemberIsNoop(t *testing.T) {
	r := topics.NewRegistry()
	a := testutils.NewNamedConn("a")
	b := testutils.NewNamedConn("b")

	r.Join(topics.Channel("c1"), a)
	r.Leave(topics.Channel("c1"), b)
	r.Leave(topics.Channel("unknown"), b)

	assert.Equal(t, []string{"a"}, ids(r.Audience(topics.Channel("c1"))))
}

func TestRegistry_UnknownTopicIsEmpty(t *testing.T) {
	r := topics.NewRegistry()

	assert.Empty(t, r.Audience(topics.Channel("nobody")))
	assert.Empty(t, r.AudienceExcluding(topics.Channel("nobody"), testutils.NewFakeConn()))
}

func TestRegistry_AudienceMatchesNetHistory(t *testing.T) {
	r := topics.NewRegistry()
	a := testutils.NewNamedConn("a")
	b := testutils.NewNamedConn("b")
	c := testutils.NewNamedConn("c")
	key := topics.Channel("c1")

	r.Join(key, a)
	r.Join(key, b)
	r.Leave(key, a)
	r.Join(key, c)
	r.Join(key, a)
	r.Leave(key, b)
	r.Leave(key, b)

	assert.ElementsMatch(t, []string{"a", "c"}, ids(r.Audience(key)))
	assert.True(t, r.IsMember(key, a))
	assert.False(t, r.IsMember(key, b))
}

func TestRegistry_AudienceExcluding(t *testing.T) {
	r := topics.NewRegistry()
	a := testutils.NewNamedConn("a")
	b := testutils.NewNamedConn("b")
	outsider := testutils.NewNamedConn("x")
	key := topics.Channel("c1")
	r.Join(key, a)
	r.Join(key, b)

	assert.Equal(t, []string{"b"}, ids(r.AudienceExcluding(key, a)))
	assert.ElementsMatch(t, []string{"a", "b"}, ids(r.AudienceExcluding(key, outsider)))
}

func TestRegistry_LeaveAllEvictsEveryMembership(t *testing.T) {
	r := topics.NewRegistry()
	a := testutils.NewNamedConn("a")
	b := testutils.NewNamedConn("b")

	r.Join(topics.User("u1"), a)
	r.Join(topics.Server("s1"), a)
	r.Join(topics.Channel("c1"), a)
	r.Join(topics.Channel("c1"), b)

	left := r.LeaveAll(a)
	assert.ElementsMatch(t, []topics.Key{topics.User("u1"), topics.Server("s1"), topics.Channel("c1")}, left)

	for _, key := range left {
		assert.False(t, r.IsMember(key, a), "still a member of %s", key)
	}
	assert.Empty(t, r.Topics(a))
	assert.Equal(t, []string{"b"}, ids(r.Audience(topics.Channel("c1"))))
	// Empty topics are dropped.
	assert.Equal(t, topics.Stats{Topics: 1, Connections: 1, Memberships: 1}, r.Stats())

	assert.Empty(t, r.LeaveAll(a), "second LeaveAll should be a no-op")
}

func TestRegistry_AudienceIsSnapshot(t *testing.T) {
	r := topics.NewRegistry()
	a := testutils.NewNamedConn("a")
	key := topics.Channel("c1")
	r.Join(key, a)

	snapshot := r.Audience(key)
	r.Leave(key, a)

	require.Len(t, snapshot, 1)
	assert.Empty(t, r.Audience(key))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := topics.NewRegistry()
	key := topics.Channel("busy")

	const workers = 16
	conns := make([]*testutils.FakeConn, workers)
	for i := range conns {
		conns[i] = testutils.NewNamedConn(fmt.Sprintf("conn-%d", i))
	}

	var wg sync.WaitGroup
	wg.Add(workers * 2)
	for i := 0; i < workers; i++ {
		go func(c *testutils.FakeConn) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Join(key, c)
				r.Leave(key, c)
			}
			r.Join(key, c)
		}(conns[i])
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = r.Audience(key)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, r.Audience(key), workers)
}
