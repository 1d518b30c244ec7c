package sechat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func committed(id, key string, sec int) Message {
	m := Message{
		ID:         id,
		RoomID:     "room-1",
		SenderRole: RoleClient,
		SenderName: "이내담",
		Content:    "msg " + id,
		CreatedAt:  t0.Add(time.Duration(sec) * time.Second),
	}
	if key != "" {
		m.ClientMessageID = &key
	}
	return m
}

func ids(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestMergeIdentity(t *testing.T) {
	s := Merge(nil, []Message{
		committed("01A", "k1", 1),
		committed("01B", "", 2),
		committed("01C", "k3", 3),
	})

	assert.Equal(t, s, Merge(s, nil))
	assert.Equal(t, s, Merge(nil, s))
}

func TestMergeIdempotent(t *testing.T) {
	s := []Message{committed("01A", "k1", 1), committed("01B", "k2", 2)}
	b := []Message{committed("01B", "k2", 2), committed("01C", "k3", 3)}

	once := Merge(s, b)
	assert.Equal(t, once, Merge(once, b))
	assert.Equal(t, once, Merge(once, once))
}

func TestMergeCommutative(t *testing.T) {
	opt := NewOptimistic("room-1", RoleClient, "이내담", "hello", "k2", t0.Add(2*time.Second))

	a := []Message{committed("01A", "k1", 1), opt, committed("01D", "", 4)}
	b := []Message{committed("01B", "k2", 3), committed("01C", "", 3), committed("01A", "k1", 1)}

	ab := Merge(a, b)
	ba := Merge(b, a)
	assert.Equal(t, ab, ba)
	assert.Equal(t, []string{"01A", "01B", "01C", "01D"}, ids(ab))
}

func TestOptimisticReplacedByCommitted(t *testing.T) {
	opt := NewOptimistic("room-1", RoleCounselor, "김상담", "hi", "K1", t0.Add(5*time.Second))
	row := committed("01M", "k1", 4)

	t.Run("optimistic first", func(t *testing.T) {
		got := Merge([]Message{opt}, []Message{row})
		require.Len(t, got, 1)
		assert.Equal(t, "01M", got[0].ID)
	})

	t.Run("committed first", func(t *testing.T) {
		got := Merge([]Message{row}, []Message{opt})
		require.Len(t, got, 1)
		assert.Equal(t, "01M", got[0].ID)
	})
}

func TestMergeSortsByCreatedAt(t *testing.T) {
	got := Merge(nil, []Message{
		committed("c", "k3", 3),
		committed("a", "k1", 1),
		committed("b", "k2", 2),
	})
	assert.Equal(t, []string{"a", "b", "c"}, ids(got))
}

func TestMergeTieBreaksOnID(t *testing.T) {
	got := Merge(nil, []Message{committed("02", "", 1), committed("01", "", 1)})
	assert.Equal(t, []string{"01", "02"}, ids(got))
}

func TestMergeSameIDLaterWins(t *testing.T) {
	first := committed("01A", "", 1)
	second := first
	second.Content = "edited"

	got := Merge([]Message{first}, []Message{second})
	require.Len(t, got, 1)
	assert.Equal(t, "edited", got[0].Content)
}

func TestMergeDuplicateCommittedKeyKeepsEarliest(t *testing.T) {
	early := committed("01A", "k1", 1)
	late := committed("01B", "k1", 2)

	assert.Equal(t, []string{"01A"}, ids(Merge([]Message{late}, []Message{early})))
	assert.Equal(t, []string{"01A"}, ids(Merge([]Message{early}, []Message{late})))
}

func TestMergeWithoutKeyDedupsByIDOnly(t *testing.T) {
	got := Merge(nil, []Message{
		committed("01A", "", 1),
		committed("01B", "", 1),
		committed("01A", "", 1),
	})
	assert.Equal(t, []string{"01A", "01B"}, ids(got))
}

func TestMergeDropsMalformed(t *testing.T) {
	noID := committed("", "k1", 1)
	noTime := committed("01B", "k2", 0)
	noTime.CreatedAt = time.Time{}

	got := Merge([]Message{committed("01A", "", 1)}, []Message{noID, noTime})
	assert.Equal(t, []string{"01A"}, ids(got))
}

func TestTimelineLookup(t *testing.T) {
	tl := NewTimeline()
	tl.Apply(NewOptimistic("room-1", RoleClient, "이내담", "hi", "AbC", t0))

	m, ok := tl.Lookup("abc")
	require.True(t, ok)
	assert.True(t, IsOptimistic(m))

	tl.Apply(committed("01Z", "abc", 1))
	m, ok = tl.Lookup("ABC")
	require.True(t, ok)
	assert.Equal(t, "01Z", m.ID)
	assert.Equal(t, 1, tl.Len())

	// A late re-insert of the placeholder is ignored.
	tl.Apply(NewOptimistic("room-1", RoleClient, "이내담", "hi", "abc", t0))
	assert.Equal(t, 1, tl.Len())
}
