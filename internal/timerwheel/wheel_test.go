package timerwheel

import (
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tick = 10 * time.Millisecond

func ms(n int64) int64 { return n * int64(time.Millisecond) }

func TestWheel_FiresAtDeadlineNotBefore(t *testing.T) {
	t.Parallel()

	w := New[string](tick, 0)
	var tm Timer[string]
	tm.Value = "a"
	w.Schedule(&tm, ms(95))

	assert.Empty(t, w.Advance(ms(90), nil))
	assert.True(t, tm.Scheduled())

	assert.Equal(t, []string{"a"}, w.Advance(ms(100), nil))
	assert.False(t, tm.Scheduled())
	assert.Equal(t, 0, w.Len())
}

func TestWheel_PastDeadlineFiresOnNextTick(t *testing.T) {
	t.Parallel()

	w := New[int](tick, ms(1000))
	tm := &Timer[int]{Value: 1}
	w.Schedule(tm, ms(10))

	assert.Equal(t, []int{1}, w.Advance(ms(1010), nil))
}

func TestWheel_CancelAndReschedule(t *testing.T) {
	t.Parallel()

	w := New[int](tick, 0)
	a := &Timer[int]{Value: 1}
	b := &Timer[int]{Value: 2}
	w.Schedule(a, ms(50))
	w.Schedule(b, ms(50))

	assert.True(t, w.Cancel(a))
	assert.False(t, w.Cancel(a), "second cancel is a no-op")

	w.Schedule(b, ms(500))
	assert.Equal(t, ms(500), b.When())
	assert.Empty(t, w.Advance(ms(400), nil))
	assert.Equal(t, []int{2}, w.Advance(ms(500), nil))
}

// Timers in coarse levels must cascade down and fire within one tick of
// their deadline.
func TestWheel_CascadeAcrossLevels(t *testing.T) {
	t.Parallel()

	w := New[int64](tick, 0)
	deadlines := []int64{
		ms(630), ms(640), ms(650), // around the level 0/1 boundary
		ms(40_950), ms(41_000), // level 1/2
		ms(2_621_440), ms(3_000_000), // level 2/3
	}
	timers := make([]*Timer[int64], len(deadlines))
	for i, d := range deadlines {
		timers[i] = &Timer[int64]{Value: d}
		w.Schedule(timers[i], d)
	}

	var fired []int64
	for now := int64(0); now <= ms(3_000_100); now += ms(10) {
		for _, d := range w.Advance(now, nil) {
			assert.GreaterOrEqual(t, now, d, "fired early")
			assert.Less(t, now-d, int64(tick), "fired late")
			fired = append(fired, d)
		}
	}
	assert.Equal(t, deadlines, fired)
}

func TestWheel_LargeJumpFiresEverything(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(1))
	w := New[int64](tick, 0)
	var want []int64
	for i := 0; i < 500; i++ {
		d := r.Int63n(ms(10_000_000))
		want = append(want, d)
		w.Schedule(&Timer[int64]{Value: d}, d)
	}

	got := w.Advance(ms(10_000_000), nil)
	require.Len(t, got, len(want))
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	assert.Equal(t, want, got)
	assert.Equal(t, 0, w.Len())
}

func TestWheel_BeyondRangeIsClamped(t *testing.T) {
	t.Parallel()

	w := New[int](time.Millisecond, 0)
	far := int64(5 * time.Hour) // beyond 64^4 ticks of 1ms
	w.Schedule(&Timer[int]{Value: 7}, far)

	assert.Empty(t, w.Advance(far-int64(time.Second), nil))
	assert.Equal(t, []int{7}, w.Advance(far, nil))
}
