package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsActive(t *testing.T) {
	start := MustParse("2024-01-10")
	end := MustParse("2024-01-20")

	t.Run("unbounded is always active", func(t *testing.T) {
		for _, d := range []string{"0001-01-01", "1999-12-31", "2024-06-30", "9999-12-31"} {
			assert.True(t, IsActive(nil, nil, MustParse(d)), d)
		}
	})

	t.Run("bounds are inclusive", func(t *testing.T) {
		assert.True(t, IsActive(&start, &end, start))
		assert.True(t, IsActive(&start, &end, end))
		assert.True(t, IsActive(&start, &end, MustParse("2024-01-15")))
	})

	t.Run("outside the range", func(t *testing.T) {
		assert.False(t, IsActive(&start, &end, start.AddDate(0, 0, -1)))
		assert.False(t, IsActive(&start, &end, end.AddDate(0, 0, 1)))
	})

	t.Run("open start", func(t *testing.T) {
		assert.True(t, IsActive(nil, &end, MustParse("1970-01-01")))
		assert.False(t, IsActive(nil, &end, end.AddDate(0, 0, 1)))
	})

	t.Run("open end", func(t *testing.T) {
		assert.True(t, IsActive(&start, nil, MustParse("2999-01-01")))
		assert.False(t, IsActive(&start, nil, start.AddDate(0, 0, -1)))
	})

	t.Run("time of day is ignored", func(t *testing.T) {
		lateOnEnd := time.Date(2024, 1, 20, 23, 59, 59, 0, time.UTC)
		assert.True(t, IsActive(&start, &end, lateOnEnd))

		grantedAtNoon := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
		assert.True(t, IsActive(&grantedAtNoon, nil, start))
	})
}

func TestIntervalClamp(t *testing.T) {
	start := MustParse("2024-01-10")
	end := MustParse("2024-01-20")
	i := Interval{Start: &start, End: &end}

	from, to, ok := i.Clamp(MustParse("2024-01-01"), MustParse("2024-01-31"))
	assert.True(t, ok)
	assert.Equal(t, start, from)
	assert.Equal(t, end, to)

	from, to, ok = i.Clamp(MustParse("2024-01-15"), MustParse("2024-01-17"))
	assert.True(t, ok)
	assert.Equal(t, MustParse("2024-01-15"), from)
	assert.Equal(t, MustParse("2024-01-17"), to)

	_, _, ok = i.Clamp(MustParse("2024-02-01"), MustParse("2024-02-29"))
	assert.False(t, ok)

	from, to, ok = Interval{}.Clamp(MustParse("2024-02-01"), MustParse("2024-02-29"))
	assert.True(t, ok)
	assert.Equal(t, MustParse("2024-02-01"), from)
	assert.Equal(t, MustParse("2024-02-29"), to)
}

func TestIntervalValid(t *testing.T) {
	a := MustParse("2024-01-10")
	b := MustParse("2024-01-09")

	assert.True(t, Interval{}.Valid())
	assert.True(t, Interval{Start: &a, End: &a}.Valid())
	assert.False(t, Interval{Start: &a, End: &b}.Valid())
	assert.Equal(t, "[2024-01-10, +inf]", Interval{Start: &a}.String())
}

func TestDaysInclusive(t *testing.T) {
	assert.Equal(t, 1, DaysInclusive(MustParse("2024-01-01"), MustParse("2024-01-01")))
	assert.Equal(t, 14, DaysInclusive(MustParse("2024-01-01"), MustParse("2024-01-14")))
	assert.Equal(t, 29, DaysInclusive(MustParse("2024-02-01"), MustParse("2024-02-29")))
	assert.Equal(t, 0, DaysInclusive(MustParse("2024-01-02"), MustParse("2024-01-01")))

	// spans longer than time.Duration can hold
	assert.Equal(t, 219147, DaysInclusive(MustParse("1900-01-01"), MustParse("2500-01-01")))
	assert.Equal(t, 3652059, DaysInclusive(MustParse("0001-01-01"), MustParse("9999-12-31")))
}

func TestMonth(t *testing.T) {
	b := Month(time.Date(2024, 3, 17, 15, 4, 5, 0, time.UTC))
	assert.Equal(t, MustParse("2024-03-01"), b.Start)
	assert.Equal(t, MustParse("2024-03-17"), b.End)
	assert.Equal(t, "2024-03", b.Key())
	assert.Equal(t, 17, b.Days())
}
