package timeslot

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{in: "10:00-12:00", want: "10:00-12:00"},
		{in: "00:00-23:59", want: "00:00-23:59"},
		{in: "9:00-10:00", wantErr: ErrInvalidFormat},
		{in: "10:00-24:00", wantErr: ErrInvalidFormat},
		{in: "10:60-11:00", wantErr: ErrInvalidFormat},
		{in: "10:00:00-11:00:00", wantErr: ErrInvalidFormat},
		{in: "10:00", wantErr: ErrInvalidFormat},
		{in: "", wantErr: ErrInvalidFormat},
		{in: "12:00-10:00", wantErr: ErrInvalidRange},
		{in: "10:00-10:00", wantErr: ErrInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseStoredTruncatesSeconds(t *testing.T) {
	got, err := ParseStored("10:00:00-11:30:45")
	require.NoError(t, err)
	assert.Equal(t, "10:00-11:30", got.String())

	_, err = ParseStored("10:00")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseStored("10:00-11:00-12:00")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseStored("aa:00-11:00")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestOverlapBoundaries(t *testing.T) {
	base := MustParse("10:00-12:00")

	tests := []struct {
		other string
		want  bool
	}{
		{"08:00-10:00", false},
		{"12:00-13:00", false},
		{"09:00-10:01", true},
		{"11:59-13:00", true},
		{"10:00-12:00", true},
		{"10:30-11:00", true},
		{"09:00-13:00", true},
		{"13:00-14:00", false},
	}

	for _, tt := range tests {
		t.Run(tt.other, func(t *testing.T) {
			other := MustParse(tt.other)
			assert.Equal(t, tt.want, base.Overlaps(other))
		})
	}
}

func TestOverlapIsSymmetric(t *testing.T) {
	var slots []Slot
	for start := 0; start < 24*60; start += 45 {
		for _, length := range []int{15, 60, 150} {
			if start+length > 24*60-1 {
				continue
			}
			slots = append(slots, Slot{Start: Clock(start), End: Clock(start + length)})
		}
	}

	for _, a := range slots {
		for _, b := range slots {
			require.Equal(t, a.Overlaps(b), b.Overlaps(a), "%s vs %s", a, b)
		}
	}
}

func TestOverlapStrings(t *testing.T) {
	ok, err := Overlap("10:00:00-11:00:00", "10:30-11:30")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = Overlap("broken", "10:30-11:30")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSubtract(t *testing.T) {
	base := MustParse("10:00-12:00")

	left, right := base.Subtract(MustParse("11:00-11:30"))
	require.NotNil(t, left)
	require.NotNil(t, right)
	assert.Equal(t, "10:00-11:00", left.String())
	assert.Equal(t, "11:30-12:00", right.String())

	left, right = base.Subtract(MustParse("09:00-11:00"))
	assert.Nil(t, left)
	require.NotNil(t, right)
	assert.Equal(t, "11:00-12:00", right.String())

	left, right = base.Subtract(MustParse("11:00-13:00"))
	require.NotNil(t, left)
	assert.Nil(t, right)
	assert.Equal(t, "10:00-11:00", left.String())

	left, right = base.Subtract(MustParse("09:00-13:00"))
	assert.Nil(t, left)
	assert.Nil(t, right)
}

func TestFree(t *testing.T) {
	available := []Slot{MustParse("14:00-16:00"), MustParse("09:00-12:00")}
	busy := []Slot{MustParse("10:00-11:00"), MustParse("15:30-16:30")}

	got := Free(available, busy)

	var out []string
	for _, s := range got {
		out = append(out, s.String())
	}
	assert.Equal(t, []string{"09:00-10:00", "11:00-12:00", "14:00-15:30"}, out)
}

func TestSlotOnDate(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	start, end := MustParse("10:00-11:30").On(MustParseDate("2025-12-15"), loc)

	assert.Equal(t, time.Date(2025, 12, 15, 10, 0, 0, 0, loc), start)
	assert.Equal(t, time.Date(2025, 12, 15, 11, 30, 0, 0, loc), end)
}

func TestSlotJSON(t *testing.T) {
	var payload struct {
		Slot Slot `json:"time_slot"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"time_slot":"08:15-09:00"}`), &payload))
	assert.Equal(t, NewClock(8, 15), payload.Slot.Start)

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"time_slot":"08:15-09:00"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"time_slot":"8-9"}`), &payload))
}
