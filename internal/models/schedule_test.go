package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleDecodePreservesDocumentOrder(t *testing.T) {
	// Keys deliberately out of chronological order: the document order
	// is the order the seller published, and it must survive decoding.
	raw := `{
		"2024-03-10": ["14:00", "15:00"],
		"2024-03-08": ["09:00"],
		"2024-03-09": ["10:00", "11:00"]
	}`

	var s Schedule
	require.NoError(t, json.Unmarshal([]byte(raw), &s))

	require.Len(t, s, 3)
	assert.Equal(t, "2024-03-10", s[0].Date)
	assert.Equal(t, []string{"14:00", "15:00"}, s[0].Times)
	assert.Equal(t, "2024-03-08", s[1].Date)
	assert.Equal(t, "2024-03-09", s[2].Date)
}

func TestScheduleEncodeRoundTripsOrder(t *testing.T) {
	s := Schedule{
		{Date: "2024-03-10", Times: []string{"14:00"}},
		{Date: "2024-03-08", Times: []string{"09:00"}},
	}

	out, err := json.Marshal(s)
	require.NoError(t, err)

	var back Schedule
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, s, back)
}

func TestScheduleDecodeEmpty(t *testing.T) {
	var s Schedule
	require.NoError(t, json.Unmarshal([]byte(`{}`), &s))
	assert.Empty(t, s)

	require.NoError(t, json.Unmarshal([]byte(`null`), &s))
	assert.Empty(t, s)
}

func TestScheduleContains(t *testing.T) {
	s := Schedule{
		{Date: "2024-03-08", Times: []string{"09:00", "10:00"}},
		{Date: "2024-03-09", Times: []string{"11:00"}},
	}

	assert.True(t, s.Contains(BookableSlot{Date: "2024-03-08", Time: "10:00"}))
	assert.True(t, s.Contains(BookableSlot{Date: "2024-03-09", Time: "11:00"}))
	assert.False(t, s.Contains(BookableSlot{Date: "2024-03-08", Time: "11:00"}))
	assert.False(t, s.Contains(BookableSlot{Date: "2024-03-10", Time: "09:00"}))
}
