package resource

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInstantAcceptsMixedLayouts(t *testing.T) {
	cases := map[string]time.Time{
		`"2025-06-01 14:30:00"`:       time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC),
		`"2025-06-01T14:30:00Z"`:      time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC),
		`"2025-06-01T14:30:00"`:       time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC),
		`"2025-06-01"`:                time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	for input, want := range cases {
		var i Instant
		require.NoError(t, json.Unmarshal([]byte(input), &i), input)
		require.True(t, i.Equal(want), "input %s got %v", input, i.Time)
	}
}

func TestInstantMalformedBecomesZero(t *testing.T) {
	for _, input := range []string{`null`, `""`, `"0000-00-00 00:00:00"`, `"not a date"`, `12345`} {
		var i Instant
		require.NoError(t, json.Unmarshal([]byte(input), &i), input)
		require.True(t, i.IsZero(), "input %s should be zero", input)
	}
}

func TestInstantMarshal(t *testing.T) {
	i := Instant{time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC)}
	out, err := json.Marshal(i)
	require.NoError(t, err)
	require.Equal(t, `"2025-06-01T14:30:00Z"`, string(out))

	out, err = json.Marshal(Instant{})
	require.NoError(t, err)
	require.Equal(t, "null", string(out))
}

func TestYearMonth(t *testing.T) {
	i := Instant{time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC)}
	require.Equal(t, "2025-06", i.YearMonth())
	require.Equal(t, "", Instant{}.YearMonth())
}

func TestNumberAcceptsStringsAndNull(t *testing.T) {
	var n Number
	require.NoError(t, json.Unmarshal([]byte(`2.5`), &n))
	require.Equal(t, Number(2.5), n)

	require.NoError(t, json.Unmarshal([]byte(`"3.25"`), &n))
	require.Equal(t, Number(3.25), n)

	require.NoError(t, json.Unmarshal([]byte(`null`), &n))
	require.Equal(t, Number(0), n)

	require.NoError(t, json.Unmarshal([]byte(`"junk"`), &n))
	require.Equal(t, Number(0), n)
}

func TestIntegerAcceptsStringsAndFloats(t *testing.T) {
	var n Integer
	require.NoError(t, json.Unmarshal([]byte(`42`), &n))
	require.Equal(t, Integer(42), n)

	require.NoError(t, json.Unmarshal([]byte(`"42"`), &n))
	require.Equal(t, Integer(42), n)

	require.NoError(t, json.Unmarshal([]byte(`42.0`), &n))
	require.Equal(t, Integer(42), n)

	require.NoError(t, json.Unmarshal([]byte(`null`), &n))
	require.Equal(t, Integer(0), n)
}

func TestDecodeHour(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "901",
		"user": {"id": 7, "user_email": "ada@example.org", "user_fname": "Ada"},
		"need": {"id": 31, "need_title": "Food Bank", "agency_id": 3},
		"shift": {"id": 12},
		"hour_status": "approved",
		"hour_hours": "2.5",
		"hour_date_start": "2025-06-01 09:00:00",
		"hour_date_updated": "2025-06-02 10:00:00"
	}`)

	ent, err := Decode(CollectionHours, raw)
	require.NoError(t, err)

	hour, ok := ent.(*Hour)
	require.True(t, ok)
	require.Equal(t, "901", hour.DocID())
	require.Equal(t, Integer(7), hour.User.ID)
	require.Equal(t, "ada@example.org", hour.User.Email)
	require.Equal(t, Integer(31), hour.Need.ID)
	require.Equal(t, Integer(12), hour.Shift.ID)
	require.Equal(t, Number(2.5), hour.HourDuration)
	require.Equal(t, "approved", hour.HourStatus)
	require.False(t, hour.HourDateStart.IsZero())
}

func TestDecodeMalformedOptionalFieldDoesNotFailRecord(t *testing.T) {
	raw := json.RawMessage(`{"id": 5, "user_email": "x@example.org", "user_date_updated": "garbage"}`)
	ent, err := Decode(CollectionUsers, raw)
	require.NoError(t, err)

	user := ent.(*User)
	require.Equal(t, "5", user.DocID())
	require.True(t, user.DateUpdated.IsZero())
}

func TestDocIDMissingOrNonPositive(t *testing.T) {
	ent, err := Decode(CollectionUsers, json.RawMessage(`{"user_email": "x@example.org"}`))
	require.NoError(t, err)
	require.Equal(t, "", ent.DocID())

	ent, err = Decode(CollectionUsers, json.RawMessage(`{"id": -3}`))
	require.NoError(t, err)
	require.Equal(t, "", ent.DocID())
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode("widgets", json.RawMessage(`{}`))
	require.Error(t, err)
}

func TestStamp(t *testing.T) {
	user := &User{ID: 1}
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	user.Stamp(at, "galaxy_api")

	require.True(t, user.SyncedAt.Equal(at))
	require.Equal(t, "galaxy_api", user.SyncSource)
}

func TestRegistryShape(t *testing.T) {
	resources := Registry()
	require.Len(t, resources, 6)

	byName := map[string]Resource{}
	for _, res := range resources {
		byName[res.Name] = res
		require.Equal(t, DefaultPerPage, res.PerPage)
		require.NotEmpty(t, res.Endpoint)
		require.NotEmpty(t, res.Collection)
	}

	require.Equal(t, "since_updated", byName["hours"].SinceParam)
	require.Empty(t, byName["events"].SinceParam, "events are always a full fetch")
}

func TestLookup(t *testing.T) {
	res, err := Lookup("needs")
	require.NoError(t, err)
	require.Equal(t, CollectionNeeds, res.Collection)

	_, err = Lookup("nope")
	require.Error(t, err)
}
