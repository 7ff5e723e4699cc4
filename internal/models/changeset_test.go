package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string        { return &s }
func intPtr(i int) *int              { return &i }
func timePtr(t time.Time) *time.Time { return &t }

func listPtr(s ...string) *StringList {
	l := StringList(s)
	return &l
}

func TestChangeSetFields(t *testing.T) {
	empty := ChangeSet{}
	require.True(t, empty.IsEmpty())
	require.Empty(t, empty.Fields())

	cs := ChangeSet{
		Title:    strPtr("Town Hall"),
		Capacity: intPtr(120),
	}
	require.False(t, cs.IsEmpty())
	require.Equal(t, []Field{FieldTitle, FieldCapacity}, cs.Fields())
}

func TestChangeSetMergeOverridesWin(t *testing.T) {
	proposed := ChangeSet{
		Title:       strPtr("Quarterly Review"),
		Description: strPtr("Q3 numbers"),
		Capacity:    intPtr(50),
	}
	overrides := ChangeSet{
		Title:     strPtr("Quarterly Review (All Hands)"),
		Locations: listPtr("Main Hall"),
	}

	merged := proposed.Merge(overrides)

	// Override wins on the contested field.
	require.Equal(t, "Quarterly Review (All Hands)", *merged.Title)
	// Untouched proposed fields survive.
	require.Equal(t, "Q3 numbers", *merged.Description)
	require.Equal(t, 50, *merged.Capacity)
	// Fields only the approver set are applied too.
	require.Equal(t, StringList{"Main Hall"}, *merged.Locations)
}

func TestChangeSetMergeEmptyOverrides(t *testing.T) {
	proposed := ChangeSet{Title: strPtr("Original")}
	merged := proposed.Merge(ChangeSet{})
	require.Equal(t, "Original", *merged.Title)
	require.Equal(t, proposed.Fields(), merged.Fields())
}

func TestChangeSetUpdates(t *testing.T) {
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	cs := ChangeSet{
		Title:     strPtr("Workshop"),
		StartTime: timePtr(start),
		Locations: listPtr("Room 4"),
	}

	updates := cs.Updates()
	require.Len(t, updates, 3)
	require.Equal(t, "Workshop", updates["title"])
	require.Equal(t, start, updates["start_time"])
	require.Equal(t, StringList{"Room 4"}, updates["locations"])
}

func TestChangeSetNoOpAgainst(t *testing.T) {
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	rec := &EventRecord{
		Title:     "Workshop",
		StartTime: timePtr(start),
		Locations: StringList{"Room 4"},
		Capacity:  30,
	}

	same := ChangeSet{
		Title:     strPtr("Workshop"),
		StartTime: timePtr(start),
		Locations: listPtr("Room 4"),
	}
	require.True(t, same.NoOpAgainst(rec))

	// Equal instants in different zones still count as unchanged.
	zone := time.FixedZone("EAT", 3*3600)
	sameInstant := ChangeSet{StartTime: timePtr(start.In(zone))}
	require.True(t, sameInstant.NoOpAgainst(rec))

	changed := ChangeSet{Capacity: intPtr(40)}
	require.False(t, changed.NoOpAgainst(rec))
}

func TestChangeSetHasSyncableField(t *testing.T) {
	require.True(t, ChangeSet{Title: strPtr("x")}.HasSyncableField())
	require.True(t, ChangeSet{Categories: listPtr("internal")}.HasSyncableField())
	// Capacity never leaves the primary store.
	require.False(t, ChangeSet{Capacity: intPtr(10)}.HasSyncableField())
	require.False(t, ChangeSet{}.HasSyncableField())
}

func TestKeyFieldDiff(t *testing.T) {
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	newStart := start.Add(time.Hour)
	rec := &EventRecord{
		Title:     "Workshop",
		StartTime: timePtr(start),
		Locations: StringList{"Room 4"},
	}

	changes := ChangeSet{
		Title:     strPtr("Workshop: Rescheduled"),
		StartTime: timePtr(newStart),
		Locations: listPtr("Main Hall"),
	}

	diffs := KeyFieldDiff(rec, changes)
	require.Len(t, diffs, 3)
	require.Equal(t, FieldTitle, diffs[0].Field)
	require.Equal(t, "Title", diffs[0].DisplayName)
	require.Equal(t, "Workshop", diffs[0].From)
	require.Equal(t, "Workshop: Rescheduled", diffs[0].To)
	require.Equal(t, "Start time", diffs[1].DisplayName)
	require.Equal(t, "Location", diffs[2].DisplayName)
}

func TestKeyFieldDiffSkipsUnchangedAndNonKeyFields(t *testing.T) {
	rec := &EventRecord{
		Title:       "Workshop",
		Description: "old",
		Capacity:    30,
	}

	// Description and capacity are not key fields; an unchanged title produces
	// no entry either.
	changes := ChangeSet{
		Title:       strPtr("Workshop"),
		Description: strPtr("new"),
		Capacity:    intPtr(60),
	}
	require.Empty(t, KeyFieldDiff(rec, changes))
}

func TestChangeSetApplyTo(t *testing.T) {
	rec := &EventRecord{Title: "Old", Capacity: 10}
	end := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	ChangeSet{
		Title:    strPtr("New"),
		EndTime:  timePtr(end),
		Capacity: intPtr(25),
	}.ApplyTo(rec)

	require.Equal(t, "New", rec.Title)
	require.Equal(t, end, *rec.EndTime)
	require.Equal(t, 25, rec.Capacity)
}
