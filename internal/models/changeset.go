package models

import "time"

// Field enumerates the domain payload fields an edit may touch. The merge
// engine only operates on this fixed set, so merges stay statically checkable.
type Field string

// Editable fields
const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldStartTime   Field = "startTime"
	FieldEndTime     Field = "endTime"
	FieldLocations   Field = "locations"
	FieldCategories  Field = "categories"
	FieldCapacity    Field = "capacity"
)

// keyFieldDisplayNames restricts change notifications to the fields significant
// enough to warrant one, with the labels shown to recipients.
var keyFieldDisplayNames = map[Field]string{
	FieldTitle:     "Title",
	FieldStartTime: "Start time",
	FieldEndTime:   "End time",
	FieldLocations: "Location",
}

// syncableFields are the fields mirrored to the external calendar. Capacity is
// a local booking concern and never leaves the primary store.
var syncableFields = map[Field]bool{
	FieldTitle:       true,
	FieldDescription: true,
	FieldStartTime:   true,
	FieldEndTime:     true,
	FieldLocations:   true,
	FieldCategories:  true,
}

// ChangeSet is a partial update over the enumerated field set. A nil field
// means "not touched"; a set field overwrites the record value.
type ChangeSet struct {
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	StartTime   *time.Time  `json:"startTime,omitempty"`
	EndTime     *time.Time  `json:"endTime,omitempty"`
	Locations   *StringList `json:"locations,omitempty"`
	Categories  *StringList `json:"categories,omitempty"`
	Capacity    *int        `json:"capacity,omitempty"`
}

// IsEmpty reports whether no field is set.
func (c ChangeSet) IsEmpty() bool {
	return len(c.Fields()) == 0
}

// Fields returns the set fields in declaration order.
func (c ChangeSet) Fields() []Field {
	var out []Field
	if c.Title != nil {
		out = append(out, FieldTitle)
	}
	if c.Description != nil {
		out = append(out, FieldDescription)
	}
	if c.StartTime != nil {
		out = append(out, FieldStartTime)
	}
	if c.EndTime != nil {
		out = append(out, FieldEndTime)
	}
	if c.Locations != nil {
		out = append(out, FieldLocations)
	}
	if c.Categories != nil {
		out = append(out, FieldCategories)
	}
	if c.Capacity != nil {
		out = append(out, FieldCapacity)
	}
	return out
}

// Merge overlays approver overrides on top of the proposed changes. For every
// field set in overrides the override wins; fields set only in overrides are
// applied as well, so approvers may adjust fields the requester never touched.
func (c ChangeSet) Merge(overrides ChangeSet) ChangeSet {
	out := c
	if overrides.Title != nil {
		out.Title = overrides.Title
	}
	if overrides.Description != nil {
		out.Description = overrides.Description
	}
	if overrides.StartTime != nil {
		out.StartTime = overrides.StartTime
	}
	if overrides.EndTime != nil {
		out.EndTime = overrides.EndTime
	}
	if overrides.Locations != nil {
		out.Locations = overrides.Locations
	}
	if overrides.Categories != nil {
		out.Categories = overrides.Categories
	}
	if overrides.Capacity != nil {
		out.Capacity = overrides.Capacity
	}
	return out
}

// Updates renders the set fields as column updates for the conditional-update
// guard.
func (c ChangeSet) Updates() map[string]interface{} {
	out := map[string]interface{}{}
	if c.Title != nil {
		out["title"] = *c.Title
	}
	if c.Description != nil {
		out["description"] = *c.Description
	}
	if c.StartTime != nil {
		out["start_time"] = *c.StartTime
	}
	if c.EndTime != nil {
		out["end_time"] = *c.EndTime
	}
	if c.Locations != nil {
		out["locations"] = *c.Locations
	}
	if c.Categories != nil {
		out["categories"] = *c.Categories
	}
	if c.Capacity != nil {
		out["capacity"] = *c.Capacity
	}
	return out
}

// ApplyTo writes the set fields onto the record in place.
func (c ChangeSet) ApplyTo(rec *EventRecord) {
	if c.Title != nil {
		rec.Title = *c.Title
	}
	if c.Description != nil {
		rec.Description = *c.Description
	}
	if c.StartTime != nil {
		t := *c.StartTime
		rec.StartTime = &t
	}
	if c.EndTime != nil {
		t := *c.EndTime
		rec.EndTime = &t
	}
	if c.Locations != nil {
		rec.Locations = *c.Locations
	}
	if c.Categories != nil {
		rec.Categories = *c.Categories
	}
	if c.Capacity != nil {
		rec.Capacity = *c.Capacity
	}
}

// NoOpAgainst reports whether every set field already equals the record's
// current value, i.e. applying the change set would not alter the record.
func (c ChangeSet) NoOpAgainst(rec *EventRecord) bool {
	if c.Title != nil && *c.Title != rec.Title {
		return false
	}
	if c.Description != nil && *c.Description != rec.Description {
		return false
	}
	if c.StartTime != nil && !timesEqual(c.StartTime, rec.StartTime) {
		return false
	}
	if c.EndTime != nil && !timesEqual(c.EndTime, rec.EndTime) {
		return false
	}
	if c.Locations != nil && !listsEqual(*c.Locations, rec.Locations) {
		return false
	}
	if c.Categories != nil && !listsEqual(*c.Categories, rec.Categories) {
		return false
	}
	if c.Capacity != nil && *c.Capacity != rec.Capacity {
		return false
	}
	return true
}

// HasSyncableField reports whether at least one set field is mirrored to the
// external calendar.
func (c ChangeSet) HasSyncableField() bool {
	for _, f := range c.Fields() {
		if syncableFields[f] {
			return true
		}
	}
	return false
}

// FieldDiff describes a single key-field change for notification purposes.
type FieldDiff struct {
	Field       Field       `json:"field"`
	DisplayName string      `json:"displayName"`
	From        interface{} `json:"from"`
	To          interface{} `json:"to"`
}

// KeyFieldDiff compares the change set against the record's current values and
// returns one entry per key field that would actually change. Non-key fields
// (description, categories, capacity) are persisted but never produce a diff,
// so they never trigger a notification.
func KeyFieldDiff(rec *EventRecord, changes ChangeSet) []FieldDiff {
	var diffs []FieldDiff
	if changes.Title != nil && *changes.Title != rec.Title {
		diffs = append(diffs, FieldDiff{
			Field:       FieldTitle,
			DisplayName: keyFieldDisplayNames[FieldTitle],
			From:        rec.Title,
			To:          *changes.Title,
		})
	}
	if changes.StartTime != nil && !timesEqual(changes.StartTime, rec.StartTime) {
		diffs = append(diffs, FieldDiff{
			Field:       FieldStartTime,
			DisplayName: keyFieldDisplayNames[FieldStartTime],
			From:        rec.StartTime,
			To:          *changes.StartTime,
		})
	}
	if changes.EndTime != nil && !timesEqual(changes.EndTime, rec.EndTime) {
		diffs = append(diffs, FieldDiff{
			Field:       FieldEndTime,
			DisplayName: keyFieldDisplayNames[FieldEndTime],
			From:        rec.EndTime,
			To:          *changes.EndTime,
		})
	}
	if changes.Locations != nil && !listsEqual(*changes.Locations, rec.Locations) {
		diffs = append(diffs, FieldDiff{
			Field:       FieldLocations,
			DisplayName: keyFieldDisplayNames[FieldLocations],
			From:        rec.Locations,
			To:          *changes.Locations,
		})
	}
	return diffs
}

func timesEqual(a *time.Time, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func listsEqual(a StringList, b StringList) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
