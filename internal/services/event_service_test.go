package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/venuehub/services/events/internal/calendar"
	"example.com/venuehub/services/events/internal/models"
	"example.com/venuehub/services/events/internal/permissions"
	"example.com/venuehub/services/events/internal/repositories"
	"example.com/venuehub/services/events/internal/search"
)

// Mock event store for testing
type MockEventStore struct {
	mock.Mock
}

func (m *MockEventStore) Create(ctx context.Context, record *models.EventRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockEventStore) GetByEventID(ctx context.Context, eventID string) (*models.EventRecord, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EventRecord), args.Error(1)
}

func (m *MockEventStore) List(ctx context.Context, opts repositories.ListOptions) ([]models.EventRecord, error) {
	args := m.Called(ctx, opts)
	return args.Get(0).([]models.EventRecord), args.Error(1)
}

func (m *MockEventStore) ConditionalUpdate(ctx context.Context, eventID string, updates map[string]interface{}, opts repositories.ConditionalUpdateOptions) (*models.EventRecord, error) {
	args := m.Called(ctx, eventID, updates, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EventRecord), args.Error(1)
}

func (m *MockEventStore) FindSyncPending(ctx context.Context, limit int) ([]models.EventRecord, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.EventRecord), args.Error(1)
}

// Mock audit store for testing
type MockAuditStore struct {
	mock.Mock
}

func (m *MockAuditStore) Record(ctx context.Context, entry *models.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockAuditStore) ListByEvent(ctx context.Context, eventID string, limit, offset int) ([]models.AuditEntry, error) {
	args := m.Called(ctx, eventID, limit, offset)
	return args.Get(0).([]models.AuditEntry), args.Error(1)
}

// Mock calendar client for testing
type MockCalendarClient struct {
	mock.Mock
}

func (m *MockCalendarClient) CreateEvent(ctx context.Context, owner, calendarID string, data calendar.EventData) (*calendar.SyncResult, error) {
	args := m.Called(ctx, owner, calendarID, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*calendar.SyncResult), args.Error(1)
}

func (m *MockCalendarClient) UpdateEvent(ctx context.Context, owner, calendarID, externalID string, data calendar.EventData) (*calendar.SyncResult, error) {
	args := m.Called(ctx, owner, calendarID, externalID, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*calendar.SyncResult), args.Error(1)
}

func (m *MockCalendarClient) DeleteEvent(ctx context.Context, owner, calendarID, externalID string) error {
	args := m.Called(ctx, owner, calendarID, externalID)
	return args.Error(0)
}

// Mock notification dispatcher for testing
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) SendChangeNotification(ctx context.Context, recipient, eventTitle string, diffs []models.FieldDiff) error {
	args := m.Called(ctx, recipient, eventTitle, diffs)
	return args.Error(0)
}

func (m *MockDispatcher) Close() error {
	args := m.Called()
	return args.Error(0)
}

// stubOracle grants a fixed capability set.
type stubOracle struct {
	capabilities map[permissions.Capability]bool
}

func (o *stubOracle) HasCapability(actor models.Actor, capability permissions.Capability) bool {
	return o.capabilities[capability]
}

func (o *stubOracle) Owns(actor models.Actor, record *models.EventRecord) bool {
	return record.CreatedBy == actor.ID
}

func allCapabilities() *stubOracle {
	return &stubOracle{capabilities: map[permissions.Capability]bool{
		permissions.CapabilityApprove: true,
		permissions.CapabilityReject:  true,
		permissions.CapabilityRestore: true,
	}}
}

func noCapabilities() *stubOracle {
	return &stubOracle{capabilities: map[permissions.Capability]bool{}}
}

func draftRecord() *models.EventRecord {
	start := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	creator := models.Actor{ID: "owner-1", Email: "owner-1@example.com"}
	return &models.EventRecord{
		ID:             uuid.New(),
		EventID:        "evt-1",
		Status:         models.StatusDraft,
		Version:        1,
		GraphSynced:    true,
		StatusHistory:  models.StatusHistory{}.Append(models.StatusDraft, creator, "Created"),
		Title:          "Town Hall",
		StartTime:      &start,
		EndTime:        &end,
		Locations:      models.StringList{"Main Hall"},
		CreatedBy:      creator.ID,
		CreatedByEmail: creator.Email,
	}
}

func recordInStatus(status models.EventStatus) *models.EventRecord {
	rec := draftRecord()
	rec.Status = status
	return rec
}

func TestCreateEventStartsInDraft(t *testing.T) {
	mockStore := new(MockEventStore)
	mockAudit := new(MockAuditStore)
	mockStore.On("Create", mock.Anything, mock.AnythingOfType("*models.EventRecord")).Return(nil)
	mockAudit.On("Record", mock.Anything, mock.AnythingOfType("*models.AuditEntry")).Return(nil)

	service := &EventService{events: mockStore, audit: mockAudit}

	start := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	record, err := service.Create(context.Background(), models.Actor{ID: "owner-1"}, CreateEventInput{
		Title:     "Town Hall",
		StartTime: &start,
		EndTime:   &end,
	})

	require.NoError(t, err)
	require.Equal(t, models.StatusDraft, record.Status)
	require.Equal(t, int64(1), record.Version)
	require.Len(t, record.StatusHistory, 1)
	require.NotEmpty(t, record.EventID)
	mockStore.AssertExpectations(t)
	mockAudit.AssertExpectations(t)
}

func TestMutationsSurviveUninitializedSearchClient(t *testing.T) {
	mockStore := new(MockEventStore)
	mockAudit := new(MockAuditStore)
	mockStore.On("Create", mock.Anything, mock.AnythingOfType("*models.EventRecord")).Return(nil)
	mockAudit.On("Record", mock.Anything, mock.AnythingOfType("*models.AuditEntry")).Return(nil)

	// A failed Elasticsearch init hands the service a nil client behind a
	// non-nil interface; indexing must degrade to a no-op, not a panic.
	service := &EventService{
		events: mockStore,
		audit:  mockAudit,
		search: (*search.ElasticClient)(nil),
	}

	require.NotPanics(t, func() {
		_, err := service.Create(context.Background(), models.Actor{ID: "owner-1"}, CreateEventInput{Title: "Town Hall"})
		require.NoError(t, err)
	})
	mockAudit.AssertExpectations(t)
}

func TestCreateEventRequiresTitle(t *testing.T) {
	service := &EventService{}

	_, err := service.Create(context.Background(), models.Actor{ID: "owner-1"}, CreateEventInput{})

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "title", validation.Field)
}

func TestSubmitMovesDraftToPending(t *testing.T) {
	record := draftRecord()
	updated := recordInStatus(models.StatusPending)
	updated.Version = 2

	mockStore := new(MockEventStore)
	mockAudit := new(MockAuditStore)
	mockStore.On("GetByEventID", mock.Anything, "evt-1").Return(record, nil)
	mockStore.On("ConditionalUpdate", mock.Anything, "evt-1",
		mock.MatchedBy(func(updates map[string]interface{}) bool {
			return updates["status"] == models.StatusPending
		}),
		mock.MatchedBy(func(opts repositories.ConditionalUpdateOptions) bool {
			return opts.ExpectedVersion != nil && *opts.ExpectedVersion == 1 &&
				opts.ExpectedStatus != nil && *opts.ExpectedStatus == models.StatusDraft
		}),
	).Return(updated, nil)
	mockAudit.On("Record", mock.Anything, mock.AnythingOfType("*models.AuditEntry")).Return(nil)

	service := &EventService{events: mockStore, audit: mockAudit}

	result, err := service.Submit(context.Background(), "evt-1", models.Actor{ID: "owner-1"}, 1)

	require.NoError(t, err)
	require.Equal(t, models.StatusPending, result.Status)
	mockStore.AssertExpectations(t)
}

func TestSubmitRejectsNonDraft(t *testing.T) {
	mockStore := new(MockEventStore)
	mockStore.On("GetByEventID", mock.Anything, "evt-1").Return(recordInStatus(models.StatusPublished), nil)

	service := &EventService{events: mockStore}

	_, err := service.Submit(context.Background(), "evt-1", models.Actor{ID: "owner-1"}, 1)

	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, models.StatusPublished, invalid.From)
}

func TestSubmitRequiresSchedule(t *testing.T) {
	record := draftRecord()
	record.EndTime = nil

	mockStore := new(MockEventStore)
	mockStore.On("GetByEventID", mock.Anything, "evt-1").Return(record, nil)

	service := &EventService{events: mockStore}

	_, err := service.Submit(context.Background(), "evt-1", models.Actor{ID: "owner-1"}, 1)

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestApproveRequiresCapability(t *testing.T) {
	service := &EventService{oracle: noCapabilities()}

	_, err := service.Approve(context.Background(), "evt-1", models.Actor{ID: "reviewer-1"}, 1)

	var denied *PermissionDeniedError
	require.ErrorAs(t, err, &denied)
}

func TestApproveDeniesSelfApproval(t *testing.T) {
	mockStore := new(MockEventStore)
	mockStore.On("GetByEventID", mock.Anything, "evt-1").Return(recordInStatus(models.StatusPending), nil)

	service := &EventService{events: mockStore, oracle: allCapabilities()}

	// owner-1 created the record in the fixture.
	_, err := service.Approve(context.Background(), "evt-1", models.Actor{ID: "owner-1"}, 1)

	var denied *PermissionDeniedError
	require.ErrorAs(t, err, &denied)
}

func TestApproveAllowsSelfApprovalWhenConfigured(t *testing.T) {
	record := recordInStatus(models.StatusPending)
	published := recordInStatus(models.StatusPublished)
	published.Version = 2

	mockStore := new(MockEventStore)
	mockAudit := new(MockAuditStore)
	mockStore.On("GetByEventID", mock.Anything, "evt-1").Return(record, nil)
	mockStore.On("ConditionalUpdate", mock.Anything, "evt-1", mock.Anything, mock.Anything).Return(published, nil)
	mockAudit.On("Record", mock.Anything, mock.Anything).Return(nil)

	service := &EventService{
		events:            mockStore,
		audit:             mockAudit,
		oracle:            allCapabilities(),
		allowSelfApproval: true,
	}

	result, err := service.Approve(context.Background(), "evt-1", models.Actor{ID: "owner-1"}, 1)

	require.NoError(t, err)
	require.Equal(t, models.StatusPublished, result.Status)
}

func TestApproveSurvivesCalendarSyncFailure(t *testing.T) {
	record := recordInStatus(models.StatusPending)
	record.CalendarOwner = "venues@example.com"
	record.CalendarID = "cal-1"

	published := recordInStatus(models.StatusPublished)
	published.Version = 2
	published.CalendarOwner = record.CalendarOwner
	published.CalendarID = record.CalendarID

	flagged := recordInStatus(models.StatusPublished)
	flagged.Version = 3
	flagged.GraphSynced = false

	mockStore := new(MockEventStore)
	mockAudit := new(MockAuditStore)
	mockCalendar := new(MockCalendarClient)

	mockStore.On("GetByEventID", mock.Anything, "evt-1").Return(record, nil)
	mockStore.On("ConditionalUpdate", mock.Anything, "evt-1",
		mock.MatchedBy(func(updates map[string]interface{}) bool {
			return updates["status"] == models.StatusPublished
		}), mock.Anything,
	).Return(published, nil)
	mockStore.On("ConditionalUpdate", mock.Anything, "evt-1",
		mock.MatchedBy(func(updates map[string]interface{}) bool {
			synced, ok := updates["graph_synced"].(bool)
			return ok && !synced
		}), mock.Anything,
	).Return(flagged, nil)
	mockAudit.On("Record", mock.Anything, mock.Anything).Return(nil)
	mockCalendar.On("CreateEvent", mock.Anything, "venues@example.com", "cal-1", mock.Anything).
		Return(nil, context.DeadlineExceeded)

	service := &EventService{
		events:   mockStore,
		audit:    mockAudit,
		calendar: mockCalendar,
		oracle:   allCapabilities(),
	}

	// The publish commits even though the external push failed.
	result, err := service.Approve(context.Background(), "evt-1", models.Actor{ID: "reviewer-1"}, 1)

	require.NoError(t, err)
	require.Equal(t, models.StatusPublished, result.Status)
	require.False(t, result.GraphSynced)
	mockStore.AssertExpectations(t)
	mockCalendar.AssertExpectations(t)
}

func TestRejectRequiresReason(t *testing.T) {
	service := &EventService{oracle: allCapabilities()}

	_, err := service.Reject(context.Background(), "evt-1", models.Actor{ID: "reviewer-1"}, "   ", 1)

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "reason", validation.Field)
}

func TestDeleteIsIdempotent(t *testing.T) {
	record := recordInStatus(models.StatusDeleted)
	record.Version = 4

	mockStore := new(MockEventStore)
	mockStore.On("GetByEventID", mock.Anything, "evt-1").Return(record, nil)

	service := &EventService{events: mockStore}

	result, err := service.Delete(context.Background(), "evt-1", models.Actor{ID: "owner-1"}, "", 4)

	require.NoError(t, err)
	require.Equal(t, int64(4), result.Version)
	mockStore.AssertNotCalled(t, "ConditionalUpdate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteRecordsPreviousStatusAndRemovesExternalEvent(t *testing.T) {
	record := recordInStatus(models.StatusPublished)
	record.CalendarOwner = "venues@example.com"
	record.CalendarID = "cal-1"
	record.ExternalSync = &models.ExternalSync{ExternalID: "ext-1"}

	deleted := recordInStatus(models.StatusDeleted)
	deleted.Version = 2

	mockStore := new(MockEventStore)
	mockAudit := new(MockAuditStore)
	mockCalendar := new(MockCalendarClient)

	mockStore.On("GetByEventID", mock.Anything, "evt-1").Return(record, nil)
	mockStore.On("ConditionalUpdate", mock.Anything, "evt-1",
		mock.MatchedBy(func(updates map[string]interface{}) bool {
			return updates["status"] == models.StatusDeleted &&
				updates["is_deleted"] == true &&
				updates["previous_status"] == models.StatusPublished
		}), mock.Anything,
	).Return(deleted, nil)
	mockAudit.On("Record", mock.Anything, mock.Anything).Return(nil)
	// The external delete fails; the local delete must stand regardless.
	mockCalendar.On("DeleteEvent", mock.Anything, "venues@example.com", "cal-1", "ext-1").
		Return(context.DeadlineExceeded)

	service := &EventService{events: mockStore, audit: mockAudit, calendar: mockCalendar}

	result, err := service.Delete(context.Background(), "evt-1", models.Actor{ID: "owner-1"}, "Cancelled", 1)

	require.NoError(t, err)
	require.Equal(t, models.StatusDeleted, result.Status)
	mockCalendar.AssertExpectations(t)
}

func TestRestoreDerivesTargetFromHistory(t *testing.T) {
	actor := models.Actor{ID: "owner-1"}
	record := recordInStatus(models.StatusDeleted)
	record.StatusHistory = models.StatusHistory{}.
		Append(models.StatusDraft, actor, "Created").
		Append(models.StatusPending, actor, "Submitted").
		Append(models.StatusPublished, actor, "Approved").
		Append(models.StatusDeleted, actor, "Deleted")

	restored := recordInStatus(models.StatusPublished)
	restored.Version = 5

	mockStore := new(MockEventStore)
	mockAudit := new(MockAuditStore)
	mockStore.On("GetByEventID", mock.Anything, "evt-1").Return(record, nil)
	mockStore.On("ConditionalUpdate", mock.Anything, "evt-1",
		mock.MatchedBy(func(updates map[string]interface{}) bool {
			return updates["status"] == models.StatusPublished &&
				updates["is_deleted"] == false &&
				updates["previous_status"] == nil
		}), mock.Anything,
	).Return(restored, nil)
	mockAudit.On("Record", mock.Anything, mock.Anything).Return(nil)

	service := &EventService{events: mockStore, audit: mockAudit, oracle: allCapabilities()}

	result, err := service.Restore(context.Background(), "evt-1", models.Actor{ID: "admin-1"}, 4)

	require.NoError(t, err)
	require.Equal(t, models.StatusPublished, result.Status)
	mockStore.AssertExpectations(t)
}

func TestRestoreRejectsNonDeleted(t *testing.T) {
	mockStore := new(MockEventStore)
	mockStore.On("GetByEventID", mock.Anything, "evt-1").Return(recordInStatus(models.StatusPublished), nil)

	service := &EventService{events: mockStore, oracle: allCapabilities()}

	_, err := service.Restore(context.Background(), "evt-1", models.Actor{ID: "admin-1"}, 1)

	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
}

func TestUpdatePropagatesVersionConflict(t *testing.T) {
	record := recordInStatus(models.StatusPublished)

	conflict := &repositories.VersionConflictError{
		EventID:        "evt-1",
		CurrentVersion: 7,
		CurrentStatus:  models.StatusPublished,
	}

	mockStore := new(MockEventStore)
	mockStore.On("GetByEventID", mock.Anything, "evt-1").Return(record, nil)
	mockStore.On("ConditionalUpdate", mock.Anything, "evt-1", mock.Anything, mock.Anything).Return(nil, conflict)

	service := &EventService{events: mockStore}

	title := "New Title"
	_, err := service.Update(context.Background(), "evt-1", models.Actor{ID: "owner-1"}, models.ChangeSet{Title: &title}, 1)

	vc, ok := repositories.IsVersionConflict(err)
	require.True(t, ok)
	require.Equal(t, int64(7), vc.CurrentVersion)
}

func TestUpdateNoOpSkipsSyncAndNotification(t *testing.T) {
	record := recordInStatus(models.StatusPublished)
	record.ExternalSync = &models.ExternalSync{ExternalID: "ext-1"}
	record.CalendarOwner = "venues@example.com"

	updated := recordInStatus(models.StatusPublished)
	updated.Version = 2

	mockStore := new(MockEventStore)
	mockAudit := new(MockAuditStore)
	mockCalendar := new(MockCalendarClient)
	mockNotifier := new(MockDispatcher)

	mockStore.On("GetByEventID", mock.Anything, "evt-1").Return(record, nil)
	mockStore.On("ConditionalUpdate", mock.Anything, "evt-1", mock.Anything, mock.Anything).Return(updated, nil)
	mockAudit.On("Record", mock.Anything, mock.Anything).Return(nil)

	service := &EventService{
		events:   mockStore,
		audit:    mockAudit,
		calendar: mockCalendar,
		notifier: mockNotifier,
	}

	// The change set resolves to the record's current title.
	title := record.Title
	_, err := service.Update(context.Background(), "evt-1", models.Actor{ID: "owner-1"}, models.ChangeSet{Title: &title}, 1)

	require.NoError(t, err)
	// The no-op still writes the audit entry but never reaches the calendar or
	// the notifier.
	mockAudit.AssertExpectations(t)
	mockCalendar.AssertNotCalled(t, "UpdateEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockNotifier.AssertNotCalled(t, "SendChangeNotification", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateNotifiesKeyFieldChanges(t *testing.T) {
	record := recordInStatus(models.StatusPublished)
	updated := recordInStatus(models.StatusPublished)
	updated.Version = 2
	updated.Title = "Town Hall: Rescheduled"

	mockStore := new(MockEventStore)
	mockAudit := new(MockAuditStore)
	mockNotifier := new(MockDispatcher)

	mockStore.On("GetByEventID", mock.Anything, "evt-1").Return(record, nil)
	mockStore.On("ConditionalUpdate", mock.Anything, "evt-1", mock.Anything, mock.Anything).Return(updated, nil)
	mockAudit.On("Record", mock.Anything, mock.Anything).Return(nil)
	mockNotifier.On("SendChangeNotification", mock.Anything, "owner-1@example.com", updated.Title,
		mock.MatchedBy(func(diffs []models.FieldDiff) bool {
			return len(diffs) == 1 && diffs[0].Field == models.FieldTitle
		}),
	).Return(nil)

	service := &EventService{events: mockStore, audit: mockAudit, notifier: mockNotifier}

	title := "Town Hall: Rescheduled"
	_, err := service.Update(context.Background(), "evt-1", models.Actor{ID: "owner-1"}, models.ChangeSet{Title: &title}, 1)

	require.NoError(t, err)
	mockNotifier.AssertExpectations(t)
}

func TestRequestEditRequiresOwnership(t *testing.T) {
	record := recordInStatus(models.StatusPublished)

	mockStore := new(MockEventStore)
	mockStore.On("GetByEventID", mock.Anything, "evt-1").Return(record, nil)

	service := &EventService{events: mockStore, oracle: allCapabilities()}

	title := "New Title"
	_, err := service.RequestEdit(context.Background(), "evt-1", models.Actor{ID: "stranger-1"},
		models.ChangeSet{Title: &title}, "typo", 1)

	var denied *PermissionDeniedError
	require.ErrorAs(t, err, &denied)
}

func TestRequestEditRejectsSecondEnvelope(t *testing.T) {
	record := recordInStatus(models.StatusPublished)
	record.PendingEditRequest = &models.EditRequest{Status: models.EditRequestPending}

	mockStore := new(MockEventStore)
	mockStore.On("GetByEventID", mock.Anything, "evt-1").Return(record, nil)

	service := &EventService{events: mockStore, oracle: allCapabilities()}

	title := "New Title"
	_, err := service.RequestEdit(context.Background(), "evt-1", models.Actor{ID: "owner-1"},
		models.ChangeSet{Title: &title}, "typo", 1)

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "pendingEditRequest", validation.Field)
}

func TestApproveEditMergesOverridesAndClearsEnvelope(t *testing.T) {
	requestedTitle := "Requested Title"
	requestedCapacity := 80
	record := recordInStatus(models.StatusPublished)
	record.PendingEditRequest = &models.EditRequest{
		RequestedBy:      "owner-1",
		RequestedChanges: models.ChangeSet{Title: &requestedTitle, Capacity: &requestedCapacity},
		Reason:           "venue change",
		Status:           models.EditRequestPending,
	}

	updated := recordInStatus(models.StatusPublished)
	updated.Version = 2
	updated.Title = "Approver Title"
	updated.Capacity = 80

	mockStore := new(MockEventStore)
	mockAudit := new(MockAuditStore)
	mockNotifier := new(MockDispatcher)

	mockStore.On("GetByEventID", mock.Anything, "evt-1").Return(record, nil)
	mockStore.On("ConditionalUpdate", mock.Anything, "evt-1",
		mock.MatchedBy(func(updates map[string]interface{}) bool {
			// The approver's title wins, the requester's capacity survives, and
			// the envelope is cleared in the same write.
			cleared, present := updates["pending_edit_request"]
			return updates["title"] == "Approver Title" &&
				updates["capacity"] == 80 &&
				present && cleared == nil
		}), mock.Anything,
	).Return(updated, nil)
	mockAudit.On("Record", mock.Anything, mock.Anything).Return(nil)
	mockNotifier.On("SendChangeNotification", mock.Anything, "owner-1@example.com", mock.Anything, mock.Anything).Return(nil)

	service := &EventService{events: mockStore, audit: mockAudit, notifier: mockNotifier, oracle: allCapabilities()}

	overrideTitle := "Approver Title"
	result, err := service.ApproveEdit(context.Background(), "evt-1", models.Actor{ID: "reviewer-1"},
		models.ChangeSet{Title: &overrideTitle}, 1)

	require.NoError(t, err)
	require.Equal(t, "Approver Title", result.Title)
	mockStore.AssertExpectations(t)
}

func TestApproveEditWithoutEnvelopeFails(t *testing.T) {
	mockStore := new(MockEventStore)
	mockStore.On("GetByEventID", mock.Anything, "evt-1").Return(recordInStatus(models.StatusPublished), nil)

	service := &EventService{events: mockStore, oracle: allCapabilities()}

	_, err := service.ApproveEdit(context.Background(), "evt-1", models.Actor{ID: "reviewer-1"}, models.ChangeSet{}, 1)

	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
}

func TestRejectEditClearsEnvelopeOnly(t *testing.T) {
	requestedTitle := "Requested Title"
	record := recordInStatus(models.StatusPublished)
	record.PendingEditRequest = &models.EditRequest{
		RequestedBy:      "owner-1",
		RequestedChanges: models.ChangeSet{Title: &requestedTitle},
		Status:           models.EditRequestPending,
	}

	updated := recordInStatus(models.StatusPublished)
	updated.Version = 2

	mockStore := new(MockEventStore)
	mockAudit := new(MockAuditStore)
	mockStore.On("GetByEventID", mock.Anything, "evt-1").Return(record, nil)
	mockStore.On("ConditionalUpdate", mock.Anything, "evt-1",
		mock.MatchedBy(func(updates map[string]interface{}) bool {
			// Only the envelope is touched; the published fields stay.
			cleared, present := updates["pending_edit_request"]
			return len(updates) == 1 && present && cleared == nil
		}), mock.Anything,
	).Return(updated, nil)
	mockAudit.On("Record", mock.Anything, mock.Anything).Return(nil)

	service := &EventService{events: mockStore, audit: mockAudit, oracle: allCapabilities()}

	result, err := service.RejectEdit(context.Background(), "evt-1", models.Actor{ID: "reviewer-1"}, "not needed", 1)

	require.NoError(t, err)
	require.Equal(t, "Town Hall", result.Title)
	mockStore.AssertExpectations(t)
}

func TestDeleteRemovesExternalEventWithDelegatedToken(t *testing.T) {
	record := recordInStatus(models.StatusPublished)
	record.CalendarID = "cal-1"
	record.ExternalSync = &models.ExternalSync{ExternalID: "ext-1"}
	// No configured calendar owner: the record was synced on the delegated path.

	deleted := recordInStatus(models.StatusDeleted)
	deleted.Version = 2

	mockStore := new(MockEventStore)
	mockAudit := new(MockAuditStore)
	mockCalendar := new(MockCalendarClient)

	mockStore.On("GetByEventID", mock.Anything, "evt-1").Return(record, nil)
	mockStore.On("ConditionalUpdate", mock.Anything, "evt-1", mock.Anything, mock.Anything).Return(deleted, nil)
	mockAudit.On("Record", mock.Anything, mock.Anything).Return(nil)
	mockCalendar.On("DeleteEvent", mock.Anything, "owner-1@example.com", "cal-1", "ext-1").Return(nil)

	service := &EventService{events: mockStore, audit: mockAudit, calendar: mockCalendar}

	actor := models.Actor{ID: "owner-1", Email: "owner-1@example.com", DelegatedToken: "tok"}
	_, err := service.Delete(context.Background(), "evt-1", actor, "Cancelled", 1)

	require.NoError(t, err)
	mockCalendar.AssertExpectations(t)
}

func TestRetrySyncPendingCreatesNeverSyncedRecords(t *testing.T) {
	// The first push failed before any sync metadata existed; the retry must
	// go through the create path, not an update against a missing external id.
	pending := *recordInStatus(models.StatusPublished)
	pending.CalendarOwner = "venues@example.com"
	pending.CalendarID = "cal-1"
	pending.GraphSynced = false

	synced := recordInStatus(models.StatusPublished)
	synced.Version = 2

	mockStore := new(MockEventStore)
	mockCalendar := new(MockCalendarClient)
	mockStore.On("FindSyncPending", mock.Anything, 10).Return([]models.EventRecord{pending}, nil)
	mockCalendar.On("CreateEvent", mock.Anything, "venues@example.com", "cal-1", mock.Anything).
		Return(&calendar.SyncResult{ID: "ext-1", ChangeKey: "ck-1"}, nil)
	mockStore.On("ConditionalUpdate", mock.Anything, "evt-1",
		mock.MatchedBy(func(updates map[string]interface{}) bool {
			sync, ok := updates["external_sync"].(models.ExternalSync)
			return ok && sync.ExternalID == "ext-1" && updates["graph_synced"] == true
		}), mock.Anything,
	).Return(synced, nil)

	service := &EventService{events: mockStore, calendar: mockCalendar}

	err := service.RetrySyncPending(context.Background(), 10)

	require.NoError(t, err)
	mockCalendar.AssertNumberOfCalls(t, "CreateEvent", 1)
	mockCalendar.AssertNotCalled(t, "UpdateEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockStore.AssertExpectations(t)
}

func TestRetrySyncPendingSkipsDelegatedRecords(t *testing.T) {
	withOwner := *recordInStatus(models.StatusPublished)
	withOwner.CalendarOwner = "venues@example.com"
	withOwner.CalendarID = "cal-1"
	withOwner.ExternalSync = &models.ExternalSync{ExternalID: "ext-1"}
	withOwner.GraphSynced = false

	delegated := *recordInStatus(models.StatusPublished)
	delegated.EventID = "evt-2"
	delegated.ExternalSync = &models.ExternalSync{ExternalID: "ext-2"}
	delegated.GraphSynced = false

	synced := recordInStatus(models.StatusPublished)
	synced.Version = 3

	mockStore := new(MockEventStore)
	mockCalendar := new(MockCalendarClient)
	mockStore.On("FindSyncPending", mock.Anything, 10).Return([]models.EventRecord{withOwner, delegated}, nil)
	mockCalendar.On("UpdateEvent", mock.Anything, "venues@example.com", "cal-1", "ext-1", mock.Anything).
		Return(&calendar.SyncResult{ID: "ext-1", ChangeKey: "ck-2"}, nil)
	mockStore.On("ConditionalUpdate", mock.Anything, "evt-1", mock.Anything, mock.Anything).Return(synced, nil)

	service := &EventService{events: mockStore, calendar: mockCalendar}

	err := service.RetrySyncPending(context.Background(), 10)

	require.NoError(t, err)
	// The delegated-token record has no offline credentials and is skipped.
	mockCalendar.AssertNumberOfCalls(t, "UpdateEvent", 1)
	mockStore.AssertExpectations(t)
}
