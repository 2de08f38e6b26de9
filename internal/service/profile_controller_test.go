package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/staff-profile/internal/api/dto"
	"github.com/spec-kit/staff-profile/internal/auth"
	"github.com/spec-kit/staff-profile/internal/config"
	"github.com/spec-kit/staff-profile/internal/domain"
	"github.com/spec-kit/staff-profile/internal/events"
	"github.com/spec-kit/staff-profile/internal/profileapi"
	"github.com/spec-kit/staff-profile/internal/profileapi/profileapitest"
	"github.com/spec-kit/staff-profile/internal/session"
	apperrors "github.com/spec-kit/staff-profile/pkg/util/errorutil"
)

const (
	testStaffID     = "64f1c0ffee"
	testPlaceholder = "/path-to-default-pic.jpg"
)

type recordingNotifier struct {
	mu   sync.Mutex
	seen []Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, n)
	return nil
}

func (r *recordingNotifier) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.seen...)
}

type fixture struct {
	srv        *profileapitest.Server
	store      *session.MemoryStore
	notifier   *recordingNotifier
	controller *ProfileController
}

func seedPayload() dto.ProfilePayload {
	return dto.ProfilePayload{
		DisplayName: "Dana Scully",
		Email:       "dana@example.com",
		Address:     "1 Main St",
		Salary:      domain.NumericSalary("52000"),
		Image:       "https://cdn.example.com/dana.png",
		Role:        "AGENT",
		PhoneNo:     "555-0100",
		DOB:         "1990-02-01",
	}
}

func validToken(t *testing.T) string {
	t.Helper()
	token, _, err := auth.NewTokenManager("secret", 10).GenerateToken(testStaffID, "AGENT", "dana@example.com")
	require.NoError(t, err)
	return token
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	return newLoggedFixture(t, token, zap.NewNop())
}

func newLoggedFixture(t *testing.T, token string, logger *zap.Logger) *fixture {
	t.Helper()

	srv := profileapitest.NewServer(t)
	srv.AddStaff(testStaffID, seedPayload(), "old-pass")

	dispatcher := events.NewInMemoryDispatcher()
	notifier := &recordingNotifier{}
	NewNotificationService(dispatcher, notifier, logger).RegisterHandlers()

	store := session.NewMemoryStore(token)
	client := profileapi.NewClient(config.APIConfig{BaseURL: srv.URL, RequestTimeoutSeconds: 5}, nil, logger)
	controller := NewProfileController(ProfileControllerDeps{
		Sessions:         session.NewLoader(store, auth.NewDecoder(""), logger),
		API:              client,
		Dispatcher:       dispatcher,
		Logger:           logger,
		PlaceholderImage: testPlaceholder,
	})
	t.Cleanup(controller.Close)

	return &fixture{srv: srv, store: store, notifier: notifier, controller: controller}
}

func mounted(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t, validToken(t))
	require.NoError(t, f.controller.Mount(context.Background()))
	return f
}

func lastPutBody(t *testing.T, srv *profileapitest.Server) map[string]any {
	t.Helper()
	var body map[string]any
	reqs := srv.Requests()
	for i := len(reqs) - 1; i >= 0; i-- {
		if reqs[i].Method == http.MethodPut {
			require.NoError(t, json.Unmarshal(reqs[i].Body, &body))
			return body
		}
	}
	t.Fatal("no PUT request recorded")
	return nil
}

func TestProfileController_MountLoadsProfile(t *testing.T) {
	f := mounted(t)

	st := f.controller.State()
	assert.False(t, st.EditMode)
	assert.False(t, st.ChangePasswordMode)
	require.NotNil(t, st.Claims)
	assert.Equal(t, testStaffID, st.Claims.SubjectID)

	assert.Equal(t, "Dana Scully", st.Profile.DisplayName)
	assert.Equal(t, "52000", st.Profile.Salary.String())
	assert.Equal(t, testPlaceholder, st.Profile.Image)
	assert.Equal(t, 1, f.srv.Count(http.MethodGet, "/staff/profile/"+testStaffID))
	assert.Empty(t, f.notifier.all())
}

func TestProfileController_MountWithoutCredential(t *testing.T) {
	f := newFixture(t, "")

	err := f.controller.Mount(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNoCredential))

	st := f.controller.State()
	assert.Nil(t, st.Claims)
	assert.Equal(t, domain.StaffProfile{}, st.Profile)
	assert.Empty(t, f.srv.Requests())
	assert.Empty(t, f.notifier.all())
}

func TestProfileController_MountWithUndecodableToken(t *testing.T) {
	f := newFixture(t, "not.a.jwt")

	err := f.controller.Mount(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeSessionDecodeFailed))
	assert.Empty(t, f.srv.Requests())
	assert.Empty(t, f.notifier.all())
}

func TestProfileController_LoadFailureKeepsProfile(t *testing.T) {
	f := mounted(t)
	before := f.controller.State().Profile

	f.srv.Fail(http.MethodGet, "/staff/profile/", http.StatusInternalServerError, "boom")
	err := f.controller.LoadProfile(context.Background(), testStaffID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeProfileFetchFailed))

	st := f.controller.State()
	assert.Equal(t, before, st.Profile)
	assert.Equal(t, err, st.LastError)
	assert.Empty(t, f.notifier.all())
}

func TestProfileController_UpdateFieldOnlyTouchesOneField(t *testing.T) {
	f := mounted(t)
	before := f.controller.State().Profile

	require.NoError(t, f.controller.UpdateField("displayName", "Alice"))

	after := f.controller.State().Profile
	before.DisplayName = "Alice"
	assert.Equal(t, before, after)
	assert.Equal(t, 1, len(f.srv.Requests()))
}

func TestProfileController_UpdateFieldRejectsReadOnlyAndUnknown(t *testing.T) {
	f := mounted(t)

	err := f.controller.UpdateField("email", "x@example.com")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeReadOnlyField))

	err = f.controller.UpdateField("salary", "1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeReadOnlyField))

	err = f.controller.UpdateField("nickname", "dd")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnknownField))

	assert.Equal(t, "dana@example.com", f.controller.State().Profile.Email)
}

func TestProfileController_SaveSendsWholeRecord(t *testing.T) {
	f := mounted(t)

	f.controller.EnterEditMode()
	require.NoError(t, f.controller.UpdateField("displayName", "Alice"))
	require.NoError(t, f.controller.Save(context.Background()))

	body := lastPutBody(t, f.srv)
	assert.Len(t, body, 8)
	assert.Equal(t, "Alice", body["displayName"])
	assert.Equal(t, "dana@example.com", body["email"])
	assert.Equal(t, float64(52000), body["salary"])
	assert.Equal(t, testPlaceholder, body["image"])

	st := f.controller.State()
	assert.False(t, st.EditMode)
	assert.Nil(t, st.LastError)
	assert.Equal(t, []Notification{NotifyProfileSaved}, f.notifier.all())
}

func TestProfileController_SaveFailureStaysInEditMode(t *testing.T) {
	f := mounted(t)
	f.srv.Fail(http.MethodPut, "/staff/profile/", http.StatusInternalServerError, "")

	f.controller.EnterEditMode()
	require.NoError(t, f.controller.UpdateField("address", "2 Side St"))
	err := f.controller.Save(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeProfileSaveFailed))

	st := f.controller.State()
	assert.True(t, st.EditMode)
	assert.Equal(t, "2 Side St", st.Profile.Address)
	assert.Equal(t, []Notification{NotifyProfileSaveFailed}, f.notifier.all())

	f.srv.ClearFailures()
	require.NoError(t, f.controller.Save(context.Background()))
	assert.False(t, f.controller.State().EditMode)
}

func TestProfileController_SaveRequiresEditMode(t *testing.T) {
	f := mounted(t)

	err := f.controller.Save(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
	assert.Zero(t, f.srv.Count(http.MethodPut, "/"))
}

func TestProfileController_SaveWithoutSession(t *testing.T) {
	f := newFixture(t, "")
	f.controller.EnterEditMode()

	err := f.controller.Save(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNoSession))
	assert.Empty(t, f.srv.Requests())
}

func TestProfileController_CancelEditKeepsLocalEdits(t *testing.T) {
	f := mounted(t)

	f.controller.EnterEditMode()
	require.NoError(t, f.controller.UpdateField("phone_no", "555-0199"))
	f.controller.CancelEdit()

	st := f.controller.State()
	assert.False(t, st.EditMode)
	assert.Equal(t, "555-0199", st.Profile.PhoneNo)
	assert.Zero(t, f.srv.Count(http.MethodPut, "/"))
}

func TestProfileController_ModesAreIndependent(t *testing.T) {
	f := mounted(t)

	f.controller.EnterEditMode()
	f.controller.EnterPasswordChangeMode()
	st := f.controller.State()
	assert.True(t, st.EditMode)
	assert.True(t, st.ChangePasswordMode)

	f.controller.CancelPasswordChange()
	st = f.controller.State()
	assert.True(t, st.EditMode)
	assert.False(t, st.ChangePasswordMode)
}

func TestProfileController_PasswordMismatchNeverCallsAPI(t *testing.T) {
	f := mounted(t)

	f.controller.EnterPasswordChangeMode()
	require.NoError(t, f.controller.UpdatePasswordField("currentPassword", "old-pass"))
	require.NoError(t, f.controller.UpdatePasswordField("newPassword", "a"))
	require.NoError(t, f.controller.UpdatePasswordField("confirmPassword", "b"))

	err := f.controller.SavePassword(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.CodePasswordMismatch))
	assert.Zero(t, f.srv.Count(http.MethodPut, "/staff/change-password/"))
	assert.True(t, f.controller.State().ChangePasswordMode)
	assert.Equal(t, []Notification{NotifyPasswordMismatch}, f.notifier.all())
}

func TestProfileController_SavePassword(t *testing.T) {
	f := mounted(t)

	f.controller.EnterPasswordChangeMode()
	require.NoError(t, f.controller.UpdatePasswordField("currentPassword", "old-pass"))
	require.NoError(t, f.controller.UpdatePasswordField("newPassword", "new-pass"))
	require.NoError(t, f.controller.UpdatePasswordField("confirmPassword", "new-pass"))
	require.NoError(t, f.controller.SavePassword(context.Background()))

	body := lastPutBody(t, f.srv)
	assert.Equal(t, map[string]any{"currentPassword": "old-pass", "newPassword": "new-pass"}, body)
	assert.True(t, f.srv.CheckPassword(testStaffID, "new-pass"))

	st := f.controller.State()
	assert.False(t, st.ChangePasswordMode)
	assert.Equal(t, domain.PasswordChange{}, st.PasswordForm)
	assert.Equal(t, []Notification{NotifyPasswordChanged}, f.notifier.all())
}

func TestProfileController_SavePasswordWrongCurrent(t *testing.T) {
	f := mounted(t)

	f.controller.EnterPasswordChangeMode()
	require.NoError(t, f.controller.UpdatePasswordField("currentPassword", "guess"))
	require.NoError(t, f.controller.UpdatePasswordField("newPassword", "new-pass"))
	require.NoError(t, f.controller.UpdatePasswordField("confirmPassword", "new-pass"))

	err := f.controller.SavePassword(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodePasswordChangeFailed))
	assert.Equal(t, http.StatusUnauthorized, apperrors.ToDomainError(err).HTTPStatus)

	st := f.controller.State()
	assert.True(t, st.ChangePasswordMode)
	assert.Equal(t, "guess", st.PasswordForm.CurrentPassword)
	assert.Equal(t, []Notification{NotifyPasswordChangeFailed}, f.notifier.all())
	assert.True(t, f.srv.CheckPassword(testStaffID, "old-pass"))
}

func TestProfileController_CancelPasswordChangeClearsForm(t *testing.T) {
	f := mounted(t)

	f.controller.EnterPasswordChangeMode()
	require.NoError(t, f.controller.UpdatePasswordField("newPassword", "x"))
	f.controller.CancelPasswordChange()

	assert.Equal(t, domain.PasswordChange{}, f.controller.State().PasswordForm)
	assert.Error(t, f.controller.UpdatePasswordField("oldPassword", "x"))
}

func TestProfileController_SaveSendsSnapshotAtCallTime(t *testing.T) {
	f := mounted(t)
	f.controller.EnterEditMode()
	require.NoError(t, f.controller.UpdateField("displayName", "Alice"))

	f.srv.Hold()
	done := make(chan error, 1)
	go func() { done <- f.controller.Save(context.Background()) }()

	require.Eventually(t, func() bool {
		return f.srv.Count(http.MethodPut, "/staff/profile/") == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.controller.UpdateField("displayName", "Bob"))
	f.srv.Release()
	require.NoError(t, <-done)

	assert.Equal(t, "Alice", lastPutBody(t, f.srv)["displayName"])
	assert.Equal(t, "Bob", f.controller.State().Profile.DisplayName)
}

func TestProfileController_SecondSaveWhileInFlight(t *testing.T) {
	f := mounted(t)
	f.controller.EnterEditMode()

	f.srv.Hold()
	done := make(chan error, 1)
	go func() { done <- f.controller.Save(context.Background()) }()

	require.Eventually(t, func() bool {
		return f.srv.Count(http.MethodPut, "/staff/profile/") == 1
	}, 2*time.Second, 10*time.Millisecond)

	err := f.controller.Save(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeRequestInFlight))

	f.srv.Release()
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.srv.Count(http.MethodPut, "/staff/profile/"))
}

func TestProfileController_CloseDiscardsLateResults(t *testing.T) {
	f := mounted(t)
	f.controller.EnterEditMode()
	require.NoError(t, f.controller.UpdateField("displayName", "Alice"))

	f.srv.Hold()
	done := make(chan error, 1)
	go func() { done <- f.controller.Save(context.Background()) }()

	require.Eventually(t, func() bool {
		return f.srv.Count(http.MethodPut, "/staff/profile/") == 1
	}, 2*time.Second, 10*time.Millisecond)

	f.controller.Close()
	err := <-done
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnmounted))
	f.srv.Release()

	st := f.controller.State()
	assert.True(t, st.EditMode)
	assert.Nil(t, st.LastError)
	assert.Empty(t, f.notifier.all())
	assert.True(t, f.controller.Closed())

	assert.True(t, apperrors.HasCode(f.controller.Mount(context.Background()), apperrors.CodeUnmounted))
}

func TestProfileController_ToggleEditModeKeepsProfile(t *testing.T) {
	f := mounted(t)
	before := f.controller.State().Profile

	f.controller.EnterEditMode()
	assert.Equal(t, before, f.controller.State().Profile)

	f.controller.CancelEdit()
	assert.Equal(t, before, f.controller.State().Profile)

	f.controller.EnterEditMode()
	assert.Equal(t, before, f.controller.State().Profile)
	assert.True(t, f.controller.State().EditMode)
}

func TestProfileController_LostCredentialDropsSession(t *testing.T) {
	f := mounted(t)
	require.NoError(t, f.store.Clear(context.Background()))

	_, err := f.controller.LoadSession(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNoCredential))
	assert.Nil(t, f.controller.State().Claims)

	f.controller.EnterEditMode()
	err = f.controller.Save(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNoSession))

	f.controller.EnterPasswordChangeMode()
	err = f.controller.SavePassword(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNoSession))
	assert.Zero(t, f.srv.Count(http.MethodPut, "/"))
}

func TestProfileController_ReloadRefusedWhileEditing(t *testing.T) {
	f := mounted(t)
	f.controller.EnterEditMode()
	require.NoError(t, f.controller.UpdateField("displayName", "Alice"))

	err := f.controller.LoadProfile(context.Background(), testStaffID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
	assert.Equal(t, "Alice", f.controller.State().Profile.DisplayName)
	assert.Equal(t, 1, f.srv.Count(http.MethodGet, "/staff/profile/"))
}

func TestProfileController_LateReloadDoesNotClobberEdits(t *testing.T) {
	f := mounted(t)

	f.srv.Hold()
	done := make(chan error, 1)
	go func() { done <- f.controller.LoadProfile(context.Background(), testStaffID) }()

	require.Eventually(t, func() bool {
		return f.srv.Count(http.MethodGet, "/staff/profile/") == 2
	}, 2*time.Second, 10*time.Millisecond)

	f.controller.EnterEditMode()
	require.NoError(t, f.controller.UpdateField("displayName", "Alice"))
	f.srv.Release()

	err := <-done
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
	assert.Equal(t, "Alice", f.controller.State().Profile.DisplayName)
}

func TestProfileController_FailuresAreLoggedOnce(t *testing.T) {
	tests := []struct {
		name  string
		token string
		fail  bool
	}{
		{name: "undecodable token", token: "not.a.jwt"},
		{name: "profile fetch", fail: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			token := tc.token
			if token == "" {
				token = validToken(t)
			}
			f := newLoggedFixture(t, token, zap.New(core))
			if tc.fail {
				f.srv.Fail(http.MethodGet, "/staff/profile/", http.StatusInternalServerError, "boom")
			}

			require.Error(t, f.controller.Mount(context.Background()))
			assert.Equal(t, 1, logs.Len())
		})
	}
}
