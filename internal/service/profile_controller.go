package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/staff-profile/internal/domain"
	"github.com/spec-kit/staff-profile/internal/events"
	"github.com/spec-kit/staff-profile/internal/session"
	apperrors "github.com/spec-kit/staff-profile/pkg/util/errorutil"
)

// ProfileAPI is the remote side of the profile view.
type ProfileAPI interface {
	GetProfile(ctx context.Context, token, staffID string) (domain.StaffProfile, error)
	UpdateProfile(ctx context.Context, token, staffID string, profile domain.StaffProfile) error
	ChangePassword(ctx context.Context, token, staffID, currentPassword, newPassword string) error
}

// SessionLoader yields the current session.
type SessionLoader interface {
	Load(ctx context.Context) (*session.Session, error)
}

// ProfileState is a snapshot of the controller.
type ProfileState struct {
	EditMode           bool
	ChangePasswordMode bool
	Profile            domain.StaffProfile
	PasswordForm       domain.PasswordChange
	Claims             *domain.SessionClaims
	LastError          error
}

// ProfileControllerDeps bundles the controller's collaborators.
type ProfileControllerDeps struct {
	Sessions         SessionLoader
	API              ProfileAPI
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
	PlaceholderImage string
}

// ProfileController holds the view state of the staff member's own profile:
// the loaded record, the edit-mode flag and the independent password-change
// flag. It is safe for concurrent use. Network calls run without holding the
// lock, and their results are dropped once Close has been called.
type ProfileController struct {
	sessions    SessionLoader
	api         ProfileAPI
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	placeholder string

	live   context.Context
	cancel context.CancelFunc

	mu               sync.Mutex
	state            ProfileState
	session          *session.Session
	saving           bool
	changingPassword bool
}

// NewProfileController constructs a live controller.
func NewProfileController(deps ProfileControllerDeps) *ProfileController {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	live, cancel := context.WithCancel(context.Background())
	return &ProfileController{
		sessions:    deps.Sessions,
		api:         deps.API,
		dispatcher:  deps.Dispatcher,
		logger:      logger.With(zap.String("view_id", uuid.NewString())),
		placeholder: deps.PlaceholderImage,
		live:        live,
		cancel:      cancel,
	}
}

// State returns a copy of the current state.
func (c *ProfileController) State() ProfileState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state
	if c.state.Claims != nil {
		claims := *c.state.Claims
		st.Claims = &claims
	}
	return st
}

// Close ends the controller's lifetime. Requests still in flight are cancelled
// and their results discarded.
func (c *ProfileController) Close() {
	c.cancel()
}

// Closed reports whether Close has been called.
func (c *ProfileController) Closed() bool {
	return c.live.Err() != nil
}

// Mount loads the session and then fetches the profile of its subject.
func (c *ProfileController) Mount(ctx context.Context) error {
	claims, err := c.LoadSession(ctx)
	if err != nil {
		return err
	}
	return c.LoadProfile(ctx, claims.SubjectID)
}

// LoadSession reads and decodes the stored credential. On failure any earlier
// session is dropped, so later saves fail with NO_SESSION.
func (c *ProfileController) LoadSession(ctx context.Context) (*domain.SessionClaims, error) {
	if c.Closed() {
		return nil, apperrors.NewUnmounted()
	}

	sess, err := c.sessions.Load(ctx)

	c.mu.Lock()
	if c.Closed() {
		c.mu.Unlock()
		return nil, apperrors.NewUnmounted()
	}
	if err != nil {
		c.session = nil
		c.state.Claims = nil
		c.state.LastError = err
		c.mu.Unlock()

		if !apperrors.HasCode(err, apperrors.CodeNoCredential) {
			c.publish(ctx, events.Event{Type: events.EventSessionDecodeFailed, Err: err, Payload: failurePayload(err)})
		}
		return nil, err
	}

	c.session = sess
	claims := sess.Claims
	c.state.Claims = &claims
	c.state.LastError = nil
	c.mu.Unlock()

	out := claims
	return &out, nil
}

// LoadProfile fetches the profile and replaces every field of the local record.
// The avatar is always the configured placeholder. It is refused in edit mode,
// and a result that arrives after edit mode was entered is dropped.
func (c *ProfileController) LoadProfile(ctx context.Context, subjectID string) error {
	if c.Closed() {
		return apperrors.NewUnmounted()
	}
	c.mu.Lock()
	if c.state.EditMode {
		c.mu.Unlock()
		return errEditInProgress()
	}
	token := ""
	if c.session != nil {
		token = c.session.Token
	}
	c.mu.Unlock()

	callCtx, done := c.bind(ctx)
	profile, err := c.api.GetProfile(callCtx, token, subjectID)
	done()

	c.mu.Lock()
	if c.Closed() {
		c.mu.Unlock()
		return apperrors.NewUnmounted()
	}
	if err != nil {
		wrapped := apperrors.Wrap(apperrors.CodeProfileFetchFailed, "Error fetching profile data", err)
		c.state.LastError = wrapped
		c.mu.Unlock()

		c.publish(ctx, events.Event{Type: events.EventProfileLoadFailed, SubjectID: subjectID, Err: wrapped, Payload: failurePayload(err)})
		return wrapped
	}
	if c.state.EditMode {
		c.mu.Unlock()
		c.logger.Debug("profile reload dropped, edit in progress", zap.String("subject_id", subjectID))
		return errEditInProgress()
	}

	profile.Image = c.placeholder
	c.state.Profile = profile
	c.state.LastError = nil
	c.mu.Unlock()

	c.publish(ctx, events.Event{Type: events.EventProfileLoaded, SubjectID: subjectID, Payload: events.ProfilePayload{Profile: profile}})
	return nil
}

// EnterEditMode switches to the editable view.
func (c *ProfileController) EnterEditMode() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.EditMode = true
}

// CancelEdit returns to the read-only view without saving. Local edits are kept.
func (c *ProfileController) CancelEdit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.EditMode = false
}

// UpdateField merges one field into the local record. Values are not validated;
// read-only fields are refused.
func (c *ProfileController) UpdateField(name, value string) error {
	field, ok := domain.ParseProfileField(name)
	if !ok {
		return apperrors.NewValidationError(apperrors.CodeUnknownField, "unknown profile field "+name,
			map[string]any{"field": name})
	}
	if field.ReadOnly() {
		return apperrors.NewValidationError(apperrors.CodeReadOnlyField, field.Label()+" cannot be changed",
			map[string]any{"field": name})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Profile.Set(field, value)
	return nil
}

// Save sends the whole record as it is at call time. On success the view
// leaves edit mode; on failure it stays in edit mode with every edit intact.
func (c *ProfileController) Save(ctx context.Context) error {
	c.mu.Lock()
	if c.Closed() {
		c.mu.Unlock()
		return apperrors.NewUnmounted()
	}
	if c.session == nil {
		c.mu.Unlock()
		return apperrors.NewNoSession()
	}
	if !c.state.EditMode {
		c.mu.Unlock()
		return apperrors.NewValidationError(apperrors.CodeValidationFailed, "profile is not in edit mode", nil)
	}
	if c.saving {
		c.mu.Unlock()
		return apperrors.NewRequestInFlight("profile save")
	}
	c.saving = true
	snapshot := c.state.Profile
	token, subjectID := c.session.Token, c.session.Claims.SubjectID
	c.mu.Unlock()

	callCtx, done := c.bind(ctx)
	err := c.api.UpdateProfile(callCtx, token, subjectID, snapshot)
	done()

	c.mu.Lock()
	c.saving = false
	if c.Closed() {
		c.mu.Unlock()
		return apperrors.NewUnmounted()
	}
	if err != nil {
		wrapped := apperrors.Wrap(apperrors.CodeProfileSaveFailed, NotifyProfileSaveFailed.Message, err)
		c.state.LastError = wrapped
		c.mu.Unlock()

		c.publish(ctx, events.Event{Type: events.EventProfileSaveFailed, SubjectID: subjectID, Err: wrapped, Payload: failurePayload(err)})
		return wrapped
	}

	c.state.EditMode = false
	c.state.LastError = nil
	c.mu.Unlock()

	c.publish(ctx, events.Event{Type: events.EventProfileSaved, SubjectID: subjectID, Payload: events.ProfilePayload{Profile: snapshot}})
	return nil
}

// EnterPasswordChangeMode opens the password form.
func (c *ProfileController) EnterPasswordChangeMode() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.ChangePasswordMode = true
}

// CancelPasswordChange closes the password form and discards its values.
func (c *ProfileController) CancelPasswordChange() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.ChangePasswordMode = false
	c.state.PasswordForm = domain.PasswordChange{}
}

// UpdatePasswordField merges one value into the password form.
func (c *ProfileController) UpdatePasswordField(name, value string) error {
	field, ok := domain.ParsePasswordField(name)
	if !ok {
		return apperrors.NewValidationError(apperrors.CodeUnknownField, "unknown password field "+name,
			map[string]any{"field": name})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.PasswordForm.Set(field, value)
	return nil
}

// SavePassword checks the confirmation locally and then sends the current and
// new password. A mismatch never reaches the network.
func (c *ProfileController) SavePassword(ctx context.Context) error {
	c.mu.Lock()
	if c.Closed() {
		c.mu.Unlock()
		return apperrors.NewUnmounted()
	}
	if c.session == nil {
		c.mu.Unlock()
		return apperrors.NewNoSession()
	}
	if !c.state.ChangePasswordMode {
		c.mu.Unlock()
		return apperrors.NewValidationError(apperrors.CodeValidationFailed, "password change is not open", nil)
	}
	if c.changingPassword {
		c.mu.Unlock()
		return apperrors.NewRequestInFlight("password change")
	}
	form := c.state.PasswordForm
	subjectID := c.session.Claims.SubjectID
	if !form.Confirmed() {
		err := apperrors.NewValidationError(apperrors.CodePasswordMismatch, NotifyPasswordMismatch.Message, nil)
		c.state.LastError = err
		c.mu.Unlock()

		c.publish(ctx, events.Event{Type: events.EventPasswordMismatch, SubjectID: subjectID, Err: err})
		return err
	}
	c.changingPassword = true
	token := c.session.Token
	c.mu.Unlock()

	callCtx, done := c.bind(ctx)
	err := c.api.ChangePassword(callCtx, token, subjectID, form.CurrentPassword, form.NewPassword)
	done()

	c.mu.Lock()
	c.changingPassword = false
	if c.Closed() {
		c.mu.Unlock()
		return apperrors.NewUnmounted()
	}
	if err != nil {
		wrapped := apperrors.Wrap(apperrors.CodePasswordChangeFailed, NotifyPasswordChangeFailed.Message, err)
		c.state.LastError = wrapped
		c.mu.Unlock()

		c.publish(ctx, events.Event{Type: events.EventPasswordChangeFailed, SubjectID: subjectID, Err: wrapped, Payload: failurePayload(err)})
		return wrapped
	}

	c.state.ChangePasswordMode = false
	c.state.PasswordForm = domain.PasswordChange{}
	c.state.LastError = nil
	c.mu.Unlock()

	c.publish(ctx, events.Event{Type: events.EventPasswordChanged, SubjectID: subjectID})
	return nil
}

// bind derives a request context that is also cancelled by Close.
func (c *ProfileController) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	callCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.live, cancel)
	return callCtx, func() {
		stop()
		cancel()
	}
}

func (c *ProfileController) publish(ctx context.Context, event events.Event) {
	if c.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = time.Now().UTC()
	if err := c.dispatcher.Publish(context.WithoutCancel(ctx), event); err != nil {
		c.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func errEditInProgress() error {
	return apperrors.NewValidationError(apperrors.CodeValidationFailed, "profile is being edited", nil)
}

func failurePayload(err error) events.FailurePayload {
	domainErr := apperrors.ToDomainError(err)
	return events.FailurePayload{
		Code:    domainErr.Code,
		Message: domainErr.Message,
		Status:  domainErr.HTTPStatus,
	}
}
