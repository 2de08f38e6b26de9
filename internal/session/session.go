package session

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/staff-profile/internal/domain"
	apperrors "github.com/spec-kit/staff-profile/pkg/util/errorutil"
)

// Session is the decoded credential handed to the profile controller.
type Session struct {
	Token  string
	Claims domain.SessionClaims
}

// TokenDecoder turns a bearer token into claims.
type TokenDecoder interface {
	Decode(token string) (*domain.SessionClaims, error)
}

// Loader reads the stored credential and decodes it.
type Loader struct {
	store   CredentialStore
	decoder TokenDecoder
	logger  *zap.Logger
}

// NewLoader wires a loader.
func NewLoader(store CredentialStore, decoder TokenDecoder, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{store: store, decoder: decoder, logger: logger}
}

// Load returns the current session. A missing token yields NO_CREDENTIAL and a
// token that cannot be decoded yields SESSION_DECODE_FAILED.
func (l *Loader) Load(ctx context.Context) (*Session, error) {
	token, err := l.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoCredential) {
			return nil, apperrors.Wrap(apperrors.CodeNoCredential, "no stored credential", err)
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "read stored credential", err)
	}

	claims, err := l.decoder.Decode(token)
	if err != nil {
		l.logger.Debug("failed to decode token", zap.Error(err))
		return nil, apperrors.Wrap(apperrors.CodeSessionDecodeFailed, "failed to decode token", err)
	}

	l.logger.Debug("session loaded", zap.String("subject_id", claims.SubjectID))
	return &Session{Token: token, Claims: *claims}, nil
}
