package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/staymarket/internal/config"
	"github.com/iliyamo/staymarket/internal/feed"
	"github.com/iliyamo/staymarket/internal/model"
	"github.com/iliyamo/staymarket/internal/queue"
	"github.com/iliyamo/staymarket/internal/utils"
)

const (
	verifyEmailTTL   = 24 * time.Hour
	passwordResetTTL = time.Hour
)

// AccountService is the identity provider: sign-up, sign-in, token
// exchange, session revocation and the self-service account operations.
type AccountService struct {
	cfg      config.Config
	accounts AccountStore
	profiles ProfileStore
	refresh  RefreshStore
	verify   VerificationStore
	mailer   Mailer
	roles    RoleResolver
	emit     emitter
	log      logrus.FieldLogger
	now      Clock
}

// AccountDeps groups the collaborators of AccountService.
type AccountDeps struct {
	Accounts AccountStore
	Profiles ProfileStore
	Refresh  RefreshStore
	Verify   VerificationStore
	Mailer   Mailer
	Roles    RoleResolver
	Notifier Notifier
	Events   EventPublisher
	Log      logrus.FieldLogger
	Clock    Clock
}

func NewAccountService(cfg config.Config, d AccountDeps) *AccountService {
	if d.Clock == nil {
		d.Clock = systemClock
	}
	if d.Roles == nil {
		d.Roles = NewResolver(d.Profiles, d.Log)
	}
	return &AccountService{
		cfg:      cfg,
		accounts: d.Accounts,
		profiles: d.Profiles,
		refresh:  d.Refresh,
		verify:   d.Verify,
		mailer:   d.Mailer,
		roles:    d.Roles,
		emit:     emitter{notifier: d.Notifier, events: d.Events, log: d.Log},
		log:      d.Log,
		now:      d.Clock,
	}
}

// AuthResult is returned by every operation that issues a token pair.
type AuthResult struct {
	User    *model.User
	Role    model.Role
	Access  utils.AccessToken
	Refresh utils.RefreshToken
}

// revocationTime is truncated to the precision of the stored watermark so
// the value compared on verification is the value written.
func (s *AccountService) revocationTime() time.Time {
	return s.now().UTC().Truncate(watermarkPrecision)
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", invalid("email", "required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalid("email", "malformed address")
	}
	return email, nil
}

// Register creates the identity record and the profile document in one
// transaction, then signs the user in and mails a verification link.
func (s *AccountService) Register(ctx context.Context, rawEmail, password string) (*AuthResult, error) {
	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	if err := utils.CheckPassword(password); err != nil {
		return nil, invalid("password", err.Error())
	}
	hash, err := utils.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	now := s.revocationTime()
	acc := &model.Account{
		ID:               uuid.NewString(),
		Email:            email,
		PasswordHash:     hash,
		TokensValidAfter: now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	profile := &model.User{ID: acc.ID, Email: email, CreatedAt: now, UpdatedAt: now}
	if err := s.accounts.Create(ctx, acc, profile); err != nil {
		return nil, translate(err)
	}
	s.log.WithField("uid", acc.ID).Info("account registered")
	s.emit.upsert(ctx, feed.Users, profile.ID, profile)
	s.emit.event(ctx, queue.Event{Type: queue.TypeUserRegistered, SubjectID: acc.ID, OccurredAt: now})

	if err := s.sendToken(ctx, acc, model.PurposeVerifyEmail); err != nil {
		s.log.WithError(err).WithField("uid", acc.ID).Warn("verification mail not sent")
	}
	return s.issue(ctx, acc, profile)
}

// Login checks credentials and issues a fresh token pair.
func (s *AccountService) Login(ctx context.Context, rawEmail, password string) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(rawEmail))
	if email == "" || password == "" {
		return nil, invalid("email", "email and password required")
	}
	acc, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, translate(err)
	}
	if !utils.VerifyPassword(acc.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	profile, err := s.profiles.GetByID(ctx, acc.ID)
	if err != nil {
		return nil, translate(err)
	}
	return s.issue(ctx, acc, profile)
}

// Refresh validates a refresh token, revokes it and issues a new pair.
func (s *AccountService) Refresh(ctx context.Context, raw string) (*AuthResult, error) {
	acc, err := s.accountForRefresh(ctx, raw)
	if err != nil {
		return nil, err
	}
	if err := s.refresh.RevokeByHash(ctx, utils.HashToken(raw)); err != nil {
		return nil, translate(err)
	}
	profile, err := s.profiles.GetByID(ctx, acc.ID)
	if err != nil {
		return nil, translate(err)
	}
	return s.issue(ctx, acc, profile)
}

// RefreshAccess returns a new access token without rotating the refresh
// token.
func (s *AccountService) RefreshAccess(ctx context.Context, raw string) (utils.AccessToken, error) {
	acc, err := s.accountForRefresh(ctx, raw)
	if err != nil {
		return utils.AccessToken{}, err
	}
	return utils.NewAccessToken(s.cfg.JWTSecret, acc, s.cfg.AccessTTLMin, s.now())
}

func (s *AccountService) accountForRefresh(ctx context.Context, raw string) (*model.Account, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, invalid("refresh_token", "required")
	}
	id, err := s.refresh.ValidateRefresh(ctx, utils.HashToken(raw))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrAuthenticationRequired
		}
		return nil, translate(err)
	}
	acc, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrAuthenticationRequired
		}
		return nil, translate(err)
	}
	return acc, nil
}

// Logout revokes one refresh token when raw is given. Otherwise it revokes
// every session of the authenticated caller, access tokens included.
func (s *AccountService) Logout(ctx context.Context, actor Actor, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		hash := utils.HashToken(raw)
		if _, err := s.refresh.ValidateRefresh(ctx, hash); err != nil {
			if isNotFound(err) {
				return ErrAuthenticationRequired
			}
			return translate(err)
		}
		return translate(s.refresh.RevokeByHash(ctx, hash))
	}
	if err := requireAuth(actor); err != nil {
		return err
	}
	return translate(s.accounts.RevokeSessions(ctx, actor.ID(), s.revocationTime()))
}

// VerifyToken checks a bearer token and rejects sessions issued at or
// before the account's revocation watermark. Deleted accounts have no
// watermark and are rejected too.
func (s *AccountService) VerifyToken(ctx context.Context, raw string) (*model.Session, error) {
	sess, err := utils.ParseAccessToken(s.cfg.JWTSecret, raw, s.now())
	if err != nil {
		return nil, ErrAuthenticationRequired
	}
	if err := s.checkWatermark(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Reauthorize re-checks a session that was verified earlier, for callers
// holding it open such as live subscriptions. The token must still be
// unexpired and unrevoked, and when roles are given the freshly resolved
// role must be one of them.
func (s *AccountService) Reauthorize(ctx context.Context, sess *model.Session, roles ...model.Role) error {
	if sess == nil || sess.UserID == "" {
		return ErrAuthenticationRequired
	}
	if !sess.ExpiresAt.IsZero() && !s.now().Before(sess.ExpiresAt) {
		return ErrAuthenticationRequired
	}
	if err := s.checkWatermark(ctx, sess); err != nil {
		return err
	}
	if len(roles) == 0 {
		return nil
	}
	return requireRole(Actor{Session: sess, Role: s.roles.ResolveRole(ctx, sess)}, roles...)
}

func (s *AccountService) checkWatermark(ctx context.Context, sess *model.Session) error {
	after, err := s.accounts.ValidAfter(ctx, sess.UserID)
	if err != nil {
		if isNotFound(err) {
			return ErrAuthenticationRequired
		}
		return translate(err)
	}
	if !sess.IssuedAt.Truncate(watermarkPrecision).After(after.Truncate(watermarkPrecision)) {
		return ErrAuthenticationRequired
	}
	return nil
}

// Profile returns the caller's profile document.
func (s *AccountService) Profile(ctx context.Context, actor Actor) (*model.User, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	u, err := s.profiles.GetByID(ctx, actor.ID())
	return u, translate(err)
}

// VerifyEmail consumes a mailed verification token.
func (s *AccountService) VerifyEmail(ctx context.Context, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return invalid("token", "required")
	}
	now := s.now()
	id, err := s.verify.Consume(ctx, utils.HashToken(strings.TrimSpace(raw)), model.PurposeVerifyEmail, now)
	if err != nil {
		if isNotFound(err) {
			return invalid("token", "invalid or expired")
		}
		return translate(err)
	}
	if err := s.accounts.MarkEmailVerified(ctx, id, now); err != nil {
		return translate(err)
	}
	if u, err := s.profiles.GetByID(ctx, id); err == nil {
		s.emit.upsert(ctx, feed.Users, u.ID, u)
	}
	return nil
}

// ResendVerification mails a new verification link to the caller.
func (s *AccountService) ResendVerification(ctx context.Context, actor Actor) error {
	if err := requireAuth(actor); err != nil {
		return err
	}
	acc, err := s.accounts.GetByID(ctx, actor.ID())
	if err != nil {
		return translate(err)
	}
	if acc.EmailVerified {
		return fmt.Errorf("%w: email already verified", ErrConflict)
	}
	return s.sendToken(ctx, acc, model.PurposeVerifyEmail)
}

// RequestPasswordReset mails a reset link. Unknown addresses succeed
// silently so the endpoint cannot be used to probe for accounts.
func (s *AccountService) RequestPasswordReset(ctx context.Context, rawEmail string) error {
	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return err
	}
	acc, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return translate(err)
	}
	return s.sendToken(ctx, acc, model.PurposeResetPassword)
}

// ConfirmPasswordReset consumes a reset token, sets the new password and
// revokes every existing session.
func (s *AccountService) ConfirmPasswordReset(ctx context.Context, raw, password string) error {
	if err := utils.CheckPassword(password); err != nil {
		return invalid("password", err.Error())
	}
	id, err := s.verify.Consume(ctx, utils.HashToken(strings.TrimSpace(raw)), model.PurposeResetPassword, s.now())
	if err != nil {
		if isNotFound(err) {
			return invalid("token", "invalid or expired")
		}
		return translate(err)
	}
	hash, err := utils.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	return translate(s.accounts.UpdatePassword(ctx, id, hash, s.revocationTime()))
}

// ChangeEmail re-verifies the current password before switching address.
func (s *AccountService) ChangeEmail(ctx context.Context, actor Actor, currentPassword, newEmail string) (*model.User, error) {
	acc, err := s.reauthenticate(ctx, actor, currentPassword)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(newEmail)
	if err != nil {
		return nil, err
	}
	if email == acc.Email {
		return nil, invalid("email", "unchanged")
	}
	if err := s.accounts.UpdateEmail(ctx, acc.ID, email, s.now()); err != nil {
		return nil, translate(err)
	}
	acc.Email, acc.EmailVerified = email, false
	if err := s.sendToken(ctx, acc, model.PurposeVerifyEmail); err != nil {
		s.log.WithError(err).WithField("uid", acc.ID).Warn("verification mail not sent")
	}
	u, err := s.profiles.GetByID(ctx, acc.ID)
	if err != nil {
		return nil, translate(err)
	}
	s.emit.upsert(ctx, feed.Users, u.ID, u)
	return u, nil
}

// ChangePassword re-verifies the current password, stores the new one and
// revokes all other sessions. A fresh token pair for the caller is returned.
func (s *AccountService) ChangePassword(ctx context.Context, actor Actor, currentPassword, newPassword string) (*AuthResult, error) {
	acc, err := s.reauthenticate(ctx, actor, currentPassword)
	if err != nil {
		return nil, err
	}
	if err := utils.CheckPassword(newPassword); err != nil {
		return nil, invalid("password", err.Error())
	}
	hash, err := utils.HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	at := s.revocationTime()
	if err := s.accounts.UpdatePassword(ctx, acc.ID, hash, at); err != nil {
		return nil, translate(err)
	}
	acc.TokensValidAfter = at
	profile, err := s.profiles.GetByID(ctx, acc.ID)
	if err != nil {
		return nil, translate(err)
	}
	return s.issue(ctx, acc, profile)
}

// DeleteSelf re-verifies the current password and removes the caller's
// identity record, profile, appeal and tokens atomically.
func (s *AccountService) DeleteSelf(ctx context.Context, actor Actor, currentPassword string) error {
	acc, err := s.reauthenticate(ctx, actor, currentPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.DeleteCascade(ctx, acc.ID); err != nil {
		return translate(err)
	}
	s.log.WithField("uid", acc.ID).Info("account deleted by owner")
	s.emit.remove(ctx, feed.Users, acc.ID)
	s.emit.remove(ctx, feed.Appeals, acc.ID)
	s.emit.event(ctx, queue.Event{Type: queue.TypeUserDeleted, ActorID: acc.ID, SubjectID: acc.ID, OccurredAt: s.now()})
	return nil
}

func (s *AccountService) reauthenticate(ctx context.Context, actor Actor, password string) (*model.Account, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	acc, err := s.accounts.GetByID(ctx, actor.ID())
	if err != nil {
		return nil, translate(err)
	}
	if password == "" || !utils.VerifyPassword(acc.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return acc, nil
}

// issue signs an access token, stores a new refresh token and resolves the
// role of the resulting session. The token is stamped after the account's
// watermark even when the clock has not moved past it yet, so a session
// issued by the operation that revoked the others stays valid.
func (s *AccountService) issue(ctx context.Context, acc *model.Account, profile *model.User) (*AuthResult, error) {
	now := s.now().UTC().Truncate(watermarkPrecision)
	if !now.After(acc.TokensValidAfter) {
		now = acc.TokensValidAfter.Truncate(watermarkPrecision).Add(watermarkPrecision)
	}
	access, err := utils.NewAccessToken(s.cfg.JWTSecret, acc, s.cfg.AccessTTLMin, now)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := utils.NewRefreshToken(s.cfg.RefreshTTLDays)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	if err := s.refresh.StoreRefresh(ctx, acc.ID, utils.HashToken(refresh.Raw), refresh.Exp); err != nil {
		return nil, translate(err)
	}
	sess := &model.Session{UserID: acc.ID, Email: acc.Email, Admin: acc.IsAdmin(), IssuedAt: now, ExpiresAt: access.Exp}
	return &AuthResult{User: profile, Role: s.roles.ResolveRole(ctx, sess), Access: access, Refresh: refresh}, nil
}

func (s *AccountService) sendToken(ctx context.Context, acc *model.Account, purpose model.TokenPurpose) error {
	raw, err := utils.RandomHex(32)
	if err != nil {
		return err
	}
	ttl, subject, path := verifyEmailTTL, "Verify your email", "/verify-email"
	if purpose == model.PurposeResetPassword {
		ttl, subject, path = passwordResetTTL, "Reset your password", "/reset-password"
	}
	if err := s.verify.Store(ctx, utils.HashToken(raw), acc.ID, purpose, s.now().Add(ttl)); err != nil {
		return translate(err)
	}
	if s.mailer == nil {
		return errors.New("no mailer configured")
	}
	link := strings.TrimRight(s.cfg.PublicURL, "/") + path + "?token=" + raw
	body := fmt.Sprintf("Hello,\n\nFollow this link within %s:\n%s\n\nIf you did not ask for this, ignore this message.\n", ttl, link)
	return s.mailer.Send(ctx, acc.Email, subject, body)
}
