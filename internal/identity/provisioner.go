package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Account is a provisioned, verified throwaway account.
type Account struct {
	Email    string
	Password string
	Session  *Session
	Mailbox  *Mailbox
}

// Provisioner creates and destroys throwaway accounts.
type Provisioner struct {
	client     *Client
	mailURL    string
	logger     *zap.Logger
	newMailbox func(user string) *Mailbox
}

// NewProvisioner creates a provisioner for one identity environment.
func NewProvisioner(ep Endpoints, logger *zap.Logger) *Provisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Provisioner{
		client:  NewClient(ep.AuthURL),
		mailURL: ep.MailURL,
		logger:  logger,
	}
	p.newMailbox = func(user string) *Mailbox { return NewMailbox(p.mailURL, user) }
	return p
}

// Provision creates an account on a fresh mailbox and confirms it with
// the code mailed to it. A partially created account is destroyed before
// the error is returned.
func (p *Provisioner) Provision(ctx context.Context) (*Account, error) {
	password, err := randomPassword()
	if err != nil {
		return nil, err
	}
	mailbox := p.newMailbox("marketplace-" + uuid.NewString())
	acct := &Account{
		Email:    mailbox.Address(),
		Password: password,
		Mailbox:  mailbox,
	}
	logger := p.logger.With(zap.String("email", acct.Email))

	session, err := p.client.CreateAccount(ctx, acct.Email, acct.Password)
	if err != nil {
		return nil, err
	}
	acct.Session = session
	logger.Debug("identity account created", zap.String("uid", session.UID))

	msg, err := mailbox.WaitForEmail(ctx, HasVerifyCode)
	if err == nil {
		err = session.VerifyEmailCode(ctx, msg.Header(VerifyCodeHeader))
	}
	if err != nil {
		if cleanupErr := p.Destroy(context.WithoutCancel(ctx), acct); cleanupErr != nil {
			logger.Warn("failed to remove unverified account", zap.Error(cleanupErr))
		}
		return nil, fmt.Errorf("confirm account %s: %w", acct.Email, err)
	}

	logger.Info("identity account verified")
	return acct, nil
}

// Destroy clears the account's mailbox and removes the account. Both steps
// are attempted.
func (p *Provisioner) Destroy(ctx context.Context, acct *Account) error {
	if acct == nil {
		return nil
	}
	var errs []error
	if acct.Mailbox != nil {
		if err := acct.Mailbox.Clear(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.client.DestroyAccount(ctx, acct.Email, acct.Password); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func randomPassword() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return hex.EncodeToString(b), nil
}
