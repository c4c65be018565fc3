// Package issuance implements the create-user pipeline: validate the
// username, check the certificate store, mint the certificate and assemble
// the client config.
package issuance

import (
	"context"
	"errors"
	"fmt"

	"github.com/adamscao/ovpnbot/internal/audit"
	"github.com/adamscao/ovpnbot/internal/ca"
	"github.com/adamscao/ovpnbot/internal/logging"
	"github.com/adamscao/ovpnbot/internal/models"
	"github.com/adamscao/ovpnbot/internal/policy"
	"github.com/adamscao/ovpnbot/pkg/certutil"
)

// CertificateAuthority mints client certificates
type CertificateAuthority interface {
	Available() bool
	Exists(username string) (bool, error)
	IssueCertificate(ctx context.Context, username string) error
	CertificateInfo(username string) (*certutil.Summary, error)
}

// ConfigAssembler produces the distributable client config
type ConfigAssembler interface {
	Assemble(ctx context.Context, username string) (string, error)
}

// IssuanceStore keeps a record of every minted certificate
type IssuanceStore interface {
	Create(ctx context.Context, rec *models.Issuance) error
}

// IssuedConfig is the result of a successful CreateUser
type IssuedConfig struct {
	Username string `json:"username"`
	Path     string `json:"config_path"`
	Message  string `json:"message"`
}

// Coordinator runs the create-user pipeline.
// It takes no locks: two concurrent calls for the same new username can both
// pass the uniqueness check, and the CA tool then rejects the second one.
type Coordinator struct {
	ca        CertificateAuthority
	assembler ConfigAssembler
	store     IssuanceStore
	trail     *audit.Trail
	logger    logging.Logger
}

// NewCoordinator creates a new coordinator. store may be nil.
func NewCoordinator(authority CertificateAuthority, assembler ConfigAssembler, store IssuanceStore, trail *audit.Trail, logger logging.Logger) *Coordinator {
	return &Coordinator{
		ca:        authority,
		assembler: assembler,
		store:     store,
		trail:     trail,
		logger:    logger.With("component", "issuance"),
	}
}

// CreateUser issues a certificate for username and assembles its config.
// Every failure is an *Error. There is no rollback: an assembly failure after
// a successful issuance is returned with Partial set. Cancelling ctx does
// not interrupt issuance or assembly.
func (c *Coordinator) CreateUser(ctx context.Context, username string) (*IssuedConfig, error) {
	if err := policy.ValidateUsername(username); err != nil {
		e := &Error{Kind: KindInvalidUsername, Username: username, Stage: StageValidation, Detail: err.Error(), Err: err}
		c.fail(ctx, e)
		return nil, e
	}

	if !c.ca.Available() {
		e := &Error{Kind: KindCANotAvailable, Username: username, Stage: StagePrerequisite, Err: ca.ErrNotAvailable}
		c.fail(ctx, e)
		return nil, e
	}

	exists, err := c.ca.Exists(username)
	if err != nil {
		e := &Error{Kind: KindCertificateIssuanceFailed, Username: username, Stage: StageUniqueness, Detail: err.Error(), Err: err}
		c.fail(ctx, e)
		return nil, e
	}
	if exists {
		e := &Error{Kind: KindUserAlreadyExists, Username: username, Stage: StageUniqueness}
		c.fail(ctx, e)
		return nil, e
	}

	// a cancelled call must not leave a certificate without a config;
	// the CA timeout still applies
	ctx = context.WithoutCancel(ctx)

	c.logger.Info(ctx, "issuing certificate", "username", username)

	if err := c.ca.IssueCertificate(ctx, username); err != nil {
		e := &Error{
			Kind:     KindCertificateIssuanceFailed,
			Username: username,
			Stage:    StageCertificate,
			Detail:   diagnostic(err),
			Err:      err,
		}
		if errors.Is(err, ca.ErrPermissionFixup) {
			e.Stage = StagePermissions
		}
		c.fail(ctx, e)
		return nil, e
	}

	path, err := c.assembler.Assemble(ctx, username)
	if err != nil {
		e := &Error{
			Kind:     KindConfigAssemblyFailed,
			Username: username,
			Stage:    StageAssembly,
			Partial:  true,
			Detail:   err.Error(),
			Err:      err,
		}
		c.fail(ctx, e)
		c.recordIssuance(ctx, username, "", true)
		return nil, e
	}

	c.logger.Info(ctx, "user created", "username", username, "path", path)
	c.trail.Record(ctx, &models.AuditLog{
		Action:   models.ActionUserCreate,
		Username: username,
		Success:  true,
		Details:  fmt.Sprintf(`{"config_path":%q}`, path),
	})
	c.recordIssuance(ctx, username, path, false)

	return &IssuedConfig{
		Username: username,
		Path:     path,
		Message:  fmt.Sprintf("user %s created", username),
	}, nil
}

// fail logs and audits a failed attempt. Rejected usernames are only logged
// so that invalid input leaves no trace on disk.
func (c *Coordinator) fail(ctx context.Context, e *Error) {
	if e.Kind == KindInvalidUsername {
		c.logger.Warn(ctx, "rejected username", "username", e.Username)
		return
	}

	action := models.ActionUserCreate
	if e.Partial {
		action = models.ActionUserCreatePartial
		c.logger.Error(ctx, "partial issuance: certificate exists without config",
			"username", e.Username, "stage", e.Stage, "error", e.Detail)
	} else {
		c.logger.Warn(ctx, "user creation failed",
			"username", e.Username, "kind", string(e.Kind), "stage", e.Stage, "error", e.Detail)
	}

	c.trail.Record(ctx, &models.AuditLog{
		Action:   action,
		Username: e.Username,
		Success:  false,
		Stage:    e.Stage,
		ErrorMsg: e.Error(),
	})
}

// recordIssuance stores the minted certificate's metadata. Failures are logged.
func (c *Coordinator) recordIssuance(ctx context.Context, username, path string, partial bool) {
	if c.store == nil {
		return
	}

	rec := &models.Issuance{Username: username, ConfigPath: path, Partial: partial}

	info, err := c.ca.CertificateInfo(username)
	if err != nil {
		c.logger.Warn(ctx, "failed to read issued certificate", "username", username, "error", err)
	} else {
		rec.Fingerprint = info.Fingerprint
		rec.Serial = info.Serial
		rec.ValidTo = info.NotAfter
	}

	if err := c.store.Create(ctx, rec); err != nil {
		c.logger.Error(ctx, "failed to record issuance", "username", username, "error", err)
	}
}

func diagnostic(err error) string {
	var cmdErr *ca.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Diagnostic()
	}
	return err.Error()
}
