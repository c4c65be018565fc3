package issuance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adamscao/ovpnbot/internal/audit"
	"github.com/adamscao/ovpnbot/internal/ca"
	"github.com/adamscao/ovpnbot/internal/logging"
	"github.com/adamscao/ovpnbot/internal/models"
	"github.com/adamscao/ovpnbot/internal/policy"
	"github.com/adamscao/ovpnbot/pkg/certutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCA struct {
	available bool
	existing  map[string]bool
	issueErr  error
	issued    []string
	checked   []string
	ctxErr    error
}

func (f *fakeCA) Available() bool { return f.available }

func (f *fakeCA) Exists(username string) (bool, error) {
	f.checked = append(f.checked, username)
	return f.existing[username], nil
}

func (f *fakeCA) IssueCertificate(ctx context.Context, username string) error {
	f.issued = append(f.issued, username)
	f.ctxErr = ctx.Err()
	if f.issueErr != nil {
		return f.issueErr
	}
	f.existing[username] = true
	return nil
}

func (f *fakeCA) CertificateInfo(username string) (*certutil.Summary, error) {
	if !f.existing[username] {
		return nil, ca.ErrCertificateNotFound
	}
	return &certutil.Summary{
		Subject:     "CN=" + username,
		Serial:      "2A",
		Fingerprint: "SHA256:test",
		NotAfter:    time.Date(2036, 1, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

type fakeAssembler struct {
	err    error
	called []string
	ctxErr error
}

func (f *fakeAssembler) Assemble(ctx context.Context, username string) (string, error) {
	f.called = append(f.called, username)
	f.ctxErr = ctx.Err()
	if f.err != nil {
		return "", f.err
	}
	return "/root/ovpns/" + username + ".ovpn", nil
}

type memRecorder struct {
	entries []*models.AuditLog
}

func (m *memRecorder) Create(_ context.Context, log *models.AuditLog) error {
	m.entries = append(m.entries, log)
	return nil
}

type memStore struct {
	records []*models.Issuance
}

func (m *memStore) Create(_ context.Context, rec *models.Issuance) error {
	m.records = append(m.records, rec)
	return nil
}

type fixture struct {
	ca        *fakeCA
	assembler *fakeAssembler
	audit     *memRecorder
	store     *memStore
	coord     *Coordinator
}

func newFixture() *fixture {
	f := &fixture{
		ca:        &fakeCA{available: true, existing: map[string]bool{}},
		assembler: &fakeAssembler{},
		audit:     &memRecorder{},
		store:     &memStore{},
	}
	log := logging.Discard()
	f.coord = NewCoordinator(f.ca, f.assembler, f.store, audit.NewTrail(f.audit, log), log)
	return f
}

func TestCreateUser_Success(t *testing.T) {
	f := newFixture()
	ctx := audit.WithActor(context.Background(), models.SourceTelegram, "42")

	res, err := f.coord.CreateUser(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, "alice", res.Username)
	assert.Equal(t, "/root/ovpns/alice.ovpn", res.Path)
	assert.NotEmpty(t, res.Message)

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, models.ActionUserCreate, f.audit.entries[0].Action)
	assert.True(t, f.audit.entries[0].Success)
	assert.Equal(t, "42", f.audit.entries[0].Actor)

	require.Len(t, f.store.records, 1)
	assert.Equal(t, "SHA256:test", f.store.records[0].Fingerprint)
	assert.False(t, f.store.records[0].Partial)
}

func TestCreateUser_InvalidUsernameHasNoSideEffects(t *testing.T) {
	for _, name := range []string{"", "a b", "../etc", "alice;rm", "пользователь", "a.b"} {
		t.Run(name, func(t *testing.T) {
			f := newFixture()

			_, err := f.coord.CreateUser(context.Background(), name)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidUsername)
			assert.ErrorIs(t, err, policy.ErrInvalidUsername)

			assert.Empty(t, f.ca.checked)
			assert.Empty(t, f.ca.issued)
			assert.Empty(t, f.assembler.called)
			assert.Empty(t, f.audit.entries)
		})
	}
}

func TestCreateUser_CANotAvailable(t *testing.T) {
	f := newFixture()
	f.ca.available = false

	_, err := f.coord.CreateUser(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrCANotAvailable)
	assert.ErrorIs(t, err, ca.ErrNotAvailable)
	assert.Empty(t, f.ca.issued)
}

func TestCreateUser_ExistingUserNeverReachesCA(t *testing.T) {
	f := newFixture()
	f.ca.existing["alice"] = true

	_, err := f.coord.CreateUser(context.Background(), "alice")
	require.ErrorIs(t, err, ErrUserAlreadyExists)

	e, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindUserAlreadyExists, e.Kind)
	assert.False(t, e.Partial)

	assert.Empty(t, f.ca.issued)
	assert.Empty(t, f.assembler.called)
}

func TestCreateUser_IssuanceFailureCarriesStderr(t *testing.T) {
	f := newFixture()
	stderr := "Easy-RSA error:\n\nUnknown cert type\n"
	f.ca.issueErr = &ca.CommandError{Kind: ca.ErrIssueFailed, Command: "./easyrsa", ExitCode: 1, Stderr: stderr}

	_, err := f.coord.CreateUser(context.Background(), "alice")
	require.ErrorIs(t, err, ErrCertificateIssuanceFailed)
	assert.NotErrorIs(t, err, ErrPartialIssuance)

	e, _ := AsError(err)
	assert.Equal(t, StageCertificate, e.Stage)
	assert.Equal(t, stderr, e.Detail)
	assert.Empty(t, f.assembler.called)
	assert.Empty(t, f.store.records)
}

func TestCreateUser_PermissionFixupIsItsOwnStage(t *testing.T) {
	f := newFixture()
	f.ca.issueErr = &ca.CommandError{Kind: ca.ErrPermissionFixup, Command: "chown -R root:root pki/", ExitCode: 1, Stderr: "chown: operation not permitted"}

	_, err := f.coord.CreateUser(context.Background(), "alice")
	require.ErrorIs(t, err, ErrCertificateIssuanceFailed)
	assert.ErrorIs(t, err, ca.ErrPermissionFixup)

	e, _ := AsError(err)
	assert.Equal(t, StagePermissions, e.Stage)

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, StagePermissions, f.audit.entries[0].Stage)
}

func TestCreateUser_AssemblyFailureIsPartial(t *testing.T) {
	f := newFixture()
	f.assembler.err = errors.New("client template not found: /etc/openvpn/server/client-common.txt")

	_, err := f.coord.CreateUser(context.Background(), "alice")
	require.ErrorIs(t, err, ErrConfigAssemblyFailed)
	assert.ErrorIs(t, err, ErrPartialIssuance)

	e, ok := AsError(err)
	require.True(t, ok)
	assert.True(t, e.Partial)
	assert.Equal(t, "alice", e.Username)
	assert.Equal(t, StageAssembly, e.Stage)
	assert.Contains(t, err.Error(), "client config missing")

	// certificate stays issued
	assert.Equal(t, []string{"alice"}, f.ca.issued)

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, models.ActionUserCreatePartial, f.audit.entries[0].Action)
	assert.False(t, f.audit.entries[0].Success)

	require.Len(t, f.store.records, 1)
	assert.True(t, f.store.records[0].Partial)
}

func TestCreateUser_SecondCallIsRejected(t *testing.T) {
	f := newFixture()

	_, err := f.coord.CreateUser(context.Background(), "alice")
	require.NoError(t, err)

	_, err = f.coord.CreateUser(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
	assert.Len(t, f.ca.issued, 1)
}

func TestCreateUser_NilStore(t *testing.T) {
	log := logging.Discard()
	coord := NewCoordinator(&fakeCA{available: true, existing: map[string]bool{}}, &fakeAssembler{}, nil, audit.NewTrail(nil, log), log)

	_, err := coord.CreateUser(context.Background(), "alice")
	assert.NoError(t, err)
}

func TestCreateUser_CompletesAfterCallerCancels(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.coord.CreateUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Username)

	// a shutdown or a dropped client must not kill easy-rsa mid-issuance
	assert.NoError(t, f.ca.ctxErr)
	assert.NoError(t, f.assembler.ctxErr)
	require.Len(t, f.store.records, 1)
	assert.False(t, f.store.records[0].Partial)
}
