package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/adamscao/ovpnbot/internal/logging"
	"github.com/adamscao/ovpnbot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRecorder struct {
	entries []*models.AuditLog
	err     error
}

func (m *memRecorder) Create(_ context.Context, log *models.AuditLog) error {
	m.entries = append(m.entries, log)
	return m.err
}

func TestTrail_FillsActorFromContext(t *testing.T) {
	rec := &memRecorder{}
	trail := NewTrail(rec, logging.Discard())

	ctx := WithActor(context.Background(), models.SourceTelegram, "42")
	trail.Record(ctx, &models.AuditLog{Action: models.ActionConfigDownload, Username: "alice", Success: true})

	require.Len(t, rec.entries, 1)
	assert.Equal(t, "42", rec.entries[0].Actor)
	assert.Equal(t, models.SourceTelegram, rec.entries[0].Source)
}

func TestTrail_KeepsExplicitActor(t *testing.T) {
	rec := &memRecorder{}
	trail := NewTrail(rec, logging.Discard())

	trail.Record(context.Background(), &models.AuditLog{Action: models.ActionAuthFailed, Actor: "10.0.0.9", Source: models.SourceAPI})

	require.Len(t, rec.entries, 1)
	assert.Equal(t, "10.0.0.9", rec.entries[0].Actor)
	assert.Equal(t, models.SourceAPI, rec.entries[0].Source)
}

func TestTrail_SwallowsWriteErrors(t *testing.T) {
	rec := &memRecorder{err: errors.New("database is locked")}
	trail := NewTrail(rec, logging.Discard())

	assert.NotPanics(t, func() {
		trail.Record(context.Background(), &models.AuditLog{Action: models.ActionUserCreate})
	})
	assert.Len(t, rec.entries, 1)
}

func TestActorFrom_Unknown(t *testing.T) {
	a := ActorFrom(context.Background())
	assert.Equal(t, "unknown", a.Source)
	assert.Equal(t, "unknown", a.ID)

	NewTrail(nil, logging.Discard()).Record(context.Background(), &models.AuditLog{Action: models.ActionUserCreate})
}
