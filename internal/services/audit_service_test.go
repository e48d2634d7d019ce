package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mithaqapp/mithaq/internal/database/testutil"
	"github.com/mithaqapp/mithaq/internal/models"
)

func TestAuditRecordAndList(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	user := &models.User{Username: "amina", Email: "amina@example.com", Password: "x", IsActive: true}
	require.NoError(t, db.Create(user).Error)

	svc.Record(AuditEntry{
		UserID:    user.ID,
		Action:    AuditLoginPassword,
		Result:    AuditSuccess,
		IPAddress: "203.0.113.7",
		UserAgent: "test-agent",
		Metadata:  map[string]any{"purpose": "login"},
	})
	svc.Record(AuditEntry{
		UserID: user.ID,
		Action: AuditCodeDenied,
		Result: AuditDenied,
	})

	entries, err := svc.ListForUser(user.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var withMeta *models.AuditLog
	for i := range entries {
		if entries[i].Action == AuditLoginPassword {
			withMeta = &entries[i]
		}
	}
	require.NotNil(t, withMeta)
	require.Equal(t, AuditSuccess, withMeta.Result)
	require.Equal(t, "203.0.113.7", withMeta.IPAddress)

	var metadata map[string]any
	require.NoError(t, json.Unmarshal(withMeta.Metadata, &metadata))
	require.Equal(t, "login", metadata["purpose"])
}

func TestAuditRecordWithoutUser(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	svc.Record(AuditEntry{
		Action: AuditLoginPassword,
		Result: AuditFailure,
	})

	var entries []models.AuditLog
	require.NoError(t, db.Find(&entries).Error)
	require.Len(t, entries, 1)
	require.Nil(t, entries[0].UserID)
}

func TestAuditRecordSwallowsBadEntries(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	// Missing action: logged and dropped, never panics.
	svc.Record(AuditEntry{Result: AuditFailure})

	var count int64
	require.NoError(t, db.Model(&models.AuditLog{}).Count(&count).Error)
	require.Zero(t, count)
}
