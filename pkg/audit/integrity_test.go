package audit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmoon-ch/unchain/pkg/database"
	"github.com/redmoon-ch/unchain/pkg/models"
)

// buildChain simulates sequential appends: each entry chains to the
// signature of the previous one.
func buildChain(t *testing.T, signer *Signer, n int) []models.AuditLogEntry {
	t.Helper()

	entries := make([]models.AuditLogEntry, 0, n)
	var prev *string
	for i := 0; i < n; i++ {
		project := "default"
		entry := models.AuditLogEntry{
			ID:           int64(i + 1),
			EntityType:   "feature",
			EntityID:     "checkout",
			Action:       "feature.enabled",
			ChangedBy:    "alice",
			ChangedAt:    time.Date(2026, 3, 1, 10, 0, i, 0, time.UTC),
			Data:         database.JSONB[json.RawMessage]{Data: json.RawMessage(`{"enabled":true}`)},
			ProjectID:    &project,
			PreviousHash: prev,
		}
		sig := signer.Sign(&entry)
		entry.Signature = &sig
		entries = append(entries, entry)
		prev = &sig
	}
	return entries
}

func TestSigner_Disabled(t *testing.T) {
	signer := NewSigner("")
	assert.False(t, signer.Enabled())

	entries := []models.AuditLogEntry{{ID: 1, EntityType: "feature"}}
	summary := signer.VerifyChain(entries)
	assert.True(t, summary.Valid)
	assert.Nil(t, entries[0].SignatureValid)
	assert.Nil(t, entries[0].ChainValid)
}

func TestSigner_SignIsDeterministic(t *testing.T) {
	signer := NewSigner("secret")
	entry := models.AuditLogEntry{
		ID:         1,
		EntityType: "feature",
		EntityID:   "checkout",
		Action:     "feature.enabled",
		ChangedBy:  "alice",
		ChangedAt:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	assert.Equal(t, signer.Sign(&entry), signer.Sign(&entry))

	other := NewSigner("other-secret")
	assert.NotEqual(t, signer.Sign(&entry), other.Sign(&entry))
}

func TestVerifyChain_Intact(t *testing.T) {
	signer := NewSigner("secret")
	entries := buildChain(t, signer, 5)

	summary := signer.VerifyChain(entries)
	assert.True(t, summary.Valid)
	assert.Equal(t, 5, summary.Total)
	assert.Zero(t, summary.SignatureFailures)
	assert.Zero(t, summary.ChainBreaks)

	for i := range entries {
		require.NotNil(t, entries[i].SignatureValid, "entry %d", i)
		assert.True(t, *entries[i].SignatureValid, "entry %d", i)
		require.NotNil(t, entries[i].ChainValid, "entry %d", i)
		assert.True(t, *entries[i].ChainValid, "entry %d", i)
	}
}

func TestVerifyChain_DeletionBreaksSuccessorOnly(t *testing.T) {
	signer := NewSigner("secret")
	entries := buildChain(t, signer, 5)

	// Remove the third entry: the fourth entry's previousHash no longer
	// matches its predecessor's signature.
	tampered := append(append([]models.AuditLogEntry{}, entries[:2]...), entries[3:]...)

	summary := signer.VerifyChain(tampered)
	assert.False(t, summary.Valid)
	assert.Equal(t, 1, summary.ChainBreaks)
	assert.Zero(t, summary.SignatureFailures)

	assert.True(t, *tampered[0].ChainValid)
	assert.True(t, *tampered[1].ChainValid)
	assert.False(t, *tampered[2].ChainValid) // was entries[3]
	assert.True(t, *tampered[3].ChainValid)  // chain continues intact after the break
}

func TestVerifyChain_TamperedDataFailsSignature(t *testing.T) {
	signer := NewSigner("secret")
	entries := buildChain(t, signer, 3)

	entries[1].Data = database.JSONB[json.RawMessage]{Data: json.RawMessage(`{"enabled":false}`)}

	summary := signer.VerifyChain(entries)
	assert.False(t, summary.Valid)
	assert.Equal(t, 1, summary.SignatureFailures)
	assert.False(t, *entries[1].SignatureValid)
	assert.True(t, *entries[0].SignatureValid)
	assert.True(t, *entries[2].SignatureValid)
}

func TestVerifyChain_MissingSignature(t *testing.T) {
	signer := NewSigner("secret")
	entries := buildChain(t, signer, 2)
	entries[1].Signature = nil

	summary := signer.VerifyChain(entries)
	assert.False(t, summary.Valid)
	assert.False(t, *entries[1].SignatureValid)
}

func TestVerifyChain_FirstEntryWithPredecessorNotVerifiable(t *testing.T) {
	signer := NewSigner("secret")
	entries := buildChain(t, signer, 3)

	// A filtered listing that starts mid-chain: the first returned entry's
	// predecessor is not visible, so its chain verdict stays nil.
	partial := entries[1:]
	summary := signer.VerifyChain(partial)
	assert.True(t, summary.Valid)
	assert.Nil(t, partial[0].ChainValid)
	require.NotNil(t, partial[1].ChainValid)
	assert.True(t, *partial[1].ChainValid)
}

func TestCanonicalForm_FieldOrder(t *testing.T) {
	prev := "prevsig"
	project := "default"
	env := "production"
	entry := models.AuditLogEntry{
		ID:           7,
		EntityType:   "feature",
		EntityID:     "checkout",
		Action:       "feature.disabled",
		ChangedBy:    "bob",
		ChangedAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Data:         database.JSONB[json.RawMessage]{Data: json.RawMessage(`{"a":1}`)},
		ProjectID:    &project,
		Environment:  &env,
		PreviousHash: &prev,
	}

	assert.Equal(t,
		`7|feature|checkout|feature.disabled|bob|2026-03-01T10:00:00Z|{"a":1}|default|production|prevsig`,
		CanonicalForm(&entry))
}
