package changerequest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/redmoon-ch/unchain/pkg/models"
)

func TestValidatePayloadShape(t *testing.T) {
	tests := []struct {
		name    string
		action  string
		payload string
		wantErr string
	}{
		{name: "enable with no payload", action: models.ChangeActionEnable},
		{name: "enable with null payload", action: models.ChangeActionEnable, payload: "null"},
		{name: "enable with empty object", action: models.ChangeActionDisable, payload: "{}"},
		{
			name:    "enable with payload rejected",
			action:  models.ChangeActionEnable,
			payload: `{"enabled":true}`,
			wantErr: "take no payload",
		},
		{name: "archive with no payload", action: models.ChangeActionArchiveFeature},
		{
			name:    "add strategy",
			action:  models.ChangeActionAddStrategy,
			payload: `{"name":"flexibleRollout","parameters":{"percentage":"25"}}`,
		},
		{
			name:    "add strategy without name",
			action:  models.ChangeActionAddStrategy,
			payload: `{"parameters":{"percentage":"25"}}`,
			wantErr: "requires a strategy name",
		},
		{
			name:    "add strategy with malformed json",
			action:  models.ChangeActionAddStrategy,
			payload: `{"name":`,
			wantErr: "invalid add-strategy payload",
		},
		{
			name:    "update strategy",
			action:  models.ChangeActionUpdateStrategy,
			payload: `{"id":"71018635-8c23-43c1-a809-32a36e2e55f3","name":"default"}`,
		},
		{
			name:    "update strategy without id",
			action:  models.ChangeActionUpdateStrategy,
			payload: `{"name":"default"}`,
			wantErr: "requires a strategy id",
		},
		{
			name:    "update strategy without name",
			action:  models.ChangeActionUpdateStrategy,
			payload: `{"id":"71018635-8c23-43c1-a809-32a36e2e55f3"}`,
			wantErr: "requires a strategy name",
		},
		{
			name:    "delete strategy",
			action:  models.ChangeActionDeleteStrategy,
			payload: `{"id":"71018635-8c23-43c1-a809-32a36e2e55f3"}`,
		},
		{
			name:    "delete strategy without id",
			action:  models.ChangeActionDeleteStrategy,
			payload: `{}`,
			wantErr: "requires a strategy id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayloadShape(tt.action, json.RawMessage(tt.payload))
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, validateSchedule(nil))

	future := time.Now().Add(time.Hour)
	assert.NoError(t, validateSchedule(&future))

	// Slight clock drift behind the server is tolerated.
	recent := time.Now().Add(-30 * time.Second)
	assert.NoError(t, validateSchedule(&recent))

	past := time.Now().Add(-2 * time.Minute)
	assert.ErrorContains(t, validateSchedule(&past), "must not be in the past")
}

func TestChangeRequestTerminalStates(t *testing.T) {
	terminal := []string{
		models.ChangeRequestStateApplied,
		models.ChangeRequestStateRejected,
		models.ChangeRequestStateCancelled,
	}
	for _, state := range terminal {
		cr := models.ChangeRequest{State: state}
		assert.True(t, cr.TerminalState(), state)
	}

	open := []string{
		models.ChangeRequestStateDraft,
		models.ChangeRequestStateInReview,
		models.ChangeRequestStateApproved,
	}
	for _, state := range open {
		cr := models.ChangeRequest{State: state}
		assert.False(t, cr.TerminalState(), state)
	}
}
