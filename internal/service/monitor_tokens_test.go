package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorTokens_IssueAndVerify(t *testing.T) {
	m := NewMonitorTokens("test-secret")
	tok, err := m.Issue("ops@portal", []string{ScopeMonitoringReset}, time.Hour)
	require.NoError(t, err)

	claims, err := m.Verify("  "+tok+" ", ScopeMonitoringReset)
	require.NoError(t, err)
	assert.Equal(t, "ops@portal", claims.Subject)
}

func TestMonitorTokens_Rejections(t *testing.T) {
	m := NewMonitorTokens("test-secret")
	noScope, err := m.Issue("ops", []string{"monitoring:read"}, time.Hour)
	require.NoError(t, err)
	otherKey, err := NewMonitorTokens("other").Issue("ops", []string{ScopeMonitoringReset}, time.Hour)
	require.NoError(t, err)

	past := NewMonitorTokens("test-secret")
	past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := past.Issue("ops", []string{ScopeMonitoringReset}, time.Hour)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"empty":         "",
		"garbage":       "not-a-jwt",
		"missing scope": noScope,
		"wrong key":     otherKey,
		"expired":       expired,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := m.Verify(tok, ScopeMonitoringReset)
			assert.ErrorIs(t, err, ErrInvalidMonitorToken)
		})
	}
}

func TestMonitorTokens_Disabled(t *testing.T) {
	m := NewMonitorTokens("")
	assert.False(t, m.Enabled())
	_, err := m.Issue("ops", nil, time.Hour)
	assert.ErrorIs(t, err, ErrMonitorTokensDisabled)
	_, err = m.Verify("anything", ScopeMonitoringReset)
	assert.ErrorIs(t, err, ErrMonitorTokensDisabled)

	var nilTokens *MonitorTokens
	assert.False(t, nilTokens.Enabled())
}

func TestMonitorTokens_IssueValidation(t *testing.T) {
	m := NewMonitorTokens("k")
	_, err := m.Issue(" ", nil, time.Hour)
	require.Error(t, err)
	_, err = m.Issue("ops", nil, 0)
	require.Error(t, err)
}
