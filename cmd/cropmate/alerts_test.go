package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cropmate/cropmate/lib/pushsender"
	"github.com/cropmate/cropmate/types"
)

func TestAlertRuleCRUD(t *testing.T) {
	e, _, _ := newTestServer(t)
	cookies := signUpAndIn(t, e, "farmer@cropmate.test")

	rec := doJSON(t, e, http.MethodPost, "/api/alerts", map[string]any{
		"pestId":      1,
		"minSeverity": 3,
		"field":       "North field",
	}, cookies)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var rule types.AlertRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rule))
	assert.True(t, rule.Active)

	rec = doJSON(t, e, http.MethodGet, "/api/alerts", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	var rules []types.AlertRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rules))
	assert.Len(t, rules, 1)

	rec = doJSON(t, e, http.MethodDelete, fmt.Sprintf("/api/alerts/%d", rule.ID), nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, e, http.MethodGet, "/api/alerts", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestAlertRuleRejectsUnknownPest(t *testing.T) {
	e, _, _ := newTestServer(t)
	cookies := signUpAndIn(t, e, "farmer@cropmate.test")

	rec := doJSON(t, e, http.MethodPost, "/api/alerts", map[string]any{
		"pestId":      99999,
		"minSeverity": 3,
	}, cookies)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDeleteAlertRuleIsOwnerChecked(t *testing.T) {
	e, _, _ := newTestServer(t)
	alice := signUpAndIn(t, e, "alice@cropmate.test")
	bob := signUpAndIn(t, e, "bob@cropmate.test")

	rec := doJSON(t, e, http.MethodPost, "/api/alerts", map[string]any{
		"minSeverity": 2,
	}, alice)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var rule types.AlertRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rule))

	rec = doJSON(t, e, http.MethodDelete, fmt.Sprintf("/api/alerts/%d", rule.ID), nil, bob)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEvaluateRunAlertsNotifiesRuleOwner(t *testing.T) {
	e, db, cfg := newTestServer(t)
	cookies := signUpAndIn(t, e, "farmer@cropmate.test")
	user := userByEmail(t, db, "farmer@cropmate.test")

	relay, received := fakeRelay(t, http.StatusCreated)
	insertSubscription(t, db, user.ID, relay.URL+"/reg/phone")

	// Wildcard rule: any pest at severity >= 3, any field.
	rec := doJSON(t, e, http.MethodPost, "/api/alerts", map[string]any{
		"minSeverity": 3,
	}, cookies)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, e, http.MethodPost, "/api/scouting", map[string]any{
		"field": "North field",
		"crop":  "tomato",
		"observations": []map[string]any{
			{"pestId": 1, "severity": 4, "count": 20},
			{"pestId": 2, "severity": 1, "count": 2},
		},
	}, cookies)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var run types.ScoutingRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))

	sender := pushsender.New(cfg.VapidSubject, cfg.VapidPublicKey, cfg.VapidPrivateKey)
	require.NoError(t, evaluateRunAlerts(cfg, db, sender, run.ID))

	assert.Equal(t, 1, *received, "only the severity-4 observation matches the rule")
}

func TestEvaluateRunAlertsIgnoresBelowThreshold(t *testing.T) {
	e, db, cfg := newTestServer(t)
	cookies := signUpAndIn(t, e, "farmer@cropmate.test")
	user := userByEmail(t, db, "farmer@cropmate.test")

	relay, received := fakeRelay(t, http.StatusCreated)
	insertSubscription(t, db, user.ID, relay.URL+"/reg/phone")

	rec := doJSON(t, e, http.MethodPost, "/api/alerts", map[string]any{
		"minSeverity": 5,
	}, cookies)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, e, http.MethodPost, "/api/scouting", map[string]any{
		"field": "North field",
		"crop":  "tomato",
		"observations": []map[string]any{
			{"pestId": 1, "severity": 2, "count": 3},
		},
	}, cookies)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var run types.ScoutingRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))

	sender := pushsender.New(cfg.VapidSubject, cfg.VapidPublicKey, cfg.VapidPrivateKey)
	require.NoError(t, evaluateRunAlerts(cfg, db, sender, run.ID))

	assert.Zero(t, *received)
}
