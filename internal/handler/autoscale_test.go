package handler_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func asPath(suffix string) string {
	return "/autoscale/v1.0/" + testTenant + suffix
}

func groupRequest(min, max int) map[string]interface{} {
	return map[string]interface{}{
		"groupConfiguration": map[string]interface{}{
			"name":        "worker-group",
			"cooldown":    60,
			"minEntities": min,
			"maxEntities": max,
		},
		"launchConfiguration": map[string]interface{}{
			"type": "launch_server",
			"args": map[string]interface{}{
				"server": map[string]interface{}{
					"name":      "worker",
					"flavorRef": "performance1-1",
					"imageRef":  "ubuntu-22.04",
				},
			},
		},
	}
}

func createGroup(t *testing.T, ts *httptest.Server, token string, min, max int) string {
	t.Helper()
	resp := doJSON(t, ts, http.MethodPost, asPath("/groups"), token, groupRequest(min, max))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	out := decode(t, resp)
	g := out["group"].(map[string]interface{})
	require.NotEmpty(t, g["id"])
	return g["id"].(string)
}

func groupState(t *testing.T, ts *httptest.Server, token, groupID string) map[string]interface{} {
	t.Helper()
	resp := doJSON(t, ts, http.MethodGet, asPath("/groups/"+groupID+"/state"), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, resp)
	return out["group"].(map[string]interface{})
}

func createPolicy(t *testing.T, ts *httptest.Server, token, groupID string, policy map[string]interface{}) string {
	t.Helper()
	resp := doJSON(t, ts, http.MethodPost, asPath("/groups/"+groupID+"/policies"), token, []map[string]interface{}{policy})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	out := decode(t, resp)
	policies := out["policies"].([]interface{})
	require.Len(t, policies, 1)
	return policies[0].(map[string]interface{})["id"].(string)
}

func executePolicy(t *testing.T, ts *httptest.Server, token, groupID, policyID string) *http.Response {
	t.Helper()
	return doJSON(t, ts, http.MethodPost, asPath("/groups/"+groupID+"/policies/"+policyID+"/execute"), token, nil)
}

func TestCreateGroupLaunchesMinEntities(t *testing.T) {
	ts := testServer(t)
	token := authenticate(t, ts, testTenant)

	groupID := createGroup(t, ts, token, 2, 5)

	state := groupState(t, ts, token, groupID)
	assert.Equal(t, float64(2), state["desiredCapacity"])
	// Zero build delay means the state read already sees them ACTIVE.
	assert.Equal(t, float64(2), state["activeCapacity"])
	assert.Equal(t, float64(0), state["pendingCapacity"])

	resp := doJSON(t, ts, http.MethodGet, novaPath("/servers"), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, resp)
	assert.Len(t, out["servers"], 2)
}

func TestCreateGroupValidation(t *testing.T) {
	ts := testServer(t)
	token := authenticate(t, ts, testTenant)

	bad := groupRequest(5, 2) // min > max
	resp := doJSON(t, ts, http.MethodPost, asPath("/groups"), token, bad)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	bad = groupRequest(1, 3)
	bad["launchConfiguration"].(map[string]interface{})["type"] = "launch_stack"
	resp = doJSON(t, ts, http.MethodPost, asPath("/groups"), token, bad)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	out := decode(t, resp)
	assert.Contains(t, out, "badRequest")
}

func TestExecuteChangePolicy(t *testing.T) {
	ts := testServer(t)
	token := authenticate(t, ts, testTenant)
	groupID := createGroup(t, ts, token, 1, 10)

	change := 2
	policyID := createPolicy(t, ts, token, groupID, map[string]interface{}{
		"name": "scale up", "cooldown": 0, "change": change,
	})

	resp := executePolicy(t, ts, token, groupID, policyID)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	state := groupState(t, ts, token, groupID)
	assert.Equal(t, float64(3), state["desiredCapacity"])
	assert.Equal(t, float64(3), state["activeCapacity"])
}

func TestExecutePolicyClampsToMax(t *testing.T) {
	ts := testServer(t)
	token := authenticate(t, ts, testTenant)
	groupID := createGroup(t, ts, token, 1, 3)

	policyID := createPolicy(t, ts, token, groupID, map[string]interface{}{
		"name": "scale way up", "cooldown": 0, "change": 10,
	})

	resp := executePolicy(t, ts, token, groupID, policyID)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	state := groupState(t, ts, token, groupID)
	assert.Equal(t, float64(3), state["desiredCapacity"])
}

func TestExecutePercentPolicyMovesAtLeastOne(t *testing.T) {
	ts := testServer(t)
	token := authenticate(t, ts, testTenant)
	groupID := createGroup(t, ts, token, 1, 10)

	// 10% of 1 rounds to zero; the move is still one entity.
	policyID := createPolicy(t, ts, token, groupID, map[string]interface{}{
		"name": "tiny bump", "cooldown": 0, "changePercent": 10,
	})

	resp := executePolicy(t, ts, token, groupID, policyID)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	state := groupState(t, ts, token, groupID)
	assert.Equal(t, float64(2), state["desiredCapacity"])
}

func TestExecuteDesiredCapacityPolicy(t *testing.T) {
	ts := testServer(t)
	token := authenticate(t, ts, testTenant)
	groupID := createGroup(t, ts, token, 1, 10)

	policyID := createPolicy(t, ts, token, groupID, map[string]interface{}{
		"name": "jump to five", "cooldown": 0, "desiredCapacity": 5,
	})

	resp := executePolicy(t, ts, token, groupID, policyID)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	state := groupState(t, ts, token, groupID)
	assert.Equal(t, float64(5), state["desiredCapacity"])
	assert.Equal(t, float64(5), state["activeCapacity"])
}

func TestScaleDownRemovesServers(t *testing.T) {
	ts := testServer(t)
	token := authenticate(t, ts, testTenant)
	groupID := createGroup(t, ts, token, 3, 10)

	negative := -2
	policyID := createPolicy(t, ts, token, groupID, map[string]interface{}{
		"name": "scale down", "cooldown": 0, "change": negative,
	})

	resp := executePolicy(t, ts, token, groupID, policyID)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	state := groupState(t, ts, token, groupID)
	assert.Equal(t, float64(1), state["desiredCapacity"])
	assert.Equal(t, float64(1), state["activeCapacity"])

	resp = doJSON(t, ts, http.MethodGet, novaPath("/servers"), token, nil)
	out := decode(t, resp)
	assert.Len(t, out["servers"], 1)
}

func TestPausedGroupRejectsExecution(t *testing.T) {
	ts := testServer(t)
	token := authenticate(t, ts, testTenant)
	groupID := createGroup(t, ts, token, 1, 10)

	policyID := createPolicy(t, ts, token, groupID, map[string]interface{}{
		"name": "scale up", "cooldown": 0, "change": 1,
	})

	resp := doJSON(t, ts, http.MethodPost, asPath("/groups/"+groupID+"/pause"), token, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = executePolicy(t, ts, token, groupID, policyID)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	out := decode(t, resp)
	assert.Contains(t, out, "forbidden")

	// Resume makes execution work again.
	resp = doJSON(t, ts, http.MethodPost, asPath("/groups/"+groupID+"/resume"), token, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = executePolicy(t, ts, token, groupID, policyID)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestPolicyValidation(t *testing.T) {
	ts := testServer(t)
	token := authenticate(t, ts, testTenant)
	groupID := createGroup(t, ts, token, 1, 10)

	// Two adjustment kinds at once.
	resp := doJSON(t, ts, http.MethodPost, asPath("/groups/"+groupID+"/policies"), token,
		[]map[string]interface{}{{"name": "broken", "change": 1, "desiredCapacity": 5}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// No adjustment at all.
	resp = doJSON(t, ts, http.MethodPost, asPath("/groups/"+groupID+"/policies"), token,
		[]map[string]interface{}{{"name": "empty"}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestWebhookCapabilityExecution(t *testing.T) {
	ts := testServer(t)
	token := authenticate(t, ts, testTenant)
	groupID := createGroup(t, ts, token, 1, 10)

	policyID := createPolicy(t, ts, token, groupID, map[string]interface{}{
		"name": "scale up", "cooldown": 0, "change": 1,
	})

	resp := doJSON(t, ts, http.MethodPost, asPath("/groups/"+groupID+"/policies/"+policyID+"/webhooks"), token,
		[]map[string]string{{"name": "alarm hook"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	out := decode(t, resp)
	hooks := out["webhooks"].([]interface{})
	require.Len(t, hooks, 1)
	capability := hooks[0].(map[string]interface{})["capability"].(string)
	require.NotEmpty(t, capability)

	// Anonymous: no token on the execute request.
	resp = doJSON(t, ts, http.MethodPost, "/autoscale/v1.0/execute/1/"+capability, "", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	state := groupState(t, ts, token, groupID)
	assert.Equal(t, float64(2), state["desiredCapacity"])
}

func TestUnknownCapabilityStillAccepted(t *testing.T) {
	ts := testServer(t)

	resp := doJSON(t, ts, http.MethodPost, "/autoscale/v1.0/execute/1/no-such-capability", "", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestUpdateGroupConfigReclamps(t *testing.T) {
	ts := testServer(t)
	token := authenticate(t, ts, testTenant)
	groupID := createGroup(t, ts, token, 4, 10)

	// Shrink max below current desired; desired must follow.
	newCfg := map[string]interface{}{
		"name":        "worker-group",
		"cooldown":    60,
		"minEntities": 1,
		"maxEntities": 2,
	}
	resp := doJSON(t, ts, http.MethodPut, asPath("/groups/"+groupID+"/config"), token, newCfg)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	state := groupState(t, ts, token, groupID)
	assert.Equal(t, float64(2), state["desiredCapacity"])
	assert.Equal(t, float64(2), state["activeCapacity"])
}

func TestDeleteGroupRequiresForceWhileServersExist(t *testing.T) {
	ts := testServer(t)
	token := authenticate(t, ts, testTenant)
	groupID := createGroup(t, ts, token, 2, 5)

	resp := doJSON(t, ts, http.MethodDelete, asPath("/groups/"+groupID), token, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	out := decode(t, resp)
	assert.Contains(t, out, "conflictingRequest")

	resp = doJSON(t, ts, http.MethodDelete, asPath("/groups/"+groupID+"?force=true"), token, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, ts, http.MethodGet, asPath("/groups/"+groupID), token, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// Servers went with the group.
	resp = doJSON(t, ts, http.MethodGet, novaPath("/servers"), token, nil)
	out = decode(t, resp)
	assert.Len(t, out["servers"], 0)
}

func TestGroupNotFound(t *testing.T) {
	ts := testServer(t)
	token := authenticate(t, ts, testTenant)

	resp := doJSON(t, ts, http.MethodGet, asPath("/groups/no-such-group"), token, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	out := decode(t, resp)
	assert.Contains(t, out, "itemNotFound")
}
