package handler_test

import (
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ctlPath(suffix string) string {
	return "/mimicctl/nova/" + testTenant + suffix
}

func TestSetServerAttributes(t *testing.T) {
	ts := testServer(t)
	token := authenticate(t, ts, testTenant)
	id := createServer(t, ts, token)

	body := map[string]interface{}{
		"status": map[string]string{id: "ERROR"},
	}
	resp := doJSON(t, ts, http.MethodPost, ctlPath("/attributes"), token, body)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, ts, http.MethodGet, novaPath("/servers/"+id), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, resp)
	assert.Equal(t, "ERROR", out["server"].(map[string]interface{})["status"])
}

func TestSetServerAttributesRejectsUnknownStatus(t *testing.T) {
	ts := testServer(t)
	token := authenticate(t, ts, testTenant)
	id := createServer(t, ts, token)

	body := map[string]interface{}{
		"status": map[string]string{id: "EXPLODED"},
	}
	resp := doJSON(t, ts, http.MethodPost, ctlPath("/attributes"), token, body)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	out := decode(t, resp)
	assert.Contains(t, out, "badRequest")
}

func TestSetServerAttributesUnknownServer(t *testing.T) {
	ts := testServer(t)
	token := authenticate(t, ts, testTenant)

	body := map[string]interface{}{
		"status": map[string]string{"no-such-server": "ERROR"},
	}
	resp := doJSON(t, ts, http.MethodPost, ctlPath("/attributes"), token, body)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	out := decode(t, resp)
	assert.Contains(t, out, "itemNotFound")
}

func TestGetInjectedFile(t *testing.T) {
	ts := testServer(t)
	token := authenticate(t, ts, testTenant)

	script := "#!/bin/sh\necho booted\n"
	body := map[string]interface{}{
		"server": map[string]interface{}{
			"name":      "web",
			"flavorRef": "performance1-1",
			"imageRef":  "ubuntu-22.04",
			"personality": []map[string]string{
				{"path": "/etc/rc.local", "contents": base64.StdEncoding.EncodeToString([]byte(script))},
			},
		},
	}
	resp := doJSON(t, ts, http.MethodPost, novaPath("/servers"), token, body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	out := decode(t, resp)
	serverID := out["server"].(map[string]interface{})["id"].(string)

	filesURL := ctlPath("/servers/" + serverID + "/files?path=" + url.QueryEscape("/etc/rc.local"))
	resp = doJSON(t, ts, http.MethodGet, filesURL, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	contents, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, script, string(contents))

	// Unknown inject path is a 404, missing path parameter a 400.
	resp = doJSON(t, ts, http.MethodGet, ctlPath("/servers/"+serverID+"/files?path=%2Fno%2Fsuch"), token, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, ts, http.MethodGet, ctlPath("/servers/"+serverID+"/files"), token, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

// Forcing a server into ERROR and re-executing a policy exercises the
// replacement path: ERROR entities never count toward capacity.
func TestErrorServerIsReplacedByConvergence(t *testing.T) {
	ts := testServer(t)
	token := authenticate(t, ts, testTenant)
	groupID := createGroup(t, ts, token, 2, 5)

	resp := doJSON(t, ts, http.MethodGet, novaPath("/servers"), token, nil)
	out := decode(t, resp)
	servers := out["servers"].([]interface{})
	require.Len(t, servers, 2)
	victim := servers[0].(map[string]interface{})["id"].(string)

	body := map[string]interface{}{
		"status": map[string]string{victim: "ERROR"},
	}
	resp = doJSON(t, ts, http.MethodPost, ctlPath("/attributes"), token, body)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	state := groupState(t, ts, token, groupID)
	assert.Equal(t, float64(1), state["activeCapacity"], "ERROR server does not count")

	// A no-op capacity policy still converges and replaces the loss.
	policyID := createPolicy(t, ts, token, groupID, map[string]interface{}{
		"name": "hold at two", "cooldown": 0, "desiredCapacity": 2,
	})
	resp = executePolicy(t, ts, token, groupID, policyID)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	state = groupState(t, ts, token, groupID)
	assert.Equal(t, float64(2), state["activeCapacity"])
}
