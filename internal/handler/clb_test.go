package handler_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clbPath(suffix string) string {
	return "/clb/v1.0/" + testTenant + suffix
}

func createLB(t *testing.T, ts *httptest.Server, token string) string {
	t.Helper()
	body := map[string]interface{}{
		"loadBalancer": map[string]interface{}{"name": "web-lb"},
	}
	resp := doJSON(t, ts, http.MethodPost, clbPath("/loadbalancers"), token, body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	out := decode(t, resp)
	lb := out["loadBalancer"].(map[string]interface{})
	require.NotEmpty(t, lb["id"])
	return lb["id"].(string)
}

func TestLoadBalancerDefaults(t *testing.T) {
	ts := testServer(t)
	token := authenticate(t, ts, testTenant)

	body := map[string]interface{}{
		"loadBalancer": map[string]interface{}{"name": "web-lb"},
	}
	resp := doJSON(t, ts, http.MethodPost, clbPath("/loadbalancers"), token, body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	out := decode(t, resp)
	lb := out["loadBalancer"].(map[string]interface{})
	assert.Equal(t, float64(80), lb["port"])
	assert.Equal(t, "HTTP", lb["protocol"])
	assert.Equal(t, "ACTIVE", lb["status"])
}

func TestLoadBalancerNodes(t *testing.T) {
	ts := testServer(t)
	token := authenticate(t, ts, testTenant)
	lbID := createLB(t, ts, token)

	body := map[string]interface{}{
		"nodes": []map[string]interface{}{
			{"address": "10.0.0.5"},
			{"address": "10.0.0.6", "port": 8080, "condition": "DISABLED"},
		},
	}
	resp := doJSON(t, ts, http.MethodPost, clbPath("/loadbalancers/"+lbID+"/nodes"), token, body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	out := decode(t, resp)
	nodes := out["nodes"].([]interface{})
	require.Len(t, nodes, 2)

	first := nodes[0].(map[string]interface{})
	assert.Equal(t, float64(80), first["port"])
	assert.Equal(t, "ENABLED", first["condition"])
	nodeID := first["id"].(string)

	resp = doJSON(t, ts, http.MethodDelete, clbPath("/loadbalancers/"+lbID+"/nodes/"+nodeID), token, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = doJSON(t, ts, http.MethodGet, clbPath("/loadbalancers/"+lbID+"/nodes"), token, nil)
	out = decode(t, resp)
	assert.Len(t, out["nodes"], 1)
}

func TestDeleteLoadBalancer(t *testing.T) {
	ts := testServer(t)
	token := authenticate(t, ts, testTenant)
	lbID := createLB(t, ts, token)

	resp := doJSON(t, ts, http.MethodDelete, clbPath("/loadbalancers/"+lbID), token, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = doJSON(t, ts, http.MethodGet, clbPath("/loadbalancers/"+lbID), token, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	out := decode(t, resp)
	assert.Contains(t, out, "itemNotFound")
}
