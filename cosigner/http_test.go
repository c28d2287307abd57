package cosigner

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ckb-cosigner/cosigner/apps/ckb"
	"github.com/stretchr/testify/require"
)

type testClient struct {
	t      *testing.T
	server *httptest.Server
	cookie *http.Cookie
}

func (c *testClient) do(method, path, contentType string, body io.Reader) (int, map[string]any, *http.Response) {
	req, err := http.NewRequest(method, c.server.URL+path, body)
	require.Nil(c.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	resp, err := http.DefaultClient.Do(req)
	require.Nil(c.t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.Nil(c.t, err)
	var result map[string]any
	_ = json.Unmarshal(data, &result)
	return resp.StatusCode, result, resp
}

func (c *testClient) json(method, path string, body any) (int, map[string]any) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.Nil(c.t, err)
		reader = bytes.NewReader(b)
	}
	status, result, _ := c.do(method, path, "application/json", reader)
	return status, result
}

func TestHTTPAuth(t *testing.T) {
	require := require.New(t)
	_, env := testBuildNode(t)
	server := httptest.NewServer(env.node.Handler())
	defer server.Close()
	client := &testClient{t: t, server: server}

	status, body := client.json("GET", "/api/tx", nil)
	require.Equal(http.StatusUnauthorized, status)
	require.Equal("Unauthorized", body["error"])

	status, body = client.json("POST", "/api/auth", map[string]any{"pubKeyHash": "0x0000000000000000000000000000000000000000"})
	require.Equal(http.StatusUnauthorized, status)
	require.Equal("User not found", body["error"])

	status, _, resp := client.do("POST", "/api/auth?verify=true", "application/json", strings.NewReader(`{"pubKeyHash":"`+testUserHash+`"}`))
	require.Equal(http.StatusOK, status)
	require.Len(resp.Cookies(), 0)

	status, _, resp = client.do("POST", "/api/auth", "application/json", strings.NewReader(`{"pubKeyHash":"`+testUserHash+`"}`))
	require.Equal(http.StatusOK, status)
	cookies := make(map[string]*http.Cookie)
	for _, c := range resp.Cookies() {
		cookies[c.Name] = c
	}
	require.Equal(testUserHash, cookies[cookiePubKeyHash].Value)
	require.Equal("alice", cookies[cookieUserName].Value)
	require.True(cookies[cookiePubKeyHash].Secure)
	require.Equal(http.SameSiteStrictMode, cookies[cookiePubKeyHash].SameSite)
	require.Equal(cookieMaxAge, cookies[cookiePubKeyHash].MaxAge)

	client.cookie = &http.Cookie{Name: cookiePubKeyHash, Value: "0x0000000000000000000000000000000000000000"}
	status, _, resp = client.do("GET", "/api/user", "", nil)
	require.Equal(http.StatusUnauthorized, status)
	require.Len(resp.Cookies(), 1)
	require.Equal(-1, resp.Cookies()[0].MaxAge)

	client.cookie = cookies[cookiePubKeyHash]
	req, err := http.NewRequest("GET", server.URL+"/api/user", nil)
	require.Nil(err)
	req.AddCookie(client.cookie)
	resp, err = http.DefaultClient.Do(req)
	require.Nil(err)
	defer resp.Body.Close()
	var users []*User
	err = json.NewDecoder(resp.Body).Decode(&users)
	require.Nil(err)
	require.Len(users, 1)
	require.Equal("alice", users[0].Name)
	require.Equal(testUserHash, users[0].PubKeyHash)

	status, body = client.json("GET", "/api/address", nil)
	require.Equal(http.StatusOK, status)
	addresses := body["result"].([]any)
	require.Len(addresses, 1)
	script, network, err := ckb.DecodeAddress(addresses[0].(string))
	require.Nil(err)
	require.Equal(ckb.NetworkTestnet, network)
	require.Equal(testMultisigArgs, script.Args)
	require.Equal(ckb.MultisigCodeHash, script.CodeHash)
}

func testUploadBody(t *testing.T, files map[string][]byte) (string, io.Reader) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := w.CreateFormFile("files", name)
		require.Nil(t, err)
		_, err = part.Write(data)
		require.Nil(t, err)
	}
	require.Nil(t, w.Close())
	return w.FormDataContentType(), &buf
}

func TestHTTPTransactionFlow(t *testing.T) {
	require := require.New(t)
	_, env := testBuildNode(t)
	server := httptest.NewServer(env.node.Handler())
	defer server.Close()
	client := &testClient{t: t, server: server, cookie: &http.Cookie{Name: cookiePubKeyHash, Value: testUserHash}}

	contentType, reader := testUploadBody(t, map[string][]byte{
		"a.json":       testDocument(1, 2, testMultisigArgs),
		"unknown.json": testDocument(2, 2, "0x99"),
	})
	status, body, _ := client.do("POST", "/api/upload/tx", contentType, reader)
	require.Equal(http.StatusCreated, status)
	results := body["result"].([]any)
	require.Len(results, 2)
	var id string
	for _, r := range results {
		item := r.(map[string]any)
		switch item["name"] {
		case "a.json":
			require.Equal("success", item["result"])
			id = item["id"].(string)
		case "unknown.json":
			require.Contains(item["result"], "unsupported configuration")
		}
	}
	require.Equal("tx-1", id)

	status, body = client.json("GET", "/api/tx", nil)
	require.Equal(http.StatusOK, status)
	require.Len(body["result"].([]any), 1)

	status, body = client.json("GET", "/api/tx/tx-404", nil)
	require.Equal(http.StatusNotFound, status)

	status, body = client.json("POST", "/api/tx/"+id+"/push", nil)
	require.Equal(http.StatusBadRequest, status)
	require.Contains(body["error"], "insufficient signatures")

	status, body = client.json("POST", "/api/tx/"+id+"/sign", map[string]any{"lock_args": testSigner1, "signature": "0xaa"})
	require.Equal(http.StatusOK, status)
	require.Equal(true, body["is_new"])
	status, body = client.json("POST", "/api/tx/"+id+"/sign", map[string]any{"lock_args": testSigner2, "signature": "0xbb"})
	require.Equal(http.StatusOK, status)
	tx := body["transaction"].(map[string]any)
	require.Equal(true, tx["threshold_met"])
	require.Equal("uploaded", tx["state"])
	require.Len(tx["signed"].([]any), 2)

	status, body = client.json("POST", "/api/tx/"+id+"/push", nil)
	require.Equal(http.StatusOK, status)
	tx = body["transaction"].(map[string]any)
	require.Equal("pushed", tx["state"])
	require.NotNil(tx["pushed_at"])

	status, body = client.json("POST", "/api/tx/"+id+"/push", nil)
	require.Equal(http.StatusBadRequest, status)
	require.Contains(body["error"], "already finalized")

	status, body = client.json("GET", "/api/tx/"+id+"/status", nil)
	require.Equal(http.StatusOK, status)
	require.Equal(ckb.TransactionStatusUnknown, body["status"])

	status, _, resp := client.do("GET", "/api/tx/"+id+"/download", "", nil)
	require.Equal(http.StatusOK, status)
	require.Equal(`attachment; filename="a.json"`, resp.Header.Get("Content-Disposition"))
	require.NotEmpty(resp.Header.Get("X-Request-ID"))
}

func TestHTTPPushRejected(t *testing.T) {
	require := require.New(t)
	ctx, env := testBuildNode(t)
	server := httptest.NewServer(env.node.Handler())
	defer server.Close()
	client := &testClient{t: t, server: server, cookie: &http.Cookie{Name: cookiePubKeyHash, Value: testUserHash}}

	r := testSignedRecord(ctx, t, env, "a.json", 1)
	env.submitter.err = &ckb.CommandError{Command: "ckb-cli", ExitCode: 1, Stderr: "Resolve failed Dead"}
	status, body := client.json("POST", "/api/tx/"+r.Id+"/push", nil)
	require.Equal(http.StatusBadRequest, status)
	require.Equal("Resolve failed Dead", body["error"])
	tx := body["transaction"].(map[string]any)
	require.Equal("rejected", tx["state"])
	require.Equal("Resolve failed Dead", tx["reject_reason"])
}

func TestHTTPTransfer(t *testing.T) {
	require := require.New(t)
	_, env := testBuildNode(t)
	server := httptest.NewServer(env.node.Handler())
	defer server.Close()
	client := &testClient{t: t, server: server, cookie: &http.Cookie{Name: cookiePubKeyHash, Value: testUserHash}}

	env.toolbox.transfer = testDocument(9, 2, testMultisigArgs)
	status, body := client.json("POST", "/api/transfer", map[string]any{
		"from":  testTransferFrom,
		"to":    testTransferFrom,
		"value": "100",
		"fee":   1000,
	})
	require.Equal(http.StatusCreated, status)
	require.Equal("tx-1.json", body["name"])
	tx := body["transaction"].(map[string]any)
	require.Equal("alice", tx["uploaded_by"])

	status, body = client.json("POST", "/api/transfer", map[string]any{
		"from":  testTransferFrom,
		"to":    testTransferFrom,
		"value": 0,
		"fee":   1000,
	})
	require.Equal(http.StatusBadRequest, status)
	require.Contains(body["error"], "the value must be")
}
