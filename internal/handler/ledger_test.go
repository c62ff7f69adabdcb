package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/waveledger/internal/deploy"
	"github.com/jmerrifield20/waveledger/internal/handler"
	"github.com/jmerrifield20/waveledger/internal/ledger"
	"github.com/jmerrifield20/waveledger/internal/network"
	"github.com/jmerrifield20/waveledger/internal/webhooks"
	"go.uber.org/zap"
)

type testNode struct {
	router *gin.Engine
	hooks  *webhooks.Service
	net    *network.Network
	deps   *deploy.Local
	tokens []string
}

func setupNode(t *testing.T, cfg ledger.Config) *testNode {
	t.Helper()
	gin.SetMode(gin.TestMode)

	net, err := network.New(network.Config{Accounts: 3, Seed: "handler-test"}, zap.NewNop())
	if err != nil {
		t.Fatalf("network.New: %v", err)
	}
	deps := deploy.NewLocal(net, cfg, zap.NewNop())
	t.Cleanup(func() { deps.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hooks := webhooks.NewService(webhooks.NewRepository(), zap.NewNop())
	n := &testNode{
		router: handler.NewRouter(ctx, net, deps, handler.RouterConfig{Webhooks: hooks}, zap.NewNop()),
		hooks:  hooks,
		net:    net,
		deps:   deps,
	}
	actors, _ := net.ProvisionActors(ctx)
	for _, a := range actors {
		tok, err := net.IssueToken(a.Address)
		if err != nil {
			t.Fatalf("IssueToken: %v", err)
		}
		n.tokens = append(n.tokens, tok)
	}
	return n
}

func (n *testNode) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	n.router.ServeHTTP(w, req)
	return w
}

// deploy deploys a ledger as the first actor and returns its address.
func (n *testNode) deploy(t *testing.T) string {
	t.Helper()
	w := n.do(http.MethodPost, "/api/v1/deployments", n.tokens[0], "")
	if w.Code != http.StatusCreated {
		t.Fatalf("deploy: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var dep deploy.Deployment
	if err := json.Unmarshal(w.Body.Bytes(), &dep); err != nil {
		t.Fatalf("decode deployment: %v", err)
	}
	return dep.Address
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func TestLedgerOverview_200_empty(t *testing.T) {
	n := setupNode(t, ledger.Config{})
	addr := n.deploy(t)

	w := n.do(http.MethodGet, "/api/v1/ledgers/"+addr, "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Count int    `json:"count"`
		Root  string `json:"root"`
	}
	decode(t, w, &resp)
	if resp.Count != 0 {
		t.Errorf("count = %d, want 0", resp.Count)
	}
	if resp.Root != ledger.GenesisHash {
		t.Errorf("root = %q, want genesis", resp.Root)
	}
}

func TestLedgerOverview_404(t *testing.T) {
	n := setupNode(t, ledger.Config{})

	w := n.do(http.MethodGet, "/api/v1/ledgers/0xdeadbeef", "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestSubmit_401_noToken(t *testing.T) {
	n := setupNode(t, ledger.Config{})
	addr := n.deploy(t)

	w := n.do(http.MethodPost, "/api/v1/ledgers/"+addr+"/records", "", `{"message":"hi"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestSubmit_401_badToken(t *testing.T) {
	n := setupNode(t, ledger.Config{})
	addr := n.deploy(t)

	w := n.do(http.MethodPost, "/api/v1/ledgers/"+addr+"/records", "not-a-jwt", `{"message":"hi"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestSubmit_400_emptyMessage(t *testing.T) {
	n := setupNode(t, ledger.Config{})
	addr := n.deploy(t)

	w := n.do(http.MethodPost, "/api/v1/ledgers/"+addr+"/records", n.tokens[0], `{"message":""}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	decode(t, w, &resp)
	if resp["field"] != "message" {
		t.Errorf("field = %v, want message", resp["field"])
	}
}

func TestSubmit_400_malformedBody(t *testing.T) {
	n := setupNode(t, ledger.Config{})
	addr := n.deploy(t)

	w := n.do(http.MethodPost, "/api/v1/ledgers/"+addr+"/records", n.tokens[0], `{"message":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSubmitAndConfirm_roundTrip(t *testing.T) {
	n := setupNode(t, ledger.Config{})
	addr := n.deploy(t)
	base := "/api/v1/ledgers/" + addr

	messages := []string{"A message!", "Another message!"}
	for i, msg := range messages {
		w := n.do(http.MethodPost, base+"/records", n.tokens[i], `{"message":"`+msg+`"}`)
		if w.Code != http.StatusAccepted {
			t.Fatalf("submit %d: expected 202, got %d: %s", i, w.Code, w.Body.String())
		}
		var h ledger.PendingHandle
		decode(t, w, &h)
		if h.Seq != uint64(i) {
			t.Errorf("submit %d: seq = %d", i, h.Seq)
		}

		w = n.do(http.MethodGet, base+"/records/"+strconv.FormatUint(h.Seq, 10)+"/confirmation?tx_hash="+h.TxHash, "", "")
		if w.Code != http.StatusOK {
			t.Fatalf("await %d: expected 200, got %d: %s", i, w.Code, w.Body.String())
		}
		var rec ledger.Record
		decode(t, w, &rec)
		if !rec.Confirmed || rec.Message != msg {
			t.Errorf("await %d: got %+v", i, rec)
		}
	}

	w := n.do(http.MethodGet, base+"/records", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("records: expected 200, got %d", w.Code)
	}
	var list struct {
		Records []ledger.Record `json:"records"`
		Count   int             `json:"count"`
	}
	decode(t, w, &list)
	if list.Count != 2 || len(list.Records) != 2 {
		t.Fatalf("records: got %d", list.Count)
	}
	actors, _ := n.net.ProvisionActors(context.Background())
	for i, rec := range list.Records {
		if rec.Seq != uint64(i) || rec.Author != actors[i].Address || rec.Message != messages[i] {
			t.Errorf("record %d = %+v", i, rec)
		}
	}

	w = n.do(http.MethodGet, base+"/records?author="+actors[1].Address, "", "")
	decode(t, w, &list)
	if list.Count != 1 || list.Records[0].Message != "Another message!" {
		t.Errorf("author filter: got %+v", list.Records)
	}

	w = n.do(http.MethodGet, base+"/verify", "", "")
	var v map[string]any
	decode(t, w, &v)
	if v["valid"] != true {
		t.Errorf("verify: got %v", v)
	}
}

func TestAwaitConfirmation_202_stillPending(t *testing.T) {
	n := setupNode(t, ledger.Config{BlockInterval: time.Hour})
	addr := n.deploy(t)
	base := "/api/v1/ledgers/" + addr

	w := n.do(http.MethodPost, base+"/records", n.tokens[0], `{"message":"slow"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("submit: expected 202, got %d", w.Code)
	}

	w = n.do(http.MethodGet, base+"/records/0/confirmation?timeout=20ms", "", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	// Unconfirmed records stay out of the listing.
	w = n.do(http.MethodGet, base+"/records", "", "")
	var list struct {
		Count int `json:"count"`
	}
	decode(t, w, &list)
	if list.Count != 0 {
		t.Errorf("count = %d, want 0 before confirmation", list.Count)
	}
}

func TestAwaitConfirmation_504_timeout(t *testing.T) {
	n := setupNode(t, ledger.Config{BlockInterval: time.Hour, ConfirmationTimeout: 10 * time.Millisecond})
	addr := n.deploy(t)
	base := "/api/v1/ledgers/" + addr

	n.do(http.MethodPost, base+"/records", n.tokens[0], `{"message":"slow"}`)

	w := n.do(http.MethodGet, base+"/records/0/confirmation?timeout=1s", "", "")
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAwaitConfirmation_404_unknownSeq(t *testing.T) {
	n := setupNode(t, ledger.Config{})
	addr := n.deploy(t)

	w := n.do(http.MethodGet, "/api/v1/ledgers/"+addr+"/records/7/confirmation", "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAwaitConfirmation_400_badParams(t *testing.T) {
	n := setupNode(t, ledger.Config{})
	addr := n.deploy(t)
	base := "/api/v1/ledgers/" + addr + "/records/"

	for _, path := range []string{"abc/confirmation", "0/confirmation?timeout=soon", "0/confirmation?timeout=-1s"} {
		w := n.do(http.MethodGet, base+path, "", "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, w.Code)
		}
	}
}
