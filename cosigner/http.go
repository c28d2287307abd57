package cosigner

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/MixinNetwork/mixin/logger"
	"github.com/ckb-cosigner/cosigner/common"
	"github.com/ckb-cosigner/cosigner/cosigner/store"
	"github.com/dimfeld/httptreemux/v5"
	"github.com/gofrs/uuid/v5"
)

const maxUploadMemory = 32 << 20

var VERSION string

func (node *Node) StartHTTP(version string) {
	VERSION = version

	addr := fmt.Sprintf(":%d", node.conf.listenPort())
	logger.Printf("node.StartHTTP(%s) => %s", version, addr)
	err := http.ListenAndServe(addr, node.Handler())
	if err != nil {
		panic(err)
	}
}

func (node *Node) Handler() http.Handler {
	router := httptreemux.New()
	router.PanicHandler = common.HandlePanic
	router.NotFoundHandler = common.HandleNotFound

	router.GET("/", node.httpIndex)
	router.POST("/api/auth", node.httpAuth)
	router.GET("/api/user", node.authorized(node.httpListUsers))
	router.GET("/api/address", node.authorized(node.httpListAddresses))
	router.GET("/api/tx", node.authorized(node.httpListTransactions))
	router.GET("/api/tx/:id", node.authorized(node.httpGetTransaction))
	router.POST("/api/tx/:id/sign", node.authorized(node.httpSignTransaction))
	router.POST("/api/tx/:id/push", node.authorized(node.httpPushTransaction))
	router.GET("/api/tx/:id/status", node.authorized(node.httpTransactionStatus))
	router.GET("/api/tx/:id/download", node.authorized(node.httpDownloadTransaction))
	router.POST("/api/upload/tx", node.authorized(node.httpUploadTransactions))
	router.POST("/api/transfer", node.authorized(node.httpTransfer))
	return handleRequestId(common.HandleCORS(router))
}

func handleRequestId(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.Must(uuid.NewV4()).String()
		}
		w.Header().Set("X-Request-ID", id)
		logger.Verbosef("ServeHTTP(%s %s) %s", r.Method, r.URL.Path, id)
		handler.ServeHTTP(w, r)
	})
}

func (node *Node) httpIndex(w http.ResponseWriter, r *http.Request, params map[string]string) {
	common.RenderJSON(w, r, http.StatusOK, map[string]any{
		"version":   VERSION,
		"network":   node.conf.Network,
		"code_hash": node.registry.CodeHash(),
		"multisig":  len(node.registry.List()),
	})
}

func (node *Node) httpListUsers(w http.ResponseWriter, r *http.Request, params map[string]string) {
	common.RenderJSON(w, r, http.StatusOK, node.Users())
}

func (node *Node) httpListAddresses(w http.ResponseWriter, r *http.Request, params map[string]string) {
	addresses := make([]string, 0)
	for _, mc := range node.registry.List() {
		addr, err := node.MultisigAddress(mc)
		if err != nil {
			common.RenderError(w, r, err)
			return
		}
		addresses = append(addresses, addr)
	}
	common.RenderJSON(w, r, http.StatusOK, map[string]any{"result": addresses})
}

func (node *Node) httpListTransactions(w http.ResponseWriter, r *http.Request, params map[string]string) {
	records, err := node.ListRecords(r.Context())
	if err != nil {
		common.RenderError(w, r, err)
		return
	}
	view := make([]map[string]any, 0)
	for _, rec := range records {
		view = append(view, node.viewRecord(rec))
	}
	common.RenderJSON(w, r, http.StatusOK, map[string]any{"result": view})
}

func (node *Node) httpGetTransaction(w http.ResponseWriter, r *http.Request, params map[string]string) {
	rec, err := node.ReadRecord(r.Context(), params["id"])
	if err != nil {
		common.RenderError(w, r, err)
		return
	}
	common.RenderJSON(w, r, http.StatusOK, node.viewRecord(rec))
}

func (node *Node) httpSignTransaction(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var body struct {
		LockArgs  string `json:"lock_args"`
		Signature string `json:"signature"`
	}
	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil {
		common.RenderJSON(w, r, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	rec, isNew, err := node.SignTransaction(r.Context(), params["id"], body.LockArgs, body.Signature)
	if err != nil {
		common.RenderError(w, r, err)
		return
	}
	common.RenderJSON(w, r, http.StatusOK, map[string]any{
		"result":      "Signature submitted successfully",
		"is_new":      isNew,
		"transaction": node.viewRecord(rec),
	})
}

func (node *Node) httpPushTransaction(w http.ResponseWriter, r *http.Request, params map[string]string) {
	rec, err := node.PushTransaction(r.Context(), params["id"])
	if err != nil {
		common.RenderError(w, r, err)
		return
	}
	if rec.State == store.RecordStateRejected {
		common.RenderJSON(w, r, http.StatusBadRequest, map[string]any{
			"error":       rec.RejectReason.String,
			"transaction": node.viewRecord(rec),
		})
		return
	}
	common.RenderJSON(w, r, http.StatusOK, map[string]any{
		"result":      "Transaction pushed successfully",
		"transaction": node.viewRecord(rec),
	})
}

func (node *Node) httpTransactionStatus(w http.ResponseWriter, r *http.Request, params map[string]string) {
	rec, status, err := node.ReconcileTransaction(r.Context(), params["id"])
	if err != nil {
		common.RenderError(w, r, err)
		return
	}
	common.RenderJSON(w, r, http.StatusOK, map[string]any{
		"status":       status.Status,
		"committed_at": status.CommittedAt,
		"reason":       status.Reason,
		"transaction":  node.viewRecord(rec),
	})
}

func (node *Node) httpDownloadTransaction(w http.ResponseWriter, r *http.Request, params map[string]string) {
	rec, err := node.ReadRecord(r.Context(), params["id"])
	if err != nil {
		common.RenderError(w, r, err)
		return
	}
	data, err := node.documents.Read(rec.SourceReference)
	if err != nil {
		common.RenderError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(rec.SourceReference)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (node *Node) httpUploadTransactions(w http.ResponseWriter, r *http.Request, params map[string]string) {
	err := r.ParseMultipartForm(maxUploadMemory)
	if err != nil {
		common.RenderJSON(w, r, http.StatusBadRequest, map[string]any{"error": "No file uploaded"})
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		common.RenderJSON(w, r, http.StatusBadRequest, map[string]any{"error": "No file found in the request"})
		return
	}

	user := currentUser(r)
	result := make([]map[string]any, 0)
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			common.RenderError(w, r, err)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			common.RenderError(w, r, err)
			return
		}

		item := map[string]any{"name": fh.Filename, "result": "success"}
		rec, err := node.UploadTransaction(r.Context(), fh.Filename, data, user.Name)
		if err != nil {
			item["result"] = err.Error()
		} else {
			item["id"] = rec.Id
		}
		result = append(result, item)
	}
	common.RenderJSON(w, r, http.StatusCreated, map[string]any{"result": result})
}

func (node *Node) httpTransfer(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var body TransferRequest
	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil {
		common.RenderJSON(w, r, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	rec, err := node.CreateTransfer(r.Context(), &body, currentUser(r).Name)
	if err != nil {
		common.RenderError(w, r, err)
		return
	}
	common.RenderJSON(w, r, http.StatusCreated, map[string]any{
		"name":        path.Base(rec.SourceReference),
		"result":      "Successfully created transaction.",
		"transaction": node.viewRecord(rec),
	})
}

func (node *Node) viewRecord(r *store.Record) map[string]any {
	address, err := node.MultisigAddress(r.Config)
	if err != nil {
		logger.Printf("node.MultisigAddress(%s) => %v", r.Id, err)
	}
	signed := r.Signatures
	if signed == nil {
		signed = []*store.Signature{}
	}
	view := map[string]any{
		"id":              r.Id,
		"tx_hash":         r.TxHash,
		"signed":          signed,
		"tx_json_path":    r.SourceReference,
		"multisig_type":   r.MultisigType,
		"multisig_config": r.Config,
		"address":         address,
		"digest":          r.Digest,
		"description":     r.Description,
		"uploaded_by":     r.UploadedBy,
		"uploaded_at":     r.UploadedAt,
		"pushed_at":       viewTime(r.PushedAt),
		"committed_at":    viewTime(r.CommittedAt),
		"rejected_at":     viewTime(r.RejectedAt),
		"reject_reason":   nil,
		"state":           r.StateName(),
		"threshold_met":   ThresholdMet(r),
		"version":         r.Version,
	}
	if r.RejectReason.Valid {
		view["reject_reason"] = r.RejectReason.String
	}
	return view
}

func viewTime(t sql.NullTime) any {
	if !t.Valid {
		return nil
	}
	return t.Time
}
