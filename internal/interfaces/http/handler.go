package httpinterface

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shielded-wallet/zsyncd/internal/core/application/adapter"
	"github.com/shielded-wallet/zsyncd/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

const maxRequestSize = 1 << 20

type handler struct {
	manager *adapter.Manager
	log     log.FieldLogger
	streams *streamHub
}

func (h *handler) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.log.WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"remote": r.RemoteAddr,
		}).Debug("http request")
		next.ServeHTTP(w, r)
	})
}

func (h *handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	adapters := h.manager.List()
	accounts := make([]accountInfo, 0, len(adapters))
	for _, a := range adapters {
		accounts = append(accounts, accountInfo{
			ID:          a.ID(),
			Name:        a.Name(),
			Fingerprint: a.Fingerprint(),
			State:       a.State().State.String(),
		})
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	a, ok := h.getAdapter(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newStatusInfo(a.State()))
}

func (h *handler) balance(w http.ResponseWriter, r *http.Request) {
	a, ok := h.getAdapter(w, r)
	if !ok {
		return
	}
	info, err := a.BalanceInfo(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newBalanceInfo(info))
}

func (h *handler) address(w http.ResponseWriter, r *http.Request) {
	a, ok := h.getAdapter(w, r)
	if !ok {
		return
	}

	var index uint32
	if str := r.URL.Query().Get("index"); str != "" {
		i, err := strconv.ParseUint(str, 10, 31)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error: fmt.Sprintf("invalid account index %q", str),
			})
			return
		}
		index = uint32(i)
	}

	addr, err := a.Address(index)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, addressInfo{AccountIndex: index, Address: addr})
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	a, ok := h.getAdapter(w, r)
	if !ok {
		return
	}
	if err := a.Refresh(); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newStatusInfo(a.State()))
}

// resync drops the chain cache of the account and syncs it again from the
// birthday height.
func (h *handler) resync(w http.ResponseWriter, r *http.Request) {
	a, ok := h.getAdapter(w, r)
	if !ok {
		return
	}
	if err := a.Reset(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newStatusInfo(a.State()))
}

func (h *handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.manager.Delete(id); err != nil {
		h.writeError(w, err)
		return
	}
	h.log.WithField("account", id).Info("account deleted")
	writeJSON(w, http.StatusOK, deletedInfo{ID: id, Deleted: true})
}

func (h *handler) debug(w http.ResponseWriter, r *http.Request) {
	a, ok := h.getAdapter(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint
	io.WriteString(w, a.DebugSnapshot(r.Context()))
}

func (h *handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	a, ok := h.getAdapter(w, r)
	if !ok {
		return
	}
	txs, err := a.Synchronizer().PendingTransactions(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	list := make([]txInfo, 0, len(txs))
	for _, tx := range txs {
		list = append(list, newTxInfo(tx))
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) submitTransaction(w http.ResponseWriter, r *http.Request) {
	a, ok := h.getAdapter(w, r)
	if !ok {
		return
	}

	var req submitRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestSize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: fmt.Sprintf("invalid request body: %s", err),
		})
		return
	}
	raw, err := decodeRawTx(req.Raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "raw transaction must be a valid hex string",
		})
		return
	}

	tx, err := a.SubmitTransaction(r.Context(), raw)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newTxInfo(*tx))
}

func (h *handler) getAdapter(
	w http.ResponseWriter, r *http.Request,
) (*adapter.Adapter, bool) {
	a, err := h.manager.Get(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return a, true
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	status := statusCode(err)
	if status == http.StatusInternalServerError {
		h.log.WithError(err).Warn("http request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, adapter.ErrAdapterNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrEmptyTransaction):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPendingTxAlreadyExists),
		errors.Is(err, domain.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNetworkFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint
	json.NewEncoder(w).Encode(v)
}
