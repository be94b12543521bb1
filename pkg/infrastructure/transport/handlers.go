package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"supplychain/pkg/app/export"
	"supplychain/pkg/domain/model"
	"supplychain/pkg/domain/service"
)

const (
	actorHeader     = "X-Actor-ID"
	requestIDHeader = "X-Request-ID"
)

type Handler struct {
	supplyChain service.SupplyChainService
	query       service.ProductQueryService
}

type createProductRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

type transitionRequest struct {
	Location string `json:"location"`
}

type productResponse struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Producer     string    `json:"producer"`
	CurrentOwner string    `json:"currentOwner"`
	State        int       `json:"state"`
	StateLabel   string    `json:"stateLabel"`
	CreatedAt    time.Time `json:"createdAt"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

type recordResponse struct {
	Seq        int64     `json:"seq"`
	ProductID  int64     `json:"productId"`
	Transition string    `json:"transition"`
	FromState  int       `json:"fromState"`
	ToState    int       `json:"toState"`
	Actor      string    `json:"actor"`
	Timestamp  time.Time `json:"timestamp"`
	Location   string    `json:"location"`
}

type capabilitiesResponse struct {
	Actor        string   `json:"actor"`
	Capabilities []string `json:"capabilities"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Router serves the product API under /api/v1. metrics may be nil.
func Router(supplyChain service.SupplyChainService, query service.ProductQueryService, metrics http.Handler) http.Handler {
	handler := &Handler{supplyChain: supplyChain, query: query}

	r := mux.NewRouter()
	s := r.PathPrefix("/api/v1").Subrouter()

	s.HandleFunc("/products", handler.createProduct).Methods(http.MethodPost)
	s.HandleFunc("/products", handler.listProducts).Methods(http.MethodGet)
	s.HandleFunc("/products/{id:[0-9]+}", handler.getProduct).Methods(http.MethodGet)
	s.HandleFunc("/products/{id:[0-9]+}/history", handler.history).Methods(http.MethodGet)
	s.HandleFunc("/products/{id:[0-9]+}/{transition}", handler.applyTransition).Methods(http.MethodPost)
	s.HandleFunc("/actors/{actor}/capabilities", handler.capabilities).Methods(http.MethodGet)
	s.HandleFunc("/actors/{actor}/records.csv", handler.records).Methods(http.MethodGet)

	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}
	return logMiddleware(r)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var request createProductRequest
	if err := decode(r.Body, &request); err != nil {
		writeError(w, err)
		return
	}

	product, err := h.supplyChain.CreateProduct(r.Context(), r.Header.Get(actorHeader), request.Name, request.Location)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(*product))
}

func (h *Handler) applyTransition(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var request transitionRequest
	if err := decode(r.Body, &request); err != nil {
		writeError(w, err)
		return
	}

	kind := model.TransitionKind(mux.Vars(r)["transition"])
	product, err := h.supplyChain.Apply(r.Context(), id, kind, r.Header.Get(actorHeader), request.Location)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(*product))
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.query.ListProducts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response := make([]productResponse, 0, len(products))
	for _, product := range products {
		response = append(response, toProductResponse(product))
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	product, err := h.query.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(*product))
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	records, err := h.query.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	response := make([]recordResponse, 0, len(records))
	for _, record := range records {
		response = append(response, toRecordResponse(record))
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) capabilities(w http.ResponseWriter, r *http.Request) {
	actor := mux.Vars(r)["actor"]
	caps, err := h.query.CapabilitiesOf(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	names := make([]string, 0, len(caps))
	for _, c := range caps {
		names = append(names, string(c))
	}
	writeJSON(w, http.StatusOK, capabilitiesResponse{Actor: actor, Capabilities: names})
}

func (h *Handler) records(w http.ResponseWriter, r *http.Request) {
	actor := mux.Vars(r)["actor"]
	records, err := h.query.RecordsByActor(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)
	if err := export.WriteRecords(w, records); err != nil {
		log.WithError(err).Error("write records")
	}
}

func productID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, model.ErrInvalidArgument
	}
	return id, nil
}

func decode(body io.Reader, v interface{}) error {
	if err := json.NewDecoder(body).Decode(v); err != nil && err != io.EOF {
		return model.ErrInvalidArgument
	}
	return nil
}

func toProductResponse(product model.Product) productResponse {
	return productResponse{
		ID:           product.ID,
		Name:         product.Name,
		Producer:     product.Producer,
		CurrentOwner: product.CurrentOwner,
		State:        int(product.State),
		StateLabel:   product.State.Label(),
		CreatedAt:    product.CreatedAt,
		LastUpdated:  product.LastUpdated,
	}
}

func toRecordResponse(record model.TransactionRecord) recordResponse {
	return recordResponse{
		Seq:        record.Seq,
		ProductID:  record.ProductID,
		Transition: string(record.Transition),
		FromState:  int(record.FromState),
		ToState:    int(record.ToState),
		Actor:      record.Actor,
		Timestamp:  record.Timestamp,
		Location:   record.Location,
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, model.ErrInvalidStateTransition):
		return http.StatusConflict
	case errors.Is(err, model.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
		if status == http.StatusInternalServerError {
			message = http.StatusText(status)
		}
	}
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err = w.Write(b); err != nil {
		log.WithField("err", err).Error("write response status")
	}
}

func logMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		log.WithFields(log.Fields{
			"requestId":  requestID,
			"method":     r.Method,
			"url":        r.URL,
			"remoteAddr": r.RemoteAddr,
			"userAgent":  r.UserAgent(),
			"actor":      r.Header.Get(actorHeader),
		}).Info("got a new request")
		h.ServeHTTP(w, r)
	})
}
