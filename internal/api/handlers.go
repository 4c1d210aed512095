package api

import (
	"Go2FlowEval/internal/model"
	"Go2FlowEval/internal/query"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxLimit caps the number of flows one request can return.
const maxLimit = 10000

// FlowView is the JSON form of a flow.
type FlowView struct {
	Source          string `json:"source"`
	Destination     string `json:"destination"`
	Protocol        string `json:"protocol"`
	SourcePort      int    `json:"source_port"`
	DestinationPort int    `json:"destination_port"`
	Start           int64  `json:"start"`
	Stop            int64  `json:"stop"`
	TrueLabel       string `json:"true_label"`
	PredictedLabel  string `json:"predicted_label"`
}

// FlowsResponse is the body of GET /api/v1/flows.
type FlowsResponse struct {
	Count int        `json:"count"`
	Flows []FlowView `json:"flows"`
}

// Handler holds the dependencies for API handlers.
type Handler struct {
	querier    query.Querier
	gatherer   prometheus.Gatherer
	unsetLabel string
	logger     *slog.Logger
}

// NewHandler creates the HTTP handlers. gatherer may be nil to leave
// /metrics out.
func NewHandler(q query.Querier, gatherer prometheus.Gatherer, unsetLabel string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if unsetLabel == "" {
		unsetLabel = model.LabelUnset.String()
	}
	return &Handler{querier: q, gatherer: gatherer, unsetLabel: unsetLabel, logger: logger}
}

// Router wires the routes.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/summary", h.summaryHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/flows", h.flowsHandler).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.healthHandler).Methods(http.MethodGet)
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}

func (h *Handler) summaryHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := h.querier.Summary(r.Context())
	if err != nil {
		h.queryError(w, "failed to query summary", err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) flowsHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid query: %v", err), http.StatusBadRequest)
		return
	}

	flows, err := h.querier.Flows(r.Context(), filter)
	if err != nil {
		h.queryError(w, "failed to query flows", err)
		return
	}

	resp := FlowsResponse{Count: len(flows), Flows: make([]FlowView, len(flows))}
	for i := range flows {
		resp.Flows[i] = h.view(&flows[i])
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

func (h *Handler) queryError(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, query.ErrNoSnapshot) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.logger.Error(msg, slog.Any("error", err))
	http.Error(w, fmt.Sprintf("%s: %v", msg, err), http.StatusInternalServerError)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(jsonBytes)
}

func (h *Handler) view(f *model.Flow) FlowView {
	predicted := h.unsetLabel
	if f.PredictedLabel.IsSet() {
		predicted = f.PredictedLabel.String()
	}
	return FlowView{
		Source:          f.SrcAddr,
		Destination:     f.DstAddr,
		Protocol:        f.Protocol,
		SourcePort:      f.SrcPort,
		DestinationPort: f.DstPort,
		Start:           f.Start,
		Stop:            f.Stop,
		TrueLabel:       f.TrueLabel.String(),
		PredictedLabel:  predicted,
	}
}

// parseFilter reads src, dst, proto, sport, dport, true, predicted and
// limit from the query string.
func (h *Handler) parseFilter(r *http.Request) (query.Filter, error) {
	v := r.URL.Query()
	f := query.Filter{
		Src:   strings.TrimSpace(v.Get("src")),
		Dst:   strings.TrimSpace(v.Get("dst")),
		Proto: strings.ToLower(strings.TrimSpace(v.Get("proto"))),
	}

	var err error
	if f.SrcPort, err = parsePort(v.Get("sport")); err != nil {
		return f, fmt.Errorf("sport: %w", err)
	}
	if f.DstPort, err = parsePort(v.Get("dport")); err != nil {
		return f, fmt.Errorf("dport: %w", err)
	}
	if f.TrueLabel, err = h.parseLabel(v.Get("true")); err != nil {
		return f, fmt.Errorf("true: %w", err)
	}
	if f.PredictedLabel, err = h.parseLabel(v.Get("predicted")); err != nil {
		return f, fmt.Errorf("predicted: %w", err)
	}

	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return f, fmt.Errorf("limit must be a non-negative integer, got %q", s)
		}
		f.Limit = n
	}
	if f.Limit == 0 || f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	return f, nil
}

func parsePort(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	if n < 0 || n > 65535 {
		return nil, fmt.Errorf("port %d out of range", n)
	}
	return &n, nil
}

// parseLabel accepts the label names, their numeric classes, and the unset
// label.
func (h *Handler) parseLabel(s string) (*model.Label, error) {
	if s == "" {
		return nil, nil
	}
	if strings.EqualFold(s, h.unsetLabel) || strings.EqualFold(s, "unset") {
		l := model.LabelUnset
		return &l, nil
	}
	l, err := model.ParseLabel(s)
	if err != nil {
		return nil, err
	}
	return &l, nil
}
