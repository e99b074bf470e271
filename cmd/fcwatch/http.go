package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omochice/fcchat/pkg/model"
)

type modelView struct {
	UID        int            `json:"uid"`
	Name       string         `json:"name"`
	Tags       []string       `json:"tags,omitempty"`
	VideoState string         `json:"video_state"`
	SessionID  int            `json:"sid"`
	Fields     map[string]any `json:"fields"`
}

func viewOf(s model.Snapshot) modelView {
	return modelView{
		UID:        s.UID,
		Name:       s.Name,
		Tags:       s.Tags,
		VideoState: s.VideoState().String(),
		SessionID:  s.Best.ID,
		Fields:     s.Best.Fields,
	}
}

func modelViews(snaps []model.Snapshot) []modelView {
	out := make([]modelView, len(snaps))
	for i, s := range snaps {
		out[i] = viewOf(s)
	}
	return out
}

func newRouter(reg *model.Registry, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/models", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, modelViews(reg.Snapshots()))
	})
	r.Get("/models/{uid}", func(w http.ResponseWriter, req *http.Request) {
		uid, err := strconv.Atoi(chi.URLParam(req, "uid"))
		if err != nil {
			http.Error(w, "invalid uid", http.StatusBadRequest)
			return
		}
		m, ok := reg.Get(uid)
		if !ok {
			http.NotFound(w, req)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(m.Snapshot()))
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
