package server

import (
	"encoding/json"
	"io/ioutil"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pingcap-incubator/tinyocc/kv/transaction/occ"
	"github.com/pingcap-incubator/tinyocc/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/render"
)

func newStatusRouter(s *Server) *mux.Router {
	rd := render.New(render.Options{
		IndentJSON: true,
	})
	router := mux.NewRouter()
	h := newStatusHandler(s, rd)
	router.HandleFunc("/status", h.Status).Methods("GET")
	router.HandleFunc("/config", h.Config).Methods("GET")
	router.HandleFunc("/log-level", h.SetLogLevel).Methods("POST")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return router
}

type statusHandler struct {
	svr *Server
	rd  *render.Render
}

// Status reports the state of the region's coordinator.
type Status struct {
	occ.Stats
	StartKey string `json:"start_key"`
	EndKey   string `json:"end_key"`
	LogLevel string `json:"log_level"`
}

func newStatusHandler(svr *Server, rd *render.Render) *statusHandler {
	return &statusHandler{
		svr: svr,
		rd:  rd,
	}
}

func (h *statusHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.rd.JSON(w, http.StatusOK, Status{
		Stats:    h.svr.coordinator.Stats(),
		StartKey: string(h.svr.region.StartKey),
		EndKey:   string(h.svr.region.EndKey),
		LogLevel: log.GetLogLevel().String(),
	})
}

func (h *statusHandler) Config(w http.ResponseWriter, r *http.Request) {
	h.rd.JSON(w, http.StatusOK, h.svr.conf)
}

func (h *statusHandler) SetLogLevel(w http.ResponseWriter, r *http.Request) {
	var level string
	data, err := ioutil.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		h.rd.JSON(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err = json.Unmarshal(data, &level); err != nil {
		h.rd.JSON(w, http.StatusBadRequest, err.Error())
		return
	}
	log.SetLevelByString(level)
	log.Infof("log level set to %s", log.GetLogLevel())
	h.rd.JSON(w, http.StatusOK, nil)
}
