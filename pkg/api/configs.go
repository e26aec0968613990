package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pgsim/devicectl/pkg/datasource"
	"github.com/pgsim/devicectl/pkg/store"
	"github.com/pgsim/devicectl/pkg/syncer"
)

func (s *Server) listConfigs(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"configs":   snap.Configs,
		"simParams": snap.SimParams,
		"selection": snap.Selection,
	})
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	cfg, ok := s.store.Config(id)
	if !ok {
		writeError(w, http.StatusNotFound, "config not found")
		return
	}
	out := map[string]interface{}{
		"config":   cfg,
		"warnings": cfg.Warnings(),
	}
	if err := cfg.Validate(s.deviceType(id)); err != nil {
		out["valid"] = false
		out["validationError"] = err.Error()
	} else {
		out["valid"] = true
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) putConfig(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var patch store.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	cfg := s.store.Apply(id, patch)
	res := s.finishMutation(r.Context(), id, cfg)
	writeJSON(w, http.StatusOK, map[string]interface{}{"config": cfg, "sync": res})
}

func (s *Server) deleteConfig(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.store.Remove(id) {
		writeError(w, http.StatusNotFound, "config not found")
		return
	}
	s.broker.PublishRemoved(id)
	s.saveSession()
	writeJSON(w, http.StatusOK, map[string]interface{}{"removed": true})
}

func (s *Server) clearConfigs(w http.ResponseWriter, r *http.Request) {
	ids := make([]string, 0)
	for id := range s.store.AllConfigs() {
		ids = append(ids, id)
	}
	s.store.Clear()
	for _, id := range ids {
		s.broker.PublishRemoved(id)
	}
	s.saveSession()
	writeJSON(w, http.StatusOK, map[string]interface{}{"cleared": len(ids)})
}

func (s *Server) putType(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		Type string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	st, err := datasource.ParseSourceType(body.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg := s.store.SetType(id, st)
	res := s.finishMutation(r.Context(), id, cfg)
	writeJSON(w, http.StatusOK, map[string]interface{}{"config": cfg, "sync": res})
}

func (s *Server) putManual(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body datasource.ManualSetpoint
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	cfg := s.store.SetManual(id, body)
	res := s.finishMutation(r.Context(), id, cfg)
	writeJSON(w, http.StatusOK, map[string]interface{}{"config": cfg, "sync": res})
}

func (s *Server) putRandom(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body datasource.RandomConfig
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	cfg := s.store.SetRandom(id, body)
	res := s.finishMutation(r.Context(), id, cfg)
	writeJSON(w, http.StatusOK, map[string]interface{}{"config": cfg, "sync": res})
}

func (s *Server) putHistorical(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body datasource.HistoricalConfig
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	cfg := s.store.SetHistorical(id, body)
	res := s.finishMutation(r.Context(), id, cfg)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"config":   cfg,
		"sync":     res,
		"warnings": cfg.Warnings(),
	})
}

func (s *Server) putSimParams(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body store.SimParams
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	merged := s.store.SetSimParams(id, body)
	s.saveSession()
	res := s.sync.SyncSimParams(r.Context(), id, merged)
	s.broker.PublishSync(id, res)
	writeJSON(w, http.StatusOK, map[string]interface{}{"simParams": merged, "sync": res})
}

func (s *Server) getSelection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"deviceIds": s.store.Selection()})
}

func (s *Server) putSelection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DeviceIDs []string `json:"deviceIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	ids := s.store.SetSelection(body.DeviceIDs)
	s.broker.PublishSelection(ids)
	s.saveSession()
	writeJSON(w, http.StatusOK, map[string]interface{}{"deviceIds": ids})
}

func (s *Server) batchType(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	st, err := datasource.ParseSourceType(body.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ids := s.store.BatchSetType(st)
	items := make([]syncer.BatchItem, 0, len(ids))
	for _, id := range ids {
		cfg, _ := s.store.Config(id)
		s.broker.PublishConfig(id, cfg)
		items = append(items, syncer.BatchItem{DeviceID: id, DeviceType: s.deviceType(id), Config: cfg})
	}
	s.saveSession()

	results := s.sync.SyncBatch(r.Context(), items)
	for _, res := range results {
		s.broker.PublishSync(res.DeviceID, res)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}
