package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/core"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/meter"
)

// Every /api response carries a numeric code: 0 for success, 1 for
// failure (paired with msg). Payload fields ride alongside the code.
type msgBody struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type dataBody struct {
	Code int `json:"code"`
	meter.DataSnapshot
}

type enemiesBody struct {
	Code    int                           `json:"code"`
	Enemies map[string]meter.EnemySummary `json:"enemy"`
}

type pausedBody struct {
	Code   int  `json:"code"`
	Paused bool `json:"paused"`
}

type payloadBody struct {
	Code int `json:"code"`
	Data any `json:"data"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warnf("failed to write response: %v", err)
	}
}

func (s *Server) writeErr(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, msgBody{Code: 1, Msg: msg})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, msgBody{Msg: "star resonance damage counter"})
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, dataBody{DataSnapshot: s.engine.Snapshot()})
}

func (s *Server) handleEnemies(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, enemiesBody{Enemies: s.engine.EnemySnapshot()})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.engine.ClearAll()
	s.writeJSON(w, http.StatusOK, msgBody{Msg: "statistics cleared"})
}

func (s *Server) handlePauseGet(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, pausedBody{Paused: s.engine.Paused()})
}

func (s *Server) handlePauseSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paused *bool `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Paused == nil {
		s.writeErr(w, http.StatusBadRequest, `body must be {"paused": <bool>}`)
		return
	}
	s.engine.SetPaused(*req.Paused)
	s.writeJSON(w, http.StatusOK, pausedBody{Paused: *req.Paused})
}

func (s *Server) handleSkill(w http.ResponseWriter, r *http.Request) {
	uid, err := strconv.ParseUint(mux.Vars(r)["uid"], 10, 64)
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, "uid must be a number")
		return
	}
	detail, err := s.engine.SkillDetail(uid)
	if errors.Is(err, core.ErrUserNotFound) {
		s.writeErr(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, payloadBody{Data: detail})
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	list, err := s.history.List()
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, payloadBody{Data: list})
}

func (s *Server) handleHistorySummary(w http.ResponseWriter, r *http.Request) {
	doc, err := s.history.Summary(mux.Vars(r)["ts"])
	s.writeHistoryDoc(w, doc, err)
}

func (s *Server) handleHistoryData(w http.ResponseWriter, r *http.Request) {
	doc, err := s.history.AllUserData(mux.Vars(r)["ts"])
	s.writeHistoryDoc(w, doc, err)
}

func (s *Server) handleHistorySkill(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	doc, err := s.history.SkillDetail(vars["ts"], vars["uid"])
	s.writeHistoryDoc(w, doc, err)
}

func (s *Server) writeHistoryDoc(w http.ResponseWriter, doc json.RawMessage, err error) {
	if errors.Is(err, core.ErrHistoryNotFound) {
		s.writeErr(w, http.StatusNotFound, "history record not found")
		return
	}
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, payloadBody{Data: doc})
}

func (s *Server) handleHistoryDownload(w http.ResponseWriter, r *http.Request) {
	ts := mux.Vars(r)["ts"]
	path, err := s.history.FightLogPath(ts)
	if errors.Is(err, core.ErrHistoryNotFound) {
		s.writeErr(w, http.StatusNotFound, "history record not found")
		return
	}
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "fight-"+ts+".log"))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	http.ServeFile(w, r, path)
}

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, payloadBody{Data: s.settings.All()})
}

func (s *Server) handleSettingsSet(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil || len(patch) == 0 {
		s.writeErr(w, http.StatusBadRequest, "body must be a non-empty JSON object")
		return
	}
	if _, err := s.settings.Update(patch); err != nil {
		s.writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, payloadBody{Data: s.settings.All()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"ws_subscribers": s.hub.Count(),
	}
	if s.stats != nil {
		for k, v := range s.stats() {
			stats[k] = v
		}
	}
	s.writeJSON(w, http.StatusOK, payloadBody{Data: stats})
}
