package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/fedloop/fedloop/scheduler"
	"github.com/fedloop/fedloop/session"
)

const (
	sessionsEndpoint = "/sessions"
	retrainEndpoint  = "/retrain"
)

func (sdk *fedloopSDK) StartSession(cfg session.Config) (session.Session, error) {
	data, err := json.Marshal(map[string]any{
		"config":  cfg,
		"trigger": session.TriggerManual,
	})
	if err != nil {
		return session.Session{}, err
	}

	url := sdk.coordinatorURL + sessionsEndpoint

	body, err := sdk.processRequest(http.MethodPost, url, data, http.StatusCreated)
	if err != nil {
		return session.Session{}, err
	}

	var s session.Session
	if err := json.Unmarshal(body, &s); err != nil {
		return session.Session{}, err
	}

	return s, nil
}

func (sdk *fedloopSDK) GetSession(id string) (session.Session, error) {
	url := sdk.coordinatorURL + sessionsEndpoint + "/" + id

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return session.Session{}, err
	}

	var s session.Session
	if err := json.Unmarshal(body, &s); err != nil {
		return session.Session{}, err
	}

	return s, nil
}

func (sdk *fedloopSDK) ListSessions(offset, limit uint64) (session.SessionPage, error) {
	queries := make([]string, 0)
	if offset > 0 {
		queries = append(queries, fmt.Sprintf("offset=%d", offset))
	}
	if limit > 0 {
		queries = append(queries, fmt.Sprintf("limit=%d", limit))
	}
	query := ""
	if len(queries) > 0 {
		query = "?" + strings.Join(queries, "&")
	}
	url := sdk.coordinatorURL + sessionsEndpoint + query

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return session.SessionPage{}, err
	}

	var page session.SessionPage
	if err := json.Unmarshal(body, &page); err != nil {
		return session.SessionPage{}, err
	}

	return page, nil
}

func (sdk *fedloopSDK) AbortSession(id string) (session.Session, error) {
	url := sdk.coordinatorURL + sessionsEndpoint + "/" + id + "/abort"

	body, err := sdk.processRequest(http.MethodPost, url, nil, http.StatusOK)
	if err != nil {
		return session.Session{}, err
	}

	var s session.Session
	if err := json.Unmarshal(body, &s); err != nil {
		return session.Session{}, err
	}

	return s, nil
}

func (sdk *fedloopSDK) ResumeSession(id string) (session.Session, error) {
	url := sdk.coordinatorURL + sessionsEndpoint + "/" + id + "/resume"

	body, err := sdk.processRequest(http.MethodPost, url, nil, http.StatusOK)
	if err != nil {
		return session.Session{}, err
	}

	var s session.Session
	if err := json.Unmarshal(body, &s); err != nil {
		return session.Session{}, err
	}

	return s, nil
}

func (sdk *fedloopSDK) GetOpenRound(id string) (session.Round, error) {
	url := sdk.coordinatorURL + sessionsEndpoint + "/" + id + "/round"

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return session.Round{}, err
	}

	var r session.Round
	if err := json.Unmarshal(body, &r); err != nil {
		return session.Round{}, err
	}

	return r, nil
}

func (sdk *fedloopSDK) Retrain(trigger scheduler.Trigger) (session.Session, error) {
	data, err := json.Marshal(trigger)
	if err != nil {
		return session.Session{}, err
	}

	url := sdk.coordinatorURL + retrainEndpoint

	body, err := sdk.processRequest(http.MethodPost, url, data, http.StatusCreated)
	if err != nil {
		return session.Session{}, err
	}

	var s session.Session
	if err := json.Unmarshal(body, &s); err != nil {
		return session.Session{}, err
	}

	return s, nil
}
