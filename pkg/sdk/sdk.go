package sdk

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"

	"github.com/fedloop/fedloop/node"
	"github.com/fedloop/fedloop/pkg/drift"
	"github.com/fedloop/fedloop/scheduler"
	"github.com/fedloop/fedloop/session"
)

const CTJSON string = "application/json"

type SDK interface {
	// StartSession starts a manually triggered session.
	//
	// example:
	//  cfg := session.Config{Cluster: "edge-eu-1", NumRounds: 10, MinClients: 3, ModelSchema: 1024}
	//  sess, _ := sdk.StartSession(cfg)
	//  fmt.Println(sess)
	StartSession(cfg session.Config) (session.Session, error)

	// GetSession gets a session by id.
	//
	// example:
	//  sess, _ := sdk.GetSession("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	//  fmt.Println(sess)
	GetSession(id string) (session.Session, error)

	// ListSessions lists sessions.
	//
	// example:
	//  page, _ := sdk.ListSessions(0, 10)
	//  fmt.Println(page)
	ListSessions(offset, limit uint64) (session.SessionPage, error)

	// AbortSession aborts a running session.
	AbortSession(id string) (session.Session, error)

	// ResumeSession resumes a session from its last checkpoint.
	ResumeSession(id string) (session.Session, error)

	// GetOpenRound returns the open round of a running session.
	GetOpenRound(id string) (session.Round, error)

	// Retrain submits a retraining trigger to the scheduler.
	//
	// example:
	//  trigger := scheduler.Trigger{Mode: session.TriggerManual, Config: cfg}
	//  sess, _ := sdk.Retrain(trigger)
	Retrain(trigger scheduler.Trigger) (session.Session, error)

	// CheckDrift runs the drift monitor over two feature windows.
	//
	// example:
	//  report, _ := sdk.CheckDrift(reference, current)
	//  fmt.Println(report.Verdict)
	CheckDrift(reference, current drift.Window) (drift.Report, error)

	// CreateNode provisions a node.
	CreateNode(name, address string) (node.Node, error)

	// GetNode gets a node by id.
	GetNode(id string) (node.Node, error)

	// ListNodes lists nodes.
	ListNodes(offset, limit uint64) (node.NodePage, error)
}

type fedloopSDK struct {
	coordinatorURL string
	client         *http.Client
}

type Config struct {
	CoordinatorURL  string
	TLSVerification bool
}

func NewSDK(cfg Config) SDK {
	return &fedloopSDK{
		coordinatorURL: cfg.CoordinatorURL,
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

func (sdk *fedloopSDK) processRequest(method, reqURL string, data []byte, expectedRespCode int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", CTJSON)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if resp.StatusCode != expectedRespCode {
		return []byte{}, fmt.Errorf("unexpected response code: %d: %s", resp.StatusCode, body)
	}

	return body, nil
}
