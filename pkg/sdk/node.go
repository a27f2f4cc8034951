package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/fedloop/fedloop/node"
	"github.com/fedloop/fedloop/pkg/drift"
)

const (
	nodesEndpoint      = "/nodes"
	driftCheckEndpoint = "/drift/check"
)

func (sdk *fedloopSDK) CreateNode(name, address string) (node.Node, error) {
	data, err := json.Marshal(map[string]string{
		"name":    name,
		"address": address,
	})
	if err != nil {
		return node.Node{}, err
	}

	url := sdk.coordinatorURL + nodesEndpoint

	body, err := sdk.processRequest(http.MethodPost, url, data, http.StatusCreated)
	if err != nil {
		return node.Node{}, err
	}

	var n node.Node
	if err := json.Unmarshal(body, &n); err != nil {
		return node.Node{}, err
	}

	return n, nil
}

func (sdk *fedloopSDK) GetNode(id string) (node.Node, error) {
	url := sdk.coordinatorURL + nodesEndpoint + "/" + id

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return node.Node{}, err
	}

	var n node.Node
	if err := json.Unmarshal(body, &n); err != nil {
		return node.Node{}, err
	}

	return n, nil
}

func (sdk *fedloopSDK) ListNodes(offset, limit uint64) (node.NodePage, error) {
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
	url := sdk.coordinatorURL + nodesEndpoint + query

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return node.NodePage{}, err
	}

	var page node.NodePage
	if err := json.Unmarshal(body, &page); err != nil {
		return node.NodePage{}, err
	}

	return page, nil
}

func (sdk *fedloopSDK) CheckDrift(reference, current drift.Window) (drift.Report, error) {
	data, err := json.Marshal(map[string]drift.Window{
		"reference": reference,
		"current":   current,
	})
	if err != nil {
		return drift.Report{}, err
	}

	url := sdk.coordinatorURL + driftCheckEndpoint

	body, err := sdk.processRequest(http.MethodPost, url, data, http.StatusOK)
	if err != nil {
		return drift.Report{}, err
	}

	var report drift.Report
	if err := json.Unmarshal(body, &report); err != nil {
		return drift.Report{}, err
	}

	return report, nil
}
