package api

import (
	"net/http"

	"github.com/absmach/supermq"

	"github.com/fedloop/fedloop/node"
	"github.com/fedloop/fedloop/pkg/drift"
	"github.com/fedloop/fedloop/session"
)

var (
	_ supermq.Response = (*sessionResponse)(nil)
	_ supermq.Response = (*listSessionResponse)(nil)
	_ supermq.Response = (*roundResponse)(nil)
	_ supermq.Response = (*updateResponse)(nil)
	_ supermq.Response = (*driftResponse)(nil)
	_ supermq.Response = (*nodeResponse)(nil)
	_ supermq.Response = (*listNodeResponse)(nil)
)

type sessionResponse struct {
	session.Session
	created bool
}

func (s sessionResponse) Code() int {
	if s.created {
		return http.StatusCreated
	}

	return http.StatusOK
}

func (s sessionResponse) Headers() map[string]string {
	if s.created {
		return map[string]string{
			"Location": "/sessions/" + s.ID,
		}
	}

	return map[string]string{}
}

func (s sessionResponse) Empty() bool {
	return false
}

type listSessionResponse struct {
	session.SessionPage
}

func (l listSessionResponse) Code() int {
	return http.StatusOK
}

func (l listSessionResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listSessionResponse) Empty() bool {
	return false
}

type roundResponse struct {
	session.Round
}

func (r roundResponse) Code() int {
	return http.StatusOK
}

func (r roundResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r roundResponse) Empty() bool {
	return false
}

type updateResponse struct {
	accepted bool
}

func (u updateResponse) Code() int {
	if u.accepted {
		return http.StatusAccepted
	}

	return http.StatusOK
}

func (u updateResponse) Headers() map[string]string {
	return map[string]string{}
}

func (u updateResponse) Empty() bool {
	return true
}

type driftResponse struct {
	drift.Report
}

func (d driftResponse) Code() int {
	return http.StatusOK
}

func (d driftResponse) Headers() map[string]string {
	return map[string]string{}
}

func (d driftResponse) Empty() bool {
	return false
}

type nodeResponse struct {
	node.Node
	created bool
}

func (n nodeResponse) Code() int {
	if n.created {
		return http.StatusCreated
	}

	return http.StatusOK
}

func (n nodeResponse) Headers() map[string]string {
	if n.created {
		return map[string]string{
			"Location": "/nodes/" + n.ID,
		}
	}

	return map[string]string{}
}

func (n nodeResponse) Empty() bool {
	return false
}

type listNodeResponse struct {
	node.NodePage
}

func (l listNodeResponse) Code() int {
	return http.StatusOK
}

func (l listNodeResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listNodeResponse) Empty() bool {
	return false
}
