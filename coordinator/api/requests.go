package api

import (
	apiutil "github.com/absmach/supermq/api/http/util"

	"github.com/fedloop/fedloop/pkg/drift"
	"github.com/fedloop/fedloop/scheduler"
	"github.com/fedloop/fedloop/session"
)

type startSessionReq struct {
	Config  session.Config        `json:"config"`
	Trigger session.TriggerSource `json:"trigger,omitempty"`
}

func (r *startSessionReq) validate() error {
	if r.Trigger == "" {
		r.Trigger = session.TriggerManual
	}

	return r.Config.Validate()
}

type registerClientReq struct {
	sessionID string
	NodeID    string `json:"node_id"`
}

func (r *registerClientReq) validate() error {
	if r.sessionID == "" || r.NodeID == "" {
		return apiutil.ErrMissingID
	}

	return nil
}

type submitUpdateReq struct {
	session.ClientUpdate `json:",inline"`
}

func (r *submitUpdateReq) validate() error {
	if r.SessionID == "" || r.NodeID == "" {
		return apiutil.ErrMissingID
	}

	return nil
}

type submitUpdateCBORReq struct {
	payload []byte
}

func (r *submitUpdateCBORReq) validate() error {
	if len(r.payload) == 0 {
		return apiutil.ErrEmptyList
	}

	return nil
}

type entityReq struct {
	id string
}

func (r *entityReq) validate() error {
	if r.id == "" {
		return apiutil.ErrMissingID
	}

	return nil
}

type listEntityReq struct {
	offset, limit uint64
}

func (r *listEntityReq) validate() error {
	return nil
}

type checkDriftReq struct {
	Reference drift.Window `json:"reference"`
	Current   drift.Window `json:"current"`
}

func (r *checkDriftReq) validate() error {
	if len(r.Reference.Features) == 0 || len(r.Current.Features) == 0 {
		return apiutil.ErrEmptyList
	}

	return nil
}

type createNodeReq struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

func (r *createNodeReq) validate() error {
	return nil
}

type retrainReq struct {
	scheduler.Trigger `json:",inline"`
}

func (r *retrainReq) validate() error {
	if r.Mode == "" {
		r.Mode = session.TriggerManual
	}

	return nil
}
