package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chidori-ai/chidori/internal/cell"
	"github.com/chidori-ai/chidori/internal/cerr"
	"github.com/chidori-ai/chidori/internal/cstate"
	"github.com/chidori-ai/chidori/internal/dispatch"
)

// stateView is the wire representation of an ExecutionState, trimmed
// to a per-operation summary: freshness, exec count, whether a value is
// bound and any error message. Output values themselves, the dependency
// graph and creation-order bookkeeping are not included.
type stateView struct {
	ChronologyID       string             `json:"chronology_id"`
	ParentChronologyID string             `json:"parent_chronology_id,omitempty"`
	Operations         []operationView    `json:"operations"`
	ManualTargets      []cell.OperationID `json:"manual_targets"`
}

type operationView struct {
	ID       cell.OperationID `json:"id"`
	Name     string           `json:"name,omitempty"`
	Kind     cell.Kind        `json:"kind"`
	Fresh    bool             `json:"fresh"`
	ExecN    uint64           `json:"exec_count"`
	HasValue bool             `json:"has_value"`
	Error    string           `json:"error,omitempty"`
}

func toStateView(s *cstate.ExecutionState) stateView {
	view := stateView{
		ChronologyID:       s.ChronologyID,
		ParentChronologyID: s.ParentStateChronologyID,
		ManualTargets:      dispatch.ValidManualTargets(s),
	}
	for _, op := range s.OrderedOperations() {
		id := op.ID
		ov := operationView{
			ID:    id,
			Name:  op.Cell.Name,
			Kind:  op.Cell.Kind,
			Fresh: s.IsFresh(id),
			ExecN: s.ExecCounter[id],
		}
		if out, ok := s.Binding(id); ok {
			ov.HasValue = !out.IsError()
			if out.IsError() {
				ov.Error = out.Err.Error()
			}
		}
		view.Operations = append(view.Operations, ov)
	}
	return view
}

func (s *Server) handleGetHead(c *gin.Context) {
	c.JSON(http.StatusOK, toStateView(s.supervisor.Head()))
}

func (s *Server) handleGetState(c *gin.Context) {
	id := c.Param("chronology_id")
	state, err := s.graph.Get(id)
	if err != nil {
		respondError(c, http.StatusNotFound, err.Error())
		return
	}
	c.JSON(http.StatusOK, toStateView(state))
}

func (s *Server) handleGetHistory(c *gin.Context) {
	id := c.Param("chronology_id")
	history, err := s.graph.MergedHistory(id)
	if err != nil {
		respondError(c, http.StatusNotFound, err.Error())
		return
	}
	views := make([]stateView, 0, len(history))
	for _, st := range history {
		views = append(views, toStateView(st))
	}
	c.JSON(http.StatusOK, gin.H{"history": views})
}

// handleMutateCell creates or reconfigures a cell: the request's
// source is re-analyzed server-side into a fresh Signature, since a
// client-supplied signature could desynchronize from the cell's
// actual source (see cellRequest's doc comment).
func (s *Server) handleMutateCell(c *gin.Context) {
	var req cellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	authored := cell.Cell{
		Kind:     req.Kind,
		Name:     req.Name,
		Language: req.Language,
		Source:   req.Source,
	}
	sig := s.analyzers.Derive(authored)
	if req.Trigger != "" {
		sig.Trigger = req.Trigger
	}

	op := &cell.OperationNode{
		ID:        cell.OperationID(req.ID),
		Cell:      authored,
		Signature: sig,
	}
	s.supervisor.MutateCell(c.Request.Context(), op)
	c.JSON(http.StatusOK, toStateView(s.supervisor.Head()))
}

func (s *Server) handleRemoveCell(c *gin.Context) {
	id := cell.OperationID(c.Param("id"))
	s.supervisor.RemoveCell(c.Request.Context(), id)
	c.JSON(http.StatusOK, toStateView(s.supervisor.Head()))
}

func (s *Server) handleInvokeCell(c *gin.Context) {
	id := cell.OperationID(c.Param("id"))
	if err := s.supervisor.Invoke(c.Request.Context(), id); err != nil {
		respondStatusForError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStateView(s.supervisor.Head()))
}

func (s *Server) handlePause(c *gin.Context) {
	s.supervisor.Pause()
	c.JSON(http.StatusOK, gin.H{"playback": s.supervisor.Playback()})
}

func (s *Server) handleResume(c *gin.Context) {
	if err := s.supervisor.Resume(c.Request.Context()); err != nil {
		respondStatusForError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStateView(s.supervisor.Head()))
}

func (s *Server) handleStepOnce(c *gin.Context) {
	if err := s.supervisor.StepOnce(c.Request.Context()); err != nil {
		respondStatusForError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStateView(s.supervisor.Head()))
}

func (s *Server) handleRevert(c *gin.Context) {
	id := c.Param("chronology_id")
	if err := s.supervisor.RevertToState(id); err != nil {
		respondStatusForError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStateView(s.supervisor.Head()))
}

// respondStatusForError maps the cerr taxonomy to HTTP status codes:
// lookups that fail become 404, everything else from the dispatch/
// execution/validation surface becomes 400, since these are all
// caller-correctable (bad id, invalid target, malformed mutation)
// rather than server faults.
func respondStatusForError(c *gin.Context, err error) {
	switch err.(type) {
	case *cerr.StateLookupError:
		respondError(c, http.StatusNotFound, err.Error())
	default:
		respondError(c, http.StatusBadRequest, err.Error())
	}
}
