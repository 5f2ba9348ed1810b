package routing

import (
	"context"
	"log/slog"

	"github.com/Devon-White/livewire/internal/callinfo"
	"github.com/Devon-White/livewire/internal/subscribers"
	"github.com/Devon-White/livewire/internal/swml"
)

// Orchestrator turns a transfer request from the AI agent into a
// parallel-dial plan against the currently online agents, and persists
// the caller-submitted info for the agent dashboard.
//
// Every data-availability gap (unknown call, no project binding, empty
// directory) degrades to an empty target list; the call flow must never
// fail because routing state is missing.
type Orchestrator struct {
	Calls       *callinfo.Store
	Subscribers *subscribers.Directory

	// PublicURL is the externally reachable base URL used for the
	// call-status callback on the transfer document.
	PublicURL string

	Log *slog.Logger
}

// TransferRequest is what the "collect caller info" step hands us.
type TransferRequest struct {
	CallID    string
	FirstName string
	LastName  string
	Summary   string
}

// TransferResult carries the human-readable status plus the generated
// call-control document.
type TransferResult struct {
	Status   string
	Targets  []string
	Document swml.Document
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return slog.Default()
}

// Transfer builds the dial-all transfer plan for a call. No ordering
// guarantee among targets; every online agent with an address rings.
func (o *Orchestrator) Transfer(ctx context.Context, req TransferRequest) TransferResult {
	log := o.logger()

	var targets []string
	cctx, ok := o.Calls.Context(req.CallID)
	switch {
	case !ok:
		log.Warn("no call context for transfer", "call_id", req.CallID)
	case cctx.ProjectID == "":
		log.Warn("call context has no project", "call_id", req.CallID)
	default:
		for _, e := range o.Subscribers.ActiveByProject(cctx.ProjectID) {
			if e.Address == "" {
				continue
			}
			targets = append(targets, e.Address)
		}
		log.Info("transfer targets resolved", "call_id", req.CallID, "project_id", cctx.ProjectID, "targets", len(targets))
	}

	// Persist caller info regardless of target availability so the
	// dashboard can still show who was on the line.
	if req.CallID != "" {
		o.Calls.SetInfo(req.CallID, callinfo.Info{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Summary:   req.Summary,
		})
	} else {
		log.Warn("transfer request without call_id; info not stored")
	}

	statusURL := ""
	if o.PublicURL != "" {
		statusURL = o.PublicURL + "/api/call_status"
	}

	status := "Transferring to available agents"
	if len(targets) == 0 {
		status = "No agents available"
	}
	return TransferResult{
		Status:   status,
		Targets:  targets,
		Document: swml.TransferDocument(targets, statusURL),
	}
}

// HandleCallStatus reconciles a status webhook. Only a disconnected
// segment removes state; everything else is informational. The removal
// is idempotent, so double-delivered webhooks are no-ops.
func (o *Orchestrator) HandleCallStatus(ctx context.Context, segmentID, connectState string) {
	log := o.logger()
	if segmentID == "" {
		log.Info("call status without segment_id ignored")
		return
	}
	if connectState != "disconnected" {
		log.Info("call status", "segment_id", segmentID, "connect_state", connectState)
		return
	}
	if o.Calls.Remove(segmentID) {
		log.Info("disconnected call removed", "segment_id", segmentID)
	}
}
