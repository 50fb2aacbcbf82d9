// Package resources implements MCP resource handlers for recorded progress.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (devpulse://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/devpulse/internal/engine"
	"github.com/HendryAvila/devpulse/internal/state"
)

// StatusURI addresses the progress of every requirement.
const StatusURI = "devpulse://requirements/status"

// Handler manages progress resource endpoints.
type Handler struct {
	eng *engine.Engine
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(eng *engine.Engine) *Handler {
	return &Handler{eng: eng}
}

// RequirementStatus is one requirement with its task records.
type RequirementStatus struct {
	state.Requirement
	Tasks []state.Task `json:"tasks"`
}

// StatusResource returns the MCP resource definition for requirement status.
func (h *Handler) StatusResource() mcp.Resource {
	return mcp.NewResource(
		StatusURI,
		"Requirement Progress",
		mcp.WithResourceDescription("Recorded progress of every requirement and its tasks"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleStatus returns every requirement and its tasks as JSON.
func (h *Handler) HandleStatus(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	store := h.eng.Store()
	reqs, err := store.ListRequirements()
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}

	out := make([]RequirementStatus, 0, len(reqs))
	for _, r := range reqs {
		tasks, err := store.ListTasks(r.ReqID)
		if err != nil {
			return errorResource(req.Params.URI, err.Error()), nil
		}
		if tasks == nil {
			tasks = []state.Task{}
		}
		out = append(out, RequirementStatus{Requirement: r, Tasks: tasks})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling status: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
