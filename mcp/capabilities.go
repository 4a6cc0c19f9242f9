// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

// ClientCapabilities describes what an MCP client offers to its server.
type ClientCapabilities struct {
	Roots        *RootsCapabilities        `json:"roots,omitempty"`
	Sampling     *SamplingCapabilities     `json:"sampling,omitempty"`
	Elicitation  *ElicitationCapabilities  `json:"elicitation,omitempty"`
	Tasks        *TaskCapabilities         `json:"tasks,omitempty"`
	Experimental map[string]map[string]any `json:"experimental,omitempty"`
}

// RootsCapabilities describes root-listing support.
type RootsCapabilities struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// SamplingCapabilities describes sampling support.
type SamplingCapabilities struct {
	Tools bool `json:"tools,omitempty"`
}

// ElicitationCapabilities describes elicitation support.
type ElicitationCapabilities struct {
	Form bool `json:"form,omitempty"`
	URL  bool `json:"url,omitempty"`
}

// TaskCapabilities describes task-polling support, shared by client and
// server capability records.
type TaskCapabilities struct {
	List     bool             `json:"list,omitempty"`
	Cancel   bool             `json:"cancel,omitempty"`
	Requests *TaskRequestCaps `json:"requests,omitempty"`
}

// TaskRequestCaps lists which request methods may be executed as tasks.
type TaskRequestCaps struct {
	Tools *TaskToolRequestCaps `json:"tools,omitempty"`
}

// TaskToolRequestCaps indicates that tools/call may be task-backed.
type TaskToolRequestCaps struct {
	Call bool `json:"call,omitempty"`
}

// ServerCapabilities describes what an MCP server offers to its client.
type ServerCapabilities struct {
	Tools        *ToolCapabilities         `json:"tools,omitempty"`
	Resources    *ResourceCapabilities     `json:"resources,omitempty"`
	Prompts      *PromptCapabilities       `json:"prompts,omitempty"`
	Logging      *struct{}                 `json:"logging,omitempty"`
	Completions  *struct{}                 `json:"completions,omitempty"`
	Tasks        *TaskCapabilities         `json:"tasks,omitempty"`
	Experimental map[string]map[string]any `json:"experimental,omitempty"`
}

// ToolCapabilities describes tool-listing support.
type ToolCapabilities struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourceCapabilities describes resource-listing and subscription support.
type ResourceCapabilities struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// PromptCapabilities describes prompt-listing support.
type PromptCapabilities struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// mergeBool implements the "true dominates false" merge law of the
// capability model: once a sub-flag has been advertised true, a later
// merge can never revert it to false.
func mergeBool(existing, incoming bool) bool {
	return existing || incoming
}

// MergeClientCapabilities merges incoming into existing per the capability
// model's monotonic merge law: "presence adds, true dominates false".
// Neither argument is mutated; the merged result is returned.
func MergeClientCapabilities(existing, incoming *ClientCapabilities) *ClientCapabilities {
	if existing == nil {
		return incoming
	}
	if incoming == nil {
		return existing
	}
	out := *existing
	if incoming.Roots != nil {
		if out.Roots == nil {
			out.Roots = &RootsCapabilities{}
		}
		r := *out.Roots
		r.ListChanged = mergeBool(r.ListChanged, incoming.Roots.ListChanged)
		out.Roots = &r
	}
	if incoming.Sampling != nil {
		if out.Sampling == nil {
			out.Sampling = &SamplingCapabilities{}
		}
		s := *out.Sampling
		s.Tools = mergeBool(s.Tools, incoming.Sampling.Tools)
		out.Sampling = &s
	}
	if incoming.Elicitation != nil {
		if out.Elicitation == nil {
			out.Elicitation = &ElicitationCapabilities{}
		}
		e := *out.Elicitation
		e.Form = mergeBool(e.Form, incoming.Elicitation.Form)
		e.URL = mergeBool(e.URL, incoming.Elicitation.URL)
		out.Elicitation = &e
	}
	if incoming.Tasks != nil {
		out.Tasks = mergeTaskCapabilities(out.Tasks, incoming.Tasks)
	}
	out.Experimental = mergeExperimental(out.Experimental, incoming.Experimental)
	return &out
}

// MergeServerCapabilities merges incoming into existing with the same
// monotonic law as MergeClientCapabilities.
func MergeServerCapabilities(existing, incoming *ServerCapabilities) *ServerCapabilities {
	if existing == nil {
		return incoming
	}
	if incoming == nil {
		return existing
	}
	out := *existing
	if incoming.Tools != nil {
		if out.Tools == nil {
			out.Tools = &ToolCapabilities{}
		}
		t := *out.Tools
		t.ListChanged = mergeBool(t.ListChanged, incoming.Tools.ListChanged)
		out.Tools = &t
	}
	if incoming.Resources != nil {
		if out.Resources == nil {
			out.Resources = &ResourceCapabilities{}
		}
		r := *out.Resources
		r.Subscribe = mergeBool(r.Subscribe, incoming.Resources.Subscribe)
		r.ListChanged = mergeBool(r.ListChanged, incoming.Resources.ListChanged)
		out.Resources = &r
	}
	if incoming.Prompts != nil {
		if out.Prompts == nil {
			out.Prompts = &PromptCapabilities{}
		}
		p := *out.Prompts
		p.ListChanged = mergeBool(p.ListChanged, incoming.Prompts.ListChanged)
		out.Prompts = &p
	}
	if incoming.Logging != nil {
		out.Logging = incoming.Logging
	}
	if incoming.Completions != nil {
		out.Completions = incoming.Completions
	}
	if incoming.Tasks != nil {
		out.Tasks = mergeTaskCapabilities(out.Tasks, incoming.Tasks)
	}
	out.Experimental = mergeExperimental(out.Experimental, incoming.Experimental)
	return &out
}

func mergeTaskCapabilities(existing, incoming *TaskCapabilities) *TaskCapabilities {
	if existing == nil {
		return incoming
	}
	out := *existing
	out.List = mergeBool(out.List, incoming.List)
	out.Cancel = mergeBool(out.Cancel, incoming.Cancel)
	if incoming.Requests != nil {
		var req TaskRequestCaps
		if out.Requests != nil {
			req = *out.Requests
		}
		if incoming.Requests.Tools != nil {
			var tools TaskToolRequestCaps
			if req.Tools != nil {
				tools = *req.Tools
			}
			tools.Call = mergeBool(tools.Call, incoming.Requests.Tools.Call)
			req.Tools = &tools
		}
		out.Requests = &req
	}
	return &out
}

// mergeExperimental unions the two maps with last-writer-wins per key, as
// prescribed by the dispatcher's tie-break policy.
func mergeExperimental(existing, incoming map[string]map[string]any) map[string]map[string]any {
	if len(incoming) == 0 {
		return existing
	}
	out := make(map[string]map[string]any, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range incoming {
		out[k] = v
	}
	return out
}
