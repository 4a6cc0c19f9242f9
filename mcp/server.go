// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/yosida95/uritemplate/v3"
	"golang.org/x/time/rate"

	"github.com/relaymcp/relaymcp/auth"
	internaljson "github.com/relaymcp/relaymcp/internal/json"
	"github.com/relaymcp/relaymcp/internal/metrics"
)

// Tool describes one callable tool, advertised by tools/list and invoked
// by tools/call. Grounded on the teacher's Tool type, generalized from
// its generic AddTool[In, Out] registration to a schema-driven one that
// fits this package's non-generic Handler interface.
type Tool struct {
	Name         string             `json:"name"`
	Title        string             `json:"title,omitempty"`
	Description  string             `json:"description,omitempty"`
	InputSchema  *jsonschema.Schema `json:"inputSchema"`
	OutputSchema *jsonschema.Schema `json:"outputSchema,omitempty"`
	Icons        []Icon             `json:"icons,omitempty"`
}

// ToolHandler implements a tool's behavior. args is the already
// schema-validated argument object.
type ToolHandler func(ctx *RequestContext, args map[string]any) (*CallToolResult, error)

// CallToolResult answers tools/call.
type CallToolResult struct {
	Content           []Content `json:"content"`
	IsError           bool      `json:"isError,omitempty"`
	StructuredContent any       `json:"structuredContent,omitempty"`
	Meta              Meta      `json:"_meta,omitempty"`
}

// Resource describes a single, fixed-URI resource.
type Resource struct {
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	URI         string `json:"uri"`
	MIMEType    string `json:"mimeType,omitempty"`
	Icons       []Icon `json:"icons,omitempty"`
}

// ResourceTemplate describes a family of resources matched by an RFC
// 6570 URI template, resolved with uritemplate/v3 the way the rest of
// the pack matches templated URIs.
type ResourceTemplate struct {
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	URITemplate string `json:"uriTemplate"`
	MIMEType    string `json:"mimeType,omitempty"`
	Icons       []Icon `json:"icons,omitempty"`
}

// ResourceHandler implements resources/read for one resource or
// resource template. uri is the concrete, requested URI.
type ResourceHandler func(ctx *RequestContext, uri string) (*ReadResourceResult, error)

// ReadResourceResult answers resources/read.
type ReadResourceResult struct {
	Contents []*ResourceContents `json:"contents"`
	Meta     Meta                `json:"_meta,omitempty"`
}

// Prompt describes a single prompt template.
type Prompt struct {
	Name        string           `json:"name"`
	Title       string           `json:"title,omitempty"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
	Icons       []Icon           `json:"icons,omitempty"`
}

// PromptArgument describes one named prompt argument.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// PromptHandler implements prompts/get. args holds the string-valued
// prompt arguments supplied by the caller.
type PromptHandler func(ctx *RequestContext, args map[string]string) (*GetPromptResult, error)

// GetPromptResult answers prompts/get.
type GetPromptResult struct {
	Description string           `json:"description,omitempty"`
	Messages    []*PromptMessage `json:"messages"`
	Meta        Meta             `json:"_meta,omitempty"`
}

// PromptMessage is one turn of a prompt's rendered conversation.
type PromptMessage struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

type registeredTool struct {
	tool    *Tool
	handler ToolHandler
}

type registeredResource struct {
	resource *Resource
	handler  ResourceHandler
}

type registeredTemplate struct {
	template *ResourceTemplate
	matcher  *regexp.Regexp
	handler  ResourceHandler
}

type registeredPrompt struct {
	prompt  *Prompt
	handler PromptHandler
}

// ServerOptions configures a Server.
type ServerOptions struct {
	Instructions string
	Tasks        TaskStore
	// RateLimit caps tools/call requests per second per server instance;
	// other methods are not limited. Zero disables limiting.
	RateLimit float64
	RateBurst int
	Logger    *slog.Logger
	// Metrics, if set, records dispatcher request counts and latencies.
	Metrics *metrics.Registry
	// Bearer, if set, makes the server a resource server: Authenticate
	// and the RequireBearerAuth middleware verify the Authorization
	// header of incoming HTTP requests before a transport hands them to
	// the dispatcher.
	Bearer *auth.BearerVerifier
}

// Server is the high-level MCP server: tool/resource/prompt registries
// wired to a Dispatcher that handles the initialize handshake and the
// built-in list/call/get/read methods. Grounded on the teacher's Server
// type, generalized to this package's schema-driven Handler registration
// instead of generic method receivers.
type Server struct {
	name, version, instructions string
	dispatcher                  *Dispatcher
	tasks                       TaskStore
	limiter                     *rate.Limiter
	log                         *slog.Logger
	bearer                      *auth.BearerVerifier

	mu          sync.RWMutex
	tools       map[string]*registeredTool
	toolOrder   []string
	resources   map[string]*registeredResource
	resOrder    []string
	templates   []*registeredTemplate
	prompts     map[string]*registeredPrompt
	promptOrder []string

	peerCaps *ClientCapabilities
}

// NewServer returns a Server with no tools, resources, or prompts
// registered. Call AddTool/AddResource/AddResourceTemplate/AddPrompt
// before serving requests.
func NewServer(name, version string, opts *ServerOptions) *Server {
	if opts == nil {
		opts = &ServerOptions{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	tasks := opts.Tasks
	if tasks == nil {
		tasks = NewMemoryTaskStore()
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	s := &Server{
		name:         name,
		version:      version,
		instructions: opts.Instructions,
		tasks:        tasks,
		limiter:      limiter,
		log:          log,
		bearer:       opts.Bearer,
		tools:        make(map[string]*registeredTool),
		resources:    make(map[string]*registeredResource),
		prompts:      make(map[string]*registeredPrompt),
	}
	s.dispatcher = NewDispatcher(DispatcherOptions{Tasks: tasks, Logger: log, Metrics: opts.Metrics})
	s.registerBuiltins()
	return s
}

// Authenticate verifies the bearer token in r's Authorization header
// against the server's configured auth.BearerVerifier. It returns an
// error if no Bearer is configured, the header is missing or
// malformed, or the token fails verification.
func (s *Server) Authenticate(r *http.Request) (*auth.AuthInfo, error) {
	if s.bearer == nil {
		return nil, fmt.Errorf("mcp: server has no bearer verifier configured")
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, fmt.Errorf("mcp: missing Authorization header")
	}
	return s.bearer.VerifyBearer(header)
}

// RequireBearerAuth wraps next so that every request must carry a
// valid bearer token before reaching it; a transport's ServeHTTP is
// the intended next. Requests failing authentication get a 401 with a
// WWW-Authenticate header instead of ever reaching the dispatcher. If
// no bearer verifier is configured, RequireBearerAuth passes every
// request through unchanged.
func (s *Server) RequireBearerAuth(next http.Handler) http.Handler {
	if s.bearer == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.Authenticate(r); err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="mcp"`)
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Dispatcher returns the Server's Dispatcher, for wiring to a transport
// (e.g. NewStreamableServerTransport(server.Dispatcher(), ...)).
func (s *Server) Dispatcher() *Dispatcher { return s.dispatcher }

// AddTool registers a tool. Registration after the initialize handshake
// is allowed but does not retroactively widen already-advertised
// capabilities for sessions already connected.
func AddTool(s *Server, tool *Tool, handler ToolHandler) {
	s.mu.Lock()
	if _, exists := s.tools[tool.Name]; !exists {
		s.toolOrder = append(s.toolOrder, tool.Name)
	}
	s.tools[tool.Name] = &registeredTool{tool: tool, handler: handler}
	s.mu.Unlock()
}

// AddResource registers a fixed-URI resource.
func (s *Server) AddResource(resource *Resource, handler ResourceHandler) {
	s.mu.Lock()
	if _, exists := s.resources[resource.URI]; !exists {
		s.resOrder = append(s.resOrder, resource.URI)
	}
	s.resources[resource.URI] = &registeredResource{resource: resource, handler: handler}
	s.mu.Unlock()
}

// AddResourceTemplate registers a templated resource family. Matching an
// incoming URI against the template is done via the compiled regexp
// uritemplate/v3 derives from the RFC 6570 pattern, since the library
// itself only expands templates, not reverse-matches them.
func (s *Server) AddResourceTemplate(tmpl *ResourceTemplate, handler ResourceHandler) error {
	parsed, err := uritemplate.New(tmpl.URITemplate)
	if err != nil {
		return fmt.Errorf("invalid resource template %q: %w", tmpl.URITemplate, err)
	}
	s.mu.Lock()
	s.templates = append(s.templates, &registeredTemplate{template: tmpl, matcher: parsed.Regexp(), handler: handler})
	s.mu.Unlock()
	return nil
}

// AddPrompt registers a prompt.
func (s *Server) AddPrompt(prompt *Prompt, handler PromptHandler) {
	s.mu.Lock()
	if _, exists := s.prompts[prompt.Name]; !exists {
		s.promptOrder = append(s.promptOrder, prompt.Name)
	}
	s.prompts[prompt.Name] = &registeredPrompt{prompt: prompt, handler: handler}
	s.mu.Unlock()
}

func (s *Server) capabilities() *ServerCapabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	caps := &ServerCapabilities{}
	if len(s.tools) > 0 {
		caps.Tools = &ToolCapabilities{ListChanged: true}
	}
	if len(s.resources) > 0 || len(s.templates) > 0 {
		caps.Resources = &ResourceCapabilities{ListChanged: true}
	}
	if len(s.prompts) > 0 {
		caps.Prompts = &PromptCapabilities{ListChanged: true}
	}
	if s.tasks != nil {
		caps.Tasks = &TaskCapabilities{
			List: true, Cancel: true,
			Requests: &TaskRequestCaps{Tools: &TaskToolRequestCaps{Call: true}},
		}
	}
	return caps
}

// registerBuiltins wires the protocol's fixed method set: initialize,
// ping, and the tools/resources/prompts/tasks subtrees. Handlers close
// over s rather than being methods directly, so HandlerFunc can adapt
// them without exposing Server's internals as part of the Handler
// interface.
func (s *Server) registerBuiltins() {
	d := s.dispatcher
	d.RegisterRequestHandler("initialize", nil, HandlerFunc(s.handleInitialize), PeerLocal)
	d.RegisterNotificationHandler("notifications/initialized", nil, HandlerFunc(func(*RequestContext, any) (any, error) {
		d.MarkInitialized()
		return nil, nil
	}))
	d.RegisterRequestHandler("ping", nil, HandlerFunc(func(*RequestContext, any) (any, error) {
		return struct{}{}, nil
	}), PeerLocal)

	d.RegisterRequestHandler("tools/list", nil, HandlerFunc(s.handleListTools), PeerLocal)
	d.RegisterRequestHandler("tools/call", callToolSchema, TaskEligibleHandler{HandlerFunc(s.handleCallTool)}, PeerLocal)

	d.RegisterRequestHandler("resources/list", nil, HandlerFunc(s.handleListResources), PeerLocal)
	d.RegisterRequestHandler("resources/templates/list", nil, HandlerFunc(s.handleListResourceTemplates), PeerLocal)
	d.RegisterRequestHandler("resources/read", readResourceSchema, HandlerFunc(s.handleReadResource), PeerLocal)

	d.RegisterRequestHandler("prompts/list", nil, HandlerFunc(s.handleListPrompts), PeerLocal)
	d.RegisterRequestHandler("prompts/get", getPromptSchema, HandlerFunc(s.handleGetPrompt), PeerLocal)

	if s.tasks != nil {
		d.RegisterRequestHandler("tasks/get", taskIDSchema, HandlerFunc(s.handleTaskGet), PeerLocal)
		d.RegisterRequestHandler("tasks/list", nil, HandlerFunc(s.handleTaskList), PeerLocal)
		d.RegisterRequestHandler("tasks/cancel", taskIDSchema, HandlerFunc(s.handleTaskCancel), PeerLocal)
		d.RegisterRequestHandler("tasks/result", taskIDSchema, HandlerFunc(s.handleTaskResult), PeerLocal)
	}
}

var (
	callToolSchema     = objectSchema([]string{"name"}, map[string]*jsonschema.Schema{"name": {Type: "string"}})
	readResourceSchema = objectSchema([]string{"uri"}, map[string]*jsonschema.Schema{"uri": {Type: "string"}})
	getPromptSchema    = objectSchema([]string{"name"}, map[string]*jsonschema.Schema{"name": {Type: "string"}})
	taskIDSchema       = objectSchema([]string{"taskId"}, map[string]*jsonschema.Schema{"taskId": {Type: "string"}})
)

func objectSchema(required []string, props map[string]*jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Required: required, Properties: props}
}

// InitializeParams is the initialize request's params.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult answers initialize.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

func (s *Server) handleInitialize(ctx *RequestContext, params any) (any, error) {
	var in InitializeParams
	if err := decodeArgs(params, &in); err != nil {
		return nil, NewError(ErrInvalidParams, "%v", err)
	}
	s.mu.Lock()
	s.peerCaps = MergeClientCapabilities(s.peerCaps, &in.Capabilities)
	s.mu.Unlock()
	caps := s.capabilities()
	return &InitializeResult{
		ProtocolVersion: in.ProtocolVersion,
		Capabilities:    *caps,
		ServerInfo:      Implementation{Name: s.name, Version: s.version},
		Instructions:    s.instructions,
	}, nil
}

// ListToolsResult answers tools/list.
type ListToolsResult struct {
	Tools []*Tool `json:"tools"`
}

func (s *Server) handleListTools(ctx *RequestContext, params any) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Tool, 0, len(s.toolOrder))
	for _, name := range s.toolOrder {
		out = append(out, s.tools[name].tool)
	}
	return &ListToolsResult{Tools: out}, nil
}

func (s *Server) handleCallTool(ctx *RequestContext, params any) (any, error) {
	if s.limiter != nil && !s.limiter.Allow() {
		return nil, NewError(-32000, "rate limit exceeded")
	}
	var req struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := decodeArgs(params, &req); err != nil {
		return nil, NewError(ErrInvalidParams, "%v", err)
	}
	s.mu.RLock()
	rt, ok := s.tools[req.Name]
	s.mu.RUnlock()
	if !ok {
		return nil, NewError(ErrInvalidParams, "unknown tool %q", req.Name)
	}
	if rt.tool.InputSchema != nil {
		resolved, err := rt.tool.InputSchema.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
		if err != nil {
			return nil, NewError(ErrInternalError, "resolving input schema for %q: %v", req.Name, err)
		}
		var v any = req.Arguments
		if err := resolved.Validate(v); err != nil {
			return nil, NewError(ErrInvalidParams, "invalid arguments for %q: %v", req.Name, err)
		}
	}
	result, err := rt.handler(ctx, req.Arguments)
	if err != nil {
		return &CallToolResult{
			IsError: true,
			Content: []Content{&TextContent{Text: err.Error()}},
		}, nil
	}
	return result, nil
}

// ListResourcesResult answers resources/list.
type ListResourcesResult struct {
	Resources []*Resource `json:"resources"`
}

func (s *Server) handleListResources(ctx *RequestContext, params any) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Resource, 0, len(s.resOrder))
	for _, uri := range s.resOrder {
		out = append(out, s.resources[uri].resource)
	}
	return &ListResourcesResult{Resources: out}, nil
}

// ListResourceTemplatesResult answers resources/templates/list.
type ListResourceTemplatesResult struct {
	ResourceTemplates []*ResourceTemplate `json:"resourceTemplates"`
}

func (s *Server) handleListResourceTemplates(ctx *RequestContext, params any) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ResourceTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t.template)
	}
	return &ListResourceTemplatesResult{ResourceTemplates: out}, nil
}

// ReadResourceParams is resources/read's params.
type ReadResourceParams struct {
	URI string `json:"uri"`
}

func (s *Server) handleReadResource(ctx *RequestContext, params any) (any, error) {
	var req ReadResourceParams
	if err := decodeArgs(params, &req); err != nil {
		return nil, NewError(ErrInvalidParams, "%v", err)
	}
	s.mu.RLock()
	fixed, ok := s.resources[req.URI]
	s.mu.RUnlock()
	if ok {
		return fixed.handler(ctx, req.URI)
	}
	s.mu.RLock()
	templates := append([]*registeredTemplate(nil), s.templates...)
	s.mu.RUnlock()
	for _, t := range templates {
		if t.matcher.MatchString(req.URI) {
			return t.handler(ctx, req.URI)
		}
	}
	return nil, NewError(ErrInvalidParams, "no resource matches %q", req.URI)
}

// ListPromptsResult answers prompts/list.
type ListPromptsResult struct {
	Prompts []*Prompt `json:"prompts"`
}

func (s *Server) handleListPrompts(ctx *RequestContext, params any) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Prompt, 0, len(s.promptOrder))
	for _, name := range s.promptOrder {
		out = append(out, s.prompts[name].prompt)
	}
	return &ListPromptsResult{Prompts: out}, nil
}

// GetPromptParams is prompts/get's params.
type GetPromptParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

func (s *Server) handleGetPrompt(ctx *RequestContext, params any) (any, error) {
	var req GetPromptParams
	if err := decodeArgs(params, &req); err != nil {
		return nil, NewError(ErrInvalidParams, "%v", err)
	}
	s.mu.RLock()
	rp, ok := s.prompts[req.Name]
	s.mu.RUnlock()
	if !ok {
		return nil, NewError(ErrInvalidParams, "unknown prompt %q", req.Name)
	}
	return rp.handler(ctx, req.Arguments)
}

type taskIDParams struct {
	TaskID string `json:"taskId"`
}

func (s *Server) handleTaskGet(ctx *RequestContext, params any) (any, error) {
	var req taskIDParams
	if err := decodeArgs(params, &req); err != nil {
		return nil, NewError(ErrInvalidParams, "%v", err)
	}
	t, err := s.tasks.Get(ctx, req.TaskID)
	if err != nil {
		return nil, NewError(ErrInvalidParams, "%v", err)
	}
	return t, nil
}

func (s *Server) handleTaskList(ctx *RequestContext, params any) (any, error) {
	ts, err := s.tasks.List(ctx)
	if err != nil {
		return nil, NewError(ErrInternalError, "%v", err)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].TaskID < ts[j].TaskID })
	return struct {
		Tasks []*Task `json:"tasks"`
	}{Tasks: ts}, nil
}

func (s *Server) handleTaskCancel(ctx *RequestContext, params any) (any, error) {
	var req taskIDParams
	if err := decodeArgs(params, &req); err != nil {
		return nil, NewError(ErrInvalidParams, "%v", err)
	}
	if err := s.tasks.Cancel(ctx, req.TaskID); err != nil {
		return nil, NewError(ErrInvalidParams, "%v", err)
	}
	return struct{}{}, nil
}

func (s *Server) handleTaskResult(ctx *RequestContext, params any) (any, error) {
	var req taskIDParams
	if err := decodeArgs(params, &req); err != nil {
		return nil, NewError(ErrInvalidParams, "%v", err)
	}
	result, err := s.tasks.Result(ctx, req.TaskID)
	if err != nil {
		return nil, NewError(ErrInvalidParams, "%v", err)
	}
	return result, nil
}

// decodeArgs converts the dispatcher's any-typed, schema-validated
// params into a handler's concrete argument type via a JSON round
// trip.
func decodeArgs(from any, to any) error {
	data, err := internaljson.Marshal(from)
	if err != nil {
		return err
	}
	return internaljson.Unmarshal(data, to)
}
