// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
)

// inProcessTransport bridges a Client directly to a Server's Dispatcher
// without any network hop, the way the streamable transport's synchronous
// request/response shape works but entirely in memory.
type inProcessTransport struct {
	dispatcher *Dispatcher
}

func (t *inProcessTransport) Start(ctx context.Context) {}
func (t *inProcessTransport) OnMessage(func(Message))    {}
func (t *inProcessTransport) OnError(func(error))        {}
func (t *inProcessTransport) Close() error               { return nil }

func (t *inProcessTransport) Send(ctx context.Context, msg Message) (*Result, error) {
	switch m := msg.(type) {
	case *Request:
		return t.dispatcher.DispatchRequest(ctx, "", m, DispatchOptions{}), nil
	case *Notification:
		t.dispatcher.DispatchNotification(ctx, "", m)
		return nil, nil
	default:
		return nil, nil
	}
}

func newConnectedPair(t *testing.T, srv *Server) *Client {
	t.Helper()
	client := NewClient("test-client", "1.0.0", &ClientOptions{Capabilities: ClientCapabilities{Roots: &RootsCapabilities{}}})
	if _, err := client.Connect(context.Background(), &inProcessTransport{dispatcher: srv.Dispatcher()}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return client
}

func TestClientServerInitializeHandshake(t *testing.T) {
	srv := NewServer("test-server", "2.0.0", &ServerOptions{Instructions: "be nice"})
	client := newConnectedPair(t, srv)
	defer client.Close()

	caps := client.ServerCapabilities()
	if caps == nil {
		t.Fatal("ServerCapabilities is nil after Connect")
	}
}

func TestClientServerListAndCallTool(t *testing.T) {
	srv := NewServer("test-server", "1.0.0", nil)
	AddTool(srv, &Tool{
		Name:        "echo",
		InputSchema: &jsonschema.Schema{Type: "object", Required: []string{"text"}, Properties: map[string]*jsonschema.Schema{"text": {Type: "string"}}},
	}, func(ctx *RequestContext, args map[string]any) (*CallToolResult, error) {
		return &CallToolResult{Content: []Content{&TextContent{Text: args["text"].(string)}}}, nil
	})

	client := newConnectedPair(t, srv)
	defer client.Close()

	tools, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "echo" {
		t.Fatalf("tools = %+v, want one tool named echo", tools)
	}

	result, err := client.CallTool(context.Background(), "echo", map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if result.IsError {
		t.Fatalf("result.IsError = true, content = %+v", result.Content)
	}
	text, ok := result.Content[0].(*TextContent)
	if !ok || text.Text != "hi" {
		t.Errorf("content[0] = %+v, want TextContent{Text: hi}", result.Content[0])
	}
}

func TestClientServerCallToolInvalidArgumentsRejected(t *testing.T) {
	srv := NewServer("test-server", "1.0.0", nil)
	AddTool(srv, &Tool{
		Name:        "needs-text",
		InputSchema: &jsonschema.Schema{Type: "object", Required: []string{"text"}, Properties: map[string]*jsonschema.Schema{"text": {Type: "string"}}},
	}, func(ctx *RequestContext, args map[string]any) (*CallToolResult, error) {
		return &CallToolResult{Content: []Content{&TextContent{Text: "unreachable"}}}, nil
	})

	client := newConnectedPair(t, srv)
	defer client.Close()

	if _, err := client.CallTool(context.Background(), "needs-text", map[string]any{}); err == nil {
		t.Fatal("CallTool: want an error for missing required argument")
	}
}

func TestClientServerCallUnknownToolReturnsError(t *testing.T) {
	srv := NewServer("test-server", "1.0.0", nil)
	AddTool(srv, &Tool{Name: "known", InputSchema: &jsonschema.Schema{Type: "object"}},
		func(ctx *RequestContext, args map[string]any) (*CallToolResult, error) {
			return &CallToolResult{Content: []Content{&TextContent{Text: "ok"}}}, nil
		})
	client := newConnectedPair(t, srv)
	defer client.Close()

	if _, err := client.CallTool(context.Background(), "nonexistent", nil); err == nil {
		t.Fatal("CallTool: want an error calling an unregistered tool")
	}
}

func TestClientServerToolOutputSchemaViolationRejected(t *testing.T) {
	srv := NewServer("test-server", "1.0.0", nil)
	AddTool(srv, &Tool{
		Name:         "bad-output",
		InputSchema:  &jsonschema.Schema{Type: "object"},
		OutputSchema: &jsonschema.Schema{Type: "object", Required: []string{"count"}, Properties: map[string]*jsonschema.Schema{"count": {Type: "integer"}}},
	}, func(ctx *RequestContext, args map[string]any) (*CallToolResult, error) {
		return &CallToolResult{
			Content:           []Content{&TextContent{Text: "done"}},
			StructuredContent: map[string]any{"wrong": "shape"},
		}, nil
	})

	client := newConnectedPair(t, srv)
	defer client.Close()

	// ListTools populates the client's tool cache (including OutputSchema),
	// which CallTool consults to decide whether to validate.
	if _, err := client.ListTools(context.Background()); err != nil {
		t.Fatalf("ListTools: %v", err)
	}

	if _, err := client.CallTool(context.Background(), "bad-output", nil); err == nil {
		t.Fatal("CallTool: want an error when structuredContent violates the declared output schema")
	}
}

func TestClientServerResourcesAndPrompts(t *testing.T) {
	srv := NewServer("test-server", "1.0.0", nil)
	srv.AddResource(&Resource{Name: "readme", URI: "file:///readme.txt"}, func(ctx *RequestContext, uri string) (*ReadResourceResult, error) {
		return &ReadResourceResult{Contents: []*ResourceContents{{URI: uri, Text: "hello"}}}, nil
	})
	srv.AddPrompt(&Prompt{Name: "greet"}, func(ctx *RequestContext, args map[string]string) (*GetPromptResult, error) {
		return &GetPromptResult{Messages: []*PromptMessage{{Role: "user", Content: &TextContent{Text: "hi " + args["name"]}}}}, nil
	})

	client := newConnectedPair(t, srv)
	defer client.Close()

	resources, err := client.ListResources(context.Background())
	if err != nil {
		t.Fatalf("ListResources: %v", err)
	}
	if len(resources) != 1 || resources[0].URI != "file:///readme.txt" {
		t.Fatalf("resources = %+v", resources)
	}

	read, err := client.ReadResource(context.Background(), "file:///readme.txt")
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if len(read.Contents) != 1 || read.Contents[0].Text != "hello" {
		t.Fatalf("ReadResource contents = %+v", read.Contents)
	}

	prompts, err := client.ListPrompts(context.Background())
	if err != nil {
		t.Fatalf("ListPrompts: %v", err)
	}
	if len(prompts) != 1 || prompts[0].Name != "greet" {
		t.Fatalf("prompts = %+v", prompts)
	}

	got, err := client.GetPrompt(context.Background(), "greet", map[string]string{"name": "ada"})
	if err != nil {
		t.Fatalf("GetPrompt: %v", err)
	}
	text, ok := got.Messages[0].Content.(*TextContent)
	if !ok || text.Text != "hi ada" {
		t.Errorf("GetPrompt messages = %+v, want \"hi ada\"", got.Messages)
	}
}

func TestClientServerResourceTemplateMatching(t *testing.T) {
	srv := NewServer("test-server", "1.0.0", nil)
	if err := srv.AddResourceTemplate(&ResourceTemplate{Name: "file", URITemplate: "file:///{path}"}, func(ctx *RequestContext, uri string) (*ReadResourceResult, error) {
		return &ReadResourceResult{Contents: []*ResourceContents{{URI: uri, Text: "templated"}}}, nil
	}); err != nil {
		t.Fatalf("AddResourceTemplate: %v", err)
	}

	client := newConnectedPair(t, srv)
	defer client.Close()

	read, err := client.ReadResource(context.Background(), "file:///foo.txt")
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if read.Contents[0].Text != "templated" {
		t.Errorf("Contents[0].Text = %q, want templated", read.Contents[0].Text)
	}
}

func TestServerRateLimiting(t *testing.T) {
	srv := NewServer("test-server", "1.0.0", &ServerOptions{RateLimit: 1, RateBurst: 1})
	AddTool(srv, &Tool{Name: "noop", InputSchema: &jsonschema.Schema{Type: "object"}},
		func(ctx *RequestContext, args map[string]any) (*CallToolResult, error) {
			return &CallToolResult{Content: []Content{&TextContent{Text: "ok"}}}, nil
		})

	client := newConnectedPair(t, srv)
	defer client.Close()

	if _, err := client.CallTool(context.Background(), "noop", nil); err != nil {
		t.Fatalf("first CallTool: %v", err)
	}
	if _, err := client.CallTool(context.Background(), "noop", nil); err == nil {
		t.Fatal("second immediate CallTool: want a rate limit error")
	}
}
