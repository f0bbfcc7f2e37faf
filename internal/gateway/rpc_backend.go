package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/0x6d61/reconcore/internal/fault"
	"github.com/0x6d61/reconcore/internal/registry"
)

// RPCBackend はリモートサーバー（HTTP SSE または stdio の JSON-RPC 2.0）経由で
// ツールを実行するバックエンド。
type RPCBackend struct {
	def    *registry.Descriptor
	client *http.Client
}

// NewRPCBackend は RPCBackend を構築する。
func NewRPCBackend(def *registry.Descriptor) *RPCBackend {
	return &RPCBackend{
		def:    def,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

func (b *RPCBackend) Kind() registry.BackendKind { return registry.BackendRPC }

func (b *RPCBackend) Endpoint() string {
	if b.def.RPC == nil {
		return b.def.Name
	}
	if b.def.RPC.Transport == "stdio" {
		return b.def.RPC.Command
	}
	return b.def.RPC.URL
}

// rpcRequest は JSON-RPC 2.0 リクエスト構造体。
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// rpcResponse は JSON-RPC 2.0 レスポンスのうち必要な部分。
type rpcResponse struct {
	ID     int            `json:"id"`
	Result map[string]any `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (b *RPCBackend) Execute(ctx context.Context, args map[string]any) (*RawResult, error) {
	if b.def.RPC == nil {
		return nil, fault.Newf(fault.KindValidation, "tool %q has no rpc config", b.def.Name).WithTool(b.def.Name)
	}
	switch b.def.RPC.Transport {
	case "http":
		return b.callHTTP(ctx, args)
	case "stdio":
		return b.callStdio(ctx, args)
	default:
		return nil, fault.Newf(fault.KindValidation, "unknown rpc transport: %q", b.def.RPC.Transport).WithTool(b.def.Name)
	}
}

// --- HTTP SSE 実装 ---

func (b *RPCBackend) callHTTP(ctx context.Context, args map[string]any) (*RawResult, error) {
	payload := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params: map[string]any{
			"name":      b.def.Name,
			"arguments": args,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fault.Wrap(fault.KindValidation, err, "rpc marshal").WithTool(b.def.Name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.def.RPC.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fault.Wrap(fault.KindValidation, err, "rpc request").WithTool(b.def.Name)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range b.def.RPC.Headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.KindTransport, err, "rpc connect").WithTool(b.def.Name)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fault.Newf(fault.KindTransport, "rpc HTTP %d: %s", resp.StatusCode, string(bodyBytes)).WithTool(b.def.Name)
	}

	lines := readSSEStream(ctx, resp.Body)
	return rawFromRPCLines(b.def.Name, lines)
}

// readSSEStream は HTTP SSE ストリームの data: 行を収集する。
func readSSEStream(ctx context.Context, r io.Reader) []string {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return lines
		}
		text := scanner.Text()
		if !strings.HasPrefix(text, "data:") {
			continue
		}
		content := strings.TrimSpace(strings.TrimPrefix(text, "data:"))
		if content == "" || content == "[DONE]" {
			continue
		}
		lines = append(lines, content)
	}
	return lines
}

// --- stdio 実装 ---

func (b *RPCBackend) callStdio(ctx context.Context, args map[string]any) (*RawResult, error) {
	absPath, err := resolveBinary(b.def.RPC.Command)
	if err != nil {
		return nil, fault.Wrap(fault.KindValidation, err, "rpc stdio binary").WithTool(b.def.Name)
	}

	cmd := exec.CommandContext(ctx, absPath, b.def.RPC.Args...) // nosemgrep: go.lang.security.audit.dangerous-exec-command.dangerous-exec-command -- absPath は LookPath で検証済み
	stdin, _ := cmd.StdinPipe()
	stdout, _ := cmd.StdoutPipe()

	if err := cmd.Start(); err != nil {
		return nil, fault.Wrap(fault.KindTransport, err, "rpc stdio start").WithTool(b.def.Name)
	}

	// initialize → tools/call の JSON-RPC を順に送る
	reqs := []rpcRequest{
		{JSONRPC: "2.0", ID: 1, Method: "initialize", Params: map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]string{"name": "reconcore", "version": "0.1"},
		}},
		{JSONRPC: "2.0", ID: 2, Method: "tools/call", Params: map[string]any{
			"name":      b.def.Name,
			"arguments": args,
		}},
	}

	var lines []string
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
			if ctx.Err() != nil {
				return
			}
		}
	}()

	enc := json.NewEncoder(stdin)
	for _, req := range reqs {
		if err := enc.Encode(req); err != nil {
			break
		}
	}
	stdin.Close()

	<-readDone
	cmd.Wait() //nolint:errcheck

	if ctx.Err() != nil {
		return nil, fault.Wrap(fault.KindTransport, ctx.Err(), "rpc stdio cancelled").WithTool(b.def.Name)
	}
	return rawFromRPCLines(b.def.Name, lines)
}

// rawFromRPCLines は受信行列から最後の JSON-RPC レスポンスを取り出し、
// result を Payload に、全行を Lines に入れた RawResult を返す。
// サーバーが error を返した場合は transport エラーとして正規化する。
func rawFromRPCLines(tool string, lines []string) (*RawResult, error) {
	raw := &RawResult{Lines: lines}
	for i := len(lines) - 1; i >= 0; i-- {
		var resp rpcResponse
		if err := json.Unmarshal([]byte(lines[i]), &resp); err != nil {
			continue
		}
		if resp.Error != nil {
			return nil, fault.Newf(fault.KindTransport, "rpc error %d: %s", resp.Error.Code, resp.Error.Message).WithTool(tool)
		}
		if resp.Result != nil {
			raw.Payload = resp.Result
			return raw, nil
		}
	}
	if len(lines) == 0 {
		return nil, fault.New(fault.KindTransport, fmt.Sprintf("rpc server returned no response for %q", tool)).WithTool(tool)
	}
	return raw, nil
}
