package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/0x6d61/reconcore/internal/fault"
	"github.com/0x6d61/reconcore/internal/registry"
)

// CommandBackend は Descriptor の binary をローカル subprocess として実行する。
type CommandBackend struct {
	def       *registry.Descriptor
	blacklist *Blacklist
}

// NewCommandBackend は CommandBackend を構築する。blacklist は nil でもよい。
func NewCommandBackend(def *registry.Descriptor, blacklist *Blacklist) *CommandBackend {
	return &CommandBackend{def: def, blacklist: blacklist}
}

func (b *CommandBackend) Kind() registry.BackendKind { return registry.BackendSubprocess }

func (b *CommandBackend) Endpoint() string { return b.def.Binary }

// Execute はコマンドを実行して stdout/stderr を行単位で収集する。
// ctx キャンセル時は exec.CommandContext がプロセスを kill する（ベストエフォート）。
func (b *CommandBackend) Execute(ctx context.Context, args map[string]any) (*RawResult, error) {
	absPath, err := resolveBinary(b.def.Binary)
	if err != nil {
		return nil, fault.Wrap(fault.KindValidation, err, "binary resolve").WithTool(b.def.Name)
	}

	cliArgs, err := BuildCLIArgs(b.def.ArgsTemplate, args)
	if err != nil {
		return nil, fault.Wrap(fault.KindValidation, err, "arg build").WithTool(b.def.Name)
	}

	if b.blacklist != nil {
		full := b.def.Binary + " " + strings.Join(cliArgs, " ")
		if b.blacklist.Match(full) {
			return nil, fault.Newf(fault.KindPermission, "command blocked by blacklist: %q", full).WithTool(b.def.Name)
		}
	}

	cmd := exec.CommandContext(ctx, absPath, cliArgs...) // nosemgrep: go.lang.security.audit.dangerous-exec-command.dangerous-exec-command -- absPath は LookPath で検証済み
	stdout, _ := cmd.StdoutPipe()
	stderr, _ := cmd.StderrPipe()

	var lines []string
	collect := func(sc *bufio.Scanner) {
		for sc.Scan() {
			lines = append(lines, sc.Text())
			if ctx.Err() != nil {
				return
			}
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, fault.Wrap(fault.KindTransport, err, "start").WithTool(b.def.Name)
	}

	// stderr → stdout の順で直列収集。lines への書き込みを1ゴルーチンに限定する。
	errLines := make(chan []string, 1)
	go func() {
		var el []string
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			el = append(el, sc.Text())
		}
		errLines <- el
	}()
	collect(bufio.NewScanner(stdout))
	lines = append(lines, <-errLines...)

	exitCode := 0
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fault.Wrap(fault.KindTransport, err, "wait").WithTool(b.def.Name)
		}
	}
	if ctx.Err() != nil {
		return nil, fault.Wrap(fault.KindTransport, ctx.Err(), "cancelled").WithTool(b.def.Name)
	}

	return &RawResult{Lines: lines, ExitCode: exitCode}, nil
}

// resolveBinary は binary 名を絶対パスに解決する。
// パス区切り文字を拒否し、LookPath で PATH 内の実在バイナリのみ許可する。
func resolveBinary(name string) (string, error) {
	if strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("binary name must not contain path separators: %q", name)
	}
	if strings.TrimSpace(name) == "" {
		return "", errors.New("binary name must not be empty")
	}
	absPath, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("binary %q not found in PATH: %w", name, err)
	}
	if !filepath.IsAbs(absPath) {
		return "", fmt.Errorf("resolved path is not absolute: %q", absPath)
	}
	return absPath, nil
}
