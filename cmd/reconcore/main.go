package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/0x6d61/reconcore/internal/config"
	"github.com/0x6d61/reconcore/internal/gateway"
	"github.com/0x6d61/reconcore/internal/phase"
	"github.com/0x6d61/reconcore/internal/recon"
	"github.com/0x6d61/reconcore/internal/registry"
	"github.com/0x6d61/reconcore/internal/sink"
	"github.com/0x6d61/reconcore/internal/sources"
	"github.com/0x6d61/reconcore/internal/tui"
)

func main() {
	var (
		configPath = flag.String("config", "config/config.yaml", "設定ファイルのパス")
		toolsDir   = flag.String("tools", "tools", "ツール記述子（YAML）のディレクトリ")
		outDir     = flag.String("out", "out", "エンティティ出力（JSONL）のディレクトリ")
		noTUI      = flag.Bool("no-tui", false, "TUI を使わずログのみで実行する")
		verbose    = flag.Bool("v", false, "デバッグログを出力する")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `⚡ reconcore — Discovery Orchestration Engine

Usage:
  reconcore [flags] <target-domain>

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Environment:
  HACKERTARGET_API_KEY  HackerTarget API キー（config の ${VAR} 展開で参照）

Examples:
  reconcore example.com                # TUI ダッシュボード付きで実行
  reconcore -no-tui example.com        # ログのみで実行
  reconcore -tools ./tools example.com # 外部ツール記述子を指定
`)
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	target := flag.Arg(0)

	// --- Logging ---
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	if !*noTUI {
		// TUI 使用時は画面を壊さないようファイルへ逃がす
		if f, err := os.OpenFile("reconcore.log", os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600); err == nil {
			logger.SetOutput(f)
			defer f.Close()
		}
	}
	log := logrus.NewEntry(logger)

	// --- Config ---
	config.LoadEnv()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "設定エラー:", err)
		os.Exit(1)
	}

	// --- Registry ---
	reg := registry.New()
	if _, statErr := os.Stat(*toolsDir); statErr == nil {
		if err := reg.LoadDir(*toolsDir); err != nil {
			fmt.Fprintf(os.Stderr, "ツールロードエラー: %v\n", err)
			os.Exit(1)
		}
	}

	// --- Phase machine / Gateway ---
	machine := phase.New(log)
	store := gateway.NewLogStore()
	gwOpts := []gateway.Option{
		gateway.WithConcurrencyLimit(cfg.Orchestrator.PerBackendConcurrencyLimit),
		gateway.WithBlacklist(gateway.NewBlacklist(cfg.Blacklist)),
		gateway.WithLogStore(store),
	}
	if sec := cfg.Orchestrator.PerToolTimeoutSec; sec > 0 {
		gwOpts = append(gwOpts, gateway.WithTimeouts(gateway.UniformTimeouts(time.Duration(sec)*time.Second)))
	}
	gw := gateway.New(reg, machine, log, gwOpts...)

	// --- Built-in sources ---
	if err := sources.RegisterAll(reg, gw, cfg, log); err != nil {
		fmt.Fprintln(os.Stderr, "ソース登録エラー:", err)
		os.Exit(1)
	}

	// --- Session ---
	orch := recon.New(gw, reg, machine, cfg, log)
	session := orch.NewSession(target)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := make(chan error, 1)
	go func() { runErr <- session.Run(ctx) }()

	if *noTUI {
		// イベントを読み切るだけ。詳細はログに出ている。
		for ev := range session.Events() {
			log.WithFields(logrus.Fields{
				"stage":   ev.Stage,
				"percent": fmt.Sprintf("%.1f", ev.Percent),
			}).Debug(string(ev.Type))
		}
	} else {
		m := tui.New(target, session.ID(), session.Events())
		p := tea.NewProgram(m, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			fmt.Fprintln(os.Stderr, "TUI エラー:", err)
		}
	}

	if err := <-runErr; err != nil {
		fmt.Fprintln(os.Stderr, "セッション失敗:", err)
		os.Exit(1)
	}

	// --- Commit entities ---
	entities := session.Entities()
	committer := sink.NewJSONL(*outDir)
	if err := committer.Commit(context.Background(), session.ID(), entities); err != nil {
		fmt.Fprintln(os.Stderr, "出力エラー:", err)
		os.Exit(1)
	}

	printSummary(session, target)
}

// printSummary はセッション終了後の統計を標準出力に出す。
func printSummary(s *recon.Session, target string) {
	stats := s.MergeStats()
	fmt.Printf("\n⚡ reconcore — %s\n", target)
	fmt.Printf("  session:  %s\n", s.ID())
	fmt.Printf("  entities: %d (input %d, dropped %d)\n", stats.Merged, stats.Input, stats.Dropped)
	if roots := s.RootDomains(); len(roots) > 0 {
		fmt.Printf("  roots:    %v\n", roots)
	}
	for _, st := range s.StageStats() {
		status := "ok"
		switch {
		case st.Skipped:
			status = "skipped"
		case st.Partial:
			status = "partial"
		}
		fmt.Printf("  stage %-12s %-8s units=%d records=%d dropped=%d (%s)\n",
			st.Stage, status, st.Units, st.Records, st.Dropped, st.Duration.Round(time.Millisecond))
	}
}
