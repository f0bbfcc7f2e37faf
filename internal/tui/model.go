// Package tui implements the Bubble Tea progress dashboard for a
// discovery session.
package tui

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/0x6d61/reconcore/internal/recon"
)

// ProgressMsg はオーケストレーターから届く Bubble Tea メッセージ。
type ProgressMsg recon.Event

// streamClosedMsg はイベントストリームの終端（チャネルクローズ）。
type streamClosedMsg struct{}

// EventCmd は次の進捗イベントを待つ Bubble Tea コマンド。
func EventCmd(ch <-chan recon.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return ProgressMsg(ev)
	}
}

// stageView は1ステージ分の表示状態。
type stageView struct {
	name    string
	state   string // "pending" | "running" | "done" | "failed" | "skipped"
	sources map[string]recon.SourceStatus
}

// Model is the root Bubble Tea model for the discovery dashboard.
type Model struct {
	target  string
	session string
	events  <-chan recon.Event

	width   int
	height  int
	ready   bool
	percent float64
	stages  []stageView
	current int // index into stages
	done    bool
	failed  bool
	message string // 終端イベントのメッセージ

	bar  progress.Model
	spin spinner.Model

	recent []string // 直近のイベントログ行
}

// stageOrder はダッシュボードに出すステージの表示順。
var stageOrder = []string{"intel", "subdomains", "resolve", "endpoints", "findings"}

// New は指定セッションの進捗を購読する Model を作る。
func New(target, session string, events <-chan recon.Event) Model {
	stages := make([]stageView, len(stageOrder))
	for i, name := range stageOrder {
		stages[i] = stageView{name: name, state: "pending"}
	}

	bar := progress.New(progress.WithDefaultGradient())
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = stageActiveStyle

	return Model{
		target:  target,
		session: session,
		events:  events,
		stages:  stages,
		current: -1,
		bar:     bar,
		spin:    sp,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(EventCmd(m.events), m.spin.Tick)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = msg.Width - 24
		if m.bar.Width > 60 {
			m.bar.Width = 60
		}
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case ProgressMsg:
		m.apply(recon.Event(msg))
		return m, EventCmd(m.events)

	case streamClosedMsg:
		// 終端イベント処理済みならユーザーの確認待ち。未処理で閉じた
		// 場合（異常系）はそのまま終了する。
		if !m.done && !m.failed {
			return m, tea.Quit
		}
		return m, nil
	}
	return m, nil
}

// apply はイベント1件を表示状態へ畳み込む。
func (m *Model) apply(ev recon.Event) {
	m.percent = ev.Percent
	idx := m.stageIndex(ev.Stage)

	switch ev.Type {
	case recon.EventStageStart:
		if idx >= 0 {
			m.stages[idx].state = "running"
			m.stages[idx].sources = ev.Sources
			m.current = idx
		}
		m.pushLog(fmt.Sprintf("▶ %s", ev.Stage))
	case recon.EventProgress:
		if idx >= 0 {
			m.stages[idx].sources = ev.Sources
		}
	case recon.EventStageDone:
		if idx >= 0 {
			if ev.Message != "" {
				m.stages[idx].state = "skipped"
			} else {
				m.stages[idx].state = "done"
			}
			if ev.Sources != nil {
				m.stages[idx].sources = ev.Sources
			}
		}
		m.pushLog(fmt.Sprintf("✓ %s", ev.Stage))
	case recon.EventCompleted:
		m.done = true
		m.message = ev.Message
		m.pushLog("✓ session completed")
	case recon.EventFailed:
		m.failed = true
		m.message = ev.Message
		if idx >= 0 {
			m.stages[idx].state = "failed"
		}
		m.pushLog(fmt.Sprintf("✗ session failed at %s", ev.Stage))
	}
}

func (m *Model) stageIndex(name string) int {
	for i, s := range m.stages {
		if s.name == name {
			return i
		}
	}
	return -1
}

const maxRecentLines = 8

func (m *Model) pushLog(line string) {
	m.recent = append(m.recent, line)
	if len(m.recent) > maxRecentLines {
		m.recent = m.recent[len(m.recent)-maxRecentLines:]
	}
}

// sortedSourceNames はソース表示の安定順序を返す。
func sortedSourceNames(sources map[string]recon.SourceStatus) []string {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
