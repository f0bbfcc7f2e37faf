// Package phase はエンゲージメントの進行フェーズを管理するステートマシン。
// 遷移は外部からの明示的な操作のみで起きる（時間やイベント数で自動遷移しない）。
package phase

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/0x6d61/reconcore/internal/fault"
)

// Phase はエンゲージメントのフェーズ。ツールの呼び出し可否を制限する。
type Phase string

const (
	Informational    Phase = "informational"
	Exploitation     Phase = "exploitation"
	PostExploitation Phase = "post_exploitation"
	Complete         Phase = "complete"
)

// order はフェーズの前進順序。隣接する前方遷移のみ許可される。
var order = []Phase{Informational, Exploitation, PostExploitation, Complete}

// Valid は p が既知のフェーズかを返す。
func Valid(p Phase) bool {
	for _, q := range order {
		if p == q {
			return true
		}
	}
	return false
}

func index(p Phase) int {
	for i, q := range order {
		if p == q {
			return i
		}
	}
	return -1
}

// Machine はフェーズ遷移を直列化するステートマシン。
// ゼロ値は使えない。New で構築する。
type Machine struct {
	mu      sync.RWMutex
	current Phase
	log     *logrus.Entry
}

// New は informational 状態の Machine を返す。
func New(log *logrus.Entry) *Machine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Machine{current: Informational, log: log}
}

// Current は現在のフェーズを返す。
func (m *Machine) Current() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Advance は target への遷移を試みる。
// 許可されるのは隣接する前方遷移のみ。スキップ・後退・complete からの遷移は
// InvalidTransition で拒否され、状態は変化しない。
func (m *Machine) Advance(target Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !Valid(target) {
		return fault.Newf(fault.KindInvalidTransition, "unknown phase %q", target)
	}
	from, to := index(m.current), index(target)
	if to != from+1 {
		return fault.Newf(fault.KindInvalidTransition, "%s -> %s is not an adjacent forward transition", m.current, target)
	}

	m.log.WithFields(logrus.Fields{"from": m.current, "to": target}).Info("phase transition")
	m.current = target
	return nil
}

// Reset は状態を informational に戻す。
// 後退遷移に対する唯一の正規ルートであり、意図的なポリシー例外としてログに残す。
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.log.WithFields(logrus.Fields{"from": m.current, "to": Informational}).
		Warn("phase reset: deliberate policy exception")
	m.current = Informational
}
