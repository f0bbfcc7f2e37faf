// Package recon はターゲット1件に対する発見パイプラインを統括する。
// ステージの依存順実行・有界 fan-out・transport 限定の再試行・
// 部分失敗の許容・進捗イベントストリームを担う。
package recon

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/0x6d61/reconcore/internal/config"
	"github.com/0x6d61/reconcore/internal/fuse"
	"github.com/0x6d61/reconcore/internal/gateway"
	"github.com/0x6d61/reconcore/internal/phase"
	"github.com/0x6d61/reconcore/internal/registry"
)

// Orchestrator はセッションのファクトリ。ゲートウェイ・レジストリ・
// 設定を束ね、ターゲットごとに独立した Session を払い出す。
type Orchestrator struct {
	gw      *gateway.Gateway
	reg     *registry.Registry
	machine *phase.Machine
	cfg     *config.AppConfig
	log     *logrus.Entry
}

// New は Orchestrator を構築する。cfg が nil ならデフォルト設定を使う。
func New(gw *gateway.Gateway, reg *registry.Registry, machine *phase.Machine, cfg *config.AppConfig, log *logrus.Entry) *Orchestrator {
	if cfg == nil {
		cfg, _ = config.Load("")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Orchestrator{gw: gw, reg: reg, machine: machine, cfg: cfg, log: log}
}

// NewSession はターゲット1件分のセッションを作る。
// エンティティ集合はセッションごとに新規。過去セッションとの統合は
// 永続化側（sink の先）の責務とする。
func (o *Orchestrator) NewSession(target string) *Session {
	oc := o.cfg.Orchestrator
	cfg := Config{
		StageConcurrency: oc.StageConcurrencyLimit,
		MaxRetryAttempts: oc.MaxRetryAttempts,
		StageDeadline:    time.Duration(oc.StageDeadlineSec) * time.Second,
	}
	cfg.applyDefaults()

	id := uuid.NewString()
	log := o.log.WithField("session", id)
	merger := fuse.New(fuse.Config{
		Target:           target,
		SourcePriority:   oc.SourcePriorityRanking,
		SortKey:          oc.MergeSortKey,
		IncludeWildcards: oc.IncludeWildcards,
	}, log)

	return &Session{
		id:     id,
		target: target,
		gw:     o.gw,
		reg:    &phaseLister{reg: o.reg, machine: o.machine},
		cfg:    cfg,
		log:    log,
		merger: merger,
		pub:    newPublisher(id, cfg.EventBuffer),
		stages: pipeline(),
	}
}

// phaseLister は現在フェーズで許可されたツールだけをステージに見せる。
// 不許可ツールはここで除外され、ゲートウェイの phase gate には届かない。
type phaseLister struct {
	reg     *registry.Registry
	machine *phase.Machine
}

func (l *phaseLister) ToolNamesFor(tag string) []string {
	current := l.machine.Current()
	var names []string
	for _, d := range l.reg.All() {
		if d.HasTag(tag) && d.AllowsPhase(current) {
			names = append(names, d.Name)
		}
	}
	sort.Strings(names)
	return names
}
