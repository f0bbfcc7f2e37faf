package recon

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/0x6d61/reconcore/internal/fault"
	"github.com/0x6d61/reconcore/internal/fuse"
	"github.com/0x6d61/reconcore/internal/gateway"
)

// Session は1ターゲット1回分の発見パイプライン実行。
// エンティティ集合はセッション内に閉じ、Run の完了をもって確定する。
// 進捗は Events() の有限ストリームで外部へ流れる。
type Session struct {
	id     string
	target string
	gw     *gateway.Gateway
	reg    toolLister
	cfg    Config
	log    *logrus.Entry

	merger *fuse.Merger
	pub    *publisher
	stages []stageSpec

	// ステージ間で引き継ぐマージ済み状態。
	// 各ステージのマージパス（単一スレッド）のみが更新する。
	domains   []string
	liveHosts []string
	endpoints []string

	mu    sync.Mutex
	stats []StageStats
}

// toolLister は Session が registry に要求する最小の面。
type toolLister interface {
	ToolNamesFor(tag string) []string
}

// Config はオーケストレーターの動作パラメーター。
// config.OrchestratorConfig から組み立てる。
type Config struct {
	StageConcurrency int
	MaxRetryAttempts int
	StageDeadline    time.Duration
	EventBuffer      int
}

func (c *Config) applyDefaults() {
	if c.StageConcurrency <= 0 {
		c.StageConcurrency = 50
	}
	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = 3
	}
	if c.StageDeadline <= 0 {
		c.StageDeadline = 600 * time.Second
	}
}

// ID はセッション識別子を返す。
func (s *Session) ID() string { return s.id }

// Events は進捗イベントストリームを返す。lazy・有限・再開不能。
// 終端イベント（completed / failed）の後にチャネルは閉じる。
func (s *Session) Events() <-chan Event { return s.pub.ch }

// Entities はマージ済みエンティティを決定的順序で返す。
// Run 完了後に呼ぶこと。
func (s *Session) Entities() []fuse.Entity { return s.merger.Entities() }

// RootDomains は発見ドメインの登録可能ルートドメイン一覧を返す。
func (s *Session) RootDomains() []string { return s.merger.RootDomains() }

// MergeStats はセッション全体の融合統計を返す。
func (s *Session) MergeStats() fuse.Stats { return s.merger.Stats() }

// StageStats はステージごとの統計を実行順で返す。
func (s *Session) StageStats() []StageStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StageStats(nil), s.stats...)
}

// Run はパイプラインを先頭から実行する。
// リカバリー可能なエラー（transport・partial）はステージ境界で吸収され
// 統計として残る。返り値の error は致命的失敗のみ。
// 終端イベントは成否にかかわらず厳密に1回発行される。
func (s *Session) Run(ctx context.Context) error {
	s.log.WithFields(logrus.Fields{"session": s.id, "target": s.target}).Info("discovery session started")

	total := len(s.stages)
	for i, spec := range s.stages {
		if err := ctx.Err(); err != nil {
			return s.fail(spec.name, fault.Wrap(fault.KindFatal, err, "session cancelled").WithStage(spec.name))
		}
		if err := s.runStage(ctx, spec, i, total); err != nil {
			return s.fail(spec.name, err)
		}
	}

	s.pub.emit(Event{Type: EventCompleted, Stage: "complete", Percent: 100,
		Message: fmt.Sprintf("%d entities", s.merger.Stats().Merged)})
	s.log.WithField("session", s.id).Info("discovery session completed")
	return nil
}

// fail は終端 failed イベントを発行してエラーを呼び出し元へ返す。
func (s *Session) fail(stage string, err error) error {
	s.log.WithFields(logrus.Fields{"session": s.id, "stage": stage}).WithError(err).Error("discovery session failed")
	s.pub.emit(Event{Type: EventFailed, Stage: stage, Message: err.Error()})
	return err
}

func (s *Session) runStage(ctx context.Context, spec stageSpec, idx, total int) error {
	started := time.Now()
	stats := StageStats{Stage: spec.name}
	base := float64(idx) / float64(total) * 100
	next := float64(idx+1) / float64(total) * 100

	tools := s.reg.ToolNamesFor(spec.tag)
	if len(tools) == 0 {
		if spec.required {
			return fault.Newf(fault.KindFatal, "no sources registered for required stage %q", spec.name).WithStage(spec.name)
		}
		stats.Skipped = true
		s.appendStats(stats, started)
		s.pub.emit(Event{Type: EventStageDone, Stage: spec.name, Percent: next, Message: "skipped: no sources"})
		return nil
	}

	units := spec.expand(s, tools)
	if len(units) == 0 {
		stats.Skipped = true
		s.appendStats(stats, started)
		s.pub.emit(Event{Type: EventStageDone, Stage: spec.name, Percent: next, Message: "skipped: no input"})
		return nil
	}
	stats.Units = len(units)

	tracker := newTracker(units)
	s.pub.emit(Event{Type: EventStageStart, Stage: spec.name, Percent: base, Sources: tracker.snapshot()})

	stageCtx, cancel := context.WithTimeout(ctx, s.cfg.StageDeadline)
	defer cancel()

	// fan-out。各ワーカーは自分のバッファスロットにのみ書き込む。
	// 失敗はスロットに記録して nil を返す（1ソースの失敗でステージを
	// 落とさない）。
	buffers := make([]unitResult, len(units))
	g, gctx := errgroup.WithContext(stageCtx)
	g.SetLimit(s.cfg.StageConcurrency)
	for i, u := range units {
		i, u := i, u
		g.Go(func() error {
			tracker.start(u.source)
			res, attempts := s.callWithRetry(gctx, u)
			buffers[i] = unitResult{unit: u, res: res, attempts: attempts}
			if res.Success {
				buffers[i].records = recordsFrom(res, spec.lineKind)
			}
			done, failed := tracker.finish(u.source, res.Success)
			pct := base + (next-base)*float64(done+failed)/float64(len(units))
			s.pub.emit(Event{Type: EventProgress, Stage: spec.name, Percent: pct, Sources: tracker.snapshot()})
			return nil
		})
	}
	_ = g.Wait()

	// fan-out 完了後の単一スレッドのマージパス。
	// ここにサスペンションポイントはない。
	var records []fuse.Record
	for _, br := range buffers {
		if br.res == nil {
			continue
		}
		if br.res.Success {
			stats.OK++
			records = append(records, br.records...)
			continue
		}
		stats.Failures = append(stats.Failures, failureOf(br))
	}
	stats.Records = len(records)

	before := s.merger.Stats()
	s.merger.Merge(records)
	after := s.merger.Stats()
	stats.Merged = after.Merged
	stats.Dropped = after.Dropped - before.Dropped

	if len(stats.Failures) > 0 && stats.OK == 0 {
		if spec.required {
			return fault.Newf(fault.KindFatal, "all %d sources failed in required stage %q: %s",
				len(stats.Failures), spec.name, failureSummary(stats.Failures)).WithStage(spec.name)
		}
		s.log.WithFields(logrus.Fields{"stage": spec.name, "failures": len(stats.Failures)}).Warn("stage lost all sources")
	}
	if len(stats.Failures) > 0 && stats.OK > 0 {
		stats.Partial = true
		s.log.WithFields(logrus.Fields{
			"stage":    spec.name,
			"kind":     fault.KindPartialFailure,
			"ok":       stats.OK,
			"failures": len(stats.Failures),
		}).Warn("stage completed with partial failure")
	}

	s.refreshState()
	s.appendStats(stats, started)
	s.pub.emit(Event{Type: EventStageDone, Stage: spec.name, Percent: next, Sources: tracker.snapshot()})
	return nil
}

// callWithRetry はゲートウェイ呼び出しを実行する。
// TransportError のみ有界指数バックオフで再試行する。
// ValidationError / PermissionDenied は即座に確定する。
func (s *Session) callWithRetry(ctx context.Context, u unit) (*gateway.Result, int) {
	attempts := 0
	var res *gateway.Result
	op := func() error {
		attempts++
		res = s.gw.Call(ctx, gateway.Call{CorrelationID: uuid.NewString(), Tool: u.tool, Args: u.args})
		if res.Err == nil {
			return nil
		}
		if fault.IsRetryable(res.Err) {
			return res.Err
		}
		return backoff.Permanent(res.Err)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.cfg.MaxRetryAttempts-1)), ctx)
	_ = backoff.Retry(op, policy)
	return res, attempts
}

// refreshState はマージ済みエンティティから次ステージの入力を作り直す。
func (s *Session) refreshState() {
	s.domains = s.domains[:0]
	s.liveHosts = s.liveHosts[:0]
	s.endpoints = s.endpoints[:0]
	for _, e := range s.merger.Entities() {
		switch e.Kind {
		case fuse.KindDomain:
			s.domains = append(s.domains, e.Key)
			if e.Attrs["ip"] != "" {
				s.liveHosts = append(s.liveHosts, e.Key)
			}
		case fuse.KindEndpoint:
			s.endpoints = append(s.endpoints, e.Key)
		}
	}
}

func (s *Session) appendStats(stats StageStats, started time.Time) {
	stats.Duration = time.Since(started)
	s.mu.Lock()
	s.stats = append(s.stats, stats)
	s.mu.Unlock()
}

// unitResult は1作業単位の結果バッファ。担当ワーカーのみが書き込み、
// fan-out 完了後にマージパスが読む。
type unitResult struct {
	unit     unit
	res      *gateway.Result
	records  []fuse.Record
	attempts int
}

func failureOf(br unitResult) SourceFailure {
	f := SourceFailure{Source: br.unit.source, Attempts: br.attempts}
	if br.res.Err != nil {
		f.Kind = string(fault.KindOf(br.res.Err))
		f.Reason = br.res.Err.Error()
		return f
	}
	f.Kind = "exit"
	f.Reason = fmt.Sprintf("exit code %d", br.res.ExitCode)
	return f
}

func failureSummary(failures []SourceFailure) string {
	names := make([]string, 0, len(failures))
	for _, f := range failures {
		names = append(names, f.Source)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// tracker はソース（ツール名）単位の進行状況を集計する。
// 複数ワーカーから更新されるため内部で直列化する。
type tracker struct {
	mu     sync.Mutex
	status map[string]*SourceStatus
	done   int
	failed int
}

func newTracker(units []unit) *tracker {
	t := &tracker{status: make(map[string]*SourceStatus)}
	for _, u := range units {
		st := t.status[u.source]
		if st == nil {
			st = &SourceStatus{State: SourcePending}
			t.status[u.source] = st
		}
		st.Total++
	}
	return t
}

func (t *tracker) start(source string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st := t.status[source]; st != nil && st.State == SourcePending {
		st.State = SourceRunning
	}
}

func (t *tracker) finish(source string, ok bool) (done, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.status[source]
	if st == nil {
		return t.done, t.failed
	}
	if ok {
		st.Done++
		t.done++
	} else {
		st.Failed++
		t.failed++
	}
	if st.Done+st.Failed >= st.Total {
		if st.Failed == st.Total {
			st.State = SourceFailed
		} else {
			st.State = SourceOK
		}
	}
	return t.done, t.failed
}

func (t *tracker) snapshot() map[string]SourceStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]SourceStatus, len(t.status))
	for k, v := range t.status {
		out[k] = *v
	}
	return out
}
