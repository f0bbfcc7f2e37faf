package recon

import "sync"

// EventType はオーケストレーターが発行する進捗イベントの種別。
type EventType string

const (
	// EventStageStart はステージの fan-out 開始。
	EventStageStart EventType = "stage_start"
	// EventProgress はステージ内の進捗更新。
	EventProgress EventType = "progress"
	// EventStageDone はステージのマージパス完了。
	EventStageDone EventType = "stage_done"
	// EventCompleted はセッション正常終了（終端イベント）。
	EventCompleted EventType = "completed"
	// EventFailed はセッション致命的失敗（終端イベント）。
	EventFailed EventType = "failed"
)

// Terminal は終端イベントかどうかを返す。
func (t EventType) Terminal() bool {
	return t == EventCompleted || t == EventFailed
}

// SourceState はステージ内の1ソースの実行状態。
type SourceState string

const (
	SourcePending SourceState = "pending"
	SourceRunning SourceState = "running"
	SourceOK      SourceState = "ok"
	SourceFailed  SourceState = "failed"
)

// SourceStatus はソース（ツール）単位の進行状況。
// resolve のような細粒度 fan-out ではツール名で集約される。
type SourceStatus struct {
	State  SourceState `json:"state"`
	Done   int         `json:"done"`
	Failed int         `json:"failed"`
	Total  int         `json:"total"`
}

// Event は進捗ストリームの1要素。Seq は単調増加し、Percent は
// 前のイベントより減少しない。終端イベントはセッションにつき厳密に1回。
type Event struct {
	Seq     int                     `json:"seq"`
	Session string                  `json:"session"`
	Type    EventType               `json:"type"`
	Stage   string                  `json:"stage"`
	Percent float64                 `json:"percent"`
	Sources map[string]SourceStatus `json:"sources,omitempty"`
	Message string                  `json:"message,omitempty"`
}

// publisher は bounded チャネルへの単調なイベント発行を担う。
// 複数ワーカーから呼ばれるため内部で直列化する。
type publisher struct {
	mu       sync.Mutex
	ch       chan Event
	session  string
	seq      int
	percent  float64
	finished bool
}

func newPublisher(session string, buffer int) *publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &publisher{ch: make(chan Event, buffer), session: session}
}

// emit はイベントを発行する。終端後の発行は無視される。
// Percent は過去の最大値でクランプされる（単調性の保証）。
func (p *publisher) emit(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	p.seq++
	ev.Seq = p.seq
	ev.Session = p.session
	if ev.Percent < p.percent {
		ev.Percent = p.percent
	}
	p.percent = ev.Percent
	if ev.Type.Terminal() {
		p.finished = true
	}
	p.ch <- ev
	if p.finished {
		close(p.ch)
	}
}
