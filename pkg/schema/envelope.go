// Package schema defines the shared JSON types exchanged with external
// callers (the deciding agent / UI collaborator).
package schema

import (
	"github.com/0x6d61/reconcore/internal/fault"
	"github.com/0x6d61/reconcore/internal/fuse"
	"github.com/0x6d61/reconcore/internal/gateway"
	"github.com/0x6d61/reconcore/internal/recon"
	"github.com/0x6d61/reconcore/internal/registry"
)

// CallRequest はツール呼び出し要求のワイヤ形式。
type CallRequest struct {
	ToolName      string         `json:"tool_name"`
	Arguments     map[string]any `json:"arguments"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Phase         string         `json:"phase,omitempty"`
}

// CallError は失敗時のエラー形状。Kind は fault の分類名。
type CallError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// CallResult はツール呼び出し結果のワイヤ形式。
type CallResult struct {
	CorrelationID string         `json:"correlation_id"`
	Success       bool           `json:"success"`
	Data          map[string]any `json:"data"`
	Error         *CallError     `json:"error"`
	DurationMS    int64          `json:"duration_ms"`
}

// ToolInfo は list_tools_for_phase 応答の1要素。
type ToolInfo struct {
	Name           string   `json:"name"`
	CapabilityTags []string `json:"capability_tags"`
}

// ProgressEvent は進捗購読ストリームの1要素のワイヤ形式。
type ProgressEvent struct {
	Seq     int                           `json:"seq"`
	Session string                        `json:"session"`
	Type    string                        `json:"type"`
	Stage   string                        `json:"stage"`
	Percent float64                       `json:"percent"`
	Sources map[string]recon.SourceStatus `json:"sources,omitempty"`
	Message string                        `json:"message,omitempty"`
}

// EntityRecord は永続化シンクへ渡す正準エンティティのワイヤ形式。
// provenance は必ず付く。
type EntityRecord struct {
	Kind       string             `json:"kind"`
	Key        string             `json:"key"`
	Attrs      map[string]string  `json:"attrs,omitempty"`
	Provenance []fuse.Observation `json:"provenance"`
}

// FromResult は内部の実行結果をワイヤ形式へ変換する。
func FromResult(res *gateway.Result) CallResult {
	out := CallResult{
		CorrelationID: res.CorrelationID,
		Success:       res.Success,
		Data:          res.Payload,
		DurationMS:    res.Latency.Milliseconds(),
	}
	if res.Err != nil {
		out.Error = &CallError{
			Kind:    string(fault.KindOf(res.Err)),
			Message: res.Err.Error(),
		}
	}
	return out
}

// FromEvent は内部の進捗イベントをワイヤ形式へ変換する。
func FromEvent(ev recon.Event) ProgressEvent {
	return ProgressEvent{
		Seq:     ev.Seq,
		Session: ev.Session,
		Type:    string(ev.Type),
		Stage:   ev.Stage,
		Percent: ev.Percent,
		Sources: ev.Sources,
		Message: ev.Message,
	}
}

// FromEntity は内部エンティティをワイヤ形式へ変換する。
func FromEntity(e fuse.Entity) EntityRecord {
	return EntityRecord{
		Kind:       string(e.Kind),
		Key:        e.Key,
		Attrs:      e.Attrs,
		Provenance: e.Provenance,
	}
}

// FromDescriptors は list_tools_for_phase 用の応答を組み立てる。
func FromDescriptors(defs []*registry.Descriptor) []ToolInfo {
	out := make([]ToolInfo, 0, len(defs))
	for _, d := range defs {
		out = append(out, ToolInfo{Name: d.Name, CapabilityTags: d.Tags})
	}
	return out
}
