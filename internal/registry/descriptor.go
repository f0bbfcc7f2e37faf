package registry

import (
	"github.com/0x6d61/reconcore/internal/phase"
)

// BackendKind はツールを実際に実行するメカニズムの種別。
type BackendKind string

const (
	// BackendFunc はプロセス内 Go 関数。
	BackendFunc BackendKind = "func"
	// BackendSubprocess はローカル外部コマンド。
	BackendSubprocess BackendKind = "subprocess"
	// BackendRPC はリモートサーバーへの JSON-RPC 呼び出し。
	BackendRPC BackendKind = "rpc"
)

// ParamSpec はツール引数1つ分のスキーマ。
type ParamSpec struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"` // "string" | "int" | "bool" | "list"
	Required bool   `yaml:"required"`
}

// RPCConfig は rpc バックエンドの接続設定。
type RPCConfig struct {
	Transport string            `yaml:"transport"` // "http" | "stdio"
	URL       string            `yaml:"url"`       // http の場合
	Command   string            `yaml:"command"`   // stdio の場合
	Args      []string          `yaml:"args"`
	Headers   map[string]string `yaml:"headers"`
}

// Descriptor はYAMLまたはプログラムから登録するツール定義。
// 登録後は不変として扱う。同名の再登録は Replace を立てない限り拒否される。
type Descriptor struct {
	Name          string        `yaml:"name"`
	Description   string        `yaml:"description"`
	Tags          []string      `yaml:"tags"` // capability タグ（"subdomain-enum" 等）
	Backend       BackendKind   `yaml:"backend"`
	AllowedPhases []phase.Phase `yaml:"allowed_phases"`
	Params        []ParamSpec   `yaml:"params"`

	// subprocess バックエンド用
	Binary       string `yaml:"binary"`
	ArgsTemplate string `yaml:"args_template"`
	TimeoutSec   int    `yaml:"timeout"`

	// rpc バックエンド用
	RPC *RPCConfig `yaml:"rpc"`

	// Replace は同名ツールの置き換えを明示的に許可する。
	Replace bool `yaml:"-"`
}

// HasTag は capability タグの有無を返す。
func (d *Descriptor) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AllowsPhase は p が許可フェーズ集合に含まれるかを返す。
// 許可フェーズ未指定のツールはどのフェーズでも呼べない（fail closed）。
func (d *Descriptor) AllowsPhase(p phase.Phase) bool {
	for _, q := range d.AllowedPhases {
		if p == q {
			return true
		}
	}
	return false
}
