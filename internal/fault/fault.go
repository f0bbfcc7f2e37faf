// Package fault はオーケストレーション全体で共有するエラー分類を定義する。
// バックエンド固有のエラー形状は Gateway がこの分類に正規化してから返す。
package fault

import (
	"errors"
	"fmt"
)

// Kind はエラーの分類。リトライ可否と伝播ポリシーを決定する。
type Kind string

const (
	// KindValidation は引数の欠落・型不一致。即時失敗、リトライしない。
	KindValidation Kind = "validation"
	// KindTransport はバックエンド到達不能・タイムアウト。リトライ対象。
	KindTransport Kind = "transport"
	// KindPermission はフェーズゲートによる拒否。リトライしない、握り潰さない。
	KindPermission Kind = "permission_denied"
	// KindDuplicateTool は同名ツールの再登録（replace なし）。
	KindDuplicateTool Kind = "duplicate_tool"
	// KindInvalidTransition は不正なフェーズ遷移要求。状態は変化しない。
	KindInvalidTransition Kind = "invalid_transition"
	// KindPartialFailure はステージ内の一部ソース失敗。パイプラインは継続する。
	KindPartialFailure Kind = "partial_failure"
	// KindFatal は必須ステージの全ソース喪失等。セッションを中断する。
	KindFatal Kind = "fatal"
)

// Error は Kind 付きのエラー。errors.As で分類を取り出せる。
type Error struct {
	Kind  Kind
	Tool  string // 関連ツール名（なければ空）
	Stage string // 関連ステージ名（なければ空）
	Msg   string
	Err   error // ラップされた元エラー
}

func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Tool != "" {
		prefix += "/" + e.Tool
	}
	if e.Stage != "" {
		prefix += "@" + e.Stage
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New は Kind 付きの Error を作る。
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf はフォーマット付きで Error を作る。
func Newf(kind Kind, format string, a ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, a...)}
}

// Wrap は既存エラーを Kind 付きでラップする。err が nil なら nil。
func Wrap(kind Kind, err error, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf は err の Kind を返す。fault.Error でなければ KindFatal 扱い。
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindFatal
}

// IsRetryable は err がリトライ対象（transport）かを返す。
// validation / permission はここで必ず false になる。
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransport
}

// WithTool は Tool フィールドを埋めたコピーを返す。
func (e *Error) WithTool(name string) *Error {
	c := *e
	c.Tool = name
	return &c
}

// WithStage は Stage フィールドを埋めたコピーを返す。
func (e *Error) WithStage(name string) *Error {
	c := *e
	c.Stage = name
	return &c
}
