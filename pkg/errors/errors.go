// Package errors はステップワイズ前進選択（SFO）全体のエラーハンドリングと警告システムを提供します。
// 各ラウンドのマージ処理で発生する失敗を構造化された型として表現し、cockroachdb/errors でスタックトレースを付与します。
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		log.Printf("SFO-Warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler は警告ハンドラを設定します。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
// nil を渡すと従来のハンドラに戻ります。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが設定されている場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}
	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	SFO の警告型
//
// ===========================================================================

// NonPositiveGainWarning は選択された特徴量のゲインが 0 以下だった場合の警告です。
// 選択自体は行われますが、対数尤度が改善していないことを示します。
type NonPositiveGainWarning struct {
	Dimension int
	Gain      float64
}

func (w *NonPositiveGainWarning) Error() string {
	return fmt.Sprintf("selected dimension %d has non-positive gain %g; the log-likelihood does not improve", w.Dimension, w.Gain)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *NonPositiveGainWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Int("dimension", w.Dimension).
		Float64("gain", w.Gain).
		Str("type", "NonPositiveGainWarning")
}

// NewNonPositiveGainWarning は新しいNonPositiveGainWarningを作成します。
func NewNonPositiveGainWarning(dimension int, gain float64) *NonPositiveGainWarning {
	return &NonPositiveGainWarning{Dimension: dimension, Gain: gain}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// MissingBaseModelError はラウンドにベースモデルのレコードが届かなかった場合のエラーです。
// 拡張すべきモデルが存在しないため、選択処理全体が中断されます。
type MissingBaseModelError struct {
	Key int // ラウンドのグルーピングキー
}

func (e *MissingBaseModelError) Error() string {
	return fmt.Sprintf("sfo: no base model record delivered for round key %d", e.Key)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *MissingBaseModelError) MarshalZerologObject(event *zerolog.Event) {
	event.Int("round_key", e.Key).
		Str("type", "MissingBaseModelError")
}

// NewMissingBaseModelError は新しいMissingBaseModelErrorを作成し、スタックトレースを付与します。
func NewMissingBaseModelError(key int) error {
	return errors.WithStack(&MissingBaseModelError{Key: key})
}

// InsufficientCandidatesError は候補数が1ラウンドあたりの追加数に満たない場合のエラーです。
type InsufficientCandidatesError struct {
	Requested int // addPerIteration
	Available int // 受け取った候補数
	ModelSize int // マージ前のモデルの次元数
}

func (e *InsufficientCandidatesError) Error() string {
	return fmt.Sprintf("sfo: cannot add %d dimensions, only %d candidates available (model has %d dimensions)",
		e.Requested, e.Available, e.ModelSize)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *InsufficientCandidatesError) MarshalZerologObject(event *zerolog.Event) {
	event.Int("requested", e.Requested).
		Int("available", e.Available).
		Int("model_size", e.ModelSize).
		Str("type", "InsufficientCandidatesError")
}

// NewInsufficientCandidatesError は新しいInsufficientCandidatesErrorを作成し、スタックトレースを付与します。
func NewInsufficientCandidatesError(requested, available, modelSize int) error {
	return errors.WithStack(&InsufficientCandidatesError{
		Requested: requested,
		Available: available,
		ModelSize: modelSize,
	})
}

// DuplicateDimensionError は既にモデルに含まれる次元が再び追加されようとした場合のエラーです。
// 上流の評価器が使用済みの特徴量を再評価したことを意味します。
type DuplicateDimensionError struct {
	Dimension int
	ModelSize int
}

func (e *DuplicateDimensionError) Error() string {
	return fmt.Sprintf("sfo: dimension %d is already part of the model (model has %d dimensions)", e.Dimension, e.ModelSize)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DuplicateDimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Int("dimension", e.Dimension).
		Int("model_size", e.ModelSize).
		Str("type", "DuplicateDimensionError")
}

// NewDuplicateDimensionError は新しいDuplicateDimensionErrorを作成し、スタックトレースを付与します。
func NewDuplicateDimensionError(dimension, modelSize int) error {
	return errors.WithStack(&DuplicateDimensionError{Dimension: dimension, ModelSize: modelSize})
}

// MalformedRecordError は入力レコードのフィールドが欠落・不正な場合のエラーです。
// 値を黙ってデフォルトに置き換えることはせず、呼び出し元へ伝播させます。
type MalformedRecordError struct {
	Field  string
	Reason string
	Value  interface{}
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("sfo: malformed record field '%s': %s (got: %v)", e.Field, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *MalformedRecordError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("field", e.Field).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "MalformedRecordError")
}

// NewMalformedRecordError は新しいMalformedRecordErrorを作成し、スタックトレースを付与します。
func NewMalformedRecordError(field, reason string, value interface{}) error {
	return errors.WithStack(&MalformedRecordError{Field: field, Reason: reason, Value: value})
}

// ValidationError は設定パラメータの検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("sfo: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

// RoundError はラウンド単位の失敗を表し、どのラウンドで何が起きたかを呼び出し元に伝えます。
type RoundError struct {
	Round     int // 0 始まりのラウンド番号
	ModelSize int // 失敗時点のモデルの次元数
	Err       error
}

func (e *RoundError) Error() string {
	return fmt.Sprintf("sfo: round %d failed (model has %d dimensions): %v", e.Round, e.ModelSize, e.Err)
}

func (e *RoundError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *RoundError) MarshalZerologObject(event *zerolog.Event) {
	event.Int("round", e.Round).
		Int("model_size", e.ModelSize).
		Str("kind", Kind(e.Err)).
		Str("type", "RoundError")
}

// NewRoundError は新しいRoundErrorを作成し、スタックトレースを付与します。
// err が nil の場合は nil を返します。
func NewRoundError(round, modelSize int, err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&RoundError{Round: round, ModelSize: modelSize, Err: err})
}

// Kind はエラーの種類を短い名前で返します。ログやCLIの終了メッセージに使用します。
func Kind(err error) string {
	var (
		missing   *MissingBaseModelError
		short     *InsufficientCandidatesError
		dup       *DuplicateDimensionError
		malformed *MalformedRecordError
		invalid   *ValidationError
		panicked  *PanicError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &missing):
		return "MissingBaseModelError"
	case errors.As(err, &short):
		return "InsufficientCandidatesError"
	case errors.As(err, &dup):
		return "DuplicateDimensionError"
	case errors.As(err, &malformed):
		return "MalformedRecordError"
	case errors.As(err, &invalid):
		return "ValidationError"
	case errors.As(err, &panicked):
		return "PanicError"
	default:
		return "Error"
	}
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrNilModel はnilのモデルが渡された場合のエラーです。
	ErrNilModel = New("nil model")

	// ErrModelPublished は公開済み（読み取り専用）のモデルを変更しようとした場合のエラーです。
	ErrModelPublished = New("model is published and read-only")
)
