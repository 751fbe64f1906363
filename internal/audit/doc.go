// Package audit は認証イベント（ログイン・登録・ログアウト）の監査ログを非同期で記録します。
//
// イベントは Asynq のキューに投入され、ワーカーが Redis のリストに保存します。
// 保存件数は上限を超えると古いものから捨てられます。
//
// 使用ライブラリ:
// - github.com/hibiken/asynq: 非同期キュー
// - github.com/redis/go-redis/v9: 監査ログの保存
package audit
