// Package auth は管理画面の認証・認可機能を提供します。
//
// Context はクライアント1回の読み込みに対応する認証状態機械で、
// Manager はそれを gin のハンドラーとして公開します。
//
// 認証の実体は Authenticator インターフェースの裏にあり、
// 開発用の MockAuthenticator と、設定済みユーザーを bcrypt で検証する
// StaticAuthenticator を切り替えられます。
package auth
