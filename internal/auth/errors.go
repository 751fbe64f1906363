package auth

import "fmt"

// 失敗理由のコード
const (
	CodeInvalidToken         = "INVALID_TOKEN"
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeMissingFields        = "MISSING_FIELDS"
	CodeAlreadyAuthenticated = "ALREADY_AUTHENTICATED"
	CodeInProgress           = "IN_PROGRESS"
	CodeRegistrationDisabled = "REGISTRATION_DISABLED"
	CodeContextClosed        = "CONTEXT_CLOSED"
	CodeAuthFailed           = "AUTH_FAILED"
)

// Error は想定内の認証失敗を表します。Message はそのまま画面に表示できる文言です。
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

var (
	errInvalidToken         = newError(CodeInvalidToken, "トークンが正しくありません")
	errInvalidCredentials   = newError(CodeInvalidCredentials, "ユーザー名またはパスワードが正しくありません")
	errMissingCredentials   = newError(CodeMissingFields, "ユーザー名とパスワードを入力してください")
	errMissingRegisterData  = newError(CodeMissingFields, "ユーザー名・パスワード・メールアドレスを入力してください")
	errRegistrationDisabled = newError(CodeRegistrationDisabled, "このサーバーでは新規登録は無効です")
)
