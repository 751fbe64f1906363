// Package api は管理画面APIの共通レスポンス形式と入力検証を提供します。
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// FieldError はフィールド単位の検証エラーです。
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Envelope は全APIで共通のレスポンス形式です。
type Envelope struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Code    string       `json:"code,omitempty"`
	Error   string       `json:"error,omitempty"`
	Details []FieldError `json:"details,omitempty"`
}

// OK は成功レスポンスを返します。
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Fail は失敗レスポンスを返します。
func Fail(c *gin.Context, status int, code, message string, details ...FieldError) {
	c.JSON(status, Envelope{
		Success: false,
		Code:    code,
		Error:   message,
		Details: details,
	})
}

// Abort は失敗レスポンスを返し、後続のハンドラーを中断します。
func Abort(c *gin.Context, status int, body Envelope) {
	body.Success = false
	c.AbortWithStatusJSON(status, body)
}
