package api

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Rule は1フィールド分の検証ルールです。Tag は validator のタグ書式です。
type Rule struct {
	Field   string
	Tag     string
	Message string // 空の場合はタグから生成
}

// Rules はフォームごとの検証ルール一覧です。定義順にエラーを返します。
type Rules []Rule

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func engine() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate は values をルールに従って検証します。
// 1フィールドにつき最初に失敗したルールのみを報告します。
func (r Rules) Validate(values map[string]any) []FieldError {
	var errs []FieldError
	failed := make(map[string]bool)
	for _, rule := range r {
		if failed[rule.Field] {
			continue
		}
		value := values[rule.Field]
		if s, ok := value.(string); ok {
			value = strings.TrimSpace(s)
		}
		if value == nil {
			value = ""
		}

		err := engine().Var(value, rule.Tag)
		if err == nil {
			continue
		}
		failed[rule.Field] = true
		errs = append(errs, FieldError{Field: rule.Field, Message: rule.message(err)})
	}
	return errs
}

func (r Rule) message(err error) string {
	if r.Message != "" {
		return r.Message
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return fmt.Sprintf("%s が不正です", r.Field)
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s は必須です", r.Field)
	case "email":
		return fmt.Sprintf("%s はメールアドレス形式で入力してください", r.Field)
	case "min":
		return fmt.Sprintf("%s は %s 文字以上で入力してください", r.Field, fe.Param())
	case "max":
		return fmt.Sprintf("%s は %s 文字以内で入力してください", r.Field, fe.Param())
	default:
		return fmt.Sprintf("%s が不正です（%s）", r.Field, fe.Tag())
	}
}
