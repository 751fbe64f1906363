// Package main は認証・認可まわりの運用コマンドです。
//
//	gatectl hash-password --password ...      APP_PASSWORD_HASH 用の bcrypt ハッシュを出力
//	gatectl can-access --role admin --route blogs
//	gatectl routes --role SuperAdmin
//	gatectl try-login --token admin-token-123 設定値でログインを試す
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
