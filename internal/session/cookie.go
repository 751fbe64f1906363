package session

import (
	"github.com/gin-contrib/sessions"
	"github.com/google/uuid"
)

const clientIDKey = "client_id"

// CookieStorage は gin-contrib/sessions のセッションに保存する Storage です。
// 値を設定した後に Save を一度だけ呼ぶため、署名付きCookieへの書き込みは組単位になります。
type CookieStorage struct {
	sess sessions.Session
}

// NewCookieStorage は CookieStorage を作成します。
func NewCookieStorage(sess sessions.Session) *CookieStorage {
	return &CookieStorage{sess: sess}
}

func (c *CookieStorage) GetItem(key string) (string, bool, error) {
	v, ok := c.sess.Get(key).(string)
	if !ok {
		return "", false, nil
	}
	return v, true, nil
}

func (c *CookieStorage) SetItems(items map[string]string) error {
	for k, v := range items {
		c.sess.Set(k, v)
	}
	return c.sess.Save()
}

func (c *CookieStorage) RemoveItems(keys ...string) error {
	for _, k := range keys {
		c.sess.Delete(k)
	}
	return c.sess.Save()
}

// ClientID はCookieセッションに紐づくクライアントIDを返します。
// 未発行の場合は新しく発行して保存します。Redis / メモリ保存時のキーに使います。
func ClientID(sess sessions.Session) (string, error) {
	if id, ok := sess.Get(clientIDKey).(string); ok && id != "" {
		return id, nil
	}
	id := uuid.NewString()
	sess.Set(clientIDKey, id)
	if err := sess.Save(); err != nil {
		return "", err
	}
	return id, nil
}
