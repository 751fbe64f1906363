// Package guard は管理画面のページ単位のアクセス制御を提供します。
//
// RouteGuard はログインの有無だけを、RoleGuard はロールごとの許可表を見て判定します。
// どちらも判定結果を View として返し、必要な遷移は Navigator に一度だけ依頼します。
package guard

import "github.com/yourusername/estate-admin/internal/auth"

// ルート識別子（ナビゲーションのリンクと同じキー）
const (
	RouteDashboard      = "dashboard"
	RouteProperties     = "properties"
	RouteBlogs          = "blogs"
	RouteBlogCategories = "blog-categories"
	RouteJobs           = "jobs"
	RouteUserManagement = "user-management"
	RouteAuditLog       = "audit-log"
)

// Permission は1ルート分の許可ロールです。
type Permission struct {
	Route string
	Roles []string
}

// Table はルートごとの許可ロール表です。作成後は読み取り専用です。
// 表に無いルートは誰にも許可しません。
type Table struct {
	order []string
	roles map[string]map[string]struct{}
}

// NewTable は許可表を作成します。同じルートが複数回あればロールを合算します。
func NewTable(perms ...Permission) *Table {
	t := &Table{roles: make(map[string]map[string]struct{}, len(perms))}
	for _, p := range perms {
		set, ok := t.roles[p.Route]
		if !ok {
			set = make(map[string]struct{}, len(p.Roles))
			t.roles[p.Route] = set
			t.order = append(t.order, p.Route)
		}
		for _, role := range p.Roles {
			set[role] = struct{}{}
		}
	}
	return t
}

// DefaultTable は管理画面の許可表です。
var DefaultTable = NewTable(
	Permission{Route: RouteDashboard, Roles: []string{auth.RoleAdmin, auth.RoleSuperAdmin}},
	Permission{Route: RouteProperties, Roles: []string{auth.RoleAdmin, auth.RoleSuperAdmin}},
	Permission{Route: RouteBlogs, Roles: []string{auth.RoleAdmin, auth.RoleSuperAdmin}},
	Permission{Route: RouteBlogCategories, Roles: []string{auth.RoleAdmin, auth.RoleSuperAdmin}},
	Permission{Route: RouteJobs, Roles: []string{auth.RoleAdmin, auth.RoleSuperAdmin}},
	Permission{Route: RouteUserManagement, Roles: []string{auth.RoleSuperAdmin}},
	Permission{Route: RouteAuditLog, Roles: []string{auth.RoleSuperAdmin}},
)

// CanAccessRoute は role が route を利用できるかを返します（完全一致）。
func (t *Table) CanAccessRoute(role, route string) bool {
	if t == nil {
		return false
	}
	set, ok := t.roles[route]
	if !ok {
		return false
	}
	_, ok = set[role]
	return ok
}

// Has は route が許可表に登録されているかを返します。
func (t *Table) Has(route string) bool {
	if t == nil {
		return false
	}
	_, ok := t.roles[route]
	return ok
}

// Routes は登録順のルート一覧を返します。
func (t *Table) Routes() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.order...)
}

// AccessibleRoutes は role が利用できるルートを登録順で返します。
func (t *Table) AccessibleRoutes(role string) []string {
	routes := []string{}
	for _, route := range t.Routes() {
		if t.CanAccessRoute(role, route) {
			routes = append(routes, route)
		}
	}
	return routes
}

// CanAccessRoute は DefaultTable で判定します。
func CanAccessRoute(role, route string) bool {
	return DefaultTable.CanAccessRoute(role, route)
}
