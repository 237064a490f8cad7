// internal/navigation/navigation.go
package navigation

import "net/url"

// DashboardRoute 项目列表页，取消或加载失败时返回此处
const DashboardRoute = "/dashboard"

// GenerateRoute 配置确认后进入的生成页
func GenerateRoute(projectID string) string {
	return "/generate/" + url.PathEscape(projectID)
}
