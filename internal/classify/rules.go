package classify

import "regexp"

// DefaultEndpointTable はエンドポイントのカテゴリ分類ルール。
// 優先順位: auth > api > admin > file > sensitive > static > dynamic。
var DefaultEndpointTable = Table{
	{"auth", regexp.MustCompile(`(?i)/(login|signin|sign-in|auth|oauth|sso|logout|register|signup|password|forgot-pass|reset-pass)`)},
	{"api", regexp.MustCompile(`(?i)/(api/|v\d+/|rest/|graphql|json|rpc|ws/|websocket)`)},
	{"admin", regexp.MustCompile(`(?i)/(admin|dashboard|console|management|wp-admin|phpmyadmin|cpanel|webmin|controlpanel)`)},
	{"file", regexp.MustCompile(`(?i)/(upload|download|file|attachment|media|assets|files|static/|blob)`)},
	{"sensitive", regexp.MustCompile(`(?i)/(\.env|\.git|config|backup|secret|private|internal|debug|test|dev|staging)`)},
	{"static", regexp.MustCompile(`(?i)\.(js|css|jpg|jpeg|png|gif|svg|ico|woff2?|ttf|eot|otf|mp4|mp3|pdf|zip)(\?|$)`)},
	{"dynamic", regexp.MustCompile(`\?`)},
}

// DefaultParameterTable はパラメーター名のタイプ分類ルール。
var DefaultParameterTable = Table{
	{"id", regexp.MustCompile(`(?i)^(id|.*_id|uid|user_?id|account|num|page|offset|limit|count)$`)},
	{"token", regexp.MustCompile(`(?i)(token|secret|api_?key|auth|session|csrf|jwt|bearer)`)},
	{"path", regexp.MustCompile(`(?i)(path|file|\bdir\b|folder|template|include|page_?name|document)`)},
	{"email", regexp.MustCompile(`(?i)(email|mail_?addr)`)},
	{"url", regexp.MustCompile(`(?i)(url|uri|redirect|callback|next|return_?to|dest|continue)`)},
	{"query", regexp.MustCompile(`(?i)(^q$|query|search|keyword|term|filter|sort|order)`)},
}

// DefaultSeverityTable はツール固有の深刻度表記の正規化ルール。
var DefaultSeverityTable = Table{
	{"critical", regexp.MustCompile(`(?i)^crit`)},
	{"high", regexp.MustCompile(`(?i)^high|^sev(erity)?[:\s-]?1$`)},
	{"medium", regexp.MustCompile(`(?i)^med|^moderate|^sev(erity)?[:\s-]?2$`)},
	{"low", regexp.MustCompile(`(?i)^low|^sev(erity)?[:\s-]?3$`)},
	{"info", regexp.MustCompile(`(?i)^info|^note|^informational`)},
}
