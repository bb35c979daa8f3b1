package claim

import (
	"regexp"
	"strings"
)

var (
	// usn / username ラベル + 任意の区切り + 識別子
	keyValuePattern = regexp.MustCompile(`(?i)\b(?:usn|username)\b\s*[:=]?\s*([A-Za-z0-9._-]{3,20})`)
	// @メンション
	mentionPattern = regexp.MustCompile(`@([A-Za-z0-9._-]{3,20})`)
)

// Extract はコメント1件から名乗られたアカウント名を取り出す。
// key-value形式（usn: xxx）が@メンションより優先され、どちらも無ければ ok=false。
func Extract(text string) (identity string, ok bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}

	if m := keyValuePattern.FindStringSubmatch(text); len(m) == 2 && m[1] != "" {
		return m[1], true
	}
	if m := mentionPattern.FindStringSubmatch(text); len(m) == 2 && m[1] != "" {
		return m[1], true
	}
	return "", false
}

// NormalizeIdentity は名乗られたアカウント名の比較・保存用の形（前後の空白除去、小文字）
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// LatestClaim は新しいコメントから順に Extract を試し、最初に見つかった名乗りを返す。
func LatestClaim(comments []string) (string, bool) {
	for i := len(comments) - 1; i >= 0; i-- {
		if identity, ok := Extract(comments[i]); ok {
			return identity, true
		}
	}
	return "", false
}

// BestCandidate は claim 通知に載せる候補を決める。
// 明示的な名乗り > 最新コメント > ニックネーム の順。
func BestCandidate(comments []string, nickname string) string {
	if identity, ok := LatestClaim(comments); ok {
		return identity
	}
	for i := len(comments) - 1; i >= 0; i-- {
		if c := strings.TrimSpace(comments[i]); c != "" {
			return c
		}
	}
	return nickname
}
