package blogservice

import "github.com/microcosm-cc/bluemonday"

var ugcPolicy = bluemonday.UGCPolicy()

// sanitizeMarkdown strips markup that could run in a reader's browser while
// keeping the formatting tags Markdown renders to.
func sanitizeMarkdown(markdown string) string {
	return ugcPolicy.Sanitize(markdown)
}
