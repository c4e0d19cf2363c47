package api

import (
	"net/http"
	"strings"
)

// The two-way SMS gateway expects a small XML envelope in the webhook
// response: a <message> element with the reply text, or <cancel> when no
// reply should be sent.
const (
	replyHeader = "<?xml version='1.0' encoding='utf-8'?>\n<reply>\n"
	replyFooter = "\n</reply>"
	cancelBody  = "<cancel></cancel>"
)

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func replyEnvelope(text string) string {
	if text == "" {
		return replyHeader + cancelBody + replyFooter
	}
	return replyHeader + "<message>" + xmlEscaper.Replace(text) + "</message>" + replyFooter
}

func writeReply(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/xml;charset=utf-8")
	_, _ = w.Write([]byte(replyEnvelope(text)))
}
