// Package share encodes conversation links and renders them as terminal
// QR codes.
package share

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// Scheme prefixes every conversation link.
const Scheme = "rentchat"

// ErrInvalidLink is returned by Parse for anything Link did not produce.
var ErrInvalidLink = errors.New("invalid conversation link")

// Link returns the link that opens conversationID. subjectID is informative.
func Link(conversationID, subjectID string) string {
	u := url.URL{Scheme: Scheme, Host: "conversation", Path: "/" + conversationID}
	if subjectID != "" {
		u.RawQuery = url.Values{"subject": {subjectID}}.Encode()
	}
	return u.String()
}

// Parse extracts the conversation id from a link.
func Parse(link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil || u.Scheme != Scheme || u.Host != "conversation" {
		return "", ErrInvalidLink
	}
	id := strings.TrimPrefix(u.Path, "/")
	if id == "" || strings.Contains(id, "/") {
		return "", ErrInvalidLink
	}
	return id, nil
}

// QR renders content as a QR code using Unicode half-block characters, two
// bitmap rows per terminal line. Each line starts with indent.
func QR(content, indent string) (string, error) {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	bitmap := qr.Bitmap()
	rows := len(bitmap)

	var sb strings.Builder
	for y := 0; y < rows; y += 2 {
		sb.WriteString(indent)
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bot := y+1 < rows && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String(), nil
}
