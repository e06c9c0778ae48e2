package scanner

import (
	"context"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/noah-isme/sma-gate-api/internal/models"
)

// RadioSession is one open NFC radio scan.
type RadioSession interface {
	// Scan blocks until the session is aborted or fails fatally. Tag
	// readings arrive asynchronously through Session.HandleRadioReading
	// while it runs; callers must not wait on it for data.
	Scan(ctx context.Context) error
	// Abort cancels the scan. It is safe to call more than once and on
	// a session that never started.
	Abort()
}

// RadioOpener acquires the radio hardware. Open returns
// errors.ErrChannelUnsupported when the platform has no radio, and
// errors.ErrChannelPermission when the operator declined access.
type RadioOpener interface {
	Open(ctx context.Context) (RadioSession, error)
}

// radioURLParam is the query parameter carrying the identifier in
// URL-typed tag records.
const radioURLParam = "id"

// DecodeRadioPayload normalises one tag reading into an identifier. The
// records are scanned in order: a text record decodes as UTF-8 text, a
// URL record yields its identifier query parameter or, absent that, the
// trailing path segment. The first non-empty result wins. An empty
// return means the tag carried nothing usable and must be surfaced as an
// unrecognised-token event, not dropped.
func DecodeRadioPayload(records []models.RadioRecord) string {
	for _, record := range records {
		switch record.Type {
		case models.RadioRecordText:
			if utf8.Valid(record.Data) {
				if text := string(record.Data); text != "" {
					return text
				}
			}
		case models.RadioRecordURL:
			if token := decodeURLRecord(string(record.Data)); token != "" {
				return token
			}
		}
	}
	return ""
}

func decodeURLRecord(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if token := parsed.Query().Get(radioURLParam); token != "" {
		return token
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}
