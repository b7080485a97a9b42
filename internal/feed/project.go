package feed

import "time"

// UnknownDateLabel is the separator label for messages whose server
// timestamp has not arrived yet. Such messages are never merged into a
// neighbouring day; each one gets its own fresh separator.
const UnknownDateLabel = "Unknown Date"

// dateLabelFormat renders a calendar day for a date separator.
const dateLabelFormat = "January 2, 2006"

// RowKind discriminates the two view model row shapes.
type RowKind int

const (
	RowDateSeparator RowKind = iota
	RowMessage
)

// ReplyContext quotes the message a row is replying to.
type ReplyContext struct {
	AuthorName string
	Text       string
}

// Row is one rendered line of the feed: either a date separator (DateLabel
// set) or a message row (Msg, IsSender, and optionally Reply set once the
// reply target resolves).
type Row struct {
	Kind      RowKind
	DateLabel string
	Msg       Message
	IsSender  bool
	Reply     *ReplyContext // nil until resolved; stays nil on a lookup miss
}

// Project converts a complete snapshot of the messages collection into view
// model rows. The input is expected in backend query order (createdAt
// ascending, nulls and ties in arrival order) and that order is preserved:
// every input message produces exactly one message row, with date separators
// inserted whenever the calendar day (in loc) changes. It is a pure
// function; reply annotation happens elsewhere.
func Project(msgs []Message, currentUserID string, loc *time.Location) []Row {
	if loc == nil {
		loc = time.Local
	}

	rows := make([]Row, 0, len(msgs)*2)
	prevLabel := ""
	for i, msg := range msgs {
		label := UnknownDateLabel
		if msg.CreatedAt != nil {
			label = msg.CreatedAt.In(loc).Format(dateLabelFormat)
		}

		// An unresolvable date always gets its own separator, even when the
		// previous row was also "Unknown Date".
		if msg.CreatedAt == nil || i == 0 || label != prevLabel {
			rows = append(rows, Row{Kind: RowDateSeparator, DateLabel: label})
		}
		prevLabel = label

		rows = append(rows, Row{
			Kind:     RowMessage,
			Msg:      msg,
			IsSender: msg.AuthorID == currentUserID,
		})
	}
	return rows
}

// CountOnline counts presence records marked online. One record per user is
// assumed; duplicate records for a user overcount and are not corrected
// here.
func CountOnline(records []PresenceRecord) int {
	n := 0
	for _, r := range records {
		if r.IsOnline {
			n++
		}
	}
	return n
}
