package realtime

import (
	"time"

	"github.com/codewandler/realtime-go/api"
	"github.com/codewandler/realtime-go/conversation"
	"github.com/codewandler/realtime-go/events"
)

// Notification names dispatched by Client.
const (
	EventItemAppended  = "conversation.item.appended"
	EventItemCompleted = "conversation.item.completed"
	EventUpdated       = "conversation.updated"
	EventInterrupted   = "conversation.interrupted"
	EventLog           = "realtime.event"
	EventClose         = api.EventClose
	EventError         = "error"
)

type Source string

const (
	SourceClient Source = "client"
	SourceServer Source = "server"
)

// Notification is the payload of every Client notification. Which fields are
// set depends on the name it was dispatched under:
//
//   - item notifications and conversation.updated carry Item, and Delta for
//     streaming events
//   - realtime.event carries Time, Source and Event
//   - close carries Err when the transport failed
//   - error carries Err, and Event when the service or an event caused it
type Notification struct {
	Item  *conversation.Item
	Delta *conversation.Delta

	Time   time.Time
	Source Source
	Event  events.Event

	Err error
}
