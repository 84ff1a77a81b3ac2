package api

import (
	"encoding/json"
	"net/http"

	"github.com/r3labs/sse/v2"

	"github.com/connectrunner/connectrunner/pkg/logging"
)

// logStreamID is the SSE stream name log entries are published to
const logStreamID = "logs"

// LogStream fans the log bus out to SSE clients. Clients receive every
// entry published after they connect; history is served by the /logs
// endpoint instead.
type LogStream struct {
	server      *sse.Server
	unsubscribe func()
}

// NewLogStream creates the SSE endpoint and subscribes it to the bus
func NewLogStream(bus *logging.Bus) *LogStream {
	server := sse.New()
	server.AutoReplay = false
	server.CreateStream(logStreamID)

	ls := &LogStream{server: server}
	ls.unsubscribe = bus.Subscribe(func(entry logging.Entry) {
		data, err := json.Marshal(entry)
		if err != nil {
			return
		}
		server.Publish(logStreamID, &sse.Event{
			Event: []byte(string(entry.Level)),
			Data:  data,
		})
	})

	return ls
}

// ServeHTTP serves the SSE connection. The underlying server multiplexes on
// a stream query parameter; there is only one stream, so it is pinned here.
func (ls *LogStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	q.Set("stream", logStreamID)
	r.URL.RawQuery = q.Encode()

	ls.server.ServeHTTP(w, r)
}

// Close detaches from the bus and shuts down the SSE server
func (ls *LogStream) Close() {
	ls.unsubscribe()
	ls.server.Close()
}
