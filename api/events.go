// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/blinklabs-io/ratify/event"
)

// handleEvents handles GET /api/v0/events, relaying campaign events as a
// server-sent event stream until the client goes away. Events are dropped
// for a client that does not keep up.
func (s *Server) handleEvents(
	w http.ResponseWriter,
	r *http.Request,
) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	bus := s.service.EventBus()
	events := make(chan event.Event, event.EventQueueSize)
	for _, evtType := range event.CampaignEventTypes {
		subId := bus.SubscribeFunc(evtType, func(evt event.Event) {
			select {
			case events <- evt:
			default:
			}
		})
		defer bus.Unsubscribe(evtType, subId)
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	done := s.doneCh()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case evt := <-events:
			payload, err := json.Marshal(evt.Data)
			if err != nil {
				s.logger.Warn(
					"failed to encode event",
					"type", evt.Type,
					"error", err,
				)
				continue
			}
			if _, err := fmt.Fprintf(
				w,
				"event: %s\ndata: %s\n\n",
				evt.Type,
				payload,
			); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
