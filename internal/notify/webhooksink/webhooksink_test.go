package webhooksink_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/taskbroker/internal/model"
	"github.com/slok/taskbroker/internal/notify/webhooksink"
)

func TestSinkSend(t *testing.T) {
	tests := map[string]struct {
		statuses []int
		expCalls int32
		expErr   bool
	}{
		"A successful post should send the event once.": {
			statuses: []int{http.StatusNoContent},
			expCalls: 1,
		},
		"Server errors should be retried.": {
			statuses: []int{http.StatusInternalServerError, http.StatusServiceUnavailable, http.StatusOK},
			expCalls: 3,
		},
		"Rejected events should not be retried.": {
			statuses: []int{http.StatusBadRequest},
			expCalls: 1,
			expErr:   true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				c := atomic.AddInt32(&calls, 1)

				var got webhooksink.Event
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				assert.Equal(t, "task.completed", got.Type)
				assert.Equal(t, "t1", got.TaskID)
				assert.Equal(t, []string{"c1"}, got.Recipients)

				w.WriteHeader(test.statuses[int(c)-1])
			}))
			defer srv.Close()

			sink, err := webhooksink.NewSink(webhooksink.SinkConfig{URL: srv.URL, RetryInitialInterval: time.Millisecond})
			require.NoError(t, err)

			err = sink.Send(context.Background(), model.Event{
				ID:         "e1",
				Type:       model.EventTaskCompleted,
				TaskID:     "t1",
				Recipients: []string{"c1"},
				Message:    "Your task was completed",
			})
			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, test.expCalls, atomic.LoadInt32(&calls))
		})
	}
}
