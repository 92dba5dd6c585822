package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorders(t *testing.T) {
	Init()
	Init() // idempotent

	RecordSend("qq-test", nil)
	RecordSend("qq-test", errors.New("x"))
	RecordSend("qq-test", errors.New("y"))
	assert.Equal(t, 1.0, testutil.ToFloat64(messagesSentTotal.WithLabelValues("qq-test", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(messagesSentTotal.WithLabelValues("qq-test", "error")))

	RecordParse("fallback-test")
	assert.Equal(t, 1.0, testutil.ToFloat64(protocolParsesTotal.WithLabelValues("fallback-test")))

	TurnStarted()
	TurnFinished()
	RecordTurn("qq-test", "ok", time.Second)
	RecordFlush("qq-test", 3)
	RecordLLMCall("agent", nil)
	RecordToolCall("web_search", nil)
	RecordInbound("qq-test")
}

func TestHandler(t *testing.T) {
	Init()
	RecordInbound("scrape-test")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "kira_inbound_events_total"))
}
