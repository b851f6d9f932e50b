package testserver

import (
	"context"
	"testing"
	"time"

	"github.com/damianoneill/msgrpc/client"
	"github.com/damianoneill/msgrpc/common"

	assert "github.com/stretchr/testify/require"
)

func TestDefaultEchoBehaviour(t *testing.T) {

	ts := NewTestRPCServer(t)
	defer ts.Close()

	assert.True(t, ts.Port() > 0, "Expected an ephemeral port to be allocated")

	s, err := client.NewRPCSession(context.Background(), ts.Target())
	assert.NoError(t, err, "Expecting new session to succeed")
	defer s.Close()

	resp, err := s.Execute(&common.Request{Method: "get", Params: []common.Value{"a"}})
	assert.NoError(t, err, "Not expecting exec to fail")
	assert.Equal(t, []common.Value{"a"}, resp.Result.Value, "Expected params to be echoed")
	assert.Equal(t, 1, ts.ReqCount(), "Expected request count to be 1")
	assert.Equal(t, "get", ts.LastReq().Method, "Expected GET request")
}

func TestScriptedHandlers(t *testing.T) {

	notified := make(chan string, 1)
	ts := NewTestRPCServer(t).
		WithRequestHandler(FailingRequestHandler).
		WithNotificationHandler(func(n *common.Notification) {
			notified <- n.Method
		})
	defer ts.Close()

	s, err := client.NewRPCSession(context.Background(), ts.Target())
	assert.NoError(t, err, "Expecting new session to succeed")
	defer s.Close()

	_, err = s.Execute(&common.Request{Method: "get"})
	assert.Error(t, err, "Expecting exec to fail")
	assert.Equal(t, "msgrpc [error] 'oops'", err.Error(), "Expected error")

	assert.NoError(t, s.Notify(&common.Notification{Method: "tick"}), "Not expecting notify to fail")
	assert.True(t, ts.WaitNotification(5*time.Second), "Expected server to see the notification")

	select {
	case method := <-notified:
		assert.Equal(t, "tick", method, "Expected TICK notification")
	case <-time.After(5 * time.Second):
		t.Fatal("notification handler was not invoked")
	}
}
