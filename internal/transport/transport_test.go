// SPDX-License-Identifier: MIT
package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"pitchscope/internal/analysis"
	applog "pitchscope/internal/log"
	"pitchscope/pkg/utils"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testGeometry = analysis.Geometry{Bins: 1024, SampleRate: 48000, FFTSize: 2048}

func sampleResult(seq uint64) *analysis.Result {
	return &analysis.Result{
		Sequence: seq,
		Smoothed: []float64{1, 2, 3},
		LevelDb:  -40,
		Labels: []analysis.Label{
			{Frequency: 440, Pitch: analysis.NamePitch(440), AboveThreshold: true},
			{Frequency: 660, Pitch: analysis.NamePitch(660)},
		},
	}
}

func dialSpectrum(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + SpectrumPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func TestWebSocketHelloAndBroadcast(t *testing.T) {
	hello := NewHello(testGeometry, analysis.DefaultSettings())
	wst := NewWebSocketTransport("", hello)
	defer wst.Close()

	srv := httptest.NewServer(wst.Handler())
	defer srv.Close()

	conn := dialSpectrum(t, srv)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg envelope
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageHello, msg.Type)

	var gotHello Hello
	require.NoError(t, json.Unmarshal(msg.Data, &gotHello))
	assert.Equal(t, testGeometry, gotHello.Geometry)
	assert.Equal(t, analysis.DefaultWindowMs, gotHello.WindowMs)
	require.Len(t, gotHello.Guide, 10)
	assert.Equal(t, "1kHz", gotHello.Guide[5].Label)
	require.Eventually(t, func() bool { return wst.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, wst.Send(sampleResult(9)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageResult, msg.Type)

	var res analysis.Result
	require.NoError(t, json.Unmarshal(msg.Data, &res))
	assert.Equal(t, uint64(9), res.Sequence)
	require.Len(t, res.Labels, 2)
	assert.Equal(t, "A", res.Labels[0].Pitch.Note)
	assert.Equal(t, []float64{1, 2, 3}, res.Smoothed)
}

func TestWebSocketClientDisconnect(t *testing.T) {
	wst := NewWebSocketTransport("", NewHello(testGeometry, analysis.DefaultSettings()))
	defer wst.Close()
	srv := httptest.NewServer(wst.Handler())
	defer srv.Close()

	conn := dialSpectrum(t, srv)
	var msg envelope
	require.NoError(t, conn.ReadJSON(&msg))
	require.Eventually(t, func() bool { return wst.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return wst.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketStartAndClose(t *testing.T) {
	wst := NewWebSocketTransport("127.0.0.1:0", NewHello(testGeometry, analysis.DefaultSettings()))
	require.NoError(t, wst.Start())
	require.NotNil(t, wst.Addr())

	url := "ws://" + wst.Addr().String() + SpectrumPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wst.Close())
	assert.Error(t, wst.Send(sampleResult(1)))
	assert.NoError(t, wst.Close(), "second close is a no-op")
}

func TestWebSocketRejectsClientAfterClose(t *testing.T) {
	wst := NewWebSocketTransport("", NewHello(testGeometry, analysis.DefaultSettings()))
	srv := httptest.NewServer(wst.Handler())
	defer srv.Close()
	require.NoError(t, wst.Close())

	conn := dialSpectrum(t, srv)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg envelope
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageHello, msg.Type)

	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "connection is closed by the server")
	assert.Equal(t, 0, wst.Clients())
}

func TestMulti(t *testing.T) {
	a, b := &utils.MockTransport{}, &utils.MockTransport{}
	b.Err = errors.New("b failed")
	m := Multi{a, b}

	err := m.Send(1)
	assert.ErrorContains(t, err, "b failed")
	assert.Equal(t, []any{1}, a.Sent())

	require.NoError(t, m.Close())
	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
}

func TestLoggingTransport(t *testing.T) {
	var buf bytes.Buffer
	applog.SetOutput(&buf)
	defer applog.SetOutput(os.Stderr)

	lt := NewLoggingTransport(2)
	buf.Reset()
	for seq := uint64(1); seq <= 4; seq++ {
		require.NoError(t, lt.Send(sampleResult(seq)))
	}
	require.NoError(t, lt.Close())

	out := buf.String()
	assert.Contains(t, out, "Frame 1:")
	assert.NotContains(t, out, "Frame 2:")
	assert.Contains(t, out, "Frame 3:")
	assert.Contains(t, out, "A4 (+0 cents) @ 440.0 Hz")
	assert.Contains(t, out, "(below threshold)")
}

func TestSummarizeLabels(t *testing.T) {
	assert.Equal(t, "no peaks", SummarizeLabels(nil))
}
