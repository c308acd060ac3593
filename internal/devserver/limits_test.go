package devserver_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/nexus-chat-client/internal/devserver"
	"github.com/Tyrowin/nexus-chat-client/internal/devserver/devservertest"
	"github.com/Tyrowin/nexus-chat-client/internal/protocol"
)

// TestCreateServer verifies the production timeouts of the HTTP server.
func TestCreateServer(t *testing.T) {
	mux := http.NewServeMux()
	srv := devserver.CreateServer(":9000", mux)

	if srv.Addr != ":9000" {
		t.Errorf("Expected server addr :9000, got %s", srv.Addr)
	}
	if srv.Handler != mux {
		t.Error("Server handler not set correctly")
	}
	if srv.ReadTimeout != 15*time.Second {
		t.Errorf("Expected ReadTimeout 15s, got %v", srv.ReadTimeout)
	}
	if srv.WriteTimeout != 15*time.Second {
		t.Errorf("Expected WriteTimeout 15s, got %v", srv.WriteTimeout)
	}
	if srv.IdleTimeout != 60*time.Second {
		t.Errorf("Expected IdleTimeout 60s, got %v", srv.IdleTimeout)
	}
}

func TestOversizedFrameClosesConnection(t *testing.T) {
	cfg := devserver.NewConfig()
	cfg.MaxMessageSize = 128
	s := devservertest.Start(t, &cfg)
	conn := devservertest.Dial(t, s.URL, nil)

	big := &protocol.Message{Channel: "general", Content: strings.Repeat("x", 1024)}
	devservertest.Send(t, conn, big)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err, "the server drops connections that exceed the read limit")
	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRateLimitDiscardsExcessFrames(t *testing.T) {
	cfg := devserver.NewConfig()
	cfg.RateLimit = devserver.RateLimitConfig{Burst: 2, RefillInterval: time.Hour}
	s := devservertest.Start(t, &cfg)

	conn, _ := devservertest.Login(t, s, "alice", "pw")
	for i := 0; i < 3; i++ {
		devservertest.Send(t, conn, &protocol.GetChannelHistory{Channel: "general"})
	}

	_, ok := devservertest.Receive(t, conn).(*protocol.ChannelHistory)
	require.True(t, ok)
	devservertest.ExpectNoFrame(t, conn, 200*time.Millisecond)
}

func TestHubShutdownTimeout(t *testing.T) {
	s := devservertest.Start(t, nil)

	start := time.Now()
	_ = s.Hub().Shutdown(50 * time.Millisecond)
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Shutdown took %v, expected around 50ms", elapsed)
	}
}
