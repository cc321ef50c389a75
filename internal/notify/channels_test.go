package notify

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smtpScript runs a minimal single-connection SMTP server and returns the
// DATA section it received.
func smtpScript(t *testing.T, ln net.Listener, received chan<- string) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	write := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }

	write("220 test ESMTP")
	var data strings.Builder
	inData := false
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if inData {
			if line == "." {
				inData = false
				write("250 OK")
				received <- data.String()
				continue
			}
			data.WriteString(line + "\n")
			continue
		}
		switch {
		case strings.HasPrefix(line, "EHLO"), strings.HasPrefix(line, "HELO"):
			write("250 test")
		case strings.HasPrefix(line, "MAIL FROM"), strings.HasPrefix(line, "RCPT TO"):
			write("250 OK")
		case line == "DATA":
			inData = true
			write("354 go ahead")
		case line == "QUIT":
			write("221 bye")
			return
		default:
			write("500 unrecognized")
		}
	}
}

func TestEmailChannelDelivers(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan string, 1)
	go smtpScript(t, ln, received)

	channel := NewEmailChannel(ln.Addr().String(), "alerts@example.com", 2*time.Second)
	payload := Payload{
		AlertID:     "a1",
		RuleName:    "high cpu",
		Severity:    "critical",
		TriggeredAt: time.Now(),
	}
	require.NoError(t, channel.Send(context.Background(), "ops@example.com", payload))

	select {
	case msg := <-received:
		assert.Contains(t, msg, "To: ops@example.com")
		assert.Contains(t, msg, "Subject: [CRITICAL] alert: high cpu")
	case <-time.After(time.Second):
		t.Fatal("relay never received the message")
	}
}

func TestEmailChannelTimesOutOnStalledRelay(t *testing.T) {
	// Accept the connection but never send the greeting.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(5 * time.Second)
	}()

	channel := NewEmailChannel(ln.Addr().String(), "alerts@example.com", 100*time.Millisecond)

	start := time.Now()
	err = channel.Send(context.Background(), "ops@example.com", Payload{AlertID: "a1"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second, "a stalled relay must not block past the deadline")
}

func TestEmailChannelHonorsContextDeadline(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(5 * time.Second)
	}()

	// Channel timeout is generous; the caller's deadline is the tight one.
	channel := NewEmailChannel(ln.Addr().String(), "alerts@example.com", time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = channel.Send(ctx, "ops@example.com", Payload{AlertID: "a1"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
