// callsim simulates a telephony bridge against a running dispatchd. It opens
// the bridge websocket, starts a call, streams a raw PCM file in real-time
// frames, and prints playback and clear messages as they arrive. Useful for
// exercising barge-in and extraction without a SIP gateway.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/firstlinehq/go-dispatch/pkg/protocol"
)

func main() {
	addr := flag.String("addr", "ws://localhost:8080/ws/bridge", "dispatchd bridge websocket URL")
	callID := flag.String("call", "", "call id (default: generated)")
	file := flag.String("file", "", "raw PCM16 mono audio file to stream (default: silence)")
	rate := flag.Int("rate", 16000, "sample rate of the audio file")
	duration := flag.Duration("duration", 30*time.Second, "how long to stream when no file is given")
	flag.Parse()

	if *callID == "" {
		*callID = "sim-" + uuid.NewString()
	}

	conn, _, err := websocket.DefaultDialer.Dial(*addr, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	start, err := protocol.NewSessionStartMessage(*callID, uuid.NewString(), protocol.AudioFormat{
		Encoding:   "pcm16",
		SampleRate: *rate,
		Channels:   1,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "build session_start: %v\n", err)
		os.Exit(1)
	}
	if err := writeMessage(conn, start); err != nil {
		fmt.Fprintf(os.Stderr, "send session_start: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("call %s started\n", *callID)

	go readLoop(conn)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- stream(conn, *callID, *file, *rate, *duration) }()

	select {
	case err := <-done:
		if err != nil {
			fmt.Fprintf(os.Stderr, "stream: %v\n", err)
		}
	case <-sig:
		fmt.Println("interrupted")
	}

	stop, err := protocol.NewSessionStopMessage(*callID, "hangup")
	if err == nil {
		writeMessage(conn, stop)
	}
	fmt.Printf("call %s stopped\n", *callID)

	// Give dispatchd a moment to flush the teardown.
	time.Sleep(200 * time.Millisecond)
}

// stream sends 20ms PCM16 frames at wall-clock pace.
func stream(conn *websocket.Conn, callID, file string, rate int, duration time.Duration) error {
	frameBytes := rate / 50 * 2 // 20ms of 16-bit mono samples

	var src io.Reader
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	} else {
		src = &silence{limit: int(duration.Seconds() * float64(rate) * 2)}
	}

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	buf := make([]byte, frameBytes)
	var seq uint64
	for range ticker.C {
		n, err := io.ReadFull(src, buf)
		if n > 0 {
			msg, merr := protocol.NewMediaMessage(callID, seq, buf[:n])
			if merr != nil {
				return merr
			}
			if werr := writeMessage(conn, msg); werr != nil {
				return werr
			}
			seq++
		}
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return err
		}
	}
	return nil
}

// readLoop prints dispatchd's outbound messages.
func readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			fmt.Printf("<- unparseable: %v\n", err)
			continue
		}
		switch msg.Type {
		case protocol.TypeAudio:
			var audio protocol.AudioData
			if msg.ParseData(&audio) == nil {
				raw, _ := protocol.DecodeAudio(audio.Data)
				fmt.Printf("<- audio seq=%d bytes=%d\n", audio.Seq, len(raw))
			}
		case protocol.TypeClear:
			fmt.Println("<- clear (playback flushed)")
		case protocol.TypeError:
			var e protocol.ErrorData
			if msg.ParseData(&e) == nil {
				fmt.Printf("<- error %s: %s\n", e.Code, e.Message)
			}
		default:
			fmt.Printf("<- %s\n", msg.Type)
		}
	}
}

func writeMessage(conn *websocket.Conn, msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// silence yields zeroed PCM up to a byte limit.
type silence struct{ limit int }

func (s *silence) Read(p []byte) (int, error) {
	if s.limit <= 0 {
		return 0, io.EOF
	}
	n := len(p)
	if n > s.limit {
		n = s.limit
	}
	for i := 0; i < n; i++ {
		p[i] = 0
	}
	s.limit -= n
	return n, nil
}
