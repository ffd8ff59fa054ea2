// camsim is a synthetic trail camera for bench testing: it serves the
// device websocket endpoint, accepts Register/Heartbeat messages, and
// streams encoded thermal frames at a configurable rate. Flags can inject
// truncated frames and abrupt closes to exercise the client's reconnect
// and drop paths.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trailcam/camlink/internal/wire"
)

const version = "v0.1.0"

type simulator struct {
	resX, resY int
	fps        float64
	badEvery   int           // inject a truncated frame every N frames (0 = never)
	closeAfter time.Duration // abruptly close each connection after this (0 = never)

	started  time.Time
	upgrader websocket.Upgrader
	connSeq  atomic.Int64
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	resX := flag.Int("resx", 160, "frame width in pixels")
	resY := flag.Int("resy", 120, "frame height in pixels")
	fps := flag.Float64("fps", 9.0, "frames per second")
	badEvery := flag.Int("bad-every", 0, "send a truncated frame every N frames (0 = never)")
	closeAfter := flag.Duration("close-after", 0, "abruptly close each connection after this duration (0 = never)")
	debug := flag.Bool("debug", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("camsim %s\n", version)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	if *fps <= 0 || *fps > 30 {
		slog.Error("camsim: invalid fps", "fps", *fps)
		os.Exit(1)
	}
	if *resX <= 0 || *resY <= 0 {
		slog.Error("camsim: invalid resolution", "resx", *resX, "resy", *resY)
		os.Exit(1)
	}

	sim := &simulator{
		resX:       *resX,
		resY:       *resY,
		fps:        *fps,
		badEvery:   *badEvery,
		closeAfter: *closeAfter,
		started:    time.Now(),
	}

	http.HandleFunc("/ws", sim.handle)

	slog.Info("camsim: listening",
		"addr", *addr,
		"resolution", fmt.Sprintf("%dx%d", *resX, *resY),
		"fps", *fps,
		"bad_every", *badEvery,
		"close_after", *closeAfter,
	)

	if err := http.ListenAndServe(*addr, nil); err != nil {
		slog.Error("camsim: server stopped", "error", err)
		os.Exit(1)
	}
}

func (s *simulator) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("camsim: upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	id := s.connSeq.Add(1)
	slog.Info("camsim: client connected", "conn", id, "remote", r.RemoteAddr)

	// Reader: log session messages; its exit signals the writer to stop.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			msgType, payload, err := ws.ReadMessage()
			if err != nil {
				slog.Info("camsim: client gone", "conn", id, "error", err)
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}
			var msg wire.Message
			if err := json.Unmarshal(payload, &msg); err != nil {
				slog.Warn("camsim: unparseable message", "conn", id, "payload", string(payload))
				continue
			}
			slog.Debug("camsim: session message",
				"conn", id,
				"type", msg.Type,
				"uuid", msg.UUID,
				"data", msg.Data,
			)
		}
	}()

	ticker := time.NewTicker(time.Duration(float64(time.Second) / s.fps))
	defer ticker.Stop()

	var deadline <-chan time.Time
	if s.closeAfter > 0 {
		deadline = time.After(s.closeAfter)
	}

	frameCount := 0
	for {
		select {
		case <-done:
			return
		case <-deadline:
			// Abrupt close, no close frame: simulates a battery-saving
			// device dropping the link mid-stream.
			slog.Info("camsim: abruptly closing connection", "conn", id, "frames_sent", frameCount)
			ws.Close()
			return
		case <-ticker.C:
			frameCount++
			payload, err := s.encodeFrame(frameCount)
			if err != nil {
				slog.Error("camsim: encode failed", "error", err)
				return
			}
			if s.badEvery > 0 && frameCount%s.badEvery == 0 {
				payload = payload[:len(payload)-2]
				slog.Debug("camsim: injecting truncated frame", "conn", id, "frame", frameCount)
			}
			if err := ws.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				slog.Info("camsim: write failed, closing", "conn", id, "error", err)
				return
			}
		}
	}
}

// encodeFrame produces a synthetic thermal frame: a slow-moving diagonal
// gradient so a viewer can tell frames apart.
func (s *simulator) encodeFrame(frameCount int) ([]byte, error) {
	pixels := make([]uint16, s.resX*s.resY)
	var sum uint64
	phase := frameCount % 256
	for y := 0; y < s.resY; y++ {
		for x := 0; x < s.resX; x++ {
			v := uint16(3000 + ((x+y+phase)%256)*8)
			pixels[y*s.resX+x] = v
			sum += uint64(v)
		}
	}

	uptime := time.Since(s.started)
	info := wire.FrameInfo{
		Telemetry: wire.Telemetry{
			TimeOn:       uptime.Nanoseconds(),
			FFCState:     "complete",
			FrameCount:   frameCount,
			FrameMean:    uint16(sum / uint64(len(pixels))),
			TempC:        22.0 + 2.0*math.Sin(uptime.Seconds()/60),
			LastFFCTempC: 22.0,
			LastFFCTime:  0,
		},
		Camera: wire.CameraInfo{
			ResX:         s.resX,
			ResY:         s.resY,
			FPS:          int(s.fps),
			Brand:        "camsim",
			Model:        "synthetic",
			Firmware:     version,
			CameraSerial: 1,
		},
		AppVersion:    version,
		BinaryVersion: "simulated",
	}

	return wire.Encode(info, pixels)
}
