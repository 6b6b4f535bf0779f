// Command kindredprobe replays microphone audio against a running kindred
// server and reports live turn latencies.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/kindred/internal/audio"
	"github.com/ent0n29/kindred/internal/protocol"
)

type options struct {
	baseURL     string
	userID      string
	personality string
	wavPath     string
	turns       int
	chunkMS     int
	realtime    float64
	turnTimeout time.Duration
	verbose     bool
}

type turnResult struct {
	firstAudio time.Duration
	total      time.Duration
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kindredprobe: %v\n", err)
		os.Exit(2)
	}
	results, err := run(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kindredprobe: %v\n", err)
		os.Exit(1)
	}
	printSummary(os.Stdout, results)
}

func parseFlags() (options, error) {
	var cfg options
	var turnTimeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "kindred base URL")
	flag.StringVar(&cfg.userID, "user-id", "probe", "user_id for the probe session")
	flag.StringVar(&cfg.personality, "personality", "", "optional personality for the session")
	flag.StringVar(&cfg.wavPath, "wav", "", "16-bit PCM WAV replayed each turn (default: a synthetic tone)")
	flag.IntVar(&cfg.turns, "turns", 5, "number of turns to replay")
	flag.IntVar(&cfg.chunkMS, "chunk-ms", 64, "capture block size in milliseconds")
	flag.Float64Var(&cfg.realtime, "realtime", 1.0, "pacing multiplier (1.0=realtime, 2.0=2x)")
	flag.IntVar(&turnTimeoutMS, "turn-timeout-ms", 20000, "timeout waiting for turn_complete in milliseconds")
	flag.BoolVar(&cfg.verbose, "verbose", false, "print progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if cfg.chunkMS < 10 || cfg.chunkMS > 2000 {
		return options{}, fmt.Errorf("chunk-ms must be in [10,2000]")
	}
	if cfg.realtime <= 0 {
		return options{}, fmt.Errorf("realtime must be > 0")
	}
	cfg.turnTimeout = time.Duration(max(turnTimeoutMS, 1000)) * time.Millisecond
	return cfg, nil
}

func run(cfg options) ([]turnResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	samples, err := loadSamples(cfg.wavPath)
	if err != nil {
		return nil, fmt.Errorf("load audio: %w", err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	sessionID, err := createSession(ctx, client, cfg)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	defer func() { _ = endSession(context.Background(), client, cfg.baseURL, sessionID) }()

	wsURL, err := wsURLForSession(cfg.baseURL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	events := make(chan probeEvent, 256)
	readErr := make(chan error, 1)
	go readLoop(conn, events, readErr, cfg.verbose)

	if err := conn.WriteJSON(protocol.ClientControl{
		Type:      protocol.TypeClientControl,
		SessionID: sessionID,
		Action:    protocol.ActionMicReady,
	}); err != nil {
		return nil, fmt.Errorf("send mic_ready: %w", err)
	}
	if err := awaitEvent(events, readErr, string(protocol.TypeLiveStatus), cfg.turnTimeout); err != nil {
		return nil, fmt.Errorf("await listening: %w", err)
	}

	results := make([]turnResult, 0, cfg.turns)
	seq := 0
	for i := 0; i < cfg.turns; i++ {
		if cfg.verbose {
			fmt.Printf("kindredprobe: turn %d/%d samples=%d\n", i+1, cfg.turns, len(samples))
		}
		start := time.Now()
		res, err := replayTurn(conn, sessionID, samples, cfg, &seq, events, readErr, start)
		if err != nil {
			return results, fmt.Errorf("turn %d: %w", i+1, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// replayTurn streams samples while watching for the assistant's answer. The
// stream continues with silence until the turn completes.
func replayTurn(conn *websocket.Conn, sessionID string, samples []float32, cfg options, seq *int, events <-chan probeEvent, readErr <-chan error, start time.Time) (turnResult, error) {
	blockSize := audio.CaptureSampleRate * cfg.chunkMS / 1000
	silence := make([]float32, blockSize)
	pace := time.Duration(float64(time.Duration(cfg.chunkMS)*time.Millisecond) / cfg.realtime)
	ticker := time.NewTicker(pace)
	defer ticker.Stop()
	deadline := time.NewTimer(cfg.turnTimeout)
	defer deadline.Stop()

	var res turnResult
	off := 0
	for {
		select {
		case err := <-readErr:
			return res, fmt.Errorf("ws read: %w", err)
		case <-deadline.C:
			return res, fmt.Errorf("timeout after %s", cfg.turnTimeout)
		case ev := <-events:
			switch ev.Type {
			case string(protocol.TypeAssistantAudio):
				if res.firstAudio == 0 {
					res.firstAudio = ev.At.Sub(start)
				}
			case string(protocol.TypeTurnComplete):
				res.total = ev.At.Sub(start)
				return res, nil
			}
		case <-ticker.C:
			block := silence
			if off < len(samples) {
				end := min(off+blockSize, len(samples))
				block = samples[off:end]
				off = end
			}
			*seq++
			msg := protocol.ClientAudioChunk{
				Type:       protocol.TypeClientAudioChunk,
				SessionID:  sessionID,
				Seq:        *seq,
				F32Base64:  base64.StdEncoding.EncodeToString(audio.EncodeFloat32LE(block)),
				SampleRate: audio.CaptureSampleRate,
				TSMs:       time.Now().UnixMilli(),
			}
			if err := conn.WriteJSON(msg); err != nil {
				return res, err
			}
		}
	}
}

type probeEvent struct {
	Type   string `json:"type"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
	State  string `json:"state,omitempty"`
	At     time.Time
}

func readLoop(conn *websocket.Conn, events chan<- probeEvent, readErr chan<- error, verbose bool) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErr <- err:
			default:
			}
			return
		}
		var ev probeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		ev.At = time.Now()
		switch ev.Type {
		case string(protocol.TypeInputLevel), string(protocol.TypeTranscript):
			continue
		case string(protocol.TypeErrorEvent):
			fmt.Fprintf(os.Stderr, "kindredprobe: error_event code=%s detail=%s\n", ev.Code, ev.Detail)
		case string(protocol.TypeLiveStatus):
			if verbose {
				fmt.Printf("kindredprobe: live_status %s\n", ev.State)
			}
		}
		select {
		case events <- ev:
		default:
		}
	}
}

func awaitEvent(events <-chan probeEvent, readErr <-chan error, typ string, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ev := <-events:
			if ev.Type == typ {
				return nil
			}
		case err := <-readErr:
			return err
		case <-timer.C:
			return fmt.Errorf("timeout after %s waiting for %s", timeout, typ)
		}
	}
}

func createSession(ctx context.Context, client *http.Client, cfg options) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"user_id":     cfg.userID,
		"personality": cfg.personality,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/v1/voice/session", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return "", fmt.Errorf("missing session_id in response")
	}
	return out.SessionID, nil
}

func endSession(ctx context.Context, client *http.Client, baseURL, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/voice/session/"+url.PathEscape(sessionID)+"/end", nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func wsURLForSession(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/voice/session/ws"
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// loadSamples returns capture-rate float samples from a WAV file, or two
// seconds of a 220 Hz tone when path is empty.
func loadSamples(path string) ([]float32, error) {
	if strings.TrimSpace(path) == "" {
		return tone(220, 2*time.Second), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pcm, rate, err := decodeWAVPCM16(data)
	if err != nil {
		return nil, err
	}
	if rate != audio.CaptureSampleRate {
		return nil, fmt.Errorf("wav sample rate %d, want %d", rate, audio.CaptureSampleRate)
	}
	buf := audio.DecodeInboundChunk(pcm, rate, 1)
	return buf.Channels[0], nil
}

func tone(hz float64, d time.Duration) []float32 {
	n := int(d.Seconds() * audio.CaptureSampleRate)
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.3 * math.Sin(2*math.Pi*hz*float64(i)/audio.CaptureSampleRate))
	}
	return out
}

// decodeWAVPCM16 extracts mono PCM16LE from a RIFF file, averaging channels.
func decodeWAVPCM16(data []byte) ([]byte, int, error) {
	if len(data) < 12 {
		return nil, 0, fmt.Errorf("wav too short")
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("unsupported wav header")
	}

	var (
		haveFmt     bool
		format      uint16
		channels    uint16
		sampleRate  int
		bitsPerSamp uint16
		pcm         []byte
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		off += 8
		if size < 0 || off+size > len(data) {
			return nil, 0, fmt.Errorf("invalid wav chunk size")
		}
		chunk := data[off : off+size]
		switch id {
		case "fmt ":
			if len(chunk) < 16 {
				return nil, 0, fmt.Errorf("invalid wav fmt chunk")
			}
			format = binary.LittleEndian.Uint16(chunk[0:2])
			channels = binary.LittleEndian.Uint16(chunk[2:4])
			sampleRate = int(binary.LittleEndian.Uint32(chunk[4:8]))
			bitsPerSamp = binary.LittleEndian.Uint16(chunk[14:16])
			haveFmt = true
		case "data":
			pcm = append(pcm[:0], chunk...)
		}
		off += size + size%2
	}
	switch {
	case !haveFmt:
		return nil, 0, fmt.Errorf("wav fmt chunk missing")
	case len(pcm) == 0:
		return nil, 0, fmt.Errorf("wav data chunk missing")
	case format != 1:
		return nil, 0, fmt.Errorf("unsupported wav audio format %d", format)
	case bitsPerSamp != 16:
		return nil, 0, fmt.Errorf("unsupported wav bits_per_sample %d", bitsPerSamp)
	case channels == 0:
		return nil, 0, fmt.Errorf("invalid wav channels=0")
	}

	if channels == 1 {
		return pcm[:len(pcm)&^1], sampleRate, nil
	}
	frameBytes := int(channels) * 2
	frames := len(pcm) / frameBytes
	mono := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		sum := 0
		for ch := 0; ch < int(channels); ch++ {
			at := i*frameBytes + ch*2
			sum += int(int16(binary.LittleEndian.Uint16(pcm[at : at+2])))
		}
		binary.LittleEndian.PutUint16(mono[i*2:], uint16(int16(sum/int(channels))))
	}
	return mono, sampleRate, nil
}

func printSummary(w io.Writer, results []turnResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "kindredprobe: no completed turns")
		return
	}
	first := make([]float64, 0, len(results))
	total := make([]float64, 0, len(results))
	for _, r := range results {
		if r.firstAudio > 0 {
			first = append(first, float64(r.firstAudio.Milliseconds()))
		}
		total = append(total, float64(r.total.Milliseconds()))
	}
	fmt.Fprintf(w, "turns=%d\n", len(results))
	fmt.Fprintf(w, "first_audio_ms p50=%.0f p95=%.0f\n", percentile(first, 0.50), percentile(first, 0.95))
	fmt.Fprintf(w, "turn_total_ms  p50=%.0f p95=%.0f\n", percentile(total, 0.50), percentile(total, 0.95))
}

func percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	idx := int(math.Ceil(q*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
