package toolsurface

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agent-command/agentd/internal/queue"
)

// Client dials the control plane and serves tool requests arriving
// over the socket, dispatching each to a ToolCore and pushing the
// result back, reusing the teacher's reconnect-with-backoff dial loop
// and durable outbound queue.
type Client struct {
	url    string
	token  string
	hostID string

	backoff []int
	core    ToolCore

	conn         *websocket.Conn
	mu           sync.Mutex
	seq          atomic.Int64
	lastAckedSeq int64
	done         chan struct{}
	reconnecting bool

	queue    *queue.Queue
	stateDir string
}

// NewClient constructs a Client that will dispatch inbound tool
// requests to core once Connect succeeds.
func NewClient(url, token, hostID string, backoff []int, core ToolCore) *Client {
	return &Client{
		url:     url,
		token:   token,
		hostID:  hostID,
		backoff: backoff,
		core:    core,
		done:    make(chan struct{}),
	}
}

// SetQueue wires a durable outbound queue for at-least-once result
// delivery, mirroring the teacher's SetQueue.
func (c *Client) SetQueue(q *queue.Queue, stateDir string) {
	c.queue = q
	c.stateDir = stateDir
}

func (c *Client) SetLastAckedSeq(seq int64) {
	c.lastAckedSeq = seq
	c.seq.Store(seq)
}

// Connect dials the control plane and starts the reader goroutine.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.token)
	headers.Set("X-Host-Id", c.hostID)

	conn, _, err := websocket.DefaultDialer.Dial(c.url, headers)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.reconnecting = false

	go c.reader()

	return nil
}

func (c *Client) reader() {
	defer func() {
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
		c.reconnect()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Printf("toolsurface: read error: %v", err)
			return
		}

		var env envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Printf("toolsurface: malformed envelope: %v", err)
			continue
		}

		if env.Type == "tool.ack" {
			c.handleAck(env.Payload)
			continue
		}

		go c.handleRequest(env.Type, env.Payload)
	}
}

func (c *Client) handleAck(payload json.RawMessage) {
	var ack struct {
		AckSeq int64 `json:"ack_seq"`
	}
	if err := json.Unmarshal(payload, &ack); err != nil || ack.AckSeq <= 0 {
		return
	}
	c.mu.Lock()
	if ack.AckSeq > c.lastAckedSeq {
		c.lastAckedSeq = ack.AckSeq
	}
	c.mu.Unlock()
	if c.queue != nil {
		_ = c.queue.AckUpto(ack.AckSeq)
	}
	if c.stateDir != "" {
		_ = queue.SaveAckedSeq(c.stateDir, ack.AckSeq)
	}
}

// handleRequest dispatches one inbound tool request and sends its
// result back over the socket. Dispatch happens off the reader
// goroutine so a slow operation (start() polling for rekey, say()'s
// blocking mode-change) never stalls delivery of other requests.
func (c *Client) handleRequest(msgType string, payload json.RawMessage) {
	result := dispatch(context.Background(), c.core, msgType, payload)
	if err := c.Send(msgType, result); err != nil {
		log.Printf("toolsurface: sending result for %s: %v", msgType, err)
	}
}

func (c *Client) reconnect() {
	c.mu.Lock()
	if c.reconnecting {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()

	delays := c.backoff
	if len(delays) == 0 {
		delays = []int{1000}
	}

	for i, delay := range delays {
		select {
		case <-c.done:
			return
		case <-time.After(time.Duration(delay) * time.Millisecond):
		}
		log.Printf("toolsurface: reconnect attempt %d/%d", i+1, len(delays))
		if err := c.Connect(); err == nil {
			c.ResendQueued()
			return
		}
	}

	maxDelay := delays[len(delays)-1]
	for {
		select {
		case <-c.done:
			return
		case <-time.After(time.Duration(maxDelay) * time.Millisecond):
		}
		if err := c.Connect(); err == nil {
			c.ResendQueued()
			return
		}
	}
}

// Send writes one result envelope to the socket, queuing it for
// retransmission until the control plane acks its seq.
func (c *Client) Send(msgType string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}

	seq := c.seq.Add(1)

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	if c.queue != nil {
		_ = c.queue.Push(queue.ToolResult{Seq: seq, Op: msgType, Payload: payloadBytes})
	}

	env := envelope{
		V:       envelopeVersion,
		Type:    msgType,
		TS:      time.Now().UTC().Format(time.RFC3339Nano),
		Seq:     seq,
		Payload: payloadBytes,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ResendQueued replays every unacknowledged result after a reconnect.
func (c *Client) ResendQueued() {
	if c.queue == nil {
		return
	}
	unacked := c.queue.GetUnacked()
	sort.Slice(unacked, func(i, j int) bool { return unacked[i].Seq < unacked[j].Seq })

	for _, res := range unacked {
		env := envelope{
			V:       envelopeVersion,
			Type:    res.Op,
			TS:      time.Now().UTC().Format(time.RFC3339Nano),
			Seq:     res.Seq,
			Payload: res.Payload,
		}
		data, err := json.Marshal(env)
		if err != nil {
			continue
		}

		c.mu.Lock()
		conn := c.conn
		if conn == nil {
			c.mu.Unlock()
			return
		}
		err = conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			return
		}
	}
}

// Close stops the reconnect loop and closes the socket.
func (c *Client) Close() {
	close(c.done)
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
}
