package controller

import (
	"log"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

// BatchProgress is one progress frame pushed to websocket subscribers
// while a batch is being dispatched.
type BatchProgress struct {
	BatchID uint   `json:"batch_id"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
	Total   int    `json:"total"`
	Percent int    `json:"percent"`
	Status  string `json:"status"`
}

var progressHub = struct {
	sync.Mutex
	subs map[uint][]chan BatchProgress
}{subs: make(map[uint][]chan BatchProgress)}

// PublishBatchProgress fans a progress update out to subscribers of the
// batch. Hooked up to the send worker's OnProgress callback in main.
func PublishBatchProgress(batchID uint, sent, failed, total int) {
	p := BatchProgress{
		BatchID: batchID,
		Sent:    sent,
		Failed:  failed,
		Total:   total,
		Status:  "running",
	}
	if total > 0 {
		p.Percent = (sent + failed) * 100 / total
	}
	if sent+failed >= total && total > 0 {
		p.Status = "completed"
	}

	progressHub.Lock()
	defer progressHub.Unlock()
	for _, ch := range progressHub.subs[batchID] {
		select {
		case ch <- p:
		default: // slow subscriber, drop the frame
		}
	}
}

func subscribeBatch(batchID uint) chan BatchProgress {
	ch := make(chan BatchProgress, 16)
	progressHub.Lock()
	progressHub.subs[batchID] = append(progressHub.subs[batchID], ch)
	progressHub.Unlock()
	return ch
}

func unsubscribeBatch(batchID uint, ch chan BatchProgress) {
	progressHub.Lock()
	defer progressHub.Unlock()
	subs := progressHub.subs[batchID]
	for i, s := range subs {
		if s == ch {
			progressHub.subs[batchID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(progressHub.subs[batchID]) == 0 {
		delete(progressHub.subs, batchID)
	}
}

// HandleBatchProgressWS streams send progress for one batch. The client
// opens the socket, sends the batch id, and receives progress frames until
// the batch finishes or the connection drops.
func HandleBatchProgressWS(c *websocket.Conn) {
	defer c.Close()

	var input struct {
		BatchID uint `json:"batch_id"`
	}

	if err := c.ReadJSON(&input); err != nil {
		log.Printf("Error reading JSON: %v", err)
		return
	}
	if input.BatchID == 0 {
		return
	}

	ch := subscribeBatch(input.BatchID)
	defer unsubscribeBatch(input.BatchID, ch)

	// Heartbeat keeps idle connections alive while the batch waits in
	// the queue.
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case p := <-ch:
			if err := c.WriteJSON(p); err != nil {
				log.Printf("Error writing JSON: %v", err)
				return
			}
			if p.Status == "completed" {
				return
			}
		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
