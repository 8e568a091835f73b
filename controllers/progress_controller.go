package controller

import (
	"context"
	"log"
	"sync"

	"github.com/gofiber/websocket/v2"

	"github.com/veriflow/engine/internal/model"
	"github.com/veriflow/engine/internal/verify"
)

// ProgressController streams per-address results as a batch completes
// them, the same read-one-message/write-many-updates shape as the
// teacher's HandleCampaignProgressWS, minus the sleep-and-narrate
// simulation — every frame here is a real VerifyResult.
type ProgressController struct {
	Engine       *verify.Engine
	MaxBatchSize int
}

func NewProgressController(engine *verify.Engine, maxBatchSize int) *ProgressController {
	return &ProgressController{Engine: engine, MaxBatchSize: maxBatchSize}
}

type progressRequest struct {
	Emails []string `json:"emails"`
}

type progressFrame struct {
	Index  int                `json:"index"`
	Email  string             `json:"email"`
	Result model.VerifyResult `json:"result,omitempty"`
	Done   bool               `json:"done"`
	Error  string             `json:"error,omitempty"`
}

// Stream handles the upgraded connection for /api/verify/stream.
func (pc *ProgressController) Stream(c *websocket.Conn) {
	defer c.Close()

	var req progressRequest
	if err := c.ReadJSON(&req); err != nil {
		log.Printf("progress stream: error reading request: %v", err)
		return
	}

	if len(req.Emails) == 0 {
		_ = c.WriteJSON(progressFrame{Error: "request must include at least one email", Done: true})
		return
	}
	if pc.MaxBatchSize > 0 && len(req.Emails) > pc.MaxBatchSize {
		_ = c.WriteJSON(progressFrame{Error: "batch exceeds the maximum batch size", Done: true})
		return
	}

	// onResult runs on several worker goroutines at once, and the
	// websocket connection allows only one writer at a time.
	var writeMu sync.Mutex
	pc.Engine.VerifyBatchStream(context.Background(), req.Emails, func(i int, r model.VerifyResult) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := c.WriteJSON(progressFrame{Index: i, Email: req.Emails[i], Result: r}); err != nil {
			log.Printf("progress stream: error writing frame: %v", err)
		}
	})

	_ = c.WriteJSON(progressFrame{Done: true})
}
