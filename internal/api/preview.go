package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/craniometry-server/internal/domain"
	"github.com/craniometry-server/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is enforced by the gateway in front of this service.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// previewResponse answers one preview frame. Values are nil where the
// index cannot be computed yet; classifications use the "-" sentinel. The
// CI classification here is the coarse three-bucket one shown during data
// entry, not the detailed table classification.
type previewResponse struct {
	CI        *float64 `json:"ci"`
	CVAI      *float64 `json:"cvai"`
	TBC       *float64 `json:"tbc"`
	CIClass   string   `json:"ci_class"`
	CVAIClass string   `json:"cvai_class"`
	TBCClass  string   `json:"tbc_class"`
	Error     string   `json:"error,omitempty"`
}

// handlePreview streams index previews during data entry: the client sends
// the current form fields after each keystroke, the server answers with
// the computed indices. Nothing is persisted here.
func (s *Server) handlePreview(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("Preview socket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		var form service.MeasurementForm
		if err := conn.ReadJSON(&form); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.WithError(err).Debug("Preview socket closed unexpectedly")
			}
			return
		}

		m, err := service.ParsePreviewForm(&form)
		if err != nil {
			if writeErr := conn.WriteJSON(previewResponse{
				CIClass:   domain.NotComputable,
				CVAIClass: domain.NotComputable,
				TBCClass:  domain.NotComputable,
				Error:     err.Error(),
			}); writeErr != nil {
				return
			}
			continue
		}

		indices := service.ComputeIndices(m)
		resp := previewResponse{
			CI:        indices.CI,
			CVAI:      indices.CVAI,
			TBC:       indices.TBC,
			CIClass:   service.ClassifyCIPreview(indices.CI),
			CVAIClass: service.Classify(indices.CVAI, domain.CVAI),
			TBCClass:  service.Classify(indices.TBC, domain.TBC),
		}
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}
