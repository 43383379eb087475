package admin

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"crmbot/internal/adapters/storage"
	"crmbot/internal/importer"
	"crmbot/platform/httpkit"

	"github.com/gin-gonic/gin"
)

const formFileField = "file"

// Operations is what the handler needs from Service.
type Operations interface {
	Import(ctx context.Context, telegramID int64, fileName string, r io.Reader) (importer.Report, error)
	Refresh(ctx context.Context, telegramID int64, rawTaxID string) (RefreshResult, error)
}

// Handler exposes maintenance operations over HTTP.
type Handler struct {
	ops Operations
}

func NewHandler(ops Operations) *Handler {
	return &Handler{ops: ops}
}

type refreshResponse struct {
	TaxID     string `json:"taxId"`
	Status    string `json:"status"`
	Operator  string `json:"operator"`
	Aggregate string `json:"aggregate"`
}

// Import handles POST /api/v1/managers/:telegramId/import (multipart field "file").
func (h *Handler) Import(c *gin.Context) {
	telegramID, ok := telegramIDParam(c)
	if !ok {
		return
	}

	fh, err := c.FormFile(formFileField)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "multipart field 'file' is required", nil)
		return
	}
	if err := storage.ValidateImportFile(fh.Filename, fh.Size); err != nil {
		httpkit.Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	f, err := fh.Open()
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "cannot read upload", nil)
		return
	}
	defer func() { _ = f.Close() }()

	report, err := h.ops.Import(c.Request.Context(), telegramID, fh.Filename, f)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

// Refresh handles POST /api/v1/managers/:telegramId/refresh/:taxId.
func (h *Handler) Refresh(c *gin.Context) {
	telegramID, ok := telegramIDParam(c)
	if !ok {
		return
	}

	res, err := h.ops.Refresh(c.Request.Context(), telegramID, c.Param("taxId"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, refreshResponse{
		TaxID:     res.TaxID,
		Status:    string(res.Status),
		Operator:  string(res.Outcome.Operator.Action),
		Aggregate: string(res.Outcome.Aggregate.Action),
	})
}

func telegramIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("telegramId"), 10, 64)
	if err != nil || id <= 0 {
		httpkit.Error(c, http.StatusBadRequest, "telegramId must be a positive integer", nil)
		return 0, false
	}
	return id, true
}
