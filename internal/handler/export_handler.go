package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/planman/internal/export"
	"github.com/hitoshi/planman/internal/metrics"
	"github.com/hitoshi/planman/internal/middleware"
	"github.com/hitoshi/planman/internal/model"
)

// ExportResolver はエクスポート対象の予定を解決するインターフェース。
// PlanServiceInterfaceを直接広げず、最小限のインターフェースとして定義する。
type ExportResolver interface {
	// ResolveForExport はplan_idまたはguest_keyからエクスポート対象を解決する。
	ResolveForExport(ctx context.Context, planID, guestKey string, identityID *string) (*model.Plan, error)
}

// ExportHandler は予定エクスポートのHTTPハンドラー。
type ExportHandler struct {
	resolver  ExportResolver
	collector metrics.MetricsCollector
}

// NewExportHandler はExportHandlerを生成する。collectorはnilでもよい。
func NewExportHandler(resolver ExportResolver, collector metrics.MetricsCollector) *ExportHandler {
	return &ExportHandler{
		resolver:  resolver,
		collector: collector,
	}
}

// ExportPDF は予定をPDFとして出力する。
// GET /plans/export/pdf?plan_id= または ?guest_key=
func (h *ExportHandler) ExportPDF(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "pdf")
}

// ExportJPG は予定をJPEG画像として出力する。
// GET /plans/export/jpg?plan_id= または ?guest_key=
func (h *ExportHandler) ExportJPG(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "jpg")
}

func (h *ExportHandler) export(w http.ResponseWriter, r *http.Request, format string) {
	planID := r.URL.Query().Get("plan_id")
	guestKey := r.URL.Query().Get("guest_key")

	var identityID *string
	if identity := middleware.IdentityFromContext(r.Context()); identity != nil {
		identityID = &identity.UserID
	}

	resolved, err := h.resolver.ResolveForExport(r.Context(), planID, guestKey, identityID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var data []byte
	var contentType string
	switch format {
	case "pdf":
		data, err = export.RenderPDF(resolved)
		contentType = "application/pdf"
	case "jpg":
		data, err = export.RenderJPG(resolved)
		contentType = "image/jpeg"
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordExport(format)
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="plan-%s.%s"`, resolved.ID, format))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
