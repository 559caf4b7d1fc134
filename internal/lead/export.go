package lead

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/hitoshi/leadman/internal/model"
)

var exportHeader = []string{"Name", "Phone", "Campaign", "Status", "Address", "Created At"}

// Export はユーザーの全リードをCSVとしてwに書き出す。行はcreated_at降順。
func (s *Service) Export(ctx context.Context, userID string, w io.Writer) error {
	leads, err := s.leads.ListForExport(ctx, userID)
	if err != nil {
		return fmt.Errorf("エクスポート対象リードの取得に失敗しました: %w", err)
	}
	return writeCSV(w, leads)
}

// ExportFilename はエクスポートファイル名を返す。
func (s *Service) ExportFilename() string {
	return fmt.Sprintf("leads-%s.csv", s.clock.Now().UTC().Format("2006-01-02"))
}

func writeCSV(w io.Writer, leads []model.LeadWithOwner) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("CSVヘッダーの書き込みに失敗しました: %w", err)
	}
	for _, l := range leads {
		row := []string{
			l.Name,
			l.PhoneNumber,
			l.CampaignName,
			string(l.Status),
			l.Address,
			l.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("CSV行の書き込みに失敗しました: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
