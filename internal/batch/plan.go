package batch

import "github.com/rbhughes/old-purrio-geographix/internal/domain"

// PlanPages partitions rows [1, total] into consecutive pages of at most
// chunk rows. The last page takes the remainder. total <= 0 yields no pages
// and chunk < 1 is treated as 1.
func PlanPages(total, chunk int) []domain.Page {
	if total <= 0 {
		return nil
	}
	if chunk < 1 {
		chunk = 1
	}

	pages := make([]domain.Page, 0, (total+chunk-1)/chunk)
	for x := 1; x <= total; {
		length := chunk
		if x+chunk > total {
			length = total - x + 1
		}
		pages = append(pages, domain.Page{Offset: x, Length: length})
		x += length
	}
	return pages
}
