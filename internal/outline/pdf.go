package outline

import (
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/jackzampolin/outline/internal/types"
)

// ParsePDF flattens the document's bookmark tree depth first. Bookmark depth
// becomes the heading level. A PDF without bookmarks yields no chapters.
func ParsePDF(rs io.ReadSeeker) ([]types.Chapter, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	bms, err := api.Bookmarks(rs, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf bookmarks: %w", err)
	}
	return flattenBookmarks(bms, 1, nil), nil
}

func flattenBookmarks(bms []pdfcpu.Bookmark, level int, out []types.Chapter) []types.Chapter {
	for _, bm := range bms {
		out = append(out, types.Chapter{Title: bm.Title, Level: level})
		out = flattenBookmarks(bm.Kids, level+1, out)
	}
	return out
}
