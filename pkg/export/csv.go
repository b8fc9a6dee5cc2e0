// Package export serializes the item store into the CSV document users download.
//
// Fields are never quoted: commas inside the folder path or ROI file name are
// replaced by a single space, and the result column is written verbatim. This
// keeps the output byte-compatible with files produced by earlier versions.
package export

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/roivol/roivol/pkg/errors"
	"github.com/roivol/roivol/pkg/store"
)

const (
	// Header is the first line of every export.
	Header = "子文件夹全路径,ROI文件名,计算结果(单位: mm³)"
	// Placeholder stands in for a missing result.
	Placeholder = "未计算"

	EncodingUTF8    = "utf-8"
	EncodingGB18030 = "gb18030"
)

// Encode renders items as CSV. It fails with errors.ErrNoData when items is empty.
func Encode(items []store.Item) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, items); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write renders items as CSV into w.
func Write(w io.Writer, items []store.Item) error {
	if len(items) == 0 {
		return errors.ErrNoData
	}

	var b strings.Builder
	b.WriteString(Header)
	b.WriteByte('\n')
	for _, item := range items {
		b.WriteString(escape(item.FolderPath))
		b.WriteByte(',')
		b.WriteString(escape(item.ROIFile))
		b.WriteByte(',')
		b.WriteString(result(item))
		b.WriteByte('\n')
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return errors.Wrap(err, "failed to write csv")
	}
	slog.Info("export_encoded", "row_count", len(items), "bytes", b.Len())
	return nil
}

// FileName is the download name for an export made at now.
func FileName(now time.Time) string {
	return fmt.Sprintf("dicom_volume_results_%s.csv", now.UTC().Format("2006-01-02"))
}

// Transcode converts UTF-8 CSV bytes into the named encoding.
func Transcode(data []byte, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", EncodingUTF8, "utf8":
		return data, nil
	// GBK has no superscript three, so "gbk" is served by its GB18030 superset.
	case EncodingGB18030, "gbk":
		out, err := simplifiedchinese.GB18030.NewEncoder().Bytes(data)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode csv as gb18030")
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported export encoding %q", encoding)
	}
}

func escape(field string) string {
	return strings.ReplaceAll(field, ",", " ")
}

func result(item store.Item) string {
	if item.Volume == nil {
		return Placeholder
	}
	return item.Volume.String()
}
